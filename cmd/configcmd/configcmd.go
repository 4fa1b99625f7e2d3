// Package configcmd implements the config command.
package configcmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tphakala/soundbackend/internal/conf"
)

const redacted = "[REDACTED]"

// Command creates the config parent command. skipInit is the annotation key
// that keeps the root command from loading configuration.
func Command(settings *conf.Settings, skipInit string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and create configuration files",
	}
	cmd.AddCommand(initCommand(skipInit), showCommand(settings))
	return cmd
}

func initCommand(skipInit string) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:         "init [path]",
		Short:       "Write a config file with default values",
		Args:        cobra.MaximumNArgs(1),
		Annotations: map[string]string{skipInit: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := conf.DefaultConfigFile()
			if err != nil {
				return err
			}
			if len(args) == 1 {
				path = args[0]
			}
			if err := Init(path, force); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "config written to %s\n", path)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing file")
	return cmd
}

// Init writes the default settings to path. An existing file is only
// replaced when force is set.
func Init(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%s already exists, use --force to overwrite", path)
	}
	return conf.SaveYAML(path, conf.Defaults())
}

func showCommand(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration with secrets redacted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := Show(settings)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}

// Show renders settings as YAML with credentials redacted.
func Show(settings *conf.Settings) ([]byte, error) {
	out := *settings
	if out.MQTT.Password != "" {
		out.MQTT.Password = redacted
	}
	if out.Telemetry.DSN != "" {
		out.Telemetry.DSN = redacted
	}
	if len(out.Notification.URLs) > 0 {
		urls := make([]string, len(out.Notification.URLs))
		for i := range urls {
			urls[i] = redacted
		}
		out.Notification.URLs = urls
	}
	return yaml.Marshal(&out)
}
