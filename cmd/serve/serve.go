// Package serve implements the serve command.
package serve

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tphakala/soundbackend/internal/buildinfo"
	"github.com/tphakala/soundbackend/internal/conf"
	"github.com/tphakala/soundbackend/internal/service"
)

// Command creates the serve command.
func Command(settings *conf.Settings, info *buildinfo.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the audio backend",
		Long: "Open both audio engines with the in-process voice engine attached and " +
			"serve the control API and MQTT bridge until interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := service.New(settings, info)
			if err != nil {
				return err
			}
			return svc.Run(cmd.Context())
		},
	}

	if err := setupFlags(cmd); err != nil {
		panic(err)
	}
	return cmd
}

func setupFlags(cmd *cobra.Command) error {
	cmd.Flags().Bool("http", false, "Enable the control API")
	cmd.Flags().Bool("mqtt", false, "Enable the MQTT bridge")
	cmd.Flags().String("tapdir", "", "Directory receiving WAV copies of played and captured audio")

	bindings := map[string]string{
		"http.enabled": "http",
		"mqtt.enabled": "mqtt",
		"debug.tapdir": "tapdir",
	}
	for key, name := range bindings {
		if err := viper.BindPFlag(key, cmd.Flags().Lookup(name)); err != nil {
			return fmt.Errorf("error binding flag %s: %w", name, err)
		}
	}
	return nil
}
