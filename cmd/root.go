// Package cmd wires the command line interface.
package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tphakala/soundbackend/cmd/configcmd"
	"github.com/tphakala/soundbackend/cmd/devices"
	"github.com/tphakala/soundbackend/cmd/loopback"
	"github.com/tphakala/soundbackend/cmd/mqtttest"
	"github.com/tphakala/soundbackend/cmd/serve"
	"github.com/tphakala/soundbackend/internal/buildinfo"
	"github.com/tphakala/soundbackend/internal/conf"
	"github.com/tphakala/soundbackend/internal/logger"
	"github.com/tphakala/soundbackend/internal/telemetry"
)

// SkipInitAnnotation marks commands that run without loading configuration.
const SkipInitAnnotation = "soundbackend/skip-init"

// RootCommand creates the root command. settings is replaced with the
// loaded configuration before any subcommand runs.
func RootCommand(settings *conf.Settings, info *buildinfo.Context) *cobra.Command {
	var (
		configFile string
		debug      bool
	)

	rootCmd := &cobra.Command{
		Use:          "soundbackend",
		Short:        "Voice audio backend",
		Long:         "Binds a voice engine to audio hardware and exposes routing and engine control.",
		Version:      info.GetVersion(),
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Path to config file")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")
	if err := setupFlags(rootCmd); err != nil {
		panic(err)
	}

	rootCmd.AddCommand(
		serve.Command(settings, info),
		devices.Command(settings),
		loopback.Command(settings, info),
		configcmd.Command(settings, SkipInitAnnotation),
		mqtttest.Command(settings),
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if cmd.Annotations[SkipInitAnnotation] == "true" {
			return nil
		}
		return initialize(viper.GetViper(), configFile, debug, settings, info)
	}

	return rootCmd
}

// setupFlags defines the global flags and binds them to their config keys.
func setupFlags(rootCmd *cobra.Command) error {
	flags := rootCmd.PersistentFlags()
	flags.String("backend", "", "Audio backend (\"miniaudio\" or \"virtual\")")
	flags.String("listen", "", "Listen address of the control API")

	bindings := map[string]string{
		"audio.backend": "backend",
		"http.listen":   "listen",
	}
	for key, name := range bindings {
		if err := viper.BindPFlag(key, flags.Lookup(name)); err != nil {
			return fmt.Errorf("error binding flag %s: %w", name, err)
		}
	}
	return nil
}

// initialize loads the configuration, installs the global logger and
// starts telemetry when it is enabled.
func initialize(v *viper.Viper, configFile string, debug bool, settings *conf.Settings, info *buildinfo.Context) error {
	loaded, err := conf.Load(v, configFile)
	if err != nil {
		return err
	}
	if debug {
		loaded.Logging.DefaultLevel = string(logger.LogLevelDebug)
		if loaded.Logging.Console != nil {
			loaded.Logging.Console.Level = string(logger.LogLevelDebug)
		}
	}
	*settings = *loaded

	central, err := logger.NewCentralLogger(&settings.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	logger.SetGlobal(central)

	if settings.Telemetry.Enabled {
		if path, err := conf.DefaultConfigFile(); err == nil {
			if id, err := telemetry.LoadOrCreateSystemID(filepath.Dir(path)); err == nil {
				info.SystemID = id
			}
		}
	}
	return telemetry.InitSentry(settings, telemetry.Info{
		Version:  info.GetVersion(),
		SystemID: info.GetSystemID(),
	})
}
