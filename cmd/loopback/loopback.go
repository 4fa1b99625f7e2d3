// Package loopback implements the loopback command.
package loopback

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tphakala/soundbackend/internal/buildinfo"
	"github.com/tphakala/soundbackend/internal/conf"
	"github.com/tphakala/soundbackend/internal/service"
)

// Command creates the loopback command.
func Command(settings *conf.Settings, info *buildinfo.Context) *cobra.Command {
	var (
		duration time.Duration
		tapDir   string
	)

	cmd := &cobra.Command{
		Use:   "loopback",
		Short: "Echo the microphone to the output for a while",
		Long: "Run both engines with the in-process voice engine, which plays captured " +
			"audio back after a short delay. The control API and MQTT bridge stay off.",
		RunE: func(cmd *cobra.Command, args []string) error {
			local := *settings
			local.HTTP.Enabled = false
			local.MQTT.Enabled = false
			if tapDir != "" {
				local.Debug.TapDir = tapDir
			}

			svc, err := service.New(&local, info)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), duration)
			defer cancel()
			if err := svc.Run(ctx); err != nil {
				return err
			}

			stats, err := json.MarshalIndent(svc.Engine().Stats(), "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(stats))
			return nil
		},
	}

	cmd.Flags().DurationVar(&duration, "duration", 10*time.Second, "How long to run")
	cmd.Flags().StringVar(&tapDir, "tapdir", "", "Directory receiving WAV copies of played and captured audio")
	return cmd
}
