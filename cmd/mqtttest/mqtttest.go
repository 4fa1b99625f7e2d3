// Package mqtttest implements the mqtt-test command.
package mqtttest

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tphakala/soundbackend/internal/conf"
	"github.com/tphakala/soundbackend/internal/mqtt"
)

// Command creates the mqtt-test command.
func Command(settings *conf.Settings) *cobra.Command {
	var (
		broker  string
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "mqtt-test",
		Short: "Check connectivity to the MQTT broker",
		Long:  "Resolve, dial, connect and publish a test message to the configured broker, reporting each stage.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := mqtt.ConfigFromSettings(settings)
			if broker != "" {
				cfg.Broker = broker
			}
			client, err := mqtt.NewClient(cfg, nil)
			if err != nil {
				return err
			}
			defer client.Disconnect()

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			results := make(chan mqtt.TestResult)
			go func() {
				defer close(results)
				mqtt.TestConnection(ctx, cfg, client, results)
			}()

			var last mqtt.TestResult
			for r := range results {
				mark := "ok"
				switch {
				case r.IsProgress:
					mark = ".."
				case !r.Success:
					mark = "!!"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "[%s] %s: %s", mark, r.Stage, r.Message)
				if r.Error != "" {
					fmt.Fprintf(cmd.OutOrStdout(), " (%s)", r.Error)
				}
				fmt.Fprintln(cmd.OutOrStdout())
				last = r
			}

			if !last.Success {
				return fmt.Errorf("mqtt test failed at %s", last.Stage)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&broker, "broker", "", "Broker URL, overrides mqtt.broker")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "Overall test timeout")
	return cmd
}
