// Package devices implements the devices command.
package devices

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tphakala/soundbackend/internal/conf"
	"github.com/tphakala/soundbackend/internal/devices"
	"github.com/tphakala/soundbackend/internal/hal"
	"github.com/tphakala/soundbackend/internal/hal/backends"
)

// Entry is one listed endpoint.
type Entry struct {
	hal.DeviceInfo
	Direction   string       `json:"direction"`
	DisplayType string       `json:"display_type"`
	Kind        devices.Kind `json:"kind"`
}

// Command creates the devices command.
func Command(settings *conf.Settings) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List audio endpoints",
		Long:  "List the input and output endpoints of the configured audio backend and how the router classifies them.",
		RunE: func(cmd *cobra.Command, args []string) error {
			hw, err := backends.New(&settings.Audio)
			if err != nil {
				return err
			}
			defer hw.Close()

			entries, err := List(devices.NewEnumerator(hw, 0))
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(entries)
			}
			return Print(cmd.OutOrStdout(), entries)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of a table")
	return cmd
}

// List returns the output endpoints followed by the input endpoints.
func List(e *devices.Enumerator) ([]Entry, error) {
	var entries []Entry
	for _, dir := range []hal.Direction{hal.Output, hal.Input} {
		list, err := e.Devices(dir)
		if err != nil {
			return nil, err
		}
		for _, d := range list {
			entries = append(entries, Entry{
				DeviceInfo:  d,
				Direction:   dir.String(),
				DisplayType: devices.TypeDisplayName(d.Type),
				Kind:        devices.KindOf(d),
			})
		}
	}
	return entries, nil
}

// Print writes entries as an aligned table.
func Print(w io.Writer, entries []Entry) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DIRECTION\tID\tNAME\tTYPE\tKIND\tDEFAULT")
	for _, e := range entries {
		def := ""
		if e.IsDefault {
			def = "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", e.Direction, e.ID, e.Name, e.DisplayType, e.Kind, def)
	}
	return tw.Flush()
}
