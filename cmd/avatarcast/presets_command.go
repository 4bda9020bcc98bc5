package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

func newPresetsCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "presets",
		Short: "List export presets and destinations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withBackend(cmd.Context(), func(b backend) error {
				resp, err := b.Presets(cmd.Context())
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, resp)
				}
				rows := make([][]string, 0, len(resp.Presets))
				for _, preset := range resp.Presets {
					maxDuration := "-"
					if preset.MaxDurationSeconds > 0 {
						maxDuration = strconv.Itoa(preset.MaxDurationSeconds) + "s"
					}
					rows = append(rows, []string{preset.ID, preset.AspectRatio, preset.Container, maxDuration, preset.BitrateTier})
				}
				out := cmd.OutOrStdout()
				fmt.Fprintln(out, renderTable(
					[]string{"Preset", "Aspect", "Container", "Max duration", "Bitrate"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
				))
				fmt.Fprintf(out, "Destinations: %s\n", strings.Join(resp.Destinations, ", "))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}
