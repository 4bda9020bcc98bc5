package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"avatarcast/internal/api"
)

func newExportCommand(ctx *commandContext) *cobra.Command {
	var (
		jobIDs       []string
		urls         []string
		presetID     string
		destinations []string
		jsonOutput   bool
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export finished videos to destinations",
		Long: "Export every selected asset to every destination with one preset.\n" +
			"Assets are finished jobs (--job) or external video URLs (--url).",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(jobIDs) == 0 && len(urls) == 0 {
				return errors.New("select at least one asset with --job or --url")
			}
			if len(destinations) == 0 {
				return errors.New("at least one --to destination is required")
			}
			req := api.ExportRequest{Preset: presetID, Destinations: destinations}
			for _, id := range jobIDs {
				req.Assets = append(req.Assets, api.AssetRef{JobID: id})
			}
			for _, u := range urls {
				req.Assets = append(req.Assets, api.AssetRef{URL: u})
			}

			return ctx.withBackend(cmd.Context(), func(b backend) error {
				batch, err := b.Export(cmd.Context(), req)
				if err != nil {
					return err
				}
				if jsonOutput {
					if err := writeJSON(cmd, batch); err != nil {
						return err
					}
				} else {
					renderExport(cmd.OutOrStdout(), batch, shouldColorize(cmd.OutOrStdout()))
				}
				if batch.Summary.Failed > 0 {
					return fmt.Errorf("%d of %d export tasks failed", batch.Summary.Failed, batch.Summary.Total)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVar(&jobIDs, "job", nil, "Finished job ID to export (repeatable)")
	cmd.Flags().StringSliceVar(&urls, "url", nil, "External video URL to export (repeatable)")
	cmd.Flags().StringVarP(&presetID, "preset", "p", "", "Export preset (see `avatarcast presets`)")
	cmd.Flags().StringSliceVar(&destinations, "to", nil, "Destinations (repeatable or comma separated)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	_ = cmd.MarkFlagRequired("preset")

	cmd.AddCommand(newExportHistoryCommand(ctx))
	return cmd
}

func newExportHistoryCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent export batches",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withBackend(cmd.Context(), func(b backend) error {
				batches, err := b.Exports(cmd.Context())
				if err != nil {
					return err
				}
				if jsonOutput {
					if batches == nil {
						batches = []api.ExportResponse{}
					}
					return writeJSON(cmd, batches)
				}
				out := cmd.OutOrStdout()
				if len(batches) == 0 {
					fmt.Fprintln(out, "No export batches recorded")
					return nil
				}
				rows := make([][]string, 0, len(batches))
				for _, batch := range batches {
					rows = append(rows, []string{
						batch.BatchID,
						batch.Preset,
						batch.CreatedAt,
						fmt.Sprint(batch.Summary.Total),
						fmt.Sprint(batch.Summary.Done),
						fmt.Sprint(batch.Summary.Failed),
						fmt.Sprint(batch.Summary.Skipped),
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"Batch", "Preset", "Created", "Tasks", "Done", "Failed", "Skipped"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight},
				))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}
