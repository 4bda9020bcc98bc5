package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"avatarcast/internal/preflight"
	"avatarcast/internal/storage"
	"avatarcast/internal/workflow"
)

func newCheckCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify directories, provider access and storage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			var extra []preflight.Result
			store, err := storage.Open(cmd.Context(), cfg)
			if err != nil {
				extra = append(extra, preflight.Result{Name: "Storage (" + cfg.Storage.Backend + ")", Detail: err.Error()})
				store = nil
			} else {
				defer store.Close()
			}
			results := preflight.RunAll(cmd.Context(), cfg, workflow.ProviderClient(cfg), store)
			results = append(results, extra...)

			for _, line := range renderSectionHeader("Preflight", colorize) {
				fmt.Fprintln(out, line)
			}
			for _, result := range results {
				kind := statusOK
				if !result.Passed {
					kind = statusError
				}
				fmt.Fprintln(out, renderStatusLine(result.Name, kind, result.Detail, colorize))
			}
			if preflight.Failed(results) {
				return errors.New("one or more checks failed")
			}
			return nil
		},
	}
}
