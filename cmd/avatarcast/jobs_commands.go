package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"avatarcast/internal/api"
)

func newJobsCommand(ctx *commandContext) *cobra.Command {
	jobsCmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and manage generation jobs",
	}
	jobsCmd.AddCommand(newJobsListCommand(ctx))
	jobsCmd.AddCommand(newJobsShowCommand(ctx))
	jobsCmd.AddCommand(newJobsCancelCommand(ctx))
	jobsCmd.AddCommand(newJobsWatchCommand(ctx))
	return jobsCmd
}

func newJobsListCommand(ctx *commandContext) *cobra.Command {
	var states []string
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List jobs",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withBackend(cmd.Context(), func(b backend) error {
				list, err := b.Jobs(cmd.Context())
				if err != nil {
					return err
				}
				list = filterJobs(list, states)
				if jsonOutput {
					if list == nil {
						list = []api.Job{}
					}
					return writeJSON(cmd, list)
				}
				out := cmd.OutOrStdout()
				if len(list) == 0 {
					fmt.Fprintln(out, "No jobs")
					return nil
				}
				renderJobTable(out, list, shouldColorize(out))
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVar(&states, "state", nil, "Only show jobs in these states")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func filterJobs(list []api.Job, states []string) []api.Job {
	if len(states) == 0 {
		return list
	}
	wanted := make(map[string]struct{}, len(states))
	for _, state := range states {
		wanted[strings.ToLower(strings.TrimSpace(state))] = struct{}{}
	}
	filtered := make([]api.Job, 0, len(list))
	for _, job := range list {
		if _, ok := wanted[job.State]; ok {
			filtered = append(filtered, job)
		}
	}
	return filtered
}

func newJobsShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withBackend(cmd.Context(), func(b backend) error {
				job, err := b.Job(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, job)
				}
				renderJobSummary(cmd.OutOrStdout(), job, shouldColorize(cmd.OutOrStdout()))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newJobsCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel a queued or processing job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withBackend(cmd.Context(), func(b backend) error {
				job, err := b.Cancel(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Job %s is %s\n", job.ID, job.State)
				return nil
			})
		},
	}
}

func newJobsWatchCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "watch <id>",
		Short: "Follow a job until it finishes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withBackend(cmd.Context(), func(b backend) error {
				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)
				job, err := b.Follow(cmd.Context(), args[0], func(t api.Transition) {
					fmt.Fprintln(out, formatTransition(t, colorize))
				})
				if err != nil {
					return err
				}
				renderJobSummary(out, job, colorize)
				return nil
			})
		},
	}
}
