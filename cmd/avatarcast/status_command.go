package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"avatarcast/internal/api"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			client, err := ctx.daemonClient(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			if client == nil {
				if jsonOutput {
					return writeJSON(cmd, api.DaemonStatus{Running: false, LockFilePath: cfg.LockPath()})
				}
				for _, line := range renderSectionHeader("Daemon", colorize) {
					fmt.Fprintln(out, line)
				}
				message := "not running"
				if strings.TrimSpace(cfg.Paths.APIBind) != "" {
					message += " (no answer on " + cfg.Paths.APIBind + ")"
				}
				fmt.Fprintln(out, renderStatusLine("Daemon", statusWarn, message, colorize))
				fmt.Fprintln(out, renderStatusLine("Start with", statusInfo, "avatarcast serve", colorize))
				return nil
			}

			status, err := client.Status(cmd.Context())
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, status)
			}
			renderDaemonStatus(cmd, status, colorize)
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func renderDaemonStatus(cmd *cobra.Command, status api.DaemonStatus, colorize bool) {
	out := cmd.OutOrStdout()
	for _, line := range renderSectionHeader("Daemon", colorize) {
		fmt.Fprintln(out, line)
	}
	fmt.Fprintln(out, renderStatusLine("Daemon", statusOK, fmt.Sprintf("running (pid %d, since %s)", status.PID, status.StartedAt), colorize))
	fmt.Fprintln(out, renderStatusLine("Storage", statusInfo, status.StorageBackend, colorize))
	journal := status.JournalPath
	if journal == "" {
		journal = "disabled"
	}
	fmt.Fprintln(out, renderStatusLine("Journal", statusInfo, journal, colorize))

	fmt.Fprintln(out)
	for _, line := range renderSectionHeader("Jobs", colorize) {
		fmt.Fprintln(out, line)
	}
	for _, state := range api.SortedStates(status.Jobs) {
		fmt.Fprintln(out, renderStatusLine(state, jobStateKind(state), fmt.Sprint(status.Jobs[state]), colorize))
	}

	fmt.Fprintln(out)
	for _, line := range renderSectionHeader("Catalog", colorize) {
		fmt.Fprintln(out, line)
	}
	for _, cat := range status.Catalog {
		kind := statusOK
		message := fmt.Sprintf("%d refreshes, %d failures", cat.Refreshes, cat.Failures)
		if cat.LastError != "" {
			kind = statusWarn
			message += "; last error: " + cat.LastError
		}
		fmt.Fprintln(out, renderStatusLine(cat.Category, kind, message, colorize))
	}
}
