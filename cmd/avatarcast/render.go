package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"avatarcast/internal/api"
)

// writeJSON prints v as indented JSON for --json output.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func renderJobSummary(out io.Writer, job api.Job, colorize bool) {
	fmt.Fprintln(out)
	for _, line := range renderSectionHeader("Job "+job.ID, colorize) {
		fmt.Fprintln(out, line)
	}
	fmt.Fprintln(out, renderStatusLine("State", jobStateKind(job.State), job.State, colorize))
	fmt.Fprintln(out, renderStatusLine("Avatar / voice", statusInfo, job.AvatarID+" / "+job.VoiceID, colorize))
	fmt.Fprintln(out, renderStatusLine("Quality", statusInfo, job.Quality+", "+job.AspectRatio, colorize))
	if job.ExternalID != "" {
		fmt.Fprintln(out, renderStatusLine("Provider video", statusInfo, job.ExternalID, colorize))
	}
	if job.OutputURL != "" {
		fmt.Fprintln(out, renderStatusLine("Output", statusOK, job.OutputURL, colorize))
	}
	if job.DurationSeconds > 0 {
		fmt.Fprintln(out, renderStatusLine("Duration", statusInfo, formatSeconds(job.DurationSeconds), colorize))
	}
	if job.Failure != nil {
		fmt.Fprintln(out, renderStatusLine("Failure", statusError, job.Failure.Kind+": "+job.Failure.Message, colorize))
	}
	fmt.Fprintln(out, renderStatusLine("Created", statusInfo, job.CreatedAt, colorize))
	fmt.Fprintln(out, renderStatusLine("Updated", statusInfo, job.UpdatedAt, colorize))
}

func renderJobTable(out io.Writer, list []api.Job, colorize bool) {
	rows := make([][]string, 0, len(list))
	for _, job := range list {
		progress := ""
		if job.State == "processing" {
			progress = strconv.Itoa(job.Progress) + "%"
		}
		rows = append(rows, []string{
			job.ID,
			colorizeState(job.State, colorize),
			progress,
			job.AvatarID,
			job.CreatedAt,
			job.Script,
		})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"ID", "State", "Progress", "Avatar", "Created", "Script"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight},
		0, 0, 0, 0, 0, 40,
	))
}

func renderExport(out io.Writer, batch api.ExportResponse, colorize bool) {
	fmt.Fprintln(out)
	for _, line := range renderSectionHeader("Export "+batch.Preset, colorize) {
		fmt.Fprintln(out, line)
	}
	rows := make([][]string, 0, len(batch.Results))
	for _, result := range batch.Results {
		detail := result.URL
		if result.State == "failed" {
			detail = result.Reason
		} else if result.Skipped {
			detail += " (already present)"
		}
		rows = append(rows, []string{
			result.Asset,
			result.Destination,
			colorizeState(result.State, colorize),
			detail,
		})
	}
	fmt.Fprintln(out, renderTable([]string{"Asset", "Destination", "State", "Result"}, rows, nil, 40, 0, 0, 80))

	summary := batch.Summary
	kind := statusOK
	if summary.Failed > 0 {
		kind = statusWarn
		if summary.Done == 0 {
			kind = statusError
		}
	}
	message := fmt.Sprintf("%d done, %d failed, %d skipped of %d", summary.Done, summary.Failed, summary.Skipped, summary.Total)
	fmt.Fprintln(out, renderStatusLine("Summary", kind, message, colorize))
}

func formatSeconds(seconds float64) string {
	return (time.Duration(seconds * float64(time.Second))).Round(time.Second).String()
}
