package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"avatarcast/internal/api"
)

type generateOutput struct {
	Job    api.Job             `json:"job"`
	Export *api.ExportResponse `json:"export,omitempty"`
}

func newGenerateCommand(ctx *commandContext) *cobra.Command {
	var (
		script       string
		scriptFile   string
		avatarID     string
		voiceID      string
		quality      string
		aspectRatio  string
		presetID     string
		destinations []string
		detach       bool
		jsonOutput   bool
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate an avatar video from a script",
		Long: "Submit a script for rendering and follow the job until it finishes.\n" +
			"With --export the finished video is exported to the --to destinations.",
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readScript(cmd.InOrStdin(), script, scriptFile)
			if err != nil {
				return err
			}
			if presetID != "" && len(destinations) == 0 {
				return errors.New("--export requires at least one --to destination")
			}
			if detach && presetID != "" {
				return errors.New("--export cannot be combined with --detach")
			}
			req := api.SubmitRequest{
				Script:      text,
				AvatarID:    avatarID,
				VoiceID:     voiceID,
				Quality:     quality,
				AspectRatio: aspectRatio,
			}

			return ctx.withBackend(cmd.Context(), func(b backend) error {
				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)

				job, err := b.Submit(cmd.Context(), req)
				if err != nil {
					if job.ID != "" {
						return fmt.Errorf("job %s: %w", job.ID, err)
					}
					return err
				}
				if detach {
					if jsonOutput {
						return writeJSON(cmd, generateOutput{Job: job})
					}
					fmt.Fprintf(out, "Submitted job %s (%s)\n", job.ID, job.State)
					return nil
				}
				if !jsonOutput {
					fmt.Fprintf(out, "Job %s submitted via %s\n", job.ID, b.Name())
				}

				progress := func(t api.Transition) {
					if !jsonOutput {
						fmt.Fprintln(out, formatTransition(t, colorize))
					}
				}
				job, err = b.Follow(cmd.Context(), job.ID, progress)
				if err != nil {
					return err
				}

				result := generateOutput{Job: job}
				if job.State == "succeeded" && presetID != "" {
					batch, err := b.Export(cmd.Context(), api.ExportRequest{
						Assets:       []api.AssetRef{{JobID: job.ID}},
						Preset:       presetID,
						Destinations: destinations,
					})
					if err != nil {
						return fmt.Errorf("export job %s: %w", job.ID, err)
					}
					result.Export = &batch
				}

				if jsonOutput {
					if err := writeJSON(cmd, result); err != nil {
						return err
					}
				} else {
					renderJobSummary(out, job, colorize)
					if result.Export != nil {
						renderExport(out, *result.Export, colorize)
					}
				}
				return generateError(result)
			})
		},
	}

	cmd.Flags().StringVarP(&script, "script", "s", "", "Script text to speak")
	cmd.Flags().StringVarP(&scriptFile, "script-file", "f", "", "Read the script from a file (- for stdin)")
	cmd.Flags().StringVarP(&avatarID, "avatar", "a", "", "Avatar ID (see `avatarcast catalog avatar`)")
	cmd.Flags().StringVarP(&voiceID, "voice", "v", "", "Voice ID (see `avatarcast catalog voice`)")
	cmd.Flags().StringVar(&quality, "quality", "", "Render quality (low, medium, high)")
	cmd.Flags().StringVar(&aspectRatio, "aspect-ratio", "", "Aspect ratio (16:9, 9:16, 1:1)")
	cmd.Flags().StringVar(&presetID, "export", "", "Export the finished video with this preset")
	cmd.Flags().StringSliceVar(&destinations, "to", nil, "Export destinations (repeatable or comma separated)")
	cmd.Flags().BoolVar(&detach, "detach", false, "Return after submission without following the job")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	_ = cmd.MarkFlagRequired("avatar")
	_ = cmd.MarkFlagRequired("voice")
	return cmd
}

func readScript(stdin io.Reader, script, scriptFile string) (string, error) {
	script = strings.TrimSpace(script)
	scriptFile = strings.TrimSpace(scriptFile)
	switch {
	case script != "" && scriptFile != "":
		return "", errors.New("use either --script or --script-file, not both")
	case script != "":
		return script, nil
	case scriptFile == "-":
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read script from stdin: %w", err)
		}
		return strings.TrimSpace(string(data)), nil
	case scriptFile != "":
		data, err := os.ReadFile(scriptFile)
		if err != nil {
			return "", fmt.Errorf("read script file: %w", err)
		}
		return strings.TrimSpace(string(data)), nil
	default:
		return "", errors.New("a script is required (--script or --script-file)")
	}
}

func formatTransition(t api.Transition, colorize bool) string {
	state := colorizeState(t.To, colorize)
	switch {
	case t.Failure != nil:
		return fmt.Sprintf("  %s: %s (%s)", state, t.Failure.Message, t.Failure.Kind)
	case t.To == "processing":
		return fmt.Sprintf("  %s %3d%%", state, t.Progress)
	case t.OutputURL != "":
		return fmt.Sprintf("  %s %s", state, t.OutputURL)
	default:
		return "  " + state
	}
}

func generateError(result generateOutput) error {
	job := result.Job
	switch job.State {
	case "succeeded":
	case "failed":
		if job.Failure != nil {
			return fmt.Errorf("job %s failed: %s: %s", job.ID, job.Failure.Kind, job.Failure.Message)
		}
		return fmt.Errorf("job %s failed", job.ID)
	default:
		return fmt.Errorf("job %s ended %s", job.ID, job.State)
	}
	if result.Export != nil && result.Export.Summary.Failed > 0 {
		return fmt.Errorf("%d of %d export tasks failed", result.Export.Summary.Failed, result.Export.Summary.Total)
	}
	return nil
}
