package export

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"avatarcast/internal/config"
)

// Preset is a static export target description.
type Preset struct {
	ID                 string `json:"id"`
	AspectRatio        string `json:"aspect_ratio"`
	Container          string `json:"container"`
	MaxDurationSeconds int    `json:"max_duration_seconds"`
	BitrateTier        string `json:"bitrate_tier"`
}

// PresetsFromConfig converts configured presets.
func PresetsFromConfig(presets []config.Preset) []Preset {
	out := make([]Preset, 0, len(presets))
	for _, p := range presets {
		out = append(out, Preset{
			ID:                 p.ID,
			AspectRatio:        p.AspectRatio,
			Container:          p.Container,
			MaxDurationSeconds: p.MaxDurationSeconds,
			BitrateTier:        p.BitrateTier,
		})
	}
	return out
}

// DefaultPresets returns the compiled-in presets.
func DefaultPresets() []Preset {
	return PresetsFromConfig(config.DefaultPresets())
}

// AssetRef points at an export source: a generation job or a pre-existing URL.
type AssetRef struct {
	JobID string `json:"job_id,omitempty"`
	URL   string `json:"url,omitempty"`
}

// Key is the stable path segment used for the asset in object keys.
func (a AssetRef) Key() string {
	if id := strings.TrimSpace(a.JobID); id != "" {
		return id
	}
	sum := sha256.Sum256([]byte(strings.TrimSpace(a.URL)))
	return "url-" + hex.EncodeToString(sum[:6])
}

func (a AssetRef) String() string {
	if a.JobID != "" {
		return "job:" + a.JobID
	}
	return a.URL
}

// TaskState is the lifecycle of an export task.
type TaskState string

const (
	TaskPending TaskState = "pending"
	TaskRunning TaskState = "running"
	TaskDone    TaskState = "done"
	TaskFailed  TaskState = "failed"
)

// Task is one (asset, preset, destination) unit of work.
type Task struct {
	ID          string    `json:"id"`
	Source      AssetRef  `json:"source"`
	PresetID    string    `json:"preset_id"`
	Destination string    `json:"destination"`
	State       TaskState `json:"state"`
	ResultURL   string    `json:"result_url,omitempty"`
	Reason      string    `json:"reason,omitempty"`
}

// Result is the outcome of one task.
type Result struct {
	Task    Task          `json:"task"`
	State   TaskState     `json:"state"`
	URL     string        `json:"url,omitempty"`
	Reason  string        `json:"reason,omitempty"`
	Skipped bool          `json:"skipped,omitempty"`
	Elapsed time.Duration `json:"elapsed"`
}

// Summary aggregates results.
type Summary struct {
	Total   int `json:"total"`
	Done    int `json:"done"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

// Summarize counts results by outcome.
func Summarize(results []Result) Summary {
	summary := Summary{Total: len(results)}
	for _, result := range results {
		switch result.State {
		case TaskDone:
			summary.Done++
			if result.Skipped {
				summary.Skipped++
			}
		default:
			summary.Failed++
		}
	}
	return summary
}
