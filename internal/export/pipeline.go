package export

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"avatarcast/internal/jobs"
	"avatarcast/internal/logging"
)

// JobSource reads generation jobs; satisfied by *jobs.Orchestrator.
type JobSource interface {
	Status(id string) (jobs.Job, error)
}

// Outcome is what a Publisher reports for a finished task.
type Outcome struct {
	URL     string
	Skipped bool
}

// Publisher performs the opaque transform/upload step for one task.
type Publisher interface {
	Publish(ctx context.Context, task Task, preset Preset, sourceURL string) (Outcome, error)
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithClock overrides the clock used to measure task duration.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		if now != nil {
			p.now = now
		}
	}
}

// WithIDGenerator overrides task ID generation.
func WithIDGenerator(newID func() string) Option {
	return func(p *Pipeline) {
		if newID != nil {
			p.newID = newID
		}
	}
}

// Pipeline plans and runs export batches.
type Pipeline struct {
	presets      map[string]Preset
	presetOrder  []string
	destinations map[string]struct{}
	destOrder    []string
	jobs         JobSource
	publisher    Publisher
	workers      int
	logger       *slog.Logger
	now          func() time.Time
	newID        func() string
}

// New constructs a pipeline. workers bounds concurrent tasks in Run.
func New(presets []Preset, destinations []string, jobSource JobSource, publisher Publisher, workers int, logger *slog.Logger, opts ...Option) *Pipeline {
	if workers <= 0 {
		workers = 1
	}
	p := &Pipeline{
		presets:      make(map[string]Preset, len(presets)),
		destinations: make(map[string]struct{}, len(destinations)),
		jobs:         jobSource,
		publisher:    publisher,
		workers:      workers,
		logger:       logging.NewComponentLogger(logger, "export"),
		now:          time.Now,
		newID:        func() string { return uuid.NewString() },
	}
	for _, preset := range presets {
		if _, dup := p.presets[preset.ID]; dup {
			continue
		}
		p.presets[preset.ID] = preset
		p.presetOrder = append(p.presetOrder, preset.ID)
	}
	for _, dest := range destinations {
		dest = strings.ToLower(strings.TrimSpace(dest))
		if _, dup := p.destinations[dest]; dup || dest == "" {
			continue
		}
		p.destinations[dest] = struct{}{}
		p.destOrder = append(p.destOrder, dest)
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Presets returns the configured presets in declaration order.
func (p *Pipeline) Presets() []Preset {
	out := make([]Preset, 0, len(p.presetOrder))
	for _, id := range p.presetOrder {
		out = append(out, p.presets[id])
	}
	return out
}

// Preset looks a preset up by ID.
func (p *Pipeline) Preset(id string) (Preset, bool) {
	preset, ok := p.presets[strings.TrimSpace(id)]
	return preset, ok
}

// Destinations returns the configured destination names.
func (p *Pipeline) Destinations() []string {
	return append([]string(nil), p.destOrder...)
}

// Plan builds one task per (asset, destination) pair for presetID, ordered
// selection-major and destination-minor. It never touches the network.
func (p *Pipeline) Plan(selection []AssetRef, presetID string, destinations []string) []Task {
	presetID = strings.TrimSpace(presetID)
	preset, presetOK := p.presets[presetID]

	tasks := make([]Task, 0, len(selection)*len(destinations))
	for _, asset := range selection {
		asset = AssetRef{JobID: strings.TrimSpace(asset.JobID), URL: strings.TrimSpace(asset.URL)}
		assetReason := ""
		if presetOK {
			assetReason = p.checkAsset(asset, preset)
		}
		for _, dest := range destinations {
			task := Task{
				ID:          p.newID(),
				Source:      asset,
				PresetID:    presetID,
				Destination: strings.ToLower(strings.TrimSpace(dest)),
				State:       TaskPending,
			}
			switch {
			case !presetOK:
				task.Reason = fmt.Sprintf("unknown preset %q", presetID)
			case !p.knownDestination(task.Destination):
				task.Reason = fmt.Sprintf("unknown destination %q", dest)
			case assetReason != "":
				task.Reason = assetReason
			}
			if task.Reason != "" {
				task.State = TaskFailed
			}
			tasks = append(tasks, task)
		}
	}
	return tasks
}

func (p *Pipeline) knownDestination(dest string) bool {
	_, ok := p.destinations[dest]
	return ok
}

// checkAsset returns a failure reason, or "" when the asset may be exported.
func (p *Pipeline) checkAsset(asset AssetRef, preset Preset) string {
	switch {
	case asset.JobID != "" && asset.URL != "":
		return "asset reference must name a job or a url, not both"
	case asset.JobID != "":
		job, reason := p.sourceJob(asset.JobID)
		if reason != "" {
			return reason
		}
		if preset.MaxDurationSeconds > 0 && job.DurationSeconds > float64(preset.MaxDurationSeconds) {
			return fmt.Sprintf("asset duration %.0fs exceeds preset %s limit of %ds", job.DurationSeconds, preset.ID, preset.MaxDurationSeconds)
		}
		return ""
	case asset.URL != "":
		parsed, err := url.Parse(asset.URL)
		if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
			return fmt.Sprintf("asset url %q is not an http(s) url", asset.URL)
		}
		return ""
	default:
		return "asset reference is empty"
	}
}

// sourceJob loads a job and checks it succeeded with an output.
func (p *Pipeline) sourceJob(id string) (jobs.Job, string) {
	if p.jobs == nil {
		return jobs.Job{}, "no job source configured"
	}
	job, err := p.jobs.Status(id)
	if err != nil {
		return jobs.Job{}, fmt.Sprintf("unknown job %q", id)
	}
	if job.State != jobs.StateSucceeded {
		return job, fmt.Sprintf("job %s is %s, not succeeded", id, job.State)
	}
	if job.OutputRef == "" {
		return job, fmt.Sprintf("job %s has no output", id)
	}
	return job, ""
}

// Run executes pending tasks with bounded concurrency. Results are returned
// in the order of tasks; already-failed tasks pass through unchanged.
func (p *Pipeline) Run(ctx context.Context, tasks []Task) []Result {
	results := make([]Result, len(tasks))
	started := p.now()

	var group errgroup.Group
	group.SetLimit(p.workers)
	for i, task := range tasks {
		if task.State != TaskPending {
			results[i] = failed(task, task.Reason, 0)
			continue
		}
		group.Go(func() error {
			results[i] = p.runTask(ctx, task)
			return nil
		})
	}
	_ = group.Wait()

	summary := Summarize(results)
	p.logger.Info("export batch finished",
		logging.Int("total", summary.Total),
		logging.Int("done", summary.Done),
		logging.Int("failed", summary.Failed),
		logging.Int("skipped", summary.Skipped),
		logging.Duration("elapsed", p.now().Sub(started)),
		logging.String(logging.FieldEventType, "export_batch_finished"),
	)
	return results
}

func (p *Pipeline) runTask(ctx context.Context, task Task) Result {
	started := p.now()
	logger := p.logger.With(
		logging.TaskID(task.ID),
		logging.String("destination", task.Destination),
		logging.String("preset", task.PresetID),
		logging.String("asset", task.Source.String()),
	)
	if err := ctx.Err(); err != nil {
		return failed(task, "cancelled before start: "+err.Error(), 0)
	}

	preset, ok := p.presets[task.PresetID]
	if !ok {
		return failed(task, fmt.Sprintf("unknown preset %q", task.PresetID), 0)
	}
	sourceURL := task.Source.URL
	if task.Source.JobID != "" {
		job, reason := p.sourceJob(task.Source.JobID)
		if reason != "" {
			return failed(task, reason, 0)
		}
		sourceURL = job.OutputRef
	}

	task.State = TaskRunning
	logger.Debug("export task started")
	outcome, err := p.publisher.Publish(ctx, task, preset, sourceURL)
	elapsed := p.now().Sub(started)
	if err != nil {
		logging.WarnWithContext(logger, "export task failed",
			"export_task_failed",
			logging.Error(err),
			logging.Duration("elapsed", elapsed),
			logging.String(logging.FieldErrorHint, "check storage backend and source availability"),
			logging.String(logging.FieldImpact, "asset not delivered to destination"),
		)
		return failed(task, err.Error(), elapsed)
	}

	task.State = TaskDone
	task.ResultURL = outcome.URL
	logger.Info("export task finished",
		logging.String("url", outcome.URL),
		logging.Bool("skipped", outcome.Skipped),
		logging.Duration("elapsed", elapsed),
	)
	return Result{Task: task, State: TaskDone, URL: outcome.URL, Skipped: outcome.Skipped, Elapsed: elapsed}
}

func failed(task Task, reason string, elapsed time.Duration) Result {
	task.State = TaskFailed
	task.Reason = reason
	return Result{Task: task, State: TaskFailed, Reason: reason, Elapsed: elapsed}
}
