package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"avatarcast/internal/export"
	"avatarcast/internal/jobs"
	"avatarcast/internal/journal"
	"avatarcast/internal/logging"
)

// BatchRecorder persists finished export batches.
type BatchRecorder interface {
	SaveBatch(ctx context.Context, batch journal.Batch) error
}

// ExportNotifier is told about finished export batches.
type ExportNotifier interface {
	ExportFinished(ctx context.Context, presetID string, summary export.Summary)
}

// RunnerOption customizes a Runner.
type RunnerOption func(*Runner)

// WithBatchRecorder records every export batch.
func WithBatchRecorder(recorder BatchRecorder) RunnerOption {
	return func(r *Runner) {
		r.batches = recorder
	}
}

// WithExportNotifier reports every export batch.
func WithExportNotifier(notifier ExportNotifier) RunnerOption {
	return func(r *Runner) {
		r.exports = notifier
	}
}

// Runner composes generation and export.
type Runner struct {
	orch     *jobs.Orchestrator
	pipeline *export.Pipeline
	batches  BatchRecorder
	exports  ExportNotifier
	logger   *slog.Logger
	now      func() time.Time
}

// NewRunner constructs a runner over an orchestrator and export pipeline.
func NewRunner(orch *jobs.Orchestrator, pipeline *export.Pipeline, logger *slog.Logger, opts ...RunnerOption) *Runner {
	r := &Runner{
		orch:     orch,
		pipeline: pipeline,
		logger:   logging.NewComponentLogger(logger, "workflow"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ExportPlan selects a preset and destinations for a follow-up export.
type ExportPlan struct {
	PresetID     string
	Destinations []string
}

// Production is the outcome of Produce.
type Production struct {
	Job   jobs.Job
	Batch *journal.Batch
}

// Await follows a job until it is terminal or ctx ends. onTransition, when
// set, sees every transition including the replayed history.
func (r *Runner) Await(ctx context.Context, id string, onTransition func(jobs.Transition)) (jobs.Job, error) {
	events, err := r.orch.Subscribe(ctx, id)
	if err != nil {
		return jobs.Job{}, err
	}
	for transition := range events {
		if onTransition != nil {
			onTransition(transition)
		}
	}
	job, err := r.orch.Status(id)
	if err != nil {
		return jobs.Job{}, err
	}
	if !job.State.Terminal() {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return job, ctxErr
		}
	}
	return job, nil
}

// Produce submits req, waits for the job to finish and, when plan names a
// preset and the job succeeded, exports the result.
func (r *Runner) Produce(ctx context.Context, req jobs.Request, plan ExportPlan, onTransition func(jobs.Transition)) (Production, error) {
	id, err := r.orch.Submit(ctx, req)
	if err != nil {
		return Production{}, err
	}
	job, err := r.Await(ctx, id, onTransition)
	if err != nil {
		return Production{Job: job}, err
	}
	out := Production{Job: job}
	if job.State != jobs.StateSucceeded || plan.PresetID == "" || len(plan.Destinations) == 0 {
		return out, nil
	}
	batch := r.Export(ctx, []export.AssetRef{{JobID: id}}, plan.PresetID, plan.Destinations)
	out.Batch = &batch
	return out, nil
}

// Export plans and runs one batch, records it and reports it.
func (r *Runner) Export(ctx context.Context, selection []export.AssetRef, presetID string, destinations []string) journal.Batch {
	started := r.now()
	tasks := r.pipeline.Plan(selection, presetID, destinations)
	results := r.pipeline.Run(ctx, tasks)
	batch := journal.Batch{
		ID:        uuid.NewString(),
		PresetID:  presetID,
		CreatedAt: started,
		Summary:   export.Summarize(results),
		Results:   results,
	}

	if r.batches != nil {
		if err := r.batches.SaveBatch(context.WithoutCancel(ctx), batch); err != nil {
			logging.WarnWithContext(r.logger, "export batch not recorded",
				"export_batch_record_failed",
				logging.String("batch_id", batch.ID),
				logging.Error(err),
				logging.String(logging.FieldImpact, "batch missing from export history"),
			)
		}
	}
	if r.exports != nil {
		r.exports.ExportFinished(ctx, presetID, batch.Summary)
	}
	r.logger.Info("export batch recorded",
		logging.String("batch_id", batch.ID),
		logging.String("preset", presetID),
		logging.String("summary", fmt.Sprintf("%d/%d delivered", batch.Summary.Done, batch.Summary.Total)),
		logging.String(logging.FieldEventType, "export_batch_recorded"),
	)
	return batch
}
