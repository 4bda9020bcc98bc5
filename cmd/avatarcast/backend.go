package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"avatarcast/internal/api"
	"avatarcast/internal/catalog"
	"avatarcast/internal/jobs"
	"avatarcast/internal/services"
	"avatarcast/internal/workflow"
)

// backend is what commands need from either the daemon or an in-process stack.
type backend interface {
	Name() string
	Catalog(ctx context.Context, category string, refresh bool, lang string) (api.CatalogResponse, error)
	Presets(ctx context.Context) (api.PresetsResponse, error)
	// Submit returns the job even when submission failed after it was created.
	Submit(ctx context.Context, req api.SubmitRequest) (api.Job, error)
	Follow(ctx context.Context, id string, fn func(api.Transition)) (api.Job, error)
	Jobs(ctx context.Context) ([]api.Job, error)
	Job(ctx context.Context, id string) (api.Job, error)
	Cancel(ctx context.Context, id string) (api.Job, error)
	Export(ctx context.Context, req api.ExportRequest) (api.ExportResponse, error)
	Exports(ctx context.Context) ([]api.ExportResponse, error)
}

// --- daemon adapter ---

type daemonBackend struct {
	client *api.Client
}

func (b *daemonBackend) Name() string { return "daemon" }

func (b *daemonBackend) Catalog(ctx context.Context, category string, refresh bool, lang string) (api.CatalogResponse, error) {
	return b.client.Catalog(ctx, category, refresh, lang)
}

func (b *daemonBackend) Presets(ctx context.Context) (api.PresetsResponse, error) {
	return b.client.Presets(ctx)
}

func (b *daemonBackend) Submit(ctx context.Context, req api.SubmitRequest) (api.Job, error) {
	resp, err := b.client.Submit(ctx, req)
	if err == nil {
		return resp.Job, nil
	}
	var statusErr *api.StatusError
	if errors.As(err, &statusErr) && statusErr.JobID != "" {
		job, jobErr := b.client.Job(ctx, statusErr.JobID)
		if jobErr == nil {
			return job, err
		}
		return api.Job{ID: statusErr.JobID, State: string(jobs.StateFailed)}, err
	}
	return api.Job{}, err
}

func (b *daemonBackend) Follow(ctx context.Context, id string, fn func(api.Transition)) (api.Job, error) {
	if err := b.client.Events(ctx, id, fn); err != nil {
		return api.Job{}, err
	}
	return b.client.Job(ctx, id)
}

func (b *daemonBackend) Jobs(ctx context.Context) ([]api.Job, error) {
	resp, err := b.client.ListJobs(ctx)
	if err != nil {
		return nil, err
	}
	return resp.Jobs, nil
}

func (b *daemonBackend) Job(ctx context.Context, id string) (api.Job, error) {
	return b.client.Job(ctx, id)
}

func (b *daemonBackend) Cancel(ctx context.Context, id string) (api.Job, error) {
	return b.client.Cancel(ctx, id)
}

func (b *daemonBackend) Export(ctx context.Context, req api.ExportRequest) (api.ExportResponse, error) {
	return b.client.Export(ctx, req)
}

func (b *daemonBackend) Exports(ctx context.Context) ([]api.ExportResponse, error) {
	resp, err := b.client.Exports(ctx)
	if err != nil {
		return nil, err
	}
	return resp.Batches, nil
}

// --- in-process adapter ---

type localBackend struct {
	stack *workflow.Stack
}

func (b *localBackend) Name() string { return "local" }

func (b *localBackend) Close() error {
	return b.stack.Close()
}

func (b *localBackend) Catalog(ctx context.Context, category string, refresh bool, lang string) (api.CatalogResponse, error) {
	parsed, err := catalog.ParseCategory(category)
	if err != nil {
		return api.CatalogResponse{}, err
	}
	var snap catalog.Snapshot
	if refresh {
		snap = b.stack.Catalog.Refresh(ctx, parsed)
	} else {
		snap = b.stack.Catalog.Get(ctx, parsed)
	}
	return api.FromSnapshot(snap.FilterLanguage(lang)), nil
}

func (b *localBackend) Presets(context.Context) (api.PresetsResponse, error) {
	return api.FromPresets(b.stack.Pipeline.Presets(), b.stack.Pipeline.Destinations()), nil
}

func (b *localBackend) Submit(ctx context.Context, req api.SubmitRequest) (api.Job, error) {
	orch := b.stack.Orchestrator
	if !orch.Running() {
		if err := orch.Start(ctx); err != nil {
			return api.Job{}, err
		}
	}
	id, err := orch.Submit(ctx, req.ToRequest())
	if id == "" {
		return api.Job{}, err
	}
	job, statusErr := orch.Status(id)
	if statusErr != nil {
		return api.Job{ID: id}, errors.Join(err, statusErr)
	}
	return api.FromJob(job), err
}

func (b *localBackend) Follow(ctx context.Context, id string, fn func(api.Transition)) (api.Job, error) {
	job, err := b.stack.Runner.Await(ctx, id, func(t jobs.Transition) {
		fn(api.FromTransition(t))
	})
	return api.FromJob(job), err
}

func (b *localBackend) Jobs(ctx context.Context) ([]api.Job, error) {
	if b.stack.Journal == nil {
		return api.FromJobs(b.stack.Orchestrator.List()), nil
	}
	stored, err := b.stack.Journal.Load(ctx)
	if err != nil {
		return nil, err
	}
	return api.FromJobs(stored), nil
}

func (b *localBackend) Job(ctx context.Context, id string) (api.Job, error) {
	id = strings.TrimSpace(id)
	if job, err := b.stack.Orchestrator.Status(id); err == nil {
		return api.FromJob(job), nil
	}
	if b.stack.Journal != nil {
		stored, err := b.stack.Journal.Get(ctx, id)
		if err != nil {
			return api.Job{}, err
		}
		if stored != nil {
			return api.FromJob(*stored), nil
		}
	}
	return api.Job{}, services.Wrap(services.ErrNotFound, "cli", "job", "job "+id, nil)
}

func (b *localBackend) Cancel(ctx context.Context, id string) (api.Job, error) {
	if err := b.stack.Orchestrator.Cancel(ctx, id); err != nil {
		if errors.Is(err, services.ErrNotFound) {
			return api.Job{}, fmt.Errorf("%w; in-flight jobs are owned by the daemon (start it with `avatarcast serve`)", err)
		}
		return api.Job{}, err
	}
	return b.Job(ctx, id)
}

func (b *localBackend) Export(ctx context.Context, req api.ExportRequest) (api.ExportResponse, error) {
	batch := b.stack.Runner.Export(ctx, api.ToAssetRefs(req.Assets), req.Preset, req.Destinations)
	return api.FromBatch(batch), nil
}

func (b *localBackend) Exports(ctx context.Context) ([]api.ExportResponse, error) {
	if b.stack.Journal == nil {
		return nil, nil
	}
	batches, err := b.stack.Journal.RecentBatches(ctx, 20)
	if err != nil {
		return nil, err
	}
	out := make([]api.ExportResponse, 0, len(batches))
	for _, batch := range batches {
		out = append(out, api.FromBatch(batch))
	}
	return out, nil
}
