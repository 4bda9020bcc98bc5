package workflow_test

import (
	"context"
	"testing"
	"time"

	"avatarcast/internal/export"
	"avatarcast/internal/jobs"
	"avatarcast/internal/logging"
	"avatarcast/internal/testsupport"
	"avatarcast/internal/workflow"
)

func fastSettings() jobs.Settings {
	return jobs.Settings{
		TickInterval:  2 * time.Millisecond,
		PollInterval:  5 * time.Millisecond,
		BackoffBase:   2 * time.Millisecond,
		BackoffMax:    10 * time.Millisecond,
		Timeout:       5 * time.Second,
		SubmitTimeout: time.Second,
		CallTimeout:   time.Second,
		PollWorkers:   2,
	}
}

func newStack(t *testing.T, provider *testsupport.FakeProvider, store *testsupport.MemoryStore, opts ...testsupport.ConfigOption) *workflow.Stack {
	t.Helper()
	cfg := testsupport.NewConfig(t, append([]testsupport.ConfigOption{testsupport.WithProviderURL(provider.URL())}, opts...)...)
	stack, err := workflow.NewStack(context.Background(), cfg, logging.NewNop(),
		workflow.WithStore(store),
		workflow.WithJobSettings(fastSettings()),
	)
	if err != nil {
		t.Fatalf("NewStack: %v", err)
	}
	t.Cleanup(func() { _ = stack.Close() })
	if err := stack.Orchestrator.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return stack
}

func request(script string) jobs.Request {
	return jobs.Request{Script: script, AvatarID: "anna_public_20240108", VoiceID: "voice-en-1"}
}

func TestProduceGeneratesAndExports(t *testing.T) {
	provider := testsupport.NewFakeProvider(t)
	store := testsupport.NewMemoryStore()
	stack := newStack(t, provider, store)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var seen []jobs.State
	out, err := stack.Runner.Produce(ctx, request("Welcome to the launch"),
		workflow.ExportPlan{PresetID: "youtube-landscape", Destinations: []string{"youtube", "archive"}},
		func(tr jobs.Transition) { seen = append(seen, tr.To) },
	)
	if err != nil {
		t.Fatalf("Produce: %v", err)
	}
	if out.Job.State != jobs.StateSucceeded || out.Job.OutputRef == "" {
		t.Fatalf("unexpected job %+v", out.Job)
	}
	if len(seen) == 0 || seen[len(seen)-1] != jobs.StateSucceeded {
		t.Fatalf("expected transitions ending in succeeded, got %v", seen)
	}
	if out.Batch == nil || out.Batch.Summary.Done != 2 {
		t.Fatalf("unexpected batch %+v", out.Batch)
	}
	wantKey := "youtube/" + out.Job.ID + "/youtube-landscape.mp4"
	if _, _, ok := store.Object(wantKey); !ok {
		t.Fatalf("expected object %s, have %v", wantKey, store.Keys())
	}

	batches, err := stack.Journal.RecentBatches(ctx, 5)
	if err != nil || len(batches) != 1 {
		t.Fatalf("expected one recorded batch, got %d (%v)", len(batches), err)
	}
}

func TestProduceSkipsExportForFailedJob(t *testing.T) {
	provider := testsupport.NewFakeProvider(t)
	store := testsupport.NewMemoryStore()
	stack := newStack(t, provider, store)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	out, err := stack.Runner.Produce(ctx, request("please FAIL"),
		workflow.ExportPlan{PresetID: "web-preview", Destinations: []string{"website"}}, nil)
	if err != nil {
		t.Fatalf("Produce: %v", err)
	}
	if out.Job.State != jobs.StateFailed || out.Job.Failure == nil || out.Job.Failure.Kind != jobs.FailureProviderError {
		t.Fatalf("unexpected job %+v", out.Job)
	}
	if out.Batch != nil || store.Puts() != 0 {
		t.Fatalf("export should not run for failed job")
	}
}

func TestRestoreMakesFinishedJobsExportable(t *testing.T) {
	provider := testsupport.NewFakeProvider(t)
	store := testsupport.NewMemoryStore()
	cfg := testsupport.NewConfig(t, testsupport.WithProviderURL(provider.URL()))

	first, err := workflow.NewStack(context.Background(), cfg, logging.NewNop(), workflow.WithStore(store), workflow.WithJobSettings(fastSettings()))
	if err != nil {
		t.Fatalf("NewStack: %v", err)
	}
	if err := first.Orchestrator.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	out, err := first.Runner.Produce(ctx, request("Quarterly update"), workflow.ExportPlan{}, nil)
	if err != nil || out.Job.State != jobs.StateSucceeded {
		t.Fatalf("Produce: %+v %v", out.Job, err)
	}
	_ = first.Close()

	second, err := workflow.NewStack(context.Background(), cfg, logging.NewNop(), workflow.WithStore(store), workflow.WithJobSettings(fastSettings()))
	if err != nil {
		t.Fatalf("NewStack: %v", err)
	}
	t.Cleanup(func() { _ = second.Close() })
	restored, err := second.Restore(ctx, false)
	if err != nil || restored != 1 {
		t.Fatalf("Restore = %d, %v", restored, err)
	}

	batch := second.Runner.Export(ctx, []export.AssetRef{{JobID: out.Job.ID}}, "web-preview", []string{"website"})
	if batch.Summary.Done != 1 {
		t.Fatalf("expected export of restored job, got %+v", batch.Results)
	}
}
