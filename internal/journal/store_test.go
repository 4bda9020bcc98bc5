package journal_test

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"avatarcast/internal/export"
	"avatarcast/internal/jobs"
	"avatarcast/internal/journal"
)

func openStore(t *testing.T) *journal.Store {
	t.Helper()
	store, err := journal.Open(context.Background(), filepath.Join(t.TempDir(), "state", "jobs.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func sampleJob(id string, state jobs.State, created, updated time.Time) jobs.Job {
	return jobs.Job{
		ID:        id,
		Request:   jobs.Request{Script: "Hello", AvatarID: "A1", VoiceID: "V1", Quality: "medium", AspectRatio: "16:9"},
		State:     state,
		CreatedAt: created,
		UpdatedAt: updated,
	}
}

func TestSaveAndLoad(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	first := sampleJob("job-1", jobs.StateProcessing, base, base.Add(time.Second))
	first.ExternalID = "vid-1"
	first.Progress = 40
	second := sampleJob("job-2", jobs.StateSucceeded, base.Add(time.Minute), base.Add(2*time.Minute))
	second.OutputRef = "https://cdn.example/v.mp4"
	for _, job := range []jobs.Job{second, first} {
		if err := store.Save(ctx, job); err != nil {
			t.Fatalf("Save %s: %v", job.ID, err)
		}
	}

	loaded, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(loaded) != 2 || loaded[0].ID != "job-1" || loaded[1].ID != "job-2" {
		t.Fatalf("unexpected load order: %+v", loaded)
	}
	if loaded[0].ExternalID != "vid-1" || loaded[0].Progress != 40 || loaded[0].Request.Script != "Hello" {
		t.Fatalf("job-1 round trip lost fields: %+v", loaded[0])
	}

	active, err := store.LoadActive(ctx)
	if err != nil {
		t.Fatalf("LoadActive: %v", err)
	}
	if len(active) != 1 || active[0].ID != "job-1" {
		t.Fatalf("unexpected active jobs: %+v", active)
	}
}

func TestSaveIgnoresStaleSnapshots(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	newer := sampleJob("job-1", jobs.StateSucceeded, base, base.Add(10*time.Second))
	older := sampleJob("job-1", jobs.StateProcessing, base, base.Add(5*time.Second))
	if err := store.Save(ctx, newer); err != nil {
		t.Fatalf("Save newer: %v", err)
	}
	if err := store.Save(ctx, older); err != nil {
		t.Fatalf("Save older: %v", err)
	}

	got, err := store.Get(ctx, "job-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got == nil || got.State != jobs.StateSucceeded {
		t.Fatalf("stale snapshot overwrote newer state: %+v", got)
	}

	missing, err := store.Get(ctx, "nope")
	if err != nil || missing != nil {
		t.Fatalf("expected nil for unknown job, got %+v %v", missing, err)
	}
}

func TestPruneRemovesOldTerminalJobs(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	jobsToSave := []jobs.Job{
		sampleJob("old-done", jobs.StateSucceeded, base, base),
		sampleJob("old-active", jobs.StateProcessing, base, base),
		sampleJob("new-done", jobs.StateFailed, base, base.Add(48*time.Hour)),
	}
	for _, job := range jobsToSave {
		if err := store.Save(ctx, job); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}

	removed, err := store.Prune(ctx, base.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 pruned job, got %d", removed)
	}
	remaining, _ := store.Load(ctx)
	if len(remaining) != 2 {
		t.Fatalf("expected 2 remaining jobs, got %d", len(remaining))
	}
}

func TestBatchesNewestFirst(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i, id := range []string{"b1", "b2", "b3"} {
		batch := journal.Batch{
			ID:        id,
			PresetID:  "web-preview",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
			Summary:   export.Summary{Total: 2, Done: 1, Failed: 1},
			Results:   []export.Result{{State: export.TaskDone, URL: "mem://a"}, {State: export.TaskFailed, Reason: "boom"}},
		}
		if err := store.SaveBatch(ctx, batch); err != nil {
			t.Fatalf("SaveBatch: %v", err)
		}
	}

	batches, err := store.RecentBatches(ctx, 2)
	if err != nil {
		t.Fatalf("RecentBatches: %v", err)
	}
	if len(batches) != 2 || batches[0].ID != "b3" || batches[1].ID != "b2" {
		t.Fatalf("unexpected batches: %+v", batches)
	}
	if len(batches[0].Results) != 2 || batches[0].Results[1].Reason != "boom" {
		t.Fatalf("batch results not preserved: %+v", batches[0].Results)
	}
}

func TestOpenRejectsSchemaMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.db")
	store, err := journal.Open(context.Background(), path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	_ = store.Close()

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	if _, err := db.Exec("PRAGMA user_version = 99"); err != nil {
		t.Fatalf("bump version: %v", err)
	}
	_ = db.Close()

	if _, err := journal.Open(context.Background(), path); !errors.Is(err, journal.ErrSchemaMismatch) {
		t.Fatalf("expected schema mismatch, got %v", err)
	}
}
