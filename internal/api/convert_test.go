package api

import (
	"testing"
	"time"

	"avatarcast/internal/catalog"
	"avatarcast/internal/export"
	"avatarcast/internal/jobs"
	"avatarcast/internal/journal"
)

func TestFromJob(t *testing.T) {
	created := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	job := jobs.Job{
		ID:        "j1",
		State:     jobs.StateFailed,
		Request:   jobs.Request{Script: "Hi", AvatarID: "A1", VoiceID: "V1", Quality: "high", AspectRatio: "9:16"},
		Failure:   &jobs.Failure{Kind: jobs.FailureTimeout, Message: "no terminal status"},
		CreatedAt: created,
		UpdatedAt: created.Add(90 * time.Second),
	}
	got := FromJob(job)
	if got.State != "failed" || got.AvatarID != "A1" || got.AspectRatio != "9:16" {
		t.Fatalf("unexpected conversion %+v", got)
	}
	if got.Failure == nil || got.Failure.Kind != "timeout" {
		t.Fatalf("failure not converted: %+v", got.Failure)
	}
	if got.CreatedAt != "2026-05-04T10:00:00.000Z" {
		t.Fatalf("createdAt = %q", got.CreatedAt)
	}
}

func TestFromSnapshotMarksDegraded(t *testing.T) {
	snap := catalog.FallbackSnapshot(catalog.CategoryAvatar, time.Now(), "provider down")
	got := FromSnapshot(snap)
	if !got.Degraded || got.Source != "fallback" || len(got.Assets) == 0 || got.Error == "" {
		t.Fatalf("unexpected snapshot %+v", got)
	}
}

func TestFromBatch(t *testing.T) {
	batch := journal.Batch{
		ID:       "b1",
		PresetID: "web-preview",
		Summary:  export.Summary{Total: 2, Done: 1, Failed: 1},
		Results: []export.Result{
			{Task: export.Task{ID: "t1", Source: export.AssetRef{JobID: "j1"}, PresetID: "web-preview", Destination: "website"}, State: export.TaskDone, URL: "mem://x", Elapsed: 1500 * time.Millisecond},
			{Task: export.Task{ID: "t2", Source: export.AssetRef{URL: "https://cdn.example/a.mp4"}, Destination: "archive"}, State: export.TaskFailed, Reason: "boom"},
		},
	}
	got := FromBatch(batch)
	if got.Summary.Done != 1 || len(got.Results) != 2 {
		t.Fatalf("unexpected batch %+v", got)
	}
	if got.Results[0].Asset != "job:j1" || got.Results[0].ElapsedMS != 1500 {
		t.Fatalf("unexpected first result %+v", got.Results[0])
	}
	if got.Results[1].Asset != "https://cdn.example/a.mp4" || got.Results[1].Reason != "boom" {
		t.Fatalf("unexpected second result %+v", got.Results[1])
	}
}

func TestStateCountsIncludesEveryState(t *testing.T) {
	counts := StateCounts(jobs.Stats{Total: 1, States: map[jobs.State]int{jobs.StateProcessing: 1}})
	if len(counts) != 6 || counts["processing"] != 1 || counts["queued"] != 0 {
		t.Fatalf("unexpected counts %v", counts)
	}
}
