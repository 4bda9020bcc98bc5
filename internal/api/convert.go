package api

import (
	"sort"
	"time"

	"avatarcast/internal/catalog"
	"avatarcast/internal/export"
	"avatarcast/internal/jobs"
	"avatarcast/internal/journal"
)

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}

func fromFailure(f *jobs.Failure) *Failure {
	if f == nil {
		return nil
	}
	return &Failure{Kind: string(f.Kind), Message: f.Message}
}

// FromJob converts a job record.
func FromJob(job jobs.Job) Job {
	return Job{
		ID:              job.ID,
		State:           string(job.State),
		Progress:        job.Progress,
		Script:          job.Request.Script,
		AvatarID:        job.Request.AvatarID,
		VoiceID:         job.Request.VoiceID,
		Quality:         job.Request.Quality,
		AspectRatio:     job.Request.AspectRatio,
		ExternalID:      job.ExternalID,
		OutputURL:       job.OutputRef,
		ThumbnailURL:    job.ThumbnailURL,
		DurationSeconds: job.DurationSeconds,
		Attempts:        job.Attempts,
		Failure:         fromFailure(job.Failure),
		CreatedAt:       formatTime(job.CreatedAt),
		UpdatedAt:       formatTime(job.UpdatedAt),
	}
}

// FromJobs converts a slice of jobs, preserving order.
func FromJobs(list []jobs.Job) []Job {
	out := make([]Job, 0, len(list))
	for _, job := range list {
		out = append(out, FromJob(job))
	}
	return out
}

// FromTransition converts a job transition.
func FromTransition(t jobs.Transition) Transition {
	return Transition{
		JobID:     t.JobID,
		Seq:       t.Seq,
		From:      string(t.From),
		To:        string(t.To),
		Progress:  t.Progress,
		OutputURL: t.OutputRef,
		Failure:   fromFailure(t.Failure),
		At:        formatTime(t.At),
	}
}

// ToRequest converts a submission body to a job request.
func (r SubmitRequest) ToRequest() jobs.Request {
	return jobs.Request{
		Script:      r.Script,
		AvatarID:    r.AvatarID,
		VoiceID:     r.VoiceID,
		Quality:     r.Quality,
		AspectRatio: r.AspectRatio,
	}
}

// FromSnapshot converts a catalog snapshot.
func FromSnapshot(snap catalog.Snapshot) CatalogResponse {
	out := CatalogResponse{
		Category:  string(snap.Category),
		Source:    string(snap.Source),
		Degraded:  snap.Degraded(),
		FetchedAt: formatTime(snap.FetchedAt),
		Error:     snap.Err,
		Assets:    make([]Asset, 0, len(snap.Assets)),
	}
	for _, asset := range snap.Assets {
		out.Assets = append(out.Assets, Asset{
			ID:          asset.ID,
			DisplayName: asset.DisplayName,
			Category:    string(asset.Category),
			Attributes:  asset.Attributes,
			PreviewURL:  asset.PreviewURL,
			Active:      asset.Active,
		})
	}
	return out
}

// FromCatalogStats converts cache statistics in category order.
func FromCatalogStats(stats map[catalog.Category]catalog.Stats) []CatalogStatus {
	out := make([]CatalogStatus, 0, len(stats))
	for _, category := range catalog.Categories() {
		s, ok := stats[category]
		if !ok {
			continue
		}
		out = append(out, CatalogStatus{
			Category:    string(category),
			Refreshes:   s.Refreshes,
			Failures:    s.Failures,
			LastError:   s.LastError,
			LastSuccess: formatTime(s.LastSuccess),
		})
	}
	return out
}

// FromPresets converts export presets.
func FromPresets(presets []export.Preset, destinations []string) PresetsResponse {
	out := PresetsResponse{Presets: make([]Preset, 0, len(presets)), Destinations: destinations}
	for _, p := range presets {
		out.Presets = append(out.Presets, Preset{
			ID:                 p.ID,
			AspectRatio:        p.AspectRatio,
			Container:          p.Container,
			MaxDurationSeconds: p.MaxDurationSeconds,
			BitrateTier:        p.BitrateTier,
		})
	}
	return out
}

// ToAssetRefs converts request selections.
func ToAssetRefs(refs []AssetRef) []export.AssetRef {
	out := make([]export.AssetRef, 0, len(refs))
	for _, ref := range refs {
		out = append(out, export.AssetRef{JobID: ref.JobID, URL: ref.URL})
	}
	return out
}

// FromBatch converts a recorded export batch.
func FromBatch(batch journal.Batch) ExportResponse {
	out := ExportResponse{
		BatchID:   batch.ID,
		Preset:    batch.PresetID,
		CreatedAt: formatTime(batch.CreatedAt),
		Summary: ExportSummary{
			Total:   batch.Summary.Total,
			Done:    batch.Summary.Done,
			Failed:  batch.Summary.Failed,
			Skipped: batch.Summary.Skipped,
		},
		Results: make([]ExportResult, 0, len(batch.Results)),
	}
	for _, r := range batch.Results {
		out.Results = append(out.Results, ExportResult{
			TaskID:      r.Task.ID,
			Asset:       r.Task.Source.String(),
			Preset:      r.Task.PresetID,
			Destination: r.Task.Destination,
			State:       string(r.State),
			URL:         r.URL,
			Reason:      r.Reason,
			Skipped:     r.Skipped,
			ElapsedMS:   r.Elapsed.Milliseconds(),
		})
	}
	return out
}

// StateCounts converts job stats into string-keyed counts with every state present.
func StateCounts(stats jobs.Stats) map[string]int {
	out := map[string]int{}
	for _, state := range []jobs.State{jobs.StateQueued, jobs.StateSubmitting, jobs.StateProcessing, jobs.StateSucceeded, jobs.StateFailed, jobs.StateCancelled} {
		out[string(state)] = stats.States[state]
	}
	return out
}

// SortedStates returns count keys in a stable order for rendering.
func SortedStates(counts map[string]int) []string {
	keys := make([]string, 0, len(counts))
	for key := range counts {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
