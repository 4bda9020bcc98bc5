package preflight

import (
	"context"

	"avatarcast/internal/catalog"
	"avatarcast/internal/config"
	"avatarcast/internal/storage"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes every applicable check. A nil provider or store skips the
// corresponding connectivity check.
func RunAll(ctx context.Context, cfg *config.Config, provider catalog.Fetcher, store storage.Store) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
	}
	if cfg.Storage.Backend == config.StorageFilesystem || cfg.Storage.Backend == "" {
		results = append(results, CheckDirectoryAccess("Export root", cfg.Storage.Root))
	}
	if cfg.Jobs.Journal {
		results = append(results, CheckJournal(ctx, cfg.JournalPath()))
	}
	if provider != nil {
		results = append(results, CheckProvider(ctx, provider))
	}
	if store != nil {
		results = append(results, CheckStorage(ctx, store))
	}
	return results
}

// Failed reports whether any result did not pass.
func Failed(results []Result) bool {
	for _, result := range results {
		if !result.Passed {
			return true
		}
	}
	return false
}
