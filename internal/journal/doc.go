// Package journal persists generation jobs and export batches in SQLite so
// the daemon can restore in-flight work after a restart.
//
// Jobs are stored as JSON documents keyed by ID with a few indexed columns.
// Save is an upsert guarded by updated_at: a write carrying an older
// snapshot than the stored row is ignored, which keeps out-of-order commits
// from rolling a job back.
package journal
