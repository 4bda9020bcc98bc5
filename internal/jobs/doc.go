// Package jobs owns the lifecycle of avatar video generation jobs.
//
// The Orchestrator validates requests against the catalog, issues the
// provider create call, and then drives every accepted job to a terminal
// state from a single scheduler tick that feeds a fixed pool of poll
// workers. It is the only writer of job records: callers read copies through
// Status and List, and observe transitions through Subscribe, which replays a
// job's history before streaming new transitions.
//
// Polling rules:
//   - steady polls run every poll interval
//   - transient status errors back off exponentially up to the configured cap
//   - the total time a job may spend processing is bounded by the timeout
//   - at most one status call is in flight per provider video ID
//
// Progress reported by the provider is clamped so observers never see it
// decrease. Cancellation is cooperative; results that arrive for a job that
// was cancelled in the meantime are discarded.
package jobs
