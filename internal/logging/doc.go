// Package logging assembles structured slog loggers and formatting helpers used
// across avatarcast components.
//
// It owns the console/JSON handlers, centralizes level and output plumbing,
// and exposes context-aware helpers so orchestrator and export code can tag
// log lines with job IDs, components, and correlation IDs automatically. A
// no-op logger is provided for tests and wiring code that cannot fail.
package logging
