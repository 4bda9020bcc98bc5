// Package api defines wire-format types and converters for the daemon's HTTP
// API, plus a small client the CLI uses to talk to a running daemon.
//
// DTOs use camelCase JSON tags for JavaScript/TypeScript consumers. Internal
// enums (jobs.State, catalog.Source, export.TaskState) are exposed as
// lowercase strings. Timestamps use RFC3339 with milliseconds.
package api
