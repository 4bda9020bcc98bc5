// Package services defines shared utilities consumed by the orchestrator,
// catalog cache, export pipeline and the provider integrations.
//
// Key responsibilities:
//   - Context helpers that stamp job IDs, component names, and correlation
//     identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper that keep the failure
//     taxonomy (invalid reference, rejection, provider error, timeout,
//     transient) classifiable with errors.Is across package boundaries.
//
// Use these helpers when wiring new provider calls so retry decisions and
// terminal failure kinds stay uniform across the system.
package services
