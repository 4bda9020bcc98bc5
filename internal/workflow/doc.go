// Package workflow wires the provider client, catalog cache, job
// orchestrator, export pipeline, journal and notifier into one Stack, and
// offers a Runner that composes them: submit a generation job, follow it to
// a terminal state, then fan the result out to export destinations.
//
// Both the daemon and the one-shot CLI commands build their runtime through
// NewStack so configuration is interpreted in exactly one place.
package workflow
