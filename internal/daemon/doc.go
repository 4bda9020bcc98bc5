// Package daemon hosts the long-running avatarcast service: it holds the
// single-instance lock, restores journaled jobs, runs the job orchestrator
// and serves the HTTP API that the CLI and other clients use.
//
// The API is a chi router mounted under /api. Job progress is exposed as a
// server-sent event stream per job that replays history before following
// live transitions, so late subscribers still see the full lifecycle.
package daemon
