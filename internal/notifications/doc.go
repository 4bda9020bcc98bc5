// Package notifications delivers job and export events via pluggable notifiers.
//
// The default implementation publishes to ntfy using the topic configured in
// config.toml and degrades to a no-op when notifications are disabled.
// Per-event toggles in the [notifications] section suppress individual event
// types without touching callers.
//
// JobNotifier adapts a Service to the orchestrator's terminal-job hook and
// delivers in the background so provider polling never waits on ntfy.
package notifications
