// Package preflight provides readiness checks for the provider API, the
// storage backend, and the filesystem paths avatarcast depends on.
//
// The CLI "avatarcast check" command runs RunAll and renders each Result.
// Individual checks are exported so the daemon status view can reuse them.
package preflight
