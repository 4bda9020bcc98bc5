// Package export fans completed generation assets out to destination
// presets.
//
// Plan turns a selection of assets, one preset and a list of destinations
// into one Task per (asset, destination) pair, ordered selection-major. Every
// problem Plan can detect without network access (unknown preset or
// destination, source job not succeeded, asset longer than the preset
// allows) becomes a failed task with a reason rather than an error, so the
// caller always gets exactly one result per requested pair.
//
// Run executes pending tasks on a bounded worker pool and returns results in
// planned order. Each task is handed to a Publisher; the default
// StoragePublisher downloads the source, applies a Transformer and writes the
// bytes to a storage.Store under a deterministic key, skipping work that is
// already present.
package export
