// Package catalog caches the provider's avatar and voice lists.
//
// A Cache holds one snapshot per category, swapped atomically on each
// successful refresh. Refresh never returns an error: any provider failure
// yields the compiled-in fallback snapshot flagged with Source "fallback" so
// callers can surface a degraded state instead of a failure. Concurrent
// refreshes for the same category share a single provider call.
package catalog
