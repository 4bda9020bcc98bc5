// Package config loads, normalizes, and validates avatarcast configuration.
//
// It supplies repository defaults (including the compiled-in export presets),
// expands user paths, reads TOML files, and honours environment fallbacks such
// as AVATARCAST_API_KEY so provider credentials never have to live in the file.
// The Config type centralizes every knob the daemon and CLI need.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
