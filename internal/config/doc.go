// Package config loads, normalizes, and validates famforge configuration data.
//
// It supplies repository defaults for every external tool invocation, expands
// user paths (including tilde shortcuts), and reads TOML files. The Config type
// centralizes every knob the coordinator and CLI need: the shared alignment
// root, the queue state directory, external command templates, log-watching
// rules per stage, and polling/backoff intervals.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths and clear validation errors.
package config
