// Package config loads, normalizes, and validates casework configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// CASEWORK_OPERATOR. The Config type centralizes every knob the daemon and CLI
// need, so the vault directory, queue tuning, and operator provenance are
// discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
