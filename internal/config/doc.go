// Package config loads, normalizes, and validates b2pc configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours the B2PC_TOOLS_DIR environment
// fallback for the tool resource directory. The Config type centralizes every
// knob the CLI and pipeline need.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
