// Package config loads, normalizes, and validates the TOML configuration
// for the resave daemon.
package config
