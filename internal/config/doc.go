// Package config loads, normalizes, and validates dronetrack configuration.
//
// It supplies defaults that match the historical shared-memory keys, expands
// user paths (including tilde shortcuts), reads TOML files, and exposes a
// watcher so long-running processes can pick up controller tuning without a
// restart.
//
// Both the station and the tracker must load the same [bus] section; a
// mismatch in keys or frame capacity makes the second process fail at attach.
package config
