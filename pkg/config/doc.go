// Package config loads application configuration from WARDEN_ environment
// variables with sensible defaults, optionally overlaid by a small YAML file
// of operator tunables (cache TTLs, batch limits, the expiry schedule). The
// file can be hot-reloaded via fsnotify so tunables apply without a restart;
// connection settings always require one.
package config
