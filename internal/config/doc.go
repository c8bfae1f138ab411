// Package config loads, normalizes, and validates hopper's TOML configuration.
//
// Load resolves the config file location, applies defaults and environment
// overrides, expands "~" in every path, and rejects values the pipeline cannot
// run with. EnsureDirectories bootstraps the watch, destination, log, and state
// directories before the daemon starts.
package config
