// Package config loads, normalizes, and validates procqueue configuration.
//
// Configuration lives in a TOML file (default ~/.config/procqueue/config.toml)
// with sections for paths, the manager pool, queue item defaults, logging, and
// recurring schedules. Provider keeps the active configuration in memory and can
// hot-reload it when the file changes so the manager picks up new pool sizes and
// timeouts on its next cycle without a restart.
package config
