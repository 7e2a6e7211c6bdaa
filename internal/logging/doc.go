// Package logging assembles structured slog loggers and formatting helpers used
// across procqueue.
//
// It owns the configurable console/JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so manager and worker code can
// tag log lines with queue item hashes and cycle correlation IDs. The package
// also streams captured subprocess output back to the console, prefixed with
// the item hash so interleaved output from concurrent workers stays readable.
//
// Prefer these constructors over hand-rolled slog setup to ensure new
// components emit data with the same shape and routing guarantees as the rest
// of the system.
package logging
