// Package preflight provides readiness checks for the filesystem paths and
// binaries procqueue depends on.
//
// The daemon runs them at startup and logs failures before serving the queue;
// `procqueue health` prints them next to the database diagnostics. Checks that
// depend on a config toggle (use_nice, maintenance_file) are skipped when the
// toggle is off.
package preflight
