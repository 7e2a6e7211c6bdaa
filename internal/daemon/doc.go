// Package daemon runs the long-lived manager process for one queue.
//
// It takes a flock-based lock so only one manager serves a queue, logs failed
// preflight checks, requeues items left running by a previous process (and
// alerts through ntfy when any were found), clears stale output captures,
// publishes the persistent refresher item, and then runs the manager loop next
// to the configuration watcher until the context is cancelled. Readiness and
// shutdown are reported to systemd when the process runs as a notify service.
//
// Keep orchestration here: scheduling decisions belong to the manager and
// storage semantics to the queue package.
package daemon
