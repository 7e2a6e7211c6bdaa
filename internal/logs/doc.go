// Package logs tails the manager's log file for `procqueue logs`.
//
// A negative offset returns the last N lines; a non-negative offset reads
// forward from that byte position. Follow mode blocks on fsnotify write events
// until new lines land or the wait expires, so callers loop on the returned
// offset.
package logs
