// Package tasks holds the tasks every procqueue binary knows: "command" runs
// the record as a shell command, "noop" does nothing, and "refresher" publishes
// due recurring schedules.
package tasks
