// Package runner is the subprocess side of the worker launch contract.
//
// The manager starts every item as `procqueue exec` with the item's bindings
// and payload in PROCQUEUE_* environment variables. Main reads them, resolves
// the broker, job and container from the strategy registry, and runs the task.
// Anything written to standard error marks the run as failed, so the runner
// logs to standard output and reserves standard error for the failure itself.
package runner
