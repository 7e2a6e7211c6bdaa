// Package worker owns one OS subprocess per leased queue item.
//
// A Worker validates the item, launches the configured runner with the item's
// strategy bindings and payload in its environment, polls the child without
// blocking, and classifies the outcome into a Report. Standard output and
// standard error go to capture files under per-hash directories; a non-empty
// error capture marks the run as failed whatever the exit code.
//
// Status polling uses wait4 with WNOHANG|WUNTRACED so a child that is stopped
// or killed by a signal is observed directly. Such exits append a synthesized
// error to the capture and, unless disabled, refund the attempt the failure
// would otherwise consume.
package worker
