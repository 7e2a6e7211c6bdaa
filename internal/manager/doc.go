// Package manager drives the scheduling loop.
//
// A Manager owns a bounded pool of workers split into two sets keyed by item
// hash. Freshly dispatched workers sit in the foreground set and are waited on
// synchronously until they exit or their hand-off timeout passes; the ones
// still running move to the background set, which is polled without blocking
// on later cycles. Each finished worker's report becomes an ack, nack or ban
// against the store, after which its captured output is streamed to the log
// sink.
//
// All state is owned by the goroutine calling Tick; there is no internal
// locking. Configuration is re-read from the injected source at the start of
// every cycle, so pool size and timeouts change without a restart.
package manager
