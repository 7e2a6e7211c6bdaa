// Command procqueue runs and administers a persistent job queue.
//
// `procqueue run` is the long-lived manager: it leases items from the SQLite
// queue and runs each one in its own `procqueue exec` subprocess. The remaining
// commands inspect and repair the queue directly through the database, so they
// work whether or not a manager is running.
package main
