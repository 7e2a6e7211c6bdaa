// Package queue persists work items in SQLite and implements the lease
// semantics the manager relies on.
//
// The Store owns the database connection, schema initialization, publishing
// with idempotent upserts keyed by hash, atomic leasing, the ack/nack/ban
// transitions, orphan recovery after a crashed manager, and the bookkeeping
// table used by recurring schedules.
//
// Leasing is a single UPDATE ... RETURNING statement so that read and mark
// cannot race between managers sharing one database file. Schema changes bump
// the version in schema.go; operators delete the database to adopt them.
package queue
