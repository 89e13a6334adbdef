// Package jobs persists background jobs in SQLite and exposes helpers for
// driving their lifecycle.
//
// The Store manages database connections, schema initialization, enqueue with
// duplicate suppression, status transitions, monotonic progress writes, and
// the single terminal finalization write each job receives. All mutations are
// admitted through the write gate, which serializes writers in submission
// order and absorbs transient SQLITE_BUSY errors with bounded backoff before
// surfacing a typed LockedError.
//
// The database is the source of truth for job existence and outcome. Rows are
// never deleted here; history is retained for audit. Schema changes bump the
// version in schema.go.
package jobs
