// Package runner dispatches and executes persisted jobs.
//
// A single worker goroutine claims queued jobs, runs the registered handler
// under a cancellable per-job context, coalesces progress writes, and applies
// exactly one terminal write per job. Startup reconciliation abandons jobs a
// previous process left running and re-dispatches its queued backlog.
package runner
