package runner

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"casework/internal/jobs"
)

// ProgressFunc reports handler progress as a fraction in [0, 1] with an
// optional human-readable message. Calls are cheap; the runner coalesces
// persisted writes.
type ProgressFunc func(fraction float64, message string)

// Result is the successful outcome of a handler run.
type Result struct {
	// Summary is a short human-readable description of what was done. It is
	// recorded verbatim in the job's terminal status message.
	Summary string
	// Counters carries optional named totals (rows parsed, bytes copied)
	// logged with the job's completion record.
	Counters map[string]int64
}

// Handler executes one job type. Run must honor ctx cancellation promptly:
// when ctx is done the handler should stop, clean up partial work, and
// return ctx.Err().
type Handler interface {
	Type() string
	Run(ctx context.Context, job *jobs.Record, progress ProgressFunc) (Result, error)
}

// PayloadRequirer is implemented by handlers whose jobs cannot run without
// caller-supplied input. Enqueue paths that know the handler reject an empty
// payload for these types before anything is persisted.
type PayloadRequirer interface {
	RequiresPayload() bool
}

// Registry maps job types to their handlers.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry creates an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register adds a handler. Registering the same type twice is a wiring bug.
func (r *Registry) Register(handler Handler) error {
	if handler == nil {
		return fmt.Errorf("register handler: nil handler")
	}
	jobType := handler.Type()
	if jobType == "" {
		return fmt.Errorf("register handler: empty job type")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[jobType]; exists {
		return fmt.Errorf("register handler: duplicate job type %q", jobType)
	}
	r.handlers[jobType] = handler
	return nil
}

// Lookup returns the handler for a job type.
func (r *Registry) Lookup(jobType string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	handler, ok := r.handlers[jobType]
	return handler, ok
}

// Types returns the sorted list of registered job types.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.handlers))
	for jobType := range r.handlers {
		types = append(types, jobType)
	}
	sort.Strings(types)
	return types
}
