// Package runner executes queued jobs one at a time against registered
// handlers, persisting every state transition through the job store and
// publishing snapshots to the status feed.
package runner

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"casework/internal/config"
	"casework/internal/feed"
	"casework/internal/jobs"
	"casework/internal/logging"
)

const queueSweepInterval = 5 * time.Second

// Runner owns the background worker. Jobs are claimed from the store, run
// under a per-job cancellable context, and finalized exactly once regardless
// of how the handler exits.
type Runner struct {
	cfg      *config.Config
	store    *jobs.Store
	hub      *feed.Hub
	registry *Registry
	logger   *slog.Logger

	dispatch         chan string
	timeout          time.Duration
	progressInterval time.Duration

	mu        sync.Mutex
	running   bool
	cancelRun context.CancelFunc
	wg        sync.WaitGroup

	// Per-job cancellation state. A cancel request for a job that has been
	// claimed but whose controller is not yet registered is remembered in
	// pendingCancel and applied at registration time.
	controllers   map[string]context.CancelFunc
	pendingCancel map[string]bool
	canceled      map[string]bool
}

// New constructs a runner. Handlers must be registered before Start.
func New(cfg *config.Config, store *jobs.Store, hub *feed.Hub, registry *Registry, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = logging.NewNop()
	}
	buffer := cfg.Queue.DispatchBuffer
	if buffer <= 0 {
		buffer = 64
	}
	return &Runner{
		cfg:              cfg,
		store:            store,
		hub:              hub,
		registry:         registry,
		logger:           logging.NewComponentLogger(logger, "runner"),
		dispatch:         make(chan string, buffer),
		timeout:          time.Duration(cfg.Queue.JobTimeoutSeconds) * time.Second,
		progressInterval: time.Duration(cfg.Queue.ProgressWriteIntervalMS) * time.Millisecond,
		controllers:      make(map[string]context.CancelFunc),
		pendingCancel:    make(map[string]bool),
		canceled:         make(map[string]bool),
	}
}

// Registry exposes the handler registry for enqueue-time type validation.
func (r *Runner) Registry() *Registry {
	return r.registry
}

// Start reconciles jobs left over from a previous process and begins the
// worker loop. Jobs found running are abandoned: the process that owned them
// is gone and their true progress is unknowable. Queued jobs are re-dispatched.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return errors.New("runner already started")
	}
	runCtx, cancel := context.WithCancel(ctx)
	r.cancelRun = cancel
	r.running = true
	r.wg.Add(1)
	r.mu.Unlock()

	if err := r.reconcile(runCtx); err != nil {
		r.mu.Lock()
		r.running = false
		r.cancelRun = nil
		r.mu.Unlock()
		cancel()
		r.wg.Done()
		return err
	}

	go r.work(runCtx)
	return nil
}

// Stop cancels the worker and any in-flight job, then waits for the worker
// to drain. The in-flight job still receives its terminal write before Stop
// returns.
func (r *Runner) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	cancel := r.cancelRun
	r.running = false
	r.cancelRun = nil
	r.mu.Unlock()

	cancel()
	r.wg.Wait()
}

// Dispatch nudges the worker to pick up a job. The periodic queue sweep
// covers the case where the buffer is full.
func (r *Runner) Dispatch(id string) {
	select {
	case r.dispatch <- id:
	default:
		r.logger.Warn("dispatch buffer full, job will be picked up by sweep",
			logging.String(logging.FieldJobID, id))
	}
}

func (r *Runner) reconcile(ctx context.Context) error {
	abandoned, err := r.store.AbandonRunning(ctx)
	if err != nil {
		return err
	}
	for _, record := range abandoned {
		r.logger.Warn("abandoned job from previous process",
			logging.String(logging.FieldJobID, record.ID),
			logging.String(logging.FieldJobType, record.Type))
		r.publish(record)
	}

	queued, err := r.store.QueuedIDs(ctx)
	if err != nil {
		return err
	}
	for _, id := range queued {
		r.Dispatch(id)
	}
	if len(queued) > 0 {
		r.logger.Info("re-dispatched queued jobs from previous process",
			logging.Int("count", len(queued)))
	}
	return nil
}

func (r *Runner) work(ctx context.Context) {
	defer r.wg.Done()

	sweep := time.NewTicker(queueSweepInterval)
	defer sweep.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case id := <-r.dispatch:
			r.runJob(ctx, id)
		case <-sweep.C:
			r.sweepQueued(ctx)
		}
	}
}

// sweepQueued picks up queued jobs whose dispatch signal was lost, either to
// a full buffer or to a process restart racing enqueue.
func (r *Runner) sweepQueued(ctx context.Context) {
	queued, err := r.store.QueuedIDs(ctx)
	if err != nil {
		r.logger.Error("queue sweep failed", logging.Error(err))
		return
	}
	for _, id := range queued {
		select {
		case <-ctx.Done():
			return
		default:
		}
		r.runJob(ctx, id)
	}
}

func (r *Runner) publish(record *jobs.Record) {
	if r.hub == nil || record == nil {
		return
	}
	r.hub.Publish(feed.SnapshotOf(record))
}
