package runner

import (
	"context"

	"casework/internal/jobs"
	"casework/internal/logging"
)

// Cancel requests cancellation of a job. Queued jobs transition directly to
// canceled; running jobs have their context canceled and reach the canceled
// state cooperatively once the handler returns. Terminal jobs are untouched.
//
// The returned record reflects the job after the request and the bool reports
// whether the request had any effect.
func (r *Runner) Cancel(ctx context.Context, id string) (*jobs.Record, bool, error) {
	record, err := r.store.GetByID(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if record == nil {
		return nil, false, jobs.NewNotFoundError(id)
	}
	if record.IsTerminal() {
		return record, false, nil
	}

	if record.Status == jobs.StatusQueued {
		applied, err := r.store.CancelQueued(ctx, id)
		if err != nil {
			return nil, false, err
		}
		if applied {
			updated, err := r.store.GetByID(ctx, id)
			if err != nil {
				return nil, false, err
			}
			r.logger.Info("canceled queued job",
				logging.String(logging.FieldJobID, id))
			r.publish(updated)
			return updated, true, nil
		}
		// Lost the race to the worker: the job went running between the read
		// and the write. Fall through to the running path.
	}

	r.signalCancel(id)
	r.logger.Info("cancellation requested for running job",
		logging.String(logging.FieldJobID, id))
	updated, err := r.store.GetByID(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return updated, !updated.IsTerminal(), nil
}

// signalCancel cancels a registered job controller. A job that is marked
// running but not yet registered gets a pending flag, consumed at
// registration, so the request cannot fall into the gap.
func (r *Runner) signalCancel(id string) {
	r.mu.Lock()
	r.canceled[id] = true
	cancel, ok := r.controllers[id]
	if !ok {
		r.pendingCancel[id] = true
	}
	r.mu.Unlock()
	if ok {
		cancel()
	}
}

func (r *Runner) registerController(id string, cancel context.CancelFunc) {
	r.mu.Lock()
	r.controllers[id] = cancel
	pending := r.pendingCancel[id]
	delete(r.pendingCancel, id)
	r.mu.Unlock()
	if pending {
		cancel()
	}
}

func (r *Runner) releaseController(id string, cancel context.CancelFunc) {
	r.mu.Lock()
	delete(r.controllers, id)
	delete(r.pendingCancel, id)
	delete(r.canceled, id)
	r.mu.Unlock()
	cancel()
}

func (r *Runner) cancelRequested(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.canceled[id]
}
