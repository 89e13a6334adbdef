package runner

import (
	"context"
	"errors"
	"fmt"

	"casework/internal/jobs"
	"casework/internal/logging"
)

func (r *Runner) runJob(ctx context.Context, id string) {
	claimed, err := r.store.MarkRunning(ctx, id)
	if err != nil {
		r.logger.Error("failed to claim job",
			logging.String(logging.FieldJobID, id),
			logging.Error(err))
		return
	}
	if !claimed {
		// Already running, canceled before pickup, or otherwise past queued.
		return
	}

	var jobCtx context.Context
	var cancel context.CancelFunc
	if r.timeout > 0 {
		jobCtx, cancel = context.WithTimeout(ctx, r.timeout)
	} else {
		jobCtx, cancel = context.WithCancel(ctx)
	}
	r.registerController(id, cancel)
	defer r.releaseController(id, cancel)

	record, err := r.store.GetByID(ctx, id)
	if err != nil {
		r.finalize(ctx, id, jobs.Outcome{
			Status:      jobs.StatusFailed,
			Summary:     "job record unreadable after claim",
			ErrorDetail: err.Error(),
		})
		return
	}

	jobCtx = logging.WithJob(jobCtx, record.ID, record.Type)
	if record.CorrelationID != "" {
		jobCtx = logging.WithCorrelationID(jobCtx, record.CorrelationID)
	}
	logger := logging.WithContext(jobCtx, r.logger)
	logger.Info("job started")
	r.publish(record)

	handler, ok := r.registry.Lookup(record.Type)
	if !ok {
		r.finalize(ctx, id, jobs.Outcome{
			Status:      jobs.StatusFailed,
			Summary:     fmt.Sprintf("no handler registered for job type %q", record.Type),
			ErrorDetail: fmt.Sprintf("job type %q has no registered handler", record.Type),
		})
		return
	}

	sink := r.newProgressSink(record, logger)
	result, runErr := r.invoke(jobCtx, handler, record, sink.report)
	sink.flush(ctx)
	if runErr == nil && len(result.Counters) > 0 {
		attrs := make([]logging.Attr, 0, len(result.Counters))
		for name, value := range result.Counters {
			attrs = append(attrs, logging.Int64(name, value))
		}
		logger.Info("job counters", logging.Args(attrs...)...)
	}

	r.finalize(ctx, id, r.classify(ctx, jobCtx, id, result, runErr))
}

// invoke runs the handler with panic containment. A panicking handler fails
// its job instead of taking the daemon down.
func (r *Runner) invoke(ctx context.Context, handler Handler, record *jobs.Record, progress ProgressFunc) (result Result, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("handler panic: %v", recovered)
		}
	}()
	return handler.Run(ctx, record, progress)
}

// classify maps a handler exit to the job's single terminal outcome.
func (r *Runner) classify(ctx, jobCtx context.Context, id string, result Result, runErr error) jobs.Outcome {
	if runErr == nil {
		return jobs.Outcome{Status: jobs.StatusSucceeded, Summary: result.Summary}
	}

	contextual := errors.Is(runErr, context.Canceled) || errors.Is(runErr, context.DeadlineExceeded)
	switch {
	case contextual && r.cancelRequested(id):
		return jobs.Outcome{Status: jobs.StatusCanceled}
	case errors.Is(jobCtx.Err(), context.DeadlineExceeded):
		summary := fmt.Sprintf("timed out after %s", r.timeout)
		return jobs.Outcome{Status: jobs.StatusFailed, Summary: summary, ErrorDetail: summary}
	case contextual && ctx.Err() != nil:
		return jobs.Outcome{
			Status:      jobs.StatusFailed,
			Summary:     "interrupted by shutdown",
			ErrorDetail: "worker stopped while the job was in flight",
		}
	default:
		return jobs.Outcome{Status: jobs.StatusFailed, Summary: runErr.Error(), ErrorDetail: runErr.Error()}
	}
}

// finalize applies the terminal write. The store enforces exactly-once; the
// detached context guarantees the write happens even during shutdown.
func (r *Runner) finalize(ctx context.Context, id string, outcome jobs.Outcome) {
	writeCtx := context.WithoutCancel(ctx)
	record, applied, err := r.store.Finalize(writeCtx, id, outcome)
	if err != nil {
		r.logger.Error("terminal write failed",
			logging.String(logging.FieldJobID, id),
			logging.String("outcome", string(outcome.Status)),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check job database access"))
		return
	}
	if !applied {
		// Lost the terminal race, such as a cancel landing first. The record
		// already carries its outcome; nothing further to write or announce.
		return
	}
	r.logger.Info("job finished",
		logging.String(logging.FieldJobID, id),
		logging.String("outcome", string(record.Status)),
		logging.String("message", record.StatusMessage))
	r.publish(record)
}
