package runner

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"casework/internal/feed"
	"casework/internal/jobs"
	"casework/internal/logging"
)

// progressSink coalesces handler progress reports. Handlers may report per
// row or per chunk; only one write per configured interval reaches the
// database, with the latest unpersisted report flushed at run end.
type progressSink struct {
	runner  *Runner
	record  *jobs.Record
	logger  *slog.Logger
	sampler *logging.ProgressSampler

	mu          sync.Mutex
	lastWrite   time.Time
	pending     bool
	fraction    float64
	message     string
	highestSeen float64
}

func (r *Runner) newProgressSink(record *jobs.Record, logger *slog.Logger) *progressSink {
	return &progressSink{
		runner:  r,
		record:  record,
		logger:  logger,
		sampler: logging.NewProgressSampler(0),
	}
}

func (s *progressSink) report(fraction float64, message string) {
	if fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}

	s.mu.Lock()
	if fraction < s.highestSeen {
		fraction = s.highestSeen
	}
	s.highestSeen = fraction
	s.fraction = fraction
	s.message = message
	s.pending = true
	due := time.Since(s.lastWrite) >= s.runner.progressInterval
	if due {
		s.lastWrite = time.Now()
		s.pending = false
	}
	s.mu.Unlock()

	// Messages often carry volatile counts, so only the fraction bucket
	// drives log sampling.
	if s.sampler.ShouldLog(fraction, "") {
		s.logger.Info("progress",
			logging.Float64("fraction", fraction),
			logging.String("message", message))
	}
	if due {
		s.persist(context.Background(), fraction, message)
	}
}

// flush persists the most recent report that the throttle held back.
func (s *progressSink) flush(ctx context.Context) {
	s.mu.Lock()
	pending := s.pending
	fraction := s.fraction
	message := s.message
	s.pending = false
	s.mu.Unlock()
	if pending {
		s.persist(ctx, fraction, message)
	}
}

func (s *progressSink) persist(ctx context.Context, fraction float64, message string) {
	if err := s.runner.store.UpdateProgress(ctx, s.record.ID, fraction, message); err != nil {
		s.logger.Warn("progress write failed", logging.Error(err))
		return
	}
	snapshot := feed.SnapshotOf(s.record)
	snapshot.Status = jobs.StatusRunning
	snapshot.Terminal = false
	snapshot.Progress = fraction
	snapshot.StatusMessage = message
	if s.runner.hub != nil {
		s.runner.hub.Publish(snapshot)
	}
}
