package logging

import "strings"

// ProgressSampler suppresses repetitive progress logs while preserving signal
// when the message label or fraction bucket changes.
type ProgressSampler struct {
	bucketSize float64
	lastLabel  string
	lastBucket int
}

// NewProgressSampler constructs a sampler that emits when the completed
// fraction crosses bucket boundaries (default 0.05) or when the label changes.
func NewProgressSampler(bucketSize float64) *ProgressSampler {
	if bucketSize <= 0 {
		bucketSize = 0.05
	}
	return &ProgressSampler{bucketSize: bucketSize, lastBucket: -1}
}

// ShouldLog reports whether a progress event should be logged. Fraction can be
// negative to indicate "unknown"; label is trimmed before comparison. Volatile
// message suffixes (counts, ETAs) should not be part of the label.
func (s *ProgressSampler) ShouldLog(fraction float64, label string) bool {
	if s == nil {
		return true
	}
	label = strings.TrimSpace(label)
	emit := false
	if label != "" && label != s.lastLabel {
		s.lastLabel = label
		emit = true
		s.lastBucket = -1
	}
	if fraction >= 0 {
		bucket := int(fraction / s.bucketSize)
		if fraction >= 1 {
			bucket = int(1 / s.bucketSize)
		}
		if bucket > s.lastBucket {
			s.lastBucket = bucket
			emit = true
		}
	}
	return emit
}

// Reset clears the sampler state (e.g. when a new job starts).
func (s *ProgressSampler) Reset() {
	if s == nil {
		return
	}
	s.lastLabel = ""
	s.lastBucket = -1
}
