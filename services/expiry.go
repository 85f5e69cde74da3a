package services

import (
	"context"
	"os"
	"time"

	"mediafetch/metrics"
	"mediafetch/types"

	"go.uber.org/zap"
)

// ExpirySweeper deletes artifacts and prunes jobs that finished more than ttl ago
type ExpirySweeper struct {
	store    JobStore
	ttl      time.Duration
	interval time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

// NewExpirySweeper creates a sweeper; a zero ttl disables it
func NewExpirySweeper(store JobStore, ttl time.Duration, logger *zap.Logger) *ExpirySweeper {
	interval := ttl / 4
	if interval > time.Minute {
		interval = time.Minute
	}
	if interval < 10*time.Millisecond {
		interval = 10 * time.Millisecond
	}
	return &ExpirySweeper{
		store:    store,
		ttl:      ttl,
		interval: interval,
		logger:   logger.With(zap.String("component", "expiry_sweeper")),
		now:      time.Now,
	}
}

// Enabled reports whether artifacts expire at all
func (s *ExpirySweeper) Enabled() bool {
	return s.ttl > 0
}

// Start sweeps periodically until ctx is cancelled
func (s *ExpirySweeper) Start(ctx context.Context) {
	if !s.Enabled() {
		s.logger.Info("Artifact expiry disabled")
		return
	}

	s.logger.Info("Artifact expiry sweeper started",
		zap.Duration("ttl", s.ttl),
		zap.Duration("interval", s.interval))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Artifact expiry sweeper stopping")
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

// Sweep removes every terminal job older than ttl and returns how many were pruned
func (s *ExpirySweeper) Sweep() int {
	if !s.Enabled() {
		return 0
	}

	jobs, err := s.store.List()
	if err != nil {
		s.logger.Error("Error listing jobs for expiry", zap.Error(err))
		return 0
	}

	cutoff := s.now().Add(-s.ttl)
	pruned := 0
	for _, job := range jobs {
		if !expired(job, cutoff) {
			continue
		}

		if job.ResultPath != "" {
			if err := os.Remove(job.ResultPath); err != nil && !os.IsNotExist(err) {
				s.logger.Error("Error removing expired artifact",
					zap.String("job_id", job.ID),
					zap.String("path", job.ResultPath),
					zap.Error(err))
				continue
			}
			metrics.ArtifactExpired()
		}

		if err := s.store.Delete(job.ID); err != nil {
			s.logger.Error("Error pruning expired job", zap.String("job_id", job.ID), zap.Error(err))
			continue
		}
		s.logger.Info("Expired job", zap.String("job_id", job.ID), zap.String("status", string(job.Status)))
		pruned++
	}

	if pruned > 0 {
		s.logger.Info("Expiry sweep finished", zap.Int("pruned_count", pruned))
	}
	return pruned
}

func expired(job types.Job, cutoff time.Time) bool {
	if !job.Status.IsTerminal() || job.CompletedAt == nil {
		return false
	}
	return job.CompletedAt.Before(cutoff)
}
