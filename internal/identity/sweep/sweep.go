// Package sweep periodically counts identities that have been Inactive long
// enough to be archived. It only reports; archiving stays a deliberate edit.
package sweep

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"uniid/internal/identity/lifecycle"
	"uniid/internal/identity/metrics"
)

// Counter counts Inactive identities whose status began at or before cutoff.
type Counter interface {
	CountArchivable(ctx context.Context, cutoff time.Time) (int, error)
}

// Sweeper runs the archive-eligibility count on a cron schedule.
type Sweeper struct {
	counter Counter
	cron    *cron.Cron
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

type Option func(*Sweeper)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Sweeper) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Sweeper) {
		s.metrics = m
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Sweeper) {
		if now != nil {
			s.now = now
		}
	}
}

func New(counter Counter, opts ...Option) *Sweeper {
	s := &Sweeper{
		counter: counter,
		cron:    cron.New(),
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RunOnce counts archive-eligible identities now.
func (s *Sweeper) RunOnce(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-lifecycle.ArchiveAfter)
	n, err := s.counter.CountArchivable(ctx, cutoff)
	if err != nil {
		s.logger.ErrorContext(ctx, "archive sweep failed", "error", err)
		return 0, fmt.Errorf("count archivable identities: %w", err)
	}
	s.logger.InfoContext(ctx, "archive sweep completed",
		"archive_eligible", n,
		"cutoff", cutoff,
	)
	if s.metrics != nil {
		s.metrics.SetArchiveEligible(n)
	}
	return n, nil
}

// Run schedules the sweep and blocks until ctx is done, then waits for a
// running sweep to finish.
func (s *Sweeper) Run(ctx context.Context, schedule string) error {
	_, err := s.cron.AddFunc(schedule, func() {
		_, _ = s.RunOnce(ctx)
	})
	if err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}
	s.logger.InfoContext(ctx, "archive sweep scheduled", "schedule", schedule)
	s.cron.Start()

	<-ctx.Done()
	<-s.cron.Stop().Done()
	return nil
}
