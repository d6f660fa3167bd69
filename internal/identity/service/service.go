package service

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks Store,StoreTx,Sequencer,Notifier

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"uniid/internal/identity/metrics"
	"uniid/internal/identity/models"
	"uniid/internal/identity/validation"
	"uniid/internal/notify"
	"uniid/pkg/requestcontext"
)

// Store persists identities and their audit trail.
type Store interface {
	Create(ctx context.Context, identity *models.Identity) error
	FindByID(ctx context.Context, id string) (*models.Identity, error)
	List(ctx context.Context) ([]*models.Identity, error)
	Search(ctx context.Context, filter models.SearchFilter) ([]*models.Identity, error)
	FindConflicts(ctx context.Context, candidate *models.Candidate) (models.Conflicts, error)
	Update(ctx context.Context, identity *models.Identity) error
	Delete(ctx context.Context, id string) error
	AppendAudit(ctx context.Context, entries []models.AuditEntry) error
	History(ctx context.Context, id string) ([]models.AuditEntry, error)
}

// StoreTx runs fn in one transaction. Store calls made with the ctx passed
// to fn join it; if fn fails nothing it wrote is kept.
type StoreTx interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Sequencer hands out per-prefix, per-year sequence numbers, each at most
// once.
type Sequencer interface {
	Next(ctx context.Context, prefix string, year int) (int64, error)
}

// Notifier tells a new identity its key.
type Notifier interface {
	Notify(ctx context.Context, recipient, identityID string) notify.Result
}

const (
	maxKeyAttempts       = 5
	defaultNotifyTimeout = 10 * time.Second
)

// Service orchestrates identity creation, edits and lookups.
type Service struct {
	store         Store
	tx            StoreTx
	sequence      Sequencer
	validator     *validation.Validator
	notifier      Notifier
	notifyTimeout time.Duration
	logger        *slog.Logger
	metrics       *metrics.Metrics
	tracer        trace.Tracer
	pending       sync.WaitGroup
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithNotifier enables identity-created notifications.
func WithNotifier(n Notifier) Option {
	return func(s *Service) {
		s.notifier = n
	}
}

// WithNotifyTimeout bounds each notification attempt.
func WithNotifyTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.notifyTimeout = d
		}
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(s *Service) {
		if t != nil {
			s.tracer = t
		}
	}
}

// New constructs a Service.
func New(store Store, tx StoreTx, sequence Sequencer, opts ...Option) *Service {
	s := &Service{
		store:         store,
		tx:            tx,
		sequence:      sequence,
		validator:     validation.New(),
		notifyTimeout: defaultNotifyTimeout,
		logger:        slog.Default(),
		tracer:        otel.Tracer("uniid/internal/identity/service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Drain waits for in-flight notifications, or until ctx is done.
func (s *Service) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.pending.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) logAudit(ctx context.Context, event string, attributes ...any) {
	if requestID := requestcontext.RequestID(ctx); requestID != "" {
		attributes = append(attributes, "request_id", requestID)
	}
	if actor := requestcontext.Actor(ctx); actor != "" {
		attributes = append(attributes, "actor", actor)
	}
	args := append(attributes, "event", event, "log_type", "audit")
	if s.logger != nil {
		s.logger.InfoContext(ctx, event, args...)
	}
}
