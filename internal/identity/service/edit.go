package service

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"uniid/internal/identity/models"
	"uniid/internal/identity/mutation"
	dErrors "uniid/pkg/domain-errors"
	"uniid/pkg/platform/sentinel"
	"uniid/pkg/requestcontext"
)

// Edit applies the proposed field values to an identity. The record update
// and its audit entries are written in one transaction: either both land or
// neither does. A rejected status change rejects the whole edit.
func (s *Service) Edit(ctx context.Context, id string, proposed map[string]string) (*models.EditResult, error) {
	ctx, span := s.tracer.Start(ctx, "identity.Edit")
	defer span.End()
	span.SetAttributes(attribute.String("identity.id", id))

	start := time.Now()
	defer s.observeEdit(start)

	now := requestcontext.Now(ctx)
	var res *mutation.Result
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		record, err := s.store.FindByID(ctx, id)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeNotFound, "identity not found")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load identity")
		}

		res, err = mutation.Apply(record, proposed, now)
		if err != nil {
			return err
		}
		if !res.Changed() {
			return nil
		}
		if err := s.store.Update(ctx, res.Updated); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update identity")
		}
		if err := s.store.AppendAudit(ctx, res.Entries); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to write audit entries")
		}
		return nil
	})
	if err != nil {
		span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
		return nil, s.editFailure(ctx, id, err)
	}

	entries := res.Entries
	if entries == nil {
		entries = []models.AuditEntry{}
	}
	for _, e := range entries {
		if e.Field == models.FieldStatus {
			s.logAudit(ctx, "identity_status_changed",
				"identity_id", id,
				"from", e.OldValue,
				"to", e.NewValue,
			)
			s.incrementTransition(e.OldValue, e.NewValue)
		}
	}
	if len(entries) > 0 {
		s.logAudit(ctx, "identity_updated",
			"identity_id", id,
			"fields_changed", len(entries),
		)
		s.addAuditEntries(len(entries))
	}

	return &models.EditResult{Identity: res.Updated, AuditEntries: entries}, nil
}

func (s *Service) editFailure(ctx context.Context, id string, err error) error {
	code := dErrors.CodeOf(err)
	switch code {
	case dErrors.CodeInvalidTransition, dErrors.CodeTransitionGate, dErrors.CodeImmutableRecord:
		s.logger.InfoContext(ctx, "identity edit rejected",
			"identity_id", id,
			"reason", string(code),
		)
		s.incrementTransitionRejected(string(code))
	case dErrors.CodeInternal:
		s.logger.ErrorContext(ctx, "identity edit failed",
			"identity_id", id,
			"error", err,
		)
	}
	var de *dErrors.Error
	if !errors.As(err, &de) {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to edit identity")
	}
	return err
}

func (s *Service) observeEdit(start time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveEdit(start)
	}
}

func (s *Service) incrementTransition(from, to string) {
	if s.metrics != nil {
		s.metrics.IncrementTransition(from, to)
	}
}

func (s *Service) incrementTransitionRejected(reason string) {
	if s.metrics != nil {
		s.metrics.IncrementTransitionRejected(reason)
	}
}

func (s *Service) addAuditEntries(n int) {
	if s.metrics != nil {
		s.metrics.AddAuditEntries(n)
	}
}
