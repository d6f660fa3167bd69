package service

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"uniid/internal/identity/models"
	"uniid/internal/identity/validation"
	dErrors "uniid/pkg/domain-errors"
	"uniid/pkg/requestcontext"
)

// Create validates a candidate and, if it passes, stores it as a Pending
// identity with a freshly assigned key. The new identity is notified
// asynchronously; delivery never affects the result.
func (s *Service) Create(ctx context.Context, candidate models.Candidate) (*models.Identity, error) {
	ctx, span := s.tracer.Start(ctx, "identity.Create")
	defer span.End()

	candidate.Normalize()
	span.SetAttributes(attribute.String("identity.type", candidate.Type))
	now := requestcontext.Now(ctx)

	conflicts, err := s.store.FindConflicts(ctx, &candidate)
	if err != nil {
		span.SetStatus(codes.Error, "conflict lookup failed")
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check existing identities")
	}

	if violations := s.validator.Validate(&candidate, conflicts, now); len(violations) > 0 {
		s.incrementValidationRejected()
		s.logger.InfoContext(ctx, "identity rejected by validation",
			"type", candidate.Type,
			"violations", len(violations),
		)
		return nil, dErrors.Validation(violations)
	}

	identity, err := s.insertWithKey(ctx, &candidate)
	if err != nil {
		span.SetStatus(codes.Error, "insert failed")
		return nil, err
	}
	span.SetAttributes(attribute.String("identity.id", identity.ID))

	s.logAudit(ctx, "identity_created",
		"identity_id", identity.ID,
		"type", string(identity.Type),
	)
	s.incrementCreated(string(identity.Type))
	s.notifyAsync(ctx, identity.Email, identity.ID)

	return identity, nil
}

// insertWithKey allocates a key and inserts, retrying with a new key if the
// allocated one is already taken.
func (s *Service) insertWithKey(ctx context.Context, candidate *models.Candidate) (*models.Identity, error) {
	now := requestcontext.Now(ctx)
	prefix := models.Type(candidate.Type).Prefix()
	year := now.Year()

	for attempt := 1; attempt <= maxKeyAttempts; attempt++ {
		seq, err := s.sequence.Next(ctx, prefix, year)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to allocate identity key")
		}
		identity := models.NewIdentity(models.FormatKey(prefix, year, seq), candidate, now)

		err = s.store.Create(ctx, identity)
		switch {
		case err == nil:
			return identity, nil
		case models.IsDuplicateKey(err):
			s.logger.WarnContext(ctx, "identity key collision",
				"identity_id", identity.ID,
				"attempt", attempt,
			)
		case models.IsDuplicateEmail(err):
			s.incrementValidationRejected()
			return nil, dErrors.Validation([]string{validation.MsgDuplicateEmail})
		default:
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store identity")
		}
	}
	return nil, dErrors.New(dErrors.CodeConflict, "could not assign a unique identity key")
}

func (s *Service) notifyAsync(ctx context.Context, recipient, identityID string) {
	if s.notifier == nil {
		return
	}
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.notifyTimeout)
		defer cancel()

		res := s.notifier.Notify(nctx, recipient, identityID)
		if res.OK() {
			s.logger.InfoContext(nctx, "identity notification sent",
				"identity_id", identityID,
				"channel", res.Channel,
			)
			return
		}
		s.logger.WarnContext(nctx, "identity notification failed",
			"event", "notification_failed",
			"identity_id", identityID,
			"channel", res.Channel,
			"error", res.Err,
		)
		s.incrementNotificationFailure(res.Channel)
	}()
}

func (s *Service) incrementCreated(identityType string) {
	if s.metrics != nil {
		s.metrics.IncrementCreated(identityType)
	}
}

func (s *Service) incrementValidationRejected() {
	if s.metrics != nil {
		s.metrics.IncrementValidationRejected()
	}
}

func (s *Service) incrementNotificationFailure(channel string) {
	if s.metrics != nil {
		s.metrics.IncrementNotificationFailure(channel)
	}
}
