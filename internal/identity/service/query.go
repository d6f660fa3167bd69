package service

import (
	"context"
	"errors"

	"uniid/internal/identity/lifecycle"
	"uniid/internal/identity/models"
	dErrors "uniid/pkg/domain-errors"
	"uniid/pkg/platform/sentinel"
	"uniid/pkg/requestcontext"
)

func (s *Service) Get(ctx context.Context, id string) (*models.Identity, error) {
	identity, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, notFoundOrInternal(err, "failed to load identity")
	}
	return identity, nil
}

// List returns every identity ordered by key.
func (s *Service) List(ctx context.Context) ([]*models.Identity, error) {
	identities, err := s.store.List(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list identities")
	}
	return identities, nil
}

// Search filters identities; see models.SearchFilter for matching rules.
func (s *Service) Search(ctx context.Context, filter models.SearchFilter) ([]*models.Identity, error) {
	for _, t := range filter.Types {
		if !t.IsValid() {
			return nil, dErrors.New(dErrors.CodeBadRequest, "unknown identity type: "+string(t))
		}
	}
	for _, st := range filter.Statuses {
		if !st.IsValid() {
			return nil, dErrors.New(dErrors.CodeBadRequest, "unknown status: "+string(st))
		}
	}
	identities, err := s.store.Search(ctx, filter)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to search identities")
	}
	return identities, nil
}

// History returns the audit trail of an identity, newest first.
func (s *Service) History(ctx context.Context, id string) ([]models.AuditEntry, error) {
	if _, err := s.store.FindByID(ctx, id); err != nil {
		return nil, notFoundOrInternal(err, "failed to load identity")
	}
	entries, err := s.store.History(ctx, id)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load history")
	}
	if entries == nil {
		entries = []models.AuditEntry{}
	}
	return entries, nil
}

// Delete removes an identity outright. It is an administrative operation
// outside the lifecycle: no transition check and no audit entry.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return notFoundOrInternal(err, "failed to delete identity")
	}
	s.logAudit(ctx, "identity_deleted", "identity_id", id)
	return nil
}

// CheckTransition answers whether current may move to target given when
// the current status began. Inputs are untrusted text; a missing or
// malformed since disables the archive time gate.
func (s *Service) CheckTransition(ctx context.Context, current, target, since string) bool {
	return lifecycle.CanTransitionRaw(current, target, since, requestcontext.Now(ctx))
}

// AllowedTargets lists the statuses reachable from current, ignoring the
// archive time gate.
func (s *Service) AllowedTargets(current models.Status) []models.Status {
	return lifecycle.AllowedTargets(current)
}

// Transitions reports, for every status, whether the identity could move
// there now.
func (s *Service) Transitions(ctx context.Context, id string) ([]models.TransitionOption, error) {
	identity, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)
	out := make([]models.TransitionOption, 0, len(models.Statuses))
	for _, target := range models.Statuses {
		if target == identity.Status {
			continue
		}
		d := lifecycle.Evaluate(identity.Status, target, identity.StatusChangedAt, now)
		opt := models.TransitionOption{Status: target, Allowed: d.Allowed()}
		if err := d.Err(); err != nil {
			opt.Reason = dErrors.MessageOf(err)
		}
		out = append(out, opt)
	}
	return out, nil
}

func notFoundOrInternal(err error, msg string) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "identity not found")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, msg)
}
