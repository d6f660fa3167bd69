// Package mutation computes field-level diffs for identity edits and the
// audit entries they produce. It does not persist anything; the service
// writes the returned record and entries in one transaction.
package mutation

import (
	"strings"
	"time"

	"uniid/internal/identity/lifecycle"
	"uniid/internal/identity/models"
	dErrors "uniid/pkg/domain-errors"
)

// Result is an accepted edit. Updated is a copy of the original record with
// the changes applied; Entries is empty when nothing changed.
type Result struct {
	Updated   *models.Identity
	Entries   []models.AuditEntry
	ChangedAt time.Time
}

// Changed reports whether the edit altered any field.
func (r *Result) Changed() bool {
	return len(r.Entries) > 0
}

// StatusChanged reports whether one of the entries is a status change.
func (r *Result) StatusChanged() bool {
	for _, e := range r.Entries {
		if e.Field == models.FieldStatus {
			return true
		}
	}
	return false
}

// Apply diffs proposed against record. Only allowlisted fields present in
// proposed are considered; values are compared after trimming. A status
// change must pass the lifecycle check, otherwise the whole edit is rejected
// and nothing is returned. Archived records reject every edit.
func Apply(record *models.Identity, proposed map[string]string, now time.Time) (*Result, error) {
	if record.IsArchived() {
		return nil, dErrors.New(dErrors.CodeImmutableRecord, "archived records cannot be edited")
	}

	updated := record.Clone()
	res := &Result{Updated: updated, ChangedAt: now}

	for _, name := range models.EditableFields {
		raw, present := proposed[name]
		if !present {
			continue
		}
		next := strings.TrimSpace(raw)
		if name == models.FieldStatus {
			if next == "" {
				continue
			}
			if err := checkStatus(record, next, now); err != nil {
				return nil, err
			}
		}
		prev, _ := record.Field(name)
		if strings.TrimSpace(prev) == next {
			continue
		}
		updated.SetField(name, next, now)
		res.Entries = append(res.Entries, models.AuditEntry{
			IdentityID: record.ID,
			ChangedAt:  now,
			Field:      name,
			OldValue:   prev,
			NewValue:   next,
		})
	}
	return res, nil
}

func checkStatus(record *models.Identity, next string, now time.Time) error {
	target, ok := models.ParseStatus(next)
	if !ok {
		return dErrors.Validation([]string{"Unknown status: " + next})
	}
	return lifecycle.Evaluate(record.Status, target, record.StatusChangedAt, now).Err()
}
