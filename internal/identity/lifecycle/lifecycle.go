// Package lifecycle decides whether an identity may move between statuses.
// It is pure: callers persist the new status and a fresh status-since
// timestamp when a transition is allowed.
package lifecycle

import (
	"fmt"
	"strings"
	"time"

	"uniid/internal/identity/models"
	dErrors "uniid/pkg/domain-errors"
)

// ArchiveAfter is how long an identity must stay Inactive before it may be
// archived.
const ArchiveAfter = 365 * 5 * 24 * time.Hour

var transitions = map[models.Status][]models.Status{
	models.StatusPending:   {models.StatusActive},
	models.StatusActive:    {models.StatusSuspended, models.StatusInactive},
	models.StatusSuspended: {models.StatusActive, models.StatusInactive},
	models.StatusInactive:  {models.StatusArchived},
	models.StatusArchived:  {},
}

// Verdict is the outcome of a transition check.
type Verdict int

const (
	Allowed Verdict = iota
	NotPermitted
	GateUnmet
)

// Decision explains a transition check. Elapsed is only meaningful for
// GateUnmet.
type Decision struct {
	From    models.Status
	To      models.Status
	Verdict Verdict
	Elapsed time.Duration
}

func (d Decision) Allowed() bool {
	return d.Verdict == Allowed
}

// Err converts a rejected decision into a domain error. Allowed decisions
// return nil.
func (d Decision) Err() error {
	fromTo := fmt.Sprintf("%s → %s", d.From, d.To)
	switch d.Verdict {
	case NotPermitted:
		return dErrors.New(dErrors.CodeInvalidTransition,
			fmt.Sprintf("Invalid status transition: %s is not allowed", fromTo))
	case GateUnmet:
		years := float64(int(d.Elapsed.Hours()/24)) / 365
		return dErrors.New(dErrors.CodeTransitionGate,
			fmt.Sprintf("Cannot transition %s: Inactive status requires 5 years before archiving (current: %.1f years)", fromTo, years))
	}
	return nil
}

// Evaluate checks moving from current to target. since is when the current
// status began; nil means unknown, in which case the archive gate is not
// enforced.
func Evaluate(current, target models.Status, since *time.Time, now time.Time) Decision {
	d := Decision{From: current, To: target}
	if current == target {
		return d
	}
	allowed, known := transitions[current]
	if !known || !contains(allowed, target) {
		d.Verdict = NotPermitted
		return d
	}
	if current == models.StatusInactive && target == models.StatusArchived && since != nil {
		elapsed := now.Sub(*since)
		if elapsed < ArchiveAfter {
			d.Verdict = GateUnmet
			d.Elapsed = elapsed
		}
	}
	return d
}

// CanTransition reports whether current may move to target.
func CanTransition(current, target models.Status, since *time.Time, now time.Time) bool {
	return Evaluate(current, target, since, now).Allowed()
}

// CanTransitionRaw is CanTransition for untrusted input: statuses and the
// status-since timestamp arrive as text. A missing or malformed timestamp
// disables the archive gate rather than failing the check.
func CanTransitionRaw(current, target, since string, now time.Time) bool {
	return CanTransition(models.Status(current), models.Status(target), ParseSince(since), now)
}

// AllowedTargets lists the statuses reachable from current, ignoring the
// archive time gate. Archived and unknown statuses have none.
func AllowedTargets(current models.Status) []models.Status {
	out := make([]models.Status, len(transitions[current]))
	copy(out, transitions[current])
	return out
}

var sinceLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// ParseSince parses a status-since timestamp. It returns nil when raw is
// empty or in no recognized layout.
func ParseSince(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	for _, layout := range sinceLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t
		}
	}
	return nil
}

func contains(list []models.Status, s models.Status) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
