// Package notify tells a newly created identity its key. Delivery is
// best-effort: every notifier reports the outcome as a Result and never
// panics or blocks creation.
package notify

import (
	"context"
	"log/slog"
)

// Result is the outcome of one delivery attempt.
type Result struct {
	Recipient  string
	IdentityID string
	Channel    string
	Err        error
}

func (r Result) OK() bool {
	return r.Err == nil
}

// Log writes notifications to the structured log instead of delivering
// them. It is the fallback when no transport is configured.
type Log struct {
	logger *slog.Logger
}

func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{logger: logger}
}

func (n *Log) Notify(ctx context.Context, recipient, identityID string) Result {
	n.logger.InfoContext(ctx, "identity notification",
		"channel", "log",
		"recipient", recipient,
		"identity_id", identityID,
	)
	return Result{Recipient: recipient, IdentityID: identityID, Channel: "log"}
}
