package models

import "time"

// AuditEntry records one field-level change to one identity. Entries are
// append-only; a multi-field edit produces several entries sharing ChangedAt.
type AuditEntry struct {
	IdentityID string    `json:"identity_id"`
	ChangedAt  time.Time `json:"changed_at"`
	Field      string    `json:"field"`
	OldValue   string    `json:"old_value"`
	NewValue   string    `json:"new_value"`
}

// EditResult is the outcome of an accepted edit.
type EditResult struct {
	Identity     *Identity    `json:"identity"`
	AuditEntries []AuditEntry `json:"audit_entries"`
}

// SearchFilter narrows identity listings. Zero values match everything.
type SearchFilter struct {
	// Query matches first name, last name or email as a case-insensitive substring.
	Query    string
	Types    []Type
	Statuses []Status
	// Year matches entry year or diploma year exactly.
	Year string
	// Department matches primary or staff department as a substring.
	Department string
}
