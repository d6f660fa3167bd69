// Package store persists identities and their field-level audit trail.
package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"uniid/internal/identity/models"
	"uniid/pkg/platform/sentinel"
)

// InMemory is a map-backed identity and audit store for tests and
// database-less deployments.
//
// RunInTx stages writes on a private copy of the state and publishes it only
// when the callback succeeds, so a failed edit leaves no partial write.
// Writes outside a transaction are serialized with transactions.
type InMemory struct {
	writeMu sync.Mutex
	mu      sync.RWMutex
	state   *memState
}

type memState struct {
	people map[string]*models.Identity
	// emails maps lower-cased email to identity ID.
	emails map[string]string
	audit  []auditRow
	seq    int64
}

type auditRow struct {
	seq   int64
	entry models.AuditEntry
}

type memTxKey struct{}

func NewInMemory() *InMemory {
	return &InMemory{state: newMemState()}
}

func newMemState() *memState {
	return &memState{
		people: make(map[string]*models.Identity),
		emails: make(map[string]string),
	}
}

func (st *memState) clone() *memState {
	c := &memState{
		people: make(map[string]*models.Identity, len(st.people)),
		emails: make(map[string]string, len(st.emails)),
		audit:  make([]auditRow, len(st.audit)),
		seq:    st.seq,
	}
	for k, v := range st.people {
		c.people[k] = v.Clone()
	}
	for k, v := range st.emails {
		c.emails[k] = v
	}
	copy(c.audit, st.audit)
	return c
}

// RunInTx runs fn against a staged copy of the store. Nested calls join the
// outer transaction.
func (s *InMemory) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(memTxKey{}).(*memState); ok {
		return fn(ctx)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.RLock()
	staged := s.state.clone()
	s.mu.RUnlock()

	if err := fn(context.WithValue(ctx, memTxKey{}, staged)); err != nil {
		return err
	}

	s.mu.Lock()
	s.state = staged
	s.mu.Unlock()
	return nil
}

func (s *InMemory) read(ctx context.Context, fn func(st *memState) error) error {
	if staged, ok := ctx.Value(memTxKey{}).(*memState); ok {
		return fn(staged)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(s.state)
}

func (s *InMemory) write(ctx context.Context, fn func(st *memState) error) error {
	if staged, ok := ctx.Value(memTxKey{}).(*memState); ok {
		return fn(staged)
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.state)
}

func (s *InMemory) Create(ctx context.Context, identity *models.Identity) error {
	return s.write(ctx, func(st *memState) error {
		if _, exists := st.people[identity.ID]; exists {
			return models.ErrDuplicateKey
		}
		email := strings.ToLower(identity.Email)
		if _, taken := st.emails[email]; taken {
			return models.ErrDuplicateEmail
		}
		st.people[identity.ID] = identity.Clone()
		st.emails[email] = identity.ID
		return nil
	})
}

func (s *InMemory) FindByID(ctx context.Context, id string) (*models.Identity, error) {
	var found *models.Identity
	err := s.read(ctx, func(st *memState) error {
		p, ok := st.people[id]
		if !ok {
			return sentinel.ErrNotFound
		}
		found = p.Clone()
		return nil
	})
	return found, err
}

// List returns every identity ordered by key.
func (s *InMemory) List(ctx context.Context) ([]*models.Identity, error) {
	var out []*models.Identity
	_ = s.read(ctx, func(st *memState) error {
		out = make([]*models.Identity, 0, len(st.people))
		for _, p := range st.people {
			out = append(out, p.Clone())
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *InMemory) Search(ctx context.Context, filter models.SearchFilter) ([]*models.Identity, error) {
	var out []*models.Identity
	_ = s.read(ctx, func(st *memState) error {
		for _, p := range st.people {
			if matches(p, filter) {
				out = append(out, p.Clone())
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].FirstName != out[j].FirstName {
			return out[i].FirstName < out[j].FirstName
		}
		if out[i].LastName != out[j].LastName {
			return out[i].LastName < out[j].LastName
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func matches(p *models.Identity, f models.SearchFilter) bool {
	if q := strings.ToLower(strings.TrimSpace(f.Query)); q != "" {
		if !containsFold(p.FirstName, q) && !containsFold(p.LastName, q) && !containsFold(p.Email, q) {
			return false
		}
	}
	if len(f.Types) > 0 && !contains(f.Types, p.Type) {
		return false
	}
	if len(f.Statuses) > 0 && !contains(f.Statuses, p.Status) {
		return false
	}
	if f.Year != "" && p.EntryYear != f.Year && p.DiplomaYear != f.Year {
		return false
	}
	if d := strings.ToLower(strings.TrimSpace(f.Department)); d != "" {
		if !containsFold(p.PrimaryDepartment, d) && !containsFold(p.StaffDepartment, d) {
			return false
		}
	}
	return true
}

func containsFold(s, lowerSub string) bool {
	return strings.Contains(strings.ToLower(s), lowerSub)
}

func contains[T comparable](list []T, v T) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

func (s *InMemory) FindConflicts(ctx context.Context, c *models.Candidate) (models.Conflicts, error) {
	var out models.Conflicts
	_ = s.read(ctx, func(st *memState) error {
		if c.Email != "" {
			_, out.SameEmail = st.emails[strings.ToLower(c.Email)]
		}
		if c.FirstName == "" || c.LastName == "" || c.DOB == "" || c.Type == "" {
			return nil
		}
		for _, p := range st.people {
			if string(p.Type) == c.Type && p.DOB == c.DOB &&
				strings.EqualFold(p.FirstName, c.FirstName) && strings.EqualFold(p.LastName, c.LastName) {
				out.SamePerson = true
				break
			}
		}
		return nil
	})
	return out, nil
}

// Update replaces a stored identity. Email is not editable, so the email
// index is left alone.
func (s *InMemory) Update(ctx context.Context, identity *models.Identity) error {
	return s.write(ctx, func(st *memState) error {
		if _, ok := st.people[identity.ID]; !ok {
			return sentinel.ErrNotFound
		}
		st.people[identity.ID] = identity.Clone()
		return nil
	})
}

func (s *InMemory) Delete(ctx context.Context, id string) error {
	return s.write(ctx, func(st *memState) error {
		p, ok := st.people[id]
		if !ok {
			return sentinel.ErrNotFound
		}
		delete(st.emails, strings.ToLower(p.Email))
		delete(st.people, id)
		return nil
	})
}

func (s *InMemory) AppendAudit(ctx context.Context, entries []models.AuditEntry) error {
	return s.write(ctx, func(st *memState) error {
		for _, e := range entries {
			st.seq++
			st.audit = append(st.audit, auditRow{seq: st.seq, entry: e})
		}
		return nil
	})
}

// History returns the audit entries for id, newest first.
func (s *InMemory) History(ctx context.Context, id string) ([]models.AuditEntry, error) {
	var rows []auditRow
	_ = s.read(ctx, func(st *memState) error {
		for _, r := range st.audit {
			if r.entry.IdentityID == id {
				rows = append(rows, r)
			}
		}
		return nil
	})
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].entry.ChangedAt.Equal(rows[j].entry.ChangedAt) {
			return rows[i].entry.ChangedAt.After(rows[j].entry.ChangedAt)
		}
		return rows[i].seq > rows[j].seq
	})
	out := make([]models.AuditEntry, len(rows))
	for i, r := range rows {
		out[i] = r.entry
	}
	return out, nil
}

// CountArchivable counts Inactive identities whose status began at or
// before cutoff.
func (s *InMemory) CountArchivable(ctx context.Context, cutoff time.Time) (int, error) {
	n := 0
	_ = s.read(ctx, func(st *memState) error {
		for _, p := range st.people {
			if p.Status == models.StatusInactive && p.StatusChangedAt != nil && !p.StatusChangedAt.After(cutoff) {
				n++
			}
		}
		return nil
	})
	return n, nil
}
