//go:build integration

package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"uniid/internal/identity/models"
	"uniid/internal/identity/store"
	"uniid/pkg/platform/sentinel"
	"uniid/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.PostgresStore
	now      time.Time
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.store = store.NewPostgres(s.postgres.DB)
	s.now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "audit", "people", "identity_sequences"))
}

func (s *PostgresStoreSuite) person(id, email string) *models.Identity {
	since := s.now
	p := &models.Identity{
		ID: id, Type: models.TypeStudent, FirstName: "Ada", LastName: "Lovelace",
		DOB: "2000-12-10", Email: email, Status: models.StatusPending, StatusChangedAt: &since,
	}
	p.NationalID = "AB123"
	p.EntryYear = "2026"
	return p
}

func (s *PostgresStoreSuite) TestRoundTrip() {
	ctx := context.Background()
	p := s.person("STU202600001", "ada@uni.edu")
	s.Require().NoError(s.store.Create(ctx, p))

	found, err := s.store.FindByID(ctx, p.ID)
	s.Require().NoError(err)
	s.Equal(p.Email, found.Email)
	s.Equal(p.NationalID, found.NationalID)
	s.True(p.StatusChangedAt.Equal(*found.StatusChangedAt))

	_, err = s.store.FindByID(ctx, "STU202699999")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestUniqueViolationsAreClassified() {
	ctx := context.Background()
	s.Require().NoError(s.store.Create(ctx, s.person("STU202600001", "ada@uni.edu")))

	s.True(models.IsDuplicateKey(s.store.Create(ctx, s.person("STU202600001", "other@uni.edu"))))
	s.True(models.IsDuplicateEmail(s.store.Create(ctx, s.person("STU202600002", "ADA@uni.edu"))))
}

func (s *PostgresStoreSuite) TestConflictsAndSearch() {
	ctx := context.Background()
	s.Require().NoError(s.store.Create(ctx, s.person("STU202600001", "ada@uni.edu")))

	c, err := s.store.FindConflicts(ctx, &models.Candidate{Type: "Student", FirstName: "ada", LastName: "LOVELACE", DOB: "2000-12-10", Email: "Ada@Uni.edu"})
	s.Require().NoError(err)
	s.Equal(models.Conflicts{SamePerson: true, SameEmail: true}, c)

	found, err := s.store.Search(ctx, models.SearchFilter{
		Query:    "love",
		Types:    []models.Type{models.TypeStudent},
		Statuses: []models.Status{models.StatusPending},
		Year:     "2026",
	})
	s.Require().NoError(err)
	s.Len(found, 1)

	none, err := s.store.Search(ctx, models.SearchFilter{Query: "100%"})
	s.Require().NoError(err)
	s.Empty(none, "LIKE wildcards in the query are literal")
}

func (s *PostgresStoreSuite) TestEditTransactionRollsBack() {
	ctx := context.Background()
	p := s.person("STU202600001", "ada@uni.edu")
	s.Require().NoError(s.store.Create(ctx, p))
	boom := errors.New("boom")

	err := s.store.RunInTx(ctx, func(ctx context.Context) error {
		updated := p.Clone()
		updated.FirstName = "Augusta"
		s.Require().NoError(s.store.Update(ctx, updated))
		s.Require().NoError(s.store.AppendAudit(ctx, []models.AuditEntry{
			{IdentityID: p.ID, ChangedAt: s.now, Field: "first_name", OldValue: "Ada", NewValue: "Augusta"},
		}))
		return boom
	})
	s.ErrorIs(err, boom)

	found, _ := s.store.FindByID(ctx, p.ID)
	s.Equal("Ada", found.FirstName)
	history, _ := s.store.History(ctx, p.ID)
	s.Empty(history)
}

func (s *PostgresStoreSuite) TestHistoryOrdering() {
	ctx := context.Background()
	later := s.now.Add(time.Minute)
	s.Require().NoError(s.store.AppendAudit(ctx, []models.AuditEntry{
		{IdentityID: "STU202600001", ChangedAt: s.now, Field: "first_name", OldValue: "Ada", NewValue: "Augusta"},
		{IdentityID: "STU202600001", ChangedAt: s.now, Field: "last_name", OldValue: "Lovelace", NewValue: "King"},
	}))
	s.Require().NoError(s.store.AppendAudit(ctx, []models.AuditEntry{
		{IdentityID: "STU202600001", ChangedAt: later, Field: "status", OldValue: "Pending", NewValue: "Active"},
	}))

	history, err := s.store.History(ctx, "STU202600001")
	s.Require().NoError(err)
	s.Require().Len(history, 3)
	s.Equal([]string{"status", "last_name", "first_name"}, []string{history[0].Field, history[1].Field, history[2].Field})
}

func (s *PostgresStoreSuite) TestCountArchivableAndDelete() {
	ctx := context.Background()
	p := s.person("STU202600001", "ada@uni.edu")
	p.Status = models.StatusInactive
	old := s.now.AddDate(-6, 0, 0)
	p.StatusChangedAt = &old
	s.Require().NoError(s.store.Create(ctx, p))

	n, err := s.store.CountArchivable(ctx, s.now.AddDate(-5, 0, 0))
	s.Require().NoError(err)
	s.Equal(1, n)

	s.Require().NoError(s.store.Delete(ctx, p.ID))
	s.ErrorIs(s.store.Delete(ctx, p.ID), sentinel.ErrNotFound)
}
