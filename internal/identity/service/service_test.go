package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"uniid/internal/identity/metrics"
	"uniid/internal/identity/models"
	"uniid/internal/identity/service/mocks"
	"uniid/internal/identity/validation"
	"uniid/internal/notify"
	dErrors "uniid/pkg/domain-errors"
	"uniid/pkg/platform/sentinel"
	"uniid/pkg/requestcontext"
)

type ServiceSuite struct {
	suite.Suite
	ctrl         *gomock.Controller
	mockStore    *mocks.MockStore
	mockTx       *mocks.MockStoreTx
	mockSequence *mocks.MockSequencer
	mockNotifier *mocks.MockNotifier
	metrics      *metrics.Metrics
	service      *Service
	now          time.Time
	ctx          context.Context
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.mockStore = mocks.NewMockStore(s.ctrl)
	s.mockTx = mocks.NewMockStoreTx(s.ctrl)
	s.mockSequence = mocks.NewMockSequencer(s.ctrl)
	s.mockNotifier = mocks.NewMockNotifier(s.ctrl)
	s.metrics = metrics.New(prometheus.NewRegistry())
	s.service = New(s.mockStore, s.mockTx, s.mockSequence,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithMetrics(s.metrics),
		WithNotifier(s.mockNotifier),
	)
	s.now = time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)

	s.mockTx.EXPECT().RunInTx(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, fn func(context.Context) error) error {
			return fn(ctx)
		}).AnyTimes()
}

func (s *ServiceSuite) TearDownTest() {
	s.Require().NoError(s.service.Drain(context.Background()))
}

func student() models.Candidate {
	c := models.Candidate{
		Type:      "Student",
		FirstName: "  Ada ",
		LastName:  "Lovelace",
		DOB:       "2000-12-10",
		Email:     " Ada@Uni.EDU ",
	}
	c.NationalID = "AB123456"
	return c
}

func (s *ServiceSuite) TestCreate() {
	s.Run("stores a Pending identity under the next key and notifies", func() {
		s.mockStore.EXPECT().FindConflicts(gomock.Any(), gomock.Any()).Return(models.Conflicts{}, nil)
		s.mockSequence.EXPECT().Next(gomock.Any(), "STU", 2024).Return(int64(7), nil)
		s.mockStore.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil)
		notified := make(chan struct{})
		s.mockNotifier.EXPECT().Notify(gomock.Any(), "ada@uni.edu", "STU202400007").
			DoAndReturn(func(context.Context, string, string) notify.Result {
				close(notified)
				return notify.Result{Channel: "log"}
			})

		identity, err := s.service.Create(s.ctx, student())

		s.Require().NoError(err)
		s.Equal("STU202400007", identity.ID)
		s.Equal(models.StatusPending, identity.Status)
		s.Equal("Ada", identity.FirstName)
		s.Equal("ada@uni.edu", identity.Email)
		s.Equal(s.now, *identity.StatusChangedAt)
		<-notified
		s.Equal(1.0, testutil.ToFloat64(s.metrics.IdentitiesCreated.WithLabelValues("Student")))
	})

	s.Run("underage student is rejected before any key is allocated", func() {
		c := models.Candidate{Type: "Student", FirstName: "Al", LastName: "Li", DOB: "2010-01-01", Email: "a@b.com"}
		c.NationalID = "X1"
		s.mockStore.EXPECT().FindConflicts(gomock.Any(), gomock.Any()).Return(models.Conflicts{}, nil)

		_, err := s.service.Create(s.ctx, c)

		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
		s.Equal([]string{validation.MsgUnderage}, dErrors.ViolationsOf(err))
	})

	s.Run("duplicate facts from the store become violations", func() {
		s.mockStore.EXPECT().FindConflicts(gomock.Any(), gomock.Any()).Return(models.Conflicts{SamePerson: true, SameEmail: true}, nil)

		_, err := s.service.Create(s.ctx, student())

		s.ElementsMatch([]string{validation.MsgDuplicatePerson, validation.MsgDuplicateEmail}, dErrors.ViolationsOf(err))
	})

	s.Run("key collision retries with the next sequence number", func() {
		s.mockStore.EXPECT().FindConflicts(gomock.Any(), gomock.Any()).Return(models.Conflicts{}, nil)
		gomock.InOrder(
			s.mockSequence.EXPECT().Next(gomock.Any(), "STU", 2024).Return(int64(1), nil),
			s.mockStore.EXPECT().Create(gomock.Any(), gomock.Any()).Return(models.ErrDuplicateKey),
			s.mockSequence.EXPECT().Next(gomock.Any(), "STU", 2024).Return(int64(2), nil),
			s.mockStore.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil),
		)
		s.mockNotifier.EXPECT().Notify(gomock.Any(), gomock.Any(), "STU202400002").Return(notify.Result{})

		identity, err := s.service.Create(s.ctx, student())

		s.Require().NoError(err)
		s.Equal("STU202400002", identity.ID)
	})

	s.Run("gives up after repeated collisions", func() {
		s.mockStore.EXPECT().FindConflicts(gomock.Any(), gomock.Any()).Return(models.Conflicts{}, nil)
		s.mockSequence.EXPECT().Next(gomock.Any(), gomock.Any(), gomock.Any()).Return(int64(1), nil).Times(maxKeyAttempts)
		s.mockStore.EXPECT().Create(gomock.Any(), gomock.Any()).Return(models.ErrDuplicateKey).Times(maxKeyAttempts)

		_, err := s.service.Create(s.ctx, student())

		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("email taken between check and insert is a validation failure", func() {
		s.mockStore.EXPECT().FindConflicts(gomock.Any(), gomock.Any()).Return(models.Conflicts{}, nil)
		s.mockSequence.EXPECT().Next(gomock.Any(), gomock.Any(), gomock.Any()).Return(int64(3), nil)
		s.mockStore.EXPECT().Create(gomock.Any(), gomock.Any()).Return(models.ErrDuplicateEmail)

		_, err := s.service.Create(s.ctx, student())

		s.Equal([]string{"Email already exists"}, dErrors.ViolationsOf(err))
	})

	s.Run("storage failure is internal and hides the cause", func() {
		s.mockStore.EXPECT().FindConflicts(gomock.Any(), gomock.Any()).Return(models.Conflicts{}, nil)
		s.mockSequence.EXPECT().Next(gomock.Any(), gomock.Any(), gomock.Any()).Return(int64(4), nil)
		s.mockStore.EXPECT().Create(gomock.Any(), gomock.Any()).Return(errors.New("connection reset"))

		_, err := s.service.Create(s.ctx, student())

		s.True(dErrors.HasCode(err, dErrors.CodeInternal))
		s.Equal("failed to store identity", dErrors.MessageOf(err))
	})

	s.Run("notification failure does not fail creation", func() {
		s.mockStore.EXPECT().FindConflicts(gomock.Any(), gomock.Any()).Return(models.Conflicts{}, nil)
		s.mockSequence.EXPECT().Next(gomock.Any(), gomock.Any(), gomock.Any()).Return(int64(5), nil)
		s.mockStore.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil)
		s.mockNotifier.EXPECT().Notify(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(notify.Result{Channel: "smtp", Err: errors.New("535 auth failed")})

		identity, err := s.service.Create(s.ctx, student())

		s.Require().NoError(err)
		s.NotNil(identity)
		s.Require().NoError(s.service.Drain(context.Background()))
		s.Equal(1.0, testutil.ToFloat64(s.metrics.NotificationFailures.WithLabelValues("smtp")))
	})
}

func (s *ServiceSuite) identity(status models.Status, since time.Time) *models.Identity {
	return &models.Identity{
		ID: "STU202000001", Type: models.TypeStudent, FirstName: "Ada", LastName: "Lovelace",
		DOB: "2000-12-10", Email: "ada@uni.edu", Status: status, StatusChangedAt: &since,
	}
}

func (s *ServiceSuite) TestEdit() {
	s.Run("Active to Archived is rejected and nothing is written", func() {
		s.mockStore.EXPECT().FindByID(gomock.Any(), "STU202000001").Return(s.identity(models.StatusActive, s.now.AddDate(-1, 0, 0)), nil)

		_, err := s.service.Edit(s.ctx, "STU202000001", map[string]string{"status": "Archived"})

		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidTransition))
		s.Equal(1.0, testutil.ToFloat64(s.metrics.TransitionsRejected.WithLabelValues("invalid_transition")))
	})

	s.Run("Inactive for 6 years archives with a refreshed status-since", func() {
		s.mockStore.EXPECT().FindByID(gomock.Any(), "STU202000001").Return(s.identity(models.StatusInactive, s.now.AddDate(-6, 0, 0)), nil)
		s.mockStore.EXPECT().Update(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, p *models.Identity) error {
			s.Equal(models.StatusArchived, p.Status)
			s.Equal(s.now, *p.StatusChangedAt)
			return nil
		})
		s.mockStore.EXPECT().AppendAudit(gomock.Any(), []models.AuditEntry{{
			IdentityID: "STU202000001", ChangedAt: s.now, Field: "status", OldValue: "Inactive", NewValue: "Archived",
		}}).Return(nil)

		res, err := s.service.Edit(s.ctx, "STU202000001", map[string]string{"status": "Archived"})

		s.Require().NoError(err)
		s.Equal(models.StatusArchived, res.Identity.Status)
		s.Len(res.AuditEntries, 1)
	})

	s.Run("no change writes nothing and returns no entries", func() {
		s.mockStore.EXPECT().FindByID(gomock.Any(), "STU202000001").Return(s.identity(models.StatusActive, s.now), nil)

		res, err := s.service.Edit(s.ctx, "STU202000001", map[string]string{"first_name": "Ada"})

		s.Require().NoError(err)
		s.NotNil(res.AuditEntries)
		s.Empty(res.AuditEntries)
	})

	s.Run("unknown identity is not found", func() {
		s.mockStore.EXPECT().FindByID(gomock.Any(), "STU209900001").Return(nil, sentinel.ErrNotFound)

		_, err := s.service.Edit(s.ctx, "STU209900001", map[string]string{"first_name": "X"})

		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("audit write failure surfaces as internal", func() {
		s.mockStore.EXPECT().FindByID(gomock.Any(), "STU202000001").Return(s.identity(models.StatusActive, s.now), nil)
		s.mockStore.EXPECT().Update(gomock.Any(), gomock.Any()).Return(nil)
		s.mockStore.EXPECT().AppendAudit(gomock.Any(), gomock.Any()).Return(errors.New("disk full"))

		_, err := s.service.Edit(s.ctx, "STU202000001", map[string]string{"last_name": "King"})

		s.True(dErrors.HasCode(err, dErrors.CodeInternal))
		s.NotContains(dErrors.MessageOf(err), "disk full")
	})
}

func (s *ServiceSuite) TestReads() {
	s.Run("history of unknown identity is not found", func() {
		s.mockStore.EXPECT().FindByID(gomock.Any(), "X").Return(nil, sentinel.ErrNotFound)

		_, err := s.service.History(s.ctx, "X")

		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("delete of unknown identity is not found", func() {
		s.mockStore.EXPECT().Delete(gomock.Any(), "X").Return(sentinel.ErrNotFound)

		s.True(dErrors.HasCode(s.service.Delete(s.ctx, "X"), dErrors.CodeNotFound))
	})

	s.Run("search rejects unknown statuses", func() {
		_, err := s.service.Search(s.ctx, models.SearchFilter{Statuses: []models.Status{"Retired"}})

		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	})

	s.Run("transitions explain the archive gate", func() {
		s.mockStore.EXPECT().FindByID(gomock.Any(), "STU202000001").Return(s.identity(models.StatusInactive, s.now.AddDate(-2, 0, 0)), nil)

		opts, err := s.service.Transitions(s.ctx, "STU202000001")

		s.Require().NoError(err)
		s.Len(opts, len(models.Statuses)-1)
		for _, o := range opts {
			s.False(o.Allowed, o.Status)
			if o.Status == models.StatusArchived {
				s.Contains(o.Reason, "requires 5 years")
			}
		}
	})
}

func (s *ServiceSuite) TestCheckTransition() {
	s.True(s.service.CheckTransition(s.ctx, "Pending", "Active", ""))
	s.False(s.service.CheckTransition(s.ctx, "Active", "Archived", ""))
	s.False(s.service.CheckTransition(s.ctx, "Inactive", "Archived", s.now.AddDate(-1, 0, 0).Format(time.RFC3339)))
	s.True(s.service.CheckTransition(s.ctx, "Inactive", "Archived", "garbage"))
	s.Equal([]models.Status{models.StatusSuspended, models.StatusInactive}, s.service.AllowedTargets(models.StatusActive))
}
