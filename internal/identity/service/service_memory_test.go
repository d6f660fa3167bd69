package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"uniid/internal/identity/models"
	"uniid/internal/identity/sequence"
	"uniid/internal/identity/store"
	"uniid/pkg/requestcontext"
)

// failingAudit fails every audit append after the record update succeeded.
type failingAudit struct {
	*store.InMemory
}

func (f failingAudit) AppendAudit(context.Context, []models.AuditEntry) error {
	return errors.New("audit unavailable")
}

func newMemoryService(st Store, tx StoreTx) *Service {
	return New(st, tx, sequence.NewInMemory(), WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
}

func TestEdit_FailedAuditLeavesRecordUntouched(t *testing.T) {
	mem := store.NewInMemory()
	ctx := requestcontext.WithTime(context.Background(), time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

	created, err := newMemoryService(mem, mem).Create(ctx, student())
	require.NoError(t, err)

	svc := newMemoryService(failingAudit{mem}, mem)
	_, err = svc.Edit(ctx, created.ID, map[string]string{"status": "Active", "first_name": "Augusta"})
	require.Error(t, err)

	after, err := mem.FindByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, after.Status)
	assert.Equal(t, "Ada", after.FirstName)
	history, _ := mem.History(ctx, created.ID)
	assert.Empty(t, history)
}

func TestLifecycleEndToEnd(t *testing.T) {
	mem := store.NewInMemory()
	svc := newMemoryService(mem, mem)
	day0 := time.Date(2020, 1, 10, 9, 0, 0, 0, time.UTC)
	at := func(d time.Time) context.Context { return requestcontext.WithTime(context.Background(), d) }

	created, err := svc.Create(at(day0), student())
	require.NoError(t, err)
	assert.Equal(t, "STU202000001", created.ID)

	_, err = svc.Edit(at(day0), created.ID, map[string]string{"status": "Active"})
	require.NoError(t, err)
	_, err = svc.Edit(at(day0.AddDate(0, 6, 0)), created.ID, map[string]string{"status": "Inactive"})
	require.NoError(t, err)

	_, err = svc.Edit(at(day0.AddDate(3, 0, 0)), created.ID, map[string]string{"status": "Archived"})
	require.Error(t, err, "archive gate applies three years later")

	res, err := svc.Edit(at(day0.AddDate(6, 0, 0)), created.ID, map[string]string{"status": "Archived"})
	require.NoError(t, err)
	assert.Equal(t, models.StatusArchived, res.Identity.Status)

	_, err = svc.Edit(at(day0.AddDate(6, 0, 1)), created.ID, map[string]string{"first_name": "Augusta"})
	require.Error(t, err, "archived records are immutable")

	history, err := svc.History(at(day0.AddDate(7, 0, 0)), created.ID)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, "Archived", history[0].NewValue)
	assert.Equal(t, "Inactive", history[1].NewValue)
	assert.Equal(t, "Active", history[2].NewValue)
}

func TestCreate_ConcurrentSameTypeGetsDistinctKeys(t *testing.T) {
	mem := store.NewInMemory()
	svc := newMemoryService(mem, mem)
	ctx := requestcontext.WithTime(context.Background(), time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	const n = 25

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		ids = make(map[string]bool)
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c := student()
			c.FirstName = "Student"
			c.LastName = string(rune('A'+i)) + "son"
			c.Email = c.LastName + "@uni.edu"
			created, err := svc.Create(ctx, c)
			if assert.NoError(t, err) {
				mu.Lock()
				ids[created.ID] = true
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Len(t, ids, n)
}
