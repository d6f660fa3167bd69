package sweep

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"uniid/internal/identity/metrics"
	"uniid/internal/identity/models"
	"uniid/internal/identity/store"
)

type counterFunc func(ctx context.Context, cutoff time.Time) (int, error)

func (f counterFunc) CountArchivable(ctx context.Context, cutoff time.Time) (int, error) {
	return f(ctx, cutoff)
}

var (
	now    = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	silent = slog.New(slog.NewTextHandler(io.Discard, nil))
)

func TestRunOnce_CountsAndExportsGauge(t *testing.T) {
	mem := store.NewInMemory()
	ctx := context.Background()
	old := now.AddDate(-6, 0, 0)
	recent := now.AddDate(-1, 0, 0)
	for i, since := range []time.Time{old, old, recent} {
		s := since
		require.NoError(t, mem.Create(ctx, &models.Identity{
			ID:              models.FormatKey("STF", 2020, int64(i+1)),
			Type:            models.TypeStaff,
			Email:           models.FormatKey("stf", 2020, int64(i+1)) + "@uni.edu",
			Status:          models.StatusInactive,
			StatusChangedAt: &s,
		}))
	}
	m := metrics.New(prometheus.NewRegistry())
	sw := New(mem, WithLogger(silent), WithMetrics(m), WithClock(func() time.Time { return now }))

	n, err := sw.RunOnce(ctx)

	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ArchiveEligible))
}

func TestRunOnce_UsesFiveYearCutoff(t *testing.T) {
	var got time.Time
	sw := New(counterFunc(func(_ context.Context, cutoff time.Time) (int, error) {
		got = cutoff
		return 0, nil
	}), WithLogger(silent), WithClock(func() time.Time { return now }))

	_, err := sw.RunOnce(context.Background())

	require.NoError(t, err)
	assert.Equal(t, now.Add(-5*365*24*time.Hour), got)
}

func TestRunOnce_PropagatesStoreErrors(t *testing.T) {
	sw := New(counterFunc(func(context.Context, time.Time) (int, error) {
		return 0, errors.New("db down")
	}), WithLogger(silent))

	_, err := sw.RunOnce(context.Background())

	assert.ErrorContains(t, err, "db down")
}

func TestRun_RejectsBadSchedule(t *testing.T) {
	sw := New(counterFunc(func(context.Context, time.Time) (int, error) { return 0, nil }), WithLogger(silent))

	err := sw.Run(context.Background(), "every tuesday")

	assert.ErrorContains(t, err, "invalid sweep schedule")
}

func TestRun_StopsWithContext(t *testing.T) {
	sw := New(counterFunc(func(context.Context, time.Time) (int, error) { return 0, nil }), WithLogger(silent))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() { done <- sw.Run(ctx, "@hourly") }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("sweeper did not stop")
	}
}
