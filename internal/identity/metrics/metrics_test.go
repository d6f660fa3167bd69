package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsAreRegisteredOnTheGivenRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.IncrementCreated("Student")
	m.IncrementCreated("Student")
	m.IncrementTransitionRejected("invalid_transition")
	m.AddAuditEntries(3)
	m.SetArchiveEligible(7)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.IdentitiesCreated.WithLabelValues("Student")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TransitionsRejected.WithLabelValues("invalid_transition")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.AuditEntriesWritten))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.ArchiveEligible))

	count, err := testutil.GatherAndCount(reg, "uniid_identities_created_total")
	assert.NoError(t, err)
	assert.Equal(t, 1, count)
}
