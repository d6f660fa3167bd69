package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the identity module.
type Metrics struct {
	IdentitiesCreated    *prometheus.CounterVec
	ValidationRejected   prometheus.Counter
	TransitionsApplied   *prometheus.CounterVec
	TransitionsRejected  *prometheus.CounterVec
	AuditEntriesWritten  prometheus.Counter
	NotificationFailures *prometheus.CounterVec
	EditDuration         prometheus.Histogram
	ArchiveEligible      prometheus.Gauge
}

// New registers the identity metrics on reg. A nil reg uses the default
// registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		IdentitiesCreated: f.NewCounterVec(prometheus.CounterOpts{
			Name: "uniid_identities_created_total",
			Help: "Total number of identities created, by type",
		}, []string{"type"}),
		ValidationRejected: f.NewCounter(prometheus.CounterOpts{
			Name: "uniid_validation_rejected_total",
			Help: "Total number of creation requests rejected by validation",
		}),
		TransitionsApplied: f.NewCounterVec(prometheus.CounterOpts{
			Name: "uniid_status_transitions_total",
			Help: "Total number of applied status transitions",
		}, []string{"from", "to"}),
		TransitionsRejected: f.NewCounterVec(prometheus.CounterOpts{
			Name: "uniid_status_transitions_rejected_total",
			Help: "Total number of rejected status transitions, by reason",
		}, []string{"reason"}),
		AuditEntriesWritten: f.NewCounter(prometheus.CounterOpts{
			Name: "uniid_audit_entries_total",
			Help: "Total number of field-level audit entries written",
		}),
		NotificationFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "uniid_notification_failures_total",
			Help: "Total number of failed identity-created notifications, by channel",
		}, []string{"channel"}),
		EditDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "uniid_edit_duration_seconds",
			Help:    "Duration of identity edits including the audit write",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
		ArchiveEligible: f.NewGauge(prometheus.GaugeOpts{
			Name: "uniid_archive_eligible_identities",
			Help: "Inactive identities old enough to be archived, as of the last sweep",
		}),
	}
}

func (m *Metrics) IncrementCreated(identityType string) {
	m.IdentitiesCreated.WithLabelValues(identityType).Inc()
}

func (m *Metrics) IncrementValidationRejected() {
	m.ValidationRejected.Inc()
}

func (m *Metrics) IncrementTransition(from, to string) {
	m.TransitionsApplied.WithLabelValues(from, to).Inc()
}

// IncrementTransitionRejected records a rejected status change. reason is
// the domain error code.
func (m *Metrics) IncrementTransitionRejected(reason string) {
	m.TransitionsRejected.WithLabelValues(reason).Inc()
}

func (m *Metrics) AddAuditEntries(n int) {
	m.AuditEntriesWritten.Add(float64(n))
}

func (m *Metrics) IncrementNotificationFailure(channel string) {
	m.NotificationFailures.WithLabelValues(channel).Inc()
}

// ObserveEdit records the duration of an edit.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveEdit(start time.Time) {
	m.EditDuration.Observe(time.Since(start).Seconds())
}

func (m *Metrics) SetArchiveEligible(n int) {
	m.ArchiveEligible.Set(float64(n))
}
