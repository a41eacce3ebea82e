package treatment

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts treatment activity. A nil *Metrics records nothing.
type Metrics struct {
	created       *prometheus.CounterVec
	sessions      *prometheus.CounterVec
	statusChanges *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		created: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "oncontrol",
			Name:      "treatments_created_total",
			Help:      "Treatments created, by type",
		}, []string{"type"}),
		sessions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "oncontrol",
			Name:      "treatment_sessions_registered_total",
			Help:      "Sessions registered, by effect on the treatment",
		}, []string{"outcome"}),
		statusChanges: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "oncontrol",
			Name:      "treatment_status_changes_total",
			Help:      "Explicit treatment status changes, by new status",
		}, []string{"status"}),
	}
}

func (m *Metrics) treatmentCreated(t Type) {
	if m == nil {
		return
	}
	m.created.WithLabelValues(string(t)).Inc()
}

func (m *Metrics) sessionRegistered(outcome string) {
	if m == nil {
		return
	}
	m.sessions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) statusChanged(s Status) {
	if m == nil {
		return
	}
	m.statusChanges.WithLabelValues(string(s)).Inc()
}
