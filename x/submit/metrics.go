package submit

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts submission attempts. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	Attempts *prometheus.CounterVec
	Dropped  prometheus.Counter
}

// NewMetrics creates the submission metrics and registers them with reg,
// which may be nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "msigproxy",
			Subsystem: "submit",
			Name:      "attempts_total",
			Help:      "Total number of finished submission attempts.",
		}, []string{"outcome"}),
		Dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "msigproxy",
			Subsystem: "submit",
			Name:      "dropped_total",
			Help:      "Total number of submit requests dropped while busy.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Attempts, m.Dropped)
	}
	return m
}

func (m *Metrics) finished(s State) {
	if m == nil {
		return
	}
	outcome := s.Kind.String()
	if s.Kind == Finalized && !s.OK {
		outcome = "dispatch_failed"
	}
	m.Attempts.WithLabelValues(outcome).Inc()
}

func (m *Metrics) dropped() {
	if m == nil {
		return
	}
	m.Dropped.Inc()
}
