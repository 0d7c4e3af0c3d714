package tracker

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts the updates received by all trackers. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	Updates *prometheus.CounterVec
}

// NewMetrics creates the tracker metrics and registers them with reg, which
// may be nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Updates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "msigproxy",
			Subsystem: "tracker",
			Name:      "updates_total",
			Help:      "Total number of multisig record updates.",
		}, []string{"state"}),
	}
	if reg != nil {
		reg.MustRegister(m.Updates)
	}
	return m
}

func (m *Metrics) observe(st Status) {
	if m == nil {
		return
	}
	state := "pending"
	switch {
	case st.Err != nil:
		state = "error"
	case st.Record == nil:
		state = "absent"
	}
	m.Updates.WithLabelValues(state).Inc()
}
