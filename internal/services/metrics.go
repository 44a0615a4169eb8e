package services

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts what the workers did.
type Metrics struct {
	syncItems *prometheus.CounterVec
	autoEnd   *prometheus.CounterVec
	rearmed   prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		syncItems: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "meetsync_sync_items_total",
				Help: "Meeting synchronization items processed",
			},
			[]string{"action", "result"},
		),
		autoEnd: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "meetsync_auto_end_total",
				Help: "Overdue meetings checked, by outcome",
			},
			[]string{"outcome"},
		),
		rearmed: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "meetsync_rearmed_total",
				Help: "Events and sessions put back on the queue after a meeting error",
			},
		),
	}
	reg.MustRegister(m.syncItems, m.autoEnd, m.rearmed)
	return m
}

func (m *Metrics) syncItem(action, result string) {
	if m != nil {
		m.syncItems.WithLabelValues(action, result).Inc()
	}
}

func (m *Metrics) autoEnded(outcome string) {
	if m != nil {
		m.autoEnd.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) rearm(n int64) {
	if m != nil {
		m.rearmed.Add(float64(n))
	}
}
