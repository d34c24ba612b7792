package store

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/pario-ai/medcache/pkg/models"
)

// Metrics are the Prometheus collectors updated by a Store. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	lookups  *prometheus.CounterVec
	skipped  prometheus.Counter
	removals *prometheus.CounterVec
	entries  prometheus.Gauge
	scores   prometheus.Histogram
}

// NewMetrics creates the store collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medcache",
			Subsystem: "store",
			Name:      "lookups_total",
			Help:      "Cache lookups by result.",
		}, []string{"result"}),
		skipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "medcache",
			Subsystem: "store",
			Name:      "skipped_sets_total",
			Help:      "Responses not stored because their TTL was zero.",
		}),
		removals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medcache",
			Subsystem: "store",
			Name:      "removals_total",
			Help:      "Entries removed from the store by reason.",
		}, []string{"reason"}),
		entries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "medcache",
			Subsystem: "store",
			Name:      "entries",
			Help:      "Entries currently held.",
		}),
		scores: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "medcache",
			Subsystem: "store",
			Name:      "eviction_score",
			Help:      "Priority score of evicted entries.",
			Buckets:   prometheus.LinearBuckets(0, 10, 11),
		}),
	}
	reg.MustRegister(m.lookups, m.skipped, m.removals, m.entries, m.scores)
	return m
}

func (m *Metrics) lookup(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.lookups.WithLabelValues("hit").Inc()
	} else {
		m.lookups.WithLabelValues("miss").Inc()
	}
}

func (m *Metrics) skip() {
	if m == nil {
		return
	}
	m.skipped.Inc()
}

func (m *Metrics) removed(events []models.RemovalEvent) {
	if m == nil {
		return
	}
	for _, ev := range events {
		m.removals.WithLabelValues(string(ev.Reason)).Inc()
		if ev.Reason == models.RemovalEvicted {
			m.scores.Observe(float64(ev.Priority))
		}
	}
}

func (m *Metrics) size(n int) {
	if m == nil {
		return
	}
	m.entries.Set(float64(n))
}

func (m *Metrics) cleared(n int) {
	if m == nil || n == 0 {
		return
	}
	m.removals.WithLabelValues(string(models.RemovalCleared)).Add(float64(n))
	m.entries.Set(0)
}
