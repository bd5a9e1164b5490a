package cache

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts registry traffic per cache group. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	hits          *prometheus.CounterVec
	misses        *prometheus.CounterVec
	sets          *prometheus.CounterVec
	invalidations *prometheus.CounterVec
	errors        *prometheus.CounterVec
}

// NewMetrics creates the cache counters and registers them with reg.
// A nil reg leaves the counters unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	counter := func(name, help string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "broiler",
			Subsystem: "cache",
			Name:      name,
			Help:      help,
		}, []string{"group"})
	}

	m := &Metrics{
		hits:          counter("hits_total", "Cache lookups served from the cache."),
		misses:        counter("misses_total", "Cache lookups that found no entry."),
		sets:          counter("sets_total", "Entries written through the registry."),
		invalidations: counter("group_invalidations_total", "Whole group invalidations."),
		errors:        counter("errors_total", "Cache backend errors."),
	}

	if reg != nil {
		reg.MustRegister(m.hits, m.misses, m.sets, m.invalidations, m.errors)
	}
	return m
}

func (m *Metrics) hit(group string) {
	if m != nil {
		m.hits.WithLabelValues(group).Inc()
	}
}

func (m *Metrics) miss(group string) {
	if m != nil {
		m.misses.WithLabelValues(group).Inc()
	}
}

func (m *Metrics) set(group string) {
	if m != nil {
		m.sets.WithLabelValues(group).Inc()
	}
}

func (m *Metrics) invalidation(group string) {
	if m != nil {
		m.invalidations.WithLabelValues(group).Inc()
	}
}

func (m *Metrics) failure(group string) {
	if m != nil {
		m.errors.WithLabelValues(group).Inc()
	}
}
