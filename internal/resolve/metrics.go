package resolve

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics collects resolution counters. A nil *Metrics records nothing.
type Metrics struct {
	outcomes       *prometheus.CounterVec
	lookups        *prometheus.CounterVec
	lookupDuration *prometheus.HistogramVec
}

// NewMetrics creates the resolution metrics and registers them on reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		outcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "affil",
				Subsystem: "resolve",
				Name:      "outcomes_total",
				Help:      "Total number of resolved affiliations by match type.",
			},
			[]string{"match_type"},
		),
		lookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "affil",
				Subsystem: "lookup",
				Name:      "requests_total",
				Help:      "Total number of lookup requests by stage and result.",
			},
			[]string{"stage", "result"},
		),
		lookupDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "affil",
				Subsystem: "lookup",
				Name:      "duration_seconds",
				Help:      "Time taken by one lookup request.",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"stage"},
		),
	}
	if reg != nil {
		reg.MustRegister(m.outcomes, m.lookups, m.lookupDuration)
	}
	return m
}

// Lookup results.
const (
	ResultMatch   = "match"
	ResultNoMatch = "no_match"
	ResultError   = "error"
)

func (m *Metrics) recordOutcome(matchType string) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(matchType).Inc()
}

func (m *Metrics) recordLookup(a Attempt) {
	if m == nil {
		return
	}
	result := ResultNoMatch
	switch {
	case a.Err != nil:
		result = ResultError
	case len(a.Matches) > 0:
		result = ResultMatch
	}
	m.lookups.WithLabelValues(a.Stage, result).Inc()
	m.lookupDuration.WithLabelValues(a.Stage).Observe(a.Elapsed.Seconds())
}
