// Package telemetry provides Prometheus instrumentation for the refresh
// pipeline and the REST API.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels for refresh cycle metrics.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Metrics holds the instruments recorded by the refresh pipeline.
type Metrics struct {
	refreshTotal    *prometheus.CounterVec
	refreshDuration prometheus.Histogram
	orgsTotal       *prometheus.GaugeVec
}

// NewMetrics registers the refresh pipeline metrics with the given
// registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		refreshTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "orgmgmt_refresh_cycles_total",
			Help: "Total refresh cycles by outcome.",
		}, []string{"outcome"}),
		refreshDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "orgmgmt_refresh_duration_seconds",
			Help:    "Duration of complete refresh cycles.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
		orgsTotal: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "orgmgmt_orgs_total",
			Help: "Orgs present in the published cache, per context.",
		}, []string{"context"}),
	}
}

// RecordRefresh records the duration and outcome of one refresh cycle.
func (m *Metrics) RecordRefresh(duration time.Duration, success bool) {
	outcome := OutcomeSuccess
	if !success {
		outcome = OutcomeFailure
	}
	m.refreshTotal.WithLabelValues(outcome).Inc()
	if success {
		m.refreshDuration.Observe(duration.Seconds())
	}
}

// RecordOrgCount records the number of orgs published for a context.
func (m *Metrics) RecordOrgCount(context string, count int) {
	m.orgsTotal.WithLabelValues(context).Set(float64(count))
}
