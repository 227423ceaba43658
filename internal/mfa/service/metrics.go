package service

import (
	"time"

	"github.com/aussiebroadwan/bartab-mfa/internal/mfa/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "bartab_mfa"

// Metrics holds the service's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	DisableOutcomes *prometheus.CounterVec
	DisableDuration prometheus.Histogram
	ReplaySwept     prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		DisableOutcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "disable_outcomes_total",
				Help:      "TOTP disable attempts by outcome.",
			},
			[]string{"outcome", "class"},
		),
		DisableDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "disable_duration_seconds",
				Help:      "Time taken to process a TOTP disable attempt.",
				Buckets:   prometheus.DefBuckets,
			},
		),
		ReplaySwept: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "replay_entries_swept_total",
				Help:      "Expired replay guard entries removed by housekeeping.",
			},
		),
	}
}

func (m *Metrics) observeDisable(outcome domain.DisableOutcome, took time.Duration) {
	if m == nil {
		return
	}
	m.DisableOutcomes.WithLabelValues(outcome.String(), string(outcome.Class())).Inc()
	m.DisableDuration.Observe(took.Seconds())
}

func (m *Metrics) observeSwept(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ReplaySwept.Add(float64(n))
}
