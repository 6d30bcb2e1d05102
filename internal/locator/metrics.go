package locator

import (
	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	estimates    *prometheus.CounterVec
	failures     *prometheus.CounterVec
	score        prometheus.Gauge
	stepDuration prometheus.Histogram
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		estimates: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lora_locator_estimates_total",
				Help: "Total number of published position estimates",
			},
			[]string{"origin"},
		),
		failures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lora_locator_failures_total",
				Help: "Total number of steps without a published estimate",
			},
			[]string{"kind"},
		),
		score: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "lora_locator_best_score",
				Help: "Squared error of the last winning fingerprint",
			},
		),
		stepDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "lora_locator_step_duration_seconds",
				Help:    "Duration of one estimation step",
				Buckets: prometheus.DefBuckets,
			},
		),
	}

	reg.MustRegister(m.estimates, m.failures, m.score, m.stepDuration)
	return m
}
