// Package metrics exposes Prometheus counters for the sync/print pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	FetchTotal    *prometheus.CounterVec
	FetchDuration prometheus.Histogram
	PrintsTotal   *prometheus.CounterVec
	AcksTotal     *prometheus.CounterVec
	PollCycles    prometheus.Counter
}

// New builds an instance-scoped registry; nothing is registered globally so
// tests can construct independent instances.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		FetchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "terminal_fetch_total",
			Help: "Remote order fetches by outcome.",
		}, []string{"outcome"}),
		FetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "terminal_fetch_duration_seconds",
			Help:    "Latency of remote order fetches.",
			Buckets: prometheus.DefBuckets,
		}),
		PrintsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "terminal_prints_total",
			Help: "Physical print attempts by outcome.",
		}, []string{"outcome"}),
		AcksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "terminal_acks_total",
			Help: "Remote printed-flag acknowledgments by outcome.",
		}, []string{"outcome"}),
		PollCycles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "terminal_poll_cycles_total",
			Help: "Completed polling cycles.",
		}),
	}

	registry.MustRegister(m.FetchTotal, m.FetchDuration, m.PrintsTotal, m.AcksTotal, m.PollCycles)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
