// Copyright 2025 the Mediator.Net authors.
// Licensed under the MIT licence, see LICENCE file for details.

package apiserver

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricsNamespace = "mediator"
	metricsSubsystem = "apiserver"
)

// Collector holds the server metrics: per-method request counts and
// latencies, and the live session gauge.
type Collector struct {
	requests  *prometheus.CounterVec
	durations *prometheus.HistogramVec
	sessions  prometheus.Gauge
}

// NewCollector builds the metric set. Registration is left to the caller.
func NewCollector() *Collector {
	return &Collector{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "requests_total",
			Help:      "Number of RPC requests served, by method and outcome.",
		}, []string{"method", "outcome"}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "request_duration_seconds",
			Help:      "RPC request duration, by method.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "sessions",
			Help:      "Number of live client sessions.",
		}),
	}
}

func (c *Collector) observe(method, outcome string, elapsed time.Duration) {
	c.requests.WithLabelValues(method, outcome).Inc()
	c.durations.WithLabelValues(method).Observe(elapsed.Seconds())
}

// Describe is part of the prometheus.Collector interface.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	c.requests.Describe(ch)
	c.durations.Describe(ch)
	c.sessions.Describe(ch)
}

// Collect is part of the prometheus.Collector interface.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.requests.Collect(ch)
	c.durations.Collect(ch)
	c.sessions.Collect(ch)
}
