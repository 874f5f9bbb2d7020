// Package metrics defines the Prometheus collectors the service exports.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal counts HTTP requests by route pattern, method and status.
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sgenius_requests_total",
		Help: "Total HTTP requests processed.",
	}, []string{"route", "method", "status"})

	// GenerationDuration tracks the outbound generation call per endpoint.
	GenerationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sgenius_generation_duration_seconds",
		Help:    "Time spent waiting on the generation service.",
		Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
	}, []string{"endpoint", "format"})

	// GenerationErrors counts failed generations by endpoint and error kind
	// (configuration, upstream, invalid_format).
	GenerationErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sgenius_generation_errors_total",
		Help: "Generation failures by endpoint and error kind.",
	}, []string{"endpoint", "kind"})
)
