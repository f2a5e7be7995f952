// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TicketsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "supportflow",
			Subsystem: "tickets",
			Name:      "created_total",
			Help:      "Total tickets created",
		},
	)

	// Completions counts deferred response generations by result
	// (ok, generate_error, store_error, skipped).
	Completions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "supportflow",
			Subsystem: "tickets",
			Name:      "completions_total",
			Help:      "Total completion jobs run, by result",
		},
		[]string{"result"},
	)

	Resolves = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "supportflow",
			Subsystem: "tickets",
			Name:      "resolves_total",
			Help:      "Total resolve attempts, by result",
		},
		[]string{"result"},
	)

	CompletionLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "supportflow",
			Subsystem: "tickets",
			Name:      "completion_seconds",
			Help:      "Time from ticket creation to stored response",
			Buckets:   []float64{0.5, 1, 2, 3, 5, 10, 30, 60, 300},
		},
	)

	FeedSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "supportflow",
			Subsystem: "feed",
			Name:      "subscribers",
			Help:      "Live change feed subscriptions",
		},
	)

	FeedDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "supportflow",
			Subsystem: "feed",
			Name:      "dropped_total",
			Help:      "Events dropped because a subscriber queue was full",
		},
	)

	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "supportflow",
			Subsystem: "api",
			Name:      "requests_total",
			Help:      "HTTP requests served, by route pattern and status code",
		},
		[]string{"route", "code"},
	)

	NotifyErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "supportflow",
			Subsystem: "notify",
			Name:      "errors_total",
			Help:      "Failed staff notifications, by notifier",
		},
		[]string{"notifier"},
	)
)
