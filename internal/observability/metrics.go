// Package observability exposes the Prometheus collectors used across the service.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "ride_dispatch"

var (
	RideRequestsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ride_requests_created_total",
		Help:      "Ride requests created by riders",
	})

	DispatchOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "dispatch_outcomes_total", Help: "Dispatch runs by outcome"},
		[]string{"outcome"},
	)
	DispatchCandidates = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "dispatch_candidates",
		Help:      "Candidates notified per dispatch",
		Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 20},
	})
	DispatchLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "dispatch_latency_seconds",
		Help:      "Time spent finding and notifying candidates",
		Buckets:   prometheus.DefBuckets,
	})

	DriverResponses = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "driver_responses_total", Help: "Driver responses by action"},
		[]string{"action"},
	)
	RideRequestsResolved = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "ride_requests_resolved_total", Help: "Ride requests reaching a terminal status"},
		[]string{"status", "path"},
	)
	StaleMutations = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stale_mutations_total",
		Help:      "Mutations rejected because the request was no longer open",
	})

	NotificationsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "notifications_dropped_total",
		Help:      "Realtime notifications dropped because a client was not keeping up",
	})
	RealtimeConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "realtime_connections",
		Help:      "Open websocket connections",
	})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
