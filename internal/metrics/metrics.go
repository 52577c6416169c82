package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal counts API requests, labeled by operation and outcome (success, network_error, client_error, default_error).
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "charging_client_requests_total",
		Help: "Total number of API requests issued by the unified client.",
	}, []string{"operation", "outcome"})

	// RetriesTotal counts transport-level retries, labeled by operation.
	RetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "charging_client_retries_total",
		Help: "Total number of request retries after transport failures.",
	}, []string{"operation"})

	// RequestDuration observes wall-clock request duration, labeled by operation.
	RequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "charging_client_request_duration_seconds",
		Help:    "Histogram of API request durations.",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 8), // 50ms .. 6.4s
	}, []string{"operation"})

	// SubscriptionEvents counts push events received on the session subscription, labeled by session state.
	SubscriptionEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "charging_client_subscription_events_total",
		Help: "Total number of push events received on the session subscription.",
	}, []string{"state"})

	// SubscriptionReconnects counts websocket (re)connections of the push channel.
	SubscriptionReconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "charging_client_subscription_reconnects_total",
		Help: "Total number of push channel (re)connections.",
	})

	// ReconcileApplies counts snapshot patches applied by the reconciliation engine, labeled by source (fetch, event).
	ReconcileApplies = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "charging_client_reconcile_applies_total",
		Help: "Total number of patches applied to the session snapshot.",
	}, []string{"source"})

	// OfflineNotices counts rate-limited offline notices surfaced to the user.
	OfflineNotices = promauto.NewCounter(prometheus.CounterOpts{
		Name: "charging_client_offline_notices_total",
		Help: "Total number of offline notices shown to the user.",
	})
)
