// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// MessagesTotal tracks messages accepted by the API.
	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messages_total",
			Help: "Total messages stored",
		},
		[]string{"table"},
	)

	// ConversationsTotal tracks conversations created.
	ConversationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "conversations_total",
			Help: "Total conversations created",
		},
	)

	// FeedEventsPublished tracks change events published to the feed.
	FeedEventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feed_events_published_total",
			Help: "Change events published to the feed",
		},
		[]string{"table", "type"},
	)

	// FeedEventsApplied tracks change events applied by synchronizers.
	FeedEventsApplied = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feed_events_applied_total",
			Help: "Change events applied by client synchronizers",
		},
		[]string{"table", "type"},
	)

	// FeedSubscriptionsActive tracks live change-feed subscriptions.
	FeedSubscriptionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "feed_subscriptions_active",
			Help: "Number of active change-feed subscriptions",
		},
	)

	// SendsTotal tracks optimistic sends by outcome.
	SendsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_sends_total",
			Help: "Optimistic sends by outcome",
		},
		[]string{"outcome"},
	)

	// StoreQueryDuration tracks store query duration.
	StoreQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "store_query_duration_seconds",
			Help:    "Store query duration in seconds",
			Buckets: []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"query"},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordSend records the outcome of an optimistic send.
func RecordSend(outcome string) {
	SendsTotal.WithLabelValues(outcome).Inc()
}

// IncrementSubscriptions increments the active subscription count.
func IncrementSubscriptions() {
	FeedSubscriptionsActive.Inc()
}

// DecrementSubscriptions decrements the active subscription count.
func DecrementSubscriptions() {
	FeedSubscriptionsActive.Dec()
}
