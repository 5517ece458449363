// Package observability registers the Prometheus metrics exposed on /metrics.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	subscriptionsActive = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "tripboard",
		Subsystem: "live",
		Name:      "subscriptions_active",
		Help:      "Number of live query subscriptions currently registered per collection.",
	}, []string{"collection"})

	snapshotsDelivered = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tripboard",
		Subsystem: "live",
		Name:      "snapshots_delivered_total",
		Help:      "Number of full result snapshots pushed to subscribers per collection.",
	}, []string{"collection"})

	subscriptionErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tripboard",
		Subsystem: "live",
		Name:      "subscription_errors_total",
		Help:      "Number of live queries terminated by a store error.",
	}, []string{"collection"})

	mutationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tripboard",
		Subsystem: "repository",
		Name:      "mutations_total",
		Help:      "Number of store mutations issued by the repositories, by collection and operation.",
	}, []string{"collection", "op"})
)

func init() {
	prometheus.MustRegister(subscriptionsActive, snapshotsDelivered, subscriptionErrors, mutationsTotal)
}

// SubscriptionOpened records a newly registered live query.
func SubscriptionOpened(collection string) {
	subscriptionsActive.WithLabelValues(collection).Inc()
}

// SubscriptionClosed records a torn-down live query.
func SubscriptionClosed(collection string) {
	subscriptionsActive.WithLabelValues(collection).Dec()
}

// SnapshotDelivered counts one pushed result set.
func SnapshotDelivered(collection string) {
	snapshotsDelivered.WithLabelValues(collection).Inc()
}

// SubscriptionFailed counts a live query ended by a terminal store error.
func SubscriptionFailed(collection string) {
	subscriptionErrors.WithLabelValues(collection).Inc()
}

// RecordMutation counts one repository write against the store.
func RecordMutation(collection, op string) {
	mutationsTotal.WithLabelValues(collection, op).Inc()
}
