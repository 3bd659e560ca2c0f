package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "fbicheck"

// Coordinator metrics
var (
	TasksProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_processed_total",
			Help:      "Queue tasks handled by the coordinator",
		},
		[]string{"tier", "result"}, // result: reconciled, skipped, failed
	)

	ReconcileDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reconcile_duration_seconds",
			Help:      "Time spent reconciling one directory",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
	)

	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Tasks waiting in each queue tier",
		},
		[]string{"tier"},
	)

	DirectoriesEnqueued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "directories_enqueued_total",
			Help:      "New directories added to a queue tier",
		},
		[]string{"tier"},
	)
)

// Catalog metrics
var (
	SpotsAdvanced = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "spots_advanced_total",
			Help:      "Catalog spots handed to the crawler",
		},
	)

	CatalogDownloads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "catalog_downloads_total",
			Help:      "Spot catalog download attempts",
		},
		[]string{"result"}, // success, failure
	)
)

// Broker metrics
var (
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Change events published to the broker",
		},
		[]string{"action"},
	)

	BrokerReconnects = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broker_reconnects_total",
			Help:      "Broker reconnect attempts after a lost connection",
		},
	)
)

// ObserveQueueDepths records the current depth of each tier.
func ObserveQueueDepths[T ~string](depths map[T]int) {
	for tier, depth := range depths {
		QueueDepth.WithLabelValues(string(tier)).Set(float64(depth))
	}
}
