// Package metrics provides Prometheus instrumentation for fbicheck.
//
// Collectors are registered with the default registry through promauto and
// recorded directly by the coordinator, spot tracker, and broker publisher.
// When metrics.listen is configured the daemon serves them with promhttp.
package metrics
