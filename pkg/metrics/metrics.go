// Package metrics implements the prometheus metrics of anti-reload.
// The vectors register with the default registry; the harness exposes them.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricNamespace     = "antireload"
	cacheSubsystem      = "cache"
	navigationSubsystem = "navigation"
	restoreSubsystem    = "restore"
)

// CacheLookups is a Counter of tracked requests by cache decision
var CacheLookups *prometheus.CounterVec

// CacheEvictions is a Counter of identities evicted from the response cache
var CacheEvictions *prometheus.CounterVec

// CacheStoreFailures is a Counter of persisted cache loads and saves that failed
var CacheStoreFailures *prometheus.CounterVec

// CacheEntries is a Gauge of the entries held by the response cache after its last save
var CacheEntries prometheus.Gauge

// NavigationTransitions is a Counter of navigation state machine transitions by target state
var NavigationTransitions *prometheus.CounterVec

// RestoreOutcomes is a Counter of finished scroll restorations by outcome
var RestoreOutcomes *prometheus.CounterVec

func init() {
	CacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricNamespace,
			Subsystem: cacheSubsystem,
			Name:      "lookups_total",
			Help:      "Count of tracked requests by cache decision.",
		},
		[]string{"result"},
	)

	CacheEvictions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricNamespace,
			Subsystem: cacheSubsystem,
			Name:      "evictions_total",
			Help:      "Count of identities evicted from the response cache.",
		},
		[]string{"reason"},
	)

	CacheStoreFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricNamespace,
			Subsystem: cacheSubsystem,
			Name:      "store_failures_total",
			Help:      "Count of persisted cache operations that failed.",
		},
		[]string{"op"},
	)

	CacheEntries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: metricNamespace,
			Subsystem: cacheSubsystem,
			Name:      "entries",
			Help:      "Number of entries in the response cache after the last save.",
		},
	)

	NavigationTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricNamespace,
			Subsystem: navigationSubsystem,
			Name:      "transitions_total",
			Help:      "Count of navigation state transitions by target state.",
		},
		[]string{"state"},
	)

	RestoreOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricNamespace,
			Subsystem: restoreSubsystem,
			Name:      "outcomes_total",
			Help:      "Count of finished scroll restorations by outcome.",
		},
		[]string{"outcome"},
	)

	prometheus.MustRegister(
		CacheLookups,
		CacheEvictions,
		CacheStoreFailures,
		CacheEntries,
		NavigationTransitions,
		RestoreOutcomes,
	)
}

// ObserveLookup records the cache decision for a tracked request
func ObserveLookup(result string) {
	CacheLookups.WithLabelValues(result).Inc()
}

// ObserveEvictions records evicted identities
func ObserveEvictions(reason string, count int) {
	if count > 0 {
		CacheEvictions.WithLabelValues(reason).Add(float64(count))
	}
}

// ObserveStoreFailure records a failed load or save of the persisted cache
func ObserveStoreFailure(op string) {
	CacheStoreFailures.WithLabelValues(op).Inc()
}

// ObserveCacheSize sets the entry gauge
func ObserveCacheSize(entries int) {
	CacheEntries.Set(float64(entries))
}

// ObserveTransition records a navigation state transition
func ObserveTransition(state string) {
	NavigationTransitions.WithLabelValues(state).Inc()
}

// ObserveRestore records the outcome of a scroll restoration
func ObserveRestore(outcome string) {
	RestoreOutcomes.WithLabelValues(outcome).Inc()
}
