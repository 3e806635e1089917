// Package metrics registers the client's Prometheus collectors with the
// default registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "macrometric_client"

var (
	// SearchRequests counts dispatched searches by outcome:
	// ok, fallback, offline, failed, superseded.
	SearchRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_requests_total",
			Help:      "Food searches dispatched to the service, by outcome.",
		},
		[]string{"outcome"},
	)

	SearchCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_cache_hits_total",
			Help:      "Searches answered from a fresh cache entry.",
		},
	)

	SearchCacheEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_cache_evictions_total",
			Help:      "Cache entries evicted to stay within capacity.",
		},
	)

	// Renewals counts credential renewals by result: ok, rotated, rejected, error.
	Renewals = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "credential_renewals_total",
			Help:      "Access credential renewals triggered by a 401.",
		},
		[]string{"result"},
	)

	SessionsCleared = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_cleared_total",
			Help:      "Sessions ended because the service refused renewal or replay.",
		},
	)

	// Reconciliations counts diary refetches after mutations by result: ok, error, stale.
	Reconciliations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "diary_reconciliations_total",
			Help:      "Diary refetches issued after a mutation settled.",
		},
		[]string{"result"},
	)

	PendingMutations = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "diary_pending_mutations",
			Help:      "Diary mutations issued and not yet reconciled.",
		},
	)

	Online = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "online",
			Help:      "1 when the last health probe succeeded, 0 otherwise.",
		},
	)
)
