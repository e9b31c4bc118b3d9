// Package metrics exposes the service's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ImportedRates counts reconciled observations per currency and outcome
	// (new, updated, skipped).
	ImportedRates = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fxrates_import_rates_total",
		Help: "Observations reconciled by import runs",
	}, []string{"currency", "outcome"})

	// ImportRuns counts per-series import completions by status.
	ImportRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fxrates_import_runs_total",
		Help: "Per-series import completions",
	}, []string{"currency", "status"})

	// ProviderRequestDuration observes upstream call latency.
	ProviderRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fxrates_provider_request_seconds",
		Help:    "Upstream provider request duration",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint", "status"})

	// CacheRequests counts rates-cache lookups by result (hit, miss, error).
	CacheRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fxrates_cache_requests_total",
		Help: "Rates cache lookups",
	}, []string{"result"})

	// CacheEvictions counts full-namespace evictions.
	CacheEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fxrates_cache_evictions_total",
		Help: "Rates cache evict-all operations",
	})

	// OutboxPending gauges events awaiting dispatch at the last poll.
	OutboxPending = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fxrates_outbox_pending",
		Help: "Outbox events with a null completion date",
	})

	// OutboxDispatches counts listener invocations by status.
	OutboxDispatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fxrates_outbox_dispatches_total",
		Help: "Outbox listener dispatches",
	}, []string{"listener", "status"})

	// BrokerMessages counts broker traffic by direction and status.
	BrokerMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fxrates_broker_messages_total",
		Help: "Broker messages published and consumed",
	}, []string{"direction", "status"})

	// ScheduledRuns counts scheduler fires by outcome
	// (executed, lease_held, exhausted).
	ScheduledRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fxrates_scheduled_runs_total",
		Help: "Scheduled import fires",
	}, []string{"outcome"})
)
