package metrics

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	mutations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "slotkeeper",
			Name:      "mutations_total",
			Help:      "Count of availability mutations by operation and result.",
		},
		[]string{"op", "result"},
	)

	rollbacks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "slotkeeper",
			Name:      "mutation_rollbacks_total",
			Help:      "Count of optimistic updates reverted after a persistence failure.",
		},
		[]string{"op"},
	)

	persistenceErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "slotkeeper",
			Name:      "persistence_errors_total",
			Help:      "Count of failed store calls by operation.",
		},
		[]string{"op"},
	)

	daysResolved = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "slotkeeper",
			Name:      "days_resolved_total",
			Help:      "Count of resolved days by source.",
		},
		[]string{"source"},
	)

	monthLoads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "slotkeeper",
			Name:      "month_loads_total",
			Help:      "Count of range loads by result.",
		},
		[]string{"result"},
	)

	stalePatches = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "slotkeeper",
			Name:      "stale_patches_dropped_total",
			Help:      "Count of day entries dropped because newer data was already merged.",
		},
	)

	gateReady = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "slotkeeper",
			Name:      "engine_ready",
			Help:      "1 when the provider's engine passed its load gate.",
		},
		[]string{"provider"},
	)

	cacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "slotkeeper",
			Name:      "cache_lookups_total",
			Help:      "Range cache lookups by layer and outcome.",
		},
		[]string{"layer", "outcome"},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "slotkeeper",
			Name:      "http_requests_total",
			Help:      "HTTP API requests by route and status code.",
		},
		[]string{"route", "code"},
	)

	rateLimited = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "slotkeeper",
			Name:      "http_rate_limited_total",
			Help:      "Requests rejected by the per-client rate limiter.",
		},
	)

	activeSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "slotkeeper",
			Name:      "active_sessions",
			Help:      "Provider engines currently held in memory.",
		},
	)

	backups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "slotkeeper",
			Name:      "backups_total",
			Help:      "Database backups by result.",
		},
		[]string{"result"},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			mutations, rollbacks, persistenceErrors, daysResolved, monthLoads, stalePatches,
			gateReady, cacheLookups, httpRequests, rateLimited, activeSessions, backups,
		)
	})
}

func IncMutation(op, result string) {
	mutations.WithLabelValues(op, result).Inc()
}

func IncRollback(op string) {
	rollbacks.WithLabelValues(op).Inc()
}

func IncPersistenceError(op string) {
	persistenceErrors.WithLabelValues(op).Inc()
}

func IncDayResolved(source string) {
	daysResolved.WithLabelValues(source).Inc()
}

func IncMonthLoad(result string) {
	monthLoads.WithLabelValues(result).Inc()
}

func IncStalePatchDropped() {
	stalePatches.Inc()
}

func SetGateReady(providerID int64, ready bool) {
	v := 0.0
	if ready {
		v = 1
	}
	gateReady.WithLabelValues(strconv.FormatInt(providerID, 10)).Set(v)
}

func IncCacheLookup(layer, outcome string) {
	cacheLookups.WithLabelValues(layer, outcome).Inc()
}

func IncHTTPRequest(route string, code int) {
	httpRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
}

func IncRateLimited() {
	rateLimited.Inc()
}

func SetActiveSessions(n int) {
	activeSessions.Set(float64(n))
}

func IncBackup(result string) {
	backups.WithLabelValues(result).Inc()
}
