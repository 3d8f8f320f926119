// Package metrics exposes Prometheus collectors for the data plane.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Fetcher metrics
	fetchRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "programista_fetch_requests_total",
		Help: "Outbound HTTP requests by method and outcome",
	}, []string{"method", "outcome"}) // outcome=2xx|4xx|5xx|error

	fetchCacheTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "programista_fetch_cache_total",
		Help: "Fetch cache lookups by result",
	}, []string{"result"}) // result=hit|miss|bypass

	// KV cache metrics
	kvOpsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "programista_kv_operations_total",
		Help: "KV cache operations by kind and result",
	}, []string{"op", "result"}) // op=get|set|delete|prune result=ok|miss|error

	// Search index metrics
	indexItemsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "programista_index_items_total",
		Help: "Search index item upserts by outcome",
	}, []string{"outcome"}) // outcome=indexed|skipped|error

	indexQueriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "programista_index_queries_total",
		Help: "Local search queries executed",
	})

	// Prefetch metrics
	prefetchRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "programista_prefetch_runs_total",
		Help: "Full sync runs by terminal state",
	}, []string{"state"}) // state=finished|cancelled

	prefetchErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "programista_prefetch_errors_total",
		Help: "Errors counted during prefetch by stage",
	}, []string{"stage"})

	// Provider pack metrics
	packUpdatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "programista_pack_updates_total",
		Help: "Provider pack update attempts by kind and outcome",
	}, []string{"kind", "outcome"}) // outcome=updated|current|error

	packLoadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "programista_pack_loads_total",
		Help: "Provider pack loads by kind and outcome",
	}, []string{"kind", "outcome"}) // outcome=loaded|none|error

	// Hub metrics
	hubRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "programista_hub_requests_total",
		Help: "Hub API calls by endpoint and outcome",
	}, []string{"endpoint", "outcome"}) // endpoint=register|search|details outcome=ok|auth_retry|error
)

func IncFetchRequest(method, outcome string) {
	fetchRequestsTotal.WithLabelValues(method, outcome).Inc()
}

func IncFetchCache(result string) { fetchCacheTotal.WithLabelValues(result).Inc() }

func IncKVOp(op, result string) { kvOpsTotal.WithLabelValues(op, result).Inc() }

func IncIndexItems(outcome string, n int) {
	indexItemsTotal.WithLabelValues(outcome).Add(float64(n))
}

func IncIndexQuery() { indexQueriesTotal.Inc() }

func IncPrefetchRun(state string)   { prefetchRunsTotal.WithLabelValues(state).Inc() }
func IncPrefetchError(stage string) { prefetchErrorsTotal.WithLabelValues(stage).Inc() }

func IncPackUpdate(kind, outcome string) {
	packUpdatesTotal.WithLabelValues(kind, outcome).Inc()
}
func IncPackLoad(kind, outcome string) { packLoadsTotal.WithLabelValues(kind, outcome).Inc() }

func IncHubRequest(endpoint, outcome string) {
	hubRequestsTotal.WithLabelValues(endpoint, outcome).Inc()
}
