// Package metrics holds the Prometheus collectors for the sync engine. The
// collectors are package-level and registered on the default registry; the
// watch daemon exposes them through Handler.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Label values.
const (
	ResultSuccess  = "success"
	ResultFailure  = "failure"
	ResultOffline  = "offline"
	ResultDeferred = "deferred"

	CacheHit     = "hit"
	CacheMiss    = "miss"
	CacheExpired = "expired"
	CacheOffline = "offline"
	CacheError   = "error"
)

var (
	pendingOperations = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "devfolio_sync_pending_operations",
		Help: "Number of operations waiting in the pending queue",
	})

	syncPassesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "devfolio_sync_passes_total",
		Help: "Total number of sync passes by result",
	}, []string{"result"})

	syncPassDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "devfolio_sync_pass_duration_seconds",
		Help:    "Duration of sync passes in seconds",
		Buckets: prometheus.DefBuckets,
	})

	operationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "devfolio_sync_operations_total",
		Help: "Total number of queued operations applied to the remote store, by kind and result",
	}, []string{"operation", "result"})

	cacheRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "devfolio_sync_cache_requests_total",
		Help: "Total number of cache reads by result",
	}, []string{"result"})

	remoteRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "devfolio_sync_remote_requests_total",
		Help: "Total number of HTTP requests sent to the remote document store, by method and status class",
	}, []string{"method", "status"})

	remoteRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "devfolio_sync_remote_retries_total",
		Help: "Total number of remote request retries",
	})

	breakerState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "devfolio_sync_remote_breaker_state",
		Help: "Remote circuit breaker state (0=closed, 1=half-open, 2=open)",
	})

	connectivityOnline = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "devfolio_sync_connectivity_online",
		Help: "1 when the connectivity monitor reports online, 0 otherwise",
	})

	connectivityTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "devfolio_sync_connectivity_transitions_total",
		Help: "Total number of online/offline transitions",
	}, []string{"to"})
)

// SetPendingOperations records the current queue depth.
func SetPendingOperations(n int) {
	pendingOperations.Set(float64(n))
}

// RecordSyncPass records a completed (or aborted) sync pass.
func RecordSyncPass(result string, d time.Duration) {
	syncPassesTotal.WithLabelValues(result).Inc()
	syncPassDuration.Observe(d.Seconds())
}

// RecordOperation records the outcome of one queued operation.
func RecordOperation(kind, result string) {
	operationsTotal.WithLabelValues(kind, result).Inc()
}

// RecordCacheRequest records one cache read.
func RecordCacheRequest(result string) {
	cacheRequestsTotal.WithLabelValues(result).Inc()
}

// RecordRemoteRequest records one HTTP round trip. status is the status code
// class ("2xx", "4xx", ...) or "error" for transport failures.
func RecordRemoteRequest(method, status string) {
	remoteRequestsTotal.WithLabelValues(method, status).Inc()
}

// RecordRemoteRetry records one retry of a remote request.
func RecordRemoteRetry() {
	remoteRetriesTotal.Inc()
}

// SetBreakerState records the circuit breaker state as 0, 1 or 2.
func SetBreakerState(state int) {
	breakerState.Set(float64(state))
}

// SetOnline records the connectivity state and counts the transition.
func SetOnline(online bool) {
	if online {
		connectivityOnline.Set(1)
		connectivityTransitions.WithLabelValues("online").Inc()

		return
	}

	connectivityOnline.Set(0)
	connectivityTransitions.WithLabelValues("offline").Inc()
}

// StatusClass maps an HTTP status code to its class label.
func StatusClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	case code >= 200:
		return "2xx"
	default:
		return "error"
	}
}

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
