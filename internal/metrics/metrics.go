// Package metrics exposes Prometheus collectors for catalog ingestion runs.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Discovery outcomes.
const (
	OutcomeLive     = "live"
	OutcomeFallback = "fallback"
	OutcomeEmpty    = "empty"
)

var (
	discoveryResultsTotal         *prometheus.CounterVec
	batchFetchesTotal             *prometheus.CounterVec
	itemsExtractedTotal           prometheus.Counter
	embeddingsTotal               *prometheus.CounterVec
	rowsPersistedTotal            *prometheus.CounterVec
	rowsFailedTotal               prometheus.Counter
	fetchRequestsTotal            *prometheus.CounterVec
	fetchBytesTotal               *prometheus.CounterVec
	httpRequestsTotal             *prometheus.CounterVec
	httpRequestDurationSeconds    *prometheus.HistogramVec
	embeddingWorkersActive        prometheus.Gauge
	catalogRateLimitDelaysSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init registers the collectors with the default registry.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		discoveryResultsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_discovery_results_total",
				Help: "Category discoveries, labeled by the strategy that answered and whether it was live data or the static fallback.",
			},
			[]string{"strategy", "outcome"},
		)

		batchFetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_batch_fetches_total",
				Help: "Product batch requests, labeled by status.",
			},
			[]string{"status"},
		)

		itemsExtractedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "catalog_items_extracted_total",
				Help: "Raw product items extracted from batch responses.",
			},
		)

		embeddingsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_embeddings_total",
				Help: "Embedding attempts per image, labeled by final outcome.",
			},
			[]string{"outcome"},
		)

		rowsPersistedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_rows_persisted_total",
				Help: "Rows upserted, labeled by whether they went in a batch or the per-row fallback.",
			},
			[]string{"mode"},
		)

		rowsFailedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "catalog_rows_failed_total",
				Help: "Rows that failed validation or every upsert attempt.",
			},
		)

		fetchRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_fetch_requests_total",
				Help: "Outbound fetches, labeled by site and status.",
			},
			[]string{"site", "status"},
		)

		fetchBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_fetch_bytes_total",
				Help: "Bytes fetched, labeled by site.",
			},
			[]string{"site"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of ops HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of ops HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)

		embeddingWorkersActive = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "catalog_embedding_workers_active",
				Help: "Embedding jobs currently running.",
			},
		)

		catalogRateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "catalog_rate_limit_delays_seconds",
				Help:    "Histogram of rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
		)
	})
}

// SanitizeSite extracts a lowercase hostname for use as a label.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveDiscovery records which strategy produced a category's identifiers.
func ObserveDiscovery(strategy, outcome string) {
	Init()
	discoveryResultsTotal.WithLabelValues(strategy, outcome).Inc()
}

// ObserveBatch records a batch fetch and the number of items it yielded.
func ObserveBatch(status string, items int) {
	Init()
	batchFetchesTotal.WithLabelValues(status).Inc()
	if items > 0 {
		itemsExtractedTotal.Add(float64(items))
	}
}

// ObserveEmbedding records the outcome of one embedding generation.
func ObserveEmbedding(outcome string) {
	Init()
	embeddingsTotal.WithLabelValues(outcome).Inc()
}

// ObservePersisted records rows written through mode ("batch" or "row").
func ObservePersisted(mode string, rows int) {
	Init()
	rowsPersistedTotal.WithLabelValues(mode).Add(float64(rows))
}

// ObserveRowFailures records rows that were dropped before or during persistence.
func ObserveRowFailures(rows int) {
	Init()
	rowsFailedTotal.Add(float64(rows))
}

// ObserveFetch records an outbound request.
func ObserveFetch(site string, status string, bytesFetched int) {
	Init()
	sanitizedSite := SanitizeSite(site)
	fetchRequestsTotal.WithLabelValues(sanitizedSite, status).Inc()
	if bytesFetched > 0 {
		fetchBytesTotal.WithLabelValues(sanitizedSite).Add(float64(bytesFetched))
	}
}

// ObserveHTTPRequest increments the ops server request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// IncEmbeddingWorkers increments the active embedding workers gauge.
func IncEmbeddingWorkers() {
	Init()
	embeddingWorkersActive.Inc()
}

// DecEmbeddingWorkers decrements the active embedding workers gauge.
func DecEmbeddingWorkers() {
	Init()
	embeddingWorkersActive.Dec()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	Init()
	catalogRateLimitDelaysSeconds.WithLabelValues(domain).Observe(duration.Seconds())
}
