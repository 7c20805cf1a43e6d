// Package metrics exposes Prometheus collectors for scraping and persistence.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	fetchAttemptsTotal    *prometheus.CounterVec
	fetchRetriesTotal     prometheus.Counter
	statsFieldsTotal      *prometheus.CounterVec
	rowsInsertedTotal     *prometheus.CounterVec
	batchesTotal          *prometheus.CounterVec
	batchDurationSeconds  *prometheus.HistogramVec
	archivedPagesTotal    *prometheus.CounterVec
	searchResultsReturned prometheus.Histogram
	httpRequestsTotal     *prometheus.CounterVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		fetchAttemptsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "falchooser_fetch_attempts_total",
				Help: "Total number of HTTP GET attempts, labeled by status class.",
			},
			[]string{"status"},
		)

		fetchRetriesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "falchooser_fetch_retries_total",
				Help: "Total number of retries issued after a failed attempt.",
			},
		)

		statsFieldsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "falchooser_stats_fields_total",
				Help: "Statistics fields extracted from stats pages, labeled by field and null-ness.",
			},
			[]string{"field", "null"},
		)

		rowsInsertedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "falchooser_rows_inserted_total",
				Help: "Rows committed to the database, labeled by table.",
			},
			[]string{"table"},
		)

		batchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "falchooser_batches_total",
				Help: "Batches processed, labeled by operation and outcome.",
			},
			[]string{"operation", "outcome"},
		)

		batchDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "falchooser_batch_duration_seconds",
				Help:    "Histogram of batch durations, labeled by operation.",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
			},
			[]string{"operation"},
		)

		archivedPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "falchooser_archived_pages_total",
				Help: "Raw stats pages written to the archive, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		searchResultsReturned = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "falchooser_search_results",
				Help:    "Number of candidates returned per title search.",
				Buckets: []float64{0, 1, 2, 5, 10, 20, 50},
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "falchooser_http_requests_total",
				Help: "Requests served by the metrics listener, labeled by route and status code.",
			},
			[]string{"route", "code"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	Init()
	return promhttp.Handler()
}

// StatusClass buckets an HTTP status code ("2xx", "4xx", ...). Zero means no response.
func StatusClass(code int) string {
	if code <= 0 {
		return "error"
	}
	return strconv.Itoa(code/100) + "xx"
}

// ObserveFetch records one GET attempt.
func ObserveFetch(statusCode int) {
	Init()
	fetchAttemptsTotal.WithLabelValues(StatusClass(statusCode)).Inc()
}

// ObserveRetry records a retry after a failed attempt.
func ObserveRetry() {
	Init()
	fetchRetriesTotal.Inc()
}

// ObserveField records one extracted statistics field.
func ObserveField(field string, null bool) {
	Init()
	statsFieldsTotal.WithLabelValues(field, strconv.FormatBool(null)).Inc()
}

// ObserveRows adds committed rows for a table.
func ObserveRows(table string, n int) {
	Init()
	if n > 0 {
		rowsInsertedTotal.WithLabelValues(table).Add(float64(n))
	}
}

// ObserveBatch records the outcome and duration of a batch operation.
func ObserveBatch(operation, outcome string, duration time.Duration) {
	Init()
	batchesTotal.WithLabelValues(operation, outcome).Inc()
	batchDurationSeconds.WithLabelValues(operation).Observe(duration.Seconds())
}

// ObserveArchive records an archive write.
func ObserveArchive(ok bool) {
	Init()
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	archivedPagesTotal.WithLabelValues(outcome).Inc()
}

// ObserveSearch records how many candidates a title search returned.
func ObserveSearch(results int) {
	Init()
	searchResultsReturned.Observe(float64(results))
}

// ObserveHTTPRequest records one request served by the metrics listener.
func ObserveHTTPRequest(route string, code int) {
	Init()
	httpRequestsTotal.WithLabelValues(route, strconv.Itoa(code)).Inc()
}
