// Package metrics registers the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// LeadsImported counts leads inserted, by data type.
	LeadsImported = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leads_imported_total",
			Help: "Leads inserted, by data type.",
		},
		[]string{"data_type"},
	)

	// LeadsSkipped counts payloads rejected during ingest, by matched signal
	// or "validation".
	LeadsSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leads_skipped_total",
			Help: "Lead payloads skipped during ingest, by reason.",
		},
		[]string{"reason"},
	)

	// CleanupDeleted counts leads removed by cleanup, by verdict.
	CleanupDeleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leads_cleanup_deleted_total",
			Help: "Leads deleted by cleanup, by verdict.",
		},
		[]string{"verdict"},
	)

	// CleanupDeleteErrors counts failed deletes during cleanup, by whether
	// the failure looked transient.
	CleanupDeleteErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leads_cleanup_delete_errors_total",
			Help: "Lead deletes that failed during cleanup.",
		},
		[]string{"kind"},
	)

	// PageFetches counts paginated reads, by whether a cursor was supplied.
	PageFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leads_page_fetches_total",
			Help: "Lead page fetches, by cursor presence.",
		},
		[]string{"cursor"},
	)

	// ProbeFailOpen counts hasMore probes that failed and reported true.
	ProbeFailOpen = promauto.NewCounter(prometheus.CounterOpts{
		Name: "leads_page_probe_fail_open_total",
		Help: "Pagination hasMore probes that failed open.",
	})

	// EmbeddingsCleared counts embedding fields cleared.
	EmbeddingsCleared = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leads_embeddings_cleared_total",
			Help: "Lead embeddings cleared, by index.",
		},
		[]string{"index"},
	)

	// EmbeddingClearErrors counts failed embedding clears.
	EmbeddingClearErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "leads_embedding_clear_errors_total",
		Help: "Lead embedding clears that failed.",
	})

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leads_http_requests_total",
			Help: "HTTP requests served.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "leads_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// Middleware records request count and duration per route pattern. Labels
// use the chi pattern ("/leads/{id}") so ids never become label values.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)

		path := routePattern(r)
		httpRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(rw.status)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
