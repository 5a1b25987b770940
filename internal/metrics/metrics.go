// Package metrics provides Prometheus instrumentation for the investment
// engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// QueueDepth tracks the current number of buffered submissions.
	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "invest_queue_depth",
		Help: "Number of submissions waiting in the queue",
	})

	// SubmissionsTotal counts processed submissions by result:
	// started, insufficient_funds, duplicate_option, unknown_option, error.
	SubmissionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "invest_submissions_total",
		Help: "Total submissions processed by the queue workers",
	}, []string{"result"})

	// SettlementsTotal counts matured commitments settled by the scanner.
	SettlementsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "invest_settlements_total",
		Help: "Total commitments settled at maturity",
	})

	// ScanDuration tracks how long one maturity scan takes.
	ScanDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "invest_scan_duration_seconds",
		Help:    "Duration of one maturity scan over all accounts",
		Buckets: prometheus.DefBuckets,
	})

	// WebSocketClients tracks connected WebSocket subscribers.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "invest_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "invest_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "invest_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Use the route pattern for path label to avoid high cardinality.
		path := r.URL.Path
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
