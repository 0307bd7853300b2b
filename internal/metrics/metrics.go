// Package metrics provides Prometheus instrumentation for the simulation
// service.
package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// TicksTotal counts advanced simulation months, partitioned by the macro
	// phase the tick ended in.
	TicksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "echopolis_ticks_total",
		Help: "Total number of simulated months advanced",
	}, []string{"phase"})

	// TickLatency tracks how long one advance takes, by kind (tick or day).
	TickLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "echopolis_advance_latency_seconds",
		Help:    "Simulation advance latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind"})

	// ActiveSessions tracks the number of live sessions.
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "echopolis_active_sessions",
		Help: "Number of live simulation sessions",
	})

	// HaltedSessions counts sessions stopped by an invariant violation.
	HaltedSessions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "echopolis_halted_sessions_total",
		Help: "Sessions halted after an internal invariant violation",
	})

	// PositionsOpened counts opened positions by kind and asset class.
	PositionsOpened = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "echopolis_positions_opened_total",
		Help: "Total investment positions opened",
	}, []string{"kind", "class"})

	// PositionRejections counts position opens rejected by validation or
	// exposure limits.
	PositionRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "echopolis_position_rejections_total",
		Help: "Position opens rejected by validation or exposure limits",
	})

	// SettledAmount accumulates settled currency by type (accrued, matured).
	SettledAmount = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "echopolis_settled_amount_total",
		Help: "Cumulative currency settled by the ledger",
	}, []string{"type"})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "echopolis_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "echopolis_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "echopolis_http_request_duration_seconds",
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
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			path = rc.RoutePattern()
		}
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

// Hijack lets WebSocket upgrades pass through the middleware.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("metrics: response writer does not support hijacking")
	}
	w.status = http.StatusSwitchingProtocols
	return h.Hijack()
}
