// Package metrics provides Prometheus instrumentation for the copy-trade
// engine.
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
	// EventsTotal counts source-trade events handled, by origin (kafka, http).
	EventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "copytrade_events_total",
		Help: "Source trade events processed",
	}, []string{"origin"})

	// CopyOutcomesTotal counts per-subscriber results by ledger status, plus
	// "duplicate" and "ignored" for attempts that leave no new row.
	CopyOutcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "copytrade_outcomes_total",
		Help: "Per-subscriber copy outcomes",
	}, []string{"outcome"})

	// ExecutionLatency tracks execution-service round trips.
	ExecutionLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "copytrade_execution_latency_seconds",
		Help:    "Order submission latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"result"})

	// DailyLimitRejections counts attempts skipped by the daily limit.
	DailyLimitRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "copytrade_daily_limit_rejections_total",
		Help: "Copy attempts rejected by the daily limit",
	})

	// MirroredVolume tracks submitted notional by side.
	MirroredVolume = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "copytrade_mirrored_volume_total",
		Help: "Cumulative size of executed mirrored orders",
	}, []string{"side"})

	// RecommendationsTotal counts recommend-mode fan-outs by publish result.
	RecommendationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "copytrade_recommendations_total",
		Help: "Recommendation notifications handed to the notifier",
	}, []string{"result"})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "copytrade_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, route, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "copytrade_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and route.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "copytrade_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware records request metrics. The path label is the chi route
// pattern, so user ids in URLs do not explode cardinality.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
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
