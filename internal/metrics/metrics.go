package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const pushPrefix = "/push/"

// HTTPCollector records read API traffic and push deliveries, and serves
// the shared registry.
type HTTPCollector struct {
	registry        *prometheus.Registry
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	inFlight        prometheus.Gauge
	pushDeliveries  *prometheus.CounterVec
}

// NewHTTPCollector creates the registry and registers the HTTP metrics.
func NewHTTPCollector() (*HTTPCollector, error) {
	c := &HTTPCollector{
		registry: prometheus.NewRegistry(),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "clipscope",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Latency of inbound requests by route pattern.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clipscope",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Inbound requests by route pattern.",
		}, []string{"method", "route", "status"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "clipscope",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Requests currently being served, push deliveries included.",
		}),
		pushDeliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clipscope",
			Subsystem: "trigger",
			Name:      "push_deliveries_total",
			Help:      "Push deliveries by trigger kind and result (ack, redeliver, rejected).",
		}, []string{"kind", "result"}),
	}

	for _, col := range []prometheus.Collector{c.requestDuration, c.requestTotal, c.inFlight, c.pushDeliveries} {
		if err := c.registry.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Registry returns the registry backing the /metrics endpoint so other
// collectors can share it.
func (c *HTTPCollector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler returns an HTTP handler for exposing Prometheus metrics.
func (c *HTTPCollector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps a ServeMux-backed handler. Requests are labelled by
// the matched route pattern, so path ids never become label values.
func (c *HTTPCollector) InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		c.inFlight.Inc()
		defer c.inFlight.Dec()

		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)

		route := routeLabel(r.Pattern)
		status := strconv.Itoa(rw.status)
		c.requestTotal.WithLabelValues(r.Method, route, status).Inc()
		c.requestDuration.WithLabelValues(r.Method, route, status).Observe(time.Since(start).Seconds())

		if kind, ok := strings.CutPrefix(route, pushPrefix); ok {
			c.pushDeliveries.WithLabelValues(strings.ReplaceAll(kind, "-", "_"), pushResult(rw.status)).Inc()
		}
	})
}

// routeLabel strips the method from a ServeMux pattern. Requests that matched
// no route share one label.
func routeLabel(pattern string) string {
	if pattern == "" {
		return "unmatched"
	}
	if _, path, ok := strings.Cut(pattern, " "); ok {
		return path
	}
	return pattern
}

// pushResult maps a push response onto what the sender does next.
func pushResult(status int) string {
	switch {
	case status < 300:
		return "ack"
	case status >= 500:
		return "redeliver"
	default:
		return "rejected"
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (w *responseWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
