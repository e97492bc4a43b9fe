package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics stores Prometheus collectors used by the API, coordinator, and
// worker flows.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal      *prometheus.CounterVec
	httpRequestDuration    *prometheus.HistogramVec
	deliveriesSentTotal    *prometheus.CounterVec
	deliveriesFailedTotal  *prometheus.CounterVec
	deliverySendDuration   *prometheus.HistogramVec
	workerInflight         *prometheus.GaugeVec
	retryScheduledTotal    *prometheus.CounterVec
	schedulesPlannedTotal  *prometheus.CounterVec
	pendingRetryQueueDepth prometheus.Gauge
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "richcast",
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests processed by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "richcast",
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds by method and path.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		deliveriesSentTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "richcast",
				Name:      "deliveries_sent_total",
				Help:      "Total number of rich message deliveries pushed successfully.",
			},
			[]string{"category"},
		),
		deliveriesFailedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "richcast",
				Name:      "deliveries_failed_total",
				Help:      "Total number of delivery attempts that failed, by error kind.",
			},
			[]string{"category", "kind"},
		),
		deliverySendDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "richcast",
				Name:      "delivery_send_duration_seconds",
				Help:      "Push transport duration in seconds grouped by category.",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
			},
			[]string{"category"},
		),
		workerInflight: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "richcast",
				Name:      "worker_inflight",
				Help:      "Current number of in-flight delivery executions grouped by category.",
			},
			[]string{"category"},
		),
		retryScheduledTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "richcast",
				Name:      "retry_scheduled_total",
				Help:      "Total number of deliveries scheduled for retry.",
			},
			[]string{"category"},
		),
		schedulesPlannedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "richcast",
				Name:      "schedules_planned_total",
				Help:      "Total number of timezone delivery schedules planned.",
			},
			[]string{"category"},
		),
		pendingRetryQueueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "richcast",
				Name:      "pending_retry_queue_depth",
				Help:      "Current number of deliveries waiting in the retry queue.",
			},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.deliveriesSentTotal,
		m.deliveriesFailedTotal,
		m.deliverySendDuration,
		m.workerInflight,
		m.retryScheduledTotal,
		m.schedulesPlannedTotal,
		m.pendingRetryQueueDepth,
	)

	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) HTTPMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		path := routePath(c)
		// Avoid self-scrape noise for request counters.
		if path == "/metrics" {
			return err
		}

		m.recordHTTPRequest(c.Method(), path, statusFromResult(c, err), time.Since(start))
		return err
	}
}

func (m *Metrics) IncDeliverySent(category string) {
	if m == nil {
		return
	}
	m.deliveriesSentTotal.WithLabelValues(normalizeCategory(category)).Inc()
}

func (m *Metrics) IncDeliveryFailed(category string, kind string) {
	if m == nil {
		return
	}
	kindLabel := strings.TrimSpace(strings.ToLower(kind))
	if kindLabel == "" {
		kindLabel = "unknown"
	}
	m.deliveriesFailedTotal.WithLabelValues(normalizeCategory(category), kindLabel).Inc()
}

func (m *Metrics) ObserveDeliverySendDuration(category string, duration time.Duration) {
	if m == nil {
		return
	}
	seconds := duration.Seconds()
	if seconds < 0 {
		seconds = 0
	}
	m.deliverySendDuration.WithLabelValues(normalizeCategory(category)).Observe(seconds)
}

func (m *Metrics) IncWorkerInFlight(category string) {
	if m == nil {
		return
	}
	m.workerInflight.WithLabelValues(normalizeCategory(category)).Inc()
}

func (m *Metrics) DecWorkerInFlight(category string) {
	if m == nil {
		return
	}
	m.workerInflight.WithLabelValues(normalizeCategory(category)).Dec()
}

func (m *Metrics) IncRetryScheduled(category string) {
	if m == nil {
		return
	}
	m.retryScheduledTotal.WithLabelValues(normalizeCategory(category)).Inc()
}

func (m *Metrics) IncSchedulesPlanned(category string) {
	if m == nil {
		return
	}
	m.schedulesPlannedTotal.WithLabelValues(normalizeCategory(category)).Inc()
}

func (m *Metrics) SetPendingRetryQueueDepth(depth int) {
	if m == nil {
		return
	}
	m.pendingRetryQueueDepth.Set(float64(depth))
}

func (m *Metrics) recordHTTPRequest(method string, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}

	methodLabel := strings.ToUpper(strings.TrimSpace(method))
	if methodLabel == "" {
		methodLabel = "UNKNOWN"
	}
	pathLabel := strings.TrimSpace(path)
	if pathLabel == "" {
		pathLabel = "unmatched"
	}

	m.httpRequestsTotal.WithLabelValues(methodLabel, pathLabel, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(methodLabel, pathLabel).Observe(duration.Seconds())
}

func normalizeCategory(category string) string {
	normalized := strings.TrimSpace(strings.ToLower(category))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}

func routePath(c *fiber.Ctx) string {
	if c == nil {
		return "unmatched"
	}

	if route := c.Route(); route != nil {
		if path := strings.TrimSpace(route.Path); path != "" {
			return path
		}
	}
	return "unmatched"
}

func statusFromResult(c *fiber.Ctx, err error) int {
	if err != nil {
		if fiberErr, ok := err.(*fiber.Error); ok {
			return fiberErr.Code
		}
		return fiber.StatusInternalServerError
	}

	if c == nil {
		return fiber.StatusOK
	}
	return c.Response().StatusCode()
}
