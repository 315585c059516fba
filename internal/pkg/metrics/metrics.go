package metrics

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

var (
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pklocator",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total HTTP requests processed",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "pklocator",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency in seconds",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"method", "path"})

	httpResponseSize = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "pklocator",
		Subsystem: "http",
		Name:      "response_size_bytes",
		Help:      "HTTP response size in bytes",
		Buckets:   prometheus.ExponentialBuckets(100, 10, 6),
	}, []string{"method", "path"})

	// Locator metrics
	FixesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pklocator",
		Subsystem: "locator",
		Name:      "fixes_processed_total",
		Help:      "Total location samples processed, by outcome",
	}, []string{"outcome"})

	FixesSuperseded = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "pklocator",
		Subsystem: "locator",
		Name:      "fixes_superseded_total",
		Help:      "Samples dropped because a newer one arrived",
	})

	LocateDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "pklocator",
		Subsystem: "locator",
		Name:      "locate_duration_seconds",
		Help:      "Duration of one nearest-PK match",
		Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	})

	CorrectionsApplied = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pklocator",
		Subsystem: "locator",
		Name:      "corrections_applied_total",
		Help:      "Total correction rules applied to a selected PK",
	}, []string{"line"})

	LocationErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pklocator",
		Subsystem: "source",
		Name:      "errors_total",
		Help:      "Location source failures by code",
	}, []string{"code"})

	SampleInterval = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "pklocator",
		Subsystem: "source",
		Name:      "sample_interval_seconds",
		Help:      "Desired interval between location samples",
	})

	ActiveWebSockets = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "pklocator",
		Subsystem: "ws",
		Name:      "active_connections",
		Help:      "Current number of active WebSocket connections",
	})

	// Line point cache
	CacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pklocator",
		Subsystem: "cache",
		Name:      "hits_total",
		Help:      "Total cache hits",
	}, []string{"tier"})

	CacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pklocator",
		Subsystem: "cache",
		Name:      "misses_total",
		Help:      "Total cache misses",
	}, []string{"tier"})

	CacheEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "pklocator",
		Subsystem: "cache",
		Name:      "evictions_total",
		Help:      "Line point sets evicted by capacity or age",
	})

	LineLoads = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pklocator",
		Subsystem: "cache",
		Name:      "line_loads_total",
		Help:      "Per-line point loads by result",
	}, []string{"result"})

	LineLoadDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "pklocator",
		Subsystem: "cache",
		Name:      "line_load_duration_seconds",
		Help:      "Duration of per-line point loads",
		Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
	})

	CacheSize = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "pklocator",
		Subsystem: "cache",
		Name:      "entries",
		Help:      "Line point sets currently cached",
	})

	// Database pool metrics
	DBPoolConnsOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "pklocator",
		Subsystem: "db",
		Name:      "pool_conns_open",
		Help:      "Total connections open in the database pool",
	})

	DBPoolConnsAcquired = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "pklocator",
		Subsystem: "db",
		Name:      "pool_conns_acquired",
		Help:      "Connections currently acquired from the database pool",
	})

	DBPoolConnsIdle = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "pklocator",
		Subsystem: "db",
		Name:      "pool_conns_idle",
		Help:      "Idle connections in the database pool",
	})
)

// Middleware records request metrics.
func Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Response().StatusCode())
		path := c.Route().Path
		if path == "" {
			path = c.Path()
		}
		method := c.Method()

		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpRequestDuration.WithLabelValues(method, path).Observe(duration)
		httpResponseSize.WithLabelValues(method, path).Observe(float64(len(c.Response().Body())))

		return err
	}
}

// Handler returns a Fiber handler serving Prometheus /metrics endpoint.
func Handler() fiber.Handler {
	handler := promhttp.Handler()
	return func(c *fiber.Ctx) error {
		fasthttpadaptor.NewFastHTTPHandler(handler)(c.Context())
		return nil
	}
}

// UpdateDBPoolMetrics updates database pool gauges from a pgxpool.Stat.
func UpdateDBPoolMetrics(stat interface{}) {
	type poolStat interface {
		AcquiredConns() int32
		IdleConns() int32
		TotalConns() int32
	}

	if s, ok := stat.(poolStat); ok {
		DBPoolConnsAcquired.Set(float64(s.AcquiredConns()))
		DBPoolConnsIdle.Set(float64(s.IdleConns()))
		DBPoolConnsOpen.Set(float64(s.TotalConns()))
	}
}
