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
		Namespace: "mapsync",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total HTTP requests processed",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "mapsync",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency in seconds",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"method", "path"})

	httpResponseSize = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "mapsync",
		Subsystem: "http",
		Name:      "response_size_bytes",
		Help:      "HTTP response size in bytes",
		Buckets:   prometheus.ExponentialBuckets(100, 10, 6),
	}, []string{"method", "path"})

	// Loader metrics
	QueriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mapsync",
		Subsystem: "loader",
		Name:      "queries_total",
		Help:      "Total Overpass queries issued, by outcome",
	}, []string{"outcome"})

	QueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "mapsync",
		Subsystem: "loader",
		Name:      "query_duration_seconds",
		Help:      "Duration of Overpass queries",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 180},
	}, []string{"outcome"})

	TriggersSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mapsync",
		Subsystem: "loader",
		Name:      "triggers_skipped_total",
		Help:      "Dispatch triggers that did not issue a query, by reason",
	}, []string{"reason"})

	QueryRunning = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "mapsync",
		Subsystem: "loader",
		Name:      "query_running",
		Help:      "1 while an Overpass query is in flight",
	})

	RetryCount = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "mapsync",
		Subsystem: "loader",
		Name:      "retry_count",
		Help:      "Current number of consecutive failed queries",
	})

	CachedBounds = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "mapsync",
		Subsystem: "loader",
		Name:      "cached_bounds",
		Help:      "Rectangles recorded in the zoom coverage cache",
	})

	FeaturesCommitted = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "mapsync",
		Subsystem: "loader",
		Name:      "features_committed",
		Help:      "Features in the most recently committed collection",
	})

	DataTimestamp = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "mapsync",
		Subsystem: "loader",
		Name:      "data_timestamp_seconds",
		Help:      "Server-reported data timestamp of the last committed query, as a Unix time",
	})

	ActiveWebSockets = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "mapsync",
		Subsystem: "ws",
		Name:      "active_connections",
		Help:      "Current number of active WebSocket connections",
	})

	CacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mapsync",
		Subsystem: "cache",
		Name:      "hits_total",
		Help:      "Total cache hits",
	}, []string{"operation"})

	CacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mapsync",
		Subsystem: "cache",
		Name:      "misses_total",
		Help:      "Total cache misses",
	}, []string{"operation"})

	// Database pool metrics
	DBPoolConnsOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "mapsync",
		Subsystem: "db",
		Name:      "pool_conns_open",
		Help:      "Total connections open in the database pool",
	})

	DBPoolConnsAcquired = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "mapsync",
		Subsystem: "db",
		Name:      "pool_conns_acquired",
		Help:      "Connections currently acquired from the database pool",
	})

	DBPoolConnsIdle = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "mapsync",
		Subsystem: "db",
		Name:      "pool_conns_idle",
		Help:      "Idle connections in the database pool",
	})

	DBPoolEmptyAcquires = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "mapsync",
		Subsystem: "db",
		Name:      "pool_empty_acquires",
		Help:      "Cumulative times a connection had to be established when acquiring from pool",
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
// It takes an interface so this package does not import pgxpool.
func UpdateDBPoolMetrics(stat interface{}) {
	type poolStat interface {
		AcquiredConns() int32
		IdleConns() int32
		TotalConns() int32
		EmptyAcquireCount() int64
	}

	if s, ok := stat.(poolStat); ok {
		DBPoolConnsAcquired.Set(float64(s.AcquiredConns()))
		DBPoolConnsIdle.Set(float64(s.IdleConns()))
		DBPoolConnsOpen.Set(float64(s.TotalConns()))
		DBPoolEmptyAcquires.Set(float64(s.EmptyAcquireCount()))
	}
}
