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
		Namespace: "audiotour",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total HTTP requests processed",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "audiotour",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency in seconds",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"method", "path"})

	// Player metrics
	PositionSamples = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "audiotour",
		Subsystem: "player",
		Name:      "position_samples_total",
		Help:      "Total position samples received from the location provider",
	})

	GeofenceTriggers = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "audiotour",
		Subsystem: "player",
		Name:      "stop_triggers_total",
		Help:      "Total stop activations by trigger reason",
	}, []string{"reason"})

	StopsCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "audiotour",
		Subsystem: "player",
		Name:      "stops_completed_total",
		Help:      "Total stops whose narration played to the end",
	})

	LoadErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "audiotour",
		Subsystem: "player",
		Name:      "load_errors_total",
		Help:      "Total narration load failures",
	})

	LoadDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "audiotour",
		Subsystem: "player",
		Name:      "load_duration_seconds",
		Help:      "Time spent loading narration assets",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	})

	ProgressSaves = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "audiotour",
		Subsystem: "player",
		Name:      "progress_saves_total",
		Help:      "Total progress save attempts by result",
	}, []string{"result"})

	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "audiotour",
		Subsystem: "player",
		Name:      "active_sessions",
		Help:      "Player sessions currently running",
	})

	ActiveWebSockets = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "audiotour",
		Subsystem: "ws",
		Name:      "active_connections",
		Help:      "Current number of active WebSocket connections",
	})

	CacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "audiotour",
		Subsystem: "cache",
		Name:      "hits_total",
		Help:      "Total cache hits",
	}, []string{"operation"})

	CacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "audiotour",
		Subsystem: "cache",
		Name:      "misses_total",
		Help:      "Total cache misses",
	}, []string{"operation"})

	ProgressSynced = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "audiotour",
		Subsystem: "sync",
		Name:      "progress_synced_total",
		Help:      "Total progress snapshots replicated to the central store",
	}, []string{"result"})

	// Database pool metrics
	DBPoolConnsOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "audiotour",
		Subsystem: "db",
		Name:      "pool_conns_open",
		Help:      "Total connections open in the database pool",
	})

	DBPoolConnsAcquired = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "audiotour",
		Subsystem: "db",
		Name:      "pool_conns_acquired",
		Help:      "Connections currently acquired from the database pool",
	})

	DBPoolConnsIdle = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "audiotour",
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

		path := c.Route().Path
		if path == "" {
			path = c.Path()
		}
		method := c.Method()

		httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(c.Response().StatusCode())).Inc()
		httpRequestDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())

		return err
	}
}

// Handler returns a Fiber handler serving Prometheus /metrics endpoint.
func Handler() fiber.Handler {
	handler := fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler())
	return func(c *fiber.Ctx) error {
		handler(c.Context())
		return nil
	}
}

// UpdateDBPoolMetrics updates database pool gauges from pgx pool stats.
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
