package observability

import (
	"context"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/yungbote/signals-backend/internal/pkg/logger"
)

// Metrics is the engine's Prometheus surface. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	reg *prometheus.Registry

	apiRequests *prometheus.CounterVec
	apiLatency  *prometheus.HistogramVec
	apiInflight prometheus.Gauge

	decisions     *prometheus.CounterVec
	judgeCalls    *prometheus.CounterVec
	judgeLatency  prometheus.Histogram
	judgeCost     prometheus.Counter
	feedback      *prometheus.CounterVec
	recomputes    *prometheus.CounterVec
	retentionRows prometheus.Counter

	pgStats   *prometheus.GaugeVec
	redisUp   prometheus.Gauge
	redisPing prometheus.Gauge
}

var (
	initOnce sync.Once
	instance *Metrics
)

func Enabled() bool {
	v := strings.TrimSpace(os.Getenv("METRICS_ENABLED"))
	if v == "" {
		return false
	}
	return strings.EqualFold(v, "true") || v == "1" || strings.EqualFold(v, "yes")
}

func Current() *Metrics {
	return instance
}

func scrapeInterval() time.Duration {
	v := strings.TrimSpace(os.Getenv("METRICS_SCRAPE_INTERVAL_SECONDS"))
	if v == "" {
		return 10 * time.Second
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 10 * time.Second
	}
	return time.Duration(n) * time.Second
}

// Init builds the process-wide metrics when METRICS_ENABLED is set.
func Init(log *logger.Logger) *Metrics {
	if !Enabled() {
		return nil
	}
	initOnce.Do(func() {
		instance = New()
		if log != nil {
			log.Info("prometheus metrics initialized")
		}
	})
	return instance
}

// New returns metrics on a private registry.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		apiRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signals_api_requests_total",
			Help: "API requests by method/route/status.",
		}, []string{"method", "route", "status"}),
		apiLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "signals_api_request_duration_seconds",
			Help:    "API request latency in seconds by method/route.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"method", "route"}),
		apiInflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signals_api_inflight_requests",
			Help: "In-flight API requests.",
		}),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signals_decisions_total",
			Help: "Persisted scoring decisions by method/passed/judge fallback.",
		}, []string{"method", "passed", "judge_fallback"}),
		judgeCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signals_judge_calls_total",
			Help: "Judge evaluations by outcome.",
		}, []string{"outcome"}),
		judgeLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "signals_judge_duration_seconds",
			Help:    "Judge evaluation latency including retries.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 45},
		}),
		judgeCost: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signals_judge_cost_usd_total",
			Help: "Estimated cumulative judge spend in USD.",
		}),
		feedback: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signals_feedback_total",
			Help: "Feedback events by action/outcome.",
		}, []string{"action", "outcome"}),
		recomputes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signals_centroid_recompute_total",
			Help: "Centroid recomputes by status.",
		}, []string{"status"}),
		retentionRows: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signals_retention_deleted_total",
			Help: "Unactioned decisions removed by retention cleanup.",
		}),
		pgStats: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "signals_db_pool",
			Help: "Database pool stats by stat name.",
		}, []string{"stat"}),
		redisUp: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signals_redis_up",
			Help: "Whether the lock redis answered the last ping.",
		}),
		redisPing: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signals_redis_ping_seconds",
			Help: "Latency of the last redis ping.",
		}),
	}
	m.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.apiRequests, m.apiLatency, m.apiInflight,
		m.decisions, m.judgeCalls, m.judgeLatency, m.judgeCost,
		m.feedback, m.recomputes, m.retentionRows,
		m.pgStats, m.redisUp, m.redisPing,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// Middleware records request count, latency and in-flight requests.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		start := time.Now()
		m.apiInflight.Inc()
		defer m.apiInflight.Dec()

		c.Next()

		m.ObserveAPI(c.Request.Method, c.FullPath(), strconv.Itoa(c.Writer.Status()), time.Since(start))
	}
}

func (m *Metrics) ObserveAPI(method, route, status string, dur time.Duration) {
	if m == nil {
		return
	}
	if method == "" {
		method = "UNKNOWN"
	}
	if route == "" {
		route = "unknown"
	}
	if status == "" {
		status = "0"
	}
	m.apiRequests.WithLabelValues(method, route, status).Inc()
	m.apiLatency.WithLabelValues(method, route).Observe(dur.Seconds())
}

func (m *Metrics) ObserveDecision(method string, passed bool, judgeFallback bool) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(method, strconv.FormatBool(passed), strconv.FormatBool(judgeFallback)).Inc()
}

func (m *Metrics) ObserveJudge(outcome string, costUSD float64, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.judgeCalls.WithLabelValues(outcome).Inc()
	m.judgeLatency.Observe(elapsed.Seconds())
	if costUSD > 0 {
		m.judgeCost.Add(costUSD)
	}
}

func (m *Metrics) ObserveFeedback(action, outcome string) {
	if m == nil {
		return
	}
	m.feedback.WithLabelValues(action, outcome).Inc()
}

func (m *Metrics) ObserveRecompute(recomputed, failed int) {
	if m == nil {
		return
	}
	m.recomputes.WithLabelValues("ok").Add(float64(recomputed))
	m.recomputes.WithLabelValues("failed").Add(float64(failed))
}

func (m *Metrics) ObserveRetention(deleted int64) {
	if m == nil || deleted <= 0 {
		return
	}
	m.retentionRows.Add(float64(deleted))
}

func (m *Metrics) StartPostgresCollector(ctx context.Context, log *logger.Logger, db *gorm.DB) {
	if m == nil || db == nil {
		return
	}
	interval := scrapeInterval()
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sqlDB, err := db.DB()
				if err != nil {
					if log != nil {
						log.Warn("metrics: db stats unavailable", "error", err)
					}
					continue
				}
				stats := sqlDB.Stats()
				m.pgStats.WithLabelValues("open_connections").Set(float64(stats.OpenConnections))
				m.pgStats.WithLabelValues("in_use").Set(float64(stats.InUse))
				m.pgStats.WithLabelValues("idle").Set(float64(stats.Idle))
				m.pgStats.WithLabelValues("wait_count").Set(float64(stats.WaitCount))
				m.pgStats.WithLabelValues("wait_duration_seconds").Set(stats.WaitDuration.Seconds())
				m.pgStats.WithLabelValues("max_open_connections").Set(float64(stats.MaxOpenConnections))
			}
		}
	}()
}

// StartRedisCollector pings the lock redis on the scrape interval.
func (m *Metrics) StartRedisCollector(ctx context.Context, log *logger.Logger, rdb redis.UniversalClient) {
	if m == nil || rdb == nil {
		return
	}
	interval := scrapeInterval()
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				start := time.Now()
				if err := rdb.Ping(ctx).Err(); err != nil {
					m.redisUp.Set(0)
					if log != nil {
						log.Warn("metrics: redis ping failed", "error", err)
					}
					continue
				}
				m.redisUp.Set(1)
				m.redisPing.Set(time.Since(start).Seconds())
			}
		}
	}()
}
