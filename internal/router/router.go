package router

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/time/rate"

	appointmenthandler "github.com/attendly/queue-api/internal/handler/appointment"
	healthhandler "github.com/attendly/queue-api/internal/handler/health"
	prometheushandler "github.com/attendly/queue-api/internal/handler/prometheus"
	queuehandler "github.com/attendly/queue-api/internal/handler/queue"
	reporthandler "github.com/attendly/queue-api/internal/handler/report"
	schedulerhandler "github.com/attendly/queue-api/internal/handler/scheduler"
	"github.com/attendly/queue-api/internal/middleware"
)

type Router struct {
	engine       *gin.Engine
	auth         *middleware.AuthMiddleware
	appointmentH *appointmenthandler.Handler
	queueH       *queuehandler.Handler
	reportH      *reporthandler.Handler
	schedulerH   *schedulerhandler.Handler
	healthH      *healthhandler.Handler
	metrics      *routerMetrics
}

type routerMetrics struct {
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	errorTotal      *prometheus.CounterVec
}

type Config struct {
	RateLimit     rate.Limit
	RateBurst     int
	CORSConfig    middleware.CORSConfig
	MetricsPrefix string
}

func New(
	auth *middleware.AuthMiddleware,
	appointmentH *appointmenthandler.Handler,
	queueH *queuehandler.Handler,
	reportH *reporthandler.Handler,
	schedulerH *schedulerhandler.Handler,
	healthH *healthhandler.Handler,
	config Config,
) *Router {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()

	r := &Router{
		engine:       engine,
		auth:         auth,
		appointmentH: appointmentH,
		queueH:       queueH,
		reportH:      reportH,
		schedulerH:   schedulerH,
		healthH:      healthH,
		metrics:      initRouterMetrics(config.MetricsPrefix),
	}

	engine.Use(
		middleware.Recovery(),
		middleware.RequestID(),
		middleware.Logger(),
		r.metricsMiddleware(),
	)

	engine.Use(middleware.CORS(config.CORSConfig))

	rateLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		Rate:  config.RateLimit,
		Burst: config.RateBurst,
	})
	engine.Use(rateLimiter.RateLimit())

	return r
}

func (r *Router) Setup() {
	r.healthH.RegisterRoutes(r.engine)
	prometheushandler.RegisterRoutes(r.engine)

	api := r.engine.Group("/api/v1")
	api.Use(func(c *gin.Context) {
		c.Header("X-API-Version", "1.0")
		c.Next()
	})

	staffOnly := r.auth.RequireStaff()

	r.appointmentH.RegisterRoutes(api, staffOnly)
	r.queueH.RegisterRoutes(api, staffOnly)
	r.reportH.RegisterRoutes(api, staffOnly)
	r.schedulerH.RegisterRoutes(api, staffOnly)
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}

func initRouterMetrics(prefix string) *routerMetrics {
	return &routerMetrics{
		requestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: prefix + "_request_duration_seconds",
				Help: "Duration of HTTP requests in seconds",
			},
			[]string{"method", "path", "status"},
		),
		requestTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: prefix + "_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		errorTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: prefix + "_errors_total",
				Help: "Total number of HTTP errors",
			},
			[]string{"method", "path", "type"},
		),
	}
}

func (r *Router) metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.FullPath()

		c.Next()

		status := fmt.Sprintf("%d", c.Writer.Status())
		duration := time.Since(start).Seconds()

		r.metrics.requestDuration.WithLabelValues(c.Request.Method, path, status).Observe(duration)
		r.metrics.requestTotal.WithLabelValues(c.Request.Method, path, status).Inc()

		if c.Writer.Status() >= 400 {
			r.metrics.errorTotal.WithLabelValues(c.Request.Method, path, "http").Inc()
		}
	}
}
