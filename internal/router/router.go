package router

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/time/rate"

	"github.com/odontoapp/booking-api/internal/handler"
	authHandler "github.com/odontoapp/booking-api/internal/handler/auth"
	slotHandler "github.com/odontoapp/booking-api/internal/handler/slot"
	"github.com/odontoapp/booking-api/internal/middleware"
)

type Router struct {
	engine  *gin.Engine
	auth    *middleware.AuthMiddleware
	authH   *authHandler.Handler
	slotH   *slotHandler.Handler
	healthH *handler.HealthHandler
	metrics *routerMetrics
}

type routerMetrics struct {
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
}

type Config struct {
	RateLimit      rate.Limit
	RateBurst      int
	RequestTimeout time.Duration
	MaxBodySize    int64
	CORS           middleware.CORSConfig
}

func NewRouter(
	auth *middleware.AuthMiddleware,
	authH *authHandler.Handler,
	slotH *slotHandler.Handler,
	healthH *handler.HealthHandler,
	config Config,
) *Router {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()

	r := &Router{
		engine:  engine,
		auth:    auth,
		authH:   authH,
		slotH:   slotH,
		healthH: healthH,
		metrics: initRouterMetrics(),
	}

	engine.Use(
		middleware.Recovery(),
		middleware.RequestID(),
		middleware.Logger(),
		middleware.ErrorHandler(),
		r.metricsMiddleware(),
	)

	engine.Use(
		middleware.CORS(config.CORS),
		middleware.SecurityHeaders(middleware.DefaultSecurityConfig()),
		middleware.SizeLimit(config.MaxBodySize),
		middleware.Timeout(config.RequestTimeout),
		middleware.Compress("/api/v1/health"),
	)

	if config.RateLimit > 0 {
		rateLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
			Rate:  config.RateLimit,
			Burst: config.RateBurst,
		})
		engine.Use(rateLimiter.RateLimit())
	}

	return r
}

func (r *Router) Setup() {
	api := r.engine.Group("/api/v1")

	health := api.Group("/health")
	{
		health.GET("/live", r.healthH.LivenessCheck)
		health.GET("/ready", r.healthH.ReadinessCheck)
		health.GET("/metrics", r.healthH.MetricsHandler)
	}

	protected := api.Group("")
	protected.Use(r.auth.Authenticate())

	r.authH.RegisterRoutes(api, protected)
	r.slotH.RegisterRoutes(api, protected, r.auth)
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}

func initRouterMetrics() *routerMetrics {
	return &routerMetrics{
		requestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "booking_api_request_duration_seconds",
				Help: "Duration of HTTP requests in seconds",
			},
			[]string{"method", "path", "status"},
		),
		requestTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "booking_api_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
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
	}
}
