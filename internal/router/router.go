package router

import (
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/availability-api/internal/handler/health"
	"github.com/jwalitptl/availability-api/internal/handler/prometheus"
	"github.com/jwalitptl/availability-api/internal/middleware"
	"github.com/jwalitptl/availability-api/pkg/logger"
	"github.com/jwalitptl/availability-api/pkg/metrics"
)

type Handler interface {
	RegisterRoutes(*gin.RouterGroup)
}

type Router struct {
	engine       *gin.Engine
	config       RouterConfig
	availability Handler
	filter       Handler
	admin        Handler
	health       *health.Handler
	prom         *prometheus.Handler
}

type RouterConfig struct {
	Mode           string
	RateLimit      rate.Limit
	RateBurst      int
	RequestTimeout time.Duration
	CORSConfig     middleware.CORSConfig
	Auth           middleware.AuthConfig
}

type Handlers struct {
	Availability Handler
	Filter       Handler
	Admin        Handler
	Health       *health.Handler
	Metrics      *prometheus.Handler
}

func NewRouter(config RouterConfig, handlers Handlers, log *logger.Logger, m *metrics.Metrics) (*Router, error) {
	if config.Mode != "" {
		gin.SetMode(config.Mode)
	}
	if err := middleware.RegisterValidators(); err != nil {
		return nil, err
	}

	engine := gin.New()

	r := &Router{
		engine:       engine,
		config:       config,
		availability: handlers.Availability,
		filter:       handlers.Filter,
		admin:        handlers.Admin,
		health:       handlers.Health,
		prom:         handlers.Metrics,
	}

	engine.Use(
		middleware.RequestID(),
		middleware.Recovery(log),
		middleware.Logger(log),
		middleware.Metrics(m),
		middleware.SecurityHeaders(middleware.DefaultSecurityConfig()),
		middleware.CORS(config.CORSConfig),
	)

	return r, nil
}

func (r *Router) Setup() {
	if r.prom != nil {
		r.engine.GET("/metrics", r.prom.Handler())
	}

	api := r.engine.Group("/api/v1")
	// Probes skip the rate limit and the timeout.
	r.health.RegisterRoutes(api)

	api.Use(
		middleware.Timeout(middleware.TimeoutConfig{Duration: r.config.RequestTimeout}),
		middleware.SizeLimit(middleware.DefaultMaxBodySize),
	)
	if r.config.RateLimit > 0 {
		limiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
			Rate:  r.config.RateLimit,
			Burst: r.config.RateBurst,
		})
		api.Use(limiter.RateLimit())
	}

	r.availability.RegisterRoutes(api)
	r.filter.RegisterRoutes(api)

	admin := api.Group("/admin")
	admin.Use(middleware.AdminAuth(r.config.Auth))
	r.admin.RegisterRoutes(admin)
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}
