package v1

import (
	"context"
	"net/http"
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/dmehra2102/prod-golang-projects/epicheck/internal/config"
	"github.com/dmehra2102/prod-golang-projects/epicheck/internal/middleware"
	"github.com/dmehra2102/prod-golang-projects/epicheck/pkg/metrics"
)

type RouterConfig struct {
	ServiceName string
	CORS        config.CORSConfig
	RateLimit   config.RateLimitConfig

	Tokens  middleware.TokenValidator
	Metrics *metrics.Collector
	// MetricsHandler serves /metrics; nil leaves the route out.
	MetricsHandler http.Handler
	// Ready reports whether dependencies (the database) are reachable.
	Ready func(ctx context.Context) error
	Log   *zap.Logger

	Cases         *CaseHandler
	Doctor        *DoctorHandler
	Admin         *AdminHandler
	Notifications *NotificationHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(
		middleware.Recovery(cfg.Log),
		otelgin.Middleware(cfg.ServiceName),
		middleware.RequestLogger(cfg.Log),
		middleware.Metrics(cfg.Metrics),
		cors.New(corsConfig(cfg.CORS)),
		middleware.RateLimit(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.BurstSize),
	)

	r.GET("/healthz", func(c *gin.Context) {
		if cfg.Ready != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := cfg.Ready(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if cfg.MetricsHandler != nil {
		r.GET("/metrics", gin.WrapH(cfg.MetricsHandler))
	}

	api := r.Group("/api/v1", middleware.Authenticate(cfg.Tokens))

	cases := api.Group("/cases")
	{
		cases.POST("", cfg.Cases.Create)
		cases.GET("", cfg.Cases.List)
		cases.GET("/:id", cfg.Cases.Get)
		cases.DELETE("/:id", cfg.Cases.Delete)
		cases.POST("/:id/images", cfg.Cases.AttachImage)
		cases.POST("/:id/symptoms", cfg.Cases.AddSymptoms)
		cases.POST("/:id/analyze", cfg.Cases.Analyze)
		cases.GET("/:id/predictions", cfg.Cases.Predictions)
		cases.POST("/:id/review", cfg.Cases.Review)
	}

	doctor := api.Group("/doctor")
	{
		doctor.POST("/cases/next", middleware.RateLimitPerUser(cfg.RateLimit.ClaimRequestsPerMinute), cfg.Doctor.ClaimNext)
		doctor.GET("/cases", cfg.Doctor.ListCases)
	}

	admin := api.Group("/admin")
	{
		admin.POST("/cases/:id/assign", cfg.Admin.Assign)
		admin.PUT("/cases/:id/assignment", cfg.Admin.Reassign)
		admin.GET("/cases/failed", cfg.Admin.FailedCases)
	}

	notifications := api.Group("/notifications")
	{
		notifications.GET("", cfg.Notifications.List)
		notifications.POST("/:id/read", cfg.Notifications.MarkRead)
	}

	return r
}

func corsConfig(cfg config.CORSConfig) cors.Config {
	out := cors.Config{
		AllowMethods:  cfg.AllowedMethods,
		AllowHeaders:  cfg.AllowedHeaders,
		ExposeHeaders: []string{"X-Request-ID", "Retry-After"},
		MaxAge:        cfg.MaxAge,
	}
	if len(cfg.AllowedOrigins) == 0 || slices.Contains(cfg.AllowedOrigins, "*") {
		out.AllowAllOrigins = true
	} else {
		out.AllowOrigins = cfg.AllowedOrigins
	}
	return out
}
