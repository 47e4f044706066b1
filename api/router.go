package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/use-agent/harvest/api/handler"
	"github.com/use-agent/harvest/api/middleware"
	"github.com/use-agent/harvest/cache"
	"github.com/use-agent/harvest/config"
	"github.com/use-agent/harvest/harvest"
	"github.com/use-agent/harvest/webhook"
)

// Deps are the long-lived components the routes share.
type Deps struct {
	Harvester *harvest.Harvester
	Cache     *cache.Cache
	Jobs      *handler.JobStore
	Webhooks  *webhook.Sender
	StartTime time.Time
}

// NewRouter creates a configured Gin engine with all routes and middleware.
//
// Middleware chain:
//
//	Global:  Recovery → Logger → Metrics
//	API:     Auth (if enabled) → RateLimit
//
// Health and /metrics stay outside auth so monitoring probes always work.
func NewRouter(cfg *config.Config, d Deps) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())
	r.Use(middleware.Metrics())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/api/v1")
	v1.GET("/health", handler.Health(d.Jobs, d.StartTime))

	protected := v1.Group("")
	if cfg.Auth.Enabled {
		protected.Use(middleware.Auth(cfg.Auth.APIKeys))
	}
	protected.Use(middleware.RateLimit(cfg.RateLimit))

	protected.POST("/images", handler.Images(d.Harvester, d.Cache))
	protected.POST("/products", handler.Products(d.Harvester, d.Cache))

	protected.POST("/harvest", handler.PostHarvest(d.Harvester, d.Jobs, d.Webhooks))
	protected.GET("/harvest/:id", handler.GetHarvest(d.Jobs))

	return r
}
