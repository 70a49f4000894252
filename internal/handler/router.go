package handler

import (
	"time"

	"github.com/Sannainmf/GmshApp-Hexera/internal/lifecycle"
	"github.com/Sannainmf/GmshApp-Hexera/internal/logx"
	"github.com/Sannainmf/GmshApp-Hexera/internal/metrics"
	"github.com/Sannainmf/GmshApp-Hexera/internal/service"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// APIPrefix is the mount point of the versioned API.
const APIPrefix = "/api/v1"

type RouterConfig struct {
	Service    *service.PipelineService
	DrainState *lifecycle.DrainManager
	Metrics    *metrics.Collector
	// Limiter guards the pipeline endpoints. Nil disables rate limiting.
	Limiter gin.HandlerFunc
	// Auth guards everything under APIPrefix. Nil leaves the API open.
	Auth gin.HandlerFunc
	// AuthLimiter runs before Auth so rejected keys are rate limited too.
	AuthLimiter gin.HandlerFunc
	// CORSOrigins lists allowed origins. Empty or "*" allows all.
	CORSOrigins []string
}

// NewRouter assembles the HTTP surface.
func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logx.RequestIDMiddleware())
	r.Use(logx.AccessLogMiddleware("api_http"))
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.HTTPMiddleware())
	}
	r.Use(cors.New(corsConfig(cfg.CORSOrigins)))

	NewHealthHandler(cfg.Service, cfg.DrainState).RegisterRoutes(r)
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}

	api := r.Group(APIPrefix)
	if cfg.Auth != nil {
		if cfg.AuthLimiter != nil {
			api.Use(cfg.AuthLimiter)
		}
		api.Use(cfg.Auth)
	}
	NewPipelineHandler(cfg.Service, cfg.DrainState, cfg.Limiter).RegisterRoutes(api)
	NewFilesHandler(cfg.Service).RegisterRoutes(api)
	return r
}

func corsConfig(origins []string) cors.Config {
	c := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID", "Upgrade", "Connection", "Sec-WebSocket-Key", "Sec-WebSocket-Version", "Sec-WebSocket-Extensions", "Sec-WebSocket-Protocol"},
		ExposeHeaders: []string{"Content-Length", "Content-Disposition", "X-Request-ID"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		c.AllowAllOrigins = true
		return c
	}
	c.AllowOrigins = origins
	c.AllowCredentials = true
	return c
}
