package web

import (
	"log/slog"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/secure"
	"github.com/gin-gonic/gin"
	"github.com/ulule/limiter/v3"
	mgin "github.com/ulule/limiter/v3/drivers/middleware/gin"
	"github.com/ulule/limiter/v3/drivers/store/memory"

	"tripsync/planner"
)

// DefaultRate is the per-client request budget.
var DefaultRate = limiter.Rate{
	Period: 1 * time.Hour,
	Limit:  1000,
}

func CorsConfig() cors.Config {
	corsConf := cors.DefaultConfig()
	corsConf.AllowAllOrigins = true
	corsConf.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConf.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Requested-With"}
	corsConf.MaxAge = 12 * time.Hour
	return corsConf
}

func limiterMiddleware(rate limiter.Rate) gin.HandlerFunc {
	instance := limiter.New(memory.NewStore(), rate)
	return mgin.NewMiddleware(instance)
}

// requestLogger writes one access line per request.
func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
			"client", c.ClientIP(),
		)
	}
}

// avatarLoaderMiddleware gives every request its own batched avatar loader.
func avatarLoaderMiddleware(p *planner.Planner) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(avatarLoaderKey, newAvatarLoader(p))
		c.Next()
	}
}

func setupMiddlewares(r *gin.Engine, cfg ServiceConfig) {
	r.Use(limiterMiddleware(cfg.Rate))
	r.Use(gin.Recovery())
	r.Use(requestLogger(cfg.Logger))
	r.Use(cors.New(CorsConfig()))
	r.Use(secure.New(secure.Config{
		STSSeconds:           31536000,
		STSIncludeSubdomains: true,
		FrameDeny:            true,
		ContentTypeNosniff:   true,
		BrowserXssFilter:     true,
		ReferrerPolicy:       "strict-origin-when-cross-origin",
		IsDevelopment:        cfg.IsDev,
	}))
	r.Use(avatarLoaderMiddleware(cfg.Planner))
}
