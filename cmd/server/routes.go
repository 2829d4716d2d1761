package main

import (
	"github.com/debatehub/backend/internal/config"
	"github.com/debatehub/backend/internal/handlers"
	"github.com/debatehub/backend/internal/middleware"
	"github.com/debatehub/backend/pkg/logger"
	"github.com/gin-gonic/gin"
)

// registerRoutes sets up all HTTP routes on the given Gin engine.
func registerRoutes(r *gin.Engine, cfg *config.Config, svc *appServices) {
	r.Use(logger.GinLogger(), logger.GinRecovery())
	r.Use(svc.metrics.GinMiddleware())
	r.Use(middleware.CORS(cfg.Server.AllowOrigins...))

	analyzeLimiter := middleware.NewRateLimiter(cfg.Server.RateLimit.RPS, cfg.Server.RateLimit.Burst)

	healthHandler := handlers.NewHealthHandler(svc.db, svc.store, svc.taskQueue, svc.hub, svc.engine.Providers())
	r.GET("/health", healthHandler.CheckHealth)
	r.GET("/metrics", handlers.Metrics(svc.metrics))

	api := r.Group("/api")
	{
		// SSE (token validated inside, EventSource cannot send headers)
		sseHandler := handlers.NewSSEHandler(svc.hub)
		api.GET("/events/moderation", sseHandler.StreamModerationEvents)

		moderationHandler := handlers.NewModerationHandler(svc.moderation, svc.stats, svc.taskQueue)
		usageHandler := handlers.NewProviderUsageHandler(svc.usage, svc.engine.Providers())
		systemLogHandler := handlers.NewSystemLogHandler(svc.systemLogs)

		protected := api.Group("")
		protected.Use(middleware.AuthRequired())
		{
			submit := protected.Group("/moderation", analyzeLimiter.Middleware(), middleware.AuditLog())
			submit.POST("/analyze", moderationHandler.Analyze)
			submit.POST("/submit", moderationHandler.Submit)

			moderators := protected.Group("", middleware.ModeratorRequired())
			moderators.GET("/moderation/queue", moderationHandler.Queue)
			moderators.GET("/moderation/flagged", moderationHandler.Flagged)
			moderators.GET("/moderation/stats", moderationHandler.Stats)
			moderators.GET("/moderation/accuracy", moderationHandler.Accuracy)
			moderators.GET("/moderation/providers", usageHandler.GetStats)
			moderators.GET("/moderation/:id", moderationHandler.Get)
			moderators.PUT("/moderation/:id/review", moderationHandler.Review)
			moderators.GET("/system-logs", systemLogHandler.List)
		}
	}
}
