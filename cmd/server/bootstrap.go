package main

import (
	"github.com/debatehub/backend/internal/config"
	"github.com/debatehub/backend/internal/handlers"
	"github.com/debatehub/backend/internal/models"
	"github.com/debatehub/backend/internal/moderation"
	"github.com/debatehub/backend/internal/services"
	"github.com/debatehub/backend/internal/telemetry"
	"github.com/debatehub/backend/internal/utils"
	"github.com/debatehub/backend/pkg/logger"
	"gorm.io/gorm"
)

// appServices holds all initialized services and handlers needed by the application.
type appServices struct {
	db               *gorm.DB
	metrics          *telemetry.Metrics
	hub              *services.SSEHub
	engine           *moderation.Engine
	store            services.ModerationStore
	moderation       *services.ModerationService
	stats            *services.ModerationStatsService
	usage            *services.ProviderUsageService
	systemLogs       *services.SystemLogService
	taskQueue        services.TaskQueue
	worker           *services.Worker
	cleanupScheduler *services.LogCleanupScheduler
}

// bootstrap initializes all application dependencies: database, services, schedulers.
func bootstrap(cfg *config.Config) *appServices {
	utils.SetJWTSecret(cfg.JWT.Secret)

	if err := models.InitDB(&cfg.Database); err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	if err := models.AutoMigrate(); err != nil {
		logger.Fatalf("Failed to migrate database: %v", err)
	}
	db := models.GetDB()

	services.InitSystemLogger(db)

	metrics := telemetry.New()
	usage := services.NewProviderUsageService(db)

	// Every provider call feeds both prometheus and the call log.
	engine, err := moderation.NewEngineFromConfig(cfg.Moderation, metrics.ObserveProviderCall, usage.Observe)
	if err != nil {
		logger.Fatalf("Failed to configure moderation providers: %v", err)
	}
	if len(engine.Providers()) == 0 {
		logger.Warn().Msg("No AI provider configured, all content will be routed to manual review")
	}

	hub := services.GetSSEHub()
	store := services.NewGormModerationStore(db)

	moderationService := services.NewModerationService(store, engine)
	moderationService.SetEventHub(hub)
	moderationService.SetMetrics(metrics)
	moderationService.SetNotifier(services.NewNotificationService(cfg.Moderation.Notify))

	// Uses Redis if enabled, otherwise sync mode.
	taskQueue := services.NewTaskQueue(&cfg.Redis)
	if syncQueue, ok := taskQueue.(*services.SyncQueue); ok {
		syncQueue.SetProcessor(moderationService.ProcessSubmission)
	}

	var worker *services.Worker
	if taskQueue.IsAsync() {
		worker = services.NewWorker(&cfg.Redis)
		if worker != nil {
			worker.SetProcessor(moderationService.ProcessSubmission)
			if err := worker.Start(); err != nil {
				logger.Warn().Err(err).Msg("Failed to start task worker")
			}
		}
	}

	cleanupScheduler := services.NewLogCleanupScheduler(db, cfg.Log.RetentionDays)
	if err := cleanupScheduler.Start(); err != nil {
		logger.Warn().Err(err).Msg("Failed to start log cleanup scheduler")
	}

	handlers.RegisterRuntimeGauges(metrics, db, hub, taskQueue)

	return &appServices{
		db:               db,
		metrics:          metrics,
		hub:              hub,
		engine:           engine,
		store:            store,
		moderation:       moderationService,
		stats:            services.NewModerationStatsService(store),
		usage:            usage,
		systemLogs:       services.NewSystemLogService(db),
		taskQueue:        taskQueue,
		worker:           worker,
		cleanupScheduler: cleanupScheduler,
	}
}

// shutdown gracefully stops all services.
func (s *appServices) shutdown() {
	s.cleanupScheduler.Stop()
	logger.Info().Msg("All schedulers stopped")

	if s.worker != nil {
		s.worker.Stop()
	}
	if s.taskQueue != nil {
		s.taskQueue.Close()
	}
	if sqlDB, err := s.db.DB(); err == nil {
		sqlDB.Close()
	}
}
