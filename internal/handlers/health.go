package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/debatehub/backend/internal/services"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// HealthHandler reports the state of each subsystem.
type HealthHandler struct {
	db        *gorm.DB
	store     services.ModerationStore
	queue     services.TaskQueue
	hub       *services.SSEHub
	providers []string
}

func NewHealthHandler(db *gorm.DB, store services.ModerationStore, queue services.TaskQueue, hub *services.SSEHub, providers []string) *HealthHandler {
	return &HealthHandler{
		db:        db,
		store:     store,
		queue:     queue,
		hub:       hub,
		providers: providers,
	}
}

// CheckHealth returns the health status of all subsystems.
// GET /health
func (h *HealthHandler) CheckHealth(c *gin.Context) {
	overall := "healthy"
	code := http.StatusOK

	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	dbStatus := "ok"
	sqlDB, err := h.db.DB()
	if err != nil {
		dbStatus = "error: " + err.Error()
		overall = "unhealthy"
	} else if err := sqlDB.PingContext(ctx); err != nil {
		dbStatus = "error: " + err.Error()
		overall = "unhealthy"
	}

	queueMode := "sync"
	if h.queue != nil && h.queue.IsAsync() {
		queueMode = "async (Redis)"
	}

	// Without providers every submission goes to a human.
	aiStatus := "ok"
	if len(h.providers) == 0 {
		aiStatus = "no providers configured"
		if overall == "healthy" {
			overall = "degraded"
		}
	}

	var flagged int64
	if dbStatus == "ok" {
		requires := true
		flagged, _ = h.store.CountBy(ctx, services.RecordFilter{RequiresHumanReview: &requires})
	}

	if overall == "unhealthy" {
		code = http.StatusServiceUnavailable
	}

	c.JSON(code, gin.H{
		"status":  overall,
		"service": "debatehub-moderation",
		"components": gin.H{
			"database":        dbStatus,
			"queue_mode":      queueMode,
			"ai":              aiStatus,
			"providers":       h.providers,
			"sse_clients":     h.hub.ClientCount(),
			"flagged_records": flagged,
		},
	})
}
