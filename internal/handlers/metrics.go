package handlers

import (
	"time"

	"github.com/debatehub/backend/internal/services"
	"github.com/debatehub/backend/internal/telemetry"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

var startTime = time.Now()

// RegisterRuntimeGauges exposes process and subsystem state on /metrics.
func RegisterRuntimeGauges(m *telemetry.Metrics, db *gorm.DB, hub *services.SSEHub, queue services.TaskQueue) {
	m.RegisterGauge("uptime_seconds", "Time since server start in seconds", func() float64 {
		return time.Since(startTime).Seconds()
	})

	m.RegisterGauge("sse_active_clients", "Number of active SSE connections", func() float64 {
		return float64(hub.ClientCount())
	})

	m.RegisterGauge("queue_async_enabled", "Whether async queue (Redis) is enabled (1=yes, 0=no)", func() float64 {
		if queue != nil && queue.IsAsync() {
			return 1
		}
		return 0
	})

	if db == nil {
		return
	}
	m.RegisterGauge("db_open_connections", "Number of open DB connections", func() float64 {
		sqlDB, err := db.DB()
		if err != nil {
			return 0
		}
		return float64(sqlDB.Stats().OpenConnections)
	})
	m.RegisterGauge("db_in_use_connections", "Number of in-use DB connections", func() float64 {
		sqlDB, err := db.DB()
		if err != nil {
			return 0
		}
		return float64(sqlDB.Stats().InUse)
	})
}

// Metrics serves the prometheus exposition format.
// GET /metrics
func Metrics(m *telemetry.Metrics) gin.HandlerFunc {
	return gin.WrapH(m.Handler())
}
