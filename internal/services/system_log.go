package services

import (
	"encoding/json"
	"time"

	"github.com/debatehub/backend/internal/models"
	"github.com/debatehub/backend/pkg/logger"
	"github.com/robfig/cron/v3"
	"gorm.io/gorm"
)

var globalDB *gorm.DB

func InitSystemLogger(db *gorm.DB) {
	globalDB = db
}

func LogInfo(module, action, message, actorID, ip, userAgent string, extra interface{}) {
	writeLog("info", module, action, message, actorID, ip, userAgent, extra)
}

func LogWarning(module, action, message, actorID, ip, userAgent string, extra interface{}) {
	writeLog("warning", module, action, message, actorID, ip, userAgent, extra)
}

func LogError(module, action, message, actorID, ip, userAgent string, extra interface{}) {
	writeLog("error", module, action, message, actorID, ip, userAgent, extra)
}

func writeLog(level, module, action, message, actorID, ip, userAgent string, extra interface{}) {
	if globalDB == nil {
		return
	}

	var extraStr string
	if extra != nil {
		if b, err := json.Marshal(extra); err == nil {
			extraStr = string(b)
		}
	}

	entry := &models.SystemLog{
		Level:     level,
		Module:    module,
		Action:    action,
		Message:   message,
		ActorID:   actorID,
		IP:        ip,
		UserAgent: userAgent,
		Extra:     extraStr,
		CreatedAt: time.Now(),
	}
	if err := globalDB.Create(entry).Error; err != nil {
		logger.Warn().Err(err).Str("module", module).Str("action", action).Msg("[SystemLog] Failed to write log")
	}
}

type SystemLogService struct {
	db *gorm.DB
}

func NewSystemLogService(db *gorm.DB) *SystemLogService {
	return &SystemLogService{db: db}
}

type SystemLogListRequest struct {
	Page     int    `form:"page"`
	PageSize int    `form:"page_size"`
	Level    string `form:"level"`
	Module   string `form:"module"`
	Action   string `form:"action"`
	ActorID  string `form:"actor_id"`
}

type SystemLogListResponse struct {
	Total    int64              `json:"total"`
	Page     int                `json:"page"`
	PageSize int                `json:"page_size"`
	Items    []models.SystemLog `json:"items"`
}

func (s *SystemLogService) List(req *SystemLogListRequest) (*SystemLogListResponse, error) {
	if req.Page <= 0 {
		req.Page = 1
	}
	if req.PageSize <= 0 || req.PageSize > 100 {
		req.PageSize = 20
	}

	var logs []models.SystemLog
	var total int64

	query := s.db.Model(&models.SystemLog{})

	if req.Level != "" {
		query = query.Where("level = ?", req.Level)
	}
	if req.Module != "" {
		query = query.Where("module = ?", req.Module)
	}
	if req.Action != "" {
		query = query.Where("action LIKE ?", "%"+req.Action+"%")
	}
	if req.ActorID != "" {
		query = query.Where("actor_id = ?", req.ActorID)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, err
	}

	offset := (req.Page - 1) * req.PageSize
	if err := query.Offset(offset).Limit(req.PageSize).Order("created_at DESC").Find(&logs).Error; err != nil {
		return nil, err
	}

	return &SystemLogListResponse{
		Total:    total,
		Page:     req.Page,
		PageSize: req.PageSize,
		Items:    logs,
	}, nil
}

// CleanupOldLogs deletes logs older than the given number of days and
// returns how many were removed.
func (s *SystemLogService) CleanupOldLogs(retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, nil
	}

	cutoffTime := time.Now().AddDate(0, 0, -retentionDays)
	result := s.db.Where("created_at < ?", cutoffTime).Delete(&models.SystemLog{})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// LogCleanupScheduler prunes system and provider call logs past retention.
type LogCleanupScheduler struct {
	cron          *cron.Cron
	systemLogs    *SystemLogService
	usage         *ProviderUsageService
	retentionDays int
}

func NewLogCleanupScheduler(db *gorm.DB, retentionDays int) *LogCleanupScheduler {
	return &LogCleanupScheduler{
		cron:          cron.New(),
		systemLogs:    NewSystemLogService(db),
		usage:         NewProviderUsageService(db),
		retentionDays: retentionDays,
	}
}

// Start runs one cleanup immediately, then daily at 03:00.
func (s *LogCleanupScheduler) Start() error {
	if s.retentionDays <= 0 {
		logger.Info().Msg("[SystemLog] Log cleanup disabled (retention_days <= 0)")
		return nil
	}

	go s.RunOnce()

	if _, err := s.cron.AddFunc("0 3 * * *", s.RunOnce); err != nil {
		return err
	}
	s.cron.Start()
	logger.Infof("[SystemLog] Cleanup scheduled daily, retention %d days", s.retentionDays)
	return nil
}

func (s *LogCleanupScheduler) Stop() {
	<-s.cron.Stop().Done()
}

func (s *LogCleanupScheduler) RunOnce() {
	deleted, err := s.systemLogs.CleanupOldLogs(s.retentionDays)
	if err != nil {
		logger.Error().Err(err).Msg("[SystemLog] Failed to cleanup old logs")
	} else if deleted > 0 {
		logger.Infof("[SystemLog] Cleaned up %d logs older than %d days", deleted, s.retentionDays)
	}

	before := time.Now().AddDate(0, 0, -s.retentionDays)
	deleted, err = s.usage.CleanupBefore(before)
	if err != nil {
		logger.Error().Err(err).Msg("[SystemLog] Failed to cleanup provider call logs")
	} else if deleted > 0 {
		logger.Infof("[SystemLog] Cleaned up %d provider call logs", deleted)
	}
}
