package services

import (
	"time"
	"unicode/utf8"

	"github.com/debatehub/backend/internal/models"
	"github.com/debatehub/backend/internal/moderation"
	"github.com/debatehub/backend/pkg/logger"
	"gorm.io/gorm"
)

// ProviderUsageService keeps one row per provider evaluation.
type ProviderUsageService struct {
	db *gorm.DB
}

func NewProviderUsageService(db *gorm.DB) *ProviderUsageService {
	return &ProviderUsageService{db: db}
}

// Observe matches moderation.CallObserver and records asynchronously.
func (s *ProviderUsageService) Observe(r moderation.Result) {
	entry := newProviderCallLog(r)
	go func() {
		if err := s.Record(entry); err != nil {
			logger.Warnf("[ProviderUsage] Failed to record call: %v", err)
		}
	}()
}

func (s *ProviderUsageService) Record(entry *models.ProviderCallLog) error {
	return s.db.Create(entry).Error
}

func newProviderCallLog(r moderation.Result) *models.ProviderCallLog {
	entry := &models.ProviderCallLog{
		Provider:  r.Provider,
		Backend:   r.Backend,
		Attempts:  r.Attempts,
		LatencyMs: r.Latency.Milliseconds(),
		Success:   !r.Fallback,
		Approved:  r.Verdict.Approved,
		RiskLevel: string(r.Verdict.RiskLevel),
		CreatedAt: time.Now(),
	}
	if r.Err != nil {
		entry.ErrorMessage = truncateRunes(r.Err.Error(), 500)
	}
	return entry
}

// truncateRunes cuts s to at most n characters without splitting a rune.
func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// ProviderUsage holds call statistics for one provider.
type ProviderUsage struct {
	Provider     string  `json:"provider"`
	Calls        int64   `json:"calls"`
	SuccessCount int64   `json:"success_count"`
	SuccessRate  float64 `json:"success_rate"`
	AvgLatencyMs float64 `json:"avg_latency_ms"`
	AvgAttempts  float64 `json:"avg_attempts"`
}

// Breakdown returns per-provider statistics, optionally limited to calls
// made after since.
func (s *ProviderUsageService) Breakdown(since *time.Time) ([]ProviderUsage, error) {
	query := s.db.Model(&models.ProviderCallLog{})
	if since != nil {
		query = query.Where("created_at >= ?", *since)
	}

	var results []ProviderUsage
	err := query.Select(
		"provider, "+
			"COUNT(*) AS calls, "+
			"COALESCE(SUM(CASE WHEN success = ? THEN 1 ELSE 0 END), 0) AS success_count, "+
			"COALESCE(AVG(latency_ms), 0) AS avg_latency_ms, "+
			"COALESCE(AVG(attempts), 0) AS avg_attempts", true,
	).Group("provider").Order("calls DESC").Scan(&results).Error
	if err != nil {
		return nil, err
	}

	for i := range results {
		if results[i].Calls > 0 {
			results[i].SuccessRate = float64(results[i].SuccessCount) / float64(results[i].Calls) * 100
		}
	}
	if results == nil {
		results = []ProviderUsage{}
	}
	return results, nil
}

// CleanupBefore deletes call logs older than the given time.
func (s *ProviderUsageService) CleanupBefore(before time.Time) (int64, error) {
	result := s.db.Where("created_at < ?", before).Delete(&models.ProviderCallLog{})
	return result.RowsAffected, result.Error
}
