package services

import (
	"context"
	"sort"
	"time"

	"github.com/debatehub/backend/internal/models"
	"github.com/debatehub/backend/internal/moderation"
)

// ModerationStats is a point-in-time distribution of moderation records.
type ModerationStats struct {
	TotalCount        int64            `json:"total_count"`
	StatusCounts      map[string]int64 `json:"status_counts"`
	RiskLevelCounts   map[string]int64 `json:"risk_level_counts"`
	AutoApprovedCount int64            `json:"auto_approved_count"`
	ManualReviewCount int64            `json:"manual_review_count"`
	Timestamp         time.Time        `json:"timestamp"`
}

type CategoryStat struct {
	Category string `json:"category"`
	Count    int64  `json:"count"`
}

// AccuracyStats measures how often moderators agree with the AI.
type AccuracyStats struct {
	TotalReviews   int64          `json:"total_reviews"`
	HumanOverrides int64          `json:"human_overrides"`
	AccuracyRate   float64        `json:"accuracy_rate"`
	CategoryStats  []CategoryStat `json:"category_stats"`
	Timestamp      time.Time      `json:"timestamp"`
}

// ModerationStatsService aggregates moderation records. It never writes.
type ModerationStatsService struct {
	store ModerationStore
	now   func() time.Time
}

func NewModerationStatsService(store ModerationStore) *ModerationStatsService {
	return &ModerationStatsService{store: store, now: time.Now}
}

func (s *ModerationStatsService) Stats(ctx context.Context) (*ModerationStats, error) {
	total, err := s.store.CountBy(ctx, RecordFilter{})
	if err != nil {
		return nil, err
	}

	byStatus, err := s.store.AggregateGroupCount(ctx, "status")
	if err != nil {
		return nil, err
	}
	statusCounts := make(map[string]int64)
	for _, st := range models.ModerationStatuses() {
		statusCounts[st] = byStatus[st]
	}

	byRisk, err := s.store.AggregateGroupCount(ctx, "risk_level")
	if err != nil {
		return nil, err
	}
	riskCounts := make(map[string]int64)
	for _, level := range moderation.RiskLevels {
		riskCounts[string(level)] = byRisk[string(level)]
	}

	autoApproved := true
	autoCount, err := s.store.CountBy(ctx, RecordFilter{IsAutoApproved: &autoApproved})
	if err != nil {
		return nil, err
	}

	manualCount, err := s.store.CountBy(ctx, RecordFilter{ManuallyReviewed: true})
	if err != nil {
		return nil, err
	}

	return &ModerationStats{
		TotalCount:        total,
		StatusCounts:      statusCounts,
		RiskLevelCounts:   riskCounts,
		AutoApprovedCount: autoCount,
		ManualReviewCount: manualCount,
		Timestamp:         s.now(),
	}, nil
}

func (s *ModerationStatsService) Accuracy(ctx context.Context) (*AccuracyStats, error) {
	reviews, err := s.store.CountBy(ctx, RecordFilter{Reviewed: true})
	if err != nil {
		return nil, err
	}

	override := true
	overrides, err := s.store.CountBy(ctx, RecordFilter{Reviewed: true, HumanOverride: &override})
	if err != nil {
		return nil, err
	}

	categories, err := s.store.CategoryCounts(ctx)
	if err != nil {
		return nil, err
	}

	return &AccuracyStats{
		TotalReviews:   reviews,
		HumanOverrides: overrides,
		AccuracyRate:   accuracyRate(reviews, overrides),
		CategoryStats:  sortCategoryStats(categories),
		Timestamp:      s.now(),
	}, nil
}

// accuracyRate is the share of reviews that kept the AI decision, in percent.
func accuracyRate(reviews, overrides int64) float64 {
	if reviews <= 0 {
		return 0
	}
	rate := 100 * float64(reviews-overrides) / float64(reviews)
	switch {
	case rate < 0:
		return 0
	case rate > 100:
		return 100
	}
	return rate
}

func sortCategoryStats(counts map[string]int64) []CategoryStat {
	stats := make([]CategoryStat, 0, len(counts))
	for c, n := range counts {
		stats = append(stats, CategoryStat{Category: c, Count: n})
	}
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Count != stats[j].Count {
			return stats[i].Count > stats[j].Count
		}
		return stats[i].Category < stats[j].Category
	})
	return stats
}
