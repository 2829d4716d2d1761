package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/debatehub/backend/internal/models"
	"gorm.io/gorm"
)

var (
	ErrRecordNotFound  = errors.New("moderation record not found")
	ErrVersionConflict = errors.New("moderation record was modified concurrently")
)

// RecordFilter selects moderation records. Zero fields do not filter.
type RecordFilter struct {
	Statuses            []string
	RiskLevel           string
	RequiresHumanReview *bool
	IsAutoApproved      *bool
	HumanOverride       *bool
	// Reviewed keeps records with a reviewer set.
	Reviewed bool
	// ManuallyReviewed keeps records reviewed at least once.
	ManuallyReviewed bool
}

// ModerationStore persists moderation records.
type ModerationStore interface {
	Insert(ctx context.Context, record *models.ModerationRecord) error
	FindByID(ctx context.Context, id uint) (*models.ModerationRecord, error)
	// Find returns matching records newest first, plus the total match count.
	Find(ctx context.Context, filter RecordFilter, skip, take int) ([]models.ModerationRecord, int64, error)
	// UpdateByID writes the given fields of patch if the stored version still
	// equals expectedVersion, bumping the version. It returns
	// ErrVersionConflict when another writer got there first.
	UpdateByID(ctx context.Context, id uint, expectedVersion int, patch *models.ModerationRecord, fields ...string) (*models.ModerationRecord, error)
	CountBy(ctx context.Context, filter RecordFilter) (int64, error)
	// AggregateGroupCount counts records per distinct value of a column.
	AggregateGroupCount(ctx context.Context, field string) (map[string]int64, error)
	// CategoryCounts counts category occurrences across all records.
	CategoryCounts(ctx context.Context) (map[string]int64, error)
}

var groupableFields = map[string]bool{
	"status":       true,
	"risk_level":   true,
	"reviewed_by":  true,
	"submitter_id": true,
}

// GormModerationStore is the ModerationStore backed by gorm.
type GormModerationStore struct {
	db *gorm.DB
}

func NewGormModerationStore(db *gorm.DB) *GormModerationStore {
	return &GormModerationStore{db: db}
}

func (s *GormModerationStore) Insert(ctx context.Context, record *models.ModerationRecord) error {
	record.ID = 0
	record.ReviewCount = 0
	if record.Version == 0 {
		record.Version = 1
	}
	if err := s.db.WithContext(ctx).Create(record).Error; err != nil {
		return fmt.Errorf("insert moderation record: %w", err)
	}
	return nil
}

func (s *GormModerationStore) FindByID(ctx context.Context, id uint) (*models.ModerationRecord, error) {
	var record models.ModerationRecord
	if err := s.db.WithContext(ctx).First(&record, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("find moderation record %d: %w", id, err)
	}
	return &record, nil
}

func (s *GormModerationStore) Find(ctx context.Context, filter RecordFilter, skip, take int) ([]models.ModerationRecord, int64, error) {
	var (
		records []models.ModerationRecord
		total   int64
	)

	query := s.applyFilter(s.db.WithContext(ctx).Model(&models.ModerationRecord{}), filter)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count moderation records: %w", err)
	}

	if err := query.Order("created_at DESC").Order("id DESC").Offset(skip).Limit(take).Find(&records).Error; err != nil {
		return nil, 0, fmt.Errorf("list moderation records: %w", err)
	}
	return records, total, nil
}

func (s *GormModerationStore) UpdateByID(ctx context.Context, id uint, expectedVersion int, patch *models.ModerationRecord, fields ...string) (*models.ModerationRecord, error) {
	patch.ID = id
	patch.Version = expectedVersion + 1

	columns := append(append([]string(nil), fields...), "version", "updated_at")
	res := s.db.WithContext(ctx).
		Model(patch).
		Where("version = ?", expectedVersion).
		Select(columns).
		Updates(patch)
	if res.Error != nil {
		return nil, fmt.Errorf("update moderation record %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		if _, err := s.FindByID(ctx, id); err != nil {
			return nil, err
		}
		return nil, ErrVersionConflict
	}

	return s.FindByID(ctx, id)
}

func (s *GormModerationStore) CountBy(ctx context.Context, filter RecordFilter) (int64, error) {
	var count int64
	query := s.applyFilter(s.db.WithContext(ctx).Model(&models.ModerationRecord{}), filter)
	if err := query.Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count moderation records: %w", err)
	}
	return count, nil
}

func (s *GormModerationStore) AggregateGroupCount(ctx context.Context, field string) (map[string]int64, error) {
	if !groupableFields[field] {
		return nil, fmt.Errorf("cannot group moderation records by %q", field)
	}

	var rows []struct {
		Value string
		Count int64
	}
	err := s.db.WithContext(ctx).Model(&models.ModerationRecord{}).
		Select(field + " AS value, COUNT(*) AS count").
		Group(field).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("group moderation records by %s: %w", field, err)
	}

	counts := make(map[string]int64, len(rows))
	for _, r := range rows {
		counts[r.Value] += r.Count
	}
	return counts, nil
}

// CategoryCounts walks the categories column in batches since the JSON
// encoding is not queryable across all supported databases.
func (s *GormModerationStore) CategoryCounts(ctx context.Context) (map[string]int64, error) {
	counts := make(map[string]int64)

	var batch []models.ModerationRecord
	res := s.db.WithContext(ctx).Model(&models.ModerationRecord{}).
		Select("id", "categories").
		FindInBatches(&batch, 500, func(tx *gorm.DB, _ int) error {
			for _, r := range batch {
				for _, c := range r.Categories {
					counts[c]++
				}
			}
			return nil
		})
	if res.Error != nil {
		return nil, fmt.Errorf("count moderation categories: %w", res.Error)
	}
	return counts, nil
}

func (s *GormModerationStore) applyFilter(query *gorm.DB, f RecordFilter) *gorm.DB {
	if len(f.Statuses) > 0 {
		query = query.Where("status IN ?", f.Statuses)
	}
	if f.RiskLevel != "" {
		query = query.Where("risk_level = ?", f.RiskLevel)
	}
	if f.RequiresHumanReview != nil {
		query = query.Where("requires_human_review = ?", *f.RequiresHumanReview)
	}
	if f.IsAutoApproved != nil {
		query = query.Where("is_auto_approved = ?", *f.IsAutoApproved)
	}
	if f.HumanOverride != nil {
		query = query.Where("human_override = ?", *f.HumanOverride)
	}
	if f.Reviewed {
		query = query.Where("reviewed_by <> ''")
	}
	if f.ManuallyReviewed {
		query = query.Where("review_count > 0")
	}
	return query
}
