package services

import (
	"context"
	"testing"

	"github.com/debatehub/backend/internal/config"
	"github.com/debatehub/backend/internal/models"
	"github.com/debatehub/backend/internal/moderation"
	"github.com/google/uuid"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// newTestDB returns a migrated in-memory sqlite database private to the test.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := "file:" + uuid.New().String() + "?mode=memory&cache=shared"
	db, err := models.Open(&config.DatabaseConfig{Driver: "sqlite", DSN: dsn}, gormlogger.Silent)
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	if err := models.Migrate(db); err != nil {
		t.Fatalf("migrate test database: %v", err)
	}

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

// fixedProvider always returns the same verdict.
type fixedProvider struct {
	name    string
	verdict moderation.Verdict
}

func (p *fixedProvider) Name() string { return p.name }

func (p *fixedProvider) Evaluate(ctx context.Context, title, content string) moderation.Verdict {
	return p.verdict
}

func verdict(approved bool, risk moderation.RiskLevel, categories ...string) moderation.Verdict {
	return moderation.Verdict{
		Approved:    approved,
		Confidence:  0.8,
		RiskLevel:   risk,
		Categories:  categories,
		Reasons:     []string{"checked"},
		Suggestions: []string{},
	}
}

func newTestService(t *testing.T, providers ...moderation.Provider) (*ModerationService, *GormModerationStore) {
	t.Helper()
	store := NewGormModerationStore(newTestDB(t))
	return NewModerationService(store, moderation.NewEngine(providers)), store
}

func seedRecord(t *testing.T, store ModerationStore, r *models.ModerationRecord) *models.ModerationRecord {
	t.Helper()
	if r.Status == "" {
		r.Status = models.StatusApproved
	}
	if r.RiskLevel == "" {
		r.RiskLevel = string(moderation.RiskLow)
	}
	if err := store.Insert(context.Background(), r); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	return r
}
