package models

import (
	"strings"
	"time"
)

// Moderation statuses.
const (
	StatusPending      = "PENDING"
	StatusApproved     = "APPROVED"
	StatusRejected     = "REJECTED"
	StatusFlagged      = "FLAGGED"
	StatusManualReview = "MANUAL_REVIEW"
)

var moderationStatuses = []string{StatusPending, StatusApproved, StatusRejected, StatusFlagged, StatusManualReview}

// ModerationStatuses lists every valid status.
func ModerationStatuses() []string {
	return append([]string(nil), moderationStatuses...)
}

// NormalizeStatus upper-cases s and reports whether it is a known status.
func NormalizeStatus(s string) (string, bool) {
	s = strings.ToUpper(strings.TrimSpace(s))
	for _, st := range moderationStatuses {
		if st == s {
			return s, true
		}
	}
	return "", false
}

// Metadata keys stored on a moderation record.
const (
	MetaProcessingTimeMs = "processingTimeMs"
	MetaAPICalls         = "apiCalls"
	MetaProviderResults  = "providerResults"
	MetaAnalysisID       = "analysisId"
	MetaVersion          = "version"
	MetaHumanOverride    = "humanOverride"
	MetaOverrideReason   = "overrideReason"
)

// ModerationRecord is the auditable result of moderating one content item.
type ModerationRecord struct {
	ID                  uint                   `gorm:"primaryKey" json:"id"`
	ContentRef          string                 `gorm:"size:100;index" json:"content_ref,omitempty"`
	SubmitterID         string                 `gorm:"size:100;index" json:"submitter_id,omitempty"`
	Title               string                 `gorm:"size:500" json:"title"`
	ContentHash         string                 `gorm:"size:64;index" json:"content_hash"`
	Status              string                 `gorm:"size:20;index;not null" json:"status"`
	RiskLevel           string                 `gorm:"size:20;index" json:"risk_level"`
	Confidence          float64                `json:"confidence"`
	Categories          []string               `gorm:"type:text;serializer:json" json:"categories"`
	Reasons             []string               `gorm:"type:text;serializer:json" json:"reasons"`
	Suggestions         []string               `gorm:"type:text;serializer:json" json:"suggestions"`
	IsAutoApproved      bool                   `gorm:"default:false" json:"is_auto_approved"`
	RequiresHumanReview bool                   `gorm:"index;default:false" json:"requires_human_review"`
	ReviewCount         int                    `gorm:"default:0" json:"review_count"`
	ReviewedBy          string                 `gorm:"size:100;index" json:"reviewed_by,omitempty"`
	ReviewedAt          *time.Time             `json:"reviewed_at,omitempty"`
	ManualReviewNotes   string                 `gorm:"type:text" json:"manual_review_notes,omitempty"`
	ProvidersUsed       []string               `gorm:"type:text;serializer:json" json:"providers_used"`
	Metadata            map[string]interface{} `gorm:"type:text;serializer:json" json:"metadata"`
	HumanOverride       bool                   `gorm:"index;default:false" json:"-"`
	Version             int                    `gorm:"not null;default:1" json:"version"`
	CreatedAt           time.Time              `gorm:"index" json:"created_at"`
	UpdatedAt           time.Time              `json:"updated_at"`
}

func (ModerationRecord) TableName() string { return "moderation_records" }
