package services

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/debatehub/backend/internal/models"
	"github.com/debatehub/backend/internal/moderation"
	"github.com/debatehub/backend/internal/telemetry"
	"github.com/debatehub/backend/pkg/logger"
	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
)

var (
	ErrInvalidStatus    = errors.New("invalid moderation status")
	ErrInvalidRiskLevel = errors.New("invalid risk level")
)

const (
	defaultPageLimit = 10
	maxPageLimit     = 100

	// analysisSchemaVersion is stored in metadata so old records can be told apart.
	analysisSchemaVersion = "1"
)

// SubmitRequest is one piece of content to moderate.
type SubmitRequest struct {
	Title       string `json:"title" binding:"max=500"`
	Content     string `json:"content" binding:"required"`
	ContentRef  string `json:"content_ref"`
	SubmitterID string `json:"submitter_id"`
}

// ReviewRequest is a moderator's decision on a record.
type ReviewRequest struct {
	Status   string `json:"status" binding:"required"`
	Notes    string `json:"notes"`
	Override bool   `json:"override"`

	ReviewerID string `json:"-"`
	ClientIP   string `json:"-"`
	UserAgent  string `json:"-"`
}

// QueueFilter narrows the review queue. Empty fields match everything.
type QueueFilter struct {
	Status    string `form:"status"`
	RiskLevel string `form:"risk_level"`
}

// RecordPage is one page of moderation records.
type RecordPage struct {
	Items []models.ModerationRecord `json:"items"`
	Total int64                     `json:"total"`
	Page  int                       `json:"page"`
	Limit int                       `json:"limit"`
}

// ModerationService runs the moderation workflow: analysis, queues and
// manual review.
type ModerationService struct {
	store    ModerationStore
	analyzer moderation.Analyzer
	hub      *SSEHub
	notifier *NotificationService
	metrics  *telemetry.Metrics
	now      func() time.Time
}

func NewModerationService(store ModerationStore, analyzer moderation.Analyzer) *ModerationService {
	return &ModerationService{
		store:    store,
		analyzer: analyzer,
		now:      time.Now,
	}
}

func (s *ModerationService) SetEventHub(hub *SSEHub)                { s.hub = hub }
func (s *ModerationService) SetNotifier(n *NotificationService)     { s.notifier = n }
func (s *ModerationService) SetMetrics(metrics *telemetry.Metrics) { s.metrics = metrics }

// AnalyzeAndStore classifies the content and persists a new record.
func (s *ModerationService) AnalyzeAndStore(ctx context.Context, req *SubmitRequest) (*models.ModerationRecord, error) {
	analysis := s.analyzer.AnalyzeDetailed(ctx, req.Title, req.Content)

	record := buildRecord(req, analysis)
	if err := s.store.Insert(ctx, record); err != nil {
		return nil, err
	}

	logger.Info().
		Uint("record_id", record.ID).
		Str("status", record.Status).
		Str("risk", record.RiskLevel).
		Bool("requires_human_review", record.RequiresHumanReview).
		Msg("[Moderation] Record stored")

	s.metrics.ObserveVerdict(record.Status, record.RiskLevel)
	s.publish(EventRecordCreated, record)
	if record.RequiresHumanReview {
		s.publish(EventRecordFlagged, record)
		s.notifyFlagged(ctx, record)
	}
	return record, nil
}

// ProcessSubmission is the task queue entry point.
func (s *ModerationService) ProcessSubmission(ctx context.Context, task *SubmissionTask) error {
	_, err := s.AnalyzeAndStore(ctx, &SubmitRequest{
		Title:       task.Title,
		Content:     task.Content,
		ContentRef:  task.ContentRef,
		SubmitterID: task.SubmitterID,
	})
	return err
}

func buildRecord(req *SubmitRequest, a *moderation.Analysis) *models.ModerationRecord {
	v := a.Verdict

	status := models.StatusRejected
	if v.Approved {
		status = models.StatusApproved
	}

	providerResults := make([]map[string]interface{}, 0, len(a.Results))
	for _, r := range a.Results {
		providerResults = append(providerResults, map[string]interface{}{
			"provider":   r.Provider,
			"approved":   r.Verdict.Approved,
			"risk_level": string(r.Verdict.RiskLevel),
			"confidence": r.Verdict.Confidence,
			"fallback":   r.Fallback,
			"attempts":   r.Attempts,
			"latency_ms": r.Latency.Milliseconds(),
		})
	}

	return &models.ModerationRecord{
		ContentRef:          req.ContentRef,
		SubmitterID:         req.SubmitterID,
		Title:               req.Title,
		ContentHash:         contentHash(req.Title, req.Content),
		Status:              status,
		RiskLevel:           string(v.RiskLevel),
		Confidence:          v.Confidence,
		Categories:          nonNil(v.Categories),
		Reasons:             nonNil(v.Reasons),
		Suggestions:         nonNil(v.Suggestions),
		IsAutoApproved:      v.Approved,
		RequiresHumanReview: v.RiskLevel.RequiresHumanReview(),
		ReviewCount:         0,
		ProvidersUsed:       nonNil(a.ProvidersUsed),
		Metadata: map[string]interface{}{
			models.MetaProcessingTimeMs: a.Elapsed.Milliseconds(),
			models.MetaAPICalls:         a.APICalls,
			models.MetaProviderResults:  providerResults,
			models.MetaAnalysisID:       uuid.New().String(),
			models.MetaVersion:          analysisSchemaVersion,
		},
		Version: 1,
	}
}

// contentHash fingerprints a submission so repeats can be found.
func contentHash(title, content string) string {
	sum := blake2b.Sum256([]byte(title + "\n" + content))
	return hex.EncodeToString(sum[:])
}

func nonNil(list []string) []string {
	if list == nil {
		return []string{}
	}
	return list
}

// Get returns one record or ErrRecordNotFound.
func (s *ModerationService) Get(ctx context.Context, id uint) (*models.ModerationRecord, error) {
	return s.store.FindByID(ctx, id)
}

// ListQueue pages through records newest first.
func (s *ModerationService) ListQueue(ctx context.Context, filter QueueFilter, page, limit int) (*RecordPage, error) {
	var f RecordFilter
	if filter.Status != "" {
		status, ok := models.NormalizeStatus(filter.Status)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, filter.Status)
		}
		f.Statuses = []string{status}
	}
	if filter.RiskLevel != "" {
		risk, err := moderation.ParseRiskLevel(filter.RiskLevel)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidRiskLevel, filter.RiskLevel)
		}
		f.RiskLevel = string(risk)
	}
	return s.page(ctx, f, page, limit)
}

// ListFlagged pages through records awaiting a human decision.
func (s *ModerationService) ListFlagged(ctx context.Context, page, limit int) (*RecordPage, error) {
	requires := true
	return s.page(ctx, RecordFilter{
		RequiresHumanReview: &requires,
		Statuses:            []string{models.StatusPending, models.StatusFlagged},
	}, page, limit)
}

func (s *ModerationService) page(ctx context.Context, f RecordFilter, page, limit int) (*RecordPage, error) {
	page, limit = normalizePage(page, limit)

	items, total, err := s.store.Find(ctx, f, (page-1)*limit, limit)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []models.ModerationRecord{}
	}
	return &RecordPage{Items: items, Total: total, Page: page, Limit: limit}, nil
}

func normalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	switch {
	case limit == 0:
		limit = defaultPageLimit
	case limit < 1:
		limit = 1
	case limit > maxPageLimit:
		limit = maxPageLimit
	}
	return page, limit
}

var reviewFields = []string{
	"status",
	"reviewed_by",
	"reviewed_at",
	"manual_review_notes",
	"review_count",
	"is_auto_approved",
	"metadata",
	"human_override",
}

// ManualReview applies a moderator decision. Concurrent reviews of the same
// record are serialized by re-reading and retrying on version conflicts, so
// no review is lost.
func (s *ModerationService) ManualReview(ctx context.Context, id uint, req *ReviewRequest) (*models.ModerationRecord, error) {
	status, ok := models.NormalizeStatus(req.Status)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, req.Status)
	}

	var updated *models.ModerationRecord
	attempts := 0
	operation := func() error {
		attempts++
		current, err := s.store.FindByID(ctx, id)
		if err != nil {
			return backoff.Permanent(err)
		}

		patch := applyReview(current, status, req, s.now())
		updated, err = s.store.UpdateByID(ctx, id, current.Version, patch, reviewFields...)
		if errors.Is(err, ErrVersionConflict) {
			return err
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 5 * time.Millisecond
	bo.MaxInterval = 200 * time.Millisecond
	bo.MaxElapsedTime = 0

	if err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(bo, 50), ctx)); err != nil {
		return nil, err
	}

	logger.Info().
		Uint("record_id", id).
		Str("reviewer", req.ReviewerID).
		Str("status", status).
		Bool("override", req.Override).
		Int("review_count", updated.ReviewCount).
		Int("attempts", attempts).
		Msg("[Moderation] Manual review applied")

	s.metrics.ObserveManualReview(status, req.Override)
	s.publish(EventRecordReviewed, updated)
	LogInfo("moderation", "manual_review",
		fmt.Sprintf("Record %d set to %s", id, status),
		req.ReviewerID, req.ClientIP, req.UserAgent,
		map[string]interface{}{
			"record_id":    id,
			"status":       status,
			"override":     req.Override,
			"review_count": updated.ReviewCount,
		})

	return updated, nil
}

func applyReview(current *models.ModerationRecord, status string, req *ReviewRequest, now time.Time) *models.ModerationRecord {
	metadata := make(map[string]interface{}, len(current.Metadata)+2)
	for k, v := range current.Metadata {
		metadata[k] = v
	}
	if req.Override {
		metadata[models.MetaHumanOverride] = true
		metadata[models.MetaOverrideReason] = req.Notes
	}

	return &models.ModerationRecord{
		Status:            status,
		ReviewedBy:        req.ReviewerID,
		ReviewedAt:        &now,
		ManualReviewNotes: req.Notes,
		ReviewCount:       current.ReviewCount + 1,
		IsAutoApproved:    false,
		Metadata:          metadata,
		HumanOverride:     current.HumanOverride || req.Override,
	}
}

func (s *ModerationService) publish(eventType string, r *models.ModerationRecord) {
	if s.hub == nil {
		return
	}
	s.hub.Publish(newModerationEvent(eventType, r))
}

func (s *ModerationService) notifyFlagged(ctx context.Context, r *models.ModerationRecord) {
	if !s.notifier.Enabled() {
		return
	}
	snapshot := *r
	go func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
		defer cancel()
		if err := s.notifier.NotifyFlagged(ctx, &snapshot); err != nil {
			logger.Warn().Err(err).Uint("record_id", snapshot.ID).Msg("[Moderation] Failed to notify moderators")
			LogWarning("moderation", "notify_flagged", err.Error(), "", "", "", map[string]interface{}{"record_id": snapshot.ID})
		}
	}()
}
