package services

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/debatehub/backend/internal/models"
	"github.com/debatehub/backend/internal/moderation"
)

func TestAnalyzeAndStore_BothApprove(t *testing.T) {
	svc, store := newTestService(t,
		&fixedProvider{name: "a", verdict: verdict(true, moderation.RiskLow, "EDUCATIONAL")},
		&fixedProvider{name: "b", verdict: verdict(true, moderation.RiskLow, "EDUCATIONAL")},
	)

	record, err := svc.AnalyzeAndStore(context.Background(), &SubmitRequest{
		Title:       "Nuclear power",
		Content:     "Nuclear power has the lowest deaths per TWh.",
		ContentRef:  "argument-1",
		SubmitterID: "user-1",
	})
	if err != nil {
		t.Fatalf("AnalyzeAndStore() error = %v", err)
	}

	if record.Status != models.StatusApproved {
		t.Errorf("Status = %q, expected APPROVED", record.Status)
	}
	if record.RiskLevel != "LOW" || record.RequiresHumanReview {
		t.Errorf("RiskLevel = %q, RequiresHumanReview = %v", record.RiskLevel, record.RequiresHumanReview)
	}
	if !record.IsAutoApproved {
		t.Error("IsAutoApproved should be true for an approved verdict")
	}
	if record.ReviewCount != 0 {
		t.Errorf("ReviewCount = %d, expected 0", record.ReviewCount)
	}
	if !reflect.DeepEqual(record.ProvidersUsed, []string{"a", "b"}) {
		t.Errorf("ProvidersUsed = %v", record.ProvidersUsed)
	}

	stored, err := store.FindByID(context.Background(), record.ID)
	if err != nil {
		t.Fatalf("FindByID() error = %v", err)
	}
	if stored.ContentRef != "argument-1" || stored.SubmitterID != "user-1" {
		t.Errorf("stored refs = %q, %q", stored.ContentRef, stored.SubmitterID)
	}
	for _, key := range []string{models.MetaProcessingTimeMs, models.MetaAPICalls, models.MetaProviderResults, models.MetaAnalysisID, models.MetaVersion} {
		if _, ok := stored.Metadata[key]; !ok {
			t.Errorf("metadata missing %q: %v", key, stored.Metadata)
		}
	}
	if stored.Metadata[models.MetaAPICalls] != float64(2) {
		t.Errorf("apiCalls = %v, expected 2", stored.Metadata[models.MetaAPICalls])
	}
	if len(stored.ContentHash) != 64 {
		t.Errorf("ContentHash = %q", stored.ContentHash)
	}
}

func TestAnalyzeAndStore_ProviderTimeout(t *testing.T) {
	hanging := moderation.NewAdapter("slow",
		moderation.CompleterFunc(func(ctx context.Context, prompt string) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		}),
		moderation.WithTimeout(50*time.Millisecond),
		moderation.WithRetries(0),
	)
	svc, _ := newTestService(t,
		&fixedProvider{name: "fast", verdict: verdict(true, moderation.RiskLow)},
		hanging,
	)

	record, err := svc.AnalyzeAndStore(context.Background(), &SubmitRequest{Content: "fine"})
	if err != nil {
		t.Fatalf("AnalyzeAndStore() error = %v", err)
	}

	if record.Status != models.StatusRejected {
		t.Errorf("Status = %q, expected REJECTED", record.Status)
	}
	if record.RiskLevel != "MEDIUM" {
		t.Errorf("RiskLevel = %q, expected MEDIUM", record.RiskLevel)
	}
	if record.RequiresHumanReview {
		t.Error("MEDIUM risk should not require human review")
	}
	if !containsString(record.Categories, moderation.CategoryManualReview) {
		t.Errorf("Categories = %v, expected MANUAL_REVIEW", record.Categories)
	}
}

func TestAnalyzeAndStore_CriticalRejection(t *testing.T) {
	svc, _ := newTestService(t,
		&fixedProvider{name: "a", verdict: verdict(false, moderation.RiskCritical, "VIOLENCE")},
		&fixedProvider{name: "b", verdict: verdict(true, moderation.RiskLow, "EDUCATIONAL")},
	)

	record, err := svc.AnalyzeAndStore(context.Background(), &SubmitRequest{Content: "threat"})
	if err != nil {
		t.Fatalf("AnalyzeAndStore() error = %v", err)
	}

	if record.Status != models.StatusRejected || record.RiskLevel != "CRITICAL" {
		t.Errorf("Status = %q, RiskLevel = %q", record.Status, record.RiskLevel)
	}
	if !record.RequiresHumanReview {
		t.Error("CRITICAL risk should require human review")
	}
	if record.IsAutoApproved {
		t.Error("rejected content should not be auto-approved")
	}
	if !reflect.DeepEqual(record.Categories, []string{"VIOLENCE", "EDUCATIONAL"}) {
		t.Errorf("Categories = %v", record.Categories)
	}
}

func TestAnalyzeAndStore_NoProviders(t *testing.T) {
	svc, _ := newTestService(t)

	record, err := svc.AnalyzeAndStore(context.Background(), &SubmitRequest{Content: "anything"})
	if err != nil {
		t.Fatalf("AnalyzeAndStore() error = %v", err)
	}

	if record.Status != models.StatusRejected || record.RiskLevel != "MEDIUM" {
		t.Errorf("Status = %q, RiskLevel = %q", record.Status, record.RiskLevel)
	}
	if record.RequiresHumanReview {
		t.Error("no-provider verdict should not require human review")
	}
	if !reflect.DeepEqual(record.Categories, []string{moderation.CategoryManualReview}) {
		t.Errorf("Categories = %v", record.Categories)
	}
	if len(record.ProvidersUsed) != 0 {
		t.Errorf("ProvidersUsed = %v, expected empty", record.ProvidersUsed)
	}
}

func TestAnalyzeAndStore_RequiresHumanReviewDerivation(t *testing.T) {
	tests := []struct {
		risk     moderation.RiskLevel
		approved bool
		expected bool
	}{
		{moderation.RiskLow, true, false},
		{moderation.RiskMedium, true, false},
		{moderation.RiskMedium, false, false},
		{moderation.RiskHigh, false, true},
		{moderation.RiskHigh, true, true},
		{moderation.RiskCritical, false, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.risk), func(t *testing.T) {
			svc, _ := newTestService(t, &fixedProvider{name: "only", verdict: verdict(tt.approved, tt.risk)})
			record, err := svc.AnalyzeAndStore(context.Background(), &SubmitRequest{Content: "x"})
			if err != nil {
				t.Fatalf("AnalyzeAndStore() error = %v", err)
			}
			if record.RequiresHumanReview != tt.expected {
				t.Errorf("RequiresHumanReview = %v for %s, expected %v", record.RequiresHumanReview, tt.risk, tt.expected)
			}
		})
	}
}

func TestAnalyzeAndStore_PublishesEvents(t *testing.T) {
	svc, _ := newTestService(t, &fixedProvider{name: "a", verdict: verdict(false, moderation.RiskHigh, "HATE_SPEECH")})
	hub := NewSSEHub()
	svc.SetEventHub(hub)
	events := hub.Subscribe("test")
	defer hub.Unsubscribe("test")

	record, err := svc.AnalyzeAndStore(context.Background(), &SubmitRequest{Content: "x"})
	if err != nil {
		t.Fatalf("AnalyzeAndStore() error = %v", err)
	}

	var types []string
	for i := 0; i < 2; i++ {
		select {
		case e := <-events:
			if e.ID != record.ID {
				t.Errorf("event ID = %d, expected %d", e.ID, record.ID)
			}
			types = append(types, e.Type)
		case <-time.After(time.Second):
			t.Fatal("expected two events")
		}
	}
	if !reflect.DeepEqual(types, []string{EventRecordCreated, EventRecordFlagged}) {
		t.Errorf("event types = %v", types)
	}
}

func TestProcessSubmission(t *testing.T) {
	svc, store := newTestService(t, &fixedProvider{name: "a", verdict: verdict(true, moderation.RiskLow)})

	err := svc.ProcessSubmission(context.Background(), &SubmissionTask{Content: "queued", ContentRef: "thread-9"})
	if err != nil {
		t.Fatalf("ProcessSubmission() error = %v", err)
	}

	items, total, _ := store.Find(context.Background(), RecordFilter{}, 0, 10)
	if total != 1 || items[0].ContentRef != "thread-9" {
		t.Errorf("stored %d records, first ref %q", total, items[0].ContentRef)
	}
}

func TestListQueue(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	for i := 0; i < 12; i++ {
		seedRecord(t, store, &models.ModerationRecord{Status: models.StatusApproved})
	}
	seedRecord(t, store, &models.ModerationRecord{Status: models.StatusRejected, RiskLevel: "HIGH"})

	tests := []struct {
		name          string
		filter        QueueFilter
		page, limit   int
		expectedTotal int64
		expectedItems int
		expectedPage  int
		expectedLimit int
	}{
		{"defaults", QueueFilter{}, 0, 0, 13, 10, 1, 10},
		{"second page", QueueFilter{}, 2, 10, 13, 3, 2, 10},
		{"limit clamped up", QueueFilter{}, 1, -5, 13, 1, 1, 1},
		{"limit clamped down", QueueFilter{}, 1, 1000, 13, 13, 1, 100},
		{"status filter lower case", QueueFilter{Status: "rejected"}, 1, 10, 1, 1, 1, 10},
		{"risk filter", QueueFilter{RiskLevel: "high"}, 1, 10, 1, 1, 1, 10},
		{"page past end", QueueFilter{}, 5, 10, 13, 0, 5, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := svc.ListQueue(ctx, tt.filter, tt.page, tt.limit)
			if err != nil {
				t.Fatalf("ListQueue() error = %v", err)
			}
			if page.Total != tt.expectedTotal {
				t.Errorf("Total = %d, expected %d", page.Total, tt.expectedTotal)
			}
			if len(page.Items) != tt.expectedItems {
				t.Errorf("len(Items) = %d, expected %d", len(page.Items), tt.expectedItems)
			}
			if page.Page != tt.expectedPage || page.Limit != tt.expectedLimit {
				t.Errorf("Page, Limit = %d, %d, expected %d, %d", page.Page, page.Limit, tt.expectedPage, tt.expectedLimit)
			}
			if page.Items == nil {
				t.Error("Items should never be nil")
			}
		})
	}
}

func TestListQueue_InvalidFilters(t *testing.T) {
	svc, _ := newTestService(t)

	if _, err := svc.ListQueue(context.Background(), QueueFilter{Status: "DELETED"}, 1, 10); !errors.Is(err, ErrInvalidStatus) {
		t.Errorf("invalid status error = %v, expected ErrInvalidStatus", err)
	}
	if _, err := svc.ListQueue(context.Background(), QueueFilter{RiskLevel: "EXTREME"}, 1, 10); !errors.Is(err, ErrInvalidRiskLevel) {
		t.Errorf("invalid risk error = %v, expected ErrInvalidRiskLevel", err)
	}
}

func TestListFlagged(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	pending := seedRecord(t, store, &models.ModerationRecord{Status: models.StatusPending, RiskLevel: "HIGH", RequiresHumanReview: true})
	flagged := seedRecord(t, store, &models.ModerationRecord{Status: models.StatusFlagged, RiskLevel: "CRITICAL", RequiresHumanReview: true})
	// Rejected high-risk records are already decided.
	seedRecord(t, store, &models.ModerationRecord{Status: models.StatusRejected, RiskLevel: "HIGH", RequiresHumanReview: true})
	seedRecord(t, store, &models.ModerationRecord{Status: models.StatusPending, RiskLevel: "LOW"})

	page, err := svc.ListFlagged(ctx, 1, 10)
	if err != nil {
		t.Fatalf("ListFlagged() error = %v", err)
	}
	if page.Total != 2 {
		t.Fatalf("Total = %d, expected 2", page.Total)
	}
	if page.Items[0].ID != flagged.ID || page.Items[1].ID != pending.ID {
		t.Errorf("flagged order = [%d %d]", page.Items[0].ID, page.Items[1].ID)
	}
}

func TestManualReview(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	r := seedRecord(t, store, &models.ModerationRecord{
		Status:         models.StatusApproved,
		IsAutoApproved: true,
		Metadata:       map[string]interface{}{models.MetaAPICalls: 2},
	})

	updated, err := svc.ManualReview(ctx, r.ID, &ReviewRequest{Status: "flagged", Notes: "needs a second look", ReviewerID: "mod-1"})
	if err != nil {
		t.Fatalf("ManualReview() error = %v", err)
	}

	if updated.Status != models.StatusFlagged {
		t.Errorf("Status = %q, expected FLAGGED", updated.Status)
	}
	if updated.ReviewCount != 1 {
		t.Errorf("ReviewCount = %d, expected 1", updated.ReviewCount)
	}
	if updated.IsAutoApproved {
		t.Error("IsAutoApproved should be false after a manual review")
	}
	if updated.ReviewedBy != "mod-1" || updated.ReviewedAt == nil {
		t.Errorf("ReviewedBy = %q, ReviewedAt = %v", updated.ReviewedBy, updated.ReviewedAt)
	}
	if updated.ManualReviewNotes != "needs a second look" {
		t.Errorf("ManualReviewNotes = %q", updated.ManualReviewNotes)
	}
	if updated.Metadata[models.MetaAPICalls] != float64(2) {
		t.Errorf("existing metadata should be kept, got %v", updated.Metadata)
	}
	if _, ok := updated.Metadata[models.MetaHumanOverride]; ok {
		t.Error("humanOverride should not be set without override")
	}
}

func TestManualReview_OverrideOnSecondCall(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	r := seedRecord(t, store, &models.ModerationRecord{Status: models.StatusRejected, RiskLevel: "HIGH", RequiresHumanReview: true})

	first, err := svc.ManualReview(ctx, r.ID, &ReviewRequest{Status: models.StatusManualReview, ReviewerID: "mod-1"})
	if err != nil {
		t.Fatalf("first ManualReview() error = %v", err)
	}
	if first.IsAutoApproved {
		t.Error("IsAutoApproved should be false after the first review")
	}

	second, err := svc.ManualReview(ctx, r.ID, &ReviewRequest{Status: models.StatusApproved, Notes: "satire, not a threat", Override: true, ReviewerID: "mod-2"})
	if err != nil {
		t.Fatalf("second ManualReview() error = %v", err)
	}

	if second.ReviewCount != 2 {
		t.Errorf("ReviewCount = %d, expected 2", second.ReviewCount)
	}
	if second.Metadata[models.MetaHumanOverride] != true {
		t.Errorf("metadata.humanOverride = %v, expected true", second.Metadata[models.MetaHumanOverride])
	}
	if second.Metadata[models.MetaOverrideReason] != "satire, not a threat" {
		t.Errorf("metadata.overrideReason = %v", second.Metadata[models.MetaOverrideReason])
	}
	if second.IsAutoApproved {
		t.Error("IsAutoApproved should stay false")
	}
	if !second.HumanOverride {
		t.Error("HumanOverride column should be set")
	}
	if second.ReviewedBy != "mod-2" {
		t.Errorf("ReviewedBy = %q, expected mod-2", second.ReviewedBy)
	}
}

func TestManualReview_Errors(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	r := seedRecord(t, store, &models.ModerationRecord{})

	if _, err := svc.ManualReview(ctx, 4242, &ReviewRequest{Status: models.StatusApproved}); !errors.Is(err, ErrRecordNotFound) {
		t.Errorf("unknown id error = %v, expected ErrRecordNotFound", err)
	}
	if _, err := svc.ManualReview(ctx, r.ID, &ReviewRequest{Status: "MAYBE"}); !errors.Is(err, ErrInvalidStatus) {
		t.Errorf("invalid status error = %v, expected ErrInvalidStatus", err)
	}

	unchanged, _ := store.FindByID(ctx, r.ID)
	if unchanged.ReviewCount != 0 {
		t.Errorf("ReviewCount = %d after failed reviews, expected 0", unchanged.ReviewCount)
	}
}

func TestManualReview_ConcurrentNoLostUpdates(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	r := seedRecord(t, store, &models.ModerationRecord{})

	const reviewers = 10
	var wg sync.WaitGroup
	errs := make(chan error, reviewers)
	for i := 0; i < reviewers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.ManualReview(ctx, r.ID, &ReviewRequest{
				Status:     models.StatusManualReview,
				ReviewerID: "mod",
				Override:   i%2 == 0,
			})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("ManualReview() error = %v", err)
		}
	}

	final, err := store.FindByID(ctx, r.ID)
	if err != nil {
		t.Fatalf("FindByID() error = %v", err)
	}
	if final.ReviewCount != reviewers {
		t.Errorf("ReviewCount = %d, expected %d", final.ReviewCount, reviewers)
	}
	if final.Version != reviewers+1 {
		t.Errorf("Version = %d, expected %d", final.Version, reviewers+1)
	}
	if !final.HumanOverride {
		t.Error("an override from any reviewer should stick")
	}
}

func TestManualReview_WritesAuditLog(t *testing.T) {
	svc, store := newTestService(t)
	InitSystemLogger(store.db)
	t.Cleanup(func() { InitSystemLogger(nil) })

	r := seedRecord(t, store, &models.ModerationRecord{})
	_, err := svc.ManualReview(context.Background(), r.ID, &ReviewRequest{
		Status:     models.StatusApproved,
		ReviewerID: "mod-7",
		ClientIP:   "10.1.1.1",
	})
	if err != nil {
		t.Fatalf("ManualReview() error = %v", err)
	}

	logs, err := NewSystemLogService(store.db).List(&SystemLogListRequest{ActorID: "mod-7"})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if logs.Total != 1 {
		t.Fatalf("audit entries = %d, expected 1", logs.Total)
	}
	if logs.Items[0].Action != "manual_review" || logs.Items[0].IP != "10.1.1.1" {
		t.Errorf("audit entry = %+v", logs.Items[0])
	}
}

func TestNormalizePage(t *testing.T) {
	tests := []struct {
		page, limit                 int
		expectedPage, expectedLimit int
	}{
		{0, 0, 1, 10},
		{-3, 5, 1, 5},
		{2, -1, 2, 1},
		{1, 101, 1, 100},
		{4, 100, 4, 100},
	}

	for _, tt := range tests {
		page, limit := normalizePage(tt.page, tt.limit)
		if page != tt.expectedPage || limit != tt.expectedLimit {
			t.Errorf("normalizePage(%d, %d) = (%d, %d), expected (%d, %d)",
				tt.page, tt.limit, page, limit, tt.expectedPage, tt.expectedLimit)
		}
	}
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
