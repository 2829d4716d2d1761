package services

import (
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/debatehub/backend/internal/models"
	"github.com/debatehub/backend/internal/moderation"
)

func TestNewProviderCallLog(t *testing.T) {
	r := moderation.Result{
		Provider: "gpt",
		Backend:  "openai",
		Verdict:  moderation.FallbackVerdict(),
		Fallback: true,
		Attempts: 2,
		Latency:  1500 * time.Millisecond,
		Err:      errors.New(strings.Repeat("x", 600)),
	}

	entry := newProviderCallLog(r)
	if entry.Provider != "gpt" || entry.Backend != "openai" {
		t.Errorf("Provider, Backend = %q, %q", entry.Provider, entry.Backend)
	}
	if entry.Success {
		t.Error("fallback result should not count as success")
	}
	if entry.LatencyMs != 1500 {
		t.Errorf("LatencyMs = %d, expected 1500", entry.LatencyMs)
	}
	if entry.RiskLevel != "MEDIUM" {
		t.Errorf("RiskLevel = %q, expected MEDIUM", entry.RiskLevel)
	}
	if len(entry.ErrorMessage) != 500 {
		t.Errorf("ErrorMessage length = %d, expected truncation to 500", len(entry.ErrorMessage))
	}
}

func TestTruncateRunes(t *testing.T) {
	tests := []struct {
		name string
		in   string
		n    int
		want int
	}{
		{"short ascii", "timeout", 500, 7},
		{"long ascii", strings.Repeat("x", 600), 500, 500},
		{"multibyte", strings.Repeat("é", 600), 500, 500},
		{"mixed", "a" + strings.Repeat("語", 10), 5, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := truncateRunes(tt.in, tt.n)
			if !utf8.ValidString(got) {
				t.Errorf("truncateRunes() produced invalid UTF-8: %q", got)
			}
			if n := utf8.RuneCountInString(got); n != tt.want {
				t.Errorf("rune count = %d, expected %d", n, tt.want)
			}
		})
	}
}

func TestProviderUsageService_Breakdown(t *testing.T) {
	db := newTestDB(t)
	svc := NewProviderUsageService(db)

	now := time.Now()
	entries := []*models.ProviderCallLog{
		{Provider: "gpt", Success: true, LatencyMs: 100, Attempts: 1, CreatedAt: now},
		{Provider: "gpt", Success: true, LatencyMs: 300, Attempts: 1, CreatedAt: now},
		{Provider: "gpt", Success: false, LatencyMs: 200, Attempts: 3, CreatedAt: now},
		{Provider: "claude", Success: true, LatencyMs: 50, Attempts: 1, CreatedAt: now},
		{Provider: "claude", Success: false, LatencyMs: 50, Attempts: 1, CreatedAt: now.AddDate(0, 0, -10)},
	}
	for _, e := range entries {
		if err := svc.Record(e); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}

	usage, err := svc.Breakdown(nil)
	if err != nil {
		t.Fatalf("Breakdown() error = %v", err)
	}
	if len(usage) != 2 {
		t.Fatalf("len(usage) = %d, expected 2", len(usage))
	}
	gpt := usage[0]
	if gpt.Provider != "gpt" || gpt.Calls != 3 || gpt.SuccessCount != 2 {
		t.Errorf("gpt usage = %+v", gpt)
	}
	if gpt.AvgLatencyMs != 200 {
		t.Errorf("AvgLatencyMs = %v, expected 200", gpt.AvgLatencyMs)
	}

	since := now.AddDate(0, 0, -1)
	usage, err = svc.Breakdown(&since)
	if err != nil {
		t.Fatalf("Breakdown(since) error = %v", err)
	}
	for _, u := range usage {
		if u.Provider == "claude" && (u.Calls != 1 || u.SuccessRate != 100) {
			t.Errorf("claude usage since yesterday = %+v", u)
		}
	}

	deleted, err := svc.CleanupBefore(since)
	if err != nil {
		t.Fatalf("CleanupBefore() error = %v", err)
	}
	if deleted != 1 {
		t.Errorf("CleanupBefore() deleted %d, expected 1", deleted)
	}
}

func TestProviderUsageService_BreakdownEmpty(t *testing.T) {
	usage, err := NewProviderUsageService(newTestDB(t)).Breakdown(nil)
	if err != nil {
		t.Fatalf("Breakdown() error = %v", err)
	}
	if usage == nil || len(usage) != 0 {
		t.Errorf("Breakdown() = %v, expected empty slice", usage)
	}
}
