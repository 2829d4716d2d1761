// Package moderation classifies user content with one or more AI providers
// and reconciles their verdicts under a risk-averse consensus rule.
package moderation

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strings"
)

// RiskLevel is totally ordered: LOW < MEDIUM < HIGH < CRITICAL.
type RiskLevel string

const (
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"
)

// CategoryManualReview tags verdicts that could not be produced by an AI.
const CategoryManualReview = "MANUAL_REVIEW"

var riskRank = map[RiskLevel]int{
	RiskLow:      0,
	RiskMedium:   1,
	RiskHigh:     2,
	RiskCritical: 3,
}

// RiskLevels lists every level in ascending order.
var RiskLevels = []RiskLevel{RiskLow, RiskMedium, RiskHigh, RiskCritical}

// ParseRiskLevel accepts any letter case and surrounding spaces.
func ParseRiskLevel(s string) (RiskLevel, error) {
	level := RiskLevel(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := riskRank[level]; !ok {
		return "", fmt.Errorf("unknown risk level %q", s)
	}
	return level, nil
}

func (r RiskLevel) Valid() bool {
	_, ok := riskRank[r]
	return ok
}

// Compare returns -1, 0 or 1. Unknown levels rank as MEDIUM.
func (r RiskLevel) Compare(other RiskLevel) int {
	a, b := r.rank(), other.rank()
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func (r RiskLevel) rank() int {
	if n, ok := riskRank[r]; ok {
		return n
	}
	return riskRank[RiskMedium]
}

// RequiresHumanReview reports whether content at this level must be looked at by a moderator.
func (r RiskLevel) RequiresHumanReview() bool {
	return r.Compare(RiskHigh) >= 0
}

func MaxRisk(a, b RiskLevel) RiskLevel {
	if a.Compare(b) >= 0 {
		return a
	}
	return b
}

func MinRisk(a, b RiskLevel) RiskLevel {
	if a.Compare(b) <= 0 {
		return a
	}
	return b
}

// Verdict is one classification outcome, from a single provider or from consensus.
type Verdict struct {
	Approved    bool      `json:"approved"`
	Confidence  float64   `json:"confidence"`
	RiskLevel   RiskLevel `json:"risk_level"`
	Categories  []string  `json:"categories"`
	Reasons     []string  `json:"reasons"`
	Suggestions []string  `json:"suggestions"`
}

// HasCategory reports whether the verdict carries the given tag.
func (v Verdict) HasCategory(category string) bool {
	for _, c := range v.Categories {
		if c == category {
			return true
		}
	}
	return false
}

// String renders the verdict as compact JSON, for logs.
func (v Verdict) String() string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("{approved:%t risk:%s}", v.Approved, v.RiskLevel)
	}
	return string(b)
}

// FallbackVerdict is substituted whenever a provider cannot produce an answer.
func FallbackVerdict() Verdict {
	return Verdict{
		Approved:    false,
		Confidence:  0.5,
		RiskLevel:   RiskMedium,
		Categories:  []string{CategoryManualReview},
		Reasons:     []string{"service unavailable"},
		Suggestions: []string{},
	}
}

// NoProviderVerdict is returned when no AI provider is configured at all.
func NoProviderVerdict() Verdict {
	return Verdict{
		Approved:    false,
		Confidence:  0.5,
		RiskLevel:   RiskMedium,
		Categories:  []string{CategoryManualReview},
		Reasons:     []string{"no AI provider configured"},
		Suggestions: []string{},
	}
}

// Merge combines two verdicts risk-aversely: approval requires both, and a
// rejecting side always contributes its full risk.
func Merge(a, b Verdict) Verdict {
	merged := Verdict{
		Approved:    a.Approved && b.Approved,
		Categories:  unionStrings(a.Categories, b.Categories),
		Reasons:     concatStrings(a.Reasons, b.Reasons),
		Suggestions: concatStrings(a.Suggestions, b.Suggestions),
	}

	if merged.Approved {
		merged.Confidence = max(a.Confidence, b.Confidence)
		merged.RiskLevel = MinRisk(a.RiskLevel, b.RiskLevel)
	} else {
		merged.Confidence = min(a.Confidence, b.Confidence)
		merged.RiskLevel = MaxRisk(a.RiskLevel, b.RiskLevel)
	}

	return merged
}

// MergeAll folds verdicts left to right, keeping reasons in input order.
func MergeAll(verdicts []Verdict) Verdict {
	if len(verdicts) == 0 {
		return NoProviderVerdict()
	}
	merged := normalize(verdicts[0])
	for _, v := range verdicts[1:] {
		merged = Merge(merged, v)
	}
	return merged
}

// Sanitize forces a verdict from an arbitrary provider back into range:
// unknown risk becomes MEDIUM, confidence is clamped to [0,1] and lists are
// never nil.
func Sanitize(v Verdict) Verdict {
	if !v.RiskLevel.Valid() {
		v.RiskLevel = RiskMedium
	}
	switch {
	case math.IsNaN(v.Confidence), v.Confidence < 0:
		v.Confidence = 0
	case v.Confidence > 1:
		v.Confidence = 1
	}
	if v.Categories == nil {
		v.Categories = []string{}
	}
	if v.Reasons == nil {
		v.Reasons = []string{}
	}
	if v.Suggestions == nil {
		v.Suggestions = []string{}
	}
	return v
}

// IsFallback reports whether v is the verdict substituted for an unavailable provider.
func IsFallback(v Verdict) bool {
	fb := FallbackVerdict()
	return v.Approved == fb.Approved &&
		v.Confidence == fb.Confidence &&
		v.RiskLevel == fb.RiskLevel &&
		slices.Equal(v.Categories, fb.Categories) &&
		slices.Equal(v.Reasons, fb.Reasons)
}

func normalize(v Verdict) Verdict {
	v.Categories = unionStrings(v.Categories, nil)
	v.Reasons = concatStrings(v.Reasons, nil)
	v.Suggestions = concatStrings(v.Suggestions, nil)
	return v
}

func unionStrings(a, b []string) []string {
	out := make([]string, 0, len(a)+len(b))
	seen := make(map[string]struct{}, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, s := range list {
			if _, ok := seen[s]; ok {
				continue
			}
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	return out
}

func concatStrings(a, b []string) []string {
	out := make([]string, 0, len(a)+len(b))
	out = append(out, a...)
	return append(out, b...)
}
