package moderation

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var errNoVerdictJSON = errors.New("no verdict JSON object found in response")

// providerVerdict is the JSON shape the prompt asks models to answer with.
type providerVerdict struct {
	IsApproved  *bool    `json:"isApproved"`
	Approved    *bool    `json:"approved"`
	Confidence  *float64 `json:"confidence"`
	Reasons     []string `json:"reasons"`
	RiskLevel   string   `json:"riskLevel"`
	Categories  []string `json:"categories"`
	Suggestions []string `json:"suggestions"`
}

// ParseVerdict extracts the first well-formed verdict object embedded in free
// text (models often wrap JSON in prose or markdown fences).
func ParseVerdict(text string) (Verdict, error) {
	var lastErr error = errNoVerdictJSON

	for i := strings.IndexByte(text, '{'); i >= 0; {
		var raw providerVerdict
		dec := json.NewDecoder(strings.NewReader(text[i:]))
		if err := dec.Decode(&raw); err == nil {
			v, convErr := raw.toVerdict()
			if convErr == nil {
				return v, nil
			}
			lastErr = convErr
		}

		next := strings.IndexByte(text[i+1:], '{')
		if next < 0 {
			break
		}
		i += next + 1
	}

	return Verdict{}, lastErr
}

func (p providerVerdict) toVerdict() (Verdict, error) {
	approved := p.IsApproved
	if approved == nil {
		approved = p.Approved
	}
	if approved == nil {
		return Verdict{}, errors.New("verdict missing isApproved")
	}

	risk, err := ParseRiskLevel(p.RiskLevel)
	if err != nil {
		return Verdict{}, fmt.Errorf("verdict riskLevel: %w", err)
	}

	confidence := 0.5
	if p.Confidence != nil {
		confidence = clampConfidence(*p.Confidence)
	}

	categories := make([]string, 0, len(p.Categories))
	for _, c := range p.Categories {
		if c = strings.ToUpper(strings.TrimSpace(c)); c != "" {
			categories = append(categories, c)
		}
	}

	return Verdict{
		Approved:    *approved,
		Confidence:  confidence,
		RiskLevel:   risk,
		Categories:  unionStrings(categories, nil),
		Reasons:     nonEmpty(p.Reasons),
		Suggestions: nonEmpty(p.Suggestions),
	}, nil
}

// Models occasionally answer on a 0-100 scale. Values just above 1 are
// overshoot, not percentages.
func clampConfidence(c float64) float64 {
	if c >= 2 && c <= 100 {
		c /= 100
	}
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

func nonEmpty(list []string) []string {
	out := make([]string, 0, len(list))
	for _, s := range list {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
