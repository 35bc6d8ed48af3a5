package oracle

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/Ramsey-B/clover/pkg/models"
)

// Verdict is the oracle's structured eligibility assessment for one
// user/product pair
type Verdict struct {
	Eligible    bool                     `json:"eligible"`
	Confidence  float64                  `json:"confidence"`
	Status      models.EligibilityStatus `json:"status"`
	Reasons     []string                 `json:"reasons"`
	RiskFactors []string                 `json:"risk_factors,omitempty"`
}

// parseVerdict decodes the model's response. Strict JSON first; text that
// does not decode, or decodes without the required keys, gets a lenient
// keyword pass instead.
func parseVerdict(raw string) (*Verdict, error) {
	cleaned := extractJSON(raw)
	if cleaned == "" {
		return nil, ErrEmptyResponse
	}

	var data map[string]any
	if err := json.Unmarshal([]byte(cleaned), &data); err != nil {
		return lenientVerdict(raw), nil
	}

	for _, key := range []string{"eligible", "confidence", "status", "reasons"} {
		if _, ok := data[key]; !ok {
			return lenientVerdict(raw), nil
		}
	}

	return &Verdict{
		Eligible:    coerceBool(data["eligible"]),
		Confidence:  clampConfidence(coerceFloat(data["confidence"])),
		Status:      normalizeStatus(coerceString(data["status"])),
		Reasons:     coerceStrings(data["reasons"]),
		RiskFactors: coerceStrings(data["risk_factors"]),
	}, nil
}

// lenientVerdict maps free-form model text to a conservative verdict on
// keyword presence alone
func lenientVerdict(raw string) *Verdict {
	text := strings.ToLower(raw)

	if strings.Contains(text, "eligible") && strings.Contains(text, "true") {
		return &Verdict{
			Eligible:   true,
			Confidence: 0.7,
			Status:     models.EligibilityStatusLikelyEligible,
			Reasons:    []string{"AI analysis suggests eligibility"},
		}
	}

	return &Verdict{
		Eligible:   false,
		Confidence: 0.3,
		Status:     models.EligibilityStatusNeedsReview,
		Reasons:    []string{"AI analysis suggests review needed"},
	}
}

// extractJSON strips markdown code fences the model tends to wrap JSON in
func extractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSpace(raw)
		if idx := strings.LastIndex(raw, "```"); idx != -1 {
			raw = raw[:idx]
		}
	}
	raw = strings.Trim(raw, "`")
	return strings.TrimSpace(raw)
}

func normalizeStatus(s string) models.EligibilityStatus {
	switch models.EligibilityStatus(strings.ToLower(strings.TrimSpace(s))) {
	case models.EligibilityStatusEligible:
		return models.EligibilityStatusEligible
	case models.EligibilityStatusLikelyEligible:
		return models.EligibilityStatusLikelyEligible
	default:
		return models.EligibilityStatusNeedsReview
	}
}

func clampConfidence(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func coerceBool(v any) bool {
	switch val := v.(type) {
	case bool:
		return val
	case string:
		lower := strings.ToLower(strings.TrimSpace(val))
		return lower == "true" || lower == "yes"
	case float64:
		return val != 0
	default:
		return false
	}
}

func coerceFloat(v any) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case int:
		return float64(val)
	case string:
		trimmed := strings.TrimSpace(val)
		if trimmed == "" {
			return math.NaN()
		}
		f, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return math.NaN()
		}
		return f
	default:
		return math.NaN()
	}
}

func coerceString(v any) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case fmt.Stringer:
		return strings.TrimSpace(val.String())
	default:
		if v == nil {
			return ""
		}
		bytes, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(bytes)
	}
}

func coerceStrings(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}

	out := make([]string, 0, len(items))
	for _, item := range items {
		if s := coerceString(item); s != "" {
			out = append(out, s)
		}
	}
	return out
}
