package oracle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/pkg/models"
)

func TestParseVerdict_StrictJSON(t *testing.T) {
	raw := `{
		"eligible": true,
		"confidence": 0.85,
		"status": "eligible",
		"reasons": ["Credit score well above minimum", "Income exceeds requirement"],
		"risk_factors": ["Short credit history"]
	}`

	verdict, err := parseVerdict(raw)
	require.NoError(t, err)

	assert.True(t, verdict.Eligible)
	assert.Equal(t, 0.85, verdict.Confidence)
	assert.Equal(t, models.EligibilityStatusEligible, verdict.Status)
	assert.Equal(t, []string{"Credit score well above minimum", "Income exceeds requirement"}, verdict.Reasons)
	assert.Equal(t, []string{"Short credit history"}, verdict.RiskFactors)
}

func TestParseVerdict_StripsCodeFences(t *testing.T) {
	raw := "```json\n{\"eligible\": false, \"confidence\": 0.4, \"status\": \"needs_review\", \"reasons\": [\"Income below minimum\"]}\n```"

	verdict, err := parseVerdict(raw)
	require.NoError(t, err)

	assert.False(t, verdict.Eligible)
	assert.Equal(t, 0.4, verdict.Confidence)
	assert.Equal(t, models.EligibilityStatusNeedsReview, verdict.Status)
}

func TestParseVerdict_CoercesLooseTypes(t *testing.T) {
	raw := `{"eligible": "true", "confidence": "0.75", "status": "LIKELY_ELIGIBLE", "reasons": ["ok"]}`

	verdict, err := parseVerdict(raw)
	require.NoError(t, err)

	assert.True(t, verdict.Eligible)
	assert.Equal(t, 0.75, verdict.Confidence)
	assert.Equal(t, models.EligibilityStatusLikelyEligible, verdict.Status)
}

func TestParseVerdict_ClampsConfidence(t *testing.T) {
	raw := `{"eligible": true, "confidence": 1.7, "status": "eligible", "reasons": []}`

	verdict, err := parseVerdict(raw)
	require.NoError(t, err)
	assert.Equal(t, 1.0, verdict.Confidence)
}

func TestParseVerdict_UnknownStatusBecomesNeedsReview(t *testing.T) {
	raw := `{"eligible": true, "confidence": 0.9, "status": "approved", "reasons": ["ok"]}`

	verdict, err := parseVerdict(raw)
	require.NoError(t, err)
	assert.Equal(t, models.EligibilityStatusNeedsReview, verdict.Status)
}

func TestParseVerdict_LenientOnMalformedJSON(t *testing.T) {
	verdict, err := parseVerdict("The user appears eligible: true, based on their strong credit profile.")
	require.NoError(t, err)

	assert.True(t, verdict.Eligible)
	assert.Equal(t, 0.7, verdict.Confidence)
	assert.Equal(t, models.EligibilityStatusLikelyEligible, verdict.Status)
	assert.Equal(t, []string{"AI analysis suggests eligibility"}, verdict.Reasons)
}

func TestParseVerdict_LenientNegative(t *testing.T) {
	verdict, err := parseVerdict("Unable to determine a clear outcome for this applicant.")
	require.NoError(t, err)

	assert.False(t, verdict.Eligible)
	assert.Equal(t, 0.3, verdict.Confidence)
	assert.Equal(t, models.EligibilityStatusNeedsReview, verdict.Status)
	assert.Equal(t, []string{"AI analysis suggests review needed"}, verdict.Reasons)
}

func TestParseVerdict_MissingRequiredKeyFallsBackToLenient(t *testing.T) {
	raw := `{"eligible": true, "confidence": 0.9, "status": "eligible"}`

	verdict, err := parseVerdict(raw)
	require.NoError(t, err)

	// No "reasons" key, so the strict result is discarded
	assert.Equal(t, models.EligibilityStatusLikelyEligible, verdict.Status)
	assert.Equal(t, 0.7, verdict.Confidence)
}

func TestParseVerdict_EmptyResponse(t *testing.T) {
	_, err := parseVerdict("   ")
	assert.ErrorIs(t, err, ErrEmptyResponse)
}
