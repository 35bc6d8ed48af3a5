package evaluator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/Ramsey-B/clover/pkg/matching"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/oracle"
)

type staticOracle struct {
	verdict *oracle.Verdict
	err     error
	calls   []string
}

func (s *staticOracle) Evaluate(_ context.Context, _ *models.User, product *models.LoanProduct) (*oracle.Verdict, error) {
	s.calls = append(s.calls, product.ID)
	if s.err != nil {
		return nil, s.err
	}
	return s.verdict, nil
}

type flakyOracle struct {
	failures int
	failWith error
	verdict  *oracle.Verdict
	calls    int
}

func (f *flakyOracle) Evaluate(_ context.Context, _ *models.User, _ *models.LoanProduct) (*oracle.Verdict, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, f.failWith
	}
	return f.verdict, nil
}

type countingPacer struct {
	waits int
}

func (c *countingPacer) Wait(ctx context.Context) error {
	c.waits++
	return ctx.Err()
}

func noopLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func testConfig() Config {
	return Config{
		TopCandidates:     5,
		FallbackThreshold: 0.6,
		MaxAttempts:       3,
		BackoffBase:       time.Millisecond,
		CallTimeout:       time.Second,
	}
}

func evalUser() *models.User {
	return &models.User{ID: "u-1", UserID: "ext-1", CreditScore: 780, MonthlyIncome: 6250, EmploymentStatus: models.EmploymentStatusEmployed, Age: 32}
}

func scored(id string, score float64) matching.ScoredProduct {
	return matching.ScoredProduct{
		Product: models.LoanProduct{ID: id, ProductName: "Loan " + id, LenderName: "Lender", InterestRateMin: 9.5},
		Score:   score,
	}
}

func TestEvaluate_EligibleVerdictBlendsScores(t *testing.T) {
	stub := &staticOracle{verdict: &oracle.Verdict{
		Eligible:   true,
		Confidence: 0.9,
		Status:     models.EligibilityStatusEligible,
		Reasons:    []string{"Strong credit profile"},
	}}
	e := NewEvaluator(stub, &countingPacer{}, noopLogger(), testConfig())

	decisions, err := e.Evaluate(context.Background(), evalUser(), []matching.ScoredProduct{scored("p-1", 0.8)})
	require.NoError(t, err)
	require.Len(t, decisions, 1)

	d := decisions[0]
	assert.Equal(t, "u-1", d.UserID)
	assert.Equal(t, "p-1", d.ProductID)
	assert.InDelta(t, 0.7*0.8+0.3*0.9, d.Score, 0.000001)
	assert.Equal(t, models.EligibilityStatusEligible, d.Status)
	assert.Equal(t, []string{"Strong credit profile"}, d.Reasons.GetValue())
}

func TestEvaluate_IneligibleVerdictEmitsNothing(t *testing.T) {
	stub := &staticOracle{verdict: &oracle.Verdict{
		Eligible:   false,
		Confidence: 0.4,
		Status:     models.EligibilityStatusNeedsReview,
		Reasons:    []string{"Income below minimum"},
	}}
	e := NewEvaluator(stub, &countingPacer{}, noopLogger(), testConfig())

	decisions, err := e.Evaluate(context.Background(), evalUser(), []matching.ScoredProduct{scored("p-1", 0.9)})
	require.NoError(t, err)
	assert.Empty(t, decisions)
	assert.Len(t, stub.calls, 1)
}

func TestEvaluate_OnlyTopCandidatesInRankedOrder(t *testing.T) {
	stub := &staticOracle{verdict: &oracle.Verdict{Eligible: true, Confidence: 0.8, Status: models.EligibilityStatusEligible, Reasons: []string{"ok"}}}
	e := NewEvaluator(stub, &countingPacer{}, noopLogger(), testConfig())

	ranked := []matching.ScoredProduct{
		scored("p-1", 0.9), scored("p-2", 0.85), scored("p-3", 0.8),
		scored("p-4", 0.75), scored("p-5", 0.7), scored("p-6", 0.65), scored("p-7", 0.6),
	}

	decisions, err := e.Evaluate(context.Background(), evalUser(), ranked)
	require.NoError(t, err)

	assert.Len(t, decisions, 5)
	assert.Equal(t, []string{"p-1", "p-2", "p-3", "p-4", "p-5"}, stub.calls)
}

func TestEvaluate_TransientExhaustionFallsBackToRuleScore(t *testing.T) {
	stub := &staticOracle{err: genai.APIError{Code: 503, Message: "unavailable"}}
	pacer := &countingPacer{}
	e := NewEvaluator(stub, pacer, noopLogger(), testConfig())

	ranked := []matching.ScoredProduct{
		scored("strong", 0.75),
		scored("weak", 0.45), // below the fallback threshold
	}

	decisions, err := e.Evaluate(context.Background(), evalUser(), ranked)
	require.NoError(t, err)
	require.Len(t, decisions, 1)

	d := decisions[0]
	assert.Equal(t, "strong", d.ProductID)
	assert.Equal(t, 0.75, d.Score)
	assert.Equal(t, models.EligibilityStatusLikelyEligible, d.Status)
	assert.Equal(t, []string{"Rule-based match", "Score: 0.75", "Automated evaluation unavailable, matched on rules alone"}, d.Reasons.GetValue())

	// Three attempts per candidate, each paced
	assert.Len(t, stub.calls, 6)
	assert.Equal(t, 6, pacer.waits)
}

func TestEvaluate_FallbackNeverInflatesScores(t *testing.T) {
	stub := &staticOracle{err: errors.New("connection reset")}
	e := NewEvaluator(stub, &countingPacer{}, noopLogger(), testConfig())

	ranked := []matching.ScoredProduct{
		scored("p-1", 0.92), scored("p-2", 0.77), scored("p-3", 0.61),
	}

	decisions, err := e.Evaluate(context.Background(), evalUser(), ranked)
	require.NoError(t, err)
	require.Len(t, decisions, 3)

	byProduct := map[string]models.MatchDecision{}
	for _, d := range decisions {
		byProduct[d.ProductID] = d
	}

	for _, candidate := range ranked {
		d, ok := byProduct[candidate.Product.ID]
		require.True(t, ok)
		assert.Equal(t, candidate.Score, d.Score)
		assert.Equal(t, models.EligibilityStatusLikelyEligible, d.Status)
	}
}

func TestEvaluate_PermanentErrorSkipsCandidateWithoutRetry(t *testing.T) {
	stub := &staticOracle{err: genai.APIError{Code: 401, Message: "invalid api key"}}
	e := NewEvaluator(stub, &countingPacer{}, noopLogger(), testConfig())

	ranked := []matching.ScoredProduct{scored("p-1", 0.95), scored("p-2", 0.9)}

	decisions, err := e.Evaluate(context.Background(), evalUser(), ranked)
	require.NoError(t, err)

	// No fallback on permanent errors, and no retries either
	assert.Empty(t, decisions)
	assert.Equal(t, []string{"p-1", "p-2"}, stub.calls)
}

func TestEvaluate_TransientThenSuccess(t *testing.T) {
	stub := &flakyOracle{
		failures: 1,
		failWith: genai.APIError{Code: 429, Message: "quota exceeded"},
		verdict:  &oracle.Verdict{Eligible: true, Confidence: 0.6, Status: models.EligibilityStatusLikelyEligible, Reasons: []string{"ok"}},
	}
	e := NewEvaluator(stub, &countingPacer{}, noopLogger(), testConfig())

	decisions, err := e.Evaluate(context.Background(), evalUser(), []matching.ScoredProduct{scored("p-1", 0.8)})
	require.NoError(t, err)

	require.Len(t, decisions, 1)
	assert.Equal(t, 2, stub.calls)
	assert.InDelta(t, 0.7*0.8+0.3*0.6, decisions[0].Score, 0.000001)
}

func TestEvaluate_ContextCancellationStopsEvaluation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	stub := &staticOracle{err: ctx.Err()}
	e := NewEvaluator(stub, &countingPacer{}, noopLogger(), testConfig())

	_, err := e.Evaluate(ctx, evalUser(), []matching.ScoredProduct{scored("p-1", 0.9)})
	assert.ErrorIs(t, err, context.Canceled)
}
