// Package evaluator runs the oracle over a user's top-ranked candidates and
// produces the final match decisions
package evaluator

import (
	"context"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/matching"
	"github.com/Ramsey-B/clover/pkg/metrics"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/oracle"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// Final score blend: the deterministic rule score anchors the result, the
// oracle's confidence adjusts it.
const (
	ruleWeight       = 0.7
	confidenceWeight = 0.3
)

// Oracle produces an eligibility verdict for one user/product pair
type Oracle interface {
	Evaluate(ctx context.Context, user *models.User, product *models.LoanProduct) (*oracle.Verdict, error)
}

// Pacer spaces out successive oracle calls
type Pacer interface {
	Wait(ctx context.Context) error
}

// Config holds the evaluator tunables
type Config struct {
	TopCandidates     int           // Ranked candidates sent to the oracle per user
	FallbackThreshold float64       // Minimum rule score to emit a decision when the oracle is unavailable
	MaxAttempts       int           // Oracle attempts per candidate, including the first
	BackoffBase       time.Duration // First retry delay; doubles per attempt
	CallTimeout       time.Duration // Per-call oracle timeout
}

// DefaultConfig returns the default evaluator tunables
func DefaultConfig() Config {
	return Config{
		TopCandidates:     5,
		FallbackThreshold: 0.6,
		MaxAttempts:       3,
		BackoffBase:       time.Second,
		CallTimeout:       30 * time.Second,
	}
}

// Evaluator turns ranked candidates into match decisions. Candidates are
// evaluated sequentially in ranked order; oracle outages degrade to the
// rule score instead of dropping strong candidates.
type Evaluator struct {
	oracle Oracle
	pacer  Pacer
	logger ectologger.Logger
	config Config
}

// NewEvaluator creates an Evaluator. Zero config fields fall back to the
// defaults.
func NewEvaluator(oracle Oracle, pacer Pacer, logger ectologger.Logger, config Config) *Evaluator {
	defaults := DefaultConfig()
	if config.TopCandidates <= 0 {
		config.TopCandidates = defaults.TopCandidates
	}
	if config.FallbackThreshold <= 0 {
		config.FallbackThreshold = defaults.FallbackThreshold
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = defaults.MaxAttempts
	}
	if config.BackoffBase <= 0 {
		config.BackoffBase = defaults.BackoffBase
	}
	if config.CallTimeout <= 0 {
		config.CallTimeout = defaults.CallTimeout
	}

	return &Evaluator{
		oracle: oracle,
		pacer:  pacer,
		logger: logger,
		config: config,
	}
}

// Evaluate consults the oracle for the user's top-ranked candidates, in
// ranked order, and returns the decisions to persist. The only error it
// returns is context cancellation; per-candidate failures are absorbed by
// the retry and fallback policy.
func (e *Evaluator) Evaluate(ctx context.Context, user *models.User, ranked []matching.ScoredProduct) ([]models.MatchDecision, error) {
	ctx, span := tracing.StartSpan(ctx, "evaluator.Evaluator.Evaluate")
	defer span.End()

	limit := e.config.TopCandidates
	if len(ranked) < limit {
		limit = len(ranked)
	}

	decisions := make([]models.MatchDecision, 0, limit)

	for _, candidate := range ranked[:limit] {
		decision, err := e.evaluateCandidate(ctx, user, candidate)
		if err != nil {
			return nil, err
		}
		if decision != nil {
			decisions = append(decisions, *decision)
		}
	}

	return decisions, nil
}

func (e *Evaluator) evaluateCandidate(ctx context.Context, user *models.User, candidate matching.ScoredProduct) (*models.MatchDecision, error) {
	verdict, err := e.consultOracle(ctx, user, &candidate.Product)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		if !oracle.IsTransient(err) {
			e.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"user_id":         user.ID,
				"loan_product_id": candidate.Product.ID,
			}).Error("Oracle rejected evaluation request, skipping candidate")
			return nil, nil
		}

		e.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"user_id":         user.ID,
			"loan_product_id": candidate.Product.ID,
			"rule_score":      candidate.Score,
		}).Warn("Oracle unavailable, applying rule-based fallback")

		return e.fallbackDecision(user, candidate), nil
	}

	if !verdict.Eligible {
		return nil, nil
	}

	return &models.MatchDecision{
		UserID:    user.ID,
		ProductID: candidate.Product.ID,
		Score:     ruleWeight*candidate.Score + confidenceWeight*verdict.Confidence,
		Status:    verdict.Status,
		Reasons:   database.JSONB[[]string]{Data: verdict.Reasons},
	}, nil
}

// consultOracle paces and retries one candidate's evaluation. Transient
// errors back off exponentially up to MaxAttempts; non-transient errors
// return immediately.
func (e *Evaluator) consultOracle(ctx context.Context, user *models.User, product *models.LoanProduct) (*oracle.Verdict, error) {
	var lastErr error

	for attempt := 1; attempt <= e.config.MaxAttempts; attempt++ {
		if attempt > 1 {
			backoff := e.config.BackoffBase * time.Duration(1<<(attempt-2))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		if err := e.pacer.Wait(ctx); err != nil {
			return nil, err
		}

		callCtx, cancel := context.WithTimeout(ctx, e.config.CallTimeout)
		verdict, err := e.oracle.Evaluate(callCtx, user, product)
		cancel()

		if err == nil {
			metrics.OracleCallsTotal.WithLabelValues("success").Inc()
			return verdict, nil
		}

		lastErr = err
		if !oracle.IsTransient(err) {
			metrics.OracleCallsTotal.WithLabelValues("permanent_error").Inc()
			return nil, err
		}

		metrics.OracleCallsTotal.WithLabelValues("transient_error").Inc()

		e.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"user_id":         user.ID,
			"loan_product_id": product.ID,
		}).Warnf("Oracle call failed, attempt %d of %d", attempt, e.config.MaxAttempts)
	}

	return nil, lastErr
}

// fallbackDecision degrades to the deterministic rule when the oracle is
// unavailable: strong rule scores still match, weaker ones are dropped
func (e *Evaluator) fallbackDecision(user *models.User, candidate matching.ScoredProduct) *models.MatchDecision {
	if candidate.Score <= e.config.FallbackThreshold {
		return nil
	}

	metrics.OracleFallbacksTotal.Inc()

	return &models.MatchDecision{
		UserID:    user.ID,
		ProductID: candidate.Product.ID,
		Score:     candidate.Score,
		Status:    models.EligibilityStatusLikelyEligible,
		Reasons: database.JSONB[[]string]{
			Data: []string{
				"Rule-based match",
				fmt.Sprintf("Score: %.2f", candidate.Score),
				"Automated evaluation unavailable, matched on rules alone",
			},
		},
	}
}
