// Package pipeline orchestrates matching runs: it drives users through the
// prefilter, scorer, and evaluator stages in batches and records each run's
// lifecycle in the processing log.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/matching"
	"github.com/Ramsey-B/clover/pkg/metrics"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// Evaluator turns a user's ranked candidates into match decisions
type Evaluator interface {
	Evaluate(ctx context.Context, user *models.User, ranked []matching.ScoredProduct) ([]models.MatchDecision, error)
}

// Emitter publishes pipeline events for downstream consumers. Emission
// failures never affect the run.
type Emitter interface {
	EmitRunStarted(ctx context.Context, runID string) error
	EmitMatchesCommitted(ctx context.Context, runID string, decisions []models.MatchDecision) error
	EmitRunCompleted(ctx context.Context, runID string, usersProcessed, matchesCreated int) error
	EmitRunFailed(ctx context.Context, runID string, reason string) error
}

// Config holds the orchestration tunables
type Config struct {
	BatchSize int // Users pulled per batch
}

// DefaultConfig returns the default orchestration tunables
func DefaultConfig() Config {
	return Config{BatchSize: 100}
}

// Result summarizes one matching run
type Result struct {
	LogID          string               `json:"log_id"`
	Status         models.ProcessStatus `json:"status"`
	UsersProcessed int                  `json:"users_processed"`
	MatchesCreated int                  `json:"matches_created"`
}

// Runner executes matching runs. A run walks unprocessed users in batches;
// each user flows through prefilter, scorer, and evaluator in sequence, and
// each batch commits decisions, processed flags, and the run's record count
// in one transaction.
type Runner struct {
	store     Store
	prefilter *matching.Prefilter
	scorer    *matching.Scorer
	evaluator Evaluator
	emitter   Emitter
	logger    ectologger.Logger
	config    Config
}

// NewRunner creates a Runner. The emitter may be nil when no event transport
// is configured.
func NewRunner(store Store, prefilter *matching.Prefilter, scorer *matching.Scorer, evaluator Evaluator, emitter Emitter, logger ectologger.Logger, config Config) *Runner {
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultConfig().BatchSize
	}

	return &Runner{
		store:     store,
		prefilter: prefilter,
		scorer:    scorer,
		evaluator: evaluator,
		emitter:   emitter,
		logger:    logger,
		config:    config,
	}
}

type runTotals struct {
	attempted int
	processed int
	matches   int
}

// Run executes one matching run end to end and returns its summary. The run
// is recorded as started before any work happens and always reaches a
// terminal log status, even when cancelled mid-batch.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	ctx, span := tracing.StartSpan(ctx, "pipeline.Runner.Run")
	defer span.End()

	started := time.Now()

	detail := "Starting user-loan matching pipeline"
	entry, err := r.store.AppendLog(ctx, &models.ProcessingLog{
		ProcessType: models.ProcessTypeMatching,
		Status:      models.ProcessStatusStarted,
		Details:     &detail,
	})
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to record run start")
		return nil, err
	}

	logger := r.logger.WithContext(ctx).WithFields(map[string]any{"log_id": entry.ID})
	logger.Info("Matching run started")
	r.emitRunStarted(ctx, entry.ID)

	totals, runErr := r.runBatches(ctx, entry.ID)

	// Terminal log writes survive run cancellation
	finishCtx := context.WithoutCancel(ctx)

	if runErr != nil {
		if err := r.store.FinishLog(finishCtx, entry.ID, models.ProcessStatusFailed, fmt.Sprintf("Error during matching: %v", runErr)); err != nil {
			logger.WithError(err).Error("Failed to record run failure")
		}

		r.emitRunFailed(finishCtx, entry.ID, runErr.Error())
		metrics.MatchingRunsTotal.WithLabelValues(string(models.ProcessStatusFailed)).Inc()
		metrics.MatchingRunDuration.Observe(time.Since(started).Seconds())

		logger.WithError(runErr).Error("Matching run failed")
		return &Result{
			LogID:          entry.ID,
			Status:         models.ProcessStatusFailed,
			UsersProcessed: totals.processed,
			MatchesCreated: totals.matches,
		}, runErr
	}

	summary := fmt.Sprintf("Successfully processed %d users, created %d matches", totals.processed, totals.matches)
	if totals.attempted == 0 {
		summary = "No unprocessed users found"
	}

	if err := r.store.FinishLog(finishCtx, entry.ID, models.ProcessStatusCompleted, summary); err != nil {
		logger.WithError(err).Error("Failed to record run completion")
		return nil, err
	}

	r.emitRunCompleted(finishCtx, entry.ID, totals.processed, totals.matches)
	metrics.MatchingRunsTotal.WithLabelValues(string(models.ProcessStatusCompleted)).Inc()
	metrics.MatchingRunDuration.Observe(time.Since(started).Seconds())
	metrics.UsersProcessed.Add(float64(totals.processed))
	metrics.MatchesCreated.Add(float64(totals.matches))

	logger.WithFields(map[string]any{
		"users_processed": totals.processed,
		"matches_created": totals.matches,
	}).Info("Matching run completed")

	return &Result{
		LogID:          entry.ID,
		Status:         models.ProcessStatusCompleted,
		UsersProcessed: totals.processed,
		MatchesCreated: totals.matches,
	}, nil
}

// runBatches drains unprocessed users in batches until none remain. Users
// whose evaluation failed this run are not refetched; they stay unprocessed
// for the next run.
func (r *Runner) runBatches(ctx context.Context, logID string) (runTotals, error) {
	var totals runTotals

	users, err := r.store.FetchUnprocessedUsers(ctx, r.config.BatchSize)
	if err != nil {
		return totals, err
	}

	if len(users) == 0 {
		return totals, nil
	}

	// The catalog is loaded once per run; an empty catalog is a precondition
	// violation, not a per-user failure, and no user may be touched.
	products, err := r.store.FetchActiveProducts(ctx)
	if err != nil {
		return totals, err
	}
	if len(products) == 0 {
		return totals, errors.New("no active loan products found")
	}

	attempted := make(map[string]bool)
	batchNum := 0

	for len(users) > 0 {
		batch := make([]models.User, 0, len(users))
		for _, u := range users {
			if !attempted[u.ID] {
				batch = append(batch, u)
			}
		}
		if len(batch) == 0 {
			// Everything left was already attempted and failed this run
			break
		}

		batchNum++

		decisions := make([]models.MatchDecision, 0, len(batch))
		processedIDs := make([]string, 0, len(batch))

		for i := range batch {
			usr := &batch[i]
			attempted[usr.ID] = true
			totals.attempted++

			userDecisions, err := r.processUser(ctx, usr, products)
			if err != nil {
				if ctx.Err() != nil {
					// Cancelled between users: commit nothing further, the
					// remaining users retry on the next run
					return totals, ctx.Err()
				}

				r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
					"user_id": usr.UserID,
				}).Error("Error processing user, leaving unprocessed for retry")
				metrics.UserFailures.Inc()
				continue
			}

			decisions = append(decisions, userDecisions...)
			processedIDs = append(processedIDs, usr.ID)
		}

		committed, err := r.store.CommitBatch(ctx, logID, decisions, processedIDs)
		if err != nil {
			return totals, err
		}

		totals.processed += len(processedIDs)
		totals.matches += committed

		r.logger.WithContext(ctx).Infof("Processed batch %d: %d users, %d matches", batchNum, len(processedIDs), committed)
		r.emitMatchesCommitted(ctx, logID, decisions)

		users, err = r.store.FetchUnprocessedUsers(ctx, r.config.BatchSize)
		if err != nil {
			return totals, err
		}
	}

	return totals, nil
}

// processUser runs the three matching stages for one user. Zero candidates
// after the prefilter is a normal outcome, not an error.
func (r *Runner) processUser(ctx context.Context, user *models.User, products []models.LoanProduct) ([]models.MatchDecision, error) {
	candidates := r.prefilter.Candidates(user, products)
	if len(candidates) == 0 {
		r.logger.WithContext(ctx).WithFields(map[string]any{
			"user_id": user.UserID,
		}).Debug("No candidate products after prefilter")
		return nil, nil
	}

	ranked := r.scorer.Rank(user, candidates)

	return r.evaluator.Evaluate(ctx, user, ranked)
}

func (r *Runner) emitRunStarted(ctx context.Context, runID string) {
	if r.emitter == nil {
		return
	}
	if err := r.emitter.EmitRunStarted(ctx, runID); err != nil {
		r.logger.WithContext(ctx).WithError(err).Warn("Failed to emit run started event")
	}
}

func (r *Runner) emitMatchesCommitted(ctx context.Context, runID string, decisions []models.MatchDecision) {
	if r.emitter == nil || len(decisions) == 0 {
		return
	}
	if err := r.emitter.EmitMatchesCommitted(ctx, runID, decisions); err != nil {
		r.logger.WithContext(ctx).WithError(err).Warn("Failed to emit match events")
	}
}

func (r *Runner) emitRunCompleted(ctx context.Context, runID string, usersProcessed, matchesCreated int) {
	if r.emitter == nil {
		return
	}
	if err := r.emitter.EmitRunCompleted(ctx, runID, usersProcessed, matchesCreated); err != nil {
		r.logger.WithContext(ctx).WithError(err).Warn("Failed to emit run completed event")
	}
}

func (r *Runner) emitRunFailed(ctx context.Context, runID string, reason string) {
	if r.emitter == nil {
		return
	}
	if err := r.emitter.EmitRunFailed(ctx, runID, reason); err != nil {
		r.logger.WithContext(ctx).WithError(err).Warn("Failed to emit run failed event")
	}
}
