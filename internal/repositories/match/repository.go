package match

import (
	"context"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"
	"github.com/lib/pq"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

var matchColumns = []string{
	"id", "user_id", "loan_product_id", "match_score", "eligibility_status",
	"match_reasons", "notification_sent", "notification_sent_at", "created_at", "updated_at",
}

// Repository handles match decision persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new match repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// buildUpsert builds the decision upsert for one (user, product) pair. The
// conflict update never touches notification_sent or notification_sent_at;
// those columns belong to the notification flow.
func buildUpsert(d *models.MatchDecision, now time.Time) (string, []any) {
	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("user_loan_matches")
	sb.Cols("id", "user_id", "loan_product_id", "match_score", "eligibility_status", "match_reasons", "notification_sent", "created_at", "updated_at")
	sb.Values(uuid.New().String(), d.UserID, d.ProductID, d.Score, d.Status, d.Reasons, false, now, now)

	query, args := sb.Build()
	query += ` ON CONFLICT (user_id, loan_product_id) DO UPDATE SET
		match_score = EXCLUDED.match_score,
		eligibility_status = EXCLUDED.eligibility_status,
		match_reasons = EXCLUDED.match_reasons,
		updated_at = EXCLUDED.updated_at`

	return query, args
}

// Upsert writes a single match decision, updating the existing row for the
// (user, product) pair if one exists
func (r *Repository) Upsert(ctx context.Context, decision *models.MatchDecision) error {
	ctx, span := tracing.StartSpan(ctx, "match.Repository.Upsert")
	defer span.End()

	query, args := buildUpsert(decision, time.Now().UTC())
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"user_id":    decision.UserID,
			"product_id": decision.ProductID,
		}).Error("Failed to upsert match decision")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to upsert match decision")
	}

	return nil
}

// CommitBatch persists one batch's worth of pipeline output: every decision
// upsert, the processed flags for the users whose evaluations succeeded, and
// the run's record counter all land in a single transaction. A user is never
// marked processed without its decisions and the run entry reflecting it.
func (r *Repository) CommitBatch(ctx context.Context, logID string, decisions []models.MatchDecision, processedUserIDs []string) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "match.Repository.CommitBatch")
	defer span.End()

	if len(decisions) == 0 && len(processedUserIDs) == 0 {
		return 0, nil
	}

	ctx, tx, err := r.db.GetTx(ctx, nil)
	if err != nil {
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to start transaction")
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC()
	for i := range decisions {
		query, args := buildUpsert(&decisions[i], now)
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"user_id":    decisions[i].UserID,
				"product_id": decisions[i].ProductID,
			}).Error("Failed to upsert match decision in batch")
			return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to upsert match decisions")
		}
	}

	if len(processedUserIDs) > 0 {
		if _, err := tx.ExecContext(ctx, `UPDATE users SET processed = true, updated_at = $1 WHERE id = ANY($2)`, now, pq.Array(processedUserIDs)); err != nil {
			r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"count": len(processedUserIDs)}).Error("Failed to mark batch users processed")
			return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to mark users processed")
		}

		if _, err := tx.ExecContext(ctx, `UPDATE processing_logs SET records_processed = records_processed + $1 WHERE id = $2`, len(processedUserIDs), logID); err != nil {
			r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"log_id": logID}).Error("Failed to update run record count")
			return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to update run record count")
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to commit batch")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"decisions": len(decisions),
		"users":     len(processedUserIDs),
		"log_id":    logID,
	}).Debug("Committed match batch")

	return len(decisions), nil
}

// ListByUser retrieves a user's match decisions ordered by score
func (r *Repository) ListByUser(ctx context.Context, userID string) ([]models.UserLoanMatch, error) {
	ctx, span := tracing.StartSpan(ctx, "match.Repository.ListByUser")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(matchColumns...)
	sb.From("user_loan_matches")
	sb.Where(sb.Equal("user_id", userID))
	sb.OrderBy("match_score").Desc()

	query, args := sb.Build()
	matches := []models.UserLoanMatch{}
	if err := r.db.SelectContext(ctx, &matches, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"user_id": userID}).Error("Failed to list matches")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list matches")
	}

	return matches, nil
}

// List retrieves match decisions ordered by score. User and status filters
// are optional; empty values match everything.
func (r *Repository) List(ctx context.Context, userID string, status models.EligibilityStatus, limit, offset int) ([]models.UserLoanMatch, error) {
	ctx, span := tracing.StartSpan(ctx, "match.Repository.List")
	defer span.End()

	if limit < 1 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(matchColumns...)
	sb.From("user_loan_matches")
	if userID != "" {
		sb.Where(sb.Equal("user_id", userID))
	}
	if status != "" {
		sb.Where(sb.Equal("eligibility_status", status))
	}
	sb.OrderBy("match_score").Desc()
	sb.Limit(limit)
	sb.Offset(offset)

	query, args := sb.Build()
	matches := []models.UserLoanMatch{}
	if err := r.db.SelectContext(ctx, &matches, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list matches")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list matches")
	}

	return matches, nil
}

// Count returns the total number of match decisions
func (r *Repository) Count(ctx context.Context) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "match.Repository.Count")
	defer span.End()

	var count int
	if err := r.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM user_loan_matches"); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to count matches")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count matches")
	}

	return count, nil
}

// AverageScore returns the mean match score across all decisions, zero when
// no decisions exist
func (r *Repository) AverageScore(ctx context.Context) (float64, error) {
	ctx, span := tracing.StartSpan(ctx, "match.Repository.AverageScore")
	defer span.End()

	var avg float64
	if err := r.db.GetContext(ctx, &avg, "SELECT COALESCE(AVG(match_score), 0) FROM user_loan_matches"); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to compute average match score")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to compute average match score")
	}

	return avg, nil
}

// ListPendingNotification retrieves decisions the notification flow has not
// yet delivered
func (r *Repository) ListPendingNotification(ctx context.Context, limit int) ([]models.UserLoanMatch, error) {
	ctx, span := tracing.StartSpan(ctx, "match.Repository.ListPendingNotification")
	defer span.End()

	if limit < 1 || limit > 500 {
		limit = 50
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(matchColumns...)
	sb.From("user_loan_matches")
	sb.Where(sb.Equal("notification_sent", false))
	sb.OrderBy("created_at").Asc()
	sb.Limit(limit)

	query, args := sb.Build()
	matches := []models.UserLoanMatch{}
	if err := r.db.SelectContext(ctx, &matches, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list pending notifications")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list pending notifications")
	}

	return matches, nil
}

// MarkNotified flips notification_sent for delivered decisions. Only the
// notification flow calls this.
func (r *Repository) MarkNotified(ctx context.Context, ids []string) error {
	ctx, span := tracing.StartSpan(ctx, "match.Repository.MarkNotified")
	defer span.End()

	if len(ids) == 0 {
		return nil
	}

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update("user_loan_matches")
	ub.Set(
		ub.Assign("notification_sent", true),
		ub.Assign("notification_sent_at", time.Now().UTC()),
	)
	ub.Where(ub.In("id", sqlbuilder.Flatten(ids)...))

	query, args := ub.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"count": len(ids)}).Error("Failed to mark matches notified")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to mark matches notified")
	}

	return nil
}

// CountByStatus returns decision counts grouped by eligibility status
func (r *Repository) CountByStatus(ctx context.Context) (map[models.EligibilityStatus]int, error) {
	ctx, span := tracing.StartSpan(ctx, "match.Repository.CountByStatus")
	defer span.End()

	rows := []struct {
		Status models.EligibilityStatus `db:"eligibility_status"`
		Count  int                      `db:"count"`
	}{}
	if err := r.db.SelectContext(ctx, &rows, "SELECT eligibility_status, COUNT(*) AS count FROM user_loan_matches GROUP BY eligibility_status"); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to count matches by status")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count matches")
	}

	counts := make(map[models.EligibilityStatus]int, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}

	return counts, nil
}
