package user

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

var userColumns = []string{"id", "user_id", "email", "monthly_income", "credit_score", "employment_status", "age", "processed", "created_at", "updated_at"}

// Repository handles user profile persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new user repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Upsert creates or updates a user profile keyed by the external user_id.
// Updating an existing profile resets processed so the next matching run
// re-evaluates it.
func (r *Repository) Upsert(ctx context.Context, req *models.UpsertUserRequest) (*models.User, error) {
	ctx, span := tracing.StartSpan(ctx, "user.Repository.Upsert")
	defer span.End()

	now := time.Now().UTC()

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("users")
	sb.Cols("id", "user_id", "email", "monthly_income", "credit_score", "employment_status", "age", "processed", "created_at", "updated_at")
	sb.Values(uuid.New().String(), req.UserID, req.Email, req.MonthlyIncome, req.CreditScore, req.EmploymentStatus, req.Age, false, now, now)

	query, args := sb.Build()
	query += ` ON CONFLICT (user_id) DO UPDATE SET
		email = EXCLUDED.email,
		monthly_income = EXCLUDED.monthly_income,
		credit_score = EXCLUDED.credit_score,
		employment_status = EXCLUDED.employment_status,
		age = EXCLUDED.age,
		processed = false,
		updated_at = EXCLUDED.updated_at
		RETURNING id, user_id, email, monthly_income, credit_score, employment_status, age, processed, created_at, updated_at`

	var user models.User
	if err := r.db.GetContext(ctx, &user, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"user_id": req.UserID}).Error("Failed to upsert user")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to upsert user")
	}

	return &user, nil
}

// Get retrieves a user by internal ID
func (r *Repository) Get(ctx context.Context, id string) (*models.User, error) {
	ctx, span := tracing.StartSpan(ctx, "user.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(userColumns...)
	sb.From("users")
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("user %s not found", id))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get user")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get user")
	}

	return &user, nil
}

// List retrieves users ordered by creation time. A non-nil processed
// filters to users in that processing state.
func (r *Repository) List(ctx context.Context, processed *bool, limit, offset int) ([]models.User, error) {
	ctx, span := tracing.StartSpan(ctx, "user.Repository.List")
	defer span.End()

	if limit < 1 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(userColumns...)
	sb.From("users")
	if processed != nil {
		sb.Where(sb.Equal("processed", *processed))
	}
	sb.OrderBy("created_at").Asc()
	sb.Limit(limit)
	sb.Offset(offset)

	query, args := sb.Build()
	users := []models.User{}
	if err := r.db.SelectContext(ctx, &users, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list users")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list users")
	}

	return users, nil
}

// Count returns the total number of users
func (r *Repository) Count(ctx context.Context) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "user.Repository.Count")
	defer span.End()

	var count int
	if err := r.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM users"); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to count users")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count users")
	}

	return count, nil
}

// FetchUnprocessed retrieves up to limit users awaiting a matching run,
// oldest first so the work queue drains in arrival order
func (r *Repository) FetchUnprocessed(ctx context.Context, limit int) ([]models.User, error) {
	ctx, span := tracing.StartSpan(ctx, "user.Repository.FetchUnprocessed")
	defer span.End()

	if limit < 1 {
		limit = 100
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(userColumns...)
	sb.From("users")
	sb.Where(sb.Equal("processed", false))
	sb.OrderBy("created_at").Asc()
	sb.Limit(limit)

	query, args := sb.Build()
	users := []models.User{}
	if err := r.db.SelectContext(ctx, &users, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to fetch unprocessed users")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to fetch unprocessed users")
	}

	return users, nil
}

// CountUnprocessed returns the number of users awaiting a matching run
func (r *Repository) CountUnprocessed(ctx context.Context) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "user.Repository.CountUnprocessed")
	defer span.End()

	var count int
	if err := r.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM users WHERE processed = false"); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to count unprocessed users")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count unprocessed users")
	}

	return count, nil
}

// MarkProcessed flips the processed flag for the given users
func (r *Repository) MarkProcessed(ctx context.Context, ids []string) error {
	ctx, span := tracing.StartSpan(ctx, "user.Repository.MarkProcessed")
	defer span.End()

	if len(ids) == 0 {
		return nil
	}

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update("users")
	ub.Set(
		ub.Assign("processed", true),
		ub.Assign("updated_at", time.Now().UTC()),
	)
	ub.Where(ub.In("id", sqlbuilder.Flatten(ids)...))

	query, args := ub.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"count": len(ids)}).Error("Failed to mark users processed")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to mark users processed")
	}

	return nil
}
