package loanproduct

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

var productColumns = []string{
	"id", "product_name", "lender_name", "interest_rate_min", "interest_rate_max",
	"min_loan_amount", "max_loan_amount", "min_income_required", "min_credit_score",
	"max_credit_score", "employment_requirements", "age_min", "age_max",
	"product_url", "terms_and_conditions", "is_active", "created_at", "updated_at",
}

// Repository handles loan product catalog persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new loan product repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Upsert creates or refreshes a catalog entry keyed by (product_name, lender_name)
func (r *Repository) Upsert(ctx context.Context, req *models.UpsertLoanProductRequest) (*models.LoanProduct, error) {
	ctx, span := tracing.StartSpan(ctx, "loanproduct.Repository.Upsert")
	defer span.End()

	now := time.Now().UTC()
	isActive := true
	if req.IsActive != nil {
		isActive = *req.IsActive
	}

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("loan_products")
	sb.Cols(
		"id", "product_name", "lender_name", "interest_rate_min", "interest_rate_max",
		"min_loan_amount", "max_loan_amount", "min_income_required", "min_credit_score",
		"max_credit_score", "employment_requirements", "age_min", "age_max",
		"product_url", "terms_and_conditions", "is_active", "created_at", "updated_at",
	)
	sb.Values(
		uuid.New().String(), req.ProductName, req.LenderName, req.InterestRateMin, req.InterestRateMax,
		req.MinLoanAmount, req.MaxLoanAmount, req.MinIncomeRequired, req.MinCreditScore,
		req.MaxCreditScore, req.EmploymentRequirements, req.AgeMin, req.AgeMax,
		req.ProductURL, req.TermsAndConditions, isActive, now, now,
	)

	query, args := sb.Build()
	query += ` ON CONFLICT (product_name, lender_name) DO UPDATE SET
		interest_rate_min = EXCLUDED.interest_rate_min,
		interest_rate_max = EXCLUDED.interest_rate_max,
		min_loan_amount = EXCLUDED.min_loan_amount,
		max_loan_amount = EXCLUDED.max_loan_amount,
		min_income_required = EXCLUDED.min_income_required,
		min_credit_score = EXCLUDED.min_credit_score,
		max_credit_score = EXCLUDED.max_credit_score,
		employment_requirements = EXCLUDED.employment_requirements,
		age_min = EXCLUDED.age_min,
		age_max = EXCLUDED.age_max,
		product_url = EXCLUDED.product_url,
		terms_and_conditions = EXCLUDED.terms_and_conditions,
		is_active = EXCLUDED.is_active,
		updated_at = EXCLUDED.updated_at
		RETURNING id, product_name, lender_name, interest_rate_min, interest_rate_max, min_loan_amount, max_loan_amount, min_income_required, min_credit_score, max_credit_score, employment_requirements, age_min, age_max, product_url, terms_and_conditions, is_active, created_at, updated_at`

	var product models.LoanProduct
	if err := r.db.GetContext(ctx, &product, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"product_name": req.ProductName,
			"lender_name":  req.LenderName,
		}).Error("Failed to upsert loan product")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to upsert loan product")
	}

	return &product, nil
}

// Get retrieves a loan product by ID
func (r *Repository) Get(ctx context.Context, id string) (*models.LoanProduct, error) {
	ctx, span := tracing.StartSpan(ctx, "loanproduct.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(productColumns...)
	sb.From("loan_products")
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var product models.LoanProduct
	if err := r.db.GetContext(ctx, &product, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("loan product %s not found", id))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get loan product")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get loan product")
	}

	return &product, nil
}

// List retrieves loan products ordered by lender and name
func (r *Repository) List(ctx context.Context, limit, offset int) ([]models.LoanProduct, error) {
	ctx, span := tracing.StartSpan(ctx, "loanproduct.Repository.List")
	defer span.End()

	if limit < 1 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(productColumns...)
	sb.From("loan_products")
	sb.OrderBy("lender_name", "product_name").Asc()
	sb.Limit(limit)
	sb.Offset(offset)

	query, args := sb.Build()
	products := []models.LoanProduct{}
	if err := r.db.SelectContext(ctx, &products, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list loan products")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list loan products")
	}

	return products, nil
}

// Count returns the total number of loan products
func (r *Repository) Count(ctx context.Context) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "loanproduct.Repository.Count")
	defer span.End()

	var count int
	if err := r.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM loan_products"); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to count loan products")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count loan products")
	}

	return count, nil
}

// FetchActive retrieves the full active catalog for a matching run
func (r *Repository) FetchActive(ctx context.Context) ([]models.LoanProduct, error) {
	ctx, span := tracing.StartSpan(ctx, "loanproduct.Repository.FetchActive")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(productColumns...)
	sb.From("loan_products")
	sb.Where(sb.Equal("is_active", true))
	sb.OrderBy("lender_name", "product_name").Asc()

	query, args := sb.Build()
	products := []models.LoanProduct{}
	if err := r.db.SelectContext(ctx, &products, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to fetch active loan products")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to fetch active loan products")
	}

	return products, nil
}

// SetActive toggles a catalog entry's active flag
func (r *Repository) SetActive(ctx context.Context, id string, active bool) error {
	ctx, span := tracing.StartSpan(ctx, "loanproduct.Repository.SetActive")
	defer span.End()

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update("loan_products")
	ub.Set(
		ub.Assign("is_active", active),
		ub.Assign("updated_at", time.Now().UTC()),
	)
	ub.Where(ub.Equal("id", id))

	query, args := ub.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"product_id": id}).Error("Failed to update loan product active flag")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update loan product")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("loan product %s not found", id))
	}

	return nil
}
