package stats

import (
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/clover/internal/repositories/loanproduct"
	"github.com/Ramsey-B/clover/internal/repositories/match"
	"github.com/Ramsey-B/clover/internal/repositories/user"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// Register registers stats routes
func Register(g *echo.Group) {
	g.GET("", Get)
}

// UserStats summarizes the applicant pool
type UserStats struct {
	Total       int `json:"total"`
	Unprocessed int `json:"unprocessed"`
}

// ProductStats summarizes the loan catalog
type ProductStats struct {
	Total int `json:"total"`
}

// MatchStats summarizes match decisions
type MatchStats struct {
	Total        int                              `json:"total"`
	AverageScore float64                          `json:"average_score"`
	ByStatus     map[models.EligibilityStatus]int `json:"by_status"`
}

// Stats is the system-wide summary response
type Stats struct {
	Users        UserStats    `json:"users"`
	LoanProducts ProductStats `json:"loan_products"`
	Matches      MatchStats   `json:"matches"`
}

// Get returns counts across users, products, and match decisions
func Get(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "stats_handler.Get")
	defer span.End()

	ctx, users, err := ectoinject.GetContext[*user.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}
	ctx, products, err := ectoinject.GetContext[*loanproduct.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}
	ctx, matches, err := ectoinject.GetContext[*match.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}

	stats := Stats{}

	if stats.Users.Total, err = users.Count(ctx); err != nil {
		return err
	}
	if stats.Users.Unprocessed, err = users.CountUnprocessed(ctx); err != nil {
		return err
	}
	if stats.LoanProducts.Total, err = products.Count(ctx); err != nil {
		return err
	}
	if stats.Matches.Total, err = matches.Count(ctx); err != nil {
		return err
	}
	if stats.Matches.AverageScore, err = matches.AverageScore(ctx); err != nil {
		return err
	}
	if stats.Matches.ByStatus, err = matches.CountByStatus(ctx); err != nil {
		return err
	}

	return c.JSON(http.StatusOK, stats)
}
