package match

import (
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/clover/internal/repositories/match"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// Register registers match routes
func Register(g *echo.Group) {
	g.GET("", List)
}

// List lists match decisions, best score first, with optional user_id and
// status filters
func List(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "match_handler.List")
	defer span.End()

	userID := c.QueryParam("user_id")

	status := models.EligibilityStatus(c.QueryParam("status"))
	switch status {
	case "", models.EligibilityStatusEligible, models.EligibilityStatusLikelyEligible, models.EligibilityStatusNeedsReview:
	default:
		return httperror.NewHTTPError(http.StatusBadRequest, "status must be eligible, likely_eligible, or needs_review")
	}

	page, _ := strconv.Atoi(c.QueryParam("page"))
	pageSize, _ := strconv.Atoi(c.QueryParam("page_size"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 50
	}

	ctx, repo, err := ectoinject.GetContext[*match.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}

	items, err := repo.List(ctx, userID, status, pageSize, (page-1)*pageSize)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, models.MatchListResponse{
		Items:      items,
		TotalCount: len(items),
	})
}
