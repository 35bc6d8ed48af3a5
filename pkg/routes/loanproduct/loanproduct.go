package loanproduct

import (
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/Gobusters/ectologger"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/clover/internal/repositories/loanproduct"
	"github.com/Ramsey-B/clover/pkg/catalog"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

var validate = validator.New()

// Register registers loan product routes
func Register(g *echo.Group) {
	g.GET("", List)
	g.GET("/:id", Get)
	g.POST("", Upsert)
	g.PUT("/:id/active", SetActive)
	g.POST("/refresh", Refresh)
}

// List lists loan products. active=true restricts to the catalog the
// matching pipeline evaluates against.
func List(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "loanproduct_handler.List")
	defer span.End()

	ctx, repo, err := ectoinject.GetContext[*loanproduct.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}

	if active, _ := strconv.ParseBool(c.QueryParam("active")); active {
		items, err := repo.FetchActive(ctx)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, models.LoanProductListResponse{
			Items:      items,
			TotalCount: len(items),
			Page:       1,
			PageSize:   len(items),
		})
	}

	page, _ := strconv.Atoi(c.QueryParam("page"))
	pageSize, _ := strconv.Atoi(c.QueryParam("page_size"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 50
	}

	items, err := repo.List(ctx, pageSize, (page-1)*pageSize)
	if err != nil {
		return err
	}

	totalCount, err := repo.Count(ctx)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, models.LoanProductListResponse{
		Items:      items,
		TotalCount: totalCount,
		Page:       page,
		PageSize:   pageSize,
	})
}

// Get gets a loan product by ID
func Get(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "loanproduct_handler.Get")
	defer span.End()

	id := c.Param("id")

	ctx, repo, err := ectoinject.GetContext[*loanproduct.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}

	product, err := repo.Get(ctx, id)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, product)
}

// Upsert creates a loan product or refreshes the existing entry keyed by
// (product_name, lender_name)
func Upsert(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "loanproduct_handler.Upsert")
	defer span.End()

	var req models.UpsertLoanProductRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx, repo, err := ectoinject.GetContext[*loanproduct.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}

	product, err := repo.Upsert(ctx, &req)
	if err != nil {
		return err
	}

	ctx, logger, _ := ectoinject.GetContext[ectologger.Logger](ctx)
	if logger != nil {
		logger.WithContext(ctx).WithFields(map[string]any{"id": product.ID, "product_name": product.ProductName}).Info("Upserted loan product")
	}

	return c.JSON(http.StatusCreated, product)
}

// SetActiveRequest is the request body for toggling a product's active flag
type SetActiveRequest struct {
	IsActive bool `json:"is_active"`
}

// SetActive toggles whether a product participates in matching runs
func SetActive(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "loanproduct_handler.SetActive")
	defer span.End()

	id := c.Param("id")

	var req SetActiveRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	ctx, repo, err := ectoinject.GetContext[*loanproduct.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}

	if err := repo.SetActive(ctx, id, req.IsActive); err != nil {
		return err
	}

	return c.NoContent(http.StatusNoContent)
}

// Refresh runs catalog discovery, upserting the curated lender set
func Refresh(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "loanproduct_handler.Refresh")
	defer span.End()

	ctx, refresher, err := ectoinject.GetContext[*catalog.Refresher](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get catalog refresher")
	}

	result, err := refresher.Refresh(ctx)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, result)
}
