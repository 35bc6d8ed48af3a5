package user

import (
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/Gobusters/ectologger"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/clover/internal/repositories/user"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

var validate = validator.New()

// Register registers user routes
func Register(g *echo.Group) {
	g.GET("", List)
	g.GET("/:id", Get)
	g.POST("", Upsert)
}

// List lists user profiles with an optional processed filter
func List(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "user_handler.List")
	defer span.End()

	var processed *bool
	if raw := c.QueryParam("processed"); raw != "" {
		value, err := strconv.ParseBool(raw)
		if err != nil {
			return httperror.NewHTTPError(http.StatusBadRequest, "processed must be true or false")
		}
		processed = &value
	}

	page, _ := strconv.Atoi(c.QueryParam("page"))
	pageSize, _ := strconv.Atoi(c.QueryParam("page_size"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 50
	}

	ctx, repo, err := ectoinject.GetContext[*user.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}

	items, err := repo.List(ctx, processed, pageSize, (page-1)*pageSize)
	if err != nil {
		return err
	}

	totalCount, err := repo.Count(ctx)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, models.UserListResponse{
		Items:      items,
		TotalCount: totalCount,
		Page:       page,
		PageSize:   pageSize,
	})
}

// Get gets a user profile by ID
func Get(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "user_handler.Get")
	defer span.End()

	id := c.Param("id")

	ctx, repo, err := ectoinject.GetContext[*user.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}

	usr, err := repo.Get(ctx, id)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, usr)
}

// Upsert creates a user profile or refreshes an existing one by external
// user_id. A refreshed profile is queued for the next matching run.
func Upsert(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "user_handler.Upsert")
	defer span.End()

	var req models.UpsertUserRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx, repo, err := ectoinject.GetContext[*user.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}

	usr, err := repo.Upsert(ctx, &req)
	if err != nil {
		return err
	}

	ctx, logger, _ := ectoinject.GetContext[ectologger.Logger](ctx)
	if logger != nil {
		logger.WithContext(ctx).WithFields(map[string]any{"id": usr.ID, "user_id": usr.UserID}).Info("Upserted user")
	}

	return c.JSON(http.StatusCreated, usr)
}
