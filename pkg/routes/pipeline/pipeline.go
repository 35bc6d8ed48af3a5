package pipeline

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/clover/internal/repositories/processinglog"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/pipeline"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// Register registers pipeline routes
func Register(g *echo.Group) {
	g.POST("/run", Run)
	g.GET("/status", Status)
}

// Run triggers a matching run in the background. At most one run is in
// flight at a time; a second trigger while one is active returns 409.
func Run(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "pipeline_handler.Run")
	defer span.End()

	ctx, worker, err := ectoinject.GetContext[*pipeline.Worker](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get matching worker")
	}

	if err := worker.TriggerRun(ctx); err != nil {
		if errors.Is(err, pipeline.ErrRunInProgress) {
			return httperror.NewHTTPError(http.StatusConflict, "a matching run is already in progress")
		}
		return err
	}

	return c.JSON(http.StatusAccepted, map[string]string{"status": "started"})
}

// Status lists recent processing runs, newest first, optionally filtered by
// process type
func Status(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "pipeline_handler.Status")
	defer span.End()

	processType := models.ProcessType(c.QueryParam("type"))
	switch processType {
	case "", models.ProcessTypeCSVUpload, models.ProcessTypeLoanDiscovery, models.ProcessTypeMatching, models.ProcessTypeNotification:
	default:
		return httperror.NewHTTPError(http.StatusBadRequest, "type must be csv_upload, loan_discovery, matching, or notification")
	}

	limit, _ := strconv.Atoi(c.QueryParam("limit"))

	ctx, repo, err := ectoinject.GetContext[*processinglog.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}

	entries, err := repo.List(ctx, processType, limit)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, entries)
}
