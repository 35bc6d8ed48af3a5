package notification

import (
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/clover/pkg/notify"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// Register registers notification routes
func Register(g *echo.Group) {
	g.POST("/run", Run)
}

// Run sends pending match notification emails and returns delivery counts
func Run(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "notification_handler.Run")
	defer span.End()

	ctx, dispatcher, err := ectoinject.GetContext[*notify.Dispatcher](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get notification dispatcher")
	}

	result, err := dispatcher.Run(ctx)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, result)
}
