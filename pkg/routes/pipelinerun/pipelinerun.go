package pipelinerun

import (
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/clover/pkg/pipeline"
)

// Register registers pipeline control routes
func Register(g *echo.Group) {
	g.POST("/run", RunPass)
}

// RunPass triggers one full pipeline pass synchronously, for operators
// who do not want to wait for the next scheduled tick.
func RunPass(c echo.Context) error {
	ctx := c.Request().Context()

	ctx, runner, err := ectoinject.GetContext[*pipeline.Runner](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	result, err := runner.RunOnce(ctx)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, result)
}
