package observation

import (
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/clover/internal/repositories/observation"
	"github.com/Ramsey-B/clover/pkg/models"
)

// Register registers observation intake routes
func Register(g *echo.Group) {
	g.POST("", CreateObservations)
	g.GET("/record", ListByRecord)
}

// CreateObservationsRequest is the HTTP intake payload
type CreateObservationsRequest struct {
	Observations []models.CreateObservationRequest `json:"observations" validate:"required,min=1,dive"`
}

// CreateObservationsResponse reports how many observations landed
type CreateObservationsResponse struct {
	Received   int `json:"received"`
	Inserted   int `json:"inserted"`
	Duplicates int `json:"duplicates"`
}

var validate = validator.New()

// CreateObservations ingests a batch of observations. Duplicates on the
// observation uniqueness key are absorbed, so re-submission is safe.
func CreateObservations(c echo.Context) error {
	ctx := c.Request().Context()

	var req CreateObservationsRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx, repo, err := ectoinject.GetContext[*observation.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	inserted, err := repo.CreateBatch(ctx, req.Observations)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, CreateObservationsResponse{
		Received:   len(req.Observations),
		Inserted:   inserted,
		Duplicates: len(req.Observations) - inserted,
	})
}

// ListByRecord lists the observations contributed by one source record
func ListByRecord(c echo.Context) error {
	ctx := c.Request().Context()

	ref := models.RecordRef{
		SourceSystem: c.QueryParam("source_system"),
		SourceTable:  c.QueryParam("source_table"),
		SourceRowID:  c.QueryParam("source_row_id"),
	}
	if ref.SourceSystem == "" || ref.SourceTable == "" || ref.SourceRowID == "" {
		return httperror.NewHTTPError(http.StatusBadRequest, "source_system, source_table and source_row_id query parameters are required")
	}

	ctx, repo, err := ectoinject.GetContext[*observation.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	observations, err := repo.ListByRecord(ctx, ref)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, observations)
}
