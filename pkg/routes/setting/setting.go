package setting

import (
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/clover/internal/repositories/enginesettings"
	"github.com/Ramsey-B/clover/pkg/models"
)

// Register registers engine setting routes
func Register(g *echo.Group) {
	g.GET("/:entityType", ListSettings)
	g.PUT("/:entityType", UpsertSetting)
}

// ListSettings lists the stored overrides for one entity type. Keys
// without an override fall back to builtin defaults at pass time.
func ListSettings(c echo.Context) error {
	ctx := c.Request().Context()

	entityType, err := entityTypeParam(c)
	if err != nil {
		return err
	}

	ctx, repo, err := ectoinject.GetContext[*enginesettings.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	overrides, err := repo.ListByEntityType(ctx, entityType)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, overrides)
}

// UpsertSettingRequest is one threshold or weight override
type UpsertSettingRequest struct {
	Key   string  `json:"key" validate:"required"`
	Value float64 `json:"value"`
}

var validate = validator.New()

// UpsertSetting stores an override. The next pipeline pass picks it up.
func UpsertSetting(c echo.Context) error {
	ctx := c.Request().Context()

	entityType, err := entityTypeParam(c)
	if err != nil {
		return err
	}

	var req UpsertSettingRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx, repo, err := ectoinject.GetContext[*enginesettings.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	if err := repo.Upsert(ctx, entityType, req.Key, req.Value); err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]string{"status": "updated"})
}

func entityTypeParam(c echo.Context) (models.EntityType, error) {
	entityType := models.EntityType(c.Param("entityType"))
	switch entityType {
	case models.EntityTypePerson, models.EntityTypeAnimal, models.EntityTypePlace:
		return entityType, nil
	}
	return "", httperror.NewHTTPError(http.StatusBadRequest, "unknown entity type")
}
