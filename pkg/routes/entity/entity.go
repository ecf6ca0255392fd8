package entity

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/clover/internal/repositories/alias"
	"github.com/Ramsey-B/clover/internal/repositories/entity"
	"github.com/Ramsey-B/clover/internal/repositories/identifier"
	"github.com/Ramsey-B/clover/internal/repositories/mergerecord"
	"github.com/Ramsey-B/clover/internal/repositories/recordlink"
	cctx "github.com/Ramsey-B/clover/pkg/context"
	"github.com/Ramsey-B/clover/pkg/merging"
	"github.com/Ramsey-B/clover/pkg/models"
)

// Register registers entity routes
func Register(g *echo.Group) {
	g.GET("/:id", GetEntity)
	g.GET("/:id/canonical", GetCanonical)
	g.GET("/:id/profile", GetProfile)
	g.GET("/:id/merges", GetMergeHistory)
	g.POST("/:id/undo-merge", UndoMerge)
	g.POST("/:id/split", SplitEntity)
}

// GetEntity gets an entity by ID, merged or not
func GetEntity(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	ctx, repo, err := ectoinject.GetContext[*entity.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	e, err := repo.MustGet(ctx, id)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, e)
}

// GetCanonical follows the merge chain from the given entity to its
// surviving node.
func GetCanonical(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	ctx, repo, err := ectoinject.GetContext[*entity.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	canonical, err := repo.ResolveCanonical(ctx, id)
	if err != nil {
		return err
	}
	if canonical == nil {
		return httperror.NewHTTPError(http.StatusNotFound, "entity not found")
	}

	return c.JSON(http.StatusOK, canonical)
}

// EntityProfile is the full read model for one entity
type EntityProfile struct {
	Entity      *models.Entity            `json:"entity"`
	Identifiers []models.StrongIdentifier `json:"identifiers"`
	Aliases     []models.Alias            `json:"aliases"`
	Records     []models.RecordLink       `json:"records"`
}

// GetProfile returns the entity with its identifiers, aliases, and
// linked source records.
func GetProfile(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	ctx, entities, err := ectoinject.GetContext[*entity.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	e, err := entities.MustGet(ctx, id)
	if err != nil {
		return err
	}

	profile := &EntityProfile{Entity: e}

	ctx, identifiers, err := ectoinject.GetContext[*identifier.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}
	if profile.Identifiers, err = identifiers.ListByEntity(ctx, id); err != nil {
		return err
	}

	ctx, aliases, err := ectoinject.GetContext[*alias.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}
	if profile.Aliases, err = aliases.ListByEntity(ctx, id); err != nil {
		return err
	}

	ctx, links, err := ectoinject.GetContext[*recordlink.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}
	if profile.Records, err = links.ListByEntity(ctx, id); err != nil {
		return err
	}

	return c.JSON(http.StatusOK, profile)
}

// GetMergeHistory lists merge records the entity participated in
func GetMergeHistory(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	ctx, repo, err := ectoinject.GetContext[*mergerecord.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	records, err := repo.ListByEntity(ctx, id)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, records)
}

// UndoMerge reverts the active merge that absorbed this entity
func UndoMerge(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	ctx, engine, err := ectoinject.GetContext[*merging.Engine](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	record, err := engine.UndoMerge(ctx, id, operator(ctx))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, record)
}

// SplitEntityRequest names the source records to carve out
type SplitEntityRequest struct {
	Records []models.RecordRef `json:"records"`
}

// SplitEntity migrates a subset of the entity's source records to a new
// entity.
func SplitEntity(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	var req SplitEntityRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	ctx, engine, err := ectoinject.GetContext[*merging.Engine](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	result, err := engine.Split(ctx, id, req.Records, operator(ctx))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, result)
}

func operator(ctx context.Context) string {
	if id := cctx.GetOperatorID(ctx); id != "" {
		return id
	}
	return "operator"
}
