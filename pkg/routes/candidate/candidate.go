package candidate

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/clover/internal/repositories/matchcandidate"
	cctx "github.com/Ramsey-B/clover/pkg/context"
	"github.com/Ramsey-B/clover/pkg/merging"
	"github.com/Ramsey-B/clover/pkg/models"
)

// Register registers match candidate routes
func Register(g *echo.Group) {
	g.GET("", ListCandidates)
	g.GET("/pair", GetCandidate)
	g.POST("/pair/accept", AcceptCandidate)
	g.POST("/pair/reject", RejectCandidate)
}

// ListCandidates lists match candidates, open ones by default
func ListCandidates(c echo.Context) error {
	ctx := c.Request().Context()

	entityID := c.QueryParam("entity_id")
	status := models.MatchCandidateStatus(c.QueryParam("status"))
	entityType := models.EntityType(c.QueryParam("entity_type"))
	if entityType == "" {
		entityType = models.EntityTypePerson
	}

	ctx, repo, err := ectoinject.GetContext[*matchcandidate.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	var candidates []models.MatchCandidate
	if entityID != "" {
		candidates, err = repo.ListByEntity(ctx, entityID, status)
	} else {
		candidates, err = repo.ListOpenByType(ctx, entityType, 100)
	}
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, candidates)
}

// GetCandidate gets a match candidate by entity pair
func GetCandidate(c echo.Context) error {
	ctx := c.Request().Context()

	leftID, rightID, err := pairParams(c)
	if err != nil {
		return err
	}

	ctx, repo, err := ectoinject.GetContext[*matchcandidate.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	candidate, err := repo.GetByPair(ctx, leftID, rightID)
	if err != nil {
		return err
	}
	if candidate == nil {
		return httperror.NewHTTPError(http.StatusNotFound, "match candidate not found")
	}

	return c.JSON(http.StatusOK, candidate)
}

// AcceptCandidate merges the candidate pair on operator authority
func AcceptCandidate(c echo.Context) error {
	ctx := c.Request().Context()

	leftID, rightID, err := pairParams(c)
	if err != nil {
		return err
	}

	ctx, engine, err := ectoinject.GetContext[*merging.Engine](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	record, err := engine.Accept(ctx, leftID, rightID, operator(ctx))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, record)
}

// RejectCandidateRequest carries the optional rejection note
type RejectCandidateRequest struct {
	Note string `json:"note"`
}

// RejectCandidate records a permanent not_same verdict for the pair
func RejectCandidate(c echo.Context) error {
	ctx := c.Request().Context()

	leftID, rightID, err := pairParams(c)
	if err != nil {
		return err
	}

	var req RejectCandidateRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	ctx, engine, err := ectoinject.GetContext[*merging.Engine](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	if err := engine.Reject(ctx, leftID, rightID, req.Note, operator(ctx)); err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]string{"status": "rejected"})
}

func pairParams(c echo.Context) (string, string, error) {
	leftID := c.QueryParam("left_id")
	rightID := c.QueryParam("right_id")
	if leftID == "" || rightID == "" {
		return "", "", httperror.NewHTTPError(http.StatusBadRequest, "left_id and right_id query parameters are required")
	}
	return leftID, rightID, nil
}

// operator names the human behind the request for the decision ledger
func operator(ctx context.Context) string {
	if id := cctx.GetOperatorID(ctx); id != "" {
		return id
	}
	return "operator"
}
