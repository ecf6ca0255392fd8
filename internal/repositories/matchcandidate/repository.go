// Package matchcandidate persists possible-duplicate pairs. One row
// per ordered pair; upserts keep the maximum score and replace the
// explanation, and never touch rows outside the open status.
package matchcandidate

import (
	"context"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

var candidateColumns = []string{
	"id", "entity_type", "left_id", "right_id", "score", "explanation",
	"status", "created_at", "updated_at",
}

// Repository handles match candidate persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new match candidate repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Upsert writes a candidate for the normalized pair. An existing open
// row keeps the greater of the two scores and takes the new
// explanation; rows already decided or merged are left untouched.
func (r *Repository) Upsert(ctx context.Context, entityType models.EntityType, a, b string, score float64, explanation *models.ScoreExplanation) error {
	ctx, span := tracing.StartSpan(ctx, "matchcandidate.Repository.Upsert")
	defer span.End()

	leftID, rightID := models.OrderPair(a, b)
	now := time.Now().UTC()

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("match_candidates")
	sb.Cols(candidateColumns...)
	sb.Values(uuid.New().String(), entityType, leftID, rightID, score, []byte(explanation.Marshal()), models.MatchCandidateStatusOpen, now, now)

	query, args := sb.Build()
	query += ` ON CONFLICT (left_id, right_id) DO UPDATE SET
		score = GREATEST(match_candidates.score, EXCLUDED.score),
		explanation = EXCLUDED.explanation,
		updated_at = EXCLUDED.updated_at
		WHERE match_candidates.status = 'open'`

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"left_id": leftID, "right_id": rightID}).Error("Failed to upsert match candidate")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to upsert match candidate")
	}

	return nil
}

// GetByPair returns the candidate row for a pair in either direction,
// or nil, nil when none exists.
func (r *Repository) GetByPair(ctx context.Context, a, b string) (*models.MatchCandidate, error) {
	ctx, span := tracing.StartSpan(ctx, "matchcandidate.Repository.GetByPair")
	defer span.End()

	leftID, rightID := models.OrderPair(a, b)

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(candidateColumns...)
	sb.From("match_candidates")
	sb.Where(
		sb.Equal("left_id", leftID),
		sb.Equal("right_id", rightID),
	)

	query, args := sb.Build()
	var candidate models.MatchCandidate
	if err := r.db.GetContext(ctx, &candidate, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get match candidate by pair")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get match candidate")
	}

	return &candidate, nil
}

// ListOpenByType returns open candidates for one entity type in strict
// score-descending order, bounded by limit.
func (r *Repository) ListOpenByType(ctx context.Context, entityType models.EntityType, limit int) ([]models.MatchCandidate, error) {
	ctx, span := tracing.StartSpan(ctx, "matchcandidate.Repository.ListOpenByType")
	defer span.End()

	if limit < 1 || limit > 5000 {
		limit = 500
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(candidateColumns...)
	sb.From("match_candidates")
	sb.Where(
		sb.Equal("entity_type", entityType),
		sb.Equal("status", models.MatchCandidateStatusOpen),
	)
	sb.OrderBy("score DESC", "left_id", "right_id")
	sb.Limit(limit)

	query, args := sb.Build()
	var candidates []models.MatchCandidate
	if err := r.db.SelectContext(ctx, &candidates, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"entity_type": entityType}).Error("Failed to list open match candidates")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list match candidates")
	}

	return candidates, nil
}

// ListByEntity returns candidates involving an entity, optionally
// filtered by status.
func (r *Repository) ListByEntity(ctx context.Context, entityID string, status models.MatchCandidateStatus) ([]models.MatchCandidate, error) {
	ctx, span := tracing.StartSpan(ctx, "matchcandidate.Repository.ListByEntity")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(candidateColumns...)
	sb.From("match_candidates")
	sb.Where(sb.Or(
		sb.Equal("left_id", entityID),
		sb.Equal("right_id", entityID),
	))
	if status != "" {
		sb.Where(sb.Equal("status", status))
	}
	sb.OrderBy("score DESC")

	query, args := sb.Build()
	var candidates []models.MatchCandidate
	if err := r.db.SelectContext(ctx, &candidates, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"entity_id": entityID}).Error("Failed to list match candidates by entity")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list match candidates")
	}

	return candidates, nil
}

// TransitionStatus moves the pair's candidate from one status to
// another. Returns false when the row is absent or not in the expected
// status, so callers can surface operator mistakes explicitly.
func (r *Repository) TransitionStatus(ctx context.Context, a, b string, from, to models.MatchCandidateStatus) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "matchcandidate.Repository.TransitionStatus")
	defer span.End()

	leftID, rightID := models.OrderPair(a, b)

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update("match_candidates")
	ub.Set(
		ub.Assign("status", to),
		ub.Assign("updated_at", time.Now().UTC()),
	)
	ub.Where(
		ub.Equal("left_id", leftID),
		ub.Equal("right_id", rightID),
		ub.Equal("status", from),
	)

	query, args := ub.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"left_id": leftID, "right_id": rightID, "to": to}).Error("Failed to transition match candidate status")
		return false, httperror.NewHTTPError(http.StatusInternalServerError, "failed to update match candidate")
	}

	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

// BlockOpenForEntity moves every open candidate involving the entity to
// blocked. Run when an entity stops being canonical mid-pass.
func (r *Repository) BlockOpenForEntity(ctx context.Context, entityID string) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "matchcandidate.Repository.BlockOpenForEntity")
	defer span.End()

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update("match_candidates")
	ub.Set(
		ub.Assign("status", models.MatchCandidateStatusBlocked),
		ub.Assign("updated_at", time.Now().UTC()),
	)
	ub.Where(
		ub.Equal("status", models.MatchCandidateStatusOpen),
		ub.Or(
			ub.Equal("left_id", entityID),
			ub.Equal("right_id", entityID),
		),
	)

	query, args := ub.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"entity_id": entityID}).Error("Failed to block open candidates for entity")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to block match candidates")
	}

	rows, _ := result.RowsAffected()
	return int(rows), nil
}
