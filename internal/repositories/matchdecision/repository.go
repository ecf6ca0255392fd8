// Package matchdecision persists the decision ledger: one current
// verdict per pair, last write wins.
package matchdecision

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

var decisionColumns = []string{
	"id", "left_id", "right_id", "verdict", "note", "decided_by", "decided_at",
}

// Repository handles match decision persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new match decision repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Upsert records the verdict for a pair, overwriting any prior verdict
// and timestamp.
func (r *Repository) Upsert(ctx context.Context, a, b string, verdict models.Verdict, note, decidedBy string) error {
	ctx, span := tracing.StartSpan(ctx, "matchdecision.Repository.Upsert")
	defer span.End()

	leftID, rightID := models.OrderPair(a, b)

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("match_decisions")
	sb.Cols(decisionColumns...)
	sb.Values(uuid.New().String(), leftID, rightID, verdict, note, decidedBy, time.Now().UTC())

	query, args := sb.Build()
	query += ` ON CONFLICT (left_id, right_id) DO UPDATE SET
		verdict = EXCLUDED.verdict,
		note = EXCLUDED.note,
		decided_by = EXCLUDED.decided_by,
		decided_at = EXCLUDED.decided_at`

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"left_id": leftID, "right_id": rightID, "verdict": verdict}).Error("Failed to upsert match decision")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to record decision")
	}

	return nil
}

// GetByPair returns the current verdict for a pair in either
// direction, or nil, nil when undecided.
func (r *Repository) GetByPair(ctx context.Context, a, b string) (*models.MatchDecision, error) {
	ctx, span := tracing.StartSpan(ctx, "matchdecision.Repository.GetByPair")
	defer span.End()

	leftID, rightID := models.OrderPair(a, b)

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(decisionColumns...)
	sb.From("match_decisions")
	sb.Where(
		sb.Equal("left_id", leftID),
		sb.Equal("right_id", rightID),
	)

	query, args := sb.Build()
	var decision models.MatchDecision
	if err := r.db.GetContext(ctx, &decision, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get match decision")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get decision")
	}

	return &decision, nil
}

// ListNotSameForEntity returns every not_same verdict involving the
// entity. Candidate generation consults this before proposing pairs.
func (r *Repository) ListNotSameForEntity(ctx context.Context, entityID string) ([]models.MatchDecision, error) {
	ctx, span := tracing.StartSpan(ctx, "matchdecision.Repository.ListNotSameForEntity")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(decisionColumns...)
	sb.From("match_decisions")
	sb.Where(
		sb.Equal("verdict", models.VerdictNotSame),
		sb.Or(
			sb.Equal("left_id", entityID),
			sb.Equal("right_id", entityID),
		),
	)

	query, args := sb.Build()
	var decisions []models.MatchDecision
	if err := r.db.SelectContext(ctx, &decisions, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"entity_id": entityID}).Error("Failed to list not_same decisions")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list decisions")
	}

	return decisions, nil
}
