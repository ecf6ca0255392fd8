// Package mergerecord persists the append-only merge audit trail.
// Rows are never deleted; undo toggles the reverted flag.
package mergerecord

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

var recordColumns = []string{
	"id", "from_id", "into_id", "rule", "score", "is_reverted",
	"reverted_at", "created_at",
}

// Repository handles merge record persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new merge record repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Create appends a merge record
func (r *Repository) Create(ctx context.Context, fromID, intoID string, rule models.MergeRule, score float64) (*models.MergeRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "mergerecord.Repository.Create")
	defer span.End()

	record := &models.MergeRecord{
		ID:        uuid.New().String(),
		FromID:    fromID,
		IntoID:    intoID,
		Rule:      rule,
		Score:     score,
		CreatedAt: time.Now().UTC(),
	}

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("merge_records")
	sb.Cols("id", "from_id", "into_id", "rule", "score", "is_reverted", "created_at")
	sb.Values(record.ID, record.FromID, record.IntoID, record.Rule, record.Score, false, record.CreatedAt)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"from_id": fromID, "into_id": intoID}).Error("Failed to create merge record")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create merge record")
	}

	return record, nil
}

// GetActiveByFromID returns the most recent unreverted merge record
// absorbing fromID, or nil, nil when none exists.
func (r *Repository) GetActiveByFromID(ctx context.Context, fromID string) (*models.MergeRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "mergerecord.Repository.GetActiveByFromID")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(recordColumns...)
	sb.From("merge_records")
	sb.Where(
		sb.Equal("from_id", fromID),
		sb.Equal("is_reverted", false),
	)
	sb.OrderBy("created_at DESC")
	sb.Limit(1)

	query, args := sb.Build()
	var record models.MergeRecord
	if err := r.db.GetContext(ctx, &record, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"from_id": fromID}).Error("Failed to get active merge record")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get merge record")
	}

	return &record, nil
}

// MarkReverted flips the reverted flag on a merge record. Returns false
// when the record was already reverted.
func (r *Repository) MarkReverted(ctx context.Context, id string) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "mergerecord.Repository.MarkReverted")
	defer span.End()

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update("merge_records")
	ub.Set(
		ub.Assign("is_reverted", true),
		ub.Assign("reverted_at", time.Now().UTC()),
	)
	ub.Where(
		ub.Equal("id", id),
		ub.Equal("is_reverted", false),
	)

	query, args := ub.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"merge_record_id": id}).Error("Failed to mark merge record reverted")
		return false, httperror.NewHTTPError(http.StatusInternalServerError, "failed to revert merge record")
	}

	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

// ListByEntity returns the merge history touching an entity on either
// side, newest first.
func (r *Repository) ListByEntity(ctx context.Context, entityID string) ([]models.MergeRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "mergerecord.Repository.ListByEntity")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(recordColumns...)
	sb.From("merge_records")
	sb.Where(sb.Or(
		sb.Equal("from_id", entityID),
		sb.Equal("into_id", entityID),
	))
	sb.OrderBy("created_at DESC")

	query, args := sb.Build()
	var records []models.MergeRecord
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"entity_id": entityID}).Error("Failed to list merge records")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list merge records")
	}

	return records, nil
}
