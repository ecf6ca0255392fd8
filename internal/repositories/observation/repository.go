// Package observation persists the evidence store: immutable,
// provenance-tagged observations extracted from raw source records.
package observation

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

var observationColumns = []string{
	"id", "source_system", "source_table", "source_row_id",
	"observation_kind", "field_name", "raw_value", "classification",
	"resolved_entity_id", "processed_at", "created_at",
}

// Repository handles observation persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new observation repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// CreateBatch inserts observations, silently absorbing duplicates on
// the (source record, kind, field) uniqueness key. Returns the number
// of rows actually inserted, so re-submission reports zero.
func (r *Repository) CreateBatch(ctx context.Context, requests []models.CreateObservationRequest) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "observation.Repository.CreateBatch")
	defer span.End()

	if len(requests) == 0 {
		return 0, nil
	}

	now := time.Now().UTC()
	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("observations")
	sb.Cols("id", "source_system", "source_table", "source_row_id", "observation_kind", "field_name", "raw_value", "classification", "created_at")

	for _, req := range requests {
		var classification any
		if len(req.Classification) > 0 {
			classification = []byte(req.Classification)
		}
		sb.Values(uuid.New().String(), req.SourceSystem, req.SourceTable, req.SourceRowID, req.ObservationKind, req.FieldName, req.RawValue, classification, now)
	}

	query, args := sb.Build()
	query += " ON CONFLICT (source_system, source_table, source_row_id, observation_kind, field_name) DO NOTHING"

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"count": len(requests)}).Error("Failed to create observations batch")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create observations")
	}

	inserted, err := result.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return int(inserted), nil
}

// ListUnprocessed returns observations the resolver has not examined
// yet, ordered by source record so one record's observations stay
// adjacent. Limit bounds the scan; repeated calls resume where the
// prior batch left off because processed rows drop out of the
// predicate. Unresolvable observations are stamped processed without
// an entity so they cannot starve the scan.
func (r *Repository) ListUnprocessed(ctx context.Context, limit int) ([]models.Observation, error) {
	ctx, span := tracing.StartSpan(ctx, "observation.Repository.ListUnprocessed")
	defer span.End()

	if limit < 1 || limit > 10000 {
		limit = 1000
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(observationColumns...)
	sb.From("observations")
	sb.Where(sb.IsNull("processed_at"))
	sb.OrderBy("source_system", "source_table", "source_row_id", "observation_kind", "field_name")
	sb.Limit(limit)

	query, args := sb.Build()
	var observations []models.Observation
	if err := r.db.SelectContext(ctx, &observations, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list unprocessed observations")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list unprocessed observations")
	}

	return observations, nil
}

// ListByRecord returns all observations for one source record
func (r *Repository) ListByRecord(ctx context.Context, ref models.RecordRef) ([]models.Observation, error) {
	ctx, span := tracing.StartSpan(ctx, "observation.Repository.ListByRecord")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(observationColumns...)
	sb.From("observations")
	sb.Where(
		sb.Equal("source_system", ref.SourceSystem),
		sb.Equal("source_table", ref.SourceTable),
		sb.Equal("source_row_id", ref.SourceRowID),
	)
	sb.OrderBy("observation_kind", "field_name")

	query, args := sb.Build()
	var observations []models.Observation
	if err := r.db.SelectContext(ctx, &observations, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"record": ref.Key()}).Error("Failed to list observations by record")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list observations")
	}

	return observations, nil
}

// MarkResolved stamps the entity an observation resolved to.
// Observations stay immutable otherwise; resolution bookkeeping is the
// only write after ingestion.
func (r *Repository) MarkResolved(ctx context.Context, ids []string, entityID string) error {
	ctx, span := tracing.StartSpan(ctx, "observation.Repository.MarkResolved")
	defer span.End()

	if len(ids) == 0 {
		return nil
	}

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update("observations")
	ub.Set(
		ub.Assign("resolved_entity_id", entityID),
		ub.Assign("processed_at", time.Now().UTC()),
	)
	ub.Where(ub.In("id", idsToAny(ids)...))

	query, args := ub.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"entity_id": entityID, "count": len(ids)}).Error("Failed to mark observations resolved")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to mark observations resolved")
	}

	return nil
}

// MarkProcessed stamps observations that were examined but could not
// resolve to an entity, such as invalid identifier values or name-only
// records with no linked entity.
func (r *Repository) MarkProcessed(ctx context.Context, ids []string) error {
	ctx, span := tracing.StartSpan(ctx, "observation.Repository.MarkProcessed")
	defer span.End()

	if len(ids) == 0 {
		return nil
	}

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update("observations")
	ub.Set(ub.Assign("processed_at", time.Now().UTC()))
	ub.Where(ub.In("id", idsToAny(ids)...))

	query, args := ub.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"count": len(ids)}).Error("Failed to mark observations processed")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to mark observations processed")
	}

	return nil
}

func idsToAny(ids []string) []any {
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}
