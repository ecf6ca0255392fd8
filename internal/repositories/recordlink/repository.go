// Package recordlink persists the ties between source records and the
// entities they resolved to. One link per (entity type, record); links
// are repointed wholesale on merge and migrated per subset on split.
package recordlink

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

var linkColumns = []string{
	"id", "entity_type", "source_system", "source_table", "source_row_id",
	"entity_id", "created_at",
}

// Repository handles record link persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new record link repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Link ties a record to an entity exactly once per entity type.
// Returns false when the record is already linked; re-processing a
// record is a no-op.
func (r *Repository) Link(ctx context.Context, entityType models.EntityType, ref models.RecordRef, entityID string) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "recordlink.Repository.Link")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("record_links")
	sb.Cols(linkColumns...)
	sb.Values(uuid.New().String(), entityType, ref.SourceSystem, ref.SourceTable, ref.SourceRowID, entityID, time.Now().UTC())

	query, args := sb.Build()
	query += " ON CONFLICT (entity_type, source_system, source_table, source_row_id) DO NOTHING"

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"record": ref.Key(), "entity_id": entityID}).Error("Failed to link record")
		return false, httperror.NewHTTPError(http.StatusInternalServerError, "failed to link record")
	}

	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

// GetByRecord returns the link for one record and entity type, or
// nil, nil when the record is unlinked.
func (r *Repository) GetByRecord(ctx context.Context, entityType models.EntityType, ref models.RecordRef) (*models.RecordLink, error) {
	ctx, span := tracing.StartSpan(ctx, "recordlink.Repository.GetByRecord")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(linkColumns...)
	sb.From("record_links")
	sb.Where(
		sb.Equal("entity_type", entityType),
		sb.Equal("source_system", ref.SourceSystem),
		sb.Equal("source_table", ref.SourceTable),
		sb.Equal("source_row_id", ref.SourceRowID),
	)

	query, args := sb.Build()
	var link models.RecordLink
	if err := r.db.GetContext(ctx, &link, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"record": ref.Key()}).Error("Failed to get record link")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get record link")
	}

	return &link, nil
}

// ListByEntity returns all links owned by an entity
func (r *Repository) ListByEntity(ctx context.Context, entityID string) ([]models.RecordLink, error) {
	ctx, span := tracing.StartSpan(ctx, "recordlink.Repository.ListByEntity")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(linkColumns...)
	sb.From("record_links")
	sb.Where(sb.Equal("entity_id", entityID))
	sb.OrderBy("created_at")

	query, args := sb.Build()
	var links []models.RecordLink
	if err := r.db.SelectContext(ctx, &links, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"entity_id": entityID}).Error("Failed to list record links")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list record links")
	}

	return links, nil
}

// RepointAll moves every link from one entity to another. Run on merge
// so future chain traversal is amortized away. Returns links moved.
func (r *Repository) RepointAll(ctx context.Context, fromEntityID, toEntityID string) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "recordlink.Repository.RepointAll")
	defer span.End()

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update("record_links")
	ub.Set(ub.Assign("entity_id", toEntityID))
	ub.Where(ub.Equal("entity_id", fromEntityID))

	query, args := ub.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"from_id": fromEntityID, "into_id": toEntityID}).Error("Failed to repoint record links")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to repoint record links")
	}

	rows, _ := result.RowsAffected()
	return int(rows), nil
}

// MigrateRecords moves the given subset of records from one entity to
// another. Records not owned by fromEntityID are skipped silently.
func (r *Repository) MigrateRecords(ctx context.Context, fromEntityID, toEntityID string, refs []models.RecordRef) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "recordlink.Repository.MigrateRecords")
	defer span.End()

	moved := 0
	for _, ref := range refs {
		ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
		ub.Update("record_links")
		ub.Set(ub.Assign("entity_id", toEntityID))
		ub.Where(
			ub.Equal("entity_id", fromEntityID),
			ub.Equal("source_system", ref.SourceSystem),
			ub.Equal("source_table", ref.SourceTable),
			ub.Equal("source_row_id", ref.SourceRowID),
		)

		query, args := ub.Build()
		result, err := r.db.ExecContext(ctx, query, args...)
		if err != nil {
			r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"record": ref.Key()}).Error("Failed to migrate record link")
			return moved, httperror.NewHTTPError(http.StatusInternalServerError, "failed to migrate record links")
		}

		rows, _ := result.RowsAffected()
		moved += int(rows)
	}

	return moved, nil
}

// LinkedEntityIDs returns entities of otherType that share at least one
// source record with entityID. Used for contextual corroboration, e.g.
// people co-occurring at the same resolved place.
func (r *Repository) LinkedEntityIDs(ctx context.Context, entityID string, otherType models.EntityType) ([]string, error) {
	ctx, span := tracing.StartSpan(ctx, "recordlink.Repository.LinkedEntityIDs")
	defer span.End()

	query := `
		SELECT DISTINCT b.entity_id
		FROM record_links a
		JOIN record_links b
		  ON a.source_system = b.source_system
		 AND a.source_table = b.source_table
		 AND a.source_row_id = b.source_row_id
		WHERE a.entity_id = $1
		  AND b.entity_type = $2
		  AND b.entity_id <> $1`

	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, entityID, otherType); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"entity_id": entityID, "other_type": otherType}).Error("Failed to list linked entities")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list linked entities")
	}

	return ids, nil
}
