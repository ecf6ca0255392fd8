// Package alias persists observed names per entity. Display names are
// derived from alias frequency, never stored authoritative on their
// own.
package alias

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

var aliasColumns = []string{
	"id", "entity_id", "name_raw", "name_key", "source_system",
	"source_table", "source_row_id", "created_at",
}

// Repository handles alias persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new alias repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Upsert records an alias, deduplicating per (entity, name key, source
// record). Returns true when a new row was written.
func (r *Repository) Upsert(ctx context.Context, a *models.Alias) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "alias.Repository.Upsert")
	defer span.End()

	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	a.CreatedAt = time.Now().UTC()

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("aliases")
	sb.Cols(aliasColumns...)
	sb.Values(a.ID, a.EntityID, a.NameRaw, a.NameKey, a.SourceSystem, a.SourceTable, a.SourceRowID, a.CreatedAt)

	query, args := sb.Build()
	query += " ON CONFLICT (entity_id, name_key, source_system, source_table, source_row_id) DO NOTHING"

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"entity_id": a.EntityID}).Error("Failed to upsert alias")
		return false, httperror.NewHTTPError(http.StatusInternalServerError, "failed to upsert alias")
	}

	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

// ListByEntity returns all aliases for an entity
func (r *Repository) ListByEntity(ctx context.Context, entityID string) ([]models.Alias, error) {
	ctx, span := tracing.StartSpan(ctx, "alias.Repository.ListByEntity")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(aliasColumns...)
	sb.From("aliases")
	sb.Where(sb.Equal("entity_id", entityID))
	sb.OrderBy("created_at")

	query, args := sb.Build()
	var aliases []models.Alias
	if err := r.db.SelectContext(ctx, &aliases, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"entity_id": entityID}).Error("Failed to list aliases")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list aliases")
	}

	return aliases, nil
}

// MostFrequentName returns a raw spelling of the most frequently
// observed name key for an entity, or "" when no alias exists. Counts
// aggregate per key so differently cased or spaced spellings of one
// name pool together; the winning key's most frequent spelling is the
// representative, earliest observed on ties.
func (r *Repository) MostFrequentName(ctx context.Context, entityID string) (string, error) {
	ctx, span := tracing.StartSpan(ctx, "alias.Repository.MostFrequentName")
	defer span.End()

	query := `
		SELECT name_raw FROM (
			SELECT name_raw,
				COUNT(*) AS raw_count,
				MIN(created_at) AS first_seen,
				SUM(COUNT(*)) OVER (PARTITION BY name_key) AS key_count
			FROM aliases
			WHERE entity_id = $1 AND name_key <> ''
			GROUP BY name_key, name_raw
		) ranked
		ORDER BY key_count DESC, raw_count DESC, first_seen ASC
		LIMIT 1`

	var nameRaw string
	if err := r.db.GetContext(ctx, &nameRaw, query, entityID); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return "", nil
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"entity_id": entityID}).Error("Failed to compute most frequent alias")
		return "", httperror.NewHTTPError(http.StatusInternalServerError, "failed to compute display name")
	}

	return nameRaw, nil
}

// MigrateForRecords moves aliases contributed by the given source
// records from one entity to another. Returns the number of aliases
// moved.
func (r *Repository) MigrateForRecords(ctx context.Context, fromEntityID, toEntityID string, refs []models.RecordRef) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "alias.Repository.MigrateForRecords")
	defer span.End()

	moved := 0
	for _, ref := range refs {
		ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
		ub.Update("aliases")
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
			r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"record": ref.Key()}).Error("Failed to migrate aliases for record")
			return moved, httperror.NewHTTPError(http.StatusInternalServerError, "failed to migrate aliases")
		}

		rows, _ := result.RowsAffected()
		moved += int(rows)
	}

	return moved, nil
}
