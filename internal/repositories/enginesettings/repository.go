// Package enginesettings persists per-entity-type engine tuning
// values.
package enginesettings

import (
	"context"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// Repository handles engine setting persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new engine settings repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// ListByEntityType returns the stored overrides for one entity type
func (r *Repository) ListByEntityType(ctx context.Context, entityType models.EntityType) ([]models.EngineSetting, error) {
	ctx, span := tracing.StartSpan(ctx, "enginesettings.Repository.ListByEntityType")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("entity_type", "key", "value", "updated_at")
	sb.From("engine_settings")
	sb.Where(sb.Equal("entity_type", entityType))
	sb.OrderBy("key")

	query, args := sb.Build()
	var rows []models.EngineSetting
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"entity_type": entityType}).Error("Failed to list engine settings")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list engine settings")
	}

	return rows, nil
}

// Upsert writes one tuning value
func (r *Repository) Upsert(ctx context.Context, entityType models.EntityType, key string, value float64) error {
	ctx, span := tracing.StartSpan(ctx, "enginesettings.Repository.Upsert")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("engine_settings")
	sb.Cols("entity_type", "key", "value", "updated_at")
	sb.Values(entityType, key, value, time.Now().UTC())

	query, args := sb.Build()
	query += ` ON CONFLICT (entity_type, key) DO UPDATE SET
		value = EXCLUDED.value,
		updated_at = EXCLUDED.updated_at`

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"entity_type": entityType, "key": key}).Error("Failed to upsert engine setting")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to upsert engine setting")
	}

	return nil
}
