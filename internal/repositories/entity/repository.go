// Package entity persists canonical entities and their soft-merge
// chain.
package entity

import (
	"context"
	"fmt"
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

var entityColumns = []string{
	"id", "entity_type", "display_name", "species", "merged_into_id",
	"merged_at", "merge_reason", "created_at", "updated_at",
}

// Repository handles canonical entity persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new entity repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Create creates a new canonical entity
func (r *Repository) Create(ctx context.Context, entityType models.EntityType, displayName string) (*models.Entity, error) {
	ctx, span := tracing.StartSpan(ctx, "entity.Repository.Create")
	defer span.End()

	now := time.Now().UTC()
	entity := &models.Entity{
		ID:          uuid.New().String(),
		EntityType:  entityType,
		DisplayName: displayName,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("entities")
	sb.Cols("id", "entity_type", "display_name", "created_at", "updated_at")
	sb.Values(entity.ID, entity.EntityType, entity.DisplayName, entity.CreatedAt, entity.UpdatedAt)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"entity_type": entityType}).Error("Failed to create entity")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create entity")
	}

	return entity, nil
}

// Get retrieves an entity by id. Returns nil, nil when absent.
func (r *Repository) Get(ctx context.Context, id string) (*models.Entity, error) {
	ctx, span := tracing.StartSpan(ctx, "entity.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(entityColumns...)
	sb.From("entities")
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var entity models.Entity
	if err := r.db.GetContext(ctx, &entity, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"entity_id": id}).Error("Failed to get entity")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get entity")
	}

	return &entity, nil
}

// MustGet retrieves an entity by id, returning 404 when absent. Used on
// operator paths where a missing entity is a caller mistake.
func (r *Repository) MustGet(ctx context.Context, id string) (*models.Entity, error) {
	entity, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if entity == nil {
		return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("entity %s not found", id))
	}
	return entity, nil
}

// ResolveCanonical follows the merge chain from id to its canonical
// terminus, bounded by models.MaxChainDepth. Never errors on an
// over-deep chain; it logs a warning and returns the last node visited.
func (r *Repository) ResolveCanonical(ctx context.Context, id string) (*models.Entity, error) {
	ctx, span := tracing.StartSpan(ctx, "entity.Repository.ResolveCanonical")
	defer span.End()

	start, err := r.Get(ctx, id)
	if err != nil || start == nil {
		return start, err
	}

	resolved, truncated, err := models.FollowMergeChain(start, func(nextID string) (*models.Entity, error) {
		return r.Get(ctx, nextID)
	})
	if err != nil {
		return nil, err
	}
	if truncated {
		r.logger.WithContext(ctx).WithFields(map[string]any{
			"entity_id":  id,
			"stopped_at": resolved.ID,
			"max_depth":  models.MaxChainDepth,
		}).Warn("Merge chain exceeded max depth, returning last visited entity")
	} else if resolved.IsMerged() {
		// dangling pointer, the chain ends on a non-canonical node
		r.logger.WithContext(ctx).WithFields(map[string]any{"entity_id": resolved.ID}).Warn("Merge chain points at missing entity")
	}

	return resolved, nil
}

// SetMergedInto marks from as absorbed by into. Fails when the entity
// is already merged so concurrent merge passes cannot double-absorb.
func (r *Repository) SetMergedInto(ctx context.Context, fromID, intoID, reason string) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "entity.Repository.SetMergedInto")
	defer span.End()

	now := time.Now().UTC()
	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update("entities")
	ub.Set(
		ub.Assign("merged_into_id", intoID),
		ub.Assign("merged_at", now),
		ub.Assign("merge_reason", reason),
		ub.Assign("updated_at", now),
	)
	ub.Where(
		ub.Equal("id", fromID),
		ub.IsNull("merged_into_id"),
	)

	query, args := ub.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"from_id": fromID, "into_id": intoID}).Error("Failed to set merge pointer")
		return false, httperror.NewHTTPError(http.StatusInternalServerError, "failed to set merge pointer")
	}

	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

// ClearMergedInto clears the merge pointer only if it still points at
// expectedSurvivor, guarding undo against later chain rewrites.
func (r *Repository) ClearMergedInto(ctx context.Context, id, expectedSurvivor string) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "entity.Repository.ClearMergedInto")
	defer span.End()

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update("entities")
	ub.Set(
		ub.Assign("merged_into_id", nil),
		ub.Assign("merged_at", nil),
		ub.Assign("merge_reason", nil),
		ub.Assign("updated_at", time.Now().UTC()),
	)
	ub.Where(
		ub.Equal("id", id),
		ub.Equal("merged_into_id", expectedSurvivor),
	)

	query, args := ub.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"entity_id": id}).Error("Failed to clear merge pointer")
		return false, httperror.NewHTTPError(http.StatusInternalServerError, "failed to clear merge pointer")
	}

	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

// SetSpeciesIfEmpty records the first observed species for an animal
// entity. Later differing observations never overwrite it; they show up
// as scoring disagreement instead.
func (r *Repository) SetSpeciesIfEmpty(ctx context.Context, id, species string) error {
	ctx, span := tracing.StartSpan(ctx, "entity.Repository.SetSpeciesIfEmpty")
	defer span.End()

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update("entities")
	ub.Set(
		ub.Assign("species", species),
		ub.Assign("updated_at", time.Now().UTC()),
	)
	ub.Where(
		ub.Equal("id", id),
		ub.IsNull("species"),
	)

	query, args := ub.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"entity_id": id}).Error("Failed to set species")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to set species")
	}

	return nil
}

// UpdateDisplayName sets the entity display name
func (r *Repository) UpdateDisplayName(ctx context.Context, id, displayName string) error {
	ctx, span := tracing.StartSpan(ctx, "entity.Repository.UpdateDisplayName")
	defer span.End()

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update("entities")
	ub.Set(
		ub.Assign("display_name", displayName),
		ub.Assign("updated_at", time.Now().UTC()),
	)
	ub.Where(ub.Equal("id", id))

	query, args := ub.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"entity_id": id}).Error("Failed to update display name")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update display name")
	}

	return nil
}

// ListCanonicalByType pages through unmerged entities of one type using
// keyset pagination on id, so long scans are boundable and resumable.
func (r *Repository) ListCanonicalByType(ctx context.Context, entityType models.EntityType, afterID string, limit int) ([]models.Entity, error) {
	ctx, span := tracing.StartSpan(ctx, "entity.Repository.ListCanonicalByType")
	defer span.End()

	if limit < 1 || limit > 5000 {
		limit = 1000
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(entityColumns...)
	sb.From("entities")
	sb.Where(
		sb.Equal("entity_type", entityType),
		sb.IsNull("merged_into_id"),
	)
	if afterID != "" {
		sb.Where(sb.GreaterThan("id", afterID))
	}
	sb.OrderBy("id")
	sb.Limit(limit)

	query, args := sb.Build()
	var entities []models.Entity
	if err := r.db.SelectContext(ctx, &entities, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"entity_type": entityType}).Error("Failed to list canonical entities")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list entities")
	}

	return entities, nil
}
