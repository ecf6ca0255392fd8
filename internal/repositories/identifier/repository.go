// Package identifier persists strong identifiers, the
// deterministic-matching backbone. (id_type, normalized_value) is
// globally unique; race safety for first-writer-wins comes from the
// storage constraint, and a losing writer re-reads the winning row.
package identifier

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

var identifierColumns = []string{
	"id", "entity_id", "id_type", "normalized_value", "raw_value",
	"source_system", "confidence", "created_at",
}

// Repository handles strong identifier persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new identifier repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// FindByValue returns the identifier row owning (idType, value), or
// nil, nil when unclaimed.
func (r *Repository) FindByValue(ctx context.Context, idType models.IdentifierType, normalizedValue string) (*models.StrongIdentifier, error) {
	ctx, span := tracing.StartSpan(ctx, "identifier.Repository.FindByValue")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(identifierColumns...)
	sb.From("strong_identifiers")
	sb.Where(
		sb.Equal("id_type", idType),
		sb.Equal("normalized_value", normalizedValue),
	)

	query, args := sb.Build()
	var identifier models.StrongIdentifier
	if err := r.db.GetContext(ctx, &identifier, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id_type": idType}).Error("Failed to find identifier by value")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to find identifier")
	}

	return &identifier, nil
}

// Claim attaches (idType, value) to entityID with confidence 1.0. When
// a concurrent writer won the uniqueness race, the winning row is
// re-read and returned with created=false.
func (r *Repository) Claim(ctx context.Context, entityID string, idType models.IdentifierType, normalizedValue, rawValue, sourceSystem string) (*models.StrongIdentifier, bool, error) {
	ctx, span := tracing.StartSpan(ctx, "identifier.Repository.Claim")
	defer span.End()

	identifier := &models.StrongIdentifier{
		ID:              uuid.New().String(),
		EntityID:        entityID,
		IDType:          idType,
		NormalizedValue: normalizedValue,
		RawValue:        rawValue,
		SourceSystem:    sourceSystem,
		Confidence:      1.0,
		CreatedAt:       time.Now().UTC(),
	}

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("strong_identifiers")
	sb.Cols(identifierColumns...)
	sb.Values(identifier.ID, identifier.EntityID, identifier.IDType, identifier.NormalizedValue, identifier.RawValue, identifier.SourceSystem, identifier.Confidence, identifier.CreatedAt)

	query, args := sb.Build()
	query += " ON CONFLICT (id_type, normalized_value) DO NOTHING"

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"entity_id": entityID, "id_type": idType}).Error("Failed to claim identifier")
		return nil, false, httperror.NewHTTPError(http.StatusInternalServerError, "failed to claim identifier")
	}

	rows, _ := result.RowsAffected()
	if rows > 0 {
		return identifier, true, nil
	}

	winner, err := r.FindByValue(ctx, idType, normalizedValue)
	if err != nil {
		return nil, false, err
	}
	return winner, false, nil
}

// ListByEntity returns all identifiers owned by an entity
func (r *Repository) ListByEntity(ctx context.Context, entityID string) ([]models.StrongIdentifier, error) {
	ctx, span := tracing.StartSpan(ctx, "identifier.Repository.ListByEntity")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(identifierColumns...)
	sb.From("strong_identifiers")
	sb.Where(sb.Equal("entity_id", entityID))
	sb.OrderBy("id_type", "normalized_value")

	query, args := sb.Build()
	var identifiers []models.StrongIdentifier
	if err := r.db.SelectContext(ctx, &identifiers, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"entity_id": entityID}).Error("Failed to list identifiers")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list identifiers")
	}

	return identifiers, nil
}

// Reassign moves one identifier value from one owner to another,
// best-effort. Returns false without error when the value is not owned
// by fromEntityID, so split migration leaves foreign identifiers
// untouched instead of raising a conflict.
func (r *Repository) Reassign(ctx context.Context, idType models.IdentifierType, normalizedValue, fromEntityID, toEntityID string) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "identifier.Repository.Reassign")
	defer span.End()

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update("strong_identifiers")
	ub.Set(ub.Assign("entity_id", toEntityID))
	ub.Where(
		ub.Equal("id_type", idType),
		ub.Equal("normalized_value", normalizedValue),
		ub.Equal("entity_id", fromEntityID),
	)

	query, args := ub.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id_type": idType, "to_entity_id": toEntityID}).Error("Failed to reassign identifier")
		return false, httperror.NewHTTPError(http.StatusInternalServerError, "failed to reassign identifier")
	}

	rows, _ := result.RowsAffected()
	return rows > 0, nil
}
