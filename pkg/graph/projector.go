package graph

import (
	"context"
	"fmt"

	"github.com/Gobusters/ectologger"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// Projector mirrors canonical entities and merge outcomes into the
// graph. Projection is best effort; failures are logged and never fail
// the relational write they follow.
type Projector struct {
	client *Client
	logger ectologger.Logger
}

// NewProjector creates a new graph projector
func NewProjector(client *Client, logger ectologger.Logger) *Projector {
	return &Projector{
		client: client,
		logger: logger,
	}
}

// UpsertEntity creates or updates an entity node, labeled by entity
// type.
func (p *Projector) UpsertEntity(ctx context.Context, entity *models.Entity) error {
	ctx, span := tracing.StartSpan(ctx, "graph.Projector.UpsertEntity")
	defer span.End()

	props := map[string]any{
		"id":           entity.ID,
		"entity_type":  string(entity.EntityType),
		"display_name": entity.DisplayName,
		"created_at":   entity.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
	}
	if entity.Species != nil {
		props["species"] = *entity.Species
	}

	cypher := fmt.Sprintf(`
		MERGE (e:%s {id: $id})
		SET e = $props
		RETURN e
	`, entityLabel(entity.EntityType))

	_, err := p.client.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, cypher, map[string]any{
			"id":    entity.ID,
			"props": props,
		})
		if err != nil {
			return nil, err
		}
		return result.Consume(ctx)
	})

	if err != nil {
		p.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"entity_id": entity.ID,
		}).Error("Failed to upsert entity in graph")
		return fmt.Errorf("failed to upsert entity in graph: %w", err)
	}

	return nil
}

// EntityCreated projects a freshly created entity as a node
func (p *Projector) EntityCreated(ctx context.Context, entity *models.Entity) {
	_ = p.UpsertEntity(ctx, entity)
}

// EntityMerged records a MERGED_INTO edge between two entity nodes
func (p *Projector) EntityMerged(ctx context.Context, fromID, intoID string, rule models.MergeRule, score float64) {
	ctx, span := tracing.StartSpan(ctx, "graph.Projector.EntityMerged")
	defer span.End()

	cypher := `
		MATCH (from {id: $from_id}), (into {id: $into_id})
		MERGE (from)-[r:MERGED_INTO]->(into)
		SET r.rule = $rule, r.score = $score
		RETURN r
	`

	_, err := p.client.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, cypher, map[string]any{
			"from_id": fromID,
			"into_id": intoID,
			"rule":    string(rule),
			"score":   score,
		})
		if err != nil {
			return nil, err
		}
		return result.Consume(ctx)
	})

	if err != nil {
		p.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"from_id": fromID,
			"into_id": intoID,
		}).Error("Failed to record merge edge in graph")
	}
}

// MergeUndone removes the MERGED_INTO edge between two entity nodes
func (p *Projector) MergeUndone(ctx context.Context, fromID, intoID string) {
	ctx, span := tracing.StartSpan(ctx, "graph.Projector.MergeUndone")
	defer span.End()

	cypher := `
		MATCH (from {id: $from_id})-[r:MERGED_INTO]->(into {id: $into_id})
		DELETE r
	`

	_, err := p.client.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, cypher, map[string]any{
			"from_id": fromID,
			"into_id": intoID,
		})
		if err != nil {
			return nil, err
		}
		return result.Consume(ctx)
	})

	if err != nil {
		p.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"from_id": fromID,
			"into_id": intoID,
		}).Error("Failed to remove merge edge from graph")
	}
}

// EntitySplit records a SPLIT_FROM edge from the new entity back to the
// origin.
func (p *Projector) EntitySplit(ctx context.Context, originID, newEntityID string) {
	ctx, span := tracing.StartSpan(ctx, "graph.Projector.EntitySplit")
	defer span.End()

	cypher := `
		MATCH (origin {id: $origin_id}), (split {id: $new_id})
		MERGE (split)-[r:SPLIT_FROM]->(origin)
		RETURN r
	`

	_, err := p.client.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, cypher, map[string]any{
			"origin_id": originID,
			"new_id":    newEntityID,
		})
		if err != nil {
			return nil, err
		}
		return result.Consume(ctx)
	})

	if err != nil {
		p.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"origin_id":     originID,
			"new_entity_id": newEntityID,
		}).Error("Failed to record split edge in graph")
	}
}

// CandidateProposed records a POSSIBLE_MATCH edge carrying the latest
// score for the pair.
func (p *Projector) CandidateProposed(ctx context.Context, entityType models.EntityType, leftID, rightID string, score float64) {
	ctx, span := tracing.StartSpan(ctx, "graph.Projector.CandidateProposed")
	defer span.End()

	cypher := `
		MATCH (a {id: $left_id}), (b {id: $right_id})
		MERGE (a)-[r:POSSIBLE_MATCH]->(b)
		SET r.score = $score
		RETURN r
	`

	_, err := p.client.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, cypher, map[string]any{
			"left_id":  leftID,
			"right_id": rightID,
			"score":    score,
		})
		if err != nil {
			return nil, err
		}
		return result.Consume(ctx)
	})

	if err != nil {
		p.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"left_id":  leftID,
			"right_id": rightID,
		}).Error("Failed to record candidate edge in graph")
	}
}

// RecordCoAppearance projects a co-appearance of two entities on one
// source record.
func (p *Projector) RecordCoAppearance(ctx context.Context, leftID, rightID string) {
	_ = p.LinkRecordEdge(ctx, leftID, rightID)
}

// LinkRecordEdge records an APPEARED_WITH edge between two entities
// that share a source record, one per ordered pair.
func (p *Projector) LinkRecordEdge(ctx context.Context, leftID, rightID string) error {
	ctx, span := tracing.StartSpan(ctx, "graph.Projector.LinkRecordEdge")
	defer span.End()

	cypher := `
		MATCH (a {id: $left_id}), (b {id: $right_id})
		MERGE (a)-[r:APPEARED_WITH]->(b)
		RETURN r
	`

	_, err := p.client.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, cypher, map[string]any{
			"left_id":  leftID,
			"right_id": rightID,
		})
		if err != nil {
			return nil, err
		}
		return result.Consume(ctx)
	})

	if err != nil {
		p.logger.WithContext(ctx).WithError(err).Error("Failed to record co-occurrence edge in graph")
		return fmt.Errorf("failed to record co-occurrence edge: %w", err)
	}

	return nil
}

func entityLabel(t models.EntityType) string {
	switch t {
	case models.EntityTypePerson:
		return "Person"
	case models.EntityTypeAnimal:
		return "Animal"
	case models.EntityTypePlace:
		return "Place"
	}
	return "Entity"
}
