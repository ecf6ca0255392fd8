// Package events publishes entity lifecycle events to Kafka. Event
// delivery is best effort: a publish failure is logged and dropped so
// the resolution write that triggered it stands.
package events

import (
	"context"
	"encoding/json"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/kafka"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// SchemaVersion is the current event schema version
const SchemaVersion = "1.0"

// EventType defines the type of event
type EventType string

const (
	EventTypeEntityCreated  EventType = "entity.created"
	EventTypeEntityMerged   EventType = "entity.merged"
	EventTypeMergeUndone    EventType = "entity.merge_undone"
	EventTypeEntitySplit    EventType = "entity.split"
	EventTypeMatchCandidate EventType = "match.candidate"
	EventTypeCoAppearance   EventType = "entity.co_appearance"
)

// Emitter publishes entity lifecycle events for Clover
type Emitter struct {
	producer *kafka.Producer
	logger   ectologger.Logger
}

// NewEmitter creates a new event emitter
func NewEmitter(producer *kafka.Producer, logger ectologger.Logger) *Emitter {
	return &Emitter{
		producer: producer,
		logger:   logger,
	}
}

// EntityCreated emits an entity.created event for a freshly minted
// entity.
func (e *Emitter) EntityCreated(ctx context.Context, entity *models.Entity) {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EntityCreated")
	defer span.End()

	data, _ := json.Marshal(map[string]any{
		"schema_version": SchemaVersion,
		"entity_id":      entity.ID,
		"entity_type":    entity.EntityType,
	})

	event := &kafka.EntityEvent{
		EventType:  string(EventTypeEntityCreated),
		EntityID:   entity.ID,
		EntityType: string(entity.EntityType),
		Data:       data,
	}

	if err := e.producer.PublishEntityEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit entity.created event")
	}
}

// EntityMerged emits an entity.merged event keyed by the surviving
// entity.
func (e *Emitter) EntityMerged(ctx context.Context, fromID, intoID string, rule models.MergeRule, score float64) {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EntityMerged")
	defer span.End()

	data, _ := json.Marshal(map[string]any{
		"schema_version": SchemaVersion,
		"from_id":        fromID,
		"into_id":        intoID,
		"rule":           rule,
		"score":          score,
	})

	event := &kafka.EntityEvent{
		EventType: string(EventTypeEntityMerged),
		EntityID:  intoID,
		Data:      data,
	}

	if err := e.producer.PublishEntityEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit entity.merged event")
	}
}

// MergeUndone emits an entity.merge_undone event keyed by the restored
// entity.
func (e *Emitter) MergeUndone(ctx context.Context, fromID, intoID string) {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.MergeUndone")
	defer span.End()

	data, _ := json.Marshal(map[string]any{
		"schema_version": SchemaVersion,
		"from_id":        fromID,
		"into_id":        intoID,
	})

	event := &kafka.EntityEvent{
		EventType: string(EventTypeMergeUndone),
		EntityID:  fromID,
		Data:      data,
	}

	if err := e.producer.PublishEntityEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit entity.merge_undone event")
	}
}

// EntitySplit emits an entity.split event keyed by the origin entity
func (e *Emitter) EntitySplit(ctx context.Context, originID, newEntityID string) {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EntitySplit")
	defer span.End()

	data, _ := json.Marshal(map[string]any{
		"schema_version": SchemaVersion,
		"origin_id":      originID,
		"new_entity_id":  newEntityID,
	})

	event := &kafka.EntityEvent{
		EventType: string(EventTypeEntitySplit),
		EntityID:  originID,
		Data:      data,
	}

	if err := e.producer.PublishEntityEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit entity.split event")
	}
}

// CandidateProposed emits a match.candidate event keyed by the lower
// entity id of the pair.
func (e *Emitter) CandidateProposed(ctx context.Context, entityType models.EntityType, leftID, rightID string, score float64) {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.CandidateProposed")
	defer span.End()

	data, _ := json.Marshal(map[string]any{
		"schema_version": SchemaVersion,
		"left_id":        leftID,
		"right_id":       rightID,
		"score":          score,
	})

	event := &kafka.EntityEvent{
		EventType:  string(EventTypeMatchCandidate),
		EntityID:   leftID,
		EntityType: string(entityType),
		Data:       data,
	}

	if err := e.producer.PublishEntityEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit match.candidate event")
	}
}

// RecordCoAppearance emits an entity.co_appearance event for two
// entities that share a source record.
func (e *Emitter) RecordCoAppearance(ctx context.Context, leftID, rightID string) {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.RecordCoAppearance")
	defer span.End()

	data, _ := json.Marshal(map[string]any{
		"schema_version": SchemaVersion,
		"left_id":        leftID,
		"right_id":       rightID,
	})

	event := &kafka.EntityEvent{
		EventType: string(EventTypeCoAppearance),
		EntityID:  leftID,
		Data:      data,
	}

	if err := e.producer.PublishEntityEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit entity.co_appearance event")
	}
}
