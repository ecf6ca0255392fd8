package events

import (
	"context"

	"github.com/Ramsey-B/clover/pkg/models"
)

// Sink receives entity lifecycle notifications
type Sink interface {
	EntityCreated(ctx context.Context, entity *models.Entity)
	EntityMerged(ctx context.Context, fromID, intoID string, rule models.MergeRule, score float64)
	MergeUndone(ctx context.Context, fromID, intoID string)
	EntitySplit(ctx context.Context, originID, newEntityID string)
	CandidateProposed(ctx context.Context, entityType models.EntityType, leftID, rightID string, score float64)
	RecordCoAppearance(ctx context.Context, leftID, rightID string)
}

// Multi fans lifecycle notifications out to several sinks, the Kafka
// emitter and the graph projector in practice.
type Multi struct {
	sinks []Sink
}

// NewMulti creates a fan-out over the given sinks, skipping nils
func NewMulti(sinks ...Sink) *Multi {
	m := &Multi{}
	for _, s := range sinks {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	return m
}

func (m *Multi) EntityCreated(ctx context.Context, entity *models.Entity) {
	for _, s := range m.sinks {
		s.EntityCreated(ctx, entity)
	}
}

func (m *Multi) EntityMerged(ctx context.Context, fromID, intoID string, rule models.MergeRule, score float64) {
	for _, s := range m.sinks {
		s.EntityMerged(ctx, fromID, intoID, rule, score)
	}
}

func (m *Multi) MergeUndone(ctx context.Context, fromID, intoID string) {
	for _, s := range m.sinks {
		s.MergeUndone(ctx, fromID, intoID)
	}
}

func (m *Multi) EntitySplit(ctx context.Context, originID, newEntityID string) {
	for _, s := range m.sinks {
		s.EntitySplit(ctx, originID, newEntityID)
	}
}

func (m *Multi) CandidateProposed(ctx context.Context, entityType models.EntityType, leftID, rightID string, score float64) {
	for _, s := range m.sinks {
		s.CandidateProposed(ctx, entityType, leftID, rightID, score)
	}
}

func (m *Multi) RecordCoAppearance(ctx context.Context, leftID, rightID string) {
	for _, s := range m.sinks {
		s.RecordCoAppearance(ctx, leftID, rightID)
	}
}
