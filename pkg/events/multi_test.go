package events

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Ramsey-B/clover/pkg/models"
)

type countingSink struct {
	calls map[string]int
}

func newCountingSink() *countingSink {
	return &countingSink{calls: make(map[string]int)}
}

func (s *countingSink) EntityCreated(ctx context.Context, entity *models.Entity) {
	s.calls["created"]++
}

func (s *countingSink) EntityMerged(ctx context.Context, fromID, intoID string, rule models.MergeRule, score float64) {
	s.calls["merged"]++
}

func (s *countingSink) MergeUndone(ctx context.Context, fromID, intoID string) {
	s.calls["undone"]++
}

func (s *countingSink) EntitySplit(ctx context.Context, originID, newEntityID string) {
	s.calls["split"]++
}

func (s *countingSink) CandidateProposed(ctx context.Context, entityType models.EntityType, leftID, rightID string, score float64) {
	s.calls["candidate"]++
}

func (s *countingSink) RecordCoAppearance(ctx context.Context, leftID, rightID string) {
	s.calls["co_appearance"]++
}

func TestMulti_FansOutToEverySink(t *testing.T) {
	ctx := context.Background()
	a := newCountingSink()
	b := newCountingSink()

	m := NewMulti(a, nil, b)

	m.EntityCreated(ctx, &models.Entity{ID: "ent-1", EntityType: models.EntityTypePerson})
	m.EntityMerged(ctx, "ent-1", "ent-2", models.MergeRuleAutoScore, 0.98)
	m.MergeUndone(ctx, "ent-1", "ent-2")
	m.EntitySplit(ctx, "ent-2", "ent-3")
	m.CandidateProposed(ctx, models.EntityTypePerson, "ent-1", "ent-2", 0.7)
	m.RecordCoAppearance(ctx, "ent-1", "ent-3")

	for _, sink := range []*countingSink{a, b} {
		assert.Equal(t, 1, sink.calls["created"])
		assert.Equal(t, 1, sink.calls["merged"])
		assert.Equal(t, 1, sink.calls["undone"])
		assert.Equal(t, 1, sink.calls["split"])
		assert.Equal(t, 1, sink.calls["candidate"])
		assert.Equal(t, 1, sink.calls["co_appearance"])
	}
}
