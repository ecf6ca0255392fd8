package models

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderPair(t *testing.T) {
	left, right := OrderPair("ent-b", "ent-a")
	assert.Equal(t, "ent-a", left)
	assert.Equal(t, "ent-b", right)

	left, right = OrderPair("ent-a", "ent-b")
	assert.Equal(t, "ent-a", left)
	assert.Equal(t, "ent-b", right)
}

func TestIdentifiersConflict(t *testing.T) {
	left := []StrongIdentifier{
		{IDType: IdentifierTypeEmail, NormalizedValue: "jane@example.com"},
	}
	right := []StrongIdentifier{
		{IDType: IdentifierTypeEmail, NormalizedValue: "john@example.com"},
	}

	assert.True(t, IdentifiersConflict(left, right))
	assert.False(t, IdentifiersAgree(left, right))
}

func TestIdentifiersConflict_DisjointTypesDoNotConflict(t *testing.T) {
	left := []StrongIdentifier{
		{IDType: IdentifierTypeEmail, NormalizedValue: "jane@example.com"},
	}
	right := []StrongIdentifier{
		{IDType: IdentifierTypePhone, NormalizedValue: "7075551234"},
	}

	assert.False(t, IdentifiersConflict(left, right))
}

func TestIdentifiersConflict_StreetKeysAreNotProof(t *testing.T) {
	left := []StrongIdentifier{
		{IDType: IdentifierTypeStreetKey, NormalizedValue: "123 main st"},
	}
	right := []StrongIdentifier{
		{IDType: IdentifierTypeStreetKey, NormalizedValue: "123 main street apt 4"},
	}

	assert.False(t, IdentifiersConflict(left, right))
	assert.False(t, IdentifiersAgree(left, right))
}

func TestIdentifiersAgree_SharedValueOfSameType(t *testing.T) {
	left := []StrongIdentifier{
		{IDType: IdentifierTypeEmail, NormalizedValue: "jane@example.com"},
		{IDType: IdentifierTypePhone, NormalizedValue: "7075551234"},
	}
	right := []StrongIdentifier{
		{IDType: IdentifierTypePhone, NormalizedValue: "7075551234"},
	}

	assert.True(t, IdentifiersAgree(left, right))
	assert.False(t, IdentifiersConflict(left, right))
}

func chainID(i int) string { return fmt.Sprintf("ent-%02d", i) }

// mergeChain builds entities ent-00 through ent-<n>, each absorbed by
// the next; only ent-<n> is canonical.
func mergeChain(n int) map[string]*Entity {
	entities := make(map[string]*Entity)
	for i := 0; i <= n; i++ {
		entities[chainID(i)] = &Entity{ID: chainID(i), EntityType: EntityTypePerson}
	}
	for i := 0; i < n; i++ {
		next := chainID(i + 1)
		entities[chainID(i)].MergedIntoID = &next
	}
	return entities
}

func chainGetter(entities map[string]*Entity) func(string) (*Entity, error) {
	return func(id string) (*Entity, error) { return entities[id], nil }
}

func TestFollowMergeChain_ResolvesToCanonicalTerminus(t *testing.T) {
	entities := mergeChain(5)

	resolved, truncated, err := FollowMergeChain(entities[chainID(0)], chainGetter(entities))
	require.NoError(t, err)
	assert.False(t, truncated)
	assert.Equal(t, chainID(5), resolved.ID)
	assert.False(t, resolved.IsMerged())
}

func TestFollowMergeChain_StopsAtDepthBoundWithoutError(t *testing.T) {
	entities := mergeChain(12)

	resolved, truncated, err := FollowMergeChain(entities[chainID(0)], chainGetter(entities))
	require.NoError(t, err)
	assert.True(t, truncated)
	assert.Equal(t, chainID(MaxChainDepth), resolved.ID, "walk stops on the last node it could reach")
	assert.True(t, resolved.IsMerged())
}

func TestFollowMergeChain_ChainAtBoundStillResolves(t *testing.T) {
	entities := mergeChain(MaxChainDepth)

	resolved, truncated, err := FollowMergeChain(entities[chainID(0)], chainGetter(entities))
	require.NoError(t, err)
	assert.False(t, truncated)
	assert.Equal(t, chainID(MaxChainDepth), resolved.ID)
}

func TestFollowMergeChain_DanglingPointerEndsWalk(t *testing.T) {
	missing := "ent-gone"
	start := &Entity{ID: chainID(0), EntityType: EntityTypePerson, MergedIntoID: &missing}

	resolved, truncated, err := FollowMergeChain(start, func(string) (*Entity, error) { return nil, nil })
	require.NoError(t, err)
	assert.False(t, truncated)
	assert.Equal(t, chainID(0), resolved.ID)
	assert.True(t, resolved.IsMerged())
}

func TestScoreExplanation_Corroboration(t *testing.T) {
	fuzzyOnly := &ScoreExplanation{
		Reasons: []string{ReasonTokenOverlap, ReasonPhoneticMatch, ReasonSimilarityHigh},
	}
	assert.False(t, fuzzyOnly.HasCorroboration())

	corroborated := &ScoreExplanation{
		Reasons: []string{ReasonTokenOverlap, ReasonSharedPlace},
	}
	assert.True(t, corroborated.HasCorroboration())
}

func TestScoreExplanation_MarshalRoundTrip(t *testing.T) {
	e := &ScoreExplanation{
		Score:     0.82,
		Reasons:   []string{ReasonTokenOverlap, ReasonSharedRecordLink},
		Subscores: map[string]float64{ReasonTokenOverlap: 0.66, ReasonSharedRecordLink: 1},
	}

	parsed, err := UnmarshalExplanation(e.Marshal())
	require.NoError(t, err)
	assert.Equal(t, e.Score, parsed.Score)
	assert.Equal(t, e.Reasons, parsed.Reasons)
	assert.True(t, parsed.HasReason(ReasonSharedRecordLink))
}
