// Package settings resolves per-entity-type engine tuning values.
// Values live in the engine_settings table and fall back to builtin
// defaults for any missing key. A Settings snapshot is resolved once
// per batch run and injected into the engines, never read globally.
package settings

import (
	"context"

	"github.com/Ramsey-B/clover/pkg/models"
)

// Keys understood by the engines
const (
	KeyAutoMergeThreshold  = "auto_merge_threshold"
	KeyMinCandidateScore   = "min_candidate_score"
	KeyMaxBatchCandidates  = "max_batch_candidates"
	KeyMinNameTokens       = "min_name_tokens"
	KeyWeightTokenOverlap  = "weight_token_overlap"
	KeyWeightPhonetic      = "weight_phonetic"
	KeyWeightSharedPlace   = "weight_shared_place"
	KeyWeightSharedLink    = "weight_shared_link"
	KeyBonusSimilarityHigh = "bonus_similarity_high"
	KeyBonusSimilarityMid  = "bonus_similarity_mid"
	KeySimilarityHighBar   = "similarity_high_bar"
	KeySimilarityMidBar    = "similarity_mid_bar"
	KeyWeightSpecies       = "weight_species"
)

// defaults per entity type. Place resolution has no phonetic backend
// worth trusting, so its phonetic weight is zero.
var defaults = map[models.EntityType]map[string]float64{
	models.EntityTypePerson: {
		KeyAutoMergeThreshold:  0.97,
		KeyMinCandidateScore:   0.5,
		KeyMaxBatchCandidates:  500,
		KeyMinNameTokens:       2,
		KeyWeightTokenOverlap:  0.35,
		KeyWeightPhonetic:      0.15,
		KeyWeightSharedPlace:   0.25,
		KeyWeightSharedLink:    0.25,
		KeyBonusSimilarityHigh: 0.15,
		KeyBonusSimilarityMid:  0.07,
		KeySimilarityHighBar:   0.93,
		KeySimilarityMidBar:    0.85,
	},
	models.EntityTypeAnimal: {
		KeyAutoMergeThreshold:  0.97,
		KeyMinCandidateScore:   0.5,
		KeyMaxBatchCandidates:  500,
		KeyMinNameTokens:       1,
		KeyWeightTokenOverlap:  0.3,
		KeyWeightPhonetic:      0.15,
		KeyWeightSharedPlace:   0.2,
		KeyWeightSharedLink:    0.35,
		KeyBonusSimilarityHigh: 0.15,
		KeyBonusSimilarityMid:  0.07,
		KeySimilarityHighBar:   0.93,
		KeySimilarityMidBar:    0.85,
		KeyWeightSpecies:       0.1,
	},
	models.EntityTypePlace: {
		KeyAutoMergeThreshold:  0.97,
		KeyMinCandidateScore:   0.5,
		KeyMaxBatchCandidates:  500,
		KeyMinNameTokens:       1,
		KeyWeightTokenOverlap:  0.5,
		KeyWeightPhonetic:      0,
		KeyWeightSharedPlace:   0,
		KeyWeightSharedLink:    0.35,
		KeyBonusSimilarityHigh: 0.15,
		KeyBonusSimilarityMid:  0.07,
		KeySimilarityHighBar:   0.93,
		KeySimilarityMidBar:    0.85,
	},
}

// Store lists the stored overrides for one entity type
type Store interface {
	ListByEntityType(ctx context.Context, entityType models.EntityType) ([]models.EngineSetting, error)
}

// Settings is an immutable snapshot of tuning values for one entity type
type Settings struct {
	entityType models.EntityType
	values     map[string]float64
}

// Resolve loads the overrides for entityType and layers them over the
// builtin defaults.
func Resolve(ctx context.Context, store Store, entityType models.EntityType) (*Settings, error) {
	values := make(map[string]float64, len(defaults[entityType]))
	for k, v := range defaults[entityType] {
		values[k] = v
	}

	if store != nil {
		overrides, err := store.ListByEntityType(ctx, entityType)
		if err != nil {
			return nil, err
		}
		for _, o := range overrides {
			values[o.Key] = o.Value
		}
	}

	return &Settings{entityType: entityType, values: values}, nil
}

// Default returns the builtin settings for entityType with no overrides
func Default(entityType models.EntityType) *Settings {
	s, _ := Resolve(context.Background(), nil, entityType)
	return s
}

// With returns a copy of the snapshot with one value replaced
func (s *Settings) With(key string, value float64) *Settings {
	values := make(map[string]float64, len(s.values))
	for k, v := range s.values {
		values[k] = v
	}
	values[key] = value
	return &Settings{entityType: s.entityType, values: values}
}

// EntityType returns the entity type this snapshot applies to
func (s *Settings) EntityType() models.EntityType {
	return s.entityType
}

// Get returns the value for key, or the builtin default, or 0 for an
// unknown key.
func (s *Settings) Get(key string) float64 {
	if v, ok := s.values[key]; ok {
		return v
	}
	return 0
}

// GetInt returns Get(key) truncated to int
func (s *Settings) GetInt(key string) int {
	return int(s.Get(key))
}
