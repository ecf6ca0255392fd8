// Package scoring computes pairwise match scores with structured
// explanations. A score is never returned bare; every path produces
// the reason tags the merge engine and review UI key off.
package scoring

import (
	"context"
	"strings"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/normalizers"
	"github.com/Ramsey-B/clover/pkg/phonetics"
	"github.com/Ramsey-B/clover/pkg/settings"
	"github.com/Ramsey-B/clover/pkg/similarity"
)

// IdentifierStore lists strong identifiers per entity
type IdentifierStore interface {
	ListByEntity(ctx context.Context, entityID string) ([]models.StrongIdentifier, error)
}

// AliasStore lists observed names per entity
type AliasStore interface {
	ListByEntity(ctx context.Context, entityID string) ([]models.Alias, error)
}

// LinkStore exposes contextual corroboration: entities of another type
// sharing a source record with the given entity.
type LinkStore interface {
	LinkedEntityIDs(ctx context.Context, entityID string, otherType models.EntityType) ([]string, error)
}

// Scorer scores entity pairs of one kind or another
type Scorer struct {
	identifiers IdentifierStore
	aliases     AliasStore
	links       LinkStore
	coder       phonetics.Coder
	logger      ectologger.Logger
}

// NewScorer creates a scorer. Pass a noop coder to disable phonetic
// comparison entirely; the phonetic component is then skipped, never
// guessed.
func NewScorer(identifiers IdentifierStore, aliases AliasStore, links LinkStore, coder phonetics.Coder, logger ectologger.Logger) *Scorer {
	return &Scorer{
		identifiers: identifiers,
		aliases:     aliases,
		links:       links,
		coder:       coder,
		logger:      logger,
	}
}

// Score computes the match score for a pair of entities of the same
// type. Conflicting strong identifiers short-circuit to 0 and matching
// ones to 1.0 before any fuzzy component runs.
func (s *Scorer) Score(ctx context.Context, left, right *models.Entity, cfg *settings.Settings) (*models.ScoreExplanation, error) {
	explanation := &models.ScoreExplanation{
		Reasons:   []string{},
		Subscores: map[string]float64{},
	}

	leftIDs, err := s.identifiers.ListByEntity(ctx, left.ID)
	if err != nil {
		return nil, err
	}
	rightIDs, err := s.identifiers.ListByEntity(ctx, right.ID)
	if err != nil {
		return nil, err
	}

	if models.IdentifiersConflict(leftIDs, rightIDs) {
		explanation.Score = 0
		explanation.Reasons = append(explanation.Reasons, models.ReasonIdentifierConflict)
		explanation.Subscores[models.ReasonIdentifierConflict] = 1
		return explanation, nil
	}

	// the uniqueness constraint makes a shared identifier across two
	// live entities near impossible, but a short-circuit beats a wrong
	// fuzzy score if it ever happens
	if models.IdentifiersAgree(leftIDs, rightIDs) {
		explanation.Score = 1.0
		explanation.Reasons = append(explanation.Reasons, models.ReasonIdentifierMatch)
		explanation.Subscores[models.ReasonIdentifierMatch] = 1
		return explanation, nil
	}

	leftTokens, err := s.nameTokens(ctx, left)
	if err != nil {
		return nil, err
	}
	rightTokens, err := s.nameTokens(ctx, right)
	if err != nil {
		return nil, err
	}

	score := 0.0

	if overlap := similarity.TokenOverlap(leftTokens, rightTokens); overlap > 0 {
		score += cfg.Get(settings.KeyWeightTokenOverlap) * overlap
		explanation.Reasons = append(explanation.Reasons, models.ReasonTokenOverlap)
		explanation.Subscores[models.ReasonTokenOverlap] = overlap
	}

	if w := cfg.Get(settings.KeyWeightPhonetic); w > 0 && !phonetics.IsNoop(s.coder) {
		if s.phoneticMatch(leftTokens, rightTokens) {
			score += w
			explanation.Reasons = append(explanation.Reasons, models.ReasonPhoneticMatch)
			explanation.Subscores[models.ReasonPhoneticMatch] = 1
		}
	}

	if len(leftTokens) > 0 && len(rightTokens) > 0 {
		sim := similarity.JaroWinkler(strings.Join(leftTokens, " "), strings.Join(rightTokens, " "))
		switch {
		case sim >= cfg.Get(settings.KeySimilarityHighBar):
			score += cfg.Get(settings.KeyBonusSimilarityHigh)
			explanation.Reasons = append(explanation.Reasons, models.ReasonSimilarityHigh)
			explanation.Subscores[models.ReasonSimilarityHigh] = sim
		case sim >= cfg.Get(settings.KeySimilarityMidBar):
			score += cfg.Get(settings.KeyBonusSimilarityMid)
			explanation.Reasons = append(explanation.Reasons, models.ReasonSimilarityMid)
			explanation.Subscores[models.ReasonSimilarityMid] = sim
		}
	}

	if left.EntityType == models.EntityTypeAnimal {
		if left.Species != nil && right.Species != nil && *left.Species == *right.Species {
			score += cfg.Get(settings.KeyWeightSpecies)
			explanation.Reasons = append(explanation.Reasons, models.ReasonSpeciesMatch)
			explanation.Subscores[models.ReasonSpeciesMatch] = 1
		}
	}

	if w := cfg.Get(settings.KeyWeightSharedPlace); w > 0 && left.EntityType != models.EntityTypePlace {
		shared, err := s.sharedCount(ctx, left.ID, right.ID, models.EntityTypePlace)
		if err != nil {
			return nil, err
		}
		if shared > 0 {
			score += w
			explanation.Reasons = append(explanation.Reasons, models.ReasonSharedPlace)
			explanation.Subscores[models.ReasonSharedPlace] = float64(shared)
		}
	}

	if w := cfg.Get(settings.KeyWeightSharedLink); w > 0 {
		shared, err := s.sharedCount(ctx, left.ID, right.ID, counterpartType(left.EntityType))
		if err != nil {
			return nil, err
		}
		if shared > 0 {
			score += w
			explanation.Reasons = append(explanation.Reasons, models.ReasonSharedRecordLink)
			explanation.Subscores[models.ReasonSharedRecordLink] = float64(shared)
		}
	}

	if score > 1 {
		score = 1
	}
	if score < 0 {
		score = 0
	}
	explanation.Score = score

	return explanation, nil
}

// nameTokens collects the unique normalized name tokens of an entity
// from its display name and aliases.
func (s *Scorer) nameTokens(ctx context.Context, e *models.Entity) ([]string, error) {
	seen := make(map[string]bool)
	var tokens []string

	add := func(name string) {
		for _, tok := range normalizers.NameTokens(name) {
			if !seen[tok] {
				seen[tok] = true
				tokens = append(tokens, tok)
			}
		}
	}

	add(e.DisplayName)
	aliases, err := s.aliases.ListByEntity(ctx, e.ID)
	if err != nil {
		return nil, err
	}
	for _, a := range aliases {
		add(a.NameRaw)
	}

	return tokens, nil
}

// phoneticMatch compares the phonetic codes of the final name tokens,
// the surname position for people.
func (s *Scorer) phoneticMatch(left, right []string) bool {
	if len(left) == 0 || len(right) == 0 {
		return false
	}
	lc := s.coder.Encode(left[len(left)-1])
	rc := s.coder.Encode(right[len(right)-1])
	return lc != "" && lc == rc
}

func (s *Scorer) sharedCount(ctx context.Context, leftID, rightID string, otherType models.EntityType) (int, error) {
	leftLinked, err := s.links.LinkedEntityIDs(ctx, leftID, otherType)
	if err != nil {
		return 0, err
	}
	rightLinked, err := s.links.LinkedEntityIDs(ctx, rightID, otherType)
	if err != nil {
		return 0, err
	}

	seen := make(map[string]bool, len(leftLinked))
	for _, id := range leftLinked {
		seen[id] = true
	}
	shared := 0
	for _, id := range rightLinked {
		if seen[id] {
			shared++
		}
	}
	return shared, nil
}

// counterpartType names the entity type whose shared record links
// corroborate a pair: owners for animals and places, animals for
// owners.
func counterpartType(t models.EntityType) models.EntityType {
	if t == models.EntityTypePerson {
		return models.EntityTypeAnimal
	}
	return models.EntityTypePerson
}
