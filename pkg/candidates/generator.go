// Package candidates generates possible-duplicate pairs via blocking
// keys, so scoring never runs over the full cross product.
package candidates

import (
	"context"
	"sort"
	"strings"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/normalizers"
	"github.com/Ramsey-B/clover/pkg/phonetics"
	"github.com/Ramsey-B/clover/pkg/settings"
)

const scanPageSize = 500

// EntityStore pages through canonical entities
type EntityStore interface {
	ListCanonicalByType(ctx context.Context, entityType models.EntityType, afterID string, limit int) ([]models.Entity, error)
}

// DecisionStore consults the decision ledger
type DecisionStore interface {
	GetByPair(ctx context.Context, a, b string) (*models.MatchDecision, error)
}

// CandidateStore persists candidate pairs
type CandidateStore interface {
	GetByPair(ctx context.Context, a, b string) (*models.MatchCandidate, error)
	Upsert(ctx context.Context, entityType models.EntityType, a, b string, score float64, explanation *models.ScoreExplanation) error
}

// Scorer scores one pair
type Scorer interface {
	Score(ctx context.Context, left, right *models.Entity, cfg *settings.Settings) (*models.ScoreExplanation, error)
}

// Emitter is notified of proposed pairs, best effort
type Emitter interface {
	CandidateProposed(ctx context.Context, entityType models.EntityType, leftID, rightID string, score float64)
}

// Generator proposes candidate pairs for one entity type at a time
type Generator struct {
	entities   EntityStore
	decisions  DecisionStore
	candidates CandidateStore
	scorer     Scorer
	coder      phonetics.Coder
	emitter    Emitter
	logger     ectologger.Logger
}

// NewGenerator creates a candidate generator
func NewGenerator(entities EntityStore, decisions DecisionStore, candidates CandidateStore, scorer Scorer, coder phonetics.Coder, emitter Emitter, logger ectologger.Logger) *Generator {
	return &Generator{
		entities:   entities,
		decisions:  decisions,
		candidates: candidates,
		scorer:     scorer,
		coder:      coder,
		emitter:    emitter,
		logger:     logger,
	}
}

// Run scans canonical entities of one type, groups them into blocks,
// scores pairs within each block, and upserts candidates. Pairs an
// operator rejected and pairs already decided are never re-proposed.
// The pass stops after max_batch_candidates upserts and picks up the
// remainder on the next run.
func (g *Generator) Run(ctx context.Context, entityType models.EntityType, cfg *settings.Settings) (models.CandidateRunResult, error) {
	var result models.CandidateRunResult

	minTokens := cfg.GetInt(settings.KeyMinNameTokens)
	minScore := cfg.Get(settings.KeyMinCandidateScore)
	maxUpserts := cfg.GetInt(settings.KeyMaxBatchCandidates)

	blocks := make(map[string][]models.Entity)
	afterID := ""
	for {
		page, err := g.entities.ListCanonicalByType(ctx, entityType, afterID, scanPageSize)
		if err != nil {
			return result, err
		}
		for _, e := range page {
			result.EntitiesScanned++
			key := g.blockKey(&e, minTokens)
			if key == "" {
				result.PairsGated++
				continue
			}
			blocks[key] = append(blocks[key], e)
		}
		if len(page) < scanPageSize {
			break
		}
		afterID = page[len(page)-1].ID
	}

	// deterministic block order so repeated runs walk pairs identically
	keys := make([]string, 0, len(blocks))
	for k := range blocks {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	seen := make(map[string]bool)
	for _, key := range keys {
		block := blocks[key]
		sort.Slice(block, func(i, j int) bool { return block[i].ID < block[j].ID })

		for i := 0; i < len(block); i++ {
			for j := i + 1; j < len(block); j++ {
				left, right := &block[i], &block[j]
				pairKey := left.ID + "|" + right.ID
				if seen[pairKey] {
					continue
				}
				seen[pairKey] = true

				proposed, err := g.considerPair(ctx, entityType, left, right, cfg, minScore, &result)
				if err != nil {
					return result, err
				}
				if proposed && result.CandidatesUpserted >= maxUpserts {
					g.logger.WithContext(ctx).WithFields(map[string]any{
						"entity_type": entityType,
						"upserted":    result.CandidatesUpserted,
					}).Info("Candidate batch limit reached, remainder deferred")
					return result, nil
				}
			}
		}
	}

	return result, nil
}

func (g *Generator) considerPair(ctx context.Context, entityType models.EntityType, left, right *models.Entity, cfg *settings.Settings, minScore float64, result *models.CandidateRunResult) (bool, error) {
	existing, err := g.candidates.GetByPair(ctx, left.ID, right.ID)
	if err != nil {
		return false, err
	}
	if existing != nil && existing.Status != models.MatchCandidateStatusOpen {
		result.PairsBlocked++
		return false, nil
	}

	decision, err := g.decisions.GetByPair(ctx, left.ID, right.ID)
	if err != nil {
		return false, err
	}
	if decision != nil && decision.Verdict == models.VerdictNotSame {
		result.PairsBlocked++
		return false, nil
	}

	explanation, err := g.scorer.Score(ctx, left, right, cfg)
	if err != nil {
		return false, err
	}
	result.PairsConsidered++

	if explanation.Score < minScore {
		return false, nil
	}

	if err := g.candidates.Upsert(ctx, entityType, left.ID, right.ID, explanation.Score, explanation); err != nil {
		return false, err
	}
	result.CandidatesUpserted++
	g.emitter.CandidateProposed(ctx, entityType, left.ID, right.ID, explanation.Score)
	return true, nil
}

// blockKey derives the blocking key for one entity, or "" when the
// entity fails the validity gate for its type.
func (g *Generator) blockKey(e *models.Entity, minTokens int) string {
	tokens := normalizers.NameTokens(e.DisplayName)
	if len(tokens) < minTokens || len(tokens) == 0 {
		return ""
	}

	switch e.EntityType {
	case models.EntityTypePerson:
		// surname position; phonetic so spelling variants collide
		return "p|" + g.encode(tokens[len(tokens)-1])
	case models.EntityTypeAnimal:
		species := ""
		if e.Species != nil {
			species = *e.Species
		}
		return "a|" + species + "|" + g.encode(tokens[0])
	case models.EntityTypePlace:
		return placeKey(e.DisplayName)
	}
	return ""
}

func (g *Generator) encode(token string) string {
	if phonetics.IsNoop(g.coder) {
		return token
	}
	if code := g.coder.Encode(token); code != "" {
		return code
	}
	return token
}

// placeKey blocks places on house number plus the first street word, so
// "123 Main St" and "123 Main Street, Unit 4" land together.
func placeKey(name string) string {
	tokens := strings.Fields(normalizers.NormalizeStreet(name))
	if len(tokens) == 0 {
		return ""
	}
	if len(tokens) == 1 {
		return "pl|" + tokens[0]
	}
	return "pl|" + tokens[0] + "|" + tokens[1]
}
