// Package merging applies merge outcomes: automatic merges from
// high-confidence candidates, operator accepts and rejects, undo, and
// split. Merges are soft; the absorbed entity keeps its row and a
// pointer to the survivor.
package merging

import (
	"context"
	"fmt"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/resolver"
	"github.com/Ramsey-B/clover/pkg/settings"
)

// EntityStore is the canonical entity surface the merge engine writes
type EntityStore interface {
	Get(ctx context.Context, id string) (*models.Entity, error)
	MustGet(ctx context.Context, id string) (*models.Entity, error)
	Create(ctx context.Context, entityType models.EntityType, displayName string) (*models.Entity, error)
	SetMergedInto(ctx context.Context, fromID, intoID, reason string) (bool, error)
	ClearMergedInto(ctx context.Context, id, expectedSurvivor string) (bool, error)
	UpdateDisplayName(ctx context.Context, id, displayName string) error
}

// IdentifierStore lists and reassigns strong identifiers
type IdentifierStore interface {
	ListByEntity(ctx context.Context, entityID string) ([]models.StrongIdentifier, error)
	Reassign(ctx context.Context, idType models.IdentifierType, normalizedValue, fromEntityID, toEntityID string) (bool, error)
}

// AliasStore migrates aliases and recomputes display names
type AliasStore interface {
	MostFrequentName(ctx context.Context, entityID string) (string, error)
	MigrateForRecords(ctx context.Context, fromEntityID, toEntityID string, refs []models.RecordRef) (int, error)
}

// LinkStore repoints and migrates record links
type LinkStore interface {
	GetByRecord(ctx context.Context, entityType models.EntityType, ref models.RecordRef) (*models.RecordLink, error)
	RepointAll(ctx context.Context, fromEntityID, toEntityID string) (int, error)
	MigrateRecords(ctx context.Context, fromEntityID, toEntityID string, refs []models.RecordRef) (int, error)
}

// CandidateStore reads and transitions candidate rows
type CandidateStore interface {
	GetByPair(ctx context.Context, a, b string) (*models.MatchCandidate, error)
	ListOpenByType(ctx context.Context, entityType models.EntityType, limit int) ([]models.MatchCandidate, error)
	TransitionStatus(ctx context.Context, a, b string, from, to models.MatchCandidateStatus) (bool, error)
	BlockOpenForEntity(ctx context.Context, entityID string) (int, error)
}

// DecisionStore writes and reads the decision ledger
type DecisionStore interface {
	Upsert(ctx context.Context, a, b string, verdict models.Verdict, note, decidedBy string) error
	GetByPair(ctx context.Context, a, b string) (*models.MatchDecision, error)
}

// MergeRecordStore appends and reverts merge audit rows
type MergeRecordStore interface {
	Create(ctx context.Context, fromID, intoID string, rule models.MergeRule, score float64) (*models.MergeRecord, error)
	GetActiveByFromID(ctx context.Context, fromID string) (*models.MergeRecord, error)
	MarkReverted(ctx context.Context, id string) (bool, error)
}

// ObservationStore reads record evidence during split identifier
// migration.
type ObservationStore interface {
	ListByRecord(ctx context.Context, ref models.RecordRef) ([]models.Observation, error)
}

// Emitter publishes entity lifecycle events. A nil emitter disables
// publishing.
type Emitter interface {
	EntityMerged(ctx context.Context, fromID, intoID string, rule models.MergeRule, score float64)
	MergeUndone(ctx context.Context, fromID, intoID string)
	EntitySplit(ctx context.Context, originID, newEntityID string)
}

// Engine applies merge outcomes
type Engine struct {
	entities     EntityStore
	identifiers  IdentifierStore
	aliases      AliasStore
	links        LinkStore
	candidates   CandidateStore
	decisions    DecisionStore
	mergeRecords MergeRecordStore
	observations ObservationStore
	emitter      Emitter
	logger       ectologger.Logger
}

// NewEngine creates a merge engine
func NewEngine(
	entities EntityStore,
	identifiers IdentifierStore,
	aliases AliasStore,
	links LinkStore,
	candidates CandidateStore,
	decisions DecisionStore,
	mergeRecords MergeRecordStore,
	observations ObservationStore,
	emitter Emitter,
	logger ectologger.Logger,
) *Engine {
	return &Engine{
		entities:     entities,
		identifiers:  identifiers,
		aliases:      aliases,
		links:        links,
		candidates:   candidates,
		decisions:    decisions,
		mergeRecords: mergeRecords,
		observations: observations,
		emitter:      emitter,
		logger:       logger,
	}
}

// ApplyAutoMerges walks open candidates for one entity type in
// score-descending order and merges every pair that still satisfies all
// auto-merge conditions. Conditions are re-checked per candidate
// because earlier merges in the same pass can invalidate later ones.
func (e *Engine) ApplyAutoMerges(ctx context.Context, entityType models.EntityType, cfg *settings.Settings) (models.MergeRunResult, error) {
	var result models.MergeRunResult

	threshold := cfg.Get(settings.KeyAutoMergeThreshold)
	open, err := e.candidates.ListOpenByType(ctx, entityType, cfg.GetInt(settings.KeyMaxBatchCandidates))
	if err != nil {
		return result, err
	}

	for i := range open {
		result.CandidatesExamined++
		outcome, err := e.tryAutoMerge(ctx, &open[i], threshold)
		if err != nil {
			return result, err
		}
		switch outcome {
		case outcomeMerged:
			result.Merged++
		case outcomeSkipped:
			result.Skipped++
		default:
			result.LeftOpen++
		}
	}

	e.logger.WithContext(ctx).WithFields(map[string]any{
		"entity_type": entityType,
		"examined":    result.CandidatesExamined,
		"merged":      result.Merged,
		"skipped":     result.Skipped,
	}).Info("Auto-merge pass complete")

	return result, nil
}

type mergeOutcome int

const (
	outcomeLeftOpen mergeOutcome = iota
	outcomeMerged
	outcomeSkipped
)

func (e *Engine) tryAutoMerge(ctx context.Context, candidate *models.MatchCandidate, threshold float64) (mergeOutcome, error) {
	if candidate.Score < threshold {
		return outcomeLeftOpen, nil
	}

	explanation, err := models.UnmarshalExplanation(candidate.Explanation)
	if err != nil {
		e.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"candidate_id": candidate.ID}).Warn("Unreadable candidate explanation, blocking")
		if _, err := e.candidates.TransitionStatus(ctx, candidate.LeftID, candidate.RightID, models.MatchCandidateStatusOpen, models.MatchCandidateStatusBlocked); err != nil {
			return outcomeSkipped, err
		}
		return outcomeSkipped, nil
	}
	if !explanation.HasCorroboration() {
		return outcomeLeftOpen, nil
	}

	decision, err := e.decisions.GetByPair(ctx, candidate.LeftID, candidate.RightID)
	if err != nil {
		return outcomeSkipped, err
	}
	if decision != nil && decision.Verdict == models.VerdictNotSame {
		if _, err := e.candidates.TransitionStatus(ctx, candidate.LeftID, candidate.RightID, models.MatchCandidateStatusOpen, models.MatchCandidateStatusRejected); err != nil {
			return outcomeSkipped, err
		}
		return outcomeSkipped, nil
	}

	left, err := e.entities.Get(ctx, candidate.LeftID)
	if err != nil {
		return outcomeSkipped, err
	}
	right, err := e.entities.Get(ctx, candidate.RightID)
	if err != nil {
		return outcomeSkipped, err
	}
	if left == nil || right == nil || left.IsMerged() || right.IsMerged() {
		// one side stopped being canonical since scoring
		if _, err := e.candidates.TransitionStatus(ctx, candidate.LeftID, candidate.RightID, models.MatchCandidateStatusOpen, models.MatchCandidateStatusBlocked); err != nil {
			return outcomeSkipped, err
		}
		return outcomeSkipped, nil
	}

	conflicted, err := e.identifiersConflict(ctx, left.ID, right.ID)
	if err != nil {
		return outcomeSkipped, err
	}
	if conflicted {
		if _, err := e.candidates.TransitionStatus(ctx, candidate.LeftID, candidate.RightID, models.MatchCandidateStatusOpen, models.MatchCandidateStatusBlocked); err != nil {
			return outcomeSkipped, err
		}
		return outcomeSkipped, nil
	}

	// OrderPair guarantees left < right, so the left side survives
	if err := e.merge(ctx, candidate.RightID, candidate.LeftID, models.MergeRuleAutoScore, candidate.Score, models.MatchCandidateStatusAutoMerged, "engine"); err != nil {
		return outcomeSkipped, err
	}
	return outcomeMerged, nil
}

// Accept converts an open candidate into an operator merge. Acting on a
// missing or already-decided candidate is an operator mistake and
// returns an explicit error.
func (e *Engine) Accept(ctx context.Context, a, b, operator string) (*models.MergeRecord, error) {
	candidate, err := e.candidates.GetByPair(ctx, a, b)
	if err != nil {
		return nil, err
	}
	if candidate == nil {
		return nil, httperror.NewHTTPError(http.StatusNotFound, "no candidate exists for this pair")
	}
	if candidate.Status != models.MatchCandidateStatusOpen {
		return nil, httperror.NewHTTPError(http.StatusConflict, fmt.Sprintf("candidate is %s, not open", candidate.Status))
	}

	left, err := e.entities.MustGet(ctx, candidate.LeftID)
	if err != nil {
		return nil, err
	}
	right, err := e.entities.MustGet(ctx, candidate.RightID)
	if err != nil {
		return nil, err
	}
	if left.IsMerged() || right.IsMerged() {
		return nil, httperror.NewHTTPError(http.StatusConflict, "one side of the pair is already merged")
	}

	conflicted, err := e.identifiersConflict(ctx, left.ID, right.ID)
	if err != nil {
		return nil, err
	}
	if conflicted {
		return nil, httperror.NewHTTPError(http.StatusConflict, "entities hold conflicting strong identifiers")
	}

	if err := e.merge(ctx, candidate.RightID, candidate.LeftID, models.MergeRuleOperatorAccept, candidate.Score, models.MatchCandidateStatusAccepted, operator); err != nil {
		return nil, err
	}

	return e.mergeRecords.GetActiveByFromID(ctx, candidate.RightID)
}

// merge absorbs fromID into intoID and settles all bookkeeping. The
// SetMergedInto guard makes concurrent passes lose cleanly.
func (e *Engine) merge(ctx context.Context, fromID, intoID string, rule models.MergeRule, score float64, candidateStatus models.MatchCandidateStatus, decidedBy string) error {
	set, err := e.entities.SetMergedInto(ctx, fromID, intoID, string(rule))
	if err != nil {
		return err
	}
	if !set {
		return httperror.NewHTTPError(http.StatusConflict, "entity was merged concurrently")
	}

	if _, err := e.links.RepointAll(ctx, fromID, intoID); err != nil {
		return err
	}
	if _, err := e.mergeRecords.Create(ctx, fromID, intoID, rule, score); err != nil {
		return err
	}
	if _, err := e.candidates.TransitionStatus(ctx, fromID, intoID, models.MatchCandidateStatusOpen, candidateStatus); err != nil {
		return err
	}
	if err := e.decisions.Upsert(ctx, fromID, intoID, models.VerdictSame, string(rule), decidedBy); err != nil {
		return err
	}
	// other open candidates naming the absorbed entity are dead ends now
	if _, err := e.candidates.BlockOpenForEntity(ctx, fromID); err != nil {
		return err
	}
	if err := e.refreshDisplayName(ctx, intoID); err != nil {
		return err
	}

	if e.emitter != nil {
		e.emitter.EntityMerged(ctx, fromID, intoID, rule, score)
	}

	e.logger.WithContext(ctx).WithFields(map[string]any{
		"from_id": fromID,
		"into_id": intoID,
		"rule":    rule,
		"score":   score,
	}).Info("Entities merged")

	return nil
}

// Reject records a permanent not_same verdict for the pair. The ledger
// row blocks candidate regeneration even after the candidate row is
// gone.
func (e *Engine) Reject(ctx context.Context, a, b, note, operator string) error {
	if err := e.decisions.Upsert(ctx, a, b, models.VerdictNotSame, note, operator); err != nil {
		return err
	}
	// fine if no open candidate exists; the verdict stands on its own
	if _, err := e.candidates.TransitionStatus(ctx, a, b, models.MatchCandidateStatusOpen, models.MatchCandidateStatusRejected); err != nil {
		return err
	}
	return nil
}

// UndoMerge reverts the active merge that absorbed fromID. The merge
// pointer is cleared only if it still points at the recorded survivor,
// and the pair is marked not_same so the merge cannot silently recur.
// Evidence repointed by the merge stays where it is; use Split to carve
// records back out.
func (e *Engine) UndoMerge(ctx context.Context, fromID, operator string) (*models.MergeRecord, error) {
	record, err := e.mergeRecords.GetActiveByFromID(ctx, fromID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, httperror.NewHTTPError(http.StatusNotFound, "entity has no active merge to undo")
	}

	reverted, err := e.mergeRecords.MarkReverted(ctx, record.ID)
	if err != nil {
		return nil, err
	}
	if !reverted {
		return nil, httperror.NewHTTPError(http.StatusConflict, "merge was already reverted")
	}

	cleared, err := e.entities.ClearMergedInto(ctx, fromID, record.IntoID)
	if err != nil {
		return nil, err
	}
	if !cleared {
		e.logger.WithContext(ctx).WithFields(map[string]any{
			"from_id": fromID,
			"into_id": record.IntoID,
		}).Warn("Merge pointer no longer matches the reverted record, leaving it")
	}

	if err := e.decisions.Upsert(ctx, fromID, record.IntoID, models.VerdictNotSame, "merge undone", operator); err != nil {
		return nil, err
	}
	for _, from := range []models.MatchCandidateStatus{models.MatchCandidateStatusAutoMerged, models.MatchCandidateStatusAccepted} {
		if _, err := e.candidates.TransitionStatus(ctx, fromID, record.IntoID, from, models.MatchCandidateStatusRejected); err != nil {
			return nil, err
		}
	}

	if e.emitter != nil {
		e.emitter.MergeUndone(ctx, fromID, record.IntoID)
	}

	return record, nil
}

// Split carves a subset of an entity's source records out into a new
// entity: record links and the aliases those records contributed move
// over, identifiers observed on those records follow best-effort, and
// the origin and the new entity are marked not_same so they never
// auto-remerge.
func (e *Engine) Split(ctx context.Context, originID string, refs []models.RecordRef, operator string) (*models.SplitResult, error) {
	origin, err := e.entities.MustGet(ctx, originID)
	if err != nil {
		return nil, err
	}
	if origin.IsMerged() {
		return nil, httperror.NewHTTPError(http.StatusConflict, "entity is merged, split the surviving entity instead")
	}
	if len(refs) == 0 {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, "no source records listed")
	}

	var owned []models.RecordRef
	for _, ref := range refs {
		link, err := e.links.GetByRecord(ctx, origin.EntityType, ref)
		if err != nil {
			return nil, err
		}
		if link != nil && link.EntityID == originID {
			owned = append(owned, ref)
		}
	}
	if len(owned) == 0 {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, "none of the listed records belong to the entity")
	}

	newEntity, err := e.entities.Create(ctx, origin.EntityType, "")
	if err != nil {
		return nil, err
	}

	result := &models.SplitResult{NewEntityID: newEntity.ID}

	result.RecordsMigrated, err = e.links.MigrateRecords(ctx, originID, newEntity.ID, owned)
	if err != nil {
		return nil, err
	}
	result.AliasesMigrated, err = e.aliases.MigrateForRecords(ctx, originID, newEntity.ID, owned)
	if err != nil {
		return nil, err
	}

	if err := e.migrateIdentifiers(ctx, originID, newEntity.ID, owned, result); err != nil {
		return nil, err
	}

	if err := e.decisions.Upsert(ctx, originID, newEntity.ID, models.VerdictNotSame, "split", operator); err != nil {
		return nil, err
	}
	if err := e.refreshDisplayName(ctx, originID); err != nil {
		return nil, err
	}
	if err := e.refreshDisplayName(ctx, newEntity.ID); err != nil {
		return nil, err
	}

	if e.emitter != nil {
		e.emitter.EntitySplit(ctx, originID, newEntity.ID)
	}

	e.logger.WithContext(ctx).WithFields(map[string]any{
		"origin_id":        originID,
		"new_entity_id":    newEntity.ID,
		"records_migrated": result.RecordsMigrated,
	}).Info("Entity split")

	return result, nil
}

// migrateIdentifiers moves identifier values observed on the migrated
// records, insert-or-ignore style: a value the origin no longer owns is
// counted skipped, never an error.
func (e *Engine) migrateIdentifiers(ctx context.Context, originID, newEntityID string, refs []models.RecordRef, result *models.SplitResult) error {
	seen := make(map[string]bool)
	for _, ref := range refs {
		observations, err := e.observations.ListByRecord(ctx, ref)
		if err != nil {
			return err
		}
		for _, o := range observations {
			idType, ok := models.IdentifierKinds[o.ObservationKind]
			if !ok {
				continue
			}
			normalized := resolver.NormalizeIdentifierValue(idType, o.RawValue)
			if normalized == "" {
				continue
			}
			key := string(idType) + "|" + normalized
			if seen[key] {
				continue
			}
			seen[key] = true

			moved, err := e.identifiers.Reassign(ctx, idType, normalized, originID, newEntityID)
			if err != nil {
				return err
			}
			if moved {
				result.IdentifiersMigrated++
			} else {
				result.IdentifiersSkipped++
			}
		}
	}
	return nil
}

func (e *Engine) identifiersConflict(ctx context.Context, leftID, rightID string) (bool, error) {
	left, err := e.identifiers.ListByEntity(ctx, leftID)
	if err != nil {
		return false, err
	}
	right, err := e.identifiers.ListByEntity(ctx, rightID)
	if err != nil {
		return false, err
	}
	return models.IdentifiersConflict(left, right), nil
}

func (e *Engine) refreshDisplayName(ctx context.Context, entityID string) error {
	name, err := e.aliases.MostFrequentName(ctx, entityID)
	if err != nil {
		return err
	}
	if name == "" {
		return nil
	}
	return e.entities.UpdateDisplayName(ctx, entityID, name)
}
