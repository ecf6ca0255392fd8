// Package resolver implements deterministic resolution: it walks
// pending observations record by record, claims strong identifiers,
// creates entities lazily, links source records, and attaches name
// aliases. Everything fuzzy is left to candidate generation.
package resolver

import (
	"context"
	"sort"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/normalizers"
)

// conflictCandidateScore seeds the candidate row written when one
// source record resolves to two different entities of the same type.
// High enough to surface for review, well below any auto-merge bar.
const conflictCandidateScore = 0.6

// ObservationStore is the evidence surface the resolver consumes
type ObservationStore interface {
	ListUnprocessed(ctx context.Context, limit int) ([]models.Observation, error)
	MarkResolved(ctx context.Context, ids []string, entityID string) error
	MarkProcessed(ctx context.Context, ids []string) error
}

// EntityStore is the canonical entity surface the resolver writes
type EntityStore interface {
	Create(ctx context.Context, entityType models.EntityType, displayName string) (*models.Entity, error)
	ResolveCanonical(ctx context.Context, id string) (*models.Entity, error)
	SetMergedInto(ctx context.Context, fromID, intoID, reason string) (bool, error)
	SetSpeciesIfEmpty(ctx context.Context, id, species string) error
	UpdateDisplayName(ctx context.Context, id, displayName string) error
}

// IdentifierStore is the strong identifier surface
type IdentifierStore interface {
	FindByValue(ctx context.Context, idType models.IdentifierType, normalizedValue string) (*models.StrongIdentifier, error)
	Claim(ctx context.Context, entityID string, idType models.IdentifierType, normalizedValue, rawValue, sourceSystem string) (*models.StrongIdentifier, bool, error)
}

// AliasStore is the observed-name surface
type AliasStore interface {
	Upsert(ctx context.Context, a *models.Alias) (bool, error)
	MostFrequentName(ctx context.Context, entityID string) (string, error)
}

// LinkStore is the record-link surface
type LinkStore interface {
	Link(ctx context.Context, entityType models.EntityType, ref models.RecordRef, entityID string) (bool, error)
	GetByRecord(ctx context.Context, entityType models.EntityType, ref models.RecordRef) (*models.RecordLink, error)
}

// CandidateStore receives review candidates for cross-identifier
// collisions the resolver refuses to merge on its own.
type CandidateStore interface {
	Upsert(ctx context.Context, entityType models.EntityType, a, b string, score float64, explanation *models.ScoreExplanation) error
}

// Emitter receives lifecycle notifications for downstream consumers.
// Emission is best effort and never fails the pass.
type Emitter interface {
	EntityCreated(ctx context.Context, entity *models.Entity)
	CandidateProposed(ctx context.Context, entityType models.EntityType, leftID, rightID string, score float64)
	RecordCoAppearance(ctx context.Context, leftID, rightID string)
}

// Engine is the deterministic resolution engine
type Engine struct {
	observations ObservationStore
	entities     EntityStore
	identifiers  IdentifierStore
	aliases      AliasStore
	links        LinkStore
	candidates   CandidateStore
	emitter      Emitter
	logger       ectologger.Logger
}

// NewEngine creates a resolution engine
func NewEngine(
	observations ObservationStore,
	entities EntityStore,
	identifiers IdentifierStore,
	aliases AliasStore,
	links LinkStore,
	candidates CandidateStore,
	emitter Emitter,
	logger ectologger.Logger,
) *Engine {
	return &Engine{
		observations: observations,
		entities:     entities,
		identifiers:  identifiers,
		aliases:      aliases,
		links:        links,
		candidates:   candidates,
		emitter:      emitter,
		logger:       logger,
	}
}

// ProcessBatch resolves up to limit pending observations and reports
// itemized counts. Invalid values and duplicate work land in the counts
// instead of failing the pass; storage errors abort it.
func (e *Engine) ProcessBatch(ctx context.Context, limit int) (models.ResolutionResult, error) {
	var result models.ResolutionResult

	observations, err := e.observations.ListUnprocessed(ctx, limit)
	if err != nil {
		return result, err
	}
	if len(observations) == 0 {
		return result, nil
	}

	// one record's observations resolve together so that names can
	// attach to the entity its identifiers just linked
	order, grouped := groupByRecord(observations)
	for _, key := range order {
		recordResult, err := e.processRecord(ctx, grouped[key])
		if err != nil {
			return result, err
		}
		result.Add(recordResult)
	}

	e.logger.WithContext(ctx).WithFields(map[string]any{
		"observations_seen": result.ObservationsSeen,
		"entities_created":  result.EntitiesCreated,
		"records_linked":    result.RecordsLinked,
		"skipped":           result.Skipped,
		"conflicts":         result.Conflicts,
	}).Info("Resolution batch complete")

	return result, nil
}

func groupByRecord(observations []models.Observation) ([]string, map[string][]models.Observation) {
	order := make([]string, 0)
	grouped := make(map[string][]models.Observation)
	for _, o := range observations {
		key := o.Record().Key()
		if _, ok := grouped[key]; !ok {
			order = append(order, key)
		}
		grouped[key] = append(grouped[key], o)
	}
	return order, grouped
}

// processingRank orders one record's observations: strong identifiers
// by priority, then names and attributes once the record has entities
// to attach them to.
func processingRank(o models.Observation) int {
	if idType, ok := models.IdentifierKinds[o.ObservationKind]; ok {
		return models.IdentifierPriority(idType)
	}
	return 10
}

func (e *Engine) processRecord(ctx context.Context, observations []models.Observation) (models.ResolutionResult, error) {
	result := models.ResolutionResult{ObservationsSeen: len(observations)}
	if len(observations) == 0 {
		return result, nil
	}
	ref := observations[0].Record()

	sort.SliceStable(observations, func(i, j int) bool {
		return processingRank(observations[i]) < processingRank(observations[j])
	})

	recordEntities := make(map[models.EntityType]string)
	resolved := make(map[string][]string)
	var processedOnly []string

	for i := range observations {
		o := &observations[i]

		if idType, ok := models.IdentifierKinds[o.ObservationKind]; ok {
			entityID, err := e.resolveIdentifier(ctx, ref, o, idType, recordEntities, &result)
			if err != nil {
				return result, err
			}
			if entityID == "" {
				processedOnly = append(processedOnly, o.ID)
				continue
			}
			resolved[entityID] = append(resolved[entityID], o.ID)
			continue
		}

		switch o.ObservationKind {
		case models.ObservationKindPersonName, models.ObservationKindAnimalName, models.ObservationKindPlaceName:
			entityID, err := e.attachAlias(ctx, ref, o, recordEntities, &result)
			if err != nil {
				return result, err
			}
			if entityID == "" {
				processedOnly = append(processedOnly, o.ID)
				continue
			}
			resolved[entityID] = append(resolved[entityID], o.ID)

		case models.ObservationKindSpecies:
			entityID, err := e.attachSpecies(ctx, ref, o, recordEntities, &result)
			if err != nil {
				return result, err
			}
			if entityID == "" {
				processedOnly = append(processedOnly, o.ID)
				continue
			}
			resolved[entityID] = append(resolved[entityID], o.ID)

		default:
			result.Skipped++
			processedOnly = append(processedOnly, o.ID)
		}
	}

	for entityID, ids := range resolved {
		if err := e.observations.MarkResolved(ctx, ids, entityID); err != nil {
			return result, err
		}
	}
	if err := e.observations.MarkProcessed(ctx, processedOnly); err != nil {
		return result, err
	}

	e.emitCoAppearances(ctx, recordEntities)

	return result, nil
}

// emitCoAppearances notifies downstream consumers when one source
// record resolved entities of more than one type.
func (e *Engine) emitCoAppearances(ctx context.Context, recordEntities map[models.EntityType]string) {
	if len(recordEntities) < 2 {
		return
	}
	ids := make([]string, 0, len(recordEntities))
	for _, id := range recordEntities {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for i := 0; i < len(ids); i++ {
		for j := i + 1; j < len(ids); j++ {
			e.emitter.RecordCoAppearance(ctx, ids[i], ids[j])
		}
	}
}

// resolveIdentifier claims one identifier observation and returns the
// entity it resolved to, or "" when the value is invalid.
func (e *Engine) resolveIdentifier(ctx context.Context, ref models.RecordRef, o *models.Observation, idType models.IdentifierType, recordEntities map[models.EntityType]string, result *models.ResolutionResult) (string, error) {
	normalized := NormalizeIdentifierValue(idType, o.RawValue)
	if normalized == "" {
		result.Skipped++
		return "", nil
	}
	entityType := models.EntityTypeForIdentifier(idType)

	// a higher-priority identifier already decided this record's entity
	// for the type; attach or flag, never re-decide
	if ownerID, ok := recordEntities[entityType]; ok {
		return e.attachSecondaryIdentifier(ctx, ref, o, idType, normalized, entityType, ownerID, result)
	}

	existing, err := e.identifiers.FindByValue(ctx, idType, normalized)
	if err != nil {
		return "", err
	}

	var entityID string
	if existing != nil {
		canonical, err := e.entities.ResolveCanonical(ctx, existing.EntityID)
		if err != nil {
			return "", err
		}
		entityID = canonical.ID
	} else {
		created, err := e.entities.Create(ctx, entityType, "")
		if err != nil {
			return "", err
		}
		winner, claimed, err := e.identifiers.Claim(ctx, created.ID, idType, normalized, o.RawValue, ref.SourceSystem)
		if err != nil {
			return "", err
		}
		if claimed {
			result.EntitiesCreated++
			result.IdentifiersCreated++
			entityID = created.ID
			e.emitter.EntityCreated(ctx, created)
		} else {
			// lost the uniqueness race; fold the fresh entity into the
			// winner so it never floats unreachable
			canonical, err := e.entities.ResolveCanonical(ctx, winner.EntityID)
			if err != nil {
				return "", err
			}
			if _, err := e.entities.SetMergedInto(ctx, created.ID, canonical.ID, "identifier_race"); err != nil {
				return "", err
			}
			entityID = canonical.ID
		}
	}

	linked, err := e.links.Link(ctx, entityType, ref, entityID)
	if err != nil {
		return "", err
	}
	if linked {
		result.RecordsLinked++
	} else {
		existingLink, err := e.links.GetByRecord(ctx, entityType, ref)
		if err != nil {
			return "", err
		}
		if existingLink != nil && existingLink.EntityID != entityID {
			// the record was linked elsewhere before this identifier
			// surfaced; keep the link and queue the pair for review
			result.Conflicts++
			if err := e.upsertConflictCandidate(ctx, entityType, entityID, existingLink.EntityID); err != nil {
				return "", err
			}
		} else {
			result.Skipped++
		}
	}

	recordEntities[entityType] = entityID
	return entityID, nil
}

// attachSecondaryIdentifier handles an identifier observed on a record
// whose entity is already decided. An unclaimed value joins the owner;
// a value owned by a different entity is a cross-identifier collision
// and becomes a review candidate, never an automatic merge.
func (e *Engine) attachSecondaryIdentifier(ctx context.Context, ref models.RecordRef, o *models.Observation, idType models.IdentifierType, normalized string, entityType models.EntityType, ownerID string, result *models.ResolutionResult) (string, error) {
	existing, err := e.identifiers.FindByValue(ctx, idType, normalized)
	if err != nil {
		return "", err
	}

	if existing == nil {
		_, created, err := e.identifiers.Claim(ctx, ownerID, idType, normalized, o.RawValue, ref.SourceSystem)
		if err != nil {
			return "", err
		}
		if created {
			result.IdentifiersCreated++
		}
		return ownerID, nil
	}

	canonical, err := e.entities.ResolveCanonical(ctx, existing.EntityID)
	if err != nil {
		return "", err
	}
	if canonical.ID != ownerID {
		result.Conflicts++
		if err := e.upsertConflictCandidate(ctx, entityType, ownerID, canonical.ID); err != nil {
			return "", err
		}
	}
	return ownerID, nil
}

// attachAlias attaches a name observation to the record's entity of the
// matching type. Name-only records never create entities; the alias is
// dropped (counted skipped) when nothing is linked yet.
func (e *Engine) attachAlias(ctx context.Context, ref models.RecordRef, o *models.Observation, recordEntities map[models.EntityType]string, result *models.ResolutionResult) (string, error) {
	entityType := entityTypeForNameKind(o.ObservationKind)

	ownerID, err := e.recordOwner(ctx, ref, entityType, recordEntities)
	if err != nil {
		return "", err
	}
	if ownerID == "" {
		result.Skipped++
		return "", nil
	}

	nameKey := normalizers.NormalizeName(o.RawValue)
	if nameKey == "" {
		result.Skipped++
		return "", nil
	}

	added, err := e.aliases.Upsert(ctx, &models.Alias{
		EntityID:     ownerID,
		NameRaw:      o.RawValue,
		NameKey:      nameKey,
		SourceSystem: ref.SourceSystem,
		SourceTable:  ref.SourceTable,
		SourceRowID:  ref.SourceRowID,
	})
	if err != nil {
		return "", err
	}
	if added {
		result.AliasesAdded++
		if err := e.refreshDisplayName(ctx, ownerID); err != nil {
			return "", err
		}
	}
	return ownerID, nil
}

func (e *Engine) attachSpecies(ctx context.Context, ref models.RecordRef, o *models.Observation, recordEntities map[models.EntityType]string, result *models.ResolutionResult) (string, error) {
	ownerID, err := e.recordOwner(ctx, ref, models.EntityTypeAnimal, recordEntities)
	if err != nil {
		return "", err
	}
	if ownerID == "" {
		result.Skipped++
		return "", nil
	}

	species := normalizers.Lowercase(normalizers.Trim(o.RawValue))
	if species == "" {
		result.Skipped++
		return "", nil
	}
	if err := e.entities.SetSpeciesIfEmpty(ctx, ownerID, species); err != nil {
		return "", err
	}
	return ownerID, nil
}

// recordOwner returns the canonical entity of the given type the record
// is linked to, consulting this pass's resolutions first and prior
// record links second.
func (e *Engine) recordOwner(ctx context.Context, ref models.RecordRef, entityType models.EntityType, recordEntities map[models.EntityType]string) (string, error) {
	if id, ok := recordEntities[entityType]; ok {
		return id, nil
	}

	link, err := e.links.GetByRecord(ctx, entityType, ref)
	if err != nil {
		return "", err
	}
	if link == nil {
		return "", nil
	}

	canonical, err := e.entities.ResolveCanonical(ctx, link.EntityID)
	if err != nil {
		return "", err
	}
	recordEntities[entityType] = canonical.ID
	return canonical.ID, nil
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

func (e *Engine) upsertConflictCandidate(ctx context.Context, entityType models.EntityType, a, b string) error {
	explanation := &models.ScoreExplanation{
		Score:   conflictCandidateScore,
		Reasons: []string{models.ReasonSharedSourceRecord},
		Subscores: map[string]float64{
			models.ReasonSharedSourceRecord: 1,
		},
	}
	if err := e.candidates.Upsert(ctx, entityType, a, b, conflictCandidateScore, explanation); err != nil {
		return err
	}
	left, right := models.OrderPair(a, b)
	e.emitter.CandidateProposed(ctx, entityType, left, right, conflictCandidateScore)
	return nil
}

// NormalizeIdentifierValue applies the canonical normalization for an
// identifier type. Returns "" for values that fail validation.
func NormalizeIdentifierValue(idType models.IdentifierType, raw string) string {
	switch idType {
	case models.IdentifierTypeEmail:
		return normalizers.NormalizeEmail(raw)
	case models.IdentifierTypePhone:
		return normalizers.NormalizePhone(raw)
	case models.IdentifierTypeMicrochip:
		return normalizers.NormalizeMicrochip(raw)
	case models.IdentifierTypeStreetKey:
		return normalizers.NormalizeStreet(raw)
	}
	return ""
}

func entityTypeForNameKind(kind models.ObservationKind) models.EntityType {
	switch kind {
	case models.ObservationKindAnimalName:
		return models.EntityTypeAnimal
	case models.ObservationKindPlaceName:
		return models.EntityTypePlace
	}
	return models.EntityTypePerson
}
