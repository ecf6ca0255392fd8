package merging

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/settings"
)

type memBackend struct {
	entities     map[string]*models.Entity
	identifiers  map[string]*models.StrongIdentifier
	aliases      []*models.Alias
	links        map[string]*models.RecordLink
	candidates   map[string]*models.MatchCandidate
	decisions    map[string]*models.MatchDecision
	mergeRecords []*models.MergeRecord
	observations map[string][]models.Observation
	events       []string
	seq          int
}

func newMemBackend() *memBackend {
	return &memBackend{
		entities:     make(map[string]*models.Entity),
		identifiers:  make(map[string]*models.StrongIdentifier),
		links:        make(map[string]*models.RecordLink),
		candidates:   make(map[string]*models.MatchCandidate),
		decisions:    make(map[string]*models.MatchDecision),
		observations: make(map[string][]models.Observation),
	}
}

func (m *memBackend) nextID(prefix string) string {
	m.seq++
	return fmt.Sprintf("%s-%02d", prefix, m.seq)
}

func pairKey(a, b string) string {
	left, right := models.OrderPair(a, b)
	return left + "|" + right
}

func linkKey(entityType models.EntityType, ref models.RecordRef) string {
	return string(entityType) + "|" + ref.Key()
}

// entity store

func (m *memBackend) Get(ctx context.Context, id string) (*models.Entity, error) {
	return m.entities[id], nil
}

func (m *memBackend) MustGet(ctx context.Context, id string) (*models.Entity, error) {
	e := m.entities[id]
	if e == nil {
		return nil, httperror.NewHTTPError(http.StatusNotFound, "entity not found")
	}
	return e, nil
}

func (m *memBackend) Create(ctx context.Context, entityType models.EntityType, displayName string) (*models.Entity, error) {
	e := &models.Entity{ID: m.nextID("ent"), EntityType: entityType, DisplayName: displayName}
	m.entities[e.ID] = e
	return e, nil
}

func (m *memBackend) SetMergedInto(ctx context.Context, fromID, intoID, reason string) (bool, error) {
	e := m.entities[fromID]
	if e == nil || e.IsMerged() {
		return false, nil
	}
	e.MergedIntoID = &intoID
	e.MergeReason = &reason
	return true, nil
}

func (m *memBackend) ClearMergedInto(ctx context.Context, id, expectedSurvivor string) (bool, error) {
	e := m.entities[id]
	if e == nil || e.MergedIntoID == nil || *e.MergedIntoID != expectedSurvivor {
		return false, nil
	}
	e.MergedIntoID = nil
	e.MergeReason = nil
	return true, nil
}

func (m *memBackend) UpdateDisplayName(ctx context.Context, id, displayName string) error {
	if e := m.entities[id]; e != nil {
		e.DisplayName = displayName
	}
	return nil
}

// identifier store

func (m *memBackend) ListByEntity(ctx context.Context, entityID string) ([]models.StrongIdentifier, error) {
	var out []models.StrongIdentifier
	for _, id := range m.identifiers {
		if id.EntityID == entityID {
			out = append(out, *id)
		}
	}
	return out, nil
}

func (m *memBackend) Reassign(ctx context.Context, idType models.IdentifierType, normalizedValue, fromEntityID, toEntityID string) (bool, error) {
	id := m.identifiers[string(idType)+"|"+normalizedValue]
	if id == nil || id.EntityID != fromEntityID {
		return false, nil
	}
	id.EntityID = toEntityID
	return true, nil
}

func (m *memBackend) addIdentifier(entityID string, idType models.IdentifierType, value string) {
	m.identifiers[string(idType)+"|"+value] = &models.StrongIdentifier{
		ID:              m.nextID("sid"),
		EntityID:        entityID,
		IDType:          idType,
		NormalizedValue: value,
		RawValue:        value,
	}
}

// alias store

// MostFrequentName mirrors the SQL aggregation: counts pool per name
// key, the winning key's most frequent raw spelling is returned.
func (m *memBackend) MostFrequentName(ctx context.Context, entityID string) (string, error) {
	keyCounts := make(map[string]int)
	rawCounts := make(map[string]map[string]int)
	for _, a := range m.aliases {
		if a.EntityID != entityID || a.NameKey == "" {
			continue
		}
		keyCounts[a.NameKey]++
		if rawCounts[a.NameKey] == nil {
			rawCounts[a.NameKey] = make(map[string]int)
		}
		rawCounts[a.NameKey][a.NameRaw]++
	}
	bestKey, bestKeyCount := "", 0
	for key, n := range keyCounts {
		if n > bestKeyCount {
			bestKey, bestKeyCount = key, n
		}
	}
	best, bestCount := "", 0
	for raw, n := range rawCounts[bestKey] {
		if n > bestCount || (n == bestCount && raw < best) {
			best, bestCount = raw, n
		}
	}
	return best, nil
}

func (m *memBackend) MigrateForRecords(ctx context.Context, fromEntityID, toEntityID string, refs []models.RecordRef) (int, error) {
	moved := 0
	for _, a := range m.aliases {
		if a.EntityID != fromEntityID {
			continue
		}
		for _, ref := range refs {
			if a.Record() == ref {
				a.EntityID = toEntityID
				moved++
			}
		}
	}
	return moved, nil
}

func (m *memBackend) addAlias(entityID, name, nameKey string, ref models.RecordRef) {
	m.aliases = append(m.aliases, &models.Alias{
		ID:           m.nextID("als"),
		EntityID:     entityID,
		NameRaw:      name,
		NameKey:      nameKey,
		SourceSystem: ref.SourceSystem,
		SourceTable:  ref.SourceTable,
		SourceRowID:  ref.SourceRowID,
	})
}

// link store

func (m *memBackend) GetByRecord(ctx context.Context, entityType models.EntityType, ref models.RecordRef) (*models.RecordLink, error) {
	return m.links[linkKey(entityType, ref)], nil
}

func (m *memBackend) RepointAll(ctx context.Context, fromEntityID, toEntityID string) (int, error) {
	moved := 0
	for _, l := range m.links {
		if l.EntityID == fromEntityID {
			l.EntityID = toEntityID
			moved++
		}
	}
	return moved, nil
}

func (m *memBackend) MigrateRecords(ctx context.Context, fromEntityID, toEntityID string, refs []models.RecordRef) (int, error) {
	moved := 0
	for _, l := range m.links {
		if l.EntityID != fromEntityID {
			continue
		}
		for _, ref := range refs {
			if l.Record() == ref {
				l.EntityID = toEntityID
				moved++
			}
		}
	}
	return moved, nil
}

func (m *memBackend) addLink(entityType models.EntityType, ref models.RecordRef, entityID string) {
	m.links[linkKey(entityType, ref)] = &models.RecordLink{
		ID:           m.nextID("lnk"),
		EntityType:   entityType,
		SourceSystem: ref.SourceSystem,
		SourceTable:  ref.SourceTable,
		SourceRowID:  ref.SourceRowID,
		EntityID:     entityID,
	}
}

// candidate store adapter

type candStore struct{ *memBackend }

func (c candStore) GetByPair(ctx context.Context, a, b string) (*models.MatchCandidate, error) {
	return c.candidates[pairKey(a, b)], nil
}

func (c candStore) ListOpenByType(ctx context.Context, entityType models.EntityType, limit int) ([]models.MatchCandidate, error) {
	var out []models.MatchCandidate
	for _, cand := range c.candidates {
		if cand.EntityType == entityType && cand.Status == models.MatchCandidateStatusOpen {
			out = append(out, *cand)
		}
	}
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].Score > out[i].Score {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (c candStore) TransitionStatus(ctx context.Context, a, b string, from, to models.MatchCandidateStatus) (bool, error) {
	cand := c.candidates[pairKey(a, b)]
	if cand == nil || cand.Status != from {
		return false, nil
	}
	cand.Status = to
	return true, nil
}

func (c candStore) BlockOpenForEntity(ctx context.Context, entityID string) (int, error) {
	blocked := 0
	for _, cand := range c.candidates {
		if cand.Status == models.MatchCandidateStatusOpen && (cand.LeftID == entityID || cand.RightID == entityID) {
			cand.Status = models.MatchCandidateStatusBlocked
			blocked++
		}
	}
	return blocked, nil
}

func (m *memBackend) addCandidate(entityType models.EntityType, a, b string, score float64, explanation *models.ScoreExplanation) {
	left, right := models.OrderPair(a, b)
	m.candidates[left+"|"+right] = &models.MatchCandidate{
		ID:          m.nextID("cnd"),
		EntityType:  entityType,
		LeftID:      left,
		RightID:     right,
		Score:       score,
		Explanation: explanation.Marshal(),
		Status:      models.MatchCandidateStatusOpen,
	}
}

// decision store adapter

type decStore struct{ *memBackend }

func (d decStore) Upsert(ctx context.Context, a, b string, verdict models.Verdict, note, decidedBy string) error {
	left, right := models.OrderPair(a, b)
	d.decisions[left+"|"+right] = &models.MatchDecision{
		LeftID:    left,
		RightID:   right,
		Verdict:   verdict,
		Note:      note,
		DecidedBy: decidedBy,
	}
	return nil
}

func (d decStore) GetByPair(ctx context.Context, a, b string) (*models.MatchDecision, error) {
	return d.decisions[pairKey(a, b)], nil
}

// merge record store adapter

type recStore struct{ *memBackend }

func (r recStore) Create(ctx context.Context, fromID, intoID string, rule models.MergeRule, score float64) (*models.MergeRecord, error) {
	rec := &models.MergeRecord{
		ID:        r.nextID("mrg"),
		FromID:    fromID,
		IntoID:    intoID,
		Rule:      rule,
		Score:     score,
		CreatedAt: time.Now().UTC(),
	}
	r.mergeRecords = append(r.mergeRecords, rec)
	return rec, nil
}

func (r recStore) GetActiveByFromID(ctx context.Context, fromID string) (*models.MergeRecord, error) {
	for i := len(r.mergeRecords) - 1; i >= 0; i-- {
		if r.mergeRecords[i].FromID == fromID && !r.mergeRecords[i].IsReverted {
			return r.mergeRecords[i], nil
		}
	}
	return nil, nil
}

func (r recStore) MarkReverted(ctx context.Context, id string) (bool, error) {
	for _, rec := range r.mergeRecords {
		if rec.ID == id {
			if rec.IsReverted {
				return false, nil
			}
			rec.IsReverted = true
			return true, nil
		}
	}
	return false, nil
}

// observation store adapter

type obsStore struct{ *memBackend }

func (o obsStore) ListByRecord(ctx context.Context, ref models.RecordRef) ([]models.Observation, error) {
	return o.observations[ref.Key()], nil
}

func (m *memBackend) addObservation(ref models.RecordRef, kind models.ObservationKind, raw string) {
	m.observations[ref.Key()] = append(m.observations[ref.Key()], models.Observation{
		ID:              m.nextID("obs"),
		SourceSystem:    ref.SourceSystem,
		SourceTable:     ref.SourceTable,
		SourceRowID:     ref.SourceRowID,
		ObservationKind: kind,
		RawValue:        raw,
	})
}

type recordingEmitter struct{ events *[]string }

func (r recordingEmitter) EntityMerged(ctx context.Context, fromID, intoID string, rule models.MergeRule, score float64) {
	*r.events = append(*r.events, "merged:"+fromID+">"+intoID)
}

func (r recordingEmitter) MergeUndone(ctx context.Context, fromID, intoID string) {
	*r.events = append(*r.events, "undone:"+fromID+">"+intoID)
}

func (r recordingEmitter) EntitySplit(ctx context.Context, originID, newEntityID string) {
	*r.events = append(*r.events, "split:"+originID+">"+newEntityID)
}

func newTestEngine(m *memBackend) *Engine {
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	return NewEngine(m, m, m, m, candStore{m}, decStore{m}, recStore{m}, obsStore{m}, recordingEmitter{&m.events}, logger)
}

func (m *memBackend) addPerson(name string) *models.Entity {
	e := &models.Entity{ID: m.nextID("ent"), EntityType: models.EntityTypePerson, DisplayName: name}
	m.entities[e.ID] = e
	return e
}

func corroborated(score float64) *models.ScoreExplanation {
	return &models.ScoreExplanation{
		Score:     score,
		Reasons:   []string{models.ReasonTokenOverlap, models.ReasonSharedPlace},
		Subscores: map[string]float64{models.ReasonTokenOverlap: 1, models.ReasonSharedPlace: 1},
	}
}

func uncorroborated(score float64) *models.ScoreExplanation {
	return &models.ScoreExplanation{
		Score:     score,
		Reasons:   []string{models.ReasonTokenOverlap},
		Subscores: map[string]float64{models.ReasonTokenOverlap: 1},
	}
}

func assertHTTPStatus(t *testing.T, err error, status int) {
	t.Helper()
	require.Error(t, err)
	require.True(t, httperror.IsHTTPError(err), "expected HTTP error, got: %v", err)
	assert.Equal(t, status, httperror.GetStatusCode(err))
}

func TestApplyAutoMerges_LowerIDSurvives(t *testing.T) {
	m := newMemBackend()
	a := m.addPerson("Jane Doe")
	b := m.addPerson("Jane Doe")
	ref := models.RecordRef{SourceSystem: "clinic", SourceTable: "owners", SourceRowID: "r1"}
	m.addLink(models.EntityTypePerson, ref, b.ID)
	m.addCandidate(models.EntityTypePerson, a.ID, b.ID, 0.99, corroborated(0.99))

	result, err := newTestEngine(m).ApplyAutoMerges(context.Background(), models.EntityTypePerson, settings.Default(models.EntityTypePerson))
	require.NoError(t, err)

	assert.Equal(t, 1, result.Merged)

	survivor, absorbed := models.OrderPair(a.ID, b.ID)
	assert.False(t, m.entities[survivor].IsMerged())
	require.True(t, m.entities[absorbed].IsMerged())
	assert.Equal(t, survivor, *m.entities[absorbed].MergedIntoID)

	// evidence follows the survivor
	assert.Equal(t, survivor, m.links[linkKey(models.EntityTypePerson, ref)].EntityID)

	cand := m.candidates[pairKey(a.ID, b.ID)]
	assert.Equal(t, models.MatchCandidateStatusAutoMerged, cand.Status)
	decision := m.decisions[pairKey(a.ID, b.ID)]
	require.NotNil(t, decision)
	assert.Equal(t, models.VerdictSame, decision.Verdict)
	assert.Equal(t, []string{"merged:" + absorbed + ">" + survivor}, m.events)
}

func TestApplyAutoMerges_BelowThresholdLeftOpen(t *testing.T) {
	m := newMemBackend()
	a := m.addPerson("Jane Doe")
	b := m.addPerson("Jane Doe")
	m.addCandidate(models.EntityTypePerson, a.ID, b.ID, 0.9, corroborated(0.9))

	result, err := newTestEngine(m).ApplyAutoMerges(context.Background(), models.EntityTypePerson, settings.Default(models.EntityTypePerson))
	require.NoError(t, err)

	assert.Equal(t, 1, result.LeftOpen)
	assert.Equal(t, models.MatchCandidateStatusOpen, m.candidates[pairKey(a.ID, b.ID)].Status)
}

func TestApplyAutoMerges_NoCorroborationLeftOpen(t *testing.T) {
	m := newMemBackend()
	a := m.addPerson("Jane Doe")
	b := m.addPerson("Jane Doe")
	m.addCandidate(models.EntityTypePerson, a.ID, b.ID, 0.99, uncorroborated(0.99))

	result, err := newTestEngine(m).ApplyAutoMerges(context.Background(), models.EntityTypePerson, settings.Default(models.EntityTypePerson))
	require.NoError(t, err)

	assert.Equal(t, 1, result.LeftOpen)
	assert.Equal(t, 0, result.Merged)
}

func TestApplyAutoMerges_NotSameVerdictBlocks(t *testing.T) {
	m := newMemBackend()
	a := m.addPerson("Jane Doe")
	b := m.addPerson("Jane Doe")
	m.addCandidate(models.EntityTypePerson, a.ID, b.ID, 0.99, corroborated(0.99))
	require.NoError(t, decStore{m}.Upsert(context.Background(), a.ID, b.ID, models.VerdictNotSame, "", "reviewer"))

	result, err := newTestEngine(m).ApplyAutoMerges(context.Background(), models.EntityTypePerson, settings.Default(models.EntityTypePerson))
	require.NoError(t, err)

	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, models.MatchCandidateStatusRejected, m.candidates[pairKey(a.ID, b.ID)].Status)
	assert.False(t, m.entities[a.ID].IsMerged())
	assert.False(t, m.entities[b.ID].IsMerged())
}

func TestApplyAutoMerges_ConflictingIdentifiersSkip(t *testing.T) {
	m := newMemBackend()
	a := m.addPerson("Jane Doe")
	b := m.addPerson("Jane Doe")
	m.addIdentifier(a.ID, models.IdentifierTypeEmail, "jane@example.com")
	m.addIdentifier(b.ID, models.IdentifierTypeEmail, "jdoe@example.com")
	m.addCandidate(models.EntityTypePerson, a.ID, b.ID, 0.99, corroborated(0.99))

	result, err := newTestEngine(m).ApplyAutoMerges(context.Background(), models.EntityTypePerson, settings.Default(models.EntityTypePerson))
	require.NoError(t, err)

	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, models.MatchCandidateStatusBlocked, m.candidates[pairKey(a.ID, b.ID)].Status)
}

func TestApplyAutoMerges_AlreadyMergedSideSkipped(t *testing.T) {
	m := newMemBackend()
	a := m.addPerson("Jane Doe")
	b := m.addPerson("Jane Doe")
	c := m.addPerson("Jane Doe")
	m.addCandidate(models.EntityTypePerson, a.ID, b.ID, 0.99, corroborated(0.99))
	m.addCandidate(models.EntityTypePerson, b.ID, c.ID, 0.98, corroborated(0.98))

	result, err := newTestEngine(m).ApplyAutoMerges(context.Background(), models.EntityTypePerson, settings.Default(models.EntityTypePerson))
	require.NoError(t, err)

	// the higher-scoring pair merges first and absorbs one side of the
	// second pair, which is then re-validated and skipped
	assert.Equal(t, 1, result.Merged)
	assert.Equal(t, 1, result.Skipped)
}

func TestAccept_MergesAndRecordsVerdict(t *testing.T) {
	m := newMemBackend()
	a := m.addPerson("Jane Doe")
	b := m.addPerson("Jane D")
	m.addCandidate(models.EntityTypePerson, a.ID, b.ID, 0.8, uncorroborated(0.8))

	record, err := newTestEngine(m).Accept(context.Background(), a.ID, b.ID, "reviewer@example.com")
	require.NoError(t, err)
	require.NotNil(t, record)

	assert.Equal(t, models.MergeRuleOperatorAccept, record.Rule)
	survivor, absorbed := models.OrderPair(a.ID, b.ID)
	assert.Equal(t, survivor, record.IntoID)
	assert.Equal(t, absorbed, record.FromID)
	assert.Equal(t, models.MatchCandidateStatusAccepted, m.candidates[pairKey(a.ID, b.ID)].Status)
	assert.Equal(t, "reviewer@example.com", m.decisions[pairKey(a.ID, b.ID)].DecidedBy)
}

func TestAccept_OperatorMistakesAreExplicit(t *testing.T) {
	m := newMemBackend()
	a := m.addPerson("Jane Doe")
	b := m.addPerson("Jane D")
	engine := newTestEngine(m)

	// no candidate at all
	_, err := engine.Accept(context.Background(), a.ID, b.ID, "reviewer")
	assertHTTPStatus(t, err, http.StatusNotFound)

	// candidate exists but was already decided
	m.addCandidate(models.EntityTypePerson, a.ID, b.ID, 0.8, uncorroborated(0.8))
	m.candidates[pairKey(a.ID, b.ID)].Status = models.MatchCandidateStatusRejected
	_, err = engine.Accept(context.Background(), a.ID, b.ID, "reviewer")
	assertHTTPStatus(t, err, http.StatusConflict)
}

func TestAccept_ConflictingIdentifiersRefused(t *testing.T) {
	m := newMemBackend()
	a := m.addPerson("Jane Doe")
	b := m.addPerson("Jane D")
	m.addIdentifier(a.ID, models.IdentifierTypeEmail, "jane@example.com")
	m.addIdentifier(b.ID, models.IdentifierTypeEmail, "jdoe@example.com")
	m.addCandidate(models.EntityTypePerson, a.ID, b.ID, 0.8, uncorroborated(0.8))

	_, err := newTestEngine(m).Accept(context.Background(), a.ID, b.ID, "reviewer")
	assertHTTPStatus(t, err, http.StatusConflict)
}

func TestReject_RecordsPermanentVerdict(t *testing.T) {
	m := newMemBackend()
	a := m.addPerson("Jane Doe")
	b := m.addPerson("Jane D")
	m.addCandidate(models.EntityTypePerson, a.ID, b.ID, 0.8, uncorroborated(0.8))

	err := newTestEngine(m).Reject(context.Background(), a.ID, b.ID, "different people", "reviewer")
	require.NoError(t, err)

	decision := m.decisions[pairKey(a.ID, b.ID)]
	require.NotNil(t, decision)
	assert.Equal(t, models.VerdictNotSame, decision.Verdict)
	assert.Equal(t, models.MatchCandidateStatusRejected, m.candidates[pairKey(a.ID, b.ID)].Status)
}

func TestReject_WorksWithoutCandidate(t *testing.T) {
	m := newMemBackend()
	a := m.addPerson("Jane Doe")
	b := m.addPerson("Jane D")

	err := newTestEngine(m).Reject(context.Background(), a.ID, b.ID, "", "reviewer")
	require.NoError(t, err)
	assert.NotNil(t, m.decisions[pairKey(a.ID, b.ID)])
}

func TestUndoMerge_RestoresEntityAndBlocksRecurrence(t *testing.T) {
	m := newMemBackend()
	a := m.addPerson("Jane Doe")
	b := m.addPerson("Jane Doe")
	m.addCandidate(models.EntityTypePerson, a.ID, b.ID, 0.99, corroborated(0.99))

	engine := newTestEngine(m)
	result, err := engine.ApplyAutoMerges(context.Background(), models.EntityTypePerson, settings.Default(models.EntityTypePerson))
	require.NoError(t, err)
	require.Equal(t, 1, result.Merged)

	_, absorbed := models.OrderPair(a.ID, b.ID)
	record, err := engine.UndoMerge(context.Background(), absorbed, "reviewer")
	require.NoError(t, err)
	require.NotNil(t, record)

	assert.True(t, record.IsReverted)
	assert.False(t, m.entities[absorbed].IsMerged(), "merge pointer cleared")
	decision := m.decisions[pairKey(a.ID, b.ID)]
	require.NotNil(t, decision)
	assert.Equal(t, models.VerdictNotSame, decision.Verdict, "the pair can never silently re-merge")
	assert.Equal(t, models.MatchCandidateStatusRejected, m.candidates[pairKey(a.ID, b.ID)].Status)

	// undoing twice is an operator mistake
	_, err = engine.UndoMerge(context.Background(), absorbed, "reviewer")
	assertHTTPStatus(t, err, http.StatusNotFound)
}

func TestUndoMerge_NoActiveMerge(t *testing.T) {
	m := newMemBackend()
	a := m.addPerson("Jane Doe")

	_, err := newTestEngine(m).UndoMerge(context.Background(), a.ID, "reviewer")
	assertHTTPStatus(t, err, http.StatusNotFound)
}

func TestUndoMerge_RewrittenPointerLeftAlone(t *testing.T) {
	m := newMemBackend()
	a := m.addPerson("Jane Doe")
	b := m.addPerson("Jane Doe")
	c := m.addPerson("Jane Doe")
	m.addCandidate(models.EntityTypePerson, a.ID, b.ID, 0.99, corroborated(0.99))

	engine := newTestEngine(m)
	_, err := engine.ApplyAutoMerges(context.Background(), models.EntityTypePerson, settings.Default(models.EntityTypePerson))
	require.NoError(t, err)

	// the chain got rewritten after the merge being undone
	_, absorbed := models.OrderPair(a.ID, b.ID)
	m.entities[absorbed].MergedIntoID = &c.ID

	record, err := engine.UndoMerge(context.Background(), absorbed, "reviewer")
	require.NoError(t, err)
	assert.True(t, record.IsReverted)
	assert.Equal(t, c.ID, *m.entities[absorbed].MergedIntoID, "mismatched pointer is not cleared")
}

func TestSplit_RoundTrip(t *testing.T) {
	m := newMemBackend()
	origin := m.addPerson("Jane Doe")

	keep := models.RecordRef{SourceSystem: "clinic", SourceTable: "owners", SourceRowID: "r1"}
	carve := models.RecordRef{SourceSystem: "shelter", SourceTable: "adopters", SourceRowID: "r2"}
	m.addLink(models.EntityTypePerson, keep, origin.ID)
	m.addLink(models.EntityTypePerson, carve, origin.ID)
	m.addAlias(origin.ID, "Jane Doe", "jane doe", keep)
	m.addAlias(origin.ID, "J. Doe", "j doe", carve)
	m.addIdentifier(origin.ID, models.IdentifierTypeEmail, "jane@example.com")
	m.addIdentifier(origin.ID, models.IdentifierTypePhone, "7075551234")
	m.addObservation(carve, models.ObservationKindPhone, "(707) 555-1234")
	m.addObservation(carve, models.ObservationKindPersonName, "J. Doe")

	result, err := newTestEngine(m).Split(context.Background(), origin.ID, []models.RecordRef{carve}, "reviewer")
	require.NoError(t, err)

	assert.Equal(t, 1, result.RecordsMigrated)
	assert.Equal(t, 1, result.AliasesMigrated)
	assert.Equal(t, 1, result.IdentifiersMigrated, "the phone observed on the carved record follows it")

	assert.Equal(t, result.NewEntityID, m.links[linkKey(models.EntityTypePerson, carve)].EntityID)
	assert.Equal(t, origin.ID, m.links[linkKey(models.EntityTypePerson, keep)].EntityID)
	assert.Equal(t, result.NewEntityID, m.identifiers["phone|7075551234"].EntityID)
	assert.Equal(t, origin.ID, m.identifiers["email|jane@example.com"].EntityID)

	decision := m.decisions[pairKey(origin.ID, result.NewEntityID)]
	require.NotNil(t, decision)
	assert.Equal(t, models.VerdictNotSame, decision.Verdict, "split halves never auto-remerge")

	assert.Equal(t, "J. Doe", m.entities[result.NewEntityID].DisplayName)
}

func TestSplit_OperatorMistakes(t *testing.T) {
	m := newMemBackend()
	origin := m.addPerson("Jane Doe")
	engine := newTestEngine(m)

	_, err := engine.Split(context.Background(), "missing", []models.RecordRef{{SourceSystem: "x", SourceTable: "y", SourceRowID: "z"}}, "reviewer")
	assertHTTPStatus(t, err, http.StatusNotFound)

	_, err = engine.Split(context.Background(), origin.ID, nil, "reviewer")
	assertHTTPStatus(t, err, http.StatusBadRequest)

	// records that belong to someone else are not the origin's to give
	other := m.addPerson("Sam Smith")
	foreign := models.RecordRef{SourceSystem: "clinic", SourceTable: "owners", SourceRowID: "r9"}
	m.addLink(models.EntityTypePerson, foreign, other.ID)
	_, err = engine.Split(context.Background(), origin.ID, []models.RecordRef{foreign}, "reviewer")
	assertHTTPStatus(t, err, http.StatusBadRequest)

	// merged entities cannot be split directly
	survivor := m.addPerson("Jane D")
	m.entities[origin.ID].MergedIntoID = &survivor.ID
	ownRef := models.RecordRef{SourceSystem: "clinic", SourceTable: "owners", SourceRowID: "r1"}
	_, err = engine.Split(context.Background(), origin.ID, []models.RecordRef{ownRef}, "reviewer")
	assertHTTPStatus(t, err, http.StatusConflict)
}
