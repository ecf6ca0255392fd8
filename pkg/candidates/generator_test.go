package candidates

import (
	"context"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/phonetics"
	"github.com/Ramsey-B/clover/pkg/settings"
)

type fakeBackend struct {
	entities   []models.Entity
	decisions  map[string]*models.MatchDecision
	candidates map[string]*models.MatchCandidate
	upserts    []string
	scores     map[string]float64
	scored     []string
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		decisions:  make(map[string]*models.MatchDecision),
		candidates: make(map[string]*models.MatchCandidate),
		scores:     make(map[string]float64),
	}
}

func pairKey(a, b string) string {
	left, right := models.OrderPair(a, b)
	return left + "|" + right
}

func (f *fakeBackend) ListCanonicalByType(ctx context.Context, entityType models.EntityType, afterID string, limit int) ([]models.Entity, error) {
	var out []models.Entity
	for _, e := range f.entities {
		if e.EntityType == entityType && e.ID > afterID {
			out = append(out, e)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeBackend) GetByPair(ctx context.Context, a, b string) (*models.MatchDecision, error) {
	return f.decisions[pairKey(a, b)], nil
}

type candidateAdapter struct{ *fakeBackend }

func (c candidateAdapter) GetByPair(ctx context.Context, a, b string) (*models.MatchCandidate, error) {
	return c.candidates[pairKey(a, b)], nil
}

func (c candidateAdapter) Upsert(ctx context.Context, entityType models.EntityType, a, b string, score float64, explanation *models.ScoreExplanation) error {
	c.upserts = append(c.upserts, pairKey(a, b))
	return nil
}

func (f *fakeBackend) Score(ctx context.Context, left, right *models.Entity, cfg *settings.Settings) (*models.ScoreExplanation, error) {
	key := pairKey(left.ID, right.ID)
	f.scored = append(f.scored, key)
	score, ok := f.scores[key]
	if !ok {
		score = 0.8
	}
	return &models.ScoreExplanation{Score: score, Reasons: []string{models.ReasonTokenOverlap}}, nil
}

func (f *fakeBackend) addPerson(id, name string) {
	f.entities = append(f.entities, models.Entity{ID: id, EntityType: models.EntityTypePerson, DisplayName: name})
}

type noopEmitter struct{}

func (noopEmitter) CandidateProposed(context.Context, models.EntityType, string, string, float64) {}

func newTestGenerator(f *fakeBackend) *Generator {
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	return NewGenerator(f, f, candidateAdapter{f}, f, phonetics.SoundexCoder{}, noopEmitter{}, logger)
}

func TestRun_BlocksOnSurnamePhonetics(t *testing.T) {
	f := newFakeBackend()
	f.addPerson("p1", "Jane Smith")
	f.addPerson("p2", "John Smyth")
	f.addPerson("p3", "Alice Jones")

	result, err := newTestGenerator(f).Run(context.Background(), models.EntityTypePerson, settings.Default(models.EntityTypePerson))
	require.NoError(t, err)

	// Smith and Smyth share a soundex block; Jones is alone
	assert.Equal(t, 3, result.EntitiesScanned)
	assert.Equal(t, 1, result.PairsConsidered)
	assert.Equal(t, []string{pairKey("p1", "p2")}, f.upserts)
}

func TestRun_RejectedPairNeverRegenerated(t *testing.T) {
	f := newFakeBackend()
	f.addPerson("p1", "Jane Smith")
	f.addPerson("p2", "John Smyth")
	f.decisions[pairKey("p1", "p2")] = &models.MatchDecision{
		LeftID:  "p1",
		RightID: "p2",
		Verdict: models.VerdictNotSame,
	}

	result, err := newTestGenerator(f).Run(context.Background(), models.EntityTypePerson, settings.Default(models.EntityTypePerson))
	require.NoError(t, err)

	assert.Equal(t, 1, result.PairsBlocked)
	assert.Empty(t, f.upserts)
	assert.Empty(t, f.scored, "rejected pairs are not even scored")
}

func TestRun_DecidedCandidateLeftAlone(t *testing.T) {
	f := newFakeBackend()
	f.addPerson("p1", "Jane Smith")
	f.addPerson("p2", "John Smyth")
	f.candidates[pairKey("p1", "p2")] = &models.MatchCandidate{
		LeftID:  "p1",
		RightID: "p2",
		Status:  models.MatchCandidateStatusAutoMerged,
	}

	result, err := newTestGenerator(f).Run(context.Background(), models.EntityTypePerson, settings.Default(models.EntityTypePerson))
	require.NoError(t, err)

	assert.Equal(t, 1, result.PairsBlocked)
	assert.Empty(t, f.upserts)
}

func TestRun_OpenCandidateRescored(t *testing.T) {
	f := newFakeBackend()
	f.addPerson("p1", "Jane Smith")
	f.addPerson("p2", "John Smyth")
	f.candidates[pairKey("p1", "p2")] = &models.MatchCandidate{
		LeftID:  "p1",
		RightID: "p2",
		Status:  models.MatchCandidateStatusOpen,
	}

	result, err := newTestGenerator(f).Run(context.Background(), models.EntityTypePerson, settings.Default(models.EntityTypePerson))
	require.NoError(t, err)

	assert.Equal(t, 1, result.CandidatesUpserted, "open rows are refreshed via max-score upsert")
}

func TestRun_SingleTokenNameGated(t *testing.T) {
	f := newFakeBackend()
	f.addPerson("p1", "Smith")
	f.addPerson("p2", "Jane Smith")

	result, err := newTestGenerator(f).Run(context.Background(), models.EntityTypePerson, settings.Default(models.EntityTypePerson))
	require.NoError(t, err)

	assert.Equal(t, 1, result.PairsGated)
	assert.Equal(t, 0, result.PairsConsidered)
}

func TestRun_LowScorePairNotUpserted(t *testing.T) {
	f := newFakeBackend()
	f.addPerson("p1", "Jane Smith")
	f.addPerson("p2", "John Smyth")
	f.scores[pairKey("p1", "p2")] = 0.2

	result, err := newTestGenerator(f).Run(context.Background(), models.EntityTypePerson, settings.Default(models.EntityTypePerson))
	require.NoError(t, err)

	assert.Equal(t, 1, result.PairsConsidered)
	assert.Equal(t, 0, result.CandidatesUpserted)
}

func TestRun_BatchLimitStopsPass(t *testing.T) {
	f := newFakeBackend()
	f.addPerson("p1", "A Smith")
	f.addPerson("p2", "B Smith")
	f.addPerson("p3", "C Smith")
	f.addPerson("p4", "D Smith")

	// capped run; remaining pairs wait for the next pass
	cfg := settings.Default(models.EntityTypePerson).With(settings.KeyMaxBatchCandidates, 2)

	result, err := newTestGenerator(f).Run(context.Background(), models.EntityTypePerson, cfg)
	require.NoError(t, err)

	assert.Equal(t, 2, result.CandidatesUpserted)
	assert.Len(t, f.upserts, 2)
}

func TestRun_AnimalsBlockOnSpeciesAndName(t *testing.T) {
	dog, cat := "dog", "cat"
	f := newFakeBackend()
	f.entities = []models.Entity{
		{ID: "a1", EntityType: models.EntityTypeAnimal, DisplayName: "Rex", Species: &dog},
		{ID: "a2", EntityType: models.EntityTypeAnimal, DisplayName: "Rexx", Species: &dog},
		{ID: "a3", EntityType: models.EntityTypeAnimal, DisplayName: "Rex", Species: &cat},
	}

	result, err := newTestGenerator(f).Run(context.Background(), models.EntityTypeAnimal, settings.Default(models.EntityTypeAnimal))
	require.NoError(t, err)

	// the cat never pairs with the dogs
	assert.Equal(t, 1, result.PairsConsidered)
	assert.Equal(t, []string{pairKey("a1", "a2")}, f.upserts)
}

func TestRun_PlacesBlockOnHouseNumberAndStreet(t *testing.T) {
	f := newFakeBackend()
	f.entities = []models.Entity{
		{ID: "pl1", EntityType: models.EntityTypePlace, DisplayName: "123 Main Street"},
		{ID: "pl2", EntityType: models.EntityTypePlace, DisplayName: "123 Main St Suite 4"},
		{ID: "pl3", EntityType: models.EntityTypePlace, DisplayName: "500 Oak Avenue"},
	}

	result, err := newTestGenerator(f).Run(context.Background(), models.EntityTypePlace, settings.Default(models.EntityTypePlace))
	require.NoError(t, err)

	assert.Equal(t, 1, result.PairsConsidered)
	assert.Equal(t, []string{pairKey("pl1", "pl2")}, f.upserts)
}
