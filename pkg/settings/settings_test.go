package settings

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/pkg/models"
)

type fakeStore struct {
	rows []models.EngineSetting
	err  error
}

func (f *fakeStore) ListByEntityType(ctx context.Context, entityType models.EntityType) ([]models.EngineSetting, error) {
	return f.rows, f.err
}

func TestResolveDefaults(t *testing.T) {
	s, err := Resolve(context.Background(), &fakeStore{}, models.EntityTypePerson)
	require.NoError(t, err)

	assert.Equal(t, models.EntityTypePerson, s.EntityType())
	assert.Equal(t, 0.97, s.Get(KeyAutoMergeThreshold))
	assert.Equal(t, 2, s.GetInt(KeyMinNameTokens))
	assert.Equal(t, 0.0, s.Get("no_such_key"))
}

func TestResolveOverrides(t *testing.T) {
	store := &fakeStore{rows: []models.EngineSetting{
		{EntityType: models.EntityTypeAnimal, Key: KeyAutoMergeThreshold, Value: 0.99},
		{EntityType: models.EntityTypeAnimal, Key: "custom_key", Value: 3},
	}}

	s, err := Resolve(context.Background(), store, models.EntityTypeAnimal)
	require.NoError(t, err)

	assert.Equal(t, 0.99, s.Get(KeyAutoMergeThreshold))
	assert.Equal(t, 3.0, s.Get("custom_key"))
	// untouched defaults survive
	assert.Equal(t, 0.5, s.Get(KeyMinCandidateScore))
}

func TestResolveStoreError(t *testing.T) {
	store := &fakeStore{err: assert.AnError}

	_, err := Resolve(context.Background(), store, models.EntityTypePerson)
	assert.Error(t, err)
}

func TestDefaultPlacePhoneticsDisabled(t *testing.T) {
	s := Default(models.EntityTypePlace)
	assert.Equal(t, 0.0, s.Get(KeyWeightPhonetic))
}
