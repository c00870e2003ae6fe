package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/LdDl/replay-go/replay"
	"github.com/LdDl/replay-go/replay/likelihoods"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fitModel(t *testing.T, name string) (likelihoods.EncodingModel, *replay.FittedEnvironment, likelihoods.NeuralData) {
	t.Helper()
	position := make([][]float64, 200)
	spikes := make([][]float64, 200)
	for i := range position {
		position[i] = []float64{float64(i % 50)}
		spikes[i] = []float64{0}
		if i%50 > 20 && i%50 < 30 {
			spikes[i][0] = 1
		}
	}
	env, err := replay.NewEnvironmentConfig("store", 5).FitPlaceGrid(position)
	require.NoError(t, err)
	algorithm, err := likelihoods.Lookup(name)
	require.NoError(t, err)
	neural := likelihoods.NeuralData{Spikes: spikes}
	model, err := algorithm.Fit(env, position, neural, likelihoods.DefaultParams())
	require.NoError(t, err)
	return model, env, neural
}

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "models.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	return s
}

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	model, env, neural := fitModel(t, likelihoods.SpikingLikelihoodKDE)

	info, err := s.Save(ctx, "session-1", model)
	require.NoError(t, err)
	assert.Equal(t, model.ID(), info.ID)
	assert.Equal(t, likelihoods.SpikingLikelihoodKDE, info.Algorithm)
	assert.Greater(t, info.Size, 0)

	loaded, err := s.Load(ctx, model.ID())
	require.NoError(t, err)
	assert.Equal(t, model.ID(), loaded.ID())

	algorithm, err := likelihoods.Lookup(likelihoods.SpikingLikelihoodKDE)
	require.NoError(t, err)
	expected, err := algorithm.Estimate(env, neural, model, true)
	require.NoError(t, err)
	actual, err := algorithm.Estimate(env, neural, loaded, true)
	require.NoError(t, err)
	assert.Equal(t, expected.RawMatrix().Data, actual.RawMatrix().Data)
}

func TestStoreListAndDelete(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	first, _, _ := fitModel(t, likelihoods.SpikingLikelihoodKDE)
	second, _, _ := fitModel(t, likelihoods.SpikingLikelihoodGLM)

	_, err := s.Save(ctx, "first", first)
	require.NoError(t, err)
	_, err = s.Save(ctx, "second", second)
	require.NoError(t, err)

	infos, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, first.ID(), infos[0].ID)
	assert.Equal(t, "second", infos[1].Name)
	assert.Equal(t, likelihoods.SpikingLikelihoodGLM, infos[1].Algorithm)
	assert.True(t, infos[0].CreatedAt.Before(infos[1].CreatedAt))

	// Saving again under a new name replaces the row
	_, err = s.Save(ctx, "renamed", first)
	require.NoError(t, err)
	infos, err = s.List(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, "renamed", infos[1].Name)

	require.NoError(t, s.Delete(ctx, first.ID()))
	assert.ErrorIs(t, s.Delete(ctx, first.ID()), ErrModelNotFound)
	_, err = s.Load(ctx, first.ID())
	assert.ErrorIs(t, err, ErrModelNotFound)

	infos, err = s.List(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, second.ID(), infos[0].ID)
}

func TestStoreLoadUnknown(t *testing.T) {
	s := openStore(t)
	_, err := s.Load(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrModelNotFound)
}
