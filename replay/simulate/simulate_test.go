package simulate

import (
	"math"
	"testing"

	"github.com/LdDl/replay-go/replay"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLinearTrackRun(t *testing.T) {
	position, err := LinearTrackRun(9, 4, 1, 1)
	require.NoError(t, err)
	got := make([]float64, len(position))
	for i, row := range position {
		require.Len(t, row, 1)
		got[i] = row[0]
	}
	assert.Equal(t, []float64{0, 1, 2, 3, 4, 3, 2, 1, 0}, got)

	_, err = LinearTrackRun(10, 0, 1, 1)
	assert.ErrorIs(t, err, replay.ErrConfiguration)
}

func TestPlaceFieldFiringRate(t *testing.T) {
	position := [][]float64{{0}, {10}, {20}, {math.NaN()}}
	rate, err := PlaceFieldFiringRate([]float64{10}, position, 15, 10)
	require.NoError(t, err)
	assert.InDelta(t, 15.0, rate[1], 1e-12)
	assert.InDelta(t, rate[0], rate[2], 1e-12)
	assert.InDelta(t, 15*math.Exp(-5), rate[0], 1e-9)
	assert.Equal(t, 0.0, rate[3])

	_, err = PlaceFieldFiringRate([]float64{10, 10}, position, 15, 10)
	assert.ErrorIs(t, err, replay.ErrInvalidInput)
}

func TestSimulatorIsDeterministic(t *testing.T) {
	position, err := LinearTrackRun(2000, 100, 50, DefaultSamplingFrequency)
	require.NoError(t, err)
	means := [][]float64{{20}, {80}}

	first, err := NewSimulator(7).SortedSpikes(means, position)
	require.NoError(t, err)
	second, err := NewSimulator(7).SortedSpikes(means, position)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	total := 0.0
	for _, row := range first {
		for _, v := range row {
			assert.Contains(t, []float64{0, 1}, v)
			total += v
		}
	}
	assert.Greater(t, total, 0.0)
}

func TestMultiunitWithPlaceFields(t *testing.T) {
	position, err := LinearTrackRun(5000, 100, 50, DefaultSamplingFrequency)
	require.NoError(t, err)
	marks, err := NewSimulator(3).MultiunitWithPlaceFields([][]float64{{30}, {70}}, position, DefaultMarkSpacing, DefaultMarkDims)
	require.NoError(t, err)
	require.Len(t, marks, len(position))
	nSpikes := 0
	for _, row := range marks {
		require.Len(t, row, DefaultMarkDims)
		if math.IsNaN(row[0]) {
			for _, v := range row {
				assert.True(t, math.IsNaN(v))
			}
			continue
		}
		nSpikes++
		assert.True(t, replay.IsFiniteRow(row))
	}
	assert.Greater(t, nSpikes, 0)

	_, err = NewSimulator(3).MultiunitWithPlaceFields(nil, position, 5, 0)
	assert.ErrorIs(t, err, replay.ErrConfiguration)
}
