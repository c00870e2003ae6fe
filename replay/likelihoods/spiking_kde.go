package likelihoods

import (
	"github.com/LdDl/replay-go/replay"
	"github.com/google/uuid"
	"gonum.org/v1/gonum/mat"
)

// SpikingKDE estimates place fields as the ratio of a spike-weighted and an
// unweighted Gaussian kernel density of position.
type SpikingKDE struct {
	name    string
	backend Backend
}

// NewSpikingKDE creates the algorithm on the given backend
func NewSpikingKDE(name string, backend Backend) *SpikingKDE {
	return &SpikingKDE{
		name:    name,
		backend: backend,
	}
}

// Name implements EncodingAlgorithm
func (a *SpikingKDE) Name() string { return a.name }

// Family implements EncodingAlgorithm
func (a *SpikingKDE) Family() Family { return FamilySortedSpikes }

// Fit implements EncodingAlgorithm
func (a *SpikingKDE) Fit(env *replay.FittedEnvironment, position [][]float64, neural NeuralData, params Params) (EncodingModel, error) {
	if err := params.validateKDE(); err != nil {
		return nil, err
	}
	g, err := gridOf(env)
	if err != nil {
		return nil, err
	}
	nNeurons, err := checkSpikes(neural.Spikes)
	if err != nil {
		return nil, err
	}
	rows, err := validRows(g, position, len(neural.Spikes))
	if err != nil {
		return nil, err
	}

	release, err := a.backend.Acquire()
	if err != nil {
		return nil, err
	}
	defer release()

	samples := make([][]float64, len(rows))
	for i, t := range rows {
		samples[i] = position[t]
	}
	occupancy := positionDensity(a.backend, g.centers, g.interior, samples, nil, params.PositionStd)

	fields := make([][]float64, nNeurons)
	weights := make([]float64, len(rows))
	for n := 0; n < nNeurons; n++ {
		nSpikes := 0.0
		for i, t := range rows {
			weights[i] = neural.Spikes[t][n]
			nSpikes += weights[i]
		}
		field := make([]float64, len(g.centers))
		if nSpikes > 0 {
			meanRate := nSpikes / float64(len(rows))
			marginal := positionDensity(a.backend, g.centers, g.interior, samples, weights, params.PositionStd)
			field = estimateIntensity(meanRate, marginal, occupancy)
		}
		for b := range field {
			field[b] += floorIntensity
		}
		fields[n] = field
	}

	return &SortedSpikesModel{state: sortedSpikesState{
		Algorithm:   a.name,
		ID:          uuid.New(),
		NumBins:     len(g.centers),
		PlaceFields: fields,
	}}, nil
}

// Estimate implements EncodingAlgorithm
func (a *SpikingKDE) Estimate(env *replay.FittedEnvironment, neural NeuralData, model EncodingModel, isComputeOffset bool) (*mat.Dense, error) {
	return estimateSortedSpikes(a.name, a.backend, env, neural, model, isComputeOffset)
}
