package likelihoods

import (
	"github.com/LdDl/replay-go/replay"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// sortedSpikesState is the serializable content of a SortedSpikesModel
type sortedSpikesState struct {
	Algorithm string
	ID        uuid.UUID
	NumBins   int
	// PlaceFields is n_neurons x n_bins, expected spikes per time sample
	PlaceFields [][]float64
	// Coefficients and Knots are set by the GLM fitter only
	Coefficients [][]float64
	Knots        [][]float64
}

// SortedSpikesModel holds one place field per neuron
type SortedSpikesModel struct {
	state sortedSpikesState
}

// Algorithm implements EncodingModel
func (m *SortedSpikesModel) Algorithm() string { return m.state.Algorithm }

// ID implements EncodingModel
func (m *SortedSpikesModel) ID() uuid.UUID { return m.state.ID }

// NumBins implements EncodingModel
func (m *SortedSpikesModel) NumBins() int { return m.state.NumBins }

// NumNeurons returns the number of fitted place fields
func (m *SortedSpikesModel) NumNeurons() int { return len(m.state.PlaceFields) }

// PlaceField returns a copy of the expected spike count per bin of a neuron
func (m *SortedSpikesModel) PlaceField(neuron int) []float64 {
	return cloneFloats(m.state.PlaceFields[neuron])
}

// Coefficients returns a copy of the GLM coefficients of a neuron, nil for KDE models
func (m *SortedSpikesModel) Coefficients(neuron int) []float64 {
	if m.state.Coefficients == nil {
		return nil
	}
	return cloneFloats(m.state.Coefficients[neuron])
}

// estimateSortedSpikes evaluates the Poisson log-likelihood of spike counts
// under every bin's place fields, summed over neurons.
func estimateSortedSpikes(name string, backend Backend, env *replay.FittedEnvironment, neural NeuralData, model EncodingModel, isComputeOffset bool) (*mat.Dense, error) {
	m, ok := model.(*SortedSpikesModel)
	if !ok || m == nil || m.state.Algorithm != name {
		return nil, wrongModel(name, model)
	}
	g, err := gridOf(env)
	if err != nil {
		return nil, err
	}
	if err := checkModelBins(m, g); err != nil {
		return nil, err
	}
	nNeurons, err := checkSpikes(neural.Spikes)
	if err != nil {
		return nil, err
	}
	if nNeurons != m.NumNeurons() {
		return nil, errors.Wrapf(replay.ErrInvalidInput, "spikes have %d neurons, model has %d", nNeurons, m.NumNeurons())
	}

	release, err := backend.Acquire()
	if err != nil {
		return nil, err
	}
	defer release()

	nBins := m.state.NumBins
	totalRate := make([]float64, nBins)
	for _, field := range m.state.PlaceFields {
		floats.Add(totalRate, field)
	}

	nTime := len(neural.Spikes)
	surface := mat.NewDense(nTime, nBins, nil)
	backend.ParallelFor(nTime, func(lo, hi int) {
		for t := lo; t < hi; t++ {
			row := surface.RawRowView(t)
			offset := 0.0
			for b := range row {
				row[b] = -totalRate[b]
			}
			for n, count := range neural.Spikes[t] {
				if count == 0 {
					continue
				}
				field := m.state.PlaceFields[n]
				for b := range row {
					row[b] += xlogy(count, field[b])
				}
				if isComputeOffset {
					offset -= logFactorial(count)
				}
			}
			if offset != 0 {
				for b := range row {
					row[b] += offset
				}
			}
		}
	})
	if err := finalizeSurface(surface, g.interior); err != nil {
		return nil, err
	}
	return surface, nil
}
