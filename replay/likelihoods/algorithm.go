package likelihoods

import (
	"github.com/LdDl/replay-go/replay"
	"github.com/google/uuid"
	"gonum.org/v1/gonum/mat"
)

// Family groups algorithms by the kind of neural data they consume
type Family uint8

const (
	// FamilySortedSpikes consumes spike counts of identified neurons
	FamilySortedSpikes Family = iota
	// FamilyClusterless consumes waveform marks of unsorted spikes
	FamilyClusterless
)

func (f Family) String() string {
	switch f {
	case FamilySortedSpikes:
		return "sorted_spikes"
	case FamilyClusterless:
		return "clusterless"
	default:
		return "unknown"
	}
}

// NeuralData holds the neural observations aligned with position samples.
type NeuralData struct {
	// Spikes is n_time x n_neurons spike counts. Used by sorted-spike algorithms.
	Spikes [][]float64
	// Multiunits is n_electrodes x n_time x n_marks. A row of NaN marks means
	// no spike on that electrode at that time. Used by clusterless algorithms.
	Multiunits [][][]float64
}

// EncodingModel is a fitted model. It must only be passed to the Estimate
// method of the algorithm that produced it and is never modified after Fit.
type EncodingModel interface {
	// Algorithm returns the registry name of the algorithm that fitted the model
	Algorithm() string
	// ID identifies the fitted model, e.g. in a model store
	ID() uuid.UUID
	// NumBins returns the number of position bins the model was fitted on
	NumBins() int
}

// EncodingAlgorithm is a fitter and its matching likelihood estimator
type EncodingAlgorithm interface {
	// Name returns the registry name
	Name() string
	// Family returns the kind of neural data the algorithm consumes
	Family() Family
	// Fit learns an encoding model from training position (n_time x n_dims)
	// and concurrent neural data.
	Fit(env *replay.FittedEnvironment, position [][]float64, neural NeuralData, params Params) (EncodingModel, error)
	// Estimate computes a freshly allocated (n_time x n_bins) log-likelihood
	// surface. When isComputeOffset is set the bin-independent normalizing
	// constant is included.
	Estimate(env *replay.FittedEnvironment, neural NeuralData, model EncodingModel, isComputeOffset bool) (*mat.Dense, error)
}
