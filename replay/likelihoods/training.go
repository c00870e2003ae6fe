package likelihoods

import (
	"math"

	"github.com/LdDl/replay-go/internal/monitoring"
	"github.com/LdDl/replay-go/replay"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// grid is the part of a fitted environment the kernels work on
type grid struct {
	centers  [][]float64
	interior []bool
	edges    [][]float64
	nDims    int
}

func gridOf(env *replay.FittedEnvironment) (grid, error) {
	geometry, err := env.Geometry()
	if err != nil {
		return grid{}, err
	}
	interior, err := env.IsTrackInterior()
	if err != nil {
		return grid{}, err
	}
	return grid{
		centers:  geometry.Centers(),
		interior: interior,
		edges:    geometry.Edges(),
		nDims:    geometry.NumDims(),
	}, nil
}

// validRows returns the indices of training samples whose position is finite.
// It fails when the position does not fit the grid or nothing is left.
func validRows(g grid, position [][]float64, nNeuralRows int) ([]int, error) {
	if len(position) == 0 {
		return nil, errors.Wrap(replay.ErrInvalidInput, "training position is empty")
	}
	if nNeuralRows != len(position) {
		return nil, errors.Wrapf(replay.ErrInvalidInput, "neural data has %d time samples, position has %d", nNeuralRows, len(position))
	}
	rows := make([]int, 0, len(position))
	for t, row := range position {
		if len(row) != g.nDims {
			return nil, errors.Wrapf(replay.ErrInvalidInput, "position sample %d has %d dimensions, grid has %d", t, len(row), g.nDims)
		}
		if replay.IsFiniteRow(row) {
			rows = append(rows, t)
		}
	}
	if len(rows) == 0 {
		return nil, errors.Wrap(replay.ErrInvalidInput, "no finite training position samples")
	}
	if dropped := len(position) - len(rows); dropped > 0 {
		monitoring.Logf("likelihoods: dropped %d of %d training samples with non-finite position", dropped, len(position))
	}
	return rows, nil
}

// checkSpikes validates a spike count matrix and returns the neuron count
func checkSpikes(spikes [][]float64) (int, error) {
	if len(spikes) == 0 {
		return 0, errors.Wrap(replay.ErrInvalidInput, "spikes are empty")
	}
	nNeurons := len(spikes[0])
	for t, row := range spikes {
		if len(row) != nNeurons {
			return 0, errors.Wrapf(replay.ErrInvalidInput, "spike row %d has %d neurons, expected %d", t, len(row), nNeurons)
		}
		for n, count := range row {
			if count < 0 || math.IsNaN(count) || math.IsInf(count, 0) {
				return 0, errors.Wrapf(replay.ErrInvalidInput, "spike count of neuron %d at %d is %v", n, t, count)
			}
		}
	}
	return nNeurons, nil
}

// spikeRows classifies every row of an electrode: spike when all marks are
// finite, no spike when all are NaN. Mixed rows are invalid.
func spikeRows(electrode [][]float64, nMarks int) ([]bool, error) {
	isSpike := make([]bool, len(electrode))
	for t, row := range electrode {
		if len(row) != nMarks {
			return nil, errors.Wrapf(replay.ErrInvalidInput, "mark row %d has %d features, expected %d", t, len(row), nMarks)
		}
		nNaN := 0
		for _, v := range row {
			if math.IsNaN(v) {
				nNaN++
			} else if math.IsInf(v, 0) {
				return nil, errors.Wrapf(replay.ErrInvalidInput, "mark row %d holds an infinite feature", t)
			}
		}
		switch nNaN {
		case 0:
			isSpike[t] = true
		case nMarks:
		default:
			return nil, errors.Wrapf(replay.ErrInvalidInput, "mark row %d is partially NaN", t)
		}
	}
	return isSpike, nil
}

// checkMultiunits validates clusterless data and returns the mark count per
// electrode and the number of time samples.
func checkMultiunits(multiunits [][][]float64) ([]int, int, error) {
	if len(multiunits) == 0 {
		return nil, 0, errors.Wrap(replay.ErrInvalidInput, "multiunits are empty")
	}
	nTime := len(multiunits[0])
	nMarks := make([]int, len(multiunits))
	for e, electrode := range multiunits {
		if len(electrode) != nTime {
			return nil, 0, errors.Wrapf(replay.ErrInvalidInput, "electrode %d has %d time samples, expected %d", e, len(electrode), nTime)
		}
		if nTime == 0 {
			return nil, 0, errors.Wrap(replay.ErrInvalidInput, "multiunits have no time samples")
		}
		nMarks[e] = len(electrode[0])
		if nMarks[e] == 0 {
			return nil, 0, errors.Wrapf(replay.ErrInvalidInput, "electrode %d has no mark features", e)
		}
	}
	return nMarks, nTime, nil
}

// finalizeSurface forces non-interior bins to -Inf and rejects NaN or +Inf
func finalizeSurface(surface *mat.Dense, interior []bool) error {
	rows, cols := surface.Dims()
	negInf := math.Inf(-1)
	for t := 0; t < rows; t++ {
		row := surface.RawRowView(t)
		for b := 0; b < cols; b++ {
			if !interior[b] {
				row[b] = negInf
				continue
			}
			if math.IsNaN(row[b]) || math.IsInf(row[b], 1) {
				return errors.Wrapf(replay.ErrNumericOverflow, "log-likelihood at time %d, bin %d is %v", t, b, row[b])
			}
		}
	}
	return nil
}

// checkModelBins ensures a model was fitted on a grid of the same size
func checkModelBins(model EncodingModel, g grid) error {
	if model.NumBins() != len(g.centers) {
		return errors.Wrapf(replay.ErrInvalidInput, "model %s was fitted on %d bins, environment has %d", model.ID(), model.NumBins(), len(g.centers))
	}
	return nil
}

func wrongModel(algorithm string, model EncodingModel) error {
	if model == nil {
		return errors.Wrapf(replay.ErrInvalidInput, "%s got a nil model", algorithm)
	}
	return errors.Wrapf(replay.ErrInvalidInput, "%s can't estimate with a model fitted by %s", algorithm, model.Algorithm())
}

func isFiniteValue(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func cloneFloats(values []float64) []float64 {
	out := make([]float64, len(values))
	copy(out, values)
	return out
}
