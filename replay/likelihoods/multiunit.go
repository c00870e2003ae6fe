package likelihoods

import (
	"math"

	"github.com/LdDl/replay-go/replay"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// MarkQuantization maps float marks to integer levels:
// level = round((mark - Offset) / Step), clipped to [0, Max]
type MarkQuantization struct {
	Step   float64
	Offset float64
	Max    int32
}

func (q MarkQuantization) level(mark float64) int32 {
	v := math.Round((mark - q.Offset) / q.Step)
	if v < 0 {
		return 0
	}
	if v > float64(q.Max) {
		return q.Max
	}
	return int32(v)
}

func (q MarkQuantization) levels(marks []float64) []int32 {
	out := make([]int32, len(marks))
	for m, v := range marks {
		out[m] = q.level(v)
	}
	return out
}

// kernelTable holds exp(-0.5*(d*Step/std)^2) for every level difference d
func (q MarkQuantization) kernelTable(std float64) []float64 {
	table := make([]float64, int(q.Max)+1)
	for d := range table {
		z := float64(d) * q.Step / std
		table[d] = math.Exp(-0.5 * z * z)
	}
	return table
}

// logKernelTable is the logarithm of kernelTable
func (q MarkQuantization) logKernelTable(std float64) []float64 {
	table := make([]float64, int(q.Max)+1)
	for d := range table {
		z := float64(d) * q.Step / std
		table[d] = -0.5 * z * z
	}
	return table
}

// multiunitState is the serializable content of a MultiunitModel
type multiunitState struct {
	Algorithm string
	ID        uuid.UUID
	NumBins   int
	// Occupancy is the position density at every bin
	Occupancy []float64
	// SummedGroundIntensity is the sum over electrodes of the spike rate
	// ignoring marks, plus the floor
	SummedGroundIntensity []float64
	// MeanRates is the spike probability per time sample of every electrode
	MeanRates []float64
	NumMarks  []int
	// EncodingPositions is electrode x spike x dimension
	EncodingPositions [][][]float64
	// EncodingMarks is electrode x spike x feature. Empty when quantized.
	EncodingMarks [][][]float64
	// EncodingLevels is electrode x spike x feature. Set only when quantized.
	EncodingLevels [][][]int32
	PositionStd    float64
	MarkStd        float64
	Quantization   *MarkQuantization
}

// MultiunitModel holds the encoding spikes of every electrode
type MultiunitModel struct {
	state multiunitState
}

// Algorithm implements EncodingModel
func (m *MultiunitModel) Algorithm() string { return m.state.Algorithm }

// ID implements EncodingModel
func (m *MultiunitModel) ID() uuid.UUID { return m.state.ID }

// NumBins implements EncodingModel
func (m *MultiunitModel) NumBins() int { return m.state.NumBins }

// NumElectrodes returns the number of electrodes the model was fitted on
func (m *MultiunitModel) NumElectrodes() int { return len(m.state.MeanRates) }

// NumEncodingSpikes returns the number of training spikes kept for an electrode
func (m *MultiunitModel) NumEncodingSpikes(electrode int) int {
	return len(m.state.EncodingPositions[electrode])
}

// MeanRates returns a copy of the per-electrode mean spike rates
func (m *MultiunitModel) MeanRates() []float64 {
	return cloneFloats(m.state.MeanRates)
}

// Occupancy returns a copy of the position density per bin
func (m *MultiunitModel) Occupancy() []float64 {
	return cloneFloats(m.state.Occupancy)
}

// SummedGroundIntensity returns a copy of the mark-independent rate per bin
func (m *MultiunitModel) SummedGroundIntensity() []float64 {
	return cloneFloats(m.state.SummedGroundIntensity)
}

// Quantization returns the mark quantization of integer models
func (m *MultiunitModel) Quantization() (MarkQuantization, bool) {
	if m.state.Quantization == nil {
		return MarkQuantization{}, false
	}
	return *m.state.Quantization, true
}

// markEvaluation selects how multiunit kernels are computed
type markEvaluation uint8

const (
	markFloat markEvaluation = iota
	markInteger
	markIntegerLog
)

// MultiunitKDE is the clusterless kernel density algorithm: the joint
// density of position and mark features is estimated from training spikes.
type MultiunitKDE struct {
	name       string
	backend    Backend
	evaluation markEvaluation
}

// NewMultiunitKDE creates the float mark variant
func NewMultiunitKDE(name string, backend Backend) *MultiunitKDE {
	return &MultiunitKDE{name: name, backend: backend, evaluation: markFloat}
}

// NewMultiunitIntegerKDE creates the variant with marks quantized to int32 levels
func NewMultiunitIntegerKDE(name string, backend Backend) *MultiunitKDE {
	return &MultiunitKDE{name: name, backend: backend, evaluation: markInteger}
}

// NewMultiunitLogKDE creates the quantized variant evaluated in log space
func NewMultiunitLogKDE(name string, backend Backend) *MultiunitKDE {
	return &MultiunitKDE{name: name, backend: backend, evaluation: markIntegerLog}
}

// Name implements EncodingAlgorithm
func (a *MultiunitKDE) Name() string { return a.name }

// Family implements EncodingAlgorithm
func (a *MultiunitKDE) Family() Family { return FamilyClusterless }

func (a *MultiunitKDE) quantized() bool { return a.evaluation != markFloat }

// Fit implements EncodingAlgorithm
func (a *MultiunitKDE) Fit(env *replay.FittedEnvironment, position [][]float64, neural NeuralData, params Params) (EncodingModel, error) {
	if err := params.validateClusterless(a.quantized()); err != nil {
		return nil, err
	}
	g, err := gridOf(env)
	if err != nil {
		return nil, err
	}
	nMarks, nTime, err := checkMultiunits(neural.Multiunits)
	if err != nil {
		return nil, err
	}
	rows, err := validRows(g, position, nTime)
	if err != nil {
		return nil, err
	}
	var quantization *MarkQuantization
	if a.quantized() {
		quantization = &MarkQuantization{Step: params.MarkStep, Offset: params.MarkOffset, Max: params.MaxMarkValue}
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

	nElectrodes := len(neural.Multiunits)
	state := multiunitState{
		Algorithm:             a.name,
		ID:                    uuid.New(),
		NumBins:               len(g.centers),
		Occupancy:             occupancy,
		SummedGroundIntensity: make([]float64, len(g.centers)),
		MeanRates:             make([]float64, nElectrodes),
		NumMarks:              nMarks,
		EncodingPositions:     make([][][]float64, nElectrodes),
		PositionStd:           params.PositionStd,
		MarkStd:               params.MarkStd,
		Quantization:          quantization,
	}
	if a.quantized() {
		state.EncodingLevels = make([][][]int32, nElectrodes)
	} else {
		state.EncodingMarks = make([][][]float64, nElectrodes)
	}

	for e, electrode := range neural.Multiunits {
		isSpike, err := spikeRows(electrode, nMarks[e])
		if err != nil {
			return nil, errors.Wrapf(err, "electrode %d", e)
		}
		encPositions := make([][]float64, 0)
		encMarks := make([][]float64, 0)
		encLevels := make([][]int32, 0)
		for _, t := range rows {
			if !isSpike[t] {
				continue
			}
			encPositions = append(encPositions, cloneFloats(position[t]))
			if quantization != nil {
				encLevels = append(encLevels, quantization.levels(electrode[t]))
			} else {
				encMarks = append(encMarks, cloneFloats(electrode[t]))
			}
		}
		state.EncodingPositions[e] = encPositions
		if a.quantized() {
			state.EncodingLevels[e] = encLevels
		} else {
			state.EncodingMarks[e] = encMarks
		}
		if len(encPositions) == 0 {
			continue
		}
		meanRate := float64(len(encPositions)) / float64(len(rows))
		state.MeanRates[e] = meanRate
		marginal := positionDensity(a.backend, g.centers, g.interior, encPositions, nil, params.PositionStd)
		floats.Add(state.SummedGroundIntensity, estimateIntensity(meanRate, marginal, occupancy))
	}
	floats.AddConst(floorIntensity, state.SummedGroundIntensity)

	return &MultiunitModel{state: state}, nil
}

// Estimate implements EncodingAlgorithm
func (a *MultiunitKDE) Estimate(env *replay.FittedEnvironment, neural NeuralData, model EncodingModel, isComputeOffset bool) (*mat.Dense, error) {
	m, ok := model.(*MultiunitModel)
	if !ok || m == nil || m.state.Algorithm != a.name {
		return nil, wrongModel(a.name, model)
	}
	g, err := gridOf(env)
	if err != nil {
		return nil, err
	}
	if err := checkModelBins(m, g); err != nil {
		return nil, err
	}
	nMarks, nTime, err := checkMultiunits(neural.Multiunits)
	if err != nil {
		return nil, err
	}
	if len(nMarks) != m.NumElectrodes() {
		return nil, errors.Wrapf(replay.ErrInvalidInput, "multiunits have %d electrodes, model has %d", len(nMarks), m.NumElectrodes())
	}
	isSpike := make([][]bool, len(nMarks))
	for e, electrode := range neural.Multiunits {
		if nMarks[e] != m.state.NumMarks[e] {
			return nil, errors.Wrapf(replay.ErrInvalidInput, "electrode %d has %d mark features, model has %d", e, nMarks[e], m.state.NumMarks[e])
		}
		isSpike[e], err = spikeRows(electrode, nMarks[e])
		if err != nil {
			return nil, errors.Wrapf(err, "electrode %d", e)
		}
	}

	release, err := a.backend.Acquire()
	if err != nil {
		return nil, err
	}
	defer release()

	kernels := a.positionKernels(m, g)
	var table []float64
	switch {
	case a.evaluation == markIntegerLog:
		table = m.state.Quantization.logKernelTable(m.state.MarkStd)
	case m.state.Quantization != nil:
		table = m.state.Quantization.kernelTable(m.state.MarkStd)
	}
	markNormalizer := logGaussianNormalizer(m.state.MarkStd)

	nBins := m.state.NumBins
	surface := mat.NewDense(nTime, nBins, nil)
	a.backend.ParallelFor(nTime, func(lo, hi int) {
		markWeights := make([]float64, 0)
		terms := make([]float64, 0)
		for t := lo; t < hi; t++ {
			row := surface.RawRowView(t)
			for b := range row {
				row[b] = -m.state.SummedGroundIntensity[b]
			}
			offset := 0.0
			for e := range neural.Multiunits {
				if !isSpike[e][t] {
					continue
				}
				if isComputeOffset {
					offset += float64(nMarks[e]) * markNormalizer
				}
				nEnc := len(m.state.EncodingPositions[e])
				if nEnc == 0 {
					for b := range row {
						row[b] += logFloorIntensity
					}
					continue
				}
				markWeights = a.markWeights(m, e, neural.Multiunits[e][t], table, markWeights[:0])
				scale := m.state.MeanRates[e] / float64(nEnc)
				for b := range row {
					occ := m.state.Occupancy[b]
					if !g.interior[b] || occ == 0 {
						row[b] += logFloorIntensity
						continue
					}
					if a.evaluation == markIntegerLog {
						terms = terms[:0]
						for i, lw := range markWeights {
							terms = append(terms, lw+kernels[e][i][b])
						}
						logValue := math.Log(scale) - math.Log(occ) + floats.LogSumExp(terms)
						row[b] += logAddExp(logValue, logFloorIntensity)
						continue
					}
					sum := 0.0
					for i, w := range markWeights {
						sum += w * kernels[e][i][b]
					}
					row[b] += math.Log(scale*sum/occ + floorIntensity)
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

// positionKernels evaluates the position kernel of every encoding spike at
// every interior bin: electrode x spike x bin. The log variant keeps logs.
func (a *MultiunitKDE) positionKernels(m *MultiunitModel, g grid) [][][]float64 {
	kernels := make([][][]float64, len(m.state.EncodingPositions))
	for e, positions := range m.state.EncodingPositions {
		kernels[e] = make([][]float64, len(positions))
		a.backend.ParallelFor(len(positions), func(lo, hi int) {
			for i := lo; i < hi; i++ {
				k := make([]float64, len(g.centers))
				for b, center := range g.centers {
					if !g.interior[b] {
						continue
					}
					if a.evaluation == markIntegerLog {
						k[b] = logGaussianProduct(center, positions[i], m.state.PositionStd)
					} else {
						k[b] = gaussianProduct(center, positions[i], m.state.PositionStd)
					}
				}
				kernels[e][i] = k
			}
		})
	}
	return kernels
}

// markWeights evaluates the unnormalized mark kernel between a decoding mark
// and every encoding mark of an electrode. The log variant sums a log table.
func (a *MultiunitKDE) markWeights(m *MultiunitModel, electrode int, mark []float64, table []float64, out []float64) []float64 {
	switch a.evaluation {
	case markFloat:
		for _, enc := range m.state.EncodingMarks[electrode] {
			out = append(out, unnormalizedMarkKernel(mark, enc, m.state.MarkStd))
		}
	default:
		levels := m.state.Quantization.levels(mark)
		for _, enc := range m.state.EncodingLevels[electrode] {
			w := 1.0
			if a.evaluation == markIntegerLog {
				w = 0
			}
			for f, level := range levels {
				d := level - enc[f]
				if d < 0 {
					d = -d
				}
				if a.evaluation == markIntegerLog {
					w += table[d]
				} else {
					w *= table[d]
				}
			}
			out = append(out, w)
		}
	}
	return out
}

// logAddExp returns log(exp(x) + exp(y))
func logAddExp(x, y float64) float64 {
	if math.IsInf(x, -1) {
		return y
	}
	if x < y {
		x, y = y, x
	}
	return x + math.Log1p(math.Exp(y-x))
}
