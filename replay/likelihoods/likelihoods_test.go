package likelihoods

import (
	"log"
	"math"
	"testing"

	"github.com/LdDl/replay-go/internal/monitoring"
	"github.com/LdDl/replay-go/replay"
	"github.com/LdDl/replay-go/replay/simulate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

const relTolerance = 1e-6

type session struct {
	env      *replay.FittedEnvironment
	position [][]float64
	neural   NeuralData
	// decode is a short window of the same session used for estimation
	decode NeuralData
}

func linearEnvironment(t *testing.T, position [][]float64, options ...replay.EnvironmentOption) *replay.FittedEnvironment {
	t.Helper()
	options = append([]replay.EnvironmentOption{replay.WithPositionRange([][2]float64{{0, 100}})}, options...)
	env, err := replay.NewEnvironmentConfig("linear", 5, options...).FitPlaceGrid(position)
	require.NoError(t, err)
	return env
}

// newSession simulates a run on a 100 unit track with three place cells and
// two tetrodes. Marks are shifted and rounded so that integer quantization
// with unit step is exact.
func newSession(t *testing.T, options ...replay.EnvironmentOption) session {
	t.Helper()
	monitoring.SetLogger(nil)
	t.Cleanup(func() { monitoring.SetLogger(log.Printf) })

	position, err := simulate.LinearTrackRun(20000, 100, 50, simulate.DefaultSamplingFrequency)
	require.NoError(t, err)
	sim := simulate.NewSimulator(42)
	spikes, err := sim.SortedSpikes([][]float64{{20}, {50}, {80}}, position)
	require.NoError(t, err)

	multiunits := make([][][]float64, 2)
	for e, means := range [][][]float64{{{25}, {75}}, {{50}}} {
		marks, err := sim.MultiunitWithPlaceFields(means, position, 20, 4)
		require.NoError(t, err)
		for _, row := range marks {
			for m := range row {
				row[m] = math.Round(row[m] + 40)
			}
		}
		multiunits[e] = marks
	}

	window := func(lo, hi int) NeuralData {
		out := NeuralData{Spikes: spikes[lo:hi], Multiunits: make([][][]float64, len(multiunits))}
		for e := range multiunits {
			out.Multiunits[e] = multiunits[e][lo:hi]
		}
		return out
	}
	return session{
		env:      linearEnvironment(t, position, options...),
		position: position,
		neural:   NeuralData{Spikes: spikes, Multiunits: multiunits},
		decode:   window(0, 1000),
	}
}

func testParams() Params {
	params := DefaultParams()
	params.MarkStd = 5
	return params
}

func fitAndEstimate(t *testing.T, algorithm EncodingAlgorithm, s session, isComputeOffset bool) (EncodingModel, *mat.Dense) {
	t.Helper()
	model, err := algorithm.Fit(s.env, s.position, s.neural, testParams())
	require.NoError(t, err, algorithm.Name())
	surface, err := algorithm.Estimate(s.env, s.decode, model, isComputeOffset)
	require.NoError(t, err, algorithm.Name())
	return model, surface
}

func assertSurfacesClose(t *testing.T, expected, actual *mat.Dense, msg string) {
	t.Helper()
	er, ec := expected.Dims()
	ar, ac := actual.Dims()
	require.Equal(t, er, ar, msg)
	require.Equal(t, ec, ac, msg)
	for i := 0; i < er; i++ {
		for j := 0; j < ec; j++ {
			e, a := expected.At(i, j), actual.At(i, j)
			if math.IsInf(e, -1) {
				require.True(t, math.IsInf(a, -1), "%s: [%d,%d] expected -Inf, got %v", msg, i, j, a)
				continue
			}
			require.InDelta(t, 0, (a-e)/math.Max(1, math.Abs(e)), relTolerance, "%s: [%d,%d] %v vs %v", msg, i, j, e, a)
		}
	}
}

func TestRegistryNames(t *testing.T) {
	names := Names()
	assert.Equal(t, []string{
		"multiunit_likelihood",
		"multiunit_likelihood_gpu",
		"multiunit_likelihood_integer",
		"multiunit_likelihood_integer_gpu",
		"multiunit_likelihood_integer_gpu_log",
		"spiking_likelihood_glm",
		"spiking_likelihood_kde",
		"spiking_likelihood_kde_gpu",
	}, names)
	assert.Equal(t, []string{"spiking_likelihood_glm", "spiking_likelihood_kde", "spiking_likelihood_kde_gpu"}, SortedSpikesAlgorithms())
	assert.Len(t, ClusterlessAlgorithms(), 5)

	// Returned slices are copies
	names[0] = "changed"
	assert.Equal(t, "multiunit_likelihood", Names()[0])

	for _, name := range Names() {
		algorithm, err := Lookup(name)
		require.NoError(t, err)
		assert.Equal(t, name, algorithm.Name())
	}
}

func TestLookupUnknownAlgorithm(t *testing.T) {
	_, err := Lookup("nonexistent_algorithm")
	assert.ErrorIs(t, err, replay.ErrUnknownAlgorithm)
}

func TestEveryAlgorithmProducesSurface(t *testing.T) {
	mask := make([]bool, 20)
	for b := range mask {
		mask[b] = b != 0 && b != 19
	}
	s := newSession(t, replay.WithTrackInterior(mask))
	for _, name := range Names() {
		algorithm, err := Lookup(name)
		require.NoError(t, err)
		model, surface := fitAndEstimate(t, algorithm, s, false)
		assert.Equal(t, name, model.Algorithm())
		assert.Equal(t, 20, model.NumBins())
		rows, cols := surface.Dims()
		require.Equal(t, 1000, rows, name)
		require.Equal(t, 20, cols, name)
		for i := 0; i < rows; i++ {
			for b := 0; b < cols; b++ {
				v := surface.At(i, b)
				if !mask[b] {
					require.True(t, math.IsInf(v, -1), "%s: bin %d outside the interior is %v", name, b, v)
					continue
				}
				require.False(t, math.IsNaN(v) || math.IsInf(v, 0), "%s: [%d,%d] is %v", name, i, b, v)
			}
		}
	}
}

func TestMultiunitVariantsAgree(t *testing.T) {
	s := newSession(t)
	_, reference := fitAndEstimate(t, NewMultiunitKDE("float", CPUBackend{}), s, true)
	variants := []EncodingAlgorithm{
		NewMultiunitKDE("float_accelerated", NewAcceleratedBackend(4)),
		NewMultiunitIntegerKDE("integer", CPUBackend{}),
		NewMultiunitIntegerKDE("integer_accelerated", NewAcceleratedBackend(4)),
		NewMultiunitLogKDE("log", NewAcceleratedBackend(4)),
		NewMultiunitLogKDE("log_cpu", CPUBackend{}),
	}
	for _, variant := range variants {
		_, surface := fitAndEstimate(t, variant, s, true)
		assertSurfacesClose(t, reference, surface, variant.Name())
	}
}

func TestBackendsAreBitIdentical(t *testing.T) {
	s := newSession(t)
	pairs := [][2]EncodingAlgorithm{
		{NewSpikingKDE("kde", CPUBackend{}), NewSpikingKDE("kde", NewAcceleratedBackend(3))},
		{NewSpikingGLM("glm", CPUBackend{}), NewSpikingGLM("glm", NewAcceleratedBackend(3))},
		{NewMultiunitIntegerKDE("integer", CPUBackend{}), NewMultiunitIntegerKDE("integer", NewAcceleratedBackend(3))},
	}
	for _, pair := range pairs {
		cpuModel, cpuSurface := fitAndEstimate(t, pair[0], s, true)
		_, accSurface := fitAndEstimate(t, pair[1], s, true)
		assert.True(t, mat.Equal(cpuSurface, accSurface), pair[0].Name())

		// A model fitted on one backend estimates identically on the other
		crossSurface, err := pair[1].Estimate(s.env, s.decode, cpuModel, true)
		require.NoError(t, err)
		assert.True(t, mat.Equal(cpuSurface, crossSurface), pair[0].Name())
	}
}

func TestZeroSpikeNeuron(t *testing.T) {
	s := newSession(t)
	for t0 := range s.neural.Spikes {
		s.neural.Spikes[t0] = []float64{s.neural.Spikes[t0][0], 0}
	}
	for _, algorithm := range []EncodingAlgorithm{NewSpikingKDE("kde", CPUBackend{}), NewSpikingGLM("glm", CPUBackend{})} {
		model, err := algorithm.Fit(s.env, s.position, NeuralData{Spikes: s.neural.Spikes}, testParams())
		require.NoError(t, err)
		m := model.(*SortedSpikesModel)
		require.Equal(t, 2, m.NumNeurons())
		for b, rate := range m.PlaceField(1) {
			assert.Equal(t, floorIntensity, rate, "%s bin %d", algorithm.Name(), b)
		}
		for _, rate := range m.PlaceField(0) {
			assert.Greater(t, rate, 0.0)
		}

		// Decode a window in which the silent neuron fires
		silent := NeuralData{Spikes: make([][]float64, 200)}
		firing := NeuralData{Spikes: make([][]float64, 200)}
		for t0 := range firing.Spikes {
			count := float64(t0 % 3)
			silent.Spikes[t0] = []float64{s.neural.Spikes[t0][0], 0}
			firing.Spikes[t0] = []float64{s.neural.Spikes[t0][0], count}
		}
		base, err := algorithm.Estimate(s.env, silent, model, false)
		require.NoError(t, err)
		surface, err := algorithm.Estimate(s.env, firing, model, false)
		require.NoError(t, err)
		rows, cols := surface.Dims()
		for t0 := 0; t0 < rows; t0++ {
			want := firing.Spikes[t0][1] * math.Log(floorIntensity)
			for b := 0; b < cols; b++ {
				v := surface.At(t0, b)
				if math.IsInf(base.At(t0, b), -1) {
					assert.True(t, math.IsInf(v, -1))
					continue
				}
				require.False(t, math.IsNaN(v) || math.IsInf(v, 0), "%s [%d,%d] is %v", algorithm.Name(), t0, b, v)
				assert.InDelta(t, want, v-base.At(t0, b), 1e-6, "%s [%d,%d]", algorithm.Name(), t0, b)
			}
		}
	}
}

func TestPlaceFieldsPeakAtFieldCenter(t *testing.T) {
	s := newSession(t)
	geometry, err := s.env.Geometry()
	require.NoError(t, err)
	centers := geometry.Centers()
	for _, algorithm := range []EncodingAlgorithm{NewSpikingKDE("kde", CPUBackend{}), NewSpikingGLM("glm", CPUBackend{})} {
		model, err := algorithm.Fit(s.env, s.position, s.neural, testParams())
		require.NoError(t, err)
		m := model.(*SortedSpikesModel)
		for n, mean := range []float64{20, 50, 80} {
			field := m.PlaceField(n)
			peak := 0
			for b := range field {
				if field[b] > field[peak] {
					peak = b
				}
			}
			assert.InDelta(t, mean, centers[peak][0], 10, "%s neuron %d", algorithm.Name(), n)
		}
	}
}

func TestOffsetIsUniformAcrossBins(t *testing.T) {
	s := newSession(t)
	for _, name := range []string{SpikingLikelihoodKDE, SpikingLikelihoodGLM, MultiunitLikelihood, MultiunitLikelihoodInteger} {
		algorithm, err := Lookup(name)
		require.NoError(t, err)
		model, err := algorithm.Fit(s.env, s.position, s.neural, testParams())
		require.NoError(t, err)
		plain, err := algorithm.Estimate(s.env, s.decode, model, false)
		require.NoError(t, err)
		withOffset, err := algorithm.Estimate(s.env, s.decode, model, true)
		require.NoError(t, err)
		rows, cols := plain.Dims()
		for i := 0; i < rows; i++ {
			shift := withOffset.At(i, 0) - plain.At(i, 0)
			assert.LessOrEqual(t, shift, 1e-12, name)
			for b := 1; b < cols; b++ {
				require.InDelta(t, shift, withOffset.At(i, b)-plain.At(i, b), 1e-9, "%s [%d,%d]", name, i, b)
			}
		}
	}
}

func TestEstimateRejectsForeignModel(t *testing.T) {
	s := newSession(t)
	kde := NewSpikingKDE("kde", CPUBackend{})
	glm := NewSpikingGLM("glm", CPUBackend{})
	multiunit := NewMultiunitKDE("multiunit", CPUBackend{})

	kdeModel, err := kde.Fit(s.env, s.position, s.neural, testParams())
	require.NoError(t, err)
	_, err = glm.Estimate(s.env, s.decode, kdeModel, false)
	assert.ErrorIs(t, err, replay.ErrInvalidInput)
	_, err = multiunit.Estimate(s.env, s.decode, kdeModel, false)
	assert.ErrorIs(t, err, replay.ErrInvalidInput)
	_, err = kde.Estimate(s.env, s.decode, nil, false)
	assert.ErrorIs(t, err, replay.ErrInvalidInput)

	// Same algorithm, grid of a different size
	other, err := replay.NewEnvironmentConfig("coarse", 10, replay.WithPositionRange([][2]float64{{0, 100}})).FitPlaceGrid(s.position)
	require.NoError(t, err)
	_, err = kde.Estimate(other, s.decode, kdeModel, false)
	assert.ErrorIs(t, err, replay.ErrInvalidInput)

	// Neuron count differs from training
	short := NeuralData{Spikes: [][]float64{{1, 0}}}
	_, err = kde.Estimate(s.env, short, kdeModel, false)
	assert.ErrorIs(t, err, replay.ErrInvalidInput)
}

func TestFitInputErrors(t *testing.T) {
	s := newSession(t)
	kde := NewSpikingKDE("kde", CPUBackend{})

	_, err := kde.Fit(&replay.FittedEnvironment{}, s.position, s.neural, testParams())
	assert.ErrorIs(t, err, replay.ErrNotFitted)

	_, err = kde.Fit(s.env, s.position[:10], s.neural, testParams())
	assert.ErrorIs(t, err, replay.ErrInvalidInput)

	nanPosition := make([][]float64, len(s.position))
	for i := range nanPosition {
		nanPosition[i] = []float64{math.NaN()}
	}
	_, err = kde.Fit(s.env, nanPosition, s.neural, testParams())
	assert.ErrorIs(t, err, replay.ErrInvalidInput)

	params := testParams()
	params.PositionStd = 0
	_, err = kde.Fit(s.env, s.position, s.neural, params)
	assert.ErrorIs(t, err, replay.ErrConfiguration)

	params = testParams()
	params.MaxMarkValue = 0
	_, err = NewMultiunitIntegerKDE("integer", CPUBackend{}).Fit(s.env, s.position, s.neural, params)
	assert.ErrorIs(t, err, replay.ErrConfiguration)

	broken := NeuralData{Multiunits: [][][]float64{make([][]float64, len(s.position))}}
	for i := range broken.Multiunits[0] {
		broken.Multiunits[0][i] = []float64{math.NaN(), math.NaN()}
	}
	broken.Multiunits[0][5] = []float64{1, math.NaN()}
	_, err = NewMultiunitKDE("multiunit", CPUBackend{}).Fit(s.env, s.position, broken, testParams())
	assert.ErrorIs(t, err, replay.ErrInvalidInput)
}

func TestTrainingDropsNonFinitePosition(t *testing.T) {
	s := newSession(t)
	kde := NewSpikingKDE("kde", CPUBackend{})
	reference, err := kde.Fit(s.env, s.position, s.neural, testParams())
	require.NoError(t, err)

	// Appending samples with missing position and arbitrary spikes changes nothing
	position := append(append([][]float64{}, s.position...), []float64{math.NaN()}, []float64{math.Inf(1)})
	spikes := append(append([][]float64{}, s.neural.Spikes...), []float64{1, 1, 1}, []float64{1, 1, 1})
	model, err := kde.Fit(s.env, position, NeuralData{Spikes: spikes}, testParams())
	require.NoError(t, err)
	for n := 0; n < 3; n++ {
		assert.Equal(t, reference.(*SortedSpikesModel).PlaceField(n), model.(*SortedSpikesModel).PlaceField(n))
	}
}

func TestAcceleratedVariantUnavailable(t *testing.T) {
	s := newSession(t)
	t.Setenv(AcceleratorEnv, "off")
	algorithm := NewSpikingKDE(SpikingLikelihoodKDEGPU, NewDefaultAcceleratedBackend())
	_, err := algorithm.Fit(s.env, s.position, s.neural, testParams())
	assert.ErrorIs(t, err, replay.ErrDeviceUnavailable)

	model, err := NewSpikingKDE(SpikingLikelihoodKDEGPU, CPUBackend{}).Fit(s.env, s.position, s.neural, testParams())
	require.NoError(t, err)
	_, err = algorithm.Estimate(s.env, s.decode, model, false)
	assert.ErrorIs(t, err, replay.ErrDeviceUnavailable)
}

func TestModelSerializationRoundTrip(t *testing.T) {
	s := newSession(t)
	for _, name := range []string{SpikingLikelihoodGLM, SpikingLikelihoodKDE, MultiunitLikelihood, MultiunitLikelihoodIntegerGPULogSpace} {
		algorithm, err := Lookup(name)
		require.NoError(t, err)
		model, surface := fitAndEstimate(t, algorithm, s, true)

		data, err := MarshalModel(model)
		require.NoError(t, err)
		restored, err := UnmarshalModel(data)
		require.NoError(t, err)
		assert.Equal(t, model.ID(), restored.ID())
		assert.Equal(t, model.Algorithm(), restored.Algorithm())
		assert.Equal(t, model.NumBins(), restored.NumBins())

		restoredSurface, err := algorithm.Estimate(s.env, s.decode, restored, true)
		require.NoError(t, err)
		assert.True(t, mat.Equal(surface, restoredSurface), name)
	}
}

func TestUnmarshalModelErrors(t *testing.T) {
	_, err := UnmarshalModel([]byte{0xff, 0x00})
	assert.ErrorIs(t, err, replay.ErrInvalidInput)

	model := &SortedSpikesModel{state: sortedSpikesState{Algorithm: "not_registered", NumBins: 1, PlaceFields: [][]float64{{1}}}}
	data, err := MarshalModel(model)
	require.NoError(t, err)
	_, err = UnmarshalModel(data)
	assert.ErrorIs(t, err, replay.ErrUnknownAlgorithm)

	model.state.Algorithm = SpikingLikelihoodKDE
	model.state.PlaceFields = [][]float64{{0}}
	data, err = MarshalModel(model)
	require.NoError(t, err)
	_, err = UnmarshalModel(data)
	assert.ErrorIs(t, err, replay.ErrInvalidInput)
}
