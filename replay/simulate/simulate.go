// Package simulate generates synthetic sessions for exercising the
// likelihood algorithms: an animal running along a linear track, neurons
// with Gaussian place fields and multiunit waveform marks.
package simulate

import (
	"math"
	"math/rand/v2"

	"github.com/LdDl/replay-go/replay"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat/distuv"
)

const (
	DefaultMaxRate           = 15.0
	DefaultPlaceFieldSigma   = 10.0
	DefaultSamplingFrequency = 500.0
	DefaultMarkSpacing       = 5.0
	DefaultMarkDims          = 4
)

// Simulator draws every random quantity from one seeded source, so equal
// seeds give equal sessions.
type Simulator struct {
	src rand.Source
}

// NewSimulator creates a simulator seeded with seed
func NewSimulator(seed uint64) *Simulator {
	return &Simulator{
		src: rand.NewPCG(seed, seed^0x9e3779b97f4a7c15),
	}
}

// PoissonSpikes draws a count for every sample with mean rate/samplingFrequency
// and reports 1 where it is positive.
func (s *Simulator) PoissonSpikes(rate []float64, samplingFrequency float64) ([]float64, error) {
	if !(samplingFrequency > 0) {
		return nil, errors.Wrapf(replay.ErrConfiguration, "sampling frequency must be positive, got %v", samplingFrequency)
	}
	spikes := make([]float64, len(rate))
	for t, r := range rate {
		if !(r > 0) {
			continue
		}
		count := distuv.Poisson{Lambda: r / samplingFrequency, Src: s.src}.Rand()
		if count > 0 {
			spikes[t] = 1
		}
	}
	return spikes, nil
}

// PlaceFieldFiringRate returns the firing rate of a neuron whose field is an
// isotropic Gaussian at means with variance sigma, scaled to peak at maxRate
// over the given position. Non-finite samples get rate 0.
func PlaceFieldFiringRate(means []float64, position [][]float64, maxRate, sigma float64) ([]float64, error) {
	if !(sigma > 0) {
		return nil, errors.Wrapf(replay.ErrConfiguration, "place field variance must be positive, got %v", sigma)
	}
	if maxRate < 0 {
		return nil, errors.Wrapf(replay.ErrConfiguration, "max rate must not be negative, got %v", maxRate)
	}
	field := make([]distuv.Normal, len(means))
	for d, mu := range means {
		field[d] = distuv.Normal{Mu: mu, Sigma: math.Sqrt(sigma)}
	}
	rate := make([]float64, len(position))
	peak := 0.0
	for t, row := range position {
		if len(row) != len(means) {
			return nil, errors.Wrapf(replay.ErrInvalidInput, "position sample %d has %d dimensions, place field has %d", t, len(row), len(means))
		}
		if !replay.IsFiniteRow(row) {
			continue
		}
		p := 1.0
		for d, v := range row {
			p *= field[d].Prob(v)
		}
		rate[t] = p
		peak = math.Max(peak, p)
	}
	if peak == 0 {
		return rate, nil
	}
	for t := range rate {
		rate[t] *= maxRate / peak
	}
	return rate, nil
}

// NeuronWithPlaceField simulates the spikes of one place cell
func (s *Simulator) NeuronWithPlaceField(means []float64, position [][]float64, maxRate, sigma, samplingFrequency float64) ([]float64, error) {
	rate, err := PlaceFieldFiringRate(means, position, maxRate, sigma)
	if err != nil {
		return nil, err
	}
	return s.PoissonSpikes(rate, samplingFrequency)
}

// SortedSpikes simulates n_time x n_neurons spike indicators, one neuron per
// place field mean, with the default rate and field width.
func (s *Simulator) SortedSpikes(placeMeans [][]float64, position [][]float64) ([][]float64, error) {
	spikes := make([][]float64, len(position))
	for t := range spikes {
		spikes[t] = make([]float64, len(placeMeans))
	}
	for n, means := range placeMeans {
		train, err := s.NeuronWithPlaceField(means, position, DefaultMaxRate, DefaultPlaceFieldSigma, DefaultSamplingFrequency)
		if err != nil {
			return nil, errors.Wrapf(err, "neuron %d", n)
		}
		for t, v := range train {
			spikes[t][n] = v
		}
	}
	return spikes, nil
}

// MultiunitWithPlaceFields simulates one electrode recording a neuron per
// place field mean. Neuron i emits marks drawn around i*markSpacing on every
// feature. The result is n_time x nMarkDims with NaN rows where no neuron fired;
// when several fire at once the last one wins.
func (s *Simulator) MultiunitWithPlaceFields(placeMeans [][]float64, position [][]float64, markSpacing float64, nMarkDims int) ([][]float64, error) {
	if nMarkDims < 1 {
		return nil, errors.Wrapf(replay.ErrConfiguration, "need at least one mark dimension, got %d", nMarkDims)
	}
	marks := make([][]float64, len(position))
	for t := range marks {
		marks[t] = make([]float64, nMarkDims)
		for m := range marks[t] {
			marks[t][m] = math.NaN()
		}
	}
	for n, means := range placeMeans {
		isSpike, err := s.NeuronWithPlaceField(means, position, DefaultMaxRate, DefaultPlaceFieldSigma, DefaultSamplingFrequency)
		if err != nil {
			return nil, errors.Wrapf(err, "neuron %d", n)
		}
		mark := distuv.Normal{Mu: float64(n) * markSpacing, Sigma: 1, Src: s.src}
		for t, spike := range isSpike {
			if spike == 0 {
				continue
			}
			for m := range marks[t] {
				marks[t][m] = mark.Rand()
			}
		}
	}
	return marks, nil
}

// LinearTrackRun returns n_time x 1 positions of an animal running back and
// forth between 0 and trackLength at a constant speed (units per second).
func LinearTrackRun(nTime int, trackLength, speed, samplingFrequency float64) ([][]float64, error) {
	if nTime < 0 {
		return nil, errors.Wrapf(replay.ErrConfiguration, "time sample count must not be negative, got %d", nTime)
	}
	if !(trackLength > 0) {
		return nil, errors.Wrapf(replay.ErrConfiguration, "track length must be positive, got %v", trackLength)
	}
	if !(speed > 0) || !(samplingFrequency > 0) {
		return nil, errors.Wrapf(replay.ErrConfiguration, "run needs a positive speed and sampling rate, got %v and %v", speed, samplingFrequency)
	}
	period := 2 * trackLength
	position := make([][]float64, nTime)
	for t := range position {
		travelled := math.Mod(float64(t)*speed/samplingFrequency, period)
		if travelled > trackLength {
			travelled = period - travelled
		}
		position[t] = []float64{travelled}
	}
	return position, nil
}
