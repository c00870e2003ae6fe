// Command replay-sim simulates a recording session on a linear track, fits a
// likelihood algorithm to it and reports how well the likelihood surface
// alone locates the animal.
package main

import (
	"context"
	"flag"
	"log"
	"math"

	"github.com/LdDl/replay-go/internal/config"
	"github.com/LdDl/replay-go/internal/monitoring"
	"github.com/LdDl/replay-go/replay"
	"github.com/LdDl/replay-go/replay/likelihoods"
	"github.com/LdDl/replay-go/replay/simulate"
	"github.com/LdDl/replay-go/replay/store"
	"gonum.org/v1/gonum/mat"
)

func main() {
	configPath := flag.String("config", "", "path to a JSON decoder config (defaults are used when empty)")
	algorithmName := flag.String("algorithm", "", "likelihood algorithm, overrides the config")
	nTime := flag.Int("n-time", 20000, "number of simulated time samples")
	seed := flag.Uint64("seed", 1, "random seed of the simulation")
	out := flag.String("out", "", "write a plot of the place bin grid to this PNG/SVG path")
	dbPath := flag.String("db", "", "save the fitted model into this SQLite model store")
	flag.Parse()

	cfg := &config.DecoderConfig{}
	if *configPath != "" {
		var err error
		cfg, err = config.LoadDecoderConfig(*configPath)
		if err != nil {
			log.Fatalf("can't load config: %v", err)
		}
	}
	name := cfg.GetAlgorithm()
	if *algorithmName != "" {
		name = *algorithmName
	}
	algorithm, err := likelihoods.Lookup(name)
	if err != nil {
		log.Fatalf("%v (available: %v)", err, likelihoods.Names())
	}

	fs := cfg.GetSamplingFrequency()
	position, err := simulate.LinearTrackRun(*nTime, cfg.GetTrackLength(), cfg.GetRunningSpeed(), fs)
	if err != nil {
		log.Fatalf("can't simulate position: %v", err)
	}
	position, err = replay.NewPositionCleanerDefault(1 / fs).Clean(position)
	if err != nil {
		log.Fatalf("can't clean position: %v", err)
	}
	env, err := cfg.Environment().FitPlaceGrid(position)
	if err != nil {
		log.Fatalf("can't fit place grid: %v", err)
	}

	sim := simulate.NewSimulator(*seed)
	neural, err := simulateNeural(sim, algorithm.Family(), cfg, position)
	if err != nil {
		log.Fatalf("can't simulate neural data: %v", err)
	}

	monitoring.Logf("fitting %s on %d samples", algorithm.Name(), len(position))
	model, err := algorithm.Fit(env, position, neural, cfg.GetParams())
	if err != nil {
		log.Fatalf("can't fit %s: %v", algorithm.Name(), err)
	}
	surface, err := algorithm.Estimate(env, neural, model, true)
	if err != nil {
		log.Fatalf("can't estimate likelihood: %v", err)
	}
	rows, cols := surface.Dims()
	monitoring.Logf("likelihood surface: %d time samples x %d bins", rows, cols)

	geometry, err := env.Geometry()
	if err != nil {
		log.Fatalf("%v", err)
	}
	informative, hits := decodingHits(surface, geometry, position, 2*cfg.GetPlaceBinSize())
	if informative > 0 {
		monitoring.Logf("maximum likelihood bin within %.1f of the animal in %d of %d samples with spikes (%.1f%%)",
			2*cfg.GetPlaceBinSize(), hits, informative, 100*float64(hits)/float64(informative))
	}

	if *out != "" {
		if err := replay.PlotGrid(env, *out); err != nil {
			log.Fatalf("can't plot grid: %v", err)
		}
		monitoring.Logf("grid plot written to %s", *out)
	}
	if *dbPath != "" {
		modelStore, err := store.Open(*dbPath)
		if err != nil {
			log.Fatalf("%v", err)
		}
		defer modelStore.Close()
		info, err := modelStore.Save(context.Background(), cfg.GetEnvironmentName(), model)
		if err != nil {
			log.Fatalf("%v", err)
		}
		monitoring.Logf("model %s (%d bytes) saved to %s", info.ID, info.Size, *dbPath)
	}
}

func simulateNeural(sim *simulate.Simulator, family likelihoods.Family, cfg *config.DecoderConfig, position [][]float64) (likelihoods.NeuralData, error) {
	switch family {
	case likelihoods.FamilySortedSpikes:
		centers := cfg.GetPlaceFieldCenters()
		means := make([][]float64, len(centers))
		for i, c := range centers {
			means[i] = []float64{c}
		}
		spikes, err := sim.SortedSpikes(means, position)
		return likelihoods.NeuralData{Spikes: spikes}, err
	default:
		electrodes := cfg.GetElectrodes()
		multiunits := make([][][]float64, len(electrodes))
		for e, centers := range electrodes {
			means := make([][]float64, len(centers))
			for i, c := range centers {
				means[i] = []float64{c}
			}
			marks, err := sim.MultiunitWithPlaceFields(means, position, 4*simulate.DefaultMarkSpacing, simulate.DefaultMarkDims)
			if err != nil {
				return likelihoods.NeuralData{}, err
			}
			// Keep marks positive so integer quantization does not clip them
			for _, row := range marks {
				for m := range row {
					row[m] += 50
				}
			}
			multiunits[e] = marks
		}
		return likelihoods.NeuralData{Multiunits: multiunits}, nil
	}
}

// decodingHits counts the samples whose likelihood is not flat and, among
// them, those whose most likely bin center lies within tolerance of the
// true position.
func decodingHits(surface *mat.Dense, geometry replay.BinGeometry, position [][]float64, tolerance float64) (int, int) {
	rows, _ := surface.Dims()
	centers := geometry.Centers()
	informative, hits := 0, 0
	for t := 0; t < rows; t++ {
		row := surface.RawRowView(t)
		best, lowest := 0, math.Inf(1)
		for b, v := range row {
			if v > row[best] {
				best = b
			}
			if !math.IsInf(v, -1) && v < lowest {
				lowest = v
			}
		}
		if row[best]-lowest < 1e-9 || !replay.IsFiniteRow(position[t]) {
			continue
		}
		informative++
		if math.Abs(centers[best][0]-position[t][0]) <= tolerance {
			hits++
		}
	}
	return informative, hits
}
