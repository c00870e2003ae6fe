package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/LdDl/replay-go/replay"
	"github.com/LdDl/replay-go/replay/likelihoods"
)

func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}
	return path
}

func TestDefaults(t *testing.T) {
	cfg := &DecoderConfig{}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Empty config should be valid: %v", err)
	}
	if cfg.GetAlgorithm() != likelihoods.SpikingLikelihoodKDE {
		t.Errorf("Expected default algorithm %s, got %s", likelihoods.SpikingLikelihoodKDE, cfg.GetAlgorithm())
	}
	if cfg.GetPlaceBinSize() != 2.0 {
		t.Errorf("Expected default place bin size 2, got %v", cfg.GetPlaceBinSize())
	}
	if !cfg.GetInferTrackInterior() {
		t.Error("Expected interior inference on by default")
	}
	if cfg.GetParams() != likelihoods.DefaultParams() {
		t.Errorf("Expected default params, got %+v", cfg.GetParams())
	}
	if got := len(cfg.GetPlaceFieldCenters()); got != 8 {
		t.Errorf("Expected 8 default place fields, got %d", got)
	}
	electrodes := cfg.GetElectrodes()
	if len(electrodes) != 2 || len(electrodes[0]) != 4 || len(electrodes[1]) != 4 {
		t.Errorf("Expected two electrodes of four neurons, got %v", electrodes)
	}
	env := cfg.Environment()
	if env.Name() != "linear_track" || env.PlaceBinSize() != 2.0 || env.IsTrackGraphMode() {
		t.Errorf("Unexpected default environment %+v", env)
	}
}

func TestLoadDecoderConfig(t *testing.T) {
	path := writeConfig(t, "decoder.json", `{
  "environment_name": "w_track",
  "place_bin_size": 5,
  "position_range": [[0, 100]],
  "algorithm": "multiunit_likelihood_integer",
  "mark_std": 20,
  "max_mark_value": 300,
  "electrodes": [[10, 90], [50]]
}`)
	cfg, err := LoadDecoderConfig(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.GetEnvironmentName() != "w_track" {
		t.Errorf("Expected environment w_track, got %s", cfg.GetEnvironmentName())
	}
	if cfg.GetAlgorithm() != likelihoods.MultiunitLikelihoodInteger {
		t.Errorf("Expected integer multiunit algorithm, got %s", cfg.GetAlgorithm())
	}
	params := cfg.GetParams()
	if params.MarkStd != 20 || params.MaxMarkValue != 300 {
		t.Errorf("Expected mark_std 20 and max_mark_value 300, got %+v", params)
	}
	if params.PositionStd != likelihoods.DefaultParams().PositionStd {
		t.Errorf("Expected default position_std, got %v", params.PositionStd)
	}
	if len(cfg.GetElectrodes()) != 2 {
		t.Errorf("Expected 2 electrodes, got %v", cfg.GetElectrodes())
	}

	env, err := cfg.Environment().FitPlaceGrid([][]float64{{1}, {99}})
	if err != nil {
		t.Fatalf("Failed to fit environment: %v", err)
	}
	geometry, err := env.Geometry()
	if err != nil {
		t.Fatalf("Failed to read geometry: %v", err)
	}
	if geometry.NumBins() != 20 {
		t.Errorf("Expected 20 bins, got %d", geometry.NumBins())
	}
}

func TestLoadDecoderConfigErrors(t *testing.T) {
	if _, err := LoadDecoderConfig("/nonexistent/path/to/config.json"); err == nil {
		t.Error("Expected error when loading missing file, got nil")
	}
	if _, err := LoadDecoderConfig(writeConfig(t, "decoder.yaml", `{}`)); err == nil {
		t.Error("Expected error for a non-JSON extension, got nil")
	}
	if _, err := LoadDecoderConfig(writeConfig(t, "broken.json", `{"place_bin_size": "wide"`)); err == nil {
		t.Error("Expected error when loading invalid JSON, got nil")
	}
	_, err := LoadDecoderConfig(writeConfig(t, "unknown.json", `{"algorithm": "nonexistent_algorithm"}`))
	if !errors.Is(err, replay.ErrUnknownAlgorithm) {
		t.Errorf("Expected ErrUnknownAlgorithm, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		cfg  DecoderConfig
	}{
		{"zero bin size", DecoderConfig{PlaceBinSize: ptrFloat64(0)}},
		{"reversed range", DecoderConfig{PositionRange: [][2]float64{{10, 0}}}},
		{"negative bandwidth", DecoderConfig{PositionStd: ptrFloat64(-1)}},
		{"negative penalty", DecoderConfig{Penalty: ptrFloat64(-0.5)}},
		{"zero track", DecoderConfig{TrackLength: ptrFloat64(0)}},
		{"unknown algorithm", DecoderConfig{Algorithm: ptrString("kalman")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.cfg.Validate(); err == nil {
				t.Errorf("Expected validation error for %s", tt.name)
			}
		})
	}

	valid := DecoderConfig{Algorithm: ptrString(likelihoods.SpikingLikelihoodGLM), Penalty: ptrFloat64(0)}
	if err := valid.Validate(); err != nil {
		t.Errorf("Expected valid config, got %v", err)
	}
}
