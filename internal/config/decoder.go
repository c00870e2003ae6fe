package config

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/LdDl/replay-go/replay"
	"github.com/LdDl/replay-go/replay/likelihoods"
	"github.com/pkg/errors"
)

// DecoderConfig is the JSON configuration of a decoding session: the
// environment, the likelihood algorithm with its tuning, and the parameters
// of simulated sessions. Omitted fields fall back to the defaults returned by
// the Get* methods, so partial files are valid.
type DecoderConfig struct {
	// Environment
	EnvironmentName    *string      `json:"environment_name,omitempty"`
	PlaceBinSize       *float64     `json:"place_bin_size,omitempty"`
	PositionRange      [][2]float64 `json:"position_range,omitempty"`
	InferTrackInterior *bool        `json:"infer_track_interior,omitempty"`

	// Likelihood
	Algorithm    *string  `json:"algorithm,omitempty"`
	PositionStd  *float64 `json:"position_std,omitempty"`
	MarkStd      *float64 `json:"mark_std,omitempty"`
	Penalty      *float64 `json:"penalty,omitempty"`
	KnotSpacing  *float64 `json:"knot_spacing,omitempty"`
	MarkStep     *float64 `json:"mark_step,omitempty"`
	MarkOffset   *float64 `json:"mark_offset,omitempty"`
	MaxMarkValue *int32   `json:"max_mark_value,omitempty"`

	// Simulation
	SamplingFrequency *float64    `json:"sampling_frequency,omitempty"`
	TrackLength       *float64    `json:"track_length,omitempty"`
	RunningSpeed      *float64    `json:"running_speed,omitempty"`
	PlaceFieldCenters []float64   `json:"place_field_centers,omitempty"`
	Electrodes        [][]float64 `json:"electrodes,omitempty"` // place field centers per electrode
}

// LoadDecoderConfig loads a DecoderConfig from a JSON file
func LoadDecoderConfig(path string) (*DecoderConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, errors.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to stat config file")
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, errors.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}

	cfg := &DecoderConfig{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config JSON")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	return cfg, nil
}

// Validate checks the values that are set. Errors wrap replay.ErrConfiguration
// or replay.ErrUnknownAlgorithm.
func (c *DecoderConfig) Validate() error {
	if c.PlaceBinSize != nil && !(*c.PlaceBinSize > 0) {
		return errors.Wrapf(replay.ErrConfiguration, "place_bin_size must be positive, got %v", *c.PlaceBinSize)
	}
	for d, r := range c.PositionRange {
		if !(r[0] < r[1]) {
			return errors.Wrapf(replay.ErrConfiguration, "position_range[%d] must be increasing, got [%v, %v]", d, r[0], r[1])
		}
	}
	if c.Algorithm != nil {
		if _, err := likelihoods.Lookup(*c.Algorithm); err != nil {
			return err
		}
	}
	positives := map[string]*float64{
		"position_std":       c.PositionStd,
		"mark_std":           c.MarkStd,
		"knot_spacing":       c.KnotSpacing,
		"mark_step":          c.MarkStep,
		"sampling_frequency": c.SamplingFrequency,
		"track_length":       c.TrackLength,
		"running_speed":      c.RunningSpeed,
	}
	for name, v := range positives {
		if v != nil && !(*v > 0) {
			return errors.Wrapf(replay.ErrConfiguration, "%s must be positive, got %v", name, *v)
		}
	}
	if c.Penalty != nil && *c.Penalty < 0 {
		return errors.Wrapf(replay.ErrConfiguration, "penalty must not be negative, got %v", *c.Penalty)
	}
	if c.MaxMarkValue != nil && *c.MaxMarkValue <= 0 {
		return errors.Wrapf(replay.ErrConfiguration, "max_mark_value must be positive, got %d", *c.MaxMarkValue)
	}
	return nil
}

// GetEnvironmentName returns the environment name or the default.
func (c *DecoderConfig) GetEnvironmentName() string {
	if c.EnvironmentName == nil {
		return "linear_track" // default
	}
	return *c.EnvironmentName
}

// GetPlaceBinSize returns the place_bin_size value or the default.
func (c *DecoderConfig) GetPlaceBinSize() float64 {
	if c.PlaceBinSize == nil {
		return 2.0 // default
	}
	return *c.PlaceBinSize
}

// GetInferTrackInterior returns the infer_track_interior value or the default.
func (c *DecoderConfig) GetInferTrackInterior() bool {
	if c.InferTrackInterior == nil {
		return true // default
	}
	return *c.InferTrackInterior
}

// GetAlgorithm returns the algorithm name or the default.
func (c *DecoderConfig) GetAlgorithm() string {
	if c.Algorithm == nil {
		return likelihoods.SpikingLikelihoodKDE // default
	}
	return *c.Algorithm
}

// GetSamplingFrequency returns the sampling_frequency value or the default.
func (c *DecoderConfig) GetSamplingFrequency() float64 {
	if c.SamplingFrequency == nil {
		return 500 // default
	}
	return *c.SamplingFrequency
}

// GetTrackLength returns the track_length value or the default.
func (c *DecoderConfig) GetTrackLength() float64 {
	if c.TrackLength == nil {
		return 180 // default
	}
	return *c.TrackLength
}

// GetRunningSpeed returns the running_speed value or the default.
func (c *DecoderConfig) GetRunningSpeed() float64 {
	if c.RunningSpeed == nil {
		return 50 // default
	}
	return *c.RunningSpeed
}

// GetPlaceFieldCenters returns the sorted-spike place field centers or
// centers spread evenly along the track.
func (c *DecoderConfig) GetPlaceFieldCenters() []float64 {
	if len(c.PlaceFieldCenters) > 0 {
		return c.PlaceFieldCenters
	}
	length := c.GetTrackLength()
	centers := make([]float64, 0, 8)
	for i := 1; i <= 8; i++ {
		centers = append(centers, length*float64(i)/9)
	}
	return centers
}

// GetElectrodes returns the place field centers of the neurons recorded on
// every electrode, or two electrodes splitting the sorted-spike centers.
func (c *DecoderConfig) GetElectrodes() [][]float64 {
	if len(c.Electrodes) > 0 {
		return c.Electrodes
	}
	centers := c.GetPlaceFieldCenters()
	electrodes := make([][]float64, 2)
	for i, center := range centers {
		electrodes[i%2] = append(electrodes[i%2], center)
	}
	return electrodes
}

// GetParams returns the algorithm tuning, defaults filled in
func (c *DecoderConfig) GetParams() likelihoods.Params {
	params := likelihoods.DefaultParams()
	if c.PositionStd != nil {
		params.PositionStd = *c.PositionStd
	}
	if c.MarkStd != nil {
		params.MarkStd = *c.MarkStd
	}
	if c.Penalty != nil {
		params.Penalty = *c.Penalty
	}
	if c.KnotSpacing != nil {
		params.KnotSpacing = *c.KnotSpacing
	}
	if c.MarkStep != nil {
		params.MarkStep = *c.MarkStep
	}
	if c.MarkOffset != nil {
		params.MarkOffset = *c.MarkOffset
	}
	if c.MaxMarkValue != nil {
		params.MaxMarkValue = *c.MaxMarkValue
	}
	return params
}

// Environment builds the environment configuration. Without an explicit
// position range the track length is used.
func (c *DecoderConfig) Environment() replay.EnvironmentConfig {
	positionRange := c.PositionRange
	if len(positionRange) == 0 {
		positionRange = [][2]float64{{0, c.GetTrackLength()}}
	}
	return replay.NewEnvironmentConfig(
		c.GetEnvironmentName(),
		c.GetPlaceBinSize(),
		replay.WithPositionRange(positionRange),
		replay.WithInferTrackInterior(c.GetInferTrackInterior()),
	)
}
