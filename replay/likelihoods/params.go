package likelihoods

import (
	"github.com/LdDl/replay-go/replay"
	"github.com/pkg/errors"
)

// Params holds the tuning of every algorithm. Each algorithm reads only the
// fields it needs.
type Params struct {
	// PositionStd is the Gaussian kernel bandwidth over position (KDE algorithms)
	PositionStd float64 `json:"position_std"`
	// MarkStd is the Gaussian kernel bandwidth over mark features (clusterless)
	MarkStd float64 `json:"mark_std"`
	// Penalty is the ridge penalty of the GLM, not applied to the intercept
	Penalty float64 `json:"penalty"`
	// KnotSpacing is the distance between spline knots of the GLM
	KnotSpacing float64 `json:"knot_spacing"`
	// MarkStep is the width of one integer mark level (integer algorithms)
	MarkStep float64 `json:"mark_step"`
	// MarkOffset is the mark value mapped to integer level 0 (integer algorithms)
	MarkOffset float64 `json:"mark_offset"`
	// MaxMarkValue is the highest integer mark level, larger marks are clipped
	MaxMarkValue int32 `json:"max_mark_value"`
}

// DefaultParams returns the defaults used by the reference decoders
func DefaultParams() Params {
	return Params{
		PositionStd:  6.0,
		MarkStd:      24.0,
		Penalty:      1e-1,
		KnotSpacing:  10,
		MarkStep:     1.0,
		MarkOffset:   0.0,
		MaxMarkValue: 6000,
	}
}

func positive(name string, v float64) error {
	if !(v > 0) {
		return errors.Wrapf(replay.ErrConfiguration, "%s must be positive, got %v", name, v)
	}
	return nil
}

func (p Params) validateKDE() error {
	return positive("position_std", p.PositionStd)
}

func (p Params) validateClusterless(quantized bool) error {
	if err := positive("position_std", p.PositionStd); err != nil {
		return err
	}
	if err := positive("mark_std", p.MarkStd); err != nil {
		return err
	}
	if !quantized {
		return nil
	}
	if err := positive("mark_step", p.MarkStep); err != nil {
		return err
	}
	if p.MaxMarkValue <= 0 {
		return errors.Wrapf(replay.ErrConfiguration, "max_mark_value must be positive, got %d", p.MaxMarkValue)
	}
	return nil
}

func (p Params) validateGLM() error {
	if err := positive("knot_spacing", p.KnotSpacing); err != nil {
		return err
	}
	if p.Penalty < 0 {
		return errors.Wrapf(replay.ErrConfiguration, "penalty must not be negative, got %v", p.Penalty)
	}
	return nil
}
