package replay

import (
	kalman_filter "github.com/LdDl/kalman-filter"
	"github.com/pkg/errors"
)

// PositionCleaner smooths tracked position with a 2-D Kalman filter and
// bridges short runs of non-finite samples (tracking dropouts) with the
// filter's prediction. 1-D positions are filtered on the X axis.
type PositionCleaner struct {
	// Time between samples, seconds
	dt float64
	// Process noise (acceleration) standard deviation
	stdDevA float64
	// Measurement noise standard deviation, same units as position
	stdDevM float64
	// Longest run of missing samples bridged by prediction. Longer runs stay NaN.
	maxGap int
}

// NewPositionCleanerDefault creates a cleaner for the given sampling interval
func NewPositionCleanerDefault(dt float64) *PositionCleaner {
	return &PositionCleaner{
		dt:      dt,
		stdDevA: 2.0,
		stdDevM: 0.1,
		maxGap:  15,
	}
}

// NewPositionCleaner creates a cleaner with explicit filter parameters
func NewPositionCleaner(dt, stdDevA, stdDevM float64, maxGap int) *PositionCleaner {
	return &PositionCleaner{
		dt:      dt,
		stdDevA: stdDevA,
		stdDevM: stdDevM,
		maxGap:  maxGap,
	}
}

func (pc *PositionCleaner) newFilter(x, y float64) *kalman_filter.Kalman2D {
	/* Kalman filter props */
	ux := 0.0
	uy := 0.0
	return kalman_filter.NewKalman2D(pc.dt, ux, uy, pc.stdDevA, pc.stdDevM, pc.stdDevM, kalman_filter.WithState2D(x, y))
}

// Clean returns a smoothed copy of position (n_time x 1 or n_time x 2).
// Samples before the first finite one, and gaps longer than maxGap, stay NaN.
func (pc *PositionCleaner) Clean(position [][]float64) ([][]float64, error) {
	if !(pc.dt > 0) {
		return nil, errors.Wrapf(ErrConfiguration, "sampling interval must be positive, got %v", pc.dt)
	}
	if len(position) == 0 {
		return nil, errors.Wrap(ErrInvalidInput, "position is empty")
	}
	nDims := len(position[0])
	if nDims != 1 && nDims != 2 {
		return nil, errors.Wrapf(ErrInvalidInput, "position cleaning supports 1 or 2 dimensions, got %d", nDims)
	}

	cleaned := make([][]float64, len(position))
	var kf *kalman_filter.Kalman2D
	gap := 0
	pending := make([]int, 0)
	for t, row := range position {
		if len(row) != nDims {
			return nil, errors.Wrapf(ErrInvalidInput, "sample %d has %d coordinates, expected %d", t, len(row), nDims)
		}
		cleaned[t] = make([]float64, nDims)
		x, y := row[0], 0.0
		if nDims == 2 {
			y = row[1]
		}
		if !IsFiniteRow(row) {
			for d := range cleaned[t] {
				cleaned[t][d] = nanValue
			}
			if kf == nil {
				continue
			}
			gap++
			if gap > pc.maxGap {
				// Too long to bridge: drop the predictions made so far and
				// restart the filter at the next good sample
				for _, p := range pending {
					for d := range cleaned[p] {
						cleaned[p][d] = nanValue
					}
				}
				kf = nil
				pending = pending[:0]
				continue
			}
			kf.Predict()
			pending = append(pending, t)
			px, py := kf.GetState()
			cleaned[t][0] = px
			if nDims == 2 {
				cleaned[t][1] = py
			}
			continue
		}
		if kf == nil {
			kf = pc.newFilter(x, y)
		} else {
			kf.Predict()
			if err := kf.Update(x, y); err != nil {
				return nil, errors.Wrapf(err, "can't update position filter at sample %d", t)
			}
		}
		gap = 0
		pending = pending[:0]
		sx, sy := kf.GetState()
		cleaned[t][0] = sx
		if nDims == 2 {
			cleaned[t][1] = sy
		}
	}
	// A trailing gap has no sample to anchor it: leave it missing
	for _, t := range pending {
		for d := range cleaned[t] {
			cleaned[t][d] = nanValue
		}
	}
	return cleaned, nil
}
