package replay

import (
	"math"

	"github.com/pkg/errors"
)

// freeGridEdges computes regular bin edges per dimension that cover either
// the explicit position range or the observed extent of the samples.
func freeGridEdges(position [][]float64, binSize float64, positionRange [][2]float64, padForInterior bool) ([][]float64, error) {
	nDims := 0
	switch {
	case len(positionRange) > 0:
		nDims = len(positionRange)
	case len(position) > 0:
		nDims = len(position[0])
	default:
		return nil, errors.Wrap(ErrConfiguration, "neither position samples nor position range given")
	}
	if nDims == 0 {
		return nil, errors.Wrap(ErrConfiguration, "position has zero dimensions")
	}

	lower := make([]float64, nDims)
	upper := make([]float64, nDims)
	if len(positionRange) > 0 {
		for d, r := range positionRange {
			if !isFinite(r[0]) || !isFinite(r[1]) || r[1] < r[0] {
				return nil, errors.Wrapf(ErrConfiguration, "position range of dimension %d is [%v, %v]", d, r[0], r[1])
			}
			lower[d], upper[d] = r[0], r[1]
		}
		for t, row := range position {
			if len(row) != nDims {
				return nil, errors.Wrapf(ErrInvalidInput, "sample %d has %d dimensions, position range has %d", t, len(row), nDims)
			}
		}
	} else {
		for d := range lower {
			lower[d] = math.Inf(1)
			upper[d] = math.Inf(-1)
		}
		nValid := 0
		for _, row := range position {
			if len(row) != nDims {
				return nil, errors.Wrapf(ErrInvalidInput, "position rows have %d and %d dimensions", nDims, len(row))
			}
			if !IsFiniteRow(row) {
				continue
			}
			nValid++
			for d, v := range row {
				lower[d] = minFloat64(lower[d], v)
				upper[d] = maxFloat64(upper[d], v)
			}
		}
		if nValid == 0 {
			return nil, errors.Wrap(ErrConfiguration, "position has no finite samples to derive a range from")
		}
	}

	edges := make([][]float64, nDims)
	for d := range edges {
		lo, hi := lower[d], upper[d]
		if hi == lo {
			lo -= 0.5 * binSize
			hi += 0.5 * binSize
		}
		edges[d] = linspace(lo, hi, binCount(hi-lo, binSize)+1)
		if padForInterior && nDims > 1 {
			step := edges[d][1] - edges[d][0]
			padded := make([]float64, 0, len(edges[d])+2)
			padded = append(padded, edges[d][0]-step)
			padded = append(padded, edges[d]...)
			padded = append(padded, edges[d][len(edges[d])-1]+step)
			edges[d] = padded
		}
	}
	return edges, nil
}
