package replay

import (
	"github.com/pkg/errors"
)

// BinGeometry is the ordered set of position bins of a fitted environment.
// Centers are stored row-major: the first dimension varies slowest.
//
// BinGeometry is immutable once built. Accessors hand out copies.
type BinGeometry struct {
	edges   [][]float64
	centers [][]float64
	shape   []int
}

func newBinGeometry(edges [][]float64) (BinGeometry, error) {
	if len(edges) == 0 {
		return BinGeometry{}, errors.Wrap(ErrConfiguration, "no dimensions to bin")
	}
	shape := make([]int, len(edges))
	axisCenters := make([][]float64, len(edges))
	for d, edge := range edges {
		if len(edge) < 2 {
			return BinGeometry{}, errors.Wrapf(ErrConfiguration, "dimension %d has %d edges, need at least 2", d, len(edge))
		}
		shape[d] = len(edge) - 1
		axisCenters[d] = midpoints(edge)
	}
	nBins := product(shape)
	centers := make([][]float64, nBins)
	index := make([]int, len(shape))
	for i := 0; i < nBins; i++ {
		center := make([]float64, len(shape))
		for d := range shape {
			center[d] = axisCenters[d][index[d]]
		}
		centers[i] = center
		// Advance the multi-index, last dimension fastest
		for d := len(shape) - 1; d >= 0; d-- {
			index[d]++
			if index[d] < shape[d] {
				break
			}
			index[d] = 0
		}
	}
	ownEdges := make([][]float64, len(edges))
	for d := range edges {
		ownEdges[d] = copyFloats(edges[d])
	}
	return BinGeometry{
		edges:   ownEdges,
		centers: centers,
		shape:   shape,
	}, nil
}

// NumBins returns the total number of bins
func (g BinGeometry) NumBins() int {
	return len(g.centers)
}

// NumDims returns the number of position dimensions
func (g BinGeometry) NumDims() int {
	return len(g.shape)
}

// Shape returns the bin count per dimension
func (g BinGeometry) Shape() []int {
	out := make([]int, len(g.shape))
	copy(out, g.shape)
	return out
}

// Edges returns the bin edges per dimension
func (g BinGeometry) Edges() [][]float64 {
	out := make([][]float64, len(g.edges))
	for d := range g.edges {
		out[d] = copyFloats(g.edges[d])
	}
	return out
}

// Centers returns the bin centers in bin order
func (g BinGeometry) Centers() [][]float64 {
	out := make([][]float64, len(g.centers))
	for i := range g.centers {
		out[i] = copyFloats(g.centers[i])
	}
	return out
}

// Center returns the center of the i-th bin
func (g BinGeometry) Center(i int) []float64 {
	return copyFloats(g.centers[i])
}

// flatIndex converts a per-dimension index into the row-major bin index
func (g BinGeometry) flatIndex(index []int) int {
	flat := 0
	for d := range g.shape {
		flat = flat*g.shape[d] + index[d]
	}
	return flat
}

// locate returns the per-dimension bin index of a sample. Samples on the
// upper boundary belong to the last bin, like histogram binning does.
func (g BinGeometry) locate(sample []float64) ([]int, bool) {
	if len(sample) != len(g.shape) {
		return nil, false
	}
	index := make([]int, len(g.shape))
	for d, edge := range g.edges {
		v := sample[d]
		last := len(edge) - 1
		if !isFinite(v) || v < edge[0] || v > edge[last] {
			return nil, false
		}
		// Binary search for the right-most edge <= v
		lo, hi := 0, last
		for hi-lo > 1 {
			mid := (lo + hi) / 2
			if edge[mid] <= v {
				lo = mid
			} else {
				hi = mid
			}
		}
		index[d] = lo
	}
	return index, true
}
