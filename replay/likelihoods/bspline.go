package likelihoods

import (
	"math"
)

const splineDegree = 3

// splineBasis is a clamped cubic B-spline basis over [lo, hi]
type splineBasis struct {
	knots []float64
	lo    float64
	hi    float64
}

// newSplineBasis places inner knots every spacing over [lo, hi], keeping only
// those strictly inside the observed range [obsLo, obsHi].
func newSplineBasis(lo, hi, obsLo, obsHi, spacing float64) splineBasis {
	knots := make([]float64, 0, splineDegree+1)
	for i := 0; i <= splineDegree; i++ {
		knots = append(knots, lo)
	}
	for k := lo + spacing; k < hi-1e-9*spacing; k += spacing {
		if k > obsLo && k < obsHi {
			knots = append(knots, k)
		}
	}
	for i := 0; i <= splineDegree; i++ {
		knots = append(knots, hi)
	}
	return splineBasis{knots: knots, lo: lo, hi: hi}
}

func (s splineBasis) size() int {
	return len(s.knots) - splineDegree - 1
}

// eval returns the value of every basis function at x (Cox-de Boor recursion).
// x is clamped to the basis range.
func (s splineBasis) eval(x float64) []float64 {
	x = math.Max(s.lo, math.Min(s.hi, x))
	k := s.knots
	b := make([]float64, len(k)-1)
	if x >= s.hi {
		for i := len(k) - 2; i >= 0; i-- {
			if k[i] < k[i+1] {
				b[i] = 1
				break
			}
		}
	} else {
		for i := 0; i < len(k)-1; i++ {
			if k[i] <= x && x < k[i+1] {
				b[i] = 1
				break
			}
		}
	}
	for p := 1; p <= splineDegree; p++ {
		for i := 0; i < len(k)-1-p; i++ {
			v := 0.0
			if d := k[i+p] - k[i]; d > 0 {
				v += (x - k[i]) / d * b[i]
			}
			if d := k[i+p+1] - k[i+1]; d > 0 {
				v += (k[i+p+1] - x) / d * b[i+1]
			}
			b[i] = v
		}
	}
	return b[:s.size()]
}

// designRow builds one row of the GLM design matrix: an intercept followed by
// the tensor product of every dimension's basis without its first function.
// B-splines sum to one, so the first function is dropped to keep the columns
// independent of the intercept.
func designRow(bases []splineBasis, sample []float64) []float64 {
	row := []float64{1}
	tensor := []float64{1}
	for d, basis := range bases {
		values := basis.eval(sample[d])[1:]
		next := make([]float64, 0, len(tensor)*len(values))
		for _, t := range tensor {
			for _, v := range values {
				next = append(next, t*v)
			}
		}
		tensor = next
	}
	return append(row, tensor...)
}

func designWidth(bases []splineBasis) int {
	width := 1
	for _, basis := range bases {
		width *= basis.size() - 1
	}
	return width + 1
}
