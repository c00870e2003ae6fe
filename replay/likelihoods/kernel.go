package likelihoods

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// floorIntensity keeps rates strictly positive so their logarithm is finite
const floorIntensity = 2.220446049250313e-16

var logFloorIntensity = math.Log(floorIntensity)

// gaussianProduct evaluates the product of per-dimension Gaussian densities
// centered on mean with a shared bandwidth.
func gaussianProduct(x, mean []float64, std float64) float64 {
	p := 1.0
	for d := range x {
		p *= distuv.UnitNormal.Prob((x[d]-mean[d])/std) / std
	}
	return p
}

// logGaussianProduct is the logarithm of gaussianProduct
func logGaussianProduct(x, mean []float64, std float64) float64 {
	logStd := math.Log(std)
	lp := 0.0
	for d := range x {
		lp += distuv.UnitNormal.LogProb((x[d]-mean[d])/std) - logStd
	}
	return lp
}

// logGaussianNormalizer is log(1/(std*sqrt(2*pi))), the constant part of a
// 1-D Gaussian log-density.
func logGaussianNormalizer(std float64) float64 {
	return -math.Log(std) - 0.5*math.Log(2*math.Pi)
}

// unnormalizedMarkKernel is the mark kernel without its normalizing constant
func unnormalizedMarkKernel(mark, encoding []float64, std float64) float64 {
	sq := 0.0
	for m := range mark {
		z := (mark[m] - encoding[m]) / std
		sq += z * z
	}
	return math.Exp(-0.5 * sq)
}

// positionDensity evaluates the Gaussian KDE of samples at the given bins.
// weights may be nil for an unweighted estimate. Only bins with interior set
// are evaluated; others stay zero.
func positionDensity(backend Backend, centers [][]float64, interior []bool, samples [][]float64, weights []float64, std float64) []float64 {
	density := make([]float64, len(centers))
	total := 0.0
	if weights == nil {
		total = float64(len(samples))
	} else {
		for _, w := range weights {
			total += w
		}
	}
	if total == 0 {
		return density
	}
	backend.ParallelFor(len(centers), func(lo, hi int) {
		for b := lo; b < hi; b++ {
			if !interior[b] {
				continue
			}
			sum := 0.0
			for i, sample := range samples {
				w := 1.0
				if weights != nil {
					w = weights[i]
					if w == 0 {
						continue
					}
				}
				sum += w * gaussianProduct(centers[b], sample, std)
			}
			density[b] = sum / total
		}
	})
	return density
}

// estimateIntensity is mean_rate * marginal / occupancy, zero where the
// animal was never near.
func estimateIntensity(meanRate float64, marginal, occupancy []float64) []float64 {
	out := make([]float64, len(marginal))
	for b := range marginal {
		if occupancy[b] > 0 {
			out[b] = meanRate * marginal[b] / occupancy[b]
		}
	}
	return out
}
