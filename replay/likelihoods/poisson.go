package likelihoods

import "math"

// xlogy returns x*log(y) with the convention 0*log(y) == 0
func xlogy(x, y float64) float64 {
	if x == 0 {
		return 0
	}
	return x * math.Log(y)
}

// logFactorial returns log(k!) for a non-negative count
func logFactorial(k float64) float64 {
	v, _ := math.Lgamma(k + 1)
	return v
}
