package likelihoods

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

const eps = 1e-12

func TestSplineBasisPartitionOfUnity(t *testing.T) {
	basis := newSplineBasis(0, 100, 0, 100, 10)
	assert.Equal(t, 13, basis.size())
	for _, x := range []float64{-5, 0, 0.5, 9.99, 10, 33.3, 50, 99.9, 100, 120} {
		values := basis.eval(x)
		sum := 0.0
		for _, v := range values {
			assert.GreaterOrEqual(t, v, 0.0)
			sum += v
		}
		assert.InDelta(t, 1.0, sum, eps, "x=%v", x)
	}
	assert.InDelta(t, 1.0, basis.eval(0)[0], eps)
	assert.InDelta(t, 1.0, basis.eval(100)[12], eps)
}

func TestSplineKnotsStayInsideObservedRange(t *testing.T) {
	basis := newSplineBasis(0, 100, 25, 62, 10)
	assert.Equal(t, []float64{0, 0, 0, 0, 30, 40, 50, 60, 100, 100, 100, 100}, basis.knots)
}

func TestDesignRowTensorProduct(t *testing.T) {
	bases := []splineBasis{newSplineBasis(0, 10, 0, 10, 5), newSplineBasis(0, 20, 0, 20, 10)}
	assert.Equal(t, 1+4*4, designWidth(bases))
	row := designRow(bases, []float64{3, 7})
	assert.Len(t, row, designWidth(bases))
	assert.Equal(t, 1.0, row[0])
}

func TestMarkQuantization(t *testing.T) {
	q := MarkQuantization{Step: 2, Offset: 10, Max: 5}
	assert.Equal(t, []int32{0, 0, 1, 2, 5}, q.levels([]float64{-3, 10.9, 11.1, 14.2, 100}))

	table := q.kernelTable(4)
	logTable := q.logKernelTable(4)
	assert.Len(t, table, 6)
	assert.Equal(t, 1.0, table[0])
	for d := range table {
		assert.InDelta(t, math.Log(table[d]), logTable[d], eps)
	}
	assert.InDelta(t, math.Exp(-0.5), table[2], eps)
}

func TestLogAddExp(t *testing.T) {
	assert.InDelta(t, math.Log(5), logAddExp(math.Log(2), math.Log(3)), eps)
	assert.Equal(t, 1.5, logAddExp(math.Inf(-1), 1.5))
	assert.InDelta(t, 1000+math.Log(2), logAddExp(1000, 1000), eps)
}

func TestPoissonHelpers(t *testing.T) {
	assert.Equal(t, 0.0, xlogy(0, 0))
	assert.InDelta(t, 2*math.Log(3), xlogy(2, 3), eps)
	assert.InDelta(t, math.Log(6), logFactorial(3), eps)
	assert.Equal(t, 0.0, logFactorial(0))
}

func TestGaussianKernels(t *testing.T) {
	x, mean := []float64{1, 2}, []float64{0, 0}
	assert.InDelta(t, math.Log(gaussianProduct(x, mean, 1.5)), logGaussianProduct(x, mean, 1.5), eps)
	assert.InDelta(t, math.Exp(-0.5*(1+4)/4), unnormalizedMarkKernel(x, mean, 2), eps)
	assert.InDelta(t, math.Log(1/(2*math.Sqrt(2*math.Pi))), logGaussianNormalizer(2), eps)
}
