package likelihoods

import (
	"math"

	"github.com/LdDl/replay-go/internal/monitoring"
	"github.com/LdDl/replay-go/replay"
	"github.com/google/uuid"
	"gonum.org/v1/gonum/mat"
)

const (
	glmTolerance     = 1e-5
	glmMaxIterations = 30
	// exp(maxLinearPredictor) stays far from overflow
	maxLinearPredictor = 50.0
)

// SpikingGLM fits a Poisson generalized linear model per neuron with a cubic
// B-spline basis over position.
type SpikingGLM struct {
	name    string
	backend Backend
}

// NewSpikingGLM creates the algorithm on the given backend
func NewSpikingGLM(name string, backend Backend) *SpikingGLM {
	return &SpikingGLM{
		name:    name,
		backend: backend,
	}
}

// Name implements EncodingAlgorithm
func (a *SpikingGLM) Name() string { return a.name }

// Family implements EncodingAlgorithm
func (a *SpikingGLM) Family() Family { return FamilySortedSpikes }

// Fit implements EncodingAlgorithm
func (a *SpikingGLM) Fit(env *replay.FittedEnvironment, position [][]float64, neural NeuralData, params Params) (EncodingModel, error) {
	if err := params.validateGLM(); err != nil {
		return nil, err
	}
	g, err := gridOf(env)
	if err != nil {
		return nil, err
	}
	nNeurons, err := checkSpikes(neural.Spikes)
	if err != nil {
		return nil, err
	}
	rows, err := validRows(g, position, len(neural.Spikes))
	if err != nil {
		return nil, err
	}

	release, err := a.backend.Acquire()
	if err != nil {
		return nil, err
	}
	defer release()

	bases := make([]splineBasis, g.nDims)
	knots := make([][]float64, g.nDims)
	for d := 0; d < g.nDims; d++ {
		obsLo, obsHi := math.Inf(1), math.Inf(-1)
		for _, t := range rows {
			obsLo = math.Min(obsLo, position[t][d])
			obsHi = math.Max(obsHi, position[t][d])
		}
		edges := g.edges[d]
		bases[d] = newSplineBasis(edges[0], edges[len(edges)-1], obsLo, obsHi, params.KnotSpacing)
		knots[d] = cloneFloats(bases[d].knots)
	}

	width := designWidth(bases)
	design := mat.NewDense(len(rows), width, nil)
	a.backend.ParallelFor(len(rows), func(lo, hi int) {
		for i := lo; i < hi; i++ {
			design.SetRow(i, designRow(bases, position[rows[i]]))
		}
	})
	binDesign := mat.NewDense(len(g.centers), width, nil)
	a.backend.ParallelFor(len(g.centers), func(lo, hi int) {
		for b := lo; b < hi; b++ {
			binDesign.SetRow(b, designRow(bases, g.centers[b]))
		}
	})

	fields := make([][]float64, nNeurons)
	coefficients := make([][]float64, nNeurons)
	y := make([]float64, len(rows))
	for n := 0; n < nNeurons; n++ {
		nSpikes := 0.0
		for i, t := range rows {
			y[i] = neural.Spikes[t][n]
			nSpikes += y[i]
		}
		field := make([]float64, len(g.centers))
		if nSpikes == 0 {
			for b := range field {
				field[b] = floorIntensity
			}
			fields[n] = field
			coefficients[n] = make([]float64, width)
			continue
		}
		beta := fitPoissonIRLS(design, y, nSpikes/float64(len(rows)), params.Penalty)
		if !beta.converged && beta.iterations == glmMaxIterations {
			monitoring.Logf("likelihoods: %s neuron %d did not converge in %d iterations, keeping last finite coefficients", a.name, n, glmMaxIterations)
		}
		var eta mat.VecDense
		eta.MulVec(binDesign, mat.NewVecDense(width, beta.coefficients))
		for b := range field {
			field[b] = math.Exp(math.Min(eta.AtVec(b), maxLinearPredictor)) + floorIntensity
		}
		fields[n] = field
		coefficients[n] = beta.coefficients
	}

	return &SortedSpikesModel{state: sortedSpikesState{
		Algorithm:    a.name,
		ID:           uuid.New(),
		NumBins:      len(g.centers),
		PlaceFields:  fields,
		Coefficients: coefficients,
		Knots:        knots,
	}}, nil
}

// Estimate implements EncodingAlgorithm
func (a *SpikingGLM) Estimate(env *replay.FittedEnvironment, neural NeuralData, model EncodingModel, isComputeOffset bool) (*mat.Dense, error) {
	return estimateSortedSpikes(a.name, a.backend, env, neural, model, isComputeOffset)
}

type irlsResult struct {
	coefficients []float64
	iterations   int
	converged    bool
}

// fitPoissonIRLS fits log(mu) = X*beta by iteratively reweighted least squares
// with a ridge penalty on every coefficient except the intercept.
func fitPoissonIRLS(design *mat.Dense, y []float64, meanRate, penalty float64) irlsResult {
	nRows, width := design.Dims()
	beta := make([]float64, width)
	beta[0] = math.Log(meanRate)

	weighted := mat.NewDense(nRows, width, nil)
	response := mat.NewVecDense(nRows, nil)
	gram := mat.NewDense(width, width, nil)
	var rhs, next, eta mat.VecDense

	result := irlsResult{coefficients: beta}
	for iter := 1; iter <= glmMaxIterations; iter++ {
		result.iterations = iter
		eta.MulVec(design, mat.NewVecDense(width, beta))
		for i := 0; i < nRows; i++ {
			e := math.Min(eta.AtVec(i), maxLinearPredictor)
			mu := math.Exp(e)
			sw := math.Sqrt(mu)
			z := e + (y[i]-mu)/mu
			for j := 0; j < width; j++ {
				weighted.Set(i, j, sw*design.At(i, j))
			}
			response.SetVec(i, sw*z)
		}
		gram.Mul(weighted.T(), weighted)
		for j := 1; j < width; j++ {
			gram.Set(j, j, gram.At(j, j)+penalty)
		}
		rhs.MulVec(weighted.T(), response)
		if err := next.SolveVec(gram, &rhs); err != nil {
			if _, illConditioned := err.(mat.Condition); !illConditioned {
				monitoring.Logf("likelihoods: IRLS solve failed at iteration %d: %v", iter, err)
				return result
			}
			monitoring.Logf("likelihoods: IRLS system is ill-conditioned at iteration %d: %v", iter, err)
		}
		candidate := make([]float64, width)
		change := 0.0
		for j := range candidate {
			candidate[j] = next.AtVec(j)
			if !isFiniteValue(candidate[j]) {
				monitoring.Logf("likelihoods: IRLS diverged at iteration %d", iter)
				return result
			}
			change = math.Max(change, math.Abs(candidate[j]-beta[j]))
		}
		beta = candidate
		result.coefficients = beta
		if change < glmTolerance {
			result.converged = true
			return result
		}
	}
	return result
}
