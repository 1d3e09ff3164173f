package strategic

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/replenlab/replenish-backend/internal/domain"
)

// Kernel hyperparameter bounds. The composite kernel is constant × RBF;
// both factors are kept inside these ranges during the likelihood search.
const (
	minLengthScale = 0.05
	maxLengthScale = 2.0
	minSignalVar   = 0.1
	maxSignalVar   = 10.0
)

// GP is a Gaussian Process regressor over the normalized policy-parameter
// space. Inputs are expected in [0,1]^d; observations are standardized
// internally so the constant kernel bounds stay meaningful.
type GP struct {
	Alpha float64 // observation noise added to the covariance diagonal

	lengthScale float64
	signalVar   float64

	x     [][]float64
	yMean float64
	yStd  float64

	chol  mat.Cholesky
	coeff *mat.VecDense // K^-1 (y - mean)
	ok    bool
}

func NewGP(alpha float64) *GP {
	if alpha <= 0 {
		alpha = 1e-6
	}
	return &GP{Alpha: alpha, lengthScale: 0.3, signalVar: 1.0}
}

// Fit conditions the GP on the observed (x, y) pairs, selecting kernel
// hyperparameters by log-marginal-likelihood over a bounded grid. A Cholesky
// failure surfaces as ErrNumericalInstability so the caller can retry with a
// larger Alpha.
func (g *GP) Fit(x [][]float64, y []float64) error {
	if len(x) == 0 || len(x) != len(y) {
		return fmt.Errorf("gp fit: need matching non-empty observations, got %d/%d", len(x), len(y))
	}

	g.x = x
	g.yMean, g.yStd = standardizeStats(y)
	yNorm := make([]float64, len(y))
	for i, v := range y {
		yNorm[i] = (v - g.yMean) / g.yStd
	}

	bestLL := math.Inf(-1)
	var bestL, bestS float64
	var fitted bool

	for _, l := range []float64{0.1, 0.2, 0.3, 0.5, 1.0} {
		for _, s := range []float64{0.5, 1.0, 2.0} {
			ll, err := g.logMarginalLikelihood(x, yNorm, l, s)
			if err != nil {
				continue
			}
			if ll > bestLL {
				bestLL, bestL, bestS = ll, l, s
				fitted = true
			}
		}
	}
	if !fitted {
		return fmt.Errorf("gp fit: covariance not positive definite for any hyperparameters: %w", domain.ErrNumericalInstability)
	}

	g.lengthScale = clampf(bestL, minLengthScale, maxLengthScale)
	g.signalVar = clampf(bestS, minSignalVar, maxSignalVar)

	k := g.covariance(x, g.lengthScale, g.signalVar)
	if ok := g.chol.Factorize(k); !ok {
		return fmt.Errorf("gp fit: cholesky factorization failed: %w", domain.ErrNumericalInstability)
	}

	yVec := mat.NewVecDense(len(yNorm), yNorm)
	g.coeff = mat.NewVecDense(len(yNorm), nil)
	if err := g.chol.SolveVecTo(g.coeff, yVec); err != nil {
		return fmt.Errorf("gp fit: solve failed: %w", domain.ErrNumericalInstability)
	}
	g.ok = true
	return nil
}

// Predict returns the posterior mean and standard deviation at point p.
func (g *GP) Predict(p []float64) (mean, std float64) {
	if !g.ok {
		return 0, 0
	}
	n := len(g.x)
	kStar := mat.NewVecDense(n, nil)
	for i, xi := range g.x {
		kStar.SetVec(i, g.kernel(p, xi, g.lengthScale, g.signalVar))
	}

	mean = mat.Dot(kStar, g.coeff)*g.yStd + g.yMean

	v := mat.NewVecDense(n, nil)
	if err := g.chol.SolveVecTo(v, kStar); err != nil {
		return mean, 0
	}
	variance := g.kernel(p, p, g.lengthScale, g.signalVar) - mat.Dot(kStar, v)
	if variance < 0 {
		variance = 0
	}
	return mean, math.Sqrt(variance) * g.yStd
}

func (g *GP) kernel(a, b []float64, lengthScale, signalVar float64) float64 {
	var sq float64
	for i := range a {
		d := a[i] - b[i]
		sq += d * d
	}
	return signalVar * math.Exp(-sq/(2*lengthScale*lengthScale))
}

func (g *GP) covariance(x [][]float64, lengthScale, signalVar float64) *mat.SymDense {
	n := len(x)
	k := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			v := g.kernel(x[i], x[j], lengthScale, signalVar)
			if i == j {
				v += g.Alpha
			}
			k.SetSym(i, j, v)
		}
	}
	return k
}

func (g *GP) logMarginalLikelihood(x [][]float64, y []float64, lengthScale, signalVar float64) (float64, error) {
	n := len(x)
	k := g.covariance(x, lengthScale, signalVar)

	var chol mat.Cholesky
	if ok := chol.Factorize(k); !ok {
		return 0, domain.ErrNumericalInstability
	}

	yVec := mat.NewVecDense(n, y)
	alpha := mat.NewVecDense(n, nil)
	if err := chol.SolveVecTo(alpha, yVec); err != nil {
		return 0, domain.ErrNumericalInstability
	}

	// log|K| via the Cholesky factor
	logDet := chol.LogDet()
	ll := -0.5*mat.Dot(yVec, alpha) - 0.5*logDet - 0.5*float64(n)*math.Log(2*math.Pi)
	return ll, nil
}

func standardizeStats(y []float64) (mean, std float64) {
	for _, v := range y {
		mean += v
	}
	mean /= float64(len(y))
	for _, v := range y {
		d := v - mean
		std += d * d
	}
	std = math.Sqrt(std / float64(len(y)))
	if std < 1e-9 {
		std = 1
	}
	return mean, std
}

func clampf(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
