package strategic

import (
	"math/rand"
	"testing"
)

func fittedGP(t *testing.T) *GP {
	t.Helper()
	xs, ys := trainingSet()
	gp := NewGP(1e-6)
	if err := gp.Fit(xs, ys); err != nil {
		t.Fatalf("Fit() error = %v", err)
	}
	return gp
}

func TestExpectedImprovementNonNegative(t *testing.T) {
	gp := fittedGP(t)
	rng := rand.New(rand.NewSource(1))

	for i := 0; i < 200; i++ {
		p := []float64{rng.Float64(), rng.Float64(), rng.Float64()}
		if ei := ExpectedImprovement(gp, p, 0.2, 0.01); ei < 0 {
			t.Fatalf("EI(%v) = %v, want >= 0", p, ei)
		}
	}
}

func TestExpectedImprovementZeroUncertainty(t *testing.T) {
	// An unfitted GP has zero posterior uncertainty everywhere; EI must be
	// exactly zero no matter how bad the incumbent is.
	gp := NewGP(1e-4)
	if ei := ExpectedImprovement(gp, []float64{0.5, 0.5, 0.5}, 1e9, 0.01); ei != 0 {
		t.Errorf("EI with sigma=0 = %v, want exactly 0", ei)
	}
}

func TestExpectedImprovementMonotonicInIncumbent(t *testing.T) {
	gp := fittedGP(t)
	p := []float64{0.4, 0.6, 0.5}

	// A worse incumbent leaves more room for improvement.
	low := ExpectedImprovement(gp, p, 0.05, 0.01)
	high := ExpectedImprovement(gp, p, 0.75, 0.01)
	if high < low {
		t.Errorf("EI(fBest=0.75) = %v < EI(fBest=0.05) = %v", high, low)
	}
}

func TestMaximizeEIStaysInUnitCube(t *testing.T) {
	gp := fittedGP(t)
	rng := rand.New(rand.NewSource(2))

	point, ei := MaximizeEI(gp, 0.2, 0.01, 10, rng)
	if len(point) != ParamDim {
		t.Fatalf("len(point) = %d, want %d", len(point), ParamDim)
	}
	for d, v := range point {
		if v < 0 || v > 1 {
			t.Errorf("point[%d] = %v, outside [0,1]", d, v)
		}
	}
	if ei < 0 {
		t.Errorf("best EI = %v, want >= 0", ei)
	}
}

func TestMaximizeEIDeterministicForSeed(t *testing.T) {
	gp := fittedGP(t)

	p1, e1 := MaximizeEI(gp, 0.2, 0.01, 5, rand.New(rand.NewSource(7)))
	p2, e2 := MaximizeEI(gp, 0.2, 0.01, 5, rand.New(rand.NewSource(7)))
	if e1 != e2 {
		t.Errorf("EI differs across identical seeds: %v vs %v", e1, e2)
	}
	for d := range p1 {
		if p1[d] != p2[d] {
			t.Errorf("point[%d] differs across identical seeds: %v vs %v", d, p1[d], p2[d])
		}
	}
}
