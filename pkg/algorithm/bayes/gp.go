package bayes

import (
	"math"
	"sync/atomic"

	"gonum.org/v1/gonum/mat"
)

// kernel is a Matern 5/2 covariance function.
func kernel(a, b []float64, lengthScale float64) float64 {
	d := 0.0
	for i := range a {
		diff := a[i] - b[i]
		d += diff * diff
	}
	r := math.Sqrt(d) / lengthScale
	sqrt5r := math.Sqrt(5) * r
	return (1 + sqrt5r + (5.0/3.0)*r*r) * math.Exp(-sqrt5r)
}

// gpModel is one immutable, self-consistent fitted state: every field was
// derived from the same observation set in a single Fit call. Predict reads
// a gpModel snapshot without ever observing a mix of old and new fields.
type gpModel struct {
	x      *mat.Dense // n x d
	yMean  float64
	chol   mat.Cholesky
	weight *mat.VecDense // K^-1 (y - yMean)
}

// gpSurrogate is a zero-mean Gaussian process regressor fit by Cholesky
// decomposition, the numerical-linear-algebra equivalent of scikit-learn's
// GaussianProcessRegressor for this session's purposes: predicting mean
// and variance at unobserved points from a growing set of (x, y) pairs.
//
// Fit is called from pool-callback goroutines (via Session.ReturnOnSuccess)
// while Predict is called from the session's driver goroutine with no lock
// held (sampling takes the session lock only to read the fitted flag,
// not across Predict). That pattern is only race-free if the
// fitted state is swapped atomically rather than mutated field-by-field, so
// Fit builds a new gpModel entirely off the shared struct and publishes it
// with a single atomic store; Predict loads the current model once and
// reads only from that local, immutable snapshot.
type gpSurrogate struct {
	lengthScale float64
	alpha       float64 // observation noise added to the kernel diagonal

	model atomic.Pointer[gpModel]
}

func newGPSurrogate(lengthScale, alpha float64) *gpSurrogate {
	return &gpSurrogate{lengthScale: lengthScale, alpha: alpha}
}

// Fit rebuilds the surrogate from the full observation set. Called after
// every new observation once initialization is complete.
func (g *gpSurrogate) Fit(x *mat.Dense, y []float64) bool {
	n, d := x.Dims()
	if n == 0 {
		return false
	}

	sum := 0.0
	for _, v := range y {
		sum += v
	}
	mean := sum / float64(n)

	k := mat.NewSymDense(n, nil)
	row := make([]float64, d)
	rowJ := make([]float64, d)
	for i := 0; i < n; i++ {
		mat.Row(row, i, x)
		for j := i; j < n; j++ {
			mat.Row(rowJ, j, x)
			v := kernel(row, rowJ, g.lengthScale)
			if i == j {
				v += g.alpha
			}
			k.SetSym(i, j, v)
		}
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(k); !ok {
		return false
	}

	centered := mat.NewVecDense(n, nil)
	for i, v := range y {
		centered.SetVec(i, v-mean)
	}
	weight := mat.NewVecDense(n, nil)
	if err := chol.SolveVecTo(weight, centered); err != nil {
		return false
	}

	// The published model must not alias the caller's matrix, which the
	// session keeps appending to.
	xCopy := mat.NewDense(n, d, nil)
	xCopy.Copy(x)

	g.model.Store(&gpModel{
		x:      xCopy,
		yMean:  mean,
		chol:   chol,
		weight: weight,
	})
	return true
}

// Predict returns the posterior mean and standard deviation at point p.
func (g *gpSurrogate) Predict(p []float64) (mean, std float64) {
	m := g.model.Load()
	if m == nil {
		return 0, 1
	}
	n, d := m.x.Dims()
	kStar := mat.NewVecDense(n, nil)
	row := make([]float64, d)
	for i := 0; i < n; i++ {
		mat.Row(row, i, m.x)
		kStar.SetVec(i, kernel(row, p, g.lengthScale))
	}

	mean = m.yMean + mat.Dot(kStar, m.weight)

	v := mat.NewVecDense(n, nil)
	if err := m.chol.SolveVecTo(v, kStar); err != nil {
		return mean, 0
	}
	kpp := kernel(p, p, g.lengthScale)
	variance := kpp - mat.Dot(kStar, v)
	if variance < 0 {
		variance = 0
	}
	return mean, math.Sqrt(variance)
}

func (g *gpSurrogate) Fitted() bool { return g.model.Load() != nil }
