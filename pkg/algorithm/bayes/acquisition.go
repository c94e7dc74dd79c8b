package bayes

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"
)

// AcqFunc names the acquisition function a Bayes session uses to pick
// the next probe point.
type AcqFunc string

const (
	AcqUCB AcqFunc = "ucb"
	AcqEI  AcqFunc = "ei"
	AcqPOI AcqFunc = "poi"
)

// utility scores a candidate point; higher is better. yMax is the best
// observed (direction-normalized) target so far.
func utility(acq AcqFunc, mean, std, yMax, kappa, xi float64) float64 {
	if std <= 0 {
		std = 1e-9
	}
	switch acq {
	case AcqUCB:
		return mean + kappa*std
	case AcqEI:
		z := (mean - yMax - xi) / std
		n := distuv.Normal{Mu: 0, Sigma: 1}
		return (mean-yMax-xi)*n.CDF(z) + std*n.Prob(z)
	case AcqPOI:
		z := (mean - yMax - xi) / std
		n := distuv.Normal{Mu: 0, Sigma: 1}
		return n.CDF(z)
	default:
		return mean + kappa*std
	}
}

// acqMax searches bounds for the point maximizing the acquisition
// function: random warm-up candidates, then coordinate-wise local
// perturbation on the best of them. If refinement never beats the warm-up
// maximum, the warm-up maximum wins.
func acqMax(predict func([]float64) (float64, float64), bounds [][2]float64, yMax float64,
	acq AcqFunc, kappa, xi float64, rng *rand.Rand) []float64 {

	const candidates = 256
	const refineRounds = 20

	best := make([]float64, len(bounds))
	bestScore := math.Inf(-1)

	sample := func() []float64 {
		p := make([]float64, len(bounds))
		for i, b := range bounds {
			p[i] = b[0] + rng.Float64()*(b[1]-b[0])
		}
		return p
	}

	for i := 0; i < candidates; i++ {
		p := sample()
		mean, std := predict(p)
		score := utility(acq, mean, std, yMax, kappa, xi)
		if score > bestScore {
			bestScore = score
			copy(best, p)
		}
	}

	step := make([]float64, len(bounds))
	for i, b := range bounds {
		step[i] = (b[1] - b[0]) * 0.05
	}
	for r := 0; r < refineRounds; r++ {
		improved := false
		for dim := range best {
			for _, sign := range []float64{1, -1} {
				candidate := append([]float64(nil), best...)
				candidate[dim] += sign * step[dim]
				if candidate[dim] < bounds[dim][0] || candidate[dim] > bounds[dim][1] {
					continue
				}
				mean, std := predict(candidate)
				score := utility(acq, mean, std, yMax, kappa, xi)
				if score > bestScore {
					bestScore = score
					best = candidate
					improved = true
				}
			}
		}
		if !improved {
			for i := range step {
				step[i] *= 0.5
			}
		}
	}
	return best
}
