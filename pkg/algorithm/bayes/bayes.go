// Package bayes implements Bayesian optimization: a Gaussian-process
// surrogate fit on every observed (config, target) pair, with the next
// probe point chosen by maximizing an acquisition function over the
// surrogate's posterior.
package bayes

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sync"

	"gonum.org/v1/gonum/mat"

	"github.com/hpoforge/hpo/pkg/algorithm"
	"github.com/hpoforge/hpo/pkg/hpoerrors"
	"github.com/hpoforge/hpo/pkg/hypervalue"
	"github.com/hpoforge/hpo/pkg/poolservice"
	"github.com/hpoforge/hpo/pkg/space"
)

// Direction selects whether the target should be maximized or minimized.
type Direction int

const (
	Maximize Direction = iota
	Minimize
)

// Algorithm builds Bayes search sessions.
type Algorithm struct {
	Direction   Direction
	Seed        *uint64
	MaxSteps    *int
	InitSteps   int
	Acq         AcqFunc
	Kappa       float64
	Xi          float64
	LengthScale float64
	Alpha       float64

	// Target extracts the scalar objective from a trial's return value.
	Target func(retval interface{}) float64
}

// NewDefault builds an Algorithm with the usual defaults: 5 random
// initialization steps, refit on every result, kappa=2.576, xi=0, UCB.
func NewDefault(direction Direction, target func(interface{}) float64) *Algorithm {
	return &Algorithm{
		Direction:   direction,
		InitSteps:   5,
		Acq:         AcqUCB,
		Kappa:       2.576,
		Xi:          0.0,
		LengthScale: 1.0,
		Alpha:       1e-6,
		Target:      target,
	}
}

func (a *Algorithm) Name() string { return "bayes" }

// SetMaxSteps lets a caller (typically pkg/runner applying its MaxSteps
// setting) bound the probing budget without reconstructing the Algorithm.
func (a *Algorithm) SetMaxSteps(n *int) { a.MaxSteps = n }

// SetDirection lets a caller (typically pkg/runner, when its
// Maximize/Minimize setting is applied) align the surrogate's optimization
// direction with the runner's target without reconstructing the Algorithm.
func (a *Algorithm) SetDirection(maximize bool) {
	if maximize {
		a.Direction = Maximize
	} else {
		a.Direction = Minimize
	}
}

func (a *Algorithm) GetSession(spaceTemplate interface{}, service *poolservice.Service) (algorithm.Session, error) {
	base := algorithm.NewBaseSession(spaceTemplate, service)

	bounds := make([][2]float64, len(base.VSP()))
	postprocess := make([]func(float64) interface{}, len(base.VSP()))
	for i, hv := range base.VSP() {
		b, post, err := hyperToBound(hv)
		if err != nil {
			return nil, err
		}
		bounds[i] = b
		postprocess[i] = post
	}

	var rng *rand.Rand
	if a.Seed != nil {
		rng = rand.New(rand.NewPCG(*a.Seed, *a.Seed^0x2545f4914f6cdd1d))
	} else {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	s := &Session{
		BaseSession: base,
		algo:        a,
		bounds:      bounds,
		postprocess: postprocess,
		rng:         rng,
		gp:          newGPSurrogate(a.LengthScale, a.Alpha),
	}
	base.Bind(s)
	return s, nil
}

// hyperToBound maps a HyperValue to a real-valued optimization bound plus
// the function turning a probed real value back into the space's actual
// value.
func hyperToBound(hv *hypervalue.HyperValue) ([2]float64, func(float64) interface{}, error) {
	switch sp := hv.Space().(type) {
	case *space.Continuous:
		return [2]float64{sp.LBound(), sp.RBound()}, func(x float64) interface{} { return hv.Trans(x) }, nil
	case *space.Stepped:
		cnt, _ := sp.Count()
		step := 0.0
		if cnt > 1 {
			step = (sp.RBound() - sp.LBound()) / float64(cnt-1)
		}
		return [2]float64{0, float64(cnt)}, func(x float64) interface{} {
			idx := math.Floor(x)
			if idx > float64(cnt-1) {
				idx = float64(cnt - 1)
			}
			if idx < 0 {
				idx = 0
			}
			return hv.Trans(idx*step + sp.LBound())
		}, nil
	default:
		return [2]float64{}, nil, hpoerrors.ConfigError("bayes.GetSession",
			fmt.Sprintf("fixed space is not supported in bayesian optimization, but %T found", sp))
	}
}

// Session drives Bayesian optimization.
type Session struct {
	*algorithm.BaseSession
	algo        *Algorithm
	bounds      [][2]float64
	postprocess []func(float64) interface{}
	rng         *rand.Rand
	gp          *gpSurrogate

	mu          sync.Mutex
	params      [][]float64
	targets     []float64
	lastFitSize int
}

func (s *Session) direction(y float64) float64 {
	if s.algo.Direction == Maximize {
		return y
	}
	return -y
}

func (s *Session) createNewSample() []float64 {
	s.mu.Lock()
	fitted := s.gp.Fitted()
	var targets []float64
	if fitted {
		targets = append([]float64(nil), s.targets...)
	}
	s.mu.Unlock()

	if !fitted {
		p := make([]float64, len(s.bounds))
		for i, b := range s.bounds {
			p[i] = b[0] + s.rng.Float64()*(b[1]-b[0])
		}
		return p
	}

	yMax := targets[0]
	for _, v := range targets {
		if v > yMax {
			yMax = v
		}
	}
	return acqMax(s.gp.Predict, s.bounds, yMax, s.algo.Acq, s.algo.Kappa, s.algo.Xi, s.rng)
}

func (s *Session) Run() {
	stepID := 0
	for s.algo.MaxSteps == nil || stepID < *s.algo.MaxSteps {
		stepID++

		xProbe := s.createNewSample()
		actual := make([]interface{}, len(xProbe))
		for i, x := range xProbe {
			actual[i] = s.postprocess[i](x)
		}

		if err := s.PutViaSpace(actual, xProbe); err != nil {
			break
		}
	}
}

func (s *Session) ReturnOnSuccess(task algorithm.SessionTask, retval interface{}) {
	xProbe, ok := task.Attachment.([]float64)
	if !ok {
		return
	}
	y := s.direction(s.algo.Target(retval))

	s.mu.Lock()
	defer s.mu.Unlock()

	s.params = append(s.params, xProbe)
	s.targets = append(s.targets, y)

	shouldFit := (!s.gp.Fitted() && len(s.targets) >= s.algo.InitSteps) ||
		(s.gp.Fitted() && len(s.targets) >= s.lastFitSize+1)
	if !shouldFit {
		return
	}

	n := len(s.params)
	d := len(s.bounds)
	x := mat.NewDense(n, d, nil)
	for i, row := range s.params {
		x.SetRow(i, row)
	}
	if s.gp.Fit(x, s.targets) {
		s.lastFitSize = n
	}
}

func (s *Session) ReturnOnFailed(algorithm.SessionTask, error) {}
