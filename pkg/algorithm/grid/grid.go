// Package grid implements exhaustive/geometric grid search: every
// dimension is allocated a share of the overall step budget proportional
// to its length, continuous and stepped dimensions last (so fixed
// dimensions, which cannot be subsampled, never starve the budget).
package grid

import (
	"math"
	"sort"

	"github.com/hpoforge/hpo/pkg/algorithm"
	"github.com/hpoforge/hpo/pkg/hpoerrors"
	"github.com/hpoforge/hpo/pkg/hypervalue"
	"github.com/hpoforge/hpo/pkg/poolservice"
	"github.com/hpoforge/hpo/pkg/space"
)

// Algorithm builds grid search sessions.
type Algorithm struct {
	MaxSteps *int
}

// New builds a grid Algorithm. maxSteps of nil means unlimited; only
// valid when every dimension is finite (no Continuous space).
func New(maxSteps *int) *Algorithm {
	return &Algorithm{MaxSteps: maxSteps}
}

func (a *Algorithm) Name() string { return "grid" }

// SetMaxSteps lets a caller (typically pkg/runner applying its MaxSteps
// setting) bound the grid budget without reconstructing the Algorithm.
func (a *Algorithm) SetMaxSteps(n *int) { a.MaxSteps = n }

func (a *Algorithm) GetSession(spaceTemplate interface{}, service *poolservice.Service) (algorithm.Session, error) {
	base := algorithm.NewBaseSession(spaceTemplate, service)
	s := &Session{BaseSession: base, maxSteps: a.MaxSteps}
	if err := s.buildOrder(); err != nil {
		return nil, err
	}
	base.Bind(s)
	return s, nil
}

// priority orders dimension kinds: fixed spaces first (they cannot be
// subsampled), then stepped spaces ascending by their point count, then
// continuous spaces last.
func priority(sp space.Space) int {
	switch sp.(type) {
	case *space.Fixed:
		return 1
	case *space.Stepped:
		return 2
	case *space.Continuous:
		return 3
	default:
		return 4
	}
}

type orderedDim struct {
	origIndex int
	hv        *hypervalue.HyperValue
}

// Session drives grid search.
type Session struct {
	*algorithm.BaseSession
	maxSteps *int

	ordered  []orderedDim
	orderMap []int // ordered[i] came from vsp[orderMap[i]]
}

func (s *Session) buildOrder() error {
	vsp := s.VSP()
	ordered := make([]orderedDim, len(vsp))
	for i, hv := range vsp {
		ordered[i] = orderedDim{origIndex: i, hv: hv}
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		pi, pj := priority(ordered[i].hv.Space()), priority(ordered[j].hv.Space())
		if pi != pj {
			return pi < pj
		}
		if st, ok := ordered[i].hv.Space().(*space.Stepped); ok {
			if stj, ok2 := ordered[j].hv.Space().(*space.Stepped); ok2 {
				ci, _ := st.Count()
				cj, _ := stj.Count()
				return ci < cj
			}
		}
		return false
	})
	s.ordered = ordered

	if s.maxSteps == nil && len(ordered) > 0 {
		if _, isContinuous := ordered[len(ordered)-1].hv.Space().(*space.Continuous); isContinuous {
			return hpoerrors.UnboundedContinuousError("grid.GetSession")
		}
	}
	return nil
}

func (s *Session) ReturnOnSuccess(algorithm.SessionTask, interface{}) {}

func (s *Session) ReturnOnFailed(algorithm.SessionTask, error) {}

func (s *Session) Run() {
	budget := math.Inf(1)
	if s.maxSteps != nil {
		budget = float64(*s.maxSteps)
	}

	allocN := 0
	remainN := budget
	for _, d := range s.ordered {
		switch d.hv.Space().(type) {
		case *space.Continuous, *space.Stepped:
			allocN++
		}
		remainN /= d.hv.Space().Length()
	}

	dimAlloc := make([][]float64, len(s.ordered))
	for i, d := range s.ordered {
		sp := d.hv.Space()
		switch sp.(type) {
		case *space.Continuous, *space.Stepped:
			allocLength := math.Max(sp.Length()*math.Pow(remainN, 1/float64(allocN)), 1)
			if cnt, finite := sp.Count(); finite && float64(cnt) < allocLength {
				allocLength = float64(cnt)
			}
			n := int(math.Round(allocLength))
			dimAlloc[i] = sp.Allocate(n)
			allocN--
			remainN /= float64(n) / sp.Length()
		default:
			dimAlloc[i] = sp.Allocate(space.Unlimited)
		}
	}

	// Reorder dimAlloc back to the space template's original dimension
	// order, then apply each HyperValue's transform pipeline.
	finalAlloc := make([][]interface{}, len(s.ordered))
	for i, d := range s.ordered {
		raw := dimAlloc[i]
		vals := make([]interface{}, len(raw))
		for j, r := range raw {
			vals[j] = d.hv.Trans(r)
		}
		finalAlloc[d.origIndex] = vals
	}

	cartesian(finalAlloc, func(combo []interface{}) bool {
		if err := s.PutViaSpace(combo, nil); err != nil {
			return false
		}
		return true
	})
}

// cartesian iterates the Cartesian product of dims, first dimension
// varying slowest, calling visit for each combination until it returns
// false.
func cartesian(dims [][]interface{}, visit func([]interface{}) bool) {
	n := len(dims)
	if n == 0 {
		visit(nil)
		return
	}
	idx := make([]int, n)
	combo := make([]interface{}, n)
	for {
		for i := 0; i < n; i++ {
			combo[i] = dims[i][idx[i]]
		}
		if !visit(combo) {
			return
		}
		pos := n - 1
		for pos >= 0 {
			idx[pos]++
			if idx[pos] < len(dims[pos]) {
				break
			}
			idx[pos] = 0
			pos--
		}
		if pos < 0 {
			return
		}
	}
}
