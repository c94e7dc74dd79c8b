// Package random implements random search: each step draws one
// independent uniform sample per dimension until max steps is reached or,
// for fully finite spaces, every combination has been visited.
package random

import (
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/hpoforge/hpo/pkg/algorithm"
	"github.com/hpoforge/hpo/pkg/hypervalue"
	"github.com/hpoforge/hpo/pkg/poolservice"
	"github.com/hpoforge/hpo/pkg/space"
)

// Algorithm builds random search sessions.
type Algorithm struct {
	Seed     *uint64
	MaxSteps *int
}

// New builds a random-search Algorithm. A nil seed draws from the process
// default source; a nil maxSteps means "run until exhausted" and is only
// meaningful when every dimension is finite.
func New(seed *uint64, maxSteps *int) *Algorithm {
	return &Algorithm{Seed: seed, MaxSteps: maxSteps}
}

func (a *Algorithm) Name() string { return "random" }

// SetMaxSteps lets a caller (typically pkg/runner applying its MaxSteps
// setting) bound the sampling budget without reconstructing the Algorithm.
func (a *Algorithm) SetMaxSteps(n *int) { a.MaxSteps = n }

func (a *Algorithm) GetSession(spaceTemplate interface{}, service *poolservice.Service) (algorithm.Session, error) {
	base := algorithm.NewBaseSession(spaceTemplate, service)

	var src *rand.Rand
	if a.Seed != nil {
		src = rand.New(rand.NewPCG(*a.Seed, *a.Seed^0x9e3779b97f4a7c15))
	} else {
		src = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	maxCombos, finite := finiteCombinationCount(base.VSP())

	s := &Session{
		BaseSession: base,
		maxSteps:    a.MaxSteps,
		rng:         src,
		finite:      finite,
		maxCombos:   maxCombos,
		visited:     make(map[string]struct{}),
	}
	base.Bind(s)
	return s, nil
}

func finiteCombinationCount(vsp []*hypervalue.HyperValue) (int, bool) {
	total := 1
	for _, hv := range vsp {
		cnt, finite := hv.Space().Count()
		if !finite {
			return 0, false
		}
		total *= cnt
	}
	return total, true
}

// Session drives random search.
type Session struct {
	*algorithm.BaseSession
	maxSteps  *int
	rng       *rand.Rand
	finite    bool
	maxCombos int
	visited   map[string]struct{}
}

func (s *Session) ReturnOnSuccess(algorithm.SessionTask, interface{}) {}

func (s *Session) ReturnOnFailed(algorithm.SessionTask, error) {}

func randomSpaceValue(sp space.Space, rng *rand.Rand) float64 {
	switch t := sp.(type) {
	case *space.Stepped:
		cnt, _ := t.Count()
		idx := rng.IntN(cnt)
		// Count()-1 steps span [LBound, RBound]; recover the step size.
		if cnt <= 1 {
			return t.LBound()
		}
		step := (t.RBound() - t.LBound()) / float64(cnt-1)
		return float64(idx)*step + t.LBound()
	case *space.Continuous:
		return rng.Float64()*(t.RBound()-t.LBound()) + t.LBound()
	case *space.Fixed:
		cnt, _ := t.Count()
		return float64(rng.IntN(cnt))
	default:
		panic(fmt.Sprintf("random: unknown space type %T", sp))
	}
}

func (s *Session) createNewValue() (vals []interface{}, raw []float64) {
	vsp := s.VSP()
	raw = make([]float64, len(vsp))
	vals = make([]interface{}, len(vsp))
	for i, hv := range vsp {
		r := randomSpaceValue(hv.Space(), s.rng)
		raw[i] = r
		vals[i] = hv.Trans(r)
	}
	return vals, raw
}

// rawKey identifies a combination by its raw draws, not the transformed
// values: a transform may map distinct draws to the same value, and the
// visited set must still be able to exhaust every raw combination.
func rawKey(raw []float64) string {
	var sb strings.Builder
	for _, v := range raw {
		fmt.Fprintf(&sb, "%v|", v)
	}
	return sb.String()
}

func (s *Session) Run() {
	stepID := 0
	for {
		if s.maxSteps != nil && stepID >= *s.maxSteps {
			break
		}
		if s.finite && len(s.visited) >= s.maxCombos {
			break
		}

		vals, raw := s.createNewValue()
		if s.finite {
			key := rawKey(raw)
			if _, seen := s.visited[key]; seen {
				continue
			}
			s.visited[key] = struct{}{}
		}

		stepID++
		if err := s.PutViaSpace(vals, nil); err != nil {
			break
		}
	}
}
