// Package hypervalue implements HyperValue: a Space paired with an ordered,
// immutable pipeline of transforms applied to every value the space
// produces.
package hypervalue

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/hpoforge/hpo/pkg/hpoerrors"
	"github.com/hpoforge/hpo/pkg/space"
)

// Transform maps one pipeline stage's output to the next stage's input.
// The first stage always receives a float64 boxed as interface{}.
type Transform func(interface{}) interface{}

// HyperValue is a search dimension: a Space plus the transforms that turn
// a raw sample into the value callers actually see.
type HyperValue struct {
	space    space.Space
	pipeline []Transform
}

// From wraps a bare space with the identity pipeline.
func From(s space.Space) *HyperValue {
	return &HyperValue{space: s}
}

// Space returns the underlying search space.
func (h *HyperValue) Space() space.Space { return h.space }

// then returns a new HyperValue with f appended to the pipeline. The
// receiver's pipeline slice is never mutated, so existing HyperValue
// references stay valid after derivation.
func (h *HyperValue) then(f Transform) *HyperValue {
	np := make([]Transform, len(h.pipeline)+1)
	copy(np, h.pipeline)
	np[len(h.pipeline)] = f
	return &HyperValue{space: h.space, pipeline: np}
}

// Pipe appends an arbitrary transform to the pipeline.
func (h *HyperValue) Pipe(f func(interface{}) interface{}) *HyperValue {
	return h.then(f)
}

// Trans runs the raw sample x through the full transform pipeline.
func (h *HyperValue) Trans(x float64) interface{} {
	var v interface{} = x
	for _, f := range h.pipeline {
		v = f(v)
	}
	return v
}

func asFloat(v interface{}) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case int:
		return float64(t)
	default:
		panic(fmt.Sprintf("hypervalue: arithmetic operator requires a numeric value, got %T", v))
	}
}

// Add, Sub, Mul, Div, IntDiv, Mod, Pow and Neg each append one arithmetic
// transform and return a new HyperValue, leaving the receiver untouched.

func (h *HyperValue) Add(d float64) *HyperValue {
	return h.then(func(v interface{}) interface{} { return asFloat(v) + d })
}

func (h *HyperValue) Sub(d float64) *HyperValue {
	return h.then(func(v interface{}) interface{} { return asFloat(v) - d })
}

func (h *HyperValue) Mul(d float64) *HyperValue {
	return h.then(func(v interface{}) interface{} { return asFloat(v) * d })
}

func (h *HyperValue) Div(d float64) *HyperValue {
	return h.then(func(v interface{}) interface{} { return asFloat(v) / d })
}

func (h *HyperValue) IntDiv(d float64) *HyperValue {
	return h.then(func(v interface{}) interface{} { return math.Floor(asFloat(v) / d) })
}

func (h *HyperValue) Mod(d float64) *HyperValue {
	return h.then(func(v interface{}) interface{} { return math.Mod(asFloat(v), d) })
}

func (h *HyperValue) Pow(d float64) *HyperValue {
	return h.then(func(v interface{}) interface{} { return math.Pow(asFloat(v), d) })
}

func (h *HyperValue) Neg() *HyperValue {
	return h.then(func(v interface{}) interface{} { return -asFloat(v) })
}

// Int truncates the current pipeline value to an int.
func (h *HyperValue) Int() *HyperValue {
	return h.then(func(v interface{}) interface{} { return int(asFloat(v)) })
}

// Allocate produces cnt representative values, with the full transform
// pipeline already applied.
func (h *HyperValue) Allocate(cnt int) []interface{} {
	raw := h.space.Allocate(cnt)
	out := make([]interface{}, len(raw))
	for i, r := range raw {
		out[i] = h.Trans(r)
	}
	return out
}

// Uniform builds a continuous value over (lbound, ubound).
func Uniform(lbound, ubound float64) (*HyperValue, error) {
	if lbound >= ubound {
		return nil, hpoerrors.ConfigError("hypervalue.Uniform",
			fmt.Sprintf("lower bound should be less than upper bound, but %v >= %v found", lbound, ubound))
	}
	return From(space.NewContinuous(lbound, ubound)), nil
}

// QUniform builds a stepped value over [start, end] in increments of step.
func QUniform(start, end, step float64) (*HyperValue, error) {
	if start > end {
		return nil, hpoerrors.ConfigError("hypervalue.QUniform",
			fmt.Sprintf("start value should be no greater than end value, but %v > %v found", start, end))
	}
	if step <= 0 {
		return nil, hpoerrors.ConfigError("hypervalue.QUniform",
			fmt.Sprintf("step value should be positive, but %v found", step))
	}
	return From(space.NewStepped(start, end, step)), nil
}

// Choice builds a fixed value over the given options, each returned
// verbatim when sampled.
func Choice(options []interface{}) (*HyperValue, error) {
	if len(options) == 0 {
		return nil, hpoerrors.ConfigError("hypervalue.Choice", "at least 1 choice should be contained")
	}
	opts := append([]interface{}(nil), options...)
	hv := From(space.NewFixed(len(opts)))
	return hv.then(func(v interface{}) interface{} {
		return opts[int(asFloat(v))]
	}), nil
}

// RandInt builds an integer value uniformly stepped over [start, end].
func RandInt(start, end float64) (*HyperValue, error) {
	hv, err := QUniform(math.Ceil(start), math.Floor(end), 1.0)
	if err != nil {
		return nil, err
	}
	return hv.Int(), nil
}

// RandN builds a normally distributed value with mean mu and standard
// deviation sigma, implemented as a uniform(0,1) sample piped through the
// inverse normal CDF.
func RandN(mu, sigma float64) (*HyperValue, error) {
	hv, err := Uniform(0.0, 1.0)
	if err != nil {
		return nil, err
	}
	dist := distuv.Normal{Mu: mu, Sigma: sigma}
	return hv.then(func(v interface{}) interface{} {
		return dist.Quantile(asFloat(v))
	}), nil
}
