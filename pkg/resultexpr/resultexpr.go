// Package resultexpr implements the small expression language used to
// describe "which part of a trial's outcome matters" (for ranking,
// stop conditions, and rank-list columns) without requiring callers to
// write Go closures by hand.
package resultexpr

import (
	"fmt"
	"math"
	"reflect"
)

// Record is the evaluation context an Expr runs against: one trial's
// config, its return value, and any metrics gathered while running it.
type Record struct {
	Config  interface{}
	Return  interface{}
	Metrics interface{}
}

// Expr is one node of the expression AST.
type Expr interface {
	Eval(rec Record) (interface{}, error)
}

// Value is the fluent builder wrapping an Expr so call sites read like
// resultexpr.R().Index("result").Gt(0.9).
type Value struct {
	expr Expr
}

func wrap(e Expr) Value { return Value{expr: e} }

// Expr exposes the underlying AST node, e.g. to hand to a Session's
// ordering or stop-condition hook.
func (v Value) Expr() Expr { return v.expr }

// Eval runs the expression against rec.
func (v Value) Eval(rec Record) (interface{}, error) { return v.expr.Eval(rec) }

// --- roots ---

type rootKind int

const (
	rootConfig rootKind = iota
	rootReturn
	rootMetrics
)

type rootExpr struct{ kind rootKind }

func (r rootExpr) Eval(rec Record) (interface{}, error) {
	switch r.kind {
	case rootConfig:
		return rec.Config, nil
	case rootReturn:
		return rec.Return, nil
	case rootMetrics:
		return rec.Metrics, nil
	default:
		return nil, fmt.Errorf("resultexpr: unknown root kind")
	}
}

// C references the trial's sampled configuration.
func C() Value { return wrap(rootExpr{rootConfig}) }

// R references the trial's raw return value.
func R() Value { return wrap(rootExpr{rootReturn}) }

// M references the trial's metrics map.
func M() Value { return wrap(rootExpr{rootMetrics}) }

// Const lifts a plain Go value into the expression language.
func Const(v interface{}) Value { return wrap(litExpr{v}) }

type litExpr struct{ v interface{} }

func (l litExpr) Eval(Record) (interface{}, error) { return l.v, nil }

func toExpr(v interface{}) Expr {
	if val, ok := v.(Value); ok {
		return val.expr
	}
	return litExpr{v}
}

// --- indexing / attribute access ---

type indexExpr struct {
	base Expr
	key  interface{}
}

func (i indexExpr) Eval(rec Record) (interface{}, error) {
	base, err := i.base.Eval(rec)
	if err != nil {
		return nil, err
	}
	switch b := base.(type) {
	case map[string]interface{}:
		key, ok := i.key.(string)
		if !ok {
			return nil, fmt.Errorf("resultexpr: map index requires a string key, got %T", i.key)
		}
		v, ok := b[key]
		if !ok {
			return nil, fmt.Errorf("resultexpr: key %q not found", key)
		}
		return v, nil
	case []interface{}:
		idx, ok := i.key.(int)
		if !ok {
			return nil, fmt.Errorf("resultexpr: slice index requires an int key, got %T", i.key)
		}
		if idx < 0 {
			idx += len(b)
		}
		if idx < 0 || idx >= len(b) {
			return nil, fmt.Errorf("resultexpr: index %d out of range", idx)
		}
		return b[idx], nil
	default:
		return nil, fmt.Errorf("resultexpr: cannot index value of type %T", base)
	}
}

// Index subscripts a map (string key) or slice (int key, negative-from-end
// supported).
func (v Value) Index(key interface{}) Value { return wrap(indexExpr{v.expr, key}) }

type attrExpr struct {
	base Expr
	name string
}

func (a attrExpr) Eval(rec Record) (interface{}, error) {
	base, err := a.base.Eval(rec)
	if err != nil {
		return nil, err
	}
	m, ok := base.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("resultexpr: cannot access attribute %q on %T", a.name, base)
	}
	v, ok := m[a.name]
	if !ok {
		return nil, fmt.Errorf("resultexpr: attribute %q not found", a.name)
	}
	return v, nil
}

// Attr accesses a named field of a map-shaped value.
func (v Value) Attr(name string) Value { return wrap(attrExpr{v.expr, name}) }

// --- arithmetic / comparison / logical ---

type binOp struct {
	left, right Expr
	op          string
}

func asFloat(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	default:
		return 0, false
	}
}

func (b binOp) Eval(rec Record) (interface{}, error) {
	lv, err := b.left.Eval(rec)
	if err != nil {
		return nil, err
	}
	if b.op == "&&" || b.op == "||" {
		lb, ok := lv.(bool)
		if !ok {
			return nil, fmt.Errorf("resultexpr: logical operator %q requires boolean operands", b.op)
		}
		// Short-circuit: the right operand is not evaluated when the left
		// one already decides the result.
		if (b.op == "&&" && !lb) || (b.op == "||" && lb) {
			return lb, nil
		}
	}
	rv, err := b.right.Eval(rec)
	if err != nil {
		return nil, err
	}

	switch b.op {
	case "+", "-", "*", "/", "%":
		lf, lok := asFloat(lv)
		rf, rok := asFloat(rv)
		if !lok || !rok {
			return nil, fmt.Errorf("resultexpr: arithmetic operator %q requires numeric operands, got %T and %T", b.op, lv, rv)
		}
		switch b.op {
		case "+":
			return lf + rf, nil
		case "-":
			return lf - rf, nil
		case "*":
			return lf * rf, nil
		case "/":
			return lf / rf, nil
		case "%":
			return math.Mod(lf, rf), nil
		}
	case "==", "!=":
		eq := reflect.DeepEqual(lv, rv)
		if lf, lok := asFloat(lv); lok {
			if rf, rok := asFloat(rv); rok {
				eq = lf == rf
			}
		}
		if b.op == "==" {
			return eq, nil
		}
		return !eq, nil
	case "<", "<=", ">", ">=":
		lf, lok := asFloat(lv)
		rf, rok := asFloat(rv)
		if !lok || !rok {
			return nil, fmt.Errorf("resultexpr: comparison operator %q requires numeric operands, got %T and %T", b.op, lv, rv)
		}
		switch b.op {
		case "<":
			return lf < rf, nil
		case "<=":
			return lf <= rf, nil
		case ">":
			return lf > rf, nil
		case ">=":
			return lf >= rf, nil
		}
	case "&&", "||":
		lb, lok := lv.(bool)
		rb, rok := rv.(bool)
		if !lok || !rok {
			return nil, fmt.Errorf("resultexpr: logical operator %q requires boolean operands", b.op)
		}
		if b.op == "&&" {
			return lb && rb, nil
		}
		return lb || rb, nil
	}
	return nil, fmt.Errorf("resultexpr: unknown operator %q", b.op)
}

func (v Value) binary(op string, other interface{}) Value {
	return wrap(binOp{v.expr, toExpr(other), op})
}

func (v Value) Add(other interface{}) Value { return v.binary("+", other) }
func (v Value) Sub(other interface{}) Value { return v.binary("-", other) }
func (v Value) Mul(other interface{}) Value { return v.binary("*", other) }
func (v Value) Div(other interface{}) Value { return v.binary("/", other) }
func (v Value) Mod(other interface{}) Value { return v.binary("%", other) }

func (v Value) Eq(other interface{}) Value  { return v.binary("==", other) }
func (v Value) Neq(other interface{}) Value { return v.binary("!=", other) }
func (v Value) Lt(other interface{}) Value  { return v.binary("<", other) }
func (v Value) Lte(other interface{}) Value { return v.binary("<=", other) }
func (v Value) Gt(other interface{}) Value  { return v.binary(">", other) }
func (v Value) Gte(other interface{}) Value { return v.binary(">=", other) }

func (v Value) And(other interface{}) Value { return v.binary("&&", other) }
func (v Value) Or(other interface{}) Value  { return v.binary("||", other) }

// Is reports deep equality with other: an exact-value match rather than
// numeric coercion.
func (v Value) Is(other interface{}) Value {
	return wrap(isExpr{v.expr, toExpr(other)})
}

type isExpr struct{ left, right Expr }

func (e isExpr) Eval(rec Record) (interface{}, error) {
	lv, err := e.left.Eval(rec)
	if err != nil {
		return nil, err
	}
	rv, err := e.right.Eval(rec)
	if err != nil {
		return nil, err
	}
	return reflect.DeepEqual(lv, rv), nil
}

// --- unary / aggregate helpers ---

type unaryExpr struct {
	base Expr
	kind string
	arg  string
}

func (u unaryExpr) Eval(rec Record) (interface{}, error) {
	base, err := u.base.Eval(rec)
	if err != nil {
		return nil, err
	}
	switch u.kind {
	case "not":
		b, ok := base.(bool)
		if !ok {
			return nil, fmt.Errorf("resultexpr: Not requires a boolean operand, got %T", base)
		}
		return !b, nil
	case "len":
		return reflectLen(base)
	case "abs":
		f, ok := asFloat(base)
		if !ok {
			return nil, fmt.Errorf("resultexpr: Abs requires a numeric operand, got %T", base)
		}
		return math.Abs(f), nil
	case "isinstance":
		return matchesKind(base, u.arg), nil
	case "sum", "mean", "stdev":
		nums, err := toFloatSlice(base)
		if err != nil {
			return nil, err
		}
		return aggregate(u.kind, nums)
	default:
		return nil, fmt.Errorf("resultexpr: unknown unary operator %q", u.kind)
	}
}

func reflectLen(v interface{}) (interface{}, error) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map, reflect.String:
		return rv.Len(), nil
	default:
		return nil, fmt.Errorf("resultexpr: Len requires a slice, map, or string, got %T", v)
	}
}

// matchesKind reports whether v's Go type corresponds to the named HPO
// scalar kind: "int", "float", "string", "bool", "list", "map".
func matchesKind(v interface{}, kind string) bool {
	switch kind {
	case "int":
		_, ok := v.(int)
		return ok
	case "float":
		_, ok := v.(float64)
		return ok
	case "string":
		_, ok := v.(string)
		return ok
	case "bool":
		_, ok := v.(bool)
		return ok
	case "list":
		_, ok := v.([]interface{})
		return ok
	case "map":
		_, ok := v.(map[string]interface{})
		return ok
	default:
		return false
	}
}

func toFloatSlice(v interface{}) ([]float64, error) {
	list, ok := v.([]interface{})
	if !ok {
		return nil, fmt.Errorf("resultexpr: aggregate operators require a list, got %T", v)
	}
	out := make([]float64, len(list))
	for i, item := range list {
		f, ok := asFloat(item)
		if !ok {
			return nil, fmt.Errorf("resultexpr: aggregate list element %d is not numeric (%T)", i, item)
		}
		out[i] = f
	}
	return out, nil
}

func aggregate(kind string, nums []float64) (interface{}, error) {
	if len(nums) == 0 {
		return nil, fmt.Errorf("resultexpr: aggregate %q requires a non-empty list", kind)
	}
	sum := 0.0
	for _, n := range nums {
		sum += n
	}
	mean := sum / float64(len(nums))
	switch kind {
	case "sum":
		return sum, nil
	case "mean":
		return mean, nil
	case "stdev":
		if len(nums) < 2 {
			return nil, fmt.Errorf("resultexpr: stdev requires at least two data points")
		}
		var variance float64
		for _, n := range nums {
			d := n - mean
			variance += d * d
		}
		// Sample standard deviation (n-1 denominator).
		variance /= float64(len(nums) - 1)
		return math.Sqrt(variance), nil
	default:
		return nil, fmt.Errorf("resultexpr: unknown aggregate %q", kind)
	}
}

func (v Value) Not() Value                { return wrap(unaryExpr{v.expr, "not", ""}) }
func (v Value) Len() Value                { return wrap(unaryExpr{v.expr, "len", ""}) }
func (v Value) Abs() Value                { return wrap(unaryExpr{v.expr, "abs", ""}) }
func (v Value) IsInstance(kind string) Value { return wrap(unaryExpr{v.expr, "isinstance", kind}) }
func (v Value) Sum() Value                { return wrap(unaryExpr{v.expr, "sum", ""}) }
func (v Value) Mean() Value               { return wrap(unaryExpr{v.expr, "mean", ""}) }
func (v Value) Stdev() Value              { return wrap(unaryExpr{v.expr, "stdev", ""}) }

// Call evaluates a user-supplied function against the current value, an
// escape hatch for arbitrary Go predicates inside an expression chain.
func (v Value) Call(fn func(interface{}) (interface{}, error)) Value {
	return wrap(callExpr{v.expr, fn})
}

type callExpr struct {
	base Expr
	fn   func(interface{}) (interface{}, error)
}

func (c callExpr) Eval(rec Record) (interface{}, error) {
	base, err := c.base.Eval(rec)
	if err != nil {
		return nil, err
	}
	return c.fn(base)
}
