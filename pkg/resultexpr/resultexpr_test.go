package resultexpr_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpoforge/hpo/pkg/resultexpr"
)

func TestIndexAndCompare(t *testing.T) {
	rec := resultexpr.Record{
		Return: map[string]interface{}{"accuracy": 0.97},
	}
	expr := resultexpr.R().Index("accuracy").Gt(0.9)
	v, err := expr.Eval(rec)
	require.NoError(t, err)
	assert.Equal(t, true, v)
}

func TestArithmeticOnMetrics(t *testing.T) {
	rec := resultexpr.Record{
		Metrics: map[string]interface{}{"time": 2.0},
	}
	expr := resultexpr.M().Index("time").Mul(1000.0)
	v, err := expr.Eval(rec)
	require.NoError(t, err)
	assert.Equal(t, 2000.0, v)
}

func TestLenAndSum(t *testing.T) {
	rec := resultexpr.Record{
		Return: []interface{}{1.0, 2.0, 3.0},
	}
	lenV, err := resultexpr.R().Len().Eval(rec)
	require.NoError(t, err)
	assert.Equal(t, 3, lenV)

	sumV, err := resultexpr.R().Sum().Eval(rec)
	require.NoError(t, err)
	assert.Equal(t, 6.0, sumV)
}

func TestMeanAndStdev(t *testing.T) {
	rec := resultexpr.Record{Return: []interface{}{2.0, 4.0, 4.0, 4.0, 5.0, 5.0, 7.0, 9.0}}
	meanV, err := resultexpr.R().Mean().Eval(rec)
	require.NoError(t, err)
	assert.InDelta(t, 5.0, meanV.(float64), 1e-9)

	// Sample standard deviation (n-1 denominator): sqrt(32/7).
	stdevV, err := resultexpr.R().Stdev().Eval(rec)
	require.NoError(t, err)
	assert.InDelta(t, 2.1380899352993947, stdevV.(float64), 1e-9)
}

func TestStdevRequiresAtLeastTwoPoints(t *testing.T) {
	rec := resultexpr.Record{Return: []interface{}{2.0}}
	_, err := resultexpr.R().Stdev().Eval(rec)
	require.Error(t, err)
}

func TestIsInstance(t *testing.T) {
	rec := resultexpr.Record{Config: map[string]interface{}{"lr": 0.01}}
	v, err := resultexpr.C().Index("lr").IsInstance("float").Eval(rec)
	require.NoError(t, err)
	assert.Equal(t, true, v)
}

func TestLogicalShortCircuitTypes(t *testing.T) {
	rec := resultexpr.Record{
		Return:  map[string]interface{}{"ok": true},
		Metrics: map[string]interface{}{"time": 1.0},
	}
	expr := resultexpr.R().Index("ok").And(resultexpr.M().Index("time").Lt(5.0))
	v, err := expr.Eval(rec)
	require.NoError(t, err)
	assert.Equal(t, true, v)
}
