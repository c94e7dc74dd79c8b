package runner_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpoforge/hpo/pkg/algorithm/grid"
	"github.com/hpoforge/hpo/pkg/algorithm/random"
	"github.com/hpoforge/hpo/pkg/hypervalue"
	"github.com/hpoforge/hpo/pkg/resultexpr"
	"github.com/hpoforge/hpo/pkg/runner"
)

func buildSpace(t *testing.T) map[string]interface{} {
	t.Helper()
	x, err := hypervalue.QUniform(-2, 2, 1)
	require.NoError(t, err)
	y, err := hypervalue.QUniform(-2, 2, 1)
	require.NoError(t, err)
	return map[string]interface{}{"x": x, "y": y}
}

func TestRunnerGridFindsMinimum(t *testing.T) {
	space := buildSpace(t)
	fn := func(cfg interface{}) (interface{}, error) {
		m := cfg.(map[string]interface{})
		x := m["x"].(float64)
		y := m["y"].(float64)
		return map[string]interface{}{"result": x*x + y*y}, nil
	}

	target := resultexpr.R().Index("result")
	steps := 25
	r := runner.New(grid.New(&steps), fn).
		MaxWorkers(2).
		MaxRetries(1).
		Rank(3).
		Spaces(space).
		Minimize(target, "result")

	report, err := r.Run()
	require.NoError(t, err)
	require.NotNil(t, report)

	ret := report.Retval.(map[string]interface{})
	assert.LessOrEqual(t, ret["result"].(float64), 1.0)
}

func TestRunnerRequiresDirection(t *testing.T) {
	space := buildSpace(t)
	fn := func(cfg interface{}) (interface{}, error) { return 0.0, nil }
	steps := 5
	r := runner.New(grid.New(&steps), fn).Spaces(space)

	_, err := r.Run()
	require.Error(t, err)
}

func TestRunnerRejectsDoubleTarget(t *testing.T) {
	space := buildSpace(t)
	fn := func(cfg interface{}) (interface{}, error) { return 0.0, nil }
	steps := 5
	r := runner.New(grid.New(&steps), fn).
		Spaces(space).
		Minimize(resultexpr.R(), "result").
		Maximize(resultexpr.R(), "result")

	_, err := r.Run()
	require.Error(t, err)
}

func TestRunnerRetriesThenFails(t *testing.T) {
	space := buildSpace(t)
	attempts := 0
	fn := func(cfg interface{}) (interface{}, error) {
		attempts++
		return nil, errors.New("boom")
	}

	steps := 1
	r := runner.New(grid.New(&steps), fn).
		MaxRetries(3).
		Rank(1).
		Spaces(space).
		Minimize(resultexpr.R(), "result")

	report, err := r.Run()
	require.NoError(t, err)
	assert.Nil(t, report)
	assert.GreaterOrEqual(t, attempts, 3)
}

func TestRunnerSkipDiscardsTrial(t *testing.T) {
	space := buildSpace(t)
	fn := func(cfg interface{}) (interface{}, error) {
		return nil, runner.Skip(errors.New("not interesting"))
	}

	var seed uint64 = 7
	steps := 4
	r := runner.New(random.New(&seed, &steps), fn).
		Rank(1).
		Spaces(space).
		Minimize(resultexpr.R(), "result")

	report, err := r.Run()
	require.NoError(t, err)
	assert.Nil(t, report)
}

func TestRunnerSeededRandomIsDeterministic(t *testing.T) {
	space := buildSpace(t)
	fn := func(cfg interface{}) (interface{}, error) {
		m := cfg.(map[string]interface{})
		return map[string]interface{}{"result": m["x"].(float64) * m["y"].(float64)}, nil
	}

	best := func() float64 {
		var seed uint64 = 12
		steps := 20
		r := runner.New(random.New(&seed, &steps), fn).
			Rank(3).
			Spaces(space).
			Minimize(resultexpr.R().Index("result"), "result")
		report, err := r.Run()
		require.NoError(t, err)
		require.NotNil(t, report)
		return report.Retval.(map[string]interface{})["result"].(float64)
	}

	assert.Equal(t, best(), best())
}

func TestRunnerStopWhen(t *testing.T) {
	space := buildSpace(t)
	fn := func(cfg interface{}) (interface{}, error) {
		m := cfg.(map[string]interface{})
		return map[string]interface{}{"result": m["x"].(float64) + m["y"].(float64)}, nil
	}

	var seed uint64 = 11
	steps := 50
	r := runner.New(random.New(&seed, &steps), fn).
		Rank(5).
		Spaces(space).
		Minimize(resultexpr.R().Index("result"), "result").
		StopWhen(resultexpr.R().Index("result").Abs().Lte(0.0))

	report, err := r.Run()
	require.NoError(t, err)
	if report != nil {
		ret := report.Retval.(map[string]interface{})
		assert.LessOrEqual(t, ret["result"].(float64), 4.0)
	}
}
