package bayes_test

import (
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpoforge/hpo/pkg/algorithm"
	"github.com/hpoforge/hpo/pkg/algorithm/bayes"
	"github.com/hpoforge/hpo/pkg/hypervalue"
	"github.com/hpoforge/hpo/pkg/poolservice"
)

type quadraticHooks struct {
	mu    sync.Mutex
	count int
}

func (h *quadraticHooks) BeforeExec(poolservice.Task) {}

func (h *quadraticHooks) Exec(task poolservice.Task) (interface{}, error) {
	h.mu.Lock()
	h.count++
	h.mu.Unlock()

	st := task.Payload.(algorithm.SessionTask)
	cfg := st.Config.(map[string]interface{})
	x := cfg["x"].(float64)
	return math.Pow(x-1.5, 2), nil
}

func (h *quadraticHooks) AfterExec(poolservice.Task, poolservice.Result)     {}
func (h *quadraticHooks) AfterCallback(poolservice.Task, poolservice.Result) {}
func (h *quadraticHooks) AfterSentback(poolservice.Task, poolservice.Result) {}

func TestBayesRunsAndFitsSurrogate(t *testing.T) {
	x, err := hypervalue.Uniform(-5, 5)
	require.NoError(t, err)
	template := map[string]interface{}{"x": x}

	hooks := &quadraticHooks{}
	svc := poolservice.New(hooks, poolservice.Config{ExecWorkers: 1}, nil)
	require.NoError(t, svc.Start())

	n := 12
	algo := bayes.NewDefault(bayes.Minimize, func(retval interface{}) float64 {
		return retval.(float64)
	})
	algo.MaxSteps = &n
	algo.InitSteps = 3

	session, err := algo.GetSession(template, svc)
	require.NoError(t, err)
	require.NoError(t, session.Start())
	session.Join()

	hooks.mu.Lock()
	defer hooks.mu.Unlock()
	assert.Equal(t, n, hooks.count)
}
