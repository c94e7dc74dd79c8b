package random_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpoforge/hpo/pkg/algorithm/random"
	"github.com/hpoforge/hpo/pkg/hypervalue"
	"github.com/hpoforge/hpo/pkg/poolservice"
)

type countHooks struct {
	mu    sync.Mutex
	count int
}

func (h *countHooks) BeforeExec(poolservice.Task) {}
func (h *countHooks) Exec(poolservice.Task) (interface{}, error) {
	h.mu.Lock()
	h.count++
	h.mu.Unlock()
	return "ok", nil
}
func (h *countHooks) AfterExec(poolservice.Task, poolservice.Result)     {}
func (h *countHooks) AfterCallback(poolservice.Task, poolservice.Result) {}
func (h *countHooks) AfterSentback(poolservice.Task, poolservice.Result) {}

func TestRandomRespectsMaxSteps(t *testing.T) {
	x, err := hypervalue.Uniform(0, 1)
	require.NoError(t, err)
	template := map[string]interface{}{"x": x}

	hooks := &countHooks{}
	svc := poolservice.New(hooks, poolservice.Config{ExecWorkers: 2}, nil)
	require.NoError(t, svc.Start())

	n := 10
	algo := random.New(nil, &n)
	session, err := algo.GetSession(template, svc)
	require.NoError(t, err)
	require.NoError(t, session.Start())
	session.Join()

	hooks.mu.Lock()
	defer hooks.mu.Unlock()
	assert.Equal(t, 10, hooks.count)
}

func TestRandomDedupsOnFiniteSpace(t *testing.T) {
	seed := uint64(42)
	choice, err := hypervalue.Choice([]interface{}{"a", "b"})
	require.NoError(t, err)
	template := map[string]interface{}{"c": choice}

	hooks := &countHooks{}
	svc := poolservice.New(hooks, poolservice.Config{ExecWorkers: 2}, nil)
	require.NoError(t, svc.Start())

	n := 100
	algo := random.New(&seed, &n)
	session, err := algo.GetSession(template, svc)
	require.NoError(t, err)
	require.NoError(t, session.Start())
	session.Join()

	hooks.mu.Lock()
	defer hooks.mu.Unlock()
	assert.Equal(t, 2, hooks.count) // only 2 distinct combinations exist
}
