package grid_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpoforge/hpo/pkg/algorithm/grid"
	"github.com/hpoforge/hpo/pkg/hypervalue"
	"github.com/hpoforge/hpo/pkg/poolservice"
)

type echoHooks struct {
	mu   sync.Mutex
	seen []interface{}
}

func (h *echoHooks) BeforeExec(poolservice.Task) {}
func (h *echoHooks) Exec(task poolservice.Task) (interface{}, error) {
	h.mu.Lock()
	h.seen = append(h.seen, task.Payload)
	h.mu.Unlock()
	return "ok", nil
}
func (h *echoHooks) AfterExec(poolservice.Task, poolservice.Result)      {}
func (h *echoHooks) AfterCallback(poolservice.Task, poolservice.Result)  {}
func (h *echoHooks) AfterSentback(poolservice.Task, poolservice.Result) {}

func TestGridEnumeratesFixedAndStepped(t *testing.T) {
	color, err := hypervalue.Choice([]interface{}{"red", "green"})
	require.NoError(t, err)
	level, err := hypervalue.QUniform(0, 2, 1)
	require.NoError(t, err)

	template := map[string]interface{}{"color": color, "level": level}

	hooks := &echoHooks{}
	svc := poolservice.New(hooks, poolservice.Config{ExecWorkers: 2}, nil)
	require.NoError(t, svc.Start())

	algo := grid.New(nil)
	session, err := algo.GetSession(template, svc)
	require.NoError(t, err)
	require.NoError(t, session.Start())
	session.Join()

	hooks.mu.Lock()
	defer hooks.mu.Unlock()
	assert.Len(t, hooks.seen, 6) // 2 colors * 3 levels
}

func TestGridRejectsUnboundedContinuous(t *testing.T) {
	x, err := hypervalue.Uniform(0, 1)
	require.NoError(t, err)
	template := map[string]interface{}{"x": x}

	hooks := &echoHooks{}
	svc := poolservice.New(hooks, poolservice.Config{ExecWorkers: 1}, nil)
	require.NoError(t, svc.Start())
	defer svc.Shutdown(false)

	algo := grid.New(nil)
	_, err = algo.GetSession(template, svc)
	require.Error(t, err)
}

func TestGridRespectsMaxSteps(t *testing.T) {
	x, err := hypervalue.Uniform(0, 1)
	require.NoError(t, err)
	template := map[string]interface{}{"x": x}

	hooks := &echoHooks{}
	svc := poolservice.New(hooks, poolservice.Config{ExecWorkers: 2}, nil)
	require.NoError(t, svc.Start())

	n := 4
	algo := grid.New(&n)
	session, err := algo.GetSession(template, svc)
	require.NoError(t, err)
	require.NoError(t, session.Start())
	session.Join()

	hooks.mu.Lock()
	defer hooks.mu.Unlock()
	assert.Len(t, hooks.seen, n)
}
