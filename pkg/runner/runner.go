// Package runner implements the parallel search orchestrator: it binds
// an algorithm session to a bounded worker pool,
// runs the per-task retry/skip attempt loop, maintains the live rank list,
// evaluates stop conditions, and fans lifecycle events out to any number
// of observers.
package runner

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hpoforge/hpo/pkg/algorithm"
	"github.com/hpoforge/hpo/pkg/hpoerrors"
	"github.com/hpoforge/hpo/pkg/poolservice"
	"github.com/hpoforge/hpo/pkg/ranklist"
	"github.com/hpoforge/hpo/pkg/resultexpr"
)

// Func is the black-box evaluation function contract: it receives a
// reconstructed configuration and returns any value the caller's result
// expressions can probe. Returning a Skip(...) error discards the trial
// without counting it as a failure; any other error is retried up to
// MaxRetries.
type Func func(config interface{}) (interface{}, error)

// maxStepsSetter is implemented by algorithms whose concrete budget
// (grid/random/bayes all carry a *int MaxSteps field) can be bound by the
// runner's fluent MaxSteps setting instead of at algorithm construction.
type maxStepsSetter interface{ SetMaxSteps(*int) }

// directionSetter is implemented by algorithms (currently only Bayes)
// whose internal behavior depends on maximize-vs-minimize.
type directionSetter interface{ SetDirection(maximize bool) }

// dimCounter is implemented by every algorithm.BaseSession-backed Session;
// it reports the flattened search space's dimensionality.
type dimCounter interface{ DimCount() int }

// concern is one additional column the rank list reports alongside the
// optimization target.
type concern struct {
	expr resultexpr.Value
	name string
}

// pendingEntry carries one task's attempt outcome between Exec and the
// callback/event pool hooks that consume it. remaining starts at 2 (one
// for AfterCallback, one for AfterSentback); whichever hook observes it
// reach 0 deletes the entry.
type pendingEntry struct {
	result    *RunResult
	remaining int32
}

// Runner is the fluent configuration surface for a search. Settings
// may be applied in any order; Run validates them once at call time.
type Runner struct {
	algo          algorithm.Algorithm
	spaceTemplate interface{}
	fn            Func

	maxSteps   *int
	maxWorkers int
	maxRetries int

	targetExpr resultexpr.Value
	targetName string
	maximize   bool
	targetSets int

	stopWhen []resultexpr.Value
	concerns []concern
	rankCap  int
	sinks    []EventSink
	metrics  poolservice.Metrics

	// populated by Run(), consumed by the poolservice.Hooks methods below.
	sink    EventSink
	rank    *ranklist.RankList[RunResult]
	svc     *poolservice.Service
	stopMet int32
	pending sync.Map // task ID (int64) -> *pendingEntry
}

// New builds a Runner with conservative defaults: one worker, one
// attempt per task (no retry), and a rank list of capacity 10.
func New(algo algorithm.Algorithm, fn Func) *Runner {
	return &Runner{
		algo:       algo,
		fn:         fn,
		maxWorkers: 1,
		maxRetries: 1,
		rankCap:    10,
	}
}

func (r *Runner) MaxSteps(n int) *Runner   { r.maxSteps = &n; return r }
func (r *Runner) MaxWorkers(n int) *Runner { r.maxWorkers = n; return r }
func (r *Runner) MaxRetries(n int) *Runner { r.maxRetries = n; return r }
func (r *Runner) Rank(n int) *Runner       { r.rankCap = n; return r }
func (r *Runner) Spaces(template interface{}) *Runner {
	r.spaceTemplate = template
	return r
}

// Maximize sets the optimization target. Exactly one of Maximize/Minimize
// must be called before Run.
func (r *Runner) Maximize(expr resultexpr.Value, name string) *Runner {
	r.targetExpr, r.targetName, r.maximize = expr, name, true
	r.targetSets++
	return r
}

// Minimize sets the optimization target. Exactly one of Maximize/Minimize
// must be called before Run.
func (r *Runner) Minimize(expr resultexpr.Value, name string) *Runner {
	r.targetExpr, r.targetName, r.maximize = expr, name, false
	r.targetSets++
	return r
}

// StopWhen OR-composes an early-stop predicate: the run halts as soon as
// any registered predicate accepts a successful result.
func (r *Runner) StopWhen(expr resultexpr.Value) *Runner {
	r.stopWhen = append(r.stopWhen, expr)
	return r
}

// Concern adds an extra column the rank list reports alongside the target.
func (r *Runner) Concern(expr resultexpr.Value, name string) *Runner {
	r.concerns = append(r.concerns, concern{expr: expr, name: name})
	return r
}

// Sink registers an additional event observer.
func (r *Runner) Sink(sink EventSink) *Runner {
	r.sinks = append(r.sinks, sink)
	return r
}

// Metrics attaches a worker-pool metrics collector (e.g.
// poolservice.NewPromMetrics) to the service Run builds.
func (r *Runner) Metrics(m poolservice.Metrics) *Runner {
	r.metrics = m
	return r
}

// Report is what Run returns on success: the best entry in the final rank
// list, or nil if the rank list ended up empty (every trial failed, was
// skipped, or no trials ran).
type Report struct {
	Config  interface{}
	Retval  interface{}
	Metrics map[string]interface{}
}

// failedOutcome is the value Exec returns for a trial that failed or was
// skipped. It implements algorithm.FailureMarker so BaseSession routes it
// to ReturnOnFailed instead of treating it as a successful sample.
type failedOutcome struct{ err error }

func (f failedOutcome) Cause() error { return f.err }

// Run executes the search: build service + session, start both,
// join the session, shut the service down, and return the best-ranked
// result (or re-raise whatever error aborted the search).
func (r *Runner) Run() (*Report, error) {
	if r.targetSets == 0 {
		return nil, hpoerrors.ConfigError("runner.Run", "exactly one of Maximize/Minimize must be set")
	}
	if r.targetSets > 1 {
		return nil, hpoerrors.ConfigError("runner.Run", "the optimization target may only be set once")
	}

	r.sink = multiSink{sinks: r.sinks}

	if setter, ok := r.algo.(maxStepsSetter); ok {
		setter.SetMaxSteps(r.maxSteps)
	}
	if setter, ok := r.algo.(directionSetter); ok {
		setter.SetDirection(r.maximize)
	}

	columns := make([]ranklist.Column[RunResult], 0, len(r.concerns)+1)
	columns = append(columns, ranklist.Column[RunResult]{
		Name:  r.targetName,
		Value: func(rr RunResult) string { return fmt.Sprintf("%v", rr.Value(r.targetExpr)) },
	})
	for _, c := range r.concerns {
		c := c
		columns = append(columns, ranklist.Column[RunResult]{
			Name:  c.name,
			Value: func(rr RunResult) string { v, _ := rr.Get(c.expr); return fmt.Sprintf("%v", v) },
		})
	}
	r.rank = ranklist.New(r.rankCap, func(rr RunResult) float64 { return rr.Value(r.targetExpr) }, r.maximize, columns...)

	r.svc = poolservice.New(r, poolservice.Config{
		ExecWorkers: r.maxWorkers,
	}, r.metrics)

	r.sink.Init(r.algo.Name(), map[string]interface{}{
		"max_workers": r.maxWorkers,
		"max_retries": r.maxRetries,
		"maximize":    r.maximize,
	})

	session, err := r.algo.GetSession(r.spaceTemplate, r.svc)
	if err != nil {
		return nil, err
	}
	dims := 0
	if dc, ok := session.(dimCounter); ok {
		dims = dc.DimCount()
	}
	r.sink.InitOK(dims)

	if err := r.svc.Start(); err != nil {
		return nil, err
	}
	r.sink.RunStart()

	if err := session.Start(); err != nil {
		r.svc.Shutdown(true)
		return nil, err
	}
	session.Join()
	r.svc.Shutdown(true)

	var finalErr error
	if svcErr := r.svc.Err(); svcErr != nil {
		finalErr = svcErr
	} else if sessErr := session.Err(); sessErr != nil {
		finalErr = sessErr
	}

	stopMet := atomic.LoadInt32(&r.stopMet) != 0
	r.sink.RunComplete(stopMet)

	if finalErr != nil {
		return nil, finalErr
	}

	items := r.rank.Items()
	if len(items) == 0 {
		return nil, nil
	}
	best := items[0]
	return &Report{Config: best.Config, Retval: best.Retval, Metrics: best.Metrics}, nil
}

// --- poolservice.Hooks implementation ---

var _ poolservice.Hooks = (*Runner)(nil)

func (r *Runner) BeforeExec(task poolservice.Task) {
	st, _ := task.Payload.(algorithm.SessionTask)
	r.sink.Step(task.ID, st.Config)
}

// Exec runs the per-task attempt loop: on success it returns
// the raw retval (what the bound algorithm's ReturnOnSuccess/Bayes.Target
// expects), stashing the full RunResult in r.pending for AfterCallback and
// AfterSentback to consume. On Skip or exhausted retries it returns a
// failedOutcome marker with a nil Go error, so the per-trial failure never
// pollutes poolservice's first-service-error tracking; only genuine
// internal hook errors should abort the whole search.
func (r *Runner) Exec(task poolservice.Task) (interface{}, error) {
	st, ok := task.Payload.(algorithm.SessionTask)
	if !ok {
		return nil, hpoerrors.Internal("runner.Exec", errors.New("unexpected task payload type"))
	}

	var lastErr error
	var lastMetrics map[string]interface{}
	for attempt := 0; attempt < r.maxRetries; attempt++ {
		r.sink.Try(task.ID, attempt, r.maxRetries)
		start := time.Now()
		v, err := r.fn(st.Config)
		m := map[string]interface{}{"time": time.Since(start).Seconds()}
		r.sink.TryComplete(task.ID, m)

		if err == nil {
			r.sink.TryOK(task.ID, v)
			rr := RunResult{TaskID: task.ID, Config: st.Config, Retval: v, Metrics: m}
			r.pending.Store(task.ID, &pendingEntry{result: &rr, remaining: 2})
			r.sink.StepOK(task.ID, v, m)
			return v, nil
		}
		if IsSkip(err) {
			r.sink.TrySkip(task.ID, err.Error())
			skipped := hpoerrors.RunSkipped(m)
			r.pending.Store(task.ID, &pendingEntry{result: nil, remaining: 2})
			r.sink.StepSkip(task.ID, err.Error(), m)
			return failedOutcome{err: skipped}, nil
		}

		r.sink.TryFail(task.ID, err)
		lastErr, lastMetrics = err, m
	}

	failed := hpoerrors.RunFailed(lastErr, lastMetrics)
	r.pending.Store(task.ID, &pendingEntry{result: nil, remaining: 2})
	r.sink.StepFail(task.ID, failed, lastMetrics)
	return failedOutcome{err: failed}, nil
}

func (r *Runner) AfterExec(poolservice.Task, poolservice.Result) {}

// AfterCallback checks the stop condition on a successful result and,
// once satisfied, triggers a graceful (wait=false) shutdown so in-flight
// tasks finish but no new work is admitted.
func (r *Runner) AfterCallback(task poolservice.Task, _ poolservice.Result) {
	entry := r.takePending(task.ID)
	if entry == nil || entry.result == nil {
		return
	}
	rec := entry.result.record()
	for _, pred := range r.stopWhen {
		v, err := pred.Eval(rec)
		if err != nil {
			continue
		}
		if b, ok := v.(bool); ok && b {
			if atomic.CompareAndSwapInt32(&r.stopMet, 0, 1) {
				r.svc.Shutdown(false)
			}
			break
		}
	}
}

// AfterSentback appends successful results to the rank list and renders
// the per-step table, independent of the callback pool's stop check.
func (r *Runner) AfterSentback(task poolservice.Task, _ poolservice.Result) {
	entry := r.takePending(task.ID)
	if entry == nil || entry.result == nil {
		return
	}
	r.rank.Append(*entry.result)
	r.sink.StepFinal(task.ID, r.rank)
}

// takePending returns the entry for id and deletes it once both
// AfterCallback and AfterSentback have consumed it.
func (r *Runner) takePending(id int64) *pendingEntry {
	v, ok := r.pending.Load(id)
	if !ok {
		return nil
	}
	e := v.(*pendingEntry)
	if atomic.AddInt32(&e.remaining, -1) == 0 {
		r.pending.Delete(id)
	}
	return e
}
