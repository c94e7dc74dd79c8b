package scheduler

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/hpoforge/hpo/pkg/hpoerrors"
)

// tagKey is the extra hyperparameter every sample gets stamped with so
// its eventual Report can be matched back to the caller that submitted
// it.
const tagKey = "__hpo_scheduler_tag__"

// Callable adapts a running Scheduler to the black-box function
// signature pkg/runner.New expects, so a session can drive out-of-process
// trials exactly like in-process ones. Each call tags the config with a
// fresh uuid, submits it, and blocks until a Report carrying that tag
// arrives.
//
// pkg/runner dispatches many concurrent trials against one shared
// report stream, so a single dispatcher goroutine here fans every
// incoming report out to whichever call is waiting on its tag, instead
// of letting concurrent callers race to drain the shared Reports
// channel and potentially steal each other's results.
type Callable struct {
	sched *Scheduler
	hpoID func() string

	mu      sync.Mutex
	waiters map[string]chan Report
	started bool
}

// NewCallable wraps sched as a runner-compatible function. hpoID
// optionally supplies the per-sample identifier threaded into each
// task's name; if nil, the per-call uuid tag is used as the hpo id.
func NewCallable(sched *Scheduler, hpoID func() string) *Callable {
	return &Callable{
		sched:   sched,
		hpoID:   hpoID,
		waiters: make(map[string]chan Report),
	}
}

// Func returns the closure to hand to runner.New.
func (c *Callable) Func() func(interface{}) (interface{}, error) {
	return c.call
}

func (c *Callable) ensureDispatcher() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return
	}
	c.started = true
	go c.dispatch()
}

// dispatch is the single goroutine reading the scheduler's Reports
// channel, delivering each report to the waiter registered under its
// tag (dropping ones no call is waiting for, e.g. a retried/abandoned
// submission).
func (c *Callable) dispatch() {
	for batch := range c.sched.Reports() {
		for _, r := range batch {
			tag, _ := r.Params[tagKey].(string)
			c.mu.Lock()
			ch, ok := c.waiters[tag]
			if ok {
				delete(c.waiters, tag)
			}
			c.mu.Unlock()
			if ok {
				ch <- r
			}
		}
	}

	// The scheduler stopped publishing reports with calls still
	// in-flight (e.g. Scheduler.Run exited while trials were pending):
	// unblock every remaining waiter instead of leaking its goroutine.
	c.mu.Lock()
	for tag, ch := range c.waiters {
		delete(c.waiters, tag)
		close(ch)
	}
	c.mu.Unlock()
}

func (c *Callable) call(cfg interface{}) (interface{}, error) {
	params, ok := cfg.(map[string]interface{})
	if !ok {
		return nil, hpoerrors.ConfigError("scheduler.Callable", "scheduler callable requires a map[string]interface{} config")
	}

	c.ensureDispatcher()

	tagged := make(map[string]interface{}, len(params)+1)
	for k, v := range params {
		tagged[k] = v
	}
	tag := uuid.NewString()
	tagged[tagKey] = tag

	id := tag
	if c.hpoID != nil {
		id = c.hpoID()
	}

	wait := make(chan Report, 1)
	c.mu.Lock()
	c.waiters[tag] = wait
	c.mu.Unlock()

	c.sched.Submit(Sample{HPOID: id, Params: tagged})

	r, ok := <-wait
	if !ok {
		return nil, hpoerrors.RemoteTrialFailure(id, "scheduler closed its report channel before a result arrived")
	}
	if r.Status != "success" {
		return nil, hpoerrors.RemoteTrialFailure(
			fmt.Sprintf("hpo-id-%s-task-%d", r.HPOID, r.TaskID),
			"scheduler task did not complete successfully: "+r.Status,
		)
	}
	return r.Retval, nil
}
