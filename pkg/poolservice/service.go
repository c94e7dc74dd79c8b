// Package poolservice implements the bounded worker pool shared by every
// search algorithm session: Send admits at most ExecWorkers tasks at a
// time, each running on its own goroutine; once a task's Exec completes,
// its callback hook and its event hook fan out onto two further pools,
// bounded by CallbackWorkers and EventWorkers respectively. Keeping those
// two stages off the exec path means a slow callback (e.g. updating a
// rank list) never blocks new work from starting, while their own bounds
// keep a burst of fast Exec calls from piling up hook goroutines without
// limit.
package poolservice

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/hpoforge/hpo/pkg/hpoerrors"
)

// State is the Service lifecycle: Pending->Running->Closing->Dead, with
// no reverse edges.
type State int32

const (
	StatePending State = iota
	StateRunning
	StateClosing
	StateDead
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRunning:
		return "running"
	case StateClosing:
		return "closing"
	case StateDead:
		return "dead"
	default:
		return "unknown"
	}
}

// Task is one unit of work submitted to the pool.
type Task struct {
	ID      int64
	Payload interface{}
}

// Result carries a completed task's outcome to the callback/event hooks.
type Result struct {
	Task  Task
	Value interface{}
	Err   error
}

// Ok reports whether the task completed without error.
func (r Result) Ok() bool { return r.Err == nil }

// Hooks is implemented by whatever is driving the pool, typically
// pkg/runner's Runner.
type Hooks interface {
	// BeforeExec runs on the exec pool immediately before Exec.
	BeforeExec(task Task)
	// Exec performs the actual work and returns its result.
	Exec(task Task) (interface{}, error)
	// AfterExec runs on the exec pool immediately after Exec.
	AfterExec(task Task, result Result)
	// AfterCallback runs on the callback pool after the per-task
	// fnCallback (if any).
	AfterCallback(task Task, result Result)
	// AfterSentback runs on the event pool, independently of the
	// callback pool, once a result is available.
	AfterSentback(task Task, result Result)
}

// sendBackoff is the fixed poll interval Send uses while the exec pool is
// at capacity.
const sendBackoff = 50 * time.Millisecond

type job struct {
	task       Task
	fnCallback func(Result)
}

// Config bounds each of the three pools: ExecWorkers caps how many tasks
// may execute at once (Send's admission gate), CallbackWorkers caps how
// many completed tasks' fnCallback/AfterCallback hooks may run
// concurrently, and EventWorkers does the same for AfterSentback.
// CallbackWorkers and EventWorkers default to ExecWorkers when unset.
type Config struct {
	ExecWorkers     int
	CallbackWorkers int
	EventWorkers    int
}

// Metrics is satisfied by pkg/poolservice/metrics.go's Prometheus
// collector; a nil Metrics is a valid no-op.
type Metrics interface {
	SetRunning(n int)
	IncOutcome(outcome string)
}

// Service is the bounded worker pool.
type Service struct {
	hooks   Hooks
	cfg     Config
	metrics Metrics

	mu       sync.Mutex
	state    State
	running  int
	firstErr error

	callbackSem *semaphore.Weighted
	eventSem    *semaphore.Weighted

	execWG     sync.WaitGroup
	callbackWG sync.WaitGroup
	eventWG    sync.WaitGroup

	closed chan struct{}
}

// New builds a Service in StatePending; call Start to begin processing.
func New(hooks Hooks, cfg Config, metrics Metrics) *Service {
	if cfg.ExecWorkers <= 0 {
		cfg.ExecWorkers = 1
	}
	if cfg.CallbackWorkers <= 0 {
		cfg.CallbackWorkers = cfg.ExecWorkers
	}
	if cfg.EventWorkers <= 0 {
		cfg.EventWorkers = cfg.ExecWorkers
	}
	return &Service{
		hooks:       hooks,
		cfg:         cfg,
		metrics:     metrics,
		callbackSem: semaphore.NewWeighted(int64(cfg.CallbackWorkers)),
		eventSem:    semaphore.NewWeighted(int64(cfg.EventWorkers)),
		closed:      make(chan struct{}),
	}
}

// State returns the current lifecycle state.
func (s *Service) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the first error returned by any Exec call or recovered from
// a hook panic, or nil.
func (s *Service) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.firstErr
}

// Start transitions Pending -> Running.
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StatePending {
		return hpoerrors.Internal("poolservice.Start", nil)
	}
	s.state = StateRunning
	return nil
}

// Send admits task for execution. fnCallback, if non-nil, runs on the
// callback goroutine once the task completes, before Hooks.AfterCallback.
// Admission is gated on running_count < ExecWorkers: Send blocks up to
// timeout polling every sendBackoff while the pool is at capacity, and a
// zero timeout means try once and fail immediately with PoolBusy. Once
// admitted, running_count is incremented before Send returns and the task
// is dispatched to its own goroutine, which decrements running_count once
// Exec and AfterExec have completed and the task's callback and event
// hooks have been admitted to their pools (or right away when BeforeExec
// or AfterExec panics).
func (s *Service) Send(task Task, fnCallback func(Result), timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	j := job{task: task, fnCallback: fnCallback}
	for {
		s.mu.Lock()
		if s.state == StateClosing || s.state == StateDead {
			s.mu.Unlock()
			return hpoerrors.PoolClosed("poolservice.Send")
		}
		if s.running < s.cfg.ExecWorkers {
			s.running++
			if s.metrics != nil {
				s.metrics.SetRunning(s.running)
			}
			s.execWG.Add(1)
			s.mu.Unlock()
			go s.runOne(j)
			return nil
		}
		s.mu.Unlock()

		if timeout <= 0 || time.Now().After(deadline) {
			return hpoerrors.PoolBusy("poolservice.Send")
		}
		time.Sleep(sendBackoff)
	}
}

// recordFatal captures err as the service's first internal error, if none
// is recorded yet, and shuts the service down without waiting: the first
// failure out of any hook or caller-supplied callback becomes the
// service error and the pool stops accepting new work.
func (s *Service) recordFatal(err error) {
	s.mu.Lock()
	first := s.firstErr == nil
	if first {
		s.firstErr = err
	}
	s.mu.Unlock()
	if first {
		s.Shutdown(false)
	}
}

// guardHook runs fn, recovering any panic and feeding it to recordFatal.
// Hooks is implemented by caller-supplied code (an algorithm session, a
// test double), and a panic there is a service-internal failure rather
// than a trial failure. It reports whether fn completed without
// panicking, so callers can skip work that depends on the failed hook.
func (s *Service) guardHook(fn func()) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			s.recordFatal(fmt.Errorf("poolservice: hook panic: %v", r))
			ok = false
		}
	}()
	fn()
	return true
}

func (s *Service) runOne(j job) {
	defer s.execWG.Done()

	if !s.guardHook(func() { s.hooks.BeforeExec(j.task) }) {
		s.decRunning()
		return
	}

	value, err := s.hooks.Exec(j.task)
	result := Result{Task: j.task, Value: value, Err: err}
	afterExecOK := s.guardHook(func() { s.hooks.AfterExec(j.task, result) })

	s.mu.Lock()
	if err != nil && s.firstErr == nil {
		s.firstErr = err
	}
	s.mu.Unlock()

	if s.metrics != nil {
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		s.metrics.IncOutcome(outcome)
	}

	if !afterExecOK {
		s.decRunning()
		return
	}

	// The callback pool and the event pool run independently of each
	// other: a slow rank-list update in the callback path must not delay
	// the next task's AfterSentback notification, and vice versa. Each
	// submission blocks on its pool's semaphore, and the exec slot is
	// released only after both are admitted, so no stage ever holds more
	// goroutines than its configured worker count.
	_ = s.callbackSem.Acquire(context.Background(), 1)
	s.callbackWG.Add(1)
	go func() {
		defer s.callbackWG.Done()
		defer s.callbackSem.Release(1)
		s.guardHook(func() {
			if j.fnCallback != nil {
				j.fnCallback(result)
			}
			s.hooks.AfterCallback(j.task, result)
		})
	}()

	_ = s.eventSem.Acquire(context.Background(), 1)
	s.eventWG.Add(1)
	go func() {
		defer s.eventWG.Done()
		defer s.eventSem.Release(1)
		s.guardHook(func() { s.hooks.AfterSentback(j.task, result) })
	}()

	s.decRunning()
}

func (s *Service) decRunning() {
	s.mu.Lock()
	s.running--
	if s.metrics != nil {
		s.metrics.SetRunning(s.running)
	}
	s.mu.Unlock()
}

// Shutdown transitions Running -> Closing and stops accepting new Send
// calls. A closer goroutine drains every in-flight task and its
// callback/event hooks, then transitions to Dead. With wait=true the call
// blocks until the service is Dead; with wait=false it returns
// immediately while the drain proceeds in the background.
func (s *Service) Shutdown(wait bool) {
	s.mu.Lock()
	alreadyClosing := s.state == StateClosing || s.state == StateDead
	if !alreadyClosing {
		s.state = StateClosing
	}
	s.mu.Unlock()

	if !alreadyClosing {
		go s.closer()
	}
	if wait {
		<-s.closed
	}
}

// closer joins the three pools in order (exec, then callback, then
// event), then marks the service Dead. Runs exactly once. Once the exec
// pool is drained no further callback/event submissions can appear, so
// the later waits cannot miss work.
func (s *Service) closer() {
	s.execWG.Wait()
	s.callbackWG.Wait()
	s.eventWG.Wait()

	s.mu.Lock()
	s.state = StateDead
	s.mu.Unlock()
	close(s.closed)
}
