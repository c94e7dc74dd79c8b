// Package algorithm defines the Algorithm/Session abstraction every search
// strategy (grid, random, bayes) implements, plus the BaseSession
// scaffolding shared by all three: flattening the space template once,
// running the sampling loop on its own goroutine, and handing every sample
// to the worker pool.
package algorithm

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hpoforge/hpo/pkg/hpoerrors"
	"github.com/hpoforge/hpo/pkg/hypervalue"
	"github.com/hpoforge/hpo/pkg/poolservice"
)

// SessionState is the session lifecycle: Pending->Running->Dead, terminal.
type SessionState int32

const (
	SessionPending SessionState = iota
	SessionRunning
	SessionDead
)

func (s SessionState) String() string {
	switch s {
	case SessionPending:
		return "pending"
	case SessionRunning:
		return "running"
	case SessionDead:
		return "dead"
	default:
		return "unknown"
	}
}

// SessionTask is the payload carried by every poolservice.Task a session
// submits: the reconstructed config plus whatever attachment the session
// wants handed back to it on success (e.g. Bayes's raw probe vector).
type SessionTask struct {
	Config     interface{}
	Attachment interface{}
}

// Algorithm builds a Session bound to a flattened space template and the
// worker pool it should submit samples to.
type Algorithm interface {
	GetSession(spaceTemplate interface{}, service *poolservice.Service) (Session, error)
	Name() string
}

// Session drives one search run to completion.
type Session interface {
	Start() error
	Join()
	Err() error
	State() SessionState
}

// Runner is implemented by each concrete session (grid/random/bayes) and
// supplies the two pieces BaseSession cannot: how to generate samples, and
// what to do when one succeeds.
type Runner interface {
	// Run generates samples by calling BaseSession.PutViaSpace until the
	// session is exhausted or the pool stops accepting work. It executes
	// on the session's own driver goroutine.
	Run()
	// ReturnOnSuccess is invoked off the driver goroutine whenever a
	// submitted sample's task succeeds.
	ReturnOnSuccess(task SessionTask, retval interface{})
	// ReturnOnFailed is invoked off the driver goroutine whenever a
	// submitted sample's task fails or is skipped. Most strategies have
	// nothing to do here: only
	// the sample itself carries state worth reacting to on failure.
	ReturnOnFailed(task SessionTask, err error)
}

// sendTimeout bounds how long PutViaSpace waits for a free worker slot
// before giving up; sessions treat a PoolClosed/PoolBusy error as "stop
// generating more samples".
const sendTimeout = 30 * time.Second

// BaseSession implements the driver-goroutine/task-id-counter/state-mutex
// plumbing common to every search strategy.
type BaseSession struct {
	vsp         []*hypervalue.HyperValue
	reconstruct func([]interface{}) interface{}
	service     *poolservice.Service
	runner      Runner

	mu          sync.Mutex
	state       SessionState
	err         error
	taskCounter int64

	driverDone chan struct{}
}

// NewBaseSession flattens spaceTemplate once and returns a BaseSession
// ready to be bound to a concrete Runner via Bind.
func NewBaseSession(spaceTemplate interface{}, service *poolservice.Service) *BaseSession {
	reconstruct, vsp := hypervalue.Flatten(spaceTemplate)
	return &BaseSession{
		vsp:         vsp,
		reconstruct: reconstruct,
		service:     service,
		driverDone:  make(chan struct{}),
	}
}

// Bind attaches the concrete session logic. Must be called before Start.
func (s *BaseSession) Bind(runner Runner) { s.runner = runner }

// VSP returns the ordered HyperValue leaves discovered while flattening
// the space template.
func (s *BaseSession) VSP() []*hypervalue.HyperValue { return s.vsp }

// DimCount reports how many HyperValue leaves the space template
// flattened into: the search's dimensionality, reported by
// pkg/runner's InitOK lifecycle event.
func (s *BaseSession) DimCount() int { return len(s.vsp) }

func (s *BaseSession) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *BaseSession) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Start transitions Pending -> Running and launches the driver goroutine.
func (s *BaseSession) Start() error {
	s.mu.Lock()
	if s.state != SessionPending {
		s.mu.Unlock()
		return hpoerrors.Internal("algorithm.Start", errors.New("session already started"))
	}
	if s.runner == nil {
		s.mu.Unlock()
		return hpoerrors.Internal("algorithm.Start", errors.New("session has no bound runner"))
	}
	s.state = SessionRunning
	s.mu.Unlock()

	go s.actualRun()
	return nil
}

// Join blocks until the driver goroutine (and the pool shutdown it
// triggers) has completed.
func (s *BaseSession) Join() { <-s.driverDone }

func (s *BaseSession) actualRun() {
	defer close(s.driverDone)

	var runErr error
	func() {
		defer func() {
			if r := recover(); r != nil {
				runErr = fmt.Errorf("algorithm: session panicked: %v", r)
			}
		}()
		s.runner.Run()
	}()

	s.service.Shutdown(true)

	s.mu.Lock()
	if runErr != nil && s.err == nil {
		s.err = runErr
	}
	s.state = SessionDead
	s.mu.Unlock()
}

// PutViaSpace reconstructs a full config from values (one per VSP leaf, in
// VSP order, already passed through each HyperValue's transform pipeline)
// and submits it to the pool. attachment is handed back verbatim to
// ReturnOnSuccess on success. Bayes uses it to carry the raw probe vector
// needed to update its surrogate.
//
// Returns the underlying *hpoerrors.HPOError (Kind PoolBusy/PoolClosed) if
// the pool can no longer accept work; callers should treat that as "stop
// generating samples", not a fatal error.
func (s *BaseSession) PutViaSpace(values []interface{}, attachment interface{}) error {
	s.mu.Lock()
	s.taskCounter++
	id := s.taskCounter
	s.mu.Unlock()

	config := s.reconstruct(values)
	task := SessionTask{Config: config, Attachment: attachment}
	poolTask := poolservice.Task{ID: id, Payload: task}

	return s.service.Send(poolTask, func(r poolservice.Result) {
		if !r.Ok() {
			s.runner.ReturnOnFailed(task, r.Err)
			return
		}
		if fm, ok := r.Value.(FailureMarker); ok {
			s.runner.ReturnOnFailed(task, fm.Cause())
			return
		}
		s.runner.ReturnOnSuccess(task, r.Value)
	}, sendTimeout)
}

// FailureMarker is optionally implemented by the value a Hooks.Exec
// returns to report that, despite a nil Go error, the trial itself failed
// or was skipped and should be routed to
// ReturnOnFailed instead of ReturnOnSuccess.
type FailureMarker interface {
	Cause() error
}

// IsPoolClosed reports whether err indicates the pool has stopped
// accepting new work, the signal every session's Run loop uses to exit.
func IsPoolClosed(err error) bool {
	var hpoErr *hpoerrors.HPOError
	if errors.As(err, &hpoErr) {
		return hpoErr.Kind == hpoerrors.KindPoolClosed || hpoErr.Kind == hpoerrors.KindPoolBusy
	}
	return false
}
