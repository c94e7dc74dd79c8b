package scheduler

import (
	"context"
	"fmt"
	"math/rand/v2"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/client-go/kubernetes"

	"github.com/hpoforge/hpo/pkg/hpoerrors"
)

const defaultPollInterval = 3 * time.Second

// New builds a Scheduler from cfg, filling defaults: a random project
// name when none is given, a 3s poll interval, and an input/output
// channel pair sized generously enough that a session's driver goroutine
// never blocks submitting samples.
func New(cfg Config) (*Scheduler, error) {
	if cfg.TemplatePath == "" {
		return nil, hpoerrors.ConfigError("scheduler.New", "task template path is required")
	}
	if cfg.ProjectName == "" {
		cfg.ProjectName = fmt.Sprintf("hpo-project-%08d", rand.IntN(100000000))
	}
	if cfg.WorkDir == "" {
		cfg.WorkDir = "./" + cfg.ProjectName + "/"
	}
	if cfg.MaxRunning <= 0 {
		cfg.MaxRunning = 2
	}
	if cfg.MaxTasks <= 0 {
		cfg.MaxTasks = 100000
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeLocal
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.Mode == ModeK8s && cfg.K8sManifestPath == "" {
		return nil, hpoerrors.ConfigError("scheduler.New", "k8s mode requires a manifest path")
	}

	if err := os.MkdirAll(cfg.WorkDir, 0o755); err != nil {
		return nil, fmt.Errorf("scheduler: creating work directory: %w", err)
	}

	var client kubernetes.Interface
	if cfg.Mode == ModeK8s {
		var err error
		client, err = newK8sClient(os.Getenv("KUBECONFIG"))
		if err != nil {
			return nil, err
		}
	}

	return &Scheduler{
		cfg:         cfg,
		runningIDs:  map[int]bool{},
		finishedIDs: map[int]bool{},
		input:       make(chan interface{}, 64),
		output:      make(chan []Report, 64),
		k8sClient:   client,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}, nil
}

// Submit enqueues a new hyperparameter sample for scheduling. Safe to
// call concurrently with Run.
func (s *Scheduler) Submit(sample Sample) {
	s.input <- sample
}

// Reports returns the channel Run publishes completed task reports on,
// one batch per poll tick in which something new finished.
func (s *Scheduler) Reports() <-chan []Report { return s.output }

// Stop asks Run to exit once every in-flight task finishes or is
// cancelled.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

// Run drives the scheduler's poll loop: admit waiting tasks up to
// MaxRunning, check every running task's liveness/timeout, harvest
// finished tasks' results, drain newly submitted samples from the input
// channel, and publish a status report, repeating every PollInterval
// until Stop is called and every task has finished. It must run on its
// own goroutine; callers read progress via Reports().
func (s *Scheduler) Run(ctx context.Context) {
	defer close(s.doneCh)
	defer close(s.output)

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	var log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
	stopping := false
	stopCh := s.stopCh

	for {
		s.drainInput()
		s.admitWaiting(ctx)
		finished := s.pollRunning(ctx)
		if len(finished) > 0 {
			s.output <- finished
		}
		s.reportStatus(log)

		if stopping && s.allDone() {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			stopping = true
			// A closed channel is always ready; nil it out so the
			// select falls through to the ticker from now on.
			stopCh = nil
		case sample := <-s.input:
			if smp, ok := sample.(Sample); ok {
				s.defineTask(smp)
			}
		case <-ticker.C:
		}
	}
}

// drainInput consumes every sample currently buffered on the input
// channel without blocking.
func (s *Scheduler) drainInput() {
	for {
		select {
		case sample := <-s.input:
			if smp, ok := sample.(Sample); ok {
				s.defineTask(smp)
			}
		default:
			return
		}
	}
}

func (s *Scheduler) allDone() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tasks {
		if !t.status.finish {
			return false
		}
	}
	return true
}

// defineTask creates and waitlists a new Task for sample.
func (s *Scheduler) defineTask(sample Sample) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.tasks) >= s.cfg.MaxTasks {
		return
	}
	id := len(s.tasks)
	hpoID := sample.HPOID
	if hpoID == "" {
		hpoID = fmt.Sprint(id + 1)
	}
	t := &Task{
		ID:     id,
		HPOID:  hpoID,
		Name:   fmt.Sprintf("%s-hpo-id-%s-task-%d", s.cfg.ProjectName, hpoID, id),
		Params: sample.Params,
	}
	t.status = taskStatus{defined: true}
	s.tasks = append(s.tasks, t)
	s.waiting = append(s.waiting, id)
	t.status.waiting = true
}

// admitWaiting pops tasks off the waiting queue and emits them until
// MaxRunning running slots are full.
func (s *Scheduler) admitWaiting(ctx context.Context) {
	for {
		s.mu.Lock()
		if len(s.waiting) == 0 || len(s.runningIDs) >= s.cfg.MaxRunning {
			s.mu.Unlock()
			return
		}
		id := s.waiting[0]
		s.waiting = s.waiting[1:]
		task := s.tasks[id]
		s.mu.Unlock()

		if err := s.emitTask(ctx, task); err != nil {
			s.mu.Lock()
			task.status.waiting = false
			task.status.running = false
			task.status.finish = true
			task.status.success = false
			task.status.abnormal = true
			s.finishedIDs[task.ID] = true
			s.mu.Unlock()
			continue
		}

		s.mu.Lock()
		task.status.waiting = false
		task.status.running = true
		task.emitTime = time.Now()
		s.runningIDs[task.ID] = true
		s.mu.Unlock()
	}
}

// emitTask launches task in whichever mode the scheduler is configured
// for.
func (s *Scheduler) emitTask(ctx context.Context, task *Task) error {
	switch s.cfg.Mode {
	case ModeLocal:
		return s.emitLocal(ctx, task)
	case ModeK8s:
		return s.emitK8s(ctx, task)
	default:
		return hpoerrors.ConfigError("scheduler.emitTask", "unknown scheduler mode "+string(s.cfg.Mode))
	}
}

func (s *Scheduler) emitLocal(ctx context.Context, task *Task) error {
	mainFile, logFile, taskDir := localTaskPaths(s.cfg.WorkDir, task)
	if err := task.writeConfigFile(s.cfg.TemplatePath, mainFile); err != nil {
		return err
	}
	task.workDir = taskDir

	pid, done, cancel, err := runLocal(ctx, mainFile, logFile, s.cfg.WorkDir)
	if err != nil {
		return err
	}
	task.pid = pid
	task.done = done
	task.cancel = cancel
	return nil
}

func (s *Scheduler) emitK8s(ctx context.Context, task *Task) error {
	if err := validateK8sName(task.Name); err != nil {
		return err
	}
	manifest, err := loadDijobManifest(s.cfg.K8sManifestPath)
	if err != nil {
		return err
	}
	if err := manifest.patchForTask(task); err != nil {
		return err
	}
	configLines := task.generateExtraConfig()

	manifestPath := fmt.Sprintf("%shpo-id-%s-task-%d.yml", s.cfg.WorkDir, task.HPOID, task.ID)
	if err := manifest.writeManifest(task, configLines, manifestPath); err != nil {
		return err
	}
	task.manifestPath = manifestPath

	if err := runKubectl(ctx, "create", "-f", manifestPath, "--validate=false"); err != nil {
		return err
	}
	task.cancel = func() {
		_ = runKubectl(context.Background(), "delete", "-f", manifestPath)
	}
	return nil
}

// pollRunning checks every running task's liveness and timeout, harvests
// results from ones that finished, and returns the reports produced this
// tick.
func (s *Scheduler) pollRunning(ctx context.Context) []Report {
	s.mu.Lock()
	running := make([]*Task, 0, len(s.runningIDs))
	for id := range s.runningIDs {
		running = append(running, s.tasks[id])
	}
	s.mu.Unlock()

	var reports []Report
	for _, t := range running {
		if report, done := s.pollOne(ctx, t); done {
			reports = append(reports, report)
		}
	}
	return reports
}

// aliveLocal reports whether a local subprocess task is still running.
func (t *Task) aliveLocal() bool {
	if t.done == nil {
		return true
	}
	select {
	case <-t.done:
		return false
	default:
		return true
	}
}

// aliveK8s reports whether a DIJob task's pod is still pending or
// running.
func (s *Scheduler) aliveK8s(ctx context.Context, t *Task) bool {
	phase, err := podPhase(ctx, s.k8sClient, s.cfg.K8sNamespace, t.Name)
	if err != nil {
		return true // pod not scheduled yet
	}
	return phase == corev1.PodPending || phase == corev1.PodRunning
}

func (s *Scheduler) alive(ctx context.Context, t *Task) bool {
	if s.cfg.Mode == ModeK8s {
		return s.aliveK8s(ctx, t)
	}
	return t.aliveLocal()
}

func (s *Scheduler) pollOne(ctx context.Context, t *Task) (Report, bool) {
	if t.startTime.IsZero() {
		t.startTime = time.Now()
	}

	alive := s.alive(ctx, t)
	if alive && s.cfg.Timeout > 0 && time.Since(t.startTime) > s.cfg.Timeout {
		if t.cancel != nil {
			t.cancel()
		}
		return s.finishTask(t, "time out", nil, nil, false), true
	}
	if alive {
		return Report{}, false
	}

	retval, result, found := s.harvest(ctx, t)
	status := "fail"
	success := false
	if found {
		status = "success"
		success = true
	}
	return s.finishTask(t, status, retval, result, success), true
}

func (s *Scheduler) harvest(ctx context.Context, t *Task) (interface{}, map[string]interface{}, bool) {
	if s.cfg.Mode == ModeLocal {
		return harvestLocal(s.cfg.WorkDir, t.Name)
	}
	return s.harvestK8s(ctx, t)
}

func (s *Scheduler) finishTask(t *Task, status string, retval interface{}, result map[string]interface{}, success bool) Report {
	s.mu.Lock()
	delete(s.runningIDs, t.ID)
	t.status.running = false
	t.status.finish = true
	t.status.success = success
	t.status.abnormal = !success
	s.finishedIDs[t.ID] = true
	s.mu.Unlock()

	resultMap := map[string]interface{}{"status": status}
	for k, v := range result {
		resultMap[k] = v
	}

	return Report{
		HPOID:  t.HPOID,
		TaskID: t.ID,
		Params: t.Params,
		Status: status,
		Retval: retval,
		Result: resultMap,
	}
}

// TaskStatuses returns a point-in-time snapshot of every defined task's
// status, exposing the disjoint defined/waiting/running/finished/
// success/abnormal sets.
func (s *Scheduler) TaskStatuses() []TaskStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]TaskStatus, len(s.tasks))
	for i, t := range s.tasks {
		st := t.snapshot()
		out[i] = TaskStatus{
			ID:       t.ID,
			HPOID:    t.HPOID,
			Defined:  st.defined,
			Waiting:  st.waiting,
			Running:  st.running,
			Finished: st.finish,
			Success:  st.success,
			Abnormal: st.abnormal,
		}
	}
	return out
}

// reportStatus renders the status table, but only when some task's
// status changed since the last tick.
func (s *Scheduler) reportStatus(log zerolog.Logger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.tasks) == 0 {
		return
	}

	var sb strings.Builder
	w := tabwriter.NewWriter(&sb, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "status\tcount")
	var waiting, running, finished, success, abnormal int
	for _, t := range s.tasks {
		if t.status.waiting {
			waiting++
		}
		if t.status.running {
			running++
		}
		if t.status.finish {
			finished++
		}
		if t.status.success {
			success++
		}
		if t.status.abnormal {
			abnormal++
		}
	}
	fmt.Fprintf(w, "waiting\t%d\n", waiting)
	fmt.Fprintf(w, "running\t%d\n", running)
	fmt.Fprintf(w, "finished\t%d\n", finished)
	fmt.Fprintf(w, "success\t%d\n", success)
	fmt.Fprintf(w, "abnormal\t%d\n", abnormal)
	w.Flush()

	if sb.String() == s.lastStatusTable {
		return
	}
	s.lastStatusTable = sb.String()
	log.Info().Msg("\n" + sb.String())
}
