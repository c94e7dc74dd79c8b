// Package scheduler implements the out-of-process task scheduler: each
// trial is handed off to a subprocess (local mode) or a Kubernetes DIJob
// (k8s mode) rather than run in-process, and polled to completion on a
// fixed interval. A Callable (see NewCallable) adapts a Scheduler to the
// black-box function signature pkg/runner expects, so it can be wired
// into a Runner exactly like any in-process objective.
package scheduler

import (
	"sync"
	"time"

	"k8s.io/client-go/kubernetes"
)

// Mode selects how a Scheduler launches a task.
type Mode string

const (
	ModeLocal Mode = "local"
	ModeK8s   Mode = "k8s"
)

// taskStatus is the small state machine every Task moves through:
// defined -> waiting -> running -> finished, with success/abnormal tracked
// alongside finished to distinguish a completed-and-harvested task from
// one that failed, timed out, or never produced a result. success and
// abnormal are disjoint given finish.
type taskStatus struct {
	defined  bool
	waiting  bool
	running  bool
	finish   bool
	success  bool
	abnormal bool
}

// Task is the atomic scheduling unit: one hyperparameter sample bound to
// a subprocess or DIJob, tracked from definition through harvest.
type Task struct {
	ID          int
	HPOID       string
	Name        string
	Params      map[string]interface{}
	status      taskStatus
	pid         int
	startTime   time.Time
	emitTime    time.Time
	cancel      func()
	done        <-chan struct{}
	workDir     string
	manifestPath string
}

func (t *Task) snapshot() taskStatus {
	return t.status
}

// TaskStatus is the externally observable view of taskStatus, letting
// callers read the disjoint defined/waiting/running/finished/
// success/abnormal status sets for a given task.
type TaskStatus struct {
	ID       int
	HPOID    string
	Defined  bool
	Waiting  bool
	Running  bool
	Finished bool
	Success  bool
	Abnormal bool
}

// Report is the harvested outcome of one task, handed back through the
// output channel and matched against its originating sample by the HPO
// callable adapter.
type Report struct {
	HPOID   string
	TaskID  int
	Params  map[string]interface{}
	Status  string // "success", "fail", "time out"
	Retval  interface{}
	Result  map[string]interface{}
}

// Sample is one hyperparameter configuration submitted to the scheduler
// through its input channel, tagged with the identifiers the HPO
// callable adapter uses to match the eventual Report back to its caller.
type Sample struct {
	HPOID  string
	Params map[string]interface{}
}

// Config configures a Scheduler.
type Config struct {
	// TemplatePath is the Python HPO objective source file whose
	// hyperparameter overrides get spliced in before execution.
	TemplatePath string
	// ProjectName prefixes every task name and working directory; a
	// random suffix is generated when left blank.
	ProjectName string
	// WorkDir is the local directory tasks are staged and harvested
	// from. Defaults to "./<ProjectName>/".
	WorkDir string
	// MaxRunning bounds how many tasks may be simultaneously running.
	MaxRunning int
	// MaxTasks bounds the total number of tasks this scheduler will
	// ever define; samples submitted beyond it are dropped.
	MaxTasks int
	Mode     Mode
	// Timeout bounds how long a single task may run before it is
	// cancelled and reported as timed out. Zero means no timeout.
	Timeout time.Duration
	// PollInterval is how often Run polls running tasks and admits
	// waiting ones; defaults to 3s.
	PollInterval time.Duration

	// K8s-only fields.
	K8sManifestPath string
	K8sNamespace    string
	K8sRemotePath   string
}

// Scheduler schedules and monitors out-of-process tasks, admitting from
// a waiting queue as running slots free up, polling liveness on a fixed
// interval, and harvesting each task's result file on completion.
type Scheduler struct {
	cfg Config

	mu          sync.Mutex
	tasks       []*Task
	waiting     []int
	runningIDs  map[int]bool
	finishedIDs map[int]bool

	input  chan interface{}
	output chan []Report

	k8sClient kubernetes.Interface

	lastStatusTable string

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}
