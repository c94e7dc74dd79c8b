package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestScheduler(t *testing.T, cfg Config) *Scheduler {
	t.Helper()
	if cfg.TemplatePath == "" {
		cfg.TemplatePath = "unused.py"
	}
	if cfg.WorkDir == "" {
		cfg.WorkDir = t.TempDir() + "/"
	}
	s, err := New(cfg)
	require.NoError(t, err)
	return s
}

func TestNewRejectsMissingTemplatePath(t *testing.T) {
	_, err := New(Config{WorkDir: t.TempDir() + "/"})
	assert.Error(t, err)
}

func TestNewRejectsK8sModeWithoutManifest(t *testing.T) {
	_, err := New(Config{TemplatePath: "t.py", Mode: ModeK8s, WorkDir: t.TempDir() + "/"})
	assert.Error(t, err)
}

func TestNewAppliesDefaults(t *testing.T) {
	s := newTestScheduler(t, Config{})
	assert.Equal(t, ModeLocal, s.cfg.Mode)
	assert.Equal(t, 2, s.cfg.MaxRunning)
	assert.Equal(t, 100000, s.cfg.MaxTasks)
	assert.Equal(t, defaultPollInterval, s.cfg.PollInterval)
	assert.NotEmpty(t, s.cfg.ProjectName)
}

func TestDefineTaskWaitlistsWithGeneratedName(t *testing.T) {
	s := newTestScheduler(t, Config{ProjectName: "proj"})
	s.defineTask(Sample{HPOID: "abc", Params: map[string]interface{}{"lr": 0.1}})

	require.Len(t, s.tasks, 1)
	task := s.tasks[0]
	assert.Equal(t, "abc", task.HPOID)
	assert.Equal(t, "proj-hpo-id-abc-task-0", task.Name)
	assert.True(t, task.status.waiting)
	assert.True(t, task.status.defined)
	assert.Equal(t, []int{0}, s.waiting)
}

func TestDefineTaskStopsAtMaxTasks(t *testing.T) {
	s := newTestScheduler(t, Config{MaxTasks: 1})
	s.defineTask(Sample{HPOID: "1"})
	s.defineTask(Sample{HPOID: "2"})
	assert.Len(t, s.tasks, 1)
}

func TestAllDoneFalseUntilEveryTaskFinishes(t *testing.T) {
	s := newTestScheduler(t, Config{})
	s.defineTask(Sample{HPOID: "1"})
	s.defineTask(Sample{HPOID: "2"})
	assert.False(t, s.allDone())

	s.tasks[0].status.finish = true
	assert.False(t, s.allDone())

	s.tasks[1].status.finish = true
	assert.True(t, s.allDone())
}

func TestFinishTaskRecordsStatusAndMergesResult(t *testing.T) {
	s := newTestScheduler(t, Config{})
	s.defineTask(Sample{HPOID: "1"})
	task := s.tasks[0]
	s.runningIDs[task.ID] = true

	report := s.finishTask(task, "success", 0.5, map[string]interface{}{"acc": 0.9}, true)

	assert.Equal(t, "success", report.Status)
	assert.Equal(t, 0.5, report.Retval)
	assert.Equal(t, 0.9, report.Result["acc"])
	assert.Equal(t, "success", report.Result["status"])
	assert.True(t, task.status.finish)
	assert.True(t, task.status.success)
	assert.False(t, task.status.abnormal)
	assert.False(t, task.status.running)
	assert.True(t, s.finishedIDs[task.ID])
	_, stillRunning := s.runningIDs[task.ID]
	assert.False(t, stillRunning)
}

func TestFinishTaskMarksNonSuccessAbnormal(t *testing.T) {
	s := newTestScheduler(t, Config{})
	s.defineTask(Sample{HPOID: "1"})
	s.defineTask(Sample{HPOID: "2"})
	fail := s.tasks[0]
	timeout := s.tasks[1]
	s.runningIDs[fail.ID] = true
	s.runningIDs[timeout.ID] = true

	s.finishTask(fail, "fail", nil, nil, false)
	s.finishTask(timeout, "time out", nil, nil, false)

	assert.True(t, fail.status.abnormal, "a harvest failure must land in the abnormal set")
	assert.True(t, timeout.status.abnormal, "a timed-out task must land in the abnormal set")

	statuses := s.TaskStatuses()
	require.Len(t, statuses, 2)
	for _, st := range statuses {
		assert.True(t, st.Finished)
		assert.False(t, st.Success)
		assert.True(t, st.Abnormal)
	}
}
