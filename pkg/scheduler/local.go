package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// runLocal launches the task's generated config file with the host
// Python interpreter, redirecting stderr to a log file under the task's
// work directory.
// The returned done channel closes when the process exits for any
// reason; cancel requests early termination.
func runLocal(ctx context.Context, mainFile, logFile, workDir string) (pid int, done <-chan struct{}, cancel func(), err error) {
	if err := os.MkdirAll(filepath.Dir(logFile), 0o755); err != nil {
		return 0, nil, nil, fmt.Errorf("scheduler: creating log directory: %w", err)
	}
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return 0, nil, nil, fmt.Errorf("scheduler: creating work directory: %w", err)
	}

	logFd, err := os.Create(logFile)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("scheduler: opening task log: %w", err)
	}

	runCtx, cancelCtx := context.WithCancel(ctx)
	cmd := exec.CommandContext(runCtx, pythonInterpreter(), mainFile)
	cmd.Dir = workDir
	cmd.Stderr = logFd

	if err := cmd.Start(); err != nil {
		logFd.Close()
		cancelCtx()
		return 0, nil, nil, fmt.Errorf("scheduler: starting local task: %w", err)
	}

	doneCh := make(chan struct{})
	go func() {
		defer close(doneCh)
		defer logFd.Close()
		_ = cmd.Wait()
	}()

	return cmd.Process.Pid, doneCh, cancelCtx, nil
}

func pythonInterpreter() string {
	if exe := os.Getenv("HPO_PYTHON"); exe != "" {
		return exe
	}
	return "python3"
}

// harvestLocal reads a finished task's two harvest files: the user
// function's raw return value plus the optional result.txt JSON metadata
// blob merged into the report.
// pkg/scheduler asks task objectives to emit their return value as JSON
// rather than a Python pickle, since nothing downstream deserializes
// pickles; harvestLocal looks for result.json first and falls back to
// result.pkl, which is accepted only when its content is JSON (a pickled
// value is not decoded and counts as no result).
func harvestLocal(workDir, taskName string) (retval interface{}, result map[string]interface{}, found bool) {
	dir := filepath.Join(workDir, taskName)

	for _, name := range []string{"result.json", "result.pkl"} {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			continue
		}
		if jsonErr := json.Unmarshal(data, &retval); jsonErr == nil {
			found = true
			break
		}
	}
	if !found {
		return nil, nil, false
	}

	if data, err := os.ReadFile(filepath.Join(dir, "result.txt")); err == nil {
		_ = json.Unmarshal(data, &result)
	}
	return retval, result, true
}

// localTaskPaths derives the file layout a local-mode task runs in:
// a "hpo-id-<id>-task-<n>.py" main file and a per-task log directory.
func localTaskPaths(workDir string, t *Task) (mainFile, logFile, taskDir string) {
	mainFile = filepath.Join(workDir, fmt.Sprintf("hpo-id-%s-task-%d.py", t.HPOID, t.ID))
	logFile = filepath.Join(workDir, t.Name+"-log", "log.txt")
	taskDir = filepath.Join(workDir, t.Name)
	return
}
