package scheduler

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalTaskPathsMatchProjectLayout(t *testing.T) {
	task := &Task{ID: 3, HPOID: "7"}
	mainFile, logFile, taskDir := localTaskPaths("/work/", task)
	assert.Equal(t, "/work/hpo-id-7-task-3.py", mainFile)
	assert.Equal(t, "/work/-log/log.txt", logFile) // Task.Name left blank here, only path shape is under test
	assert.Equal(t, "/work", taskDir)
}

func TestHarvestLocalReadsJSONResultAndMetadata(t *testing.T) {
	dir := t.TempDir()
	taskDir := filepath.Join(dir, "task-0")
	require.NoError(t, os.MkdirAll(taskDir, 0o755))

	require.NoError(t, os.WriteFile(filepath.Join(taskDir, "result.json"), []byte("0.125"), 0o644))
	meta, err := json.Marshal(map[string]interface{}{"accuracy": 0.9})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(taskDir, "result.txt"), meta, 0o644))

	retval, result, found := harvestLocal(dir, "task-0")
	require.True(t, found)
	assert.Equal(t, 0.125, retval)
	assert.Equal(t, 0.9, result["accuracy"])
}

func TestHarvestLocalMissingFilesNotFound(t *testing.T) {
	dir := t.TempDir()
	_, _, found := harvestLocal(dir, "no-such-task")
	assert.False(t, found)
}

func TestPythonInterpreterDefaultsAndHonorsEnv(t *testing.T) {
	t.Setenv("HPO_PYTHON", "")
	assert.Equal(t, "python3", pythonInterpreter())

	t.Setenv("HPO_PYTHON", "/usr/bin/python3.11")
	assert.Equal(t, "/usr/bin/python3.11", pythonInterpreter())
}
