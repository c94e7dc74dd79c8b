package scheduler

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlattenParamsOrdersKeysAndNestsPaths(t *testing.T) {
	rows := flattenParams(map[string]interface{}{
		"b": 2,
		"a": map[string]interface{}{
			"y": 1,
			"x": "hi",
		},
	})
	require.Len(t, rows, 3)
	assert.Equal(t, []interface{}{"a", "x", "hi"}, rows[0])
	assert.Equal(t, []interface{}{"a", "y", 1}, rows[1])
	assert.Equal(t, []interface{}{"b", 2}, rows[2])
}

func TestRenderAssignmentNestedPath(t *testing.T) {
	got := renderAssignment([]interface{}{"model", "lr", 0.01})
	assert.Equal(t, `main_config["model"]["lr"] = 0.01`, got)
}

func TestRenderAssignmentStringAndBoolLiterals(t *testing.T) {
	assert.Equal(t, `main_config["name"] = "trial"`, renderAssignment([]interface{}{"name", "trial"}))
	assert.Equal(t, `main_config["on"] = True`, renderAssignment([]interface{}{"on", true}))
}

func TestGenerateExtraConfigDefaultsExpName(t *testing.T) {
	task := &Task{Name: "proj-hpo-id-1-task-0", Params: map[string]interface{}{"lr": 0.1}}
	lines := task.generateExtraConfig()
	assert.Contains(t, lines, `main_config["lr"] = 0.1`)
	assert.Contains(t, lines, `main_config["exp_name"] = "proj-hpo-id-1-task-0"`)
}

func TestGenerateConfigFileSplicesBeforeMainGuard(t *testing.T) {
	dir := t.TempDir()
	template := filepath.Join(dir, "template.py")
	require.NoError(t, os.WriteFile(template, []byte("import sys\n\nmain_config = {}\n\nif __name__ == '__main__':\n    run(main_config)\n"), 0o644))

	task := &Task{Name: "t0", Params: map[string]interface{}{"lr": 0.5}}
	lines, err := task.generateConfigFile(template)
	require.NoError(t, err)

	guardIdx := -1
	spliceIdx := -1
	for i, line := range lines {
		if line == mainGuardSingle {
			guardIdx = i
		}
		if line == `main_config["lr"] = 0.5` {
			spliceIdx = i
		}
	}
	require.NotEqual(t, -1, guardIdx, "main guard must survive untouched")
	require.NotEqual(t, -1, spliceIdx, "override must be spliced in")
	assert.Less(t, spliceIdx, guardIdx, "overrides must land before the guard")
}

func TestWriteConfigFileCreatesTaskDirectories(t *testing.T) {
	dir := t.TempDir()
	template := filepath.Join(dir, "template.py")
	require.NoError(t, os.WriteFile(template, []byte("if __name__ == '__main__':\n    pass\n"), 0o644))

	task := &Task{Name: "t0", Params: map[string]interface{}{"x": 1}}
	dest := filepath.Join(dir, "nested", "hpo-id-1-task-0.py")
	require.NoError(t, task.writeConfigFile(template, dest))

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Contains(t, string(data), `main_config["x"] = 1`)
}
