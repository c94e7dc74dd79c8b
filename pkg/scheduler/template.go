package scheduler

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strings"
)

// flattenParams turns a nested map into ordered [path..., value] rows,
// so "a": {"b": 1} becomes the row ["a", "b", 1]. Keys are sorted at
// every level for deterministic output across runs with the same
// parameter shape.
func flattenParams(params map[string]interface{}) [][]interface{} {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var rows [][]interface{}
	for _, k := range keys {
		v := params[k]
		if nested, ok := v.(map[string]interface{}); ok {
			for _, row := range flattenParams(nested) {
				rows = append(rows, append([]interface{}{k}, row...))
			}
			continue
		}
		rows = append(rows, []interface{}{k, v})
	}
	return rows
}

// renderAssignment turns a flattened [path..., value] row into a Python
// source line assigning into main_config, e.g. ["lr", 0.01] becomes
// `main_config["lr"] = 0.01`.
func renderAssignment(row []interface{}) string {
	var b strings.Builder
	b.WriteString("main_config")
	for i, part := range row {
		if i == len(row)-1 {
			b.WriteString(" = ")
			b.WriteString(renderPythonLiteral(part))
		} else {
			fmt.Fprintf(&b, "[%q]", fmt.Sprint(part))
		}
	}
	return b.String()
}

func renderPythonLiteral(v interface{}) string {
	switch t := v.(type) {
	case string:
		return fmt.Sprintf("%q", t)
	case bool:
		if t {
			return "True"
		}
		return "False"
	default:
		return fmt.Sprint(t)
	}
}

const mainGuardSingle = `if __name__ == '__main__':`
const mainGuardDouble = `if __name__ == "__main__":`

// generateExtraConfig renders the hyperparameter overrides (plus an
// exp_name default set to the task name if the sample didn't provide
// one) as the block of main_config[...] = ... lines spliced into the
// template immediately before the __main__ guard.
func (t *Task) generateExtraConfig() []string {
	params := t.Params
	if _, ok := params["exp_name"]; !ok {
		params = make(map[string]interface{}, len(t.Params)+1)
		for k, v := range t.Params {
			params[k] = v
		}
		params["exp_name"] = t.Name
	}

	var lines []string
	for _, row := range flattenParams(params) {
		lines = append(lines, renderAssignment(row))
	}
	return lines
}

// generateConfigFile reads the template source and splices the task's
// hyperparameter overrides in right before the __main__ guard, returning
// the whole file as a line slice. The guard line itself, and every line
// after it, is preserved unchanged.
func (t *Task) generateConfigFile(templatePath string) ([]string, error) {
	f, err := os.Open(templatePath)
	if err != nil {
		return nil, fmt.Errorf("scheduler: reading task template: %w", err)
	}
	defer f.Close()

	var out []string
	extra := t.generateExtraConfig()
	scan := bufio.NewScanner(f)
	scan.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scan.Scan() {
		line := scan.Text()
		if line == mainGuardSingle || line == mainGuardDouble {
			out = append(out, extra...)
		}
		out = append(out, line)
	}
	if err := scan.Err(); err != nil {
		return nil, fmt.Errorf("scheduler: reading task template: %w", err)
	}
	return out, nil
}

// writeConfigFile renders the task's config file and writes it to dest.
func (t *Task) writeConfigFile(templatePath, dest string) error {
	lines, err := t.generateConfigFile(templatePath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dirOf(dest), 0o755); err != nil {
		return fmt.Errorf("scheduler: creating task directory: %w", err)
	}
	f, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("scheduler: writing task config: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, line := range lines {
		if _, err := w.WriteString(line + "\n"); err != nil {
			return err
		}
	}
	return w.Flush()
}

func dirOf(path string) string {
	i := strings.LastIndexByte(path, '/')
	if i < 0 {
		return "."
	}
	return path[:i]
}
