package runner

import "github.com/hpoforge/hpo/pkg/resultexpr"

// RunResult is one trial's outcome: the task's
// reconstructed config, the user function's return value, and the
// metrics gathered while running it (always containing at least
// "time" in seconds).
type RunResult struct {
	TaskID  int64
	Config  interface{}
	Retval  interface{}
	Metrics map[string]interface{}
}

func (r RunResult) record() resultexpr.Record {
	return resultexpr.Record{Config: r.Config, Return: r.Retval, Metrics: r.Metrics}
}

// Get evaluates an arbitrary result expression against this trial.
func (r RunResult) Get(expr resultexpr.Value) (interface{}, error) {
	return expr.Eval(r.record())
}

// Value evaluates expr and coerces it to float64; Run uses it as the rank
// list's key and to render the target column. A non-numeric or erroring
// expression evaluates to 0, and a bool to 1 or 0.
func (r RunResult) Value(expr resultexpr.Value) float64 {
	v, err := expr.Eval(r.record())
	if err != nil {
		return 0
	}
	switch t := v.(type) {
	case float64:
		return t
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case bool:
		if t {
			return 1
		}
		return 0
	default:
		return 0
	}
}
