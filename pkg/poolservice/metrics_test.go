package poolservice_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"

	"github.com/hpoforge/hpo/pkg/poolservice"
)

func TestPromMetricsRecordsGaugesAndOutcomeCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := poolservice.NewPromMetrics(reg, "hpo", "pool")

	m.SetRunning(3)
	m.IncOutcome("success")
	m.IncOutcome("success")
	m.IncOutcome("fail")

	families, err := reg.Gather()
	require.NoError(t, err)

	byName := map[string]*dto.MetricFamily{}
	for _, f := range families {
		byName[f.GetName()] = f
	}

	require.Contains(t, byName, "hpo_pool_running_count")
	require.Equal(t, float64(3), byName["hpo_pool_running_count"].Metric[0].GetGauge().GetValue())

	require.Contains(t, byName, "hpo_pool_tasks_total")
	var successCount, failCount float64
	for _, metric := range byName["hpo_pool_tasks_total"].Metric {
		for _, label := range metric.GetLabel() {
			if label.GetName() == "outcome" {
				switch label.GetValue() {
				case "success":
					successCount = metric.GetCounter().GetValue()
				case "fail":
					failCount = metric.GetCounter().GetValue()
				}
			}
		}
	}
	require.Equal(t, float64(2), successCount)
	require.Equal(t, float64(1), failCount)
}
