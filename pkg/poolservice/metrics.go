package poolservice

import "github.com/prometheus/client_golang/prometheus"

// PromMetrics implements Metrics on top of two Prometheus collectors.
type PromMetrics struct {
	running  prometheus.Gauge
	outcomes *prometheus.CounterVec
}

// NewPromMetrics registers the pool's collectors under the given
// namespace/subsystem and returns a Metrics implementation. Callers
// register r with an HTTP /metrics handler themselves.
func NewPromMetrics(r prometheus.Registerer, namespace, subsystem string) *PromMetrics {
	m := &PromMetrics{
		running: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "running_count",
			Help:      "Number of tasks currently executing in the pool.",
		}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "tasks_total",
			Help:      "Total tasks processed, labeled by outcome.",
		}, []string{"outcome"}),
	}
	r.MustRegister(m.running, m.outcomes)
	return m
}

func (m *PromMetrics) SetRunning(n int)          { m.running.Set(float64(n)) }
func (m *PromMetrics) IncOutcome(outcome string) { m.outcomes.WithLabelValues(outcome).Inc() }
