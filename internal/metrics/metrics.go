// Package metrics exports workflow run, step and recovery counters to Prometheus.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/auraos/orchestrator/internal/engine"
	"github.com/auraos/orchestrator/pkg/schema"
)

const namespace = "aura"

// Recorder implements engine.Observer on its own registry.
type Recorder struct {
	registry *prometheus.Registry

	runs          *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec
	stepAttempts  *prometheus.CounterVec
	recoveries    *prometheus.CounterVec
	workflows     *prometheus.GaugeVec
	averageHealth *prometheus.GaugeVec
}

// NewRecorder creates a Recorder with a fresh registry that also carries the
// Go runtime and process collectors.
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Recorder{
		registry: reg,
		runs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflow_runs_total",
			Help:      "Finished workflow runs by workflow category and result",
		}, []string{"category", "result"}),
		runDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "workflow_run_duration_seconds",
			Help:      "Wall time of workflow runs by workflow category",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"category"}),
		stepAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "step_attempts_total",
			Help:      "Step execution attempts by step type and result",
		}, []string{"step_type", "result"}),
		recoveries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recoveries_total",
			Help:      "Error recovery attempts by result",
		}, []string{"result"}),
		workflows: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "workflows",
			Help:      "Registered workflows by status, as of the last status snapshot",
		}, []string{"status"}),
		averageHealth: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "health_average",
			Help:      "Average success_rate, error_rate and execution_time_ms across workflows",
		}, []string{"indicator"}),
	}
}

func (r *Recorder) ObserveStepAttempt(t schema.StepType, ok bool) {
	r.stepAttempts.WithLabelValues(string(t), result(ok)).Inc()
}

// ObserveRun labels by category so custom workflows with generated IDs do
// not add series.
func (r *Recorder) ObserveRun(category schema.WorkflowCategory, ok bool, d time.Duration) {
	r.runs.WithLabelValues(string(category), result(ok)).Inc()
	r.runDuration.WithLabelValues(string(category)).Observe(d.Seconds())
}

func (r *Recorder) ObserveRecovery(ok bool) {
	r.recoveries.WithLabelValues(result(ok)).Inc()
}

// ObserveSnapshot refreshes the gauges from a status snapshot. Its signature
// matches streaming.Subscriber so it can subscribe to status updates directly.
func (r *Recorder) ObserveSnapshot(_ context.Context, snap schema.StatusSnapshot) error {
	counts := map[schema.WorkflowStatus]int{
		schema.WorkflowStatusActive:     0,
		schema.WorkflowStatusPaused:     0,
		schema.WorkflowStatusLearning:   0,
		schema.WorkflowStatusOptimizing: 0,
	}
	for status, n := range snap.ByStatus {
		counts[status] = n
	}
	for status, n := range counts {
		r.workflows.WithLabelValues(string(status)).Set(float64(n))
	}

	r.averageHealth.WithLabelValues("success_rate").Set(snap.Health.AverageSuccessRate)
	r.averageHealth.WithLabelValues("error_rate").Set(snap.Health.AverageErrorRate)
	r.averageHealth.WithLabelValues("execution_time_ms").Set(snap.Health.AverageExecutionTime)
	return nil
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

func result(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

var _ engine.Observer = (*Recorder)(nil)
