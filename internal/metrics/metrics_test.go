package metrics

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auraos/orchestrator/pkg/schema"
)

func TestRecorder_Counters(t *testing.T) {
	r := NewRecorder()

	r.ObserveStepAttempt(schema.StepTypeAIAnalysis, false)
	r.ObserveStepAttempt(schema.StepTypeAIAnalysis, true)
	r.ObserveStepAttempt(schema.StepTypeAIAnalysis, true)
	r.ObserveRun(schema.CategoryContent, true, 300*time.Millisecond)
	r.ObserveRun(schema.CategoryContent, false, time.Second)
	r.ObserveRecovery(false)

	assert.Equal(t, 1.0, testutil.ToFloat64(r.stepAttempts.WithLabelValues("ai_analysis", "failure")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.stepAttempts.WithLabelValues("ai_analysis", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.runs.WithLabelValues("content", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.runs.WithLabelValues("content", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.recoveries.WithLabelValues("failure")))
	assert.Equal(t, 1, testutil.CollectAndCount(r.runDuration))
}

func TestRecorder_ObserveSnapshot(t *testing.T) {
	r := NewRecorder()
	snap := schema.StatusSnapshot{
		ByStatus: map[schema.WorkflowStatus]int{
			schema.WorkflowStatusActive: 2,
			schema.WorkflowStatusPaused: 1,
		},
		Health: schema.SystemHealth{AverageSuccessRate: 0.42, AverageErrorRate: 0.02, AverageExecutionTime: 150},
	}
	require.NoError(t, r.ObserveSnapshot(context.Background(), snap))

	assert.Equal(t, 2.0, testutil.ToFloat64(r.workflows.WithLabelValues("active")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.workflows.WithLabelValues("paused")))
	assert.Equal(t, 0.0, testutil.ToFloat64(r.workflows.WithLabelValues("learning")))
	assert.Equal(t, 0.42, testutil.ToFloat64(r.averageHealth.WithLabelValues("success_rate")))
	assert.Equal(t, 150.0, testutil.ToFloat64(r.averageHealth.WithLabelValues("execution_time_ms")))

	snap.ByStatus = map[schema.WorkflowStatus]int{schema.WorkflowStatusActive: 1}
	require.NoError(t, r.ObserveSnapshot(context.Background(), snap))
	assert.Equal(t, 0.0, testutil.ToFloat64(r.workflows.WithLabelValues("paused")), "stale statuses reset to zero")
}

func TestRecorder_Handler(t *testing.T) {
	r := NewRecorder()
	r.ObserveRun(schema.CategoryTravel, true, time.Millisecond)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, 200, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `aura_workflow_runs_total{category="travel",result="success"} 1`), body)
	assert.Contains(t, body, "go_goroutines")
}
