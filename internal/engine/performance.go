package engine

import (
	"math"
	"sync"
	"time"

	"github.com/auraos/orchestrator/pkg/schema"
)

// rateStep is the fixed nudge applied to SuccessRate or ErrorRate per run.
const rateStep = 0.01

// PerformanceTracker folds run outcomes into a workflow's Performance.
type PerformanceTracker struct {
	observer Observer
}

// NewPerformanceTracker creates a tracker that mirrors every run to observer.
func NewPerformanceTracker(observer Observer) *PerformanceTracker {
	if observer == nil {
		observer = nopObserver{}
	}
	return &PerformanceTracker{observer: observer}
}

// Record applies rec to wf.Performance:
//   - success nudges SuccessRate up by 0.01, failure nudges ErrorRate; both cap at 1.0
//   - AverageExecutionTime becomes (old + new) / 2
//   - Executions increments and LastExecution is set to the record timestamp
func (t *PerformanceTracker) Record(wf *schema.Workflow, rec *schema.ExecutionRecord) {
	perf := &wf.Performance
	if rec.Success {
		perf.SuccessRate = nudge(perf.SuccessRate)
	} else {
		perf.ErrorRate = nudge(perf.ErrorRate)
	}
	perf.AverageExecutionTime = (perf.AverageExecutionTime + float64(rec.ExecutionTime)) / 2
	perf.Executions++
	at := rec.Timestamp
	perf.LastExecution = &at

	t.observer.ObserveRun(wf.Category, rec.Success, time.Duration(rec.ExecutionTime)*time.Millisecond)
}

func nudge(rate float64) float64 {
	// Rounded to 6 decimals so repeated nudges stay exact.
	return math.Min(1.0, math.Round((rate+rateStep)*1e6)/1e6)
}

// ExecutionHistory is the append-only log of runs and recovery attempts.
type ExecutionHistory struct {
	mu         sync.Mutex
	records    []schema.ExecutionRecord
	recoveries []schema.ErrorRecoveryRecord
}

// NewExecutionHistory creates an empty history.
func NewExecutionHistory() *ExecutionHistory {
	return &ExecutionHistory{}
}

// Append adds a run record.
func (h *ExecutionHistory) Append(rec schema.ExecutionRecord) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, rec)
}

// AppendRecovery adds a recovery record.
func (h *ExecutionHistory) AppendRecovery(rec schema.ErrorRecoveryRecord) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.recoveries = append(h.recoveries, rec)
}

// Tail returns the last n run records, oldest first. n <= 0 returns all.
func (h *ExecutionHistory) Tail(n int) []schema.ExecutionRecord {
	h.mu.Lock()
	defer h.mu.Unlock()
	return tail(h.records, n)
}

// ForWorkflow returns the last n records of one workflow, oldest first.
func (h *ExecutionHistory) ForWorkflow(workflowID string, n int) []schema.ExecutionRecord {
	h.mu.Lock()
	defer h.mu.Unlock()
	var matched []schema.ExecutionRecord
	for _, rec := range h.records {
		if rec.WorkflowID == workflowID {
			matched = append(matched, rec)
		}
	}
	return tail(matched, n)
}

// Recoveries returns the last n recovery records, oldest first.
func (h *ExecutionHistory) Recoveries(n int) []schema.ErrorRecoveryRecord {
	h.mu.Lock()
	defer h.mu.Unlock()
	return tail(h.recoveries, n)
}

// Len returns the number of run records.
func (h *ExecutionHistory) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.records)
}

func tail[T any](items []T, n int) []T {
	if n <= 0 || n > len(items) {
		n = len(items)
	}
	out := make([]T, n)
	copy(out, items[len(items)-n:])
	return out
}
