package engine

import (
	"context"
	"sync"

	"github.com/auraos/orchestrator/pkg/schema"
)

// ValidStatusTransitions lists the allowed workflow status changes. Nothing
// transitions into learning or optimizing; a workflow only holds those
// statuses if it was registered with them.
var ValidStatusTransitions = map[schema.WorkflowStatus][]schema.WorkflowStatus{
	schema.WorkflowStatusActive:     {schema.WorkflowStatusPaused},
	schema.WorkflowStatusPaused:     {schema.WorkflowStatusActive},
	schema.WorkflowStatusLearning:   {schema.WorkflowStatusActive, schema.WorkflowStatusPaused},
	schema.WorkflowStatusOptimizing: {schema.WorkflowStatusActive, schema.WorkflowStatusPaused},
}

// TransitionHook is called after a status transition has been applied.
type TransitionHook func(ctx context.Context, workflowID string, from, to schema.WorkflowStatus)

// StatusFSM validates workflow status transitions and runs hooks after them.
type StatusFSM struct {
	mu    sync.RWMutex
	hooks []TransitionHook
}

// NewStatusFSM creates a StatusFSM with no hooks.
func NewStatusFSM() *StatusFSM {
	return &StatusFSM{}
}

// OnAnyTransition registers a hook for every applied transition.
func (f *StatusFSM) OnAnyTransition(hook TransitionHook) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hooks = append(f.hooks, hook)
}

// Check returns INVALID_TRANSITION if from -> to is not allowed.
func (f *StatusFSM) Check(workflowID string, from, to schema.WorkflowStatus) error {
	if isValidStatusTransition(from, to) {
		return nil
	}
	return schema.NewErrorf(schema.ErrCodeInvalidTransition,
		"invalid workflow transition: %s -> %s", from, to).
		WithWorkflow(workflowID).
		WithDetails(map[string]any{"from": string(from), "to": string(to)})
}

// Fire runs the registered hooks for from -> to. Call it after the new status
// is stored and outside any registry lock.
func (f *StatusFSM) Fire(ctx context.Context, workflowID string, from, to schema.WorkflowStatus) {
	f.mu.RLock()
	hooks := append([]TransitionHook(nil), f.hooks...)
	f.mu.RUnlock()

	for _, hook := range hooks {
		hook(ctx, workflowID, from, to)
	}
}

func isValidStatusTransition(from, to schema.WorkflowStatus) bool {
	for _, allowed := range ValidStatusTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}
