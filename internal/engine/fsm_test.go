package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auraos/orchestrator/pkg/schema"
)

func TestStatusFSM_Check(t *testing.T) {
	f := NewStatusFSM()
	tests := []struct {
		from, to schema.WorkflowStatus
		ok       bool
	}{
		{schema.WorkflowStatusActive, schema.WorkflowStatusPaused, true},
		{schema.WorkflowStatusPaused, schema.WorkflowStatusActive, true},
		{schema.WorkflowStatusLearning, schema.WorkflowStatusActive, true},
		{schema.WorkflowStatusOptimizing, schema.WorkflowStatusPaused, true},
		{schema.WorkflowStatusActive, schema.WorkflowStatusActive, false},
		{schema.WorkflowStatusPaused, schema.WorkflowStatusPaused, false},
		{schema.WorkflowStatusActive, schema.WorkflowStatusLearning, false},
		{schema.WorkflowStatusPaused, schema.WorkflowStatusOptimizing, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			err := f.Check("wf", tt.from, tt.to)
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, schema.ErrCodeInvalidTransition, schema.ErrorCode(err))
		})
	}
}

func TestStatusFSM_Hooks(t *testing.T) {
	f := NewStatusFSM()
	var all, calls []string
	f.OnAnyTransition(func(_ context.Context, id string, _, _ schema.WorkflowStatus) {
		calls = append(calls, id)
	})
	f.OnAnyTransition(func(_ context.Context, id string, from, to schema.WorkflowStatus) {
		all = append(all, id+":"+string(from)+"->"+string(to))
	})

	f.Fire(context.Background(), "wf", schema.WorkflowStatusActive, schema.WorkflowStatusPaused)
	f.Fire(context.Background(), "wf", schema.WorkflowStatusPaused, schema.WorkflowStatusActive)

	assert.Equal(t, []string{"wf", "wf"}, calls, "hooks run in registration order for every transition")
	assert.Equal(t, []string{"wf:active->paused", "wf:paused->active"}, all)
}
