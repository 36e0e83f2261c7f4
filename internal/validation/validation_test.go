package validation

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auraos/orchestrator/pkg/schema"
)

func newValidator(t *testing.T) *WorkflowValidator {
	t.Helper()
	wv, err := NewWorkflowValidator()
	require.NoError(t, err)
	return wv
}

func validWorkflow() *schema.Workflow {
	return &schema.Workflow{
		ID:       "morning-digest",
		Name:     "Morning digest",
		Category: schema.CategoryContent,
		Steps: []schema.Step{
			{ID: "collect", Type: schema.StepTypeDataProcessing, Params: json.RawMessage(`{"prompt":"collect news"}`)},
			{ID: "summarize", Type: schema.StepTypeAIAnalysis, Dependencies: []string{"collect"},
				RetryPolicy: schema.RetryPolicy{MaxRetries: 2, BackoffStrategy: schema.BackoffExponential, RetryDelay: 100}},
		},
		Triggers: []schema.Trigger{
			{Type: schema.TriggerSchedule, Enabled: true, Params: json.RawMessage(`{"frequency":"daily","time":"09:00"}`)},
		},
	}
}

func errorPaths(r *schema.ValidationResult) []string {
	out := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		out = append(out, e.Path)
	}
	return out
}

func hasErrorContaining(r *schema.ValidationResult, substr string) bool {
	for _, e := range r.Errors {
		if strings.Contains(e.Path+" "+e.Message, substr) {
			return true
		}
	}
	return false
}

// --- Full pipeline ---

func TestWorkflowValidator_Valid(t *testing.T) {
	result := newValidator(t).Validate(validWorkflow())
	assert.True(t, result.Valid(), "errors: %v", result.Errors)
	assert.Empty(t, result.Warnings)
}

func TestWorkflowValidator_Nil(t *testing.T) {
	result := newValidator(t).Validate(nil)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0].Message, "nil")
}

func TestWorkflowValidator_DoesNotMutateInput(t *testing.T) {
	wf := validWorkflow()
	newValidator(t).Validate(wf)
	assert.Empty(t, wf.Status)
	assert.Empty(t, wf.Triggers[0].ID)
}

func TestWorkflowValidator_ValidateWorkflowError(t *testing.T) {
	wf := validWorkflow()
	wf.Category = "gardening"
	err := newValidator(t).ValidateWorkflow(wf)
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeValidation, schema.ErrorCode(err))

	assert.NoError(t, newValidator(t).ValidateWorkflow(validWorkflow()))
}

// --- Structural ---

func TestStructural_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(wf *schema.Workflow)
		want   string
	}{
		{"no steps", func(wf *schema.Workflow) { wf.Steps = nil }, "/steps"},
		{"unknown category", func(wf *schema.Workflow) { wf.Category = "gardening" }, "/category"},
		{"unknown step type", func(wf *schema.Workflow) { wf.Steps[0].Type = "teleport" }, "/steps/0/type"},
		{"negative retries", func(wf *schema.Workflow) { wf.Steps[1].RetryPolicy.MaxRetries = -1 }, "/steps/1/retry_policy/max_retries"},
		{"unknown backoff", func(wf *schema.Workflow) { wf.Steps[1].RetryPolicy.BackoffStrategy = "random" }, "/steps/1/retry_policy/backoff_strategy"},
		{"bad schedule time", func(wf *schema.Workflow) {
			wf.Triggers[0].Params = json.RawMessage(`{"frequency":"daily","time":"9am"}`)
		}, "/triggers/0/params/time"},
		{"daily without time", func(wf *schema.Workflow) {
			wf.Triggers[0].Params = json.RawMessage(`{"frequency":"daily"}`)
		}, "/triggers/0/params"},
		{"weekly without day", func(wf *schema.Workflow) {
			wf.Triggers[0].Params = json.RawMessage(`{"frequency":"weekly","time":"09:00"}`)
		}, "/triggers/0/params"},
		{"unknown schedule field", func(wf *schema.Workflow) {
			wf.Triggers[0].Params = json.RawMessage(`{"frequency":"daily","time":"09:00","probability":0.3}`)
		}, "/triggers/0/params"},
		{"event without name", func(wf *schema.Workflow) {
			wf.Triggers[0] = schema.Trigger{Type: schema.TriggerEvent, Enabled: true, Params: json.RawMessage(`{}`)}
		}, "/triggers/0/params"},
		{"event without params", func(wf *schema.Workflow) {
			wf.Triggers[0] = schema.Trigger{Type: schema.TriggerEvent, Enabled: true}
		}, "/triggers/0"},
		{"prediction confidence above one", func(wf *schema.Workflow) {
			wf.Triggers[0] = schema.Trigger{Type: schema.TriggerAIPrediction, Enabled: true,
				Params: json.RawMessage(`{"model":"m","min_confidence":1.5}`)}
		}, "/triggers/0/params/min_confidence"},
		{"decision point without question", func(wf *schema.Workflow) {
			wf.Steps[0].Type = schema.StepTypeDecisionPoint
			wf.Steps[0].Params = json.RawMessage(`{"options":["a"]}`)
		}, "/steps/0/params"},
	}

	wv := newValidator(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wf := validWorkflow()
			tt.mutate(wf)
			result := wv.Validate(wf)
			require.False(t, result.Valid())
			assert.True(t, hasErrorContaining(result, tt.want), "paths: %v", errorPaths(result))
		})
	}
}

func TestStructural_AcceptsEveryTriggerType(t *testing.T) {
	wf := validWorkflow()
	wf.Triggers = []schema.Trigger{
		{Type: schema.TriggerSchedule, Enabled: true, Params: json.RawMessage(`{"frequency":"weekly","time":"07:30","day_of_week":"monday"}`)},
		{Type: schema.TriggerSchedule, Enabled: true, Params: json.RawMessage(`{"frequency":"hourly","minute":15}`)},
		{Type: schema.TriggerSchedule, Enabled: true, Params: json.RawMessage(`{"frequency":"cron","cron":"*/10 * * * *"}`)},
		{Type: schema.TriggerEvent, Enabled: true, Params: json.RawMessage(`{"event":"flight.delayed"}`)},
		{Type: schema.TriggerUserAction, Enabled: false, Params: json.RawMessage(`{"action":"open_app"}`)},
		{Type: schema.TriggerDataThreshold, Enabled: true, Params: json.RawMessage(`{"signal":"pantry","condition":"milk < 2"}`)},
		{Type: schema.TriggerAIPrediction, Enabled: true, Params: json.RawMessage(`{"model":"hunger","min_confidence":0.8}`)},
	}
	result := newValidator(t).Validate(wf)
	assert.True(t, result.Valid(), "errors: %v", result.Errors)
}

func TestStructural_ShortCircuitsSemantic(t *testing.T) {
	wf := validWorkflow()
	wf.Category = ""
	wf.Steps[1].Dependencies = []string{"ghost"}
	result := newValidator(t).Validate(wf)
	require.False(t, result.Valid())
	assert.False(t, hasErrorContaining(result, "ghost"), "semantic stage must not run")
}

// --- Step order ---

func TestValidateStepOrder(t *testing.T) {
	tests := []struct {
		name  string
		steps []schema.Step
		want  string
	}{
		{"valid chain", []schema.Step{{ID: "a"}, {ID: "b", Dependencies: []string{"a"}}, {ID: "c", Dependencies: []string{"a", "b"}}}, ""},
		{"empty id", []schema.Step{{ID: ""}}, "must not be empty"},
		{"duplicate id", []schema.Step{{ID: "a"}, {ID: "a"}}, "duplicate step id"},
		{"missing dependency", []schema.Step{{ID: "a", Dependencies: []string{"ghost"}}}, "non-existent"},
		{"forward dependency", []schema.Step{{ID: "a", Dependencies: []string{"b"}}, {ID: "b"}}, "later step"},
		{"self dependency", []schema.Step{{ID: "a", Dependencies: []string{"a"}}}, "itself"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateStepOrder(tt.steps)
			if tt.want == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
			assert.Equal(t, schema.ErrCodeValidation, schema.ErrorCode(err))
		})
	}
}

// --- Semantic ---

func TestSemantic_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(wf *schema.Workflow)
		want   string
	}{
		{"forward step dependency", func(wf *schema.Workflow) {
			wf.Steps[0].Dependencies = []string{"summarize"}
		}, "steps[0].dependencies[0]"},
		{"bad cron", func(wf *schema.Workflow) {
			wf.Triggers[0].Params = json.RawMessage(`{"frequency":"cron","cron":"every tuesday"}`)
		}, "triggers[0].params.cron"},
		{"bad weekday", func(wf *schema.Workflow) {
			wf.Triggers[0].Params = json.RawMessage(`{"frequency":"weekly","time":"09:00","day_of_week":"caturday"}`)
		}, "triggers[0].params"},
		{"bad threshold condition", func(wf *schema.Workflow) {
			wf.Triggers[0] = schema.Trigger{Type: schema.TriggerDataThreshold, Enabled: true,
				Params: json.RawMessage(`{"signal":"s","condition":"milk <"}`)}
		}, "triggers[0].params.condition"},
		{"bad prediction condition", func(wf *schema.Workflow) {
			wf.Triggers[0] = schema.Trigger{Type: schema.TriggerAIPrediction, Enabled: true,
				Params: json.RawMessage(`{"model":"m","min_confidence":0.5,"condition":"(("}`)}
		}, "triggers[0].params.condition"},
		{"bad step condition", func(wf *schema.Workflow) {
			wf.Steps[1].Condition = "steps.collect.ok =="
		}, "steps[1].condition"},
		{"bad output map", func(wf *schema.Workflow) {
			wf.Steps[0].OutputMap = ".output | {"
		}, "steps[0].output_map"},
		{"params reference later step", func(wf *schema.Workflow) {
			wf.Steps[0].Params = json.RawMessage(`{"prompt":"use ${{steps.summarize}}"}`)
		}, "steps[0].params"},
		{"params reference unknown step", func(wf *schema.Workflow) {
			wf.Steps[1].Params = json.RawMessage(`{"text":"${{steps.fetch.body}}"}`)
		}, "steps[1].params"},
	}

	wv := newValidator(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wf := validWorkflow()
			tt.mutate(wf)
			result := wv.Validate(wf)
			require.False(t, result.Valid())
			assert.Contains(t, errorPaths(result), tt.want)
		})
	}
}

func TestSemantic_AcceptsExpressions(t *testing.T) {
	wf := validWorkflow()
	wf.Steps[1].Condition = `has(steps.collect) && steps.collect != ""`
	wf.Steps[0].OutputMap = `{text: .output}`
	wf.Steps[1].Params = json.RawMessage(`{"text":"${{steps.collect}} for ${{workflow.name}}"}`)
	result := newValidator(t).Validate(wf)
	assert.True(t, result.Valid(), "errors: %v", result.Errors)
}

func TestSemantic_Warnings(t *testing.T) {
	wf := validWorkflow()
	wf.Triggers[0].Enabled = false
	wf.Steps[0].RetryPolicy.MaxRetries = 50
	wf.Dependencies = []string{wf.ID}

	result := newValidator(t).Validate(wf)
	assert.True(t, result.Valid())
	require.Len(t, result.Warnings, 3)

	paths := map[string]bool{}
	for _, w := range result.Warnings {
		paths[w.Path] = true
	}
	assert.True(t, paths["triggers"])
	assert.True(t, paths["steps[0].retry_policy.max_retries"])
	assert.True(t, paths["dependencies[0]"])
}
