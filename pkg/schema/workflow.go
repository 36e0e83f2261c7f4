package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// WorkflowCategory tags a workflow with the product area it automates.
type WorkflowCategory string

const (
	CategoryContent  WorkflowCategory = "content"
	CategoryTravel   WorkflowCategory = "travel"
	CategoryFood     WorkflowCategory = "food"
	CategoryShopping WorkflowCategory = "shopping"
	CategorySystem   WorkflowCategory = "system"
)

// WorkflowStatus represents the lifecycle state of a workflow.
// Learning and optimizing are declared but no transition leads into them.
type WorkflowStatus string

const (
	WorkflowStatusActive     WorkflowStatus = "active"
	WorkflowStatusPaused     WorkflowStatus = "paused"
	WorkflowStatusLearning   WorkflowStatus = "learning"
	WorkflowStatusOptimizing WorkflowStatus = "optimizing"
)

// StepType enumerates the kinds of steps in a workflow.
type StepType string

const (
	StepTypeAIAnalysis      StepType = "ai_analysis"
	StepTypeDataProcessing  StepType = "data_processing"
	StepTypeAPIIntegration  StepType = "api_integration"
	StepTypeSystemAction    StepType = "system_action"
	StepTypeUserInteraction StepType = "user_interaction"
	StepTypeDecisionPoint   StepType = "decision_point"
)

// TriggerType enumerates the conditions that can start a workflow.
type TriggerType string

const (
	TriggerSchedule      TriggerType = "schedule"
	TriggerEvent         TriggerType = "event"
	TriggerDataThreshold TriggerType = "data_threshold"
	TriggerUserAction    TriggerType = "user_action"
	TriggerAIPrediction  TriggerType = "ai_prediction"
)

// BackoffStrategy selects how the delay between attempts grows.
type BackoffStrategy string

const (
	BackoffLinear      BackoffStrategy = "linear"
	BackoffExponential BackoffStrategy = "exponential"
	BackoffFixed       BackoffStrategy = "fixed"
)

// Workflow is a named, ordered automation unit composed of steps and triggers.
type Workflow struct {
	ID       string           `json:"id"`
	Name     string           `json:"name"`
	Category WorkflowCategory `json:"category"`
	Steps    []Step           `json:"steps"`
	Triggers []Trigger        `json:"triggers,omitempty"`
	// Dependencies lists other workflow IDs. Declared only; the orchestration
	// cycle does not consult it.
	Dependencies []string       `json:"dependencies,omitempty"`
	Status       WorkflowStatus `json:"status"`
	Performance  Performance    `json:"performance"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// Step is one unit of work inside a workflow.
type Step struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Type         StepType        `json:"type"`
	Params       json.RawMessage `json:"params,omitempty"`
	Dependencies []string        `json:"dependencies,omitempty"` // earlier step IDs in the same workflow
	Timeout      int64           `json:"timeout,omitempty"`      // advisory, milliseconds
	RetryPolicy  RetryPolicy     `json:"retry_policy"`
	Condition    string          `json:"condition,omitempty"`  // CEL guard; false skips the step
	OutputMap    string          `json:"output_map,omitempty"` // jq expression over {output, steps}
}

// Trigger is a condition that, when true, causes a workflow to run in the current cycle.
type Trigger struct {
	ID      string          `json:"id"`
	Type    TriggerType     `json:"type"`
	Params  json.RawMessage `json:"params,omitempty"`
	Enabled bool            `json:"enabled"`
}

// UnmarshalJSON decodes a trigger strictly. A missing "enabled" means true;
// only an explicit false disables the trigger.
func (t *Trigger) UnmarshalJSON(data []byte) error {
	type plain Trigger
	p := plain{Enabled: true}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		return err
	}
	*t = Trigger(p)
	return nil
}

// RetryPolicy configures retry behavior for a step.
// Total attempts for a step are MaxRetries + 1.
type RetryPolicy struct {
	MaxRetries      int             `json:"max_retries"`
	BackoffStrategy BackoffStrategy `json:"backoff_strategy"`
	RetryDelay      int64           `json:"retry_delay"` // base delay, milliseconds
}

// Performance holds the rolling health indicators of a workflow.
type Performance struct {
	Executions           int64      `json:"executions"`
	SuccessRate          float64    `json:"success_rate"`
	ErrorRate            float64    `json:"error_rate"`
	AverageExecutionTime float64    `json:"average_execution_time"` // milliseconds
	UserSatisfaction     float64    `json:"user_satisfaction"`
	ResourceEfficiency   float64    `json:"resource_efficiency"`
	LastExecution        *time.Time `json:"last_execution,omitempty"`
}

// Clone returns a deep copy of the workflow. Raw params are shared since they
// are never mutated after registration.
func (w *Workflow) Clone() *Workflow {
	if w == nil {
		return nil
	}
	cp := *w
	cp.Steps = make([]Step, len(w.Steps))
	for i, s := range w.Steps {
		s.Dependencies = append([]string(nil), s.Dependencies...)
		cp.Steps[i] = s
	}
	cp.Triggers = append([]Trigger(nil), w.Triggers...)
	cp.Dependencies = append([]string(nil), w.Dependencies...)
	if w.Performance.LastExecution != nil {
		t := *w.Performance.LastExecution
		cp.Performance.LastExecution = &t
	}
	return &cp
}

// StepByID returns the step with the given ID, or nil.
func (w *Workflow) StepByID(id string) *Step {
	for i := range w.Steps {
		if w.Steps[i].ID == id {
			return &w.Steps[i]
		}
	}
	return nil
}

// Normalize fills defaults in place: status active, fixed backoff, step
// names from IDs, and trigger IDs derived from the workflow ID.
func (w *Workflow) Normalize() {
	if w.Status == "" {
		w.Status = WorkflowStatusActive
	}
	for i := range w.Steps {
		s := &w.Steps[i]
		if s.Name == "" {
			s.Name = s.ID
		}
		if s.RetryPolicy.BackoffStrategy == "" {
			s.RetryPolicy.BackoffStrategy = BackoffFixed
		}
	}
	for i := range w.Triggers {
		if w.Triggers[i].ID == "" {
			w.Triggers[i].ID = fmt.Sprintf("%s-trigger-%d", w.ID, i+1)
		}
	}
}
