package schema

import "time"

// ExecutionRecord is one entry of the append-only run history.
type ExecutionRecord struct {
	ExecutionID   string       `json:"execution_id"`
	WorkflowID    string       `json:"workflow_id"`
	Timestamp     time.Time    `json:"timestamp"`
	Success       bool         `json:"success"`
	ExecutionTime int64        `json:"execution_time"` // milliseconds
	Steps         int          `json:"steps"`
	Error         string       `json:"error,omitempty"`
	StepResults   []StepResult `json:"step_results,omitempty"`
}

// StepOutcome describes how a step ended within a run.
type StepOutcome string

const (
	StepCompleted StepOutcome = "completed"
	StepSkipped   StepOutcome = "skipped"
	StepRecovered StepOutcome = "recovered"
	StepFailed    StepOutcome = "failed"
)

// StepResult summarizes a single step inside an ExecutionRecord.
type StepResult struct {
	StepID     string      `json:"step_id"`
	Outcome    StepOutcome `json:"outcome"`
	Attempts   int         `json:"attempts"`
	DurationMs int64       `json:"duration_ms"`
	Error      string      `json:"error,omitempty"`
}

// ErrorRecoveryRecord captures one recovery attempt after a step exhausted its retries.
type ErrorRecoveryRecord struct {
	ExecutionID string    `json:"execution_id"`
	WorkflowID  string    `json:"workflow_id"`
	StepID      string    `json:"step_id"`
	Timestamp   time.Time `json:"timestamp"`
	Suggestion  string    `json:"suggestion"`
	Success     bool      `json:"success"`
}
