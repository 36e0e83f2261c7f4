package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/auraos/orchestrator/internal/provider"
	"github.com/auraos/orchestrator/pkg/schema"
)

// ErrorRecoveryAdvisor asks the provider how to recover from a step that
// exhausted its retries.
type ErrorRecoveryAdvisor struct {
	provider provider.Provider
	now      func() time.Time
}

// NewErrorRecoveryAdvisor creates an advisor. now defaults to time.Now.
func NewErrorRecoveryAdvisor(p provider.Provider, now func() time.Time) *ErrorRecoveryAdvisor {
	if now == nil {
		now = time.Now
	}
	return &ErrorRecoveryAdvisor{provider: p, now: now}
}

// AttemptRecovery requests a recovery strategy for step. The record's
// Success is true exactly when the suggestion is non-empty. A non-nil error
// (RECOVERY_FAILED) means the run must abort.
func (a *ErrorRecoveryAdvisor) AttemptRecovery(ctx context.Context, wf *schema.Workflow, step *schema.Step, executionID string, stepErr error) (schema.ErrorRecoveryRecord, error) {
	rec := schema.ErrorRecoveryRecord{
		ExecutionID: executionID,
		WorkflowID:  wf.ID,
		StepID:      step.ID,
		Timestamp:   a.now(),
	}

	suggestion, err := provider.Generate(ctx, a.provider, RecoveryPrompt(wf, step, stepErr))
	if err != nil {
		return rec, schema.NewErrorf(schema.ErrCodeRecoveryFailed,
			"step failed (%s) and recovery advice is unavailable: %s", errText(stepErr), err.Error()).
			WithStep(step.ID).WithWorkflow(wf.ID).WithCause(stepErr)
	}
	rec.Suggestion = suggestion
	rec.Success = suggestion != ""
	if !rec.Success {
		return rec, schema.NewErrorf(schema.ErrCodeRecoveryFailed,
			"step failed (%s) and recovery returned no suggestion", errText(stepErr)).
			WithStep(step.ID).WithWorkflow(wf.ID).WithCause(stepErr)
	}
	return rec, nil
}

// RecoveryPrompt builds the diagnostic prompt for a failed step.
func RecoveryPrompt(wf *schema.Workflow, step *schema.Step, stepErr error) string {
	var b strings.Builder
	b.WriteString("A workflow step failed after all retries. Suggest a recovery strategy in one short paragraph.\n")
	fmt.Fprintf(&b, "Workflow: %s (%s)\n", wf.Name, wf.Category)
	fmt.Fprintf(&b, "Step: %s [%s]\n", step.Name, step.Type)
	if params := compactParams(step.Params); params != "" {
		fmt.Fprintf(&b, "Parameters: %s\n", params)
	}
	fmt.Fprintf(&b, "Error: %s\n", errText(stepErr))
	return b.String()
}

func errText(err error) string {
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}
