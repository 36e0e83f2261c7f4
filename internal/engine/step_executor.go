package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/auraos/orchestrator/internal/expressions"
	"github.com/auraos/orchestrator/internal/provider"
	"github.com/auraos/orchestrator/pkg/schema"
)

// StepOutput is the result of executing one step.
type StepOutput struct {
	Skipped  bool // guard evaluated false; no provider call was made
	Data     any  // provider text, or the OutputMap result
	Attempts int
}

// StepExecutor runs single steps against the content provider.
type StepExecutor struct {
	provider provider.Provider
	guards   expressions.Engine
	mapper   expressions.Engine
	sleep    Sleeper
	observer Observer
	logger   *slog.Logger
}

// NewStepExecutor creates a StepExecutor. A nil sleep uses WaitForBackoff.
func NewStepExecutor(p provider.Provider, guards, mapper expressions.Engine, sleep Sleeper, observer Observer, logger *slog.Logger) *StepExecutor {
	if sleep == nil {
		sleep = WaitForBackoff
	}
	if observer == nil {
		observer = nopObserver{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &StepExecutor{
		provider: p,
		guards:   guards,
		mapper:   mapper,
		sleep:    sleep,
		observer: observer,
		logger:   logger,
	}
}

// Execute runs step once. outputs holds the data of steps already completed
// in this run, keyed by step ID. A nil error means success.
func (e *StepExecutor) Execute(ctx context.Context, wf *schema.Workflow, step *schema.Step, outputs map[string]any) (StepOutput, error) {
	if step.Condition != "" {
		ok, err := expressions.EvaluateBool(ctx, e.guards, step.Condition, map[string]any{
			"steps":    outputs,
			"workflow": workflowScope(wf),
			"params":   schema.ParamsMap(step.Params),
		})
		if err != nil {
			return StepOutput{}, schema.NewErrorf(schema.ErrCodeExpression,
				"evaluate condition: %s", err.Error()).WithStep(step.ID).WithWorkflow(wf.ID).WithCause(err)
		}
		if !ok {
			return StepOutput{Skipped: true}, nil
		}
	}

	params, err := expressions.Interpolate(step.Params, &expressions.InterpolationScope{
		Steps:    outputs,
		Workflow: workflowScope(wf),
	})
	if err != nil {
		return StepOutput{}, schema.NewErrorf(schema.ErrCodeExpression,
			"interpolate params: %s", err.Error()).WithStep(step.ID).WithWorkflow(wf.ID).WithCause(err)
	}
	resolved := *step
	resolved.Params = params

	text, err := provider.Generate(ctx, e.provider, TaskPrompt(wf, &resolved))
	if err != nil {
		return StepOutput{}, schema.NewErrorf(schema.ErrCodeStepFailed, "%s", err.Error()).
			WithStep(step.ID).WithWorkflow(wf.ID).WithCause(err)
	}
	if text == "" {
		return StepOutput{}, schema.NewError(schema.ErrCodeStepFailed, "provider returned an empty response").
			WithStep(step.ID).WithWorkflow(wf.ID)
	}

	var data any = text
	if step.OutputMap != "" {
		data, err = e.mapper.Evaluate(ctx, step.OutputMap, map[string]any{
			"output": text,
			"steps":  outputs,
		})
		if err != nil {
			return StepOutput{}, schema.NewErrorf(schema.ErrCodeExpression,
				"map output: %s", err.Error()).WithStep(step.ID).WithWorkflow(wf.ID).WithCause(err)
		}
	}
	return StepOutput{Data: data}, nil
}

// ExecuteWithRetry runs step up to TotalAttempts times, waiting Delay(n)
// before retry n. Non-retryable failures stop early. When every attempt
// fails the last error is returned wrapped as RETRY_EXHAUSTED.
func (e *StepExecutor) ExecuteWithRetry(ctx context.Context, wf *schema.Workflow, step *schema.Step, outputs map[string]any) (StepOutput, error) {
	total := TotalAttempts(step.RetryPolicy)

	var lastErr error
	for attempt := 1; attempt <= total; attempt++ {
		if attempt > 1 {
			delay := Delay(attempt-1, step.RetryPolicy)
			e.logger.DebugContext(ctx, "retrying step",
				slog.Int("attempt", attempt),
				slog.Int("max_attempts", total),
				slog.Duration("delay", delay),
				slog.String("error", lastErr.Error()))
			if err := e.sleep(ctx, delay); err != nil {
				return StepOutput{Attempts: attempt - 1}, schema.NewErrorf(schema.ErrCodeStepFailed,
					"retry wait interrupted: %s", err.Error()).WithStep(step.ID).WithWorkflow(wf.ID).WithCause(err)
			}
		}

		out, err := e.Execute(ctx, wf, step, outputs)
		out.Attempts = attempt
		if !out.Skipped {
			e.observer.ObserveStepAttempt(step.Type, err == nil)
		}
		if err == nil {
			return out, nil
		}
		lastErr = err
		if !IsRetryableError(err) {
			return out, err
		}
	}

	return StepOutput{Attempts: total}, schema.NewErrorf(schema.ErrCodeRetryExhausted,
		"failed after %d attempt(s): %s", total, lastErr.Error()).
		WithStep(step.ID).WithWorkflow(wf.ID).WithCause(lastErr)
}

var stepInstructions = map[schema.StepType]string{
	schema.StepTypeAIAnalysis:      "Analyze the request below and report your findings.",
	schema.StepTypeDataProcessing:  "Process the data described below and return the result.",
	schema.StepTypeAPIIntegration:  "Prepare the external API interaction described below and summarize its result.",
	schema.StepTypeSystemAction:    "Carry out the system action described below and confirm the outcome.",
	schema.StepTypeUserInteraction: "Write the message to present to the user for the request below.",
	schema.StepTypeDecisionPoint:   "Answer the question below with a single decision and a one-line reason.",
}

// TaskPrompt builds the provider prompt for a step from its type, name and params.
func TaskPrompt(wf *schema.Workflow, step *schema.Step) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Workflow: %s (%s)\n", wf.Name, wf.Category)
	fmt.Fprintf(&b, "Step: %s [%s]\n", step.Name, step.Type)
	if instr, ok := stepInstructions[step.Type]; ok {
		b.WriteString(instr)
		b.WriteByte('\n')
	}

	if step.Type == schema.StepTypeDecisionPoint {
		var p schema.DecisionParams
		if err := schema.DecodeParams(step.Params, &p); err == nil && p.Question != "" {
			fmt.Fprintf(&b, "Question: %s\n", p.Question)
			if len(p.Options) > 0 {
				fmt.Fprintf(&b, "Options: %s\n", strings.Join(p.Options, ", "))
			}
			return b.String()
		}
	}

	if params := compactParams(step.Params); params != "" {
		fmt.Fprintf(&b, "Parameters: %s\n", params)
	}
	return b.String()
}

func compactParams(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	m := schema.ParamsMap(raw)
	if len(m) == 0 {
		return ""
	}
	b, err := json.Marshal(m)
	if err != nil {
		return string(raw)
	}
	return string(b)
}

func workflowScope(wf *schema.Workflow) map[string]any {
	return map[string]any{
		"id":       wf.ID,
		"name":     wf.Name,
		"category": string(wf.Category),
	}
}

// stepDuration is the elapsed wall time of a step in milliseconds.
func stepDuration(start time.Time) int64 {
	return time.Since(start).Milliseconds()
}
