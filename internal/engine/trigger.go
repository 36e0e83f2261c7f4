package engine

import (
	"context"
	"sync"
	"time"

	"github.com/auraos/orchestrator/internal/expressions"
	"github.com/auraos/orchestrator/internal/scheduler"
	"github.com/auraos/orchestrator/pkg/schema"
)

// EventSource reports whether the event or user action a trigger waits for
// has occurred since the last cycle.
type EventSource interface {
	Occurred(ctx context.Context, trigger *schema.Trigger) (bool, error)
}

// SignalSource reads the current values a data_threshold or ai_prediction
// trigger is evaluated against. A nil map means no data.
type SignalSource interface {
	Read(ctx context.Context, trigger *schema.Trigger) (map[string]any, error)
}

// NoEvents is the default EventSource: nothing ever occurs.
type NoEvents struct{}

func (NoEvents) Occurred(context.Context, *schema.Trigger) (bool, error) { return false, nil }

// NoSignals is the default SignalSource: no data is ever available.
type NoSignals struct{}

func (NoSignals) Read(context.Context, *schema.Trigger) (map[string]any, error) { return nil, nil }

// defaultPredictionCondition applies when an ai_prediction trigger has no condition.
const defaultPredictionCondition = "confidence >= min_confidence"

// TriggerEvaluator decides whether a workflow should run this cycle.
// A schedule trigger fires at most once per matching minute, however many
// cycles fall inside that minute.
type TriggerEvaluator struct {
	now        func() time.Time
	events     EventSource
	signals    SignalSource
	predicates expressions.Engine

	mu        sync.Mutex
	lastFired map[string]time.Time // workflow ID + "/" + trigger ID -> minute
}

// NewTriggerEvaluator creates an evaluator. Nil collaborators fall back to
// time.Now, NoEvents and NoSignals.
func NewTriggerEvaluator(now func() time.Time, events EventSource, signals SignalSource, predicates expressions.Engine) *TriggerEvaluator {
	if now == nil {
		now = time.Now
	}
	if events == nil {
		events = NoEvents{}
	}
	if signals == nil {
		signals = NoSignals{}
	}
	if predicates == nil {
		predicates = expressions.NewExprEngine()
	}
	return &TriggerEvaluator{
		now:        now,
		events:     events,
		signals:    signals,
		predicates: predicates,
		lastFired:  make(map[string]time.Time),
	}
}

// ShouldRun ORs the enabled triggers of workflowID, stopping at the first
// that fires. An error from any trigger evaluated before that aborts the
// decision.
func (e *TriggerEvaluator) ShouldRun(ctx context.Context, workflowID string, triggers []schema.Trigger) (bool, error) {
	for i := range triggers {
		t := &triggers[i]
		if !t.Enabled {
			continue
		}
		fired, err := e.Evaluate(ctx, t)
		if err != nil {
			return false, err
		}
		if fired && t.Type == schema.TriggerSchedule {
			fired = e.claimMinute(workflowID + "/" + t.ID)
		}
		if fired {
			return true, nil
		}
	}
	return false, nil
}

// claimMinute records the current minute for key and reports whether it
// was not already claimed.
func (e *TriggerEvaluator) claimMinute(key string) bool {
	minute := e.now().Truncate(time.Minute)
	e.mu.Lock()
	defer e.mu.Unlock()
	if last, ok := e.lastFired[key]; ok && last.Equal(minute) {
		return false
	}
	e.lastFired[key] = minute
	return true
}

// Evaluate checks a single trigger regardless of its Enabled flag.
func (e *TriggerEvaluator) Evaluate(ctx context.Context, t *schema.Trigger) (bool, error) {
	var (
		fired bool
		err   error
	)
	switch t.Type {
	case schema.TriggerSchedule:
		fired, err = e.schedule(t)
	case schema.TriggerEvent, schema.TriggerUserAction:
		fired, err = e.events.Occurred(ctx, t)
	case schema.TriggerDataThreshold:
		fired, err = e.threshold(ctx, t)
	case schema.TriggerAIPrediction:
		fired, err = e.prediction(ctx, t)
	default:
		return false, schema.NewErrorf(schema.ErrCodeTriggerEvaluation, "unknown trigger type %q", t.Type).
			WithDetails(map[string]any{"trigger_id": t.ID})
	}
	if err != nil {
		if schema.ErrorCode(err) == schema.ErrCodeTriggerEvaluation {
			return false, err
		}
		return false, schema.NewErrorf(schema.ErrCodeTriggerEvaluation,
			"trigger %s (%s): %s", t.ID, t.Type, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"trigger_id": t.ID})
	}
	return fired, nil
}

func (e *TriggerEvaluator) schedule(t *schema.Trigger) (bool, error) {
	p, err := t.ScheduleParams()
	if err != nil {
		return false, err
	}
	spec, err := scheduler.CronSpec(p)
	if err != nil {
		return false, err
	}
	sched, err := scheduler.Parse(spec)
	if err != nil {
		return false, err
	}
	return scheduler.Matches(sched, e.now().Local()), nil
}

func (e *TriggerEvaluator) threshold(ctx context.Context, t *schema.Trigger) (bool, error) {
	var p schema.ThresholdParams
	if err := schema.DecodeParams(t.Params, &p); err != nil {
		return false, err
	}
	values, err := e.signals.Read(ctx, t)
	if err != nil || values == nil {
		return false, err
	}
	return expressions.EvaluateBool(ctx, e.predicates, p.Condition, values)
}

func (e *TriggerEvaluator) prediction(ctx context.Context, t *schema.Trigger) (bool, error) {
	var p schema.PredictionParams
	if err := schema.DecodeParams(t.Params, &p); err != nil {
		return false, err
	}
	values, err := e.signals.Read(ctx, t)
	if err != nil || values == nil {
		return false, err
	}

	env := make(map[string]any, len(values)+2)
	for k, v := range values {
		env[k] = v
	}
	env["min_confidence"] = p.MinConfidence
	env["model"] = p.Model

	cond := p.Condition
	if cond == "" {
		if _, ok := values["confidence"]; !ok {
			return false, nil
		}
		cond = defaultPredictionCondition
	}
	return expressions.EvaluateBool(ctx, e.predicates, cond, env)
}

var (
	_ EventSource  = NoEvents{}
	_ SignalSource = NoSignals{}
)
