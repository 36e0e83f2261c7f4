package schema

import (
	"encoding/json"
	"fmt"
)

// ScheduleFrequency selects how a schedule trigger is interpreted.
type ScheduleFrequency string

const (
	FrequencyHourly ScheduleFrequency = "hourly"
	FrequencyDaily  ScheduleFrequency = "daily"
	FrequencyWeekly ScheduleFrequency = "weekly"
	FrequencyCron   ScheduleFrequency = "cron"
)

// ScheduleParams configures a schedule trigger.
//   - hourly: fires at Minute past every hour
//   - daily:  fires at Time ("HH:MM", local)
//   - weekly: fires at Time on DayOfWeek ("monday" or "1")
//   - cron:   fires when the 5-field Cron spec matches
type ScheduleParams struct {
	Frequency ScheduleFrequency `json:"frequency"`
	Time      string            `json:"time,omitempty"`
	DayOfWeek string            `json:"day_of_week,omitempty"`
	Minute    int               `json:"minute,omitempty"`
	Cron      string            `json:"cron,omitempty"`
}

// EventParams configures an event trigger.
type EventParams struct {
	Event string `json:"event"`
}

// UserActionParams configures a user_action trigger.
type UserActionParams struct {
	Action string `json:"action"`
}

// ThresholdParams configures a data_threshold trigger. Condition is an expr
// expression evaluated against the values read from Signal.
type ThresholdParams struct {
	Signal    string `json:"signal"`
	Condition string `json:"condition"`
}

// PredictionParams configures an ai_prediction trigger. Without an explicit
// Condition the trigger fires when confidence >= MinConfidence.
type PredictionParams struct {
	Model         string  `json:"model"`
	MinConfidence float64 `json:"min_confidence"`
	Condition     string  `json:"condition,omitempty"`
}

// DecisionParams configures a decision_point step.
type DecisionParams struct {
	Question string   `json:"question"`
	Options  []string `json:"options,omitempty"`
}

// DecodeParams unmarshals raw params into target. Empty params decode to the zero value.
func DecodeParams(raw json.RawMessage, target any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return NewErrorf(ErrCodeValidation, "decode params: %s", err.Error()).WithCause(err)
	}
	return nil
}

// ScheduleParams decodes the trigger's params as ScheduleParams.
func (t *Trigger) ScheduleParams() (*ScheduleParams, error) {
	if t.Type != TriggerSchedule {
		return nil, fmt.Errorf("trigger %s is %s, not schedule", t.ID, t.Type)
	}
	var p ScheduleParams
	if err := DecodeParams(t.Params, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// ParamsMap decodes params into a generic map for prompt building and expression scopes.
func ParamsMap(raw json.RawMessage) map[string]any {
	out := map[string]any{}
	if len(raw) == 0 {
		return out
	}
	_ = json.Unmarshal(raw, &out)
	return out
}
