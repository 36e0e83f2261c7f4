package validation

import (
	"encoding/json"
	"fmt"
	"strings"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/auraos/orchestrator/pkg/schema"
)

const workflowSchemaURL = "https://aura.local/schemas/workflow.json"

// workflowSchemaJSON is the JSON Schema for Workflow. Trigger and step params
// are a tagged union over type, expressed with if/then per variant.
const workflowSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://aura.local/schemas/workflow.json",
  "type": "object",
  "required": ["id", "name", "category", "steps"],
  "properties": {
    "id": { "type": "string", "minLength": 1 },
    "name": { "type": "string", "minLength": 1 },
    "category": {
      "type": "string",
      "enum": ["content", "travel", "food", "shopping", "system"]
    },
    "steps": {
      "type": "array",
      "minItems": 1,
      "items": { "$ref": "#/$defs/step" }
    },
    "triggers": {
      "type": ["array", "null"],
      "items": { "$ref": "#/$defs/trigger" }
    },
    "dependencies": {
      "type": ["array", "null"],
      "items": { "type": "string", "minLength": 1 }
    },
    "status": {
      "type": "string",
      "enum": ["active", "paused", "learning", "optimizing"]
    },
    "performance": { "type": "object" },
    "created_at": { "type": "string" },
    "updated_at": { "type": "string" }
  },
  "additionalProperties": false,
  "$defs": {
    "step": {
      "type": "object",
      "required": ["id", "type"],
      "properties": {
        "id": { "type": "string", "minLength": 1 },
        "name": { "type": "string" },
        "type": {
          "type": "string",
          "enum": ["ai_analysis", "data_processing", "api_integration", "system_action", "user_interaction", "decision_point"]
        },
        "params": { "type": "object" },
        "dependencies": {
          "type": ["array", "null"],
          "items": { "type": "string" }
        },
        "timeout": { "type": "integer", "minimum": 0 },
        "retry_policy": { "$ref": "#/$defs/retry_policy" },
        "condition": { "type": "string" },
        "output_map": { "type": "string" }
      },
      "additionalProperties": false,
      "if": { "properties": { "type": { "const": "decision_point" } } },
      "then": {
        "required": ["params"],
        "properties": { "params": { "$ref": "#/$defs/decision_params" } }
      }
    },
    "retry_policy": {
      "type": "object",
      "properties": {
        "max_retries": { "type": "integer", "minimum": 0 },
        "backoff_strategy": { "type": "string", "enum": ["linear", "exponential", "fixed"] },
        "retry_delay": { "type": "integer", "minimum": 0 }
      },
      "additionalProperties": false
    },
    "trigger": {
      "type": "object",
      "required": ["type"],
      "properties": {
        "id": { "type": "string" },
        "type": {
          "type": "string",
          "enum": ["schedule", "event", "data_threshold", "user_action", "ai_prediction"]
        },
        "params": { "type": "object" },
        "enabled": { "type": "boolean" }
      },
      "additionalProperties": false,
      "allOf": [
        {
          "if": { "properties": { "type": { "const": "schedule" } } },
          "then": { "required": ["params"], "properties": { "params": { "$ref": "#/$defs/schedule_params" } } }
        },
        {
          "if": { "properties": { "type": { "const": "event" } } },
          "then": { "required": ["params"], "properties": { "params": { "$ref": "#/$defs/event_params" } } }
        },
        {
          "if": { "properties": { "type": { "const": "user_action" } } },
          "then": { "required": ["params"], "properties": { "params": { "$ref": "#/$defs/user_action_params" } } }
        },
        {
          "if": { "properties": { "type": { "const": "data_threshold" } } },
          "then": { "required": ["params"], "properties": { "params": { "$ref": "#/$defs/threshold_params" } } }
        },
        {
          "if": { "properties": { "type": { "const": "ai_prediction" } } },
          "then": { "required": ["params"], "properties": { "params": { "$ref": "#/$defs/prediction_params" } } }
        }
      ]
    },
    "schedule_params": {
      "type": "object",
      "required": ["frequency"],
      "properties": {
        "frequency": { "type": "string", "enum": ["hourly", "daily", "weekly", "cron"] },
        "time": { "type": "string", "pattern": "^([01][0-9]|2[0-3]):[0-5][0-9]$" },
        "day_of_week": { "type": "string", "minLength": 1 },
        "minute": { "type": "integer", "minimum": 0, "maximum": 59 },
        "cron": { "type": "string", "minLength": 1 }
      },
      "additionalProperties": false,
      "allOf": [
        {
          "if": { "properties": { "frequency": { "const": "daily" } } },
          "then": { "required": ["time"] }
        },
        {
          "if": { "properties": { "frequency": { "const": "weekly" } } },
          "then": { "required": ["time", "day_of_week"] }
        },
        {
          "if": { "properties": { "frequency": { "const": "cron" } } },
          "then": { "required": ["cron"] }
        }
      ]
    },
    "event_params": {
      "type": "object",
      "required": ["event"],
      "properties": { "event": { "type": "string", "minLength": 1 } },
      "additionalProperties": false
    },
    "user_action_params": {
      "type": "object",
      "required": ["action"],
      "properties": { "action": { "type": "string", "minLength": 1 } },
      "additionalProperties": false
    },
    "threshold_params": {
      "type": "object",
      "required": ["signal", "condition"],
      "properties": {
        "signal": { "type": "string", "minLength": 1 },
        "condition": { "type": "string", "minLength": 1 }
      },
      "additionalProperties": false
    },
    "prediction_params": {
      "type": "object",
      "required": ["model", "min_confidence"],
      "properties": {
        "model": { "type": "string", "minLength": 1 },
        "min_confidence": { "type": "number", "minimum": 0, "maximum": 1 },
        "condition": { "type": "string" }
      },
      "additionalProperties": false
    },
    "decision_params": {
      "type": "object",
      "required": ["question"],
      "properties": {
        "question": { "type": "string", "minLength": 1 },
        "options": { "type": "array", "items": { "type": "string" } }
      }
    }
  }
}`

// JSONSchemaValidator checks the structure of a workflow against the
// embedded schema. It is safe for concurrent use.
type JSONSchemaValidator struct {
	workflowSchema *jsonschema.Schema
}

// NewJSONSchemaValidator compiles the workflow schema.
func NewJSONSchemaValidator() (*JSONSchemaValidator, error) {
	c := jsonschema.NewCompiler()
	c.AssertFormat()

	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(workflowSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("unmarshal workflow schema: %w", err)
	}
	if err := c.AddResource(workflowSchemaURL, doc); err != nil {
		return nil, fmt.Errorf("add workflow schema resource: %w", err)
	}
	compiled, err := c.Compile(workflowSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile workflow schema: %w", err)
	}
	return &JSONSchemaValidator{workflowSchema: compiled}, nil
}

// Validate returns one issue per schema violation, keyed by instance location.
func (v *JSONSchemaValidator) Validate(wf *schema.Workflow) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	doc, err := toJSONValue(wf)
	if err != nil {
		result.AddError("/", schema.ErrCodeValidation, "failed to serialize workflow: "+err.Error())
		return result
	}

	if err := v.workflowSchema.Validate(doc); err != nil {
		verr, ok := err.(*jsonschema.ValidationError)
		if !ok {
			result.AddError("/", schema.ErrCodeValidation, err.Error())
			return result
		}
		for _, issue := range collectViolations(verr) {
			result.AddError(issue.Path, schema.ErrCodeValidation, issue.Message)
		}
	}
	return result
}

// toJSONValue round-trips a Go value through JSON so numbers become
// json.Number, which the jsonschema library requires.
func toJSONValue(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(strings.NewReader(string(b)))
}

// collectViolations walks a ValidationError tree and returns its leaves.
func collectViolations(verr *jsonschema.ValidationError) []schema.ValidationIssue {
	if len(verr.Causes) == 0 {
		loc := "/"
		if len(verr.InstanceLocation) > 0 {
			loc = "/" + strings.Join(verr.InstanceLocation, "/")
		}
		return []schema.ValidationIssue{{Path: loc, Message: verr.Error()}}
	}

	var out []schema.ValidationIssue
	for _, cause := range verr.Causes {
		out = append(out, collectViolations(cause)...)
	}
	return out
}
