// Package validation checks workflow definitions at registration time.
package validation

import (
	"github.com/auraos/orchestrator/internal/expressions"
	"github.com/auraos/orchestrator/pkg/schema"
)

// WorkflowValidator runs the two-stage validation pipeline:
// 1. Structural (JSON Schema, including typed params per trigger/step type)
// 2. Semantic (step order, schedule parsing, expression compilation)
type WorkflowValidator struct {
	jsonSchema *JSONSchemaValidator
	compilers  compilers
}

// NewWorkflowValidator creates a WorkflowValidator with its own expression engines.
func NewWorkflowValidator() (*WorkflowValidator, error) {
	jsv, err := NewJSONSchemaValidator()
	if err != nil {
		return nil, err
	}
	celEngine, err := expressions.NewCELEngine()
	if err != nil {
		return nil, err
	}
	return &WorkflowValidator{
		jsonSchema: jsv,
		compilers: compilers{
			guard:     celEngine,
			outputMap: expressions.NewGoJQEngine(),
			predicate: expressions.NewExprEngine(),
		},
	}, nil
}

// Validate runs the full pipeline on a normalized copy of wf and returns an
// aggregated result. Structural errors short-circuit the semantic stage.
func (wv *WorkflowValidator) Validate(wf *schema.Workflow) *schema.ValidationResult {
	if wf == nil {
		r := &schema.ValidationResult{}
		r.AddError("/", schema.ErrCodeValidation, "workflow is nil")
		return r
	}

	normalized := wf.Clone()
	normalized.Normalize()

	result := wv.jsonSchema.Validate(normalized)
	result.WorkflowID = normalized.ID
	if !result.Valid() {
		return result
	}
	result.Merge(validateSemantic(normalized, wv.compilers))
	return result
}

// ValidateWorkflow returns a VALIDATION_ERROR describing every problem, or nil.
func (wv *WorkflowValidator) ValidateWorkflow(wf *schema.Workflow) error {
	return wv.Validate(wf).ToError()
}
