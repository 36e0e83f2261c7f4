package validation

import (
	"fmt"

	"github.com/auraos/orchestrator/internal/expressions"
	"github.com/auraos/orchestrator/internal/scheduler"
	"github.com/auraos/orchestrator/pkg/schema"
)

// ValidateStepOrder checks that step IDs are unique and non-empty and that
// every dependency names an earlier step in the same workflow.
func ValidateStepOrder(steps []schema.Step) error {
	return validateStepOrder(steps).ToError()
}

func validateStepOrder(steps []schema.Step) *schema.ValidationResult {
	result := &schema.ValidationResult{}
	seen := make(map[string]int, len(steps))

	for i, step := range steps {
		path := fmt.Sprintf("steps[%d]", i)
		if step.ID == "" {
			result.AddError(path+".id", schema.ErrCodeValidation, "step id must not be empty")
			continue
		}
		if prev, dup := seen[step.ID]; dup {
			result.AddError(path+".id", schema.ErrCodeValidation,
				fmt.Sprintf("duplicate step id %q (first defined at steps[%d])", step.ID, prev))
			continue
		}

		for j, dep := range step.Dependencies {
			depPath := fmt.Sprintf("%s.dependencies[%d]", path, j)
			switch {
			case dep == step.ID:
				result.AddError(depPath, schema.ErrCodeValidation, "step cannot depend on itself")
			default:
				if _, earlier := seen[dep]; !earlier {
					if stepIndex(steps, dep) >= 0 {
						result.AddError(depPath, schema.ErrCodeValidation,
							fmt.Sprintf("depends on later step %q; dependencies must be declared earlier", dep))
					} else {
						result.AddError(depPath, schema.ErrCodeValidation,
							fmt.Sprintf("references non-existent step %q", dep))
					}
				}
			}
		}
		seen[step.ID] = i
	}
	return result
}

func stepIndex(steps []schema.Step, id string) int {
	for i := range steps {
		if steps[i].ID == id {
			return i
		}
	}
	return -1
}

// compilers groups the expression engines used to pre-compile embedded expressions.
type compilers struct {
	guard     expressions.Engine // step conditions
	outputMap expressions.Engine // step output maps
	predicate expressions.Engine // trigger conditions
}

// validateSemantic checks what the schema cannot express: step ordering,
// schedule params that must parse as cron, and embedded expressions.
func validateSemantic(wf *schema.Workflow, c compilers) *schema.ValidationResult {
	result := validateStepOrder(wf.Steps)

	for i := range wf.Steps {
		step := &wf.Steps[i]
		path := fmt.Sprintf("steps[%d]", i)
		if step.Condition != "" {
			if err := c.guard.Compile(step.Condition); err != nil {
				result.AddError(path+".condition", schema.ErrCodeValidation, err.Error())
			}
		}
		if step.OutputMap != "" {
			if err := c.outputMap.Compile(step.OutputMap); err != nil {
				result.AddError(path+".output_map", schema.ErrCodeValidation, err.Error())
			}
		}
		for _, ref := range expressions.StepRefs(step.Params) {
			if idx := stepIndex(wf.Steps, ref); idx < 0 || idx >= i {
				result.AddError(path+".params", schema.ErrCodeValidation,
					fmt.Sprintf("params reference step %q, which is not declared before this step", ref))
			}
		}
		if step.RetryPolicy.MaxRetries > 10 {
			result.AddWarning(path+".retry_policy.max_retries", schema.ErrCodeValidation,
				fmt.Sprintf("max_retries %d is unusually high; a failing step blocks its run for every attempt", step.RetryPolicy.MaxRetries))
		}
	}

	enabled := 0
	for i := range wf.Triggers {
		trigger := &wf.Triggers[i]
		if trigger.Enabled {
			enabled++
		}
		validateTrigger(trigger, fmt.Sprintf("triggers[%d]", i), c, result)
	}
	if enabled == 0 {
		result.AddWarning("triggers", schema.ErrCodeValidation,
			"no enabled triggers; the workflow only runs when invoked directly")
	}

	for i, dep := range wf.Dependencies {
		if dep == wf.ID {
			result.AddWarning(fmt.Sprintf("dependencies[%d]", i), schema.ErrCodeValidation,
				"workflow lists itself as a dependency")
		}
	}
	return result
}

func validateTrigger(trigger *schema.Trigger, path string, c compilers, result *schema.ValidationResult) {
	switch trigger.Type {
	case schema.TriggerSchedule:
		p, err := trigger.ScheduleParams()
		if err != nil {
			result.AddError(path+".params", schema.ErrCodeValidation, err.Error())
			return
		}
		spec, err := scheduler.CronSpec(p)
		if err != nil {
			result.AddError(path+".params", schema.ErrCodeValidation, err.Error())
			return
		}
		if _, err := scheduler.Parse(spec); err != nil {
			result.AddError(path+".params.cron", schema.ErrCodeValidation, err.Error())
		}
	case schema.TriggerDataThreshold:
		var p schema.ThresholdParams
		if err := schema.DecodeParams(trigger.Params, &p); err != nil {
			result.AddError(path+".params", schema.ErrCodeValidation, err.Error())
			return
		}
		if err := c.predicate.Compile(p.Condition); err != nil {
			result.AddError(path+".params.condition", schema.ErrCodeValidation, err.Error())
		}
	case schema.TriggerAIPrediction:
		var p schema.PredictionParams
		if err := schema.DecodeParams(trigger.Params, &p); err != nil {
			result.AddError(path+".params", schema.ErrCodeValidation, err.Error())
			return
		}
		if p.Condition != "" {
			if err := c.predicate.Compile(p.Condition); err != nil {
				result.AddError(path+".params.condition", schema.ErrCodeValidation, err.Error())
			}
		}
	}
}
