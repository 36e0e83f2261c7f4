package engine

import (
	"strings"

	"github.com/auraos/orchestrator/pkg/schema"
)

// DependencyResolver tracks, for one run, which steps completed and what
// they produced. Runs are sequential, so it is not safe for concurrent use.
type DependencyResolver struct {
	completed map[string]struct{}
	outputs   map[string]any
}

// NewDependencyResolver creates an empty resolver for a new run.
func NewDependencyResolver() *DependencyResolver {
	return &DependencyResolver{
		completed: make(map[string]struct{}),
		outputs:   make(map[string]any),
	}
}

// Check returns DEPENDENCY_UNMET if any of step's dependencies has not completed.
func (r *DependencyResolver) Check(step *schema.Step) error {
	var missing []string
	for _, dep := range step.Dependencies {
		if !r.Completed(dep) {
			missing = append(missing, dep)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return schema.NewErrorf(schema.ErrCodeDependencyUnmet,
		"dependencies not completed: %s", strings.Join(missing, ", ")).
		WithStep(step.ID).
		WithDetails(map[string]any{"missing": missing})
}

// Complete marks stepID as done. output may be nil (skipped or recovered steps).
func (r *DependencyResolver) Complete(stepID string, output any) {
	r.completed[stepID] = struct{}{}
	if output != nil {
		r.outputs[stepID] = output
	}
}

// Completed reports whether stepID has completed in this run.
func (r *DependencyResolver) Completed(stepID string) bool {
	_, ok := r.completed[stepID]
	return ok
}

// Outputs returns a copy of the outputs recorded so far.
func (r *DependencyResolver) Outputs() map[string]any {
	out := make(map[string]any, len(r.outputs))
	for k, v := range r.outputs {
		out[k] = v
	}
	return out
}
