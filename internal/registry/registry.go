// Package registry holds workflow definitions and their live status.
package registry

import (
	"sync"

	"github.com/auraos/orchestrator/pkg/schema"
)

// WorkflowRegistry is the concurrency-safe keyed store of workflows. It is
// the only shared mutable state of the engine: the orchestration cycle reads
// it while pause/resume/create calls write it. Every read returns a deep copy
// so callers never hold references into the map.
type WorkflowRegistry struct {
	mu        sync.RWMutex
	workflows map[string]*schema.Workflow
	order     []string // registration order, for stable listings
}

// New creates an empty registry.
func New() *WorkflowRegistry {
	return &WorkflowRegistry{workflows: make(map[string]*schema.Workflow)}
}

// Register inserts or replaces a workflow by ID.
func (r *WorkflowRegistry) Register(wf *schema.Workflow) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.workflows[wf.ID]; !exists {
		r.order = append(r.order, wf.ID)
	}
	r.workflows[wf.ID] = wf.Clone()
}

// Get returns a copy of the workflow, or a NOT_FOUND error.
func (r *WorkflowRegistry) Get(id string) (*schema.Workflow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	wf, ok := r.workflows[id]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "workflow %q not found", id).WithWorkflow(id)
	}
	return wf.Clone(), nil
}

// ListByStatus returns copies of all workflows in the given status, in registration order.
func (r *WorkflowRegistry) ListByStatus(status schema.WorkflowStatus) []*schema.Workflow {
	return r.list(func(wf *schema.Workflow) bool { return wf.Status == status })
}

// List returns copies of all workflows in registration order.
func (r *WorkflowRegistry) List() []*schema.Workflow {
	return r.list(nil)
}

func (r *WorkflowRegistry) list(keep func(*schema.Workflow) bool) []*schema.Workflow {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*schema.Workflow, 0, len(r.order))
	for _, id := range r.order {
		wf := r.workflows[id]
		if keep == nil || keep(wf) {
			out = append(out, wf.Clone())
		}
	}
	return out
}

// SetStatus updates a workflow's status. Returns false if the ID is unknown.
func (r *WorkflowRegistry) SetStatus(id string, status schema.WorkflowStatus) bool {
	return r.Update(id, func(wf *schema.Workflow) { wf.Status = status }) == nil
}

// Update applies fn to the stored workflow under the write lock. fn must not
// retain wf. Returns NOT_FOUND if the ID is unknown.
func (r *WorkflowRegistry) Update(id string, fn func(wf *schema.Workflow)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	wf, ok := r.workflows[id]
	if !ok {
		return schema.NewErrorf(schema.ErrCodeNotFound, "workflow %q not found", id).WithWorkflow(id)
	}
	fn(wf)
	return nil
}

// Len returns the number of registered workflows.
func (r *WorkflowRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.workflows)
}

// CountByStatus returns the number of workflows per status.
func (r *WorkflowRegistry) CountByStatus() map[schema.WorkflowStatus]int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	counts := make(map[schema.WorkflowStatus]int)
	for _, wf := range r.workflows {
		counts[wf.Status]++
	}
	return counts
}
