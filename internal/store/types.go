package store

import (
	"time"

	"github.com/auraos/orchestrator/pkg/schema"
)

// WorkflowFilter narrows ListWorkflows. Zero values match everything.
type WorkflowFilter struct {
	Status   *schema.WorkflowStatus
	Category schema.WorkflowCategory
	Limit    int
}

// ExecutionFilter narrows ListExecutions.
type ExecutionFilter struct {
	WorkflowID string
	Success    *bool
	Since      *time.Time
	Limit      int
}

// RecoveryFilter narrows ListRecoveries.
type RecoveryFilter struct {
	WorkflowID  string
	ExecutionID string
	Limit       int
}
