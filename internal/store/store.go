package store

import (
	"context"

	"github.com/auraos/orchestrator/pkg/schema"
)

// Store defines the persistence layer contract.
// All implementations must be safe for concurrent use.
type Store interface {
	// Workflows
	SaveWorkflow(ctx context.Context, wf *schema.Workflow) error
	GetWorkflow(ctx context.Context, id string) (*schema.Workflow, error)
	LoadWorkflows(ctx context.Context) ([]*schema.Workflow, error)
	ListWorkflows(ctx context.Context, filter WorkflowFilter) ([]*schema.Workflow, error)

	// Run history (append-only)
	AppendExecution(ctx context.Context, rec *schema.ExecutionRecord) error
	ListExecutions(ctx context.Context, filter ExecutionFilter) ([]*schema.ExecutionRecord, error)

	// Recovery attempts (append-only)
	AppendRecovery(ctx context.Context, rec *schema.ErrorRecoveryRecord) error
	ListRecoveries(ctx context.Context, filter RecoveryFilter) ([]*schema.ErrorRecoveryRecord, error)

	// Maintenance
	Migrate(ctx context.Context) error
	Vacuum(ctx context.Context) error

	// Lifecycle
	Close() error
}
