package schema

import "time"

// Notification methods pushed to MCP clients.
const (
	NotificationStatus = "notifications/aura/status"
	NotificationRun    = "notifications/aura/run"
)

// WorkflowSummary is the per-workflow entry in stats and snapshots.
type WorkflowSummary struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Category    WorkflowCategory `json:"category"`
	Status      WorkflowStatus   `json:"status"`
	Performance Performance      `json:"performance"`
}

// Summarize builds a WorkflowSummary from a workflow.
func Summarize(wf *Workflow) WorkflowSummary {
	return WorkflowSummary{
		ID:          wf.ID,
		Name:        wf.Name,
		Category:    wf.Category,
		Status:      wf.Status,
		Performance: wf.Performance,
	}
}

// WorkflowStats aggregates performance across all registered workflows.
type WorkflowStats struct {
	Total              int                    `json:"total"`
	Active             int                    `json:"active"`
	ByStatus           map[WorkflowStatus]int `json:"by_status"`
	TotalExecutions    int64                  `json:"total_executions"`
	AverageSuccessRate float64                `json:"average_success_rate"`
	Workflows          []WorkflowSummary      `json:"workflows"`
}

// WorkflowStatusReport is the detail view of a single workflow.
type WorkflowStatusReport struct {
	ID               string            `json:"id"`
	Status           WorkflowStatus    `json:"status"`
	Performance      Performance       `json:"performance"`
	RecentExecutions []ExecutionRecord `json:"recent_executions"`
}

// SystemHealth is the aggregate health block of a snapshot.
type SystemHealth struct {
	AverageSuccessRate   float64 `json:"average_success_rate"`
	AverageErrorRate     float64 `json:"average_error_rate"`
	AverageExecutionTime float64 `json:"average_execution_time"`
	TotalExecutions      int64   `json:"total_executions"`
}

// StatusSnapshot is what the broadcaster hands to every subscriber.
type StatusSnapshot struct {
	Timestamp        time.Time              `json:"timestamp"`
	ActiveWorkflows  int                    `json:"active_workflows"`
	TotalWorkflows   int                    `json:"total_workflows"`
	ByStatus         map[WorkflowStatus]int `json:"by_status"`
	RecentExecutions []ExecutionRecord      `json:"recent_executions"`
	Health           SystemHealth           `json:"health"`
	Workflows        []WorkflowSummary      `json:"workflows"`
}
