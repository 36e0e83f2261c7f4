package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/auraos/orchestrator/internal/catalog"
	"github.com/auraos/orchestrator/pkg/schema"
)

const defaultHistoryLimit = 20

// handleCreateWorkflow registers a custom workflow built from steps and triggers.
func (s *AuraServer) handleCreateWorkflow(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError("name is required"), nil
	}
	category, err := req.RequireString("category")
	if err != nil {
		return mcp.NewToolResultError("category is required"), nil
	}

	args := req.GetArguments()
	rawSteps, ok := args["steps"]
	if !ok {
		return mcp.NewToolResultError("steps is required"), nil
	}
	var steps []schema.Step
	if err := remarshal(rawSteps, &steps); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid steps: %v", err)), nil
	}
	var triggers []schema.Trigger
	if rawTriggers, ok := args["triggers"]; ok && rawTriggers != nil {
		if err := remarshal(rawTriggers, &triggers); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid triggers: %v", err)), nil
		}
	}

	wf, err := s.orc.CreateCustomWorkflow(ctx, name, schema.WorkflowCategory(category), steps, triggers)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("create workflow failed: %v", err)), nil
	}
	return marshalResult(wf)
}

// handleRegisterWorkflow registers or replaces a workflow from a full definition.
func (s *AuraServer) handleRegisterWorkflow(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	def, ok := req.GetArguments()["definition"].(map[string]any)
	if !ok {
		return mcp.NewToolResultError("definition is required and must be an object"), nil
	}
	data, err := json.Marshal(def)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid definition: %v", err)), nil
	}
	wf, err := catalog.Parse(data)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.orc.RegisterWorkflow(ctx, wf); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("register workflow failed: %v", err)), nil
	}

	registered, err := s.orc.Workflow(wf.ID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return marshalResult(schema.Summarize(registered))
}

// handlePause pauses a workflow.
func (s *AuraServer) handlePause(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.setStatus(ctx, req, s.orc.PauseWorkflow, schema.WorkflowStatusPaused)
}

// handleResume reactivates a workflow.
func (s *AuraServer) handleResume(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.setStatus(ctx, req, s.orc.ResumeWorkflow, schema.WorkflowStatusActive)
}

func (s *AuraServer) setStatus(ctx context.Context, req mcp.CallToolRequest, apply func(context.Context, string) bool, to schema.WorkflowStatus) (*mcp.CallToolResult, error) {
	workflowID, err := req.RequireString("workflow_id")
	if err != nil {
		return mcp.NewToolResultError("workflow_id is required"), nil
	}
	if !apply(ctx, workflowID) {
		return mcp.NewToolResultError(fmt.Sprintf("workflow %q not found", workflowID)), nil
	}
	return marshalResult(map[string]any{
		"workflow_id": workflowID,
		"status":      to,
	})
}

// handleStats returns aggregate statistics across workflows.
func (s *AuraServer) handleStats(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return marshalResult(s.orc.WorkflowStats())
}

// handleStatus returns the detail report of a workflow.
func (s *AuraServer) handleStatus(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	workflowID, err := req.RequireString("workflow_id")
	if err != nil {
		return mcp.NewToolResultError("workflow_id is required"), nil
	}
	report, err := s.orc.WorkflowStatus(workflowID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("status query failed: %v", err)), nil
	}
	return marshalResult(report)
}

// handleHistory returns recent executions and recoveries.
func (s *AuraServer) handleHistory(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := req.GetInt("limit", defaultHistoryLimit)
	if limit < 0 {
		return mcp.NewToolResultError("limit must be >= 0"), nil
	}
	return marshalResult(map[string]any{
		"executions": s.orc.ExecutionHistory(limit),
		"recoveries": s.orc.Recoveries(limit),
	})
}

// handleRun executes one workflow synchronously.
func (s *AuraServer) handleRun(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	workflowID, err := req.RequireString("workflow_id")
	if err != nil {
		return mcp.NewToolResultError("workflow_id is required"), nil
	}
	rec, err := s.orc.RunWorkflow(ctx, workflowID)
	if err != nil {
		if schema.ErrorCode(err) == schema.ErrCodeConflict {
			return mcp.NewToolResultError(fmt.Sprintf("workflow %q is already running", workflowID)), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("run failed: %v", err)), nil
	}
	return marshalResult(rec)
}

// handleRunCycle starts a trigger evaluation cycle. Runs outlive the request.
func (s *AuraServer) handleRunCycle(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	submitted := s.orc.RunCycle(context.WithoutCancel(ctx))
	return marshalResult(map[string]any{"submitted": submitted})
}

// marshalResult serializes v to JSON and returns it as a text tool result.
func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultJSON(json.RawMessage(data))
}

func remarshal(in, out any) error {
	data, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}
