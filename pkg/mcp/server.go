package mcp

import (
	"context"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/auraos/orchestrator/internal/streaming"
	"github.com/auraos/orchestrator/pkg/schema"
)

// Orchestrator is the part of engine.Orchestrator the MCP tools drive.
type Orchestrator interface {
	RegisterWorkflow(ctx context.Context, wf *schema.Workflow) error
	CreateCustomWorkflow(ctx context.Context, name string, category schema.WorkflowCategory, steps []schema.Step, triggers []schema.Trigger) (*schema.Workflow, error)
	PauseWorkflow(ctx context.Context, id string) bool
	ResumeWorkflow(ctx context.Context, id string) bool
	Workflow(id string) (*schema.Workflow, error)
	Workflows() []*schema.Workflow
	WorkflowStats() schema.WorkflowStats
	WorkflowStatus(id string) (*schema.WorkflowStatusReport, error)
	ExecutionHistory(limit int) []schema.ExecutionRecord
	Recoveries(limit int) []schema.ErrorRecoveryRecord
	RunCycle(ctx context.Context) int
	RunWorkflow(ctx context.Context, id string) (*schema.ExecutionRecord, error)
	SubscribeToWorkflowUpdates(fn streaming.Subscriber[schema.StatusSnapshot]) (unsubscribe func())
	SubscribeToRuns(fn streaming.Subscriber[schema.ExecutionRecord]) (unsubscribe func())
}

// AuraServerDeps holds the dependencies for creating an AuraServer.
type AuraServerDeps struct {
	Orchestrator Orchestrator
	Version      string
	Logger       *slog.Logger
}

// AuraServer wraps an MCP server with orchestrator tool handlers.
type AuraServer struct {
	orc       Orchestrator
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// NewAuraServer creates a new AuraServer with all tools registered.
func NewAuraServer(deps AuraServerDeps) *AuraServer {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	version := deps.Version
	if version == "" {
		version = "dev"
	}

	s := &AuraServer{
		orc:    deps.Orchestrator,
		logger: logger,
	}

	mcpSrv := server.NewMCPServer(
		"aura",
		version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("Aura runs automation workflows on schedules, events and data thresholds. "+
			"Use aura.stats for an overview, aura.status for one workflow, aura.pause/aura.resume to control it, "+
			"aura.create_workflow or aura.register_workflow to add workflows, aura.run or aura.run_cycle to execute, "+
			"and aura.history for recent runs. Live status is pushed as "+schema.NotificationStatus+
			" and finished runs as "+schema.NotificationRun+"."),
	)

	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	return s
}

// Serve starts the stdio transport and blocks until ctx is cancelled or stdin closes.
func (s *AuraServer) Serve(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// MCPServer returns the underlying MCPServer for testing or custom transports.
func (s *AuraServer) MCPServer() *server.MCPServer {
	return s.mcpServer
}

func (s *AuraServer) tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: createWorkflowTool(), Handler: s.handleCreateWorkflow},
		{Tool: registerWorkflowTool(), Handler: s.handleRegisterWorkflow},
		{Tool: pauseTool(), Handler: s.handlePause},
		{Tool: resumeTool(), Handler: s.handleResume},
		{Tool: statsTool(), Handler: s.handleStats},
		{Tool: statusTool(), Handler: s.handleStatus},
		{Tool: historyTool(), Handler: s.handleHistory},
		{Tool: runTool(), Handler: s.handleRun},
		{Tool: runCycleTool(), Handler: s.handleRunCycle},
	}
}

// --- Tool definitions ---

func createWorkflowTool() mcp.Tool {
	return mcp.NewTool("aura.create_workflow",
		mcp.WithDescription("Create and register a custom workflow with a generated ID"),
		mcp.WithString("name", mcp.Required(), mcp.Description("Display name")),
		mcp.WithString("category", mcp.Required(),
			mcp.Enum("content", "travel", "food", "shopping", "system"),
			mcp.Description("Workflow category"),
		),
		mcp.WithArray("steps", mcp.Required(),
			mcp.Description("Ordered steps: {id, name, type, params, dependencies, retry_policy, condition, output_map}"),
			mcp.Items(map[string]any{"type": "object"}),
		),
		mcp.WithArray("triggers",
			mcp.Description("Triggers: {type, enabled, params}"),
			mcp.Items(map[string]any{"type": "object"}),
		),
	)
}

func registerWorkflowTool() mcp.Tool {
	return mcp.NewTool("aura.register_workflow",
		mcp.WithDescription("Register or replace a workflow from a full definition"),
		mcp.WithObject("definition", mcp.Required(), mcp.Description("Workflow definition object")),
	)
}

func pauseTool() mcp.Tool {
	return mcp.NewTool("aura.pause",
		mcp.WithDescription("Pause a workflow so it is no longer scheduled"),
		mcp.WithString("workflow_id", mcp.Required(), mcp.Description("ID of the workflow to pause")),
	)
}

func resumeTool() mcp.Tool {
	return mcp.NewTool("aura.resume",
		mcp.WithDescription("Resume a paused workflow"),
		mcp.WithString("workflow_id", mcp.Required(), mcp.Description("ID of the workflow to resume")),
	)
}

func statsTool() mcp.Tool {
	return mcp.NewTool("aura.stats",
		mcp.WithDescription("Aggregate counts and performance across all workflows"),
	)
}

func statusTool() mcp.Tool {
	return mcp.NewTool("aura.status",
		mcp.WithDescription("Status, performance and recent runs of one workflow"),
		mcp.WithString("workflow_id", mcp.Required(), mcp.Description("ID of the workflow to query")),
	)
}

func historyTool() mcp.Tool {
	return mcp.NewTool("aura.history",
		mcp.WithDescription("Recent run and recovery records"),
		mcp.WithNumber("limit", mcp.Description("Maximum records of each kind (default 20, 0 for all)")),
	)
}

func runTool() mcp.Tool {
	return mcp.NewTool("aura.run",
		mcp.WithDescription("Run one workflow now, ignoring its triggers"),
		mcp.WithString("workflow_id", mcp.Required(), mcp.Description("ID of the workflow to run")),
	)
}

func runCycleTool() mcp.Tool {
	return mcp.NewTool("aura.run_cycle",
		mcp.WithDescription("Evaluate every active workflow's triggers now and start the runs that fire"),
	)
}
