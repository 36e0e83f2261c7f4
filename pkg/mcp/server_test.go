package mcp

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auraos/orchestrator/pkg/schema"
)

func TestNewAuraServer(t *testing.T) {
	s := NewAuraServer(AuraServerDeps{})
	require.NotNil(t, s)
	assert.NotNil(t, s.mcpServer)
	assert.NotNil(t, s.logger)
	assert.Same(t, s.mcpServer, s.MCPServer())
}

func TestToolRegistration(t *testing.T) {
	s := NewAuraServer(AuraServerDeps{})

	tools := s.mcpServer.ListTools()
	require.Len(t, tools, 9)

	expectedTools := []string{
		"aura.create_workflow",
		"aura.register_workflow",
		"aura.pause",
		"aura.resume",
		"aura.stats",
		"aura.status",
		"aura.history",
		"aura.run",
		"aura.run_cycle",
	}
	for _, name := range expectedTools {
		tool := s.mcpServer.GetTool(name)
		assert.NotNil(t, tool, "tool %s should be registered", name)
	}
}

func TestToolDefinitions(t *testing.T) {
	tests := []struct {
		name     string
		toolName string
		required []string
	}{
		{"create", "aura.create_workflow", []string{"name", "category", "steps"}},
		{"register", "aura.register_workflow", []string{"definition"}},
		{"pause", "aura.pause", []string{"workflow_id"}},
		{"resume", "aura.resume", []string{"workflow_id"}},
		{"status", "aura.status", []string{"workflow_id"}},
		{"run", "aura.run", []string{"workflow_id"}},
		{"stats", "aura.stats", nil},
		{"history", "aura.history", nil},
		{"run cycle", "aura.run_cycle", nil},
	}

	s := NewAuraServer(AuraServerDeps{})

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tool := s.mcpServer.GetTool(tc.toolName)
			require.NotNil(t, tool)
			assert.NotEmpty(t, tool.Tool.Description)
			assert.ElementsMatch(t, tc.required, tool.Tool.InputSchema.Required)
		})
	}
}

// --- Notifier ---

type sentNotification struct {
	method string
	params map[string]any
}

type recordingClients struct {
	sent []sentNotification
}

func (r *recordingClients) SendNotificationToAllClients(method string, params map[string]any) {
	r.sent = append(r.sent, sentNotification{method: method, params: params})
}

func TestNotifierForwardsStatusAndRuns(t *testing.T) {
	clients := &recordingClients{}
	orc := newMockOrchestrator()
	n := NewNotifier(clients, nil)

	detach := n.Attach(orc)
	require.Len(t, orc.statusSubs, 1)
	require.Len(t, orc.runSubs, 1)

	ctx := context.Background()
	require.NoError(t, orc.statusSubs[0](ctx, schema.StatusSnapshot{
		Timestamp:       time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC),
		ActiveWorkflows: 2,
		TotalWorkflows:  3,
	}))
	require.NoError(t, orc.runSubs[0](ctx, schema.ExecutionRecord{
		ExecutionID: "exec-1",
		WorkflowID:  "content-morning-briefing",
		Success:     true,
	}))

	require.Len(t, clients.sent, 2)
	assert.Equal(t, schema.NotificationStatus, clients.sent[0].method)
	assert.Equal(t, float64(2), clients.sent[0].params["active_workflows"])
	assert.Equal(t, float64(3), clients.sent[0].params["total_workflows"])

	assert.Equal(t, schema.NotificationRun, clients.sent[1].method)
	assert.Equal(t, "exec-1", clients.sent[1].params["execution_id"])
	assert.Equal(t, true, clients.sent[1].params["success"])

	detach()
	assert.Empty(t, orc.statusSubs)
	assert.Empty(t, orc.runSubs)
}

func TestNotifierWithMCPServer(t *testing.T) {
	s := NewAuraServer(AuraServerDeps{})
	n := NewNotifier(s.MCPServer(), nil)

	// No clients connected: sending is a no-op.
	assert.NoError(t, n.Run(context.Background(), schema.ExecutionRecord{ExecutionID: "e"}))
}
