package mcp

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/auraos/orchestrator/pkg/schema"
)

// ClientNotifier pushes a notification to every connected client.
// *server.MCPServer satisfies it.
type ClientNotifier interface {
	SendNotificationToAllClients(method string, params map[string]any)
}

// Notifier forwards status snapshots and finished runs to MCP clients.
type Notifier struct {
	clients ClientNotifier
	logger  *slog.Logger
}

// NewNotifier creates a Notifier that pushes through clients.
func NewNotifier(clients ClientNotifier, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{clients: clients, logger: logger}
}

// Attach subscribes the notifier to orc's status and run streams. The
// returned func removes both subscriptions.
func (n *Notifier) Attach(orc Orchestrator) (detach func()) {
	unsubStatus := orc.SubscribeToWorkflowUpdates(n.Status)
	unsubRuns := orc.SubscribeToRuns(n.Run)
	return func() {
		unsubStatus()
		unsubRuns()
	}
}

// Status pushes a snapshot as schema.NotificationStatus.
func (n *Notifier) Status(_ context.Context, snap schema.StatusSnapshot) error {
	return n.send(schema.NotificationStatus, snap)
}

// Run pushes a finished execution as schema.NotificationRun.
func (n *Notifier) Run(_ context.Context, rec schema.ExecutionRecord) error {
	return n.send(schema.NotificationRun, rec)
}

func (n *Notifier) send(method string, v any) error {
	params, err := toParams(v)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeSubscriber, "encode %s: %s", method, err.Error()).WithCause(err)
	}
	n.clients.SendNotificationToAllClients(method, params)
	n.logger.Debug("notification sent", slog.String("method", method))
	return nil
}

func toParams(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var params map[string]any
	if err := json.Unmarshal(data, &params); err != nil {
		return nil, err
	}
	return params, nil
}
