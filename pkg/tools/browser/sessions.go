package browser

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/entrhq/journeyforge/pkg/tools"
)

// ListSessionsTool reports the open sessions and how many more the manager
// accepts.
type ListSessionsTool struct {
	manager *SessionManager
}

// NewListSessionsTool creates the list_browser_sessions tool.
func NewListSessionsTool(manager *SessionManager) *ListSessionsTool {
	return &ListSessionsTool{manager: manager}
}

func (t *ListSessionsTool) Name() string { return "list_browser_sessions" }

func (t *ListSessionsTool) Description() string {
	return "List open browser sessions with their current URL, viewport and idle time, plus the engine and session limit."
}

func (t *ListSessionsTool) Schema() map[string]interface{} {
	return tools.BaseToolSchema(map[string]interface{}{}, nil)
}

type listSessionsResult struct {
	Engine      string        `json:"engine"`
	Count       int           `json:"count"`
	MaxSessions int           `json:"maxSessions"`
	Sessions    []SessionInfo `json:"sessions"`
}

func (t *ListSessionsTool) Execute(context.Context, json.RawMessage) (string, map[string]interface{}, error) {
	infos := t.manager.ListSessions()
	return tools.JSONResult(listSessionsResult{
		Engine:      t.manager.Engine(),
		Count:       len(infos),
		MaxSessions: t.manager.MaxSessions(),
		Sessions:    infos,
	})
}

// CloseSessionTool closes one named session. Recordings and simulators
// bound to it are released by the manager's close hook.
type CloseSessionTool struct {
	manager *SessionManager
}

// NewCloseSessionTool creates the close_browser_session tool.
func NewCloseSessionTool(manager *SessionManager) *CloseSessionTool {
	return &CloseSessionTool{manager: manager}
}

func (t *CloseSessionTool) Name() string { return "close_browser_session" }

func (t *CloseSessionTool) Description() string {
	return "Close a browser session and free its page. A recording running on the session is discarded."
}

func (t *CloseSessionTool) Schema() map[string]interface{} {
	return tools.BaseToolSchema(map[string]interface{}{
		"name": tools.StringProp("Session to close"),
	}, []string{"name"})
}

type closeSessionResult struct {
	Closed    string `json:"closed"`
	Remaining int    `json:"remaining"`
}

func (t *CloseSessionTool) Execute(_ context.Context, args json.RawMessage) (string, map[string]interface{}, error) {
	var in struct {
		Name string `json:"name"`
	}
	if err := tools.DecodeArgs(args, &in); err != nil {
		return "", nil, err
	}
	if in.Name == "" {
		return "", nil, errors.New("session name is required")
	}
	if err := t.manager.CloseSession(in.Name); err != nil {
		return "", nil, err
	}
	return tools.JSONResult(closeSessionResult{Closed: in.Name, Remaining: len(t.manager.ListSessions())})
}
