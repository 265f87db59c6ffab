package journeys

import (
	"context"
	"encoding/json"

	"github.com/entrhq/journeyforge/pkg/history"
	"github.com/entrhq/journeyforge/pkg/tools"
)

// HistoryTool queries the run history.
type HistoryTool struct {
	history History
}

// NewHistoryTool creates a history tool.
func NewHistoryTool(h History) *HistoryTool {
	return &HistoryTool{history: h}
}

// Name returns the tool name.
func (t *HistoryTool) Name() string {
	return "journey_history"
}

// Description returns the tool description.
func (t *HistoryTool) Description() string {
	return "List recent journey runs, newest first, with pass/fail statistics. Pass runId to fetch one run's full result."
}

// Schema returns the tool's JSON schema.
func (t *HistoryTool) Schema() map[string]interface{} {
	return tools.BaseToolSchema(map[string]interface{}{
		"name":  tools.StringProp("Only runs of this journey"),
		"limit": tools.IntProp("Maximum number of runs. Default: 20"),
		"runId": tools.StringProp("Return the full result of this run"),
	}, nil)
}

// HistoryInput defines the input parameters for querying history.
type HistoryInput struct {
	Name  string `json:"name,omitempty"`
	Limit int    `json:"limit,omitempty"`
	RunID string `json:"runId,omitempty"`
}

type historyOutput struct {
	Runs  []history.Run  `json:"runs"`
	Stats *history.Stats `json:"stats,omitempty"`
}

// Execute queries the history.
func (t *HistoryTool) Execute(ctx context.Context, args json.RawMessage) (string, map[string]interface{}, error) {
	var input HistoryInput
	if err := tools.DecodeArgs(args, &input); err != nil {
		return "", nil, err
	}

	if input.RunID != "" {
		res, err := t.history.Get(ctx, input.RunID)
		if err != nil {
			return "", nil, err
		}
		return tools.JSONResult(res)
	}

	runs, err := t.history.List(ctx, input.Name, input.Limit)
	if err != nil {
		return "", nil, err
	}
	out := historyOutput{Runs: runs}
	if out.Runs == nil {
		out.Runs = []history.Run{}
	}
	if input.Name != "" {
		stats, err := t.history.Stats(ctx, input.Name)
		if err != nil {
			return "", nil, err
		}
		out.Stats = &stats
	}
	return tools.JSONResult(out)
}
