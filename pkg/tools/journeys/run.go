package journeys

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/entrhq/journeyforge/pkg/journey"
	"github.com/entrhq/journeyforge/pkg/logging"
	"github.com/entrhq/journeyforge/pkg/tools"
)

// RunTool runs a journey on a browser session.
type RunTool struct {
	runner      *Runner
	defs        Definitions
	history     History
	maxDuration time.Duration
	logger      *logging.Logger
}

// NewRunTool creates a run tool. maxDuration is the budget of runs that set
// none; zero means unbounded. history may be nil.
func NewRunTool(runner *Runner, defs Definitions, history History, maxDuration time.Duration, logger *logging.Logger) *RunTool {
	if logger == nil {
		logger = logging.Discard()
	}
	return &RunTool{
		runner:      runner,
		defs:        defs,
		history:     history,
		maxDuration: maxDuration,
		logger:      logger,
	}
}

// Name returns the tool name.
func (t *RunTool) Name() string {
	return "run_journey"
}

// Description returns the tool description.
func (t *RunTool) Description() string {
	return "Run a journey step by step on a browser session and report per-step timing, errors, screenshots and performance metrics. The run is appended to the journey history."
}

// Schema returns the tool's JSON schema.
func (t *RunTool) Schema() map[string]interface{} {
	return tools.BaseToolSchema(
		definitionProps(map[string]interface{}{
			"session":       tools.StringProp("Browser session to run on"),
			"baseUrl":       tools.StringProp("Base URL relative navigate values resolve against"),
			"maxDurationMs": tools.IntProp("Budget for the whole run in milliseconds. 0 uses the configured default."),
			"recording":     tools.ObjectProp("Capture the run: {enabled, captureVideo, captureAllActions, outputDir}"),
		}),
		[]string{"session"},
	)
}

// RunInput defines the input parameters for running a journey.
type RunInput struct {
	DefinitionInput
	Session       string                    `json:"session"`
	BaseURL       string                    `json:"baseUrl,omitempty"`
	MaxDurationMs int                       `json:"maxDurationMs,omitempty"`
	Recording     *journey.RecordingOptions `json:"recording,omitempty"`
}

// RunOutput is the run_journey result.
type RunOutput struct {
	Result   *journey.Result `json:"result"`
	Aborted  string          `json:"abortedBecause,omitempty"`
	Warnings []string        `json:"warnings,omitempty"`
}

// Execute runs the journey. A failed or aborted run is reported in the
// result, not as a tool error.
func (t *RunTool) Execute(ctx context.Context, args json.RawMessage) (string, map[string]interface{}, error) {
	var input RunInput
	if err := tools.DecodeArgs(args, &input); err != nil {
		return "", nil, err
	}
	if input.Session == "" {
		return "", nil, fmt.Errorf("session is required")
	}
	def, err := input.resolve(t.defs)
	if err != nil {
		return "", nil, err
	}
	vr := journey.ValidateDefinition(def)
	if !vr.IsValid {
		return "", nil, invalidError(vr)
	}

	sim, err := t.runner.Simulator(input.Session)
	if err != nil {
		return "", nil, err
	}

	opts := journey.OptionsFor(def)
	opts.BaseURL = input.BaseURL
	opts.MaxDuration = t.maxDuration
	if input.MaxDurationMs > 0 {
		opts.MaxDuration = time.Duration(input.MaxDurationMs) * time.Millisecond
	}
	if input.Recording != nil {
		opts.Recording = *input.Recording
	}

	res, runErr := sim.RunJourney(ctx, opts)
	if res == nil {
		return "", nil, runErr
	}

	if t.history != nil {
		if err := t.history.Record(context.WithoutCancel(ctx), res); err != nil {
			t.logger.Warnf("failed to record run %s of %q: %v", res.JourneyID, res.Name, err)
		}
	}

	out := RunOutput{Result: res, Warnings: vr.Warnings}
	if runErr != nil {
		out.Aborted = runErr.Error()
	}
	text, _, err := tools.JSONResult(out)
	if err != nil {
		return "", nil, err
	}
	return text, map[string]interface{}{
		"journeyId": res.JourneyID,
		"success":   res.Success,
	}, nil
}

// StopTool stops the journey running on a session.
type StopTool struct {
	runner *Runner
}

// NewStopTool creates a stop tool.
func NewStopTool(runner *Runner) *StopTool {
	return &StopTool{runner: runner}
}

// Name returns the tool name.
func (t *StopTool) Name() string {
	return "stop_journey"
}

// Description returns the tool description.
func (t *StopTool) Description() string {
	return "Stop the journey running on a browser session. The run ends before its next step."
}

// Schema returns the tool's JSON schema.
func (t *StopTool) Schema() map[string]interface{} {
	return tools.BaseToolSchema(
		map[string]interface{}{"session": tools.StringProp("Browser session the journey runs on")},
		[]string{"session"},
	)
}

// Execute requests the stop.
func (t *StopTool) Execute(ctx context.Context, args json.RawMessage) (string, map[string]interface{}, error) {
	var input struct {
		Session string `json:"session"`
	}
	if err := tools.DecodeArgs(args, &input); err != nil {
		return "", nil, err
	}
	if input.Session == "" {
		return "", nil, fmt.Errorf("session is required")
	}
	return tools.JSONResult(map[string]interface{}{
		"session": input.Session,
		"stopped": t.runner.Stop(input.Session),
	})
}
