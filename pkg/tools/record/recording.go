// Package record exposes interaction recording and selector suggestion as
// tools.
package record

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/entrhq/journeyforge/pkg/journey"
	"github.com/entrhq/journeyforge/pkg/page"
	"github.com/entrhq/journeyforge/pkg/recorder"
	"github.com/entrhq/journeyforge/pkg/tools"
)

// Pages resolves browser session names to pages.
type Pages interface {
	Page(session string) (page.Controller, error)
}

// Saver stores recorded journeys.
type Saver interface {
	Save(def *journey.Definition) (string, error)
}

// StartTool starts recording a browser session's interactions.
type StartTool struct {
	pages    Pages
	registry *recorder.Registry
	defaults recorder.Options
}

// NewStartTool creates a start tool. defaults supplies the options callers
// leave unset.
func NewStartTool(pages Pages, registry *recorder.Registry, defaults recorder.Options) *StartTool {
	return &StartTool{pages: pages, registry: registry, defaults: defaults}
}

// Name returns the tool name.
func (t *StartTool) Name() string {
	return "start_recording"
}

// Description returns the tool description.
func (t *StartTool) Description() string {
	return "Start recording clicks, typing and navigations on a browser session. Stop the recording to get a replayable journey."
}

// Schema returns the tool's JSON schema.
func (t *StartTool) Schema() map[string]interface{} {
	return tools.BaseToolSchema(
		map[string]interface{}{
			"session":               tools.StringProp("Browser session to record"),
			"sessionId":             tools.StringProp("Recording session id. Generated when omitted."),
			"journeyName":           tools.StringProp("Name of the recorded journey"),
			"description":           tools.StringProp("Description of the recorded journey"),
			"minInteractionDelayMs": tools.IntProp("Interactions closer than this many milliseconds to the previous one are dropped"),
			"excludeActions":        tools.StringListProp("Glob patterns over 'action' or 'action:selector' to skip"),
			"ignoreUrls":            tools.StringListProp("Glob patterns of navigation URLs to skip"),
			"skipInitialNavigation": tools.BoolProp("Do not start the journey with a navigate step to the current URL"),
		},
		[]string{"session"},
	)
}

// StartInput defines the input parameters for starting a recording.
type StartInput struct {
	Session               string   `json:"session"`
	SessionID             string   `json:"sessionId,omitempty"`
	JourneyName           string   `json:"journeyName,omitempty"`
	Description           string   `json:"description,omitempty"`
	MinInteractionDelayMs *int     `json:"minInteractionDelayMs,omitempty"`
	ExcludeActions        []string `json:"excludeActions,omitempty"`
	IgnoreURLs            []string `json:"ignoreUrls,omitempty"`
	SkipInitialNavigation *bool    `json:"skipInitialNavigation,omitempty"`
}

func (in StartInput) options(defaults recorder.Options) recorder.Options {
	opts := defaults
	opts.JourneyName = in.JourneyName
	opts.Description = in.Description
	if in.MinInteractionDelayMs != nil {
		opts.MinInteractionDelay = time.Duration(*in.MinInteractionDelayMs) * time.Millisecond
	}
	if in.ExcludeActions != nil {
		opts.ExcludeActions = in.ExcludeActions
	}
	if in.IgnoreURLs != nil {
		opts.IgnoreURLs = in.IgnoreURLs
	}
	if in.SkipInitialNavigation != nil {
		opts.SkipInitialNavigation = *in.SkipInitialNavigation
	}
	return opts
}

// Execute starts the recording.
func (t *StartTool) Execute(ctx context.Context, args json.RawMessage) (string, map[string]interface{}, error) {
	var input StartInput
	if err := tools.DecodeArgs(args, &input); err != nil {
		return "", nil, err
	}
	if input.Session == "" {
		return "", nil, fmt.Errorf("session is required")
	}
	if input.MinInteractionDelayMs != nil && *input.MinInteractionDelayMs < 0 {
		return "", nil, fmt.Errorf("minInteractionDelayMs must not be negative")
	}
	p, err := t.pages.Page(input.Session)
	if err != nil {
		return "", nil, err
	}

	s, err := t.registry.StartRecording(ctx, input.SessionID, p, input.options(t.defaults))
	if err != nil {
		return "", nil, err
	}
	text, _, err := tools.JSONResult(s)
	return text, map[string]interface{}{"sessionId": s.ID}, err
}

// StopTool stops a recording and returns the journey.
type StopTool struct {
	registry *recorder.Registry
	saver    Saver
}

// NewStopTool creates a stop tool. saver may be nil, which disables save.
func NewStopTool(registry *recorder.Registry, saver Saver) *StopTool {
	return &StopTool{registry: registry, saver: saver}
}

// Name returns the tool name.
func (t *StopTool) Name() string {
	return "stop_recording"
}

// Description returns the tool description.
func (t *StopTool) Description() string {
	return "Stop a recording and return the recorded journey with consecutive navigations merged. Set save to write it to the journey store."
}

// Schema returns the tool's JSON schema.
func (t *StopTool) Schema() map[string]interface{} {
	return tools.BaseToolSchema(
		map[string]interface{}{
			"sessionId": tools.StringProp("Recording session id"),
			"save":      tools.BoolProp("Save the journey to the journey store"),
		},
		[]string{"sessionId"},
	)
}

// StopOutput is the stop_recording result.
type StopOutput struct {
	SessionID string              `json:"sessionId"`
	Journey   *journey.Definition `json:"journey"`
	Path      string              `json:"path,omitempty"`
	Warnings  []string            `json:"warnings,omitempty"`
}

// Execute stops the recording.
func (t *StopTool) Execute(ctx context.Context, args json.RawMessage) (string, map[string]interface{}, error) {
	var input struct {
		SessionID string `json:"sessionId"`
		Save      bool   `json:"save,omitempty"`
	}
	if err := tools.DecodeArgs(args, &input); err != nil {
		return "", nil, err
	}
	if input.SessionID == "" {
		return "", nil, fmt.Errorf("sessionId is required")
	}
	if input.Save && t.saver == nil {
		return "", nil, fmt.Errorf("no journey store configured")
	}

	def, err := t.registry.StopRecording(ctx, input.SessionID)
	if err != nil {
		return "", nil, err
	}
	out := StopOutput{
		SessionID: input.SessionID,
		Journey:   def,
		Warnings:  journey.ValidateDefinition(def).Warnings,
	}
	if input.Save {
		path, err := t.saver.Save(def)
		if err != nil {
			return "", nil, fmt.Errorf("recording stopped but not saved: %w", err)
		}
		out.Path = path
	}
	text, _, err := tools.JSONResult(out)
	return text, map[string]interface{}{"steps": len(def.Steps)}, err
}

// PauseTool pauses or resumes a recording.
type PauseTool struct {
	registry *recorder.Registry
	resume   bool
}

// NewPauseTool creates the pause_recording tool.
func NewPauseTool(registry *recorder.Registry) *PauseTool {
	return &PauseTool{registry: registry}
}

// NewResumeTool creates the resume_recording tool.
func NewResumeTool(registry *recorder.Registry) *PauseTool {
	return &PauseTool{registry: registry, resume: true}
}

// Name returns the tool name.
func (t *PauseTool) Name() string {
	if t.resume {
		return "resume_recording"
	}
	return "pause_recording"
}

// Description returns the tool description.
func (t *PauseTool) Description() string {
	if t.resume {
		return "Resume a paused recording."
	}
	return "Pause a recording. Interactions are discarded until it is resumed."
}

// Schema returns the tool's JSON schema.
func (t *PauseTool) Schema() map[string]interface{} {
	return tools.BaseToolSchema(
		map[string]interface{}{"sessionId": tools.StringProp("Recording session id")},
		[]string{"sessionId"},
	)
}

// Execute pauses or resumes.
func (t *PauseTool) Execute(ctx context.Context, args json.RawMessage) (string, map[string]interface{}, error) {
	var input struct {
		SessionID string `json:"sessionId"`
	}
	if err := tools.DecodeArgs(args, &input); err != nil {
		return "", nil, err
	}
	if input.SessionID == "" {
		return "", nil, fmt.Errorf("sessionId is required")
	}

	var err error
	if t.resume {
		err = t.registry.ResumeRecording(input.SessionID)
	} else {
		err = t.registry.PauseRecording(input.SessionID)
	}
	if err != nil {
		return "", nil, err
	}
	r, err := t.registry.Lookup(input.SessionID)
	if err != nil {
		return "", nil, err
	}
	return tools.JSONResult(r.Status())
}

// StatusTool reports recording sessions.
type StatusTool struct {
	registry *recorder.Registry
}

// NewStatusTool creates a status tool.
func NewStatusTool(registry *recorder.Registry) *StatusTool {
	return &StatusTool{registry: registry}
}

// Name returns the tool name.
func (t *StatusTool) Name() string {
	return "recording_status"
}

// Description returns the tool description.
func (t *StatusTool) Description() string {
	return "Show one recording session, or all of them, with paused flag, step count and current URL."
}

// Schema returns the tool's JSON schema.
func (t *StatusTool) Schema() map[string]interface{} {
	return tools.BaseToolSchema(
		map[string]interface{}{"sessionId": tools.StringProp("Recording session id. All sessions when omitted.")},
		nil,
	)
}

// Execute reports status.
func (t *StatusTool) Execute(ctx context.Context, args json.RawMessage) (string, map[string]interface{}, error) {
	var input struct {
		SessionID string `json:"sessionId,omitempty"`
	}
	if err := tools.DecodeArgs(args, &input); err != nil {
		return "", nil, err
	}
	if input.SessionID != "" {
		r, err := t.registry.Lookup(input.SessionID)
		if err != nil {
			return "", nil, err
		}
		return tools.JSONResult(r.Status())
	}
	sessions := t.registry.Sessions()
	return tools.JSONResult(map[string]interface{}{
		"count":    len(sessions),
		"sessions": sessions,
	})
}
