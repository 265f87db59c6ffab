package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/entrhq/journeyforge/pkg/tools"
)

const openTimeout = 30 * time.Second

// StartSessionTool opens a named session. Unset viewport and headless
// fields fall back to the configured defaults.
type StartSessionTool struct {
	manager  *SessionManager
	defaults SessionOptions
}

// NewStartSessionTool creates the start_browser_session tool.
func NewStartSessionTool(manager *SessionManager, defaults SessionOptions) *StartSessionTool {
	return &StartSessionTool{manager: manager, defaults: defaults.withDefaults()}
}

func (t *StartSessionTool) Name() string { return "start_browser_session" }

func (t *StartSessionTool) Description() string {
	return "Open a named browser session, optionally loading a URL. Journeys run and recordings capture against a session's page."
}

func (t *StartSessionTool) Schema() map[string]interface{} {
	vp := t.defaults.Viewport
	return tools.BaseToolSchema(map[string]interface{}{
		"name":     tools.StringProp("Unique session name, e.g. 'checkout' or 'recording'"),
		"url":      tools.StringProp("Page to load once the session is open"),
		"headless": tools.BoolProp(fmt.Sprintf("Run without a visible window. Recording usually needs a visible window. Default: %v", t.defaults.Headless)),
		"width":    tools.IntProp(fmt.Sprintf("Viewport width in pixels. Default: %d", vp.Width)),
		"height":   tools.IntProp(fmt.Sprintf("Viewport height in pixels. Default: %d", vp.Height)),
	}, []string{"name"})
}

// StartSessionInput holds start_browser_session arguments. Nil fields keep
// the defaults.
type StartSessionInput struct {
	Name     string `json:"name"`
	URL      string `json:"url,omitempty"`
	Headless *bool  `json:"headless,omitempty"`
	Width    *int   `json:"width,omitempty"`
	Height   *int   `json:"height,omitempty"`
}

func (in StartSessionInput) options(defaults SessionOptions) SessionOptions {
	opts := defaults
	if in.Headless != nil {
		opts.Headless = *in.Headless
	}
	if in.Width != nil {
		opts.Viewport.Width = *in.Width
	}
	if in.Height != nil {
		opts.Viewport.Height = *in.Height
	}
	return opts
}

func (t *StartSessionTool) Execute(ctx context.Context, args json.RawMessage) (string, map[string]interface{}, error) {
	var in StartSessionInput
	if err := tools.DecodeArgs(args, &in); err != nil {
		return "", nil, err
	}
	if in.Name == "" {
		return "", nil, errors.New("session name is required")
	}

	session, err := t.manager.StartSession(ctx, in.Name, in.options(t.defaults))
	if err != nil {
		return "", nil, err
	}
	if in.URL != "" {
		if err := session.Page.Navigate(ctx, in.URL, openTimeout); err != nil {
			if closeErr := t.manager.CloseSession(in.Name); closeErr != nil {
				t.manager.logger.Warnf("failed to close session %q: %v", in.Name, closeErr)
			}
			return "", nil, fmt.Errorf("failed to open %s: %w", in.URL, err)
		}
	}
	return tools.JSONResult(session.Info())
}
