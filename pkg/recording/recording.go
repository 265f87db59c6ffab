// Package recording captures artifacts of a journey run: the actions taken,
// the errors hit, and optionally the browser video, persisted as a
// metadata.json document per session.
package recording

import (
	"context"
	"time"

	"github.com/entrhq/journeyforge/pkg/page"
)

// StartOptions configures one recording session.
type StartOptions struct {
	JourneyName  string
	CaptureVideo bool

	// CaptureAll records every action. Otherwise only navigate, click, type
	// and screenshot actions are kept.
	CaptureAll bool

	// OutputDir overrides the sink's default directory.
	OutputDir string
}

// Sink starts recording sessions.
type Sink interface {
	Start(ctx context.Context, p page.Controller, opts StartOptions) (Handle, error)
}

// Handle is one live recording session. Stop finalizes the artifacts and
// Cleanup releases whatever the session still holds; Cleanup is safe to
// call after Stop and more than once.
type Handle interface {
	SessionID() string
	CaptureAction(action Action) error
	CaptureError(rec Error) error
	Stop(ctx context.Context) (*Metadata, error)
	Cleanup() error
}

// Action is one executed step as seen by the recording.
type Action struct {
	StepID      string `json:"step_id"`
	Type        string `json:"type"`
	Selector    string `json:"selector,omitempty"`
	Value       string `json:"value,omitempty"`
	URL         string `json:"url,omitempty"`
	Output      string `json:"output,omitempty"`
	TimestampMs int64  `json:"timestamp_ms"`
	DurationMs  int64  `json:"duration_ms"`
}

// Error is one step failure as seen by the recording.
type Error struct {
	StepID      string `json:"step_id"`
	StepIndex   int    `json:"step_index"`
	Message     string `json:"message"`
	Screenshot  string `json:"screenshot,omitempty"`
	TimestampMs int64  `json:"timestamp_ms"`
}

// Metadata summarizes a stopped session.
type Metadata struct {
	SessionID    string    `json:"session_id"`
	JourneyName  string    `json:"journey_name"`
	StartTime    time.Time `json:"start_time"`
	EndTime      time.Time `json:"end_time"`
	Actions      int       `json:"actions"`
	Errors       int       `json:"errors"`
	VideoPath    string    `json:"video_path,omitempty"`
	MetadataPath string    `json:"metadata_path,omitempty"`
}

// document is the persisted metadata.json layout.
type document struct {
	Metadata
	StartURL    string   `json:"start_url,omitempty"`
	DurationMs  int64    `json:"duration_ms"`
	ActionList  []Action `json:"action_list"`
	ErrorList   []Error  `json:"error_list"`
	VideoStatus string   `json:"video_status,omitempty"`
}

var interactionTypes = map[string]bool{
	"navigate": true, "click": true, "type": true, "screenshot": true,
}
