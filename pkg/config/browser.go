package config

import (
	"fmt"
	"sync"
)

const (
	// SectionIDBrowser is the identifier for the browser settings section
	SectionIDBrowser = "browser"

	EnginePlaywright = "playwright"
	EngineRod        = "rod"

	defaultEngine         = EnginePlaywright
	defaultHeadless       = true
	defaultViewportWidth  = 1280
	defaultViewportHeight = 720
	defaultMaxSessions    = 5
)

// BrowserSettings is a snapshot of the browser section.
type BrowserSettings struct {
	Engine         string
	Headless       bool
	ViewportWidth  int
	ViewportHeight int

	// ControlURL attaches the rod engine to an already running Chrome
	// instead of launching one.
	ControlURL string

	// VideoDir enables page video capture for the playwright engine.
	VideoDir string

	MaxSessions int
}

// BrowserSection configures how browser sessions are launched.
type BrowserSection struct {
	mu       sync.RWMutex
	settings BrowserSettings
}

// NewBrowserSection creates a browser section with default settings.
func NewBrowserSection() *BrowserSection {
	return &BrowserSection{settings: defaultBrowserSettings()}
}

func defaultBrowserSettings() BrowserSettings {
	return BrowserSettings{
		Engine:         defaultEngine,
		Headless:       defaultHeadless,
		ViewportWidth:  defaultViewportWidth,
		ViewportHeight: defaultViewportHeight,
		MaxSessions:    defaultMaxSessions,
	}
}

// ID returns the section identifier.
func (s *BrowserSection) ID() string {
	return SectionIDBrowser
}

// Title returns the section title.
func (s *BrowserSection) Title() string {
	return "Browser"
}

// Description returns the section description.
func (s *BrowserSection) Description() string {
	return "Browser engine, viewport and session limits used for journeys and recordings."
}

// Data returns the current configuration data.
func (s *BrowserSection) Data() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return map[string]interface{}{
		"engine":          s.settings.Engine,
		"headless":        s.settings.Headless,
		"viewport_width":  s.settings.ViewportWidth,
		"viewport_height": s.settings.ViewportHeight,
		"control_url":     s.settings.ControlURL,
		"video_dir":       s.settings.VideoDir,
		"max_sessions":    s.settings.MaxSessions,
	}
}

// SetData updates the configuration from the provided data. Nothing is
// applied when any value has the wrong type.
func (s *BrowserSection) SetData(data map[string]interface{}) error {
	if data == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.settings
	for key, value := range data {
		var err error
		switch key {
		case "engine":
			next.Engine, err = toString(key, value)
		case "headless":
			next.Headless, err = toBool(key, value)
		case "viewport_width":
			next.ViewportWidth, err = toInt(key, value)
		case "viewport_height":
			next.ViewportHeight, err = toInt(key, value)
		case "control_url":
			next.ControlURL, err = toString(key, value)
		case "video_dir":
			next.VideoDir, err = toString(key, value)
		case "max_sessions":
			next.MaxSessions, err = toInt(key, value)
		default:
			// Ignore unknown keys for forward compatibility
		}
		if err != nil {
			return err
		}
	}
	s.settings = next
	return nil
}

// Validate validates the current configuration.
func (s *BrowserSection) Validate() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	switch s.settings.Engine {
	case EnginePlaywright, EngineRod:
	default:
		return fmt.Errorf("engine must be %q or %q, got %q", EnginePlaywright, EngineRod, s.settings.Engine)
	}
	if s.settings.ViewportWidth <= 0 || s.settings.ViewportHeight <= 0 {
		return fmt.Errorf("viewport must be positive, got %dx%d", s.settings.ViewportWidth, s.settings.ViewportHeight)
	}
	if s.settings.MaxSessions < 1 {
		return fmt.Errorf("max_sessions must be at least 1, got %d", s.settings.MaxSessions)
	}
	if s.settings.ControlURL != "" && s.settings.Engine != EngineRod {
		return fmt.Errorf("control_url is only supported by the %s engine", EngineRod)
	}
	return nil
}

// Reset resets the section to default configuration.
func (s *BrowserSection) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = defaultBrowserSettings()
}

// Settings returns a copy of the current settings.
func (s *BrowserSection) Settings() BrowserSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

// SetEngine selects the browser engine.
func (s *BrowserSection) SetEngine(engine string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings.Engine = engine
}

// SetHeadless sets whether browsers launch without a window.
func (s *BrowserSection) SetHeadless(headless bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings.Headless = headless
}
