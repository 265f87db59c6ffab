package config

import (
	"fmt"
	"sync"
	"time"

	"github.com/gobwas/glob"
)

const (
	// SectionIDRecorder is the identifier for the recorder settings section
	SectionIDRecorder = "recorder"

	defaultMinInteractionDelay      = 100 * time.Millisecond
	defaultCaptureInitialNavigation = true
)

// RecorderSettings is a snapshot of the recorder section.
type RecorderSettings struct {
	MinInteractionDelay      time.Duration
	ExcludeActions           []string
	IgnoreURLs               []string
	CaptureInitialNavigation bool
}

// RecorderSection configures interaction recording.
type RecorderSection struct {
	mu       sync.RWMutex
	settings RecorderSettings
}

// NewRecorderSection creates a recorder section with default settings.
func NewRecorderSection() *RecorderSection {
	return &RecorderSection{settings: defaultRecorderSettings()}
}

func defaultRecorderSettings() RecorderSettings {
	return RecorderSettings{
		MinInteractionDelay:      defaultMinInteractionDelay,
		ExcludeActions:           []string{},
		IgnoreURLs:               []string{},
		CaptureInitialNavigation: defaultCaptureInitialNavigation,
	}
}

// ID returns the section identifier.
func (s *RecorderSection) ID() string {
	return SectionIDRecorder
}

// Title returns the section title.
func (s *RecorderSection) Title() string {
	return "Recorder"
}

// Description returns the section description.
func (s *RecorderSection) Description() string {
	return "Debounce window and noise filters applied while recording interactions."
}

// Data returns the current configuration data.
func (s *RecorderSection) Data() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return map[string]interface{}{
		"min_interaction_delay":      s.settings.MinInteractionDelay.String(),
		"exclude_actions":            stringsToInterfaces(s.settings.ExcludeActions),
		"ignore_urls":                stringsToInterfaces(s.settings.IgnoreURLs),
		"capture_initial_navigation": s.settings.CaptureInitialNavigation,
	}
}

// SetData updates the configuration from the provided data. Nothing is
// applied when any value has the wrong type.
func (s *RecorderSection) SetData(data map[string]interface{}) error {
	if data == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.settings
	for key, value := range data {
		var err error
		switch key {
		case "min_interaction_delay":
			next.MinInteractionDelay, err = toDuration(key, value)
		case "exclude_actions":
			next.ExcludeActions, err = toStringList(key, value)
		case "ignore_urls":
			next.IgnoreURLs, err = toStringList(key, value)
		case "capture_initial_navigation":
			next.CaptureInitialNavigation, err = toBool(key, value)
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
func (s *RecorderSection) Validate() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.settings.MinInteractionDelay < 0 || s.settings.MinInteractionDelay > 5*time.Second {
		return fmt.Errorf("min_interaction_delay must be between 0 and 5s, got %v", s.settings.MinInteractionDelay)
	}
	for _, p := range s.settings.ExcludeActions {
		if _, err := glob.Compile(p); err != nil {
			return fmt.Errorf("invalid exclude_actions pattern %q: %w", p, err)
		}
	}
	for _, p := range s.settings.IgnoreURLs {
		if _, err := glob.Compile(p); err != nil {
			return fmt.Errorf("invalid ignore_urls pattern %q: %w", p, err)
		}
	}
	return nil
}

// Reset resets the section to default configuration.
func (s *RecorderSection) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = defaultRecorderSettings()
}

// Settings returns a copy of the current settings.
func (s *RecorderSection) Settings() RecorderSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := s.settings
	out.ExcludeActions = append([]string(nil), s.settings.ExcludeActions...)
	out.IgnoreURLs = append([]string(nil), s.settings.IgnoreURLs...)
	return out
}
