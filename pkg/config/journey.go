package config

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"
)

const (
	// SectionIDJourney is the identifier for the journey settings section
	SectionIDJourney = "journey"

	defaultNavigateTimeout    = 30 * time.Second
	defaultActionTimeout      = 10 * time.Second
	defaultWaitTimeout        = time.Second
	defaultStepTimeout        = 0
	defaultRetryDelay         = time.Second
	defaultMaxDuration        = 0
	defaultScreenshotDir      = "screenshots"
	maxReasonableStepDuration = 10 * time.Minute
)

// JourneySettings is a snapshot of the journey section.
type JourneySettings struct {
	NavigateTimeout time.Duration
	ActionTimeout   time.Duration
	WaitTimeout     time.Duration

	// DefaultStepTimeout is what optimization applies to steps without a
	// timeout. Zero means the per-action default.
	DefaultStepTimeout time.Duration

	RetryDelay time.Duration

	// MaxDuration bounds runs that set no budget of their own. Zero means
	// unbounded.
	MaxDuration time.Duration

	ScreenshotDir string
	RecordingsDir string
	HistoryDB     string
	JourneysDir   string
}

// JourneySection configures journey execution and where artifacts go.
type JourneySection struct {
	mu       sync.RWMutex
	dataDir  string
	settings JourneySettings
}

// NewJourneySection creates a journey section whose data paths default to
// locations under DefaultDataDir.
func NewJourneySection() *JourneySection {
	return NewJourneySectionIn(DefaultDataDir())
}

// NewJourneySectionIn creates a journey section whose data paths default to
// locations under dataDir.
func NewJourneySectionIn(dataDir string) *JourneySection {
	s := &JourneySection{dataDir: dataDir}
	s.settings = s.defaults()
	return s
}

func (s *JourneySection) defaults() JourneySettings {
	return JourneySettings{
		NavigateTimeout:    defaultNavigateTimeout,
		ActionTimeout:      defaultActionTimeout,
		WaitTimeout:        defaultWaitTimeout,
		DefaultStepTimeout: defaultStepTimeout,
		RetryDelay:         defaultRetryDelay,
		MaxDuration:        defaultMaxDuration,
		ScreenshotDir:      defaultScreenshotDir,
		RecordingsDir:      filepath.Join(s.dataDir, "recordings"),
		HistoryDB:          filepath.Join(s.dataDir, "history.db"),
		JourneysDir:        filepath.Join(s.dataDir, "journeys"),
	}
}

// ID returns the section identifier.
func (s *JourneySection) ID() string {
	return SectionIDJourney
}

// Title returns the section title.
func (s *JourneySection) Title() string {
	return "Journeys"
}

// Description returns the section description.
func (s *JourneySection) Description() string {
	return "Default step timeouts, retry pacing, run budget and artifact locations."
}

// Data returns the current configuration data.
func (s *JourneySection) Data() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return map[string]interface{}{
		"navigate_timeout":     s.settings.NavigateTimeout.String(),
		"action_timeout":       s.settings.ActionTimeout.String(),
		"wait_timeout":         s.settings.WaitTimeout.String(),
		"default_step_timeout": s.settings.DefaultStepTimeout.String(),
		"retry_delay":          s.settings.RetryDelay.String(),
		"max_duration":         s.settings.MaxDuration.String(),
		"screenshot_dir":       s.settings.ScreenshotDir,
		"recordings_dir":       s.settings.RecordingsDir,
		"history_db":           s.settings.HistoryDB,
		"journeys_dir":         s.settings.JourneysDir,
	}
}

// SetData updates the configuration from the provided data. Nothing is
// applied when any value has the wrong type.
func (s *JourneySection) SetData(data map[string]interface{}) error {
	if data == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.settings
	for key, value := range data {
		var err error
		switch key {
		case "navigate_timeout":
			next.NavigateTimeout, err = toDuration(key, value)
		case "action_timeout":
			next.ActionTimeout, err = toDuration(key, value)
		case "wait_timeout":
			next.WaitTimeout, err = toDuration(key, value)
		case "default_step_timeout":
			next.DefaultStepTimeout, err = toDuration(key, value)
		case "retry_delay":
			next.RetryDelay, err = toDuration(key, value)
		case "max_duration":
			next.MaxDuration, err = toDuration(key, value)
		case "screenshot_dir":
			next.ScreenshotDir, err = toString(key, value)
		case "recordings_dir":
			next.RecordingsDir, err = toString(key, value)
		case "history_db":
			next.HistoryDB, err = toString(key, value)
		case "journeys_dir":
			next.JourneysDir, err = toString(key, value)
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
func (s *JourneySection) Validate() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for name, d := range map[string]time.Duration{
		"navigate_timeout": s.settings.NavigateTimeout,
		"action_timeout":   s.settings.ActionTimeout,
		"wait_timeout":     s.settings.WaitTimeout,
	} {
		if d <= 0 || d > maxReasonableStepDuration {
			return fmt.Errorf("%s must be between 0 and %s, got %v", name, maxReasonableStepDuration, d)
		}
	}
	if s.settings.DefaultStepTimeout < 0 || s.settings.RetryDelay < 0 || s.settings.MaxDuration < 0 {
		return fmt.Errorf("default_step_timeout, retry_delay and max_duration must not be negative")
	}
	if s.settings.ScreenshotDir == "" || s.settings.JourneysDir == "" || s.settings.HistoryDB == "" {
		return fmt.Errorf("screenshot_dir, journeys_dir and history_db are required")
	}
	return nil
}

// Reset resets the section to default configuration.
func (s *JourneySection) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = s.defaults()
}

// Settings returns a copy of the current settings.
func (s *JourneySection) Settings() JourneySettings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}
