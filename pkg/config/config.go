package config

import (
	"sync"
)

var (
	// globalManager is the singleton configuration manager instance
	globalManager *Manager
	globalMu      sync.Mutex
)

// NewDefaultManager creates a manager over the file at configPath with the
// browser, journey and recorder sections registered and loaded.
func NewDefaultManager(configPath string) (*Manager, error) {
	store, err := NewFileStore(configPath)
	if err != nil {
		return nil, err
	}

	manager := NewManager(store)
	for _, section := range []Section{
		NewBrowserSection(),
		NewJourneySection(),
		NewRecorderSection(),
	} {
		if err := manager.RegisterSection(section); err != nil {
			return nil, err
		}
	}

	if err := manager.LoadAll(); err != nil {
		return nil, err
	}
	return manager, nil
}

// Initialize creates and initializes the global configuration manager.
// This should be called once at application startup.
func Initialize(configPath string) error {
	globalMu.Lock()
	defer globalMu.Unlock()

	manager, err := NewDefaultManager(configPath)
	if err != nil {
		return err
	}
	globalManager = manager
	return nil
}

// Global returns the global configuration manager.
// Panics if Initialize has not been called.
func Global() *Manager {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalManager == nil {
		panic("config not initialized: call config.Initialize first")
	}

	return globalManager
}

// IsInitialized returns true if the global configuration has been initialized.
func IsInitialized() bool {
	globalMu.Lock()
	defer globalMu.Unlock()
	return globalManager != nil
}

func globalSection[T Section](id string) T {
	var zero T
	if !IsInitialized() {
		return zero
	}
	section, ok := Global().GetSection(id)
	if !ok {
		return zero
	}
	typed, ok := section.(T)
	if !ok {
		return zero
	}
	return typed
}

// GetBrowser returns the browser section from global config.
// Returns nil if config is not initialized.
func GetBrowser() *BrowserSection {
	return globalSection[*BrowserSection](SectionIDBrowser)
}

// GetJourney returns the journey section from global config.
// Returns nil if config is not initialized.
func GetJourney() *JourneySection {
	return globalSection[*JourneySection](SectionIDJourney)
}

// GetRecorder returns the recorder section from global config.
// Returns nil if config is not initialized.
func GetRecorder() *RecorderSection {
	return globalSection[*RecorderSection](SectionIDRecorder)
}

// BrowserSettingsOrDefault returns the global browser settings, or the
// defaults when config is not initialized.
func BrowserSettingsOrDefault() BrowserSettings {
	if s := GetBrowser(); s != nil {
		return s.Settings()
	}
	return defaultBrowserSettings()
}

// JourneySettingsOrDefault returns the global journey settings, or the
// defaults when config is not initialized.
func JourneySettingsOrDefault() JourneySettings {
	if s := GetJourney(); s != nil {
		return s.Settings()
	}
	return NewJourneySection().Settings()
}

// RecorderSettingsOrDefault returns the global recorder settings, or the
// defaults when config is not initialized.
func RecorderSettingsOrDefault() RecorderSettings {
	if s := GetRecorder(); s != nil {
		return s.Settings()
	}
	return defaultRecorderSettings()
}
