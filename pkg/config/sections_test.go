package config

import (
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestBrowserSection(t *testing.T) {
	s := NewBrowserSection()
	if err := s.Validate(); err != nil {
		t.Fatalf("Defaults should validate: %v", err)
	}

	err := s.SetData(map[string]interface{}{
		"engine":         "rod",
		"viewport_width": float64(1920),
		"control_url":    "ws://127.0.0.1:9222/devtools/browser/abc",
		"unknown_key":    "ignored",
	})
	if err != nil {
		t.Fatalf("SetData failed: %v", err)
	}
	got := s.Settings()
	if got.Engine != EngineRod || got.ViewportWidth != 1920 || got.ViewportHeight != 720 {
		t.Errorf("Unexpected settings: %+v", got)
	}
	if err := s.Validate(); err != nil {
		t.Errorf("rod with control_url should validate: %v", err)
	}

	t.Run("rejected updates are not applied", func(t *testing.T) {
		err := s.SetData(map[string]interface{}{
			"engine":       "playwright",
			"max_sessions": 2.5,
		})
		if err == nil {
			t.Fatal("Expected error for fractional max_sessions")
		}
		if s.Settings().Engine != EngineRod {
			t.Error("Partial update should not be applied")
		}
	})

	tests := []struct {
		name string
		data map[string]interface{}
		want string
	}{
		{"engine", map[string]interface{}{"engine": "webkit"}, "engine must be"},
		{"viewport", map[string]interface{}{"viewport_height": 0.0}, "viewport must be positive"},
		{"sessions", map[string]interface{}{"max_sessions": 0.0}, "max_sessions"},
		{"control url", map[string]interface{}{"engine": "playwright", "control_url": "ws://x"}, "control_url"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewBrowserSection()
			if err := s.SetData(tt.data); err != nil {
				t.Fatalf("SetData failed: %v", err)
			}
			err := s.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() = %v, want error containing %q", err, tt.want)
			}
		})
	}

	s.Reset()
	if s.Settings() != defaultBrowserSettings() {
		t.Error("Reset should restore defaults")
	}
}

func TestJourneySection(t *testing.T) {
	dataDir := t.TempDir()
	s := NewJourneySectionIn(dataDir)
	if err := s.Validate(); err != nil {
		t.Fatalf("Defaults should validate: %v", err)
	}

	got := s.Settings()
	if got.HistoryDB != filepath.Join(dataDir, "history.db") || got.JourneysDir != filepath.Join(dataDir, "journeys") {
		t.Errorf("Unexpected default paths: %+v", got)
	}
	if got.ScreenshotDir != "screenshots" || got.MaxDuration != 0 {
		t.Errorf("Unexpected defaults: %+v", got)
	}

	err := s.SetData(map[string]interface{}{
		"action_timeout": "5s",
		"retry_delay":    float64(250 * time.Millisecond),
		"max_duration":   "2m",
		"history_db":     ":memory:",
	})
	if err != nil {
		t.Fatalf("SetData failed: %v", err)
	}
	got = s.Settings()
	if got.ActionTimeout != 5*time.Second || got.RetryDelay != 250*time.Millisecond || got.MaxDuration != 2*time.Minute {
		t.Errorf("Unexpected durations: %+v", got)
	}

	data := s.Data()
	if data["action_timeout"] != "5s" || data["max_duration"] != "2m0s" {
		t.Errorf("Durations should serialize as strings: %v", data)
	}

	if err := s.SetData(map[string]interface{}{"wait_timeout": "soon"}); err == nil {
		t.Error("Expected error for invalid duration string")
	}
	if err := s.SetData(map[string]interface{}{"wait_timeout": "0s"}); err != nil {
		t.Fatal(err)
	}
	if err := s.Validate(); err == nil {
		t.Error("Zero wait_timeout should not validate")
	}

	s.Reset()
	if s.Settings().ActionTimeout != 10*time.Second {
		t.Error("Reset should restore defaults")
	}
}

func TestRecorderSection(t *testing.T) {
	s := NewRecorderSection()
	if err := s.Validate(); err != nil {
		t.Fatalf("Defaults should validate: %v", err)
	}
	if !s.Settings().CaptureInitialNavigation {
		t.Error("Initial navigation should be captured by default")
	}

	err := s.SetData(map[string]interface{}{
		"exclude_actions":            []interface{}{"click:#cookie*"},
		"capture_initial_navigation": false,
	})
	if err != nil {
		t.Fatalf("SetData failed: %v", err)
	}

	got := s.Settings()
	got.ExcludeActions[0] = "mutated"
	if s.Settings().ExcludeActions[0] != "click:#cookie*" {
		t.Error("Settings should return a copy of the lists")
	}

	if err := s.SetData(map[string]interface{}{"ignore_urls": []interface{}{"ok", 3.0}}); err == nil {
		t.Error("Expected error for non-string list item")
	}
	if err := s.SetData(map[string]interface{}{"ignore_urls": []string{"[unclosed"}}); err != nil {
		t.Fatal(err)
	}
	if err := s.Validate(); err == nil {
		t.Error("Invalid glob should not validate")
	}
	if err := s.SetData(map[string]interface{}{"min_interaction_delay": "-1s", "ignore_urls": []string{}}); err != nil {
		t.Fatal(err)
	}
	if err := s.Validate(); err == nil {
		t.Error("Negative delay should not validate")
	}
}
