package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNewFileStore(t *testing.T) {
	t.Run("missing file yields an empty store", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "nested", "config.json")

		store, err := NewFileStore(configPath)
		if err != nil {
			t.Fatalf("NewFileStore failed: %v", err)
		}
		if store.Path() != configPath {
			t.Errorf("Expected path %s, got %s", configPath, store.Path())
		}
		if store.IsModified() {
			t.Error("New store should not be modified")
		}
		all, _ := store.GetAll()
		if len(all) != 0 {
			t.Errorf("Expected no sections, got %d", len(all))
		}
	})

	t.Run("empty path uses the default location", func(t *testing.T) {
		home := t.TempDir()
		t.Setenv("HOME", home)

		store, err := NewFileStore("")
		if err != nil {
			t.Fatalf("NewFileStore with empty path failed: %v", err)
		}
		expected := filepath.Join(home, ".journeyforge", "config.json")
		if store.Path() != expected {
			t.Errorf("Expected default path %s, got %s", expected, store.Path())
		}
	})

	t.Run("corrupt file is an error", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "config.json")
		if err := os.WriteFile(configPath, []byte("{not json"), 0600); err != nil {
			t.Fatal(err)
		}
		if _, err := NewFileStore(configPath); err == nil {
			t.Error("Expected decode error")
		}
	})
}

func TestFileStore_SaveAndLoad(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.json")
	store, err := NewFileStore(configPath)
	if err != nil {
		t.Fatal(err)
	}

	store.SetSection("browser", map[string]interface{}{"engine": "rod", "headless": false})
	if !store.IsModified() {
		t.Error("SetSection should mark the store modified")
	}
	if err := store.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if store.IsModified() {
		t.Error("Save should clear the modified flag")
	}
	if _, err := os.Stat(configPath + ".tmp"); !os.IsNotExist(err) {
		t.Error("Temp file should not remain after save")
	}

	reloaded, err := NewFileStore(configPath)
	if err != nil {
		t.Fatal(err)
	}
	browser, _ := reloaded.GetSection("browser")
	if browser["engine"] != "rod" || browser["headless"] != false {
		t.Errorf("Unexpected reloaded section: %v", browser)
	}
}

func TestFileStore_ReturnsCopies(t *testing.T) {
	store, err := NewFileStore(filepath.Join(t.TempDir(), "config.json"))
	if err != nil {
		t.Fatal(err)
	}

	data := map[string]interface{}{"key": "value"}
	store.SetSection("s", data)
	data["key"] = "mutated"

	got, _ := store.GetSection("s")
	if got["key"] != "value" {
		t.Error("SetSection should store a copy")
	}
	got["key"] = "mutated"

	all, _ := store.GetAll()
	if all["s"]["key"] != "value" {
		t.Error("GetSection should return a copy")
	}

	store.SetAll(map[string]map[string]interface{}{"other": {"x": 1.0}})
	if s, _ := store.GetSection("s"); len(s) != 0 {
		t.Error("SetAll should replace every section")
	}
}
