package config

import (
	"fmt"
	"sync"
	"testing"
)

// mockSection is a test implementation of the Section interface
type mockSection struct {
	id          string
	data        map[string]interface{}
	validateErr error
	setErr      error
}

func (m *mockSection) ID() string                   { return m.id }
func (m *mockSection) Title() string                { return m.id }
func (m *mockSection) Description() string          { return "" }
func (m *mockSection) Data() map[string]interface{} { return m.data }
func (m *mockSection) SetData(data map[string]interface{}) error {
	if m.setErr != nil {
		return m.setErr
	}
	m.data = data
	return nil
}
func (m *mockSection) Validate() error { return m.validateErr }
func (m *mockSection) Reset()          { m.data = make(map[string]interface{}) }

// mockStore is a test implementation of the Store interface
type mockStore struct {
	sections map[string]map[string]interface{}
	loadErr  error
	saveErr  error
	saves    int
}

func newMockStore() *mockStore {
	return &mockStore{sections: make(map[string]map[string]interface{})}
}

func (m *mockStore) Load() error { return m.loadErr }
func (m *mockStore) Save() error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saves++
	return nil
}
func (m *mockStore) GetSection(id string) (map[string]interface{}, error) {
	return m.sections[id], nil
}
func (m *mockStore) SetSection(id string, data map[string]interface{}) error {
	m.sections[id] = data
	return nil
}
func (m *mockStore) GetAll() (map[string]map[string]interface{}, error) { return m.sections, nil }
func (m *mockStore) SetAll(data map[string]map[string]interface{}) error {
	m.sections = data
	return nil
}

func TestManager_RegisterSection(t *testing.T) {
	manager := NewManager(newMockStore())
	for _, id := range []string{"first", "second", "third"} {
		if err := manager.RegisterSection(&mockSection{id: id}); err != nil {
			t.Fatalf("RegisterSection(%s) failed: %v", id, err)
		}
	}

	if err := manager.RegisterSection(&mockSection{id: "second"}); err == nil {
		t.Error("Expected error for duplicate registration")
	}

	sections := manager.GetSections()
	if len(sections) != 3 {
		t.Fatalf("Expected 3 sections, got %d", len(sections))
	}
	if sections[0].ID() != "first" || sections[1].ID() != "second" || sections[2].ID() != "third" {
		t.Error("Sections not in registration order")
	}

	if _, ok := manager.GetSection("missing"); ok {
		t.Error("Should return false for non-existent section")
	}
}

func TestManager_LoadAll(t *testing.T) {
	t.Run("applies stored data and skips empty sections", func(t *testing.T) {
		store := newMockStore()
		store.sections["stored"] = map[string]interface{}{"key": "value"}

		manager := NewManager(store)
		stored := &mockSection{id: "stored"}
		untouched := &mockSection{id: "untouched", data: map[string]interface{}{"keep": true}}
		manager.RegisterSection(stored)
		manager.RegisterSection(untouched)

		if err := manager.LoadAll(); err != nil {
			t.Fatalf("LoadAll failed: %v", err)
		}
		if stored.data["key"] != "value" {
			t.Error("Section data not loaded correctly")
		}
		if untouched.data["keep"] != true {
			t.Error("Section without stored data should keep its values")
		}
	})

	t.Run("propagates store and section errors", func(t *testing.T) {
		store := newMockStore()
		store.loadErr = fmt.Errorf("load error")
		if err := NewManager(store).LoadAll(); err == nil {
			t.Error("Expected error from store")
		}

		store = newMockStore()
		store.sections["bad"] = map[string]interface{}{"key": 1}
		manager := NewManager(store)
		manager.RegisterSection(&mockSection{id: "bad", setErr: fmt.Errorf("wrong type")})
		if err := manager.LoadAll(); err == nil {
			t.Error("Expected error from SetData")
		}
	})
}

func TestManager_SaveAll(t *testing.T) {
	t.Run("writes every section then saves once", func(t *testing.T) {
		store := newMockStore()
		manager := NewManager(store)
		manager.RegisterSection(&mockSection{id: "a", data: map[string]interface{}{"k": "a"}})
		manager.RegisterSection(&mockSection{id: "b", data: map[string]interface{}{"k": "b"}})

		if err := manager.SaveAll(); err != nil {
			t.Fatalf("SaveAll failed: %v", err)
		}
		if store.sections["a"]["k"] != "a" || store.sections["b"]["k"] != "b" {
			t.Error("Section data not saved correctly")
		}
		if store.saves != 1 {
			t.Errorf("Expected one save, got %d", store.saves)
		}
	})

	t.Run("nothing is written when a section is invalid", func(t *testing.T) {
		store := newMockStore()
		manager := NewManager(store)
		manager.RegisterSection(&mockSection{id: "good", data: map[string]interface{}{"k": 1}})
		manager.RegisterSection(&mockSection{id: "bad", validateErr: fmt.Errorf("invalid")})

		if err := manager.SaveAll(); err == nil {
			t.Fatal("Expected validation error")
		}
		if len(store.sections) != 0 || store.saves != 0 {
			t.Error("Invalid config should not be written")
		}
	})

	t.Run("handles store save error", func(t *testing.T) {
		store := newMockStore()
		store.saveErr = fmt.Errorf("save error")
		manager := NewManager(store)
		manager.RegisterSection(&mockSection{id: "test"})

		if err := manager.SaveAll(); err == nil {
			t.Error("Expected error from store")
		}
	})
}

func TestManager_ResetAll(t *testing.T) {
	manager := NewManager(newMockStore())
	section := &mockSection{id: "s", data: map[string]interface{}{"k": "v"}}
	manager.RegisterSection(section)

	manager.ResetAll()

	if len(section.data) != 0 {
		t.Error("Section not reset")
	}
}

func TestManager_Concurrency(t *testing.T) {
	manager := NewManager(newMockStore())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			manager.RegisterSection(&mockSection{id: fmt.Sprintf("section-%d", i)})
			manager.GetSection("section-0")
			manager.GetSections()
		}(i)
	}
	wg.Wait()

	if got := len(manager.GetSections()); got != 10 {
		t.Errorf("Expected 10 sections, got %d", got)
	}
}
