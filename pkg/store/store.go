// Package store persists journey definitions as YAML or JSON files in one
// directory.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/entrhq/journeyforge/pkg/fsutil"
	"github.com/entrhq/journeyforge/pkg/journey"
	"github.com/entrhq/journeyforge/pkg/logging"
)

// ErrNotFound is returned for an unknown journey name.
var ErrNotFound = errors.New("journey not found")

// Summary describes a stored journey without its steps.
type Summary struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Steps       int            `json:"steps"`
	Source      journey.Source `json:"source,omitempty"`
	Modified    time.Time      `json:"modified"`
	Path        string         `json:"path"`
}

type entry struct {
	def  *journey.Definition
	path string
}

// FileStore keeps definitions in memory, keyed by name, backed by the files
// in its directory.
type FileStore struct {
	dir    string
	logger *logging.Logger
	now    func() time.Time

	mu      sync.RWMutex
	entries map[string]entry
}

// NewFileStore opens dir, creating it when needed, and loads every
// definition file in it.
func NewFileStore(dir string, logger *logging.Logger) (*FileStore, error) {
	if logger == nil {
		logger = logging.Discard()
	}
	if err := fsutil.EnsureDir(dir); err != nil {
		return nil, err
	}
	s := &FileStore{
		dir:     dir,
		logger:  logger,
		now:     time.Now,
		entries: make(map[string]entry),
	}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Dir returns the backing directory.
func (s *FileStore) Dir() string {
	return s.dir
}

// Reload rereads the directory. Files that fail to parse are logged and
// skipped.
func (s *FileStore) Reload() error {
	files, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("failed to read journey directory: %w", err)
	}
	entries := make(map[string]entry, len(files))
	for _, f := range files {
		if f.IsDir() || !IsDefinitionFile(f.Name()) {
			continue
		}
		path := filepath.Join(s.dir, f.Name())
		def, err := LoadFile(path)
		if err != nil {
			s.logger.Warnf("skipping journey file %s: %v", path, err)
			continue
		}
		if def.Name == "" {
			def.Name = strings.TrimSuffix(f.Name(), filepath.Ext(f.Name()))
		}
		if prev, dup := entries[def.Name]; dup {
			s.logger.Warnf("journey %q defined in both %s and %s; using %s", def.Name, prev.path, path, path)
		}
		entries[def.Name] = entry{def: def, path: path}
	}

	s.mu.Lock()
	s.entries = entries
	s.mu.Unlock()
	s.logger.Debugf("loaded %d journeys from %s", len(entries), s.dir)
	return nil
}

// Save writes def as YAML and returns the file path. Created is set on
// first save and Modified on every save.
func (s *FileStore) Save(def *journey.Definition) (string, error) {
	if def == nil || def.Name == "" {
		return "", fmt.Errorf("journey name is required")
	}
	def = def.Clone()
	now := s.now()
	if def.Created.IsZero() {
		def.Created = now
	}
	def.Modified = now
	if def.Source == "" {
		def.Source = journey.SourceManual
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.dir, fsutil.SanitizeName(def.Name, "journey")+".yaml")
	if prev, ok := s.entries[def.Name]; ok {
		path = prev.path
	}
	if err := WriteFile(path, def); err != nil {
		return "", err
	}
	s.entries[def.Name] = entry{def: def, path: path}
	return path, nil
}

// Get returns a copy of the named definition.
func (s *FileStore) Get(name string) (*journey.Definition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return e.def.Clone(), nil
}

// List returns summaries sorted by name.
func (s *FileStore) List() []Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Summary, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, Summary{
			Name:        e.def.Name,
			Description: e.def.Description,
			Steps:       len(e.def.Steps),
			Source:      e.def.Source,
			Modified:    e.def.Modified,
			Path:        e.path,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Delete removes the named definition and its file.
func (s *FileStore) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err := os.Remove(e.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete journey file: %w", err)
	}
	delete(s.entries, name)
	return nil
}

// IsDefinitionFile reports whether name has a definition file extension.
func IsDefinitionFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml", ".json":
		return true
	}
	return false
}

// LoadFile reads a definition from a YAML or JSON file, chosen by extension.
func LoadFile(path string) (*journey.Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read journey file: %w", err)
	}
	return Decode(data, filepath.Ext(path))
}

// Decode parses data as JSON when ext is ".json" and as YAML otherwise.
func Decode(data []byte, ext string) (*journey.Definition, error) {
	var def journey.Definition
	if strings.EqualFold(ext, ".json") {
		if err := json.Unmarshal(data, &def); err != nil {
			return nil, fmt.Errorf("failed to parse journey JSON: %w", err)
		}
		return &def, nil
	}
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("failed to parse journey YAML: %w", err)
	}
	return &def, nil
}

// Encode renders def as indented JSON when ext is ".json" and as YAML
// otherwise.
func Encode(def *journey.Definition, ext string) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	if strings.EqualFold(ext, ".json") {
		data, err = json.MarshalIndent(def, "", "  ")
		if err == nil {
			data = append(data, '\n')
		}
	} else {
		data, err = yaml.Marshal(def)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to encode journey: %w", err)
	}
	return data, nil
}

// WriteFile atomically writes def to path, encoded by its extension.
func WriteFile(path string, def *journey.Definition) error {
	data, err := Encode(def, filepath.Ext(path))
	if err != nil {
		return err
	}
	return fsutil.WriteFileAtomic(path, data, 0600)
}
