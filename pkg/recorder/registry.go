package recorder

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/entrhq/journeyforge/pkg/journey"
	"github.com/entrhq/journeyforge/pkg/page"
)

// Registry owns the recorder sessions of one process, keyed by session id.
// It is the only path to a session for pause, resume and stop.
type Registry struct {
	mu        sync.Mutex
	recorders map[string]*Recorder
	opts      []Option
}

// NewRegistry creates an empty registry. opts apply to every recorder it
// creates.
func NewRegistry(opts ...Option) *Registry {
	return &Registry{
		recorders: make(map[string]*Recorder),
		opts:      opts,
	}
}

// GetInstance returns the recorder for id, creating it when absent. An
// empty id always creates a recorder with a generated id.
func (g *Registry) GetInstance(id string) *Recorder {
	r, _ := g.getOrCreate(id)
	return r
}

func (g *Registry) getOrCreate(id string) (*Recorder, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if id == "" {
		id = uuid.NewString()
	}
	if r, ok := g.recorders[id]; ok {
		return r, false
	}
	r := New(id, g.opts...)
	g.recorders[id] = r
	return r, true
}

// Lookup returns an existing recorder.
func (g *Registry) Lookup(id string) (*Recorder, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	r, ok := g.recorders[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return r, nil
}

// RemoveInstance evicts id, abandoning any recording in progress. It
// reports whether the session existed.
func (g *Registry) RemoveInstance(id string) bool {
	g.mu.Lock()
	r, ok := g.recorders[id]
	delete(g.recorders, id)
	g.mu.Unlock()
	if ok {
		r.Close()
	}
	return ok
}

// ActiveInstances returns the registered session ids in sorted order.
func (g *Registry) ActiveInstances() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	ids := make([]string, 0, len(g.recorders))
	for id := range g.recorders {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Sessions returns the status of every registered session, sorted by id.
func (g *Registry) Sessions() []Session {
	ids := g.ActiveInstances()
	out := make([]Session, 0, len(ids))
	for _, id := range ids {
		if r, err := g.Lookup(id); err == nil {
			out = append(out, r.Status())
		}
	}
	return out
}

// StartRecording starts a recording on p under id, creating the session
// when needed. A page may be recorded by at most one session at a time.
func (g *Registry) StartRecording(ctx context.Context, id string, p page.Controller, opts Options) (Session, error) {
	g.mu.Lock()
	for otherID, other := range g.recorders {
		if otherID != id && other.recordingPage(p) {
			g.mu.Unlock()
			return Session{}, fmt.Errorf("%w: %s", ErrPageInUse, otherID)
		}
	}
	g.mu.Unlock()

	r, created := g.getOrCreate(id)
	s, err := r.Start(ctx, p, opts)
	if err != nil {
		if created && !r.IsRecording() {
			g.RemoveInstance(r.ID())
		}
		return Session{}, err
	}
	return s, nil
}

// StopRecording stops id, removes it from the registry and returns the
// recorded definition.
func (g *Registry) StopRecording(ctx context.Context, id string) (*journey.Definition, error) {
	r, err := g.Lookup(id)
	if err != nil {
		return nil, err
	}
	def, err := r.Stop(ctx)
	if err != nil {
		return nil, err
	}
	g.RemoveInstance(id)
	return def, nil
}

// PauseRecording pauses id.
func (g *Registry) PauseRecording(id string) error {
	r, err := g.Lookup(id)
	if err != nil {
		return err
	}
	return r.Pause()
}

// ResumeRecording resumes id.
func (g *Registry) ResumeRecording(id string) error {
	r, err := g.Lookup(id)
	if err != nil {
		return err
	}
	return r.Resume()
}

// RemovePage abandons and removes every session recording p. It returns
// the removed session ids.
func (g *Registry) RemovePage(p page.Controller) []string {
	var removed []string
	for _, id := range g.ActiveInstances() {
		r, err := g.Lookup(id)
		if err != nil || !r.recordingPage(p) {
			continue
		}
		if g.RemoveInstance(id) {
			removed = append(removed, id)
		}
	}
	return removed
}

// CloseAll abandons and removes every session.
func (g *Registry) CloseAll() {
	for _, id := range g.ActiveInstances() {
		g.RemoveInstance(id)
	}
}

func (r *Recorder) recordingPage(p page.Controller) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recording && r.page == p
}
