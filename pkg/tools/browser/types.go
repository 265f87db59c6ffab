package browser

import (
	"errors"
	"sync"
	"time"

	"github.com/entrhq/journeyforge/pkg/page"
)

// Default values for sessions
const (
	DefaultMaxSessions    = 5
	DefaultIdleTimeout    = 5 * time.Minute
	DefaultViewportWidth  = 1280
	DefaultViewportHeight = 720

	minViewport = 100
	maxViewport = 5000
)

var (
	// ErrSessionNotFound is returned for unknown session names.
	ErrSessionNotFound = errors.New("browser session not found")

	// ErrSessionExists is returned when a session name is already taken.
	ErrSessionExists = errors.New("browser session already exists")

	// ErrSessionLimit is returned when the session limit is reached.
	ErrSessionLimit = errors.New("maximum number of browser sessions reached")
)

// Viewport represents the browser viewport dimensions.
type Viewport struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// SessionOptions configures a new browser session.
type SessionOptions struct {
	// Headless controls whether the browser runs without a visible window
	Headless bool

	// Viewport sets the initial viewport size. Zero fields use defaults.
	Viewport Viewport

	// VideoDir records page video into this directory when the engine
	// supports it.
	VideoDir string
}

func (o SessionOptions) withDefaults() SessionOptions {
	if o.Viewport.Width == 0 {
		o.Viewport.Width = DefaultViewportWidth
	}
	if o.Viewport.Height == 0 {
		o.Viewport.Height = DefaultViewportHeight
	}
	return o
}

// Session is an open browser page.
type Session struct {
	Name      string
	Engine    string
	Page      page.Controller
	Headless  bool
	Viewport  Viewport
	CreatedAt time.Time

	mu         sync.Mutex
	lastUsedAt time.Time
	close      func() error
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastUsedAt = now
	s.mu.Unlock()
}

// LastUsedAt returns when the session was last handed out.
func (s *Session) LastUsedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsedAt
}

// Info returns the session's metadata.
func (s *Session) Info() SessionInfo {
	return SessionInfo{
		Name:       s.Name,
		Engine:     s.Engine,
		CurrentURL: s.Page.URL(),
		Headless:   s.Headless,
		Viewport:   s.Viewport,
		CreatedAt:  s.CreatedAt,
		LastUsedAt: s.LastUsedAt(),
	}
}

// SessionInfo contains metadata about a browser session.
type SessionInfo struct {
	Name       string    `json:"name"`
	Engine     string    `json:"engine"`
	CurrentURL string    `json:"currentUrl"`
	Headless   bool      `json:"headless"`
	Viewport   Viewport  `json:"viewport"`
	CreatedAt  time.Time `json:"createdAt"`
	LastUsedAt time.Time `json:"lastUsedAt"`
}
