package browser

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/entrhq/journeyforge/pkg/logging"
	"github.com/entrhq/journeyforge/pkg/page"
)

// SessionManager manages all active browser sessions.
type SessionManager struct {
	mu          sync.RWMutex
	launcher    Launcher
	sessions    map[string]*Session
	maxSessions int
	idleTimeout time.Duration
	logger      *logging.Logger
	now         func() time.Time
	onClose     CloseHook
}

// CloseHook runs before a session's page is closed, whether by
// CloseSession, CloseAll or the idle reaper.
type CloseHook func(name string, p page.Controller)

// ManagerOption configures a SessionManager.
type ManagerOption func(*SessionManager)

// WithMaxSessions sets the maximum number of concurrent sessions.
func WithMaxSessions(max int) ManagerOption {
	return func(m *SessionManager) { m.maxSessions = max }
}

// WithIdleTimeout sets how long a session may go unused before
// CleanupIdleSessions closes it.
func WithIdleTimeout(timeout time.Duration) ManagerOption {
	return func(m *SessionManager) { m.idleTimeout = timeout }
}

// WithLogger sets the manager's logger.
func WithLogger(logger *logging.Logger) ManagerOption {
	return func(m *SessionManager) { m.logger = logger }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *SessionManager) { m.now = now }
}

// WithCloseHook sets a hook that runs before every session close.
func WithCloseHook(fn CloseHook) ManagerOption {
	return func(m *SessionManager) { m.onClose = fn }
}

// NewSessionManager creates a session manager opening pages through launcher.
func NewSessionManager(launcher Launcher, opts ...ManagerOption) *SessionManager {
	m := &SessionManager{
		launcher:    launcher,
		sessions:    make(map[string]*Session),
		maxSessions: DefaultMaxSessions,
		idleTimeout: DefaultIdleTimeout,
		logger:      logging.Discard(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// MaxSessions is the number of sessions that may be open at once.
func (m *SessionManager) MaxSessions() int {
	return m.maxSessions
}

// Engine names the launcher's engine.
func (m *SessionManager) Engine() string {
	return m.launcher.Engine()
}

// StartSession opens a page and registers it under name.
func (m *SessionManager) StartSession(ctx context.Context, name string, opts SessionOptions) (*Session, error) {
	if name == "" {
		return nil, errors.New("session name is required")
	}
	opts = opts.withDefaults()
	if err := validateViewport(opts.Viewport); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[name]; exists {
		return nil, fmt.Errorf("%w: %q", ErrSessionExists, name)
	}
	if len(m.sessions) >= m.maxSessions {
		return nil, fmt.Errorf("%w (%d)", ErrSessionLimit, m.maxSessions)
	}

	ctrl, closeFn, err := m.launcher.Open(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to start session %q: %w", name, err)
	}

	now := m.now()
	session := &Session{
		Name:       name,
		Engine:     m.launcher.Engine(),
		Page:       ctrl,
		Headless:   opts.Headless,
		Viewport:   opts.Viewport,
		CreatedAt:  now,
		lastUsedAt: now,
		close:      closeFn,
	}
	m.sessions[name] = session
	m.logger.Infof("started %s session %q (%dx%d, headless=%v)", session.Engine, name, opts.Viewport.Width, opts.Viewport.Height, opts.Headless)
	return session, nil
}

// TemporaryPage opens a page that is not registered as a session. Callers
// must call release when done.
func (m *SessionManager) TemporaryPage(ctx context.Context, opts SessionOptions) (page.Controller, func(), error) {
	ctrl, closeFn, err := m.launcher.Open(ctx, opts.withDefaults())
	if err != nil {
		return nil, nil, err
	}
	release := func() {
		if err := closeFn(); err != nil {
			m.logger.Warnf("failed to close temporary page: %v", err)
		}
	}
	return ctrl, release, nil
}

// GetSession retrieves an active session by name and marks it used.
func (m *SessionManager) GetSession(name string) (*Session, error) {
	m.mu.RLock()
	session, exists := m.sessions[name]
	m.mu.RUnlock()
	if !exists {
		return nil, fmt.Errorf("%w: %q", ErrSessionNotFound, name)
	}
	session.touch(m.now())
	return session, nil
}

// Page returns the controller of the named session.
func (m *SessionManager) Page(name string) (page.Controller, error) {
	session, err := m.GetSession(name)
	if err != nil {
		return nil, err
	}
	return session.Page, nil
}

// CloseSession closes and removes a browser session.
func (m *SessionManager) CloseSession(name string) error {
	m.mu.Lock()
	session, exists := m.sessions[name]
	delete(m.sessions, name)
	m.mu.Unlock()

	if !exists {
		return fmt.Errorf("%w: %q", ErrSessionNotFound, name)
	}
	if err := m.closeSession(session); err != nil {
		m.logger.Warnf("error closing session %q: %v", name, err)
	}
	m.logger.Infof("closed session %q", name)
	return nil
}

// ListSessions returns information about all active sessions, by name.
func (m *SessionManager) ListSessions() []SessionInfo {
	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, session := range m.sessions {
		sessions = append(sessions, session)
	}
	m.mu.RUnlock()

	infos := make([]SessionInfo, 0, len(sessions))
	for _, session := range sessions {
		infos = append(infos, session.Info())
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// HasSessions returns true if there are any active sessions.
func (m *SessionManager) HasSessions() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions) > 0
}

// CloseAll closes all active sessions.
func (m *SessionManager) CloseAll() error {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	var errs []error
	for name, session := range sessions {
		if err := m.closeSession(session); err != nil {
			errs = append(errs, fmt.Errorf("session %q: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// Shutdown closes all sessions and releases the engine.
func (m *SessionManager) Shutdown() error {
	closeErr := m.CloseAll()
	if err := m.launcher.Shutdown(); err != nil {
		return errors.Join(closeErr, err)
	}
	return closeErr
}

// CleanupIdleSessions closes sessions idle for longer than the idle
// timeout and returns their names.
func (m *SessionManager) CleanupIdleSessions() []string {
	now := m.now()

	m.mu.Lock()
	var idle []*Session
	for name, session := range m.sessions {
		if now.Sub(session.LastUsedAt()) > m.idleTimeout {
			idle = append(idle, session)
			delete(m.sessions, name)
		}
	}
	m.mu.Unlock()

	names := make([]string, 0, len(idle))
	for _, session := range idle {
		if err := m.closeSession(session); err != nil {
			m.logger.Warnf("error closing idle session %q: %v", session.Name, err)
		}
		names = append(names, session.Name)
	}
	sort.Strings(names)
	if len(names) > 0 {
		m.logger.Infof("closed idle sessions: %v", names)
	}
	return names
}

// RunIdleReaper calls CleanupIdleSessions every interval until ctx ends.
func (m *SessionManager) RunIdleReaper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.CleanupIdleSessions()
		}
	}
}

func (m *SessionManager) closeSession(session *Session) error {
	if m.onClose != nil {
		m.onClose(session.Name, session.Page)
	}
	return session.close()
}

func validateViewport(vp Viewport) error {
	if vp.Width < minViewport || vp.Width > maxViewport {
		return fmt.Errorf("viewport width must be between %d and %d pixels", minViewport, maxViewport)
	}
	if vp.Height < minViewport || vp.Height > maxViewport {
		return fmt.Errorf("viewport height must be between %d and %d pixels", minViewport, maxViewport)
	}
	return nil
}
