package browser

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/journeyforge/pkg/page"
	"github.com/entrhq/journeyforge/pkg/page/pagetest"
)

// fakeLauncher opens pagetest fakes and counts closes.
type fakeLauncher struct {
	mu       sync.Mutex
	opened   []SessionOptions
	closed   int
	openErr  error
	shutdown bool
}

func (l *fakeLauncher) Engine() string { return "fake" }

func (l *fakeLauncher) Open(ctx context.Context, opts SessionOptions) (page.Controller, func() error, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.openErr != nil {
		return nil, nil, l.openErr
	}
	l.opened = append(l.opened, opts)
	return pagetest.New("about:blank"), func() error {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.closed++
		return nil
	}, nil
}

func (l *fakeLauncher) Shutdown() error {
	l.shutdown = true
	return nil
}

func (l *fakeLauncher) closes() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

func TestSessionManager_Lifecycle(t *testing.T) {
	launcher := &fakeLauncher{}
	m := NewSessionManager(launcher, WithMaxSessions(2))
	ctx := context.Background()

	s, err := m.StartSession(ctx, "checkout", SessionOptions{Headless: true})
	require.NoError(t, err)
	assert.Equal(t, "fake", s.Engine)
	assert.Equal(t, Viewport{Width: DefaultViewportWidth, Height: DefaultViewportHeight}, s.Viewport)
	assert.True(t, m.HasSessions())

	_, err = m.StartSession(ctx, "checkout", SessionOptions{})
	assert.ErrorIs(t, err, ErrSessionExists)

	_, err = m.StartSession(ctx, "admin", SessionOptions{})
	require.NoError(t, err)
	_, err = m.StartSession(ctx, "third", SessionOptions{})
	assert.ErrorIs(t, err, ErrSessionLimit)

	infos := m.ListSessions()
	require.Len(t, infos, 2)
	assert.Equal(t, "admin", infos[0].Name)
	assert.Equal(t, "about:blank", infos[1].CurrentURL)

	p, err := m.Page("checkout")
	require.NoError(t, err)
	assert.Same(t, s.Page, p)

	require.NoError(t, m.CloseSession("checkout"))
	assert.ErrorIs(t, m.CloseSession("checkout"), ErrSessionNotFound)
	_, err = m.GetSession("checkout")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	require.NoError(t, m.Shutdown())
	assert.Equal(t, 2, launcher.closes())
	assert.True(t, launcher.shutdown)
	assert.False(t, m.HasSessions())
}

func TestSessionManager_Validation(t *testing.T) {
	launcher := &fakeLauncher{}
	m := NewSessionManager(launcher)
	ctx := context.Background()

	_, err := m.StartSession(ctx, "", SessionOptions{})
	assert.Error(t, err)

	_, err = m.StartSession(ctx, "tiny", SessionOptions{Viewport: Viewport{Width: 50}})
	assert.ErrorContains(t, err, "viewport width")

	launcher.openErr = errors.New("no chrome")
	_, err = m.StartSession(ctx, "broken", SessionOptions{})
	assert.ErrorContains(t, err, "no chrome")
	assert.False(t, m.HasSessions())
}

func TestSessionManager_CleanupIdleSessions(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	launcher := &fakeLauncher{}
	var hooked []string
	m := NewSessionManager(launcher, WithIdleTimeout(time.Minute), WithClock(clock),
		WithCloseHook(func(name string, _ page.Controller) { hooked = append(hooked, name) }))
	ctx := context.Background()

	_, err := m.StartSession(ctx, "stale", SessionOptions{})
	require.NoError(t, err)
	_, err = m.StartSession(ctx, "busy", SessionOptions{})
	require.NoError(t, err)

	now = now.Add(50 * time.Second)
	_, err = m.GetSession("busy")
	require.NoError(t, err)

	now = now.Add(20 * time.Second)
	assert.Equal(t, []string{"stale"}, m.CleanupIdleSessions())
	assert.Equal(t, 1, launcher.closes())
	assert.Equal(t, []string{"stale"}, hooked)

	infos := m.ListSessions()
	require.Len(t, infos, 1)
	assert.Equal(t, "busy", infos[0].Name)
}

func TestSessionManager_TemporaryPage(t *testing.T) {
	launcher := &fakeLauncher{}
	m := NewSessionManager(launcher)

	p, release, err := m.TemporaryPage(context.Background(), SessionOptions{Headless: true})
	require.NoError(t, err)
	assert.NotNil(t, p)
	assert.False(t, m.HasSessions())

	release()
	assert.Equal(t, 1, launcher.closes())
}

func TestSessionTools(t *testing.T) {
	launcher := &fakeLauncher{}
	var closedBefore []string
	m := NewSessionManager(launcher, WithCloseHook(func(name string, p page.Controller) {
		assert.NotNil(t, p)
		closedBefore = append(closedBefore, name)
	}))
	ctx := context.Background()

	ts := Tools(m, SessionOptions{Headless: true, Viewport: Viewport{Width: 800, Height: 600}})
	require.Len(t, ts, 3)
	start, list, closeTool := ts[0], ts[1], ts[2]

	out, _, err := start.Execute(ctx, json.RawMessage(`{"name":"rec","headless":false,"width":1024}`))
	require.NoError(t, err)
	var info SessionInfo
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, "rec", info.Name)
	assert.False(t, info.Headless)
	assert.Equal(t, Viewport{Width: 1024, Height: 600}, info.Viewport)

	_, _, err = start.Execute(ctx, json.RawMessage(`{}`))
	assert.ErrorContains(t, err, "session name is required")

	out, _, err = list.Execute(ctx, nil)
	require.NoError(t, err)
	var listed listSessionsResult
	require.NoError(t, json.Unmarshal([]byte(out), &listed))
	assert.Equal(t, 1, listed.Count)
	assert.Equal(t, DefaultMaxSessions, listed.MaxSessions)
	assert.Equal(t, "fake", listed.Engine)

	_, _, err = closeTool.Execute(ctx, json.RawMessage(`{"name":"missing"}`))
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.Empty(t, closedBefore)

	out, _, err = closeTool.Execute(ctx, json.RawMessage(`{"name":"rec"}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"closed":"rec","remaining":0}`, out)
	assert.Equal(t, []string{"rec"}, closedBefore)
	assert.False(t, m.HasSessions())
}

func TestStartSessionTool_OpensURL(t *testing.T) {
	m := NewSessionManager(&fakeLauncher{})
	tool := NewStartSessionTool(m, SessionOptions{Headless: true})

	out, _, err := tool.Execute(context.Background(), json.RawMessage(`{"name":"docs","url":"https://example.com/docs"}`))
	require.NoError(t, err)
	var info SessionInfo
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, "https://example.com/docs", info.CurrentURL)
	assert.True(t, info.Headless)
	assert.Equal(t, Viewport{Width: DefaultViewportWidth, Height: DefaultViewportHeight}, info.Viewport)
}
