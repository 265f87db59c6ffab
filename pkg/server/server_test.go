package server

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/entrhq/journeyforge/pkg/config"
	"github.com/entrhq/journeyforge/pkg/page"
	"github.com/entrhq/journeyforge/pkg/page/pagetest"
	"github.com/entrhq/journeyforge/pkg/recorder"
	"github.com/entrhq/journeyforge/pkg/tools/browser"
)

type fakeLauncher struct {
	mu    sync.Mutex
	pages []*pagetest.Fake
}

func (l *fakeLauncher) Engine() string { return "fake" }

func (l *fakeLauncher) Open(ctx context.Context, opts browser.SessionOptions) (page.Controller, func() error, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p := pagetest.New("https://app.example.com/", "#go")
	l.pages = append(l.pages, p)
	return p, func() error { return nil }, nil
}

func (l *fakeLauncher) Shutdown() error { return nil }

func newTestServer(t *testing.T) (*Server, *fakeLauncher) {
	t.Helper()
	dir := t.TempDir()
	settings := CurrentSettings()
	settings.Journey = config.NewJourneySectionIn(dir).Settings()
	settings.Journey.ScreenshotDir = filepath.Join(dir, "screenshots")
	settings.Journey.RetryDelay = 0

	launcher := &fakeLauncher{}
	s, err := New(context.Background(), Options{Settings: settings, Version: "test", Launcher: launcher})
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, s.Close()) })
	return s, launcher
}

func call(t *testing.T, s *Server, name string, args interface{}) string {
	t.Helper()
	tool, ok := s.Tools.Get(name)
	require.True(t, ok, name)
	data, err := json.Marshal(args)
	require.NoError(t, err)
	text, _, err := tool.Execute(context.Background(), data)
	require.NoError(t, err, name)
	return text
}

func TestNew_RegistersEveryTool(t *testing.T) {
	s, _ := newTestServer(t)

	want := []string{
		"start_browser_session", "close_browser_session", "list_browser_sessions",
		"run_journey", "stop_journey", "validate_journey", "optimize_journey",
		"save_journey", "list_journeys", "journey_history",
		"start_recording", "stop_recording", "pause_recording", "resume_recording",
		"recording_status", "suggest_selectors",
	}
	for _, name := range want {
		_, ok := s.Tools.Get(name)
		assert.True(t, ok, name)
	}
	assert.Len(t, s.Tools.List(), len(want))
}

func TestServer_RunAndRecordThroughTools(t *testing.T) {
	s, _ := newTestServer(t)

	call(t, s, "start_browser_session", map[string]interface{}{"name": "main"})

	out := call(t, s, "run_journey", map[string]interface{}{
		"session": "main",
		"journey": map[string]interface{}{
			"name":        "smoke",
			"description": "open and click",
			"steps": []map[string]interface{}{
				{"id": "open", "action": "navigate", "value": "https://app.example.com/"},
				{"id": "go", "action": "click", "selector": "#go"},
			},
		},
	})
	assert.Contains(t, out, `"success": true`)

	out = call(t, s, "journey_history", map[string]interface{}{"name": "smoke"})
	assert.Contains(t, out, `"passed": 1`)

	call(t, s, "start_recording", map[string]interface{}{"session": "main", "sessionId": "rec"})
	assert.Equal(t, []string{"rec"}, s.Recorders.ActiveInstances())

	call(t, s, "close_browser_session", map[string]interface{}{"name": "main"})
	assert.Empty(t, s.Recorders.ActiveInstances(), "closing a session discards its recordings")
	assert.False(t, s.Runner.IsRunning("main"))
}

func TestServer_RecorderDefaultsFollowSettings(t *testing.T) {
	s, _ := newTestServer(t)
	s.settings.Recorder = config.RecorderSettings{CaptureInitialNavigation: false, IgnoreURLs: []string{"*/health"}}

	assert.Equal(t, recorder.Options{IgnoreURLs: []string{"*/health"}, SkipInitialNavigation: true}, s.RecorderDefaults())
}

func TestServer_ServeMCP(t *testing.T) {
	s, _ := newTestServer(t)
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	inR, inW := io.Pipe()
	outR, outW := io.Pipe()
	done := make(chan error, 1)
	go func() {
		done <- s.ServeMCP(context.Background(), inR, outW)
		outW.Close()
	}()

	sc := bufio.NewScanner(outR)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	request := func(line string) string {
		t.Helper()
		_, err := io.WriteString(inW, line+"\n")
		require.NoError(t, err)
		require.True(t, sc.Scan())
		var r map[string]json.RawMessage
		require.NoError(t, json.Unmarshal(sc.Bytes(), &r))
		return string(r["result"])
	}

	assert.Contains(t, request(`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-06-18","capabilities":{},"clientInfo":{"name":"test","version":"0"}}}`), `"name":"journeyforge"`)
	_, err := io.WriteString(inW, `{"jsonrpc":"2.0","method":"notifications/initialized","params":{}}`+"\n")
	require.NoError(t, err)
	assert.Contains(t, request(`{"jsonrpc":"2.0","id":2,"method":"tools/list","params":{}}`), `"start_recording"`)

	require.NoError(t, inW.Close())
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("ServeMCP did not return after input closed")
	}
}
