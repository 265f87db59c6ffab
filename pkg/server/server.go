// Package server assembles the journeyforge runtime from configuration:
// browser sessions, the journey store and run history, the recorder
// registry, and the tool registry served over MCP.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/entrhq/journeyforge/pkg/config"
	"github.com/entrhq/journeyforge/pkg/history"
	"github.com/entrhq/journeyforge/pkg/journey"
	"github.com/entrhq/journeyforge/pkg/logging"
	"github.com/entrhq/journeyforge/pkg/mcp"
	"github.com/entrhq/journeyforge/pkg/page"
	"github.com/entrhq/journeyforge/pkg/recorder"
	"github.com/entrhq/journeyforge/pkg/recording"
	"github.com/entrhq/journeyforge/pkg/store"
	"github.com/entrhq/journeyforge/pkg/tools"
	"github.com/entrhq/journeyforge/pkg/tools/browser"
	"github.com/entrhq/journeyforge/pkg/tools/journeys"
	"github.com/entrhq/journeyforge/pkg/tools/record"
)

// Name is the server name reported to MCP clients.
const Name = "journeyforge"

const reaperInterval = time.Minute

// Settings is the configuration a Server is built from.
type Settings struct {
	Browser  config.BrowserSettings
	Journey  config.JourneySettings
	Recorder config.RecorderSettings
}

// CurrentSettings reads the global configuration, or the defaults when it
// is not initialized.
func CurrentSettings() Settings {
	return Settings{
		Browser:  config.BrowserSettingsOrDefault(),
		Journey:  config.JourneySettingsOrDefault(),
		Recorder: config.RecorderSettingsOrDefault(),
	}
}

// Options configures New.
type Options struct {
	Settings Settings
	Version  string
	Logger   *logging.Logger

	// Launcher replaces the engine chosen by the browser settings.
	Launcher browser.Launcher
}

// Server owns every long-lived component of a journeyforge process.
type Server struct {
	settings Settings
	version  string
	logger   *logging.Logger

	Sessions  *browser.SessionManager
	Journeys  *store.FileStore
	History   *history.Store
	Recorders *recorder.Registry
	Runner    *journeys.Runner
	Tools     *tools.Registry

	sink *recording.FileSink
}

// New builds a server. Call Close to release it.
func New(ctx context.Context, opts Options) (*Server, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	s := &Server{settings: opts.Settings, version: opts.Version, logger: logger}
	js := opts.Settings.Journey

	launcher := opts.Launcher
	if launcher == nil {
		var err error
		if launcher, err = browser.NewLauncher(opts.Settings.Browser, logger.With("browser")); err != nil {
			return nil, err
		}
	}

	var err error
	if s.Journeys, err = store.NewFileStore(js.JourneysDir, logger.With("store")); err != nil {
		return nil, fmt.Errorf("failed to open journey store: %w", err)
	}
	if s.History, err = history.Open(ctx, js.HistoryDB); err != nil {
		return nil, err
	}

	s.Recorders = recorder.NewRegistry(recorder.WithLogger(logger.With("recorder")))
	s.sink = recording.NewFileSink(js.RecordingsDir, logger.With("recording"))
	managerOpts := []browser.ManagerOption{
		browser.WithLogger(logger.With("browser")),
		browser.WithCloseHook(s.releaseSession),
	}
	if n := opts.Settings.Browser.MaxSessions; n > 0 {
		managerOpts = append(managerOpts, browser.WithMaxSessions(n))
	}
	s.Sessions = browser.NewSessionManager(launcher, managerOpts...)
	s.Runner = journeys.NewRunner(s.Sessions, s.SimulatorOptions()...)

	reg, err := tools.NewRegistry(s.buildTools()...)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.Tools = reg
	return s, nil
}

// Settings returns the settings the server was built from.
func (s *Server) Settings() Settings {
	return s.settings
}

// Executor returns a step executor using the configured timeouts and
// screenshot directory.
func (s *Server) Executor() *journey.StepExecutor {
	js := s.settings.Journey
	return journey.NewStepExecutor(
		journey.WithScreenshotDir(js.ScreenshotDir),
		journey.WithTimeouts(journey.Timeouts{
			Navigate: js.NavigateTimeout,
			Action:   js.ActionTimeout,
			Wait:     js.WaitTimeout,
		}),
		journey.WithExecutorLogger(s.logger.With("executor")),
	)
}

// SimulatorOptions returns the options every simulator of this server
// uses.
func (s *Server) SimulatorOptions() []journey.Option {
	return []journey.Option{
		journey.WithExecutor(s.Executor()),
		journey.WithSink(s.sink),
		journey.WithLogger(s.logger.With("journey")),
		journey.WithRetryDelay(s.settings.Journey.RetryDelay),
	}
}

// OptimizeOptions returns the options journey optimization uses.
func (s *Server) OptimizeOptions() []journey.OptimizeOption {
	return []journey.OptimizeOption{journey.WithDefaultStepTimeout(s.settings.Journey.DefaultStepTimeout)}
}

// RecorderDefaults returns recorder options built from the recorder
// settings.
func (s *Server) RecorderDefaults() recorder.Options {
	rs := s.settings.Recorder
	return recorder.Options{
		MinInteractionDelay:   rs.MinInteractionDelay,
		ExcludeActions:        rs.ExcludeActions,
		IgnoreURLs:            rs.IgnoreURLs,
		SkipInitialNavigation: !rs.CaptureInitialNavigation,
	}
}

// SessionDefaults returns the options new browser sessions use.
func (s *Server) SessionDefaults() browser.SessionOptions {
	bs := s.settings.Browser
	return browser.SessionOptions{
		Headless: bs.Headless,
		Viewport: browser.Viewport{Width: bs.ViewportWidth, Height: bs.ViewportHeight},
		VideoDir: bs.VideoDir,
	}
}

func (s *Server) buildTools() []tools.Tool {
	var out []tools.Tool
	out = append(out, browser.Tools(s.Sessions, s.SessionDefaults())...)
	out = append(out, journeys.Tools(journeys.Config{
		Runner:      s.Runner,
		Definitions: s.Journeys,
		History:     s.History,
		MaxDuration: s.settings.Journey.MaxDuration,
		Optimize:    s.OptimizeOptions(),
		Logger:      s.logger.With("tools"),
	})...)
	out = append(out, record.Tools(s.Sessions, s.Recorders, s.Journeys, s.RecorderDefaults())...)
	return out
}

// releaseSession drops recordings and the simulator bound to a closing
// session.
func (s *Server) releaseSession(name string, p page.Controller) {
	if ids := s.Recorders.RemovePage(p); len(ids) > 0 {
		s.logger.Infof("discarded recordings %v of closed session %q", ids, name)
	}
	s.Runner.Forget(name)
}

// WatchJourneys reloads the journey store when its directory changes,
// until ctx ends.
func (s *Server) WatchJourneys(ctx context.Context) (*store.Watcher, error) {
	w := store.NewWatcher(s.Journeys, store.OnReload(func() {
		s.logger.Infof("journey store reloaded: %d journeys", len(s.Journeys.List()))
	}))
	if err := w.Start(ctx); err != nil {
		return nil, err
	}
	return w, nil
}

// ServeMCP serves the tool registry over r and w until r closes or ctx
// ends. It watches the journey store and reaps idle sessions meanwhile.
func (s *Server) ServeMCP(ctx context.Context, r io.Reader, w io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if watcher, err := s.WatchJourneys(ctx); err != nil {
		s.logger.Warnf("journey store will not reload on change: %v", err)
	} else {
		defer watcher.Stop()
	}

	reaped := make(chan struct{})
	go func() {
		defer close(reaped)
		s.Sessions.RunIdleReaper(ctx, reaperInterval)
	}()
	defer func() {
		cancel()
		<-reaped
	}()

	srv := mcp.NewServer(Name, s.Tools, mcp.WithLogger(s.logger.With("mcp")), mcp.WithVersion(s.version))
	return srv.Serve(ctx, r, w)
}

// Close stops recordings, closes every browser session and the history
// database.
func (s *Server) Close() error {
	var errs []error
	if s.Recorders != nil {
		s.Recorders.CloseAll()
	}
	if s.Sessions != nil {
		errs = append(errs, s.Sessions.Shutdown())
	}
	if s.History != nil {
		errs = append(errs, s.History.Close())
	}
	return errors.Join(errs...)
}
