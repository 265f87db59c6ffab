package browser

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/playwright-community/playwright-go"

	"github.com/entrhq/journeyforge/pkg/config"
	"github.com/entrhq/journeyforge/pkg/logging"
	"github.com/entrhq/journeyforge/pkg/page"
)

// Launcher opens browser pages for one engine.
type Launcher interface {
	// Engine names the engine ("playwright" or "rod").
	Engine() string

	// Open opens a page. The returned func closes it and everything opened
	// for it.
	Open(ctx context.Context, opts SessionOptions) (page.Controller, func() error, error)

	// Shutdown releases the engine. Pages must be closed first.
	Shutdown() error
}

// NewLauncher returns the launcher for settings.Engine.
func NewLauncher(settings config.BrowserSettings, logger *logging.Logger) (Launcher, error) {
	if logger == nil {
		logger = logging.Discard()
	}
	switch settings.Engine {
	case config.EnginePlaywright, "":
		return &PlaywrightLauncher{Logger: logger}, nil
	case config.EngineRod:
		return &RodLauncher{ControlURL: settings.ControlURL, Logger: logger}, nil
	default:
		return nil, fmt.Errorf("unsupported browser engine %q", settings.Engine)
	}
}

// PlaywrightLauncher launches one Chromium per page through playwright-go.
type PlaywrightLauncher struct {
	Logger *logging.Logger

	mu sync.Mutex
	pw *playwright.Playwright
}

// Engine returns "playwright".
func (l *PlaywrightLauncher) Engine() string {
	return config.EnginePlaywright
}

func (l *PlaywrightLauncher) ensure() (*playwright.Playwright, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.pw != nil {
		return l.pw, nil
	}

	// Driver output would corrupt the MCP stdio stream.
	opts := &playwright.RunOptions{
		Verbose: false,
		Stdout:  io.Discard,
		Stderr:  io.Discard,
	}
	if err := playwright.Install(opts); err != nil {
		return nil, fmt.Errorf("failed to install playwright: %w", err)
	}
	pw, err := playwright.Run(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}
	l.pw = pw
	return pw, nil
}

// Open launches a browser, a context and a page.
func (l *PlaywrightLauncher) Open(ctx context.Context, opts SessionOptions) (page.Controller, func() error, error) {
	pw, err := l.ensure()
	if err != nil {
		return nil, nil, err
	}
	opts = opts.withDefaults()

	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	contextOpts := playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{
			Width:  opts.Viewport.Width,
			Height: opts.Viewport.Height,
		},
	}
	if opts.VideoDir != "" {
		contextOpts.RecordVideo = &playwright.RecordVideo{Dir: opts.VideoDir}
	}
	bctx, err := browser.NewContext(contextOpts)
	if err != nil {
		browser.Close()
		return nil, nil, fmt.Errorf("failed to create context: %w", err)
	}

	pg, err := bctx.NewPage()
	if err != nil {
		bctx.Close()
		browser.Close()
		return nil, nil, fmt.Errorf("failed to create page: %w", err)
	}

	closeFn := func() error {
		// Closing the context finalizes any video.
		_ = pg.Close()
		_ = bctx.Close()
		return browser.Close()
	}
	return page.NewPlaywrightPage(pg, page.WithEventLogger(l.Logger)), closeFn, nil
}

// Shutdown stops the playwright driver.
func (l *PlaywrightLauncher) Shutdown() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.pw == nil {
		return nil
	}
	err := l.pw.Stop()
	l.pw = nil
	if err != nil {
		return fmt.Errorf("failed to stop playwright: %w", err)
	}
	return nil
}

// RodLauncher opens incognito pages on one Chrome. With ControlURL set it
// attaches to that browser; otherwise it launches a local Chrome on first
// use, headless or not according to the first session's options.
type RodLauncher struct {
	ControlURL string
	Logger     *logging.Logger

	mu       sync.Mutex
	browser  *rod.Browser
	launched *launcher.Launcher
}

// Engine returns "rod".
func (l *RodLauncher) Engine() string {
	return config.EngineRod
}

func (l *RodLauncher) ensure(headless bool) (*rod.Browser, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.browser != nil {
		return l.browser, nil
	}

	controlURL := l.ControlURL
	if controlURL == "" {
		ln := launcher.New().Headless(headless)
		url, err := ln.Launch()
		if err != nil {
			return nil, fmt.Errorf("failed to launch chrome: %w", err)
		}
		controlURL = url
		l.launched = ln
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		if l.launched != nil {
			l.launched.Kill()
			l.launched = nil
		}
		return nil, fmt.Errorf("failed to connect to chrome: %w", err)
	}
	l.browser = browser
	return browser, nil
}

// Open creates an incognito context and a blank page in it.
func (l *RodLauncher) Open(ctx context.Context, opts SessionOptions) (page.Controller, func() error, error) {
	browser, err := l.ensure(opts.Headless)
	if err != nil {
		return nil, nil, err
	}
	opts = opts.withDefaults()

	incognito, err := browser.Incognito()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create incognito context: %w", err)
	}
	pg, err := incognito.Context(ctx).Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		incognito.Close()
		return nil, nil, fmt.Errorf("failed to create page: %w", err)
	}
	// Unbind the page from the request context it was created under.
	pg = pg.Context(context.Background())

	if err := (proto.EmulationSetDeviceMetricsOverride{
		Width:             opts.Viewport.Width,
		Height:            opts.Viewport.Height,
		DeviceScaleFactor: 1.0,
	}).Call(pg); err != nil {
		pg.Close()
		incognito.Close()
		return nil, nil, fmt.Errorf("failed to set viewport: %w", err)
	}

	ctrl := page.NewRodPage(pg, page.WithEventLogger(l.Logger))
	closeFn := func() error {
		ctrl.Close()
		_ = pg.Close()
		return incognito.Close()
	}
	return ctrl, closeFn, nil
}

// Shutdown disconnects, and kills Chrome when this launcher started it.
func (l *RodLauncher) Shutdown() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.browser == nil {
		return nil
	}
	var err error
	if l.launched != nil {
		err = l.browser.Close()
		l.launched.Kill()
		l.launched = nil
	}
	l.browser = nil
	if err != nil {
		return fmt.Errorf("failed to close chrome: %w", err)
	}
	return nil
}
