package page

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// RodPage adapts a rod.Page to Controller. It is used when attaching to an
// already running Chrome over CDP.
type RodPage struct {
	page *rod.Page

	installOnce sync.Once
	installErr  error
	events      Dispatcher
	stopEvents  context.CancelFunc
}

// NewRodPage wraps page.
func NewRodPage(page *rod.Page, opts ...AdapterOption) *RodPage {
	r := &RodPage{page: page}
	for _, opt := range opts {
		opt(&r.events)
	}
	return r
}

// DroppedEvents returns the number of capture payloads that failed to decode.
func (r *RodPage) DroppedEvents() int64 {
	return r.events.Dropped()
}

// Page returns the underlying rod page.
func (r *RodPage) Page() *rod.Page {
	return r.page
}

func (r *RodPage) bounded(ctx context.Context, timeout time.Duration) *rod.Page {
	return r.page.Context(ctx).Timeout(Bound(ctx, timeout))
}

// element resolves a Playwright-dialect selector.
func element(pg *rod.Page, selector string) (*rod.Element, error) {
	kind, expr := ParseSelector(selector)
	switch kind {
	case SelectorText:
		return pg.ElementR("*", "^\\s*"+regexp.QuoteMeta(expr)+"\\s*$")
	case SelectorXPath:
		return pg.ElementX(expr)
	default:
		return pg.Element(expr)
	}
}

// Navigate loads url and waits for the load event.
func (r *RodPage) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	pg := r.bounded(ctx, timeout)
	defer pg.CancelTimeout()

	if err := pg.Navigate(url); err != nil {
		return fmt.Errorf("navigation failed: %w", err)
	}
	if err := pg.WaitLoad(); err != nil {
		return fmt.Errorf("navigation failed: %w", err)
	}
	return nil
}

// Click clicks the element matching selector.
func (r *RodPage) Click(ctx context.Context, selector string, timeout time.Duration) error {
	pg := r.bounded(ctx, timeout)
	defer pg.CancelTimeout()

	el, err := element(pg, selector)
	if err != nil {
		return fmt.Errorf("element not found: %w", err)
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("click failed: %w", err)
	}
	return nil
}

// Fill selects the existing text of the element and replaces it with value.
func (r *RodPage) Fill(ctx context.Context, selector, value string, timeout time.Duration) error {
	pg := r.bounded(ctx, timeout)
	defer pg.CancelTimeout()

	el, err := element(pg, selector)
	if err != nil {
		return fmt.Errorf("element not found: %w", err)
	}
	if err := el.SelectAllText(); err != nil {
		return fmt.Errorf("fill failed: %w", err)
	}
	if err := el.Input(value); err != nil {
		return fmt.Errorf("fill failed: %w", err)
	}
	return nil
}

// WaitForSelector waits until selector matches an element.
func (r *RodPage) WaitForSelector(ctx context.Context, selector string, timeout time.Duration) error {
	pg := r.bounded(ctx, timeout)
	defer pg.CancelTimeout()

	if _, err := element(pg, selector); err != nil {
		return fmt.Errorf("wait failed: %w", err)
	}
	return nil
}

// WaitForFunction polls fn(arg) until it returns a truthy value.
func (r *RodPage) WaitForFunction(ctx context.Context, fn string, arg any, timeout time.Duration) error {
	pg := r.bounded(ctx, timeout)
	defer pg.CancelTimeout()

	if err := pg.Wait(&rod.EvalOptions{JS: fn, JSArgs: []interface{}{arg}}); err != nil {
		return fmt.Errorf("wait for function failed: %w", err)
	}
	return nil
}

// Evaluate runs fn(arg) and returns the result by value.
func (r *RodPage) Evaluate(ctx context.Context, fn string, arg any) (any, error) {
	res, err := r.page.Context(ctx).Evaluate(&rod.EvalOptions{
		JS:           fn,
		JSArgs:       []interface{}{arg},
		ByValue:      true,
		AwaitPromise: true,
	})
	if err != nil {
		return nil, fmt.Errorf("evaluate failed: %w", err)
	}
	return res.Value.Val(), nil
}

// Screenshot captures the viewport or the full page as PNG.
func (r *RodPage) Screenshot(ctx context.Context, opts ScreenshotOptions) ([]byte, error) {
	data, err := r.page.Context(ctx).Screenshot(opts.FullPage, nil)
	if err != nil {
		return nil, fmt.Errorf("screenshot failed: %w", err)
	}
	return data, nil
}

// Content returns the current document HTML.
func (r *RodPage) Content(ctx context.Context) (string, error) {
	return r.page.Context(ctx).HTML()
}

// URL returns the current page URL, or "" when the target is gone.
func (r *RodPage) URL() string {
	info, err := r.page.Info()
	if err != nil {
		return ""
	}
	return info.URL
}

// Subscribe installs the CDP binding on first use and registers handler.
func (r *RodPage) Subscribe(eventType EventType, handler EventHandler) (Unsubscribe, error) {
	if err := r.install(); err != nil {
		return nil, err
	}
	return r.events.Add(eventType, handler), nil
}

func (r *RodPage) install() error {
	r.installOnce.Do(func() {
		if err := (proto.RuntimeAddBinding{Name: BindingName}).Call(r.page); err != nil {
			r.installErr = fmt.Errorf("failed to add event binding: %w", err)
			return
		}
		if _, err := r.page.EvalOnNewDocument(captureScript); err != nil {
			r.installErr = fmt.Errorf("failed to add capture script: %w", err)
			return
		}

		ctx, cancel := context.WithCancel(context.Background())
		r.stopEvents = cancel
		wait := r.page.Context(ctx).EachEvent(func(e *proto.RuntimeBindingCalled) {
			if e.Name == BindingName {
				r.events.Receive(e.Payload)
			}
		})
		go wait()

		if _, err := r.page.Evaluate(&rod.EvalOptions{JS: "() => " + captureScript}); err != nil {
			r.installErr = fmt.Errorf("failed to install capture script: %w", err)
		}
	})
	return r.installErr
}

// Close stops the event pump. The page itself is owned by the caller.
func (r *RodPage) Close() {
	if r.stopEvents != nil {
		r.stopEvents()
	}
}
