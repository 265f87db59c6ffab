package page

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
)

// Bound returns timeout capped by the time left before ctx's deadline.
func Bound(ctx context.Context, timeout time.Duration) time.Duration {
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			if remaining < time.Millisecond {
				return time.Millisecond
			}
			return remaining
		}
	}
	return timeout
}

func millis(d time.Duration) *float64 {
	return playwright.Float(float64(d.Milliseconds()))
}

// PlaywrightPage adapts a playwright.Page to Controller.
type PlaywrightPage struct {
	page playwright.Page

	installOnce sync.Once
	installErr  error
	events      Dispatcher
}

// NewPlaywrightPage wraps page.
func NewPlaywrightPage(page playwright.Page, opts ...AdapterOption) *PlaywrightPage {
	p := &PlaywrightPage{page: page}
	for _, opt := range opts {
		opt(&p.events)
	}
	return p
}

// DroppedEvents returns the number of capture payloads that failed to decode.
func (p *PlaywrightPage) DroppedEvents() int64 {
	return p.events.Dropped()
}

// Page returns the underlying playwright page.
func (p *PlaywrightPage) Page() playwright.Page {
	return p.page
}

// Navigate loads url and waits for the load event.
func (p *PlaywrightPage) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	waitUntil := playwright.WaitUntilState("load")
	_, err := p.page.Goto(url, playwright.PageGotoOptions{
		Timeout:   millis(Bound(ctx, timeout)),
		WaitUntil: &waitUntil,
	})
	if err != nil {
		return fmt.Errorf("navigation failed: %w", err)
	}
	return nil
}

// Click clicks the element matching selector.
func (p *PlaywrightPage) Click(ctx context.Context, selector string, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := p.page.Click(selector, playwright.PageClickOptions{
		Timeout: millis(Bound(ctx, timeout)),
	}); err != nil {
		return fmt.Errorf("click failed: %w", err)
	}
	return nil
}

// Fill clears the element matching selector and types value.
func (p *PlaywrightPage) Fill(ctx context.Context, selector, value string, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := p.page.Fill(selector, value, playwright.PageFillOptions{
		Timeout: millis(Bound(ctx, timeout)),
	}); err != nil {
		return fmt.Errorf("fill failed: %w", err)
	}
	return nil
}

// WaitForSelector waits for selector to match an attached element.
func (p *PlaywrightPage) WaitForSelector(ctx context.Context, selector string, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	state := playwright.WaitForSelectorState("attached")
	if _, err := p.page.WaitForSelector(selector, playwright.PageWaitForSelectorOptions{
		State:   &state,
		Timeout: millis(Bound(ctx, timeout)),
	}); err != nil {
		return fmt.Errorf("wait failed: %w", err)
	}
	return nil
}

// WaitForFunction polls fn(arg) in the page until it is truthy.
func (p *PlaywrightPage) WaitForFunction(ctx context.Context, fn string, arg any, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := p.page.WaitForFunction(fn, arg, playwright.PageWaitForFunctionOptions{
		Timeout: millis(Bound(ctx, timeout)),
	}); err != nil {
		return fmt.Errorf("wait for function failed: %w", err)
	}
	return nil
}

// Evaluate runs fn(arg) in the page.
func (p *PlaywrightPage) Evaluate(ctx context.Context, fn string, arg any) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	result, err := p.page.Evaluate(fn, arg)
	if err != nil {
		return nil, fmt.Errorf("evaluate failed: %w", err)
	}
	return result, nil
}

// Screenshot captures the viewport or the full page as PNG.
func (p *PlaywrightPage) Screenshot(ctx context.Context, opts ScreenshotOptions) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := p.page.Screenshot(playwright.PageScreenshotOptions{
		FullPage: playwright.Bool(opts.FullPage),
	})
	if err != nil {
		return nil, fmt.Errorf("screenshot failed: %w", err)
	}
	return data, nil
}

// Content returns the current document HTML.
func (p *PlaywrightPage) Content(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return p.page.Content()
}

// URL returns the current page URL.
func (p *PlaywrightPage) URL() string {
	return p.page.URL()
}

// Subscribe installs the capture script on first use and registers handler.
func (p *PlaywrightPage) Subscribe(eventType EventType, handler EventHandler) (Unsubscribe, error) {
	if err := p.install(); err != nil {
		return nil, err
	}
	return p.events.Add(eventType, handler), nil
}

func (p *PlaywrightPage) install() error {
	p.installOnce.Do(func() {
		err := p.page.ExposeFunction(BindingName, func(args ...interface{}) interface{} {
			if len(args) == 0 {
				return nil
			}
			if payload, ok := args[0].(string); ok {
				p.events.Receive(payload)
			}
			return nil
		})
		if err != nil {
			p.installErr = fmt.Errorf("failed to expose event binding: %w", err)
			return
		}
		script := captureScript
		if err := p.page.AddInitScript(playwright.Script{Content: &script}); err != nil {
			p.installErr = fmt.Errorf("failed to add capture script: %w", err)
			return
		}
		if _, err := p.page.Evaluate(captureScript); err != nil {
			p.installErr = fmt.Errorf("failed to install capture script: %w", err)
		}
	})
	return p.installErr
}

// VideoPath returns the path of the page video, when the context records one.
func (p *PlaywrightPage) VideoPath() (string, error) {
	video := p.page.Video()
	if video == nil {
		return "", errors.New("page is not being recorded")
	}
	return video.Path()
}
