// Package pagetest provides a scriptable in-memory page.Controller for tests.
package pagetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/entrhq/journeyforge/pkg/page"
)

// ErrNoElement is returned when a selector matches nothing.
var ErrNoElement = errors.New("no element matches selector")

// Call is one primitive invocation observed by the fake.
type Call struct {
	Op       string
	Selector string
	Value    string
	Timeout  time.Duration
}

// Fake is a page.Controller backed by a selector→match-count table.
//
// Evaluate understands the selector-count query used by the selector
// package (an argument map with "kind" and "selector" keys) and otherwise
// defers to EvaluateFunc.
type Fake struct {
	mu sync.Mutex

	CurrentURL string

	// Elements maps a selector string to the number of elements it matches.
	Elements map[string]int

	// Values records the last value filled per selector.
	Values map[string]string

	// NavigateErr, when set, is returned for every navigation.
	NavigateErr error

	// EvaluateFunc handles Evaluate and WaitForFunction calls not answered
	// by the built-in count query.
	EvaluateFunc func(fn string, arg any) (any, error)

	// OnAction runs before every primitive and may block or fail it.
	OnAction func(ctx context.Context, op, selector string) error

	HTML           string
	ScreenshotData []byte
	Video          string

	calls  []Call
	events page.Dispatcher
}

// New returns a Fake at url with the given selectors present once each.
func New(url string, selectors ...string) *Fake {
	f := &Fake{
		CurrentURL:     url,
		Elements:       make(map[string]int),
		Values:         make(map[string]string),
		ScreenshotData: []byte("\x89PNG fake"),
	}
	for _, s := range selectors {
		f.Elements[s] = 1
	}
	return f
}

// SetElements sets the match count for selector.
func (f *Fake) SetElements(selector string, count int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Elements[selector] = count
}

// Calls returns a copy of the primitive calls seen so far.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Call, len(f.calls))
	copy(out, f.calls)
	return out
}

// CallCount returns how many times op was invoked.
func (f *Fake) CallCount(op string) int {
	n := 0
	for _, c := range f.Calls() {
		if c.Op == op {
			n++
		}
	}
	return n
}

// Emit delivers evt to subscribers as if the page produced it.
func (f *Fake) Emit(evt page.Event) {
	f.events.Dispatch(evt)
}

// Subscribers returns the live handler count for eventType.
func (f *Fake) Subscribers(eventType page.EventType) int {
	return f.events.Count(eventType)
}

func (f *Fake) record(ctx context.Context, c Call) error {
	f.mu.Lock()
	f.calls = append(f.calls, c)
	hook := f.OnAction
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if hook != nil {
		return hook(ctx, c.Op, c.Selector)
	}
	return nil
}

func (f *Fake) count(selector string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Elements[selector]
}

func (f *Fake) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	if err := f.record(ctx, Call{Op: "navigate", Value: url, Timeout: timeout}); err != nil {
		return err
	}
	if f.NavigateErr != nil {
		return f.NavigateErr
	}
	f.mu.Lock()
	f.CurrentURL = url
	f.mu.Unlock()
	return nil
}

func (f *Fake) Click(ctx context.Context, selector string, timeout time.Duration) error {
	if err := f.record(ctx, Call{Op: "click", Selector: selector, Timeout: timeout}); err != nil {
		return err
	}
	if f.count(selector) == 0 {
		return fmt.Errorf("%w: %s", ErrNoElement, selector)
	}
	return nil
}

func (f *Fake) Fill(ctx context.Context, selector, value string, timeout time.Duration) error {
	if err := f.record(ctx, Call{Op: "fill", Selector: selector, Value: value, Timeout: timeout}); err != nil {
		return err
	}
	if f.count(selector) == 0 {
		return fmt.Errorf("%w: %s", ErrNoElement, selector)
	}
	f.mu.Lock()
	f.Values[selector] = value
	f.mu.Unlock()
	return nil
}

func (f *Fake) WaitForSelector(ctx context.Context, selector string, timeout time.Duration) error {
	if err := f.record(ctx, Call{Op: "wait_selector", Selector: selector, Timeout: timeout}); err != nil {
		return err
	}
	if f.count(selector) == 0 {
		return fmt.Errorf("%w: %s", ErrNoElement, selector)
	}
	return nil
}

func (f *Fake) WaitForFunction(ctx context.Context, fn string, arg any, timeout time.Duration) error {
	if err := f.record(ctx, Call{Op: "wait_function", Timeout: timeout}); err != nil {
		return err
	}
	result, err := f.evaluate(fn, arg)
	if err != nil {
		return err
	}
	if !truthy(result) {
		return fmt.Errorf("timeout %s exceeded waiting for function", timeout)
	}
	return nil
}

func (f *Fake) Evaluate(ctx context.Context, fn string, arg any) (any, error) {
	if err := f.record(ctx, Call{Op: "evaluate"}); err != nil {
		return nil, err
	}
	return f.evaluate(fn, arg)
}

func (f *Fake) evaluate(fn string, arg any) (any, error) {
	if m, ok := arg.(map[string]any); ok {
		if _, hasKind := m["kind"]; hasKind {
			if selector, ok := m["selector"].(string); ok {
				return float64(f.count(selector)), nil
			}
		}
	}
	if f.EvaluateFunc != nil {
		return f.EvaluateFunc(fn, arg)
	}
	return nil, nil
}

func (f *Fake) Screenshot(ctx context.Context, opts page.ScreenshotOptions) ([]byte, error) {
	if err := f.record(ctx, Call{Op: "screenshot"}); err != nil {
		return nil, err
	}
	return f.ScreenshotData, nil
}

func (f *Fake) Content(ctx context.Context) (string, error) {
	if err := f.record(ctx, Call{Op: "content"}); err != nil {
		return "", err
	}
	return f.HTML, nil
}

func (f *Fake) URL() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.CurrentURL
}

func (f *Fake) Subscribe(eventType page.EventType, handler page.EventHandler) (page.Unsubscribe, error) {
	return f.events.Add(eventType, handler), nil
}

// VideoPath reports Video when set.
func (f *Fake) VideoPath() (string, error) {
	if f.Video == "" {
		return "", errors.New("page is not being recorded")
	}
	return f.Video, nil
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		return t != ""
	default:
		return true
	}
}
