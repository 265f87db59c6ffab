// Package page defines the browser capability surface journeys run against.
//
// A Controller is a thin, engine-neutral view of one browser page: load a
// URL, click, fill, wait, evaluate fixed page-side functions, capture
// screenshots and subscribe to user interaction events. The journey engine
// and the recorder only ever talk to a Controller; PlaywrightPage and RodPage
// adapt the two supported engines.
//
// Selectors use the Playwright dialect: plain CSS, "text=..." for exact text
// matches and "xpath=..." for XPath expressions. RodPage translates the
// prefixed forms itself.
package page

import (
	"context"
	"time"
)

// Controller is the set of page primitives the core depends on.
type Controller interface {
	// Navigate loads url and waits for the load event, bounded by timeout.
	Navigate(ctx context.Context, url string, timeout time.Duration) error

	// Click clicks the element matching selector, bounded by timeout.
	Click(ctx context.Context, selector string, timeout time.Duration) error

	// Fill clears the element matching selector and types value into it.
	Fill(ctx context.Context, selector, value string, timeout time.Duration) error

	// WaitForSelector waits until selector matches an attached element.
	WaitForSelector(ctx context.Context, selector string, timeout time.Duration) error

	// WaitForFunction evaluates fn(arg) in the page until it returns a truthy value.
	WaitForFunction(ctx context.Context, fn string, arg any, timeout time.Duration) error

	// Evaluate runs fn(arg) in the page and returns its JSON-decoded result.
	// fn is always a fixed function literal owned by this module.
	Evaluate(ctx context.Context, fn string, arg any) (any, error)

	// Screenshot captures the viewport, or the whole page when FullPage is set.
	Screenshot(ctx context.Context, opts ScreenshotOptions) ([]byte, error)

	// Content returns the serialized DOM of the current document.
	Content(ctx context.Context) (string, error)

	// URL returns the URL of the current document.
	URL() string

	// Subscribe registers handler for events of the given type. The returned
	// Unsubscribe detaches it; calling it more than once is a no-op.
	Subscribe(eventType EventType, handler EventHandler) (Unsubscribe, error)
}

// VideoSource is implemented by controllers whose page is being recorded to video.
type VideoSource interface {
	VideoPath() (string, error)
}

// ScreenshotOptions configures a capture.
type ScreenshotOptions struct {
	FullPage bool
}

// EventType names a category of user interaction observed in the page.
type EventType string

const (
	EventClick      EventType = "click"
	EventInput      EventType = "input"
	EventNavigation EventType = "navigation"
)

// EventTypes lists every event type a recorder subscribes to.
var EventTypes = []EventType{EventClick, EventInput, EventNavigation}

// Event is one observed interaction.
type Event struct {
	Type      EventType          `json:"type"`
	Target    *ElementDescriptor `json:"target,omitempty"`
	Value     string             `json:"value,omitempty"`
	URL       string             `json:"url,omitempty"`
	Timestamp time.Time          `json:"-"`

	// TimestampMs is the page clock at capture time in Unix milliseconds.
	TimestampMs int64 `json:"ts,omitempty"`
}

// Time returns the event time, preferring the page-side timestamp.
func (e Event) Time() time.Time {
	if !e.Timestamp.IsZero() {
		return e.Timestamp
	}
	if e.TimestampMs > 0 {
		return time.UnixMilli(e.TimestampMs)
	}
	return time.Time{}
}

// EventHandler receives events. Handlers may be called from engine goroutines.
type EventHandler func(Event)

// Unsubscribe releases a subscription.
type Unsubscribe func()

// ElementDescriptor is a serializable snapshot of the attributes of an
// element that selector generation needs. It never holds a live handle.
type ElementDescriptor struct {
	Tag        string            `json:"tag"`
	ID         string            `json:"id,omitempty"`
	Classes    []string          `json:"classes,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
	Text       string            `json:"text,omitempty"`

	// CSSPath is a structural path from the document root using
	// tag:nth-of-type(n) segments joined by " > ".
	CSSPath string `json:"cssPath,omitempty"`

	// XPath is an absolute positional XPath to the element.
	XPath string `json:"xpath,omitempty"`
}

// Attr returns the named attribute value, or "".
func (d *ElementDescriptor) Attr(name string) string {
	if d == nil || d.Attributes == nil {
		return ""
	}
	return d.Attributes[name]
}
