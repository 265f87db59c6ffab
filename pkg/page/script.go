package page

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/entrhq/journeyforge/pkg/logging"
)

// BindingName is the page-global function the capture script reports through.
const BindingName = "__journeyforgeEmit"

// describeHelpers builds the ElementDescriptor of an element. It is shared
// by the capture script and the describe function.
const describeHelpers = `
  const KEEP = ['data-testid', 'data-test', 'data-cy', 'data-qa', 'aria-label',
    'name', 'role', 'type', 'placeholder', 'href', 'title'];

  const cssPath = (el) => {
    const parts = [];
    while (el && el.nodeType === 1) {
      const tag = el.tagName.toLowerCase();
      if (tag === 'html') { parts.unshift('html'); break; }
      let idx = 1;
      let sib = el.previousElementSibling;
      while (sib) { if (sib.tagName === el.tagName) idx++; sib = sib.previousElementSibling; }
      parts.unshift(tag + ':nth-of-type(' + idx + ')');
      el = el.parentElement;
    }
    return parts.join(' > ');
  };

  const xpath = (el) => {
    const parts = [];
    while (el && el.nodeType === 1) {
      let idx = 1;
      let sib = el.previousElementSibling;
      while (sib) { if (sib.tagName === el.tagName) idx++; sib = sib.previousElementSibling; }
      parts.unshift(el.tagName.toLowerCase() + '[' + idx + ']');
      el = el.parentElement;
    }
    return '/' + parts.join('/');
  };

  const describe = (el) => {
    if (!el || el.nodeType !== 1) return null;
    const attrs = {};
    for (const name of KEEP) {
      const v = el.getAttribute(name);
      if (v !== null && v !== '') attrs[name] = v;
    }
    const text = (el.innerText || el.textContent || '').trim().replace(/\s+/g, ' ').slice(0, 80);
    return {
      tag: el.tagName.toLowerCase(),
      id: el.id || '',
      classes: Array.from(el.classList || []),
      attributes: attrs,
      text: text,
      cssPath: cssPath(el),
      xpath: xpath(el),
    };
  };
`

// captureScript is installed on every document. It reports clicks, input
// changes and navigations as JSON strings through the binding.
const captureScript = `(() => {
  if (window.__journeyforgeHooked) return;
  window.__journeyforgeHooked = true;

` + describeHelpers + `
  const emit = (evt) => {
    try {
      evt.ts = Date.now();
      window.` + BindingName + `(JSON.stringify(evt));
    } catch (e) {}
  };

  document.addEventListener('click', (ev) => {
    emit({ type: 'click', target: describe(ev.target), url: location.href });
  }, true);

  const onInput = (ev) => {
    const t = ev.target;
    if (!t || !('value' in t)) return;
    emit({ type: 'input', target: describe(t), value: String(t.value), url: location.href });
  };
  document.addEventListener('input', onInput, true);
  document.addEventListener('change', onInput, true);

  const nav = () => emit({ type: 'navigation', url: location.href });
  const wrap = (name) => {
    const orig = history[name];
    history[name] = function () {
      const r = orig.apply(this, arguments);
      nav();
      return r;
    };
  };
  wrap('pushState');
  wrap('replaceState');
  window.addEventListener('popstate', nav);
  if (document.readyState === 'loading') {
    document.addEventListener('DOMContentLoaded', nav);
  } else {
    nav();
  }
})()`

// describeScript describes the first element matching {kind, expr}, or
// returns null.
const describeScript = `(arg) => {` + describeHelpers + `
  const norm = (el) => (el.innerText || el.textContent || '').trim().replace(/\s+/g, ' ');
  let el = null;
  try {
    if (arg.kind === 'xpath') {
      el = document.evaluate(arg.expr, document, null,
        XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue;
    } else if (arg.kind === 'text') {
      for (const cand of document.querySelectorAll('body *')) {
        if (norm(cand) !== arg.expr) continue;
        if (Array.from(cand.children).some((c) => norm(c) === arg.expr)) continue;
        el = cand;
        break;
      }
    } else {
      el = document.querySelector(arg.expr);
    }
  } catch (e) {
    return null;
  }
  return describe(el);
}`

// Describe returns the descriptor of the first element matching selector.
func Describe(ctx context.Context, p Controller, selector string) (*ElementDescriptor, error) {
	kind, expr := ParseSelector(selector)
	result, err := p.Evaluate(ctx, describeScript, map[string]any{
		"kind": string(kind),
		"expr": expr,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to describe %q: %w", selector, err)
	}
	if result == nil {
		return nil, fmt.Errorf("no element matches %q", selector)
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to describe %q: %w", selector, err)
	}
	var desc ElementDescriptor
	if err := json.Unmarshal(raw, &desc); err != nil {
		return nil, fmt.Errorf("unexpected describe result for %q: %w", selector, err)
	}
	if desc.Tag == "" {
		return nil, fmt.Errorf("no element matches %q", selector)
	}
	return &desc, nil
}

// CaptureScript returns the interaction capture script.
func CaptureScript() string {
	return captureScript
}

// DecodeEvent parses a payload emitted by the capture script.
func DecodeEvent(payload string) (Event, error) {
	var evt Event
	if err := json.Unmarshal([]byte(payload), &evt); err != nil {
		return Event{}, fmt.Errorf("invalid event payload: %w", err)
	}
	evt.Type = EventType(strings.ToLower(string(evt.Type)))
	switch evt.Type {
	case EventClick, EventInput, EventNavigation:
	default:
		return Event{}, fmt.Errorf("unknown event type %q", evt.Type)
	}
	return evt, nil
}

// Dispatcher fans events out to subscribers by type. Engine adapters embed it.
type Dispatcher struct {
	mu       sync.RWMutex
	nextID   int
	handlers map[EventType]map[int]EventHandler

	logger  *logging.Logger
	dropped atomic.Int64
}

// AdapterOption configures an engine adapter.
type AdapterOption func(*Dispatcher)

// WithEventLogger sets the logger that reports capture payloads which could
// not be decoded.
func WithEventLogger(l *logging.Logger) AdapterOption {
	return func(d *Dispatcher) { d.logger = l }
}

// Add registers handler and returns an idempotent Unsubscribe.
func (d *Dispatcher) Add(eventType EventType, handler EventHandler) Unsubscribe {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.handlers == nil {
		d.handlers = make(map[EventType]map[int]EventHandler)
	}
	if d.handlers[eventType] == nil {
		d.handlers[eventType] = make(map[int]EventHandler)
	}
	d.nextID++
	id := d.nextID
	d.handlers[eventType][id] = handler

	var once sync.Once
	return func() {
		once.Do(func() {
			d.mu.Lock()
			defer d.mu.Unlock()
			delete(d.handlers[eventType], id)
		})
	}
}

// Count returns the number of live handlers for eventType.
func (d *Dispatcher) Count(eventType EventType) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.handlers[eventType])
}

// Dispatch delivers evt to every handler registered for its type.
func (d *Dispatcher) Dispatch(evt Event) {
	d.mu.RLock()
	handlers := make([]EventHandler, 0, len(d.handlers[evt.Type]))
	for _, h := range d.handlers[evt.Type] {
		handlers = append(handlers, h)
	}
	d.mu.RUnlock()

	for _, h := range handlers {
		h(evt)
	}
}

// Receive dispatches a payload from the page binding. Payloads that fail to
// decode are counted and logged.
func (d *Dispatcher) Receive(payload string) {
	if err := d.DispatchPayload(payload); err != nil {
		n := d.dropped.Add(1)
		if d.logger != nil {
			d.logger.Warnf("dropped capture event (%d so far): %v", n, err)
		}
	}
}

// Dropped returns the number of payloads Receive could not decode.
func (d *Dispatcher) Dropped() int64 {
	return d.dropped.Load()
}

// DispatchPayload decodes a capture-script payload and dispatches it.
func (d *Dispatcher) DispatchPayload(payload string) error {
	evt, err := DecodeEvent(payload)
	if err != nil {
		return err
	}
	d.Dispatch(evt)
	return nil
}
