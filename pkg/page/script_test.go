package page

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/journeyforge/pkg/logging"
)

func TestDecodeEvent(t *testing.T) {
	evt, err := DecodeEvent(`{"type":"click","url":"https://example.com/","ts":1700000000000,` +
		`"target":{"tag":"button","id":"go","classes":["btn","primary"],"attributes":{"data-testid":"go-btn"},"text":"Go"}}`)
	require.NoError(t, err)

	assert.Equal(t, EventClick, evt.Type)
	assert.Equal(t, "https://example.com/", evt.URL)
	require.NotNil(t, evt.Target)
	assert.Equal(t, "button", evt.Target.Tag)
	assert.Equal(t, "go-btn", evt.Target.Attr("data-testid"))
	assert.Equal(t, []string{"btn", "primary"}, evt.Target.Classes)
	assert.Equal(t, time.UnixMilli(1700000000000), evt.Time())
}

func TestDecodeEvent_Errors(t *testing.T) {
	_, err := DecodeEvent("not json")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "invalid event payload")

	_, err = DecodeEvent(`{"type":"scroll"}`)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown event type")
}

func TestEventTime_PrefersGoTimestamp(t *testing.T) {
	now := time.Now()
	evt := Event{Timestamp: now, TimestampMs: 5}
	assert.Equal(t, now, evt.Time())
	assert.True(t, Event{}.Time().IsZero())
}

func TestElementDescriptorAttr_Nil(t *testing.T) {
	var d *ElementDescriptor
	assert.Equal(t, "", d.Attr("id"))
	assert.Equal(t, "", (&ElementDescriptor{}).Attr("id"))
}

func TestDispatcher(t *testing.T) {
	var d Dispatcher
	var clicks, inputs int

	unsubClick := d.Add(EventClick, func(Event) { clicks++ })
	d.Add(EventInput, func(Event) { inputs++ })
	assert.Equal(t, 1, d.Count(EventClick))

	d.Dispatch(Event{Type: EventClick})
	d.Dispatch(Event{Type: EventInput})
	assert.Equal(t, 1, clicks)
	assert.Equal(t, 1, inputs)

	unsubClick()
	unsubClick()
	assert.Equal(t, 0, d.Count(EventClick))

	d.Dispatch(Event{Type: EventClick})
	assert.Equal(t, 1, clicks)

	require.NoError(t, d.DispatchPayload(`{"type":"input","value":"x"}`))
	assert.Equal(t, 2, inputs)
	assert.Error(t, d.DispatchPayload(`{}`))
}

func TestDispatcher_ReceiveCountsUndecodablePayloads(t *testing.T) {
	var buf bytes.Buffer
	var d Dispatcher
	WithEventLogger(logging.NewWriterLogger("page", &buf))(&d)
	var inputs int
	d.Add(EventInput, func(Event) { inputs++ })

	d.Receive(`{"type":"input","value":"x"}`)
	d.Receive(`{}`)
	d.Receive(`not json`)

	assert.Equal(t, 1, inputs)
	assert.Equal(t, int64(2), d.Dropped())
	assert.Contains(t, buf.String(), "dropped capture event (2 so far)")

	var quiet Dispatcher
	quiet.Receive(`{}`)
	assert.Equal(t, int64(1), quiet.Dropped(), "no logger still counts")
}

func TestCaptureScript_UsesBinding(t *testing.T) {
	script := CaptureScript()
	assert.True(t, strings.Contains(script, "window."+BindingName+"("))
	assert.Contains(t, script, "pushState")
}

func TestBound(t *testing.T) {
	assert.Equal(t, 5*time.Second, Bound(context.Background(), 5*time.Second))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	got := Bound(ctx, 5*time.Second)
	assert.LessOrEqual(t, got, 100*time.Millisecond)
	assert.Greater(t, got, time.Duration(0))

	expired, cancel2 := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel2()
	assert.Equal(t, time.Millisecond, Bound(expired, time.Second))
}

func TestParseSelector(t *testing.T) {
	tests := []struct {
		in   string
		kind SelectorKind
		expr string
	}{
		{"#submit", SelectorCSS, "#submit"},
		{"xpath=/html[1]/body[1]", SelectorXPath, "/html[1]/body[1]"},
		{"text=Sign in", SelectorText, "Sign in"},
		{`text="Say \"hi\""`, SelectorText, `Say "hi"`},
	}
	for _, tt := range tests {
		kind, expr := ParseSelector(tt.in)
		assert.Equal(t, tt.kind, kind, tt.in)
		assert.Equal(t, tt.expr, expr, tt.in)
	}

	kind, expr := ParseSelector(TextSelector(`a "b"`))
	assert.Equal(t, SelectorText, kind)
	assert.Equal(t, `a "b"`, expr)
}
