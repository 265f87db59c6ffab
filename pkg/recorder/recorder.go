package recorder

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/gobwas/glob"

	"github.com/entrhq/journeyforge/pkg/journey"
	"github.com/entrhq/journeyforge/pkg/logging"
	"github.com/entrhq/journeyforge/pkg/page"
	"github.com/entrhq/journeyforge/pkg/selector"
)

const (
	// DefaultMinInteractionDelay debounces duplicate events from one user action.
	DefaultMinInteractionDelay = 100 * time.Millisecond

	// maxFallbacks is how many extra unique selectors a recorded step keeps.
	maxFallbacks = 2

	resolveTimeout = 5 * time.Second
)

var (
	ErrAlreadyRecording = errors.New("recording already in progress")
	ErrNotRecording     = errors.New("no recording in progress")
	ErrPageInUse        = errors.New("page is already being recorded by another session")
	ErrSessionNotFound  = errors.New("recording session not found")
)

// Options configures one recording.
type Options struct {
	// JourneyName names the resulting definition. Empty means a name derived
	// from the session id.
	JourneyName string
	Description string

	// MinInteractionDelay drops clicks and new inputs that follow the
	// previous recorded interaction too closely. Zero means the default;
	// negative disables debouncing.
	MinInteractionDelay time.Duration

	// ExcludeActions are glob patterns matched against the action name
	// ("click") and against "action:selector" ("click:#cookie-*").
	ExcludeActions []string

	// IgnoreURLs are glob patterns; matching navigations are dropped.
	IgnoreURLs []string

	// SkipInitialNavigation disables the leading navigate step to the URL
	// the page is on when recording starts.
	SkipInitialNavigation bool
}

// Session is a point-in-time view of a recorder.
type Session struct {
	ID         string    `json:"sessionId"`
	Recording  bool      `json:"isRecording"`
	Paused     bool      `json:"paused"`
	Steps      int       `json:"steps"`
	CurrentURL string    `json:"currentUrl"`
	StartTime  time.Time `json:"startTime"`
}

// StopResolverFunc returns the resolver used to re-check selectors when a
// recording stops.
type StopResolverFunc func(ctx context.Context, p page.Controller) (selector.Resolver, error)

// Option configures a Recorder.
type Option func(*Recorder)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(r *Recorder) { r.logger = l }
}

// WithClock sets the time source for events without a page timestamp.
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) { r.now = now }
}

// WithStopResolver replaces the DOM snapshot resolver used at stop.
func WithStopResolver(fn StopResolverFunc) Option {
	return func(r *Recorder) { r.stopResolver = fn }
}

func snapshotResolver(ctx context.Context, p page.Controller) (selector.Resolver, error) {
	return selector.SnapshotResolver(ctx, p)
}

// captured is a recorded step along with the element it was recorded on.
type captured struct {
	step   journey.Step
	target *page.ElementDescriptor
}

// Recorder turns interaction events from one page into journey steps.
// Engine callbacks only enqueue events; a single worker goroutine filters
// them and resolves selectors in arrival order.
type Recorder struct {
	id           string
	suggester    *selector.Suggester
	logger       *logging.Logger
	now          func() time.Time
	stopResolver StopResolverFunc

	mu           sync.Mutex
	page         page.Controller
	opts         Options
	excludes     []glob.Glob
	ignoreURLs   []glob.Glob
	recording    bool
	paused       bool
	startTime    time.Time
	startURL     string
	currentURL   string
	steps        []captured
	seq          int
	lastRecorded time.Time
	unsubs       []page.Unsubscribe

	pending []page.Event
	wake    chan struct{}
	closing bool
	done    chan struct{}
	cancel  context.CancelFunc
}

// New returns an idle recorder with the given session id.
func New(id string, opts ...Option) *Recorder {
	r := &Recorder{
		id:           id,
		suggester:    selector.NewSuggester(),
		logger:       logging.Discard(),
		now:          time.Now,
		stopResolver: snapshotResolver,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ID returns the session id.
func (r *Recorder) ID() string {
	return r.id
}

// Start subscribes to p's interaction events and begins capturing. Every
// subscription acquired is released by Stop or Close, and by Start itself
// when a later subscription fails.
func (r *Recorder) Start(ctx context.Context, p page.Controller, opts Options) (Session, error) {
	excludes, err := compileGlobs(opts.ExcludeActions)
	if err != nil {
		return Session{}, fmt.Errorf("invalid exclude pattern: %w", err)
	}
	ignore, err := compileGlobs(opts.IgnoreURLs)
	if err != nil {
		return Session{}, fmt.Errorf("invalid ignore url pattern: %w", err)
	}
	if opts.MinInteractionDelay == 0 {
		opts.MinInteractionDelay = DefaultMinInteractionDelay
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.recording {
		return Session{}, ErrAlreadyRecording
	}

	unsubs := make([]page.Unsubscribe, 0, len(page.EventTypes))
	for _, et := range page.EventTypes {
		unsub, err := p.Subscribe(et, r.enqueue)
		if err != nil {
			for _, u := range unsubs {
				u()
			}
			return Session{}, fmt.Errorf("failed to subscribe to %s events: %w", et, err)
		}
		unsubs = append(unsubs, unsub)
	}

	workerCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r.page = p
	r.opts = opts
	r.excludes = excludes
	r.ignoreURLs = ignore
	r.recording = true
	r.paused = false
	r.startTime = r.now()
	r.startURL = p.URL()
	r.currentURL = r.startURL
	r.steps = nil
	r.seq = 0
	r.lastRecorded = time.Time{}
	r.unsubs = unsubs
	r.pending = nil
	r.wake = make(chan struct{}, 1)
	r.closing = false
	r.done = make(chan struct{})
	r.cancel = cancel

	if !opts.SkipInitialNavigation && r.startURL != "" && r.startURL != "about:blank" &&
		!r.urlIgnored(r.startURL) && !r.excluded(journey.ActionNavigate, "") {
		r.appendLocked(journey.Step{Action: journey.ActionNavigate, Value: journey.Value(r.startURL)}, nil)
	}

	go r.work(workerCtx, r.wake, r.done)
	r.logger.Infof("recording %s started on %s", r.id, r.startURL)
	return r.statusLocked(), nil
}

// Pause keeps listeners attached but discards events until Resume.
func (r *Recorder) Pause() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.recording {
		return ErrNotRecording
	}
	r.paused = true
	return nil
}

// Resume continues capturing after Pause.
func (r *Recorder) Resume() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.recording {
		return ErrNotRecording
	}
	r.paused = false
	return nil
}

// IsRecording reports whether a recording is in progress.
func (r *Recorder) IsRecording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recording
}

// Status returns the current session state.
func (r *Recorder) Status() Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.statusLocked()
}

func (r *Recorder) statusLocked() Session {
	return Session{
		ID:         r.id,
		Recording:  r.recording,
		Paused:     r.paused,
		Steps:      len(r.steps),
		CurrentURL: r.currentURL,
		StartTime:  r.startTime,
	}
}

// Stop detaches listeners, drains queued events and returns the
// post-processed definition.
func (r *Recorder) Stop(ctx context.Context) (*journey.Definition, error) {
	if !r.shutdown() {
		return nil, ErrNotRecording
	}

	r.mu.Lock()
	steps := r.steps
	p := r.page
	name := r.opts.JourneyName
	desc := r.opts.Description
	started := r.startTime
	startURL := r.startURL
	r.mu.Unlock()

	steps = r.postProcess(ctx, p, steps)

	if name == "" {
		name = "recording-" + shortID(r.id)
	}
	if desc == "" {
		desc = "Recorded from " + startURL
		if startURL == "" || startURL == "about:blank" {
			desc = "Recorded journey"
		}
	}
	out := make([]journey.Step, len(steps))
	for i, c := range steps {
		out[i] = c.step
	}
	def := &journey.Definition{
		Name:         name,
		Description:  desc,
		Steps:        out,
		Created:      started,
		Modified:     r.now(),
		Source:       journey.SourceRecorded,
		RecordedFrom: startURL,
	}
	r.logger.Infof("recording %s stopped: %d steps", r.id, len(out))
	return def, nil
}

// Close abandons an in-progress recording, releasing its listeners and
// worker. It is safe to call on an idle recorder.
func (r *Recorder) Close() {
	if r.shutdown() {
		r.logger.Debugf("recording %s discarded", r.id)
	}
}

// shutdown ends capture and waits for the worker to drain. It reports
// whether a recording was in progress.
func (r *Recorder) shutdown() bool {
	r.mu.Lock()
	if !r.recording {
		r.mu.Unlock()
		return false
	}
	r.recording = false
	r.paused = false
	unsubs := r.unsubs
	r.unsubs = nil
	r.closing = true
	done := r.done
	cancel := r.cancel
	r.signalLocked()
	r.mu.Unlock()

	for _, u := range unsubs {
		u()
	}
	<-done
	cancel()
	return true
}

// enqueue is the event handler installed on the page.
func (r *Recorder) enqueue(evt page.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.recording || r.closing || r.paused {
		return
	}
	if evt.Time().IsZero() {
		evt.Timestamp = r.now()
	}
	r.pending = append(r.pending, evt)
	r.signalLocked()
}

func (r *Recorder) signalLocked() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

func (r *Recorder) work(ctx context.Context, wake <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	for range wake {
		for {
			r.mu.Lock()
			if len(r.pending) == 0 {
				closing := r.closing
				r.mu.Unlock()
				if closing {
					return
				}
				break
			}
			evt := r.pending[0]
			r.pending = r.pending[1:]
			r.mu.Unlock()

			r.handle(ctx, evt)
		}
	}
}

func (r *Recorder) handle(ctx context.Context, evt page.Event) {
	switch evt.Type {
	case page.EventNavigation:
		r.handleNavigation(evt)
	case page.EventClick:
		r.handleInteraction(ctx, journey.ActionClick, evt)
	case page.EventInput:
		r.handleInteraction(ctx, journey.ActionType, evt)
	default:
		r.logger.Debugf("recording %s: ignoring %s event", r.id, evt.Type)
	}
}

func (r *Recorder) handleNavigation(evt page.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if evt.URL == "" || r.urlIgnored(evt.URL) || r.excluded(journey.ActionNavigate, "") {
		return
	}
	r.currentURL = evt.URL
	r.appendLocked(journey.Step{Action: journey.ActionNavigate, Value: journey.Value(evt.URL)}, nil)
}

func (r *Recorder) handleInteraction(ctx context.Context, action journey.Action, evt page.Event) {
	if evt.Target == nil {
		return
	}
	at := evt.Time()

	r.mu.Lock()
	if action == journey.ActionType && r.coalesceLocked(evt) {
		r.mu.Unlock()
		return
	}
	if r.excluded(action, "") || r.debouncedLocked(at) {
		r.mu.Unlock()
		return
	}
	p := r.page
	r.mu.Unlock()

	resolveCtx, cancel := context.WithTimeout(ctx, resolveTimeout)
	defer cancel()
	sel, fallbacks, unstable, ok := r.pickSelector(resolveCtx, p, evt.Target)
	if !ok {
		r.logger.Debugf("recording %s: no selector for %s on <%s>", r.id, action, evt.Target.Tag)
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.excluded(action, sel) {
		return
	}
	step := journey.Step{
		Action:            action,
		Selector:          sel,
		FallbackSelectors: fallbacks,
		SelectorUnstable:  unstable,
	}
	if action == journey.ActionType {
		step.Value = journey.Value(evt.Value)
	}
	r.lastRecorded = at
	r.appendLocked(step, evt.Target)
}

// coalesceLocked folds an input event into the last step when it is a type
// step on the same element.
func (r *Recorder) coalesceLocked(evt page.Event) bool {
	if len(r.steps) == 0 {
		return false
	}
	last := &r.steps[len(r.steps)-1]
	if last.step.Action != journey.ActionType || !sameElement(last.target, evt.Target) {
		return false
	}
	last.step.Value = journey.Value(evt.Value)
	last.step.Description = describe(last.step)
	return true
}

func (r *Recorder) debouncedLocked(at time.Time) bool {
	delay := r.opts.MinInteractionDelay
	if delay < 0 || r.lastRecorded.IsZero() {
		return false
	}
	return at.Sub(r.lastRecorded) < delay
}

// pickSelector chooses the first unique candidate in priority order. When
// none is unique the highest-priority candidate is used and flagged.
func (r *Recorder) pickSelector(ctx context.Context, p page.Controller, target *page.ElementDescriptor) (string, []string, bool, bool) {
	best, fallbacks, ok, err := r.suggester.Best(ctx, selector.NewPageResolver(p), target, maxFallbacks)
	if err != nil {
		r.logger.Warnf("recording %s: selector resolution failed: %v", r.id, err)
	}
	if err == nil && ok {
		return best.Selector, selectorStrings(fallbacks), false, true
	}
	candidates := selector.Candidates(target)
	if len(candidates) == 0 {
		return "", nil, false, false
	}
	return candidates[0].Selector, nil, true, true
}

func (r *Recorder) appendLocked(step journey.Step, target *page.ElementDescriptor) {
	r.seq++
	step.ID = "step-" + strconv.Itoa(r.seq)
	step.Description = describe(step)
	r.steps = append(r.steps, captured{step: step, target: target})
}

func (r *Recorder) excluded(action journey.Action, sel string) bool {
	for _, g := range r.excludes {
		if sel == "" {
			if g.Match(string(action)) {
				return true
			}
			continue
		}
		if g.Match(string(action) + ":" + sel) {
			return true
		}
	}
	return false
}

func (r *Recorder) urlIgnored(u string) bool {
	for _, g := range r.ignoreURLs {
		if g.Match(u) {
			return true
		}
	}
	return false
}

func describe(step journey.Step) string {
	switch step.Action {
	case journey.ActionNavigate:
		return "Navigate to " + step.ValueString()
	case journey.ActionClick:
		return "Click on " + step.Selector
	case journey.ActionType:
		if step.ValueString() == "" {
			return "Clear " + step.Selector
		}
		return fmt.Sprintf("Type '%s' into %s", step.ValueString(), step.Selector)
	default:
		return string(step.Action)
	}
}

func sameElement(a, b *page.ElementDescriptor) bool {
	if a == nil || b == nil {
		return false
	}
	if a.XPath != "" || b.XPath != "" {
		return a.XPath == b.XPath
	}
	return a.CSSPath == b.CSSPath && a.ID == b.ID && a.Tag == b.Tag
}

func selectorStrings(in []selector.Suggestion) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = s.Selector
	}
	return out
}

func compileGlobs(patterns []string) ([]glob.Glob, error) {
	out := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("%q: %w", p, err)
		}
		out = append(out, g)
	}
	return out, nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
