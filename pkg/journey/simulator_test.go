package journey

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/journeyforge/pkg/page"
	"github.com/entrhq/journeyforge/pkg/page/pagetest"
	"github.com/entrhq/journeyforge/pkg/recording"
)

func noDelay(context.Context, time.Duration) error { return nil }

func newTestSimulator(t *testing.T, p page.Controller, opts ...Option) *Simulator {
	t.Helper()
	exec := NewStepExecutor(WithScreenshotDir(t.TempDir()))
	base := []Option{WithExecutor(exec), WithDelay(noDelay)}
	return NewSimulator(p, append(base, opts...)...)
}

func TestRunJourney_LoginScenario(t *testing.T) {
	fake := pagetest.New("about:blank", "#username")
	sim := newTestSimulator(t, fake)

	res, err := sim.RunJourney(context.Background(), Options{
		Name: "login",
		Steps: []Step{
			{ID: "nav", Action: ActionNavigate, Value: Value("/login")},
			{ID: "user", Action: ActionType, Selector: "#username", Value: Value("alice")},
			{ID: "submit", Action: ActionClick, Selector: "#submit", OnError: OnErrorFail},
		},
	})

	require.Error(t, err)
	var abort *AbortError
	require.ErrorAs(t, err, &abort)
	assert.Equal(t, "submit", abort.StepID)
	assert.True(t, errors.Is(err, ErrElementNotInteractable))

	require.NotNil(t, res)
	assert.Equal(t, 2, res.CompletedSteps)
	assert.Equal(t, 3, res.TotalSteps)
	assert.False(t, res.Success)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "submit", res.Errors[0].StepID)
	assert.Equal(t, 2, res.Errors[0].StepIndex)
	assert.Equal(t, KindElementNotInteractable, res.Errors[0].Kind)
	assert.NotEmpty(t, res.Errors[0].Screenshot, "best-effort error screenshot")
	assert.Equal(t, "alice", fake.Values["#username"])
	assert.NotEmpty(t, res.JourneyID)
	assert.False(t, sim.IsRunning())
}

func TestRunJourney_ContinueReachesLastStep(t *testing.T) {
	fake := pagetest.New("about:blank", "#ok")
	sim := newTestSimulator(t, fake)

	steps := []Step{
		{ID: "a", Action: ActionClick, Selector: "#missing-1", OnError: OnErrorContinue},
		{ID: "b", Action: ActionClick, Selector: "#ok", OnError: OnErrorContinue},
		{ID: "c", Action: ActionClick, Selector: "#missing-2", OnError: OnErrorContinue},
		{ID: "d", Action: ActionClick, Selector: "#ok", OnError: OnErrorContinue},
	}
	res, err := sim.RunJourney(context.Background(), Options{Name: "tolerant", Steps: steps})

	require.NoError(t, err)
	assert.Equal(t, res.TotalSteps, res.CompletedSteps)
	assert.False(t, res.Success)
	require.Len(t, res.Errors, 2)
	assert.Equal(t, "a", res.Errors[0].StepID)
	assert.Equal(t, "c", res.Errors[1].StepID)
	assert.Len(t, res.Steps, 4)
}

func TestRunJourney_ContinueWithoutFailuresSucceeds(t *testing.T) {
	fake := pagetest.New("about:blank", "#ok")
	sim := newTestSimulator(t, fake)

	res, err := sim.RunJourney(context.Background(), Options{Steps: []Step{
		{ID: "a", Action: ActionClick, Selector: "#ok", OnError: OnErrorContinue},
	}})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Empty(t, res.Errors)
}

func TestRunJourney_FailAbortsAtFailingIndex(t *testing.T) {
	for _, policy := range []ErrorPolicy{"", OnErrorFail} {
		t.Run(string(policy), func(t *testing.T) {
			fake := pagetest.New("about:blank", "#ok")
			sim := newTestSimulator(t, fake)

			res, err := sim.RunJourney(context.Background(), Options{Steps: []Step{
				{ID: "one", Action: ActionClick, Selector: "#ok"},
				{ID: "two", Action: ActionClick, Selector: "#gone", OnError: policy},
				{ID: "three", Action: ActionClick, Selector: "#ok"},
			}})

			require.Error(t, err)
			assert.Equal(t, 1, res.CompletedSteps)
			assert.Equal(t, 3, res.TotalSteps)
			assert.Len(t, res.Steps, 2, "step three is never attempted")
			assert.Equal(t, 2, fake.CallCount("click"))
		})
	}
}

func TestRunJourney_RetryAttemptsNPlusOne(t *testing.T) {
	fake := pagetest.New("about:blank")
	var delays int32
	sim := newTestSimulator(t, fake, WithDelay(func(_ context.Context, d time.Duration) error {
		atomic.AddInt32(&delays, 1)
		assert.Equal(t, DefaultRetryDelay, d)
		return nil
	}))

	res, err := sim.RunJourney(context.Background(), Options{Steps: []Step{
		{ID: "flaky", Action: ActionClick, Selector: "#never", OnError: OnErrorRetry, RetryCount: 3},
		{ID: "after", Action: ActionClick, Selector: "#never"},
	}})

	require.Error(t, err)
	assert.Equal(t, 4, fake.CallCount("click"))
	assert.Equal(t, int32(3), atomic.LoadInt32(&delays))
	assert.Equal(t, 0, res.CompletedSteps)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, 4, res.Errors[0].Attempts)
	assert.Equal(t, 4, res.Steps[0].Attempts)
}

func TestRunJourney_RetryRecoversWithoutError(t *testing.T) {
	fake := pagetest.New("about:blank")
	var clicks int32
	fake.OnAction = func(_ context.Context, op, sel string) error {
		if op == "click" && atomic.AddInt32(&clicks, 1) == 2 {
			fake.SetElements(sel, 1)
		}
		return nil
	}
	sim := newTestSimulator(t, fake)

	res, err := sim.RunJourney(context.Background(), Options{Steps: []Step{
		{ID: "late", Action: ActionClick, Selector: "#late", OnError: OnErrorRetry, RetryCount: 5},
	}})

	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 1, res.CompletedSteps)
	assert.Equal(t, 2, res.Steps[0].Attempts)
}

func TestRunJourney_ConcurrentCallRejected(t *testing.T) {
	fake := pagetest.New("about:blank", "#ok")
	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	fake.OnAction = func(ctx context.Context, op, _ string) error {
		if op == "click" {
			once.Do(func() { close(entered) })
			select {
			case <-release:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	}
	sim := newTestSimulator(t, fake)
	opts := Options{Name: "first", Steps: []Step{{ID: "c", Action: ActionClick, Selector: "#ok"}}}

	type outcome struct {
		res *Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := sim.RunJourney(context.Background(), opts)
		done <- outcome{res, err}
	}()

	<-entered
	assert.True(t, sim.IsRunning())

	res, err := sim.RunJourney(context.Background(), Options{Name: "second", Steps: opts.Steps})
	assert.Nil(t, res)
	assert.ErrorIs(t, err, ErrConcurrentJourney)
	assert.True(t, sim.IsRunning(), "first run unaffected")

	close(release)
	first := <-done
	require.NoError(t, first.err)
	assert.True(t, first.res.Success)
	assert.Equal(t, 1, first.res.CompletedSteps)
	assert.False(t, sim.IsRunning())
}

func TestRunJourney_MaxDurationBetweenSteps(t *testing.T) {
	fake := pagetest.New("about:blank", "#ok")
	now := time.Now()
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	fake.OnAction = func(context.Context, string, string) error {
		mu.Lock()
		now = now.Add(2 * time.Second)
		mu.Unlock()
		return nil
	}
	sim := newTestSimulator(t, fake, WithClock(clock))

	res, err := sim.RunJourney(context.Background(), Options{
		MaxDuration: time.Minute,
		Steps: []Step{
			{ID: "a", Action: ActionClick, Selector: "#ok"},
			{ID: "b", Action: ActionClick, Selector: "#ok"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.CompletedSteps)

	res, err = sim.RunJourney(context.Background(), Options{
		MaxDuration: time.Second,
		Steps: []Step{
			{ID: "a", Action: ActionClick, Selector: "#ok"},
			{ID: "b", Action: ActionClick, Selector: "#ok"},
		},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrJourneyTimeout)
	assert.Equal(t, 1, res.CompletedSteps)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "b", res.Errors[0].StepID)
	assert.Equal(t, KindJourneyTimeout, res.Errors[0].Kind)
}

func TestRunJourney_MaxDurationBoundsLongStep(t *testing.T) {
	fake := pagetest.New("about:blank")
	sim := newTestSimulator(t, fake)

	started := time.Now()
	res, err := sim.RunJourney(context.Background(), Options{
		MaxDuration: 50 * time.Millisecond,
		Steps: []Step{
			{ID: "long-wait", Action: ActionWait, Timeout: 10000},
			{ID: "next", Action: ActionWait, Timeout: 10000},
		},
	})

	assert.Less(t, time.Since(started), 5*time.Second)
	require.Error(t, err)
	// The bounded wait either finishes just before the deadline, aborting
	// ahead of "next", or is cut off by it.
	assert.ErrorIs(t, err, ErrJourneyTimeout)
	assert.LessOrEqual(t, res.CompletedSteps, 1)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, KindJourneyTimeout, res.Errors[0].Kind)
}

func TestRunJourney_StopJourney(t *testing.T) {
	fake := pagetest.New("about:blank", "#ok")
	sim := newTestSimulator(t, fake)
	assert.False(t, sim.StopJourney())

	fake.OnAction = func(context.Context, string, string) error {
		sim.StopJourney()
		return nil
	}
	res, err := sim.RunJourney(context.Background(), Options{Steps: []Step{
		{ID: "a", Action: ActionClick, Selector: "#ok"},
		{ID: "b", Action: ActionClick, Selector: "#ok"},
	}})

	require.ErrorIs(t, err, ErrJourneyStopped)
	assert.Equal(t, 1, res.CompletedSteps, "the in-flight step finishes")
	assert.Equal(t, KindJourneyStopped, res.Errors[0].Kind)
}

func TestRunJourney_StopAtStartIsHonored(t *testing.T) {
	fake := pagetest.New("about:blank", "#ok")
	var sim *Simulator
	var once sync.Once
	clock := func() time.Time {
		once.Do(func() { assert.True(t, sim.StopJourney()) })
		return time.Now()
	}
	sim = newTestSimulator(t, fake, WithClock(clock))

	res, err := sim.RunJourney(context.Background(), Options{Steps: []Step{
		{ID: "a", Action: ActionClick, Selector: "#ok"},
	}})
	require.ErrorIs(t, err, ErrJourneyStopped)
	assert.Zero(t, res.CompletedSteps)
	assert.Empty(t, fake.Calls())
}

func TestRunJourney_LateStopDoesNotCarryOver(t *testing.T) {
	fake := pagetest.New("about:blank", "#ok")
	sim := newTestSimulator(t, fake)
	steps := []Step{{ID: "a", Action: ActionClick, Selector: "#ok"}}

	_, err := sim.RunJourney(context.Background(), Options{
		Steps:          steps,
		OnStepComplete: func(Step, StepTiming) { sim.StopJourney() },
	})
	require.NoError(t, err, "a stop after the last step has nothing left to stop")

	res, err := sim.RunJourney(context.Background(), Options{Steps: steps})
	require.NoError(t, err)
	assert.Equal(t, 1, res.CompletedSteps)
}

func TestRunJourney_CallbacksScreenshotsAndMetrics(t *testing.T) {
	fake := pagetest.New("about:blank", "#ok")
	sim := newTestSimulator(t, fake)

	var completed []string
	var failed []string
	res, err := sim.RunJourney(context.Background(), Options{
		Name:    "shots",
		BaseURL: "https://shop.example.com/app/",
		Steps: []Step{
			{ID: "home", Action: ActionNavigate, Value: Value("cart")},
			{ID: "snap", Action: ActionScreenshot, Value: Value("cart-page.png")},
			{ID: "bad", Action: ActionClick, Selector: "#nope", OnError: OnErrorContinue},
		},
		OnStepComplete: func(step Step, timing StepTiming) {
			completed = append(completed, step.ID)
			assert.True(t, timing.Success)
		},
		OnError: func(e JourneyError) { failed = append(failed, e.StepID) },
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"home", "snap"}, completed)
	assert.Equal(t, []string{"bad"}, failed)
	assert.Equal(t, "https://shop.example.com/app/cart", fake.URL())
	require.Len(t, res.Screenshots, 1)
	assert.Contains(t, res.Screenshots[0], "shots")
	assert.Contains(t, res.Screenshots[0], "cart_page.png")

	m := res.PerformanceMetrics
	require.NotNil(t, m.SlowestStep)
	assert.Equal(t, res.Duration, m.TotalTime)
	assert.LessOrEqual(t, m.AverageStepTime, m.SlowestStep.Duration)
}

func TestRunJourney_StepsAreSnapshotted(t *testing.T) {
	fake := pagetest.New("about:blank", "#ok")
	steps := []Step{{ID: "a", Action: ActionClick, Selector: "#ok"}}
	fake.OnAction = func(context.Context, string, string) error {
		steps[0].Selector = "#changed"
		return nil
	}
	sim := newTestSimulator(t, fake)

	res, err := sim.RunJourney(context.Background(), Options{Steps: steps})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "#ok", fake.Calls()[0].Selector)
}

type fakeHandle struct {
	mu       sync.Mutex
	actions  []recording.Action
	errors   []recording.Error
	stops    int
	cleanups int
	stopErr  error
}

func (h *fakeHandle) SessionID() string { return "rec-1" }

func (h *fakeHandle) CaptureAction(a recording.Action) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.actions = append(h.actions, a)
	return nil
}

func (h *fakeHandle) CaptureError(e recording.Error) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.errors = append(h.errors, e)
	return nil
}

func (h *fakeHandle) Stop(context.Context) (*recording.Metadata, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stops++
	if h.stopErr != nil {
		return nil, h.stopErr
	}
	return &recording.Metadata{SessionID: "rec-1", Actions: len(h.actions), Errors: len(h.errors)}, nil
}

func (h *fakeHandle) Cleanup() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cleanups++
	return nil
}

type fakeSink struct {
	handle   *fakeHandle
	startErr error
	opts     recording.StartOptions
}

func (s *fakeSink) Start(_ context.Context, _ page.Controller, opts recording.StartOptions) (recording.Handle, error) {
	s.opts = opts
	if s.startErr != nil {
		return nil, s.startErr
	}
	return s.handle, nil
}

func TestRunJourney_Recording(t *testing.T) {
	fake := pagetest.New("about:blank", "#ok")
	sink := &fakeSink{handle: &fakeHandle{}}
	sim := newTestSimulator(t, fake, WithSink(sink))

	res, err := sim.RunJourney(context.Background(), Options{
		Name:      "rec",
		Recording: RecordingOptions{Enabled: true, CaptureVideo: true},
		Steps: []Step{
			{ID: "a", Action: ActionClick, Selector: "#ok"},
			{ID: "b", Action: ActionClick, Selector: "#no", OnError: OnErrorContinue},
		},
	})

	require.NoError(t, err)
	assert.Equal(t, "rec", sink.opts.JourneyName)
	assert.True(t, sink.opts.CaptureVideo)
	require.NotNil(t, res.Recording)
	assert.Equal(t, 1, res.Recording.Actions)
	assert.Equal(t, 1, res.Recording.Errors)
	assert.Equal(t, 1, sink.handle.stops)
	assert.Equal(t, 1, sink.handle.cleanups)
}

func TestRunJourney_RecordingReleasedOnAbort(t *testing.T) {
	fake := pagetest.New("about:blank")
	sink := &fakeSink{handle: &fakeHandle{}}
	sim := newTestSimulator(t, fake, WithSink(sink))

	res, err := sim.RunJourney(context.Background(), Options{
		Recording: RecordingOptions{Enabled: true},
		Steps:     []Step{{ID: "a", Action: ActionClick, Selector: "#no"}},
	})

	require.Error(t, err)
	require.NotNil(t, res.Recording)
	assert.Equal(t, 1, sink.handle.stops)
	assert.Equal(t, 1, sink.handle.cleanups)
}

func TestRunJourney_RecordingReleasedOnPanic(t *testing.T) {
	fake := pagetest.New("about:blank", "#ok")
	sink := &fakeSink{handle: &fakeHandle{}}
	sim := newTestSimulator(t, fake, WithSink(sink))

	assert.Panics(t, func() {
		_, _ = sim.RunJourney(context.Background(), Options{
			Recording:      RecordingOptions{Enabled: true},
			Steps:          []Step{{ID: "a", Action: ActionClick, Selector: "#ok"}},
			OnStepComplete: func(Step, StepTiming) { panic("callback exploded") },
		})
	})
	assert.Equal(t, 1, sink.handle.stops)
	assert.Equal(t, 1, sink.handle.cleanups)
	assert.False(t, sim.IsRunning())
}

func TestRunJourney_RecordingFailuresAreNonFatal(t *testing.T) {
	fake := pagetest.New("about:blank", "#ok")
	steps := []Step{{ID: "a", Action: ActionClick, Selector: "#ok"}}

	sim := newTestSimulator(t, fake, WithSink(&fakeSink{startErr: errors.New("disk full")}))
	res, err := sim.RunJourney(context.Background(), Options{Recording: RecordingOptions{Enabled: true}, Steps: steps})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Nil(t, res.Recording)

	handle := &fakeHandle{stopErr: errors.New("encode failed")}
	sim = newTestSimulator(t, fake, WithSink(&fakeSink{handle: handle}))
	res, err = sim.RunJourney(context.Background(), Options{Recording: RecordingOptions{Enabled: true}, Steps: steps})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Nil(t, res.Recording)
	assert.Equal(t, 1, handle.cleanups)
}
