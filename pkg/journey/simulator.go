package journey

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/entrhq/journeyforge/pkg/logging"
	"github.com/entrhq/journeyforge/pkg/page"
	"github.com/entrhq/journeyforge/pkg/recording"
)

const (
	// DefaultRetryDelay is the fixed pause between retry attempts.
	DefaultRetryDelay = time.Second

	errorScreenshotTimeout = 5 * time.Second
)

// DelayFunc pauses between retry attempts. It returns early with the
// context's error when ctx is done.
type DelayFunc func(ctx context.Context, d time.Duration) error

// Simulator runs journeys against one page, one at a time.
type Simulator struct {
	page       page.Controller
	executor   *StepExecutor
	sink       recording.Sink
	logger     *logging.Logger
	delay      DelayFunc
	retryDelay time.Duration
	now        func() time.Time

	running       atomic.Bool
	stopRequested atomic.Bool
}

// Option configures a Simulator.
type Option func(*Simulator)

// WithExecutor sets the step executor.
func WithExecutor(e *StepExecutor) Option {
	return func(s *Simulator) { s.executor = e }
}

// WithSink enables recording.Enabled runs to capture through sink.
func WithSink(sink recording.Sink) Option {
	return func(s *Simulator) { s.sink = sink }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Simulator) { s.logger = l }
}

// WithDelay replaces the retry pause. Tests pass a no-op.
func WithDelay(fn DelayFunc) Option {
	return func(s *Simulator) { s.delay = fn }
}

// WithRetryDelay sets the pause between retry attempts.
func WithRetryDelay(d time.Duration) Option {
	return func(s *Simulator) { s.retryDelay = d }
}

// WithClock sets the time source used for budgets and timings.
func WithClock(now func() time.Time) Option {
	return func(s *Simulator) { s.now = now }
}

// NewSimulator creates a simulator bound to p.
func NewSimulator(p page.Controller, opts ...Option) *Simulator {
	s := &Simulator{
		page:       p,
		logger:     logging.Discard(),
		delay:      sleep,
		retryDelay: DefaultRetryDelay,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.executor == nil {
		s.executor = NewStepExecutor(WithExecutorLogger(s.logger))
	}
	return s
}

// IsRunning reports whether a journey is in progress.
func (s *Simulator) IsRunning() bool {
	return s.running.Load()
}

// StopJourney asks the running journey to stop before its next step. An
// in-flight step is not interrupted. It reports whether a journey was
// running.
func (s *Simulator) StopJourney() bool {
	if !s.running.Load() {
		return false
	}
	s.stopRequested.Store(true)
	return true
}

// RunJourney executes opts.Steps in order.
//
// A run that reaches the end returns its result and a nil error, even when
// continue-policy steps failed; Result.Success tells the two apart. A run
// aborted by a failing step, the duration budget or StopJourney returns the
// partial result together with an *AbortError. A second call while one is
// in progress returns ErrConcurrentJourney and leaves the first untouched.
func (s *Simulator) RunJourney(ctx context.Context, opts Options) (*Result, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, ErrConcurrentJourney
	}
	defer func() {
		s.stopRequested.Store(false)
		s.running.Store(false)
	}()

	steps := cloneSteps(opts.Steps)
	start := s.now()
	res := &Result{
		JourneyID:   uuid.NewString(),
		Name:        opts.Name,
		StartedAt:   start,
		TotalSteps:  len(steps),
		Errors:      []JourneyError{},
		Screenshots: []string{},
		Steps:       []StepTiming{},
	}
	log := s.logger.With(opts.Name)
	log.Infof("journey %s started: %d steps", res.JourneyID, len(steps))

	runCtx := ctx
	if opts.MaxDuration > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithDeadline(ctx, start.Add(opts.MaxDuration))
		defer cancel()
	}

	rec := s.startRecording(ctx, opts, log)
	defer rec.release(log)

	ec := ExecContext{Page: s.page, JourneyName: opts.Name, BaseURL: opts.BaseURL}
	var abort error

	for i, step := range steps {
		if s.stopRequested.Load() {
			abort = s.abortBetween(res, opts, rec, i, step, KindJourneyStopped, ErrJourneyStopped)
			break
		}
		if opts.MaxDuration > 0 && s.now().Sub(start) >= opts.MaxDuration {
			err := fmt.Errorf("%w of %s", ErrJourneyTimeout, opts.MaxDuration)
			abort = s.abortBetween(res, opts, rec, i, step, KindJourneyTimeout, err)
			break
		}

		timing, err := s.runStep(runCtx, step, ec, log)
		res.Steps = append(res.Steps, timing)

		if err == nil {
			res.CompletedSteps++
			if step.Action == ActionScreenshot && timing.Output != "" {
				res.Screenshots = append(res.Screenshots, timing.Output)
			}
			rec.action(step, timing, s.page.URL(), log)
			if opts.OnStepComplete != nil {
				opts.OnStepComplete(step, timing)
			}
			continue
		}

		jerr := JourneyError{
			StepID:    step.ID,
			StepIndex: i,
			Kind:      kindOf(step, err),
			Message:   err.Error(),
			Timestamp: s.now(),
			Attempts:  timing.Attempts,
		}
		jerr.Screenshot = s.errorScreenshot(ctx, opts.Name, step.ID, log)
		s.recordError(res, opts, rec, jerr, log)

		if step.Policy() == OnErrorContinue {
			log.Warnf("step %s failed, continuing: %v", step.ID, err)
			res.CompletedSteps++
			continue
		}
		log.Errorf("step %s failed, aborting: %v", step.ID, err)
		abort = &AbortError{StepID: step.ID, StepIndex: i, Err: err}
		break
	}

	res.Duration = s.now().Sub(start)
	res.PerformanceMetrics = computeMetrics(res.Steps, res.Duration)
	res.Success = len(res.Errors) == 0
	res.Recording = rec.stop(ctx, log)

	log.Infof("journey %s finished: %d/%d steps, %d errors, %s",
		res.JourneyID, res.CompletedSteps, res.TotalSteps, len(res.Errors), res.Duration)
	return res, abort
}

// runStep executes step, re-attempting retry-policy steps up to RetryCount
// more times.
func (s *Simulator) runStep(ctx context.Context, step Step, ec ExecContext, log *logging.Logger) (StepTiming, error) {
	attempts := 1
	if step.Policy() == OnErrorRetry && step.RetryCount > 0 {
		attempts += step.RetryCount
	}

	timing := StepTiming{StepID: step.ID, Action: step.Action}
	started := s.now()
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		timing.Attempts = attempt
		var out string
		out, err = s.executor.Execute(ctx, step, ec)
		if err == nil {
			timing.Output = out
			timing.Success = true
			break
		}
		if attempt == attempts || ctx.Err() != nil || s.stopRequested.Load() {
			break
		}
		log.Warnf("step %s attempt %d/%d failed, retrying in %s: %v", step.ID, attempt, attempts, s.retryDelay, err)
		if delayErr := s.delay(ctx, s.retryDelay); delayErr != nil {
			break
		}
	}
	timing.Duration = s.now().Sub(started)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		err = &StepError{StepID: step.ID, Action: step.Action, Kind: KindJourneyTimeout,
			Err: fmt.Errorf("%w: %w", ErrJourneyTimeout, err)}
	}
	return timing, err
}

func (s *Simulator) abortBetween(res *Result, opts Options, rec *activeRecording, index int, step Step, kind ErrorKind, cause error) error {
	jerr := JourneyError{
		StepID:    step.ID,
		StepIndex: index,
		Kind:      kind,
		Message:   cause.Error(),
		Timestamp: s.now(),
	}
	s.recordError(res, opts, rec, jerr, s.logger)
	s.logger.Warnf("journey %s aborted before step %s: %v", res.JourneyID, step.ID, cause)
	return &AbortError{StepID: step.ID, StepIndex: index, Err: cause}
}

func (s *Simulator) recordError(res *Result, opts Options, rec *activeRecording, jerr JourneyError, log *logging.Logger) {
	res.Errors = append(res.Errors, jerr)
	rec.error(jerr, log)
	if opts.OnError != nil {
		opts.OnError(jerr)
	}
}

// errorScreenshot is best effort; failures are logged and ignored.
func (s *Simulator) errorScreenshot(ctx context.Context, journeyName, stepID string, log *logging.Logger) string {
	shotCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), errorScreenshotTimeout)
	defer cancel()
	path, err := s.executor.CaptureErrorScreenshot(shotCtx, s.page, journeyName, stepID)
	if err != nil {
		log.Debugf("error screenshot for step %s failed: %v", stepID, err)
		return ""
	}
	return path
}

// activeRecording wraps an optional recording handle. All methods are
// no-ops when recording is off or failed to start.
type activeRecording struct {
	handle  recording.Handle
	stopped bool
}

func (s *Simulator) startRecording(ctx context.Context, opts Options, log *logging.Logger) *activeRecording {
	rec := &activeRecording{}
	if !opts.Recording.Enabled {
		return rec
	}
	if s.sink == nil {
		log.Warnf("recording requested but no recording sink is configured")
		return rec
	}
	h, err := s.sink.Start(ctx, s.page, recording.StartOptions{
		JourneyName:  opts.Name,
		CaptureVideo: opts.Recording.CaptureVideo,
		CaptureAll:   opts.Recording.CaptureAll,
		OutputDir:    opts.Recording.OutputDir,
	})
	if err != nil {
		log.Warnf("failed to start recording, continuing without it: %v", err)
		return rec
	}
	rec.handle = h
	return rec
}

func (r *activeRecording) action(step Step, timing StepTiming, currentURL string, log *logging.Logger) {
	if r.handle == nil {
		return
	}
	err := r.handle.CaptureAction(recording.Action{
		StepID:     step.ID,
		Type:       string(step.Action),
		Selector:   step.Selector,
		Value:      step.ValueString(),
		URL:        currentURL,
		Output:     timing.Output,
		DurationMs: timing.Duration.Milliseconds(),
	})
	if err != nil {
		log.Warnf("failed to capture action %s: %v", step.ID, err)
	}
}

func (r *activeRecording) error(jerr JourneyError, log *logging.Logger) {
	if r.handle == nil {
		return
	}
	err := r.handle.CaptureError(recording.Error{
		StepID:      jerr.StepID,
		StepIndex:   jerr.StepIndex,
		Message:     jerr.Message,
		Screenshot:  jerr.Screenshot,
		TimestampMs: jerr.Timestamp.UnixMilli(),
	})
	if err != nil {
		log.Warnf("failed to capture error %s: %v", jerr.StepID, err)
	}
}

func (r *activeRecording) stop(ctx context.Context, log *logging.Logger) *recording.Metadata {
	if r.handle == nil || r.stopped {
		return nil
	}
	r.stopped = true
	md, err := r.handle.Stop(context.WithoutCancel(ctx))
	if err != nil {
		log.Warnf("failed to stop recording %s: %v", r.handle.SessionID(), err)
		return nil
	}
	return md
}

// release runs on every exit path of RunJourney, including panics.
func (r *activeRecording) release(log *logging.Logger) {
	if r.handle == nil {
		return
	}
	if !r.stopped {
		r.stopped = true
		if _, err := r.handle.Stop(context.Background()); err != nil {
			log.Warnf("failed to stop recording %s: %v", r.handle.SessionID(), err)
		}
	}
	if err := r.handle.Cleanup(); err != nil {
		log.Warnf("failed to clean up recording %s: %v", r.handle.SessionID(), err)
	}
}
