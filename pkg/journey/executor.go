package journey

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/entrhq/journeyforge/pkg/fsutil"
	"github.com/entrhq/journeyforge/pkg/logging"
	"github.com/entrhq/journeyforge/pkg/page"
)

const (
	// predicatePollInterval paces Go-side predicate checks in wait steps.
	predicatePollInterval = 100 * time.Millisecond

	// fallbackTimeout caps each fallback selector attempt.
	fallbackTimeout = 2 * time.Second

	defaultScreenshotDir = "screenshots"
)

var schemeRe = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9+.-]*:`)

// Timeouts are the per-action defaults used when a step sets none.
type Timeouts struct {
	Navigate time.Duration
	Action   time.Duration
	Wait     time.Duration
}

// DefaultTimeouts returns the built-in defaults.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Navigate: DefaultNavigateTimeout,
		Action:   DefaultActionTimeout,
		Wait:     DefaultWaitTimeout,
	}
}

func (t Timeouts) forAction(a Action) time.Duration {
	switch a {
	case ActionNavigate:
		return t.Navigate
	case ActionWait:
		return t.Wait
	default:
		return t.Action
	}
}

// ExecContext is what a step runs against.
type ExecContext struct {
	Page        page.Controller
	JourneyName string
	BaseURL     string
}

// StepExecutor runs one step against a page. It never applies error
// policy; every failure is returned as a *StepError.
type StepExecutor struct {
	logger        *logging.Logger
	predicates    *Predicates
	timeouts      Timeouts
	screenshotDir string
}

// ExecutorOption configures a StepExecutor.
type ExecutorOption func(*StepExecutor)

// WithScreenshotDir sets the root directory for screenshots.
func WithScreenshotDir(dir string) ExecutorOption {
	return func(e *StepExecutor) { e.screenshotDir = dir }
}

// WithTimeouts overrides the per-action default timeouts. Zero fields keep
// the built-in value.
func WithTimeouts(t Timeouts) ExecutorOption {
	return func(e *StepExecutor) {
		if t.Navigate > 0 {
			e.timeouts.Navigate = t.Navigate
		}
		if t.Action > 0 {
			e.timeouts.Action = t.Action
		}
		if t.Wait > 0 {
			e.timeouts.Wait = t.Wait
		}
	}
}

// WithPredicates sets the registry named conditions resolve against.
func WithPredicates(p *Predicates) ExecutorOption {
	return func(e *StepExecutor) { e.predicates = p }
}

// WithExecutorLogger sets the logger.
func WithExecutorLogger(l *logging.Logger) ExecutorOption {
	return func(e *StepExecutor) { e.logger = l }
}

// NewStepExecutor creates an executor with the built-in predicates.
func NewStepExecutor(opts ...ExecutorOption) *StepExecutor {
	e := &StepExecutor{
		logger:        logging.Discard(),
		predicates:    NewPredicates(),
		timeouts:      DefaultTimeouts(),
		screenshotDir: defaultScreenshotDir,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ScreenshotDir returns the screenshot root.
func (e *StepExecutor) ScreenshotDir() string {
	return e.screenshotDir
}

// Execute runs step. The returned string is the resolved URL for navigate
// steps and the written file path for screenshot steps.
//
// Every primitive timeout is capped at the time left before ctx's
// deadline, so a run budget bounds the step as well.
func (e *StepExecutor) Execute(ctx context.Context, step Step, ec ExecContext) (string, error) {
	if ec.Page == nil {
		return "", stepErr(step, KindInvalidStep, "no page to run against")
	}
	if err := checkRequired(step); err != nil {
		return "", &StepError{StepID: step.ID, Action: step.Action, Kind: KindInvalidStep, Err: err}
	}
	timeout := page.Bound(ctx, step.TimeoutDuration(e.timeouts.forAction(step.Action)))

	switch step.Action {
	case ActionNavigate:
		return e.navigate(ctx, step, ec, timeout)
	case ActionClick:
		return "", e.click(ctx, step, ec.Page, timeout)
	case ActionType:
		return "", e.typeText(ctx, step, ec.Page, timeout)
	case ActionWait:
		return "", e.wait(ctx, step, ec.Page, timeout)
	case ActionAssert:
		return "", e.assert(ctx, step, ec.Page)
	case ActionScreenshot:
		return e.screenshot(ctx, step, ec)
	default:
		return "", stepErr(step, KindUnknownAction, "unknown action %q", step.Action)
	}
}

// checkRequired mirrors the per-action field requirements of validation.
func checkRequired(step Step) error {
	switch step.Action {
	case ActionNavigate:
		if step.ValueString() == "" {
			return fmt.Errorf("navigate requires a value")
		}
	case ActionClick:
		if step.Selector == "" {
			return fmt.Errorf("click requires a selector")
		}
	case ActionType:
		if step.Selector == "" {
			return fmt.Errorf("type requires a selector")
		}
		if step.Value == nil {
			return fmt.Errorf("type requires a value")
		}
	case ActionAssert:
		if step.Condition == nil {
			return fmt.Errorf("assert requires a condition")
		}
	}
	if step.Condition != nil && (step.Action == ActionAssert || step.Action == ActionWait) {
		if err := step.Condition.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ResolveURL resolves value against base unless it already has a scheme.
func ResolveURL(base, value string) (string, error) {
	if schemeRe.MatchString(value) || base == "" {
		return value, nil
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid base URL %q: %w", base, err)
	}
	ref, err := url.Parse(value)
	if err != nil {
		return "", fmt.Errorf("invalid URL %q: %w", value, err)
	}
	return baseURL.ResolveReference(ref).String(), nil
}

func (e *StepExecutor) navigate(ctx context.Context, step Step, ec ExecContext, timeout time.Duration) (string, error) {
	target, err := ResolveURL(ec.BaseURL, step.ValueString())
	if err != nil {
		return "", &StepError{StepID: step.ID, Action: step.Action, Kind: KindNavigation, Err: err}
	}
	if err := ec.Page.Navigate(ctx, target, timeout); err != nil {
		return "", &StepError{StepID: step.ID, Action: step.Action, Kind: KindNavigation,
			Err: fmt.Errorf("failed to load %s within %s: %w", target, timeout, err)}
	}
	return target, nil
}

// withSelectors runs op against the primary selector, then each fallback.
func (e *StepExecutor) withSelectors(ctx context.Context, step Step, timeout time.Duration, op func(sel string, timeout time.Duration) error) error {
	selectors := step.Selectors()
	first := op(selectors[0], timeout)
	if first == nil {
		return nil
	}
	for _, sel := range selectors[1:] {
		if ctx.Err() != nil {
			break
		}
		t := page.Bound(ctx, fallbackTimeout)
		if timeout < t {
			t = timeout
		}
		if err := op(sel, t); err == nil {
			e.logger.Warnf("step %s: selector %q failed, fallback %q succeeded", step.ID, step.Selector, sel)
			return nil
		}
	}
	return first
}

func (e *StepExecutor) click(ctx context.Context, step Step, p page.Controller, timeout time.Duration) error {
	err := e.withSelectors(ctx, step, timeout, func(sel string, t time.Duration) error {
		return p.Click(ctx, sel, t)
	})
	if err != nil {
		return &StepError{StepID: step.ID, Action: step.Action, Kind: KindElementNotInteractable,
			Err: fmt.Errorf("could not click %s: %w", step.Selector, err)}
	}
	return nil
}

func (e *StepExecutor) typeText(ctx context.Context, step Step, p page.Controller, timeout time.Duration) error {
	err := e.withSelectors(ctx, step, timeout, func(sel string, t time.Duration) error {
		return p.Fill(ctx, sel, step.ValueString(), t)
	})
	if err != nil {
		return &StepError{StepID: step.ID, Action: step.Action, Kind: KindElementNotInteractable,
			Err: fmt.Errorf("could not type into %s: %w", step.Selector, err)}
	}
	return nil
}

// wait honors exactly one mode: condition, then selector, then plain delay.
func (e *StepExecutor) wait(ctx context.Context, step Step, p page.Controller, timeout time.Duration) error {
	var err error
	switch {
	case step.Condition != nil:
		err = e.waitCondition(ctx, step.Condition, p, timeout)
	case step.Selector != "":
		err = e.withSelectors(ctx, step, timeout, func(sel string, t time.Duration) error {
			return p.WaitForSelector(ctx, sel, t)
		})
	default:
		err = sleep(ctx, timeout)
	}
	if err != nil {
		return &StepError{StepID: step.ID, Action: step.Action, Kind: KindWaitTimeout, Err: err}
	}
	return nil
}

func (e *StepExecutor) waitCondition(ctx context.Context, cond *Condition, p page.Controller, timeout time.Duration) error {
	if cond.Compare != nil {
		if err := p.WaitForFunction(ctx, compareScript, cond.Compare.arg(), timeout); err != nil {
			return fmt.Errorf("condition %s not met within %s: %w", cond, timeout, err)
		}
		return nil
	}

	pred, ok := e.predicates.Lookup(cond.Predicate)
	if !ok {
		return fmt.Errorf("unknown predicate %q", cond.Predicate)
	}
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(predicatePollInterval)
	defer ticker.Stop()
	var lastErr error
	for {
		met, err := pred(waitCtx, p, cond.Args)
		if err == nil && met {
			return nil
		}
		lastErr = err
		select {
		case <-waitCtx.Done():
			if lastErr != nil {
				return fmt.Errorf("condition %s not met within %s: %w", cond, timeout, lastErr)
			}
			return fmt.Errorf("condition %s not met within %s", cond, timeout)
		case <-ticker.C:
		}
	}
}

func (e *StepExecutor) assert(ctx context.Context, step Step, p page.Controller) error {
	met, err := e.evalCondition(ctx, step.Condition, p)
	if err != nil {
		return &StepError{StepID: step.ID, Action: step.Action, Kind: KindAssertionFailed,
			Err: fmt.Errorf("assertion %s could not be evaluated: %w", step.Condition, err)}
	}
	if !met {
		return &StepError{StepID: step.ID, Action: step.Action, Kind: KindAssertionFailed,
			Err: fmt.Errorf("assertion failed for step %s: %s", step.ID, step.Condition)}
	}
	return nil
}

func (e *StepExecutor) evalCondition(ctx context.Context, cond *Condition, p page.Controller) (bool, error) {
	if cond.Compare != nil {
		result, err := p.Evaluate(ctx, compareScript, cond.Compare.arg())
		if err != nil {
			return false, err
		}
		met, _ := result.(bool)
		return met, nil
	}
	pred, ok := e.predicates.Lookup(cond.Predicate)
	if !ok {
		return false, fmt.Errorf("unknown predicate %q", cond.Predicate)
	}
	return pred(ctx, p, cond.Args)
}

// ScreenshotPath returns where a screenshot named name for journeyName is
// written.
func (e *StepExecutor) ScreenshotPath(journeyName, name string) string {
	name = strings.TrimSuffix(name, ".png")
	return filepath.Join(e.screenshotDir,
		fsutil.SanitizeName(journeyName, "journey"),
		fsutil.SanitizeName(name, "screenshot")+".png")
}

func (e *StepExecutor) screenshot(ctx context.Context, step Step, ec ExecContext) (string, error) {
	name := step.ValueString()
	if name == "" {
		name = "screenshot-" + step.ID
	}
	path := e.ScreenshotPath(ec.JourneyName, name)
	if err := e.capture(ctx, ec.Page, path, step.FullPage); err != nil {
		return "", &StepError{StepID: step.ID, Action: step.Action, Kind: KindScreenshot, Err: err}
	}
	return path, nil
}

// CaptureErrorScreenshot writes error-<stepID>.png for a failed step.
func (e *StepExecutor) CaptureErrorScreenshot(ctx context.Context, p page.Controller, journeyName, stepID string) (string, error) {
	path := e.ScreenshotPath(journeyName, "error-"+stepID)
	if err := e.capture(ctx, p, path, false); err != nil {
		return "", err
	}
	return path, nil
}

func (e *StepExecutor) capture(ctx context.Context, p page.Controller, path string, fullPage bool) error {
	data, err := p.Screenshot(ctx, page.ScreenshotOptions{FullPage: fullPage})
	if err != nil {
		return err
	}
	if err := fsutil.EnsureDir(filepath.Dir(path)); err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write screenshot: %w", err)
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
