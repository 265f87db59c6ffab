package journey

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a step failure.
type ErrorKind string

const (
	KindNavigation             ErrorKind = "navigation_failure"
	KindElementNotInteractable ErrorKind = "element_not_interactable"
	KindAssertionFailed        ErrorKind = "assertion_failed"
	KindWaitTimeout            ErrorKind = "wait_timeout"
	KindScreenshot             ErrorKind = "screenshot_failure"
	KindInvalidStep            ErrorKind = "invalid_step"
	KindUnknownAction          ErrorKind = "unknown_action"
	KindJourneyTimeout         ErrorKind = "journey_timeout"
	KindJourneyStopped         ErrorKind = "journey_stopped"
)

// Sentinels matched by errors.Is against a *StepError of the same kind.
var (
	ErrNavigation             = errors.New("navigation failed")
	ErrElementNotInteractable = errors.New("element not interactable")
	ErrAssertionFailed        = errors.New("assertion failed")
	ErrWaitTimeout            = errors.New("wait timed out")
	ErrScreenshot             = errors.New("screenshot failed")
	ErrInvalidStep            = errors.New("invalid step")
	ErrUnknownAction          = errors.New("unknown action")
)

// Journey-level errors.
var (
	ErrConcurrentJourney = errors.New("a journey is already running on this simulator")
	ErrJourneyTimeout    = errors.New("journey exceeded maximum duration")
	ErrJourneyStopped    = errors.New("journey stopped")
)

var kindSentinels = map[ErrorKind]error{
	KindNavigation:             ErrNavigation,
	KindElementNotInteractable: ErrElementNotInteractable,
	KindAssertionFailed:        ErrAssertionFailed,
	KindWaitTimeout:            ErrWaitTimeout,
	KindScreenshot:             ErrScreenshot,
	KindInvalidStep:            ErrInvalidStep,
	KindUnknownAction:          ErrUnknownAction,
}

// StepError is a classified failure of one step.
type StepError struct {
	StepID string
	Action Action
	Kind   ErrorKind
	Err    error
}

func (e *StepError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("step %q (%s): %s", e.StepID, e.Action, kindSentinels[e.Kind])
	}
	return fmt.Sprintf("step %q (%s): %v", e.StepID, e.Action, e.Err)
}

// Unwrap returns the underlying error.
func (e *StepError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel for the error's kind.
func (e *StepError) Is(target error) bool {
	sentinel, ok := kindSentinels[e.Kind]
	return ok && sentinel == target
}

func stepErr(step Step, kind ErrorKind, format string, args ...any) *StepError {
	return &StepError{
		StepID: step.ID,
		Action: step.Action,
		Kind:   kind,
		Err:    fmt.Errorf(format, args...),
	}
}

// kindOf classifies err. Unclassified errors take the kind the step's
// action raises.
func kindOf(step Step, err error) ErrorKind {
	var se *StepError
	if errors.As(err, &se) {
		return se.Kind
	}
	switch {
	case errors.Is(err, ErrJourneyTimeout):
		return KindJourneyTimeout
	case errors.Is(err, ErrJourneyStopped):
		return KindJourneyStopped
	}
	switch step.Action {
	case ActionNavigate:
		return KindNavigation
	case ActionWait:
		return KindWaitTimeout
	case ActionAssert:
		return KindAssertionFailed
	case ActionScreenshot:
		return KindScreenshot
	default:
		return KindElementNotInteractable
	}
}

// AbortError reports a run that stopped before its last step.
type AbortError struct {
	StepID    string
	StepIndex int
	Err       error
}

func (e *AbortError) Error() string {
	return fmt.Sprintf("journey aborted at step %d (%s): %v", e.StepIndex, e.StepID, e.Err)
}

// Unwrap returns the cause of the abort.
func (e *AbortError) Unwrap() error {
	return e.Err
}
