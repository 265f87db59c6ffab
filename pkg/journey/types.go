package journey

import (
	"time"

	"github.com/entrhq/journeyforge/pkg/recording"
)

// Action is the kind of interaction a step performs.
type Action string

const (
	ActionNavigate   Action = "navigate"
	ActionClick      Action = "click"
	ActionType       Action = "type"
	ActionWait       Action = "wait"
	ActionAssert     Action = "assert"
	ActionScreenshot Action = "screenshot"
)

// Actions lists every supported action.
var Actions = []Action{ActionNavigate, ActionClick, ActionType, ActionWait, ActionAssert, ActionScreenshot}

// Valid reports whether a is a supported action.
func (a Action) Valid() bool {
	for _, known := range Actions {
		if a == known {
			return true
		}
	}
	return false
}

// ErrorPolicy decides what a step failure does to the rest of the run.
type ErrorPolicy string

const (
	// OnErrorFail aborts the run. It is the default.
	OnErrorFail ErrorPolicy = "fail"
	// OnErrorRetry re-attempts the step RetryCount more times before failing.
	OnErrorRetry ErrorPolicy = "retry"
	// OnErrorContinue records the failure and moves on.
	OnErrorContinue ErrorPolicy = "continue"
)

// Default step timeouts.
const (
	DefaultNavigateTimeout = 30 * time.Second
	DefaultActionTimeout   = 10 * time.Second
	DefaultWaitTimeout     = time.Second

	// ExcessiveTimeout is the threshold above which validation warns.
	ExcessiveTimeout = 30 * time.Second
)

// Step is one action within a journey.
type Step struct {
	ID       string `yaml:"id" json:"id"`
	Action   Action `yaml:"action" json:"action"`
	Selector string `yaml:"selector,omitempty" json:"selector,omitempty"`

	// FallbackSelectors are tried in order when Selector fails for click,
	// type and wait steps.
	FallbackSelectors []string `yaml:"fallback_selectors,omitempty" json:"fallbackSelectors,omitempty"`

	// Value is the URL of a navigate step, the text of a type step and the
	// file name of a screenshot. Nil means unset. An empty type value clears
	// the field.
	Value *string `yaml:"value,omitempty" json:"value,omitempty"`

	// Timeout in milliseconds. Zero means the per-action default.
	Timeout int `yaml:"timeout,omitempty" json:"timeout,omitempty"`

	RetryCount  int         `yaml:"retry_count,omitempty" json:"retryCount,omitempty"`
	OnError     ErrorPolicy `yaml:"on_error,omitempty" json:"onError,omitempty"`
	Description string      `yaml:"description,omitempty" json:"description,omitempty"`
	Condition   *Condition  `yaml:"condition,omitempty" json:"condition,omitempty"`

	// FullPage captures the whole page instead of the viewport.
	FullPage bool `yaml:"full_page,omitempty" json:"fullPage,omitempty"`

	// SelectorUnstable marks a recorded selector that no longer resolved
	// uniquely when the recording stopped.
	SelectorUnstable bool `yaml:"selector_unstable,omitempty" json:"selectorUnstable,omitempty"`
}

// Value returns a pointer to v, for building steps in code.
func Value(v string) *string {
	return &v
}

// ValueString returns the step value, or "" when unset.
func (s Step) ValueString() string {
	if s.Value == nil {
		return ""
	}
	return *s.Value
}

// Policy returns the effective error policy.
func (s Step) Policy() ErrorPolicy {
	if s.OnError == "" {
		return OnErrorFail
	}
	return s.OnError
}

// DefaultTimeout returns the timeout used for action when a step sets none.
func DefaultTimeout(action Action) time.Duration {
	switch action {
	case ActionNavigate:
		return DefaultNavigateTimeout
	case ActionWait:
		return DefaultWaitTimeout
	default:
		return DefaultActionTimeout
	}
}

// TimeoutDuration returns the step timeout, or def when unset.
func (s Step) TimeoutDuration(def time.Duration) time.Duration {
	if s.Timeout > 0 {
		return time.Duration(s.Timeout) * time.Millisecond
	}
	return def
}

// Selectors returns the primary selector followed by the fallbacks.
func (s Step) Selectors() []string {
	if s.Selector == "" {
		return nil
	}
	return append([]string{s.Selector}, s.FallbackSelectors...)
}

func (s Step) clone() Step {
	c := s
	if s.Value != nil {
		c.Value = Value(*s.Value)
	}
	if s.FallbackSelectors != nil {
		c.FallbackSelectors = append([]string(nil), s.FallbackSelectors...)
	}
	if s.Condition != nil {
		c.Condition = s.Condition.clone()
	}
	return c
}

// Source records how a definition was created.
type Source string

const (
	SourceManual   Source = "manual"
	SourceRecorded Source = "recorded"
)

// Definition is a named, persisted sequence of steps.
type Definition struct {
	Name         string    `yaml:"name" json:"name"`
	Description  string    `yaml:"description,omitempty" json:"description,omitempty"`
	Steps        []Step    `yaml:"steps" json:"steps"`
	Created      time.Time `yaml:"created" json:"created"`
	Modified     time.Time `yaml:"modified" json:"modified"`
	Source       Source    `yaml:"source,omitempty" json:"source,omitempty"`
	RecordedFrom string    `yaml:"recorded_from,omitempty" json:"recordedFrom,omitempty"`
}

// Clone returns a deep copy of d.
func (d *Definition) Clone() *Definition {
	if d == nil {
		return nil
	}
	c := *d
	c.Steps = cloneSteps(d.Steps)
	return &c
}

func cloneSteps(steps []Step) []Step {
	if steps == nil {
		return nil
	}
	out := make([]Step, len(steps))
	for i, s := range steps {
		out[i] = s.clone()
	}
	return out
}

// RecordingOptions enables capture of the run through a recording.Sink.
type RecordingOptions struct {
	Enabled      bool   `yaml:"enabled" json:"enabled"`
	CaptureVideo bool   `yaml:"capture_video" json:"captureVideo"`
	CaptureAll   bool   `yaml:"capture_all_actions" json:"captureAllActions"`
	OutputDir    string `yaml:"output_dir,omitempty" json:"outputDir,omitempty"`
}

// Options configures one RunJourney call.
type Options struct {
	Name  string
	Steps []Step

	// OnStepComplete is called after every successful step.
	OnStepComplete func(step Step, timing StepTiming)

	// OnError is called for every recorded JourneyError.
	OnError func(err JourneyError)

	// MaxDuration bounds the whole run. Zero means unbounded.
	MaxDuration time.Duration

	// BaseURL resolves relative navigate values.
	BaseURL string

	Recording RecordingOptions
}

// OptionsFor builds run options from a definition.
func OptionsFor(def *Definition) Options {
	return Options{Name: def.Name, Steps: cloneSteps(def.Steps)}
}

// StepTiming describes one attempted step.
type StepTiming struct {
	StepID   string        `json:"stepId"`
	Action   Action        `json:"action"`
	Duration time.Duration `json:"duration"`
	Attempts int           `json:"attempts"`
	Success  bool          `json:"success"`

	// Output is the resolved URL for navigate steps and the file path for
	// screenshot steps.
	Output string `json:"output,omitempty"`
}

// SlowestStep names the longest attempted step.
type SlowestStep struct {
	StepID   string        `json:"stepId"`
	Duration time.Duration `json:"duration"`
}

// PerformanceMetrics aggregates timing over the attempted steps.
type PerformanceMetrics struct {
	TotalTime       time.Duration `json:"totalTime"`
	AverageStepTime time.Duration `json:"averageStepTime"`
	SlowestStep     *SlowestStep  `json:"slowestStep,omitempty"`
}

// JourneyError is one recorded step failure.
type JourneyError struct {
	StepID     string    `json:"stepId"`
	StepIndex  int       `json:"stepIndex"`
	Kind       ErrorKind `json:"kind,omitempty"`
	Message    string    `json:"error"`
	Timestamp  time.Time `json:"timestamp"`
	Screenshot string    `json:"screenshot,omitempty"`
	Attempts   int       `json:"attempts,omitempty"`
}

// Result is the outcome of one run. Durations encode as nanoseconds.
type Result struct {
	JourneyID          string              `json:"journeyId"`
	Name               string              `json:"name"`
	Success            bool                `json:"success"`
	StartedAt          time.Time           `json:"startedAt"`
	Duration           time.Duration       `json:"duration"`
	CompletedSteps     int                 `json:"completedSteps"`
	TotalSteps         int                 `json:"totalSteps"`
	Errors             []JourneyError      `json:"errors"`
	Screenshots        []string            `json:"screenshots"`
	Steps              []StepTiming        `json:"steps"`
	PerformanceMetrics PerformanceMetrics  `json:"performanceMetrics"`
	Recording          *recording.Metadata `json:"recording,omitempty"`
}

func computeMetrics(steps []StepTiming, total time.Duration) PerformanceMetrics {
	m := PerformanceMetrics{TotalTime: total}
	if len(steps) == 0 {
		return m
	}
	var sum time.Duration
	slowest := steps[0]
	for _, s := range steps {
		sum += s.Duration
		if s.Duration > slowest.Duration {
			slowest = s
		}
	}
	m.AverageStepTime = sum / time.Duration(len(steps))
	m.SlowestStep = &SlowestStep{StepID: slowest.StepID, Duration: slowest.Duration}
	return m
}
