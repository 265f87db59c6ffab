package journey

import (
	"fmt"
	"time"
)

// ValidationResult is the outcome of ValidateDefinition.
type ValidationResult struct {
	IsValid  bool     `json:"isValid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// ValidateDefinition checks def's structure. It never fails; problems are
// reported in the result. Step ids must be present and unique.
func ValidateDefinition(def *Definition) ValidationResult {
	res := ValidationResult{Errors: []string{}, Warnings: []string{}}
	errorf := func(format string, args ...any) {
		res.Errors = append(res.Errors, fmt.Sprintf(format, args...))
	}
	warnf := func(format string, args ...any) {
		res.Warnings = append(res.Warnings, fmt.Sprintf(format, args...))
	}

	if def == nil {
		errorf("journey definition is required")
		return res
	}
	if def.Name == "" {
		errorf("journey name is required")
	}
	if def.Description == "" {
		warnf("journey has no description")
	}
	if len(def.Steps) == 0 {
		errorf("journey must have at least one step")
	}

	builtins := NewPredicates()
	seen := make(map[string]int, len(def.Steps))
	for i, step := range def.Steps {
		label := fmt.Sprintf("step %d", i+1)
		if step.ID == "" {
			errorf("%s: id is required", label)
		} else {
			label = fmt.Sprintf("step %d (%s)", i+1, step.ID)
			if first, dup := seen[step.ID]; dup {
				errorf("%s: duplicate step id, first used by step %d", label, first+1)
			} else {
				seen[step.ID] = i
			}
		}

		if !step.Action.Valid() {
			errorf("%s: unknown action %q", label, step.Action)
			continue
		}
		if err := checkRequired(step); err != nil {
			errorf("%s: %v", label, err)
		}

		switch step.OnError {
		case "", OnErrorFail, OnErrorContinue:
			if step.RetryCount > 0 {
				warnf("%s: retryCount is ignored unless onError is retry", label)
			}
		case OnErrorRetry:
			if step.RetryCount <= 0 {
				warnf("%s: onError retry with no retryCount never retries", label)
			}
		default:
			errorf("%s: unknown onError policy %q", label, step.OnError)
		}

		if step.Timeout < 0 {
			errorf("%s: timeout must not be negative", label)
		} else if step.TimeoutDuration(0) > ExcessiveTimeout {
			warnf("%s: timeout %s is excessive (over %s)", label,
				time.Duration(step.Timeout)*time.Millisecond, ExcessiveTimeout)
		}
		if step.RetryCount < 0 {
			errorf("%s: retryCount must not be negative", label)
		}

		if step.Action == ActionWait && step.Condition != nil && step.Selector != "" {
			warnf("%s: wait has both condition and selector; only the condition is used", label)
		}
		if step.Condition != nil && step.Condition.Predicate != "" {
			if _, ok := builtins.Lookup(step.Condition.Predicate); !ok {
				warnf("%s: predicate %q is not built in and must be registered before running", label, step.Condition.Predicate)
			}
		}
		if step.SelectorUnstable {
			warnf("%s: selector %q did not resolve uniquely when recorded", label, step.Selector)
		}
	}

	res.IsValid = len(res.Errors) == 0
	return res
}
