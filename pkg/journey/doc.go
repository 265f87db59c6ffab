// Package journey executes multi-step browser journeys.
//
// A Definition is a named list of Steps (navigate, click, type, wait,
// assert, screenshot). A StepExecutor runs one step against a
// page.Controller and classifies any failure as a *StepError. A Simulator
// runs a whole journey through the executor, applying each step's error
// policy:
//
//   - fail (default): record the error and abort the run
//   - retry: re-attempt up to RetryCount more times, then behave as fail
//   - continue: record the error and move to the next step
//
// The simulator enforces an optional run budget, collects timings and
// screenshots, and can mirror the run into a recording.Sink. Only one
// journey runs per simulator at a time.
//
// Conditions for assert and wait steps are either a named Predicate from
// a Predicates registry or a structured Comparison evaluated by a fixed
// page-side function.
package journey
