package main

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/entrhq/journeyforge/pkg/history"
	"github.com/entrhq/journeyforge/pkg/journey"
)

var (
	passStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	failStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true)
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	titleStyle = lipgloss.NewStyle().Bold(true)
)

func mark(ok bool) string {
	if ok {
		return passStyle.Render("✓")
	}
	return failStyle.Render("✗")
}

func round(d time.Duration) time.Duration {
	return d.Round(time.Millisecond)
}

// printSuite writes one line per journey with its failures below it, then
// a totals line. It returns the number of failed journeys.
func printSuite(w io.Writer, results []journey.SuiteResult) int {
	failed := 0
	for _, r := range results {
		if r.Result == nil {
			failed++
			fmt.Fprintf(w, "%s %s  %s\n", mark(false), titleStyle.Render(r.Name), failStyle.Render(r.Err))
			continue
		}
		res := r.Result
		if !res.Success {
			failed++
		}
		fmt.Fprintf(w, "%s %s  %s\n", mark(res.Success), titleStyle.Render(r.Name),
			mutedStyle.Render(fmt.Sprintf("%d/%d steps  %s", res.CompletedSteps, res.TotalSteps, round(res.Duration))))
		for _, e := range res.Errors {
			line := fmt.Sprintf("    step %s: %s", e.StepID, e.Message)
			if e.Screenshot != "" {
				line += mutedStyle.Render("  (" + e.Screenshot + ")")
			}
			fmt.Fprintln(w, failStyle.Render(line))
		}
		if r.Err != "" {
			fmt.Fprintln(w, failStyle.Render("    "+r.Err))
		}
	}

	summary := fmt.Sprintf("%d journeys, %d passed, %d failed", len(results), len(results)-failed, failed)
	if failed > 0 {
		fmt.Fprintln(w, failStyle.Render(summary))
	} else {
		fmt.Fprintln(w, passStyle.Render(summary))
	}
	return failed
}

func printValidation(w io.Writer, name string, res journey.ValidationResult) {
	fmt.Fprintf(w, "%s %s\n", mark(res.IsValid), titleStyle.Render(name))
	for _, e := range res.Errors {
		fmt.Fprintln(w, failStyle.Render("    error: "+e))
	}
	for _, warning := range res.Warnings {
		fmt.Fprintln(w, warnStyle.Render("    warning: "+warning))
	}
}

func printRuns(w io.Writer, runs []history.Run) {
	if len(runs) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("no runs recorded"))
		return
	}
	for _, r := range runs {
		fmt.Fprintf(w, "%s %s  %s  %s\n", mark(r.Success), titleStyle.Render(r.Journey),
			mutedStyle.Render(r.StartedAt.Local().Format(time.DateTime)),
			mutedStyle.Render(fmt.Sprintf("%d/%d steps  %s  %s", r.CompletedSteps, r.TotalSteps, round(r.Duration), r.ID)))
	}
}

func printStats(w io.Writer, s history.Stats) {
	fmt.Fprintf(w, "%s  %d runs, %s, %s, average %s\n", titleStyle.Render(s.Journey), s.Runs,
		passStyle.Render(fmt.Sprintf("%d passed", s.Passed)),
		failStyle.Render(fmt.Sprintf("%d failed", s.Failed)),
		round(s.AverageDuration))
}
