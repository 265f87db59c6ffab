package journey

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/entrhq/journeyforge/pkg/page"
)

// PageFactory opens a fresh page for one journey. release closes it.
type PageFactory func(ctx context.Context) (p page.Controller, release func(), err error)

// SuiteResult is the outcome of one journey in a suite.
type SuiteResult struct {
	Name   string  `json:"name"`
	Result *Result `json:"result,omitempty"`
	Err    string  `json:"error,omitempty"`
}

// SuiteOptions configures RunSuite.
type SuiteOptions struct {
	// Parallel bounds concurrent journeys. Values below 1 mean 1.
	Parallel int

	// Simulator options applied to every journey's simulator.
	Simulator []Option

	// Prepare, when set, adjusts each journey's run options.
	Prepare func(def *Definition, opts *Options)
}

// RunSuite runs defs concurrently, each on its own page with its own
// simulator. Journey failures are reported per entry; the returned error
// is only set when ctx ends the suite.
func RunSuite(ctx context.Context, factory PageFactory, defs []*Definition, opts SuiteOptions) ([]SuiteResult, error) {
	results := make([]SuiteResult, len(defs))
	parallel := opts.Parallel
	if parallel < 1 {
		parallel = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallel)
	for i, def := range defs {
		g.Go(func() error {
			results[i] = runOne(gctx, factory, def, opts)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, ctx.Err()
}

func runOne(ctx context.Context, factory PageFactory, def *Definition, opts SuiteOptions) SuiteResult {
	out := SuiteResult{Name: def.Name}
	if err := ctx.Err(); err != nil {
		out.Err = err.Error()
		return out
	}

	p, release, err := factory(ctx)
	if err != nil {
		out.Err = fmt.Sprintf("failed to open page: %v", err)
		return out
	}
	if release != nil {
		defer release()
	}

	runOpts := OptionsFor(def)
	if opts.Prepare != nil {
		opts.Prepare(def, &runOpts)
	}
	res, err := NewSimulator(p, opts.Simulator...).RunJourney(ctx, runOpts)
	out.Result = res
	if err != nil {
		out.Err = err.Error()
	}
	return out
}
