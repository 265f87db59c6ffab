package recorder

import (
	"context"

	"github.com/entrhq/journeyforge/pkg/journey"
	"github.com/entrhq/journeyforge/pkg/page"
)

// postProcess cleans up the captured steps in order: consecutive
// navigations collapse to the last one, consecutive identical steps
// collapse to the first one, and selectors are re-checked against the
// current DOM. Cleared inputs are kept as type steps with an empty value.
func (r *Recorder) postProcess(ctx context.Context, p page.Controller, steps []captured) []captured {
	steps = mergeNavigations(steps)
	steps = dedupe(steps)
	r.reResolve(ctx, p, steps)
	return steps
}

// mergeNavigations keeps only the final destination of each run of
// consecutive navigate steps.
func mergeNavigations(steps []captured) []captured {
	out := steps[:0:0]
	for _, c := range steps {
		if n := len(out); n > 0 && c.step.Action == journey.ActionNavigate && out[n-1].step.Action == journey.ActionNavigate {
			kept := out[n-1].step.ID
			out[n-1] = c
			out[n-1].step.ID = kept
			continue
		}
		out = append(out, c)
	}
	return out
}

// dedupe collapses consecutive steps with the same action, selector and value.
func dedupe(steps []captured) []captured {
	out := steps[:0:0]
	for _, c := range steps {
		if n := len(out); n > 0 {
			prev := out[n-1].step
			if prev.Action == c.step.Action && prev.Selector == c.step.Selector && sameValue(prev.Value, c.step.Value) {
				continue
			}
		}
		out = append(out, c)
	}
	return out
}

func sameValue(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// reResolve re-checks each recorded selector. One that no longer matches
// exactly one element is replaced by the best unique candidate for the
// same element, or kept and flagged when there is none.
func (r *Recorder) reResolve(ctx context.Context, p page.Controller, steps []captured) {
	if p == nil {
		return
	}
	resolver, err := r.stopResolver(ctx, p)
	if err != nil {
		r.logger.Warnf("recording %s: skipping selector re-check: %v", r.id, err)
		return
	}
	for i := range steps {
		c := &steps[i]
		if c.target == nil || c.step.Selector == "" {
			continue
		}
		n, err := resolver.Count(ctx, c.step.Selector)
		if err == nil && n == 1 {
			c.step.SelectorUnstable = false
			continue
		}
		if ctx.Err() != nil {
			return
		}
		best, fallbacks, ok, err := r.suggester.Best(ctx, resolver, c.target, maxFallbacks)
		if err != nil {
			return
		}
		if !ok {
			c.step.SelectorUnstable = true
			continue
		}
		if best.Selector != c.step.Selector {
			r.logger.Debugf("recording %s: %s selector %q replaced by %q", r.id, c.step.ID, c.step.Selector, best.Selector)
		}
		c.step.Selector = best.Selector
		c.step.FallbackSelectors = selectorStrings(fallbacks)
		c.step.SelectorUnstable = false
		c.step.Description = describe(c.step)
	}
}
