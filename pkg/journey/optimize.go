package journey

import "time"

// OptimizeOption configures OptimizeDefinition.
type OptimizeOption func(*optimizeConfig)

type optimizeConfig struct {
	defaultTimeout time.Duration
	now            func() time.Time
}

// WithDefaultStepTimeout applies d to every step without a timeout instead
// of the per-action default.
func WithDefaultStepTimeout(d time.Duration) OptimizeOption {
	return func(c *optimizeConfig) { c.defaultTimeout = d }
}

// WithOptimizeClock sets the time used for the Modified stamp.
func WithOptimizeClock(now func() time.Time) OptimizeOption {
	return func(c *optimizeConfig) { c.now = now }
}

// OptimizeDefinition returns a copy of def in which every step without a
// timeout gets a default one, and Modified is updated. Steps are neither
// reordered nor removed, and explicit timeouts are kept, so applying it
// twice yields the same timeouts.
func OptimizeDefinition(def *Definition, opts ...OptimizeOption) *Definition {
	cfg := optimizeConfig{now: time.Now}
	for _, opt := range opts {
		opt(&cfg)
	}

	out := def.Clone()
	if out == nil {
		return nil
	}
	for i := range out.Steps {
		if out.Steps[i].Timeout > 0 {
			continue
		}
		d := cfg.defaultTimeout
		if d <= 0 {
			d = DefaultTimeout(out.Steps[i].Action)
		}
		out.Steps[i].Timeout = int(d.Milliseconds())
	}
	out.Modified = cfg.now()
	return out
}
