package journeys

import (
	"time"

	"github.com/entrhq/journeyforge/pkg/journey"
	"github.com/entrhq/journeyforge/pkg/logging"
	"github.com/entrhq/journeyforge/pkg/tools"
)

// Config wires the journey tools.
type Config struct {
	Runner      *Runner
	Definitions Definitions
	History     History
	MaxDuration time.Duration
	Optimize    []journey.OptimizeOption
	Logger      *logging.Logger
}

// Tools returns the journey tools. journey_history is included only when a
// history is configured.
func Tools(cfg Config) []tools.Tool {
	out := []tools.Tool{
		NewRunTool(cfg.Runner, cfg.Definitions, cfg.History, cfg.MaxDuration, cfg.Logger),
		NewStopTool(cfg.Runner),
		NewValidateTool(cfg.Definitions),
		NewOptimizeTool(cfg.Definitions, cfg.Optimize...),
		NewSaveTool(cfg.Definitions),
		NewListTool(cfg.Definitions),
	}
	if cfg.History != nil {
		out = append(out, NewHistoryTool(cfg.History))
	}
	return out
}
