package record

import (
	"github.com/entrhq/journeyforge/pkg/recorder"
	"github.com/entrhq/journeyforge/pkg/tools"
)

// Tools returns the recorder tools.
func Tools(pages Pages, registry *recorder.Registry, saver Saver, defaults recorder.Options) []tools.Tool {
	return []tools.Tool{
		NewStartTool(pages, registry, defaults),
		NewStopTool(registry, saver),
		NewPauseTool(registry),
		NewResumeTool(registry),
		NewStatusTool(registry),
		NewSuggestTool(pages),
	}
}
