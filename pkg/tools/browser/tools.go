package browser

import "github.com/entrhq/journeyforge/pkg/tools"

// Tools returns the session management tools over manager.
func Tools(manager *SessionManager, defaults SessionOptions) []tools.Tool {
	return []tools.Tool{
		NewStartSessionTool(manager, defaults),
		NewListSessionsTool(manager),
		NewCloseSessionTool(manager),
	}
}
