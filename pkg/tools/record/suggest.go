package record

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/entrhq/journeyforge/pkg/page"
	"github.com/entrhq/journeyforge/pkg/selector"
	"github.com/entrhq/journeyforge/pkg/tools"
)

// SuggestTool ranks selectors for an element.
type SuggestTool struct {
	pages     Pages
	suggester *selector.Suggester
}

// NewSuggestTool creates a suggest tool.
func NewSuggestTool(pages Pages) *SuggestTool {
	return &SuggestTool{pages: pages, suggester: selector.NewSuggester()}
}

// Name returns the tool name.
func (t *SuggestTool) Name() string {
	return "suggest_selectors"
}

// Description returns the tool description.
func (t *SuggestTool) Description() string {
	return "Rank candidate selectors for an element by reliability, checking each for uniqueness on the page. Give either the element description or a selector that finds it."
}

// Schema returns the tool's JSON schema.
func (t *SuggestTool) Schema() map[string]interface{} {
	return tools.BaseToolSchema(
		map[string]interface{}{
			"session":  tools.StringProp("Browser session whose page the selectors are checked against"),
			"selector": tools.StringProp("Selector of the element to describe (css, xpath= or text=)"),
			"element":  tools.ObjectProp("Element description: {tag, id, classes, attributes, text, cssPath, xpath}"),
			"snapshot": tools.BoolProp("Check uniqueness against an HTML snapshot instead of the live page"),
		},
		[]string{"session"},
	)
}

// SuggestInput defines the input parameters for suggesting selectors.
type SuggestInput struct {
	Session  string                  `json:"session"`
	Selector string                  `json:"selector,omitempty"`
	Element  *page.ElementDescriptor `json:"element,omitempty"`
	Snapshot bool                    `json:"snapshot,omitempty"`
}

type suggestOutput struct {
	Element     *page.ElementDescriptor `json:"element"`
	Suggestions []selector.Suggestion   `json:"suggestions"`
}

// Execute ranks the selectors.
func (t *SuggestTool) Execute(ctx context.Context, args json.RawMessage) (string, map[string]interface{}, error) {
	var input SuggestInput
	if err := tools.DecodeArgs(args, &input); err != nil {
		return "", nil, err
	}
	if input.Session == "" {
		return "", nil, fmt.Errorf("session is required")
	}
	if input.Element == nil && input.Selector == "" {
		return "", nil, fmt.Errorf("element or selector is required")
	}
	p, err := t.pages.Page(input.Session)
	if err != nil {
		return "", nil, err
	}

	desc := input.Element
	if desc == nil {
		if desc, err = page.Describe(ctx, p, input.Selector); err != nil {
			return "", nil, err
		}
	}

	var resolver selector.Resolver = selector.NewPageResolver(p)
	if input.Snapshot {
		if resolver, err = selector.SnapshotResolver(ctx, p); err != nil {
			return "", nil, err
		}
	}
	suggestions, err := t.suggester.Suggest(ctx, resolver, desc)
	if err != nil {
		return "", nil, err
	}
	if suggestions == nil {
		suggestions = []selector.Suggestion{}
	}
	return tools.JSONResult(suggestOutput{Element: desc, Suggestions: suggestions})
}
