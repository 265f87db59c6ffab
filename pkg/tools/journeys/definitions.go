package journeys

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/entrhq/journeyforge/pkg/journey"
	"github.com/entrhq/journeyforge/pkg/store"
	"github.com/entrhq/journeyforge/pkg/tools"
)

// ValidateTool checks a journey definition without running it.
type ValidateTool struct {
	defs Definitions
}

// NewValidateTool creates a validate tool.
func NewValidateTool(defs Definitions) *ValidateTool {
	return &ValidateTool{defs: defs}
}

// Name returns the tool name.
func (t *ValidateTool) Name() string {
	return "validate_journey"
}

// Description returns the tool description.
func (t *ValidateTool) Description() string {
	return "Validate a journey definition. Reports blocking errors and non-blocking warnings."
}

// Schema returns the tool's JSON schema.
func (t *ValidateTool) Schema() map[string]interface{} {
	return tools.BaseToolSchema(definitionProps(nil), nil)
}

// Execute validates the definition.
func (t *ValidateTool) Execute(ctx context.Context, args json.RawMessage) (string, map[string]interface{}, error) {
	var input DefinitionInput
	if err := tools.DecodeArgs(args, &input); err != nil {
		return "", nil, err
	}
	def, err := input.resolve(t.defs)
	if err != nil {
		return "", nil, err
	}
	vr := journey.ValidateDefinition(def)
	text, _, err := tools.JSONResult(vr)
	return text, map[string]interface{}{"isValid": vr.IsValid}, err
}

// OptimizeTool fills default step timeouts.
type OptimizeTool struct {
	defs Definitions
	opts []journey.OptimizeOption
}

// NewOptimizeTool creates an optimize tool.
func NewOptimizeTool(defs Definitions, opts ...journey.OptimizeOption) *OptimizeTool {
	return &OptimizeTool{defs: defs, opts: opts}
}

// Name returns the tool name.
func (t *OptimizeTool) Name() string {
	return "optimize_journey"
}

// Description returns the tool description.
func (t *OptimizeTool) Description() string {
	return "Give every step without a timeout a default one. Steps are never reordered or removed. Set save to write the result to the journey store."
}

// Schema returns the tool's JSON schema.
func (t *OptimizeTool) Schema() map[string]interface{} {
	return tools.BaseToolSchema(definitionProps(map[string]interface{}{
		"save": tools.BoolProp("Save the optimized journey to the journey store"),
	}), nil)
}

// OptimizeInput defines the input parameters for optimizing a journey.
type OptimizeInput struct {
	DefinitionInput
	Save bool `json:"save,omitempty"`
}

// Execute optimizes and optionally saves the definition.
func (t *OptimizeTool) Execute(ctx context.Context, args json.RawMessage) (string, map[string]interface{}, error) {
	var input OptimizeInput
	if err := tools.DecodeArgs(args, &input); err != nil {
		return "", nil, err
	}
	def, err := input.resolve(t.defs)
	if err != nil {
		return "", nil, err
	}

	optimized := journey.OptimizeDefinition(def, t.opts...)
	out := savedOutput{Journey: optimized}
	if input.Save {
		if out.Path, err = t.defs.Save(optimized); err != nil {
			return "", nil, err
		}
	}
	return tools.JSONResult(out)
}

type savedOutput struct {
	Journey  *journey.Definition `json:"journey"`
	Path     string              `json:"path,omitempty"`
	Warnings []string            `json:"warnings,omitempty"`
}

// SaveTool writes a definition to the journey store.
type SaveTool struct {
	defs Definitions
}

// NewSaveTool creates a save tool.
func NewSaveTool(defs Definitions) *SaveTool {
	return &SaveTool{defs: defs}
}

// Name returns the tool name.
func (t *SaveTool) Name() string {
	return "save_journey"
}

// Description returns the tool description.
func (t *SaveTool) Description() string {
	return "Validate a journey and save it to the journey store, replacing any journey with the same name."
}

// Schema returns the tool's JSON schema.
func (t *SaveTool) Schema() map[string]interface{} {
	return tools.BaseToolSchema(map[string]interface{}{
		"journey": definitionProps(nil)["journey"],
		"yaml":    definitionProps(nil)["yaml"],
	}, nil)
}

// Execute validates and saves the definition. Invalid definitions are
// rejected.
func (t *SaveTool) Execute(ctx context.Context, args json.RawMessage) (string, map[string]interface{}, error) {
	var input DefinitionInput
	if err := tools.DecodeArgs(args, &input); err != nil {
		return "", nil, err
	}
	if !input.inline() {
		return "", nil, fmt.Errorf("journey or yaml is required")
	}
	def, err := input.resolve(t.defs)
	if err != nil {
		return "", nil, err
	}
	vr := journey.ValidateDefinition(def)
	if !vr.IsValid {
		return "", nil, invalidError(vr)
	}

	path, err := t.defs.Save(def)
	if err != nil {
		return "", nil, err
	}
	saved, err := t.defs.Get(def.Name)
	if err != nil {
		return "", nil, err
	}
	return tools.JSONResult(savedOutput{Journey: saved, Path: path, Warnings: vr.Warnings})
}

// ListTool lists stored journeys.
type ListTool struct {
	defs Definitions
}

// NewListTool creates a list tool.
func NewListTool(defs Definitions) *ListTool {
	return &ListTool{defs: defs}
}

// Name returns the tool name.
func (t *ListTool) Name() string {
	return "list_journeys"
}

// Description returns the tool description.
func (t *ListTool) Description() string {
	return "List the journeys in the journey store with their step counts and sources."
}

// Schema returns the tool's JSON schema.
func (t *ListTool) Schema() map[string]interface{} {
	return tools.BaseToolSchema(map[string]interface{}{}, nil)
}

// Execute lists the store.
func (t *ListTool) Execute(ctx context.Context, args json.RawMessage) (string, map[string]interface{}, error) {
	summaries := t.defs.List()
	if summaries == nil {
		summaries = []store.Summary{}
	}
	return tools.JSONResult(map[string]interface{}{
		"count":    len(summaries),
		"journeys": summaries,
	})
}
