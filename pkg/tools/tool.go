// Package tools defines the contract shared by every journeyforge tool and
// the registry the MCP server dispatches through.
package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
)

// Tool is one callable capability. Arguments arrive as a JSON object
// matching Schema.
type Tool interface {
	// Name returns the unique identifier for this tool (e.g., "run_journey")
	Name() string

	// Description returns a human-readable description of what this tool does
	Description() string

	// Schema returns the JSON schema for this tool's input parameters
	Schema() map[string]interface{}

	// Execute runs the tool with the given JSON arguments.
	// Returns: (result text, metadata map, error)
	// Metadata is optional and can be nil.
	Execute(ctx context.Context, arguments json.RawMessage) (string, map[string]interface{}, error)
}

// BaseToolSchema creates a common JSON schema structure for a tool
// with the given properties and required fields
func BaseToolSchema(properties map[string]interface{}, required []string) map[string]interface{} {
	schema := map[string]interface{}{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// DecodeArgs unmarshals arguments into v. Empty or null arguments decode as
// an empty object.
func DecodeArgs(arguments json.RawMessage, v interface{}) error {
	trimmed := bytes.TrimSpace(arguments)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		trimmed = []byte("{}")
	}
	if err := json.Unmarshal(trimmed, v); err != nil {
		return fmt.Errorf("invalid parameters: %w", err)
	}
	return nil
}

// JSONResult encodes v as the indented JSON text of a tool result.
func JSONResult(v interface{}) (string, map[string]interface{}, error) {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", nil, fmt.Errorf("failed to encode result: %w", err)
	}
	return string(raw), nil, nil
}

// StringProp builds a string schema property.
func StringProp(description string) map[string]interface{} {
	return map[string]interface{}{"type": "string", "description": description}
}

// BoolProp builds a boolean schema property.
func BoolProp(description string) map[string]interface{} {
	return map[string]interface{}{"type": "boolean", "description": description}
}

// IntProp builds an integer schema property.
func IntProp(description string) map[string]interface{} {
	return map[string]interface{}{"type": "integer", "description": description}
}

// ObjectProp builds an object schema property.
func ObjectProp(description string) map[string]interface{} {
	return map[string]interface{}{"type": "object", "description": description}
}

// StringListProp builds a string array schema property.
func StringListProp(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "array",
		"items":       map[string]interface{}{"type": "string"},
		"description": description,
	}
}
