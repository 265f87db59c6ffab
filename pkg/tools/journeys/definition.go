// Package journeys exposes journey execution, validation, optimization,
// storage and run history as tools.
package journeys

import (
	"context"
	"errors"
	"fmt"

	"github.com/entrhq/journeyforge/pkg/history"
	"github.com/entrhq/journeyforge/pkg/journey"
	"github.com/entrhq/journeyforge/pkg/store"
	"github.com/entrhq/journeyforge/pkg/tools"
)

// Definitions is the journey store the tools read and write.
type Definitions interface {
	Get(name string) (*journey.Definition, error)
	Save(def *journey.Definition) (string, error)
	List() []store.Summary
}

// History is the run history the tools append to and query.
type History interface {
	Record(ctx context.Context, res *journey.Result) error
	List(ctx context.Context, name string, limit int) ([]history.Run, error)
	Get(ctx context.Context, id string) (*journey.Result, error)
	Stats(ctx context.Context, name string) (history.Stats, error)
}

// DefinitionInput selects a definition: a stored one by name, an inline
// JSON object or an inline YAML document. Inline forms win over Name.
type DefinitionInput struct {
	Name    string              `json:"name,omitempty"`
	Journey *journey.Definition `json:"journey,omitempty"`
	YAML    string              `json:"yaml,omitempty"`
}

var errNoDefinition = errors.New("one of name, journey or yaml is required")

func (in DefinitionInput) resolve(defs Definitions) (*journey.Definition, error) {
	switch {
	case in.Journey != nil:
		return in.Journey.Clone(), nil
	case in.YAML != "":
		def, err := store.Decode([]byte(in.YAML), ".yaml")
		if err != nil {
			return nil, err
		}
		return def, nil
	case in.Name != "":
		def, err := defs.Get(in.Name)
		if err != nil {
			return nil, err
		}
		return def, nil
	default:
		return nil, errNoDefinition
	}
}

// inline reports whether the input carries its own definition.
func (in DefinitionInput) inline() bool {
	return in.Journey != nil || in.YAML != ""
}

func definitionProps(extra map[string]interface{}) map[string]interface{} {
	props := map[string]interface{}{
		"name":    tools.StringProp("Name of a stored journey"),
		"journey": tools.ObjectProp("Inline journey definition: {name, description, steps: [{id, action, selector, value, timeout, retryCount, onError, condition}]}"),
		"yaml":    tools.StringProp("Inline journey definition as a YAML document"),
	}
	for k, v := range extra {
		props[k] = v
	}
	return props
}

func invalidError(vr journey.ValidationResult) error {
	return fmt.Errorf("invalid journey: %v", vr.Errors)
}
