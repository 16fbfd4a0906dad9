// Package actionreg is the Action/Observation Registry (spec.md section
// 4.2): a bidirectional map between the closed enumeration of action tags
// and their concrete Action record types, each exposing a JSON-schema
// synthesized from field metadata, a constructor from a JSON argument
// blob, and a handler that turns an Action into an Observation.
package actionreg

import (
	"encoding/json"

	"github.com/GAIR-NLP/agentcore/pkg/types"
)

type jsonSchemaProperty struct {
	Type        string   `json:"type"`
	Description string   `json:"description,omitempty"`
	Enum        []string `json:"enum,omitempty"`
	Default     any      `json:"default,omitempty"`
}

type jsonSchema struct {
	Type       string                         `json:"type"`
	Properties map[string]jsonSchemaProperty  `json:"properties"`
	Required   []string                       `json:"required,omitempty"`
}

// BuildSchema synthesizes a JSON Schema object from per-field metadata
// (spec.md section 9, "Dynamic Action catalog": a per-Action-type builder
// supplies a schema descriptor instead of runtime reflection over fields).
func BuildSchema(fields []types.FieldSpec) json.RawMessage {
	schema := jsonSchema{
		Type:       "object",
		Properties: make(map[string]jsonSchemaProperty, len(fields)),
	}
	for _, f := range fields {
		schema.Properties[f.Name] = jsonSchemaProperty{
			Type:        string(f.Type),
			Description: f.Description,
			Enum:        f.Enum,
			Default:     f.Default,
		}
		if f.Required {
			schema.Required = append(schema.Required, f.Name)
		}
	}
	raw, err := json.Marshal(schema)
	if err != nil {
		// Field metadata is static and author-controlled; a marshal
		// failure here is a programmer error, not a runtime condition.
		panic("actionreg: failed to marshal schema: " + err.Error())
	}
	return raw
}
