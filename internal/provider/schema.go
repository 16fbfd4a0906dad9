package provider

import (
	"encoding/json"

	"github.com/cloudwego/eino/schema"
)

// parseJSONSchemaToParams converts the Action/Observation Registry's
// JSON Schema (internal/actionreg.BuildSchema output) into eino's
// ParameterInfo map, grounded on the teacher's own
// parseJSONSchemaToParams in internal/provider/provider.go.
func parseJSONSchemaToParams(schemaJSON []byte) map[string]*schema.ParameterInfo {
	var parsed struct {
		Properties map[string]struct {
			Type        string `json:"type"`
			Description string `json:"description"`
		} `json:"properties"`
		Required []string `json:"required"`
	}
	if len(schemaJSON) == 0 {
		return nil
	}
	if err := json.Unmarshal(schemaJSON, &parsed); err != nil {
		return nil
	}

	required := make(map[string]bool, len(parsed.Required))
	for _, r := range parsed.Required {
		required[r] = true
	}

	params := make(map[string]*schema.ParameterInfo, len(parsed.Properties))
	for name, prop := range parsed.Properties {
		paramType := schema.String
		switch prop.Type {
		case "integer":
			paramType = schema.Integer
		case "number":
			paramType = schema.Number
		case "boolean":
			paramType = schema.Boolean
		case "array":
			paramType = schema.Array
		case "object":
			paramType = schema.Object
		}
		params[name] = &schema.ParameterInfo{
			Type:     paramType,
			Desc:     prop.Description,
			Required: required[name],
		}
	}
	return params
}
