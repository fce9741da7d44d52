package tools

import "context"

// Tool is the interface for all tools.
//
// Run never fails at the Go level: a tool that cannot do its job reports it through an
// "error" key in the returned map, which is handed to the model like any other result.
type Tool interface {
	Name() string
	Description() string
	Parameters() []Parameter
	Run(ctx context.Context, args map[string]any) map[string]any
}

// ParamType is a JSON schema primitive type.
type ParamType string

const (
	ParamTypeString  ParamType = "string"
	ParamTypeNumber  ParamType = "number"
	ParamTypeInteger ParamType = "integer"
	ParamTypeBoolean ParamType = "boolean"
	ParamTypeArray   ParamType = "array"
	ParamTypeObject  ParamType = "object"
)

// Parameter defines a tool parameter.
type Parameter struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Type        ParamType `json:"type"`
	Required    bool      `json:"required"`
}

// Declaration is what the model is told about a tool.
type Declaration struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Parameters  []Parameter `json:"parameters"`
}

// JSONSchema renders the parameters as a JSON schema object.
func (d Declaration) JSONSchema() map[string]any {
	props := make(map[string]any, len(d.Parameters))
	required := make([]string, 0)
	for _, p := range d.Parameters {
		prop := map[string]any{"type": string(p.Type)}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		props[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}
	schema := map[string]any{"type": "object", "properties": props}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// ErrorResult is the conventional failure payload.
func ErrorResult(msg string) map[string]any {
	return map[string]any{"error": msg}
}
