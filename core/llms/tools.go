package llms

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Tool is a function definition exposed to the model together with its local
// implementation. Execute unmarshals the model-provided argument JSON and
// runs the action, returning a human-readable status string.
type Tool struct {
	Type     string       `json:"type"`
	Function ToolFunction `json:"function"`

	execute func(arguments string) (string, error)
}

type ToolFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  ToolParameters `json:"parameters"`
}

type ToolParameters struct {
	Type       string                   `json:"type"`
	Properties map[string]ParameterBase `json:"properties"`
	Required   []string                 `json:"required,omitempty"`
}

type ParameterBase struct {
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}

// NewTool builds a tool whose arguments decode into T. Parameter names in the
// schema are expected to match T's json tags; a decode failure is reported as
// an execution error, not a panic.
func NewTool[T any](name, description string, parameters map[string]ParameterBase, execute func(T) (string, error)) Tool {
	required := make([]string, 0, len(parameters))
	for parameterName := range parameters {
		required = append(required, parameterName)
	}
	sort.Strings(required)

	return Tool{
		Type: "function",
		Function: ToolFunction{
			Name:        name,
			Description: description,
			Parameters: ToolParameters{
				Type:       "object",
				Properties: parameters,
				Required:   required,
			},
		},
		execute: func(arguments string) (string, error) {
			var parsed T
			if err := json.Unmarshal([]byte(arguments), &parsed); err != nil {
				return "", fmt.Errorf("failed to parse arguments for tool %q: %w", name, err)
			}
			return execute(parsed)
		},
	}
}

func (t Tool) Execute(arguments string) (string, error) {
	if t.execute == nil {
		return "", fmt.Errorf("tool %q has no implementation", t.Function.Name)
	}
	return t.execute(arguments)
}

// FindTool returns the tool with the given name, or false when the model
// asked for something that was never defined.
func FindTool(tools []Tool, name string) (Tool, bool) {
	for _, tool := range tools {
		if tool.Function.Name == name {
			return tool, true
		}
	}
	return Tool{}, false
}
