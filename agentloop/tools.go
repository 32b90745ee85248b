package agentloop

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// ToolExecutor runs a tool with its bound arguments. Returned errors are
// folded into the observation text by the Invoker.
type ToolExecutor func(ctx context.Context, args map[string]string, env ExecutionEnvironment) (string, error)

// ToolDefinition describes a tool for the model (serializable metadata).
type ToolDefinition struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Parameters  *jsonschema.Schema `json:"parameters,omitempty"`
}

// Param is one declared tool parameter. Order matters: positional input
// binds to the first parameter.
type Param struct {
	Name        string
	Description string
	Required    bool
}

// RegisteredTool pairs a tool definition with its executor.
type RegisteredTool struct {
	Definition ToolDefinition
	Params     []Param
	// Input is the input shape the tool expects from an action step.
	Input    InputKind
	Executor ToolExecutor
}

// ParamNames returns the declared parameter names in order.
func (t *RegisteredTool) ParamNames() []string {
	names := make([]string, len(t.Params))
	for i, p := range t.Params {
		names[i] = p.Name
	}
	return names
}

// ToolRegistry maps tool names to tools. It is built once and is read-only
// afterwards, so lookups need no locking.
type ToolRegistry struct {
	tools map[string]*RegisteredTool
	order []string
}

// NewToolRegistry builds a registry from tools. Empty or duplicate names are
// rejected.
func NewToolRegistry(tools ...RegisteredTool) (*ToolRegistry, error) {
	r := &ToolRegistry{
		tools: make(map[string]*RegisteredTool, len(tools)),
	}
	for i := range tools {
		tool := tools[i]
		name := tool.Definition.Name
		if name == "" {
			return nil, fmt.Errorf("tool %d has no name", i)
		}
		if tool.Executor == nil {
			return nil, fmt.Errorf("tool %s has no executor", name)
		}
		if _, dup := r.tools[name]; dup {
			return nil, fmt.Errorf("tool %s registered twice", name)
		}
		r.tools[name] = &tool
		r.order = append(r.order, name)
	}
	return r, nil
}

// Get returns a registered tool by name, or nil if not found.
func (r *ToolRegistry) Get(name string) *RegisteredTool {
	return r.tools[name]
}

// Tools returns the registered tools in registration order.
func (r *ToolRegistry) Tools() []*RegisteredTool {
	tools := make([]*RegisteredTool, 0, len(r.order))
	for _, name := range r.order {
		tools = append(tools, r.tools[name])
	}
	return tools
}

// Names returns the tool names in registration order.
func (r *ToolRegistry) Names() []string {
	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

// Count returns the number of registered tools.
func (r *ToolRegistry) Count() int {
	return len(r.order)
}

// GenerateSchema derives a JSON schema from the struct T.
func GenerateSchema[T any]() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	return reflector.Reflect(v)
}

// SchemaJSON renders a schema compactly for inclusion in a prompt.
func SchemaJSON(s *jsonschema.Schema) string {
	if s == nil {
		return ""
	}
	data, err := json.Marshal(s)
	if err != nil {
		return ""
	}
	return string(data)
}
