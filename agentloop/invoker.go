package agentloop

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
)

var (
	// ErrUnknownTool means an action named a tool missing from the registry.
	ErrUnknownTool = errors.New("unknown tool")
	// ErrArgumentMismatch means an action's input did not fit the tool.
	ErrArgumentMismatch = errors.New("argument mismatch")
)

// UnknownToolError reports an action naming an unregistered tool.
type UnknownToolError struct {
	Name      string
	Available []string
}

func (e *UnknownToolError) Error() string {
	return fmt.Sprintf("unknown tool %q", e.Name)
}

func (e *UnknownToolError) Is(target error) bool { return target == ErrUnknownTool }

// ArgumentError reports input that cannot be bound to a tool's parameters.
type ArgumentError struct {
	Tool    string
	Unknown []string
	Missing []string
	Reason  string
}

func (e *ArgumentError) Error() string {
	var parts []string
	if e.Reason != "" {
		parts = append(parts, e.Reason)
	}
	if len(e.Unknown) > 0 {
		parts = append(parts, "unexpected argument(s) "+strings.Join(e.Unknown, ", "))
	}
	if len(e.Missing) > 0 {
		parts = append(parts, "missing required argument(s) "+strings.Join(e.Missing, ", "))
	}
	return fmt.Sprintf("%s: %s", e.Tool, strings.Join(parts, "; "))
}

func (e *ArgumentError) Is(target error) bool { return target == ErrArgumentMismatch }

// Invoker resolves tool names against a registry and calls them.
type Invoker struct {
	registry *ToolRegistry
	env      ExecutionEnvironment
	logger   *slog.Logger
}

// NewInvoker creates an Invoker. A nil logger discards.
func NewInvoker(registry *ToolRegistry, env ExecutionEnvironment, logger *slog.Logger) *Invoker {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Invoker{registry: registry, env: env, logger: logger}
}

// Bind normalizes input into named arguments for tool.
//
// Tools without parameters ignore input entirely. Positional input binds to
// the first declared parameter. Named input binds by name; unknown names and
// missing required parameters are an *ArgumentError.
func Bind(tool *RegisteredTool, input ToolInput) (map[string]string, error) {
	args := make(map[string]string, len(tool.Params))
	if len(tool.Params) == 0 {
		return args, nil
	}

	switch input.Kind {
	case InputPositional:
		if tool.Input == InputNamed {
			return nil, &ArgumentError{
				Tool:   tool.Definition.Name,
				Reason: "expects named input {" + strings.Join(tool.ParamNames(), ", ") + "}",
			}
		}
		args[tool.Params[0].Name] = input.Value
	case InputNamed:
		known := make(map[string]bool, len(tool.Params))
		for _, p := range tool.Params {
			known[p.Name] = true
		}
		var unknown []string
		for k, v := range input.Named {
			if !known[k] {
				unknown = append(unknown, k)
				continue
			}
			args[k] = v
		}
		if len(unknown) > 0 {
			sort.Strings(unknown)
			return nil, &ArgumentError{Tool: tool.Definition.Name, Unknown: unknown}
		}
	}

	var missing []string
	for _, p := range tool.Params {
		if _, ok := args[p.Name]; !ok && p.Required {
			missing = append(missing, p.Name)
		}
	}
	if len(missing) > 0 {
		return nil, &ArgumentError{Tool: tool.Definition.Name, Missing: missing}
	}
	return args, nil
}

// Invoke runs the named tool. Only *UnknownToolError and *ArgumentError are
// returned as errors; a tool's own failures and panics are folded into the
// returned text so they reach the model as an observation.
func (i *Invoker) Invoke(ctx context.Context, name string, input ToolInput) (string, error) {
	tool := i.registry.Get(name)
	if tool == nil {
		return "", &UnknownToolError{Name: name, Available: i.registry.Names()}
	}

	args, err := Bind(tool, input)
	if err != nil {
		return "", err
	}

	return i.run(ctx, tool, args), nil
}

func (i *Invoker) run(ctx context.Context, tool *RegisteredTool, args map[string]string) (output string) {
	defer func() {
		if r := recover(); r != nil {
			i.logger.ErrorContext(ctx, "tool panicked", "tool", tool.Definition.Name, "panic", r)
			output = fmt.Sprintf("❌ Error: %s panicked: %v", tool.Definition.Name, r)
		}
	}()

	out, err := tool.Executor(ctx, args, i.env)
	if err != nil {
		i.logger.WarnContext(ctx, "tool failed", "tool", tool.Definition.Name, "error", err)
		return "❌ Error: " + err.Error()
	}
	return out
}

// Observation converts an Invoke error into observation text.
func Observation(err error) string {
	var unknown *UnknownToolError
	if errors.As(err, &unknown) {
		return fmt.Sprintf("❌ Unknown tool: %s. Available tools: %s", unknown.Name, strings.Join(unknown.Available, ", "))
	}
	return "❌ Error: " + err.Error()
}
