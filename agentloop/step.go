package agentloop

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/tidwall/gjson"
)

// StepKind identifies which step variant a model reply carries.
type StepKind string

const (
	StepStart   StepKind = "start"
	StepPlan    StepKind = "plan"
	StepAction  StepKind = "action"
	StepObserve StepKind = "observe"
	StepOutput  StepKind = "output"
	StepEnd     StepKind = "end"
)

// Known reports whether k is one of the step kinds the loop understands.
func (k StepKind) Known() bool {
	switch k {
	case StepStart, StepPlan, StepAction, StepObserve, StepOutput, StepEnd:
		return true
	}
	return false
}

// IsTerminal reports whether k ends the inner loop.
func (k StepKind) IsTerminal() bool {
	return k == StepOutput || k == StepEnd
}

// InputKind tags the shape of an action's input.
type InputKind int

const (
	InputNone InputKind = iota
	InputPositional
	InputNamed
)

func (k InputKind) String() string {
	switch k {
	case InputPositional:
		return "positional"
	case InputNamed:
		return "named"
	default:
		return "none"
	}
}

// ToolInput is the input of an action step: absent, a single value, or a
// mapping of named string arguments.
type ToolInput struct {
	Kind  InputKind
	Value string
	Named map[string]string
}

// PositionalInput returns a single-value input.
func PositionalInput(v string) ToolInput {
	return ToolInput{Kind: InputPositional, Value: v}
}

// NamedInput returns a mapping input.
func NamedInput(args map[string]string) ToolInput {
	return ToolInput{Kind: InputNamed, Named: args}
}

// String renders the input for display.
func (in ToolInput) String() string {
	switch in.Kind {
	case InputPositional:
		return in.Value
	case InputNamed:
		keys := make([]string, 0, len(in.Named))
		for k := range in.Named {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = fmt.Sprintf("%s=%q", k, in.Named[k])
		}
		return "{" + strings.Join(parts, ", ") + "}"
	default:
		return ""
	}
}

// Step is one decoded model reply.
type Step struct {
	Kind     StepKind
	Content  string
	Function string
	Input    ToolInput

	// Raw is the compacted JSON object the step was decoded from.
	Raw string
}

var (
	// ErrEmptyResponse means the backend returned no text at all.
	ErrEmptyResponse = errors.New("empty response")
	// ErrMalformedResponse means no JSON object could be found in the reply.
	ErrMalformedResponse = errors.New("malformed response")
)

// MalformedResponseError carries the offending reply for diagnostics.
type MalformedResponseError struct {
	Raw string
	Err error
}

func (e *MalformedResponseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed response: %v", e.Err)
	}
	return "malformed response"
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }

func (e *MalformedResponseError) Is(target error) bool {
	return target == ErrMalformedResponse
}

// DecodeStep parses raw model output into a Step. The first parseable JSON
// object in raw is used; surrounding prose, code fences and trailing objects
// are ignored. A missing or unrecognised "step" field is not an error: the
// returned Step simply has an unknown Kind.
func DecodeStep(raw string) (Step, error) {
	if strings.TrimSpace(raw) == "" {
		return Step{}, ErrEmptyResponse
	}

	obj, err := firstObject(raw)
	if err != nil {
		return Step{}, &MalformedResponseError{Raw: raw, Err: err}
	}

	var compact bytes.Buffer
	if err := json.Compact(&compact, obj); err != nil {
		return Step{}, &MalformedResponseError{Raw: raw, Err: err}
	}

	parsed := gjson.ParseBytes(compact.Bytes())
	step := Step{
		Kind:     StepKind(strings.ToLower(strings.TrimSpace(parsed.Get("step").String()))),
		Content:  textOf(parsed.Get("content")),
		Function: strings.TrimSpace(parsed.Get("function").String()),
		Input:    inputOf(parsed.Get("input")),
		Raw:      compact.String(),
	}
	return step, nil
}

// firstObject returns the first complete JSON object embedded in s.
func firstObject(s string) (json.RawMessage, error) {
	lastErr := errors.New("no JSON object found")
	for i := 0; i < len(s); i++ {
		if s[i] != '{' {
			continue
		}
		dec := json.NewDecoder(strings.NewReader(s[i:]))
		var obj json.RawMessage
		if err := dec.Decode(&obj); err != nil {
			lastErr = err
			continue
		}
		return obj, nil
	}
	return nil, lastErr
}

// textOf reads a field permissively: absent and null are empty, strings are
// unquoted and anything else keeps its JSON text.
func textOf(r gjson.Result) string {
	switch {
	case !r.Exists(), r.Type == gjson.Null:
		return ""
	case r.Type == gjson.String:
		return r.Str
	default:
		return r.Raw
	}
}

func inputOf(r gjson.Result) ToolInput {
	switch {
	case !r.Exists(), r.Type == gjson.Null:
		return ToolInput{Kind: InputNone}
	case r.IsObject():
		named := make(map[string]string)
		r.ForEach(func(key, value gjson.Result) bool {
			named[key.String()] = textOf(value)
			return true
		})
		return NamedInput(named)
	default:
		return PositionalInput(textOf(r))
	}
}
