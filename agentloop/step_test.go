package agentloop

import (
	"errors"
	"testing"
)

func TestDecodeStepVariants(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		kind     StepKind
		content  string
		function string
		input    ToolInput
	}{
		{
			name:    "plan",
			raw:     `{"step":"plan","content":"look around"}`,
			kind:    StepPlan,
			content: "look around",
		},
		{
			name:     "positional action",
			raw:      `{"step":"action","function":"run_command","input":"ls -la"}`,
			kind:     StepAction,
			function: "run_command",
			input:    PositionalInput("ls -la"),
		},
		{
			name:     "named action",
			raw:      `{"step":"action","function":"write_file","input":{"path":"a/b.txt","content":"hi"}}`,
			kind:     StepAction,
			function: "write_file",
			input:    NamedInput(map[string]string{"path": "a/b.txt", "content": "hi"}),
		},
		{
			name:     "action without input",
			raw:      `{"step":"action","function":"get_system_info"}`,
			kind:     StepAction,
			function: "get_system_info",
			input:    ToolInput{Kind: InputNone},
		},
		{
			name:     "null input",
			raw:      `{"step":"action","function":"get_system_info","input":null}`,
			kind:     StepAction,
			function: "get_system_info",
			input:    ToolInput{Kind: InputNone},
		},
		{
			name: "output missing content",
			raw:  `{"step":"output"}`,
			kind: StepOutput,
		},
		{
			name:    "non-string content kept as JSON",
			raw:     `{"step":"observe","content":{"files":2}}`,
			kind:    StepObserve,
			content: `{"files":2}`,
		},
		{
			name:    "end",
			raw:     `{"step":"end","content":"bye"}`,
			kind:    StepEnd,
			content: "bye",
		},
		{
			name:    "code fence and prose",
			raw:     "Sure!\n```json\n{\"step\": \"plan\", \"content\": \"fenced\"}\n```",
			kind:    StepPlan,
			content: "fenced",
		},
		{
			name:    "first of two objects",
			raw:     `{"step":"plan","content":"one"} {"step":"output","content":"two"}`,
			kind:    StepPlan,
			content: "one",
		},
		{
			name:     "numeric input is positional",
			raw:      `{"step":"action","function":"read_file","input":42}`,
			kind:     StepAction,
			function: "read_file",
			input:    PositionalInput("42"),
		},
		{
			name:    "step is case-insensitive",
			raw:     `{"step":" Plan ","content":"x"}`,
			kind:    StepPlan,
			content: "x",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			step, err := DecodeStep(tt.raw)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if step.Kind != tt.kind {
				t.Errorf("expected kind %q, got %q", tt.kind, step.Kind)
			}
			if step.Content != tt.content {
				t.Errorf("expected content %q, got %q", tt.content, step.Content)
			}
			if step.Function != tt.function {
				t.Errorf("expected function %q, got %q", tt.function, step.Function)
			}
			if step.Input.Kind != tt.input.Kind || step.Input.Value != tt.input.Value {
				t.Errorf("expected input %+v, got %+v", tt.input, step.Input)
			}
			if len(step.Input.Named) != len(tt.input.Named) {
				t.Fatalf("expected %d named args, got %d", len(tt.input.Named), len(step.Input.Named))
			}
			for k, v := range tt.input.Named {
				if step.Input.Named[k] != v {
					t.Errorf("named %s: expected %q, got %q", k, v, step.Input.Named[k])
				}
			}
		})
	}
}

func TestDecodeStepUnknownKind(t *testing.T) {
	for _, raw := range []string{
		`{"step":"get_system","function":"get_system_info"}`,
		`{"content":"no step field"}`,
	} {
		step, err := DecodeStep(raw)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", raw, err)
		}
		if step.Kind.Known() {
			t.Errorf("%s: expected unknown kind, got %q", raw, step.Kind)
		}
	}
}

func TestDecodeStepEmpty(t *testing.T) {
	for _, raw := range []string{"", "   \n\t"} {
		_, err := DecodeStep(raw)
		if !errors.Is(err, ErrEmptyResponse) {
			t.Errorf("%q: expected ErrEmptyResponse, got %v", raw, err)
		}
	}
}

func TestDecodeStepMalformed(t *testing.T) {
	for _, raw := range []string{
		"I will now plan.",
		`{"step": "plan", "content": "unterminated`,
		`["step", "plan"]`,
	} {
		_, err := DecodeStep(raw)
		if !errors.Is(err, ErrMalformedResponse) {
			t.Errorf("%q: expected ErrMalformedResponse, got %v", raw, err)
			continue
		}
		var malformed *MalformedResponseError
		if !errors.As(err, &malformed) || malformed.Raw != raw {
			t.Errorf("%q: expected raw text to be carried, got %+v", raw, malformed)
		}
	}
}

func TestDecodeStepRawIsCompact(t *testing.T) {
	step, err := DecodeStep("{\n  \"step\": \"plan\",\n  \"content\": \"a <b>\"\n}")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := `{"step":"plan","content":"a <b>"}`
	if step.Raw != want {
		t.Errorf("expected raw %s, got %s", want, step.Raw)
	}
}

func TestStepKindPredicates(t *testing.T) {
	for _, k := range []StepKind{StepOutput, StepEnd} {
		if !k.IsTerminal() {
			t.Errorf("expected %q to be terminal", k)
		}
	}
	for _, k := range []StepKind{StepStart, StepPlan, StepAction, StepObserve} {
		if k.IsTerminal() {
			t.Errorf("expected %q not to be terminal", k)
		}
		if !k.Known() {
			t.Errorf("expected %q to be known", k)
		}
	}
	if StepKind("").Known() {
		t.Error("expected empty kind to be unknown")
	}
}

func TestToolInputString(t *testing.T) {
	in := NamedInput(map[string]string{"path": "a.txt", "content": "hi"})
	if got := in.String(); got != `{content="hi", path="a.txt"}` {
		t.Errorf("unexpected rendering %s", got)
	}
	if got := PositionalInput("ls").String(); got != "ls" {
		t.Errorf("unexpected rendering %s", got)
	}
	if got := (ToolInput{}).String(); got != "" {
		t.Errorf("expected empty rendering, got %q", got)
	}
}
