package agentloop

import (
	"testing"

	"github.com/martinemde/stepagent/unifiedllm"
)

func actionMessages(inputs ...string) []Message {
	msgs := []Message{unifiedllm.SystemMessage("sys"), unifiedllm.UserMessage("go")}
	for _, in := range inputs {
		msgs = append(msgs,
			unifiedllm.AssistantMessage(`{"step":"action","function":"run_command","input":"`+in+`"}`),
			ObservationMessage("ok"),
		)
	}
	return msgs
}

func TestDetectLoop(t *testing.T) {
	tests := []struct {
		name   string
		inputs []string
		window int
		want   bool
	}{
		{"same action repeated", []string{"ls", "ls", "ls", "ls"}, 4, true},
		{"alternating pair", []string{"ls", "pwd", "ls", "pwd"}, 4, true},
		{"period three", []string{"a", "b", "c", "a", "b", "c"}, 6, true},
		{"all distinct", []string{"a", "b", "c", "d"}, 4, false},
		{"too few actions", []string{"ls", "ls"}, 4, false},
		{"only recent window counts", []string{"x", "y", "ls", "ls", "ls", "ls"}, 4, true},
		{"window of one disabled", []string{"ls", "ls"}, 1, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectLoop(actionMessages(tt.inputs...), tt.window); got != tt.want {
				t.Errorf("DetectLoop = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDetectLoopIgnoresNonActions(t *testing.T) {
	msgs := []Message{
		unifiedllm.SystemMessage("sys"),
		unifiedllm.AssistantMessage(`{"step":"plan","content":"same"}`),
		unifiedllm.AssistantMessage(`{"step":"plan","content":"same"}`),
		unifiedllm.AssistantMessage("not json"),
		unifiedllm.UserMessage(`{"step":"action","function":"ls"}`),
	}
	if DetectLoop(msgs, 2) {
		t.Error("expected no loop without action steps")
	}
}

func TestDetectLoopCountsOnlyCurrentTurn(t *testing.T) {
	msgs := []Message{unifiedllm.SystemMessage("sys")}
	for i := 0; i < 6; i++ {
		msgs = append(msgs,
			unifiedllm.UserMessage("run the tests"),
			unifiedllm.AssistantMessage(`{"step":"action","function":"run_command","input":"go test ./..."}`),
			ObservationMessage("ok"),
			unifiedllm.AssistantMessage(`{"step":"output","content":"tests pass"}`),
		)
	}
	if DetectLoop(msgs, 6) {
		t.Error("actions from earlier turns should not count toward a loop")
	}
	if DetectLoop(msgs, 2) {
		t.Error("a single action in the current turn is not a loop")
	}
}
