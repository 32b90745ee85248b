package agentloop

import (
	"strings"
	"sync"
	"testing"

	"github.com/martinemde/stepagent/unifiedllm"
	"github.com/tidwall/gjson"
)

func TestConversationSeededWithSystemPrompt(t *testing.T) {
	c := NewConversation("be helpful")
	if c.Len() != 1 {
		t.Fatalf("expected 1 message, got %d", c.Len())
	}
	if seed := c.Messages()[0]; seed.Role != unifiedllm.RoleSystem || seed.Content != "be helpful" {
		t.Errorf("unexpected seed %+v", seed)
	}
}

func TestConversationAppendAndCopy(t *testing.T) {
	c := NewConversation("sys")
	if n := c.Append(unifiedllm.UserMessage("hi")); n != 2 {
		t.Errorf("expected length 2, got %d", n)
	}

	msgs := c.Messages()
	msgs[1].Content = "changed"
	if msgs := c.Messages(); msgs[len(msgs)-1].Content != "hi" {
		t.Error("Messages must return a copy")
	}
}

func TestConversationConcurrentAppend(t *testing.T) {
	c := NewConversation("sys")
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Append(unifiedllm.UserMessage("x"))
		}()
	}
	wg.Wait()
	if c.Len() != 51 {
		t.Errorf("expected 51 messages, got %d", c.Len())
	}
}

func TestConversationApproxTokens(t *testing.T) {
	c := NewConversation(strings.Repeat("a", 400))
	c.Append(unifiedllm.UserMessage(strings.Repeat("b", 40)))
	if got := c.ApproxTokens(); got != 110 {
		t.Errorf("expected 110, got %d", got)
	}
}

func TestObservationMessage(t *testing.T) {
	msg := ObservationMessage("line1\n<b> & \"quoted\" ✅")
	if msg.Role != unifiedllm.RoleAssistant {
		t.Errorf("expected assistant role, got %s", msg.Role)
	}
	if strings.HasSuffix(msg.Content, "\n") {
		t.Error("observation must not end with a newline")
	}
	if !gjson.Valid(msg.Content) {
		t.Fatalf("observation is not valid JSON: %s", msg.Content)
	}
	if got := gjson.Get(msg.Content, "step").String(); got != "observe" {
		t.Errorf("expected observe step, got %q", got)
	}
	if got := gjson.Get(msg.Content, "content").String(); got != "line1\n<b> & \"quoted\" ✅" {
		t.Errorf("content not preserved: %q", got)
	}
	if strings.Contains(msg.Content, `\u003c`) {
		t.Error("HTML characters should not be escaped")
	}
}

func TestStepMessageRecordsRaw(t *testing.T) {
	step, err := DecodeStep(`noise {"step": "plan", "content": "x"} trailing`)
	if err != nil {
		t.Fatal(err)
	}
	msg := StepMessage(step)
	if msg.Role != unifiedllm.RoleAssistant || msg.Content != `{"step":"plan","content":"x"}` {
		t.Errorf("unexpected step message %+v", msg)
	}
}
