package agentloop

import (
	"bytes"
	"encoding/json"
	"strings"
	"sync"

	"github.com/martinemde/stepagent/unifiedllm"
)

// Message is a role-tagged conversation entry. Content is always text.
type Message = unifiedllm.Message

// Conversation is the ordered, append-only message log sent in full on every
// model request. It is seeded with exactly one system message and is never
// truncated.
type Conversation struct {
	mu       sync.Mutex
	messages []Message
}

// NewConversation creates a conversation seeded with the system prompt.
func NewConversation(systemPrompt string) *Conversation {
	return &Conversation{
		messages: []Message{unifiedllm.SystemMessage(systemPrompt)},
	}
}

// Append adds msg and returns the new length.
func (c *Conversation) Append(msg Message) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, msg)
	return len(c.messages)
}

// Messages returns a copy of the log.
func (c *Conversation) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Len returns the number of messages.
func (c *Conversation) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.messages)
}

// ApproxTokens estimates the transcript size at four characters per token.
func (c *Conversation) ApproxTokens() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	chars := 0
	for _, m := range c.messages {
		chars += len(m.Content)
	}
	return chars / 4
}

// StepMessage is the assistant message recorded for a decoded step.
func StepMessage(step Step) Message {
	return unifiedllm.AssistantMessage(step.Raw)
}

// ObservationMessage wraps a tool result as an assistant observe step.
func ObservationMessage(content string) Message {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	// Encoding a struct of two strings cannot fail.
	_ = enc.Encode(struct {
		Step    StepKind `json:"step"`
		Content string   `json:"content"`
	}{StepObserve, content})
	return unifiedllm.AssistantMessage(strings.TrimRight(buf.String(), "\n"))
}
