package unifiedllm

import "strings"

// Role identifies who produced a message in a conversation.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is the fundamental unit of conversation. Content is always plain
// text; structured replies travel as serialized JSON inside it.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
	Name    string `json:"name,omitempty"`
}

// SystemMessage creates a system Message.
func SystemMessage(text string) Message {
	return Message{Role: RoleSystem, Content: text}
}

// UserMessage creates a user Message.
func UserMessage(text string) Message {
	return Message{Role: RoleUser, Content: text}
}

// AssistantMessage creates an assistant Message.
func AssistantMessage(text string) Message {
	return Message{Role: RoleAssistant, Content: text}
}

// Response formats understood by the adapters.
const (
	FormatText       = "text"
	FormatJSONObject = "json_object"
)

// ResponseFormat specifies the desired output format.
type ResponseFormat struct {
	Type string `json:"type"` // "text" or "json_object"
}

// FinishReason describes why generation stopped.
type FinishReason struct {
	Reason string `json:"reason"` // "stop", "length", "content_filter", "error", "other"
	Raw    string `json:"raw,omitempty"`
}

// Usage tracks token consumption.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// Add returns a new Usage that is the sum of u and other.
func (u Usage) Add(other Usage) Usage {
	return Usage{
		InputTokens:  u.InputTokens + other.InputTokens,
		OutputTokens: u.OutputTokens + other.OutputTokens,
		TotalTokens:  u.TotalTokens + other.TotalTokens,
	}
}

// Warning represents a non-fatal issue.
type Warning struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// Request is the input type for Complete.
type Request struct {
	Model          string            `json:"model"`
	Messages       []Message         `json:"messages"`
	Provider       string            `json:"provider,omitempty"`
	ResponseFormat *ResponseFormat   `json:"response_format,omitempty"`
	Temperature    *float64          `json:"temperature,omitempty"`
	MaxTokens      *int              `json:"max_tokens,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// WantsJSON reports whether the request asks for a single JSON object reply.
func (r Request) WantsJSON() bool {
	return r.ResponseFormat != nil && r.ResponseFormat.Type == FormatJSONObject
}

// Response is the output of Complete.
type Response struct {
	ID           string       `json:"id"`
	Model        string       `json:"model"`
	Provider     string       `json:"provider"`
	Message      Message      `json:"message"`
	FinishReason FinishReason `json:"finish_reason"`
	Usage        Usage        `json:"usage"`
	Warnings     []Warning    `json:"warnings,omitempty"`
}

// Text returns the reply text, or "" when the provider returned no content.
func (r *Response) Text() string {
	if r == nil {
		return ""
	}
	return r.Message.Content
}

// HasText reports whether the response carries any non-blank text.
func (r *Response) HasText() bool {
	return strings.TrimSpace(r.Text()) != ""
}
