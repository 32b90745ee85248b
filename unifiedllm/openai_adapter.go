package unifiedllm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

// Base URLs for the OpenAI-compatible chat completions endpoints.
const (
	OpenAIBaseURL = "https://api.openai.com/v1/"
	GeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai/"
)

// OpenAIAdapter talks to any OpenAI-compatible chat completions endpoint,
// including Gemini's. Unlike the gollm adapter it sends the conversation as
// real role-tagged messages and supports native JSON mode.
type OpenAIAdapter struct {
	provider string
	client   openai.Client
	model    string
}

// OpenAIAdapterOption configures an OpenAIAdapter.
type OpenAIAdapterOption func(*openAIAdapterConfig)

type openAIAdapterConfig struct {
	apiKey  string
	baseURL string
	model   string
	extra   []option.RequestOption
}

// WithOpenAIKey sets the API key.
func WithOpenAIKey(key string) OpenAIAdapterOption {
	return func(c *openAIAdapterConfig) {
		c.apiKey = key
	}
}

// WithBaseURL points the adapter at a different endpoint.
func WithBaseURL(url string) OpenAIAdapterOption {
	return func(c *openAIAdapterConfig) {
		c.baseURL = url
	}
}

// WithOpenAIModel sets the default model.
func WithOpenAIModel(model string) OpenAIAdapterOption {
	return func(c *openAIAdapterConfig) {
		c.model = model
	}
}

// WithRequestOptions adds raw openai-go request options.
func WithRequestOptions(opts ...option.RequestOption) OpenAIAdapterOption {
	return func(c *openAIAdapterConfig) {
		c.extra = append(c.extra, opts...)
	}
}

// NewOpenAIAdapter creates an adapter for provider. The "gemini" provider
// defaults to Gemini's OpenAI-compatible base URL.
func NewOpenAIAdapter(provider string, opts ...OpenAIAdapterOption) (*OpenAIAdapter, error) {
	cfg := &openAIAdapterConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.baseURL == "" {
		switch provider {
		case "gemini":
			cfg.baseURL = GeminiBaseURL
		default:
			cfg.baseURL = OpenAIBaseURL
		}
	}
	if !strings.HasSuffix(cfg.baseURL, "/") {
		cfg.baseURL += "/"
	}
	if cfg.apiKey == "" {
		return nil, &ConfigurationError{SDKError: SDKError{
			Message: fmt.Sprintf("no API key configured for provider %q", provider),
		}}
	}

	model := cfg.model
	if model == "" {
		if info := GetLatestModel(provider, "json"); info != nil {
			model = info.ID
		}
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(cfg.apiKey),
		option.WithBaseURL(cfg.baseURL),
		option.WithMaxRetries(0), // Retries live in RetryMiddleware.
	}
	reqOpts = append(reqOpts, cfg.extra...)

	return &OpenAIAdapter{
		provider: provider,
		client:   openai.NewClient(reqOpts...),
		model:    model,
	}, nil
}

// Name returns the provider identifier.
func (a *OpenAIAdapter) Name() string {
	return a.provider
}

// Complete sends a blocking chat completion request.
func (a *OpenAIAdapter) Complete(ctx context.Context, req Request) (*Response, error) {
	params := a.translateRequest(req)
	completion, err := a.client.Chat.Completions.New(ctx, params)
	if err != nil {
		if ctx.Err() != nil {
			return nil, &AbortError{SDKError: SDKError{Message: "request cancelled", Cause: ctx.Err()}}
		}
		return nil, a.translateError(err)
	}
	return a.buildResponse(string(params.Model), completion), nil
}

func (a *OpenAIAdapter) translateRequest(req Request) openai.ChatCompletionNewParams {
	model := req.Model
	if model == "" {
		model = a.model
	}

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, msg := range req.Messages {
		switch msg.Role {
		case RoleSystem:
			messages = append(messages, openai.SystemMessage(msg.Content))
		case RoleUser:
			messages = append(messages, openai.UserMessage(msg.Content))
		case RoleAssistant:
			messages = append(messages, openai.AssistantMessage(msg.Content))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(model),
		Messages: messages,
	}
	if req.WantsJSON() {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}
	if req.Temperature != nil {
		params.Temperature = openai.Float(*req.Temperature)
	}
	if req.MaxTokens != nil {
		params.MaxTokens = openai.Int(int64(*req.MaxTokens))
	}
	return params
}

func (a *OpenAIAdapter) buildResponse(model string, completion *openai.ChatCompletion) *Response {
	resp := &Response{
		ID:       completion.ID,
		Model:    completion.Model,
		Provider: a.provider,
		Message:  AssistantMessage(""),
		Usage: Usage{
			InputTokens:  int(completion.Usage.PromptTokens),
			OutputTokens: int(completion.Usage.CompletionTokens),
			TotalTokens:  int(completion.Usage.TotalTokens),
		},
	}
	if resp.ID == "" {
		resp.ID = "resp_" + uuid.New().String()[:8]
	}
	if resp.Model == "" {
		resp.Model = model
	}
	if len(completion.Choices) == 0 {
		resp.FinishReason = FinishReason{Reason: "other", Raw: "no_choices"}
		resp.Warnings = append(resp.Warnings, Warning{Message: "response contained no choices", Code: "no_choices"})
		return resp
	}

	choice := completion.Choices[0]
	raw := string(choice.FinishReason)
	resp.Message = AssistantMessage(choice.Message.Content)
	resp.FinishReason = FinishReason{Reason: normalizeFinishReason(raw), Raw: raw}
	if choice.Message.Refusal != "" {
		resp.Warnings = append(resp.Warnings, Warning{Message: choice.Message.Refusal, Code: "refusal"})
	}
	return resp
}

func normalizeFinishReason(raw string) string {
	switch raw {
	case "stop", "length", "content_filter":
		return raw
	case "":
		return "stop"
	default:
		return "other"
	}
}

// translateError maps openai-go API errors onto the unified error hierarchy.
func (a *OpenAIAdapter) translateError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return ErrorFromStatusCode(apiErr.StatusCode, apiErr.Message, a.provider, apiErr.Code, err, nil)
	}
	return &NetworkError{SDKError: SDKError{Message: fmt.Sprintf("%s request failed", a.provider), Cause: err}}
}
