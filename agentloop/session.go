package agentloop

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/martinemde/stepagent/unifiedllm"
)

// SessionState represents where the dispatcher is in its cycle.
type SessionState string

const (
	StateAwaitingUserInput SessionState = "awaiting_user_input"
	StateRequestingModel   SessionState = "requesting_model"
	StatePlanOrObserve     SessionState = "plan_or_observe"
	StateDispatchingAction SessionState = "dispatching_action"
	StateTerminal          SessionState = "terminal"
	StateClosed            SessionState = "closed"
)

// ErrSessionClosed is returned by Submit after Close.
var ErrSessionClosed = errors.New("session is closed")

// LLMClient is the part of unifiedllm.Client a session needs.
type LLMClient interface {
	Complete(ctx context.Context, req unifiedllm.Request) (*unifiedllm.Response, error)
}

// SessionConfig holds configuration for a session.
type SessionConfig struct {
	Model       string   `json:"model"`
	Provider    string   `json:"provider,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`

	EnableLoopDetection bool `json:"enable_loop_detection"`
	LoopDetectionWindow int  `json:"loop_detection_window"`

	// ContextWindow overrides the catalog's context window for the
	// context usage warning.
	ContextWindow int `json:"context_window,omitempty"`

	// BackendRetry spaces out re-requests after retryable backend failures.
	BackendRetry unifiedllm.RetryPolicy `json:"-"`
	// MaxBackendFailures ends the turn after this many consecutive
	// retryable failures. 0 = keep retrying until cancelled.
	MaxBackendFailures int `json:"max_backend_failures"`

	// Instructions are appended last to the system prompt.
	Instructions string `json:"instructions,omitempty"`
	// LoadProjectDocs appends AGENTS.md files to the system prompt.
	LoadProjectDocs bool `json:"load_project_docs"`
}

// DefaultSessionConfig returns the default configuration.
func DefaultSessionConfig() SessionConfig {
	retry := unifiedllm.DefaultRetryPolicy()
	retry.MaxDelay = 30
	return SessionConfig{
		Model:               "gemini-2.0-flash",
		Provider:            "gemini",
		EnableLoopDetection: true,
		LoopDetectionWindow: 6,
		BackendRetry:        retry,
		LoadProjectDocs:     true,
	}
}

// RequestOptions are the per-request parameters derived from configuration.
type RequestOptions struct {
	Model       string
	Provider    string
	Temperature *float64
	MaxTokens   *int
}

// BuildRequest constructs the backend request for a conversation. It is a
// pure function of its arguments.
func BuildRequest(messages []Message, opts RequestOptions) unifiedllm.Request {
	msgs := make([]Message, len(messages))
	copy(msgs, messages)
	return unifiedllm.Request{
		Model:          opts.Model,
		Provider:       opts.Provider,
		Messages:       msgs,
		ResponseFormat: &unifiedllm.ResponseFormat{Type: unifiedllm.FormatJSONObject},
		Temperature:    opts.Temperature,
		MaxTokens:      opts.MaxTokens,
	}
}

// Session owns the conversation and drives the step loop.
type Session struct {
	id           string
	profile      Profile
	env          ExecutionEnvironment
	registry     *ToolRegistry
	invoker      *Invoker
	conversation *Conversation
	client       LLMClient
	emitter      *EventEmitter
	config       SessionConfig
	logger       *slog.Logger

	state         SessionState
	usage         unifiedllm.Usage
	contextWarned bool
	mu            sync.Mutex
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithLogger sets the session logger.
func WithLogger(logger *slog.Logger) SessionOption {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithEventHandler subscribes h before the session starts.
func WithEventHandler(h EventHandler) SessionOption {
	return func(s *Session) {
		s.emitter.Subscribe(h)
	}
}

// NewSession creates a session. The system prompt is built once from the
// profile, the registry and the environment and seeds the conversation.
func NewSession(client LLMClient, profile Profile, registry *ToolRegistry, env ExecutionEnvironment, config *SessionConfig, opts ...SessionOption) *Session {
	sessionID := uuid.New().String()

	cfg := DefaultSessionConfig()
	if config != nil {
		cfg = *config
	}

	s := &Session{
		id:       sessionID,
		profile:  profile,
		env:      env,
		registry: registry,
		client:   client,
		emitter:  NewEventEmitter(sessionID),
		config:   cfg,
		logger:   slog.New(slog.DiscardHandler),
		state:    StateAwaitingUserInput,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("session", sessionID)
	s.invoker = NewInvoker(registry, env, s.logger)

	projectDocs := ""
	if cfg.LoadProjectDocs && env != nil {
		projectDocs = DiscoverProjectDocs(env.WorkingDirectory())
	}
	s.conversation = NewConversation(profile.BuildSystemPrompt(registry, env, cfg.Model, projectDocs, cfg.Instructions))

	s.emitter.Emit(EventSessionStart, map[string]any{
		"profile":  profile.ID(),
		"model":    cfg.Model,
		"provider": cfg.Provider,
		"tools":    registry.Names(),
	})
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Profile returns the session profile.
func (s *Session) Profile() Profile { return s.profile }

// State returns the current dispatcher state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(state SessionState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateClosed {
		s.state = state
	}
}

// History returns a copy of the conversation.
func (s *Session) History() []Message {
	return s.conversation.Messages()
}

// Usage returns the token usage accumulated across all requests.
func (s *Session) Usage() unifiedllm.Usage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.usage
}

// Subscribe registers an event handler.
func (s *Session) Subscribe(h EventHandler) {
	s.emitter.Subscribe(h)
}

// Close ends the session. Further Submit calls fail with ErrSessionClosed.
func (s *Session) Close() {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	s.state = StateClosed
	usage := s.usage
	s.mu.Unlock()

	s.emitter.Emit(EventSessionEnd, map[string]any{
		"messages":     s.conversation.Len(),
		"total_tokens": usage.TotalTokens,
	})
	s.emitter.Close()
}

func (s *Session) requestOptions() RequestOptions {
	return RequestOptions{
		Model:       s.config.Model,
		Provider:    s.config.Provider,
		Temperature: s.config.Temperature,
		MaxTokens:   s.config.MaxTokens,
	}
}

// Submit appends the operator's input and runs the step loop until the
// model produces a terminal step, whose content is returned. Malformed
// replies, unknown steps and tool failures never end the loop; only ctx
// cancellation, a non-retryable backend error or too many consecutive
// backend failures do, and the session remains usable afterwards.
func (s *Session) Submit(ctx context.Context, input string) (string, error) {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return "", ErrSessionClosed
	}
	s.mu.Unlock()
	defer s.setState(StateAwaitingUserInput)

	s.conversation.Append(unifiedllm.UserMessage(input))
	s.emitter.Emit(EventUserInput, map[string]any{"content": input})

	failures := 0
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		s.setState(StateRequestingModel)
		resp, err := s.request(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			failures++
			if !unifiedllm.IsRetryable(err) {
				return "", fmt.Errorf("model request failed: %w", err)
			}
			if s.config.MaxBackendFailures > 0 && failures >= s.config.MaxBackendFailures {
				return "", fmt.Errorf("model request failed %d times: %w", failures, err)
			}
			if err := s.config.BackendRetry.Sleep(ctx, failures-1); err != nil {
				return "", err
			}
			continue
		}
		failures = 0

		step, err := DecodeStep(resp.Text())
		if err != nil {
			s.logger.WarnContext(ctx, "undecodable model reply", "error", err, "response_id", resp.ID)
			s.emitter.Emit(EventDecodeError, map[string]any{
				"error": err.Error(),
				"raw":   resp.Text(),
			})
			continue
		}

		if !step.Kind.Known() {
			s.logger.WarnContext(ctx, "ignoring unknown step", "step", string(step.Kind), "raw", step.Raw)
			s.emitter.Emit(EventUnknownStep, map[string]any{
				"step": string(step.Kind),
				"raw":  step.Raw,
			})
			continue
		}

		s.conversation.Append(StepMessage(step))

		switch {
		case step.Kind.IsTerminal():
			s.setState(StateTerminal)
			s.emitStep(step)
			s.emitter.Emit(EventFinalOutput, map[string]any{"content": step.Content})
			return step.Content, nil

		case step.Kind == StepAction:
			s.setState(StateDispatchingAction)
			s.emitStep(step)
			output := s.dispatch(ctx, step)
			s.conversation.Append(ObservationMessage(output))
			s.checkLoop(ctx)

		default:
			s.setState(StatePlanOrObserve)
			s.emitStep(step)
		}

		s.checkContextUsage(ctx)
	}
}

func (s *Session) request(ctx context.Context) (*unifiedllm.Response, error) {
	req := BuildRequest(s.conversation.Messages(), s.requestOptions())
	s.emitter.Emit(EventModelRequest, map[string]any{"messages": len(req.Messages)})

	resp, err := s.client.Complete(ctx, req)
	if err != nil {
		if ctx.Err() == nil {
			retryable := unifiedllm.IsRetryable(err)
			s.logger.ErrorContext(ctx, "model request failed", "error", err, "retryable", retryable)
			s.emitter.Emit(EventBackendError, map[string]any{
				"error":     err.Error(),
				"retryable": retryable,
			})
		}
		return nil, err
	}
	if resp == nil {
		resp = &unifiedllm.Response{}
	}

	s.mu.Lock()
	s.usage = s.usage.Add(resp.Usage)
	s.mu.Unlock()
	for _, w := range resp.Warnings {
		s.logger.WarnContext(ctx, "model response warning", "warning", w.Message, "code", w.Code)
	}
	return resp, nil
}

func (s *Session) emitStep(step Step) {
	data := map[string]any{
		"step":    string(step.Kind),
		"content": step.Content,
	}
	if step.Kind == StepAction {
		data["function"] = step.Function
		data["input"] = step.Input.String()
	}
	s.emitter.Emit(EventStep, data)
}

// dispatch invokes the action's tool and returns the observation text.
func (s *Session) dispatch(ctx context.Context, step Step) string {
	start := map[string]any{
		"tool":  step.Function,
		"input": step.Input.String(),
	}
	if path, ok := step.Input.Named["path"]; ok {
		start["path"] = path
	}
	s.emitter.Emit(EventToolCallStart, start)
	s.logger.InfoContext(ctx, "tool call", "tool", step.Function, "input_kind", step.Input.Kind.String())

	output, err := s.invoker.Invoke(ctx, step.Function, step.Input)
	if err != nil {
		s.logger.WarnContext(ctx, "tool call rejected", "tool", step.Function, "error", err)
		output = Observation(err)
	}

	s.emitter.Emit(EventToolCallEnd, map[string]any{
		"tool":   step.Function,
		"output": output,
	})
	return output
}

func (s *Session) checkLoop(ctx context.Context) {
	if !s.config.EnableLoopDetection || s.config.LoopDetectionWindow <= 1 {
		return
	}
	if DetectLoop(s.conversation.Messages(), s.config.LoopDetectionWindow) {
		msg := fmt.Sprintf("the last %d actions follow a repeating pattern", s.config.LoopDetectionWindow)
		s.logger.WarnContext(ctx, "loop detected", "window", s.config.LoopDetectionWindow)
		s.emitter.Emit(EventLoopDetection, map[string]any{"message": msg})
	}
}

// checkContextUsage warns once when the transcript passes 80% of the
// model's context window. Nothing is evicted.
func (s *Session) checkContextUsage(ctx context.Context) {
	s.mu.Lock()
	warned := s.contextWarned
	s.mu.Unlock()
	if warned {
		return
	}

	window := s.config.ContextWindow
	if window <= 0 {
		window = unifiedllm.ContextWindowFor(s.config.Model)
	}
	approx := s.conversation.ApproxTokens()
	if approx*5 <= window*4 {
		return
	}

	s.mu.Lock()
	s.contextWarned = true
	s.mu.Unlock()

	pct := approx * 100 / window
	s.logger.WarnContext(ctx, "context usage high", "approx_tokens", approx, "context_window", window)
	s.emitter.Emit(EventWarning, map[string]any{
		"message": fmt.Sprintf("Context usage at ~%d%% of context window", pct),
	})
}
