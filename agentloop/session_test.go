package agentloop

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/martinemde/stepagent/unifiedllm"
)

// scriptedClient replays a fixed sequence of replies. Each entry is either a
// string (the reply text) or an error.
type scriptedClient struct {
	mu       sync.Mutex
	script   []any
	requests []unifiedllm.Request
}

func newScriptedClient(script ...any) *scriptedClient {
	return &scriptedClient{script: script}
}

func (c *scriptedClient) Complete(ctx context.Context, req unifiedllm.Request) (*unifiedllm.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = append(c.requests, req)
	if len(c.script) == 0 {
		return nil, errors.New("script exhausted")
	}
	next := c.script[0]
	c.script = c.script[1:]
	if err, ok := next.(error); ok {
		return nil, err
	}
	return &unifiedllm.Response{
		ID:      "resp",
		Message: unifiedllm.AssistantMessage(next.(string)),
		Usage:   unifiedllm.Usage{InputTokens: 10, OutputTokens: 5, TotalTokens: 15},
	}, nil
}

func (c *scriptedClient) requestCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.requests)
}

func testSessionConfig() *SessionConfig {
	cfg := DefaultSessionConfig()
	cfg.LoadProjectDocs = false
	cfg.BackendRetry = unifiedllm.RetryPolicy{BaseDelay: 0.001, MaxDelay: 0.001, BackoffMultiplier: 1}
	return &cfg
}

type eventLog struct {
	mu     sync.Mutex
	events []SessionEvent
}

func (l *eventLog) handle(e SessionEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) ofKind(kind EventKind) []SessionEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []SessionEvent
	for _, e := range l.events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

func newTestSession(t *testing.T, client LLMClient, cfg *SessionConfig) (*Session, *eventLog, string) {
	t.Helper()
	dir := t.TempDir()
	registry, err := NewCoreToolRegistry(0)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	if cfg == nil {
		cfg = testSessionConfig()
	}
	log := &eventLog{}
	s := NewSession(client, NewCoderProfile(), registry, NewLocalExecutionEnvironment(dir), cfg,
		WithEventHandler(log.handle))
	t.Cleanup(s.Close)
	return s, log, dir
}

func TestSessionCreateHelloFile(t *testing.T) {
	client := newScriptedClient(
		`{"step":"start","content":"User wants a hello file."}`,
		`{"step":"plan","content":"Write proj/hello.txt"}`,
		`{"step":"action","function":"write_file","input":{"path":"proj/hello.txt","content":"hello"}}`,
		`{"step":"output","content":"done"}`,
	)
	s, log, dir := newTestSession(t, client, nil)

	answer, err := s.Submit(context.Background(), "create a hello file")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if answer != "done" {
		t.Errorf("expected answer 'done', got %q", answer)
	}

	data, err := os.ReadFile(filepath.Join(dir, "proj", "hello.txt"))
	if err != nil {
		t.Fatalf("expected file to be written: %v", err)
	}
	if string(data) != "hello" {
		t.Errorf("expected file content 'hello', got %q", data)
	}

	// system, user, start, plan, action, observe, output
	history := s.History()
	if len(history) != 7 {
		t.Fatalf("expected 7 messages, got %d", len(history))
	}
	if history[0].Role != unifiedllm.RoleSystem || history[1].Role != unifiedllm.RoleUser {
		t.Errorf("unexpected leading roles %s, %s", history[0].Role, history[1].Role)
	}
	observe := history[5]
	if observe.Role != unifiedllm.RoleAssistant {
		t.Errorf("expected observation role assistant, got %s", observe.Role)
	}
	if !strings.Contains(observe.Content, `"step":"observe"`) ||
		!strings.Contains(observe.Content, "proj/hello.txt created and code written successfully.") {
		t.Errorf("unexpected observation %s", observe.Content)
	}

	if client.requestCount() != 4 {
		t.Errorf("expected 4 model requests, got %d", client.requestCount())
	}
	starts := log.ofKind(EventToolCallStart)
	if len(starts) != 1 || starts[0].String("path") != "proj/hello.txt" {
		t.Errorf("expected one tool_call_start with path, got %+v", starts)
	}
	if len(log.ofKind(EventFinalOutput)) != 1 {
		t.Error("expected one final_output event")
	}
	if s.State() != StateAwaitingUserInput {
		t.Errorf("expected awaiting_user_input after turn, got %s", s.State())
	}
	if s.Usage().TotalTokens != 60 {
		t.Errorf("expected 60 total tokens, got %d", s.Usage().TotalTokens)
	}
}

func TestSessionRequestsCarryWholeConversation(t *testing.T) {
	client := newScriptedClient(
		`{"step":"plan","content":"p"}`,
		`{"step":"output","content":"o"}`,
	)
	s, _, _ := newTestSession(t, client, nil)

	if _, err := s.Submit(context.Background(), "hi"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(client.requests[0].Messages) != 2 {
		t.Errorf("first request: expected 2 messages, got %d", len(client.requests[0].Messages))
	}
	if len(client.requests[1].Messages) != 3 {
		t.Errorf("second request: expected 3 messages, got %d", len(client.requests[1].Messages))
	}
	for i, req := range client.requests {
		if !req.WantsJSON() {
			t.Errorf("request %d: expected json_object format", i)
		}
		if req.Model != "gemini-2.0-flash" || req.Provider != "gemini" {
			t.Errorf("request %d: unexpected model/provider %s/%s", i, req.Model, req.Provider)
		}
	}
}

func TestSessionMalformedReplyIsRetriedOnce(t *testing.T) {
	client := newScriptedClient(
		"this is not json",
		`{"step":"output","content":"ok"}`,
	)
	s, log, _ := newTestSession(t, client, nil)

	answer, err := s.Submit(context.Background(), "hi")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if answer != "ok" {
		t.Errorf("expected 'ok', got %q", answer)
	}
	if client.requestCount() != 2 {
		t.Errorf("expected exactly one retry, got %d requests", client.requestCount())
	}
	if len(client.requests[0].Messages) != len(client.requests[1].Messages) {
		t.Error("malformed reply must not be appended to the conversation")
	}
	if len(log.ofKind(EventDecodeError)) != 1 {
		t.Error("expected one decode_error event")
	}
	// system, user, output
	if len(s.History()) != 3 {
		t.Errorf("expected 3 messages, got %d", len(s.History()))
	}
}

func TestSessionEmptyReplyIsRetried(t *testing.T) {
	client := newScriptedClient("", `{"step":"output","content":"ok"}`)
	s, _, _ := newTestSession(t, client, nil)

	if _, err := s.Submit(context.Background(), "hi"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client.requestCount() != 2 {
		t.Errorf("expected 2 requests, got %d", client.requestCount())
	}
}

func TestSessionUnknownStepIsSkipped(t *testing.T) {
	client := newScriptedClient(
		`{"step":"think","content":"hmm"}`,
		`{"step":"output","content":"ok"}`,
	)
	s, log, _ := newTestSession(t, client, nil)

	if _, err := s.Submit(context.Background(), "hi"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, m := range s.History() {
		if strings.Contains(m.Content, `"think"`) {
			t.Error("unknown step must not be appended")
		}
	}
	events := log.ofKind(EventUnknownStep)
	if len(events) != 1 || events[0].String("step") != "think" {
		t.Errorf("expected one unknown_step event for 'think', got %+v", events)
	}
}

func TestSessionUnknownToolObservation(t *testing.T) {
	client := newScriptedClient(
		`{"step":"action","function":"launch_rocket","input":"now"}`,
		`{"step":"output","content":"sorry"}`,
	)
	s, _, _ := newTestSession(t, client, nil)

	if _, err := s.Submit(context.Background(), "hi"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// The second request carries the action and exactly one observation.
	second := client.requests[1].Messages
	if len(second) != 4 {
		t.Fatalf("expected 4 messages in second request, got %d", len(second))
	}
	obs := second[3].Content
	if !strings.Contains(obs, "Unknown tool: launch_rocket") || !strings.Contains(obs, "run_command") {
		t.Errorf("unexpected observation %s", obs)
	}
}

func TestSessionReadMissingFileObservation(t *testing.T) {
	client := newScriptedClient(
		`{"step":"action","function":"read_file","input":"nope.txt"}`,
		`{"step":"output","content":"missing"}`,
	)
	s, _, _ := newTestSession(t, client, nil)

	if _, err := s.Submit(context.Background(), "read nope.txt"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := ObservationMessage(FileNotFound)
	if got := client.requests[1].Messages[3]; got != want {
		t.Errorf("expected %+v, got %+v", want, got)
	}
}

func TestSessionArgumentMismatchObservation(t *testing.T) {
	client := newScriptedClient(
		`{"step":"action","function":"write_file","input":"just a string"}`,
		`{"step":"output","content":"ok"}`,
	)
	s, _, _ := newTestSession(t, client, nil)

	if _, err := s.Submit(context.Background(), "hi"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	obs := client.requests[1].Messages[3].Content
	if !strings.Contains(obs, "❌ Error: write_file: expects named input {path, content}") {
		t.Errorf("unexpected observation %s", obs)
	}
}

func TestSessionEndIsTerminal(t *testing.T) {
	client := newScriptedClient(`{"step":"end","content":"bye"}`)
	s, _, _ := newTestSession(t, client, nil)

	answer, err := s.Submit(context.Background(), "hi")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if answer != "bye" {
		t.Errorf("expected 'bye', got %q", answer)
	}
}

func TestSessionMultipleTurns(t *testing.T) {
	client := newScriptedClient(
		`{"step":"output","content":"one"}`,
		`{"step":"output","content":"two"}`,
	)
	s, _, _ := newTestSession(t, client, nil)

	for _, want := range []string{"one", "two"} {
		got, err := s.Submit(context.Background(), "again")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != want {
			t.Errorf("expected %q, got %q", want, got)
		}
	}
	// system, user, output, user, output
	if len(s.History()) != 5 {
		t.Errorf("expected 5 messages, got %d", len(s.History()))
	}
}

func TestSessionRetryableBackendError(t *testing.T) {
	client := newScriptedClient(
		unifiedllm.ErrorFromStatusCode(503, "overloaded", "gemini", "", nil, nil),
		`{"step":"output","content":"recovered"}`,
	)
	s, log, _ := newTestSession(t, client, nil)

	answer, err := s.Submit(context.Background(), "hi")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if answer != "recovered" {
		t.Errorf("expected 'recovered', got %q", answer)
	}
	events := log.ofKind(EventBackendError)
	if len(events) != 1 || events[0].Data["retryable"] != true {
		t.Errorf("expected one retryable backend_error event, got %+v", events)
	}
}

func TestSessionNonRetryableBackendError(t *testing.T) {
	client := newScriptedClient(
		unifiedllm.ErrorFromStatusCode(401, "bad key", "gemini", "", nil, nil),
	)
	s, _, _ := newTestSession(t, client, nil)

	_, err := s.Submit(context.Background(), "hi")
	var authErr *unifiedllm.AuthenticationError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected AuthenticationError, got %v", err)
	}
	if client.requestCount() != 1 {
		t.Errorf("expected no retry, got %d requests", client.requestCount())
	}

	// The session stays usable.
	client.script = []any{`{"step":"output","content":"ok"}`}
	if _, err := s.Submit(context.Background(), "again"); err != nil {
		t.Errorf("expected session to remain usable, got %v", err)
	}
}

func TestSessionMaxBackendFailures(t *testing.T) {
	overloaded := unifiedllm.ErrorFromStatusCode(503, "overloaded", "gemini", "", nil, nil)
	client := newScriptedClient(overloaded, overloaded, overloaded)
	cfg := testSessionConfig()
	cfg.MaxBackendFailures = 2
	s, _, _ := newTestSession(t, client, cfg)

	if _, err := s.Submit(context.Background(), "hi"); err == nil {
		t.Fatal("expected an error after repeated failures")
	}
	if client.requestCount() != 2 {
		t.Errorf("expected 2 requests, got %d", client.requestCount())
	}
}

func TestSessionCancelledContext(t *testing.T) {
	client := newScriptedClient(`{"step":"output","content":"never"}`)
	s, _, _ := newTestSession(t, client, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Submit(ctx, "hi"); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if client.requestCount() != 0 {
		t.Errorf("expected no requests, got %d", client.requestCount())
	}
}

func TestSessionClosed(t *testing.T) {
	client := newScriptedClient()
	s, log, _ := newTestSession(t, client, nil)

	s.Close()
	s.Close()
	if _, err := s.Submit(context.Background(), "hi"); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("expected ErrSessionClosed, got %v", err)
	}
	if s.State() != StateClosed {
		t.Errorf("expected closed state, got %s", s.State())
	}
	if len(log.ofKind(EventSessionEnd)) != 1 {
		t.Error("expected exactly one session_end event")
	}
}

func TestSessionLoopDetection(t *testing.T) {
	action := `{"step":"action","function":"get_system_info","input":""}`
	script := []any{}
	for i := 0; i < 4; i++ {
		script = append(script, action)
	}
	script = append(script, `{"step":"output","content":"stop"}`)
	client := newScriptedClient(script...)

	cfg := testSessionConfig()
	cfg.LoopDetectionWindow = 4
	s, log, _ := newTestSession(t, client, cfg)

	if _, err := s.Submit(context.Background(), "hi"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(log.ofKind(EventLoopDetection)) == 0 {
		t.Error("expected a loop_detection event")
	}
}

func TestSessionContextWarningOnce(t *testing.T) {
	client := newScriptedClient(
		`{"step":"plan","content":"a"}`,
		`{"step":"plan","content":"b"}`,
		`{"step":"output","content":"c"}`,
	)
	cfg := testSessionConfig()
	cfg.ContextWindow = 10
	s, log, _ := newTestSession(t, client, cfg)

	if _, err := s.Submit(context.Background(), "hi"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	warnings := log.ofKind(EventWarning)
	if len(warnings) != 1 {
		t.Fatalf("expected one warning, got %d", len(warnings))
	}
	if !strings.Contains(warnings[0].String("message"), "Context usage") {
		t.Errorf("unexpected warning %q", warnings[0].String("message"))
	}
}

func TestBuildRequestIsPure(t *testing.T) {
	messages := []Message{
		unifiedllm.SystemMessage("sys"),
		unifiedllm.UserMessage("hi"),
	}
	opts := RequestOptions{Model: "m", Provider: "p"}

	a := BuildRequest(messages, opts)
	b := BuildRequest(messages, opts)
	if len(a.Messages) != len(b.Messages) || a.Model != b.Model || a.Provider != b.Provider {
		t.Fatalf("expected identical requests, got %+v and %+v", a, b)
	}
	for i := range a.Messages {
		if a.Messages[i] != b.Messages[i] {
			t.Errorf("message %d differs", i)
		}
	}

	a.Messages[0].Content = "mutated"
	if messages[0].Content != "sys" {
		t.Error("BuildRequest must copy the messages")
	}
	if !a.WantsJSON() {
		t.Error("expected json_object response format")
	}
}

func TestSessionSystemPromptFromProfile(t *testing.T) {
	client := newScriptedClient()
	s, log, _ := newTestSession(t, client, nil)

	history := s.History()
	if len(history) != 1 || history[0].Role != unifiedllm.RoleSystem {
		t.Fatalf("expected a single system message, got %+v", history)
	}
	for _, name := range []string{ToolRunCommand, ToolReadFile, ToolWriteFile, ToolFixErrors, ToolGetSystemInfo} {
		if !strings.Contains(history[0].Content, name) {
			t.Errorf("system prompt should mention %s", name)
		}
	}
	if len(log.ofKind(EventSessionStart)) != 1 {
		t.Error("expected one session_start event")
	}
}
