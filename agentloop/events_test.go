package agentloop

import "testing"

func TestEventEmitterDeliversInOrder(t *testing.T) {
	e := NewEventEmitter("sess-1")
	var first, second []EventKind
	e.Subscribe(func(ev SessionEvent) { first = append(first, ev.Kind) })
	e.Subscribe(func(ev SessionEvent) {
		if ev.SessionID != "sess-1" {
			t.Errorf("expected session id sess-1, got %s", ev.SessionID)
		}
		if ev.Timestamp.IsZero() {
			t.Error("expected a timestamp")
		}
		second = append(second, ev.Kind)
	})

	e.Emit(EventStep, map[string]any{"step": "plan"})
	e.Emit(EventFinalOutput, nil)

	for _, got := range [][]EventKind{first, second} {
		if len(got) != 2 || got[0] != EventStep || got[1] != EventFinalOutput {
			t.Errorf("unexpected delivery %v", got)
		}
	}
}

func TestEventEmitterClose(t *testing.T) {
	e := NewEventEmitter("s")
	count := 0
	e.Subscribe(func(SessionEvent) { count++ })
	e.Close()
	e.Close()
	e.Emit(EventStep, nil)
	if count != 0 {
		t.Errorf("expected no events after close, got %d", count)
	}
}

func TestSessionEventString(t *testing.T) {
	ev := SessionEvent{Data: map[string]any{"tool": "read_file", "n": 3}}
	if ev.String("tool") != "read_file" {
		t.Error("expected string field")
	}
	if ev.String("n") != "" || ev.String("missing") != "" {
		t.Error("non-string and missing fields should be empty")
	}
}
