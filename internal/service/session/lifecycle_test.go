package session

import (
	"sync"
	"testing"

	"ai-suggestion-relay-service/internal/fault"
)

func TestState_String(t *testing.T) {
	tests := []struct {
		state    State
		expected string
	}{
		{StateIdle, "IDLE"},
		{StateStarting, "STARTING"},
		{StateStreaming, "STREAMING"},
		{StateFinishing, "FINISHING"},
		{StateDrained, "DRAINED"},
		{StateErrored, "ERRORED"},
		{StateClosed, "CLOSED"},
		{State(99), "UNKNOWN(99)"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := tt.state.String(); got != tt.expected {
				t.Errorf("State.String() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestState_IsTerminal(t *testing.T) {
	if StateErrored.IsTerminal() != true {
		t.Error("expected ERRORED to be terminal")
	}
	if StateClosed.IsTerminal() != true {
		t.Error("expected CLOSED to be terminal")
	}
	for _, s := range []State{StateIdle, StateStarting, StateStreaming, StateFinishing, StateDrained} {
		if s.IsTerminal() {
			t.Errorf("expected %v to not be terminal", s)
		}
	}
}

func TestLifecycle_HappyPath(t *testing.T) {
	l := NewLifecycle("sess-1")

	if l.State() != StateIdle {
		t.Fatalf("expected IDLE, got %v", l.State())
	}
	if err := l.Begin(); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := l.MarkStreaming(); err != nil {
		t.Fatalf("MarkStreaming: %v", err)
	}
	if !l.CanAcceptAudio() {
		t.Error("expected audio to be accepted while streaming")
	}
	if err := l.BeginFinishing(); err != nil {
		t.Fatalf("BeginFinishing: %v", err)
	}
	if l.CanAcceptAudio() {
		t.Error("expected audio to be rejected while finishing")
	}
	if err := l.MarkDrained(); err != nil {
		t.Fatalf("MarkDrained: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if l.State() != StateClosed {
		t.Errorf("expected CLOSED, got %v", l.State())
	}
}

func TestLifecycle_BeginFinishing_Idempotent(t *testing.T) {
	l := NewLifecycle("sess-1")
	l.Begin()
	l.MarkStreaming()

	if err := l.BeginFinishing(); err != nil {
		t.Fatalf("first BeginFinishing: %v", err)
	}
	if err := l.BeginFinishing(); err != nil {
		t.Fatalf("second BeginFinishing should be a no-op, got %v", err)
	}
	if l.State() != StateFinishing {
		t.Errorf("expected FINISHING, got %v", l.State())
	}
}

func TestLifecycle_BeginFinishing_FromIdle(t *testing.T) {
	l := NewLifecycle("sess-1")

	err := l.BeginFinishing()
	if !fault.Is(err, fault.KindInvalidState) {
		t.Errorf("expected invalid-state fault, got %v", err)
	}
}

func TestLifecycle_MarkStreaming_FromIdle(t *testing.T) {
	l := NewLifecycle("sess-1")

	err := l.MarkStreaming()
	if !fault.Is(err, fault.KindInvalidState) {
		t.Errorf("expected invalid-state fault, got %v", err)
	}
}

func TestLifecycle_MarkDrained_RequiresFinishing(t *testing.T) {
	l := NewLifecycle("sess-1")
	l.Begin()
	l.MarkStreaming()

	err := l.MarkDrained()
	if !fault.Is(err, fault.KindInvalidState) {
		t.Errorf("expected invalid-state fault, got %v", err)
	}
}

func TestLifecycle_Fail(t *testing.T) {
	l := NewLifecycle("sess-1")
	l.Begin()
	l.MarkStreaming()

	if !l.Fail() {
		t.Error("expected Fail to transition from STREAMING")
	}
	if l.State() != StateErrored {
		t.Errorf("expected ERRORED, got %v", l.State())
	}
	if l.Fail() {
		t.Error("expected second Fail to report already terminal")
	}
}

func TestLifecycle_Close_FromErrored(t *testing.T) {
	l := NewLifecycle("sess-1")
	l.Begin()
	l.Fail()

	if err := l.Close(); err != nil {
		t.Fatalf("Close from ERRORED: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close should be idempotent: %v", err)
	}
}

func TestLifecycle_Close_FromStreaming(t *testing.T) {
	l := NewLifecycle("sess-1")
	l.Begin()
	l.MarkStreaming()

	err := l.Close()
	if !fault.Is(err, fault.KindInvalidState) {
		t.Errorf("expected invalid-state fault, got %v", err)
	}
}

func TestGenerator_UniqueIds(t *testing.T) {
	g := NewGenerator()

	seen := make(map[string]bool)
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := g.Next()
			mu.Lock()
			defer mu.Unlock()
			if seen[id] {
				t.Errorf("duplicate session id %s", id)
			}
			seen[id] = true
		}()
	}
	wg.Wait()
}
