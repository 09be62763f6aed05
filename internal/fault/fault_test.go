package fault

import (
	"errors"
	"fmt"
	"testing"
)

func TestKind_String(t *testing.T) {
	tests := []struct {
		kind     Kind
		expected string
	}{
		{KindServiceUnavailable, "SERVICE_UNAVAILABLE"},
		{KindTransportError, "TRANSPORT_ERROR"},
		{KindInvalidState, "INVALID_STATE"},
		{KindSuggestionFailed, "SUGGESTION_FAILED"},
		{KindClientDisconnected, "CLIENT_DISCONNECTED"},
		{Kind(99), "UNKNOWN(99)"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := tt.kind.String(); got != tt.expected {
				t.Errorf("String() = %s, want %s", got, tt.expected)
			}
		})
	}
}

func TestKind_Fatal(t *testing.T) {
	tests := []struct {
		kind  Kind
		fatal bool
	}{
		{KindServiceUnavailable, true},
		{KindTransportError, true},
		{KindClientDisconnected, true},
		{KindInvalidState, false},
		{KindSuggestionFailed, false},
	}

	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			if got := tt.kind.Fatal(); got != tt.fatal {
				t.Errorf("Fatal() = %v, want %v", got, tt.fatal)
			}
		})
	}
}

func TestWrap_PreservesCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := Wrap(KindTransportError, "deepgram read", cause)

	if !errors.Is(err, cause) {
		t.Error("expected wrapped error to match cause via errors.Is")
	}
	if KindOf(err) != KindTransportError {
		t.Errorf("expected KindTransportError, got %v", KindOf(err))
	}
}

func TestKindOf_ThroughWrappingChain(t *testing.T) {
	inner := New(KindSuggestionFailed, "empty completion")
	outer := fmt.Errorf("request cycle: %w", inner)

	if KindOf(outer) != KindSuggestionFailed {
		t.Errorf("expected KindSuggestionFailed through chain, got %v", KindOf(outer))
	}
	if !Is(outer, KindSuggestionFailed) {
		t.Error("expected Is to match through wrapping chain")
	}
}

func TestKindOf_UnclassifiedDefaultsToTransport(t *testing.T) {
	err := errors.New("something broke")

	if KindOf(err) != KindTransportError {
		t.Errorf("expected unclassified error to report KindTransportError, got %v", KindOf(err))
	}
}

func TestIs_WrongKind(t *testing.T) {
	err := New(KindInvalidState, "feed after close")

	if Is(err, KindTransportError) {
		t.Error("expected Is to reject a different kind")
	}
}

func TestDescribe(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{"classified", New(KindSuggestionFailed, "empty completion"), "SUGGESTION_FAILED: empty completion"},
		{"classified with cause", Wrap(KindTransportError, "read", errors.New("reset")), "TRANSPORT_ERROR: read: reset"},
		{"unclassified", errors.New("something broke"), "TRANSPORT_ERROR: something broke"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Describe(tt.err); got != tt.expected {
				t.Errorf("Describe() = %q, want %q", got, tt.expected)
			}
		})
	}
}
