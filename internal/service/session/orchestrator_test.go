package session

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"ai-suggestion-relay-service/internal/fault"
	"ai-suggestion-relay-service/internal/models"
	"ai-suggestion-relay-service/internal/observability/metrics"
	"ai-suggestion-relay-service/internal/service/stt"

	"github.com/rs/zerolog"
)

// fakeAdapter implements stt.Adapter and lets tests drive callbacks directly.
type fakeAdapter struct {
	mu          sync.Mutex
	cb          stt.Callback
	startErr    error
	audio       [][]byte
	endSignaled int
	closed      bool
	drainOnEnd  bool
}

func (a *fakeAdapter) Start(_ context.Context, cb stt.Callback) error {
	if a.startErr != nil {
		return a.startErr
	}
	a.mu.Lock()
	a.cb = cb
	a.mu.Unlock()
	return nil
}

func (a *fakeAdapter) SendAudio(_ context.Context, audio []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.audio = append(a.audio, audio)
	return nil
}

func (a *fakeAdapter) SignalEnd() error {
	a.mu.Lock()
	a.endSignaled++
	cb := a.cb
	drain := a.drainOnEnd
	a.mu.Unlock()
	if drain && cb != nil {
		cb.OnDrained()
	}
	return nil
}

func (a *fakeAdapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	return nil
}

func (a *fakeAdapter) callback() stt.Callback {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cb
}

func (a *fakeAdapter) audioCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.audio)
}

func (a *fakeAdapter) endCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.endSignaled
}

// fakeSuggester implements Suggester; an optional gate makes requests block
// until the test releases them.
type fakeSuggester struct {
	mu       sync.Mutex
	requests []string
	reply    func(full string) (string, error)
	gate     chan struct{}
}

func (s *fakeSuggester) Request(ctx context.Context, full string) (string, error) {
	s.mu.Lock()
	s.requests = append(s.requests, full)
	gate := s.gate
	reply := s.reply
	s.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if reply != nil {
		return reply(full)
	}
	return "- Tip", nil
}

func (s *fakeSuggester) getRequests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string{}, s.requests...)
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", msg)
}

func newTestOrchestrator(t *testing.T, mode models.Mode) (*Orchestrator, *fakeAdapter, *fakeSuggester, *recordingConn) {
	t.Helper()
	adapter := &fakeAdapter{drainOnEnd: true}
	suggester := &fakeSuggester{}
	conn := newRecordingConn()
	cfg := Config{
		Mode:           mode,
		Provider:       "mock",
		AudioQueueSize: 8,
		StartTimeout:   2 * time.Second,
		DrainTimeout:   2 * time.Second,
	}
	o := NewOrchestrator(context.Background(), "sess-test", cfg, conn, adapter, suggester, nil,
		metrics.DefaultMetrics, zerolog.Nop())
	return o, adapter, suggester, conn
}

func TestOrchestrator_Incremental_HappyPath(t *testing.T) {
	o, adapter, suggester, conn := newTestOrchestrator(t, models.ModeIncremental)
	go o.Run()
	waitFor(t, func() bool { return adapter.callback() != nil }, "stream start")

	o.FeedAudio([]byte("pcm"))
	waitFor(t, func() bool { return adapter.audioCount() == 1 }, "audio forwarded")

	adapter.callback().OnTranscript("Tell me about your project.", true)
	waitFor(t, func() bool { return len(conn.getEvents()) == 2 }, "transcript and suggestion")

	o.SignalEnd()
	<-o.Done()

	events := conn.getEvents()
	if events[0].Type != models.EventTypeTranscript || events[0].Data != "Tell me about your project." {
		t.Errorf("unexpected first event %+v", events[0])
	}
	if events[1].Type != models.EventTypeSuggestion || events[1].Data != "- Tip" {
		t.Errorf("unexpected second event %+v", events[1])
	}
	for i, ev := range events {
		if ev.Sequence != int64(i) {
			t.Errorf("event %d has sequence %d", i, ev.Sequence)
		}
	}
	if got := suggester.getRequests(); len(got) != 1 || got[0] != "Tell me about your project." {
		t.Errorf("unexpected suggestion requests %v", got)
	}
	if !adapter.closed {
		t.Error("expected adapter to be closed on teardown")
	}
}

func TestOrchestrator_Incremental_InterimsIgnored(t *testing.T) {
	o, adapter, suggester, conn := newTestOrchestrator(t, models.ModeIncremental)
	go o.Run()
	waitFor(t, func() bool { return adapter.callback() != nil }, "stream start")

	adapter.callback().OnTranscript("Tell", false)
	adapter.callback().OnTranscript("Tell me about", false)
	o.SignalEnd()
	<-o.Done()

	if n := len(conn.getEvents()); n != 0 {
		t.Errorf("expected no events for interim-only session, got %d", n)
	}
	if n := len(suggester.getRequests()); n != 0 {
		t.Errorf("expected no suggestion requests, got %d", n)
	}
}

func TestOrchestrator_Incremental_EmptyFinalDropped(t *testing.T) {
	o, adapter, _, conn := newTestOrchestrator(t, models.ModeIncremental)
	go o.Run()
	waitFor(t, func() bool { return adapter.callback() != nil }, "stream start")

	adapter.callback().OnTranscript("   ", true)
	o.SignalEnd()
	<-o.Done()

	if n := len(conn.getEvents()); n != 0 {
		t.Errorf("expected empty final to be dropped, got %d events", n)
	}
}

func TestOrchestrator_FinalizeOnce_SingleTranscriptAndSuggestion(t *testing.T) {
	o, adapter, suggester, conn := newTestOrchestrator(t, models.ModeFinalizeOnce)
	go o.Run()
	waitFor(t, func() bool { return adapter.callback() != nil }, "stream start")

	adapter.callback().OnTranscript("First utterance.", true)
	adapter.callback().OnTranscript("Second utterance.", true)

	// Nothing goes out before the drain.
	time.Sleep(50 * time.Millisecond)
	if n := len(conn.getEvents()); n != 0 {
		t.Fatalf("expected no events before drain, got %d", n)
	}

	o.SignalEnd()
	<-o.Done()

	events := conn.getEvents()
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d: %+v", len(events), events)
	}
	want := "First utterance. Second utterance."
	if events[0].Type != models.EventTypeTranscript || events[0].Data != want {
		t.Errorf("unexpected transcript event %+v", events[0])
	}
	if events[1].Type != models.EventTypeSuggestion {
		t.Errorf("unexpected second event %+v", events[1])
	}
	if got := suggester.getRequests(); len(got) != 1 || got[0] != want {
		t.Errorf("unexpected suggestion requests %v", got)
	}
}

func TestOrchestrator_FinalizeOnce_NoUtterances(t *testing.T) {
	o, adapter, suggester, conn := newTestOrchestrator(t, models.ModeFinalizeOnce)
	go o.Run()
	waitFor(t, func() bool { return adapter.callback() != nil }, "stream start")

	o.SignalEnd()
	<-o.Done()

	if n := len(conn.getEvents()); n != 0 {
		t.Errorf("expected silent completion, got %d events", n)
	}
	if n := len(suggester.getRequests()); n != 0 {
		t.Errorf("expected no suggestion requests, got %d", n)
	}
}

func TestOrchestrator_SuggestionFailure_SessionContinues(t *testing.T) {
	o, adapter, suggester, conn := newTestOrchestrator(t, models.ModeIncremental)
	suggester.reply = func(string) (string, error) {
		return "", fault.New(fault.KindSuggestionFailed, "model overloaded")
	}
	go o.Run()
	waitFor(t, func() bool { return adapter.callback() != nil }, "stream start")

	adapter.callback().OnTranscript("A question.", true)
	waitFor(t, func() bool { return len(conn.getEvents()) == 2 }, "transcript and error event")

	// The session keeps accepting transcripts after the failure.
	adapter.callback().OnTranscript("Another question.", true)
	waitFor(t, func() bool { return len(conn.getEvents()) >= 3 }, "later transcript event")

	o.SignalEnd()
	<-o.Done()

	events := conn.getEvents()
	if events[1].Type != models.EventTypeError {
		t.Fatalf("expected error event, got %+v", events[1])
	}
	if !strings.HasPrefix(events[1].Data, "SUGGESTION_FAILED") {
		t.Errorf("unexpected error data %q", events[1].Data)
	}
	for i, ev := range events {
		if ev.Sequence != int64(i) {
			t.Errorf("event %d has sequence %d", i, ev.Sequence)
		}
	}
}

func TestOrchestrator_ClientGone_NoEventsAfter(t *testing.T) {
	o, adapter, suggester, conn := newTestOrchestrator(t, models.ModeIncremental)
	suggester.gate = make(chan struct{})
	go o.Run()
	waitFor(t, func() bool { return adapter.callback() != nil }, "stream start")

	adapter.callback().OnTranscript("A question.", true)
	waitFor(t, func() bool { return len(conn.getEvents()) == 1 }, "transcript event")
	waitFor(t, func() bool { return len(suggester.getRequests()) == 1 }, "suggestion in flight")

	o.ClientGone()
	<-o.Done()
	close(suggester.gate)

	time.Sleep(50 * time.Millisecond)
	if n := len(conn.getEvents()); n != 1 {
		t.Errorf("expected no events after disconnect, got %d", n)
	}
	if !adapter.closed {
		t.Error("expected adapter to be closed")
	}
}

func TestOrchestrator_RapidFinals_CoalescedSuggestions(t *testing.T) {
	o, adapter, suggester, conn := newTestOrchestrator(t, models.ModeIncremental)
	gate := make(chan struct{})
	suggester.gate = gate
	go o.Run()
	waitFor(t, func() bool { return adapter.callback() != nil }, "stream start")

	adapter.callback().OnTranscript("one", true)
	adapter.callback().OnTranscript("two", true)
	adapter.callback().OnTranscript("three", true)
	waitFor(t, func() bool { return len(conn.getEvents()) == 3 }, "three transcript events")

	gate <- struct{}{} // release the first request
	waitFor(t, func() bool { return len(conn.getEvents()) == 4 }, "first suggestion")
	gate <- struct{}{} // release the coalesced request
	waitFor(t, func() bool { return len(conn.getEvents()) == 5 }, "coalesced suggestion")

	o.SignalEnd()
	<-o.Done()

	requests := suggester.getRequests()
	if len(requests) != 2 {
		t.Fatalf("expected 2 coalesced suggestion requests, got %d: %v", len(requests), requests)
	}
	if requests[0] != "one" {
		t.Errorf("unexpected first request %q", requests[0])
	}
	if requests[1] != "one two three" {
		t.Errorf("unexpected coalesced request %q", requests[1])
	}

	events := conn.getEvents()
	for i, ev := range events {
		if ev.Sequence != int64(i) {
			t.Errorf("event %d has sequence %d", i, ev.Sequence)
		}
	}
}

func TestOrchestrator_STTError_EmitsErrorEvent(t *testing.T) {
	o, adapter, _, conn := newTestOrchestrator(t, models.ModeIncremental)
	go o.Run()
	waitFor(t, func() bool { return adapter.callback() != nil }, "stream start")

	adapter.callback().OnError(fault.New(fault.KindTransportError, "stream reset"))
	<-o.Done()

	events := conn.getEvents()
	if len(events) != 1 || events[0].Type != models.EventTypeError {
		t.Fatalf("expected single error event, got %+v", events)
	}
	if !strings.HasPrefix(events[0].Data, "TRANSPORT_ERROR") {
		t.Errorf("unexpected error data %q", events[0].Data)
	}
}

func TestOrchestrator_StartFailure_EmitsErrorEvent(t *testing.T) {
	o, adapter, _, conn := newTestOrchestrator(t, models.ModeIncremental)
	adapter.startErr = fault.New(fault.KindServiceUnavailable, "handshake rejected")
	go o.Run()
	<-o.Done()

	events := conn.getEvents()
	if len(events) != 1 || events[0].Type != models.EventTypeError {
		t.Fatalf("expected single error event, got %+v", events)
	}
	if !strings.HasPrefix(events[0].Data, "SERVICE_UNAVAILABLE") {
		t.Errorf("unexpected error data %q", events[0].Data)
	}
}

func TestOrchestrator_SignalEnd_Idempotent(t *testing.T) {
	o, adapter, _, _ := newTestOrchestrator(t, models.ModeIncremental)
	go o.Run()
	waitFor(t, func() bool { return adapter.callback() != nil }, "stream start")

	o.SignalEnd()
	o.SignalEnd()
	<-o.Done()
}

func TestOrchestrator_DrainTimeout_FailsSession(t *testing.T) {
	o, adapter, _, conn := newTestOrchestrator(t, models.ModeIncremental)
	adapter.drainOnEnd = false
	o.cfg.DrainTimeout = 50 * time.Millisecond
	go o.Run()
	waitFor(t, func() bool { return adapter.callback() != nil }, "stream start")

	o.SignalEnd()
	<-o.Done()

	events := conn.getEvents()
	if len(events) != 1 || events[0].Type != models.EventTypeError {
		t.Fatalf("expected drain timeout error event, got %+v", events)
	}
	if !strings.Contains(events[0].Data, "drain") {
		t.Errorf("unexpected error data %q", events[0].Data)
	}
}

func TestOrchestrator_SlowDrain_EndSignaledOnce(t *testing.T) {
	o, adapter, _, _ := newTestOrchestrator(t, models.ModeIncremental)
	adapter.drainOnEnd = false
	go o.Run()
	waitFor(t, func() bool { return adapter.callback() != nil }, "stream start")

	o.SignalEnd()
	waitFor(t, func() bool { return adapter.endCount() == 1 }, "end forwarded")

	// The provider takes its time acknowledging; the session must not keep
	// re-signaling while it waits.
	time.Sleep(100 * time.Millisecond)
	if n := adapter.endCount(); n != 1 {
		t.Fatalf("expected end to be signaled once, got %d", n)
	}

	adapter.callback().OnDrained()
	<-o.Done()
}

func TestOrchestrator_DuplicateDrainAck_Ignored(t *testing.T) {
	o, adapter, suggester, conn := newTestOrchestrator(t, models.ModeFinalizeOnce)
	gate := make(chan struct{})
	suggester.gate = gate
	go o.Run()
	waitFor(t, func() bool { return adapter.callback() != nil }, "stream start")

	adapter.callback().OnTranscript("Only utterance.", true)
	o.SignalEnd()
	waitFor(t, func() bool { return len(conn.getEvents()) == 1 }, "full transcript event")

	// A second acknowledgment while the suggestion is pending must not
	// disturb the session.
	adapter.callback().OnDrained()
	close(gate)
	<-o.Done()

	events := conn.getEvents()
	if len(events) != 2 {
		t.Fatalf("expected transcript and suggestion, got %+v", events)
	}
	if events[1].Type != models.EventTypeSuggestion {
		t.Errorf("unexpected trailing event %+v", events[1])
	}
}

func TestOrchestrator_LateSuggestionAfterDrain_Completes(t *testing.T) {
	o, adapter, suggester, conn := newTestOrchestrator(t, models.ModeIncremental)
	gate := make(chan struct{})
	suggester.gate = gate
	go o.Run()
	waitFor(t, func() bool { return adapter.callback() != nil }, "stream start")

	adapter.callback().OnTranscript("final words", true)
	waitFor(t, func() bool { return len(suggester.getRequests()) == 1 }, "suggestion in flight")

	// Drain completes while the suggestion is still pending; the session must
	// wait for it before closing.
	o.SignalEnd()
	time.Sleep(50 * time.Millisecond)
	select {
	case <-o.Done():
		t.Fatal("session closed before the in-flight suggestion settled")
	default:
	}

	close(gate)
	<-o.Done()

	events := conn.getEvents()
	if len(events) != 2 || events[1].Type != models.EventTypeSuggestion {
		t.Fatalf("expected trailing suggestion event, got %+v", events)
	}
}
