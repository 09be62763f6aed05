// Package mock provides a mock STT adapter for running the relay without
// provider credentials. It simulates realistic speech-to-text behavior with
// progressive interim transcripts and exactly one final transcript per
// utterance, then acknowledges drain on end-of-input.
package mock

import (
	"context"
	"sync"

	"ai-suggestion-relay-service/internal/fault"
	"ai-suggestion-relay-service/internal/service/stt"
)

// SimulatedUtterance represents a mock utterance with progressive transcripts.
type SimulatedUtterance struct {
	Interims []string // Progressive interim transcripts
	Final    string   // Final transcript text
}

// DefaultUtterances provides sample utterances for simulation.
var DefaultUtterances = []SimulatedUtterance{
	{
		Interims: []string{"Tell me", "Tell me about a time"},
		Final:    "Tell me about a time you disagreed with your team.",
	},
	{
		Interims: []string{"How would", "How would you prioritize"},
		Final:    "How would you prioritize features for a new product?",
	},
	{
		Interims: []string{"What metrics", "What metrics would you"},
		Final:    "What metrics would you track for this launch?",
	},
}

// Adapter implements stt.Adapter with scripted responses. Callbacks fire
// synchronously from SendAudio and SignalEnd, which keeps tests deterministic.
type Adapter struct {
	mu       sync.Mutex
	cb       stt.Callback
	script   []SimulatedUtterance
	uttIdx   int
	stepIdx  int
	ended    bool
	closed   bool
	drainOne sync.Once
}

// New creates a mock adapter cycling through DefaultUtterances.
func New() *Adapter {
	return NewScripted(DefaultUtterances)
}

// NewScripted creates a mock adapter that replays the given utterances in
// order, one step per audio frame.
func NewScripted(script []SimulatedUtterance) *Adapter {
	return &Adapter{script: script}
}

// Start begins a mock transcription session.
func (a *Adapter) Start(_ context.Context, cb stt.Callback) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cb = cb
	return nil
}

// SendAudio advances the script by one step: the next interim of the current
// utterance, or its final once the interims are exhausted.
func (a *Adapter) SendAudio(_ context.Context, _ []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return fault.New(fault.KindInvalidState, "send audio on closed mock adapter")
	}
	if a.ended {
		return fault.New(fault.KindInvalidState, "send audio after end-of-input was signaled")
	}
	if a.cb == nil || a.uttIdx >= len(a.script) {
		return nil
	}

	utt := a.script[a.uttIdx]
	if a.stepIdx < len(utt.Interims) {
		text := utt.Interims[a.stepIdx]
		a.stepIdx++
		a.cb.OnTranscript(text, false)
		return nil
	}

	a.uttIdx++
	a.stepIdx = 0
	a.cb.OnTranscript(utt.Final, true)
	return nil
}

// SignalEnd flushes the in-progress utterance, if any, and acknowledges the
// drain.
func (a *Adapter) SignalEnd() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed || a.ended {
		return nil
	}
	a.ended = true

	// An utterance with interims delivered but no final yet is flushed as
	// final, mirroring the provider finalize behavior.
	if a.cb != nil && a.uttIdx < len(a.script) && a.stepIdx > 0 {
		a.cb.OnTranscript(a.script[a.uttIdx].Final, true)
		a.uttIdx++
		a.stepIdx = 0
	}

	if a.cb != nil {
		a.drainOne.Do(a.cb.OnDrained)
	}
	return nil
}

// Close ends the mock session.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	return nil
}
