// Package stt defines the interface for streaming speech-to-text providers.
package stt

import "context"

// Callback receives transcript results from the STT provider. Callbacks may
// be invoked from a provider-owned goroutine; implementations must be safe
// for that.
type Callback interface {
	// OnTranscript is called once per result delivered by the provider.
	// Interim results carry isFinal=false and may be revised later.
	OnTranscript(text string, isFinal bool)

	// OnDrained is called once when the provider confirms that no further
	// results are forthcoming after end-of-input was signaled.
	OnDrained()

	// OnError is called when the provider stream fails. No further
	// callbacks fire after OnError.
	OnError(err error)
}

// Adapter is one streaming transcription session with an STT provider
// (Deepgram, Google, mock). An Adapter is used for exactly one relay session.
type Adapter interface {
	// Start opens the streaming channel. The context governs the lifetime
	// of the stream; canceling it tears the channel down.
	Start(ctx context.Context, cb Callback) error

	// SendAudio forwards one chunk of audio. Valid only while streaming.
	SendAudio(ctx context.Context, audio []byte) error

	// SignalEnd tells the provider no more audio will arrive. Idempotent.
	SignalEnd() error

	// Close releases the channel. Safe to call from any state; no
	// callbacks fire after it returns.
	Close() error
}

// Factory creates a fresh Adapter for a new session.
type Factory func() (Adapter, error)
