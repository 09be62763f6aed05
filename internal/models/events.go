// Package models defines the data structures for relay sessions and events.
package models

import (
	"fmt"
	"time"
)

// EventType identifies the kind of an outbound client event.
type EventType string

const (
	EventTypeTranscript EventType = "transcript"
	EventTypeSuggestion EventType = "suggestion"
	EventTypeError      EventType = "error"
)

// OutboundEvent is the unit sent to the client, one JSON object per event.
// Sequence is assigned per session, strictly increasing and gapless.
type OutboundEvent struct {
	Type     EventType `json:"type"`
	Data     string    `json:"data"`
	Sequence int64     `json:"sequence"`
}

// TranscriptSegment is one finalized utterance. Segments are immutable once
// created and only non-empty final results become segments.
type TranscriptSegment struct {
	Text       string
	Sequence   int
	ReceivedAt time.Time
}

// SuggestionResult is the output of one suggestion request.
type SuggestionResult struct {
	Text string
	// BasedOnSegmentCount records how many segments existed when the
	// request was issued.
	BasedOnSegmentCount int
}

// Mode selects when suggestions are requested during a session.
type Mode string

const (
	// ModeIncremental requests a suggestion after every final utterance,
	// while streaming continues.
	ModeIncremental Mode = "incremental"
	// ModeFinalizeOnce requests a suggestion exactly once, after the
	// entire audio stream has been drained.
	ModeFinalizeOnce Mode = "finalize-once"
)

// ParseMode validates and normalizes a mode string.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeIncremental:
		return ModeIncremental, nil
	case ModeFinalizeOnce:
		return ModeFinalizeOnce, nil
	default:
		return "", fmt.Errorf("unknown session mode %q", s)
	}
}

// TranscriptMirror is the Kafka mirror payload for an emitted transcript event.
type TranscriptMirror struct {
	EventType string `json:"eventType"`
	SessionID string `json:"sessionId"`
	Text      string `json:"text"`
	Sequence  int64  `json:"sequence"`
	Timestamp int64  `json:"timestamp"`
}

// SuggestionMirror is the Kafka mirror payload for an emitted suggestion event.
type SuggestionMirror struct {
	EventType       string `json:"eventType"`
	SessionID       string `json:"sessionId"`
	Text            string `json:"text"`
	BasedOnSegments int    `json:"basedOnSegments"`
	Timestamp       int64  `json:"timestamp"`
}
