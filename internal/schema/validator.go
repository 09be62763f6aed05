// Package schema validates outbound events before they reach the wire.
package schema

import (
	"fmt"

	"ai-suggestion-relay-service/internal/models"
)

type Validator struct{}

func New() *Validator {
	return &Validator{}
}

// Validate rejects events that would violate the outbound contract: unknown
// types, negative sequences, and error events without a message.
func (v *Validator) Validate(event models.OutboundEvent) error {
	switch event.Type {
	case models.EventTypeTranscript, models.EventTypeSuggestion, models.EventTypeError:
	default:
		return fmt.Errorf("unknown event type %q", event.Type)
	}
	if event.Sequence < 0 {
		return fmt.Errorf("negative event sequence %d", event.Sequence)
	}
	if event.Type == models.EventTypeError && event.Data == "" {
		return fmt.Errorf("error event with empty data")
	}
	return nil
}
