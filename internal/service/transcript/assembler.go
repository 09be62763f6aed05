// Package transcript accumulates finalized utterances into an ordered
// session transcript.
package transcript

import (
	"strings"
	"time"

	"ai-suggestion-relay-service/internal/models"
)

// Assembler collects finalized transcript segments in arrival order.
// It is not safe for concurrent use; the session loop owns it.
type Assembler struct {
	segments []models.TranscriptSegment
	next     int
}

// NewAssembler creates an empty assembler.
func NewAssembler() *Assembler {
	return &Assembler{}
}

// Append records a finalized utterance. Text that is empty after trimming is
// dropped and reported with ok=false; provider finalize flushes often produce
// these.
func (a *Assembler) Append(text string) (models.TranscriptSegment, bool) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return models.TranscriptSegment{}, false
	}
	seg := models.TranscriptSegment{
		Text:       trimmed,
		Sequence:   a.next,
		ReceivedAt: time.Now(),
	}
	a.segments = append(a.segments, seg)
	a.next++
	return seg, true
}

// Count returns the number of accepted segments.
func (a *Assembler) Count() int {
	return len(a.segments)
}

// FullText joins all accepted segments with single spaces, in arrival order.
func (a *Assembler) FullText() string {
	parts := make([]string, len(a.segments))
	for i, seg := range a.segments {
		parts[i] = seg.Text
	}
	return strings.Join(parts, " ")
}

// Segments returns a copy of the accepted segments.
func (a *Assembler) Segments() []models.TranscriptSegment {
	out := make([]models.TranscriptSegment, len(a.segments))
	copy(out, a.segments)
	return out
}
