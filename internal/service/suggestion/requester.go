// Package suggestion generates short coaching suggestions from the
// accumulated transcript using an OpenAI-compatible chat completion API.
package suggestion

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"

	"ai-suggestion-relay-service/internal/fault"
)

// systemInstruction keeps the model terse enough for a live conversation.
const systemInstruction = "You are an AI assistant for a product manager in a live interview. " +
	"Your response MUST be extremely concise. Provide a maximum of 3 short bullet points. " +
	"Each bullet point MUST be under 10 words. Do NOT write explanations. Do NOT write paragraphs. " +
	"For example: '- Clarify the core problem - Use STAR framework - Focus on user impact'."

// Config holds chat completion options.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// GroqRequester calls Groq's OpenAI-compatible chat completion endpoint.
type GroqRequester struct {
	cfg    Config
	client *openai.Client
	log    zerolog.Logger
}

// NewGroqRequester builds a requester against cfg.BaseURL.
func NewGroqRequester(cfg Config, log zerolog.Logger) *GroqRequester {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &GroqRequester{
		cfg:    cfg,
		client: openai.NewClientWithConfig(clientCfg),
		log:    log,
	}
}

// Request asks the model for a suggestion grounded on the transcript so far.
// A single attempt is made; the caller decides how failures surface.
func (r *GroqRequester) Request(ctx context.Context, transcript string) (string, error) {
	if strings.TrimSpace(transcript) == "" {
		return "", fault.New(fault.KindSuggestionFailed, "empty transcript")
	}

	if r.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.Timeout)
		defer cancel()
	}

	started := time.Now()
	resp, err := r.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: r.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemInstruction},
			{Role: openai.ChatMessageRoleUser, Content: transcript},
		},
	})
	if err != nil {
		return "", fault.Wrap(fault.KindSuggestionFailed, "chat completion request", err)
	}
	if len(resp.Choices) == 0 {
		return "", fault.New(fault.KindSuggestionFailed, "chat completion returned no choices")
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", fault.New(fault.KindSuggestionFailed, "chat completion returned empty content")
	}

	r.log.Debug().
		Dur("latency", time.Since(started)).
		Int("transcript_len", len(transcript)).
		Msg("suggestion generated")
	return text, nil
}
