// Package events provides event publishing functionality.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"ai-suggestion-relay-service/internal/models"
	"ai-suggestion-relay-service/internal/observability/metrics"
)

// Publisher mirrors finalized transcripts and suggestions to separate Kafka
// topics so downstream consumers can follow sessions without holding a
// websocket open.
type Publisher struct {
	writerTranscript *kafka.Writer
	writerSuggestion *kafka.Writer
	principal        string
	topicTranscript  string
	topicSuggestion  string
	enabled          bool
	metrics          *metrics.Metrics
}

// Config holds Kafka publisher configuration.
type Config struct {
	Brokers         []string
	TopicTranscript string
	TopicSuggestion string
	Principal       string
	Enabled         bool
}

// New creates a Kafka mirror publisher with separate topics for transcripts
// and suggestions.
func New(cfg *Config) *Publisher {
	m := metrics.DefaultMetrics

	// Handle nil config case
	if cfg == nil {
		log.Info().Msg("Kafka disabled (nil config), using log-only mode")
		return &Publisher{
			enabled: false,
			metrics: m,
		}
	}

	if !cfg.Enabled || len(cfg.Brokers) == 0 {
		log.Info().Msg("Kafka disabled, using log-only mode")
		return &Publisher{
			principal:       cfg.Principal,
			topicTranscript: cfg.TopicTranscript,
			topicSuggestion: cfg.TopicSuggestion,
			enabled:         false,
			metrics:         m,
		}
	}

	// Create a custom dialer with longer timeouts for DNS resolution in Kubernetes
	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}

	transport := &kafka.Transport{
		Dial: dialer.DialFunc,
	}

	writerTranscript := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.TopicTranscript,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireOne,
		Transport:    transport,
	}

	writerSuggestion := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.TopicSuggestion,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireOne,
		Transport:    transport,
	}

	log.Info().
		Strs("brokers", cfg.Brokers).
		Str("topicTranscript", cfg.TopicTranscript).
		Str("topicSuggestion", cfg.TopicSuggestion).
		Str("principal", cfg.Principal).
		Msg("Kafka publisher initialized")

	return &Publisher{
		writerTranscript: writerTranscript,
		writerSuggestion: writerSuggestion,
		principal:        cfg.Principal,
		topicTranscript:  cfg.TopicTranscript,
		topicSuggestion:  cfg.TopicSuggestion,
		enabled:          true,
		metrics:          m,
	}
}

// PublishTranscript mirrors a finalized transcript segment.
func (p *Publisher) PublishTranscript(ctx context.Context, sessionId string, seg models.TranscriptSegment) error {
	event := models.TranscriptMirror{
		EventType: "relay.transcript.final",
		SessionID: sessionId,
		Text:      seg.Text,
		Sequence:  int64(seg.Sequence),
		Timestamp: seg.ReceivedAt.UnixMilli(),
	}
	return p.publish(ctx, p.writerTranscript, p.topicTranscript, "transcript", sessionId, event)
}

// PublishSuggestion mirrors a delivered suggestion.
func (p *Publisher) PublishSuggestion(ctx context.Context, sessionId string, sug models.SuggestionResult) error {
	event := models.SuggestionMirror{
		EventType:       "relay.suggestion",
		SessionID:       sessionId,
		Text:            sug.Text,
		BasedOnSegments: sug.BasedOnSegmentCount,
		Timestamp:       time.Now().UnixMilli(),
	}
	return p.publish(ctx, p.writerSuggestion, p.topicSuggestion, "suggestion", sessionId, event)
}

// publish is the internal method that writes to a specific Kafka writer.
func (p *Publisher) publish(ctx context.Context, writer *kafka.Writer, topic, eventType, key string, event any) error {
	start := time.Now()

	payload, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("topic", topic).Msg("Failed to marshal event")
		return err
	}

	// Log the event
	log.Debug().
		Str("principal", p.principal).
		Str("topic", topic).
		Str("key", key).
		RawJSON("payload", payload).
		Msg("Publishing event")

	// If Kafka is disabled, just log
	if !p.enabled || writer == nil {
		p.metrics.RecordKafkaPublish(topic, eventType, nil, time.Since(start).Seconds())
		return nil
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "eventType", Value: []byte(eventType)},
			{Key: "principal", Value: []byte(p.principal)},
		},
	}

	if err := writer.WriteMessages(ctx, msg); err != nil {
		log.Error().
			Err(err).
			Str("topic", topic).
			Str("key", key).
			Msg("Failed to write to Kafka")
		p.metrics.RecordKafkaPublish(topic, eventType, err, time.Since(start).Seconds())
		return err
	}

	p.metrics.RecordKafkaPublish(topic, eventType, nil, time.Since(start).Seconds())
	return nil
}

// Close closes both Kafka writers.
func (p *Publisher) Close() error {
	var err error
	if p.writerTranscript != nil {
		if e := p.writerTranscript.Close(); e != nil {
			log.Error().Err(e).Msg("Error closing transcript writer")
			err = e
		}
	}
	if p.writerSuggestion != nil {
		if e := p.writerSuggestion.Close(); e != nil {
			log.Error().Err(e).Msg("Error closing suggestion writer")
			err = e
		}
	}
	return err
}
