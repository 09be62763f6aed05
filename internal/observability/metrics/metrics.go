// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "ai_suggestion_relay"

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Session metrics
	SessionsTotal   prometheus.Counter
	SessionsActive  prometheus.Gauge
	SessionsSuccess prometheus.Counter
	SessionsFailed  prometheus.Counter
	SessionDuration prometheus.Histogram

	// Audio metrics
	AudioBytesReceived  prometheus.Counter
	AudioChunksReceived prometheus.Counter

	// Transcript metrics
	TranscriptsFinal   prometheus.Counter
	TranscriptsInterim prometheus.Counter
	SegmentsAssembled  prometheus.Counter

	// Suggestion metrics
	SuggestionsRequested prometheus.Counter
	SuggestionsFailed    prometheus.Counter
	SuggestionLatency    prometheus.Histogram

	// Outbound event metrics
	EventsEmitted *prometheus.CounterVec
	EmitFailures  prometheus.Counter

	// STT metrics
	STTErrors     *prometheus.CounterVec
	DrainDuration prometheus.Histogram

	// Kafka mirror metrics
	KafkaPublishTotal   *prometheus.CounterVec
	KafkaPublishErrors  *prometheus.CounterVec
	KafkaPublishLatency *prometheus.HistogramVec
}

// DefaultMetrics is the global metrics instance.
var DefaultMetrics = NewMetrics()

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		SessionsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Total number of relay sessions started",
		}),
		SessionsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of currently active relay sessions",
		}),
		SessionsSuccess: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_success_total",
			Help:      "Total number of sessions that closed cleanly",
		}),
		SessionsFailed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_failed_total",
			Help:      "Total number of sessions that ended in error",
		}),
		SessionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Duration of relay sessions in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		}),

		AudioBytesReceived: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_bytes_received_total",
			Help:      "Total audio bytes received from clients",
		}),
		AudioChunksReceived: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_chunks_received_total",
			Help:      "Total audio chunks received from clients",
		}),

		TranscriptsFinal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcripts_final_total",
			Help:      "Total number of final transcript results received",
		}),
		TranscriptsInterim: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcripts_interim_total",
			Help:      "Total number of interim transcript results received",
		}),
		SegmentsAssembled: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segments_assembled_total",
			Help:      "Total number of transcript segments appended",
		}),

		SuggestionsRequested: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "suggestions_requested_total",
			Help:      "Total number of suggestion requests issued",
		}),
		SuggestionsFailed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "suggestions_failed_total",
			Help:      "Total number of failed suggestion requests",
		}),
		SuggestionLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "suggestion_latency_seconds",
			Help:      "Latency of suggestion service requests in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
		}),

		EventsEmitted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_emitted_total",
			Help:      "Total number of outbound events emitted to clients",
		}, []string{"type"}),
		EmitFailures: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "emit_failures_total",
			Help:      "Total number of outbound event writes that failed",
		}),

		STTErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stt_errors_total",
			Help:      "Total number of STT stream errors",
		}, []string{"provider"}),
		DrainDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "drain_duration_seconds",
			Help:      "Time from end-of-input to drain confirmation in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}),

		KafkaPublishTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_total",
			Help:      "Total number of Kafka mirror messages published",
		}, []string{"topic", "event_type"}),
		KafkaPublishErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_errors_total",
			Help:      "Total number of Kafka mirror publish errors",
		}, []string{"topic", "event_type"}),
		KafkaPublishLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "kafka_publish_latency_seconds",
			Help:      "Kafka mirror publish latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"topic"}),
	}
}

// RecordSessionStart records a new session starting.
func (m *Metrics) RecordSessionStart() {
	m.SessionsTotal.Inc()
	m.SessionsActive.Inc()
}

// RecordSessionEnd records a session ending.
func (m *Metrics) RecordSessionEnd(success bool, durationSeconds float64) {
	m.SessionsActive.Dec()
	m.SessionDuration.Observe(durationSeconds)
	if success {
		m.SessionsSuccess.Inc()
	} else {
		m.SessionsFailed.Inc()
	}
}

// RecordAudioReceived records audio bytes and chunks received.
func (m *Metrics) RecordAudioReceived(bytes int) {
	m.AudioBytesReceived.Add(float64(bytes))
	m.AudioChunksReceived.Inc()
}

// RecordTranscript records a transcript result received from the STT provider.
func (m *Metrics) RecordTranscript(isFinal bool) {
	if isFinal {
		m.TranscriptsFinal.Inc()
	} else {
		m.TranscriptsInterim.Inc()
	}
}

// RecordSegmentAssembled records a segment appended to the transcript.
func (m *Metrics) RecordSegmentAssembled() {
	m.SegmentsAssembled.Inc()
}

// RecordSuggestion records a completed suggestion request.
func (m *Metrics) RecordSuggestion(err error, latencySeconds float64) {
	m.SuggestionsRequested.Inc()
	m.SuggestionLatency.Observe(latencySeconds)
	if err != nil {
		m.SuggestionsFailed.Inc()
	}
}

// RecordEventEmitted records an outbound event delivered to a client.
func (m *Metrics) RecordEventEmitted(eventType string) {
	m.EventsEmitted.WithLabelValues(eventType).Inc()
}

// RecordEmitFailure records a failed outbound event write.
func (m *Metrics) RecordEmitFailure() {
	m.EmitFailures.Inc()
}

// RecordSTTError records an STT stream error.
func (m *Metrics) RecordSTTError(provider string) {
	m.STTErrors.WithLabelValues(provider).Inc()
}

// RecordDrain records the time from end-of-input to drain confirmation.
func (m *Metrics) RecordDrain(durationSeconds float64) {
	m.DrainDuration.Observe(durationSeconds)
}

// RecordKafkaPublish records a Kafka mirror publish attempt.
func (m *Metrics) RecordKafkaPublish(topic, eventType string, err error, latencySeconds float64) {
	m.KafkaPublishTotal.WithLabelValues(topic, eventType).Inc()
	m.KafkaPublishLatency.WithLabelValues(topic).Observe(latencySeconds)
	if err != nil {
		m.KafkaPublishErrors.WithLabelValues(topic, eventType).Inc()
	}
}
