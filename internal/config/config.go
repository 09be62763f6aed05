// Package config loads service configuration from environment variables.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Configuration holds all service configuration.
type Configuration struct {
	Service       ServiceConfig
	STT           STTConfig
	Suggestion    SuggestionConfig
	Session       SessionConfig
	Kafka         KafkaConfig
	Observability ObservabilityConfig
}

// ServiceConfig holds process-level settings.
type ServiceConfig struct {
	Principal string
	HTTPPort  string
}

// STTConfig holds transcription provider settings. The defaults match the
// options the relay has always sent to Deepgram.
type STTConfig struct {
	Provider         string // deepgram, google, mock
	APIKey           string
	Model            string
	LanguageCode     string
	SmartFormat      bool
	AudioEncoding    string
	SampleRateHz     int
	InterimResults   bool
	HandshakeTimeout time.Duration
}

// SuggestionConfig holds settings for the suggestion service.
type SuggestionConfig struct {
	APIKey         string
	BaseURL        string
	Model          string
	RequestTimeout time.Duration
}

// SessionConfig holds per-session orchestration settings.
type SessionConfig struct {
	DefaultMode  string // incremental or finalize-once
	StartTimeout time.Duration
	DrainTimeout time.Duration
	AudioQueue   int // buffered audio chunks per session
}

// KafkaConfig holds settings for the optional event mirror.
type KafkaConfig struct {
	Enabled         bool
	Brokers         []string
	TopicTranscript string
	TopicSuggestion string
	Principal       string
}

// ObservabilityConfig holds logging and metrics settings.
type ObservabilityConfig struct {
	LogLevel    string
	LogFormat   string // json, console
	MetricsPort string
}

// Load reads configuration from the environment, falling back to defaults
// for missing or unparseable values.
func Load() *Configuration {
	principal := envOrDefault("SERVICE_PRINCIPAL", "svc-suggestion-relay")

	return &Configuration{
		Service: ServiceConfig{
			Principal: principal,
			HTTPPort:  envOrDefault("HTTP_PORT", "8765"),
		},
		STT: STTConfig{
			Provider:         envOrDefault("STT_PROVIDER", "deepgram"),
			APIKey:           os.Getenv("DEEPGRAM_API_KEY"),
			Model:            envOrDefault("STT_MODEL", "nova-2"),
			LanguageCode:     envOrDefault("STT_LANGUAGE_CODE", "en-US"),
			SmartFormat:      envOrDefaultBool("STT_SMART_FORMAT", true),
			AudioEncoding:    envOrDefault("STT_AUDIO_ENCODING", "linear16"),
			SampleRateHz:     envOrDefaultInt("STT_SAMPLE_RATE_HZ", 44100),
			InterimResults:   envOrDefaultBool("STT_INTERIM_RESULTS", true),
			HandshakeTimeout: envOrDefaultDuration("STT_HANDSHAKE_TIMEOUT", 10*time.Second),
		},
		Suggestion: SuggestionConfig{
			APIKey:         os.Getenv("GROQ_API_KEY"),
			BaseURL:        envOrDefault("SUGGESTION_BASE_URL", "https://api.groq.com/openai/v1"),
			Model:          envOrDefault("SUGGESTION_MODEL", "llama3-8b-8192"),
			RequestTimeout: envOrDefaultDuration("SUGGESTION_REQUEST_TIMEOUT", 30*time.Second),
		},
		Session: SessionConfig{
			DefaultMode:  envOrDefault("SESSION_DEFAULT_MODE", "incremental"),
			StartTimeout: envOrDefaultDuration("SESSION_START_TIMEOUT", 10*time.Second),
			DrainTimeout: envOrDefaultDuration("SESSION_DRAIN_TIMEOUT", 10*time.Second),
			AudioQueue:   envOrDefaultInt("SESSION_AUDIO_QUEUE", 128),
		},
		Kafka: KafkaConfig{
			Enabled:         envOrDefaultBool("KAFKA_ENABLED", false),
			Brokers:         envOrDefaultList("KAFKA_BROKERS", nil),
			TopicTranscript: envOrDefault("KAFKA_TOPIC_TRANSCRIPT", "relay.transcript.final"),
			TopicSuggestion: envOrDefault("KAFKA_TOPIC_SUGGESTION", "relay.suggestion"),
			Principal:       envOrDefault("KAFKA_PRINCIPAL", principal),
		},
		Observability: ObservabilityConfig{
			LogLevel:    envOrDefault("LOG_LEVEL", "info"),
			LogFormat:   envOrDefault("LOG_FORMAT", "json"),
			MetricsPort: envOrDefault("METRICS_PORT", "9090"),
		},
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envOrDefaultBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(strings.ToLower(v))
	if err != nil {
		return def
	}
	return b
}

func envOrDefaultDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func envOrDefaultList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
