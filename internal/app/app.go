// Package app wires the relay's components from configuration.
package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"ai-suggestion-relay-service/internal/config"
	"ai-suggestion-relay-service/internal/observability/logging"
	"ai-suggestion-relay-service/internal/service/stt"
	"ai-suggestion-relay-service/internal/service/stt/deepgram"
	"ai-suggestion-relay-service/internal/service/stt/google"
	"ai-suggestion-relay-service/internal/service/stt/mock"
	"ai-suggestion-relay-service/internal/service/suggestion"
)

// Application holds process-wide state for the service.
type Application struct {
	StartupTime time.Time
	Logger      zerolog.Logger
	Cfg         *config.Configuration
	Suggester   *suggestion.GroqRequester
	STTFactory  stt.Factory
}

// New constructs a new Application from the provided configuration.
func New(cfg *config.Configuration) (*Application, error) {
	logging.Init(logging.Config{
		Level:  cfg.Observability.LogLevel,
		Format: cfg.Observability.LogFormat,
	})

	a := &Application{
		Cfg:    cfg,
		Logger: logging.WithComponent("application"),
	}

	factory, err := buildSTTFactory(cfg)
	if err != nil {
		return nil, err
	}
	a.STTFactory = factory

	a.Suggester = suggestion.NewGroqRequester(suggestion.Config{
		APIKey:  cfg.Suggestion.APIKey,
		BaseURL: cfg.Suggestion.BaseURL,
		Model:   cfg.Suggestion.Model,
		Timeout: cfg.Suggestion.RequestTimeout,
	}, logging.WithComponent("suggestion"))

	a.Logger.Info().
		Str("sttProvider", cfg.STT.Provider).
		Str("suggestionModel", cfg.Suggestion.Model).
		Str("defaultMode", cfg.Session.DefaultMode).
		Msg("AI Suggestion Relay service application created")
	return a, nil
}

// buildSTTFactory resolves the configured transcription provider. Each
// session gets its own adapter from the factory.
func buildSTTFactory(cfg *config.Configuration) (stt.Factory, error) {
	switch cfg.STT.Provider {
	case "deepgram":
		dgCfg := deepgram.Config{
			APIKey:           cfg.STT.APIKey,
			Model:            cfg.STT.Model,
			Language:         cfg.STT.LanguageCode,
			SmartFormat:      cfg.STT.SmartFormat,
			Encoding:         cfg.STT.AudioEncoding,
			SampleRateHz:     cfg.STT.SampleRateHz,
			InterimResults:   cfg.STT.InterimResults,
			HandshakeTimeout: cfg.STT.HandshakeTimeout,
		}
		log := logging.WithComponent("deepgram")
		return func() (stt.Adapter, error) {
			return deepgram.New(dgCfg, log), nil
		}, nil
	case "google":
		gCfg := google.Config{
			LanguageCode:   cfg.STT.LanguageCode,
			SampleRateHz:   cfg.STT.SampleRateHz,
			InterimResults: cfg.STT.InterimResults,
			AudioEncoding:  strings.ToUpper(cfg.STT.AudioEncoding),
		}
		return func() (stt.Adapter, error) {
			return google.New(context.Background(), gCfg)
		}, nil
	case "mock":
		return func() (stt.Adapter, error) {
			return mock.New(), nil
		}, nil
	default:
		return nil, fmt.Errorf("unknown STT provider %q", cfg.STT.Provider)
	}
}

// Start performs any startup work required before serving traffic.
func (a *Application) Start() error {
	a.StartupTime = time.Now().UTC()
	a.Logger.Info().
		Time("startupTime", a.StartupTime).
		Msg("AI Suggestion Relay service starting")
	return nil
}

// Shutdown performs a best-effort cleanup before process exit.
func (a *Application) Shutdown() {
	a.Logger.Info().Msg("AI Suggestion Relay service shutting down")
}
