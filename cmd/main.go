package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ai-suggestion-relay-service/internal/api/ws"
	"ai-suggestion-relay-service/internal/app"
	"ai-suggestion-relay-service/internal/config"
	"ai-suggestion-relay-service/internal/events"
	relayhttp "ai-suggestion-relay-service/internal/http"
	"ai-suggestion-relay-service/internal/observability"
	"ai-suggestion-relay-service/internal/observability/metrics"
)

func main() {
	cfg := config.Load()

	application, err := app.New(cfg)
	if err != nil {
		log.Fatalf("failed to build application: %v", err)
	}
	if err := application.Start(); err != nil {
		log.Fatalf("failed to start application: %v", err)
	}

	// Kafka mirror with separate topics for transcripts and suggestions
	publisher := events.New(&events.Config{
		Enabled:         cfg.Kafka.Enabled,
		Brokers:         cfg.Kafka.Brokers,
		TopicTranscript: cfg.Kafka.TopicTranscript,
		TopicSuggestion: cfg.Kafka.TopicSuggestion,
		Principal:       cfg.Kafka.Principal,
	})
	defer publisher.Close()

	streamHandler := ws.NewHandler(cfg, application.STTFactory, application.Suggester, publisher, metrics.DefaultMetrics)

	obsServer := observability.NewServer(":" + cfg.Observability.MetricsPort)
	obsServer.Start()

	server := &http.Server{
		Addr:    ":" + cfg.Service.HTTPPort,
		Handler: relayhttp.NewRouter(streamHandler),
	}

	go func() {
		application.Logger.Info().Str("addr", server.Addr).Msg("Suggestion Relay service listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http serve failed: %v", err)
		}
	}()
	obsServer.SetReady(true)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	application.Logger.Info().Msg("shutting down HTTP server")
	obsServer.SetReady(false)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		application.Logger.Error().Err(err).Msg("http shutdown error")
	}
	if err := obsServer.Shutdown(ctx); err != nil {
		application.Logger.Error().Err(err).Msg("observability shutdown error")
	}
	application.Shutdown()
}
