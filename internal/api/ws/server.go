// Package ws exposes the relay's websocket streaming endpoint.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"ai-suggestion-relay-service/internal/config"
	"ai-suggestion-relay-service/internal/models"
	"ai-suggestion-relay-service/internal/observability/logging"
	"ai-suggestion-relay-service/internal/observability/metrics"
	"ai-suggestion-relay-service/internal/service/session"
	"ai-suggestion-relay-service/internal/service/stt"
)

// controlMessage is the only text frame clients send: {"type":"end"} marks
// end-of-input while keeping the connection open for remaining events.
type controlMessage struct {
	Type string `json:"type"`
}

// Handler serves one relay session per websocket connection.
type Handler struct {
	cfg        *config.Configuration
	newAdapter stt.Factory
	suggester  session.Suggester
	mirror     session.Mirror
	metrics    *metrics.Metrics
	idgen      *session.Generator
	upgrader   websocket.Upgrader
}

// NewHandler wires the streaming endpoint.
func NewHandler(cfg *config.Configuration, factory stt.Factory, suggester session.Suggester, mirror session.Mirror, m *metrics.Metrics) *Handler {
	return &Handler{
		cfg:        cfg,
		newAdapter: factory,
		suggester:  suggester,
		mirror:     mirror,
		metrics:    m,
		idgen:      session.NewGenerator(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// ServeStream upgrades the connection and runs the session until it drains or
// fails. The optional ?mode= query parameter overrides the default suggestion
// mode per connection.
func (h *Handler) ServeStream(w http.ResponseWriter, r *http.Request) {
	mode := models.Mode(h.cfg.Session.DefaultMode)
	if q := r.URL.Query().Get("mode"); q != "" {
		parsed, err := models.ParseMode(q)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		mode = parsed
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log := logging.WithComponent("ws")
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	sessionId := h.idgen.Next()
	log := logging.WithSession(sessionId, string(mode))

	adapter, err := h.newAdapter()
	if err != nil {
		log.Error().Err(err).Msg("transcription adapter unavailable")
		conn.WriteJSON(models.OutboundEvent{
			Type:     models.EventTypeError,
			Data:     "SERVICE_UNAVAILABLE: " + err.Error(),
			Sequence: 0,
		})
		conn.Close()
		return
	}

	orch := session.NewOrchestrator(
		context.Background(),
		sessionId,
		session.Config{
			Mode:           mode,
			Provider:       h.cfg.STT.Provider,
			AudioQueueSize: h.cfg.Session.AudioQueue,
			StartTimeout:   h.cfg.Session.StartTimeout,
			DrainTimeout:   h.cfg.Session.DrainTimeout,
		},
		&wsConn{conn: conn},
		adapter,
		h.suggester,
		h.mirror,
		h.metrics,
		log,
	)

	go orch.Run()
	go func() {
		<-orch.Done()
		conn.Close()
	}()

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			orch.ClientGone()
			return
		}
		switch msgType {
		case websocket.BinaryMessage:
			orch.FeedAudio(data)
		case websocket.TextMessage:
			var ctrl controlMessage
			if err := json.Unmarshal(data, &ctrl); err != nil {
				log.Warn().Err(err).Msg("undecodable control message")
				continue
			}
			if ctrl.Type == "end" {
				orch.SignalEnd()
			} else {
				log.Warn().Str("type", ctrl.Type).Msg("unknown control message")
			}
		}
	}
}

// wsConn adapts a gorilla connection to the session's outbound interface.
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsConn) WriteEvent(event models.OutboundEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(event)
}
