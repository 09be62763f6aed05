// Package deepgram provides a Deepgram live transcription adapter over
// websocket.
package deepgram

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"ai-suggestion-relay-service/internal/fault"
	"ai-suggestion-relay-service/internal/service/stt"
)

const listenURL = "wss://api.deepgram.com/v1/listen"

// closeStreamMessage flushes remaining results and ends the stream; Deepgram
// answers with a final Metadata message before closing the socket.
const closeStreamMessage = `{"type":"CloseStream"}`

// Config holds Deepgram connection options.
type Config struct {
	APIKey           string
	Model            string
	Language         string
	SmartFormat      bool
	Encoding         string
	SampleRateHz     int
	InterimResults   bool
	HandshakeTimeout time.Duration
}

// DefaultConfig returns the options the relay has always used.
func DefaultConfig() Config {
	return Config{
		Model:            "nova-2",
		Language:         "en-US",
		SmartFormat:      true,
		Encoding:         "linear16",
		SampleRateHz:     44100,
		InterimResults:   true,
		HandshakeTimeout: 10 * time.Second,
	}
}

// liveResponse is the subset of Deepgram's live message schema the relay
// consumes.
type liveResponse struct {
	Type         string `json:"type"`
	IsFinal      bool   `json:"is_final"`
	SpeechFinal  bool   `json:"speech_final"`
	FromFinalize bool   `json:"from_finalize"`
	Channel      struct {
		Alternatives []struct {
			Transcript string `json:"transcript"`
		} `json:"alternatives"`
	} `json:"channel"`
}

// Adapter implements stt.Adapter against Deepgram's live websocket API.
type Adapter struct {
	cfg Config
	log zerolog.Logger

	conn *websocket.Conn
	cb   stt.Callback

	writeMu sync.Mutex
	mu      sync.Mutex
	ending  bool
	closing bool

	endOnce     sync.Once
	closeOnce   sync.Once
	drainedOnce sync.Once
	recvDone    chan struct{}
}

// New creates an unstarted Deepgram adapter.
func New(cfg Config, log zerolog.Logger) *Adapter {
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = DefaultConfig().HandshakeTimeout
	}
	return &Adapter{
		cfg:      cfg,
		log:      log,
		recvDone: make(chan struct{}),
	}
}

// Start dials the live endpoint and launches the receive loop. Fails with a
// ServiceUnavailable fault if the handshake cannot be established within the
// configured timeout.
func (a *Adapter) Start(ctx context.Context, cb stt.Callback) error {
	endpoint, err := url.Parse(listenURL)
	if err != nil {
		return err
	}
	q := endpoint.Query()
	q.Set("model", a.cfg.Model)
	q.Set("language", a.cfg.Language)
	q.Set("smart_format", strconv.FormatBool(a.cfg.SmartFormat))
	q.Set("encoding", a.cfg.Encoding)
	q.Set("sample_rate", strconv.Itoa(a.cfg.SampleRateHz))
	q.Set("interim_results", strconv.FormatBool(a.cfg.InterimResults))
	endpoint.RawQuery = q.Encode()

	headers := http.Header{}
	headers.Set("Authorization", "Token "+a.cfg.APIKey)

	dialer := websocket.Dialer{HandshakeTimeout: a.cfg.HandshakeTimeout}
	conn, resp, err := dialer.DialContext(ctx, endpoint.String(), headers)
	if err != nil {
		if resp != nil {
			return fault.Wrap(fault.KindServiceUnavailable, "deepgram handshake rejected: "+resp.Status, err)
		}
		return fault.Wrap(fault.KindServiceUnavailable, "deepgram handshake failed", err)
	}

	a.conn = conn
	a.cb = cb
	a.log.Debug().Str("model", a.cfg.Model).Str("language", a.cfg.Language).Msg("deepgram stream opened")

	go a.readLoop()
	return nil
}

// SendAudio forwards one binary audio chunk.
func (a *Adapter) SendAudio(_ context.Context, audio []byte) error {
	a.mu.Lock()
	if a.closing {
		a.mu.Unlock()
		return fault.New(fault.KindInvalidState, "send audio on closed deepgram stream")
	}
	if a.ending {
		a.mu.Unlock()
		return fault.New(fault.KindInvalidState, "send audio after end-of-input was signaled")
	}
	a.mu.Unlock()

	a.writeMu.Lock()
	defer a.writeMu.Unlock()
	if err := a.conn.WriteMessage(websocket.BinaryMessage, audio); err != nil {
		return fault.Wrap(fault.KindTransportError, "deepgram audio write", err)
	}
	return nil
}

// SignalEnd asks Deepgram to flush and close. Idempotent.
func (a *Adapter) SignalEnd() error {
	var err error
	a.endOnce.Do(func() {
		a.mu.Lock()
		a.ending = true
		a.mu.Unlock()

		a.writeMu.Lock()
		defer a.writeMu.Unlock()
		if werr := a.conn.WriteMessage(websocket.TextMessage, []byte(closeStreamMessage)); werr != nil {
			err = fault.Wrap(fault.KindTransportError, "deepgram close-stream write", werr)
		}
	})
	return err
}

// Close tears the socket down. No callbacks fire after it returns.
func (a *Adapter) Close() error {
	a.closeOnce.Do(func() {
		a.mu.Lock()
		a.closing = true
		started := a.conn != nil
		a.mu.Unlock()
		if !started {
			close(a.recvDone)
			return
		}
		a.conn.Close()
		select {
		case <-a.recvDone:
		case <-time.After(2 * time.Second):
			a.log.Warn().Msg("deepgram receive loop drain timeout")
		}
	})
	return nil
}

func (a *Adapter) readLoop() {
	defer close(a.recvDone)
	for {
		_, data, err := a.conn.ReadMessage()
		if err != nil {
			a.mu.Lock()
			closing, ending := a.closing, a.ending
			a.mu.Unlock()
			if closing {
				return
			}
			if ending && isExpectedClose(err) {
				// End of the drain handshake.
				a.markDrained()
				return
			}
			a.cb.OnError(fault.Wrap(fault.KindTransportError, "deepgram read", err))
			return
		}

		var resp liveResponse
		if err := json.Unmarshal(data, &resp); err != nil {
			a.log.Warn().Err(err).Msg("undecodable deepgram message")
			continue
		}

		switch resp.Type {
		case "Results":
			transcript := ""
			if len(resp.Channel.Alternatives) > 0 {
				transcript = resp.Channel.Alternatives[0].Transcript
			}
			a.cb.OnTranscript(transcript, resp.IsFinal || resp.SpeechFinal)
			if resp.FromFinalize {
				a.markDrained()
			}
		case "Metadata":
			// Sent as the last message after CloseStream.
			a.mu.Lock()
			ending := a.ending
			a.mu.Unlock()
			if ending {
				a.markDrained()
			}
		}
	}
}

func (a *Adapter) markDrained() {
	a.drainedOnce.Do(func() {
		a.mu.Lock()
		closing := a.closing
		a.mu.Unlock()
		if !closing {
			a.cb.OnDrained()
		}
	})
}

func isExpectedClose(err error) bool {
	return websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived)
}
