// Package google provides a Google Cloud Speech-to-Text adapter.
package google

import (
	"context"
	"io"
	"sync"

	speech "cloud.google.com/go/speech/apiv1"
	speechpb "cloud.google.com/go/speech/apiv1/speechpb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"ai-suggestion-relay-service/internal/fault"
	"ai-suggestion-relay-service/internal/service/stt"
)

// Config holds the streaming recognition options.
type Config struct {
	LanguageCode   string
	SampleRateHz   int
	InterimResults bool
	AudioEncoding  string
}

// DefaultConfig returns telephony-grade defaults.
func DefaultConfig() Config {
	return Config{
		LanguageCode:   "en-US",
		SampleRateHz:   8000,
		InterimResults: true,
		AudioEncoding:  "LINEAR16",
	}
}

func parseAudioEncoding(s string) speechpb.RecognitionConfig_AudioEncoding {
	switch s {
	case "LINEAR16":
		return speechpb.RecognitionConfig_LINEAR16
	case "MULAW":
		return speechpb.RecognitionConfig_MULAW
	case "FLAC":
		return speechpb.RecognitionConfig_FLAC
	case "AMR":
		return speechpb.RecognitionConfig_AMR
	case "AMR_WB":
		return speechpb.RecognitionConfig_AMR_WB
	case "OGG_OPUS":
		return speechpb.RecognitionConfig_OGG_OPUS
	case "SPEEX_WITH_HEADER_BYTE":
		return speechpb.RecognitionConfig_SPEEX_WITH_HEADER_BYTE
	case "WEBM_OPUS":
		return speechpb.RecognitionConfig_WEBM_OPUS
	default:
		return speechpb.RecognitionConfig_LINEAR16
	}
}

// Adapter implements stt.Adapter using Google Cloud Speech-to-Text.
type Adapter struct {
	cfg    Config
	client *speech.Client
	stream speechpb.Speech_StreamingRecognizeClient
	cb     stt.Callback

	sendMu  sync.Mutex
	ended   bool
	closing bool
	mu      sync.Mutex

	closeOnce sync.Once
	recvDone  chan struct{}
}

// New creates a new Google STT adapter.
// Requires GOOGLE_APPLICATION_CREDENTIALS environment variable to be set.
func New(ctx context.Context, cfg Config) (*Adapter, error) {
	c, err := speech.NewClient(ctx)
	if err != nil {
		return nil, fault.Wrap(fault.KindServiceUnavailable, "speech client init", err)
	}
	return &Adapter{cfg: cfg, client: c, recvDone: make(chan struct{})}, nil
}

// Start begins a streaming recognition session, sends the initial config and
// launches the receive loop.
func (a *Adapter) Start(ctx context.Context, cb stt.Callback) error {
	stream, err := a.client.StreamingRecognize(ctx)
	if err != nil {
		return classify(err, "open recognize stream")
	}
	a.stream = stream
	a.cb = cb

	// Streaming config must be the first message on the stream.
	err = stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: &speechpb.StreamingRecognitionConfig{
				Config: &speechpb.RecognitionConfig{
					Encoding:        parseAudioEncoding(a.cfg.AudioEncoding),
					SampleRateHertz: int32(a.cfg.SampleRateHz),
					LanguageCode:    a.cfg.LanguageCode,
				},
				InterimResults: a.cfg.InterimResults,
			},
		},
	})
	if err != nil {
		return classify(err, "send streaming config")
	}

	go a.recvLoop()
	return nil
}

// SendAudio sends audio bytes to Google Speech-to-Text.
func (a *Adapter) SendAudio(_ context.Context, audio []byte) error {
	a.mu.Lock()
	if a.closing {
		a.mu.Unlock()
		return fault.New(fault.KindInvalidState, "send audio on closed recognize stream")
	}
	if a.ended {
		a.mu.Unlock()
		return fault.New(fault.KindInvalidState, "send audio after end-of-input was signaled")
	}
	a.mu.Unlock()

	a.sendMu.Lock()
	defer a.sendMu.Unlock()
	err := a.stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{
			AudioContent: audio,
		},
	})
	if err != nil {
		return classify(err, "send audio")
	}
	return nil
}

// SignalEnd half-closes the send side; Google flushes remaining results and
// ends the stream with io.EOF, which is surfaced as OnDrained.
func (a *Adapter) SignalEnd() error {
	a.mu.Lock()
	if a.ended {
		a.mu.Unlock()
		return nil
	}
	a.ended = true
	a.mu.Unlock()

	a.sendMu.Lock()
	defer a.sendMu.Unlock()
	if err := a.stream.CloseSend(); err != nil {
		return classify(err, "close send side")
	}
	return nil
}

// Close ends the streaming session and releases the client. No callbacks fire
// after it returns.
func (a *Adapter) Close() error {
	var err error
	a.closeOnce.Do(func() {
		a.mu.Lock()
		a.closing = true
		started := a.stream != nil
		a.mu.Unlock()
		if started {
			a.stream.CloseSend()
			<-a.recvDone
		} else {
			close(a.recvDone)
		}
		err = a.client.Close()
	})
	return err
}

func (a *Adapter) recvLoop() {
	defer close(a.recvDone)
	for {
		resp, err := a.stream.Recv()
		if err != nil {
			a.mu.Lock()
			closing, ended := a.closing, a.ended
			a.mu.Unlock()
			if closing {
				return
			}
			if err == io.EOF && ended {
				a.cb.OnDrained()
				return
			}
			a.cb.OnError(classify(err, "receive results"))
			return
		}

		for _, r := range resp.Results {
			if len(r.Alternatives) == 0 {
				continue
			}
			a.cb.OnTranscript(r.Alternatives[0].Transcript, r.IsFinal)
		}
	}
}

func classify(err error, msg string) error {
	switch status.Code(err) {
	case codes.Unavailable, codes.Unauthenticated, codes.PermissionDenied, codes.ResourceExhausted:
		return fault.Wrap(fault.KindServiceUnavailable, msg, err)
	default:
		return fault.Wrap(fault.KindTransportError, msg, err)
	}
}
