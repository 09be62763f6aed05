package session

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"ai-suggestion-relay-service/internal/fault"
	"ai-suggestion-relay-service/internal/models"
	"ai-suggestion-relay-service/internal/observability/metrics"
	"ai-suggestion-relay-service/internal/service/stt"
	"ai-suggestion-relay-service/internal/service/transcript"
)

// Suggester produces a short suggestion for the transcript accumulated so far.
type Suggester interface {
	Request(ctx context.Context, transcript string) (string, error)
}

// Mirror publishes finalized transcripts and suggestions to the event bus.
type Mirror interface {
	PublishTranscript(ctx context.Context, sessionId string, seg models.TranscriptSegment) error
	PublishSuggestion(ctx context.Context, sessionId string, sug models.SuggestionResult) error
}

// Config holds per-session orchestration options.
type Config struct {
	Mode           models.Mode
	Provider       string
	AudioQueueSize int
	StartTimeout   time.Duration
	DrainTimeout   time.Duration
}

type transcriptMsg struct {
	text    string
	isFinal bool
}

type suggestionOutcome struct {
	text    string
	basedOn int
	err     error
	started time.Time
}

// Orchestrator runs one relay session. A single goroutine (Run) owns all
// session state and multiplexes audio ingest, transcription results,
// suggestion outcomes and teardown signals, so event ordering follows
// initiation order without further locking.
type Orchestrator struct {
	cfg       Config
	lc        *Lifecycle
	emitter   *Emitter
	adapter   stt.Adapter
	suggester Suggester
	assembler *transcript.Assembler
	mirror    Mirror
	metrics   *metrics.Metrics
	log       zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	audioCh      chan []byte
	transcriptCh chan transcriptMsg
	suggestionCh chan suggestionOutcome
	drainedCh    chan struct{}
	sttErrCh     chan error
	endCh        chan struct{}
	goneCh       chan struct{}

	endOnce  sync.Once
	goneOnce sync.Once
	downOnce sync.Once
	done     chan struct{}

	startedAt time.Time
}

// NewOrchestrator wires a session around an established client connection and
// an unstarted STT adapter.
func NewOrchestrator(
	parent context.Context,
	sessionId string,
	cfg Config,
	conn ClientConn,
	adapter stt.Adapter,
	suggester Suggester,
	mirror Mirror,
	m *metrics.Metrics,
	log zerolog.Logger,
) *Orchestrator {
	ctx, cancel := context.WithCancel(parent)
	queue := cfg.AudioQueueSize
	if queue <= 0 {
		queue = 128
	}
	return &Orchestrator{
		cfg:          cfg,
		lc:           NewLifecycle(sessionId),
		emitter:      NewEmitter(conn),
		adapter:      adapter,
		suggester:    suggester,
		assembler:    transcript.NewAssembler(),
		mirror:       mirror,
		metrics:      m,
		log:          log,
		ctx:          ctx,
		cancel:       cancel,
		audioCh:      make(chan []byte, queue),
		transcriptCh: make(chan transcriptMsg, 32),
		suggestionCh: make(chan suggestionOutcome, 1),
		drainedCh:    make(chan struct{}, 1),
		sttErrCh:     make(chan error, 1),
		endCh:        make(chan struct{}),
		goneCh:       make(chan struct{}),
		done:         make(chan struct{}),
	}
}

// SessionId returns the session's ID.
func (o *Orchestrator) SessionId() string {
	return o.lc.SessionId()
}

// Done closes once the session is fully torn down.
func (o *Orchestrator) Done() <-chan struct{} {
	return o.done
}

// FeedAudio enqueues one binary audio chunk. Chunks arriving faster than the
// session can forward them are dropped rather than blocking the reader.
func (o *Orchestrator) FeedAudio(chunk []byte) {
	select {
	case o.audioCh <- chunk:
	case <-o.done:
	default:
		o.log.Warn().Int("bytes", len(chunk)).Msg("audio queue full, dropping chunk")
	}
}

// SignalEnd marks end-of-input. Duplicate calls are harmless.
func (o *Orchestrator) SignalEnd() {
	o.endOnce.Do(func() { close(o.endCh) })
}

// ClientGone reports that the client connection dropped. The session stops
// emitting and tears down.
func (o *Orchestrator) ClientGone() {
	o.goneOnce.Do(func() { close(o.goneCh) })
}

// OnTranscript implements stt.Callback.
func (o *Orchestrator) OnTranscript(text string, isFinal bool) {
	select {
	case o.transcriptCh <- transcriptMsg{text: text, isFinal: isFinal}:
	case <-o.ctx.Done():
	}
}

// OnDrained implements stt.Callback.
func (o *Orchestrator) OnDrained() {
	select {
	case o.drainedCh <- struct{}{}:
	default:
	}
}

// OnError implements stt.Callback.
func (o *Orchestrator) OnError(err error) {
	select {
	case o.sttErrCh <- err:
	default:
	}
}

// Run executes the session until drain completes or a fatal fault ends it.
// It blocks; callers run it on its own goroutine and watch Done.
func (o *Orchestrator) Run() {
	defer o.teardown()

	o.startedAt = time.Now()
	o.metrics.RecordSessionStart()
	o.log.Info().Str("mode", string(o.cfg.Mode)).Msg("session starting")

	if err := o.start(); err != nil {
		o.fail(err)
		return
	}

	var (
		inFlight     bool
		pending      bool
		lastAskedFor int
		drained      bool
		drainTimer   *time.Timer
		drainExpire  <-chan time.Time
		drainStarted time.Time
	)

	// Each fires at most once per session; the case is disabled after it is
	// taken so a closed endCh cannot re-trigger and a duplicate drain
	// acknowledgment cannot hit MarkDrained twice.
	endCh := o.endCh
	drainedCh := o.drainedCh

	handleTranscript := func(msg transcriptMsg) error {
		o.metrics.RecordTranscript(msg.isFinal)
		if !msg.isFinal {
			return nil
		}
		seg, ok := o.assembler.Append(msg.text)
		if !ok {
			return nil
		}
		o.metrics.RecordSegmentAssembled()
		o.mirrorTranscript(seg)
		if o.cfg.Mode == models.ModeFinalizeOnce {
			return nil
		}
		if err := o.emitter.Emit(models.EventTypeTranscript, seg.Text); err != nil {
			return err
		}
		o.metrics.RecordEventEmitted(string(models.EventTypeTranscript))
		if inFlight {
			pending = true
		} else {
			inFlight = true
			lastAskedFor = o.assembler.Count()
			o.requestSuggestion(o.assembler.FullText(), lastAskedFor)
		}
		return nil
	}

	// Providers deliver their last finals and the drain acknowledgment
	// back-to-back; the backlog must be applied before the drain is acted on.
	flushTranscripts := func() error {
		for {
			select {
			case msg := <-o.transcriptCh:
				if err := handleTranscript(msg); err != nil {
					return err
				}
			default:
				return nil
			}
		}
	}

	for {
		select {
		case chunk := <-o.audioCh:
			if !o.lc.CanAcceptAudio() {
				continue
			}
			o.metrics.RecordAudioReceived(len(chunk))
			if err := o.adapter.SendAudio(o.ctx, chunk); err != nil {
				if fault.Is(err, fault.KindInvalidState) {
					continue // late chunk raced the drain
				}
				o.fail(err)
				return
			}

		case msg := <-o.transcriptCh:
			if err := handleTranscript(msg); err != nil {
				o.fail(err)
				return
			}

		case out := <-o.suggestionCh:
			inFlight = false
			o.metrics.RecordSuggestion(out.err, time.Since(out.started).Seconds())
			if out.err != nil {
				o.log.Warn().Err(out.err).Msg("suggestion request failed")
				if err := o.emitter.Emit(models.EventTypeError, fault.Describe(out.err)); err != nil {
					o.fail(err)
					return
				}
				o.metrics.RecordEventEmitted(string(models.EventTypeError))
			} else {
				if err := o.emitter.Emit(models.EventTypeSuggestion, out.text); err != nil {
					o.fail(err)
					return
				}
				o.metrics.RecordEventEmitted(string(models.EventTypeSuggestion))
				o.mirrorSuggestion(models.SuggestionResult{Text: out.text, BasedOnSegmentCount: out.basedOn})
			}
			if pending && o.assembler.Count() > lastAskedFor {
				pending = false
				inFlight = true
				lastAskedFor = o.assembler.Count()
				o.requestSuggestion(o.assembler.FullText(), lastAskedFor)
				continue
			}
			pending = false
			if drained && !inFlight {
				o.finish()
				return
			}

		case <-endCh:
			endCh = nil
			if err := o.lc.BeginFinishing(); err != nil {
				o.fail(err)
				return
			}
			o.log.Debug().Msg("end-of-input signaled, draining")
			if err := o.adapter.SignalEnd(); err != nil {
				o.fail(err)
				return
			}
			drainStarted = time.Now()
			if o.cfg.DrainTimeout > 0 {
				drainTimer = time.NewTimer(o.cfg.DrainTimeout)
				drainExpire = drainTimer.C
			}

		case <-drainedCh:
			drainedCh = nil
			if err := flushTranscripts(); err != nil {
				o.fail(err)
				return
			}
			if drainTimer != nil {
				drainTimer.Stop()
				drainExpire = nil
			}
			if err := o.lc.MarkDrained(); err != nil {
				o.fail(err)
				return
			}
			o.metrics.RecordDrain(time.Since(drainStarted).Seconds())
			drained = true
			if o.cfg.Mode == models.ModeFinalizeOnce {
				if o.assembler.Count() == 0 {
					o.finish()
					return
				}
				full := o.assembler.FullText()
				if err := o.emitter.Emit(models.EventTypeTranscript, full); err != nil {
					o.fail(err)
					return
				}
				o.metrics.RecordEventEmitted(string(models.EventTypeTranscript))
				inFlight = true
				lastAskedFor = o.assembler.Count()
				o.requestSuggestion(full, lastAskedFor)
				continue
			}
			if !inFlight && !pending {
				o.finish()
				return
			}

		case <-drainExpire:
			o.fail(fault.New(fault.KindTransportError, "drain timed out waiting for final transcripts"))
			return

		case err := <-o.sttErrCh:
			o.metrics.RecordSTTError(o.cfg.Provider)
			o.fail(err)
			return

		case <-o.goneCh:
			o.log.Info().Msg("client disconnected, tearing session down")
			o.emitter.Close()
			o.failSilently(fault.New(fault.KindClientDisconnected, "client connection dropped"))
			return

		case <-o.ctx.Done():
			o.failSilently(fault.Wrap(fault.KindTransportError, "session context canceled", o.ctx.Err()))
			return
		}
	}
}

// start brings the STT stream up, bounded by the configured start timeout.
func (o *Orchestrator) start() error {
	if err := o.lc.Begin(); err != nil {
		return err
	}

	startErr := make(chan error, 1)
	go func() { startErr <- o.adapter.Start(o.ctx, o) }()

	var timeout <-chan time.Time
	if o.cfg.StartTimeout > 0 {
		t := time.NewTimer(o.cfg.StartTimeout)
		defer t.Stop()
		timeout = t.C
	}

	select {
	case err := <-startErr:
		if err != nil {
			return err
		}
	case <-timeout:
		return fault.New(fault.KindServiceUnavailable, "transcription stream start timed out")
	case <-o.goneCh:
		return fault.New(fault.KindClientDisconnected, "client left before stream start")
	}

	return o.lc.MarkStreaming()
}

// requestSuggestion launches one suggestion request. Only one runs at a time;
// the loop coalesces further triggers until the outcome arrives.
func (o *Orchestrator) requestSuggestion(fullText string, basedOn int) {
	started := time.Now()
	go func() {
		text, err := o.suggester.Request(o.ctx, fullText)
		select {
		case o.suggestionCh <- suggestionOutcome{text: text, basedOn: basedOn, err: err, started: started}:
		case <-o.done:
		}
	}()
}

func (o *Orchestrator) mirrorTranscript(seg models.TranscriptSegment) {
	if o.mirror == nil {
		return
	}
	go func() {
		if err := o.mirror.PublishTranscript(o.ctx, o.lc.SessionId(), seg); err != nil {
			o.log.Warn().Err(err).Msg("transcript mirror publish failed")
		}
	}()
}

func (o *Orchestrator) mirrorSuggestion(sug models.SuggestionResult) {
	if o.mirror == nil {
		return
	}
	go func() {
		if err := o.mirror.PublishSuggestion(o.ctx, o.lc.SessionId(), sug); err != nil {
			o.log.Warn().Err(err).Msg("suggestion mirror publish failed")
		}
	}()
}

// fail ends the session on a fault, emitting one error event unless the
// client itself is the reason no events can be delivered.
func (o *Orchestrator) fail(err error) {
	if !o.lc.Fail() {
		return
	}
	kind := fault.KindOf(err)
	o.log.Error().Err(err).Str("kind", kind.String()).Msg("session failed")
	o.metrics.RecordSessionEnd(false, time.Since(o.startedAt).Seconds())
	if kind == fault.KindClientDisconnected {
		o.metrics.RecordEmitFailure()
	} else {
		if emitErr := o.emitter.Emit(models.EventTypeError, fault.Describe(err)); emitErr != nil {
			o.log.Debug().Err(emitErr).Msg("error event not delivered")
		} else {
			o.metrics.RecordEventEmitted(string(models.EventTypeError))
		}
	}
	o.lc.Close()
}

// failSilently ends the session without attempting an error event.
func (o *Orchestrator) failSilently(err error) {
	if !o.lc.Fail() {
		return
	}
	o.log.Info().Err(err).Msg("session ended")
	o.metrics.RecordSessionEnd(false, time.Since(o.startedAt).Seconds())
	o.lc.Close()
}

// finish completes a drained session cleanly.
func (o *Orchestrator) finish() {
	if err := o.lc.Close(); err != nil {
		o.log.Warn().Err(err).Msg("close after drain")
		return
	}
	o.metrics.RecordSessionEnd(true, time.Since(o.startedAt).Seconds())
	o.log.Info().
		Int("segments", o.assembler.Count()).
		Int64("events", o.emitter.EmittedCount()).
		Msg("session completed")
}

func (o *Orchestrator) teardown() {
	o.downOnce.Do(func() {
		o.adapter.Close()
		o.emitter.Close()
		o.cancel()
		close(o.done)
	})
}
