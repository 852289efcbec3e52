package talk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hearsay-ai/hearsay/internal/observe"
	"github.com/hearsay-ai/hearsay/pkg/audio"
	"github.com/hearsay-ai/hearsay/pkg/audio/aec"
	"github.com/hearsay-ai/hearsay/pkg/provider/agent"
	"github.com/hearsay-ai/hearsay/pkg/provider/stt"
	"github.com/hearsay-ai/hearsay/pkg/provider/tts"
	"github.com/hearsay-ai/hearsay/pkg/provider/vad"
	"github.com/hearsay-ai/hearsay/pkg/provider/wake"
)

const (
	// maxListenWait bounds how long Listening waits for speech onset after
	// a wake word before giving up and returning to WakeIdle.
	maxListenWait = 10 * time.Second

	// finalizeTimeout bounds one utterance finalization.
	finalizeTimeout = 15 * time.Second

	// cpuGaugeInterval is how often (in frames) the wake CPU estimate gauge
	// is refreshed while idle.
	cpuGaugeInterval = 100

	// maxPendingChunks bounds the synthesis chunks held locally while the
	// playback ring is full.
	maxPendingChunks = 32
)

// Config tunes the interaction loop.
type Config struct {
	// SenderID identifies this station in agent deliveries. Default "local".
	SenderID string

	// WakePhrase is stripped from the transcript of the utterance that woke
	// the system. Empty disables stripping.
	WakePhrase string

	// Apology is spoken when a turn fails after the utterance was captured.
	Apology string

	// AgentTimeout bounds one agent delivery. Default 30s.
	AgentTimeout time.Duration

	// WakeWindow keeps the loop in Listening for this long after a spoken
	// reply so follow-ups need no wake word. Zero returns straight to
	// WakeIdle.
	WakeWindow time.Duration

	// VAD configures the voice activity session used for utterance
	// boundaries and interruption detection.
	VAD vad.Config

	// SampleRate of the audio bus in Hz. Default 16000.
	SampleRate int

	// Language is the recognition language hint.
	Language string
}

func (c Config) withDefaults() Config {
	if c.SenderID == "" {
		c.SenderID = "local"
	}
	if c.Apology == "" {
		c.Apology = "Sorry, something went wrong. Please try again."
	}
	if c.AgentTimeout <= 0 {
		c.AgentTimeout = 30 * time.Second
	}
	if c.SampleRate <= 0 {
		c.SampleRate = 16000
	}
	return c
}

// Deps are the collaborators the controller drives. All fields except
// Canceller, Hub, Metrics, and Logger are required.
type Deps struct {
	Capture  audio.CaptureStream
	Playback audio.PlaybackStream
	Wake     *wake.Detector
	VAD      vad.Engine
	STT      stt.Provider
	TTS      tts.Provider
	Agent    agent.Agent

	// Canceller subtracts the playback reference from captured audio.
	// Nil disables echo cancellation.
	Canceller *aec.Canceller

	// Hub receives status events. Nil creates a private hub.
	Hub *EventHub

	// Metrics records pipeline metrics. Nil uses observe.DefaultMetrics.
	Metrics *observe.Metrics

	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

// Stats is a snapshot of the controller's counters.
type Stats struct {
	WakeDetections uint64
	Turns          uint64
	Interruptions  uint64
	EmptyFinals    uint64
	TurnErrors     uint64
}

// Controller owns the interaction loop. Create with New, drive with Run.
type Controller struct {
	cfg      Config
	deps     Deps
	stripper *PhraseStripper
	hub      *EventHub
	metrics  *observe.Metrics
	logger   *slog.Logger

	// lastDropped is the capture drop count at the previous metrics
	// refresh. Touched only by the Run goroutine.
	lastDropped uint64

	// lead holds the frames captured just before a barge-in confirmed, so
	// the interrupting utterance reaches the recognizer from its onset
	// rather than from after the VAD debounce. Touched only by the Run
	// goroutine.
	lead [][]int16

	mu    sync.Mutex
	state State
	stats Stats
}

// New validates deps and creates a Controller.
func New(cfg Config, deps Deps) (*Controller, error) {
	switch {
	case deps.Capture == nil:
		return nil, errors.New("talk: Deps.Capture is required")
	case deps.Playback == nil:
		return nil, errors.New("talk: Deps.Playback is required")
	case deps.Wake == nil:
		return nil, errors.New("talk: Deps.Wake is required")
	case deps.VAD == nil:
		return nil, errors.New("talk: Deps.VAD is required")
	case deps.STT == nil:
		return nil, errors.New("talk: Deps.STT is required")
	case deps.TTS == nil:
		return nil, errors.New("talk: Deps.TTS is required")
	case deps.Agent == nil:
		return nil, errors.New("talk: Deps.Agent is required")
	}
	if deps.Hub == nil {
		deps.Hub = NewEventHub()
	}
	if deps.Metrics == nil {
		deps.Metrics = observe.DefaultMetrics()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	cfg = cfg.withDefaults()
	return &Controller{
		cfg:      cfg,
		deps:     deps,
		stripper: NewPhraseStripper(cfg.WakePhrase),
		hub:      deps.Hub,
		metrics:  deps.Metrics,
		logger:   deps.Logger,
		state:    StateWakeIdle,
	}, nil
}

// State returns the controller's current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Stats returns a snapshot of the controller's counters.
func (c *Controller) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// Hub returns the event hub status observers subscribe to.
func (c *Controller) Hub() *EventHub { return c.hub }

// Run drives the interaction loop until ctx is cancelled or the audio bus
// fails. A cancelled context is a clean shutdown and returns nil.
func (c *Controller) Run(ctx context.Context) error {
	vadSession, err := c.deps.VAD.NewSession(c.cfg.VAD)
	if err != nil {
		return fmt.Errorf("talk: create vad session: %w", err)
	}
	defer vadSession.Close()
	defer c.setState(ctx, StateStopped, StatusEvent{})

	detections := c.deps.Wake.Subscribe()

	// wakeTurn is true when the next utterance began with the wake phrase.
	wakeTurn := true

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		if wakeTurn {
			c.setState(ctx, StateWakeIdle, StatusEvent{})
			if err := c.runWakeIdle(ctx, detections); err != nil {
				return c.runErr(err)
			}
			if ctx.Err() != nil {
				return nil
			}
		}

		next, err := c.runTurn(ctx, vadSession, wakeTurn)
		if err != nil {
			return c.runErr(err)
		}
		wakeTurn = next == StateWakeIdle
	}
}

// runErr maps context cancellation to a clean shutdown.
func (c *Controller) runErr(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

// setState records and broadcasts a state transition.
func (c *Controller) setState(ctx context.Context, s State, ev StatusEvent) {
	c.mu.Lock()
	prev := c.state
	c.state = s
	c.mu.Unlock()
	if prev != s {
		c.logger.Debug("state transition", "from", prev.String(), "to", s.String())
	}
	c.metrics.TalkState.Record(ctx, int64(s))
	ev.State = s
	c.hub.Publish(ev)
}

// runWakeIdle feeds capture frames to the wake detector until it fires.
func (c *Controller) runWakeIdle(ctx context.Context, detections <-chan wake.Detection) error {
	// Detections buffered while the loop was busy elsewhere are stale.
	for {
		select {
		case _, ok := <-detections:
			if !ok {
				return errors.New("talk: wake detector closed")
			}
			continue
		default:
		}
		break
	}

	frames := c.deps.Capture.Frames()
	var sinceGauge int

	for {
		select {
		case <-ctx.Done():
			return nil
		case frame, ok := <-frames:
			if !ok {
				return fmt.Errorf("talk: capture stream ended: %w", audio.ErrStreamClosed)
			}
			if _, err := c.deps.Wake.ProcessFrame(frame.Samples); err != nil {
				// A scorer failure must not kill the always-on loop.
				c.logger.Warn("wake scoring failed", "error", err)
			}
			sinceGauge++
			if sinceGauge >= cpuGaugeInterval {
				sinceGauge = 0
				c.metrics.WakeCPUEstimate.Record(ctx, c.deps.Wake.CPUEstimate())
				if dropped := c.deps.Capture.Stats().FramesDropped; dropped > c.lastDropped {
					c.metrics.FramesDropped.Add(ctx, int64(dropped-c.lastDropped))
					c.lastDropped = dropped
				}
			}
		case det, ok := <-detections:
			if !ok {
				return errors.New("talk: wake detector closed")
			}
			c.mu.Lock()
			c.stats.WakeDetections++
			c.mu.Unlock()
			c.metrics.WakeDetections.Add(ctx, 1)
			c.logger.Info("wake word detected",
				"confidence", det.Confidence,
				"frame", det.FrameIndex,
			)
			return nil
		}
	}
}

// runTurn executes one full turn: capture, transcribe, deliver, speak.
// It returns the state to resume from: StateWakeIdle or StateListening.
func (c *Controller) runTurn(ctx context.Context, vadSession vad.SessionHandle, wakeTurn bool) (State, error) {
	text, finalized, err := c.captureUtterance(ctx, vadSession, wakeTurn)
	if err != nil || !finalized {
		return StateWakeIdle, err
	}

	if wakeTurn {
		text = c.stripper.Strip(text)
	}
	if text == "" {
		// A valid "no utterance" result. The agent is never consulted.
		c.mu.Lock()
		c.stats.EmptyFinals++
		c.mu.Unlock()
		c.metrics.RecordTurn(ctx, "empty")
		c.logger.Debug("empty final transcript, skipping agent")
		return StateWakeIdle, nil
	}

	reply, ok := c.runThinking(ctx, text)
	if ctx.Err() != nil {
		return StateWakeIdle, nil
	}
	if !ok {
		reply = c.cfg.Apology
	}
	if reply == "" {
		// The agent chose silence.
		c.metrics.RecordTurn(ctx, "ok")
		c.bumpTurns()
		return StateWakeIdle, nil
	}

	return c.runSpeaking(ctx, vadSession, reply, !ok)
}

// captureUtterance runs Listening and Transcribing. finalized is true when a
// transcript (possibly empty) was produced; false means the turn ended early
// (no speech before the deadline, engine failure, shutdown) and the loop
// resumes from WakeIdle.
func (c *Controller) captureUtterance(ctx context.Context, vadSession vad.SessionHandle, wakeTurn bool) (text string, finalized bool, err error) {
	vadSession.Reset()
	c.setState(ctx, StateListening, StatusEvent{})

	session, err := c.deps.STT.StartStream(ctx, stt.StreamConfig{
		SampleRate: c.cfg.SampleRate,
		Language:   c.cfg.Language,
	})
	if err != nil {
		c.turnError(ctx, "stt", err)
		return "", false, nil
	}
	defer session.Close()

	// Forward interim transcripts to status observers.
	partialsDone := make(chan struct{})
	go func() {
		defer close(partialsDone)
		for p := range session.Partials() {
			c.hub.Publish(StatusEvent{State: StateListening, Transcript: p.Text})
		}
	}()

	frames := c.deps.Capture.Frames()
	speechSeen := false

	// Replay the frames buffered around an interruption so the utterance
	// starts at its first speech frame.
	lead := c.lead
	c.lead = nil
	for _, samples := range lead {
		state, err := vadSession.ProcessFrame(samples)
		if err != nil {
			c.turnError(ctx, "vad", err)
			return "", false, nil
		}
		if err := session.SendAudio(samples); err != nil {
			c.turnError(ctx, "stt", err)
			return "", false, nil
		}
		if state == vad.StateSpeech {
			speechSeen = true
		}
	}

	deadline := time.NewTimer(c.listenWait(wakeTurn))
	defer deadline.Stop()

capture:
	for {
		select {
		case <-ctx.Done():
			return "", false, nil
		case <-deadline.C:
			if !speechSeen {
				c.logger.Debug("no speech before deadline, returning to idle")
				return "", false, nil
			}
		case frame, ok := <-frames:
			if !ok {
				return "", false, fmt.Errorf("talk: capture stream ended: %w", audio.ErrStreamClosed)
			}
			samples := frame.Samples
			if c.deps.Canceller != nil {
				samples = c.deps.Canceller.Process(samples)
			}
			state, err := vadSession.ProcessFrame(samples)
			if err != nil {
				c.turnError(ctx, "vad", err)
				return "", false, nil
			}
			if err := session.SendAudio(samples); err != nil {
				c.turnError(ctx, "stt", err)
				return "", false, nil
			}
			switch state {
			case vad.StateSpeech:
				speechSeen = true
			case vad.StateSpeechEnd:
				break capture
			}
		}
	}

	c.setState(ctx, StateTranscribing, StatusEvent{})
	start := time.Now()
	finalCtx, cancel := context.WithTimeout(ctx, finalizeTimeout)
	transcript, err := session.Finalize(finalCtx)
	cancel()
	<-partialsDone
	c.metrics.STTDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		c.turnError(ctx, "stt", err)
		return "", false, nil
	}

	c.hub.Publish(StatusEvent{State: StateTranscribing, Transcript: transcript.Text, Final: true})
	return transcript.Text, true, nil
}

// listenWait returns how long Listening waits for speech onset. Follow-up
// windows use the configured WakeWindow; wake turns use maxListenWait.
func (c *Controller) listenWait(wakeTurn bool) time.Duration {
	if !wakeTurn && c.cfg.WakeWindow > 0 {
		return c.cfg.WakeWindow
	}
	return maxListenWait
}

// runThinking delivers the utterance to the agent. ok is false when the
// delivery failed or timed out and the apology should be spoken instead.
func (c *Controller) runThinking(ctx context.Context, text string) (reply string, ok bool) {
	c.setState(ctx, StateThinking, StatusEvent{Transcript: text, Final: true})

	deliverCtx, cancel := context.WithTimeout(ctx, c.cfg.AgentTimeout)
	defer cancel()

	start := time.Now()
	reply, err := c.deps.Agent.Deliver(deliverCtx, c.cfg.SenderID, text)
	c.metrics.AgentDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		if ctx.Err() != nil {
			return "", false
		}
		c.turnError(ctx, "agent", err)
		return "", false
	}
	return reply, true
}

// runSpeaking streams synthesis to the playback device while watching the
// microphone for a barge-in. On interruption the remaining synthesis is
// aborted, queued playback is discarded, and the loop resumes Listening
// immediately so the interrupting utterance is captured from its onset.
func (c *Controller) runSpeaking(ctx context.Context, vadSession vad.SessionHandle, reply string, isApology bool) (State, error) {
	c.setState(ctx, StateSpeaking, StatusEvent{Reply: reply})
	vadSession.Reset()

	sink := make(chan tts.Chunk, 8)
	synthStart := time.Now()
	abort, err := c.deps.TTS.SynthesizeStream(ctx, reply, sink)
	if err != nil {
		c.turnError(ctx, "tts", err)
		return StateWakeIdle, nil
	}

	frames := c.deps.Capture.Frames()
	retry := time.NewTicker(5 * time.Millisecond)
	defer retry.Stop()

	var pending []tts.Chunk
	interrupted := false
	firstChunk := true
	sinkCh := sink

	// The VAD consumes a debounce window of speech before it confirms a
	// barge-in; keep that much recent audio for replay into the next turn.
	leadCap := int(c.cfg.VAD.WithDefaults().MinSpeechDuration/audio.DefaultFrameDuration) + 1
	var lead [][]int16

speak:
	for {
		// Stop pulling from the synthesizer while the local backlog is deep.
		if len(pending) >= maxPendingChunks {
			sinkCh = nil
		} else if !interrupted {
			sinkCh = sink
		}

		select {
		case <-ctx.Done():
			abort.Abort()
			go drainChunks(sink)
			return StateWakeIdle, nil

		case frame, ok := <-frames:
			if !ok {
				abort.Abort()
				go drainChunks(sink)
				return StateWakeIdle, fmt.Errorf("talk: capture stream ended: %w", audio.ErrStreamClosed)
			}
			samples := frame.Samples
			if c.deps.Canceller != nil {
				samples = c.deps.Canceller.Process(samples)
			}
			lead = append(lead, samples)
			if len(lead) > leadCap {
				lead = lead[1:]
			}
			state, err := vadSession.ProcessFrame(samples)
			if err != nil {
				c.logger.Warn("vad failed during playback", "error", err)
				continue
			}
			if state == vad.StateSpeech && !interrupted {
				interrupted = true
				abort.Abort()
				c.deps.Playback.Clear()
				break speak
			}

		case chunk, ok := <-sinkCh:
			if !ok {
				if synthErr := abort.Err(); synthErr != nil {
					c.turnError(ctx, "tts", synthErr)
					if !isApology {
						return c.runSpeaking(ctx, vadSession, c.cfg.Apology, true)
					}
					return StateWakeIdle, nil
				}
				if err := c.flushPending(pending); err != nil {
					c.logger.Warn("playback write failed", "error", err)
				}
				break speak
			}
			if firstChunk {
				// Time to first audio is the latency the user hears.
				c.metrics.TTSDuration.Record(ctx, time.Since(synthStart).Seconds())
				firstChunk = false
			}
			pending = append(pending, chunk)
			pending = c.writePending(pending)

		case <-retry.C:
			pending = c.writePending(pending)
		}
	}

	c.bumpTurns()

	if interrupted {
		// The synthesizer may be mid-sentence and notices the abort only at
		// its next check. Let it unwind in the background instead of holding
		// the turn in Speaking while the interrupting speech piles up.
		go drainChunks(sink)
		c.mu.Lock()
		c.stats.Interruptions++
		c.mu.Unlock()
		c.metrics.Interruptions.Add(ctx, 1)
		c.metrics.RecordTurn(ctx, "interrupted")
		c.logger.Info("playback interrupted by speech")
		if c.deps.Canceller != nil {
			c.deps.Canceller.Reset()
		}
		// Straight to Listening: the interrupting utterance needs no wake
		// word, and the buffered frames around its onset open the next
		// recognition session.
		c.lead = lead
		return StateListening, nil
	}

	c.deps.Playback.Flush()
	c.metrics.RecordTurn(ctx, "ok")
	if c.deps.Canceller != nil {
		c.deps.Canceller.Reset()
	}
	if c.cfg.WakeWindow > 0 {
		return StateListening, nil
	}
	return StateWakeIdle, nil
}

// writePending feeds queued chunks to the playback device and the echo
// canceller reference, stopping at the first full-buffer rejection.
func (c *Controller) writePending(pending []tts.Chunk) []tts.Chunk {
	for len(pending) > 0 {
		chunk := pending[0]
		err := c.deps.Playback.Write(audio.Frame{
			Samples:    chunk.Samples,
			SampleRate: chunk.SampleRate,
		})
		if errors.Is(err, audio.ErrBufferFull) {
			return pending
		}
		if err != nil {
			c.logger.Warn("playback write failed", "error", err)
			return pending[1:]
		}
		if c.deps.Canceller != nil {
			c.deps.Canceller.FeedReference(chunk.Samples)
		}
		pending = pending[1:]
	}
	return pending
}

// flushPending writes any remaining chunks, blocking briefly on a full ring.
func (c *Controller) flushPending(pending []tts.Chunk) error {
	for attempts := 0; len(pending) > 0 && attempts < 200; attempts++ {
		before := len(pending)
		pending = c.writePending(pending)
		if len(pending) == before {
			time.Sleep(5 * time.Millisecond)
		}
	}
	if len(pending) > 0 {
		return audio.ErrBufferFull
	}
	return nil
}

// turnError logs a provider failure and records it. Interruptions never come
// through here; they are part of normal operation.
func (c *Controller) turnError(ctx context.Context, kind string, err error) {
	c.mu.Lock()
	c.stats.TurnErrors++
	c.mu.Unlock()
	c.logger.Error("turn failed", "provider", kind, "error", err)
	c.metrics.RecordProviderError(ctx, kind, kind)
	c.metrics.RecordTurn(ctx, "error")
}

func (c *Controller) bumpTurns() {
	c.mu.Lock()
	c.stats.Turns++
	c.mu.Unlock()
}

// drainChunks discards the rest of a synthesis sink so the producer can exit.
func drainChunks(sink <-chan tts.Chunk) {
	for range sink {
	}
}
