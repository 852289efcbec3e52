package talk

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	audiomock "github.com/hearsay-ai/hearsay/pkg/audio/mock"
	agentmock "github.com/hearsay-ai/hearsay/pkg/provider/agent/mock"
	"github.com/hearsay-ai/hearsay/pkg/provider/stt"
	sttmock "github.com/hearsay-ai/hearsay/pkg/provider/stt/mock"
	ttsmock "github.com/hearsay-ai/hearsay/pkg/provider/tts/mock"
	"github.com/hearsay-ai/hearsay/pkg/provider/vad"
	vadmock "github.com/hearsay-ai/hearsay/pkg/provider/vad/mock"
	"github.com/hearsay-ai/hearsay/pkg/provider/wake"
	wakemock "github.com/hearsay-ai/hearsay/pkg/provider/wake/mock"
)

const testTimeout = 5 * time.Second

// rig wires a Controller to scripted collaborators. Tests drive it by
// pushing capture frames and follow it through the event hub.
type rig struct {
	bus     *audiomock.Bus
	scorer  *wakemock.Scorer
	vadSess *vadmock.Session
	sttProv *sttmock.Provider
	sttSess *sttmock.Session
	tts     *ttsmock.Provider
	agent   *agentmock.Agent

	ctrl   *Controller
	events <-chan StatusEvent
	errCh  chan error
	cancel context.CancelFunc
}

func newRig(t *testing.T, cfg Config) *rig {
	t.Helper()

	r := &rig{
		bus:     audiomock.NewBus(),
		scorer:  &wakemock.Scorer{},
		vadSess: &vadmock.Session{Default: vad.StateSilence},
		sttSess: &sttmock.Session{},
		tts:     &ttsmock.Provider{},
		agent:   &agentmock.Agent{Default: "Done."},
	}
	r.sttProv = &sttmock.Provider{Session: r.sttSess}

	hub := NewEventHub()
	ctrl, err := New(cfg, Deps{
		Capture:  r.bus.Capture(),
		Playback: r.bus.Playback(),
		Wake:     wake.NewDetector(r.scorer, wake.Config{Threshold: 0.5}),
		VAD:      &vadmock.Engine{Session: r.vadSess},
		STT:      r.sttProv,
		TTS:      r.tts,
		Agent:    r.agent,
		Hub:      hub,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	r.ctrl = ctrl

	events, cancelSub := hub.Subscribe()
	t.Cleanup(cancelSub)
	r.events = events
	return r
}

// start launches Run and registers a cleanup that stops it and checks the
// return value.
func (r *rig) start(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.errCh = make(chan error, 1)
	go func() { r.errCh <- r.ctrl.Run(ctx) }()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-r.errCh:
			if err != nil {
				t.Errorf("Run returned error: %v", err)
			}
		case <-time.After(testTimeout):
			t.Error("controller did not stop after cancel")
		}
	})
}

// push delivers n silent capture frames.
func (r *rig) push(n int) {
	for i := 0; i < n; i++ {
		r.bus.Capture().Push(make([]int16, 480))
	}
}

// waitFor consumes events until one satisfies match.
func waitFor(t *testing.T, events <-chan StatusEvent, desc string, match func(StatusEvent) bool) StatusEvent {
	t.Helper()
	deadline := time.After(testTimeout)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				t.Fatalf("event stream closed waiting for %s", desc)
			}
			if match(ev) {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", desc)
		}
	}
}

func waitState(t *testing.T, events <-chan StatusEvent, want State) StatusEvent {
	t.Helper()
	return waitFor(t, events, "state "+want.String(), func(ev StatusEvent) bool {
		return ev.State == want
	})
}

// waitUntil polls cond until it holds.
func waitUntil(t *testing.T, desc string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(testTimeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting until %s", desc)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestControllerFullTurn(t *testing.T) {
	r := newRig(t, Config{WakePhrase: "hey hearsay"})
	r.scorer.Scores = []float64{0.9}
	r.vadSess.States = []vad.State{vad.StateSpeech, vad.StateSpeech, vad.StateSpeechEnd}
	r.sttSess.Final = stt.Transcript{Text: "hey hearsay turn on the lights"}
	r.start(t)

	waitState(t, r.events, StateWakeIdle)
	r.push(1) // scores 0.9, fires the wake detector
	waitState(t, r.events, StateListening)

	r.sttSess.EmitPartial("turn on")
	waitFor(t, r.events, "interim transcript", func(ev StatusEvent) bool {
		return ev.Transcript == "turn on" && !ev.Final
	})

	r.push(3) // speech, speech, speech end
	waitState(t, r.events, StateTranscribing)
	waitFor(t, r.events, "final transcript", func(ev StatusEvent) bool {
		return ev.Final && ev.Transcript == "hey hearsay turn on the lights"
	})

	thinking := waitState(t, r.events, StateThinking)
	if thinking.Transcript != "turn on the lights" {
		t.Errorf("delivered text = %q, want wake phrase stripped", thinking.Transcript)
	}

	speaking := waitState(t, r.events, StateSpeaking)
	if speaking.Reply != "Done." {
		t.Errorf("Reply = %q, want %q", speaking.Reply, "Done.")
	}
	waitState(t, r.events, StateWakeIdle)

	if got := r.agent.Deliveries; len(got) != 1 || got[0].SenderID != "local" || got[0].Text != "turn on the lights" {
		t.Errorf("Deliveries = %+v, want one delivery of the stripped text from %q", got, "local")
	}
	if got := len(r.bus.Playback().Written()); got != 1 {
		t.Errorf("playback frames = %d, want 1", got)
	}
	if r.bus.Playback().FlushCount() == 0 {
		t.Error("playback was never flushed")
	}
	if got := len(r.sttSess.Frames); got != 3 {
		t.Errorf("frames sent to recognizer = %d, want 3", got)
	}
	stats := r.ctrl.Stats()
	if stats.WakeDetections != 1 || stats.Turns != 1 || stats.Interruptions != 0 || stats.TurnErrors != 0 {
		t.Errorf("Stats = %+v, want one clean wake turn", stats)
	}
}

func TestControllerEmptyFinalSkipsAgent(t *testing.T) {
	r := newRig(t, Config{WakePhrase: "hey hearsay"})
	r.scorer.Scores = []float64{0.9}
	r.vadSess.States = []vad.State{vad.StateSpeech, vad.StateSpeechEnd}
	// The utterance was nothing but the wake phrase.
	r.sttSess.Final = stt.Transcript{Text: "hey hearsay"}
	r.start(t)

	waitState(t, r.events, StateWakeIdle)
	r.push(1)
	waitState(t, r.events, StateListening)
	r.push(2)
	waitState(t, r.events, StateTranscribing)
	waitState(t, r.events, StateWakeIdle)

	if got := r.agent.DeliveryCount(); got != 0 {
		t.Errorf("DeliveryCount = %d, want agent untouched", got)
	}
	if got := len(r.tts.StreamCalls); got != 0 {
		t.Errorf("StreamCalls = %d, want no synthesis", got)
	}
	stats := r.ctrl.Stats()
	if stats.EmptyFinals != 1 || stats.Turns != 0 {
		t.Errorf("Stats = %+v, want EmptyFinals 1 and no completed turn", stats)
	}
}

func TestControllerInterruptionMidPlayback(t *testing.T) {
	gate := make(chan struct{}, 2)
	gate <- struct{}{}
	gate <- struct{}{}

	r := newRig(t, Config{})
	r.scorer.Scores = []float64{0.9}
	r.tts.ChunksPerSentence = 5
	r.tts.ChunkGate = gate
	// Three frames bound the utterance; the fourth arrives during playback.
	r.vadSess.States = []vad.State{
		vad.StateSpeech, vad.StateSpeech, vad.StateSpeechEnd,
		vad.StateSpeech,
	}
	r.sttSess.Final = stt.Transcript{Text: "tell me a story"}
	r.start(t)

	waitState(t, r.events, StateWakeIdle)
	r.push(1)
	waitState(t, r.events, StateListening)
	r.push(3)
	waitState(t, r.events, StateSpeaking)

	// The gate lets exactly two chunks through before synthesis stalls.
	waitUntil(t, "two chunks played", func() bool {
		return len(r.bus.Playback().Written()) == 2
	})

	r.push(1) // barge-in
	waitUntil(t, "synthesis aborted", func() bool {
		return r.tts.Aborts[0].Aborted()
	})
	close(gate) // release the stalled synthesizer so it can observe the abort

	// An interruption resumes Listening directly, no wake word needed.
	waitState(t, r.events, StateListening)

	if got := r.bus.Playback().ClearCount(); got != 1 {
		t.Errorf("ClearCount = %d, want queued playback discarded once", got)
	}
	if got := len(r.bus.Playback().Written()); got != 2 {
		t.Errorf("playback frames = %d, want playback cut off at 2", got)
	}
	stats := r.ctrl.Stats()
	if stats.Interruptions != 1 || stats.Turns != 1 {
		t.Errorf("Stats = %+v, want one interrupted turn", stats)
	}
}

// A synthesizer that is mid-sentence notices the abort only at its next
// check. The controller must not wait for that: Listening follows the
// barge-in even while the synthesizer is still stalled.
func TestControllerInterruptionDoesNotWaitForSynthesizer(t *testing.T) {
	gate := make(chan struct{}, 2)
	gate <- struct{}{}
	gate <- struct{}{}

	r := newRig(t, Config{})
	r.scorer.Scores = []float64{0.9}
	r.tts.ChunksPerSentence = 5
	r.tts.ChunkGate = gate
	r.vadSess.States = []vad.State{
		vad.StateSpeech, vad.StateSpeech, vad.StateSpeechEnd,
		vad.StateSpeech,
	}
	r.sttSess.Final = stt.Transcript{Text: "tell me a story"}
	r.start(t)

	waitState(t, r.events, StateWakeIdle)
	r.push(1)
	waitState(t, r.events, StateListening)
	r.push(3)
	waitState(t, r.events, StateSpeaking)

	waitUntil(t, "two chunks played", func() bool {
		return len(r.bus.Playback().Written()) == 2
	})

	r.push(1) // barge-in

	// The gate is never released here: the synthesizer stays stalled on its
	// third chunk for the rest of the turn. Listening must arrive anyway.
	waitState(t, r.events, StateListening)

	if !r.tts.Aborts[0].Aborted() {
		t.Error("synthesis not aborted at the transition to Listening")
	}
	if got := len(r.bus.Playback().Written()); got != 2 {
		t.Errorf("playback frames = %d, want playback cut off at 2", got)
	}
	if got := r.ctrl.Stats().Interruptions; got != 1 {
		t.Errorf("Interruptions = %d, want 1", got)
	}
}

// The speech that confirms a barge-in is consumed by the VAD debounce during
// playback. It must still open the next recognition session, so the
// interrupting utterance is transcribed from its first frame.
func TestControllerInterruptionReplaysSpeechOnset(t *testing.T) {
	gate := make(chan struct{}, 2)
	gate <- struct{}{}
	gate <- struct{}{}

	r := newRig(t, Config{})
	r.scorer.Scores = []float64{0.9}
	r.tts.ChunksPerSentence = 5
	r.tts.ChunkGate = gate
	// Frames 0-2 bound the first utterance, frame 3 confirms the barge-in,
	// frame 3 replayed plus frames 4-5 bound the interrupting utterance.
	r.vadSess.States = []vad.State{
		vad.StateSpeech, vad.StateSpeech, vad.StateSpeechEnd,
		vad.StateSpeech,
		vad.StateSpeech, vad.StateSpeech, vad.StateSpeechEnd,
	}
	r.sttSess.Final = stt.Transcript{Text: "tell me a story"}
	r.start(t)

	waitState(t, r.events, StateWakeIdle)
	r.push(1)
	waitState(t, r.events, StateListening)
	r.push(3)
	waitState(t, r.events, StateSpeaking)
	waitUntil(t, "two chunks played", func() bool {
		return len(r.bus.Playback().Written()) == 2
	})

	onset := make([]int16, 480)
	onset[0] = 7777
	r.bus.Capture().Push(onset) // barge-in
	waitUntil(t, "synthesis aborted", func() bool {
		return r.tts.Aborts[0].Aborted()
	})
	close(gate)
	waitState(t, r.events, StateListening)

	// The barge-in frame reaches the new session before any further capture.
	waitUntil(t, "onset replayed into recognition", func() bool {
		return r.sttSess.FrameCount() == 4
	})
	if got := r.sttSess.Frames[3][0]; got != 7777 {
		t.Errorf("replayed frame sample = %d, want the barge-in frame", got)
	}

	// The interrupting utterance then completes as a normal turn.
	r.push(2)
	thinking := waitState(t, r.events, StateThinking)
	if thinking.Transcript != "tell me a story" {
		t.Errorf("Transcript = %q, want the interrupting utterance", thinking.Transcript)
	}
	if got := len(r.sttProv.StartStreamCalls); got != 2 {
		t.Errorf("StartStreamCalls = %d, want a fresh session per utterance", got)
	}
}

func TestControllerApologyOnAgentError(t *testing.T) {
	r := newRig(t, Config{Apology: "My apologies."})
	r.scorer.Scores = []float64{0.9}
	r.vadSess.States = []vad.State{vad.StateSpeech, vad.StateSpeechEnd}
	r.sttSess.Final = stt.Transcript{Text: "hello"}
	r.agent.DeliverErr = errors.New("backend unavailable")
	r.start(t)

	waitState(t, r.events, StateWakeIdle)
	r.push(1)
	waitState(t, r.events, StateListening)
	r.push(2)

	speaking := waitState(t, r.events, StateSpeaking)
	if speaking.Reply != "My apologies." {
		t.Errorf("Reply = %q, want the apology", speaking.Reply)
	}
	waitState(t, r.events, StateWakeIdle)

	if got := r.tts.StreamCalls; len(got) != 1 || got[0] != "My apologies." {
		t.Errorf("StreamCalls = %v, want only the apology", got)
	}
	if got := r.ctrl.Stats().TurnErrors; got != 1 {
		t.Errorf("TurnErrors = %d, want 1", got)
	}
}

func TestControllerEmptyReplySkipsSpeech(t *testing.T) {
	r := newRig(t, Config{})
	r.scorer.Scores = []float64{0.9}
	r.vadSess.States = []vad.State{vad.StateSpeech, vad.StateSpeechEnd}
	r.sttSess.Final = stt.Transcript{Text: "never mind"}
	r.agent.Default = ""
	r.start(t)

	waitState(t, r.events, StateWakeIdle)
	r.push(1)
	waitState(t, r.events, StateListening)
	r.push(2)
	waitState(t, r.events, StateThinking)
	waitState(t, r.events, StateWakeIdle)

	if got := len(r.tts.StreamCalls); got != 0 {
		t.Errorf("StreamCalls = %d, want silence", got)
	}
	if got := r.ctrl.Stats().Turns; got != 1 {
		t.Errorf("Turns = %d, want 1", got)
	}
}

func TestControllerFollowUpWindowExpires(t *testing.T) {
	r := newRig(t, Config{WakeWindow: 60 * time.Millisecond})
	r.scorer.Scores = []float64{0.9}
	r.vadSess.States = []vad.State{vad.StateSpeech, vad.StateSpeechEnd}
	r.sttSess.Final = stt.Transcript{Text: "hello"}
	r.start(t)

	waitState(t, r.events, StateWakeIdle)
	r.push(1)
	waitState(t, r.events, StateListening)
	r.push(2)
	waitState(t, r.events, StateSpeaking)

	// The wake window keeps the loop in Listening for a follow-up, then the
	// deadline sends it back to idle without a transcript.
	waitState(t, r.events, StateListening)
	waitState(t, r.events, StateWakeIdle)

	if got := len(r.sttProv.StartStreamCalls); got != 2 {
		t.Errorf("StartStream calls = %d, want 2 (turn + follow-up window)", got)
	}
	if got := r.agent.DeliveryCount(); got != 1 {
		t.Errorf("DeliveryCount = %d, want only the first turn delivered", got)
	}
}

func TestControllerStopsOnCaptureClose(t *testing.T) {
	r := newRig(t, Config{})
	r.start(t)

	waitState(t, r.events, StateWakeIdle)
	r.bus.Capture().Close()

	select {
	case err := <-r.errCh:
		if err == nil {
			t.Fatal("Run returned nil after the capture stream ended")
		}
	case <-time.After(testTimeout):
		t.Fatal("Run did not return after the capture stream ended")
	}
	// Refill so the cleanup's error check passes.
	r.errCh <- nil
	waitState(t, r.events, StateStopped)
}

func TestNewRequiresDeps(t *testing.T) {
	bus := audiomock.NewBus()
	full := Deps{
		Capture:  bus.Capture(),
		Playback: bus.Playback(),
		Wake:     wake.NewDetector(&wakemock.Scorer{}, wake.Config{}),
		VAD:      &vadmock.Engine{},
		STT:      &sttmock.Provider{},
		TTS:      &ttsmock.Provider{},
		Agent:    &agentmock.Agent{},
	}
	if _, err := New(Config{}, full); err != nil {
		t.Fatalf("New with full deps: %v", err)
	}

	drops := []func(*Deps){
		func(d *Deps) { d.Capture = nil },
		func(d *Deps) { d.Playback = nil },
		func(d *Deps) { d.Wake = nil },
		func(d *Deps) { d.VAD = nil },
		func(d *Deps) { d.STT = nil },
		func(d *Deps) { d.TTS = nil },
		func(d *Deps) { d.Agent = nil },
	}
	for i, drop := range drops {
		deps := full
		drop(&deps)
		if _, err := New(Config{}, deps); err == nil {
			t.Errorf("New accepted missing required dep (case %d)", i)
		}
	}
}
