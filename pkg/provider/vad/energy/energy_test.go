package energy

import (
	"math"
	"testing"
	"time"

	"pgregory.net/rapid"

	"github.com/hearsay-ai/hearsay/pkg/provider/vad"
)

const (
	sampleRate = 16000
	frameLen   = 480 // 30 ms
	frameMs    = 30
)

func speechFrame(t *testing.T) []int16 {
	t.Helper()
	frame := make([]int16, frameLen)
	for i := range frame {
		frame[i] = int16(8000 * math.Sin(2*math.Pi*300*float64(i)/sampleRate))
	}
	return frame
}

func silenceFrame() []int16 {
	return make([]int16, frameLen)
}

func newSession(t *testing.T) vad.SessionHandle {
	t.Helper()
	s, err := New().NewSession(vad.Config{SampleRate: sampleRate})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	return s
}

func TestSilenceNeverReportsSpeech(t *testing.T) {
	s := newSession(t)
	// 10 s of silence with low-level noise.
	noise := make([]int16, frameLen)
	for i := range noise {
		noise[i] = int16((i%7 - 3) * 30)
	}
	for i := 0; i < 10_000/frameMs; i++ {
		frame := silenceFrame()
		if i%2 == 1 {
			frame = noise
		}
		state, err := s.ProcessFrame(frame)
		if err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
		if state != vad.StateSilence {
			t.Fatalf("frame %d: state = %v, want SILENCE", i, state)
		}
	}
}

func TestTwoSecondsSilenceStaysSilent(t *testing.T) {
	s := newSession(t)
	for i := 0; i < 2000/frameMs; i++ {
		state, err := s.ProcessFrame(silenceFrame())
		if err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
		if state != vad.StateSilence {
			t.Fatalf("frame %d: state = %v, want SILENCE", i, state)
		}
	}
}

// TestUtteranceBoundaries feeds 300 ms silence, 1 s speech, 600 ms silence and
// checks that Speech is first reported after the 250 ms debounce point and
// SpeechEnd after the 500 ms trailing-silence threshold, each within 200 ms of
// the respective boundary.
func TestUtteranceBoundaries(t *testing.T) {
	s := newSession(t)
	speech := speechFrame(t)

	type report struct {
		ms    int
		state vad.State
	}
	var reports []report
	now := 0
	feed := func(frame []int16, ms int) {
		for elapsed := 0; elapsed < ms; elapsed += frameMs {
			state, err := s.ProcessFrame(frame)
			if err != nil {
				t.Fatalf("at %d ms: %v", now, err)
			}
			now += frameMs
			reports = append(reports, report{ms: now, state: state})
		}
	}

	feed(silenceFrame(), 300)
	speechStart := now
	feed(speech, 1000)
	silenceStart := now
	feed(silenceFrame(), 600)

	firstSpeech, speechEnd := -1, -1
	for _, r := range reports {
		if r.state == vad.StateSpeech && firstSpeech < 0 {
			firstSpeech = r.ms
		}
		if r.state == vad.StateSpeechEnd {
			if speechEnd >= 0 {
				t.Fatalf("SpeechEnd reported twice (at %d and %d ms)", speechEnd, r.ms)
			}
			speechEnd = r.ms
		}
	}

	if firstSpeech < 0 {
		t.Fatal("Speech never reported")
	}
	debouncePoint := speechStart + 250
	if firstSpeech < debouncePoint || firstSpeech > debouncePoint+200 {
		t.Errorf("first Speech at %d ms, want within 200 ms after debounce point %d ms",
			firstSpeech, debouncePoint)
	}

	if speechEnd < 0 {
		t.Fatal("SpeechEnd never reported")
	}
	boundary := silenceStart + 500
	if speechEnd < boundary || speechEnd > boundary+200 {
		t.Errorf("SpeechEnd at %d ms, want within 200 ms after silence threshold %d ms",
			speechEnd, boundary)
	}
}

// TestSpeechEndOnlyReachableFromSpeech verifies the state invariant: a
// transient shorter than the debounce window never produces Speech, and
// therefore never SpeechEnd either.
func TestSpeechEndOnlyReachableFromSpeech(t *testing.T) {
	s := newSession(t)
	speech := speechFrame(t)

	// 120 ms burst, below the 250 ms debounce window.
	for i := 0; i < 4; i++ {
		state, _ := s.ProcessFrame(speech)
		if state != vad.StateSilence {
			t.Fatalf("burst frame %d: state = %v, want SILENCE", i, state)
		}
	}
	for i := 0; i < 30; i++ {
		state, _ := s.ProcessFrame(silenceFrame())
		if state != vad.StateSilence {
			t.Fatalf("tail frame %d: state = %v, want SILENCE", i, state)
		}
	}
}

func TestResetRestoresInitialBehavior(t *testing.T) {
	s := newSession(t)
	speech := speechFrame(t)

	run := func() []vad.State {
		var states []vad.State
		for i := 0; i < 20; i++ {
			st, err := s.ProcessFrame(speech)
			if err != nil {
				t.Fatalf("ProcessFrame: %v", err)
			}
			states = append(states, st)
		}
		for i := 0; i < 25; i++ {
			st, err := s.ProcessFrame(silenceFrame())
			if err != nil {
				t.Fatalf("ProcessFrame: %v", err)
			}
			states = append(states, st)
		}
		return states
	}

	first := run()
	s.Reset()
	second := run()

	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("frame %d: state after Reset = %v, want %v", i, second[i], first[i])
		}
	}
}

func TestThresholdValidation(t *testing.T) {
	if _, err := New().NewSession(vad.Config{Threshold: 1.5}); err == nil {
		t.Error("NewSession accepted threshold > 1")
	}
	if _, err := New().NewSession(vad.Config{Threshold: -0.1}); err == nil {
		t.Error("NewSession accepted negative threshold")
	}
}

func TestClosedSessionRejectsFrames(t *testing.T) {
	s := newSession(t)
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := s.ProcessFrame(silenceFrame()); err == nil {
		t.Error("ProcessFrame succeeded on a closed session")
	}
}

// TestDeterminism is the reproducibility property: two sessions with the same
// configuration fed the same arbitrary frame sequence emit identical state
// sequences.
func TestDeterminism(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		cfg := vad.Config{
			SampleRate:         sampleRate,
			Threshold:          rapid.Float64Range(0.1, 0.9).Draw(rt, "threshold"),
			MinSpeechDuration:  time.Duration(rapid.IntRange(30, 500).Draw(rt, "minSpeech")) * time.Millisecond,
			MinSilenceDuration: time.Duration(rapid.IntRange(60, 800).Draw(rt, "minSilence")) * time.Millisecond,
		}
		eng := New()
		a, err := eng.NewSession(cfg)
		if err != nil {
			rt.Fatalf("NewSession: %v", err)
		}
		b, err := eng.NewSession(cfg)
		if err != nil {
			rt.Fatalf("NewSession: %v", err)
		}

		nFrames := rapid.IntRange(1, 120).Draw(rt, "frames")
		for i := 0; i < nFrames; i++ {
			amp := rapid.IntRange(0, 12000).Draw(rt, "amp")
			frame := make([]int16, frameLen)
			for j := range frame {
				frame[j] = int16(float64(amp) * math.Sin(2*math.Pi*250*float64(j)/sampleRate))
			}
			sa, errA := a.ProcessFrame(frame)
			sb, errB := b.ProcessFrame(frame)
			if (errA == nil) != (errB == nil) {
				rt.Fatalf("frame %d: error mismatch: %v vs %v", i, errA, errB)
			}
			if sa != sb {
				rt.Fatalf("frame %d: state mismatch: %v vs %v", i, sa, sb)
			}
		}
	})
}
