// Package energy implements the vad.Engine interface with a pure-Go RMS
// energy classifier.
//
// Each frame's RMS level is normalised against a calibration level and
// compared to the configured threshold; the session's debounce accumulators
// then decide when to report confirmed speech and utterance boundaries. The
// classifier is fully deterministic: the same configuration and frame
// sequence always produce the same state transitions.
package energy

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/hearsay-ai/hearsay/pkg/provider/vad"
)

// DefaultCalibrationRMS is the RMS level (in int16 units) that maps to a
// speech score of 1.0. Typical close-microphone speech peaks well above it.
const DefaultCalibrationRMS = 2000.0

// Compile-time check that *Engine satisfies vad.Engine.
var _ vad.Engine = (*Engine)(nil)

// Engine creates energy-based VAD sessions.
type Engine struct {
	calibrationRMS float64
}

// Option is a functional option for configuring an Engine.
type Option func(*Engine)

// WithCalibrationRMS sets the RMS level that maps to a speech score of 1.0.
// Lower values make the detector more sensitive. Default 2000.
func WithCalibrationRMS(rms float64) Option {
	return func(e *Engine) { e.calibrationRMS = rms }
}

// New creates an energy VAD engine.
func New(opts ...Option) *Engine {
	e := &Engine{calibrationRMS: DefaultCalibrationRMS}
	for _, o := range opts {
		o(e)
	}
	return e
}

// NewSession creates a session with the given configuration. Threshold must
// lie in [0, 1].
func (e *Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	if cfg.Threshold < 0 || cfg.Threshold > 1 {
		return nil, fmt.Errorf("energy: threshold %v out of range [0, 1]", cfg.Threshold)
	}
	cfg = cfg.WithDefaults()
	return &session{
		cfg:               cfg,
		calibrationRMS:    e.calibrationRMS,
		minSpeechSamples:  samplesFor(cfg.SampleRate, cfg.MinSpeechDuration),
		minSilenceSamples: samplesFor(cfg.SampleRate, cfg.MinSilenceDuration),
	}, nil
}

func samplesFor(sampleRate int, d time.Duration) int {
	return int(float64(sampleRate) * d.Seconds())
}

// Compile-time check that *session satisfies vad.SessionHandle.
var _ vad.SessionHandle = (*session)(nil)

// session holds the per-stream detection state. The transition function is
// pure given (previous state, current frame classification, accumulated
// sample counts), so runs over identical frame sequences are reproducible.
type session struct {
	cfg               vad.Config
	calibrationRMS    float64
	minSpeechSamples  int
	minSilenceSamples int

	inSpeech       bool
	speechSamples  int // accumulated speech samples before confirmation
	silenceSamples int // accumulated trailing silence samples during speech
	closed         bool
}

// ProcessFrame classifies one frame and advances the debounce state machine.
func (s *session) ProcessFrame(frame []int16) (vad.State, error) {
	if s.closed {
		return vad.StateSilence, errors.New("energy: session is closed")
	}
	if len(frame) == 0 {
		return vad.StateSilence, errors.New("energy: empty frame")
	}

	speech := s.score(frame) >= s.cfg.Threshold

	if s.inSpeech {
		if speech {
			s.silenceSamples = 0
			return vad.StateSpeech, nil
		}
		s.silenceSamples += len(frame)
		if s.silenceSamples >= s.minSilenceSamples {
			// Utterance boundary crossed; next frame starts from silence.
			s.inSpeech = false
			s.speechSamples = 0
			s.silenceSamples = 0
			return vad.StateSpeechEnd, nil
		}
		// Inside the trailing-silence grace window speech is still ongoing.
		return vad.StateSpeech, nil
	}

	if !speech {
		s.speechSamples = 0
		return vad.StateSilence, nil
	}
	s.speechSamples += len(frame)
	if s.speechSamples < s.minSpeechSamples {
		// Debounce: a transient below the minimum speech duration never
		// triggers a Silence→Speech report.
		return vad.StateSilence, nil
	}
	s.inSpeech = true
	s.silenceSamples = 0
	return vad.StateSpeech, nil
}

// score maps the frame's RMS level to [0, 1].
func (s *session) score(frame []int16) float64 {
	var sum float64
	for _, v := range frame {
		f := float64(v)
		sum += f * f
	}
	rms := math.Sqrt(sum / float64(len(frame)))
	score := rms / s.calibrationRMS
	if score > 1 {
		score = 1
	}
	return score
}

// Reset clears the debounce accumulators without discarding configuration.
func (s *session) Reset() {
	s.inSpeech = false
	s.speechSamples = 0
	s.silenceSamples = 0
}

// Close marks the session closed. Further ProcessFrame calls return an error.
func (s *session) Close() error {
	s.closed = true
	return nil
}
