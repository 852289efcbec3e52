// Package vad defines the Engine interface for Voice Activity Detection
// backends.
//
// A VAD engine wraps a frame-level speech detector and surfaces it as a
// stateful, per-stream session. Each session maintains its own internal state
// (debounce accumulators, silence timers) so that detection is reproducible:
// for a fixed configuration and frame sequence the emitted state transitions
// are identical on every run.
//
// VAD is synchronous by design: ProcessFrame returns immediately with a
// classification, making it suitable for the low-latency pipeline stage that
// gates STT input and detects barge-in during playback.
//
// Implementations must be safe for concurrent use across different sessions.
// A single SessionHandle must not be shared across goroutines.
package vad

import "time"

// Config holds the parameters for a VAD session.
type Config struct {
	// SampleRate is the audio sample rate in Hz. Must match the rate of the
	// PCM frames passed to ProcessFrame. Default 16000.
	SampleRate int

	// Threshold is the classifier sensitivity in [0.0, 1.0]. Frames scoring
	// at or above the threshold are classified as speech. Default 0.5.
	Threshold float64

	// MinSpeechDuration is the debounce window: accumulated speech must
	// exceed this duration before a Silence→Speech transition is reported,
	// suppressing single-frame triggers from transient noise. Default 250 ms.
	MinSpeechDuration time.Duration

	// MinSilenceDuration defines the utterance boundary: accumulated silence
	// after speech must exceed this duration before SpeechEnd is reported.
	// Default 500 ms.
	MinSilenceDuration time.Duration
}

// WithDefaults returns cfg with zero fields replaced by package defaults.
func (c Config) WithDefaults() Config {
	if c.SampleRate <= 0 {
		c.SampleRate = 16000
	}
	if c.Threshold <= 0 {
		c.Threshold = 0.5
	}
	if c.MinSpeechDuration <= 0 {
		c.MinSpeechDuration = 250 * time.Millisecond
	}
	if c.MinSilenceDuration <= 0 {
		c.MinSilenceDuration = 500 * time.Millisecond
	}
	return c
}

// SessionHandle represents an active VAD session for a single audio stream.
// It is an interface so that test code can supply mock implementations
// without a live engine.
//
// A SessionHandle must not be shared between goroutines.
type SessionHandle interface {
	// ProcessFrame classifies a single mono PCM frame and returns the session
	// state after the frame. Returns an error if the frame is empty or the
	// engine encounters an internal failure.
	//
	// ProcessFrame is called synchronously in the pipeline loop; it must not
	// block.
	ProcessFrame(frame []int16) (State, error)

	// Reset clears all accumulated detection state (debounce counters,
	// silence timers) without discarding the configuration. Called between
	// utterances and after an interruption so stale state never leaks across
	// turns.
	Reset()

	// Close releases the session's resources. Calling Close more than once
	// is safe and returns nil.
	Close() error
}

// Engine is the factory for VAD sessions. It is the top-level interface
// implemented by each VAD backend.
//
// Implementations must be safe for concurrent use: multiple goroutines may
// call NewSession simultaneously to create independent sessions.
type Engine interface {
	// NewSession creates a new VAD session with the given configuration.
	// Returns an error if the configuration is invalid.
	NewSession(cfg Config) (SessionHandle, error)
}
