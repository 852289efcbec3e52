// Package stt defines the Provider interface for Speech-to-Text backends.
//
// An STT provider wraps a transcription engine (a local whisper.cpp model, or
// any other backend honouring the same contract) and exposes a uniform
// streaming interface. The central abstraction is SessionHandle: once opened,
// a session accepts PCM frames for one utterance, may emit low-latency
// partial transcripts while audio accumulates, and produces exactly one final
// transcript when the caller finalizes the utterance.
//
// An empty final transcript is a valid, non-error result meaning "no
// utterance" (silence or unintelligible audio); callers must not treat it as
// a failure. Engine-internal failures surface as [*EngineError] and are not
// retried here — retry and fallback policy belong to the caller.
//
// Implementations must be safe for concurrent use across sessions. A single
// SessionHandle serialises its own internal state; SendAudio is intended for
// one feeding goroutine.
package stt

import (
	"context"
	"fmt"
)

// Transcript is a speech-to-text result. Both partial (interim) and final
// transcripts use this type.
type Transcript struct {
	// Text is the transcribed speech, trimmed of leading and trailing
	// whitespace for final results.
	Text string

	// IsFinal indicates whether this is the single authoritative result that
	// terminates the utterance.
	IsFinal bool

	// Confidence is the overall confidence score in [0.0, 1.0]. Zero when
	// the engine does not report confidence.
	Confidence float64
}

// EngineError reports an engine-internal failure: model load failure, decode
// failure, resource exhaustion. It is not retried by this layer.
type EngineError struct {
	// Engine names the backend ("whisper", ...).
	Engine string

	// Op is the operation that failed.
	Op string

	// Err is the underlying cause.
	Err error
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("stt: %s: %s: %v", e.Engine, e.Op, e.Err)
}

func (e *EngineError) Unwrap() error { return e.Err }

// StreamConfig describes the audio format and recognition hints for a new
// session.
type StreamConfig struct {
	// SampleRate is the audio sample rate in Hz. Default 16000.
	SampleRate int

	// Language is the BCP-47 language tag for recognition (e.g., "en").
	// Empty lets the engine use its default.
	Language string
}

// SessionHandle represents an open transcription session covering one
// utterance. Callers must call Close when the session is no longer needed;
// failing to do so may leak goroutines inside the implementation.
type SessionHandle interface {
	// SendAudio appends one frame of mono PCM to the utterance. Calling
	// SendAudio after Finalize or Close returns an error.
	SendAudio(frame []int16) error

	// Partials returns a read-only channel that emits interim Transcript
	// values while audio accumulates. Suitable for UI display; never written
	// to the authoritative log. The channel is closed when the session ends.
	Partials() <-chan Transcript

	// Finalize flushes any remaining audio through the engine and returns
	// the final transcript, trimmed of surrounding whitespace. An empty Text
	// is a valid "no utterance" result. Finalize may be called once; the
	// session is unusable for further audio afterwards.
	Finalize(ctx context.Context) (Transcript, error)

	// Close terminates the session and releases all resources. Calling Close
	// more than once is safe and returns nil.
	Close() error
}

// Provider is the abstraction over any STT backend.
//
// Implementations must be safe for concurrent use; multiple sessions may be
// open simultaneously.
type Provider interface {
	// StartStream opens a new utterance session. The returned SessionHandle
	// is ready to accept audio immediately. The caller owns the handle and
	// must call Close when done.
	StartStream(ctx context.Context, cfg StreamConfig) (SessionHandle, error)
}
