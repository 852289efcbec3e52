// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider wraps a speech synthesis engine and presents two entry
// points: Synthesize renders a whole text eagerly, SynthesizeStream splits
// the text at sentence boundaries and synthesizes each sentence
// independently, pushing chunks to a caller-supplied sink as they complete —
// so playback can begin before the full response is synthesized.
//
// Cancellation granularity: the abort flag returned by SynthesizeStream is
// checked between sentence boundaries, not mid-sentence. Cancellation latency
// is therefore bounded by one sentence's synthesis time — callers that need
// sub-100ms interruption must stop *playback* immediately and let the
// in-flight sentence finish synthesizing into the void.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"
	"fmt"
	"sync/atomic"
)

// Chunk is one ordered piece of synthesized audio.
type Chunk struct {
	// Samples is signed 16-bit mono PCM.
	Samples []int16

	// SampleRate in Hz.
	SampleRate int
}

// Duration returns the audio duration covered by the chunk.
func (c Chunk) Duration() float64 {
	if c.SampleRate <= 0 {
		return 0
	}
	return float64(len(c.Samples)) / float64(c.SampleRate)
}

// EngineError reports an engine-internal synthesis failure. Not retried by
// this layer; retry and fallback policy belong to the caller.
type EngineError struct {
	// Engine names the backend ("piper", ...).
	Engine string

	// Op is the operation that failed.
	Op string

	// Err is the underlying cause.
	Err error
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("tts: %s: %s: %v", e.Engine, e.Op, e.Err)
}

func (e *EngineError) Unwrap() error { return e.Err }

// Abort is the cancellation handle returned by SynthesizeStream. Abort() sets
// a flag the implementation checks between sentence boundaries; the sentence
// being synthesized when Abort is called still completes internally, but its
// chunks are not delivered.
//
// After the sink channel closes, Err reports whether the stream ended because
// of an engine failure (as opposed to completing or being aborted).
type Abort struct {
	flag atomic.Bool
	err  atomic.Pointer[error]
}

// Abort requests cancellation. Safe to call from any goroutine, repeatedly.
func (a *Abort) Abort() { a.flag.Store(true) }

// Aborted reports whether Abort has been called. Implementations poll this
// between sentences.
func (a *Abort) Aborted() bool { return a.flag.Load() }

// Err returns the engine failure that closed the sink early, or nil if the
// stream completed cleanly or was aborted. Check after the sink closes.
func (a *Abort) Err() error {
	if p := a.err.Load(); p != nil {
		return *p
	}
	return nil
}

// SetErr records the failure that terminated the stream. For use by Provider
// implementations only; the first recorded error wins.
func (a *Abort) SetErr(err error) {
	if err == nil {
		return
	}
	a.err.CompareAndSwap(nil, &err)
}

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize renders the whole text eagerly and returns the ordered
	// chunk sequence. Empty text yields an empty, non-error result.
	Synthesize(ctx context.Context, text string) ([]Chunk, error)

	// SynthesizeStream splits text at sentence boundaries and synthesizes
	// each sentence independently, pushing chunks to sink in order as they
	// complete. The implementation owns sink from this call on and closes it
	// when synthesis finishes, fails, or is aborted; the caller must drain
	// it. A mid-stream engine failure closes sink early and is reported via
	// the returned Abort's Err method.
	//
	// The returned Abort cancels between sentences only; see the package
	// documentation for the latency bound.
	SynthesizeStream(ctx context.Context, text string, sink chan<- Chunk) (*Abort, error)
}
