// Package whisper implements the stt.Provider interface with the whisper.cpp
// CGO bindings. The whisper.cpp static library (libwhisper.a) and headers
// (whisper.h) must be available at link time via LIBRARY_PATH and
// C_INCLUDE_PATH environment variables.
//
// The model is loaded once at construction and shared across all sessions;
// each session creates its own whisper context per inference, so concurrent
// sessions do not interfere.
package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/hearsay-ai/hearsay/pkg/provider/stt"
)

const (
	defaultLanguage   = "en"
	defaultSampleRate = 16000

	// partialInterval is how often a session runs interim inference over the
	// accumulated buffer to emit partial transcripts.
	partialInterval = 2 * time.Second

	// partialsBuf is the buffer depth of the Partials channel; interim
	// results a slow consumer misses are dropped.
	partialsBuf = 16
)

// Compile-time assertion that *Provider satisfies stt.Provider.
var _ stt.Provider = (*Provider)(nil)

// Provider implements stt.Provider using whisper.cpp Go bindings.
type Provider struct {
	model    whisperlib.Model
	language string
	partials bool
}

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithLanguage sets the BCP-47 language code for transcription (e.g., "en",
// "de"). Defaults to "en".
func WithLanguage(lang string) Option {
	return func(p *Provider) { p.language = lang }
}

// WithPartials enables periodic interim inference over the accumulated
// utterance buffer. Costs one extra inference every couple of seconds while
// an utterance is open; off by default.
func WithPartials(enabled bool) Option {
	return func(p *Provider) { p.partials = enabled }
}

// New creates a Provider that loads the whisper.cpp model from the given file
// path. The caller must call Close when the provider is no longer needed.
func New(modelPath string, opts ...Option) (*Provider, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, &stt.EngineError{Engine: "whisper", Op: fmt.Sprintf("load model %q", modelPath), Err: err}
	}

	p := &Provider{
		model:    model,
		language: defaultLanguage,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Close releases the whisper model.
func (p *Provider) Close() error {
	if p.model != nil {
		return p.model.Close()
	}
	return nil
}

// StartStream opens a new utterance session.
func (p *Provider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("whisper: context already cancelled: %w", err)
	}

	lang := cfg.Language
	if lang == "" {
		lang = p.language
	}
	sr := cfg.SampleRate
	if sr <= 0 {
		sr = defaultSampleRate
	}

	s := &session{
		model:        p.model,
		language:     lang,
		sampleRate:   sr,
		emitPartials: p.partials,
		partials:     make(chan stt.Transcript, partialsBuf),
	}
	return s, nil
}

// Compile-time assertion that *session satisfies stt.SessionHandle.
var _ stt.SessionHandle = (*session)(nil)

// session accumulates one utterance and runs inference on Finalize (and
// periodically for partials when enabled).
type session struct {
	model      whisperlib.Model
	language   string
	sampleRate int

	emitPartials bool

	mu         sync.Mutex
	buffer     []float32
	sinceInfer time.Duration
	finalized  bool
	closed     bool

	partials     chan stt.Transcript
	partialsOnce sync.Once
}

// SendAudio appends one mono PCM frame to the utterance buffer. When partials
// are enabled, interim inference runs after every couple of seconds of new
// audio and emits on the Partials channel.
func (s *session) SendAudio(frame []int16) error {
	s.mu.Lock()
	if s.closed || s.finalized {
		s.mu.Unlock()
		return errors.New("whisper: session is closed")
	}
	s.buffer = append(s.buffer, pcmToFloat32(frame)...)
	runPartial := false
	if s.emitPartials {
		s.sinceInfer += frameDuration(len(frame), s.sampleRate)
		if s.sinceInfer >= partialInterval {
			s.sinceInfer = 0
			runPartial = true
		}
	}
	pcm := s.buffer
	s.mu.Unlock()

	if runPartial {
		text, err := s.infer(pcm)
		if err != nil {
			// Interim inference is best effort: log, keep accumulating.
			slog.Warn("whisper: partial inference failed", "error", err)
			return nil
		}
		if text != "" {
			select {
			case s.partials <- stt.Transcript{Text: text}:
			default:
			}
		}
	}
	return nil
}

// Partials returns the interim transcript channel.
func (s *session) Partials() <-chan stt.Transcript { return s.partials }

// Finalize runs inference over the full utterance buffer and returns the
// trimmed final transcript. Empty audio yields an empty, non-error result.
func (s *session) Finalize(ctx context.Context) (stt.Transcript, error) {
	if err := ctx.Err(); err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: finalize: %w", err)
	}

	s.mu.Lock()
	if s.closed || s.finalized {
		s.mu.Unlock()
		return stt.Transcript{}, errors.New("whisper: session is closed")
	}
	s.finalized = true
	pcm := s.buffer
	s.buffer = nil
	s.mu.Unlock()

	defer s.closePartials()

	if len(pcm) == 0 {
		return stt.Transcript{IsFinal: true}, nil
	}

	text, err := s.infer(pcm)
	if err != nil {
		return stt.Transcript{}, err
	}
	return stt.Transcript{Text: strings.TrimSpace(text), IsFinal: true}, nil
}

// Close terminates the session and closes the Partials channel. Safe to call
// more than once.
func (s *session) Close() error {
	s.mu.Lock()
	s.closed = true
	s.buffer = nil
	s.mu.Unlock()
	s.closePartials()
	return nil
}

func (s *session) closePartials() {
	s.partialsOnce.Do(func() { close(s.partials) })
}

// infer runs whisper.cpp over the samples using a fresh context. Contexts are
// not thread-safe, but the model may be shared across goroutines.
func (s *session) infer(samples []float32) (string, error) {
	wctx, err := s.model.NewContext()
	if err != nil {
		return "", &stt.EngineError{Engine: "whisper", Op: "create context", Err: err}
	}

	if err := wctx.SetLanguage(s.language); err != nil {
		slog.Warn("whisper: failed to set language, using default", "language", s.language, "error", err)
	}

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return "", &stt.EngineError{Engine: "whisper", Op: "process audio", Err: err}
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", &stt.EngineError{Engine: "whisper", Op: "read segment", Err: err}
		}
		text := strings.TrimSpace(segment.Text)
		if text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " "), nil
}

func frameDuration(samples, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(samples) * time.Second / time.Duration(sampleRate)
}
