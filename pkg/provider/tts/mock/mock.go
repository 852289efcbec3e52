// Package mock provides a mock implementation of the tts.Provider interface
// for testing. It records every call and synthesizes deterministic silence
// (or scripted chunks) per sentence, so controller tests can count chunks and
// observe abort behaviour without a real engine.
package mock

import (
	"context"
	"sync"

	"github.com/hearsay-ai/hearsay/pkg/provider/tts"
)

// Provider is a scripted tts.Provider. The zero value synthesizes one chunk
// of defaultChunkSamples silence per sentence.
type Provider struct {
	mu sync.Mutex

	// ChunksPerSentence overrides how many chunks each sentence produces.
	// Zero means one.
	ChunksPerSentence int

	// ChunkSamples overrides the sample count per chunk. Zero means 480.
	ChunkSamples int

	// SampleRate stamps emitted chunks. Zero means 16000.
	SampleRate int

	// SynthesizeErr, when non-nil, is returned by Synthesize and recorded
	// on the Abort handle by SynthesizeStream after FailAfterChunks chunks.
	SynthesizeErr error

	// FailAfterChunks is the number of chunks SynthesizeStream delivers
	// before failing with SynthesizeErr. Ignored when SynthesizeErr is nil.
	FailAfterChunks int

	// ChunkGate, when non-nil, is received from before each streamed chunk
	// is delivered. Tests use it to pace delivery and abort mid-stream.
	ChunkGate <-chan struct{}

	// SynthesizeCalls records the texts passed to Synthesize.
	SynthesizeCalls []string

	// StreamCalls records the texts passed to SynthesizeStream.
	StreamCalls []string

	// Aborts records the handles returned by SynthesizeStream, in call order.
	Aborts []*tts.Abort
}

var _ tts.Provider = (*Provider)(nil)

const (
	defaultChunkSamples = 480
	defaultSampleRate   = 16000
)

func (p *Provider) chunkFor() tts.Chunk {
	n := p.ChunkSamples
	if n == 0 {
		n = defaultChunkSamples
	}
	rate := p.SampleRate
	if rate == 0 {
		rate = defaultSampleRate
	}
	return tts.Chunk{Samples: make([]int16, n), SampleRate: rate}
}

func (p *Provider) perSentence() int {
	if p.ChunksPerSentence == 0 {
		return 1
	}
	return p.ChunksPerSentence
}

// Synthesize returns scripted silence chunks, one batch per sentence.
func (p *Provider) Synthesize(ctx context.Context, text string) ([]tts.Chunk, error) {
	p.mu.Lock()
	p.SynthesizeCalls = append(p.SynthesizeCalls, text)
	err := p.SynthesizeErr
	p.mu.Unlock()
	if err != nil {
		return nil, err
	}

	var out []tts.Chunk
	for range tts.SplitSentences(text) {
		for i := 0; i < p.perSentence(); i++ {
			out = append(out, p.chunkFor())
		}
	}
	return out, nil
}

// SynthesizeStream delivers scripted chunks to sink, honouring the abort
// handle between chunks and the optional ChunkGate pacing channel.
func (p *Provider) SynthesizeStream(ctx context.Context, text string, sink chan<- tts.Chunk) (*tts.Abort, error) {
	abort := &tts.Abort{}

	p.mu.Lock()
	p.StreamCalls = append(p.StreamCalls, text)
	p.Aborts = append(p.Aborts, abort)
	failAfter := p.FailAfterChunks
	failErr := p.SynthesizeErr
	gate := p.ChunkGate
	p.mu.Unlock()

	total := len(tts.SplitSentences(text)) * p.perSentence()

	go func() {
		defer close(sink)
		for i := 0; i < total; i++ {
			if abort.Aborted() || ctx.Err() != nil {
				return
			}
			if failErr != nil && i >= failAfter {
				abort.SetErr(failErr)
				return
			}
			if gate != nil {
				select {
				case <-gate:
				case <-ctx.Done():
					return
				}
			}
			select {
			case sink <- p.chunkFor():
			case <-ctx.Done():
				return
			}
		}
	}()

	return abort, nil
}
