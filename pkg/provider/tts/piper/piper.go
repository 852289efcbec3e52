// Package piper provides a tts.Provider backed by a local Piper HTTP server
// (piper's builtin http_server module or a compatible frontend). Synthesis is
// performed via GET / with the text in a URL query parameter; the server
// responds with a mono 16-bit WAV which is stripped of its header, optionally
// resampled, and emitted as ordered PCM chunks.
//
// The server operates in batch mode (one HTTP call per sentence rather than a
// streaming socket), so SynthesizeStream splits the text at sentence
// boundaries and issues one request per sentence. The abort handle is checked
// between those requests.
//
// Typical usage:
//
//	p, err := piper.New("http://localhost:5000",
//	    piper.WithOutputRate(16000),
//	    piper.WithTimeout(15*time.Second),
//	)
//	chunks, err := p.Synthesize(ctx, "Hello there. How can I help?")
package piper

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hearsay-ai/hearsay/pkg/audio"
	"github.com/hearsay-ai/hearsay/pkg/provider/tts"
)

const (
	defaultTimeout = 30 * time.Second

	// defaultChunkDuration bounds the audio carried by a single chunk so
	// that playback (and interruption) operates on sub-sentence pieces.
	defaultChunkDuration = 300 * time.Millisecond
)

// Option configures a Provider.
type Option func(*Provider)

// WithTimeout overrides the per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) { p.httpClient.Timeout = d }
}

// WithHTTPClient replaces the HTTP client used for synthesis requests.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.httpClient = c }
}

// WithOutputRate requests linear resampling of the server's WAV output to
// rate Hz. Zero (the default) emits audio at the server's native rate.
func WithOutputRate(rate int) Option {
	return func(p *Provider) { p.outputRate = rate }
}

// WithSpeaker selects a speaker ID on multi-speaker models.
func WithSpeaker(id string) Option {
	return func(p *Provider) { p.speaker = id }
}

// WithChunkDuration overrides the maximum audio duration per emitted chunk.
func WithChunkDuration(d time.Duration) Option {
	return func(p *Provider) {
		if d > 0 {
			p.chunkDuration = d
		}
	}
}

// Provider implements tts.Provider against a Piper HTTP server.
type Provider struct {
	serverURL     string
	speaker       string
	outputRate    int
	chunkDuration time.Duration
	httpClient    *http.Client
}

var _ tts.Provider = (*Provider)(nil)

// New creates a Piper Provider targeting the server at serverURL
// (e.g., "http://localhost:5000"). serverURL must be non-empty.
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("piper: serverURL must not be empty")
	}
	p := &Provider{
		serverURL:     strings.TrimRight(serverURL, "/"),
		chunkDuration: defaultChunkDuration,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Synthesize renders the whole text eagerly, one HTTP request per sentence,
// and returns the ordered chunk sequence.
func (p *Provider) Synthesize(ctx context.Context, text string) ([]tts.Chunk, error) {
	var out []tts.Chunk
	for _, sentence := range tts.SplitSentences(text) {
		chunks, err := p.synthesizeSentence(ctx, sentence)
		if err != nil {
			return nil, err
		}
		out = append(out, chunks...)
	}
	return out, nil
}

// SynthesizeStream splits text at sentence boundaries and synthesizes each
// sentence with its own HTTP request, pushing chunks to sink as they
// complete. The sink is closed when synthesis finishes, fails, or is aborted;
// a mid-stream failure is reported via the returned handle's Err method.
func (p *Provider) SynthesizeStream(ctx context.Context, text string, sink chan<- tts.Chunk) (*tts.Abort, error) {
	abort := &tts.Abort{}
	sentences := tts.SplitSentences(text)

	go func() {
		defer close(sink)
		for _, sentence := range sentences {
			if abort.Aborted() || ctx.Err() != nil {
				return
			}
			chunks, err := p.synthesizeSentence(ctx, sentence)
			if err != nil {
				abort.SetErr(err)
				return
			}
			for _, c := range chunks {
				if abort.Aborted() {
					return
				}
				select {
				case sink <- c:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return abort, nil
}

// synthesizeSentence performs a single GET request against the Piper server
// and returns the response PCM split into chunks.
func (p *Provider) synthesizeSentence(ctx context.Context, sentence string) ([]tts.Chunk, error) {
	params := url.Values{}
	params.Set("text", sentence)
	if p.speaker != "" {
		params.Set("speaker_id", p.speaker)
	}

	reqURL := p.serverURL + "/?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, &tts.EngineError{Engine: "piper", Op: "create request", Err: err}
	}
	req.Header.Set("Accept", "audio/wav")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, &tts.EngineError{Engine: "piper", Op: "synthesize", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &tts.EngineError{
			Engine: "piper",
			Op:     "synthesize",
			Err:    fmt.Errorf("server returned status %d", resp.StatusCode),
		}
	}

	wav, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &tts.EngineError{Engine: "piper", Op: "read response", Err: err}
	}

	info, err := parseWAV(wav)
	if err != nil {
		return nil, &tts.EngineError{Engine: "piper", Op: "parse response", Err: err}
	}

	pcm := wav[info.DataOffset:]
	rate := info.SampleRate
	if p.outputRate > 0 && rate != p.outputRate && info.Channels == 1 {
		pcm = resampleMono16(pcm, rate, p.outputRate)
		rate = p.outputRate
	}

	return p.chunk(audio.BytesToSamples(pcm), rate), nil
}

// chunk splits samples into chunks of at most chunkDuration each.
func (p *Provider) chunk(samples []int16, rate int) []tts.Chunk {
	if len(samples) == 0 {
		return nil
	}
	per := int(p.chunkDuration.Seconds() * float64(rate))
	if per <= 0 {
		per = len(samples)
	}
	var out []tts.Chunk
	for start := 0; start < len(samples); start += per {
		end := start + per
		if end > len(samples) {
			end = len(samples)
		}
		out = append(out, tts.Chunk{Samples: samples[start:end], SampleRate: rate})
	}
	return out
}

// wavInfo holds the format metadata extracted from a RIFF/WAVE header.
type wavInfo struct {
	SampleRate int
	Channels   int
	DataOffset int
}

// parseWAV walks the RIFF chunks of a WAV file and returns its format
// metadata plus the byte offset of the raw PCM payload.
func parseWAV(wav []byte) (wavInfo, error) {
	if len(wav) < 12 {
		return wavInfo{}, errors.New("response too short to be a valid RIFF file")
	}
	if string(wav[0:4]) != "RIFF" {
		return wavInfo{}, errors.New("response missing RIFF header")
	}
	if string(wav[8:12]) != "WAVE" {
		return wavInfo{}, errors.New("response missing WAVE identifier")
	}

	var info wavInfo
	foundFmt := false

	// Walk RIFF chunks starting immediately after the 12-byte RIFF/WAVE header.
	offset := 12
	for offset+8 <= len(wav) {
		chunkID := string(wav[offset : offset+4])
		chunkSize := int(binary.LittleEndian.Uint32(wav[offset+4 : offset+8]))

		switch chunkID {
		case "fmt ":
			if chunkSize >= 16 && offset+8+16 <= len(wav) {
				fmtData := wav[offset+8:]
				info.Channels = int(binary.LittleEndian.Uint16(fmtData[2:4]))
				info.SampleRate = int(binary.LittleEndian.Uint32(fmtData[4:8]))
				foundFmt = true
			}
		case "data":
			info.DataOffset = offset + 8
			if !foundFmt {
				// fmt chunk should appear before data, but be defensive.
				info.SampleRate = 22050
				info.Channels = 1
			}
			return info, nil
		}

		// Advance past this chunk (chunks are word-aligned: pad by 1 if odd size).
		offset += 8 + chunkSize
		if chunkSize%2 != 0 {
			offset++
		}
	}
	return wavInfo{}, errors.New("response missing data chunk")
}

// resampleMono16 converts little-endian 16-bit mono PCM from srcRate to
// dstRate using linear interpolation.
func resampleMono16(pcm []byte, srcRate, dstRate int) []byte {
	if srcRate == dstRate || len(pcm) < 2 {
		return pcm
	}
	srcSamples := len(pcm) / 2
	dstSamples := int(int64(srcSamples) * int64(dstRate) / int64(srcRate))
	if dstSamples == 0 {
		return nil
	}

	out := make([]byte, dstSamples*2)
	ratio := float64(srcRate) / float64(dstRate)

	for i := 0; i < dstSamples; i++ {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := srcPos - float64(srcIdx)

		s0 := int16(pcm[srcIdx*2]) | int16(pcm[srcIdx*2+1])<<8
		var s1 int16
		if srcIdx+1 < srcSamples {
			s1 = int16(pcm[(srcIdx+1)*2]) | int16(pcm[(srcIdx+1)*2+1])<<8
		} else {
			s1 = s0
		}

		interpolated := int16(float64(s0)*(1-frac) + float64(s1)*frac)
		out[i*2] = byte(interpolated)
		out[i*2+1] = byte(interpolated >> 8)
	}
	return out
}
