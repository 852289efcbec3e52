// Package mock provides a mock implementation of the audio.Bus interface for
// testing. Tests script capture frames through Push and inspect everything
// written to playback.
package mock

import (
	"sync"

	"github.com/hearsay-ai/hearsay/pkg/audio"
)

// OpenCall records one OpenCapture or OpenPlayback invocation.
type OpenCall struct {
	Device string
	Config audio.StreamConfig
}

// Bus is a scripted audio.Bus. NewBus wires one capture and one playback
// stream that every Open call returns.
type Bus struct {
	mu sync.Mutex

	// OpenCaptureErr / OpenPlaybackErr, when non-nil, are returned by the
	// corresponding Open call.
	OpenCaptureErr  error
	OpenPlaybackErr error

	// CaptureCalls / PlaybackCalls record every Open invocation.
	CaptureCalls  []OpenCall
	PlaybackCalls []OpenCall

	capture  *CaptureStream
	playback *PlaybackStream
}

var _ audio.Bus = (*Bus)(nil)

// NewBus returns a Bus whose capture stream buffers up to 256 frames.
func NewBus() *Bus {
	return &Bus{
		capture:  NewCaptureStream(256),
		playback: &PlaybackStream{},
	}
}

// Capture returns the stream handed out by OpenCapture. Tests push frames
// into it.
func (b *Bus) Capture() *CaptureStream { return b.capture }

// Playback returns the stream handed out by OpenPlayback. Tests inspect
// frames written to it.
func (b *Bus) Playback() *PlaybackStream { return b.playback }

// OpenCapture implements audio.Bus.
func (b *Bus) OpenCapture(device string, cfg audio.StreamConfig) (audio.CaptureStream, error) {
	b.mu.Lock()
	b.CaptureCalls = append(b.CaptureCalls, OpenCall{Device: device, Config: cfg})
	err := b.OpenCaptureErr
	b.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return b.capture, nil
}

// OpenPlayback implements audio.Bus.
func (b *Bus) OpenPlayback(device string, cfg audio.StreamConfig) (audio.PlaybackStream, error) {
	b.mu.Lock()
	b.PlaybackCalls = append(b.PlaybackCalls, OpenCall{Device: device, Config: cfg})
	err := b.OpenPlaybackErr
	b.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return b.playback, nil
}

// CaptureStream is a scripted audio.CaptureStream fed by the test.
type CaptureStream struct {
	mu       sync.Mutex
	ch       chan audio.Frame
	seq      uint64
	produced uint64
	closed   bool
}

var _ audio.CaptureStream = (*CaptureStream)(nil)

// NewCaptureStream returns a capture stream buffering up to capacity frames.
func NewCaptureStream(capacity int) *CaptureStream {
	return &CaptureStream{ch: make(chan audio.Frame, capacity)}
}

// Push delivers one frame of samples at 16 kHz with an auto-assigned
// sequence number. It panics if the buffer is full; size test scripts to the
// stream capacity.
func (s *CaptureStream) Push(samples []int16) {
	s.PushFrame(audio.Frame{Samples: samples, SampleRate: 16000})
}

// PushFrame delivers frame, overwriting its sequence number.
func (s *CaptureStream) PushFrame(frame audio.Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	frame.Seq = s.seq
	s.seq++
	s.produced++
	s.ch <- frame
}

// Frames implements audio.CaptureStream.
func (s *CaptureStream) Frames() <-chan audio.Frame { return s.ch }

// Stats implements audio.CaptureStream. The mock never drops.
func (s *CaptureStream) Stats() audio.CaptureStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return audio.CaptureStats{FramesProduced: s.produced}
}

// Close implements audio.CaptureStream.
func (s *CaptureStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
	return nil
}

// PlaybackStream is an audio.PlaybackStream that records every write.
type PlaybackStream struct {
	mu sync.Mutex

	// WriteErr, when non-nil, is returned by every Write.
	WriteErr error

	written    []audio.Frame
	flushCount int
	clearCount int
	closed     bool
}

var _ audio.PlaybackStream = (*PlaybackStream)(nil)

// Write implements audio.PlaybackStream.
func (p *PlaybackStream) Write(frame audio.Frame) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return audio.ErrStreamClosed
	}
	if p.WriteErr != nil {
		return p.WriteErr
	}
	p.written = append(p.written, frame.Clone())
	return nil
}

// Flush implements audio.PlaybackStream.
func (p *PlaybackStream) Flush() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.flushCount++
	return nil
}

// Clear implements audio.PlaybackStream. Recorded frames are kept so tests
// can still inspect what was written before the clear.
func (p *PlaybackStream) Clear() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clearCount++
	return nil
}

// ClearCount returns how many times Clear was called.
func (p *PlaybackStream) ClearCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.clearCount
}

// Close implements audio.PlaybackStream.
func (p *PlaybackStream) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// Written returns a copy of all frames written so far.
func (p *PlaybackStream) Written() []audio.Frame {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]audio.Frame, len(p.written))
	copy(out, p.written)
	return out
}

// WrittenSamples returns the concatenated samples of all written frames.
func (p *PlaybackStream) WrittenSamples() []int16 {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []int16
	for _, f := range p.written {
		out = append(out, f.Samples...)
	}
	return out
}

// FlushCount returns how many times Flush was called.
func (p *PlaybackStream) FlushCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.flushCount
}
