// Package audio defines the frame type, the capture/playback bus interfaces,
// and the bounded queues that connect real-time device callbacks to the
// cooperatively scheduled pipeline.
//
// The two primary abstractions are:
//
//   - [Bus] — opens capture and playback streams on a device pair.
//   - [CaptureStream] / [PlaybackStream] — the two halves of an open bus.
//
// Device adapters live in subpackages (audio/local for ALSA, audio/mock for
// tests). The bus boundary is the only place where audio-device callback
// contexts and the pipeline share state, and it is crossed exclusively through
// the bounded queues in this package: capture drops the oldest unread frame
// when full (the device callback never blocks), playback rejects writes with
// [ErrBufferFull] when full (the writer never blocks).
package audio

import (
	"errors"
	"fmt"
	"time"
)

// ErrBufferFull is returned by [PlaybackStream.Write] when the playback ring
// has no free slot. The caller decides whether to retry, drop, or pace itself.
var ErrBufferFull = errors.New("audio: playback buffer full")

// ErrStreamClosed is returned by stream operations after Close.
var ErrStreamClosed = errors.New("audio: stream closed")

// DeviceError reports a fatal audio-device failure: the device is unavailable,
// enumeration failed, or permission was denied. Sessions must treat it as
// terminal and not retry automatically.
type DeviceError struct {
	// Device is the device identifier that failed ("" for the default device).
	Device string

	// Op is the operation that failed ("open capture", "open playback", ...).
	Op string

	// Err is the underlying cause.
	Err error
}

func (e *DeviceError) Error() string {
	if e.Device == "" {
		return fmt.Sprintf("audio: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("audio: %s %q: %v", e.Op, e.Device, e.Err)
}

func (e *DeviceError) Unwrap() error { return e.Err }

// StreamConfig describes the fixed audio format of a capture or playback
// stream. Both halves of a bus use the same format.
type StreamConfig struct {
	// SampleRate in Hz. Default 16000.
	SampleRate int

	// FrameDuration is the fixed cadence of the stream. Default 30 ms.
	FrameDuration time.Duration
}

// WithDefaults returns cfg with zero fields replaced by package defaults
// (16 kHz, 30 ms frames). Device adapters call this before opening streams.
func (c StreamConfig) WithDefaults() StreamConfig {
	if c.SampleRate <= 0 {
		c.SampleRate = 16000
	}
	if c.FrameDuration <= 0 {
		c.FrameDuration = DefaultFrameDuration
	}
	return c
}

// CaptureStats is a snapshot of capture-side counters.
type CaptureStats struct {
	// FramesProduced counts frames delivered by the device callback.
	FramesProduced uint64

	// FramesDropped counts frames evicted because the consumer fell behind.
	FramesDropped uint64
}

// CaptureStream delivers microphone frames at a fixed cadence.
//
// Frames arrive in production order (the queue is FIFO). When the consumer
// falls behind, the oldest unread frame is dropped and the drop counter is
// incremented — the stream never applies backpressure to the device callback.
type CaptureStream interface {
	// Frames returns the channel on which captured frames are delivered.
	// The channel is closed when the stream is closed or the device fails.
	Frames() <-chan Frame

	// Stats returns a snapshot of the stream's counters.
	Stats() CaptureStats

	// Close stops capture and closes the Frames channel. Safe to call more
	// than once.
	Close() error
}

// PlaybackStream accepts frames for the output device.
//
// Write never blocks: when the ring is full it returns [ErrBufferFull] and
// the frame is not enqueued. Frames are played in the order written.
type PlaybackStream interface {
	// Write enqueues a frame for playback.
	Write(frame Frame) error

	// Flush blocks until all enqueued frames have been handed to the device,
	// or ctx-free best effort for implementations without a device clock.
	Flush() error

	// Clear discards all enqueued frames immediately without closing the
	// stream. Used to cut playback short when the user interrupts.
	Clear() error

	// Close stops playback, discarding any frames still enqueued. Safe to
	// call more than once.
	Close() error
}

// Bus opens capture and playback streams on a pair of audio devices.
// device selects a platform-specific device identifier; the empty string
// selects the platform default.
//
// Implementations must be safe for concurrent use. A failed open surfaces as
// a [*DeviceError].
type Bus interface {
	OpenCapture(device string, cfg StreamConfig) (CaptureStream, error)
	OpenPlayback(device string, cfg StreamConfig) (PlaybackStream, error)
}
