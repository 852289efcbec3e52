//go:build linux

// Package local provides an audio.Bus backed by the ALSA command-line tools.
// Capture pipes raw S16_LE PCM from arecord; playback pipes it into aplay.
//
// Piping through the ALSA utilities avoids a CGO audio binding and works on
// any Linux host with alsa-utils installed. The bounded queues in pkg/audio
// keep the device pipes decoupled from the pipeline: capture drops the oldest
// frame when the pipeline falls behind, playback paces itself on aplay's own
// buffer.
package local

import (
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/hearsay-ai/hearsay/pkg/audio"
)

// Bus implements audio.Bus over arecord/aplay subprocesses.
type Bus struct {
	logger *slog.Logger
}

var _ audio.Bus = (*Bus)(nil)

// Option configures a Bus.
type Option func(*Bus)

// WithLogger sets the logger used for device lifecycle events.
func WithLogger(l *slog.Logger) Option {
	return func(b *Bus) { b.logger = l }
}

// NewBus creates an ALSA pipe bus.
func NewBus(opts ...Option) *Bus {
	b := &Bus{logger: slog.Default()}
	for _, o := range opts {
		o(b)
	}
	return b
}

// OpenCapture starts an arecord subprocess on device and delivers its output
// as fixed-size frames. The empty device selects ALSA's "default".
func (b *Bus) OpenCapture(device string, cfg audio.StreamConfig) (audio.CaptureStream, error) {
	cfg = cfg.WithDefaults()
	if device == "" {
		device = "default"
	}

	cmd := exec.Command("arecord",
		"-D", device,
		"-c", "1",
		"-r", strconv.Itoa(cfg.SampleRate),
		"-f", "S16_LE",
		"-t", "raw",
		"-q",
	)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &audio.DeviceError{Device: device, Op: "open capture", Err: err}
	}
	if err := cmd.Start(); err != nil {
		return nil, &audio.DeviceError{Device: device, Op: "open capture", Err: fmt.Errorf("start arecord: %w", err)}
	}

	s := &captureStream{
		queue:  audio.NewCaptureQueue(0),
		cmd:    cmd,
		stdout: stdout,
	}
	b.logger.Info("capture started",
		"device", device,
		"sample_rate", cfg.SampleRate,
		"frame_duration", cfg.FrameDuration,
	)
	go s.readLoop(cfg, b.logger)
	return s, nil
}

// OpenPlayback starts an aplay subprocess on device and feeds it frames from
// a bounded ring. The empty device selects ALSA's "default".
func (b *Bus) OpenPlayback(device string, cfg audio.StreamConfig) (audio.PlaybackStream, error) {
	cfg = cfg.WithDefaults()
	if device == "" {
		device = "default"
	}

	cmd := exec.Command("aplay",
		"-D", device,
		"-c", "1",
		"-r", strconv.Itoa(cfg.SampleRate),
		"-f", "S16_LE",
		"-t", "raw",
		"-q",
	)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, &audio.DeviceError{Device: device, Op: "open playback", Err: err}
	}
	if err := cmd.Start(); err != nil {
		return nil, &audio.DeviceError{Device: device, Op: "open playback", Err: fmt.Errorf("start aplay: %w", err)}
	}

	s := &playbackStream{
		ring:  audio.NewPlaybackRing(0),
		cmd:   cmd,
		stdin: stdin,
		done:  make(chan struct{}),
	}
	b.logger.Info("playback started",
		"device", device,
		"sample_rate", cfg.SampleRate,
	)
	go s.writeLoop(b.logger)
	return s, nil
}

// captureStream adapts an arecord pipe to audio.CaptureStream.
type captureStream struct {
	queue  *audio.CaptureQueue
	cmd    *exec.Cmd
	stdout io.ReadCloser

	closeOnce sync.Once
}

var _ audio.CaptureStream = (*captureStream)(nil)

// readLoop reads one frame's worth of bytes at a time and pushes the frame
// into the queue. It exits when the pipe breaks, closing the frame channel.
func (s *captureStream) readLoop(cfg audio.StreamConfig, logger *slog.Logger) {
	frameSamples := audio.FrameSamples(cfg.SampleRate, cfg.FrameDuration)
	buf := make([]byte, frameSamples*2)
	var seq uint64

	for {
		if _, err := io.ReadFull(s.stdout, buf); err != nil {
			if err != io.EOF {
				logger.Error("capture pipe read failed", "error", err)
			}
			s.queue.Close()
			return
		}
		s.queue.Push(audio.Frame{
			Samples:    audio.BytesToSamples(buf),
			SampleRate: cfg.SampleRate,
			Seq:        seq,
			Timestamp:  time.Duration(seq) * cfg.FrameDuration,
		})
		seq++
	}
}

func (s *captureStream) Frames() <-chan audio.Frame { return s.queue.Frames() }

func (s *captureStream) Stats() audio.CaptureStats { return s.queue.Stats() }

func (s *captureStream) Close() error {
	s.closeOnce.Do(func() {
		s.stdout.Close()
		if s.cmd.Process != nil {
			s.cmd.Process.Kill()
		}
		s.cmd.Wait()
	})
	return nil
}

// playbackStream adapts an aplay pipe to audio.PlaybackStream.
type playbackStream struct {
	ring  *audio.PlaybackRing
	cmd   *exec.Cmd
	stdin io.WriteCloser
	done  chan struct{}

	closeOnce sync.Once
}

var _ audio.PlaybackStream = (*playbackStream)(nil)

// writeLoop drains the ring into aplay's stdin. aplay's own buffer provides
// the device pacing; the loop sleeps briefly when the ring is empty.
func (s *playbackStream) writeLoop(logger *slog.Logger) {
	for {
		frame, ok := s.ring.Pop()
		if !ok {
			select {
			case <-s.done:
				return
			case <-time.After(5 * time.Millisecond):
			}
			continue
		}
		if _, err := s.stdin.Write(audio.SamplesToBytes(frame.Samples)); err != nil {
			logger.Error("playback pipe write failed", "error", err)
			return
		}
	}
}

func (s *playbackStream) Write(frame audio.Frame) error {
	return s.ring.Write(frame)
}

// Flush waits until the ring has been handed to aplay. It does not wait for
// the device buffer itself.
func (s *playbackStream) Flush() error {
	for s.ring.Len() > 0 {
		select {
		case <-s.done:
			return audio.ErrStreamClosed
		case <-time.After(5 * time.Millisecond):
		}
	}
	return nil
}

// Clear discards queued frames. Audio already in aplay's buffer still plays
// out; the queue bound keeps that residue short.
func (s *playbackStream) Clear() error {
	s.ring.Drain()
	return nil
}

func (s *playbackStream) Close() error {
	s.closeOnce.Do(func() {
		s.ring.Close()
		close(s.done)
		s.stdin.Close()
		if s.cmd.Process != nil {
			s.cmd.Process.Kill()
		}
		s.cmd.Wait()
	})
	return nil
}
