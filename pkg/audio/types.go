package audio

import "time"

// DefaultFrameDuration is the fixed cadence of the pipeline: every capture
// and playback frame covers 30 ms of audio.
const DefaultFrameDuration = 30 * time.Millisecond

// Frame is a single fixed-length frame of signed 16-bit mono PCM flowing
// through the pipeline. Frames are the atomic unit of audio transport —
// produced by the capture callback, gated by wake-word detection, cleaned by
// the echo canceller, classified by VAD, and finally fed to the recognizer.
//
// A Frame is exclusively owned by whoever holds it: the producer hands it off
// and never touches it again, and consumers must not mutate Samples after the
// frame has been passed downstream.
type Frame struct {
	// Samples holds the PCM payload. Length is fixed per stream:
	// SampleRate * frame duration (e.g., 480 samples for 30 ms at 16 kHz).
	Samples []int16

	// SampleRate in Hz (e.g., 16000 for STT-optimised mono).
	SampleRate int

	// Seq is a monotonically increasing sequence number assigned by the
	// capture stream. Gaps indicate dropped frames.
	Seq uint64

	// Timestamp marks when this frame was captured, relative to stream start.
	Timestamp time.Duration
}

// Duration returns the wall-clock duration of audio covered by the frame.
func (f Frame) Duration() time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(f.Samples)) * time.Second / time.Duration(f.SampleRate)
}

// Clone returns a deep copy of the frame. Use when a consumer needs to retain
// samples past the ownership hand-off point.
func (f Frame) Clone() Frame {
	cp := f
	cp.Samples = make([]int16, len(f.Samples))
	copy(cp.Samples, f.Samples)
	return cp
}

// FrameSamples returns the number of samples in one frame of the given
// duration at the given sample rate.
func FrameSamples(sampleRate int, frameDuration time.Duration) int {
	return int(time.Duration(sampleRate) * frameDuration / time.Second)
}

// BytesToSamples converts raw little-endian 16-bit PCM bytes to samples.
// A trailing odd byte is ignored.
func BytesToSamples(data []byte) []int16 {
	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(data[i*2]) | int16(data[i*2+1])<<8
	}
	return samples
}

// SamplesToBytes converts samples to raw little-endian 16-bit PCM bytes.
func SamplesToBytes(samples []int16) []byte {
	data := make([]byte, len(samples)*2)
	for i, s := range samples {
		data[i*2] = byte(s)
		data[i*2+1] = byte(s >> 8)
	}
	return data
}
