// Package aec implements acoustic echo cancellation using a normalized
// least-mean-squares (NLMS) adaptive filter.
//
// The canceller removes the known playback signal (the "reference") from the
// capture signal so that the recognizer does not transcribe the system's own
// speech. The controller feeds every synthesized playback frame into
// [Canceller.FeedReference] and passes every microphone frame through
// [Canceller.Process]; while no playback is active the canceller is a strict
// passthrough.
//
// A Canceller is not safe for concurrent use. The talk controller owns its
// canceller exclusively and calls it from a single goroutine.
package aec

import "math"

const (
	// DefaultFilterLength is the number of adaptive filter taps.
	DefaultFilterLength = 512

	// DefaultMaxDelaySamples is the default reference lookback beyond the
	// filter length: 300 ms at 16 kHz.
	DefaultMaxDelaySamples = 4800

	// DefaultStepSize is the NLMS adaptation rate.
	DefaultStepSize = 0.5

	// epsilon regularises the normalization denominator so the earliest
	// adaptation steps never divide by zero.
	epsilon = 1e-6
)

// Config holds the canceller parameters. The zero value selects the package
// defaults.
type Config struct {
	// FilterLength is the number of filter taps. Default 512.
	FilterLength int

	// MaxDelaySamples bounds the reference history beyond FilterLength.
	// Default 4800 (300 ms at 16 kHz).
	MaxDelaySamples int

	// StepSize is the NLMS adaptation rate in (0, 2). Default 0.5.
	StepSize float64
}

func (c Config) withDefaults() Config {
	if c.FilterLength <= 0 {
		c.FilterLength = DefaultFilterLength
	}
	if c.MaxDelaySamples <= 0 {
		c.MaxDelaySamples = DefaultMaxDelaySamples
	}
	if c.StepSize <= 0 {
		c.StepSize = DefaultStepSize
	}
	return c
}

// Canceller is an NLMS adaptive echo canceller over int16 mono PCM.
type Canceller struct {
	cfg Config

	weights []float64

	// ref is the bounded reference history, newest sample last.
	// Capacity = MaxDelaySamples + FilterLength.
	ref    []float64
	refCap int
}

// New creates a Canceller with the given configuration.
func New(cfg Config) *Canceller {
	cfg = cfg.withDefaults()
	return &Canceller{
		cfg:     cfg,
		weights: make([]float64, cfg.FilterLength),
		refCap:  cfg.MaxDelaySamples + cfg.FilterLength,
	}
}

// FeedReference appends playback samples to the reference history. Older
// samples beyond the configured capacity are discarded.
func (c *Canceller) FeedReference(samples []int16) {
	for _, s := range samples {
		c.ref = append(c.ref, float64(s))
	}
	if len(c.ref) > c.refCap {
		c.ref = c.ref[len(c.ref)-c.refCap:]
	}
}

// Active reports whether the canceller has enough reference history to adapt.
// While inactive, [Canceller.Process] is a strict passthrough.
func (c *Canceller) Active() bool {
	return len(c.ref) >= c.cfg.FilterLength
}

// Process removes the estimated echo from mic and returns the cleaned frame.
// The input slice is not modified.
//
// When the reference buffer holds fewer samples than the filter length —
// the normal state whenever no synthesis is playing — the input is returned
// unchanged (same values, freshly allocated slice is avoided by returning
// the input slice itself).
func (c *Canceller) Process(mic []int16) []int16 {
	if !c.Active() {
		return mic
	}

	n := c.cfg.FilterLength
	out := make([]int16, len(mic))

	// Align the reference so that the window for the frame's last sample
	// ends at the newest reference sample, sliding back one sample per
	// position. Early samples clamp to the oldest full window available.
	for i, m := range mic {
		end := len(c.ref) - (len(mic) - 1 - i)
		if end < n {
			end = n
		}
		window := c.ref[end-n : end]

		var estimate, energy float64
		for k := 0; k < n; k++ {
			estimate += c.weights[k] * window[k]
			energy += window[k] * window[k]
		}

		err := float64(m) - estimate
		out[i] = clampSample(err)

		step := c.cfg.StepSize / (energy + epsilon)
		for k := 0; k < n; k++ {
			c.weights[k] += step * err * window[k]
		}
	}
	return out
}

// Reset zeroes the filter weights and clears the reference history, restoring
// the canceller to its initial passthrough state. Called after each turn so a
// trained filter does not attenuate unrelated future speech.
func (c *Canceller) Reset() {
	for i := range c.weights {
		c.weights[i] = 0
	}
	c.ref = c.ref[:0]
}

func clampSample(v float64) int16 {
	switch {
	case v > math.MaxInt16:
		return math.MaxInt16
	case v < math.MinInt16:
		return math.MinInt16
	default:
		return int16(v)
	}
}
