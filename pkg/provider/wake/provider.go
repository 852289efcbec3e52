// Package wake defines the wake-word detection layer: a low-duty-cycle phrase
// spotter that gates the full listening pipeline from an idle state.
//
// The package splits the concern in two:
//
//   - [Scorer] — the engine interface each concrete spotter backend
//     implements: score one frame, hot-swap the model.
//   - [Detector] — the policy wrapper the pipeline uses. It owns detection
//     thresholds, the minimum-gap suppression between detections, the event
//     stream for subscribers, and the CPU budget throttle.
//
// Gap suppression is enforced here, not by callers: two [Detection] events
// are never emitted closer than the configured minimum number of frames
// apart, for any input.
package wake

import (
	"fmt"
	"sync"
	"time"
)

// Scorer is the engine interface implemented by each wake-word backend.
//
// Score is called synchronously in the pipeline loop and must not block.
// Implementations need not be safe for concurrent use; the owning [Detector]
// serialises all calls.
type Scorer interface {
	// Score returns the wake-phrase confidence for one mono PCM frame,
	// in [0.0, 1.0].
	Score(frame []int16) (float64, error)

	// LoadModel replaces the active model with the one at path. The swap
	// must leave the scorer usable on failure (the old model stays active).
	LoadModel(path string) error

	// Close releases engine resources.
	Close() error
}

// Detection is a single wake-word event.
type Detection struct {
	// Confidence is the spotter's score in [0.0, 1.0].
	Confidence float64

	// FrameIndex is the index of the frame that triggered the detection,
	// counted from detector creation.
	FrameIndex uint64
}

// Config holds the detector policy parameters.
type Config struct {
	// Threshold is the minimum confidence that counts as a detection.
	// Default 0.5.
	Threshold float64

	// MinGapFrames is the minimum number of frames between two reported
	// detections. Detections inside the gap are suppressed. Default 66
	// (≈ 2 s at the 30 ms cadence).
	MinGapFrames int

	// FrameDuration is the real-time duration of one frame, used by the CPU
	// budget estimate. Default 30 ms.
	FrameDuration time.Duration

	// CPUBudgetPercent is the target share of one core the detector may
	// spend. When the rolling estimate exceeds it, the detector skips
	// scoring on alternating frames until usage returns under budget.
	// This is a soft degrade, not an error. Default 2.0.
	CPUBudgetPercent float64
}

func (c Config) withDefaults() Config {
	if c.Threshold <= 0 {
		c.Threshold = 0.5
	}
	if c.MinGapFrames <= 0 {
		c.MinGapFrames = 66
	}
	if c.FrameDuration <= 0 {
		c.FrameDuration = 30 * time.Millisecond
	}
	if c.CPUBudgetPercent <= 0 {
		c.CPUBudgetPercent = 2.0
	}
	return c
}

// subscriberBuf is the buffer depth of subscriber channels. Events beyond a
// slow subscriber's buffer are dropped, never blocked on.
const subscriberBuf = 8

// Detector wraps a [Scorer] with detection policy: threshold, gap
// suppression, CPU budget throttling, and event broadcast.
//
// ProcessFrame is intended for a single feeding goroutine (the controller's
// frame loop); Subscribe and LoadModel may be called concurrently with it.
type Detector struct {
	cfg Config

	mu     sync.Mutex
	scorer Scorer

	frameIndex    uint64
	lastDetection uint64
	hasDetection  bool
	skipParity    bool

	budget *CPUBudgetMonitor

	subMu sync.Mutex
	subs  []chan Detection
}

// NewDetector creates a Detector around the given scorer.
func NewDetector(scorer Scorer, cfg Config) *Detector {
	cfg = cfg.withDefaults()
	return &Detector{
		cfg:    cfg,
		scorer: scorer,
		budget: NewCPUBudgetMonitor(cfg.FrameDuration, cfg.CPUBudgetPercent),
	}
}

// ProcessFrame scores one frame and reports whether the wake phrase was
// detected on it. Detections within MinGapFrames of the previous one are
// suppressed. While the CPU budget is exceeded, scoring is skipped on
// alternating frames.
func (d *Detector) ProcessFrame(frame []int16) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	idx := d.frameIndex
	d.frameIndex++

	if d.budget.OverBudget() {
		d.skipParity = !d.skipParity
		if d.skipParity {
			return false, nil
		}
	} else {
		d.skipParity = false
	}

	start := time.Now()
	score, err := d.scorer.Score(frame)
	d.budget.Record(time.Since(start))
	if err != nil {
		return false, fmt.Errorf("wake: score frame %d: %w", idx, err)
	}

	if score < d.cfg.Threshold {
		return false, nil
	}
	if d.hasDetection && idx-d.lastDetection < uint64(d.cfg.MinGapFrames) {
		return false, nil
	}

	d.lastDetection = idx
	d.hasDetection = true
	d.publish(Detection{Confidence: score, FrameIndex: idx})
	return true, nil
}

// LoadModel atomically swaps the scorer's model: any in-flight frame
// completes against the old model before the new one takes effect.
func (d *Detector) LoadModel(path string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.scorer.LoadModel(path); err != nil {
		return fmt.Errorf("wake: load model %q: %w", path, err)
	}
	return nil
}

// Subscribe returns a channel that receives every detection event. The
// channel is buffered; events a slow subscriber cannot keep up with are
// dropped. The channel is closed by [Detector.Close].
func (d *Detector) Subscribe() <-chan Detection {
	d.subMu.Lock()
	defer d.subMu.Unlock()
	ch := make(chan Detection, subscriberBuf)
	d.subs = append(d.subs, ch)
	return ch
}

// CPUEstimate returns the current estimated CPU usage in percent of one
// core, derived from the rolling per-frame processing durations.
func (d *Detector) CPUEstimate() float64 {
	return d.budget.Estimate()
}

// Close closes all subscriber channels and the underlying scorer.
func (d *Detector) Close() error {
	d.subMu.Lock()
	for _, ch := range d.subs {
		close(ch)
	}
	d.subs = nil
	d.subMu.Unlock()

	d.mu.Lock()
	defer d.mu.Unlock()
	return d.scorer.Close()
}

// publish delivers ev to all subscribers without blocking.
func (d *Detector) publish(ev Detection) {
	d.subMu.Lock()
	defer d.subMu.Unlock()
	for _, ch := range d.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
