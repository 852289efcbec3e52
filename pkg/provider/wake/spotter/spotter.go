// Package spotter implements the wake.Scorer interface with a pure-Go energy
// envelope matcher.
//
// The model file describes the wake phrase as a normalised per-frame energy
// envelope (a short JSON document, see [Model]). At runtime the spotter keeps
// a rolling envelope of the most recent frames and scores each frame as the
// normalised cross-correlation between the rolling envelope and the template.
// Scoring one frame is a handful of float multiplications, keeping the
// always-on duty cycle well inside the CPU budget.
//
// This matcher trades recognition accuracy for zero native dependencies; any
// backend with a stronger model can replace it behind the same interface.
package spotter

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"sync"
)

// Model is the on-disk wake-phrase template.
type Model struct {
	// Phrase is the human-readable wake phrase (e.g. "hey hearsay").
	// Informational; matching uses only the envelope.
	Phrase string `json:"phrase"`

	// Envelope is the per-frame normalised energy template of the spoken
	// phrase, values in [0, 1], one entry per 30 ms frame.
	Envelope []float64 `json:"envelope"`

	// CalibrationRMS maps raw frame RMS to the envelope's unit scale.
	// Defaults to 2000 when omitted.
	CalibrationRMS float64 `json:"calibration_rms"`
}

func (m *Model) validate() error {
	if len(m.Envelope) < 2 {
		return errors.New("spotter: model envelope must have at least 2 frames")
	}
	for i, v := range m.Envelope {
		if v < 0 || v > 1 || math.IsNaN(v) {
			return fmt.Errorf("spotter: envelope[%d] = %v out of range [0, 1]", i, v)
		}
	}
	return nil
}

// Scorer matches incoming audio against an energy-envelope template.
// It implements wake.Scorer. The owning wake.Detector serialises all calls.
type Scorer struct {
	mu    sync.Mutex
	model Model

	// recent is the rolling envelope, aligned with the template length.
	recent []float64
	seen   int
}

// New loads the model at path and returns a ready Scorer.
func New(modelPath string) (*Scorer, error) {
	s := &Scorer{}
	if err := s.LoadModel(modelPath); err != nil {
		return nil, err
	}
	return s, nil
}

// LoadModel parses and swaps in the template at path. On failure the
// previously loaded model stays active.
func (s *Scorer) LoadModel(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("spotter: read model %q: %w", path, err)
	}
	var m Model
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("spotter: parse model %q: %w", path, err)
	}
	if m.CalibrationRMS <= 0 {
		m.CalibrationRMS = 2000
	}
	if err := m.validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.model = m
	s.recent = make([]float64, len(m.Envelope))
	s.seen = 0
	return nil
}

// Score appends the frame's normalised energy to the rolling envelope and
// returns the correlation against the template in [0, 1]. Returns 0 until a
// full template length of frames has been observed.
func (s *Scorer) Score(frame []int16) (float64, error) {
	if len(frame) == 0 {
		return 0, errors.New("spotter: empty frame")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.recent) == 0 {
		return 0, errors.New("spotter: no model loaded")
	}

	copy(s.recent, s.recent[1:])
	s.recent[len(s.recent)-1] = normalisedEnergy(frame, s.model.CalibrationRMS)
	if s.seen < len(s.recent) {
		s.seen++
		if s.seen < len(s.recent) {
			return 0, nil
		}
	}

	return correlate(s.recent, s.model.Envelope), nil
}

// Close releases the model. The Scorer holds no external resources.
func (s *Scorer) Close() error {
	return nil
}

func normalisedEnergy(frame []int16, calibrationRMS float64) float64 {
	var sum float64
	for _, v := range frame {
		f := float64(v)
		sum += f * f
	}
	rms := math.Sqrt(sum / float64(len(frame)))
	e := rms / calibrationRMS
	if e > 1 {
		e = 1
	}
	return e
}

// correlate computes the normalised cross-correlation of two equal-length
// envelopes, mapped to [0, 1]. Flat inputs (zero variance) score 0.
func correlate(a, b []float64) float64 {
	n := float64(len(a))
	var meanA, meanB float64
	for i := range a {
		meanA += a[i]
		meanB += b[i]
	}
	meanA /= n
	meanB /= n

	var cov, varA, varB float64
	for i := range a {
		da := a[i] - meanA
		db := b[i] - meanB
		cov += da * db
		varA += da * da
		varB += db * db
	}
	if varA == 0 || varB == 0 {
		return 0
	}
	r := cov / math.Sqrt(varA*varB)
	if r < 0 {
		return 0
	}
	return r
}
