// Package mock provides a scripted test double for the wake.Scorer interface.
package mock

import (
	"sync"
)

// Scorer is a mock implementation of wake.Scorer.
type Scorer struct {
	mu sync.Mutex

	// Scores is the scripted per-call sequence: call n of Score returns
	// Scores[n]. After the script is exhausted, Default is returned.
	Scores []float64

	// Default is returned after the Scores script is exhausted.
	Default float64

	// ScoreErr, if non-nil, is returned by every Score call.
	ScoreErr error

	// LoadModelErr, if non-nil, is returned by LoadModel.
	LoadModelErr error

	// ScoreDelay, if non-zero, is simulated per-call processing cost added
	// by busy-waiting. Used to exercise the CPU budget monitor.
	ScoreDelay func()

	// --- Call records ---

	// ScoreCount is the number of Score calls.
	ScoreCount int

	// LoadModelCalls records each path passed to LoadModel.
	LoadModelCalls []string

	// CloseCount is the number of Close calls.
	CloseCount int
}

// Score records the call and returns the next scripted score.
func (s *Scorer) Score(frame []int16) (float64, error) {
	s.mu.Lock()
	n := s.ScoreCount
	s.ScoreCount++
	delay := s.ScoreDelay
	s.mu.Unlock()

	if delay != nil {
		delay()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ScoreErr != nil {
		return 0, s.ScoreErr
	}
	if n < len(s.Scores) {
		return s.Scores[n], nil
	}
	return s.Default, nil
}

// LoadModel records the call and returns LoadModelErr.
func (s *Scorer) LoadModel(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.LoadModelCalls = append(s.LoadModelCalls, path)
	return s.LoadModelErr
}

// Close records the call and returns nil.
func (s *Scorer) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCount++
	return nil
}
