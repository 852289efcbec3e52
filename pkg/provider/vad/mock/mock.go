// Package mock provides test doubles for the vad package interfaces.
//
// Use Engine to verify that sessions are created with the expected Config.
// Use Session to script per-frame State responses and inspect the frames that
// were submitted for processing.
package mock

import (
	"sync"

	"github.com/hearsay-ai/hearsay/pkg/provider/vad"
)

// Engine is a mock implementation of vad.Engine.
type Engine struct {
	mu sync.Mutex

	// Session is the SessionHandle returned by NewSession. If nil,
	// NewSession returns a new default Session.
	Session vad.SessionHandle

	// NewSessionErr, if non-nil, is returned as the error from NewSession.
	NewSessionErr error

	// NewSessionCalls records the Config of every NewSession call in order.
	NewSessionCalls []vad.Config
}

// NewSession records the call and returns Session, NewSessionErr.
func (e *Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.NewSessionCalls = append(e.NewSessionCalls, cfg)
	if e.NewSessionErr != nil {
		return nil, e.NewSessionErr
	}
	if e.Session != nil {
		return e.Session, nil
	}
	return &Session{}, nil
}

// Ensure Engine implements vad.Engine at compile time.
var _ vad.Engine = (*Engine)(nil)

// Session is a mock implementation of vad.SessionHandle.
type Session struct {
	mu sync.Mutex

	// States is the scripted sequence of results: call n of ProcessFrame
	// returns States[n]. Once the script is exhausted (or when States is
	// empty), every further call returns Default.
	States []vad.State

	// Default is returned after the States script is exhausted.
	Default vad.State

	// ProcessFrameErr, if non-nil, is returned by every ProcessFrame call.
	ProcessFrameErr error

	// --- Call records ---

	// FrameCount is the number of ProcessFrame calls.
	FrameCount int

	// ResetCount is the number of Reset calls.
	ResetCount int

	// CloseCount is the number of Close calls.
	CloseCount int
}

// ProcessFrame records the call and returns the next scripted state.
func (s *Session) ProcessFrame(frame []int16) (vad.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.FrameCount
	s.FrameCount++
	if s.ProcessFrameErr != nil {
		return vad.StateSilence, s.ProcessFrameErr
	}
	if n < len(s.States) {
		return s.States[n], nil
	}
	return s.Default, nil
}

// Reset records the call.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ResetCount++
}

// Close records the call and returns nil.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCount++
	return nil
}

// Ensure Session implements vad.SessionHandle at compile time.
var _ vad.SessionHandle = (*Session)(nil)
