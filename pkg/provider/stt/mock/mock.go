// Package mock provides test doubles for the stt package interfaces.
//
// Use Provider to verify StartStream configuration and inject sessions; use
// Session to script partial and final transcripts and inspect the audio that
// was submitted.
package mock

import (
	"context"
	"sync"

	"github.com/hearsay-ai/hearsay/pkg/provider/stt"
)

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// Session is returned by StartStream. If nil, a new default Session is
	// returned (and recorded in Sessions).
	Session stt.SessionHandle

	// StartStreamErr, if non-nil, is returned as the error from StartStream.
	StartStreamErr error

	// StartStreamCalls records the StreamConfig of every call in order.
	StartStreamCalls []stt.StreamConfig

	// Sessions records every default Session handed out when Session is nil.
	Sessions []*Session
}

// StartStream records the call and returns Session, StartStreamErr.
func (p *Provider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.StartStreamCalls = append(p.StartStreamCalls, cfg)
	if p.StartStreamErr != nil {
		return nil, p.StartStreamErr
	}
	if p.Session != nil {
		return p.Session, nil
	}
	s := &Session{}
	p.Sessions = append(p.Sessions, s)
	return s, nil
}

// Ensure Provider implements stt.Provider at compile time.
var _ stt.Provider = (*Provider)(nil)

// Session is a mock implementation of stt.SessionHandle.
type Session struct {
	mu sync.Mutex

	// Final is returned by Finalize.
	Final stt.Transcript

	// FinalizeErr, if non-nil, is returned by Finalize.
	FinalizeErr error

	// SendAudioErr, if non-nil, is returned by every SendAudio call.
	SendAudioErr error

	// --- Call records ---

	// Frames records a copy of every frame passed to SendAudio.
	Frames [][]int16

	// FinalizeCount is the number of Finalize calls.
	FinalizeCount int

	// CloseCount is the number of Close calls.
	CloseCount int

	partials      chan stt.Transcript
	partialsOnce  sync.Once
	partialsClose sync.Once
}

// EmitPartial pushes an interim transcript onto the Partials channel.
func (s *Session) EmitPartial(text string) {
	s.ensurePartials()
	s.partials <- stt.Transcript{Text: text}
}

func (s *Session) ensurePartials() {
	s.partialsOnce.Do(func() {
		s.mu.Lock()
		s.partials = make(chan stt.Transcript, 16)
		s.mu.Unlock()
	})
}

// SendAudio records a copy of the frame.
func (s *Session) SendAudio(frame []int16) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]int16, len(frame))
	copy(cp, frame)
	s.Frames = append(s.Frames, cp)
	return s.SendAudioErr
}

// FrameCount returns how many frames SendAudio has recorded so far.
func (s *Session) FrameCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Frames)
}

// Partials returns the partial-transcript channel.
func (s *Session) Partials() <-chan stt.Transcript {
	s.ensurePartials()
	return s.partials
}

// Finalize records the call and returns Final, FinalizeErr.
func (s *Session) Finalize(ctx context.Context) (stt.Transcript, error) {
	s.ensurePartials()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.FinalizeCount++
	s.partialsClose.Do(func() { close(s.partials) })
	if s.FinalizeErr != nil {
		return stt.Transcript{}, s.FinalizeErr
	}
	f := s.Final
	f.IsFinal = true
	return f, nil
}

// Close records the call, closes the Partials channel, and returns nil.
func (s *Session) Close() error {
	s.ensurePartials()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCount++
	s.partialsClose.Do(func() { close(s.partials) })
	return nil
}

// Ensure Session implements stt.SessionHandle at compile time.
var _ stt.SessionHandle = (*Session)(nil)
