// Package mock provides test doubles for the vad interfaces. Session answers
// every frame with a fixed VADEvent, which is enough to script speech or
// silence for the call pipeline.
package mock

import (
	"sync"

	"github.com/rnmehta/dinevox/pkg/provider/vad"
	"github.com/rnmehta/dinevox/pkg/types"
)

// Engine is a configurable vad.Engine double.
type Engine struct {
	mu sync.Mutex

	// Session is returned by NewSession. If nil, NewSession builds a fresh
	// Session.
	Session vad.SessionHandle

	// NewSessionErr, if set, fails every NewSession call.
	NewSessionErr error

	// NewSessionCalls records the Config of every NewSession call.
	NewSessionCalls []vad.Config
}

var _ vad.Engine = (*Engine)(nil)

// NewSession records the call and returns the configured session.
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

// Session is a scriptable vad.SessionHandle.
type Session struct {
	mu sync.Mutex

	// EventResult is returned by every ProcessFrame call.
	EventResult types.VADEvent

	ProcessFrameErr error
	CloseErr        error

	frames     [][]byte
	resetCalls int
	closeCalls int
}

var _ vad.SessionHandle = (*Session)(nil)

// ProcessFrame records a copy of the frame and returns EventResult.
func (s *Session) ProcessFrame(frame []byte) (types.VADEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, append([]byte(nil), frame...))
	return s.EventResult, s.ProcessFrameErr
}

// FrameCount reports how many frames were submitted.
func (s *Session) FrameCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

// Reset records the call.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetCalls++
}

// Close records the call and returns CloseErr.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeCalls++
	return s.CloseErr
}
