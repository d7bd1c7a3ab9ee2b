// Package mock is an in-memory [engine.VoiceEngine] for unit tests.
// Exported fields configure return values, call records accumulate in
// exported slices, and everything is safe to poke from multiple
// goroutines.
//
//	audioCh := make(chan []byte)
//	close(audioCh)
//	e := &mock.VoiceEngine{
//	    ProcessResult: &engine.Response{
//	        Text:  "Welcome to Infocall Dine!",
//	        Audio: audioCh,
//	    },
//	}
//	resp, err := e.ProcessTurn(ctx, sess, "hello")
package mock

import (
	"context"
	"sync"

	"github.com/rnmehta/dinevox/internal/dialog"
	"github.com/rnmehta/dinevox/internal/engine"
	"github.com/rnmehta/dinevox/pkg/types"
)

var _ engine.VoiceEngine = (*VoiceEngine)(nil)

// ProcessTurnCall captures the arguments of one ProcessTurn invocation.
type ProcessTurnCall struct {
	Session    *dialog.Session
	Transcript string
}

// VoiceEngine is a configurable stand-in for the real dialog engine.
type VoiceEngine struct {
	mu sync.Mutex

	// ProcessResult and ProcessError are what ProcessTurn hands back.
	ProcessResult *engine.Response
	ProcessError  error

	// CloseError is what Close hands back.
	CloseError error

	// TurnsResult is the channel Turns returns; nil means a pre-closed
	// channel, so range loops over it terminate immediately.
	TurnsResult <-chan types.CallTurn

	// ProcessCalls holds every ProcessTurn invocation in order.
	ProcessCalls []ProcessTurnCall

	// CallCountClose counts Close invocations.
	CallCountClose int
}

// ProcessTurn implements [engine.VoiceEngine].
func (v *VoiceEngine) ProcessTurn(_ context.Context, sess *dialog.Session, transcript string) (*engine.Response, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.ProcessCalls = append(v.ProcessCalls, ProcessTurnCall{Session: sess, Transcript: transcript})
	return v.ProcessResult, v.ProcessError
}

// Turns implements [engine.VoiceEngine].
func (v *VoiceEngine) Turns() <-chan types.CallTurn {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.TurnsResult != nil {
		return v.TurnsResult
	}
	ch := make(chan types.CallTurn)
	close(ch)
	return ch
}

// Close implements [engine.VoiceEngine].
func (v *VoiceEngine) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.CallCountClose++
	return v.CloseError
}

// Reset drops all recorded calls so one mock can serve several cases.
func (v *VoiceEngine) Reset() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.ProcessCalls = nil
	v.CallCountClose = 0
}
