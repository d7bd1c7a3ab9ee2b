// Package mock provides test doubles for the stt interfaces. Provider hands
// out a caller-supplied Session; Session exposes its transcript channels so
// tests can script partials and finals directly.
package mock

import (
	"context"
	"sync"

	"github.com/rnmehta/dinevox/pkg/provider/stt"
	"github.com/rnmehta/dinevox/pkg/types"
)

// StartStreamCall records one Provider.StartStream invocation.
type StartStreamCall struct {
	Ctx context.Context
	Cfg stt.StreamConfig
}

// Provider is a configurable stt.Provider double.
type Provider struct {
	mu sync.Mutex

	// Session is returned by StartStream. If nil, StartStream builds a
	// fresh Session with buffered channels.
	Session stt.SessionHandle

	// StartStreamErr, if set, fails every StartStream call.
	StartStreamErr error

	StartStreamCalls []StartStreamCall
}

var _ stt.Provider = (*Provider)(nil)

// StartStream records the call and returns the configured session.
func (p *Provider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.StartStreamCalls = append(p.StartStreamCalls, StartStreamCall{Ctx: ctx, Cfg: cfg})
	if p.StartStreamErr != nil {
		return nil, p.StartStreamErr
	}
	if p.Session != nil {
		return p.Session, nil
	}
	return &Session{
		PartialsCh: make(chan types.Transcript, 16),
		FinalsCh:   make(chan types.Transcript, 16),
	}, nil
}

// Session is a scriptable stt.SessionHandle. The test owns PartialsCh and
// FinalsCh: send the transcripts the consumer should see, then close them.
type Session struct {
	mu sync.Mutex

	PartialsCh chan types.Transcript
	FinalsCh   chan types.Transcript

	SendAudioErr   error
	SetKeywordsErr error
	CloseErr       error

	sendAudioCalls [][]byte
	keywordCalls   [][]types.KeywordBoost
	closeCalls     int
}

var _ stt.SessionHandle = (*Session)(nil)

// SendAudio records a copy of the chunk and returns SendAudioErr.
func (s *Session) SendAudio(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sendAudioCalls = append(s.sendAudioCalls, append([]byte(nil), chunk...))
	return s.SendAudioErr
}

// SendAudioCallCount reports how many times SendAudio was called.
func (s *Session) SendAudioCallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sendAudioCalls)
}

func (s *Session) Partials() <-chan types.Transcript { return s.PartialsCh }

func (s *Session) Finals() <-chan types.Transcript { return s.FinalsCh }

// SetKeywords records a copy of the keyword list and returns SetKeywordsErr.
func (s *Session) SetKeywords(keywords []types.KeywordBoost) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keywordCalls = append(s.keywordCalls, append([]types.KeywordBoost(nil), keywords...))
	return s.SetKeywordsErr
}

// Keywords returns the most recent keyword list passed to SetKeywords.
func (s *Session) Keywords() []types.KeywordBoost {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.keywordCalls) == 0 {
		return nil
	}
	return s.keywordCalls[len(s.keywordCalls)-1]
}

// Close records the call and returns CloseErr.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeCalls++
	return s.CloseErr
}
