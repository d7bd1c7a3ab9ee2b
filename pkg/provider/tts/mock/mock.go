// Package mock is a test double for tts.Provider. The double replays the
// configured audio chunks and records which voice and which text fragments
// the consumer handed it.
package mock

import (
	"context"
	"sync"

	"github.com/rnmehta/dinevox/pkg/provider/tts"
	"github.com/rnmehta/dinevox/pkg/types"
)

// SynthesizeStreamCall records one SynthesizeStream invocation. Text is the
// consumer's own fragment channel; drain it to see what was spoken.
type SynthesizeStreamCall struct {
	Ctx   context.Context
	Text  <-chan string
	Voice types.VoiceProfile
}

// Provider is a configurable tts.Provider double.
type Provider struct {
	mu sync.Mutex

	// SynthesizeChunks are emitted in order on the channel returned by
	// SynthesizeStream, which then closes.
	SynthesizeChunks [][]byte
	// SynthesizeErr, if set, fails SynthesizeStream before any channel opens.
	SynthesizeErr error

	ListVoicesResult []types.VoiceProfile
	ListVoicesErr    error

	CloneVoiceResult *types.VoiceProfile
	CloneVoiceErr    error

	// Recorded calls, in order.
	SynthesizeStreamCalls []SynthesizeStreamCall
	ListVoicesCalls       int
	CloneVoiceCalls       [][][]byte
}

var _ tts.Provider = (*Provider)(nil)

// SynthesizeStream records the call and replays SynthesizeChunks. The text
// channel is drained in the background so the consumer never blocks on it.
func (p *Provider) SynthesizeStream(ctx context.Context, text <-chan string, voice types.VoiceProfile) (<-chan []byte, error) {
	p.mu.Lock()
	p.SynthesizeStreamCalls = append(p.SynthesizeStreamCalls, SynthesizeStreamCall{Ctx: ctx, Text: text, Voice: voice})
	if p.SynthesizeErr != nil {
		err := p.SynthesizeErr
		p.mu.Unlock()
		return nil, err
	}
	chunks := append([][]byte(nil), p.SynthesizeChunks...)
	p.mu.Unlock()

	ch := make(chan []byte, len(chunks))
	go func() {
		defer close(ch)
		go func() {
			for range text {
			}
		}()
		for _, audio := range chunks {
			select {
			case <-ctx.Done():
				return
			case ch <- audio:
			}
		}
	}()
	return ch, nil
}

// ListVoices records the call and returns the configured catalogue.
func (p *Provider) ListVoices(ctx context.Context) ([]types.VoiceProfile, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ListVoicesCalls++
	return p.ListVoicesResult, p.ListVoicesErr
}

// CloneVoice records a copy of the samples and returns the configured result.
func (p *Provider) CloneVoice(ctx context.Context, samples [][]byte) (*types.VoiceProfile, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CloneVoiceCalls = append(p.CloneVoiceCalls, append([][]byte(nil), samples...))
	return p.CloneVoiceResult, p.CloneVoiceErr
}
