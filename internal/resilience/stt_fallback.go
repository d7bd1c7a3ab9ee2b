package resilience

import (
	"context"

	"github.com/rnmehta/dinevox/pkg/provider/stt"
)

// STTFallback wraps a chain of transcription backends behind the
// [stt.Provider] interface. A caller that cannot be heard cannot order,
// so if the primary refuses a new session the next backend gets the call.
type STTFallback struct {
	group *FallbackGroup[stt.Provider]
}

var _ stt.Provider = (*STTFallback)(nil)

// NewSTTFallback builds the chain with primary as its first backend.
func NewSTTFallback(primary stt.Provider, primaryName string, cfg FallbackConfig) *STTFallback {
	return &STTFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback appends another STT backend, tried after those already added.
func (f *STTFallback) AddFallback(name string, provider stt.Provider) {
	f.group.AddFallback(name, provider)
}

// StartStream opens a transcription session on the first healthy backend.
// Failover covers session setup only; an established session that later
// drops is the session owner's problem, not the chain's.
func (f *STTFallback) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	return ExecuteWithResult(f.group, func(p stt.Provider) (stt.SessionHandle, error) {
		return p.StartStream(ctx, cfg)
	})
}
