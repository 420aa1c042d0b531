package resilience

import (
	"context"

	"github.com/MrWong99/versecue/pkg/audio"
	"github.com/MrWong99/versecue/pkg/provider/stt"
)

// STTFallback implements [stt.Provider] with automatic failover across
// streaming backends. Failover happens only at session start; an open
// session stays on the backend that accepted it.
type STTFallback struct {
	group *FallbackGroup[stt.Provider]
}

var _ stt.Provider = (*STTFallback)(nil)

// NewSTTFallback creates an [STTFallback] with primary as the preferred backend.
func NewSTTFallback(primary stt.Provider, primaryName string, cfg FallbackConfig) *STTFallback {
	return &STTFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers an additional STT provider as a fallback.
func (f *STTFallback) AddFallback(name string, provider stt.Provider) {
	f.group.AddFallback(name, provider)
}

// Breakers returns the per-backend breakers in chain order.
func (f *STTFallback) Breakers() []*CircuitBreaker { return f.group.Breakers() }

// StartStream opens a session against the first healthy provider.
func (f *STTFallback) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	return ExecuteWithResult(f.group, func(p stt.Provider) (stt.SessionHandle, error) {
		return p.StartStream(ctx, cfg)
	})
}

// TranscriberFallback implements [stt.Transcriber] across batch backends.
type TranscriberFallback struct {
	group *FallbackGroup[stt.Transcriber]
}

var _ stt.Transcriber = (*TranscriberFallback)(nil)

// NewTranscriberFallback creates a [TranscriberFallback] with primary as the
// preferred backend.
func NewTranscriberFallback(primary stt.Transcriber, primaryName string, cfg FallbackConfig) *TranscriberFallback {
	return &TranscriberFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers an additional transcriber.
func (f *TranscriberFallback) AddFallback(name string, t stt.Transcriber) {
	f.group.AddFallback(name, t)
}

// Breakers returns the per-backend breakers in chain order.
func (f *TranscriberFallback) Breakers() []*CircuitBreaker { return f.group.Breakers() }

// Transcribe runs the clip through the first healthy transcriber.
func (f *TranscriberFallback) Transcribe(ctx context.Context, clip audio.Clip) (string, error) {
	return ExecuteWithResult(f.group, func(t stt.Transcriber) (string, error) {
		return t.Transcribe(ctx, clip)
	})
}
