// Package mock provides test doubles for the stt package interfaces.
//
// Provider hands out queued Sessions in order, so a test can script a
// stream that ends and the session that replaces it. Session exposes
// Emit and End to play the remote side. Transcriber returns canned text
// for recorded clips.
//
//	sess := mock.NewSession()
//	p := &mock.Provider{Sessions: []*mock.Session{sess}}
//	h, _ := p.StartStream(ctx, cfg)
//	sess.Emit(stt.Transcript{Text: "John 3 16", IsFinal: true})
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/versecue/pkg/audio"
	"github.com/MrWong99/versecue/pkg/provider/stt"
)

var (
	_ stt.Provider      = (*Provider)(nil)
	_ stt.SessionHandle = (*Session)(nil)
	_ stt.Transcriber   = (*Transcriber)(nil)
)

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// Sessions are returned by successive StartStream calls. When exhausted a
	// fresh Session is created.
	Sessions []*Session

	// StartStreamErr, if non-nil, is returned as the error from StartStream.
	StartStreamErr error

	calls   []stt.StreamConfig
	started []*Session
}

// StartStream records the call and returns the next queued Session.
func (p *Provider) StartStream(_ context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, cfg)
	if p.StartStreamErr != nil {
		return nil, p.StartStreamErr
	}
	var s *Session
	if len(p.Sessions) > 0 {
		s, p.Sessions = p.Sessions[0], p.Sessions[1:]
	} else {
		s = NewSession()
	}
	p.started = append(p.started, s)
	return s, nil
}

// Calls returns the StreamConfig of every StartStream call.
func (p *Provider) Calls() []stt.StreamConfig {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]stt.StreamConfig(nil), p.calls...)
}

// Started returns the sessions handed out so far.
func (p *Provider) Started() []*Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*Session(nil), p.started...)
}

// Reset clears all recorded calls.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = nil
	p.started = nil
}

// Session is a mock implementation of stt.SessionHandle.
type Session struct {
	mu sync.Mutex

	// SendAudioErr, if non-nil, is returned by every SendAudio call.
	SendAudioErr error

	// SetKeywordsErr, if non-nil, is returned by every SetKeywords call.
	SetKeywordsErr error

	partials chan stt.Transcript
	finals   chan stt.Transcript
	ended    bool

	audio    [][]byte
	keywords [][]stt.KeywordBoost
	closes   int
}

// NewSession returns a Session with buffered result channels.
func NewSession() *Session {
	return &Session{
		partials: make(chan stt.Transcript, 64),
		finals:   make(chan stt.Transcript, 64),
	}
}

// Emit delivers t on Finals or Partials depending on t.IsFinal. It is a
// no-op after the session ended.
func (s *Session) Emit(t stt.Transcript) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return
	}
	if t.IsFinal {
		s.finals <- t
		return
	}
	s.partials <- t
}

// End closes both result channels, as a remote hang-up would.
func (s *Session) End() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return
	}
	s.ended = true
	close(s.partials)
	close(s.finals)
}

// SendAudio records a copy of chunk and returns SendAudioErr.
func (s *Session) SendAudio(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audio = append(s.audio, append([]byte(nil), chunk...))
	return s.SendAudioErr
}

func (s *Session) Partials() <-chan stt.Transcript { return s.partials }
func (s *Session) Finals() <-chan stt.Transcript   { return s.finals }

// SetKeywords records the call and returns SetKeywordsErr.
func (s *Session) SetKeywords(keywords []stt.KeywordBoost) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keywords = append(s.keywords, append([]stt.KeywordBoost(nil), keywords...))
	return s.SetKeywordsErr
}

// Close records the call and ends the session.
func (s *Session) Close() error {
	s.mu.Lock()
	s.closes++
	s.mu.Unlock()
	s.End()
	return nil
}

// Audio returns every chunk passed to SendAudio.
func (s *Session) Audio() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.audio...)
}

// Keywords returns every SetKeywords argument.
func (s *Session) Keywords() [][]stt.KeywordBoost {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]stt.KeywordBoost(nil), s.keywords...)
}

// Closes returns how often Close was called.
func (s *Session) Closes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes
}

// Transcriber is a mock implementation of stt.Transcriber.
type Transcriber struct {
	mu sync.Mutex

	// TranscribeFunc, if set, overrides Text and Err.
	TranscribeFunc func(ctx context.Context, clip audio.Clip) (string, error)

	Text string
	Err  error

	clips []audio.Clip
}

// Transcribe records the clip and returns the canned result.
func (t *Transcriber) Transcribe(ctx context.Context, clip audio.Clip) (string, error) {
	t.mu.Lock()
	t.clips = append(t.clips, clip)
	fn, text, err := t.TranscribeFunc, t.Text, t.Err
	t.mu.Unlock()
	if fn != nil {
		return fn(ctx, clip)
	}
	return text, err
}

// Clips returns every clip passed to Transcribe.
func (t *Transcriber) Clips() []audio.Clip {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]audio.Clip(nil), t.clips...)
}

// Reset clears recorded clips.
func (t *Transcriber) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.clips = nil
}
