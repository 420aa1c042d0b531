package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrWong99/versecue/internal/app"
	"github.com/MrWong99/versecue/internal/detect"
	"github.com/MrWong99/versecue/internal/queue"
	"github.com/MrWong99/versecue/internal/transcript"
)

type sessionFixture struct {
	sm       *app.SessionManager
	queue    *queue.Queue
	pipeline *detect.Pipeline
	agg      *transcript.Aggregator
}

func newSessionFixture(t *testing.T) *sessionFixture {
	t.Helper()
	q := queue.New()
	p := detect.NewPipeline(q)
	p.Pause()
	t.Cleanup(p.Close)
	agg := transcript.NewAggregator(p)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	sm := app.NewSessionManager(app.SessionManagerConfig{
		Queue:      q,
		Pipeline:   p,
		Transcript: agg,
		Now: func() time.Time {
			now = now.Add(time.Minute)
			return now
		},
	})
	return &sessionFixture{sm: sm, queue: q, pipeline: p, agg: agg}
}

func (f *sessionFixture) say(text string) {
	f.agg.Accept(context.Background(), detect.Fragment{Text: text, Final: true})
}

func TestSessionManager_Lifecycle(t *testing.T) {
	t.Parallel()
	f := newSessionFixture(t)

	info, err := f.sm.Start()
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if info.ID == "" || info.State != app.SessionActive || info.StartedAt.IsZero() {
		t.Errorf("Start info = %+v", info)
	}
	if f.pipeline.Paused() {
		t.Error("detection paused after Start")
	}

	f.say("John 3:16")
	if n := len(f.queue.Pending()); n != 1 {
		t.Fatalf("pending = %d, want 1", n)
	}

	if _, err := f.sm.Pause(); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	f.say("Romans 8:28")
	if n := len(f.queue.Pending()); n != 1 {
		t.Errorf("pending after paused fragment = %d, want 1", n)
	}
	if got := len(f.agg.Segments()); got != 2 {
		t.Errorf("transcript kept %d segments while paused, want 2", got)
	}

	if _, err := f.sm.Resume(); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	f.say("Romans 8:28")
	if n := len(f.queue.Pending()); n != 2 {
		t.Errorf("pending after resume = %d, want 2", n)
	}

	info, err = f.sm.End()
	if err != nil {
		t.Fatalf("End: %v", err)
	}
	if info.State != app.SessionEnded || !info.EndedAt.After(info.StartedAt) {
		t.Errorf("End info = %+v", info)
	}
	if !f.pipeline.Paused() {
		t.Error("detection still on after End")
	}

	snap := f.sm.Snapshot()
	if snap.Stats.Detected != 2 || len(snap.Transcript) != 3 {
		t.Errorf("snapshot after end = %+v", snap)
	}
	if snap.STT != nil {
		t.Error("STT status reported without a supervisor")
	}
}

func TestSessionManager_StartResets(t *testing.T) {
	t.Parallel()
	f := newSessionFixture(t)

	first, _ := f.sm.Start()
	f.say("John 3:16")
	f.sm.End()

	second, err := f.sm.Start()
	if err != nil {
		t.Fatalf("second Start: %v", err)
	}
	if second.ID == first.ID {
		t.Error("session id reused")
	}
	if f.queue.Len() != 0 || f.queue.Stats().Detected != 0 {
		t.Errorf("queue not reset: len %d, stats %+v", f.queue.Len(), f.queue.Stats())
	}
	if len(f.agg.Segments()) != 0 {
		t.Error("transcript not cleared")
	}

	// The cooldown is cleared too, so the same verse is detected again.
	f.say("John 3:16")
	if n := len(f.queue.Pending()); n != 1 {
		t.Errorf("pending = %d, want 1", n)
	}
}

func TestSessionManager_InvalidTransitions(t *testing.T) {
	t.Parallel()
	f := newSessionFixture(t)

	if _, err := f.sm.End(); !errors.Is(err, app.ErrNoSession) {
		t.Errorf("End idle = %v, want ErrNoSession", err)
	}
	if _, err := f.sm.Pause(); !errors.Is(err, app.ErrNoSession) {
		t.Errorf("Pause idle = %v, want ErrNoSession", err)
	}
	if _, err := f.sm.Resume(); !errors.Is(err, app.ErrNotPaused) {
		t.Errorf("Resume idle = %v, want ErrNotPaused", err)
	}

	f.sm.Start()
	if _, err := f.sm.Start(); !errors.Is(err, app.ErrSessionActive) {
		t.Errorf("Start twice = %v, want ErrSessionActive", err)
	}
	if _, err := f.sm.Resume(); !errors.Is(err, app.ErrNotPaused) {
		t.Errorf("Resume active = %v, want ErrNotPaused", err)
	}
	f.sm.Pause()
	if _, err := f.sm.Pause(); !errors.Is(err, app.ErrNoSession) {
		t.Errorf("Pause twice = %v, want ErrNoSession", err)
	}
	if _, err := f.sm.Start(); !errors.Is(err, app.ErrSessionActive) {
		t.Errorf("Start while paused = %v, want ErrSessionActive", err)
	}
}
