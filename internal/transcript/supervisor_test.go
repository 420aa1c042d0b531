package transcript_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrWong99/versecue/internal/transcript"
	"github.com/MrWong99/versecue/pkg/provider/stt"
	sttmock "github.com/MrWong99/versecue/pkg/provider/stt/mock"
)

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func startSupervisor(t *testing.T, s *transcript.Supervisor) (cancel func() error) {
	t.Helper()
	ctx, stop := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	return func() error {
		stop()
		select {
		case err := <-done:
			return err
		case <-time.After(2 * time.Second):
			t.Fatal("Run did not return after cancel")
			return nil
		}
	}
}

func TestSupervisor_PumpsAndRestarts(t *testing.T) {
	t.Parallel()

	first, second := sttmock.NewSession(), sttmock.NewSession()
	p := &sttmock.Provider{Sessions: []*sttmock.Session{first, second}}
	rec := &recorder{}
	agg := transcript.NewAggregator(rec)
	cfg := stt.StreamConfig{SampleRate: 16000, Channels: 1, Language: "en"}
	s := transcript.NewSupervisor(p, agg,
		transcript.WithStreamConfig(cfg),
		transcript.WithBackoff(time.Millisecond, 2*time.Millisecond),
	)
	stop := startSupervisor(t, s)

	eventually(t, "first session", s.Active)
	if err := s.SendAudio([]byte{1, 2}); err != nil {
		t.Fatalf("SendAudio: %v", err)
	}
	first.Emit(stt.Transcript{Text: "open to John"})
	eventually(t, "interim", func() bool { return agg.Interim() == "open to John" })
	first.Emit(stt.Transcript{Text: "open to John 3 16", IsFinal: true})
	eventually(t, "final", func() bool { return len(rec.texts()) == 1 })

	first.End()
	eventually(t, "restart", func() bool { return len(p.Started()) == 2 && s.Active() })
	if s.Restarts() != 1 {
		t.Errorf("Restarts() = %d, want 1", s.Restarts())
	}
	if err := s.SendAudio([]byte{3}); err != nil {
		t.Fatalf("SendAudio after restart: %v", err)
	}
	if len(second.Audio()) != 1 || len(first.Audio()) != 1 {
		t.Errorf("audio routed wrong: first=%d second=%d", len(first.Audio()), len(second.Audio()))
	}
	second.Emit(stt.Transcript{Text: "and Romans 8", IsFinal: true})
	eventually(t, "final after restart", func() bool { return len(rec.texts()) == 2 })

	if err := stop(); !errors.Is(err, context.Canceled) {
		t.Errorf("Run() = %v, want context.Canceled", err)
	}
	if second.Closes() != 1 {
		t.Errorf("second.Closes() = %d, want 1", second.Closes())
	}
	if err := s.SendAudio([]byte{4}); !errors.Is(err, transcript.ErrNoSession) {
		t.Errorf("SendAudio after stop = %v, want ErrNoSession", err)
	}
	for _, c := range p.Calls() {
		if c.SampleRate != cfg.SampleRate || c.Channels != cfg.Channels || c.Language != cfg.Language {
			t.Errorf("StartStream cfg = %+v, want %+v", c, cfg)
		}
	}
}

func TestSupervisor_RetriesStartFailures(t *testing.T) {
	t.Parallel()

	p := &sttmock.Provider{StartStreamErr: errors.New("connection refused")}
	s := transcript.NewSupervisor(p, transcript.NewAggregator(nil),
		transcript.WithBackoff(time.Millisecond, 4*time.Millisecond),
	)
	stop := startSupervisor(t, s)
	eventually(t, "retries", func() bool { return len(p.Calls()) >= 3 })
	if s.Active() {
		t.Error("Active() with failing provider")
	}
	if err := stop(); !errors.Is(err, context.Canceled) {
		t.Errorf("Run() = %v", err)
	}
}

func TestSupervisor_RunTwice(t *testing.T) {
	t.Parallel()

	s := transcript.NewSupervisor(&sttmock.Provider{}, transcript.NewAggregator(nil))
	stop := startSupervisor(t, s)
	eventually(t, "session", s.Active)
	if err := s.Run(context.Background()); err == nil {
		t.Error("second Run() should fail")
	}
	_ = stop()
}

func TestSupervisor_SetKeywords(t *testing.T) {
	t.Parallel()

	sess := sttmock.NewSession()
	sess.SetKeywordsErr = stt.ErrNotSupported
	p := &sttmock.Provider{Sessions: []*sttmock.Session{sess}}
	s := transcript.NewSupervisor(p, transcript.NewAggregator(nil),
		transcript.WithBackoff(time.Millisecond, time.Millisecond))
	stop := startSupervisor(t, s)
	defer stop()
	eventually(t, "session", s.Active)

	kw := []stt.KeywordBoost{{Keyword: "Habakkuk", Boost: 2}}
	if err := s.SetKeywords(kw); err != nil {
		t.Fatalf("SetKeywords: %v", err)
	}
	if got := sess.Keywords(); len(got) != 1 {
		t.Errorf("session saw %d keyword updates", len(got))
	}

	sess.End()
	eventually(t, "restart", func() bool { return len(p.Calls()) == 2 })
	if got := p.Calls()[1].Keywords; len(got) != 1 || got[0].Keyword != "Habakkuk" {
		t.Errorf("restart keywords = %+v", got)
	}
}
