package config_test

import (
	"errors"
	"testing"

	"github.com/MrWong99/versecue/internal/config"
	"github.com/MrWong99/versecue/pkg/provider/llm"
	llmmock "github.com/MrWong99/versecue/pkg/provider/llm/mock"
	"github.com/MrWong99/versecue/pkg/provider/lyrics"
	lyricsmock "github.com/MrWong99/versecue/pkg/provider/lyrics/mock"
	"github.com/MrWong99/versecue/pkg/provider/stt"
	sttmock "github.com/MrWong99/versecue/pkg/provider/stt/mock"
)

func TestRegistry_Unknown(t *testing.T) {
	t.Parallel()
	r := config.NewRegistry()
	entry := config.ProviderEntry{Name: "nope"}

	checks := map[string]func() error{
		"llm":         func() error { _, err := r.CreateLLM(entry); return err },
		"stt":         func() error { _, err := r.CreateSTT(entry); return err },
		"transcriber": func() error { _, err := r.CreateTranscriber(entry); return err },
		"lyrics":      func() error { _, err := r.CreateLyrics(entry); return err },
	}
	for kind, check := range checks {
		if err := check(); !errors.Is(err, config.ErrProviderNotRegistered) {
			t.Errorf("%s: err = %v, want ErrProviderNotRegistered", kind, err)
		}
	}
}

func TestRegistry_Registered(t *testing.T) {
	t.Parallel()
	r := config.NewRegistry()

	var gotEntry config.ProviderEntry
	r.RegisterLLM("openai", func(e config.ProviderEntry) (llm.Provider, error) {
		gotEntry = e
		return &llmmock.Provider{}, nil
	})
	r.RegisterSTT("deepgram", func(config.ProviderEntry) (stt.Provider, error) { return &sttmock.Provider{}, nil })
	r.RegisterTranscriber("whisper", func(config.ProviderEntry) (stt.Transcriber, error) { return &sttmock.Transcriber{}, nil })
	r.RegisterLyrics("lrclib", func(config.ProviderEntry) (lyrics.Provider, error) { return &lyricsmock.Provider{}, nil })

	if p, err := r.CreateLLM(config.ProviderEntry{Name: "openai", Model: "gpt-4o-mini"}); err != nil || p == nil {
		t.Fatalf("CreateLLM: %v", err)
	}
	if gotEntry.Model != "gpt-4o-mini" {
		t.Errorf("factory got entry %+v", gotEntry)
	}
	if _, err := r.CreateSTT(config.ProviderEntry{Name: "deepgram"}); err != nil {
		t.Errorf("CreateSTT: %v", err)
	}
	if _, err := r.CreateTranscriber(config.ProviderEntry{Name: "whisper"}); err != nil {
		t.Errorf("CreateTranscriber: %v", err)
	}
	if _, err := r.CreateLyrics(config.ProviderEntry{Name: "lrclib"}); err != nil {
		t.Errorf("CreateLyrics: %v", err)
	}
}

func TestRegistry_FactoryError(t *testing.T) {
	t.Parallel()
	r := config.NewRegistry()
	boom := errors.New("boom")
	r.RegisterTranscriber("whisper", func(config.ProviderEntry) (stt.Transcriber, error) { return nil, boom })

	if _, err := r.CreateTranscriber(config.ProviderEntry{Name: "whisper"}); !errors.Is(err, boom) {
		t.Errorf("err = %v, want factory error", err)
	}
}
