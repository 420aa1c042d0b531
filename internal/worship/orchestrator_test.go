package worship_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/versecue/internal/library"
	"github.com/MrWong99/versecue/internal/library/librarytest"
	librarymock "github.com/MrWong99/versecue/internal/library/mock"
	"github.com/MrWong99/versecue/internal/worship"
	"github.com/MrWong99/versecue/pkg/audio"
	"github.com/MrWong99/versecue/pkg/provider/llm"
	llmmock "github.com/MrWong99/versecue/pkg/provider/llm/mock"
	"github.com/MrWong99/versecue/pkg/provider/lyrics"
	lyricsmock "github.com/MrWong99/versecue/pkg/provider/lyrics/mock"
	sttmock "github.com/MrWong99/versecue/pkg/provider/stt/mock"
)

func seeded(t *testing.T) *library.MemStore {
	t.Helper()
	s := library.NewMemStore()
	for _, song := range librarytest.Songs {
		s.Add(song)
	}
	return s
}

// clip returns d of silent 16 kHz mono PCM.
func clip(d time.Duration) audio.Clip {
	n := int(d.Seconds()*float64(audio.STTFormat.SampleRate)) * 2
	return audio.Clip{PCM: make([]byte, n), Format: audio.STTFormat}
}

func TestIdentify_TerminalErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		clip    audio.Clip
		tr      *sttmock.Transcriber
		wantErr error
		calls   int
	}{
		{
			name:    "below minimum size",
			clip:    audio.Clip{PCM: make([]byte, worship.DefaultMinAudioBytes-2), Format: audio.STTFormat},
			tr:      &sttmock.Transcriber{Text: "amazing grace"},
			wantErr: worship.ErrTooShort,
		},
		{
			name:    "transcription failure",
			clip:    clip(time.Second),
			tr:      &sttmock.Transcriber{Err: errors.New("503")},
			wantErr: worship.ErrTranscription,
			calls:   1,
		},
		{
			name:    "near-empty transcript",
			clip:    clip(time.Second),
			tr:      &sttmock.Transcriber{Text: "  la la  "},
			wantErr: worship.ErrUnclear,
			calls:   1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			store := &librarymock.Store{}
			o := worship.New(store, tt.tr)
			got, err := o.Identify(context.Background(), tt.clip)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if got != nil {
				t.Errorf("matches = %v, want nil", got)
			}
			if n := len(tt.tr.Clips()); n != tt.calls {
				t.Errorf("transcriber calls = %d, want %d", n, tt.calls)
			}
			if len(store.Calls()) != 0 {
				t.Error("no search should run after a terminal failure")
			}
			if worship.Reason(err) == "" {
				t.Error("terminal errors need an operator-facing reason")
			}
		})
	}
}

func TestIdentify_ExactTitleCountsOnce(t *testing.T) {
	t.Parallel()

	ext := &lyricsmock.Provider{Results: []lyrics.Result{
		{ID: "9", Title: "Amazing Grace", Artist: "John Newton", Source: "genius"},
		{ID: "10", Title: "Amazing Grace (My Chains Are Gone)", Artist: "Chris Tomlin", Source: "genius"},
	}}
	o := worship.New(seeded(t), &sttmock.Transcriber{Text: "Amazing Grace"},
		worship.WithLyrics(ext),
		worship.WithOrganization(librarytest.Org),
	)

	got, err := o.Identify(context.Background(), clip(5*time.Second))
	if err != nil {
		t.Fatalf("Identify: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("matches = %+v, want 2", got)
	}
	first := got[0]
	if first.Song.ID != "amazing-grace" || first.Confidence != worship.LocalConfidence || !first.Local() {
		t.Errorf("first = %+v, want local amazing-grace at 1.0", first)
	}
	if first.Strategy != worship.StrategyTitle {
		t.Errorf("strategy = %q, want %q", first.Strategy, worship.StrategyTitle)
	}
	var n int
	for _, m := range got {
		if library.Key(m.Song.Title, m.Song.Artist) == library.Key("Amazing Grace", "John Newton") {
			n++
		}
	}
	if n != 1 {
		t.Errorf("Amazing Grace appears %d times, want 1", n)
	}
	if got[1].Source != "genius" || got[1].Confidence != worship.ExternalConfidence {
		t.Errorf("second = %+v, want genius at 0.9", got[1])
	}
}

func TestIdentify_LyricPhraseOutranksExternal(t *testing.T) {
	t.Parallel()

	ext := &lyricsmock.Provider{Results: []lyrics.Result{
		{ID: "1", Title: "Oceans (Live)", Artist: "Cover Choir", Source: "lrclib"},
	}}
	o := worship.New(seeded(t),
		&sttmock.Transcriber{Text: "You call me out upon the waters, the great unknown"},
		worship.WithLyrics(ext),
		worship.WithOrganization(librarytest.Org),
	)

	got, err := o.Identify(context.Background(), clip(12*time.Second))
	if err != nil {
		t.Fatalf("Identify: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("matches = %+v, want 2", got)
	}
	if got[0].Song.ID != "oceans" || got[0].Confidence != 1.0 || got[0].Strategy != worship.StrategyPhrase {
		t.Errorf("first = %+v, want oceans via phrase at 1.0", got[0])
	}
	if got[1].Local() {
		t.Errorf("second should be the external match, got %+v", got[1])
	}
	if q := ext.Queries(); len(q) != 1 || q[0] != "You call me out upon the waters, the great unknown" {
		t.Errorf("external queries = %v", q)
	}
}

func TestSearch_StrategyFailuresAreIsolated(t *testing.T) {
	t.Parallel()

	oceans := librarytest.Songs[2]
	store := &librarymock.Store{
		TitleFunc: func(context.Context, string, string) ([]library.Song, error) {
			return nil, errors.New("connection reset")
		},
		LyricsResult: []library.Song{oceans},
	}
	ext := &lyricsmock.Provider{SearchErr: errors.New("HTTP 502")}
	o := worship.New(store, &sttmock.Transcriber{}, worship.WithLyrics(ext))

	got := o.Search(context.Background(), "you call me out upon the waters")
	if len(got) != 1 || got[0].Song.ID != "oceans" {
		t.Fatalf("Search = %+v, want oceans only", got)
	}
}

func TestSearch_SlowStrategyTimesOut(t *testing.T) {
	t.Parallel()

	ext := &lyricsmock.Provider{SearchFunc: func(ctx context.Context, string) ([]lyrics.Result, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	o := worship.New(seeded(t), &sttmock.Transcriber{},
		worship.WithLyrics(ext),
		worship.WithOrganization(librarytest.Org),
		worship.WithSettings(worship.Settings{MaxResults: 8, StrategyTimeout: 50 * time.Millisecond}),
	)

	start := time.Now()
	got := o.Search(context.Background(), "how great thou art")
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Search took %v; the slow strategy should be cut off", elapsed)
	}
	if len(got) != 1 || got[0].Song.ID != "how-great" {
		t.Errorf("Search = %+v, want how-great", got)
	}
}

func TestSearch_ResultsCapped(t *testing.T) {
	t.Parallel()

	var results []lyrics.Result
	for i := range 12 {
		results = append(results, lyrics.Result{ID: string(rune('a' + i)), Title: "Song " + string(rune('A'+i)), Source: "lrclib"})
	}
	o := worship.New(nil, &sttmock.Transcriber{}, worship.WithLyrics(&lyricsmock.Provider{Results: results}))
	if got := o.Search(context.Background(), "something unfamiliar"); len(got) != worship.DefaultMaxResults {
		t.Errorf("Search returned %d matches, want %d", len(got), worship.DefaultMaxResults)
	}
}

func TestSearch_LLMIdentification(t *testing.T) {
	t.Parallel()

	model := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{
		Content: `{"identified":true,"confidence":0.97,"title":"Goodness of God","artist":"Bethel Music"}`,
	}}

	o := worship.New(nil, &sttmock.Transcriber{}, worship.WithLLM(model))
	if got := o.Search(context.Background(), "all my life you have been faithful"); len(got) != 0 {
		t.Errorf("LLM strategy ran while disabled: %+v", got)
	}
	if len(model.Calls()) != 0 {
		t.Fatal("model called while identification is disabled")
	}

	s := o.Settings()
	s.LLMIdentify = true
	o.Apply(s)
	got := o.Search(context.Background(), "all my life you have been faithful")
	if len(got) != 1 {
		t.Fatalf("Search = %+v, want one LLM match", got)
	}
	if got[0].Song.Title != "Goodness of God" || got[0].Confidence != worship.LLMConfidenceCap {
		t.Errorf("match = %+v", got[0])
	}
	calls := model.Calls()
	if len(calls) != 1 || !strings.Contains(calls[0].Req.Messages[0].Content, "faithful") {
		t.Errorf("model calls = %+v", calls)
	}
}

func TestApply_ZeroKeepsDefaults(t *testing.T) {
	t.Parallel()

	o := worship.New(nil, &sttmock.Transcriber{})
	o.Apply(worship.Settings{MaxResults: 3, LLMIdentify: true})
	got := o.Settings()
	if got.MaxResults != 3 || !got.LLMIdentify {
		t.Errorf("settings = %+v", got)
	}
	if got.MinAudioBytes != worship.DefaultMinAudioBytes || got.StrategyTimeout != worship.DefaultStrategyTimeout {
		t.Errorf("zero fields should fall back to defaults: %+v", got)
	}
}
