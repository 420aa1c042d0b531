package deepgram

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/versecue/pkg/audio"
	"github.com/MrWong99/versecue/pkg/provider/stt"
	"github.com/coder/websocket"
)

// ---- URL / query-param tests ----

func TestStreamURL_Defaults(t *testing.T) {
	t.Parallel()

	p, err := New("test-key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	rawURL, err := p.listenURL(stt.StreamConfig{SampleRate: 16000, Channels: 1, Language: "en"}, true)
	if err != nil {
		t.Fatalf("listenURL: %v", err)
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		t.Fatalf("parse URL: %v", err)
	}
	if u.Scheme != "wss" {
		t.Errorf("scheme = %q, want wss", u.Scheme)
	}
	q := u.Query()
	assertEqual(t, "model", "nova-3", q.Get("model"))
	assertEqual(t, "language", "en", q.Get("language"))
	assertEqual(t, "punctuate", "true", q.Get("punctuate"))
	assertEqual(t, "interim_results", "true", q.Get("interim_results"))
	assertEqual(t, "encoding", "linear16", q.Get("encoding"))
	assertEqual(t, "sample_rate", "16000", q.Get("sample_rate"))
	assertEqual(t, "channels", "1", q.Get("channels"))
}

func TestStreamURL_Overrides(t *testing.T) {
	t.Parallel()

	p, _ := New("key", WithModel("nova-2"), WithLanguage("en-GB"), WithSampleRate(48000), WithEndpoint("http://localhost:9000/v1/listen/"))
	rawURL, _ := p.listenURL(stt.StreamConfig{Language: "fr-FR"}, true)
	u, _ := url.Parse(rawURL)
	if u.Scheme != "ws" || u.Host != "localhost:9000" || u.Path != "/v1/listen" {
		t.Errorf("url = %s", rawURL)
	}
	q := u.Query()
	assertEqual(t, "model", "nova-2", q.Get("model"))
	assertEqual(t, "language", "fr-FR", q.Get("language"))
	assertEqual(t, "sample_rate", "48000", q.Get("sample_rate"))
}

func TestStreamURL_Keywords(t *testing.T) {
	t.Parallel()

	kws := []stt.KeywordBoost{{Keyword: "Habakkuk", Boost: 5}, {Keyword: "Philemon", Boost: 3.5}}
	tests := []struct {
		model string
		param string
		want  []string
	}{
		{model: "nova-3", param: "keyterm", want: []string{"Habakkuk", "Philemon"}},
		{model: "nova-2", param: "keywords", want: []string{"Habakkuk:5", "Philemon:3.5"}},
	}
	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			t.Parallel()
			p, _ := New("key", WithModel(tt.model))
			rawURL, _ := p.listenURL(stt.StreamConfig{Keywords: kws}, true)
			u, _ := url.Parse(rawURL)
			got := u.Query()[tt.param]
			if strings.Join(got, ",") != strings.Join(tt.want, ",") {
				t.Errorf("%s = %v, want %v", tt.param, got, tt.want)
			}
		})
	}
}

func TestStreamURL_NoKeywords(t *testing.T) {
	t.Parallel()

	p, _ := New("key")
	rawURL, _ := p.listenURL(stt.StreamConfig{}, true)
	u, _ := url.Parse(rawURL)
	if _, ok := u.Query()["keyterm"]; ok {
		t.Error("expected no keyterm param when none provided")
	}
}

func TestListenURL_PreRecordedAndEndpointing(t *testing.T) {
	t.Parallel()

	p, _ := New("key", WithEndpointing(800*time.Millisecond))

	stream, _ := p.listenURL(stt.StreamConfig{}, true)
	u, _ := url.Parse(stream)
	assertEqual(t, "endpointing", "800", u.Query().Get("endpointing"))

	batch, _ := p.listenURL(stt.StreamConfig{}, false)
	u, _ = url.Parse(batch)
	if u.Scheme != "https" {
		t.Errorf("pre-recorded scheme = %q", u.Scheme)
	}
	q := u.Query()
	assertEqual(t, "smart_format", "true", q.Get("smart_format"))
	for _, k := range []string{"encoding", "sample_rate", "interim_results", "endpointing"} {
		if q.Has(k) {
			t.Errorf("pre-recorded URL carries %s", k)
		}
	}
}

// ---- JSON parsing tests ----

func TestParseDeepgramResponse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		raw     string
		wantOK  bool
		final   bool
		text    string
		words   int
		startAt time.Duration
	}{
		{
			name: "final with words",
			raw: `{"type":"Results","is_final":true,"start":2.5,"duration":1.5,"channel":{"alternatives":[{
				"transcript":"John three sixteen","confidence":0.95,
				"words":[{"word":"John","start":2.5,"end":2.8,"confidence":0.97},{"word":"three","start":2.9,"end":3.1,"confidence":0.9},{"word":"sixteen","start":3.2,"end":4.0,"confidence":0.93}]}]}}`,
			wantOK: true, final: true, text: "John three sixteen", words: 3, startAt: 2500 * time.Millisecond,
		},
		{
			name:   "partial",
			raw:    `{"type":"Results","is_final":false,"channel":{"alternatives":[{"transcript":"John","confidence":0.7,"words":[]}]}}`,
			wantOK: true, text: "John",
		},
		{name: "metadata", raw: `{"type":"Metadata","request_id":"abc"}`},
		{name: "no alternatives", raw: `{"type":"Results","is_final":true,"channel":{"alternatives":[]}}`},
		{name: "blank transcript", raw: `{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":"  "}]}}`},
		{name: "invalid json", raw: `{invalid`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			tr, ok := parseDeepgramResponse([]byte(tt.raw))
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if tr.IsFinal != tt.final || tr.Text != tt.text || len(tr.Words) != tt.words || tr.Timestamp != tt.startAt {
				t.Errorf("got %+v", tr)
			}
		})
	}
}

// ---- Constructor tests ----

func TestNew(t *testing.T) {
	t.Parallel()

	if _, err := New(""); err == nil {
		t.Error("expected error for empty API key")
	}
	p, err := New("key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	assertEqual(t, "model", defaultModel, p.model)
	assertEqual(t, "language", defaultLanguage, p.language)
	assertEqual(t, "endpoint", defaultEndpoint, p.endpoint)
}

// ---- Live session against a fake server ----

type fakeDeepgram struct {
	mu       sync.Mutex
	auth     string
	audio    int
	controls []string
}

func (f *fakeDeepgram) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.auth = r.Header.Get("Authorization")
		f.mu.Unlock()
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			t.Errorf("accept: %v", err)
			return
		}
		defer conn.CloseNow()
		ctx := r.Context()
		for {
			typ, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			if typ == websocket.MessageBinary {
				f.mu.Lock()
				f.audio += len(data)
				f.mu.Unlock()
				partial := `{"type":"Results","is_final":false,"channel":{"alternatives":[{"transcript":"turn to"}]}}`
				final := `{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":"turn to Romans 8 28","confidence":0.92}]}}`
				_ = conn.Write(ctx, websocket.MessageText, []byte(partial))
				_ = conn.Write(ctx, websocket.MessageText, []byte(final))
				continue
			}
			var msg struct {
				Type string `json:"type"`
			}
			_ = json.Unmarshal(data, &msg)
			f.mu.Lock()
			f.controls = append(f.controls, msg.Type)
			f.mu.Unlock()
			if msg.Type == "CloseStream" {
				conn.Close(websocket.StatusNormalClosure, "")
				return
			}
		}
	}
}

func TestSession_RoundTrip(t *testing.T) {
	t.Parallel()

	fake := &fakeDeepgram{}
	srv := httptest.NewServer(fake.handler(t))
	t.Cleanup(srv.Close)

	p, _ := New("secret", WithEndpoint(srv.URL+"/v1/listen"))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	h, err := p.StartStream(ctx, stt.StreamConfig{SampleRate: 16000, Channels: 1})
	if err != nil {
		t.Fatalf("StartStream: %v", err)
	}
	if err := h.SendAudio(make([]byte, 640)); err != nil {
		t.Fatalf("SendAudio: %v", err)
	}

	select {
	case tr := <-h.Partials():
		assertEqual(t, "partial", "turn to", tr.Text)
	case <-ctx.Done():
		t.Fatal("timed out waiting for partial")
	}
	select {
	case tr := <-h.Finals():
		assertEqual(t, "final", "turn to Romans 8 28", tr.Text)
		if !tr.IsFinal || tr.Confidence != 0.92 {
			t.Errorf("final = %+v", tr)
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for final")
	}

	if err := h.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := h.SendAudio([]byte{0, 0}); err == nil {
		t.Error("SendAudio after Close: expected error")
	}
	if _, ok := <-h.Finals(); ok {
		t.Error("finals channel should be closed")
	}

	fake.mu.Lock()
	defer fake.mu.Unlock()
	assertEqual(t, "auth", "Token secret", fake.auth)
	if fake.audio != 640 {
		t.Errorf("audio bytes = %d, want 640", fake.audio)
	}
	if len(fake.controls) == 0 || fake.controls[len(fake.controls)-1] != "CloseStream" {
		t.Errorf("controls = %v, want trailing CloseStream", fake.controls)
	}
}

func TestSession_SetKeywordsUnsupported(t *testing.T) {
	t.Parallel()

	s := &session{}
	if err := s.SetKeywords(nil); err == nil || !strings.Contains(err.Error(), "not supported") {
		t.Errorf("SetKeywords err = %v", err)
	}
}

// ---- Pre-recorded ----

func TestTranscribe(t *testing.T) {
	t.Parallel()

	var gotType, gotModel string
	var gotRIFF bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotType = r.Header.Get("Content-Type")
		gotModel = r.URL.Query().Get("model")
		body, _ := io.ReadAll(r.Body)
		gotRIFF = len(body) > 4 && string(body[:4]) == "RIFF"
		_, _ = io.WriteString(w, `{"results":{"channels":[{"alternatives":[{"transcript":" how great thou art "}]}]}}`)
	}))
	t.Cleanup(srv.Close)

	p, _ := New("key", WithEndpoint(srv.URL))
	text, err := p.Transcribe(context.Background(), audio.Clip{PCM: make([]byte, 3200), Format: audio.STTFormat})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	assertEqual(t, "text", "how great thou art", text)
	assertEqual(t, "content-type", "audio/wav", gotType)
	assertEqual(t, "model", "nova-3", gotModel)
	if !gotRIFF {
		t.Error("body is not a WAV file")
	}
}

func TestTranscribe_HTTPError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	t.Cleanup(srv.Close)

	p, _ := New("key", WithEndpoint(srv.URL))
	_, err := p.Transcribe(context.Background(), audio.Clip{PCM: make([]byte, 320), Format: audio.STTFormat})
	if err == nil || !strings.Contains(err.Error(), "401") {
		t.Errorf("err = %v, want HTTP 401", err)
	}
}

// ---- helpers ----

func assertEqual(t *testing.T, label, want, got string) {
	t.Helper()
	if want != got {
		t.Errorf("%s: want %q, got %q", label, want, got)
	}
}
