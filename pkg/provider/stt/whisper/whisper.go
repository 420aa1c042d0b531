// Package whisper provides speech-to-text backed by whisper.cpp, either
// through a running whisper-server (HTTP POST /inference) or in-process via
// the CGO bindings.
//
// Both backends are batch engines. They implement [stt.Transcriber] directly
// for recorded song snippets, and [stt.Provider] by segmenting live audio at
// pauses and transcribing each utterance.
//
//	p, err := whisper.New("http://localhost:8080", whisper.WithLanguage("en"))
//	text, err := p.Transcribe(ctx, clip)
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/MrWong99/versecue/pkg/audio"
	"github.com/MrWong99/versecue/pkg/provider/stt"
)

var (
	_ stt.Provider    = (*Provider)(nil)
	_ stt.Transcriber = (*Provider)(nil)
)

// Option configures a [Provider].
type Option func(*Provider)

// WithModel names the model the server should use. Empty (the default) uses
// whatever the server was started with.
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithLanguage sets the recognition language. Default: "en".
func WithLanguage(lang string) Option {
	return func(p *Provider) { p.language = lang }
}

// WithSilence sets the pause that ends an utterance in streaming mode.
// Default: 500ms.
func WithSilence(d time.Duration) Option {
	return func(p *Provider) { p.silence = d }
}

// WithMaxUtterance caps the audio buffered before a streaming flush is
// forced. Default: 10s.
func WithMaxUtterance(d time.Duration) Option {
	return func(p *Provider) { p.maxUtterance = d }
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.client = c }
}

// Provider talks to a whisper-server instance.
type Provider struct {
	serverURL    string
	model        string
	language     string
	silence      time.Duration
	maxUtterance time.Duration
	client       *http.Client
}

// New returns a Provider for the server at serverURL.
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("whisper: serverURL must not be empty")
	}
	p := &Provider{
		serverURL:    strings.TrimRight(serverURL, "/"),
		language:     defaultLanguage,
		silence:      defaultSilence,
		maxUtterance: defaultMaxUtterance,
		client:       &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// StartStream implements [stt.Provider].
func (p *Provider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("whisper: start stream: %w", err)
	}
	lang := cfg.Language
	if lang == "" {
		lang = p.language
	}
	format := streamFormat(cfg)
	infer := func(ctx context.Context, clip audio.Clip) (string, error) {
		return p.transcribe(ctx, clip, lang)
	}
	return startSegmenter(ctx, format, p.silence, p.maxUtterance, infer), nil
}

// Transcribe implements [stt.Transcriber]. The clip is converted to 16 kHz
// mono and uploaded as WAV.
func (p *Provider) Transcribe(ctx context.Context, clip audio.Clip) (string, error) {
	return p.transcribe(ctx, clip, p.language)
}

func (p *Provider) transcribe(ctx context.Context, clip audio.Clip, lang string) (string, error) {
	clip, err := clip.Convert(audio.STTFormat)
	if err != nil {
		return "", fmt.Errorf("whisper: %w", err)
	}
	wav, err := audio.EncodeWAV(clip)
	if err != nil {
		return "", fmt.Errorf("whisper: %w", err)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return "", fmt.Errorf("whisper: create form file: %w", err)
	}
	if _, err := fw.Write(wav); err != nil {
		return "", fmt.Errorf("whisper: write wav: %w", err)
	}
	fields := map[string]string{"response_format": "json", "language": lang, "model": p.model}
	for k, v := range fields {
		if v == "" {
			continue
		}
		if err := mw.WriteField(k, v); err != nil {
			return "", fmt.Errorf("whisper: write %s field: %w", k, err)
		}
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("whisper: close multipart: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serverURL+"/inference", &body)
	if err != nil {
		return "", fmt.Errorf("whisper: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("whisper: inference request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return "", fmt.Errorf("whisper: server returned HTTP %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("whisper: decode response: %w", err)
	}
	return strings.TrimSpace(result.Text), nil
}

func streamFormat(cfg stt.StreamConfig) audio.Format {
	f := audio.Format{SampleRate: cfg.SampleRate, Channels: cfg.Channels}
	if f.SampleRate <= 0 {
		f.SampleRate = defaultSampleRate
	}
	if f.Channels <= 0 {
		f.Channels = 1
	}
	return f
}
