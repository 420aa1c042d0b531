package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/MrWong99/versecue/pkg/audio"
	"github.com/MrWong99/versecue/pkg/provider/stt"
)

var (
	_ stt.Provider    = (*NativeProvider)(nil)
	_ stt.Transcriber = (*NativeProvider)(nil)
)

// NativeProvider runs whisper.cpp in-process. libwhisper.a and whisper.h must
// be reachable through LIBRARY_PATH and C_INCLUDE_PATH at build time.
type NativeProvider struct {
	model        whisperlib.Model
	language     string
	silence      time.Duration
	maxUtterance time.Duration
	prompt       string
}

// NativeOption configures a [NativeProvider].
type NativeOption func(*NativeProvider)

// WithNativeLanguage sets the recognition language. Default: "en".
func WithNativeLanguage(lang string) NativeOption {
	return func(p *NativeProvider) { p.language = lang }
}

// WithNativeSilence sets the pause that ends a streaming utterance.
func WithNativeSilence(d time.Duration) NativeOption {
	return func(p *NativeProvider) { p.silence = d }
}

// WithNativeMaxUtterance caps buffered streaming audio.
func WithNativeMaxUtterance(d time.Duration) NativeOption {
	return func(p *NativeProvider) { p.maxUtterance = d }
}

// WithInitialPrompt primes the decoder with vocabulary, for example Bible
// book names.
func WithInitialPrompt(prompt string) NativeOption {
	return func(p *NativeProvider) { p.prompt = prompt }
}

// NewNative loads the model at modelPath. Close releases it.
func NewNative(modelPath string, opts ...NativeOption) (*NativeProvider, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}
	p := &NativeProvider{
		model:        model,
		language:     defaultLanguage,
		silence:      defaultSilence,
		maxUtterance: defaultMaxUtterance,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Close releases the model.
func (p *NativeProvider) Close() error {
	if p.model == nil {
		return nil
	}
	return p.model.Close()
}

// StartStream implements [stt.Provider].
func (p *NativeProvider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("whisper: start stream: %w", err)
	}
	lang := cfg.Language
	if lang == "" {
		lang = p.language
	}
	infer := func(_ context.Context, clip audio.Clip) (string, error) {
		return p.transcribe(clip, lang)
	}
	return startSegmenter(ctx, streamFormat(cfg), p.silence, p.maxUtterance, infer), nil
}

// Transcribe implements [stt.Transcriber]. Inference is CPU-bound and does
// not observe ctx once started.
func (p *NativeProvider) Transcribe(ctx context.Context, clip audio.Clip) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("whisper: transcribe: %w", err)
	}
	return p.transcribe(clip, p.language)
}

func (p *NativeProvider) transcribe(clip audio.Clip, lang string) (string, error) {
	clip, err := clip.Convert(audio.STTFormat)
	if err != nil {
		return "", fmt.Errorf("whisper: %w", err)
	}

	// Contexts are not goroutine-safe; the model is. One context per call.
	wctx, err := p.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("whisper: create context: %w", err)
	}
	if err := wctx.SetLanguage(lang); err != nil {
		slog.Warn("whisper: language rejected, using model default", "language", lang, "err", err)
	}
	if p.prompt != "" {
		wctx.SetInitialPrompt(p.prompt)
	}
	if err := wctx.Process(floats(clip.PCM), nil, nil, nil); err != nil {
		return "", fmt.Errorf("whisper: process audio: %w", err)
	}

	var parts []string
	for {
		seg, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("whisper: read segment: %w", err)
		}
		if t := strings.TrimSpace(seg.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " "), nil
}

// floats converts mono PCM16 to samples in [-1, 1).
func floats(pcm []byte) []float32 {
	out := make([]float32, len(pcm)/2)
	for i := range out {
		out[i] = float32(int16(uint16(pcm[2*i])|uint16(pcm[2*i+1])<<8)) / 32768
	}
	return out
}
