// Package deepgram provides STT backed by Deepgram. Live sermon audio goes
// over the streaming WebSocket API; recorded clips go to the pre-recorded
// REST endpoint.
package deepgram

import (
	"bytes"
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/versecue/pkg/audio"
	"github.com/MrWong99/versecue/pkg/provider/stt"
	"github.com/coder/websocket"
)

const (
	defaultEndpoint   = "https://api.deepgram.com/v1/listen"
	defaultModel      = "nova-3"
	defaultLanguage   = "en"
	defaultSampleRate = 16000

	keepAliveInterval = 5 * time.Second
	closeTimeout      = 5 * time.Second
)

var (
	_ stt.Provider    = (*Provider)(nil)
	_ stt.Transcriber = (*Provider)(nil)

	errClosed = errors.New("deepgram: session is closed")
)

// Option is a functional option for configuring the Deepgram Provider.
type Option func(*Provider)

// WithModel sets the Deepgram model (e.g. "nova-3", "nova-2").
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithLanguage sets the BCP-47 language code for recognition.
func WithLanguage(language string) Option {
	return func(p *Provider) { p.language = language }
}

// WithSampleRate sets the default stream sample rate in Hz.
func WithSampleRate(rate int) Option {
	return func(p *Provider) { p.sampleRate = rate }
}

// WithEndpoint overrides the listen endpoint. The streaming URL is derived
// from it by switching the scheme to ws/wss.
func WithEndpoint(endpoint string) Option {
	return func(p *Provider) { p.endpoint = strings.TrimRight(endpoint, "/") }
}

// WithEndpointing sets how much trailing silence ends an utterance. Longer
// values suit preachers who pause mid-sentence. Zero keeps Deepgram's default.
func WithEndpointing(d time.Duration) Option {
	return func(p *Provider) { p.endpointing = d }
}

// WithHTTPClient replaces the client used for pre-recorded requests.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.client = c }
}

// Provider implements stt.Provider and stt.Transcriber.
type Provider struct {
	apiKey     string
	model      string
	language   string
	sampleRate int
	endpoint    string
	endpointing time.Duration
	client      *http.Client
}

// New creates a new Deepgram Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:     apiKey,
		model:      defaultModel,
		language:   defaultLanguage,
		sampleRate: defaultSampleRate,
		endpoint:   defaultEndpoint,
		client:     &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// StartStream opens a streaming transcription session with Deepgram.
func (p *Provider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	wsURL, err := p.listenURL(cfg, true)
	if err != nil {
		return nil, fmt.Errorf("deepgram: build URL: %w", err)
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+p.apiKey)

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{HTTPHeader: headers})
	if err != nil {
		return nil, fmt.Errorf("deepgram: dial: %w", err)
	}

	sess := &session{
		conn:     conn,
		partials: make(chan stt.Transcript, 64),
		finals:   make(chan stt.Transcript, 64),
		audio:    make(chan []byte, 256),
		done:     make(chan struct{}),
	}
	sess.wg.Add(2)
	go sess.readLoop(ctx)
	go sess.writeLoop(ctx)
	return sess, nil
}

// listenURL builds the listen URL. Streaming URLs switch to ws/wss and carry
// the raw PCM format; pre-recorded requests send a WAV body instead.
func (p *Provider) listenURL(cfg stt.StreamConfig, stream bool) (string, error) {
	u, err := url.Parse(p.endpoint)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("model", p.model)
	q.Set("language", cmp.Or(cfg.Language, p.language))
	q.Set("punctuate", "true")
	p.addKeywords(q, cfg.Keywords)

	if !stream {
		q.Set("smart_format", "true")
		u.RawQuery = q.Encode()
		return u.String(), nil
	}

	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	}
	q.Set("interim_results", "true")
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(cmp.Or(cfg.SampleRate, p.sampleRate)))
	if cfg.Channels > 0 {
		q.Set("channels", strconv.Itoa(cfg.Channels))
	}
	if p.endpointing > 0 {
		q.Set("endpointing", strconv.Itoa(int(p.endpointing/time.Millisecond)))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// addKeywords encodes boosts in the parameter the model family accepts:
// nova-3 takes plain keyterms, older models take word:boost pairs.
func (p *Provider) addKeywords(q url.Values, kws []stt.KeywordBoost) {
	keyterm := strings.HasPrefix(p.model, "nova-3")
	for _, kw := range kws {
		if keyterm {
			q.Add("keyterm", kw.Keyword)
			continue
		}
		q.Add("keywords", fmt.Sprintf("%s:%g", kw.Keyword, kw.Boost))
	}
}

// Transcribe implements [stt.Transcriber] via the pre-recorded API.
func (p *Provider) Transcribe(ctx context.Context, clip audio.Clip) (string, error) {
	wav, err := audio.EncodeWAV(clip)
	if err != nil {
		return "", fmt.Errorf("deepgram: %w", err)
	}
	target, err := p.listenURL(stt.StreamConfig{}, false)
	if err != nil {
		return "", fmt.Errorf("deepgram: parse endpoint: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(wav))
	if err != nil {
		return "", fmt.Errorf("deepgram: create request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+p.apiKey)
	req.Header.Set("Content-Type", "audio/wav")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("deepgram: transcribe: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return "", fmt.Errorf("deepgram: HTTP %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
	}

	var out struct {
		Results struct {
			Channels []struct {
				Alternatives []struct {
					Transcript string `json:"transcript"`
				} `json:"alternatives"`
			} `json:"channels"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("deepgram: decode response: %w", err)
	}
	if len(out.Results.Channels) == 0 || len(out.Results.Channels[0].Alternatives) == 0 {
		return "", nil
	}
	return strings.TrimSpace(out.Results.Channels[0].Alternatives[0].Transcript), nil
}

// ---- session ----

// deepgramResponse is the JSON structure of a streaming Results event.
type deepgramResponse struct {
	Type     string  `json:"type"`
	IsFinal  bool    `json:"is_final"`
	Start    float64 `json:"start"`
	Duration float64 `json:"duration"`
	Channel  struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
			Words      []struct {
				Word       string  `json:"word"`
				Start      float64 `json:"start"`
				End        float64 `json:"end"`
				Confidence float64 `json:"confidence"`
			} `json:"words"`
		} `json:"alternatives"`
	} `json:"channel"`
}

// session is a live Deepgram streaming session.
type session struct {
	conn     *websocket.Conn
	partials chan stt.Transcript
	finals   chan stt.Transcript
	audio    chan []byte

	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

func (s *session) SendAudio(chunk []byte) error {
	select {
	case <-s.done:
		return errClosed
	default:
	}
	select {
	case s.audio <- chunk:
		return nil
	case <-s.done:
		return errClosed
	}
}

func (s *session) Partials() <-chan stt.Transcript { return s.partials }
func (s *session) Finals() <-chan stt.Transcript   { return s.finals }

// SetKeywords is unsupported: Deepgram fixes keywords at connect time.
// Callers reconnect with a new StreamConfig instead.
func (s *session) SetKeywords([]stt.KeywordBoost) error {
	return fmt.Errorf("deepgram: mid-session keywords: %w", stt.ErrNotSupported)
}

// Close asks Deepgram to flush and waits for the remote close, giving up
// after closeTimeout.
func (s *session) Close() error {
	s.once.Do(func() {
		close(s.done)
		ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()
		_ = s.conn.Write(ctx, websocket.MessageText, []byte(`{"type":"CloseStream"}`))

		finished := make(chan struct{})
		go func() {
			s.wg.Wait()
			close(finished)
		}()
		select {
		case <-finished:
			s.conn.Close(websocket.StatusNormalClosure, "session closed")
		case <-ctx.Done():
			s.conn.CloseNow()
			<-finished
		}
	})
	return nil
}

// writeLoop forwards audio as binary frames and sends KeepAlive while idle
// so Deepgram does not drop the stream during long pauses.
func (s *session) writeLoop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()
	idle := true
	for {
		select {
		case chunk := <-s.audio:
			idle = false
			if err := s.conn.Write(ctx, websocket.MessageBinary, chunk); err != nil {
				return
			}
		case <-ticker.C:
			if idle {
				if err := s.conn.Write(ctx, websocket.MessageText, []byte(`{"type":"KeepAlive"}`)); err != nil {
					return
				}
			}
			idle = true
		case <-ctx.Done():
			return
		case <-s.done:
			for {
				select {
				case chunk := <-s.audio:
					_ = s.conn.Write(ctx, websocket.MessageBinary, chunk)
				default:
					return
				}
			}
		}
	}
}

// readLoop dispatches Results events until the connection ends.
func (s *session) readLoop(ctx context.Context) {
	defer s.wg.Done()
	defer close(s.partials)
	defer close(s.finals)

	for {
		_, msg, err := s.conn.Read(ctx)
		if err != nil {
			return
		}
		t, ok := parseDeepgramResponse(msg)
		if !ok {
			continue
		}
		out := s.partials
		if t.IsFinal {
			out = s.finals
		}
		select {
		case out <- t:
		case <-s.done:
			// Reader gone; keep draining so the remote close is observed.
		}
	}
}

// parseDeepgramResponse turns a streaming message into a Transcript.
// Non-Results events and empty transcripts are ignored.
func parseDeepgramResponse(data []byte) (stt.Transcript, bool) {
	var resp deepgramResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return stt.Transcript{}, false
	}
	if resp.Type != "Results" || len(resp.Channel.Alternatives) == 0 {
		return stt.Transcript{}, false
	}
	alt := resp.Channel.Alternatives[0]
	if strings.TrimSpace(alt.Transcript) == "" {
		return stt.Transcript{}, false
	}

	words := make([]stt.WordDetail, 0, len(alt.Words))
	for _, w := range alt.Words {
		words = append(words, stt.WordDetail{
			Word:       w.Word,
			Start:      seconds(w.Start),
			End:        seconds(w.End),
			Confidence: w.Confidence,
		})
	}
	return stt.Transcript{
		Text:       alt.Transcript,
		IsFinal:    resp.IsFinal,
		Confidence: alt.Confidence,
		Words:      words,
		Timestamp:  seconds(resp.Start),
		Duration:   seconds(resp.Duration),
	}, true
}

func seconds(f float64) time.Duration { return time.Duration(f * float64(time.Second)) }
