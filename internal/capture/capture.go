// Package capture ingests live audio over WebSocket.
//
// A client connects to the handler with ?target=<name> and sends one binary
// message per Opus packet (or raw PCM16 with ?codec=pcm). Each message is
// decoded, converted to the target's format and handed to its [Sink].
package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/coder/websocket"

	"github.com/MrWong99/versecue/pkg/audio"
)

// Codecs accepted in the codec query parameter.
const (
	CodecOpus = "opus"
	CodecPCM  = "pcm"
)

// defaultReadLimit fits the largest Opus packet and 100 ms of 48 kHz stereo
// PCM with room to spare.
const defaultReadLimit = 64 << 10

// Sink receives converted PCM.
type Sink interface {
	WriteAudio(pcm []byte) error
}

// SinkFunc adapts a function to [Sink].
type SinkFunc func(pcm []byte) error

// WriteAudio calls f.
func (f SinkFunc) WriteAudio(pcm []byte) error { return f(pcm) }

// Target is a named destination for captured audio.
type Target struct {
	// Format is the PCM format the sink expects.
	Format audio.Format
	Sink   Sink
}

// Option configures a [Handler].
type Option func(*Handler)

// WithOrigins sets the allowed Origin patterns for cross-origin clients.
func WithOrigins(patterns ...string) Option {
	return func(h *Handler) { h.origins = patterns }
}

// WithReadLimit caps the size of one message.
func WithReadLimit(n int64) Option {
	return func(h *Handler) { h.readLimit = n }
}

// WithLogger overrides the logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) { h.log = l }
}

// Handler is an http.Handler serving capture WebSockets.
type Handler struct {
	targets   map[string]Target
	origins   []string
	readLimit int64
	log       *slog.Logger
}

// NewHandler returns a Handler routing to targets by name.
func NewHandler(targets map[string]Target, opts ...Option) *Handler {
	h := &Handler{targets: targets, readLimit: defaultReadLimit, log: slog.Default()}
	for _, o := range opts {
		o(h)
	}
	return h
}

// decoder turns one message into PCM of a known format.
type decoder interface {
	decode(msg []byte) (audio.Clip, error)
}

type opusDecoder struct{ dec *audio.OpusDecoder }

func (d opusDecoder) decode(msg []byte) (audio.Clip, error) {
	pcm, err := d.dec.Decode(msg)
	if err != nil {
		return audio.Clip{}, err
	}
	return audio.Clip{PCM: pcm, Format: audio.OpusFormat}, nil
}

type pcmDecoder struct{ format audio.Format }

func (d pcmDecoder) decode(msg []byte) (audio.Clip, error) {
	return audio.Clip{PCM: msg, Format: d.format}, nil
}

func newDecoder(r *http.Request) (decoder, error) {
	q := r.URL.Query()
	switch codec := q.Get("codec"); codec {
	case "", CodecOpus:
		dec, err := audio.NewOpusDecoder()
		if err != nil {
			return nil, err
		}
		return opusDecoder{dec: dec}, nil
	case CodecPCM:
		f := audio.STTFormat
		if v := q.Get("rate"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				return nil, fmt.Errorf("invalid rate %q", v)
			}
			f.SampleRate = n
		}
		if v := q.Get("channels"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 || n > 2 {
				return nil, fmt.Errorf("invalid channels %q", v)
			}
			f.Channels = n
		}
		return pcmDecoder{format: f}, nil
	default:
		return nil, fmt.Errorf("unknown codec %q", codec)
	}
}

// ServeHTTP validates the query, upgrades the connection and pumps audio
// until the client disconnects. Undecodable messages and sink errors are
// logged and skipped.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("target")
	target, ok := h.targets[name]
	if !ok {
		http.Error(w, fmt.Sprintf("capture: unknown target %q", name), http.StatusBadRequest)
		return
	}
	dec, err := newDecoder(r)
	if err != nil {
		http.Error(w, "capture: "+err.Error(), http.StatusBadRequest)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.origins})
	if err != nil {
		h.log.Debug("capture websocket accept failed", "err", err)
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(h.readLimit)

	log := h.log.With("target", name)
	log.Info("capture connected", "remote", r.RemoteAddr)
	packets, err := h.pump(r.Context(), conn, dec, target, log)
	log.Info("capture disconnected", "packets", packets, "reason", err)
	conn.Close(websocket.StatusNormalClosure, "")
}

func (h *Handler) pump(ctx context.Context, conn *websocket.Conn, dec decoder, target Target, log *slog.Logger) (int, error) {
	var packets, dropped int
	for {
		typ, msg, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure || errors.Is(err, context.Canceled) {
				err = nil
			}
			return packets, err
		}
		if typ != websocket.MessageBinary {
			continue
		}
		packets++

		clip, err := dec.decode(msg)
		if err == nil {
			clip, err = clip.Convert(target.Format)
		}
		if err == nil {
			err = target.Sink.WriteAudio(clip.PCM)
		}
		if err != nil {
			dropped++
			// First failure, then every hundredth.
			if dropped%100 == 1 {
				log.Debug("capture packet dropped", "dropped", dropped, "err", err)
			}
		}
	}
}
