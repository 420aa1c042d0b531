package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/MrWong99/versecue/internal/bible"
	"github.com/MrWong99/versecue/internal/capture"
	"github.com/MrWong99/versecue/internal/detect"
	"github.com/MrWong99/versecue/internal/detect/parser"
	"github.com/MrWong99/versecue/internal/library"
	"github.com/MrWong99/versecue/internal/observe"
	"github.com/MrWong99/versecue/internal/queue"
	"github.com/MrWong99/versecue/internal/scripture"
	"github.com/MrWong99/versecue/internal/worship"
	"github.com/MrWong99/versecue/pkg/audio"
)

// Request body limits.
const (
	maxJSONBody  = 1 << 20
	maxAudioBody = 32 << 20
)

// fetchTimeout bounds the lyric lookup made when a song is queued.
const fetchTimeout = 5 * time.Second

// routes builds the operator HTTP surface. Every mutating /api route passes
// through withAuth.
func (a *App) routes() http.Handler {
	mux := http.NewServeMux()

	// Sermon session
	mux.HandleFunc("GET /api/session", a.handleSession)
	mux.HandleFunc("POST /api/session/{action}", a.withAuth(a.handleSessionAction))
	mux.HandleFunc("POST /api/fragments", a.withAuth(a.handleFragment))

	// Review queue and display
	mux.HandleFunc("GET /api/queue", a.handleQueue)
	mux.HandleFunc("POST /api/queue/next", a.withAuth(a.handleQueueNext))
	mux.HandleFunc("POST /api/queue/{id}/{action}", a.withAuth(a.handleQueueAction))
	mux.HandleFunc("DELETE /api/queue/{id}", a.withAuth(a.handleQueueRemove))
	mux.HandleFunc("POST /api/display/clear", a.withAuth(a.handleDisplayClear))

	// Scripture lookup
	mux.HandleFunc("GET /api/verses", a.handleVerses)
	mux.HandleFunc("POST /api/search", a.withAuth(a.handleSearch))

	// Worship
	mux.HandleFunc("GET /api/worship/recording", a.handleRecording)
	mux.HandleFunc("POST /api/worship/recording", a.withAuth(a.handleRecordingStart))
	mux.HandleFunc("POST /api/worship/recording/audio", a.withAuth(a.handleRecordingAudio))
	mux.HandleFunc("POST /api/worship/recording/stop", a.withAuth(a.handleRecordingStop))
	mux.HandleFunc("DELETE /api/worship/recording", a.withAuth(a.handleRecordingReset))
	mux.HandleFunc("POST /api/worship/identify", a.withAuth(a.handleIdentify))
	mux.HandleFunc("POST /api/worship/matches/{index}/queue", a.withAuth(a.handleQueueMatch))

	// Streams
	mux.Handle("GET /display/ws", a.hub)
	mux.Handle("GET /capture/ws", capture.NewHandler(a.captureTargets(),
		capture.WithOrigins(a.cfg.Server.AllowedOrigins...),
		capture.WithLogger(a.log),
	))
	mux.Handle("/mcp", a.mcp.Handler())

	// Operations
	mux.Handle("GET /metrics", metricsHandler())
	a.health.Register(mux)

	return observe.Recover(a.withSessionContext(observe.Middleware(a.metrics)(mux)))
}

// withSessionContext tags each request with the running sermon session, so
// its span and logs can be grouped by service.
func (a *App) withSessionContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := a.sessions.Info().ID; id != "" {
			r = r.WithContext(observe.WithSession(r.Context(), id))
		}
		next.ServeHTTP(w, r)
	})
}

// ─── Sermon session ──────────────────────────────────────────────────────────

func (a *App) handleSession(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.sessions.Snapshot())
}

func (a *App) handleSessionAction(w http.ResponseWriter, r *http.Request) {
	var (
		info SessionInfo
		err  error
	)
	switch r.PathValue("action") {
	case "start":
		info, err = a.sessions.Start()
	case "end":
		info, err = a.sessions.End()
	case "pause":
		info, err = a.sessions.Pause()
	case "resume":
		info, err = a.sessions.Resume()
	default:
		writeError(w, http.StatusNotFound, "unknown session action")
		return
	}
	if err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	observe.Logger(r.Context()).Info("session control", "action", r.PathValue("action"), "operator", Operator(r.Context()))
	writeJSON(w, http.StatusOK, info)
}

type fragmentRequest struct {
	Text    string `json:"text"`
	IsFinal bool   `json:"is_final"`
}

// handleFragment accepts transcript text from an external speech source.
func (a *App) handleFragment(w http.ResponseWriter, r *http.Request) {
	var req fragmentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}
	a.transcript.Accept(r.Context(), detect.Fragment{Text: req.Text, Final: req.IsFinal, At: time.Now()})
	w.WriteHeader(http.StatusAccepted)
}

// ─── Review queue ────────────────────────────────────────────────────────────

type queueResponse struct {
	Pending     []queue.Item `json:"pending"`
	Approved    []queue.Item `json:"approved"`
	Displayed   []queue.Item `json:"displayed"`
	Current     *queue.Item  `json:"current,omitempty"`
	Stats       queue.Stats  `json:"stats"`
	AutoApprove bool         `json:"auto_approve"`
}

func (a *App) handleQueue(w http.ResponseWriter, _ *http.Request) {
	resp := queueResponse{
		Pending:     orEmpty(a.queue.Pending()),
		Approved:    orEmpty(a.queue.Approved()),
		Displayed:   orEmpty(a.queue.Displayed()),
		Stats:       a.queue.Stats(),
		AutoApprove: a.queue.AutoApprove(),
	}
	if cur, ok := a.queue.Current(); ok {
		resp.Current = &cur
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *App) handleQueueAction(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var (
		it  queue.Item
		err error
	)
	switch r.PathValue("action") {
	case "approve":
		it, err = a.queue.Approve(id)
	case "dismiss":
		it, err = a.queue.Dismiss(id)
	case "display":
		it, err = a.queue.Display(r.Context(), id)
	default:
		writeError(w, http.StatusNotFound, "unknown queue action")
		return
	}
	if err != nil {
		writeError(w, queueStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, it)
}

func (a *App) handleQueueRemove(w http.ResponseWriter, r *http.Request) {
	it, err := a.queue.Remove(r.PathValue("id"))
	if err != nil {
		writeError(w, queueStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, it)
}

func (a *App) handleQueueNext(w http.ResponseWriter, r *http.Request) {
	it, err := a.queue.DisplayNext(r.Context())
	if err != nil {
		writeError(w, queueStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, it)
}

func (a *App) handleDisplayClear(w http.ResponseWriter, r *http.Request) {
	if err := a.queue.ClearDisplay(r.Context()); err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func queueStatus(err error) int {
	switch {
	case errors.Is(err, queue.ErrNotFound), errors.Is(err, queue.ErrEmpty):
		return http.StatusNotFound
	case errors.Is(err, queue.ErrInvalidTransition):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// ─── Scripture lookup ────────────────────────────────────────────────────────

func (a *App) handleVerses(w http.ResponseWriter, r *http.Request) {
	if a.verses == nil {
		writeError(w, http.StatusServiceUnavailable, "no bible text configured")
		return
	}
	cands := parser.Parse(r.URL.Query().Get("ref"))
	if len(cands) == 0 {
		writeError(w, http.StatusBadRequest, "unrecognised reference")
		return
	}
	v, err := a.verses.Lookup(r.Context(), cands[0].Reference)
	switch {
	case errors.Is(err, bible.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, v)
}

type searchRequest struct {
	Query string `json:"query"`
	// Enqueue adds every result to the review queue as a pending item.
	Enqueue bool `json:"enqueue"`
}

type searchResponse struct {
	Source     string                `json:"source"`
	Candidates []scripture.Candidate `json:"candidates"`
	Queued     []queue.Item          `json:"queued,omitempty"`
}

// Search sources.
const (
	searchParser = "parser"
	searchLLM    = "llm"
	searchNone   = "none"
)

// handleSearch resolves a typed query: an explicit citation parses directly,
// anything else goes to the language model.
func (a *App) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	resp := searchResponse{Source: searchParser, Candidates: parser.Parse(req.Query)}
	if len(resp.Candidates) == 0 {
		resp.Source = searchNone
		if a.detector != nil {
			resp.Source = searchLLM
			resp.Candidates = a.detector.Search(r.Context(), req.Query)
		}
	}
	if resp.Candidates == nil {
		resp.Candidates = []scripture.Candidate{}
	}
	if req.Enqueue {
		for _, c := range resp.Candidates {
			resp.Queued = append(resp.Queued, a.queue.Add(c))
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// ─── Worship ─────────────────────────────────────────────────────────────────

func (a *App) handleRecording(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.recorder.Snapshot())
}

func (a *App) handleRecordingStart(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.recorder.Start())
}

func (a *App) handleRecordingStop(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.recorder.Stop())
}

func (a *App) handleRecordingReset(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.recorder.Reset())
}

// handleRecordingAudio appends a PCM16 chunk. The chunk is in the recorder's
// format unless rate and channels query parameters say otherwise.
func (a *App) handleRecordingAudio(w http.ResponseWriter, r *http.Request) {
	format, err := queryFormat(r, a.recorder.Format())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	pcm, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxAudioBody))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, err.Error())
		return
	}
	clip, err := audio.Clip{Format: format, PCM: pcm}.Convert(a.recorder.Format())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.recorder.Append(clip.PCM); err != nil {
		if errors.Is(err, worship.ErrNotRecording) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type identifyResponse struct {
	Matches []library.Match `json:"matches"`
}

// handleIdentify runs one-shot identification on an uploaded WAV clip.
func (a *App) handleIdentify(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxAudioBody))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, err.Error())
		return
	}
	clip, err := audio.DecodeWAV(bytes.NewReader(data))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if clip, err = clip.Convert(audio.STTFormat); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	matches, err := a.worship.Identify(r.Context(), clip)
	if err != nil {
		observe.Logger(r.Context()).Info("identification failed", "err", err)
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
			"error":  err.Error(),
			"reason": worship.Reason(err),
		})
		return
	}
	if matches == nil {
		matches = []library.Match{}
	}
	writeJSON(w, http.StatusOK, identifyResponse{Matches: matches})
}

// handleQueueMatch enqueues one match of the last recording as a song item,
// fetching its lyrics first when the match carries none.
func (a *App) handleQueueMatch(w http.ResponseWriter, r *http.Request) {
	i, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "index must be a number")
		return
	}
	m, err := a.recorder.Match(i)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if m.Song.Lyrics == "" && a.fetcher != nil {
		ctx, cancel := context.WithTimeout(r.Context(), fetchTimeout)
		text, err := a.fetcher.Fetch(ctx, m.Song.Title, m.Song.Artist)
		cancel()
		if err != nil {
			observe.Logger(r.Context()).Warn("lyrics fetch failed", "title", m.Song.Title, "err", err)
		}
		m.Song.Lyrics = text
	}
	writeJSON(w, http.StatusCreated, a.queue.AddSong(m))
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

// queryFormat reads optional rate and channels query parameters.
func queryFormat(r *http.Request, def audio.Format) (audio.Format, error) {
	f := def
	q := r.URL.Query()
	if v := q.Get("rate"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return f, errors.New("rate must be a positive integer")
		}
		f.SampleRate = n
	}
	if v := q.Get("channels"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 2 {
			return f, errors.New("channels must be 1 or 2")
		}
		f.Channels = n
	}
	return f, nil
}

// decodeJSON decodes a bounded JSON body into v. It writes a 400 and returns
// false on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func orEmpty(items []queue.Item) []queue.Item {
	if items == nil {
		return []queue.Item{}
	}
	return items
}

// writeJSON encodes v before committing status, so a value that cannot be
// encoded turns into a logged 500 instead of an empty success.
func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		observe.Logger(context.Background()).Error("encode response", "status", status, "err", err)
		status = http.StatusInternalServerError
		body = []byte(`{"error":"response encoding failed"}`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(append(body, '\n'))
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
