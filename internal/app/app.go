// Package app wires all VerseCue subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves the operator HTTP surface and keeps the speech
// stream alive, and Shutdown tears everything down in order.
//
// For testing, inject doubles via functional options (WithStore,
// WithSurface, etc.). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/versecue/internal/bible"
	"github.com/MrWong99/versecue/internal/capture"
	"github.com/MrWong99/versecue/internal/config"
	"github.com/MrWong99/versecue/internal/detect"
	"github.com/MrWong99/versecue/internal/detect/llmdetect"
	"github.com/MrWong99/versecue/internal/display"
	"github.com/MrWong99/versecue/internal/display/discord"
	"github.com/MrWong99/versecue/internal/health"
	"github.com/MrWong99/versecue/internal/library"
	"github.com/MrWong99/versecue/internal/mcpserver"
	"github.com/MrWong99/versecue/internal/observe"
	"github.com/MrWong99/versecue/internal/queue"
	"github.com/MrWong99/versecue/internal/resilience"
	"github.com/MrWong99/versecue/internal/transcript"
	"github.com/MrWong99/versecue/internal/transcript/phonetic"
	"github.com/MrWong99/versecue/internal/worship"
	"github.com/MrWong99/versecue/pkg/audio"
	"github.com/MrWong99/versecue/pkg/provider/llm"
	"github.com/MrWong99/versecue/pkg/provider/lyrics"
	"github.com/MrWong99/versecue/pkg/provider/stt"
)

// shutdownGrace bounds how long Run waits for in-flight requests once its
// context is cancelled.
const shutdownGrace = 5 * time.Second

// Providers holds one interface value per provider slot. Nil means the
// provider is not configured. Populated by main.go via the config registry.
type Providers struct {
	LLM         llm.Provider
	STT         stt.Provider
	Transcriber stt.Transcriber

	// Lyrics lists the external lyric search backends in fallback order.
	Lyrics []NamedLyrics
}

// NamedLyrics pairs a lyric provider with the registry name it was built
// from.
type NamedLyrics struct {
	Name     string
	Provider lyrics.Provider
}

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers
	log       *slog.Logger
	logLevel  *slog.LevelVar
	metrics   *observe.Metrics

	// Subsystems, initialised in New and torn down in Shutdown.
	store       library.Store
	verses      *bible.Local
	hub         *display.Hub
	surfaces    []display.Surface
	queue       *queue.Queue
	llmBreaker  *resilience.CircuitBreaker
	detector    *llmdetect.Detector
	pipeline    *detect.Pipeline
	transcript  *transcript.Aggregator
	supervisor  *transcript.Supervisor
	lyricsCB    *resilience.CircuitBreaker
	fetcher     lyrics.Fetcher
	lyricsChain *resilience.LyricsFallback
	worship     *worship.Orchestrator
	recorder    *worship.Recorder
	sessions    *SessionManager
	mcp         *mcpserver.Server
	health      *health.Handler
	handler     http.Handler
	authSecret  []byte
	cfgMu       sync.Mutex
	reloadCount int

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithStore injects a song library instead of opening one from config.
func WithStore(s library.Store) Option {
	return func(a *App) { a.store = s }
}

// WithSurface adds a display surface next to the WebSocket hub.
func WithSurface(s display.Surface) Option {
	return func(a *App) { a.surfaces = append(a.surfaces, s) }
}

// WithMetrics sets the metrics recorder. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(a *App) { a.log = l }
}

// WithLogLevel hands the App the level variable behind the root logger so
// a config reload can change verbosity.
func WithLogLevel(v *slog.LevelVar) Option {
	return func(a *App) { a.logLevel = v }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry). Use Option
// functions to inject test doubles.
//
// New performs all initialisation synchronously: library connection, display
// surfaces, the review queue, detection, the transcript stream, song
// identification and the HTTP routes. It does not start any goroutine; Run
// does.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil {
		providers = &Providers{}
	}
	a := &App{
		cfg:        cfg,
		providers:  providers,
		log:        slog.Default(),
		authSecret: []byte(cfg.Server.AuthSecret),
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. Song library ──────────────────────────────────────────────────
	if err := a.initLibrary(ctx); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init library: %w", err)
	}

	// ── 2. Verse text ────────────────────────────────────────────────────
	if err := a.initBible(); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init bible: %w", err)
	}

	// ── 3. Display surfaces ──────────────────────────────────────────────
	surface, err := a.initDisplay()
	if err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init display: %w", err)
	}

	// ── 4. Review queue ──────────────────────────────────────────────────
	a.initQueue(surface)

	// ── 5. Detection + transcript ────────────────────────────────────────
	a.initDetection()

	// ── 6. Song identification ───────────────────────────────────────────
	a.initWorship()

	// ── 7. Session controls, MCP, health, routes ─────────────────────────
	a.sessions = NewSessionManager(SessionManagerConfig{
		Queue:      a.queue,
		Pipeline:   a.pipeline,
		Transcript: a.transcript,
		Supervisor: a.supervisor,
		Logger:     a.log,
	})
	a.initMCP()
	a.initHealth()
	a.handler = a.routes()

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initBible prepares the verse file. Loading is lazy, so a missing file only
// surfaces on the first lookup; eager loading here reports it at startup.
func (a *App) initBible() error {
	if a.cfg.Bible.Path == "" {
		a.log.Warn("no bible file configured, verses display without text")
		return nil
	}
	a.verses = bible.NewLocal(a.cfg.Bible.Path,
		bible.WithTranslation(a.cfg.Bible.Translation),
		bible.WithLogger(a.log),
	)
	return a.verses.Load()
}

// initDisplay builds the WebSocket hub and any configured mirror surfaces and
// returns the fan-out the queue pushes to.
func (a *App) initDisplay() (display.Surface, error) {
	a.hub = display.NewHub(
		display.WithOriginPatterns(a.cfg.Server.AllowedOrigins...),
		display.WithHubMetrics(a.metrics),
		display.WithHubLogger(a.log),
	)
	multi := display.Multi{a.hub}
	multi = append(multi, a.surfaces...)

	if dc := a.cfg.Display.Discord; dc != nil {
		s, err := discord.Open(dc.Token, dc.ChannelID)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, s.Close)
		multi = append(multi, s)
		a.log.Info("discord display enabled", "channel", dc.ChannelID)
	}
	return multi, nil
}

func (a *App) initQueue(surface display.Surface) {
	opts := []queue.Option{
		queue.WithSurface(surface),
		queue.WithAutoApprove(a.cfg.Queue.AutoApprove),
		queue.WithAutoApproveThreshold(a.cfg.Queue.AutoApproveThreshold),
		queue.WithMetrics(a.metrics),
		queue.WithLogger(a.log),
	}
	if a.verses != nil {
		opts = append(opts, queue.WithResolver(a.verses))
	}
	a.queue = queue.New(opts...)
}

// initDetection builds the sermon path: speech stream → transcript
// aggregator → detection pipeline → review queue.
func (a *App) initDetection() {
	dc := a.cfg.Detection

	pipeOpts := []detect.PipelineOption{
		detect.WithFloor(dc.ConfidenceFloor),
		detect.WithCooldown(dc.Cooldown),
		detect.WithPhraseMatching(dc.PhraseMatching),
		detect.WithMinChars(dc.MinFragmentChars),
		detect.WithMetrics(a.metrics),
	}
	if a.providers.LLM != nil {
		a.llmBreaker = resilience.NewCircuitBreaker(a.breakerConfig("llm-detect"))
		a.detector = llmdetect.New(a.providers.LLM,
			llmdetect.WithFloor(dc.ConfidenceFloor),
			llmdetect.WithSearchFloor(dc.SearchConfidenceFloor),
			llmdetect.WithMinChars(dc.MinFragmentChars),
			llmdetect.WithTimeout(dc.LLMTimeout),
			llmdetect.WithBreaker(a.llmBreaker),
			llmdetect.WithLogger(a.log),
		)
		pipeOpts = append(pipeOpts, detect.WithDetector(a.detector))
	}
	a.pipeline = detect.NewPipeline(a.queue, pipeOpts...)
	a.pipeline.SetLLMEnabled(dc.LLMEnabled)
	// Detection stays off until an operator starts a session.
	a.pipeline.Pause()
	a.closers = append(a.closers, func() error { a.pipeline.Close(); return nil })

	aggOpts := []transcript.AggregatorOption{
		transcript.WithHistory(a.cfg.Transcript.History),
	}
	if dc.PhoneticCorrection {
		aggOpts = append(aggOpts, transcript.WithCorrector(phonetic.New()))
	}
	a.transcript = transcript.NewAggregator(a.pipeline, aggOpts...)

	if a.providers.STT != nil {
		a.supervisor = transcript.NewSupervisor(a.providers.STT, a.transcript,
			transcript.WithSupervisorMetrics(a.metrics),
			transcript.WithSupervisorLogger(a.log),
		)
	}
}

// initWorship builds song identification. External lyric providers are
// grouped behind one fallback so the primary's outage moves traffic to the
// next provider.
func (a *App) initWorship() {
	wc := a.cfg.Worship

	transcriber := a.providers.Transcriber
	if transcriber == nil {
		transcriber = noTranscriber{}
	}
	opts := []worship.Option{
		worship.WithOrganization(a.cfg.Library.Organization),
		worship.WithSettings(worship.Settings{
			MinAudioBytes:      wc.MinAudioBytes,
			MinTranscriptChars: wc.MinTranscriptChars,
			MaxResults:         wc.MaxResults,
			StrategyTimeout:    wc.StrategyTimeout,
			LLMIdentify:        wc.LLMIdentify,
		}),
		worship.WithMetrics(a.metrics),
		worship.WithLogger(a.log),
	}
	if a.providers.LLM != nil {
		opts = append(opts, worship.WithLLM(a.providers.LLM))
	}
	if p := a.lyricsProvider(); p != nil {
		a.lyricsCB = resilience.NewCircuitBreaker(a.breakerConfig("lyrics"))
		opts = append(opts, worship.WithLyrics(p), worship.WithLyricsBreaker(a.lyricsCB))
	}
	a.worship = worship.New(a.store, transcriber, opts...)

	a.recorder = worship.NewRecorder(a.worship,
		worship.WithFormat(audio.STTFormat),
		worship.WithAutoStop(wc.AutoStop),
		worship.WithOnChange(func(s worship.Session) {
			a.log.Debug("recording state changed", "status", s.Status, "matches", len(s.Matches))
		}),
		worship.WithRecorderLogger(a.log),
	)
	a.closers = append(a.closers, func() error { a.recorder.Close(); return nil })
}

// lyricsProvider chains the configured lyric services in order. The same
// chain fetches full lyrics for a chosen title when any service can.
func (a *App) lyricsProvider() lyrics.Provider {
	entries := a.providers.Lyrics
	if len(entries) == 0 {
		return nil
	}
	fb := resilience.NewLyricsFallback(entries[0].Provider, entries[0].Name,
		resilience.FallbackConfig{
			CircuitBreaker: a.breakerConfig(""),
			OnAttempt: func(name string, err error) {
				a.metrics.RecordProviderCall(context.Background(), name, "lyrics", err)
			},
		})
	for _, e := range entries[1:] {
		fb.AddFallback(e.Name, e.Provider)
	}
	if fb.CanFetch() {
		a.fetcher = fb
	}
	a.lyricsChain = fb
	return fb
}

// breakerConfig reports every circuit that opens to Sentry, so a provider
// outage during a service is visible afterwards.
func (a *App) breakerConfig(name string) resilience.CircuitBreakerConfig {
	return resilience.CircuitBreakerConfig{
		Name: name,
		OnStateChange: func(name string, _, to resilience.State) {
			if to == resilience.StateOpen {
				observe.CaptureError(context.Background(),
					fmt.Errorf("app: circuit %s opened", name),
					map[string]string{"circuit": name})
			}
		},
	}
}

func (a *App) initMCP() {
	opts := []mcpserver.Option{
		mcpserver.WithSongs(a.worship),
		mcpserver.WithLogger(a.log),
	}
	if a.verses != nil {
		opts = append(opts, mcpserver.WithBible(a.verses))
	}
	a.mcp = mcpserver.New(a.queue, opts...)
}

func (a *App) initHealth() {
	checks := []health.Checker{health.Ping("library", a.store)}
	if a.llmBreaker != nil {
		checks = append(checks, health.Circuit("llm", a.llmBreaker))
	}
	for kind, p := range map[string]any{"llm": a.providers.LLM, "stt": a.providers.STT, "transcriber": a.providers.Transcriber} {
		if c, ok := p.(breakered); ok {
			checks = append(checks, health.Circuits(kind, c.Breakers())...)
		}
	}
	if a.lyricsCB != nil {
		checks = append(checks, health.Circuit("lyrics", a.lyricsCB))
		checks = append(checks, health.Circuits("lyrics", a.lyricsChain.Breakers())...)
	}
	if a.verses != nil {
		checks = append(checks, health.Func("bible", func() (bool, string) {
			if err := a.verses.Load(); err != nil {
				return false, err.Error()
			}
			return true, ""
		}))
	}
	a.health = health.New(checks...)
}

// captureTargets routes ingested audio: sermon audio feeds the live stream,
// worship audio feeds the recorder.
func (a *App) captureTargets() map[string]capture.Target {
	targets := map[string]capture.Target{
		"worship": {Format: a.recorder.Format(), Sink: capture.SinkFunc(a.recorder.Append)},
	}
	if a.supervisor != nil {
		targets["sermon"] = capture.Target{Format: audio.STTFormat, Sink: capture.SinkFunc(a.supervisor.SendAudio)}
	}
	return targets
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Handler returns the root HTTP handler with all middleware applied.
func (a *App) Handler() http.Handler { return a.handler }

// Queue returns the review queue.
func (a *App) Queue() *queue.Queue { return a.queue }

// Sessions returns the sermon session controls.
func (a *App) Sessions() *SessionManager { return a.sessions }

// Recorder returns the worship recording session.
func (a *App) Recorder() *worship.Recorder { return a.recorder }

// Transcript returns the live transcript aggregator.
func (a *App) Transcript() *transcript.Aggregator { return a.transcript }

// Pipeline returns the detection pipeline.
func (a *App) Pipeline() *detect.Pipeline { return a.pipeline }

// metricsHandler serves the Prometheus registry the OTel exporter writes to.
func metricsHandler() http.Handler { return promhttp.Handler() }

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves HTTP on the configured address and supervises the speech
// stream until ctx is cancelled. It returns nil on a clean shutdown.
func (a *App) Run(ctx context.Context) error {
	lis, err := net.Listen("tcp", a.cfg.Server.ListenAddr)
	if err != nil {
		return fmt.Errorf("app: listen %s: %w", a.cfg.Server.ListenAddr, err)
	}
	return a.Serve(ctx, lis)
}

// Serve is Run on an existing listener.
func (a *App) Serve(ctx context.Context, lis net.Listener) error {
	g, ctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	if a.supervisor != nil {
		g.Go(func() error {
			if err := a.supervisor.Run(ctx); !errors.Is(err, context.Canceled) {
				return fmt.Errorf("app: stt supervisor: %w", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		a.log.Info("http server listening", "addr", lis.Addr().String())
		if err := srv.Serve(lis); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("app: serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return srv.Shutdown(sctx)
	})

	err := g.Wait()
	if err != nil {
		observe.CaptureError(context.Background(), err, map[string]string{"component": "server"})
	}
	return err
}

// ─── Reload ──────────────────────────────────────────────────────────────────

// Reload applies the hot-reloadable parts of next. Sections that need a
// restart are logged and otherwise ignored.
func (a *App) Reload(next *config.Config) config.ConfigDiff {
	a.cfgMu.Lock()
	defer a.cfgMu.Unlock()

	d := config.Diff(a.cfg, next)
	if d.LogLevelChanged && a.logLevel != nil {
		a.logLevel.Set(slogLevel(d.NewLogLevel))
	}
	if d.DetectionChanged {
		a.pipeline.SetFloor(d.Detection.ConfidenceFloor)
		a.pipeline.Cooldown().SetWindow(d.Detection.Cooldown)
		a.pipeline.SetLLMEnabled(d.Detection.LLMEnabled)
		if a.detector != nil {
			a.detector.SetFloors(d.Detection.ConfidenceFloor, d.Detection.SearchConfidenceFloor)
		}
	}
	if d.QueueChanged {
		a.queue.SetAutoApprove(d.Queue.AutoApprove)
		a.queue.SetAutoApproveThreshold(d.Queue.AutoApproveThreshold)
	}
	if d.WorshipChanged {
		wc := d.Worship
		a.worship.Apply(worship.Settings{
			MinAudioBytes:      wc.MinAudioBytes,
			MinTranscriptChars: wc.MinTranscriptChars,
			MaxResults:         wc.MaxResults,
			StrategyTimeout:    wc.StrategyTimeout,
			LLMIdentify:        wc.LLMIdentify,
		})
		a.recorder.SetAutoStop(wc.AutoStop)
	}
	if len(d.RestartRequired) > 0 {
		a.log.Warn("config changes need a restart", "sections", d.RestartRequired)
	}

	// Keep restart-only sections as running so the next diff stays accurate.
	cur := *a.cfg
	cur.Server.LogLevel = next.Server.LogLevel
	cur.Detection.ConfidenceFloor = next.Detection.ConfidenceFloor
	cur.Detection.SearchConfidenceFloor = next.Detection.SearchConfidenceFloor
	cur.Detection.Cooldown = next.Detection.Cooldown
	cur.Detection.LLMEnabled = next.Detection.LLMEnabled
	cur.Queue = next.Queue
	cur.Worship = next.Worship
	a.cfg = &cur
	a.reloadCount++

	a.log.Info("config reloaded", "changed", d.Any(), "reloads", a.reloadCount)
	return d
}

// slogLevel maps a config level onto slog.
func slogLevel(l config.LogLevel) slog.Level {
	switch l {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems in init order. It respects the context
// deadline: if ctx expires before all closers finish, remaining closers are
// skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		a.log.Info("shutting down", "closers", len(a.closers))

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				a.log.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				a.log.Warn("closer error", "index", i, "err", err)
			}
		}

		a.log.Info("shutdown complete")
	})
	return shutdownErr
}

// closeAll runs the closers gathered so far after a failed New.
func (a *App) closeAll() {
	for _, c := range a.closers {
		_ = c()
	}
}

// breakered is implemented by provider fallback chains.
type breakered interface {
	Breakers() []*resilience.CircuitBreaker
}

// noTranscriber stands in when no batch transcription backend is configured
// so identification fails with a clear reason instead of a nil call.
type noTranscriber struct{}

var errNoTranscriber = errors.New("app: no transcriber configured")

func (noTranscriber) Transcribe(context.Context, audio.Clip) (string, error) {
	return "", errNoTranscriber
}
