// Command versecue runs the live scripture and worship cue server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/versecue/internal/app"
	"github.com/MrWong99/versecue/internal/config"
	"github.com/MrWong99/versecue/internal/observe"
	"github.com/MrWong99/versecue/internal/resilience"
	"github.com/MrWong99/versecue/pkg/provider/llm"
	"github.com/MrWong99/versecue/pkg/provider/llm/anyllm"
	"github.com/MrWong99/versecue/pkg/provider/llm/openai"
	"github.com/MrWong99/versecue/pkg/provider/lyrics"
	"github.com/MrWong99/versecue/pkg/provider/lyrics/genius"
	"github.com/MrWong99/versecue/pkg/provider/lyrics/lrclib"
	"github.com/MrWong99/versecue/pkg/provider/stt"
	"github.com/MrWong99/versecue/pkg/provider/stt/deepgram"
	"github.com/MrWong99/versecue/pkg/provider/stt/whisper"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	issueFor := flag.String("issue-token", "", "print an operator token for the given subject and exit")
	tokenTTL := flag.Duration("token-ttl", 12*time.Hour, "lifetime of tokens printed by -issue-token (0 = no expiry)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "versecue: config file %q not found, copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "versecue: %v\n", err)
		}
		return 1
	}

	if *issueFor != "" {
		if cfg.Server.AuthSecret == "" {
			fmt.Fprintln(os.Stderr, "versecue: server.auth_secret is not set")
			return 1
		}
		tok, err := app.IssueToken(cfg.Server.AuthSecret, *issueFor, *tokenTTL)
		if err != nil {
			fmt.Fprintf(os.Stderr, "versecue: %v\n", err)
			return 1
		}
		fmt.Println(tok)
		return 0
	}

	level := new(slog.LevelVar)
	level.Set(logLevel(cfg.Server.LogLevel))
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	slog.Info("versecue starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceVersion: version,
		Organization:   cfg.Library.Organization,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(sctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	flush, err := observe.InitSentry(cfg.Server.SentryDSN, "production", version)
	if err != nil {
		slog.Warn("sentry disabled", "err", err)
	}
	defer flush()

	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	printStartupSummary(cfg)

	application, err := app.New(ctx, cfg, providers, app.WithLogLevel(level))
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	watcher, err := config.NewWatcher(*configPath, func(_, next *config.Config) {
		application.Reload(next)
	})
	if err != nil {
		slog.Warn("config hot reload disabled", "err", err)
	} else {
		defer watcher.Stop()
	}

	slog.Info("server ready, press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping")
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// registerBuiltinProviders wires the provider factories that ship with
// versecue into reg.
func registerBuiltinProviders(reg *config.Registry) {
	// LLM backends reached through any-llm share the same shape: optional
	// APIKey and optional BaseURL.
	for _, name := range []string{
		"anthropic", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile", "ollama",
	} {
		reg.RegisterLLM(name, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(name, entry.Model, opts...)
		})
	}

	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []openai.Option
		if entry.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(entry.BaseURL))
		}
		if org := optString(entry.Options, "organization"); org != "" {
			opts = append(opts, openai.WithOrganization(org))
		}
		return openai.New(entry.APIKey, entry.Model, opts...)
	})

	// Streaming speech.
	reg.RegisterSTT("deepgram", func(entry config.ProviderEntry) (stt.Provider, error) {
		return deepgram.New(entry.APIKey, deepgramOptions(entry)...)
	})
	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Provider, error) {
		return whisper.New(entry.BaseURL, whisperOptions(entry)...)
	})
	reg.RegisterSTT("whisper-native", func(entry config.ProviderEntry) (stt.Provider, error) {
		return newNativeWhisper(entry)
	})

	// Clip transcription for song identification.
	reg.RegisterTranscriber("deepgram", func(entry config.ProviderEntry) (stt.Transcriber, error) {
		return deepgram.New(entry.APIKey, deepgramOptions(entry)...)
	})
	reg.RegisterTranscriber("whisper", func(entry config.ProviderEntry) (stt.Transcriber, error) {
		return whisper.New(entry.BaseURL, whisperOptions(entry)...)
	})
	reg.RegisterTranscriber("whisper-native", func(entry config.ProviderEntry) (stt.Transcriber, error) {
		return newNativeWhisper(entry)
	})

	reg.RegisterLyrics("lrclib", func(entry config.ProviderEntry) (lyrics.Provider, error) {
		var opts []lrclib.Option
		if entry.BaseURL != "" {
			opts = append(opts, lrclib.WithBaseURL(entry.BaseURL))
		}
		opts = append(opts, lrclib.WithUserAgent("versecue/"+version))
		return lrclib.New(opts...), nil
	})
	reg.RegisterLyrics("genius", func(entry config.ProviderEntry) (lyrics.Provider, error) {
		var opts []genius.Option
		if entry.BaseURL != "" {
			opts = append(opts, genius.WithBaseURL(entry.BaseURL))
		}
		return genius.New(entry.APIKey, opts...)
	})

	for kind, names := range config.ValidProviderNames {
		for _, name := range names {
			slog.Debug("registered provider", "kind", kind, "name", name)
		}
	}
}

func deepgramOptions(entry config.ProviderEntry) []deepgram.Option {
	var opts []deepgram.Option
	if entry.Model != "" {
		opts = append(opts, deepgram.WithModel(entry.Model))
	}
	if lang := optString(entry.Options, "language"); lang != "" {
		opts = append(opts, deepgram.WithLanguage(lang))
	}
	if entry.BaseURL != "" {
		opts = append(opts, deepgram.WithEndpoint(entry.BaseURL))
	}
	return opts
}

func whisperOptions(entry config.ProviderEntry) []whisper.Option {
	var opts []whisper.Option
	if entry.Model != "" {
		opts = append(opts, whisper.WithModel(entry.Model))
	}
	if lang := optString(entry.Options, "language"); lang != "" {
		opts = append(opts, whisper.WithLanguage(lang))
	}
	return opts
}

func newNativeWhisper(entry config.ProviderEntry) (*whisper.NativeProvider, error) {
	modelPath := entry.Model
	if modelPath == "" {
		modelPath = optString(entry.Options, "model_path")
	}
	var opts []whisper.NativeOption
	if lang := optString(entry.Options, "language"); lang != "" {
		opts = append(opts, whisper.WithNativeLanguage(lang))
	}
	if prompt := optString(entry.Options, "initial_prompt"); prompt != "" {
		opts = append(opts, whisper.WithInitialPrompt(prompt))
	}
	return whisper.NewNative(modelPath, opts...)
}

// countAttempts records every call a fallback chain makes in the provider
// metrics.
func countAttempts(kind string) resilience.FallbackConfig {
	m := observe.DefaultMetrics()
	return resilience.FallbackConfig{OnAttempt: func(name string, err error) {
		m.RecordProviderCall(context.Background(), name, kind, err)
	}}
}

// buildProviders instantiates every provider named in cfg. Names without a
// registered factory are skipped with a debug log. Entries with fallbacks are
// wrapped in a resilience group that fails over in order.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	ps := &app.Providers{}
	pc := cfg.Providers

	llmChain, err := createChain("llm", pc.LLM, reg.CreateLLM)
	if err != nil {
		return nil, err
	}
	if len(llmChain) > 0 {
		ps.LLM = llmChain[0].p
		if len(llmChain) > 1 {
			fb := resilience.NewLLMFallback(llmChain[0].p, llmChain[0].name, countAttempts("llm"))
			for _, n := range llmChain[1:] {
				fb.AddFallback(n.name, n.p)
			}
			ps.LLM = fb
		}
	}

	sttChain, err := createChain("stt", pc.STT, reg.CreateSTT)
	if err != nil {
		return nil, err
	}
	if len(sttChain) > 0 {
		ps.STT = sttChain[0].p
		if len(sttChain) > 1 {
			fb := resilience.NewSTTFallback(sttChain[0].p, sttChain[0].name, countAttempts("stt"))
			for _, n := range sttChain[1:] {
				fb.AddFallback(n.name, n.p)
			}
			ps.STT = fb
		}
	}

	trChain, err := createChain("transcriber", pc.Transcriber, reg.CreateTranscriber)
	if err != nil {
		return nil, err
	}
	if len(trChain) > 0 {
		ps.Transcriber = trChain[0].p
		if len(trChain) > 1 {
			fb := resilience.NewTranscriberFallback(trChain[0].p, trChain[0].name, countAttempts("transcriber"))
			for _, n := range trChain[1:] {
				fb.AddFallback(n.name, n.p)
			}
			ps.Transcriber = fb
		}
	}

	for _, entry := range pc.Lyrics {
		p, ok, err := create("lyrics", entry, reg.CreateLyrics)
		if err != nil {
			return nil, err
		}
		if ok {
			ps.Lyrics = append(ps.Lyrics, app.NamedLyrics{Name: entry.Name, Provider: p})
		}
	}
	return ps, nil
}

type named[T any] struct {
	name string
	p    T
}

// createChain builds entry followed by its fallbacks, skipping unregistered
// names. A missing primary yields an empty chain.
func createChain[T any](kind string, entry config.ProviderEntry, factory func(config.ProviderEntry) (T, error)) ([]named[T], error) {
	if entry.Name == "" {
		return nil, nil
	}
	var chain []named[T]
	for _, e := range append([]config.ProviderEntry{entry}, entry.Fallbacks...) {
		p, ok, err := create(kind, e, factory)
		if err != nil {
			return nil, err
		}
		if ok {
			chain = append(chain, named[T]{name: e.Name, p: p})
		}
	}
	return chain, nil
}

func create[T any](kind string, entry config.ProviderEntry, factory func(config.ProviderEntry) (T, error)) (T, bool, error) {
	var zero T
	if entry.Name == "" {
		return zero, false, nil
	}
	p, err := factory(entry)
	switch {
	case errors.Is(err, config.ErrProviderNotRegistered):
		slog.Debug("provider not implemented, skipping", "kind", kind, "name", entry.Name)
		return zero, false, nil
	case err != nil:
		return zero, false, fmt.Errorf("create %s provider %q: %w", kind, entry.Name, err)
	}
	slog.Info("provider created", "kind", kind, "name", entry.Name)
	return p, true, nil
}

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║        versecue startup summary       ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printRow("LLM", describe(cfg.Providers.LLM))
	printRow("STT", describe(cfg.Providers.STT))
	printRow("Transcriber", describe(cfg.Providers.Transcriber))
	names := make([]string, 0, len(cfg.Providers.Lyrics))
	for _, e := range cfg.Providers.Lyrics {
		names = append(names, e.Name)
	}
	if len(names) == 0 {
		printRow("Lyrics", "(not configured)")
	} else {
		printRow("Lyrics", fmt.Sprint(names))
	}
	printRow("Library", string(cfg.Library.Backend))
	if cfg.Bible.Path != "" {
		printRow("Bible", cfg.Bible.Translation)
	} else {
		printRow("Bible", "(no verse text)")
	}
	if cfg.Display.Discord != nil {
		printRow("Discord", "enabled")
	} else {
		printRow("Discord", "(disabled)")
	}
	if cfg.Server.AuthSecret != "" {
		printRow("Operator auth", "jwt")
	} else {
		printRow("Operator auth", "(open)")
	}
	if cfg.Server.ListenAddr != "" {
		printRow("Listen addr", cfg.Server.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func describe(e config.ProviderEntry) string {
	if e.Name == "" {
		return "(not configured)"
	}
	s := e.Name
	if e.Model != "" {
		s += " / " + e.Model
	}
	if n := len(e.Fallbacks); n > 0 {
		s += fmt.Sprintf(" +%d", n)
	}
	return s
}

func printRow(kind, value string) {
	if len(value) > 19 {
		value = value[:16] + "..."
	}
	fmt.Printf("║  %-14s  : %-19s ║\n", kind, value)
}

func logLevel(l config.LogLevel) slog.Level {
	switch l {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	}
	return slog.LevelInfo
}

// optString extracts a string value from a provider Options map. It returns
// "" if the key is absent or not a string.
func optString(opts map[string]any, key string) string {
	s, _ := opts[key].(string)
	return s
}
