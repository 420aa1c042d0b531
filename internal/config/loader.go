package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/versecue/internal/bible"
	"github.com/MrWong99/versecue/internal/detect"
	"github.com/MrWong99/versecue/internal/detect/llmdetect"
	"github.com/MrWong99/versecue/internal/queue"
	"github.com/MrWong99/versecue/internal/transcript"
	"github.com/MrWong99/versecue/internal/worship"
)

// DefaultListenAddr is used when server.listen_addr is empty.
const DefaultListenAddr = ":8080"

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm":         {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"stt":         {"deepgram", "whisper", "whisper-native"},
	"transcriber": {"whisper", "whisper-native", "deepgram"},
	"lyrics":      {"lrclib", "genius"},
}

// Default returns a config with every tunable at its default. Boolean
// switches that default to on are set here, so YAML only needs to mention
// what it changes.
func Default() *Config {
	cfg := &Config{
		Detection: DetectionConfig{
			LLMEnabled:         true,
			PhraseMatching:     true,
			PhoneticCorrection: true,
		},
		Library: LibraryConfig{Backend: LibraryMemory},
	}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills zero-valued numeric and string fields.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}

	d := &cfg.Detection
	if d.MinFragmentChars == 0 {
		d.MinFragmentChars = llmdetect.DefaultMinChars
	}
	if d.ConfidenceFloor == 0 {
		d.ConfidenceFloor = detect.DefaultFloor
	}
	if d.SearchConfidenceFloor == 0 {
		d.SearchConfidenceFloor = llmdetect.DefaultSearchFloor
	}
	if d.Cooldown == 0 {
		d.Cooldown = detect.DefaultCooldown
	}
	if d.LLMTimeout == 0 {
		d.LLMTimeout = llmdetect.DefaultTimeout
	}

	if cfg.Queue.AutoApproveThreshold == 0 {
		cfg.Queue.AutoApproveThreshold = queue.DefaultAutoApproveThreshold
	}

	w := &cfg.Worship
	if w.AutoStop == 0 {
		w.AutoStop = worship.DefaultAutoStop
	}
	if w.MinAudioBytes == 0 {
		w.MinAudioBytes = worship.DefaultMinAudioBytes
	}
	if w.MinTranscriptChars == 0 {
		w.MinTranscriptChars = worship.DefaultMinTranscriptChars
	}
	if w.MaxResults == 0 {
		w.MaxResults = worship.DefaultMaxResults
	}
	if w.StrategyTimeout == 0 {
		w.StrategyTimeout = worship.DefaultStrategyTimeout
	}

	if cfg.Library.Backend == "" {
		cfg.Library.Backend = LibraryMemory
	}
	if cfg.Bible.Translation == "" {
		cfg.Bible.Translation = bible.DefaultTranslation
	}
	if cfg.Transcript.History == 0 {
		cfg.Transcript.History = transcript.DefaultHistory
	}
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r over [Default] and validates
// the result. An empty document yields the defaults.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	for _, p := range []struct {
		kind string
		e    ProviderEntry
	}{
		{"llm", cfg.Providers.LLM},
		{"stt", cfg.Providers.STT},
		{"transcriber", cfg.Providers.Transcriber},
	} {
		kind, e := p.kind, p.e
		validateProviderName(kind, e.Name)
		for i, fb := range e.Fallbacks {
			if fb.Name == "" {
				errs = append(errs, fmt.Errorf("providers.%s.fallbacks[%d].name is required", kind, i))
				continue
			}
			validateProviderName(kind, fb.Name)
		}
	}
	for i, e := range cfg.Providers.Lyrics {
		if e.Name == "" {
			errs = append(errs, fmt.Errorf("providers.lyrics[%d].name is required", i))
			continue
		}
		validateProviderName("lyrics", e.Name)
	}

	if cfg.Detection.LLMEnabled && cfg.Providers.LLM.Name == "" {
		slog.Warn("detection.llm_enabled is set but providers.llm is not configured; only spoken citations will be detected")
	}
	if cfg.Providers.Transcriber.Name == "" {
		slog.Warn("providers.transcriber is not configured; worship song identification is unavailable")
	}

	d := cfg.Detection
	errs = append(errs, unitRange("detection.confidence_floor", d.ConfidenceFloor)...)
	errs = append(errs, unitRange("detection.search_confidence_floor", d.SearchConfidenceFloor)...)
	errs = append(errs, unitRange("queue.auto_approve_threshold", cfg.Queue.AutoApproveThreshold)...)
	if d.Cooldown < 0 {
		errs = append(errs, fmt.Errorf("detection.cooldown %s must not be negative", d.Cooldown))
	}
	if d.LLMTimeout < 0 {
		errs = append(errs, fmt.Errorf("detection.llm_timeout %s must not be negative", d.LLMTimeout))
	}
	if d.MinFragmentChars < 0 {
		errs = append(errs, fmt.Errorf("detection.min_fragment_chars %d must not be negative", d.MinFragmentChars))
	}

	w := cfg.Worship
	if w.AutoStop < 0 || w.StrategyTimeout < 0 {
		errs = append(errs, fmt.Errorf("worship durations must not be negative"))
	}
	if w.MaxResults < 0 || w.MinAudioBytes < 0 || w.MinTranscriptChars < 0 {
		errs = append(errs, fmt.Errorf("worship limits must not be negative"))
	}

	switch lib := cfg.Library; {
	case !lib.Backend.IsValid():
		errs = append(errs, fmt.Errorf("library.backend %q is invalid; valid values: memory, yaml, postgres, sqlite", lib.Backend))
	case lib.Backend == LibraryPostgres && lib.DSN == "":
		errs = append(errs, fmt.Errorf("library.dsn is required when backend is postgres"))
	case (lib.Backend == LibraryYAML || lib.Backend == LibrarySQLite) && lib.Path == "":
		errs = append(errs, fmt.Errorf("library.path is required when backend is %s", lib.Backend))
	}

	if cfg.Bible.Path == "" {
		slog.Warn("bible.path is empty; verse text will not be shown")
	}

	if dc := cfg.Display.Discord; dc != nil && (dc.Token == "" || dc.ChannelID == "") {
		errs = append(errs, fmt.Errorf("display.discord requires token and channel_id"))
	}

	if cfg.Transcript.History < 0 {
		errs = append(errs, fmt.Errorf("transcript.history %d must not be negative", cfg.Transcript.History))
	}

	return errors.Join(errs...)
}

func unitRange(field string, v float64) []error {
	if v < 0 || v > 1 {
		return []error{fmt.Errorf("%s %.2f is out of range [0, 1]", field, v)}
	}
	return nil
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
