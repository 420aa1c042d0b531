// Package config provides the configuration schema, loader, hot-reload
// watcher and provider registry for VerseCue.
package config

import "time"

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// LibraryBackend selects the song library store.
type LibraryBackend string

const (
	LibraryMemory   LibraryBackend = "memory"
	LibraryYAML     LibraryBackend = "yaml"
	LibraryPostgres LibraryBackend = "postgres"
	LibrarySQLite   LibraryBackend = "sqlite"
)

// IsValid reports whether b is a recognised backend.
func (b LibraryBackend) IsValid() bool {
	switch b {
	case LibraryMemory, LibraryYAML, LibraryPostgres, LibrarySQLite:
		return true
	}
	return false
}

// Config is the root configuration structure.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Providers  ProvidersConfig  `yaml:"providers"`
	Detection  DetectionConfig  `yaml:"detection"`
	Queue      QueueConfig      `yaml:"queue"`
	Worship    WorshipConfig    `yaml:"worship"`
	Library    LibraryConfig    `yaml:"library"`
	Bible      BibleConfig      `yaml:"bible"`
	Display    DisplayConfig    `yaml:"display"`
	Transcript TranscriptConfig `yaml:"transcript"`
}

// ServerConfig holds network, logging and security settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	LogLevel LogLevel `yaml:"log_level"`

	// AuthSecret is the HS256 key operator tokens are signed with. When empty
	// the operator API is unauthenticated.
	AuthSecret string `yaml:"auth_secret"`

	// SentryDSN enables error reporting when set.
	SentryDSN string `yaml:"sentry_dsn"`

	// AllowedOrigins lists Origin patterns accepted by the WebSocket
	// endpoints. Same-origin clients are always accepted.
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// ProvidersConfig selects the implementation for each external service.
// Each entry names a provider registered in the [Registry]. Lyrics lists
// providers in fallback order.
type ProvidersConfig struct {
	LLM         ProviderEntry   `yaml:"llm"`
	STT         ProviderEntry   `yaml:"stt"`
	Transcriber ProviderEntry   `yaml:"transcriber"`
	Lyrics      []ProviderEntry `yaml:"lyrics"`
}

// ProviderEntry is the common configuration block shared by all provider types.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "openai", "deepgram").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g., "gpt-4o-mini", "nova-3").
	Model string `yaml:"model"`

	// Options holds provider-specific values not covered by the fields above.
	Options map[string]any `yaml:"options"`

	// Fallbacks are tried in order when this provider fails or its circuit
	// is open. Ignored for lyrics, whose list is already a fallback chain.
	Fallbacks []ProviderEntry `yaml:"fallbacks"`
}

// DetectionConfig tunes sermon-mode reference detection.
type DetectionConfig struct {
	LLMEnabled            bool          `yaml:"llm_enabled"`
	MinFragmentChars      int           `yaml:"min_fragment_chars"`
	ConfidenceFloor       float64       `yaml:"confidence_floor"`
	SearchConfidenceFloor float64       `yaml:"search_confidence_floor"`
	Cooldown              time.Duration `yaml:"cooldown"`
	PhraseMatching        bool          `yaml:"phrase_matching"`
	PhoneticCorrection    bool          `yaml:"phonetic_correction"`
	LLMTimeout            time.Duration `yaml:"llm_timeout"`
}

// QueueConfig holds review queue policy.
type QueueConfig struct {
	AutoApprove          bool    `yaml:"auto_approve"`
	AutoApproveThreshold float64 `yaml:"auto_approve_threshold"`
}

// WorshipConfig tunes song identification.
type WorshipConfig struct {
	AutoStop           time.Duration `yaml:"auto_stop"`
	MinAudioBytes      int           `yaml:"min_audio_bytes"`
	MinTranscriptChars int           `yaml:"min_transcript_chars"`
	MaxResults         int           `yaml:"max_results"`
	StrategyTimeout    time.Duration `yaml:"strategy_timeout"`
	LLMIdentify        bool          `yaml:"llm_identify"`
}

// LibraryConfig selects the song library store.
type LibraryConfig struct {
	Backend LibraryBackend `yaml:"backend"`

	// Path is the YAML file (backend yaml) or database file (backend sqlite).
	Path string `yaml:"path"`

	// DSN is the PostgreSQL connection string (backend postgres).
	DSN string `yaml:"dsn"`

	// Organization scopes every library query.
	Organization string `yaml:"organization"`
}

// BibleConfig points at the verse text file.
type BibleConfig struct {
	Translation string `yaml:"translation"`
	Path        string `yaml:"path"`
}

// DisplayConfig configures additional display surfaces. The WebSocket hub
// is always on.
type DisplayConfig struct {
	Discord *DiscordDisplayConfig `yaml:"discord"`
}

// DiscordDisplayConfig mirrors the display into a Discord channel.
type DiscordDisplayConfig struct {
	Token     string `yaml:"token"`
	ChannelID string `yaml:"channel_id"`
}

// TranscriptConfig bounds the live transcript.
type TranscriptConfig struct {
	History int `yaml:"history"`
}
