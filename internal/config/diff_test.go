package config_test

import (
	"slices"
	"testing"
	"time"

	"github.com/MrWong99/versecue/internal/config"
)

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	if d := config.Diff(cfg, cfg); d.Any() {
		t.Errorf("Diff of identical configs = %+v", d)
	}
}

func TestDiff(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		mutate  func(*config.Config)
		check   func(config.ConfigDiff) bool
		restart string
	}{
		{
			name:   "log level",
			mutate: func(c *config.Config) { c.Server.LogLevel = config.LogDebug },
			check:  func(d config.ConfigDiff) bool { return d.LogLevelChanged && d.NewLogLevel == config.LogDebug },
		},
		{
			name:   "detection floor",
			mutate: func(c *config.Config) { c.Detection.ConfidenceFloor = 0.9 },
			check:  func(d config.ConfigDiff) bool { return d.DetectionChanged && d.Detection.ConfidenceFloor == 0.9 },
		},
		{
			name:   "cooldown",
			mutate: func(c *config.Config) { c.Detection.Cooldown = 30 * time.Second },
			check:  func(d config.ConfigDiff) bool { return d.DetectionChanged && d.Detection.Cooldown == 30*time.Second },
		},
		{
			name:   "llm switch",
			mutate: func(c *config.Config) { c.Detection.LLMEnabled = false },
			check:  func(d config.ConfigDiff) bool { return d.DetectionChanged && !d.Detection.LLMEnabled },
		},
		{
			name:   "auto approve",
			mutate: func(c *config.Config) { c.Queue.AutoApprove = true },
			check:  func(d config.ConfigDiff) bool { return d.QueueChanged && d.Queue.AutoApprove },
		},
		{
			name:   "worship",
			mutate: func(c *config.Config) { c.Worship.AutoStop = 20 * time.Second },
			check:  func(d config.ConfigDiff) bool { return d.WorshipChanged && d.Worship.AutoStop == 20*time.Second },
		},
		{
			name:    "phrase matching needs restart",
			mutate:  func(c *config.Config) { c.Detection.PhraseMatching = false },
			check:   func(d config.ConfigDiff) bool { return !d.DetectionChanged },
			restart: "detection",
		},
		{
			name:    "provider model needs restart",
			mutate:  func(c *config.Config) { c.Providers.LLM.Model = "gpt-4o" },
			check:   func(d config.ConfigDiff) bool { return true },
			restart: "providers",
		},
		{
			name: "fallback chain needs restart",
			mutate: func(c *config.Config) {
				c.Providers.STT.Fallbacks = []config.ProviderEntry{{Name: "whisper"}}
			},
			check:   func(d config.ConfigDiff) bool { return true },
			restart: "providers",
		},
		{
			name: "lyrics order needs restart",
			mutate: func(c *config.Config) {
				c.Providers.Lyrics = []config.ProviderEntry{{Name: "genius"}, {Name: "lrclib"}}
			},
			check:   func(d config.ConfigDiff) bool { return true },
			restart: "providers",
		},
		{
			name:    "library needs restart",
			mutate:  func(c *config.Config) { c.Library.Organization = "other" },
			check:   func(d config.ConfigDiff) bool { return true },
			restart: "library",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			old := config.Default()
			old.Providers.Lyrics = []config.ProviderEntry{{Name: "lrclib"}, {Name: "genius"}}
			updated := config.Default()
			updated.Providers.Lyrics = []config.ProviderEntry{{Name: "lrclib"}, {Name: "genius"}}
			tt.mutate(updated)

			d := config.Diff(old, updated)
			if !d.Any() {
				t.Fatal("Any() = false")
			}
			if !tt.check(d) {
				t.Errorf("Diff = %+v", d)
			}
			if tt.restart != "" && !slices.Contains(d.RestartRequired, tt.restart) {
				t.Errorf("RestartRequired = %v, want %q", d.RestartRequired, tt.restart)
			}
			if tt.restart == "" && len(d.RestartRequired) != 0 {
				t.Errorf("RestartRequired = %v, want none", d.RestartRequired)
			}
		})
	}
}
