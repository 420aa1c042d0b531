package config

import "slices"

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// DetectionChanged is set when a floor, the cooldown or the LLM switch
	// changed.
	DetectionChanged bool
	Detection        DetectionConfig

	QueueChanged bool
	Queue        QueueConfig

	WorshipChanged bool
	Worship        WorshipConfig

	// RestartRequired lists sections that changed but only take effect after
	// a restart.
	RestartRequired []string
}

// Any reports whether anything changed.
func (d ConfigDiff) Any() bool {
	return d.LogLevelChanged || d.DetectionChanged || d.QueueChanged || d.WorshipChanged || len(d.RestartRequired) > 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	od, nd := old.Detection, new.Detection
	if od.ConfidenceFloor != nd.ConfidenceFloor ||
		od.SearchConfidenceFloor != nd.SearchConfidenceFloor ||
		od.Cooldown != nd.Cooldown ||
		od.LLMEnabled != nd.LLMEnabled {
		d.DetectionChanged = true
		d.Detection = nd
	}
	if od.MinFragmentChars != nd.MinFragmentChars ||
		od.PhraseMatching != nd.PhraseMatching ||
		od.PhoneticCorrection != nd.PhoneticCorrection ||
		od.LLMTimeout != nd.LLMTimeout {
		d.RestartRequired = append(d.RestartRequired, "detection")
	}

	if old.Queue != new.Queue {
		d.QueueChanged = true
		d.Queue = new.Queue
	}
	if old.Worship != new.Worship {
		d.WorshipChanged = true
		d.Worship = new.Worship
	}

	if old.Server.ListenAddr != new.Server.ListenAddr || old.Server.AuthSecret != new.Server.AuthSecret ||
		old.Server.SentryDSN != new.Server.SentryDSN {
		d.RestartRequired = append(d.RestartRequired, "server")
	}
	if !providersEqual(old.Providers, new.Providers) {
		d.RestartRequired = append(d.RestartRequired, "providers")
	}
	if old.Library != new.Library {
		d.RestartRequired = append(d.RestartRequired, "library")
	}
	if old.Bible != new.Bible {
		d.RestartRequired = append(d.RestartRequired, "bible")
	}
	return d
}

func providersEqual(a, b ProvidersConfig) bool {
	if !entryEqual(a.LLM, b.LLM) || !entryEqual(a.STT, b.STT) || !entryEqual(a.Transcriber, b.Transcriber) {
		return false
	}
	if len(a.Lyrics) != len(b.Lyrics) {
		return false
	}
	for i := range a.Lyrics {
		if !entryEqual(a.Lyrics[i], b.Lyrics[i]) {
			return false
		}
	}
	return true
}

// entryEqual ignores Options, which are opaque to the config layer.
func entryEqual(a, b ProviderEntry) bool {
	if a.Name != b.Name || a.APIKey != b.APIKey || a.BaseURL != b.BaseURL || a.Model != b.Model {
		return false
	}
	return slices.EqualFunc(a.Fallbacks, b.Fallbacks, entryEqual)
}
