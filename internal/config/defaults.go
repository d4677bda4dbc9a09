package config

// DefaultConfig returns a Config populated with all default values.
func DefaultConfig() *Config {
	return &Config{
		Tracker: TrackerConfig{
			StalenessHours:               24,
			NoteDedupWindowSeconds:       5,
			NoteRateLimitSeconds:         3,
			AutosaveIntervalSeconds:      30,
			KeepAliveIntervalSeconds:     25,
			ActivityCheckIntervalSeconds: 60,
			InactivityThresholdMinutes:   5,
		},
		Capture: CaptureConfig{
			ExcludedDomains: DefaultExcludedDomains(),
		},
		Storage: StorageConfig{
			Path:              "~/.config/research-tracker",
			SQLiteFile:        "tracker.db",
			SQLiteJournalMode: "wal",
		},
		Daemon: DaemonConfig{
			Host: "127.0.0.1",
			Port: 8726,
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  "tracker.log",
		},
	}
}
