package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Default config file path.
const DefaultConfigPath = "~/.config/research-tracker/config.yaml"

// Config holds all tracker configuration.
type Config struct {
	Tracker TrackerConfig `yaml:"tracker"`
	Capture CaptureConfig `yaml:"capture"`
	Storage StorageConfig `yaml:"storage"`
	Daemon  DaemonConfig  `yaml:"daemon"`
	Logging LoggingConfig `yaml:"logging"`
}

// TrackerConfig holds the recording policy knobs. The staleness threshold
// and the note dedup window are policy values rather than invariants, so
// they are configurable.
type TrackerConfig struct {
	StalenessHours               int `yaml:"staleness_hours"`
	NoteDedupWindowSeconds       int `yaml:"note_dedup_window_seconds"`
	NoteRateLimitSeconds         int `yaml:"note_rate_limit_seconds"`
	AutosaveIntervalSeconds      int `yaml:"autosave_interval_seconds"`
	KeepAliveIntervalSeconds     int `yaml:"keepalive_interval_seconds"`
	ActivityCheckIntervalSeconds int `yaml:"activity_check_interval_seconds"`
	InactivityThresholdMinutes   int `yaml:"inactivity_threshold_minutes"`
}

type CaptureConfig struct {
	// ExcludedDomains are never logged into a session. An empty list means
	// the built-in defaults from DefaultExcludedDomains apply.
	ExcludedDomains []string `yaml:"excluded_domains"`
}

type StorageConfig struct {
	Path              string `yaml:"path"`
	SQLiteFile        string `yaml:"sqlite_file"`
	SQLiteJournalMode string `yaml:"sqlite_journal_mode"`
}

type DaemonConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// Load reads a YAML config file at path and merges it with defaults.
// Returns an error if the file cannot be read or contains invalid YAML.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if len(cfg.Capture.ExcludedDomains) == 0 {
		cfg.Capture.ExcludedDomains = DefaultExcludedDomains()
	}

	return cfg, nil
}

// DatabasePath resolves the absolute path of the sqlite database file.
func (c *Config) DatabasePath() (string, error) {
	dir, err := expandPath(c.Storage.Path)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, c.Storage.SQLiteFile), nil
}

// expandPath replaces a leading ~ with the user's home directory.
func expandPath(path string) (string, error) {
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolving home directory: %w", err)
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}

// LoadOrCreate loads the config from the default path. If the file does
// not exist, it creates the directory structure and writes defaults.
func LoadOrCreate() (*Config, error) {
	path, err := expandPath(DefaultConfigPath)
	if err != nil {
		return nil, err
	}
	return LoadOrCreateAt(path)
}

// LoadOrCreateAt loads the config from the given path. If the file does
// not exist, it creates the directory structure and writes defaults.
func LoadOrCreateAt(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := DefaultConfig()

		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating config directory: %w", err)
		}

		data, err := yaml.Marshal(cfg)
		if err != nil {
			return nil, fmt.Errorf("marshaling default config: %w", err)
		}

		if err := os.WriteFile(path, data, 0644); err != nil {
			return nil, fmt.Errorf("writing default config: %w", err)
		}

		return cfg, nil
	}

	return Load(path)
}
