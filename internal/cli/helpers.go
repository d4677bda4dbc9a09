package cli

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ant981228/research-tracker/internal/config"
	"github.com/ant981228/research-tracker/internal/session"
	"github.com/ant981228/research-tracker/internal/storage"
)

// loadConfig resolves the effective config: an explicit --config path, or
// the default location (created with defaults on first run).
func loadConfig(globals *GlobalFlags) (*config.Config, error) {
	if globals != nil && globals.Config != "" {
		return config.LoadOrCreateAt(globals.Config)
	}
	return config.LoadOrCreate()
}

// openTracker opens the configured database and builds a tracker over it.
// Callers must close both the store and the db.
func openTracker(cfg *config.Config) (*session.Tracker, *storage.SQLiteStore, *sql.DB, error) {
	dbPath, err := cfg.DatabasePath()
	if err != nil {
		return nil, nil, nil, err
	}

	store, db, err := storage.Open(dbPath)
	if err != nil {
		return nil, nil, nil, err
	}

	return session.NewTracker(store, trackerOptions(cfg)), store, db, nil
}

func trackerOptions(cfg *config.Config) session.Options {
	return session.Options{
		Staleness:       time.Duration(cfg.Tracker.StalenessHours) * time.Hour,
		NoteDedupWindow: time.Duration(cfg.Tracker.NoteDedupWindowSeconds) * time.Second,
	}
}

// checkDaemon probes the daemon health endpoint, true if it responds
// within a second.
func checkDaemon(cfg *config.Config) bool {
	client := &http.Client{Timeout: time.Second}
	resp, err := client.Get(fmt.Sprintf("http://%s:%d/health", cfg.Daemon.Host, cfg.Daemon.Port))
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// sendDaemonMessage posts one command to a running daemon. While a daemon
// is recording, its in-memory session is the only authoritative copy, so
// mutating commands must go through it rather than open a second tracker
// over the same database; a direct write would be clobbered by the
// daemon's next autosave.
func sendDaemonMessage(cfg *config.Config, payload map[string]interface{}) (map[string]interface{}, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode daemon request: %w", err)
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Post(
		fmt.Sprintf("http://%s:%d/message", cfg.Daemon.Host, cfg.Daemon.Port),
		"application/json", bytes.NewReader(body),
	)
	if err != nil {
		return nil, fmt.Errorf("send to daemon: %w", err)
	}
	defer resp.Body.Close()

	var out map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode daemon response: %w", err)
	}

	if success, ok := out["success"].(bool); (ok && !success) || resp.StatusCode != http.StatusOK {
		if limited, _ := out["rateLimited"].(bool); limited {
			wait, _ := out["waitTimeMs"].(float64)
			return nil, fmt.Errorf("rate limited, retry in %dms", int64(wait))
		}
		return nil, fmt.Errorf("%v", out["error"])
	}
	return out, nil
}

// formatTime renders a timestamp for human output.
func formatTime(t time.Time) string {
	return t.Local().Format("2006-01-02 15:04")
}
