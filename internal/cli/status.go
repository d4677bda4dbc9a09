package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/ant981228/research-tracker/internal/config"
	"github.com/ant981228/research-tracker/internal/session"
)

// statusJSON is the JSON output structure for the status command.
type statusJSON struct {
	Version       string                 `json:"version"`
	DatabasePath  string                 `json:"database_path"`
	IsRecording   bool                   `json:"is_recording"`
	Current       *session.CurrentStatus `json:"current_session,omitempty"`
	Completed     int                    `json:"completed_sessions"`
	DaemonRunning bool                   `json:"daemon_running"`
}

// Execute implements the go-flags Commander interface for StatusCommand.
func (c *StatusCommand) Execute(args []string) error {
	cfg, err := loadConfig(c.globals)
	if err != nil {
		return err
	}

	tracker, store, db, err := openTracker(cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	defer store.Close()

	return c.executeWithTracker(cfg, tracker)
}

// executeWithTracker runs status against a provided tracker (for testing).
func (c *StatusCommand) executeWithTracker(cfg *config.Config, tracker *session.Tracker) error {
	ctx := context.Background()

	st, err := tracker.Status(ctx)
	if err != nil {
		return fmt.Errorf("read status: %w", err)
	}
	summaries, err := tracker.Summaries(ctx)
	if err != nil {
		return fmt.Errorf("read sessions: %w", err)
	}

	dbPath, err := cfg.DatabasePath()
	if err != nil {
		return err
	}
	daemonRunning := checkDaemon(cfg)

	if c.globals != nil && c.globals.JSON {
		out := statusJSON{
			Version:       c.version,
			DatabasePath:  dbPath,
			IsRecording:   st.IsRecording,
			Current:       st.Current,
			Completed:     len(summaries),
			DaemonRunning: daemonRunning,
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	fmt.Println("Tracker Status")
	fmt.Println("==============")
	fmt.Printf("Version:    %s\n", c.version)
	fmt.Printf("Database:   %s\n", dbPath)
	if daemonRunning {
		fmt.Println("Daemon:     running")
	} else {
		fmt.Println("Daemon:     not running")
	}
	fmt.Printf("Completed:  %d sessions\n", len(summaries))
	fmt.Println()

	if !st.IsRecording || st.Current == nil {
		fmt.Println("Not recording.")
		return nil
	}

	fmt.Printf("Recording:  %s (%s)\n", st.Current.Name, st.Current.ID)
	fmt.Printf("Started:    %s\n", formatTime(st.Current.StartTime))
	if st.Current.IsPaused {
		fmt.Println("State:      paused")
	} else {
		fmt.Println("State:      capturing")
	}
	fmt.Printf("Events:     %d\n", st.Current.Events)

	if len(st.Current.RecentSearches) > 0 {
		fmt.Println()
		fmt.Println("Recent searches:")
		for _, s := range st.Current.RecentSearches {
			fmt.Printf("  %-10s %s\n", s.Engine, s.Query)
		}
	}
	if len(st.Current.RecentPages) > 0 {
		fmt.Println()
		fmt.Println("Recent pages:")
		for _, p := range st.Current.RecentPages {
			title := p.Title
			if title == "" {
				title = p.URL
			}
			fmt.Printf("  %s\n", title)
		}
	}

	return nil
}
