package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/ant981228/research-tracker/internal/session"
)

// Execute implements the go-flags Commander interface for SessionsCommand.
func (c *SessionsCommand) Execute(args []string) error {
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

	return c.executeWithTracker(tracker)
}

// executeWithTracker runs sessions against a provided tracker (for testing).
func (c *SessionsCommand) executeWithTracker(tracker *session.Tracker) error {
	summaries, err := tracker.Summaries(context.Background())
	if err != nil {
		return fmt.Errorf("read sessions: %w", err)
	}

	if c.globals != nil && c.globals.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(summaries)
	}

	if len(summaries) == 0 {
		fmt.Println("No completed sessions.")
		return nil
	}

	fmt.Printf("%-22s %-30s %-17s %8s %8s %7s\n", "ID", "NAME", "STARTED", "SEARCHES", "PAGES", "NOTES+")
	for _, s := range summaries {
		fmt.Printf("%-22s %-30s %-17s %8d %8d %7d\n",
			s.ID, truncate(s.Name, 30), formatTime(s.StartTime), s.Searches, s.PageVisits, s.Events-s.Searches-s.PageVisits)
	}
	return nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}
