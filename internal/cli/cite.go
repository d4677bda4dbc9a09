package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/ant981228/research-tracker/internal/citation"
	"github.com/ant981228/research-tracker/internal/session"
)

// Execute implements the go-flags Commander interface for CiteCommand.
func (c *CiteCommand) Execute(args []string) error {
	if c.URL == "" {
		return fmt.Errorf("--url is required")
	}

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

func (c *CiteCommand) executeWithTracker(tracker *session.Tracker) error {
	md, err := tracker.GetMetadata(context.Background(), c.URL)
	if err != nil {
		return fmt.Errorf("read metadata: %w", err)
	}
	if len(md) == 0 {
		return fmt.Errorf("no metadata captured for %s", c.URL)
	}

	src := citation.FromMetadata(c.URL, md, time.Now())
	rendered, err := src.Render(citation.Style(c.Style))
	if err != nil {
		return err
	}

	fmt.Println(rendered)
	return nil
}
