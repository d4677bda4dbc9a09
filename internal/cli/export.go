package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/ant981228/research-tracker/internal/session"
)

// Execute implements the go-flags Commander interface for ExportCommand.
func (c *ExportCommand) Execute(args []string) error {
	if c.ID == "" {
		return fmt.Errorf("--id is required")
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

// executeWithTracker runs export against a provided tracker (for testing).
func (c *ExportCommand) executeWithTracker(tracker *session.Tracker) error {
	data, err := tracker.Export(context.Background(), c.ID, c.Format)
	if err != nil {
		return fmt.Errorf("export session: %w", err)
	}

	if c.Out != "" {
		if err := os.WriteFile(c.Out, data, 0644); err != nil {
			return fmt.Errorf("write export file: %w", err)
		}
		fmt.Printf("Exported session %s to %s\n", c.ID, c.Out)
		return nil
	}

	_, err = os.Stdout.Write(data)
	return err
}
