package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/ant981228/research-tracker/internal/config"
	"github.com/ant981228/research-tracker/internal/session"
)

// Execute implements the go-flags Commander interface for ResumeCommand.
func (c *ResumeCommand) Execute(args []string) error {
	if c.ID == "" {
		return fmt.Errorf("--id is required")
	}

	cfg, err := loadConfig(c.globals)
	if err != nil {
		return err
	}

	if checkDaemon(cfg) {
		return c.executeViaDaemon(cfg)
	}

	tracker, store, db, err := openTracker(cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	defer store.Close()

	return c.executeWithTracker(tracker)
}

func (c *ResumeCommand) executeViaDaemon(cfg *config.Config) error {
	if _, err := sendDaemonMessage(cfg, map[string]interface{}{
		"action": "resumeSession", "sessionId": c.ID,
	}); err != nil {
		return fmt.Errorf("resume session: %w", err)
	}
	fmt.Printf("Resumed session %s. Recording.\n", c.ID)
	return nil
}

func (c *ResumeCommand) executeWithTracker(tracker *session.Tracker) error {
	resumed, err := tracker.ResumeCompleted(context.Background(), c.ID)
	if err != nil {
		return fmt.Errorf("resume session: %w", err)
	}
	fmt.Printf("Resumed session %s (%s). Recording.\n", resumed.Name, resumed.ID)
	return nil
}

// Execute implements the go-flags Commander interface for DeleteCommand.
func (c *DeleteCommand) Execute(args []string) error {
	if c.ID == "" {
		return fmt.Errorf("--id is required")
	}

	if !c.Force {
		fmt.Printf("Delete session %s permanently? Type \"yes\" to confirm: ", c.ID)
		scanner := bufio.NewScanner(os.Stdin)
		if !scanner.Scan() {
			return fmt.Errorf("aborted: no input received")
		}
		if strings.TrimSpace(scanner.Text()) != "yes" {
			return fmt.Errorf("aborted: confirmation text did not match")
		}
	}

	cfg, err := loadConfig(c.globals)
	if err != nil {
		return err
	}

	if checkDaemon(cfg) {
		return c.executeViaDaemon(cfg)
	}

	tracker, store, db, err := openTracker(cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	defer store.Close()

	return c.executeWithTracker(tracker)
}

func (c *DeleteCommand) executeViaDaemon(cfg *config.Config) error {
	if _, err := sendDaemonMessage(cfg, map[string]interface{}{
		"action": "deleteSession", "sessionId": c.ID,
	}); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	fmt.Printf("Deleted session %s.\n", c.ID)
	return nil
}

func (c *DeleteCommand) executeWithTracker(tracker *session.Tracker) error {
	if err := tracker.Delete(context.Background(), c.ID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	fmt.Printf("Deleted session %s.\n", c.ID)
	return nil
}

// Execute implements the go-flags Commander interface for RenameCommand.
func (c *RenameCommand) Execute(args []string) error {
	if c.Name == "" {
		return fmt.Errorf("--name is required")
	}

	cfg, err := loadConfig(c.globals)
	if err != nil {
		return err
	}

	if checkDaemon(cfg) {
		return c.executeViaDaemon(cfg)
	}

	tracker, store, db, err := openTracker(cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	defer store.Close()

	return c.executeWithTracker(tracker)
}

func (c *RenameCommand) executeViaDaemon(cfg *config.Config) error {
	if c.ID == "" {
		if _, err := sendDaemonMessage(cfg, map[string]interface{}{
			"action": "renameCurrent", "newName": c.Name,
		}); err != nil {
			return fmt.Errorf("rename current session: %w", err)
		}
		fmt.Printf("Renamed current session to %q.\n", c.Name)
		return nil
	}

	if _, err := sendDaemonMessage(cfg, map[string]interface{}{
		"action": "rename", "sessionId": c.ID, "newName": c.Name,
	}); err != nil {
		return fmt.Errorf("rename session: %w", err)
	}
	fmt.Printf("Renamed session %s to %q.\n", c.ID, c.Name)
	return nil
}

func (c *RenameCommand) executeWithTracker(tracker *session.Tracker) error {
	ctx := context.Background()

	if c.ID == "" {
		if err := tracker.Rename(ctx, c.Name); err != nil {
			return fmt.Errorf("rename current session: %w", err)
		}
		fmt.Printf("Renamed current session to %q.\n", c.Name)
		return nil
	}

	if err := tracker.RenameCompleted(ctx, c.ID, c.Name); err != nil {
		return fmt.Errorf("rename session: %w", err)
	}
	fmt.Printf("Renamed session %s to %q.\n", c.ID, c.Name)
	return nil
}

// Execute implements the go-flags Commander interface for NoteCommand.
func (c *NoteCommand) Execute(args []string) error {
	if c.URL == "" || c.Note == "" {
		return fmt.Errorf("--url and --note are required")
	}

	cfg, err := loadConfig(c.globals)
	if err != nil {
		return err
	}

	if checkDaemon(cfg) {
		return c.executeViaDaemon(cfg)
	}

	tracker, store, db, err := openTracker(cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	defer store.Close()

	return c.executeWithTracker(tracker)
}

func (c *NoteCommand) executeViaDaemon(cfg *config.Config) error {
	if _, err := sendDaemonMessage(cfg, map[string]interface{}{
		"action": "addNote", "url": c.URL, "note": c.Note,
	}); err != nil {
		return fmt.Errorf("add note: %w", err)
	}
	fmt.Println("Note saved.")
	return nil
}

func (c *NoteCommand) executeWithTracker(tracker *session.Tracker) error {
	if err := tracker.AddNote(context.Background(), c.URL, c.Note); err != nil {
		return fmt.Errorf("add note: %w", err)
	}
	fmt.Println("Note saved.")
	return nil
}
