package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/ant981228/research-tracker/internal/storage"
)

// setStore allows tests to inject a store.
func (c *PurgeCommand) setStore(store *storage.SQLiteStore) {
	c.store = store
}

// Execute implements the go-flags Commander interface for PurgeCommand.
func (c *PurgeCommand) Execute(args []string) error {
	if !c.All {
		return fmt.Errorf("purge requires --all flag for safety")
	}

	// Confirmation prompt unless --force
	if !c.Force {
		fmt.Println("⚠ WARNING: This will permanently delete ALL tracker data.")
		fmt.Println("  - The current recording, if any")
		fmt.Println("  - All completed sessions, notes, and metadata")
		fmt.Println()
		fmt.Println("This action cannot be undone.")
		fmt.Println()
		fmt.Print(`Type "PURGE" to confirm: `)

		scanner := bufio.NewScanner(os.Stdin)
		if !scanner.Scan() {
			return fmt.Errorf("aborted: no input received")
		}
		input := strings.TrimSpace(scanner.Text())
		if input != "PURGE" {
			return fmt.Errorf("aborted: confirmation text did not match")
		}
	}

	store := c.store
	if store == nil {
		cfg, err := loadConfig(c.globals)
		if err != nil {
			return err
		}
		// A running daemon would keep stale state in memory and write it
		// right back over the purged database.
		if checkDaemon(cfg) {
			return fmt.Errorf("daemon is running; stop it before purging")
		}
		dbPath, err := cfg.DatabasePath()
		if err != nil {
			return err
		}
		opened, db, err := storage.Open(dbPath)
		if err != nil {
			return err
		}
		defer db.Close()
		defer opened.Close()
		store = opened
	}

	if err := store.PurgeAll(context.Background()); err != nil {
		return fmt.Errorf("purge failed: %w", err)
	}

	if c.globals != nil && c.globals.JSON {
		out := map[string]interface{}{
			"purged":  true,
			"message": "all data deleted",
		}
		enc := json.NewEncoder(os.Stdout)
		return enc.Encode(out)
	}

	fmt.Println("Purged all data. Tracker is empty.")
	return nil
}
