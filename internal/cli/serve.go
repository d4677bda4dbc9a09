package cli

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/ant981228/research-tracker/internal/daemon"
	"github.com/ant981228/research-tracker/internal/scheduler"
)

// Execute implements the go-flags Commander interface for ServeCommand.
func (c *ServeCommand) Execute(args []string) error {
	cfg, err := loadConfig(c.globals)
	if err != nil {
		return err
	}

	if c.Host != "" {
		cfg.Daemon.Host = c.Host
	}
	if c.Port != 0 {
		cfg.Daemon.Port = c.Port
	}

	tracker, store, db, err := openTracker(cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	defer store.Close()

	sched := scheduler.New(tracker, scheduler.Config{
		AutosaveInterval:      time.Duration(cfg.Tracker.AutosaveIntervalSeconds) * time.Second,
		KeepAliveInterval:     time.Duration(cfg.Tracker.KeepAliveIntervalSeconds) * time.Second,
		ActivityCheckInterval: time.Duration(cfg.Tracker.ActivityCheckIntervalSeconds) * time.Second,
		InactivityThreshold:   time.Duration(cfg.Tracker.InactivityThresholdMinutes) * time.Minute,
	}, func(status scheduler.Status, idle time.Duration) {
		if status == scheduler.StatusStale {
			log.Printf("serve: no user activity for %s", idle.Round(time.Second))
		}
	})

	srv := daemon.New(cfg, tracker, sched, nil)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(ctx)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Printf("serve: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
