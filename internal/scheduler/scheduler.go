// Package scheduler drives the periodic background work of an active
// recording: autosaving the current session, touching the keep-alive
// timestamp, and watching for user inactivity.
package scheduler

import (
	"context"
	"log"
	"sync"
	"time"
)

// Tracker is the slice of the session tracker the scheduler drives.
type Tracker interface {
	IsRecording(ctx context.Context) (bool, error)
	ForceSave(ctx context.Context) error
	TouchSave(ctx context.Context) error
	LastActivity(ctx context.Context) (time.Time, error)
}

// Status is the activity indicator derived by the inactivity check.
type Status string

const (
	// StatusIdle means no recording is in progress.
	StatusIdle Status = "idle"
	// StatusActive means recording with recent user activity.
	StatusActive Status = "active"
	// StatusStale means recording but past the inactivity threshold.
	StatusStale Status = "stale"
)

// Config holds the timer periods and the inactivity threshold.
type Config struct {
	AutosaveInterval      time.Duration
	KeepAliveInterval     time.Duration
	ActivityCheckInterval time.Duration
	InactivityThreshold   time.Duration

	// Now overrides the clock, for tests.
	Now func() time.Time
}

func (c *Config) applyDefaults() {
	if c.AutosaveInterval <= 0 {
		c.AutosaveInterval = 30 * time.Second
	}
	if c.KeepAliveInterval <= 0 {
		c.KeepAliveInterval = 25 * time.Second
	}
	if c.ActivityCheckInterval <= 0 {
		c.ActivityCheckInterval = 60 * time.Second
	}
	if c.InactivityThreshold <= 0 {
		c.InactivityThreshold = 5 * time.Minute
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

// Scheduler owns the three periodic timers. All three are armed together
// when a recording starts and disarmed together when it stops.
type Scheduler struct {
	tracker  Tracker
	cfg      Config
	onStatus func(Status, time.Duration)

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a scheduler. onStatus, if non-nil, receives the activity
// indicator and the elapsed idle duration on every activity check.
func New(tracker Tracker, cfg Config, onStatus func(Status, time.Duration)) *Scheduler {
	cfg.applyDefaults()
	return &Scheduler{tracker: tracker, cfg: cfg, onStatus: onStatus}
}

// Arm starts the timers. A second Arm while running is a no-op, so
// callers on start, resume, and crash recovery don't need to coordinate.
func (s *Scheduler) Arm(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(3)
	go s.loop(ctx, s.cfg.AutosaveInterval, s.autosaveTick)
	go s.loop(ctx, s.cfg.KeepAliveInterval, s.keepAliveTick)
	go s.loop(ctx, s.cfg.ActivityCheckInterval, s.activityTick)
}

// Disarm stops the timers and waits for in-flight ticks to finish.
func (s *Scheduler) Disarm() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	s.wg.Wait()
}

// Armed reports whether the timers are currently running.
func (s *Scheduler) Armed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

func (s *Scheduler) loop(ctx context.Context, period time.Duration, tick func(context.Context)) {
	defer s.wg.Done()

	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tick(ctx)
		}
	}
}

// autosaveTick forces a persistence write of the current session. If the
// recording stopped underneath a stale arm, the timers disarm themselves.
func (s *Scheduler) autosaveTick(ctx context.Context) {
	recording, err := s.tracker.IsRecording(ctx)
	if err != nil {
		log.Printf("scheduler: autosave recording check failed: %v", err)
		return
	}
	if !recording {
		go s.Disarm()
		return
	}
	if err := s.tracker.ForceSave(ctx); err != nil {
		log.Printf("scheduler: autosave failed: %v", err)
	}
}

// keepAliveTick only refreshes the last-save timestamp so a live process
// is never mistaken for a stale one between autosaves.
func (s *Scheduler) keepAliveTick(ctx context.Context) {
	if err := s.tracker.TouchSave(ctx); err != nil {
		log.Printf("scheduler: keep-alive touch failed: %v", err)
	}
}

// activityTick derives the activity indicator from the time elapsed since
// the last user-driven event.
func (s *Scheduler) activityTick(ctx context.Context) {
	status, idle := s.checkActivity(ctx)
	if status == StatusIdle {
		go s.Disarm()
	}
	if s.onStatus != nil {
		s.onStatus(status, idle)
	}
}

func (s *Scheduler) checkActivity(ctx context.Context) (Status, time.Duration) {
	recording, err := s.tracker.IsRecording(ctx)
	if err != nil {
		log.Printf("scheduler: activity recording check failed: %v", err)
		return StatusIdle, 0
	}
	if !recording {
		return StatusIdle, 0
	}

	last, err := s.tracker.LastActivity(ctx)
	if err != nil {
		log.Printf("scheduler: activity read failed: %v", err)
		return StatusActive, 0
	}
	if last.IsZero() {
		return StatusActive, 0
	}

	idle := s.cfg.Now().Sub(last)
	if idle >= s.cfg.InactivityThreshold {
		return StatusStale, idle
	}
	return StatusActive, idle
}
