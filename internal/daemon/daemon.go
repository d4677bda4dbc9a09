// Package daemon exposes the tracker over a local HTTP surface: a message
// endpoint for the popup UI and CLI, a websocket ingest stream for the
// browser extension, and a health probe.
package daemon

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/ant981228/research-tracker/internal/classify"
	"github.com/ant981228/research-tracker/internal/config"
	"github.com/ant981228/research-tracker/internal/scheduler"
	"github.com/ant981228/research-tracker/internal/session"
)

// Server wires the tracker, classifier, and scheduler behind an echo
// instance bound to the configured loopback address.
type Server struct {
	echo     *echo.Echo
	tracker  *session.Tracker
	sched    *scheduler.Scheduler
	excluder *classify.Excluder
	notes    *noteLimiter
	addr     string
}

// New builds the server. The note rate limit and listen address come from
// the config; now overrides the clock for tests and may be nil.
func New(cfg *config.Config, tracker *session.Tracker, sched *scheduler.Scheduler, now func() time.Time) *Server {
	if now == nil {
		now = time.Now
	}

	domains := cfg.Capture.ExcludedDomains
	if len(domains) == 0 {
		domains = config.DefaultExcludedDomains()
	}

	s := &Server{
		tracker:  tracker,
		sched:    sched,
		excluder: classify.NewExcluder(domains),
		notes: &noteLimiter{
			interval: time.Duration(cfg.Tracker.NoteRateLimitSeconds) * time.Second,
			now:      now,
		},
		addr: fmt.Sprintf("%s:%d", cfg.Daemon.Host, cfg.Daemon.Port),
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	e.POST("/message", s.handleMessage)
	e.GET("/ws/events", s.handleEvents)
	e.GET("/health", s.handleHealth)

	s.echo = e
	return s
}

// Start recovers persisted recording state, re-arms the scheduler when a
// live session survived the restart, and blocks serving HTTP.
func (s *Server) Start(ctx context.Context) error {
	if err := s.tracker.EnsureLoaded(ctx); err != nil {
		return fmt.Errorf("recover state: %w", err)
	}

	recording, err := s.tracker.IsRecording(ctx)
	if err != nil {
		return fmt.Errorf("recover state: %w", err)
	}
	if recording {
		log.Printf("daemon: resuming recording after restart")
		s.sched.Arm(ctx)
	}

	log.Printf("daemon: listening on %s", s.addr)
	if err := s.echo.Start(s.addr); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown disarms the timers and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.sched.Disarm()
	return s.echo.Shutdown(ctx)
}

func (s *Server) handleHealth(c echo.Context) error {
	recording, err := s.tracker.IsRecording(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"status": "degraded", "error": err.Error()})
	}
	return c.JSON(http.StatusOK, echo.Map{"status": "ok", "isRecording": recording})
}
