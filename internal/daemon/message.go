package daemon

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/ant981228/research-tracker/internal/session"
)

// messageRequest is the envelope for every command. Action selects the
// operation; the remaining fields are read per action.
type messageRequest struct {
	Action    string           `json:"action"`
	Name      string           `json:"name,omitempty"`
	URL       string           `json:"url,omitempty"`
	Note      string           `json:"note,omitempty"`
	Metadata  session.Metadata `json:"metadata,omitempty"`
	SessionID string           `json:"sessionId,omitempty"`
	Format    string           `json:"format,omitempty"`
	NewName   string           `json:"newName,omitempty"`
}

func (s *Server) handleMessage(c echo.Context) error {
	var req messageRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"success": false, "error": "invalid request body"})
	}

	ctx := c.Request().Context()

	switch req.Action {
	case "start":
		if err := s.tracker.Start(ctx, req.Name); err != nil {
			return fail(c, err)
		}
		s.sched.Arm(ctx)
		return c.JSON(http.StatusOK, echo.Map{"isRecording": true})

	case "stop":
		finished, err := s.tracker.Stop(ctx)
		if err != nil {
			return fail(c, err)
		}
		s.sched.Disarm()
		return c.JSON(http.StatusOK, echo.Map{"isRecording": false, "savedSession": finished != nil})

	case "pause":
		if err := s.tracker.Pause(ctx); err != nil {
			return fail(c, err)
		}
		return recordingState(c, s)

	case "resume":
		if err := s.tracker.Resume(ctx); err != nil {
			return fail(c, err)
		}
		return recordingState(c, s)

	case "addNote":
		if ok, wait := s.notes.check(); !ok {
			return c.JSON(http.StatusOK, echo.Map{
				"success":     false,
				"rateLimited": true,
				"waitTimeMs":  wait.Milliseconds(),
			})
		}
		if err := s.tracker.AddNote(ctx, req.URL, req.Note); err != nil {
			return fail(c, err)
		}
		s.notes.claim()
		return c.JSON(http.StatusOK, echo.Map{"success": true})

	case "updatePageMetadata":
		if err := s.tracker.UpdateMetadata(ctx, req.URL, req.Metadata); err != nil {
			return fail(c, err)
		}
		return c.JSON(http.StatusOK, echo.Map{"success": true})

	case "getPageMetadata":
		md, err := s.tracker.GetMetadata(ctx, req.URL)
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(http.StatusOK, echo.Map{"success": true, "metadata": md})

	case "getStatus":
		st, err := s.tracker.Status(ctx)
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(http.StatusOK, st)

	case "renameCurrent":
		if err := s.tracker.Rename(ctx, req.NewName); err != nil {
			return fail(c, err)
		}
		return c.JSON(http.StatusOK, echo.Map{"success": true})

	case "rename":
		if err := s.tracker.RenameCompleted(ctx, req.SessionID, req.NewName); err != nil {
			return fail(c, err)
		}
		return c.JSON(http.StatusOK, echo.Map{"success": true})

	case "resumeSession":
		if _, err := s.tracker.ResumeCompleted(ctx, req.SessionID); err != nil {
			return fail(c, err)
		}
		s.sched.Arm(ctx)
		return c.JSON(http.StatusOK, echo.Map{"success": true, "isRecording": true})

	case "deleteSession":
		if err := s.tracker.Delete(ctx, req.SessionID); err != nil {
			return fail(c, err)
		}
		return c.JSON(http.StatusOK, echo.Map{"success": true})

	case "exportSession":
		data, err := s.tracker.Export(ctx, req.SessionID, req.Format)
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(http.StatusOK, echo.Map{"success": true, "data": string(data)})

	case "getSessions":
		summaries, err := s.tracker.Summaries(ctx)
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(http.StatusOK, echo.Map{"success": true, "sessions": summaries})

	default:
		return c.JSON(http.StatusBadRequest, echo.Map{"success": false, "error": "unknown action: " + req.Action})
	}
}

func recordingState(c echo.Context, s *Server) error {
	recording, err := s.tracker.IsRecording(c.Request().Context())
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"isRecording": recording})
}

// fail maps expected conditions to structured declines and everything
// else, storage failures included, to a 500.
func fail(c echo.Context, err error) error {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, session.ErrNoCurrentSession),
		errors.Is(err, session.ErrSessionActive),
		errors.Is(err, session.ErrNotFound),
		errors.Is(err, session.ErrCorruptSession):
		status = http.StatusOK
	}
	return c.JSON(status, echo.Map{"success": false, "error": err.Error()})
}

// noteLimiter enforces the global minimum gap between notes. Global on
// purpose: the limit guards against note spam, not per-page frequency.
type noteLimiter struct {
	mu       sync.Mutex
	interval time.Duration
	now      func() time.Time
	last     time.Time
}

// check reports whether a note may be recorded now, and if not, how long
// the caller should wait. It does not claim the slot; a note that the
// tracker declines must not lock out the next attempt.
func (l *noteLimiter) check() (bool, time.Duration) {
	if l.interval <= 0 {
		return true, 0
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.last.IsZero() {
		if elapsed := l.now().Sub(l.last); elapsed < l.interval {
			return false, l.interval - elapsed
		}
	}
	return true, 0
}

// claim records a successfully added note as the start of the next gap.
func (l *noteLimiter) claim() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.last = l.now()
}
