package session

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Session is one bounded recording of research activity.
//
// Searches and PageVisits are denormalized views over Events, kept in
// sync on every mutation for fast recent-N display. In memory they alias
// the same records as Events; UnmarshalJSON restores the aliasing after a
// round trip so an in-place metadata merge stays visible from both sides.
type Session struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	StartTime  time.Time         `json:"startTime"`
	EndTime    *time.Time        `json:"endTime"`
	IsPaused   bool              `json:"isPaused"`
	Events     eventList         `json:"events"`
	Searches   []*SearchEvent    `json:"searches"`
	PageVisits []*PageVisitEvent `json:"pageVisits"`
}

// newSessionID generates a practically unique session ID without
// coordination: millisecond timestamp plus a random suffix.
func newSessionID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%d-%s", now.UnixMilli(), suffix)
}

// defaultName returns the date-stamped placeholder name.
func defaultName(now time.Time) string {
	return "Research Session " + now.Format("2006-01-02 15:04")
}

// NewSession creates an empty active session. An empty name gets the
// date-stamped placeholder.
func NewSession(name string, now time.Time) *Session {
	if strings.TrimSpace(name) == "" {
		name = defaultName(now)
	}
	return &Session{
		ID:         newSessionID(now),
		Name:       name,
		StartTime:  now,
		Events:     eventList{},
		Searches:   []*SearchEvent{},
		PageVisits: []*PageVisitEvent{},
	}
}

// appendSearch appends to Events and the Searches view.
func (s *Session) appendSearch(e *SearchEvent) {
	s.Events = append(s.Events, e)
	s.Searches = append(s.Searches, e)
}

// appendPageVisit appends to Events and the PageVisits view.
func (s *Session) appendPageVisit(e *PageVisitEvent) {
	s.Events = append(s.Events, e)
	s.PageVisits = append(s.PageVisits, e)
}

// UnmarshalJSON decodes the session and rebuilds the Searches and
// PageVisits views as aliases into Events, discarding the redundant
// stored copies.
func (s *Session) UnmarshalJSON(data []byte) error {
	type shadow struct {
		ID        string          `json:"id"`
		Name      string          `json:"name"`
		StartTime time.Time       `json:"startTime"`
		EndTime   *time.Time      `json:"endTime"`
		IsPaused  bool            `json:"isPaused"`
		Events    eventList       `json:"events"`
		Searches  json.RawMessage `json:"searches"`
		Visits    json.RawMessage `json:"pageVisits"`
	}

	var sh shadow
	if err := json.Unmarshal(data, &sh); err != nil {
		return err
	}

	s.ID = sh.ID
	s.Name = sh.Name
	s.StartTime = sh.StartTime
	s.EndTime = sh.EndTime
	s.IsPaused = sh.IsPaused
	s.Events = sh.Events
	if s.Events == nil {
		s.Events = eventList{}
	}

	s.Searches = []*SearchEvent{}
	s.PageVisits = []*PageVisitEvent{}
	for _, e := range s.Events {
		switch v := e.(type) {
		case *SearchEvent:
			s.Searches = append(s.Searches, v)
		case *PageVisitEvent:
			s.PageVisits = append(s.PageVisits, v)
		case *MetadataEvent, *NoteEvent, *SessionEndedEvent, *SessionResumedEvent:
			// Timeline-only kinds; no denormalized view.
		default:
			return fmt.Errorf("unhandled event kind %q", e.Kind())
		}
	}

	return nil
}

// Validate checks a stored session record for the corruption cases that
// must not be loaded back into the current slot.
func (s *Session) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("missing id")
	}
	if s.Name == "" {
		return fmt.Errorf("missing name")
	}
	if s.StartTime.IsZero() {
		return fmt.Errorf("missing startTime")
	}
	if s.Events == nil || s.Searches == nil || s.PageVisits == nil {
		return fmt.Errorf("event logs are not lists")
	}
	return nil
}

// Clone deep-copies the session via a JSON round trip.
func (s *Session) Clone() (*Session, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("clone session: %w", err)
	}
	var out Session
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("clone session: %w", err)
	}
	return &out, nil
}

// Summary is the listing form of a session: identity and counts only,
// no event payloads.
type Summary struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	StartTime  time.Time  `json:"startTime"`
	EndTime    *time.Time `json:"endTime,omitempty"`
	Events     int        `json:"events"`
	Searches   int        `json:"searches"`
	PageVisits int        `json:"pageVisits"`
}

// Summarize reduces a session to its Summary.
func (s *Session) Summarize() Summary {
	return Summary{
		ID:         s.ID,
		Name:       s.Name,
		StartTime:  s.StartTime,
		EndTime:    s.EndTime,
		Events:     len(s.Events),
		Searches:   len(s.Searches),
		PageVisits: len(s.PageVisits),
	}
}
