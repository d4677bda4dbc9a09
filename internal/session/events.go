// Package session implements the recording state machine: the current
// session, its append-only event timeline, persistence, and recovery.
package session

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventKind discriminates the event union on the wire.
type EventKind string

const (
	KindSearch         EventKind = "search"
	KindPageVisit      EventKind = "pageVisit"
	KindMetadata       EventKind = "metadata"
	KindNote           EventKind = "note"
	KindSessionEnded   EventKind = "session_ended"
	KindSessionResumed EventKind = "session_resumed"
)

// Event is one entry in a session's timeline. The concrete type carries
// only the fields relevant to its kind; consumers switch exhaustively on
// Kind so a new kind cannot be silently mishandled.
type Event interface {
	Kind() EventKind
	OccurredAt() time.Time
}

// Metadata is the opaque key-value bag produced by the page scrapers.
// The state machine only merges and stores it.
type Metadata map[string]interface{}

// Note is a single user note attached to a search, page visit, or (when
// orphaned) the session itself. A target holds at most one note.
type Note struct {
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// SearchRef is the snapshot of a search event attached to a page visit as
// its likely cause. A best-effort causal link, not a guarantee.
type SearchRef struct {
	Engine    string    `json:"engine"`
	Query     string    `json:"query"`
	URL       string    `json:"url"`
	Timestamp time.Time `json:"timestamp"`
}

// SearchEvent records one query submission.
type SearchEvent struct {
	Engine    string            `json:"engine"`
	Domain    string            `json:"domain"`
	Query     string            `json:"query"`
	Params    map[string]string `json:"params,omitempty"`
	URL       string            `json:"url"`
	Timestamp time.Time         `json:"timestamp"`
	TabID     int               `json:"tabId,omitempty"`
	Metadata  Metadata          `json:"metadata,omitempty"`
	Notes     []Note            `json:"notes,omitempty"`
	HasNotes  bool              `json:"has_notes,omitempty"`
}

func (e *SearchEvent) Kind() EventKind       { return KindSearch }
func (e *SearchEvent) OccurredAt() time.Time { return e.Timestamp }

// PageVisitEvent records one navigation to a content page.
type PageVisitEvent struct {
	URL          string     `json:"url"`
	Title        string     `json:"title"`
	Timestamp    time.Time  `json:"timestamp"`
	TabID        int        `json:"tabId,omitempty"`
	SourceSearch *SearchRef `json:"sourceSearch,omitempty"`
	Metadata     Metadata   `json:"metadata,omitempty"`
	Notes        []Note     `json:"notes,omitempty"`
	HasNotes     bool       `json:"has_notes,omitempty"`
}

func (e *PageVisitEvent) Kind() EventKind       { return KindPageVisit }
func (e *PageVisitEvent) OccurredAt() time.Time { return e.Timestamp }

// MetadataEvent is a standalone metadata update whose URL matched no
// recorded search or page visit.
type MetadataEvent struct {
	URL       string    `json:"url"`
	Timestamp time.Time `json:"timestamp"`
	Metadata  Metadata  `json:"metadata"`
}

func (e *MetadataEvent) Kind() EventKind       { return KindMetadata }
func (e *MetadataEvent) OccurredAt() time.Time { return e.Timestamp }

// NoteEvent is a standalone note whose URL matched no recorded search or
// page visit.
type NoteEvent struct {
	URL       string    `json:"url"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Orphaned  bool      `json:"orphaned"`
}

func (e *NoteEvent) Kind() EventKind       { return KindNote }
func (e *NoteEvent) OccurredAt() time.Time { return e.Timestamp }

// SessionEndedEvent marks an explicit stop.
type SessionEndedEvent struct {
	Timestamp time.Time `json:"timestamp"`
}

func (e *SessionEndedEvent) Kind() EventKind       { return KindSessionEnded }
func (e *SessionEndedEvent) OccurredAt() time.Time { return e.Timestamp }

// SessionResumedEvent marks a completed session being pulled back into
// the current slot.
type SessionResumedEvent struct {
	Timestamp       time.Time  `json:"timestamp"`
	PreviousEndTime *time.Time `json:"previousEndTime,omitempty"`
}

func (e *SessionResumedEvent) Kind() EventKind       { return KindSessionResumed }
func (e *SessionResumedEvent) OccurredAt() time.Time { return e.Timestamp }

// marshalEvent wraps an event with its type tag.
func marshalEvent(e Event) ([]byte, error) {
	var payload interface{}
	switch v := e.(type) {
	case *SearchEvent:
		type alias SearchEvent
		payload = struct {
			Type EventKind `json:"type"`
			*alias
		}{v.Kind(), (*alias)(v)}
	case *PageVisitEvent:
		type alias PageVisitEvent
		payload = struct {
			Type EventKind `json:"type"`
			*alias
		}{v.Kind(), (*alias)(v)}
	case *MetadataEvent:
		type alias MetadataEvent
		payload = struct {
			Type EventKind `json:"type"`
			*alias
		}{v.Kind(), (*alias)(v)}
	case *NoteEvent:
		type alias NoteEvent
		payload = struct {
			Type EventKind `json:"type"`
			*alias
		}{v.Kind(), (*alias)(v)}
	case *SessionEndedEvent:
		type alias SessionEndedEvent
		payload = struct {
			Type EventKind `json:"type"`
			*alias
		}{v.Kind(), (*alias)(v)}
	case *SessionResumedEvent:
		type alias SessionResumedEvent
		payload = struct {
			Type EventKind `json:"type"`
			*alias
		}{v.Kind(), (*alias)(v)}
	default:
		return nil, fmt.Errorf("unknown event type %T", e)
	}
	return json.Marshal(payload)
}

// decodeEvent parses a tagged event record. Unknown kinds are an error,
// never silently dropped.
func decodeEvent(raw json.RawMessage) (Event, error) {
	var tag struct {
		Type EventKind `json:"type"`
	}
	if err := json.Unmarshal(raw, &tag); err != nil {
		return nil, fmt.Errorf("decode event tag: %w", err)
	}

	var e Event
	switch tag.Type {
	case KindSearch:
		e = &SearchEvent{}
	case KindPageVisit:
		e = &PageVisitEvent{}
	case KindMetadata:
		e = &MetadataEvent{}
	case KindNote:
		e = &NoteEvent{}
	case KindSessionEnded:
		e = &SessionEndedEvent{}
	case KindSessionResumed:
		e = &SessionResumedEvent{}
	default:
		return nil, fmt.Errorf("unknown event kind %q", tag.Type)
	}

	if err := json.Unmarshal(raw, e); err != nil {
		return nil, fmt.Errorf("decode %s event: %w", tag.Type, err)
	}
	return e, nil
}

// eventList is the wire form of a session timeline.
type eventList []Event

func (l eventList) MarshalJSON() ([]byte, error) {
	out := make([]json.RawMessage, 0, len(l))
	for _, e := range l {
		raw, err := marshalEvent(e)
		if err != nil {
			return nil, err
		}
		out = append(out, raw)
	}
	return json.Marshal(out)
}

func (l *eventList) UnmarshalJSON(data []byte) error {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return err
	}
	events := make([]Event, 0, len(raws))
	for _, raw := range raws {
		e, err := decodeEvent(raw)
		if err != nil {
			return err
		}
		events = append(events, e)
	}
	*l = events
	return nil
}
