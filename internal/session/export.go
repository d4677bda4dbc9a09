package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Export formats.
const (
	FormatJSON = "json"
	FormatText = "txt"
)

// ExportedNote is a note paired with the URL it was attached to.
type ExportedNote struct {
	Target    string    `json:"target"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// ExportDocument is the structured export form: the full session plus the
// aggregated, deduplicated note list.
type ExportDocument struct {
	Session    *Session       `json:"session"`
	Notes      []ExportedNote `json:"notes"`
	ExportedAt time.Time      `json:"exportedAt"`
}

// Export renders a completed session in the given format. A pure read:
// the session is deep-cloned and the stored record is never mutated.
func (t *Tracker) Export(ctx context.Context, id, format string) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.ensureLoadedLocked(ctx); err != nil {
		return nil, err
	}

	completed, err := t.readCompleted(ctx)
	if err != nil {
		return nil, err
	}

	var target *Session
	for _, s := range completed {
		if s.ID == id {
			target = s
			break
		}
	}
	if target == nil {
		return nil, ErrNotFound
	}

	clone, err := target.Clone()
	if err != nil {
		return nil, err
	}

	notes, err := collectNotes(clone)
	if err != nil {
		return nil, err
	}
	notes = dedupeNotes(notes, t.dedupWindow)

	switch format {
	case FormatJSON:
		doc := ExportDocument{Session: clone, Notes: notes, ExportedAt: t.now()}
		return json.MarshalIndent(doc, "", "  ")
	case FormatText:
		return renderText(clone, notes)
	default:
		return nil, fmt.Errorf("unknown export format %q", format)
	}
}

// collectNotes gathers every note in timeline order, pairing it with its
// target URL. Switches exhaustively over event kinds so a new kind cannot
// slip through unconsidered.
func collectNotes(s *Session) ([]ExportedNote, error) {
	var notes []ExportedNote
	for _, e := range s.Events {
		switch v := e.(type) {
		case *SearchEvent:
			for _, n := range v.Notes {
				notes = append(notes, ExportedNote{Target: v.URL, Content: n.Content, Timestamp: n.Timestamp})
			}
		case *PageVisitEvent:
			for _, n := range v.Notes {
				notes = append(notes, ExportedNote{Target: v.URL, Content: n.Content, Timestamp: n.Timestamp})
			}
		case *NoteEvent:
			notes = append(notes, ExportedNote{Target: v.URL, Content: v.Content, Timestamp: v.Timestamp})
		case *MetadataEvent, *SessionEndedEvent, *SessionResumedEvent:
			// No notes to collect.
		default:
			return nil, fmt.Errorf("unhandled event kind %q", e.Kind())
		}
	}
	return notes, nil
}

// dedupeNotes drops notes whose content exactly matches the previously
// kept note and whose timestamp falls within the window of it. The sort
// is mandatory: the walk is not idempotent on unsorted input.
func dedupeNotes(notes []ExportedNote, window time.Duration) []ExportedNote {
	sort.SliceStable(notes, func(i, j int) bool {
		return notes[i].Timestamp.Before(notes[j].Timestamp)
	})

	kept := make([]ExportedNote, 0, len(notes))
	for _, n := range notes {
		if len(kept) > 0 {
			prev := kept[len(kept)-1]
			if n.Content == prev.Content && n.Timestamp.Sub(prev.Timestamp) <= window {
				continue
			}
		}
		kept = append(kept, n)
	}
	return kept
}

// renderText produces the multi-section human-readable export.
func renderText(s *Session, notes []ExportedNote) ([]byte, error) {
	var b strings.Builder

	fmt.Fprintf(&b, "RESEARCH SESSION EXPORT\n")
	fmt.Fprintf(&b, "=======================\n")
	fmt.Fprintf(&b, "Name:    %s\n", s.Name)
	fmt.Fprintf(&b, "ID:      %s\n", s.ID)
	fmt.Fprintf(&b, "Started: %s\n", s.StartTime.Format(time.RFC3339))
	if s.EndTime != nil {
		fmt.Fprintf(&b, "Ended:   %s\n", s.EndTime.Format(time.RFC3339))
	}

	fmt.Fprintf(&b, "\nSUMMARY\n-------\n")
	fmt.Fprintf(&b, "Searches:     %d\n", len(s.Searches))
	fmt.Fprintf(&b, "Page visits:  %d\n", len(s.PageVisits))
	fmt.Fprintf(&b, "Notes:        %d\n", len(notes))
	fmt.Fprintf(&b, "Total events: %d\n", len(s.Events))

	fmt.Fprintf(&b, "\nTIMELINE\n--------\n")
	for _, e := range s.Events {
		ts := e.OccurredAt().Format(time.RFC3339)
		switch v := e.(type) {
		case *SearchEvent:
			fmt.Fprintf(&b, "[%s] SEARCH %s: %q\n", ts, v.Engine, v.Query)
		case *PageVisitEvent:
			if v.SourceSearch != nil {
				fmt.Fprintf(&b, "[%s] VISIT %s (%s) [from search: %q]\n", ts, v.Title, v.URL, v.SourceSearch.Query)
			} else {
				fmt.Fprintf(&b, "[%s] VISIT %s (%s)\n", ts, v.Title, v.URL)
			}
		case *MetadataEvent:
			fmt.Fprintf(&b, "[%s] METADATA %s (%d fields)\n", ts, v.URL, len(v.Metadata))
		case *NoteEvent:
			fmt.Fprintf(&b, "[%s] NOTE %s: %s\n", ts, v.URL, v.Content)
		case *SessionEndedEvent:
			fmt.Fprintf(&b, "[%s] SESSION ENDED\n", ts)
		case *SessionResumedEvent:
			fmt.Fprintf(&b, "[%s] SESSION RESUMED\n", ts)
		default:
			return nil, fmt.Errorf("unhandled event kind %q", e.Kind())
		}
	}

	if len(s.PageVisits) > 0 {
		fmt.Fprintf(&b, "\nPAGES\n-----\n")
		for _, v := range s.PageVisits {
			fmt.Fprintf(&b, "%s\n  %s\n", v.Title, v.URL)
			keys := make([]string, 0, len(v.Metadata))
			for k := range v.Metadata {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Fprintf(&b, "  %s: %v\n", k, v.Metadata[k])
			}
			for _, n := range v.Notes {
				fmt.Fprintf(&b, "  note: %s\n", n.Content)
			}
		}
	}

	if len(notes) > 0 {
		fmt.Fprintf(&b, "\nNOTES\n-----\n")
		for _, n := range notes {
			fmt.Fprintf(&b, "[%s] %s: %s\n", n.Timestamp.Format(time.RFC3339), n.Target, n.Content)
		}
	}

	return []byte(b.String()), nil
}
