package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/ant981228/research-tracker/internal/storage"
)

var (
	// ErrNoCurrentSession is returned by operations that need an active
	// session when there is none.
	ErrNoCurrentSession = errors.New("no current session")
	// ErrSessionActive is returned by ResumeCompleted when a session is
	// already active; the active session is never silently replaced.
	ErrSessionActive = errors.New("a session is already active")
	// ErrNotFound is returned when no completed session has the given id.
	ErrNotFound = errors.New("session not found")
	// ErrCorruptSession is returned when a stored record fails validation.
	ErrCorruptSession = errors.New("corrupt session record")
)

// Options carries the tracker's policy knobs.
type Options struct {
	// Staleness is the maximum age of the last persisted save before a
	// recovered session is auto-stopped instead of resumed.
	Staleness time.Duration
	// NoteDedupWindow bounds the export-time duplicate-note window.
	NoteDedupWindow time.Duration
	// Now overrides the clock, for tests.
	Now func() time.Time
}

const (
	defaultStaleness   = 24 * time.Hour
	defaultDedupWindow = 5 * time.Second
)

// Tracker owns the recording state: whether recording is active and the
// single current session. All mutation goes through its methods. State is
// lazily rehydrated from the store, since the process may have been
// restarted since the state was last in memory.
type Tracker struct {
	mu    sync.Mutex
	store storage.Store
	now   func() time.Time

	staleness   time.Duration
	dedupWindow time.Duration

	loaded    bool
	recording bool
	current   *Session
}

// NewTracker creates a Tracker over the given store. Zero option fields
// get defaults.
func NewTracker(store storage.Store, opts Options) *Tracker {
	t := &Tracker{
		store:       store,
		now:         opts.Now,
		staleness:   opts.Staleness,
		dedupWindow: opts.NoteDedupWindow,
	}
	if t.now == nil {
		t.now = time.Now
	}
	if t.staleness <= 0 {
		t.staleness = defaultStaleness
	}
	if t.dedupWindow <= 0 {
		t.dedupWindow = defaultDedupWindow
	}
	return t
}

// EnsureLoaded rehydrates recording state from the store if this process
// has not done so yet. Idempotent and called by every operation, so the
// in-memory copy is never trusted across a process restart.
func (t *Tracker) EnsureLoaded(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ensureLoadedLocked(ctx)
}

func (t *Tracker) ensureLoadedLocked(ctx context.Context) error {
	if t.loaded {
		return nil
	}

	var recording bool
	if _, err := storage.GetJSON(ctx, t.store, storage.KeyIsRecording, &recording); err != nil {
		return fmt.Errorf("load recording flag: %w", err)
	}

	var current *Session
	found, err := storage.GetJSON(ctx, t.store, storage.KeyCurrentSession, &current)
	if err != nil {
		return fmt.Errorf("load current session: %w", err)
	}

	switch {
	case recording && found && current != nil:
		if t.isStale(ctx) {
			// The session was abandoned; finalize it instead of
			// resuming, keeping every already-appended event.
			if err := t.finalize(ctx, current); err != nil {
				return fmt.Errorf("auto-stop stale session: %w", err)
			}
		} else {
			t.current = current
			t.recording = true
		}
	case recording:
		// Stray flag with no session blob; reset it.
		t.recording = false
		t.logPersist(storage.SetJSON(ctx, t.store, storage.KeyIsRecording, false))
	}

	t.loaded = true
	return nil
}

// isStale reports whether the last persisted save is older than the
// staleness threshold. A missing timestamp counts as fresh.
func (t *Tracker) isStale(ctx context.Context) bool {
	var lastSaveMillis int64
	found, err := storage.GetJSON(ctx, t.store, storage.KeyLastSave, &lastSaveMillis)
	if err != nil || !found || lastSaveMillis <= 0 {
		return false
	}
	lastSave := time.UnixMilli(lastSaveMillis)
	return t.now().Sub(lastSave) > t.staleness
}

// IsRecording reports whether a session is actively recording.
func (t *Tracker) IsRecording(ctx context.Context) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.ensureLoadedLocked(ctx); err != nil {
		return false, err
	}
	return t.recording, nil
}

// Start begins a new session, or resumes the current one if it is merely
// paused. Never fails on a precondition: starting while already recording
// is a no-op.
func (t *Tracker) Start(ctx context.Context, name string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.ensureLoadedLocked(ctx); err != nil {
		return err
	}

	if t.recording && t.current != nil {
		if t.current.IsPaused {
			t.current.IsPaused = false
			t.logPersist(t.persistCurrent(ctx))
		}
		return nil
	}

	t.current = NewSession(name, t.now())
	t.recording = true
	t.bumpActivity(ctx)
	t.logPersist(t.persistCurrent(ctx))
	return nil
}

// Stop ends the current session and moves it into the completed
// collection. Returns nil with no error when nothing was recording. This
// is the one operation that read-modify-writes the completed list, so it
// returns only after that round trip; a caller that sees no error has the
// session durably saved.
func (t *Tracker) Stop(ctx context.Context) (*Session, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.ensureLoadedLocked(ctx); err != nil {
		return nil, err
	}

	if !t.recording || t.current == nil {
		return nil, nil
	}

	finished := t.current
	if err := t.finalize(ctx, finished); err != nil {
		return finished, err
	}
	return finished, nil
}

// finalize appends the end marker, moves the session into the completed
// list, and clears the current slot. The in-memory transition happens
// even if the store write fails; the error is surfaced for explicit
// callers.
func (t *Tracker) finalize(ctx context.Context, s *Session) error {
	now := t.now()
	s.EndTime = &now
	s.Events = append(s.Events, &SessionEndedEvent{Timestamp: now})

	t.current = nil
	t.recording = false

	completed, err := t.readCompleted(ctx)
	if err != nil {
		return err
	}
	completed = append(completed, s)
	if err := t.writeCompleted(ctx, completed); err != nil {
		return err
	}

	if err := t.store.Remove(ctx, storage.KeyCurrentSession); err != nil {
		return err
	}
	return storage.SetJSON(ctx, t.store, storage.KeyIsRecording, false)
}

// Pause suspends event capture without ending the session. No-op when
// not recording.
func (t *Tracker) Pause(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.ensureLoadedLocked(ctx); err != nil {
		return err
	}
	if !t.recording || t.current == nil || t.current.IsPaused {
		return nil
	}
	t.current.IsPaused = true
	t.logPersist(t.persistCurrent(ctx))
	return nil
}

// Resume lifts a pause. No-op when not recording or not paused.
func (t *Tracker) Resume(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.ensureLoadedLocked(ctx); err != nil {
		return err
	}
	if !t.recording || t.current == nil || !t.current.IsPaused {
		return nil
	}
	t.current.IsPaused = false
	t.logPersist(t.persistCurrent(ctx))
	return nil
}

// SearchInput is one classified query submission.
type SearchInput struct {
	Engine    string
	Domain    string
	Query     string
	Params    map[string]string
	URL       string
	TabID     int
	Timestamp time.Time
}

// LogSearch appends a search event. Dropped silently unless a session is
// active and unpaused.
func (t *Tracker) LogSearch(ctx context.Context, in SearchInput) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.ensureLoadedLocked(ctx); err != nil {
		return err
	}
	if !t.capturing() {
		return nil
	}

	ts := in.Timestamp
	if ts.IsZero() {
		ts = t.now()
	}
	t.current.appendSearch(&SearchEvent{
		Engine:    in.Engine,
		Domain:    in.Domain,
		Query:     in.Query,
		Params:    in.Params,
		URL:       in.URL,
		TabID:     in.TabID,
		Timestamp: ts,
	})

	t.bumpActivity(ctx)
	t.logPersist(t.persistCurrent(ctx))
	return nil
}

// PageVisitInput is one navigation to a content page.
type PageVisitInput struct {
	URL       string
	Title     string
	TabID     int
	Timestamp time.Time
}

// LogPageVisit appends a page-visit event, back-linking the nearest
// preceding search as its likely source. Dropped silently unless a
// session is active and unpaused.
func (t *Tracker) LogPageVisit(ctx context.Context, in PageVisitInput) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.ensureLoadedLocked(ctx); err != nil {
		return err
	}
	if !t.capturing() {
		return nil
	}

	ts := in.Timestamp
	if ts.IsZero() {
		ts = t.now()
	}

	visit := &PageVisitEvent{
		URL:       in.URL,
		Title:     in.Title,
		TabID:     in.TabID,
		Timestamp: ts,
	}

	// Reverse scan for the nearest search strictly before the visit. A
	// search at the exact same instant cannot have led to the visit, so
	// ties leave the back-link empty.
	for i := len(t.current.Searches) - 1; i >= 0; i-- {
		s := t.current.Searches[i]
		if s.Timestamp.Before(ts) {
			visit.SourceSearch = &SearchRef{
				Engine:    s.Engine,
				Query:     s.Query,
				URL:       s.URL,
				Timestamp: s.Timestamp,
			}
			break
		}
	}

	t.current.appendPageVisit(visit)
	t.bumpActivity(ctx)
	t.logPersist(t.persistCurrent(ctx))
	return nil
}

// UpdateMetadata merges scraped metadata into the most recent matching
// page visit or search for the URL. With no match it appends a standalone
// metadata event; it succeeds regardless of how much history exists.
// No-op when there is no current session.
func (t *Tracker) UpdateMetadata(ctx context.Context, url string, md Metadata) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.ensureLoadedLocked(ctx); err != nil {
		return err
	}
	if t.current == nil {
		return nil
	}

	if visit := t.current.findPageVisit(url); visit != nil {
		visit.Metadata = mergeMetadata(visit.Metadata, md)
	} else if search := t.current.findSearch(url); search != nil {
		search.Metadata = mergeMetadata(search.Metadata, md)
	} else {
		t.current.Events = append(t.current.Events, &MetadataEvent{
			URL:       url,
			Timestamp: t.now(),
			Metadata:  md,
		})
	}

	t.bumpActivity(ctx)
	t.logPersist(t.persistCurrent(ctx))
	return nil
}

// GetMetadata returns the stored metadata for a URL: page visits first,
// then searches, then orphaned metadata events, most recent match wins.
// Returns an empty bag when nothing matches.
func (t *Tracker) GetMetadata(ctx context.Context, url string) (Metadata, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.ensureLoadedLocked(ctx); err != nil {
		return nil, err
	}
	if t.current == nil {
		return Metadata{}, nil
	}

	if visit := t.current.findPageVisit(url); visit != nil && visit.Metadata != nil {
		return visit.Metadata, nil
	}
	if search := t.current.findSearch(url); search != nil && search.Metadata != nil {
		return search.Metadata, nil
	}
	if orphan := t.current.findMetadataEvent(url); orphan != nil {
		return orphan.Metadata, nil
	}
	return Metadata{}, nil
}

// AddNote attaches a note to the most recent matching search (searches
// take priority) or page visit for the URL, replacing any existing note:
// a target holds at most one note, last write wins. With no match the
// note is appended as an orphaned event. Requires a current session.
func (t *Tracker) AddNote(ctx context.Context, url, content string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.ensureLoadedLocked(ctx); err != nil {
		return err
	}
	if !t.recording || t.current == nil {
		return ErrNoCurrentSession
	}

	note := Note{Content: content, Timestamp: t.now()}

	if search := t.current.findSearch(url); search != nil {
		search.Notes = []Note{note}
		search.HasNotes = true
	} else if visit := t.current.findPageVisit(url); visit != nil {
		visit.Notes = []Note{note}
		visit.HasNotes = true
	} else {
		t.current.Events = append(t.current.Events, &NoteEvent{
			URL:       url,
			Content:   content,
			Timestamp: note.Timestamp,
			Orphaned:  true,
		})
	}

	t.bumpActivity(ctx)
	t.logPersist(t.persistCurrent(ctx))
	return nil
}

// Rename changes the current session's name.
func (t *Tracker) Rename(ctx context.Context, newName string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.ensureLoadedLocked(ctx); err != nil {
		return err
	}
	if t.current == nil {
		return ErrNoCurrentSession
	}
	t.current.Name = newName
	return t.persistCurrent(ctx)
}

// RenameCompleted changes a completed session's name. Only touches the
// completed list, never the current session.
func (t *Tracker) RenameCompleted(ctx context.Context, id, newName string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.ensureLoadedLocked(ctx); err != nil {
		return err
	}

	completed, err := t.readCompleted(ctx)
	if err != nil {
		return err
	}
	for _, s := range completed {
		if s.ID == id {
			s.Name = newName
			return t.writeCompleted(ctx, completed)
		}
	}
	return ErrNotFound
}

// ResumeCompleted pulls a completed session back into the current slot.
// Rejects if a session is already active or the stored record fails
// validation.
func (t *Tracker) ResumeCompleted(ctx context.Context, id string) (*Session, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.ensureLoadedLocked(ctx); err != nil {
		return nil, err
	}
	if t.recording && t.current != nil {
		return nil, ErrSessionActive
	}

	completed, err := t.readCompleted(ctx)
	if err != nil {
		return nil, err
	}

	idx := -1
	for i, s := range completed {
		if s.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, ErrNotFound
	}

	s := completed[idx]
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptSession, err)
	}

	completed = append(completed[:idx], completed[idx+1:]...)
	if err := t.writeCompleted(ctx, completed); err != nil {
		return nil, err
	}

	previousEnd := s.EndTime
	s.EndTime = nil
	s.IsPaused = false
	s.Events = append(s.Events, &SessionResumedEvent{
		Timestamp:       t.now(),
		PreviousEndTime: previousEnd,
	})

	t.current = s
	t.recording = true
	t.bumpActivity(ctx)
	if err := t.persistCurrent(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Delete removes a completed session. Hard removal, no tombstone.
func (t *Tracker) Delete(ctx context.Context, id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.ensureLoadedLocked(ctx); err != nil {
		return err
	}

	completed, err := t.readCompleted(ctx)
	if err != nil {
		return err
	}

	kept := completed[:0]
	for _, s := range completed {
		if s.ID != id {
			kept = append(kept, s)
		}
	}
	if len(kept) == len(completed) {
		return ErrNotFound
	}
	return t.writeCompleted(ctx, kept)
}

// Summaries lists completed sessions as summaries: identity and counts,
// no event payloads.
func (t *Tracker) Summaries(ctx context.Context) ([]Summary, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.ensureLoadedLocked(ctx); err != nil {
		return nil, err
	}

	completed, err := t.readCompleted(ctx)
	if err != nil {
		return nil, err
	}

	summaries := make([]Summary, 0, len(completed))
	for _, s := range completed {
		summaries = append(summaries, s.Summarize())
	}
	return summaries, nil
}

// RecentPage is a page visit in the status view.
type RecentPage struct {
	URL       string    `json:"url"`
	Title     string    `json:"title"`
	Timestamp time.Time `json:"timestamp"`
}

// RecentSearch is a search in the status view.
type RecentSearch struct {
	Engine    string    `json:"engine"`
	Query     string    `json:"query"`
	Timestamp time.Time `json:"timestamp"`
}

// CurrentStatus describes the current session for display.
type CurrentStatus struct {
	ID             string         `json:"id"`
	Name           string         `json:"name"`
	StartTime      time.Time      `json:"startTime"`
	IsPaused       bool           `json:"isPaused"`
	Events         int            `json:"events"`
	RecentPages    []RecentPage   `json:"recentPages"`
	RecentSearches []RecentSearch `json:"recentSearches"`
}

// Status reports the recording flag and, when active, a summary of the
// current session with the five most recent pages and searches.
type Status struct {
	IsRecording bool           `json:"isRecording"`
	Current     *CurrentStatus `json:"currentSession,omitempty"`
}

const recentCount = 5

// Status returns the current recording status.
func (t *Tracker) Status(ctx context.Context) (Status, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.ensureLoadedLocked(ctx); err != nil {
		return Status{}, err
	}

	st := Status{IsRecording: t.recording}
	if t.current == nil {
		return st, nil
	}

	cur := &CurrentStatus{
		ID:             t.current.ID,
		Name:           t.current.Name,
		StartTime:      t.current.StartTime,
		IsPaused:       t.current.IsPaused,
		Events:         len(t.current.Events),
		RecentPages:    []RecentPage{},
		RecentSearches: []RecentSearch{},
	}

	visits := t.current.PageVisits
	for i := len(visits) - 1; i >= 0 && len(cur.RecentPages) < recentCount; i-- {
		cur.RecentPages = append(cur.RecentPages, RecentPage{
			URL:       visits[i].URL,
			Title:     visits[i].Title,
			Timestamp: visits[i].Timestamp,
		})
	}

	searches := t.current.Searches
	for i := len(searches) - 1; i >= 0 && len(cur.RecentSearches) < recentCount; i-- {
		cur.RecentSearches = append(cur.RecentSearches, RecentSearch{
			Engine:    searches[i].Engine,
			Query:     searches[i].Query,
			Timestamp: searches[i].Timestamp,
		})
	}

	st.Current = cur
	return st, nil
}

// ForceSave persists the current session and refreshes the save
// timestamp. Used by the autosave timer; no-op when idle.
func (t *Tracker) ForceSave(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.ensureLoadedLocked(ctx); err != nil {
		return err
	}
	if t.current == nil {
		return nil
	}
	return t.persistCurrent(ctx)
}

// TouchSave refreshes the save timestamp without rewriting the session.
// Used by the keep-alive timer so an actively recording process never
// trips the staleness auto-stop.
func (t *Tracker) TouchSave(ctx context.Context) error {
	return storage.SetJSON(ctx, t.store, storage.KeyLastSave, t.now().UnixMilli())
}

// LastActivity returns when a user-driven event was last recorded, or
// the zero time if never.
func (t *Tracker) LastActivity(ctx context.Context) (time.Time, error) {
	var millis int64
	found, err := storage.GetJSON(ctx, t.store, storage.KeyLastActivity, &millis)
	if err != nil || !found {
		return time.Time{}, err
	}
	return time.UnixMilli(millis), nil
}

// capturing reports whether events should be appended right now.
func (t *Tracker) capturing() bool {
	return t.recording && t.current != nil && !t.current.IsPaused
}

// persistCurrent writes the current session, the recording flag, and the
// save timestamp.
func (t *Tracker) persistCurrent(ctx context.Context) error {
	if err := storage.SetJSON(ctx, t.store, storage.KeyCurrentSession, t.current); err != nil {
		return err
	}
	if err := storage.SetJSON(ctx, t.store, storage.KeyIsRecording, t.recording); err != nil {
		return err
	}
	return storage.SetJSON(ctx, t.store, storage.KeyLastSave, t.now().UnixMilli())
}

// bumpActivity records user activity, best effort.
func (t *Tracker) bumpActivity(ctx context.Context) {
	t.logPersist(storage.SetJSON(ctx, t.store, storage.KeyLastActivity, t.now().UnixMilli()))
}

// logPersist logs a failed fire-and-forget write. The in-memory mutation
// is kept; memory is the source of truth until the next successful
// read-back.
func (t *Tracker) logPersist(err error) {
	if err != nil {
		log.Printf("session: persist failed: %v", err)
	}
}

// readCompleted loads the completed-session list; absent means empty.
func (t *Tracker) readCompleted(ctx context.Context) ([]*Session, error) {
	var completed []*Session
	if _, err := storage.GetJSON(ctx, t.store, storage.KeySessions, &completed); err != nil {
		return nil, err
	}
	return completed, nil
}

// writeCompleted rewrites the whole completed-session list. The list is
// a single stored value, which bounds practical history size.
func (t *Tracker) writeCompleted(ctx context.Context, completed []*Session) error {
	if completed == nil {
		completed = []*Session{}
	}
	return storage.SetJSON(ctx, t.store, storage.KeySessions, completed)
}

// mergeMetadata shallow-merges src over dst; new keys win.
func mergeMetadata(dst, src Metadata) Metadata {
	if dst == nil {
		dst = Metadata{}
	}
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

// findPageVisit returns the most recent page visit for a URL, or nil.
func (s *Session) findPageVisit(url string) *PageVisitEvent {
	for i := len(s.PageVisits) - 1; i >= 0; i-- {
		if s.PageVisits[i].URL == url {
			return s.PageVisits[i]
		}
	}
	return nil
}

// findSearch returns the most recent search for a URL, or nil.
func (s *Session) findSearch(url string) *SearchEvent {
	for i := len(s.Searches) - 1; i >= 0; i-- {
		if s.Searches[i].URL == url {
			return s.Searches[i]
		}
	}
	return nil
}

// findMetadataEvent returns the most recent orphaned metadata event for a
// URL, or nil.
func (s *Session) findMetadataEvent(url string) *MetadataEvent {
	for i := len(s.Events) - 1; i >= 0; i-- {
		if m, ok := s.Events[i].(*MetadataEvent); ok && m.URL == url {
			return m
		}
	}
	return nil
}
