package session

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ant981228/research-tracker/internal/storage"
)

// fakeClock is a controllable clock for deterministic timestamps.
type fakeClock struct {
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

// newTestStore creates a migrated in-memory store.
func newTestStore(t *testing.T) storage.Store {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, storage.NewMigrationRunner(db).Run(context.Background()))

	store, err := storage.NewSQLiteStore(db)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return store
}

func newTestTracker(t *testing.T) (*Tracker, storage.Store, *fakeClock) {
	t.Helper()
	store := newTestStore(t)
	clock := newFakeClock()
	tr := NewTracker(store, Options{Now: clock.Now})
	return tr, store, clock
}

func TestStart_CreatesSession(t *testing.T) {
	tr, _, _ := newTestTracker(t)
	ctx := context.Background()

	require.NoError(t, tr.Start(ctx, "Test"))

	st, err := tr.Status(ctx)
	require.NoError(t, err)
	assert.True(t, st.IsRecording)
	require.NotNil(t, st.Current)
	assert.Equal(t, "Test", st.Current.Name)
	assert.NotEmpty(t, st.Current.ID)
	assert.False(t, st.Current.IsPaused)
	assert.Zero(t, st.Current.Events)
}

func TestStart_DefaultName(t *testing.T) {
	tr, _, _ := newTestTracker(t)
	ctx := context.Background()

	require.NoError(t, tr.Start(ctx, "  "))

	st, err := tr.Status(ctx)
	require.NoError(t, err)
	assert.Contains(t, st.Current.Name, "Research Session 2026-03-14")
}

func TestStart_WhileActiveIsNoOp(t *testing.T) {
	tr, _, _ := newTestTracker(t)
	ctx := context.Background()

	require.NoError(t, tr.Start(ctx, "First"))
	first, err := tr.Status(ctx)
	require.NoError(t, err)

	// Starting again never silently overwrites the active session.
	require.NoError(t, tr.Start(ctx, "Second"))
	second, err := tr.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.Current.ID, second.Current.ID)
	assert.Equal(t, "First", second.Current.Name)
}

func TestStart_WhilePausedResumes(t *testing.T) {
	tr, _, _ := newTestTracker(t)
	ctx := context.Background()

	require.NoError(t, tr.Start(ctx, "Test"))
	require.NoError(t, tr.Pause(ctx))

	require.NoError(t, tr.Start(ctx, "ignored"))

	st, err := tr.Status(ctx)
	require.NoError(t, err)
	assert.False(t, st.Current.IsPaused)
	assert.Equal(t, "Test", st.Current.Name)
}

func TestStop_MovesSessionToCompleted(t *testing.T) {
	tr, _, clock := newTestTracker(t)
	ctx := context.Background()

	require.NoError(t, tr.Start(ctx, "Test"))
	clock.Advance(time.Minute)

	finished, err := tr.Stop(ctx)
	require.NoError(t, err)
	require.NotNil(t, finished)
	require.NotNil(t, finished.EndTime)
	assert.Equal(t, clock.Now(), *finished.EndTime)

	// End marker appended.
	require.NotEmpty(t, finished.Events)
	last := finished.Events[len(finished.Events)-1]
	assert.Equal(t, KindSessionEnded, last.Kind())

	st, err := tr.Status(ctx)
	require.NoError(t, err)
	assert.False(t, st.IsRecording)
	assert.Nil(t, st.Current)

	summaries, err := tr.Summaries(ctx)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, finished.ID, summaries[0].ID)
}

func TestStop_WhenIdleReturnsNil(t *testing.T) {
	tr, _, _ := newTestTracker(t)

	finished, err := tr.Stop(context.Background())
	require.NoError(t, err)
	assert.Nil(t, finished)
}

func TestLogSearch_AndPageVisit_SourceSearchBacklink(t *testing.T) {
	tr, _, clock := newTestTracker(t)
	ctx := context.Background()

	require.NoError(t, tr.Start(ctx, "Test"))

	t1 := clock.Now()
	require.NoError(t, tr.LogSearch(ctx, SearchInput{
		Engine: "GOOGLE", Domain: "google.com", Query: "foo",
		URL: "https://www.google.com/search?q=foo", Timestamp: t1,
	}))

	clock.Advance(time.Second)
	t2 := clock.Now()
	require.NoError(t, tr.LogPageVisit(ctx, PageVisitInput{
		URL: "https://example.com", Title: "Example", Timestamp: t2,
	}))

	st, err := tr.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, st.Current.Events)

	finished, err := tr.Stop(ctx)
	require.NoError(t, err)
	require.Len(t, finished.PageVisits, 1)
	require.NotNil(t, finished.PageVisits[0].SourceSearch)
	assert.Equal(t, "foo", finished.PageVisits[0].SourceSearch.Query)
	assert.Equal(t, "GOOGLE", finished.PageVisits[0].SourceSearch.Engine)
}

func TestLogPageVisit_SimultaneousSearchDoesNotBacklink(t *testing.T) {
	tr, _, clock := newTestTracker(t)
	ctx := context.Background()

	require.NoError(t, tr.Start(ctx, "Test"))

	// A search and a visit at the exact same instant: the search cannot
	// have led to the visit, so the back-link stays empty.
	ts := clock.Now()
	require.NoError(t, tr.LogSearch(ctx, SearchInput{
		Engine: "GOOGLE", Domain: "google.com", Query: "foo",
		URL: "https://www.google.com/search?q=foo", Timestamp: ts,
	}))
	require.NoError(t, tr.LogPageVisit(ctx, PageVisitInput{
		URL: "https://example.com", Title: "Example", Timestamp: ts,
	}))

	finished, err := tr.Stop(ctx)
	require.NoError(t, err)
	require.Len(t, finished.PageVisits, 1)
	assert.Nil(t, finished.PageVisits[0].SourceSearch)
}

func TestLogPageVisit_BeforeAnySearchHasNoSource(t *testing.T) {
	tr, _, _ := newTestTracker(t)
	ctx := context.Background()

	require.NoError(t, tr.Start(ctx, "Test"))
	require.NoError(t, tr.LogPageVisit(ctx, PageVisitInput{URL: "https://example.com", Title: "Example"}))

	finished, err := tr.Stop(ctx)
	require.NoError(t, err)
	require.Len(t, finished.PageVisits, 1)
	assert.Nil(t, finished.PageVisits[0].SourceSearch)
}

func TestLog_DroppedWhilePaused(t *testing.T) {
	tr, _, _ := newTestTracker(t)
	ctx := context.Background()

	require.NoError(t, tr.Start(ctx, "Test"))
	require.NoError(t, tr.Pause(ctx))

	require.NoError(t, tr.LogSearch(ctx, SearchInput{Engine: "BING", Query: "x", URL: "https://www.bing.com/search?q=x"}))
	require.NoError(t, tr.LogPageVisit(ctx, PageVisitInput{URL: "https://example.com"}))

	st, err := tr.Status(ctx)
	require.NoError(t, err)
	assert.Zero(t, st.Current.Events)

	// Events append again after resume.
	require.NoError(t, tr.Resume(ctx))
	require.NoError(t, tr.LogPageVisit(ctx, PageVisitInput{URL: "https://example.com"}))

	st, err = tr.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Current.Events)
}

func TestLog_DroppedWhenIdle(t *testing.T) {
	tr, _, _ := newTestTracker(t)
	ctx := context.Background()

	require.NoError(t, tr.LogSearch(ctx, SearchInput{Engine: "GOOGLE", Query: "x"}))
	require.NoError(t, tr.LogPageVisit(ctx, PageVisitInput{URL: "https://example.com"}))

	st, err := tr.Status(ctx)
	require.NoError(t, err)
	assert.False(t, st.IsRecording)
	assert.Nil(t, st.Current)
}

func TestUpdateMetadata_MergeLastWriteWins(t *testing.T) {
	tr, _, _ := newTestTracker(t)
	ctx := context.Background()

	require.NoError(t, tr.Start(ctx, "Test"))
	require.NoError(t, tr.LogPageVisit(ctx, PageVisitInput{URL: "https://example.com", Title: "Example"}))

	require.NoError(t, tr.UpdateMetadata(ctx, "https://example.com", Metadata{"a": float64(1)}))
	require.NoError(t, tr.UpdateMetadata(ctx, "https://example.com", Metadata{"a": float64(2), "b": float64(3)}))

	md, err := tr.GetMetadata(ctx, "https://example.com")
	require.NoError(t, err)
	assert.Equal(t, Metadata{"a": float64(2), "b": float64(3)}, md)
}

func TestUpdateMetadata_ReflectedInEvents(t *testing.T) {
	tr, _, _ := newTestTracker(t)
	ctx := context.Background()

	require.NoError(t, tr.Start(ctx, "Test"))
	require.NoError(t, tr.LogPageVisit(ctx, PageVisitInput{URL: "https://example.com", Title: "Example"}))
	require.NoError(t, tr.UpdateMetadata(ctx, "https://example.com", Metadata{"title": "Example Paper"}))

	finished, err := tr.Stop(ctx)
	require.NoError(t, err)

	// The denormalized view and the timeline entry are the same record.
	var fromEvents *PageVisitEvent
	for _, e := range finished.Events {
		if v, ok := e.(*PageVisitEvent); ok {
			fromEvents = v
		}
	}
	require.NotNil(t, fromEvents)
	assert.Equal(t, Metadata{"title": "Example Paper"}, fromEvents.Metadata)
}

func TestUpdateMetadata_OrphanFallsThroughToEvent(t *testing.T) {
	tr, _, _ := newTestTracker(t)
	ctx := context.Background()

	require.NoError(t, tr.Start(ctx, "Test"))
	require.NoError(t, tr.UpdateMetadata(ctx, "https://nowhere.example", Metadata{"doi": "10.1/xyz"}))

	md, err := tr.GetMetadata(ctx, "https://nowhere.example")
	require.NoError(t, err)
	assert.Equal(t, Metadata{"doi": "10.1/xyz"}, md)

	st, err := tr.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Current.Events)
}

func TestGetMetadata_NoMatchReturnsEmpty(t *testing.T) {
	tr, _, _ := newTestTracker(t)
	ctx := context.Background()

	require.NoError(t, tr.Start(ctx, "Test"))
	md, err := tr.GetMetadata(ctx, "https://unknown.example")
	require.NoError(t, err)
	assert.Empty(t, md)
}

func TestAddNote_SingleNotePerTarget(t *testing.T) {
	tr, _, _ := newTestTracker(t)
	ctx := context.Background()

	require.NoError(t, tr.Start(ctx, "Test"))
	require.NoError(t, tr.LogPageVisit(ctx, PageVisitInput{URL: "https://example.com", Title: "Example"}))

	require.NoError(t, tr.AddNote(ctx, "https://example.com", "first"))
	require.NoError(t, tr.AddNote(ctx, "https://example.com", "second"))

	finished, err := tr.Stop(ctx)
	require.NoError(t, err)
	require.Len(t, finished.PageVisits, 1)
	require.Len(t, finished.PageVisits[0].Notes, 1)
	assert.Equal(t, "second", finished.PageVisits[0].Notes[0].Content)
	assert.True(t, finished.PageVisits[0].HasNotes)
}

func TestAddNote_SearchTakesPriorityOverVisit(t *testing.T) {
	tr, _, _ := newTestTracker(t)
	ctx := context.Background()

	url := "https://www.google.com/search?q=foo"
	require.NoError(t, tr.Start(ctx, "Test"))
	require.NoError(t, tr.LogSearch(ctx, SearchInput{Engine: "GOOGLE", Query: "foo", URL: url}))
	require.NoError(t, tr.LogPageVisit(ctx, PageVisitInput{URL: url, Title: "Results"}))

	require.NoError(t, tr.AddNote(ctx, url, "on the search"))

	finished, err := tr.Stop(ctx)
	require.NoError(t, err)
	require.Len(t, finished.Searches[0].Notes, 1)
	assert.Empty(t, finished.PageVisits[0].Notes)
}

func TestAddNote_OrphanedWhenNoMatch(t *testing.T) {
	tr, _, _ := newTestTracker(t)
	ctx := context.Background()

	require.NoError(t, tr.Start(ctx, "Test"))
	require.NoError(t, tr.AddNote(ctx, "https://nowhere.example", "stray thought"))

	finished, err := tr.Stop(ctx)
	require.NoError(t, err)

	var orphan *NoteEvent
	for _, e := range finished.Events {
		if n, ok := e.(*NoteEvent); ok {
			orphan = n
		}
	}
	require.NotNil(t, orphan)
	assert.True(t, orphan.Orphaned)
	assert.Equal(t, "stray thought", orphan.Content)
}

func TestAddNote_RequiresCurrentSession(t *testing.T) {
	tr, _, _ := newTestTracker(t)

	err := tr.AddNote(context.Background(), "https://example.com", "note")
	assert.ErrorIs(t, err, ErrNoCurrentSession)
}

func TestRename_CurrentAndCompleted(t *testing.T) {
	tr, _, _ := newTestTracker(t)
	ctx := context.Background()

	require.NoError(t, tr.Start(ctx, "Original"))
	require.NoError(t, tr.Rename(ctx, "Renamed"))

	st, err := tr.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", st.Current.Name)

	finished, err := tr.Stop(ctx)
	require.NoError(t, err)

	require.NoError(t, tr.RenameCompleted(ctx, finished.ID, "Archived"))
	summaries, err := tr.Summaries(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Archived", summaries[0].Name)

	assert.ErrorIs(t, tr.RenameCompleted(ctx, "missing", "x"), ErrNotFound)
}

func TestRename_NoCurrentSession(t *testing.T) {
	tr, _, _ := newTestTracker(t)
	assert.ErrorIs(t, tr.Rename(context.Background(), "x"), ErrNoCurrentSession)
}

func TestResumeCompleted(t *testing.T) {
	tr, _, clock := newTestTracker(t)
	ctx := context.Background()

	require.NoError(t, tr.Start(ctx, "Test"))
	require.NoError(t, tr.LogPageVisit(ctx, PageVisitInput{URL: "https://example.com", Title: "Example"}))
	finished, err := tr.Stop(ctx)
	require.NoError(t, err)

	clock.Advance(time.Hour)
	resumed, err := tr.ResumeCompleted(ctx, finished.ID)
	require.NoError(t, err)
	assert.Nil(t, resumed.EndTime)

	last := resumed.Events[len(resumed.Events)-1]
	marker, ok := last.(*SessionResumedEvent)
	require.True(t, ok)
	require.NotNil(t, marker.PreviousEndTime)

	// Pulled out of the completed collection.
	summaries, err := tr.Summaries(ctx)
	require.NoError(t, err)
	assert.Empty(t, summaries)

	st, err := tr.Status(ctx)
	require.NoError(t, err)
	assert.True(t, st.IsRecording)
	assert.Equal(t, finished.ID, st.Current.ID)
}

func TestResumeCompleted_RejectsWhileActive(t *testing.T) {
	tr, _, _ := newTestTracker(t)
	ctx := context.Background()

	require.NoError(t, tr.Start(ctx, "First"))
	finished, err := tr.Stop(ctx)
	require.NoError(t, err)

	require.NoError(t, tr.Start(ctx, "Second"))
	_, err = tr.ResumeCompleted(ctx, finished.ID)
	assert.ErrorIs(t, err, ErrSessionActive)
}

func TestResumeCompleted_NotFound(t *testing.T) {
	tr, _, _ := newTestTracker(t)
	_, err := tr.ResumeCompleted(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResumeCompleted_RejectsCorruptRecord(t *testing.T) {
	tr, store, _ := newTestTracker(t)
	ctx := context.Background()

	// A stored record with no name fails validation and must not be
	// loaded into the current slot.
	corrupt := `[{"id":"bad-1","name":"","startTime":"2026-01-01T00:00:00Z","events":[],"searches":[],"pageVisits":[]}]`
	require.NoError(t, store.Set(ctx, storage.KeySessions, []byte(corrupt)))

	_, err := tr.ResumeCompleted(ctx, "bad-1")
	assert.ErrorIs(t, err, ErrCorruptSession)

	st, err := tr.Status(ctx)
	require.NoError(t, err)
	assert.False(t, st.IsRecording)
}

func TestDelete(t *testing.T) {
	tr, _, _ := newTestTracker(t)
	ctx := context.Background()

	require.NoError(t, tr.Start(ctx, "Test"))
	finished, err := tr.Stop(ctx)
	require.NoError(t, err)

	require.NoError(t, tr.Delete(ctx, finished.ID))

	summaries, err := tr.Summaries(ctx)
	require.NoError(t, err)
	assert.Empty(t, summaries)

	assert.ErrorIs(t, tr.Delete(ctx, finished.ID), ErrNotFound)
}

func TestRecovery_AdoptsPersistedSession(t *testing.T) {
	store := newTestStore(t)
	clock := newFakeClock()
	ctx := context.Background()

	tr1 := NewTracker(store, Options{Now: clock.Now})
	require.NoError(t, tr1.Start(ctx, "Survivor"))
	require.NoError(t, tr1.LogPageVisit(ctx, PageVisitInput{URL: "https://example.com", Title: "Example"}))
	require.NoError(t, tr1.Pause(ctx))

	// A fresh tracker simulates a process restart.
	clock.Advance(time.Minute)
	tr2 := NewTracker(store, Options{Now: clock.Now})

	st, err := tr2.Status(ctx)
	require.NoError(t, err)
	assert.True(t, st.IsRecording)
	require.NotNil(t, st.Current)
	assert.Equal(t, "Survivor", st.Current.Name)
	assert.True(t, st.Current.IsPaused, "paused state survives restart")
	assert.Equal(t, 1, st.Current.Events)
}

func TestRecovery_StaleSessionAutoStops(t *testing.T) {
	store := newTestStore(t)
	clock := newFakeClock()
	ctx := context.Background()

	tr1 := NewTracker(store, Options{Now: clock.Now})
	require.NoError(t, tr1.Start(ctx, "Abandoned"))
	require.NoError(t, tr1.LogPageVisit(ctx, PageVisitInput{URL: "https://example.com", Title: "Example"}))

	clock.Advance(25 * time.Hour)
	tr2 := NewTracker(store, Options{Now: clock.Now})

	st, err := tr2.Status(ctx)
	require.NoError(t, err)
	assert.False(t, st.IsRecording)
	assert.Nil(t, st.Current)

	// No data loss: the session landed in the completed collection with
	// its events intact.
	summaries, err := tr2.Summaries(ctx)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, "Abandoned", summaries[0].Name)
	assert.Equal(t, 1, summaries[0].PageVisits)
	assert.NotNil(t, summaries[0].EndTime)
}

func TestRecovery_StaleThresholdConfigurable(t *testing.T) {
	store := newTestStore(t)
	clock := newFakeClock()
	ctx := context.Background()

	tr1 := NewTracker(store, Options{Now: clock.Now, Staleness: time.Hour})
	require.NoError(t, tr1.Start(ctx, "Short-lived"))

	clock.Advance(2 * time.Hour)
	tr2 := NewTracker(store, Options{Now: clock.Now, Staleness: time.Hour})

	recording, err := tr2.IsRecording(ctx)
	require.NoError(t, err)
	assert.False(t, recording)
}

func TestKeepAliveTouchPreventsStaleAutoStop(t *testing.T) {
	store := newTestStore(t)
	clock := newFakeClock()
	ctx := context.Background()

	tr1 := NewTracker(store, Options{Now: clock.Now})
	require.NoError(t, tr1.Start(ctx, "Alive"))

	clock.Advance(25 * time.Hour)
	require.NoError(t, tr1.TouchSave(ctx))

	tr2 := NewTracker(store, Options{Now: clock.Now})
	recording, err := tr2.IsRecording(ctx)
	require.NoError(t, err)
	assert.True(t, recording)
}

func TestEventsAppendOnlyWhileActive(t *testing.T) {
	tr, _, _ := newTestTracker(t)
	ctx := context.Background()

	require.NoError(t, tr.Start(ctx, "Test"))

	prev := 0
	ops := []func() error{
		func() error { return tr.LogSearch(ctx, SearchInput{Engine: "GOOGLE", Query: "a", URL: "https://g/1"}) },
		func() error { return tr.LogPageVisit(ctx, PageVisitInput{URL: "https://example.com"}) },
		func() error { return tr.AddNote(ctx, "https://orphan.example", "n") },
		func() error { return tr.UpdateMetadata(ctx, "https://example.com", Metadata{"k": "v"}) },
		func() error { return tr.Pause(ctx) },
		func() error { return tr.Resume(ctx) },
	}
	for _, op := range ops {
		require.NoError(t, op())
		st, err := tr.Status(ctx)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, st.Current.Events, prev, "events length must be non-decreasing")
		prev = st.Current.Events
	}
}

// The concrete end-to-end scenario: search, visit, note, stop, list.
func TestScenario_SearchVisitNoteStop(t *testing.T) {
	tr, _, clock := newTestTracker(t)
	ctx := context.Background()

	require.NoError(t, tr.Start(ctx, "Test"))

	t1 := clock.Now()
	require.NoError(t, tr.LogSearch(ctx, SearchInput{Engine: "GOOGLE", Query: "foo", URL: "https://www.google.com/search?q=foo", Timestamp: t1}))
	require.NoError(t, tr.LogPageVisit(ctx, PageVisitInput{URL: "https://example.com", Timestamp: t1.Add(time.Second)}))
	require.NoError(t, tr.AddNote(ctx, "https://example.com", "hello"))

	finished, err := tr.Stop(ctx)
	require.NoError(t, err)

	require.Len(t, finished.PageVisits, 1)
	require.NotNil(t, finished.PageVisits[0].SourceSearch)
	assert.Equal(t, "foo", finished.PageVisits[0].SourceSearch.Query)
	require.Len(t, finished.PageVisits[0].Notes, 1)
	assert.Equal(t, "hello", finished.PageVisits[0].Notes[0].Content)

	summaries, err := tr.Summaries(ctx)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, 1, summaries[0].Searches)
	assert.Equal(t, 1, summaries[0].PageVisits)
}
