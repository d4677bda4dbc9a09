package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubTracker struct {
	mu           sync.Mutex
	recording    bool
	lastActivity time.Time

	forceSaves int
	touches    int
}

func (s *stubTracker) IsRecording(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recording, nil
}

func (s *stubTracker) ForceSave(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.forceSaves++
	return nil
}

func (s *stubTracker) TouchSave(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touches++
	return nil
}

func (s *stubTracker) LastActivity(ctx context.Context) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity, nil
}

func (s *stubTracker) counts() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.forceSaves, s.touches
}

func TestArmDisarm(t *testing.T) {
	s := New(&stubTracker{recording: true}, Config{}, nil)

	assert.False(t, s.Armed())

	s.Arm(context.Background())
	assert.True(t, s.Armed())

	// Re-arming while running is a no-op.
	s.Arm(context.Background())
	assert.True(t, s.Armed())

	s.Disarm()
	assert.False(t, s.Armed())

	// Disarming twice is safe.
	s.Disarm()
	assert.False(t, s.Armed())
}

func TestAutosaveTick_SavesWhileRecording(t *testing.T) {
	tr := &stubTracker{recording: true}
	s := New(tr, Config{}, nil)

	s.autosaveTick(context.Background())

	saves, _ := tr.counts()
	assert.Equal(t, 1, saves)
}

func TestAutosaveTick_SelfDisarmsWhenIdle(t *testing.T) {
	tr := &stubTracker{recording: false}
	s := New(tr, Config{}, nil)
	s.Arm(context.Background())

	s.autosaveTick(context.Background())

	require.Eventually(t, func() bool { return !s.Armed() }, time.Second, 10*time.Millisecond)
	saves, _ := tr.counts()
	assert.Zero(t, saves)
}

func TestKeepAliveTick_OnlyTouches(t *testing.T) {
	tr := &stubTracker{recording: true}
	s := New(tr, Config{}, nil)

	s.keepAliveTick(context.Background())

	saves, touches := tr.counts()
	assert.Zero(t, saves)
	assert.Equal(t, 1, touches)
}

func TestCheckActivity(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	cfg := Config{Now: func() time.Time { return now }}

	t.Run("idle when not recording", func(t *testing.T) {
		s := New(&stubTracker{}, cfg, nil)
		status, _ := s.checkActivity(context.Background())
		assert.Equal(t, StatusIdle, status)
	})

	t.Run("active within threshold", func(t *testing.T) {
		tr := &stubTracker{recording: true, lastActivity: now.Add(-time.Minute)}
		s := New(tr, cfg, nil)
		status, idle := s.checkActivity(context.Background())
		assert.Equal(t, StatusActive, status)
		assert.Equal(t, time.Minute, idle)
	})

	t.Run("stale past threshold", func(t *testing.T) {
		tr := &stubTracker{recording: true, lastActivity: now.Add(-6 * time.Minute)}
		s := New(tr, cfg, nil)
		status, idle := s.checkActivity(context.Background())
		assert.Equal(t, StatusStale, status)
		assert.Equal(t, 6*time.Minute, idle)
	})

	t.Run("active when no activity recorded yet", func(t *testing.T) {
		tr := &stubTracker{recording: true}
		s := New(tr, cfg, nil)
		status, _ := s.checkActivity(context.Background())
		assert.Equal(t, StatusActive, status)
	})
}

func TestActivityTick_ReportsStatus(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	tr := &stubTracker{recording: true, lastActivity: now.Add(-10 * time.Minute)}

	var (
		mu      sync.Mutex
		gotStat Status
		gotIdle time.Duration
	)
	s := New(tr, Config{Now: func() time.Time { return now }}, func(st Status, idle time.Duration) {
		mu.Lock()
		defer mu.Unlock()
		gotStat, gotIdle = st, idle
	})

	s.activityTick(context.Background())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, StatusStale, gotStat)
	assert.Equal(t, 10*time.Minute, gotIdle)
}
