// Package storage adapts the tracker's five named state keys to durable
// local key-value storage. Writes are last-write-wins at the key level;
// there are no transactions across keys.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// Key names one persisted piece of tracker state.
type Key string

// The complete persisted state layout.
const (
	KeyIsRecording    Key = "isRecording"
	KeyCurrentSession Key = "currentSession"
	KeySessions       Key = "sessions"
	KeyLastSave       Key = "lastSaveTimestamp"
	KeyLastActivity   Key = "lastActivityTimestamp"
)

// Store defines durable key-value persistence for tracker state.
type Store interface {
	// Get returns the raw value for key and whether it was present.
	Get(ctx context.Context, key Key) ([]byte, bool, error)
	// Set writes the value for key, replacing any previous value.
	Set(ctx context.Context, key Key, value []byte) error
	// Remove deletes the key. Removing an absent key is not an error.
	Remove(ctx context.Context, key Key) error
	Close() error
}

// SQLiteStore implements Store backed by a SQLite key-value table.
type SQLiteStore struct {
	db *sql.DB

	// Prepared statements
	getValue    *sql.Stmt
	setValue    *sql.Stmt
	removeValue *sql.Stmt
}

// NewSQLiteStore creates a SQLiteStore from an already-opened and
// migrated database.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db}

	if err := s.prepareStatements(); err != nil {
		return nil, fmt.Errorf("prepare statements: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) prepareStatements() error {
	var err error

	s.getValue, err = s.db.Prepare(`SELECT value FROM state WHERE key = ?`)
	if err != nil {
		return err
	}

	s.setValue, err = s.db.Prepare(`
		INSERT INTO state (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
	`)
	if err != nil {
		return err
	}

	s.removeValue, err = s.db.Prepare(`DELETE FROM state WHERE key = ?`)
	if err != nil {
		return err
	}

	return nil
}

// Get returns the raw stored value for key.
func (s *SQLiteStore) Get(ctx context.Context, key Key) ([]byte, bool, error) {
	var value []byte
	err := s.getValue.QueryRowContext(ctx, string(key)).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %s: %w", key, err)
	}
	return value, true, nil
}

// Set writes the value for key.
func (s *SQLiteStore) Set(ctx context.Context, key Key, value []byte) error {
	if _, err := s.setValue.ExecContext(ctx, string(key), value); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// Remove deletes the key if present.
func (s *SQLiteStore) Remove(ctx context.Context, key Key) error {
	if _, err := s.removeValue.ExecContext(ctx, string(key)); err != nil {
		return fmt.Errorf("remove %s: %w", key, err)
	}
	return nil
}

// PurgeAll deletes every stored key.
func (s *SQLiteStore) PurgeAll(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM state"); err != nil {
		return fmt.Errorf("purge state: %w", err)
	}
	return nil
}

// Close releases all prepared statements. The underlying *sql.DB is NOT
// closed — that is the caller's responsibility.
func (s *SQLiteStore) Close() error {
	stmts := []*sql.Stmt{s.getValue, s.setValue, s.removeValue}
	for _, stmt := range stmts {
		if stmt != nil {
			stmt.Close()
		}
	}
	return nil
}

// GetJSON reads key and unmarshals it into out. Returns false with no
// error when the key is absent.
func GetJSON(ctx context.Context, s Store, key Key, out interface{}) (bool, error) {
	raw, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

// SetJSON marshals v and writes it under key.
func SetJSON(ctx context.Context, s Store, key Key, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.Set(ctx, key, raw)
}
