package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrInvalidStatus     = errors.New("unknown status")
)

// TransitionError names the rejected move.
type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("status %s -> %s not allowed", e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// timeLayout is how timestamps are stored: UTC, second precision, sortable as text.
const timeLayout = "2006-01-02 15:04:05"

// Store persists applications, price overrides, staff users and bot admins in SQLite.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// New returns a store over db using the wall clock.
func New(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// WithClock replaces the clock used for created/updated timestamps.
func (s *Store) WithClock(now func() time.Time) *Store {
	return &Store{db: s.db, now: now}
}

// DB exposes the handle for health checks.
func (s *Store) DB() *sql.DB { return s.db }

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.ParseInLocation(timeLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}
