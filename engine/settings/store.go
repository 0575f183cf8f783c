// Package settings provides a namespaced key/value store for runtime
// configuration that is owned by modules rather than the process environment.
// Values live in sqlite so they survive restarts and can be changed through
// the HTTP API without redeploying.
package settings

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"sync"

	"github.com/paydesk/paydesk/engine"
)

const migration = `
CREATE TABLE IF NOT EXISTS settings (
    namespace TEXT NOT NULL,
    key TEXT NOT NULL,
    value TEXT NOT NULL,
    updated INTEGER NOT NULL DEFAULT (unixepoch()),
    PRIMARY KEY (namespace, key)
) STRICT;
`

// Store manages namespaced settings with change notification.
type Store struct {
	db        *sql.DB
	mu        sync.RWMutex
	callbacks map[string][]func(string)
}

// New creates a settings store and applies its schema.
func New(db *sql.DB) *Store {
	engine.MustMigrate(db, migration)
	return &Store{
		db:        db,
		callbacks: make(map[string][]func(string)),
	}
}

// Get retrieves a setting value. Returns an empty string if the key has never
// been set - absence is a normal result, not an error. The error is non-nil
// only for real storage failures.
func (s *Store) Get(ctx context.Context, namespace, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM settings WHERE namespace = ? AND key = ?", namespace, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

// Set updates a setting and notifies all registered callbacks.
// Writes are last-write-wins; setting the same value twice is a no-op
// as far as stored state is concerned.
func (s *Store) Set(ctx context.Context, namespace, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (namespace, key, value, updated) VALUES (?, ?, ?, unixepoch())
		ON CONFLICT(namespace, key) DO UPDATE SET value = excluded.value, updated = excluded.updated
	`, namespace, key, value)
	if err != nil {
		return err
	}

	s.mu.RLock()
	cbs := s.callbacks[namespace+"/"+key]
	s.mu.RUnlock()

	for _, cb := range cbs {
		cb(value)
	}

	slog.Info("setting updated", "namespace", namespace, "key", key)
	return nil
}

// Watch registers a callback for when a setting changes.
// The callback is also invoked immediately with the current value.
func (s *Store) Watch(ctx context.Context, namespace, key string, cb func(string)) {
	s.mu.Lock()
	s.callbacks[namespace+"/"+key] = append(s.callbacks[namespace+"/"+key], cb)
	s.mu.Unlock()

	value, err := s.Get(ctx, namespace, key)
	if err != nil {
		slog.Error("unable to read current value for settings watch", "namespace", namespace, "key", key, "error", err)
	}
	cb(value)
}
