package engine

import (
	"context"
	"database/sql"
	"log/slog"
)

const paymentEventsMigration = `
CREATE TABLE IF NOT EXISTS payment_events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    created INTEGER NOT NULL DEFAULT (strftime('%s', 'now')),
    source TEXT NOT NULL,
    principal INTEGER,
    event_type TEXT NOT NULL,
    external_id TEXT,
    success INTEGER NOT NULL DEFAULT 1,
    details TEXT NOT NULL DEFAULT ''
) STRICT;

CREATE INDEX IF NOT EXISTS payment_events_source_created_idx
    ON payment_events (source, created);
CREATE INDEX IF NOT EXISTS payment_events_source_type_success_idx
    ON payment_events (source, event_type, success);
`

// EventLogger provides centralized logging for payment and configuration events.
type EventLogger struct {
	db *sql.DB
}

// NewEventLogger creates an EventLogger and applies the payment_events table migration.
func NewEventLogger(db *sql.DB) *EventLogger {
	MustMigrate(db, paymentEventsMigration)
	return &EventLogger{db: db}
}

// LogEvent inserts an event into the database.
// principalID of 0 means no principal association. The logger is best-effort:
// insert failures are logged and never propagated to the caller.
func (e *EventLogger) LogEvent(ctx context.Context, source string, principalID int64, eventType, externalID string, success bool, details string) {
	if e == nil || e.db == nil {
		return
	}

	successInt := 0
	if success {
		successInt = 1
	}

	var principalPtr any
	if principalID > 0 {
		principalPtr = principalID
	}

	var extIDPtr any
	if externalID != "" {
		extIDPtr = externalID
	}

	_, err := e.db.ExecContext(ctx,
		`INSERT INTO payment_events (source, principal, event_type, external_id, success, details)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		source, principalPtr, eventType, extIDPtr, successInt, details)
	if err != nil {
		slog.Error("failed to log event", "error", err, "source", source, "eventType", eventType)
	}
}
