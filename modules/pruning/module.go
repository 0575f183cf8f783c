// Package pruning keeps the payment event log from growing without bound.
package pruning

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/paydesk/paydesk/engine"
)

// DefaultTTL is how long payment events are retained.
const DefaultTTL = 2 * 365 * 24 * time.Hour

type Module struct {
	db  *sql.DB
	ttl time.Duration
}

func New(db *sql.DB, ttl time.Duration) *Module {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Module{db: db, ttl: ttl}
}

func (m *Module) AttachWorkers(mgr *engine.ProcMgr) {
	mgr.Add(engine.Poll(time.Hour, m.pruneEvents))
}

func (m *Module) pruneEvents(ctx context.Context) bool {
	start := time.Now()
	result, err := m.db.ExecContext(ctx, "DELETE FROM payment_events WHERE created < strftime('%s', 'now') - ?", int64(m.ttl.Seconds()))
	if err != nil {
		slog.Error("failed to prune payment events", "error", err)
		return false
	}

	if rows, _ := result.RowsAffected(); rows > 0 {
		slog.Info("pruned payment events", "duration", time.Since(start), "rows", rows)
	}
	return false
}
