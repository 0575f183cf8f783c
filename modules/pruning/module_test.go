package pruning

import (
	"context"
	"testing"
	"time"

	"github.com/paydesk/paydesk/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPruneEvents(t *testing.T) {
	db := engine.OpenTestDB(t)
	logger := engine.NewEventLogger(db)
	m := New(db, 24*time.Hour)

	logger.LogEvent(context.Background(), "stripe", 0, "IntentCreated", "pi_new", true, "")
	_, err := db.Exec("INSERT INTO payment_events (created, source, event_type) VALUES (strftime('%s', 'now') - 172800, 'stripe', 'IntentCreated')")
	require.NoError(t, err)

	assert.False(t, m.pruneEvents(context.Background()))

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM payment_events").Scan(&count))
	assert.Equal(t, 1, count)

	var externalID string
	require.NoError(t, db.QueryRow("SELECT external_id FROM payment_events").Scan(&externalID))
	assert.Equal(t, "pi_new", externalID)
}

func TestDefaultTTL(t *testing.T) {
	m := New(engine.OpenTestDB(t), 0)
	assert.Equal(t, DefaultTTL, m.ttl)
}
