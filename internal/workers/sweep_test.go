package workers

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shipment-tracking/internal/database"
	"shipment-tracking/internal/reconcile"
	"shipment-tracking/internal/status"
)

func TestAgeSweepRunOnce(t *testing.T) {
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	engine := reconcile.NewEngine(db.Shipments, status.DefaultAgeRules(), logger)

	old := time.Now().UTC().Add(-20 * 24 * time.Hour)
	sh := &database.Shipment{
		UserID: "u1", IdentityKey: "tn:AWB123", TrackingNumber: "AWB123",
		Status: string(status.InTransit), LastEmailDate: &old,
	}
	require.NoError(t, db.Shipments.Insert(context.Background(), sh))
	require.NoError(t, db.Processed.Mark(context.Background(), "u1", "m-old", database.OutcomeCreated, &sh.ID))

	w := NewAgeSweepWorker(engine, db.Processed, time.Hour, time.Nanosecond, logger)
	w.RunOnce(context.Background())

	got, err := db.Shipments.GetByID(context.Background(), "u1", sh.ID)
	require.NoError(t, err)
	assert.Equal(t, string(status.Delivered), got.Status)

	sweeps, promoted, paused := w.Stats()
	assert.EqualValues(t, 1, sweeps)
	assert.EqualValues(t, 1, promoted)
	assert.False(t, paused)

	done, err := db.Processed.IsProcessed(context.Background(), "u1", "m-old")
	require.NoError(t, err)
	assert.False(t, done, "records past retention are purged")
}

func TestAgeSweepPause(t *testing.T) {
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	engine := reconcile.NewEngine(db.Shipments, status.DefaultAgeRules(), logger)

	w := NewAgeSweepWorker(engine, db.Processed, time.Hour, 0, logger)
	w.Pause()
	w.RunOnce(context.Background())

	sweeps, _, paused := w.Stats()
	assert.Zero(t, sweeps)
	assert.True(t, paused)

	w.Resume()
	w.RunOnce(context.Background())
	sweeps, _, _ = w.Stats()
	assert.EqualValues(t, 1, sweeps)
}
