package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patchpilot/patchpilot/internal/report"
	"github.com/patchpilot/patchpilot/internal/storage"
)

func storedReport(id string, age time.Duration) *report.ScanReport {
	return &report.ScanReport{
		ScanID:    id,
		Timestamp: time.Now().Add(-age),
		Services:  []report.EnrichedService{},
		Summary:   report.Summarize(nil),
	}
}

func TestNewJanitorInvalidSchedule(t *testing.T) {
	_, err := NewJanitor(storage.NewMemoryStore(), "not a schedule", time.Hour)
	assert.Error(t, err)
}

func TestNewJanitorAcceptsDescriptors(t *testing.T) {
	_, err := NewJanitor(storage.NewMemoryStore(), "@hourly", time.Hour)
	assert.NoError(t, err)

	_, err = NewJanitor(storage.NewMemoryStore(), "*/5 * * * *", time.Hour)
	assert.NoError(t, err)
}

func TestSweep(t *testing.T) {
	store := storage.NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, storedReport("stale-1", 48*time.Hour)))
	require.NoError(t, store.Save(ctx, storedReport("stale-2", 30*time.Hour)))
	require.NoError(t, store.Save(ctx, storedReport("fresh", time.Hour)))

	janitor, err := NewJanitor(store, "@hourly", 24*time.Hour)
	require.NoError(t, err)

	removed, err := janitor.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	_, err = store.Get(ctx, "fresh")
	assert.NoError(t, err)
}

func TestSweepNothingToRemove(t *testing.T) {
	store := storage.NewMemoryStore()
	require.NoError(t, store.Save(context.Background(), storedReport("fresh", time.Minute)))

	janitor, err := NewJanitor(store, "@hourly", 24*time.Hour)
	require.NoError(t, err)

	removed, err := janitor.Sweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestStartStop(t *testing.T) {
	janitor, err := NewJanitor(storage.NewMemoryStore(), "@hourly", time.Hour)
	require.NoError(t, err)

	janitor.Start()
	janitor.Stop()
}
