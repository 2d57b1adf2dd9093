package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackerCountsOutcomes(t *testing.T) {
	tracker := NewOperationTracker(nil, nil, time.Hour)
	ctx := context.Background()

	tracker.Begin(ctx, "op-1", 3)
	tracker.Record(ctx, "op-1", true)
	tracker.Record(ctx, "op-1", false)
	tracker.Record(ctx, "op-1", true)

	progress, ok := tracker.Snapshot(ctx, "op-1")
	require.True(t, ok)
	assert.Equal(t, 3, progress.Processed)
	assert.Equal(t, 2, progress.Succeeded)
	assert.Equal(t, 1, progress.Failed)
	assert.Equal(t, 3, progress.Total)
	assert.False(t, progress.UpdatedAt.IsZero())
}

func TestTrackerCancellationFlag(t *testing.T) {
	tracker := NewOperationTracker(nil, nil, time.Hour)
	ctx := context.Background()

	tracker.Begin(ctx, "op-1", 1)
	assert.False(t, tracker.CancelRequested("op-1"))

	tracker.RequestCancel("op-1")
	assert.True(t, tracker.CancelRequested("op-1"))

	// Finish clears the flag with the rest of the in-memory state.
	tracker.Finish(ctx, "op-1")
	assert.False(t, tracker.CancelRequested("op-1"))
}

func TestTrackerSubscribeReceivesUpdates(t *testing.T) {
	tracker := NewOperationTracker(nil, nil, time.Hour)
	ctx := context.Background()

	tracker.Begin(ctx, "op-1", 2)
	updates, cancel := tracker.Subscribe("op-1")
	defer cancel()

	tracker.Record(ctx, "op-1", true)
	tracker.Record(ctx, "op-1", false)

	first := <-updates
	assert.Equal(t, 1, first.Processed)
	assert.Equal(t, 1, first.Succeeded)

	second := <-updates
	assert.Equal(t, 2, second.Processed)
	assert.Equal(t, 1, second.Failed)

	// Finish closes subscriber channels.
	tracker.Finish(ctx, "op-1")
	_, open := <-updates
	assert.False(t, open)
}

func TestTrackerUnsubscribedChannelStopsReceiving(t *testing.T) {
	tracker := NewOperationTracker(nil, nil, time.Hour)
	ctx := context.Background()

	tracker.Begin(ctx, "op-1", 2)
	updates, cancel := tracker.Subscribe("op-1")
	cancel()

	tracker.Record(ctx, "op-1", true)

	select {
	case <-updates:
		t.Fatal("unsubscribed channel received an update")
	default:
	}
}

func TestTrackerSnapshotMissesAfterFinishWithoutRedis(t *testing.T) {
	tracker := NewOperationTracker(nil, nil, time.Hour)
	ctx := context.Background()

	tracker.Begin(ctx, "op-1", 1)
	tracker.Record(ctx, "op-1", true)
	tracker.Finish(ctx, "op-1")

	_, ok := tracker.Snapshot(ctx, "op-1")
	assert.False(t, ok)

	_, ok = tracker.Snapshot(ctx, "never-started")
	assert.False(t, ok)
}
