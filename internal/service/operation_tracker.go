package service

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/carelane/therapy-scheduler-api/internal/dto"
)

const progressKeyPrefix = "bulkop:progress:"

// OperationTracker maintains live progress and cancellation flags for running
// bulk operations. Progress lives in memory for the owning process and is
// mirrored to Redis so status reads survive restarts and reach other replicas.
type OperationTracker struct {
	redis       *redis.Client
	logger      *zap.Logger
	progressTTL time.Duration

	mu          sync.RWMutex
	progress    map[string]dto.OperationProgress
	cancels     map[string]bool
	subscribers map[string][]chan dto.OperationProgress
}

// NewOperationTracker constructs a tracker. The Redis client may be nil; the
// tracker then operates purely in memory.
func NewOperationTracker(redisClient *redis.Client, logger *zap.Logger, progressTTL time.Duration) *OperationTracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if progressTTL <= 0 {
		progressTTL = 24 * time.Hour
	}
	return &OperationTracker{
		redis:       redisClient,
		logger:      logger,
		progressTTL: progressTTL,
		progress:    make(map[string]dto.OperationProgress),
		cancels:     make(map[string]bool),
		subscribers: make(map[string][]chan dto.OperationProgress),
	}
}

// Begin registers an operation with its total session count.
func (t *OperationTracker) Begin(ctx context.Context, operationID string, total int) {
	progress := dto.OperationProgress{Total: total, UpdatedAt: time.Now().UTC()}
	t.mu.Lock()
	t.progress[operationID] = progress
	t.mu.Unlock()
	t.mirror(ctx, operationID, progress)
}

// Record folds one session outcome into the operation's counters and notifies
// subscribers.
func (t *OperationTracker) Record(ctx context.Context, operationID string, success bool) {
	t.mu.Lock()
	progress := t.progress[operationID]
	progress.Processed++
	if success {
		progress.Succeeded++
	} else {
		progress.Failed++
	}
	progress.UpdatedAt = time.Now().UTC()
	t.progress[operationID] = progress
	subscribers := append([]chan dto.OperationProgress(nil), t.subscribers[operationID]...)
	t.mu.Unlock()

	for _, ch := range subscribers {
		select {
		case ch <- progress:
		default:
			// Slow subscriber; it will catch up on the next update.
		}
	}
	t.mirror(ctx, operationID, progress)
}

// Snapshot returns the latest known progress for an operation, falling back to
// the Redis mirror when the operation ran in another process.
func (t *OperationTracker) Snapshot(ctx context.Context, operationID string) (dto.OperationProgress, bool) {
	t.mu.RLock()
	progress, ok := t.progress[operationID]
	t.mu.RUnlock()
	if ok {
		return progress, true
	}
	if t.redis == nil {
		return dto.OperationProgress{}, false
	}
	raw, err := t.redis.Get(ctx, progressKeyPrefix+operationID).Result()
	if err != nil {
		return dto.OperationProgress{}, false
	}
	if err := json.Unmarshal([]byte(raw), &progress); err != nil {
		t.logger.Sugar().Warnw("corrupt progress mirror", "operation_id", operationID, "error", err)
		return dto.OperationProgress{}, false
	}
	return progress, true
}

// RequestCancel flags an operation for cooperative cancellation. The worker
// observes the flag between sessions; already-applied changes stand.
func (t *OperationTracker) RequestCancel(operationID string) {
	t.mu.Lock()
	t.cancels[operationID] = true
	t.mu.Unlock()
}

// CancelRequested reports whether cancellation has been requested.
func (t *OperationTracker) CancelRequested(operationID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.cancels[operationID]
}

// Subscribe returns a channel receiving progress updates for the operation.
// The caller must call the returned cancel function when done.
func (t *OperationTracker) Subscribe(operationID string) (<-chan dto.OperationProgress, func()) {
	ch := make(chan dto.OperationProgress, 16)
	t.mu.Lock()
	t.subscribers[operationID] = append(t.subscribers[operationID], ch)
	t.mu.Unlock()

	cancel := func() {
		t.mu.Lock()
		subs := t.subscribers[operationID]
		for i, sub := range subs {
			if sub == ch {
				t.subscribers[operationID] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
		t.mu.Unlock()
	}
	return ch, cancel
}

// Finish drops in-memory state for a completed operation. The Redis mirror
// keeps serving status reads until its TTL lapses.
func (t *OperationTracker) Finish(ctx context.Context, operationID string) {
	t.mu.Lock()
	progress, ok := t.progress[operationID]
	delete(t.progress, operationID)
	delete(t.cancels, operationID)
	subscribers := t.subscribers[operationID]
	delete(t.subscribers, operationID)
	t.mu.Unlock()

	for _, ch := range subscribers {
		close(ch)
	}
	if ok {
		t.mirror(ctx, operationID, progress)
	}
}

func (t *OperationTracker) mirror(ctx context.Context, operationID string, progress dto.OperationProgress) {
	if t.redis == nil {
		return
	}
	payload, err := json.Marshal(progress)
	if err != nil {
		return
	}
	if err := t.redis.Set(ctx, progressKeyPrefix+operationID, payload, t.progressTTL).Err(); err != nil {
		t.logger.Sugar().Warnw("failed to mirror operation progress", "operation_id", operationID, "error", err)
	}
}
