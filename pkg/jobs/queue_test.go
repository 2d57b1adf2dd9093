package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu   sync.Mutex
	seen []Job
	done chan struct{}
	want int
	fail int
}

func newRecorder(want, fail int) *recorder {
	return &recorder{done: make(chan struct{}), want: want, fail: fail}
}

func (r *recorder) handle(ctx context.Context, job Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, job)
	if len(r.seen) <= r.fail {
		return errors.New("transient handler failure")
	}
	if len(r.seen) == r.want {
		close(r.done)
	}
	return nil
}

func (r *recorder) wait(t *testing.T) {
	t.Helper()
	select {
	case <-r.done:
	case <-time.After(2 * time.Second):
		t.Fatal("handler did not process the expected jobs in time")
	}
}

func (r *recorder) jobs() []Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Job(nil), r.seen...)
}

func TestQueueDeliversJobsToHandler(t *testing.T) {
	rec := newRecorder(3, 0)
	queue := NewQueue("bulk-operations", rec.handle, QueueConfig{Workers: 2})
	queue.Start(context.Background())
	defer queue.Stop()

	for _, id := range []string{"op-1", "op-2", "op-3"} {
		require.NoError(t, queue.Enqueue(Job{ID: id, Type: "bulk_operation", Payload: id}))
	}
	rec.wait(t)

	jobs := rec.jobs()
	require.Len(t, jobs, 3)
	for _, job := range jobs {
		assert.False(t, job.Enqueued.IsZero())
	}
}

func TestQueueRetriesFailedJobs(t *testing.T) {
	rec := newRecorder(2, 1)
	queue := NewQueue("bulk-operations", rec.handle, QueueConfig{
		Workers:    1,
		MaxRetries: 2,
		RetryDelay: 5 * time.Millisecond,
	})
	queue.Start(context.Background())
	defer queue.Stop()

	require.NoError(t, queue.Enqueue(Job{ID: "op-1", Type: "bulk_operation", Payload: "op-1"}))
	rec.wait(t)

	jobs := rec.jobs()
	require.Len(t, jobs, 2)
	assert.Equal(t, 0, jobs[0].Attempt)
	assert.Equal(t, 1, jobs[1].Attempt)
}

func TestQueueRejectsWhenNotStarted(t *testing.T) {
	queue := NewQueue("bulk-operations", func(context.Context, Job) error { return nil }, QueueConfig{})
	require.Error(t, queue.Enqueue(Job{ID: "op-1"}))

	queue.Start(context.Background())
	require.NoError(t, queue.Enqueue(Job{ID: "op-1"}))
	queue.Stop()
}

func TestQueueStartIsIdempotent(t *testing.T) {
	rec := newRecorder(1, 0)
	queue := NewQueue("bulk-operations", rec.handle, QueueConfig{Workers: 1})
	queue.Start(context.Background())
	queue.Start(context.Background())
	defer queue.Stop()

	require.NoError(t, queue.Enqueue(Job{ID: "op-1"}))
	rec.wait(t)
	assert.Len(t, rec.jobs(), 1)
}
