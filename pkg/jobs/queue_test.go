package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueProcessesJobs(t *testing.T) {
	var processed int32
	done := make(chan struct{}, 2)
	q := NewQueue("test", func(ctx context.Context, job Job) error {
		atomic.AddInt32(&processed, 1)
		done <- struct{}{}
		return nil
	}, QueueConfig{Workers: 2})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "1"}))
	require.NoError(t, q.Enqueue(Job{ID: "2"}))

	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("job not processed")
		}
	}
	assert.Equal(t, int32(2), atomic.LoadInt32(&processed))
}

func TestQueueRejectsWhenNotStarted(t *testing.T) {
	q := NewQueue("idle", func(ctx context.Context, job Job) error { return nil }, QueueConfig{})
	assert.Error(t, q.Enqueue(Job{ID: "1"}))
}

func TestQueueDeduplicatesByKey(t *testing.T) {
	release := make(chan struct{})
	q := NewQueue("dedupe", func(ctx context.Context, job Job) error {
		<-release
		return nil
	}, QueueConfig{Workers: 1})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "1", Key: "tenant-a"}))
	assert.True(t, q.Pending("tenant-a"))
	assert.ErrorIs(t, q.Enqueue(Job{ID: "2", Key: "tenant-a"}), ErrDuplicate)
	require.NoError(t, q.Enqueue(Job{ID: "3", Key: "tenant-b"}))

	close(release)
	assert.Eventually(t, func() bool {
		return !q.Pending("tenant-a") && !q.Pending("tenant-b")
	}, time.Second, 10*time.Millisecond)
}

func TestQueueRetriesFailedJobs(t *testing.T) {
	var attempts int32
	q := NewQueue("retry", func(ctx context.Context, job Job) error {
		if atomic.AddInt32(&attempts, 1) < 3 {
			return errors.New("boom")
		}
		return nil
	}, QueueConfig{Workers: 1, MaxRetries: 3, RetryDelay: 5 * time.Millisecond})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "1", Key: "k"}))
	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&attempts) == 3 && !q.Pending("k")
	}, time.Second, 5*time.Millisecond)
}

func TestQueueStopWaitsForPendingRetries(t *testing.T) {
	var attempts int32
	q := NewQueue("retry-stop", func(ctx context.Context, job Job) error {
		atomic.AddInt32(&attempts, 1)
		return errors.New("boom")
	}, QueueConfig{Workers: 1, MaxRetries: 3, RetryDelay: time.Hour})
	q.Start(context.Background())

	require.NoError(t, q.Enqueue(Job{ID: "1", Key: "k"}))
	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&attempts) == 1
	}, time.Second, 5*time.Millisecond)

	stopped := make(chan struct{})
	go func() {
		q.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("stop did not return")
	}
	assert.False(t, q.Pending("k"))
	assert.Equal(t, int32(1), atomic.LoadInt32(&attempts))
}
