package jobs

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestQueueProcessesJobs(t *testing.T) {
	var handled int64
	q := NewQueue("test", func(_ context.Context, _ Job) error {
		atomic.AddInt64(&handled, 1)
		return nil
	}, QueueConfig{Workers: 2, BufferSize: 4})

	q.Start(context.Background())
	defer q.Stop()

	for i := 0; i < 10; i++ {
		require.NoError(t, q.Enqueue(Job{ID: "job", Type: "noop"}))
	}
	waitFor(t, func() bool { return atomic.LoadInt64(&handled) == 10 })
}

func TestQueueRejectsBeforeStart(t *testing.T) {
	q := NewQueue("test", func(context.Context, Job) error { return nil }, QueueConfig{})
	assert.Error(t, q.Enqueue(Job{ID: "early"}))
	assert.Error(t, q.TryEnqueue(Job{ID: "early"}))
}

func TestQueueTryEnqueueFullBuffer(t *testing.T) {
	release := make(chan struct{})
	q := NewQueue("test", func(_ context.Context, _ Job) error {
		<-release
		return nil
	}, QueueConfig{Workers: 1, BufferSize: 1})

	q.Start(context.Background())
	defer func() {
		close(release)
		q.Stop()
	}()

	require.NoError(t, q.TryEnqueue(Job{ID: "a"}))
	waitFor(t, func() bool { return q.Depth() == 0 })
	require.NoError(t, q.TryEnqueue(Job{ID: "b"}))

	err := q.TryEnqueue(Job{ID: "c"})
	require.ErrorIs(t, err, ErrQueueFull)
}

func TestQueueRetriesThenSucceeds(t *testing.T) {
	var mu sync.Mutex
	attempts := 0
	q := NewQueue("test", func(_ context.Context, _ Job) error {
		mu.Lock()
		defer mu.Unlock()
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	}, QueueConfig{Workers: 1, BufferSize: 2, MaxRetries: 5, RetryDelay: time.Millisecond})

	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "flaky", Type: "flaky"}))
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return attempts == 3
	})
}

func TestQueueInvokesOnExhausted(t *testing.T) {
	var mu sync.Mutex
	var exhausted []Job

	q := NewQueue("test", func(_ context.Context, _ Job) error {
		return errors.New("permanent")
	}, QueueConfig{
		Workers:    1,
		BufferSize: 2,
		MaxRetries: 2,
		RetryDelay: time.Millisecond,
		OnExhausted: func(_ context.Context, job Job, err error) {
			mu.Lock()
			defer mu.Unlock()
			exhausted = append(exhausted, job)
		},
	})

	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "doomed", Type: "doomed"}))
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(exhausted) == 1
	})

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "doomed", exhausted[0].ID)
	assert.Equal(t, 3, exhausted[0].Attempt, "two retries after the first failure")
}

func TestQueueStopIsIdempotent(t *testing.T) {
	q := NewQueue("test", func(context.Context, Job) error { return nil }, QueueConfig{Workers: 1})
	q.Start(context.Background())
	q.Stop()
	q.Stop()

	assert.Error(t, q.Enqueue(Job{ID: "late"}), "stopped queue refuses new work")
}
