package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestQueueProcessesAndRetries(t *testing.T) {
	var calls int32
	done := make(chan struct{})
	q := NewQueue("test", func(ctx context.Context, task Task) error {
		if atomic.AddInt32(&calls, 1) == 1 {
			return errors.New("transient")
		}
		close(done)
		return nil
	}, QueueConfig{MaxRetries: 2, RetryDelay: 5 * time.Millisecond})

	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Task{ID: "t1", Kind: "certificate", Subject: "app-1"}))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("task was not retried")
	}
	require.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestQueueRecoversPanics(t *testing.T) {
	done := make(chan struct{}, 1)
	q := NewQueue("panic", func(ctx context.Context, task Task) error {
		if task.Attempt == 0 {
			panic("boom")
		}
		done <- struct{}{}
		return nil
	}, QueueConfig{MaxRetries: 1, RetryDelay: time.Millisecond})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Task{ID: "t1"}))
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("panicking task was not retried")
	}
}

func TestQueueRejectsWhenNotStarted(t *testing.T) {
	q := NewQueue("idle", func(context.Context, Task) error { return nil }, QueueConfig{})
	require.Error(t, q.Enqueue(Task{ID: "t1"}))
}

func TestQueueFullDoesNotBlock(t *testing.T) {
	block := make(chan struct{})
	q := NewQueue("full", func(ctx context.Context, task Task) error {
		<-block
		return nil
	}, QueueConfig{Workers: 1, BufferSize: 1})
	q.Start(context.Background())
	defer func() {
		close(block)
		q.Stop()
	}()

	var sawFull bool
	for i := 0; i < 5; i++ {
		if err := q.Enqueue(Task{ID: "t"}); errors.Is(err, ErrQueueFull) {
			sawFull = true
			break
		}
	}
	require.True(t, sawFull)
}
