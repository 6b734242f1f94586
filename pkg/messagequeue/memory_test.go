package messagequeue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryQueue_DeliversInOrder(t *testing.T) {
	q := NewMemoryQueue()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for _, body := range []string{"a", "b", "c"} {
		require.NoError(t, q.Publish(ctx, "jobs", []byte(body)))
	}
	require.NoError(t, q.Publish(ctx, "other", []byte("x")))

	var (
		mu  sync.Mutex
		got []string
	)
	done := make(chan error, 1)
	go func() {
		done <- q.Consume(ctx, "jobs", func(_ context.Context, body []byte) error {
			mu.Lock()
			got = append(got, string(body))
			if len(got) == 3 {
				cancel()
			}
			mu.Unlock()
			return nil
		})
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not stop")
	}
	assert.Equal(t, []string{"a", "b", "c"}, got)
	assert.Equal(t, 1, q.Len("other"))
}

func TestMemoryQueue_RedeliversFailedMessageOnce(t *testing.T) {
	q := NewMemoryQueue()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, q.Publish(ctx, "jobs", []byte("flaky")))
	require.NoError(t, q.Publish(ctx, "jobs", []byte("marker")))

	var attempts []string
	done := make(chan error, 1)
	go func() {
		done <- q.Consume(ctx, "jobs", func(_ context.Context, body []byte) error {
			attempts = append(attempts, string(body))
			if len(attempts) == 3 {
				cancel()
			}
			if string(body) == "flaky" {
				return errors.New("temporary failure")
			}
			return nil
		})
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not stop")
	}
	assert.Equal(t, []string{"flaky", "marker", "flaky"}, attempts)
	assert.Equal(t, 0, q.Len("jobs"))
}

func TestMemoryQueue_Close(t *testing.T) {
	q := NewMemoryQueue()
	done := make(chan error, 1)
	go func() {
		done <- q.Consume(context.Background(), "jobs", func(context.Context, []byte) error { return nil })
	}()
	require.NoError(t, q.Close())

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not stop")
	}
}
