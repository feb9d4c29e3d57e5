package bus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueFullAndClosed(t *testing.T) {
	q := NewQueue[int](1)
	require.NoError(t, q.TryPublish(1))
	require.ErrorIs(t, q.TryPublish(2), ErrQueueFull)
	assert.Equal(t, 1, q.Len())

	q.Close()
	q.Close()
	require.ErrorIs(t, q.TryPublish(3), ErrQueueClosed)
}

func TestQueueRunDrainsAfterClose(t *testing.T) {
	q := NewQueue[string](4)
	require.NoError(t, q.TryPublish("a"))
	require.NoError(t, q.TryPublish("b"))
	q.Close()

	var got []string
	q.Run(context.Background(), func(s string) { got = append(got, s) })
	assert.Equal(t, []string{"a", "b"}, got)
}

func TestQueueRunStopsOnCancel(t *testing.T) {
	q := NewQueue[int](1)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		q.Run(ctx, func(int) {})
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("run did not return after cancel")
	}
}
