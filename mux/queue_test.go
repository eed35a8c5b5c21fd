package mux

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/machinefabric/invoker-go/wire"
)

func TestQueueFIFOThenEOF(t *testing.T) {
	q := NewQueue()
	q.Push(&wire.DataFrame{Index: 0, Payload: []byte("a")})
	q.Push(&wire.DataFrame{Index: 0, Payload: []byte("b")})
	q.Close()

	ctx := context.Background()
	d, err := q.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a", string(d.Payload))
	d, err = q.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "b", string(d.Payload))
	_, err = q.Next(ctx)
	assert.Equal(t, io.EOF, err)
}

func TestQueueNextBlocksUntilPush(t *testing.T) {
	q := NewQueue()
	got := make(chan string, 1)
	go func() {
		d, err := q.Next(context.Background())
		if err == nil {
			got <- string(d.Payload)
		}
	}()

	select {
	case <-got:
		t.Fatal("Next returned before any push")
	case <-time.After(20 * time.Millisecond):
	}

	q.Push(&wire.DataFrame{Payload: []byte("late")})
	select {
	case v := <-got:
		assert.Equal(t, "late", v)
	case <-time.After(time.Second):
		t.Fatal("Next did not wake up")
	}
}

func TestQueueAbortDiscards(t *testing.T) {
	q := NewQueue()
	q.Push(&wire.DataFrame{Payload: []byte("a")})
	boom := errors.New("boom")
	q.Abort(boom)

	_, err := q.Next(context.Background())
	assert.Equal(t, boom, err)
	assert.Equal(t, 0, q.Len())
}

func TestQueueNextHonorsContext(t *testing.T) {
	q := NewQueue()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := q.Next(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
