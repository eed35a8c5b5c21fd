package mux

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	invoker "github.com/machinefabric/invoker-go"
	"github.com/machinefabric/invoker-go/wire"
)

type recorder struct {
	mu     sync.Mutex
	frames []*wire.Frame
}

func (r *recorder) send(f *wire.Frame) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, f)
	return nil
}

func TestMuxSortsTickByIndex(t *testing.T) {
	m := NewMultiplexer([]string{"text/plain", "text/plain", "text/plain"}, 8)
	ctx := context.Background()

	// all pending before Run starts, so they form one tick
	require.NoError(t, m.Sink(2).Send(ctx, []byte("c"), nil))
	require.NoError(t, m.Sink(0).Send(ctx, []byte("a"), nil))
	require.NoError(t, m.Sink(1).Send(ctx, []byte("b"), nil))
	require.NoError(t, m.Sink(0).Send(ctx, []byte("a2"), nil))

	rec := &recorder{}
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx, rec.send) }()

	time.Sleep(20 * time.Millisecond)
	for i := 0; i < 3; i++ {
		require.NoError(t, m.Sink(i).End(ctx))
	}
	require.NoError(t, <-done)

	require.GreaterOrEqual(t, len(rec.frames), 4)
	var first []string
	for _, f := range rec.frames[:4] {
		first = append(first, string(f.Data.Payload))
	}
	assert.Equal(t, []string{"a", "a2", "b", "c"}, first, "stable sort keeps per-stream order")
	assert.Len(t, rec.frames, 7)
}

func TestMuxFinalIsOneFrame(t *testing.T) {
	m := NewMultiplexer([]string{"application/json"}, 0)
	ctx := context.Background()
	require.NoError(t, m.Sink(0).Final(ctx, []byte(`"ok"`), map[string]string{"k": "v"}))

	rec := &recorder{}
	require.NoError(t, m.Run(ctx, rec.send))
	require.Len(t, rec.frames, 1)
	d := rec.frames[0].Data
	assert.Equal(t, "application/json", d.ContentType)
	assert.Equal(t, `"ok"`, string(d.Payload))
	assert.True(t, d.End)
	assert.Equal(t, "v", d.Headers["k"])
}

func TestMuxEveryDataFrameCarriesContentType(t *testing.T) {
	m := NewMultiplexer([]string{"text/plain"}, 0)
	ctx := context.Background()
	require.NoError(t, m.Sink(0).Send(ctx, []byte("1"), nil))
	require.NoError(t, m.Sink(0).Send(ctx, []byte("2"), nil))
	require.NoError(t, m.Sink(0).End(ctx))

	rec := &recorder{}
	require.NoError(t, m.Run(ctx, rec.send))
	require.Len(t, rec.frames, 3)
	assert.Equal(t, "text/plain", rec.frames[0].Data.ContentType)
	assert.Equal(t, "text/plain", rec.frames[1].Data.ContentType)
	assert.False(t, rec.frames[2].Data.HasPayload())
	assert.True(t, rec.frames[2].Data.End)
}

func TestMuxAbortEmitsErrorForOpenOutputs(t *testing.T) {
	m := NewMultiplexer([]string{"text/plain", "text/plain"}, 0)
	ctx := context.Background()
	require.NoError(t, m.Sink(0).Final(ctx, []byte("done"), nil))

	rec := &recorder{}
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx, rec.send) }()

	time.Sleep(20 * time.Millisecond)
	fault := invoker.FunctionFault(errors.New("kaboom"))
	m.Abort(fault)

	err := <-done
	assert.Equal(t, invoker.KindFunctionFault, invoker.KindOf(err))
	require.Len(t, rec.frames, 2)
	last := rec.frames[1].Data
	assert.Equal(t, 1, last.Index)
	require.NotNil(t, last.Error)
	assert.Equal(t, "FUNCTION_FAULT", last.Error.Code)
	assert.Contains(t, last.Error.Message, "kaboom")

	assert.Error(t, m.Sink(1).Send(ctx, []byte("late"), nil), "sinks fail after abort")
}

func TestMuxAbortDiscardsPending(t *testing.T) {
	m := NewMultiplexer([]string{"text/plain"}, 0)
	ctx := context.Background()
	require.NoError(t, m.Sink(0).Send(ctx, []byte("pending"), nil))
	m.Abort(invoker.Canceled(context.Canceled))

	rec := &recorder{}
	err := m.Run(ctx, rec.send)
	assert.Equal(t, invoker.KindCanceled, invoker.KindOf(err))
	require.Len(t, rec.frames, 1)
	assert.NotNil(t, rec.frames[0].Data.Error)
}

func TestMuxBackpressure(t *testing.T) {
	m := NewMultiplexer([]string{"text/plain"}, 1)
	ctx := context.Background()
	require.NoError(t, m.Sink(0).Send(ctx, []byte("1"), nil))

	blocked, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	err := m.Sink(0).Send(blocked, []byte("2"), nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded, "full buffer blocks the producer")
}

func TestSinkRejectsWritesAfterClose(t *testing.T) {
	m := NewMultiplexer([]string{"text/plain"}, 0)
	ctx := context.Background()
	require.NoError(t, m.Sink(0).End(ctx))
	assert.True(t, m.Sink(0).Closed())
	assert.ErrorIs(t, m.Sink(0).Send(ctx, []byte("x"), nil), ErrSinkClosed)
}

func TestMuxZeroOutputsReturnsImmediately(t *testing.T) {
	m := NewMultiplexer(nil, 0)
	assert.NoError(t, m.Run(context.Background(), (&recorder{}).send))
}

func TestMuxBacklogKeepsArrivalOrder(t *testing.T) {
	m := NewMultiplexer([]string{"text/plain", "text/plain"}, 8)
	ctx := context.Background()

	writing := make(chan struct{})
	release := make(chan struct{})
	rec := &recorder{}
	var once sync.Once
	send := func(f *wire.Frame) error {
		once.Do(func() {
			close(writing)
			<-release
		})
		return rec.send(f)
	}

	done := make(chan error, 1)
	go func() { done <- m.Run(ctx, send) }()

	require.NoError(t, m.Sink(0).Send(ctx, []byte("first"), nil))
	<-writing

	// queued while the writer is stuck on "first"; output 1 is ready first
	require.NoError(t, m.Sink(1).Send(ctx, []byte("b"), nil))
	require.NoError(t, m.Sink(0).Send(ctx, []byte("a"), nil))
	require.NoError(t, m.Sink(0).End(ctx))
	require.NoError(t, m.Sink(1).End(ctx))
	close(release)
	require.NoError(t, <-done)

	var order []string
	for _, f := range rec.frames {
		if f.Data.HasPayload() {
			order = append(order, string(f.Data.Payload))
		}
	}
	assert.Equal(t, []string{"first", "b", "a"}, order)
	assert.Len(t, rec.frames, 5)
}
