package mux

import (
	"context"
	"io"
	"sync"

	"github.com/machinefabric/invoker-go/wire"
)

// Queue is an unbounded FIFO of data frames for one logical input stream.
// Any number of producers, one consumer.
type Queue struct {
	mu     sync.Mutex
	items  []*wire.DataFrame
	closed bool
	err    error
	notify chan struct{}
}

func NewQueue() *Queue {
	return &Queue{notify: make(chan struct{}, 1)}
}

// Push appends a frame. Frames pushed after Close or Abort are dropped.
func (q *Queue) Push(d *wire.DataFrame) {
	q.mu.Lock()
	if q.closed || q.err != nil {
		q.mu.Unlock()
		return
	}
	q.items = append(q.items, d)
	q.mu.Unlock()
	q.wake()
}

// Close marks end of stream. Queued frames are still delivered.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.wake()
}

// Abort discards queued frames; Next returns err from now on.
func (q *Queue) Abort(err error) {
	q.mu.Lock()
	if q.err == nil {
		q.err = err
		q.items = nil
	}
	q.mu.Unlock()
	q.wake()
}

// Next blocks until a frame is available. It returns io.EOF once the stream
// is closed and drained.
func (q *Queue) Next(ctx context.Context) (*wire.DataFrame, error) {
	for {
		q.mu.Lock()
		switch {
		case q.err != nil:
			err := q.err
			q.mu.Unlock()
			return nil, err
		case len(q.items) > 0:
			d := q.items[0]
			q.items[0] = nil
			q.items = q.items[1:]
			q.mu.Unlock()
			return d, nil
		case q.closed:
			q.mu.Unlock()
			return nil, io.EOF
		}
		q.mu.Unlock()

		select {
		case <-q.notify:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Len returns the number of queued frames
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *Queue) wake() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}
