// Package mux fans the single inbound frame sequence out to per-input
// queues and merges per-output event streams back into one outbound
// sequence.
package mux

import (
	"sync"

	invoker "github.com/machinefabric/invoker-go"
	"github.com/machinefabric/invoker-go/negotiate"
	"github.com/machinefabric/invoker-go/wire"
)

// Resolver negotiates the content type of input index on its first data
// frame, when the handshake left it undeclared.
type Resolver func(index int, contentType string) (string, error)

// Demultiplexer routes inbound data frames to one Queue per logical input.
// Dispatch must be called from a single goroutine; the other methods are
// safe for concurrent use.
type Demultiplexer struct {
	mu      sync.Mutex
	queues  []*Queue
	types   []string
	ended   []bool
	open    int
	done    chan struct{}
	resolve Resolver
}

// NewDemultiplexer creates a demultiplexer for len(types) inputs. An empty
// entry in types is negotiated through resolve on the stream's first frame.
func NewDemultiplexer(types []string, resolve Resolver) *Demultiplexer {
	d := &Demultiplexer{
		queues:  make([]*Queue, len(types)),
		types:   append([]string(nil), types...),
		ended:   make([]bool, len(types)),
		open:    len(types),
		done:    make(chan struct{}),
		resolve: resolve,
	}
	for i := range d.queues {
		d.queues[i] = NewQueue()
	}
	if d.open == 0 {
		close(d.done)
	}
	return d
}

// Count returns the number of logical inputs
func (d *Demultiplexer) Count() int { return len(d.queues) }

// Source returns the queue feeding input i
func (d *Demultiplexer) Source(i int) *Queue { return d.queues[i] }

// ContentType returns the negotiated content type of input i, or "" while
// it is still pending
func (d *Demultiplexer) ContentType(i int) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.types[i]
}

// Done is closed once every input has observed end of stream
func (d *Demultiplexer) Done() <-chan struct{} { return d.done }

// Dispatch routes one frame. Any error is fatal to the session.
func (d *Demultiplexer) Dispatch(f *wire.DataFrame) error {
	i := f.Index
	if i < 0 || i >= len(d.queues) {
		return invoker.IndexOutOfRange(i, len(d.queues))
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.ended[i] {
		return invoker.UnexpectedFrame("frame after end of stream").WithIndex(i)
	}
	if f.Error != nil {
		return invoker.InputAborted(i, f.Error.Code, f.Error.Message)
	}

	if f.ContentType != "" {
		if d.types[i] == "" {
			ct, err := d.resolveLocked(i, f.ContentType)
			if err != nil {
				return err
			}
			d.types[i] = ct
		} else if !negotiate.Compatible(f.ContentType, d.types[i]) {
			return invoker.UnexpectedFrame("content type changed from %q to %q", d.types[i], f.ContentType).WithIndex(i)
		}
	} else if d.types[i] == "" && f.HasPayload() {
		return invoker.MalformedFrame("first frame carries no content type").WithIndex(i)
	}

	if f.HasPayload() {
		d.queues[i].Push(f)
	}
	if f.End {
		d.endLocked(i)
	}
	return nil
}

func (d *Demultiplexer) resolveLocked(i int, contentType string) (string, error) {
	if d.resolve == nil {
		return contentType, nil
	}
	ct, err := d.resolve(i, contentType)
	if err != nil {
		if e, ok := err.(*invoker.Error); ok && e.Index < 0 {
			return "", e.WithIndex(i)
		}
		return "", err
	}
	return ct, nil
}

// CloseAll ends every still-open input, as when the caller half-closes the
// physical stream.
func (d *Demultiplexer) CloseAll() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := range d.queues {
		if !d.ended[i] {
			d.endLocked(i)
		}
	}
}

// Abort fails every input with err and discards queued frames
func (d *Demultiplexer) Abort(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, q := range d.queues {
		q.Abort(err)
		if !d.ended[i] {
			d.ended[i] = true
			d.open--
		}
	}
	d.closeDoneLocked()
}

func (d *Demultiplexer) endLocked(i int) {
	d.ended[i] = true
	d.queues[i].Close()
	d.open--
	d.closeDoneLocked()
}

func (d *Demultiplexer) closeDoneLocked() {
	if d.open == 0 {
		select {
		case <-d.done:
		default:
			close(d.done)
		}
	}
}
