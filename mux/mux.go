package mux

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	invoker "github.com/machinefabric/invoker-go"
	"github.com/machinefabric/invoker-go/wire"
)

// EventKind says what an output event does to its stream
type EventKind uint8

const (
	EventData  EventKind = iota + 1 // one value, stream stays open
	EventEnd                        // end of stream, no value
	EventFinal                      // last value and end of stream in one frame
)

// Event is one unit submitted by an output sink
type Event struct {
	Index   int
	Kind    EventKind
	Payload []byte
	Headers map[string]string
}

// DefaultBuffer is the number of events that may be pending before sinks
// block
const DefaultBuffer = 64

// Multiplexer merges the event streams of M logical outputs into one
// sequence of data frames. Sinks share one bounded channel, so a slow
// physical writer blocks producers.
type Multiplexer struct {
	types  []string
	events chan Event
	sinks  []*Sink

	abortOnce sync.Once
	aborted   chan struct{}
	abortErr  error
}

// NewMultiplexer creates a multiplexer for outputs with the negotiated
// content types. buffer <= 0 selects DefaultBuffer.
func NewMultiplexer(types []string, buffer int) *Multiplexer {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	m := &Multiplexer{
		types:   append([]string(nil), types...),
		events:  make(chan Event, buffer),
		aborted: make(chan struct{}),
	}
	m.sinks = make([]*Sink, len(types))
	for i := range m.sinks {
		m.sinks[i] = &Sink{m: m, index: i}
	}
	return m
}

// Count returns the number of logical outputs
func (m *Multiplexer) Count() int { return len(m.types) }

// ContentType returns the negotiated content type of output i
func (m *Multiplexer) ContentType(i int) string { return m.types[i] }

// Sink returns the producer handle of output i
func (m *Multiplexer) Sink(i int) *Sink { return m.sinks[i] }

// Abort stops the multiplexer: pending events are discarded and Run emits
// one error frame for every output still open. Only the first call counts.
func (m *Multiplexer) Abort(err error) {
	m.abortOnce.Do(func() {
		m.abortErr = err
		close(m.aborted)
	})
}

// Aborted is closed once Abort was called
func (m *Multiplexer) Aborted() <-chan struct{} { return m.aborted }

func (m *Multiplexer) submit(ctx context.Context, ev Event) error {
	// fail fast once aborted, even if the channel has room
	select {
	case <-m.aborted:
		return m.abortErr
	default:
	}
	select {
	case m.events <- ev:
		return nil
	case <-m.aborted:
		return m.abortErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run writes frames through send until every output has terminated, the
// multiplexer is aborted or ctx is done. Events found pending when the
// writer wakes from idle became ready in the same tick and are written in
// ascending index order. A backlog that built up while the writer was busy
// is written in arrival order.
func (m *Multiplexer) Run(ctx context.Context, send func(*wire.Frame) error) error {
	open := make([]bool, len(m.types))
	remaining := len(open)
	for i := range open {
		open[i] = true
	}

	batch := make([]Event, 0, cap(m.events))
	backlog := false
	for remaining > 0 {
		if backlog && ctx.Err() == nil {
			select {
			case ev := <-m.events:
				batch = append(batch[:0], ev)
			default:
				backlog = false
				continue
			}
		} else {
			select {
			case <-m.aborted:
				return m.fail(send, open)
			case <-ctx.Done():
				select {
				case <-m.aborted:
					return m.fail(send, open)
				default:
				}
				return invoker.Canceled(context.Cause(ctx))
			case ev := <-m.events:
				batch = append(batch[:0], ev)
			drain:
				for len(batch) < cap(batch) {
					select {
					case ev := <-m.events:
						batch = append(batch, ev)
					default:
						break drain
					}
				}
			}
			sort.SliceStable(batch, func(a, b int) bool {
				return batch[a].Index < batch[b].Index
			})
		}
		backlog = true

		for _, ev := range batch {
			// an abort discards whatever is still pending
			select {
			case <-m.aborted:
				return m.fail(send, open)
			default:
			}
			if !open[ev.Index] {
				continue
			}
			if err := send(m.frame(ev)); err != nil {
				return err
			}
			if ev.Kind != EventData {
				open[ev.Index] = false
				remaining--
			}
		}
	}
	return nil
}

func (m *Multiplexer) frame(ev Event) *wire.Frame {
	var f *wire.Frame
	switch ev.Kind {
	case EventEnd:
		f = wire.NewEnd(ev.Index)
	case EventFinal:
		f = wire.NewLast(ev.Index, m.types[ev.Index], ev.Payload)
	default:
		f = wire.NewData(ev.Index, m.types[ev.Index], ev.Payload)
	}
	if len(ev.Headers) > 0 {
		f.Data.Headers = ev.Headers
	}
	return f
}

func (m *Multiplexer) fail(send func(*wire.Frame) error, open []bool) error {
	code, msg := errorInfo(m.abortErr)
	for i, isOpen := range open {
		if !isOpen {
			continue
		}
		if err := send(wire.NewError(i, code, msg)); err != nil {
			break
		}
	}
	return m.abortErr
}

func errorInfo(err error) (string, string) {
	var e *invoker.Error
	if errors.As(err, &e) {
		return e.Kind.Code(), e.Error()
	}
	return invoker.KindFunctionFault.Code(), fmt.Sprint(err)
}

// ErrSinkClosed is returned when writing to an output that already ended
var ErrSinkClosed = errors.New("output stream already closed")

// Sink is the producer side of one logical output. Calls are serialized.
type Sink struct {
	m      *Multiplexer
	index  int
	mu     sync.Mutex
	closed bool
}

// Index returns the logical output index
func (s *Sink) Index() int { return s.index }

// ContentType returns the negotiated content type
func (s *Sink) ContentType() string { return s.m.types[s.index] }

// Closed reports whether the sink has terminated its stream
func (s *Sink) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Send submits one value
func (s *Sink) Send(ctx context.Context, payload []byte, headers map[string]string) error {
	return s.submit(ctx, EventData, payload, headers)
}

// Final submits the last value and ends the stream in one frame
func (s *Sink) Final(ctx context.Context, payload []byte, headers map[string]string) error {
	return s.submit(ctx, EventFinal, payload, headers)
}

// End ends the stream without a value
func (s *Sink) End(ctx context.Context) error {
	return s.submit(ctx, EventEnd, nil, nil)
}

func (s *Sink) submit(ctx context.Context, kind EventKind, payload []byte, headers map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("output %d: %w", s.index, ErrSinkClosed)
	}
	if kind != EventData {
		s.closed = true
	}
	if payload == nil && kind != EventEnd {
		payload = []byte{}
	}
	err := s.m.submit(ctx, Event{Index: s.index, Kind: kind, Payload: payload, Headers: headers})
	if err != nil && kind != EventData {
		// let a failed close be retried
		s.closed = false
	}
	return err
}
