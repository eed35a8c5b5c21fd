// Package session drives one invocation over one physical bidirectional
// stream: handshake, negotiation, then concurrent demultiplexing,
// invocation and multiplexing until every stream is done.
package session

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	invoker "github.com/machinefabric/invoker-go"
	"github.com/machinefabric/invoker-go/engine"
	"github.com/machinefabric/invoker-go/function"
	"github.com/machinefabric/invoker-go/metrics"
	"github.com/machinefabric/invoker-go/mux"
	"github.com/machinefabric/invoker-go/negotiate"
	"github.com/machinefabric/invoker-go/payload"
	"github.com/machinefabric/invoker-go/wire"
)

// Conn is one physical connection carrying whole encoded frames. Recv
// returns io.EOF once the caller has sent its last frame.
type Conn interface {
	Recv() ([]byte, error)
	Send(data []byte) error
}

// Options are shared by every session of a handler
type Options struct {
	Payloads     *payload.Registry
	Limits       wire.Limits
	OutputBuffer int
	Logger       *logrus.Entry
	Metrics      *metrics.Metrics
}

func (o Options) withDefaults() Options {
	if o.Payloads == nil {
		o.Payloads = payload.NewDefaultRegistry()
	}
	if o.Logger == nil {
		o.Logger = logrus.NewEntry(logrus.StandardLogger())
	}
	o.Limits = o.Limits.Effective()
	return o
}

// Handler creates sessions for a transport
type Handler struct {
	binder Binder
	opts   Options
}

func NewHandler(binder Binder, opts Options) *Handler {
	return &Handler{binder: binder, opts: opts.withDefaults()}
}

// Serve runs a new session on conn, encoding frames with codec
func (h *Handler) Serve(ctx context.Context, conn Conn, codec wire.Codec) error {
	return h.New(codec).Run(ctx, conn)
}

// New creates a session. A nil codec selects the protobuf codec.
func (h *Handler) New(codec wire.Codec) *Session {
	if codec == nil {
		codec = wire.ProtoCodec{}
	}
	id := uuid.NewString()
	return &Session{
		id:     id,
		binder: h.binder,
		codec:  codec,
		opts:   h.opts,
		log:    h.opts.Logger.WithFields(logrus.Fields{"session": id, "codec": codec.Name()}),
	}
}

// Session is a single invocation. Run may be called once.
type Session struct {
	id     string
	binder Binder
	codec  wire.Codec
	opts   Options
	log    *logrus.Entry
	status atomic.Int32

	failMu  sync.Mutex
	failure error
}

// ID returns the session identifier used in logs
func (s *Session) ID() string { return s.id }

// Status returns the current lifecycle state
func (s *Session) Status() Status { return Status(s.status.Load()) }

func (s *Session) setStatus(st Status) {
	s.status.Store(int32(st))
	s.log.WithField("status", st).Debug("session state changed")
}

type binding struct {
	name     string
	fn       function.Function
	inputs   []string
	outputs  []string
	expected [][]string
}

var errNoHandshake = errors.New("connection closed before handshake")

// Run serves the session until every output stream terminated and the
// function returned, or until a fatal error. Errors raised before the
// session is active close it without sending any frame; later errors are
// reported on every still-open output stream first.
func (s *Session) Run(ctx context.Context, conn Conn) (err error) {
	finished := s.opts.Metrics.SessionStarted()
	defer func() {
		s.setStatus(Closed)
		code := ""
		if err != nil {
			code = invoker.KindOf(err).Code()
			s.log.WithError(err).Warn("session failed")
		} else {
			s.log.Debug("session closed")
		}
		finished(code)
	}()

	s.setStatus(AwaitingHandshake)
	start, err := s.handshake(conn)
	if errors.Is(err, errNoHandshake) {
		return nil
	}
	if err != nil {
		return err
	}

	s.setStatus(Negotiating)
	b, err := s.negotiate(start)
	if err != nil {
		return err
	}
	s.log = s.log.WithField("function", b.name)

	return s.serve(ctx, conn, b)
}

func (s *Session) recv(conn Conn) (*wire.Frame, error) {
	raw, err := conn.Recv()
	if err != nil {
		return nil, err
	}
	s.opts.Metrics.FrameReceived()
	if err := s.opts.Limits.Check(len(raw)); err != nil {
		return nil, err
	}
	return s.codec.Decode(raw)
}

func (s *Session) handshake(conn Conn) (*wire.StartFrame, error) {
	f, err := s.recv(conn)
	if err == io.EOF {
		return nil, errNoHandshake
	}
	if err != nil {
		if invoker.KindOf(err) != 0 {
			return nil, err
		}
		return nil, invoker.Canceled(err)
	}
	if f.FrameType != wire.FrameTypeStart {
		return nil, invoker.UnexpectedFrame("%s frame before handshake", f.FrameType)
	}
	s.log.WithField("frame", f).Debug("handshake received")
	return f.Start, nil
}

func (s *Session) negotiate(start *wire.StartFrame) (*binding, error) {
	name, fn, err := s.binder.Bind(start.Function)
	if err != nil {
		return nil, err
	}
	sig := fn.Signature()
	n, m := sig.Arity()
	if got := len(start.AcceptedContentTypes); got != m {
		return nil, invoker.ArityMismatch("output streams", got, m)
	}
	if got := len(start.InputContentTypes); got != 0 && got != n {
		return nil, invoker.ArityMismatch("input streams", got, n)
	}

	b := &binding{
		name:     name,
		fn:       fn,
		inputs:   make([]string, n),
		outputs:  make([]string, m),
		expected: make([][]string, n),
	}
	for i, p := range sig.Outputs {
		ct, err := negotiate.Negotiate(s.expected(p), start.AcceptedContentTypes[i])
		if err != nil {
			return nil, atIndex(err, i)
		}
		b.outputs[i] = ct
	}
	for i, p := range sig.Inputs {
		b.expected[i] = s.expected(p)
		if len(start.InputContentTypes) == 0 || start.InputContentTypes[i] == "" {
			continue
		}
		ct, err := negotiate.Negotiate(b.expected[i], start.InputContentTypes[i:i+1])
		if err != nil {
			return nil, atIndex(err, i)
		}
		b.inputs[i] = ct
	}
	return b, nil
}

func (s *Session) expected(p function.Param) []string {
	if len(p.ContentTypes) > 0 {
		return p.ContentTypes
	}
	return s.opts.Payloads.ContentTypes()
}

func (s *Session) serve(ctx context.Context, conn Conn, b *binding) error {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	demux := mux.NewDemultiplexer(b.inputs, func(i int, contentType string) (string, error) {
		return negotiate.Negotiate(b.expected[i], []string{contentType})
	})
	muxer := mux.NewMultiplexer(b.outputs, s.opts.OutputBuffer)
	eng, err := engine.New(b.fn, demux, muxer, s.opts.Payloads, s.log)
	if err != nil {
		return err
	}

	fail := func(err error) {
		s.failMu.Lock()
		first := s.failure == nil
		if first {
			s.failure = err
		}
		s.failMu.Unlock()
		if first {
			demux.Abort(err)
			muxer.Abort(err)
			// after the muxer abort, so Run still reports the failure
			cancel(err)
		}
	}

	// The function starts once the first input frame was accepted or the
	// caller finished sending, so a session rejected on its first frame
	// never invokes it. Without inputs it starts at once.
	started := make(chan struct{})
	var startOnce sync.Once
	start := func() { startOnce.Do(func() { close(started) }) }

	s.setStatus(Active)
	s.log.WithFields(logrus.Fields{"inputs": b.inputs, "outputs": b.outputs}).Debug("session active")
	if demux.Count() == 0 {
		start()
		s.drain()
	}

	// Not waited for: a transport only unblocks Recv once the session
	// returns.
	go s.read(conn, demux, start, fail)

	engDone := make(chan error, 1)
	go func() {
		select {
		case <-started:
		case <-ctx.Done():
			engDone <- nil
			return
		}
		err := eng.Run(ctx)
		if err != nil {
			fail(err)
		}
		engDone <- err
	}()

	muxErr := muxer.Run(ctx, func(f *wire.Frame) error {
		raw, err := s.codec.Encode(f)
		if err != nil {
			return err
		}
		if err := conn.Send(raw); err != nil {
			return invoker.Canceled(err)
		}
		s.opts.Metrics.FrameSent()
		return nil
	})
	if muxErr != nil {
		fail(muxErr)
		cancel(muxErr)
	}
	engErr := <-engDone

	s.failMu.Lock()
	failure := s.failure
	s.failMu.Unlock()
	if failure != nil {
		return failure
	}
	return engErr
}

func (s *Session) read(conn Conn, demux *mux.Demultiplexer, start func(), fail func(error)) {
	for {
		f, err := s.recv(conn)
		if err == io.EOF {
			demux.CloseAll()
			start()
			s.drain()
			return
		}
		if err != nil {
			if invoker.KindOf(err) == 0 {
				err = invoker.Canceled(err)
			}
			fail(err)
			return
		}
		if f.FrameType == wire.FrameTypeStart {
			fail(invoker.UnexpectedFrame("second handshake"))
			return
		}
		if err := demux.Dispatch(f.Data); err != nil {
			fail(err)
			return
		}
		start()
		select {
		case <-demux.Done():
			s.drain()
		default:
		}
	}
}

func (s *Session) drain() {
	if s.status.CompareAndSwap(int32(Active), int32(Draining)) {
		s.log.WithField("status", Draining).Debug("session state changed")
	}
}

func atIndex(err error, i int) error {
	var e *invoker.Error
	if errors.As(err, &e) && e.Index < 0 {
		return e.WithIndex(i)
	}
	return err
}
