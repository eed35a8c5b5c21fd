// Package tcp carries invoker sessions over raw stream sockets. Frames are
// length-prefixed; the caller half-closes its write side after the last
// frame.
package tcp

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/machinefabric/invoker-go/session"
	"github.com/machinefabric/invoker-go/wire"
)

// Server accepts connections and runs one session per connection
type Server struct {
	handler *session.Handler
	codec   wire.Codec
	limits  wire.Limits
	log     *logrus.Entry

	mu     sync.Mutex
	lis    net.Listener
	conns  map[net.Conn]struct{}
	closed bool
	wg     sync.WaitGroup
}

func NewServer(h *session.Handler, codec wire.Codec, limits wire.Limits, log *logrus.Entry) *Server {
	if codec == nil {
		codec = wire.ProtoCodec{}
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Server{
		handler: h,
		codec:   codec,
		limits:  limits.Effective(),
		log:     log.WithField("transport", "tcp"),
		conns:   make(map[net.Conn]struct{}),
	}
}

// ErrServerClosed is returned by Serve after Close
var ErrServerClosed = errors.New("tcp: server closed")

// Serve accepts connections on lis until ctx is done or Close is called.
// Sessions still running are canceled when Serve returns.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrServerClosed
	}
	s.lis = lis
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-ctx.Done()
		lis.Close()
	}()

	for {
		conn, err := lis.Accept()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if closed || ctx.Err() != nil {
				return ErrServerClosed
			}
			return err
		}
		if !s.track(conn) {
			conn.Close()
			return ErrServerClosed
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.untrack(conn)
			s.serveConn(ctx, conn)
		}()
	}
}

func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
	conn.Close()
}

func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	log := s.log.WithField("remote", conn.RemoteAddr().String())
	sc := newConn(conn, s.limits)
	if err := s.handler.Serve(ctx, sc, s.codec); err != nil {
		log.WithError(err).Debug("connection closed with error")
		return
	}
	if cw, ok := conn.(interface{ CloseWrite() error }); ok {
		_ = cw.CloseWrite()
	}
}

// Close stops accepting, closes every open connection and waits for their
// sessions to return.
func (s *Server) Close() error {
	s.mu.Lock()
	s.closed = true
	var err error
	if s.lis != nil {
		err = s.lis.Close()
	}
	for c := range s.conns {
		c.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
	if errors.Is(err, net.ErrClosed) {
		err = nil
	}
	return err
}

// Shutdown stops accepting and waits for running sessions to return. When
// ctx is done first the remaining connections are closed.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	if s.lis != nil {
		_ = s.lis.Close()
	}
	s.mu.Unlock()

	drained := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(drained)
	}()
	select {
	case <-drained:
		return nil
	case <-ctx.Done():
		_ = s.Close()
		return ctx.Err()
	}
}

type conn struct {
	nc     net.Conn
	reader *wire.FrameReader
	writer *wire.FrameWriter
}

func newConn(nc net.Conn, limits wire.Limits) *conn {
	c := &conn{
		nc:     nc,
		reader: wire.NewFrameReader(nc),
		writer: wire.NewFrameWriter(nc),
	}
	c.reader.SetLimits(limits)
	c.writer.SetLimits(limits)
	return c
}

func (c *conn) Recv() ([]byte, error) { return c.reader.ReadMessage() }

func (c *conn) Send(data []byte) error { return c.writer.WriteMessage(data) }

// ClientConn is the caller side of a TCP session
type ClientConn struct {
	*conn
}

// Dial connects to an invoker listening at addr
func Dial(ctx context.Context, addr string, limits wire.Limits) (*ClientConn, error) {
	var d net.Dialer
	nc, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	return &ClientConn{conn: newConn(nc, limits)}, nil
}

// Recv returns io.EOF once the invoker closed its side
func (c *ClientConn) Recv() ([]byte, error) {
	data, err := c.conn.Recv()
	if errors.Is(err, net.ErrClosed) {
		return nil, io.EOF
	}
	return data, err
}

// CloseSend half-closes the connection so the invoker sees the end of input
func (c *ClientConn) CloseSend() error {
	if cw, ok := c.nc.(interface{ CloseWrite() error }); ok {
		return cw.CloseWrite()
	}
	return nil
}

func (c *ClientConn) Close() error {
	return c.nc.Close()
}
