// Package ws carries invoker sessions over websockets. Each binary message
// holds one encoded frame; an empty binary message ends the caller's
// side of the stream.
package ws

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	invoker "github.com/machinefabric/invoker-go"
	"github.com/machinefabric/invoker-go/session"
	"github.com/machinefabric/invoker-go/wire"
)

// Subprotocols select the frame codec
const (
	SubprotocolProto = "invoker." + wire.CodecProto
	SubprotocolCBOR  = "invoker." + wire.CodecCBOR
)

const closeWait = time.Second

// maxCloseReason is the room left for a reason in a close frame
const maxCloseReason = 123

// Server upgrades HTTP requests and runs one session per connection
type Server struct {
	handler  *session.Handler
	upgrader websocket.Upgrader
	limits   wire.Limits
}

func NewServer(h *session.Handler, limits wire.Limits) *Server {
	return &Server{
		handler: h,
		limits:  limits.Effective(),
		upgrader: websocket.Upgrader{
			Subprotocols: []string{SubprotocolProto, SubprotocolCBOR},
			CheckOrigin:  func(r *http.Request) bool { return true },
		},
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied with an HTTP error
		logrus.WithError(err).Debug("websocket upgrade failed")
		return
	}
	defer conn.Close()
	conn.SetReadLimit(int64(s.limits.MaxFrame))

	codec, err := codecFor(conn.Subprotocol())
	if err != nil {
		closeWith(conn, websocket.CloseProtocolError, err.Error())
		return
	}

	err = s.handler.Serve(r.Context(), &serverConn{conn: conn}, codec)
	if err != nil {
		closeWith(conn, closeCode(err), err.Error())
		return
	}
	closeWith(conn, websocket.CloseNormalClosure, "")
}

func codecFor(subprotocol string) (wire.Codec, error) {
	if subprotocol == "" {
		return wire.ProtoCodec{}, nil
	}
	name, ok := strings.CutPrefix(subprotocol, "invoker.")
	if !ok {
		return nil, fmt.Errorf("unsupported subprotocol %q", subprotocol)
	}
	return wire.CodecByName(name)
}

func closeCode(err error) int {
	switch invoker.KindOf(err) {
	case invoker.KindMalformedFrame, invoker.KindUnexpectedFrame, invoker.KindIndexOutOfRange, invoker.KindArityMismatch:
		return websocket.CloseProtocolError
	case invoker.KindNoCompatibleContentType, invoker.KindUnknownFunction:
		return websocket.ClosePolicyViolation
	default:
		return websocket.CloseInternalServerErr
	}
}

func closeWith(conn *websocket.Conn, code int, reason string) {
	if len(reason) > maxCloseReason {
		reason = reason[:maxCloseReason]
	}
	msg := websocket.FormatCloseMessage(code, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeWait))
}

type serverConn struct {
	conn *websocket.Conn
	eof  bool
}

func (c *serverConn) Recv() ([]byte, error) {
	if c.eof {
		return nil, io.EOF
	}
	typ, data, err := c.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	if typ != websocket.BinaryMessage {
		return nil, invoker.MalformedFrame("frames must be binary messages")
	}
	if len(data) == 0 {
		c.eof = true
		return nil, io.EOF
	}
	return data, nil
}

func (c *serverConn) Send(data []byte) error {
	return c.conn.WriteMessage(websocket.BinaryMessage, data)
}

// ClientConn is the caller side of a websocket session
type ClientConn struct {
	conn *websocket.Conn
}

// Dial opens a session at url (ws:// or wss://) using codec
func Dial(ctx context.Context, url string, codec wire.Codec) (*ClientConn, error) {
	if codec == nil {
		codec = wire.ProtoCodec{}
	}
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: 10 * time.Second,
		Subprotocols:     []string{"invoker." + codec.Name()},
	}
	conn, resp, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket dial %s: %s: %w", url, resp.Status, err)
		}
		return nil, fmt.Errorf("websocket dial %s: %w", url, err)
	}
	return &ClientConn{conn: conn}, nil
}

func (c *ClientConn) Send(data []byte) error {
	return c.conn.WriteMessage(websocket.BinaryMessage, data)
}

// CloseSend sends the empty message that ends the caller's side
func (c *ClientConn) CloseSend() error {
	return c.conn.WriteMessage(websocket.BinaryMessage, []byte{})
}

// Recv returns io.EOF once the invoker closed the session normally. An
// abnormal close is returned as the error carried by the close frame.
func (c *ClientConn) Recv() ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	if err == nil {
		return data, nil
	}
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		if ce.Code == websocket.CloseNormalClosure {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("invoker closed the session (%d): %s", ce.Code, ce.Text)
	}
	return nil, err
}

func (c *ClientConn) Close() error {
	return c.conn.Close()
}
