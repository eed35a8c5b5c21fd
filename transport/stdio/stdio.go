// Package stdio runs a single session over a pair of byte streams,
// normally the process's stdin and stdout, so a parent process can spawn
// the invoker per call.
package stdio

import (
	"context"
	"io"
	"os"

	"github.com/machinefabric/invoker-go/session"
	"github.com/machinefabric/invoker-go/wire"
)

type conn struct {
	reader *wire.FrameReader
	writer *wire.FrameWriter
}

func (c *conn) Recv() ([]byte, error) { return c.reader.ReadMessage() }

func (c *conn) Send(data []byte) error { return c.writer.WriteMessage(data) }

// Serve runs one session reading length-prefixed frames from r and
// writing them to w. End of r ends the caller's side. If r is an
// io.Closer it is closed once the session ends, releasing a read still
// blocked on it.
func Serve(ctx context.Context, h *session.Handler, codec wire.Codec, limits wire.Limits, r io.Reader, w io.Writer) error {
	c := &conn{
		reader: wire.NewFrameReader(r),
		writer: wire.NewFrameWriter(w),
	}
	c.reader.SetLimits(limits)
	c.writer.SetLimits(limits)
	err := h.Serve(ctx, c, codec)
	if rc, ok := r.(io.Closer); ok {
		rc.Close()
	}
	return err
}

// ServeProcess serves one session on stdin and stdout
func ServeProcess(ctx context.Context, h *session.Handler, codec wire.Codec, limits wire.Limits) error {
	return Serve(ctx, h, codec, limits, os.Stdin, os.Stdout)
}
