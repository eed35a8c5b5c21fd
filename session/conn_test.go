package session

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/machinefabric/invoker-go/wire"
)

// pipeConn is an in-memory physical stream. The test plays the caller.
type pipeConn struct {
	in        chan []byte
	out       chan []byte
	closeOnce sync.Once
	ctx       context.Context
}

func newPipe(ctx context.Context) *pipeConn {
	return &pipeConn{in: make(chan []byte, 64), out: make(chan []byte, 256), ctx: ctx}
}

func (p *pipeConn) Recv() ([]byte, error) {
	select {
	case b, ok := <-p.in:
		if !ok {
			return nil, io.EOF
		}
		return b, nil
	case <-p.ctx.Done():
		return nil, p.ctx.Err()
	}
}

func (p *pipeConn) Send(b []byte) error {
	p.out <- b
	return nil
}

func (p *pipeConn) send(t *testing.T, f *wire.Frame) {
	t.Helper()
	raw, err := wire.ProtoCodec{}.Encode(f)
	require.NoError(t, err)
	p.in <- raw
}

func (p *pipeConn) closeSend() {
	p.closeOnce.Do(func() { close(p.in) })
}

// collect gathers every frame the session sent once it has returned
func (p *pipeConn) collect(t *testing.T) []*wire.Frame {
	t.Helper()
	var frames []*wire.Frame
	for {
		select {
		case raw := <-p.out:
			f, err := wire.ProtoCodec{}.Decode(raw)
			require.NoError(t, err)
			frames = append(frames, f)
		default:
			return frames
		}
	}
}

// runSession runs s on conn in the background
func runSession(ctx context.Context, s *Session, conn *pipeConn) <-chan error {
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, conn) }()
	return done
}

func wait(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("session did not finish")
		return nil
	}
}
