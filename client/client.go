// Package client calls a function on a remote invoker over any transport.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"

	"golang.org/x/sync/errgroup"

	invoker "github.com/machinefabric/invoker-go"
	"github.com/machinefabric/invoker-go/wire"
)

// Conn is the caller side of one physical stream carrying encoded frames.
// CloseSend tells the invoker no more frames follow.
type Conn interface {
	Send(data []byte) error
	Recv() ([]byte, error)
	CloseSend() error
}

// Input is one input stream to send
type Input struct {
	ContentType string
	Values      [][]byte
	Headers     map[string]string
}

// Request describes one invocation
type Request struct {
	Function string
	// Accept lists, per output, the content types the caller accepts.
	Accept [][]string
	Inputs []Input
	// DeclareInputTypes announces input content types in the handshake
	// instead of on the first data frame of each stream.
	DeclareInputTypes bool
}

// Output collects one output stream
type Output struct {
	Index       int
	ContentType string
	Values      [][]byte
	Headers     []map[string]string
	Ended       bool
	Error       *wire.ErrorInfo
}

// Result holds every output stream by index
type Result struct {
	Outputs []*Output
}

// Err returns the first error reported on any output
func (r *Result) Err() error {
	for _, out := range r.Outputs {
		if out.Error != nil {
			return &invoker.Error{
				Kind:    invoker.KindFromCode(out.Error.Code),
				Index:   out.Index,
				Message: out.Error.Message,
			}
		}
	}
	return nil
}

// Call runs req over conn. Inputs are sent while outputs are received, so
// streaming functions see their input before the caller finished sending.
func Call(ctx context.Context, conn Conn, codec wire.Codec, req Request) (*Result, error) {
	if codec == nil {
		codec = wire.ProtoCodec{}
	}
	result := &Result{Outputs: make([]*Output, len(req.Accept))}
	for i := range result.Outputs {
		result.Outputs[i] = &Output{Index: i}
	}

	send := func(f *wire.Frame) error {
		raw, err := codec.Encode(f)
		if err != nil {
			return err
		}
		return conn.Send(raw)
	}

	var declared []string
	if req.DeclareInputTypes {
		for _, in := range req.Inputs {
			declared = append(declared, in.ContentType)
		}
	}
	if err := send(wire.NewStart(req.Function, req.Accept, declared)); err != nil {
		return nil, fmt.Errorf("send handshake: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		for i, in := range req.Inputs {
			if err := sendInput(gctx, send, i, in); err != nil {
				return err
			}
		}
		return conn.CloseSend()
	})

	var recvErr error
	g.Go(func() error {
		for {
			raw, err := conn.Recv()
			if err == io.EOF {
				return nil
			}
			if err != nil {
				recvErr = err
				return nil
			}
			f, err := codec.Decode(raw)
			if err != nil {
				return err
			}
			if err := result.add(f); err != nil {
				return err
			}
		}
	})

	waitErr := g.Wait()
	if err := result.Err(); err != nil {
		return result, err
	}
	// io.EOF from Send means the invoker stopped reading; its reason
	// arrives through Recv
	if waitErr != nil && !errors.Is(waitErr, io.EOF) {
		return result, waitErr
	}
	if recvErr != nil {
		return result, recvErr
	}
	return result, nil
}

func sendInput(ctx context.Context, send func(*wire.Frame) error, index int, in Input) error {
	if len(in.Values) == 0 {
		return send(wire.NewEnd(index))
	}
	for j, v := range in.Values {
		if err := ctx.Err(); err != nil {
			return err
		}
		var f *wire.Frame
		if j == len(in.Values)-1 {
			f = wire.NewLast(index, in.ContentType, v)
		} else {
			f = wire.NewData(index, in.ContentType, v)
		}
		if j > 0 {
			f.Data.ContentType = ""
		}
		if len(in.Headers) > 0 {
			f.Data.Headers = in.Headers
		}
		if err := send(f); err != nil {
			return err
		}
	}
	return nil
}

func (r *Result) add(f *wire.Frame) error {
	if f.FrameType != wire.FrameTypeData {
		return invoker.UnexpectedFrame("invoker sent a %s frame", f.FrameType)
	}
	d := f.Data
	if d.Index >= len(r.Outputs) {
		return invoker.IndexOutOfRange(d.Index, len(r.Outputs))
	}
	out := r.Outputs[d.Index]
	if out.Ended || out.Error != nil {
		return invoker.UnexpectedFrame("frame after end of stream").WithIndex(d.Index)
	}
	if d.ContentType != "" {
		out.ContentType = d.ContentType
	}
	if d.HasPayload() {
		out.Values = append(out.Values, d.Payload)
		out.Headers = append(out.Headers, d.Headers)
	}
	if d.Error != nil {
		out.Error = d.Error
	}
	if d.End {
		out.Ended = true
	}
	return nil
}
