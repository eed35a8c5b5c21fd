package engine

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	invoker "github.com/machinefabric/invoker-go"
	"github.com/machinefabric/invoker-go/function"
	"github.com/machinefabric/invoker-go/mux"
	"github.com/machinefabric/invoker-go/payload"
	"github.com/machinefabric/invoker-go/wire"
)

type harness struct {
	demux  *mux.Demultiplexer
	muxer  *mux.Multiplexer
	engine *Engine
}

func newHarness(t *testing.T, fn function.Function, inTypes, outTypes []string) *harness {
	t.Helper()
	h := &harness{
		demux: mux.NewDemultiplexer(inTypes, nil),
		muxer: mux.NewMultiplexer(outTypes, 16),
	}
	e, err := New(fn, h.demux, h.muxer, payload.NewDefaultRegistry(), nil)
	require.NoError(t, err)
	h.engine = e
	return h
}

// run drives the engine and the multiplexer the way a session does
func (h *harness) run(t *testing.T) ([]*wire.Frame, error, error) {
	t.Helper()
	ctx := context.Background()
	engDone := make(chan error, 1)
	go func() {
		err := h.engine.Run(ctx)
		if err != nil {
			h.muxer.Abort(err)
		}
		engDone <- err
	}()
	var frames []*wire.Frame
	muxErr := h.muxer.Run(ctx, func(f *wire.Frame) error {
		frames = append(frames, f)
		return nil
	})
	return frames, <-engDone, muxErr
}

func textParam() function.Param {
	return function.Param{Name: "t", ContentTypes: []string{payload.TextPlain}}
}

func TestEngineClosesOutputsLeftOpen(t *testing.T) {
	fn := function.Streaming(
		function.Signature{Inputs: []function.Param{textParam()}, Outputs: []function.Param{textParam(), textParam()}},
		func(ctx context.Context, in []function.Input, out []function.Output) error {
			for {
				item, err := in[0].Next(ctx)
				if errors.Is(err, io.EOF) {
					return nil
				}
				if err != nil {
					return err
				}
				if err := out[0].EmitRaw(ctx, item.Payload); err != nil {
					return err
				}
			}
		})
	h := newHarness(t, fn, []string{payload.TextPlain}, []string{payload.TextPlain, payload.TextPlain})
	require.NoError(t, h.demux.Dispatch(wire.NewLast(0, payload.TextPlain, []byte("hello")).Data))

	frames, engErr, muxErr := h.run(t)
	require.NoError(t, engErr)
	require.NoError(t, muxErr)
	require.Len(t, frames, 3)
	assert.Equal(t, "hello", string(frames[0].Data.Payload))

	ended := map[int]bool{}
	for _, f := range frames[1:] {
		assert.True(t, f.Data.End)
		assert.False(t, f.Data.HasPayload())
		ended[f.Data.Index] = true
	}
	assert.True(t, ended[0] && ended[1])
}

func TestEngineWrapsFunctionErrors(t *testing.T) {
	fn := function.Streaming(
		function.Signature{Outputs: []function.Param{textParam()}},
		func(ctx context.Context, in []function.Input, out []function.Output) error {
			return errors.New("division by zero")
		})
	h := newHarness(t, fn, nil, []string{payload.TextPlain})

	frames, engErr, muxErr := h.run(t)
	assert.Equal(t, invoker.KindFunctionFault, invoker.KindOf(engErr))
	assert.Equal(t, invoker.KindFunctionFault, invoker.KindOf(muxErr))
	require.Len(t, frames, 1)
	require.NotNil(t, frames[0].Data.Error)
	assert.Equal(t, "FUNCTION_FAULT", frames[0].Data.Error.Code)
	assert.Contains(t, frames[0].Data.Error.Message, "division by zero")
}

func TestEngineRecoversPanics(t *testing.T) {
	fn := function.Streaming(
		function.Signature{Outputs: []function.Param{textParam()}},
		func(ctx context.Context, in []function.Input, out []function.Output) error {
			panic("bad")
		})
	h := newHarness(t, fn, nil, []string{payload.TextPlain})
	_, engErr, _ := h.run(t)
	assert.Equal(t, invoker.KindFunctionFault, invoker.KindOf(engErr))
}

func TestEngineKeepsInputAbort(t *testing.T) {
	fn := function.Streaming(
		function.Signature{Inputs: []function.Param{textParam()}, Outputs: []function.Param{textParam()}},
		func(ctx context.Context, in []function.Input, out []function.Output) error {
			_, err := in[0].Next(ctx)
			return err
		})
	h := newHarness(t, fn, []string{payload.TextPlain}, []string{payload.TextPlain})
	h.demux.Abort(invoker.InputAborted(0, "CLIENT", "gone"))

	_, engErr, _ := h.run(t)
	assert.Equal(t, invoker.KindInputAborted, invoker.KindOf(engErr))
}

func TestEngineEncodesWithNegotiatedCodec(t *testing.T) {
	jsonParam := function.Param{Name: "j", ContentTypes: []string{payload.JSON}}
	fn := function.OneShot(
		function.Signature{Inputs: []function.Param{jsonParam}, Outputs: []function.Param{jsonParam}},
		func(ctx context.Context, args function.Args) ([]interface{}, error) {
			var in map[string]int
			if err := args.Decode(0, &in); err != nil {
				return nil, err
			}
			return []interface{}{function.WithHeaders(map[string]int{"doubled": in["n"] * 2}, map[string]string{"x": "y"})}, nil
		})
	h := newHarness(t, fn, []string{payload.JSON}, []string{payload.JSON})
	require.NoError(t, h.demux.Dispatch(wire.NewLast(0, payload.JSON, []byte(`{"n":21}`)).Data))

	frames, engErr, muxErr := h.run(t)
	require.NoError(t, engErr)
	require.NoError(t, muxErr)
	require.Len(t, frames, 1)
	d := frames[0].Data
	assert.JSONEq(t, `{"doubled":42}`, string(d.Payload))
	assert.Equal(t, payload.JSON, d.ContentType)
	assert.True(t, d.End)
	assert.Equal(t, "y", d.Headers["x"])
}

func TestEngineValidatesInputSchema(t *testing.T) {
	param := function.Param{
		Name:         "person",
		ContentTypes: []string{payload.JSON},
		Schema:       `{"type":"object","required":["name"]}`,
	}
	fn := function.OneShot(
		function.Signature{Inputs: []function.Param{param}, Outputs: []function.Param{textParam()}},
		func(ctx context.Context, args function.Args) ([]interface{}, error) {
			return []interface{}{"ok"}, nil
		})
	h := newHarness(t, fn, []string{payload.JSON}, []string{payload.TextPlain})
	require.NoError(t, h.demux.Dispatch(wire.NewLast(0, payload.JSON, []byte(`{"age":3}`)).Data))

	frames, engErr, _ := h.run(t)
	assert.Equal(t, invoker.KindFunctionFault, invoker.KindOf(engErr))
	var sve *payload.SchemaValidationError
	assert.ErrorAs(t, engErr, &sve)
	require.Len(t, frames, 1)
	assert.NotNil(t, frames[0].Data.Error)
}

func TestEngineRejectsArityMismatch(t *testing.T) {
	fn := function.Streaming(function.Signature{Inputs: []function.Param{textParam()}}, nil)
	_, err := New(fn, mux.NewDemultiplexer(nil, nil), mux.NewMultiplexer(nil, 0), payload.NewDefaultRegistry(), nil)
	assert.Equal(t, invoker.KindArityMismatch, invoker.KindOf(err))
}
