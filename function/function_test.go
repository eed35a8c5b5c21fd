package function

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	invoker "github.com/machinefabric/invoker-go"
	"github.com/machinefabric/invoker-go/payload"
)

type sliceInput struct {
	index int
	items []Item
}

func textInput(index int, values ...string) *sliceInput {
	in := &sliceInput{index: index}
	for _, v := range values {
		in.items = append(in.items, Item{Payload: []byte(v), ContentType: payload.TextPlain, Codec: payload.Text()})
	}
	return in
}

func (s *sliceInput) Index() int          { return s.index }
func (s *sliceInput) ContentType() string { return payload.TextPlain }
func (s *sliceInput) Next(ctx context.Context) (Item, error) {
	if len(s.items) == 0 {
		return Item{}, io.EOF
	}
	it := s.items[0]
	s.items = s.items[1:]
	return it, nil
}

type recordingOutput struct {
	index  int
	values []interface{}
	final  bool
	closed bool
}

func (r *recordingOutput) Index() int          { return r.index }
func (r *recordingOutput) ContentType() string { return payload.TextPlain }
func (r *recordingOutput) Emit(ctx context.Context, v interface{}) error {
	r.values = append(r.values, v)
	return nil
}
func (r *recordingOutput) EmitRaw(ctx context.Context, data []byte) error {
	return r.Emit(ctx, data)
}
func (r *recordingOutput) EmitFinal(ctx context.Context, v interface{}) error {
	r.values = append(r.values, v)
	r.final = true
	r.closed = true
	return nil
}
func (r *recordingOutput) Close(ctx context.Context) error {
	r.closed = true
	return nil
}

var textParam = Param{Name: "s", ContentTypes: []string{payload.TextPlain}}

func TestOneShotEmitsFinalPerOutput(t *testing.T) {
	fn := OneShot(Signature{Inputs: []Param{textParam, textParam}, Outputs: []Param{textParam}},
		func(ctx context.Context, args Args) ([]interface{}, error) {
			a, err := args.String(0)
			if err != nil {
				return nil, err
			}
			b, err := args.String(1)
			if err != nil {
				return nil, err
			}
			return []interface{}{a + b}, nil
		})

	out := &recordingOutput{}
	err := fn.Invoke(context.Background(), []Input{textInput(0, "foo"), textInput(1, "bar")}, []Output{out})
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"foobar"}, out.values)
	assert.True(t, out.final)
}

func TestOneShotRejectsMissingOrExtraValues(t *testing.T) {
	fn := OneShot(Signature{Inputs: []Param{textParam}, Outputs: []Param{textParam}},
		func(ctx context.Context, args Args) ([]interface{}, error) {
			return []interface{}{"x"}, nil
		})

	err := fn.Invoke(context.Background(), []Input{textInput(0)}, []Output{&recordingOutput{}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no value")

	err = fn.Invoke(context.Background(), []Input{textInput(0, "a", "b")}, []Output{&recordingOutput{}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "more than one")
}

func TestOneShotResultCountMustMatchOutputs(t *testing.T) {
	fn := OneShot(Signature{Inputs: []Param{textParam}, Outputs: []Param{textParam, textParam}},
		func(ctx context.Context, args Args) ([]interface{}, error) {
			return []interface{}{"only one"}, nil
		})
	err := fn.Invoke(context.Background(), []Input{textInput(0, "a")}, []Output{&recordingOutput{}, &recordingOutput{index: 1}})
	assert.Error(t, err)
}

func TestMapPreservesOrderAndCloses(t *testing.T) {
	fn := Map(Signature{Inputs: []Param{textParam}, Outputs: []Param{textParam}},
		func(ctx context.Context, item Item) (interface{}, error) {
			var s string
			if err := item.Decode(&s); err != nil {
				return nil, err
			}
			return strings.ToUpper(s), nil
		})

	out := &recordingOutput{}
	require.NoError(t, fn.Invoke(context.Background(), []Input{textInput(0, "a", "b", "c")}, []Output{out}))
	assert.Equal(t, []interface{}{"A", "B", "C"}, out.values)
	assert.True(t, out.closed)
	assert.False(t, out.final)
}

func TestMapPropagatesErrors(t *testing.T) {
	boom := errors.New("boom")
	fn := Map(Signature{}, func(ctx context.Context, item Item) (interface{}, error) { return nil, boom })
	err := fn.Invoke(context.Background(), []Input{textInput(0, "a")}, []Output{&recordingOutput{}})
	assert.ErrorIs(t, err, boom)
}

func TestStreamingAndSignature(t *testing.T) {
	sig := Signature{Inputs: []Param{textParam}, Outputs: []Param{textParam, textParam}}
	called := false
	fn := Streaming(sig, func(ctx context.Context, in []Input, out []Output) error {
		called = true
		return nil
	})
	n, m := fn.Signature().Arity()
	assert.Equal(t, 1, n)
	assert.Equal(t, 2, m)
	require.NoError(t, fn.Invoke(context.Background(), nil, nil))
	assert.True(t, called)
}

func TestItemDecodeWithoutCodec(t *testing.T) {
	var s string
	err := Item{Payload: []byte("x"), ContentType: "application/unknown"}.Decode(&s)
	assert.Error(t, err)
}

func TestWithHeadersUnwrap(t *testing.T) {
	v, h := Unwrap(WithHeaders("value", map[string]string{"a": "b"}))
	assert.Equal(t, "value", v)
	assert.Equal(t, "b", h["a"])

	v, h = Unwrap(42)
	assert.Equal(t, 42, v)
	assert.Nil(t, h)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	fn := Streaming(Signature{}, func(ctx context.Context, in []Input, out []Output) error { return nil })
	require.NoError(t, r.Register("b", fn))
	require.NoError(t, r.Register("a", fn))
	assert.Error(t, r.Register("a", fn), "duplicate names are rejected")
	assert.Error(t, r.Register("", fn))

	got, err := r.Resolve("a")
	require.NoError(t, err)
	assert.Equal(t, fn, got)

	_, err = r.Resolve("missing")
	assert.Equal(t, invoker.KindUnknownFunction, invoker.KindOf(err))
	assert.Equal(t, []string{"a", "b"}, r.Names())
}
