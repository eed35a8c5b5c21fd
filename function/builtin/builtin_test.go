package builtin

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/machinefabric/invoker-go/function"
	"github.com/machinefabric/invoker-go/payload"
)

var registry = payload.NewDefaultRegistry()

type input struct {
	index int
	ct    string
	items [][]byte
}

func newInput(index int, ct string, values ...string) *input {
	in := &input{index: index, ct: ct}
	for _, v := range values {
		in.items = append(in.items, []byte(v))
	}
	return in
}

func (in *input) Index() int          { return in.index }
func (in *input) ContentType() string { return in.ct }

func (in *input) Next(ctx context.Context) (function.Item, error) {
	if len(in.items) == 0 {
		return function.Item{}, io.EOF
	}
	data := in.items[0]
	in.items = in.items[1:]
	codec, _ := registry.Lookup(in.ct)
	return function.Item{Payload: data, ContentType: in.ct, Codec: codec}, nil
}

type output struct {
	index  int
	ct     string
	values []string
	closed bool
}

func (o *output) Index() int          { return o.index }
func (o *output) ContentType() string { return o.ct }

func (o *output) Emit(ctx context.Context, v interface{}) error {
	v, _ = function.Unwrap(v)
	codec, ok := registry.Lookup(o.ct)
	if !ok {
		return io.ErrUnexpectedEOF
	}
	data, err := codec.Encode(v)
	if err != nil {
		return err
	}
	return o.EmitRaw(ctx, data)
}

func (o *output) EmitRaw(ctx context.Context, data []byte) error {
	o.values = append(o.values, string(data))
	return nil
}

func (o *output) EmitFinal(ctx context.Context, v interface{}) error {
	if err := o.Emit(ctx, v); err != nil {
		return err
	}
	return o.Close(ctx)
}

func (o *output) Close(ctx context.Context) error {
	o.closed = true
	return nil
}

func invoke(t *testing.T, fn function.Function, in []function.Input, out ...*output) error {
	t.Helper()
	outs := make([]function.Output, len(out))
	for i, o := range out {
		outs[i] = o
	}
	return fn.Invoke(context.Background(), in, outs)
}

func TestRegisterAll(t *testing.T) {
	r := function.NewRegistry()
	require.NoError(t, Register(r))
	assert.Equal(t, []string{"concat", "count", "echo", "greet", "identity", "partition", "sum", "uppercase"}, r.Names())
	assert.Error(t, Register(r), "registering twice must fail")
}

func TestIdentityPassesRawPayloads(t *testing.T) {
	out := &output{ct: payload.JSON}
	err := invoke(t, Identity(), []function.Input{newInput(0, payload.JSON, `{"a":1}`, `[1, 2]`)}, out)
	require.NoError(t, err)
	assert.Equal(t, []string{`{"a":1}`, `[1, 2]`}, out.values)
	assert.True(t, out.closed)
}

func TestIdentityReencodes(t *testing.T) {
	out := &output{ct: payload.TextPlain}
	err := invoke(t, Identity(), []function.Input{newInput(0, payload.JSON, `"hi"`)}, out)
	require.NoError(t, err)
	assert.Equal(t, []string{"hi"}, out.values)
}

func TestUppercase(t *testing.T) {
	out := &output{ct: payload.TextPlain}
	err := invoke(t, Uppercase(), []function.Input{newInput(0, payload.TextPlain, "a", "b")}, out)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, out.values)
	assert.True(t, out.closed)
}

func TestConcat(t *testing.T) {
	out := &output{ct: payload.TextPlain}
	in := []function.Input{newInput(0, payload.TextPlain, "foo"), newInput(1, payload.TextPlain, "bar")}
	require.NoError(t, invoke(t, Concat(), in, out))
	assert.Equal(t, []string{"foobar"}, out.values)
}

func TestGreet(t *testing.T) {
	out := &output{ct: payload.TextPlain}
	in := []function.Input{newInput(0, payload.JSON, `{"name":"Grace"}`)}
	require.NoError(t, invoke(t, Greet(), in, out))
	assert.Equal(t, []string{"Hello, Grace"}, out.values)
}

func TestSum(t *testing.T) {
	out := &output{ct: payload.JSON}
	in := []function.Input{newInput(0, payload.JSON, "1", "2.5", "3")}
	require.NoError(t, invoke(t, Sum(), in, out))
	assert.Equal(t, []string{"6.5"}, out.values)
	assert.True(t, out.closed)
}

func TestSumAcceptsText(t *testing.T) {
	out := &output{ct: payload.TextPlain}
	in := []function.Input{newInput(0, payload.TextPlain, " 4 ", "5")}
	require.NoError(t, invoke(t, Sum(), in, out))
	assert.Equal(t, []string{"9"}, out.values)
}

func TestSumRejectsNonNumbers(t *testing.T) {
	out := &output{ct: payload.JSON}
	in := []function.Input{newInput(0, payload.TextPlain, "four")}
	assert.Error(t, invoke(t, Sum(), in, out))
}

func TestCount(t *testing.T) {
	out := &output{ct: payload.JSON}
	in := []function.Input{newInput(0, payload.OctetStream, "x", "y", "z")}
	require.NoError(t, invoke(t, Count(), in, out))
	assert.Equal(t, []string{"3"}, out.values)
}

func TestPartition(t *testing.T) {
	even := &output{index: 0, ct: payload.JSON}
	odd := &output{index: 1, ct: payload.JSON}
	in := []function.Input{newInput(0, payload.JSON, "1", "2", "3", "4")}
	require.NoError(t, invoke(t, Partition(), in, even, odd))
	assert.Equal(t, []string{"2", "4"}, even.values)
	assert.Equal(t, []string{"1", "3"}, odd.values)
}

func TestPartitionRejectsFractions(t *testing.T) {
	even := &output{index: 0, ct: payload.JSON}
	odd := &output{index: 1, ct: payload.JSON}
	in := []function.Input{newInput(0, payload.JSON, "1.5")}
	assert.Error(t, invoke(t, Partition(), in, even, odd))
}
