// Package function defines what the invoker calls: functions with a fixed
// number of streaming inputs and outputs.
package function

import (
	"context"
	"fmt"

	"github.com/machinefabric/invoker-go/payload"
)

// Param describes one input or output stream
type Param struct {
	Name string
	// ContentTypes lists what the stream can carry, most preferred first.
	// Empty means every content type the payload registry knows.
	ContentTypes []string
	// Schema is an optional JSON schema values must satisfy
	Schema interface{}
}

// Signature fixes the arity of a function
type Signature struct {
	Inputs  []Param
	Outputs []Param
}

// Arity returns the number of inputs and outputs
func (s Signature) Arity() (int, int) {
	return len(s.Inputs), len(s.Outputs)
}

// Function is invoked once per session. Invoke returns once it is done
// with every output; outputs left open are closed normally on a nil
// return. A non-nil error aborts the session.
type Function interface {
	Signature() Signature
	Invoke(ctx context.Context, in []Input, out []Output) error
}

// Input is the consumer side of one logical input stream
type Input interface {
	Index() int
	// ContentType is the negotiated content type, or "" until the first
	// value of a stream negotiated on arrival.
	ContentType() string
	// Next returns io.EOF after the last value.
	Next(ctx context.Context) (Item, error)
}

// Output is the producer side of one logical output stream
type Output interface {
	Index() int
	ContentType() string
	// Emit encodes v with the negotiated content type and sends it.
	// Wrap v with WithHeaders to attach headers.
	Emit(ctx context.Context, v interface{}) error
	// EmitRaw sends already encoded bytes.
	EmitRaw(ctx context.Context, data []byte) error
	// EmitFinal sends v and closes the stream in the same frame.
	EmitFinal(ctx context.Context, v interface{}) error
	Close(ctx context.Context) error
}

// Item is one value read from an input
type Item struct {
	Payload     []byte
	ContentType string
	Headers     map[string]string
	Codec       payload.Codec
}

// Decode decodes the payload into v
func (it Item) Decode(v interface{}) error {
	if it.Codec == nil {
		return fmt.Errorf("no payload codec for content type %q", it.ContentType)
	}
	return it.Codec.Decode(it.Payload, v)
}

// Value decodes the payload into an untyped value
func (it Item) Value() (interface{}, error) {
	var v interface{}
	if err := it.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

// Headed attaches frame headers to an emitted value
type Headed struct {
	Value   interface{}
	Headers map[string]string
}

// WithHeaders wraps v so the emitted frame carries headers
func WithHeaders(v interface{}, headers map[string]string) Headed {
	return Headed{Value: v, Headers: headers}
}

// Unwrap splits a possibly header-wrapped value
func Unwrap(v interface{}) (interface{}, map[string]string) {
	if h, ok := v.(Headed); ok {
		return h.Value, h.Headers
	}
	return v, nil
}

// InvokeFunc adapts a plain function to Function
type InvokeFunc func(ctx context.Context, in []Input, out []Output) error

type streaming struct {
	sig Signature
	fn  InvokeFunc
}

func (s *streaming) Signature() Signature { return s.sig }

func (s *streaming) Invoke(ctx context.Context, in []Input, out []Output) error {
	return s.fn(ctx, in, out)
}

// Streaming builds a function with full access to its streams
func Streaming(sig Signature, fn InvokeFunc) Function {
	return &streaming{sig: sig, fn: fn}
}
