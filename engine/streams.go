package engine

import (
	"context"
	"fmt"

	"github.com/machinefabric/invoker-go/function"
	"github.com/machinefabric/invoker-go/mux"
	"github.com/machinefabric/invoker-go/payload"
)

type input struct {
	index    int
	demux    *mux.Demultiplexer
	queue    *mux.Queue
	payloads *payload.Registry
	schema   *payload.Schema

	// cached after the first item, the content type never changes
	contentType string
	codec       payload.Codec
}

func (in *input) Index() int { return in.index }

func (in *input) ContentType() string {
	if in.contentType != "" {
		return in.contentType
	}
	return in.demux.ContentType(in.index)
}

func (in *input) Next(ctx context.Context) (function.Item, error) {
	d, err := in.queue.Next(ctx)
	if err != nil {
		return function.Item{}, err
	}
	if in.contentType == "" {
		in.contentType = in.demux.ContentType(in.index)
		in.codec, _ = in.payloads.Lookup(in.contentType)
	}
	item := function.Item{
		Payload:     d.Payload,
		ContentType: in.contentType,
		Headers:     d.Headers,
		Codec:       in.codec,
	}
	if in.schema != nil {
		v, err := item.Value()
		if err != nil {
			return function.Item{}, fmt.Errorf("input %d: %w", in.index, err)
		}
		if err := in.schema.Validate(v); err != nil {
			return function.Item{}, err
		}
	}
	return item, nil
}

type output struct {
	sink   *mux.Sink
	codec  payload.Codec
	schema *payload.Schema
}

func (o *output) Index() int          { return o.sink.Index() }
func (o *output) ContentType() string { return o.sink.ContentType() }

func (o *output) encode(v interface{}) ([]byte, map[string]string, error) {
	v, headers := function.Unwrap(v)
	if o.schema != nil {
		if err := o.schema.Validate(v); err != nil {
			return nil, nil, err
		}
	}
	if o.codec == nil {
		return nil, nil, fmt.Errorf("output %d: no payload codec for content type %q", o.Index(), o.ContentType())
	}
	data, err := o.codec.Encode(v)
	if err != nil {
		return nil, nil, fmt.Errorf("output %d: %w", o.Index(), err)
	}
	return data, headers, nil
}

func (o *output) Emit(ctx context.Context, v interface{}) error {
	data, headers, err := o.encode(v)
	if err != nil {
		return err
	}
	return o.sink.Send(ctx, data, headers)
}

func (o *output) EmitRaw(ctx context.Context, data []byte) error {
	return o.sink.Send(ctx, data, nil)
}

func (o *output) EmitFinal(ctx context.Context, v interface{}) error {
	data, headers, err := o.encode(v)
	if err != nil {
		return err
	}
	return o.sink.Final(ctx, data, headers)
}

func (o *output) Close(ctx context.Context) error {
	return o.sink.End(ctx)
}
