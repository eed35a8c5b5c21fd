package function

import (
	"context"
	"errors"
	"fmt"
	"io"

	"golang.org/x/sync/errgroup"
)

// Args holds one value per input of a one-shot function
type Args []Item

// Decode decodes argument i into v
func (a Args) Decode(i int, v interface{}) error {
	if i < 0 || i >= len(a) {
		return fmt.Errorf("argument %d out of range", i)
	}
	return a[i].Decode(v)
}

// String returns argument i decoded as a string
func (a Args) String(i int) (string, error) {
	var s string
	err := a.Decode(i, &s)
	return s, err
}

// OneShotFunc computes one result per output from one value per input
type OneShotFunc func(ctx context.Context, args Args) ([]interface{}, error)

type oneShot struct {
	sig Signature
	fn  OneShotFunc
}

// OneShot adapts a request/response function. Every input must carry
// exactly one value; each result is emitted as a single final frame.
func OneShot(sig Signature, fn OneShotFunc) Function {
	return &oneShot{sig: sig, fn: fn}
}

func (o *oneShot) Signature() Signature { return o.sig }

func (o *oneShot) Invoke(ctx context.Context, in []Input, out []Output) error {
	args := make(Args, len(in))
	g, gctx := errgroup.WithContext(ctx)
	for i, input := range in {
		i, input := i, input
		g.Go(func() error {
			item, err := single(gctx, input)
			if err != nil {
				return err
			}
			args[i] = item
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	results, err := o.fn(ctx, args)
	if err != nil {
		return err
	}
	if len(results) != len(out) {
		return fmt.Errorf("function returned %d results for %d outputs", len(results), len(out))
	}
	for i, r := range results {
		if err := out[i].EmitFinal(ctx, r); err != nil {
			return err
		}
	}
	return nil
}

func single(ctx context.Context, in Input) (Item, error) {
	item, err := in.Next(ctx)
	if errors.Is(err, io.EOF) {
		return Item{}, fmt.Errorf("input %d carried no value", in.Index())
	}
	if err != nil {
		return Item{}, err
	}
	if _, err := in.Next(ctx); !errors.Is(err, io.EOF) {
		if err != nil {
			return Item{}, err
		}
		return Item{}, fmt.Errorf("input %d carried more than one value", in.Index())
	}
	return item, nil
}

// MapFunc transforms one input value into one output value
type MapFunc func(ctx context.Context, item Item) (interface{}, error)

type mapper struct {
	sig Signature
	fn  MapFunc
}

// Map adapts an order preserving 1:1 transform of a single input stream to
// a single output stream
func Map(sig Signature, fn MapFunc) Function {
	return &mapper{sig: sig, fn: fn}
}

func (m *mapper) Signature() Signature { return m.sig }

func (m *mapper) Invoke(ctx context.Context, in []Input, out []Output) error {
	if len(in) != 1 || len(out) != 1 {
		return fmt.Errorf("map needs 1 input and 1 output, got %d and %d", len(in), len(out))
	}
	for {
		item, err := in[0].Next(ctx)
		if errors.Is(err, io.EOF) {
			return out[0].Close(ctx)
		}
		if err != nil {
			return err
		}
		v, err := m.fn(ctx, item)
		if err != nil {
			return err
		}
		if err := out[0].Emit(ctx, v); err != nil {
			return err
		}
	}
}
