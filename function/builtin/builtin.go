// Package builtin holds the functions shipped with the invoker binary.
package builtin

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/machinefabric/invoker-go/function"
	"github.com/machinefabric/invoker-go/negotiate"
	"github.com/machinefabric/invoker-go/payload"
)

var (
	text    = []string{payload.TextPlain}
	numbers = []string{payload.JSON, payload.TextPlain, payload.CBOR}
)

// Register adds every builtin to r
func Register(r *function.Registry) error {
	for name, fn := range map[string]function.Function{
		"identity":  Identity(),
		"echo":      Echo(),
		"uppercase": Uppercase(),
		"concat":    Concat(),
		"greet":     Greet(),
		"sum":       Sum(),
		"count":     Count(),
		"partition": Partition(),
	} {
		if err := r.Register(name, fn); err != nil {
			return err
		}
	}
	return nil
}

// Identity copies its input stream to its output stream. Payloads pass
// through untouched when both streams use the same content type and are
// re-encoded otherwise.
func Identity() function.Function {
	sig := function.Signature{
		Inputs:  []function.Param{{Name: "in"}},
		Outputs: []function.Param{{Name: "out"}},
	}
	return function.Streaming(sig, func(ctx context.Context, in []function.Input, out []function.Output) error {
		for {
			item, err := in[0].Next(ctx)
			if errors.Is(err, io.EOF) {
				return out[0].Close(ctx)
			}
			if err != nil {
				return err
			}
			if negotiate.Compatible(item.ContentType, out[0].ContentType()) {
				err = out[0].EmitRaw(ctx, item.Payload)
			} else {
				var v interface{}
				if v, err = item.Value(); err != nil {
					return err
				}
				err = out[0].Emit(ctx, function.WithHeaders(v, item.Headers))
			}
			if err != nil {
				return err
			}
		}
	})
}

// Echo answers a single text value with itself
func Echo() function.Function {
	sig := function.Signature{
		Inputs:  []function.Param{{Name: "message", ContentTypes: text}},
		Outputs: []function.Param{{Name: "message", ContentTypes: text}},
	}
	return function.OneShot(sig, func(ctx context.Context, args function.Args) ([]interface{}, error) {
		s, err := args.String(0)
		if err != nil {
			return nil, err
		}
		return []interface{}{s}, nil
	})
}

// Uppercase upper-cases every value of a text stream
func Uppercase() function.Function {
	sig := function.Signature{
		Inputs:  []function.Param{{Name: "text", ContentTypes: text}},
		Outputs: []function.Param{{Name: "text", ContentTypes: text}},
	}
	return function.Map(sig, func(ctx context.Context, item function.Item) (interface{}, error) {
		var s string
		if err := item.Decode(&s); err != nil {
			return nil, err
		}
		return function.WithHeaders(strings.ToUpper(s), item.Headers), nil
	})
}

// Concat joins one text value from each of two inputs
func Concat() function.Function {
	sig := function.Signature{
		Inputs:  []function.Param{{Name: "left", ContentTypes: text}, {Name: "right", ContentTypes: text}},
		Outputs: []function.Param{{Name: "joined", ContentTypes: text}},
	}
	return function.OneShot(sig, func(ctx context.Context, args function.Args) ([]interface{}, error) {
		left, err := args.String(0)
		if err != nil {
			return nil, err
		}
		right, err := args.String(1)
		if err != nil {
			return nil, err
		}
		return []interface{}{left + right}, nil
	})
}

// Greet reads a JSON person and answers with a greeting
func Greet() function.Function {
	sig := function.Signature{
		Inputs: []function.Param{{
			Name:         "person",
			ContentTypes: []string{payload.JSON, payload.YAML, payload.CBOR},
			Schema: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{"name": map[string]interface{}{"type": "string", "minLength": 1}},
				"required":   []string{"name"},
			},
		}},
		Outputs: []function.Param{{Name: "greeting", ContentTypes: []string{payload.TextPlain, payload.JSON}}},
	}
	return function.OneShot(sig, func(ctx context.Context, args function.Args) ([]interface{}, error) {
		var person struct {
			Name string `json:"name" yaml:"name" cbor:"name"`
		}
		if err := args.Decode(0, &person); err != nil {
			return nil, err
		}
		return []interface{}{"Hello, " + person.Name}, nil
	})
}

// Sum adds up every number of its input stream
func Sum() function.Function {
	sig := function.Signature{
		Inputs:  []function.Param{{Name: "numbers", ContentTypes: numbers}},
		Outputs: []function.Param{{Name: "total", ContentTypes: numbers}},
	}
	return function.Streaming(sig, func(ctx context.Context, in []function.Input, out []function.Output) error {
		total := 0.0
		for {
			item, err := in[0].Next(ctx)
			if errors.Is(err, io.EOF) {
				return out[0].EmitFinal(ctx, total)
			}
			if err != nil {
				return err
			}
			n, err := number(item)
			if err != nil {
				return err
			}
			total += n
		}
	})
}

// Count emits how many values its input stream carried
func Count() function.Function {
	sig := function.Signature{
		Inputs:  []function.Param{{Name: "values"}},
		Outputs: []function.Param{{Name: "count", ContentTypes: numbers}},
	}
	return function.Streaming(sig, func(ctx context.Context, in []function.Input, out []function.Output) error {
		n := 0
		for {
			_, err := in[0].Next(ctx)
			if errors.Is(err, io.EOF) {
				return out[0].EmitFinal(ctx, n)
			}
			if err != nil {
				return err
			}
			n++
		}
	})
}

// Partition splits a number stream into even (output 0) and odd (output 1)
// values
func Partition() function.Function {
	sig := function.Signature{
		Inputs:  []function.Param{{Name: "numbers", ContentTypes: numbers}},
		Outputs: []function.Param{{Name: "even", ContentTypes: numbers}, {Name: "odd", ContentTypes: numbers}},
	}
	return function.Streaming(sig, func(ctx context.Context, in []function.Input, out []function.Output) error {
		for {
			item, err := in[0].Next(ctx)
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return err
			}
			n, err := number(item)
			if err != nil {
				return err
			}
			i := int64(n)
			if float64(i) != n {
				return fmt.Errorf("partition needs integers, got %v", n)
			}
			target := out[0]
			if i%2 != 0 {
				target = out[1]
			}
			if err := target.Emit(ctx, i); err != nil {
				return err
			}
		}
	})
}

func number(item function.Item) (float64, error) {
	var n float64
	if err := item.Decode(&n); err == nil {
		return n, nil
	}
	var s string
	if err := item.Decode(&s); err != nil {
		return 0, fmt.Errorf("not a number: %q", item.Payload)
	}
	n, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("not a number: %w", err)
	}
	return n, nil
}
