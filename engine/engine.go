// Package engine runs a bound function against the streams of one session.
package engine

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"

	"github.com/sirupsen/logrus"

	invoker "github.com/machinefabric/invoker-go"
	"github.com/machinefabric/invoker-go/function"
	"github.com/machinefabric/invoker-go/mux"
	"github.com/machinefabric/invoker-go/payload"
)

// Engine invokes one function with inputs fed by a demultiplexer and
// outputs drained by a multiplexer
type Engine struct {
	fn      function.Function
	inputs  []*input
	outputs []*output
	log     *logrus.Entry
}

// New binds fn to the session streams. Schemas declared by the signature
// are compiled here so a bad schema fails before the function runs.
func New(fn function.Function, demux *mux.Demultiplexer, muxer *mux.Multiplexer, payloads *payload.Registry, log *logrus.Entry) (*Engine, error) {
	sig := fn.Signature()
	n, m := sig.Arity()
	if demux.Count() != n {
		return nil, invoker.ArityMismatch("input streams", demux.Count(), n)
	}
	if muxer.Count() != m {
		return nil, invoker.ArityMismatch("output streams", muxer.Count(), m)
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	e := &Engine{fn: fn, log: log}
	for i, p := range sig.Inputs {
		schema, err := compile(p, "input", i)
		if err != nil {
			return nil, err
		}
		e.inputs = append(e.inputs, &input{
			index:    i,
			demux:    demux,
			queue:    demux.Source(i),
			payloads: payloads,
			schema:   schema,
		})
	}
	for i, p := range sig.Outputs {
		schema, err := compile(p, "output", i)
		if err != nil {
			return nil, err
		}
		o := &output{sink: muxer.Sink(i), schema: schema}
		if c, ok := payloads.Lookup(o.sink.ContentType()); ok {
			o.codec = c
		}
		e.outputs = append(e.outputs, o)
	}
	return e, nil
}

func compile(p function.Param, dir string, i int) (*payload.Schema, error) {
	if p.Schema == nil {
		return nil, nil
	}
	name := p.Name
	if name == "" {
		name = fmt.Sprintf("%s %d", dir, i)
	}
	schema, err := payload.CompileSchema(name, p.Schema)
	if err != nil {
		return nil, invoker.FunctionFault(err)
	}
	return schema, nil
}

// Run invokes the function and returns once it has. On a nil return every
// output the function left open is ended normally. Errors that are not
// already session errors are reported as function faults.
func (e *Engine) Run(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			e.log.WithField("stack", string(debug.Stack())).Errorf("function panicked: %v", r)
			err = invoker.FunctionFault(fmt.Errorf("panic: %v", r))
		}
	}()

	ins := make([]function.Input, len(e.inputs))
	for i, in := range e.inputs {
		ins[i] = in
	}
	outs := make([]function.Output, len(e.outputs))
	for i, out := range e.outputs {
		outs[i] = out
	}

	if err := e.fn.Invoke(ctx, ins, outs); err != nil {
		return classify(err)
	}
	for _, out := range e.outputs {
		if out.sink.Closed() {
			continue
		}
		if err := out.sink.End(ctx); err != nil {
			return classify(err)
		}
	}
	return nil
}

// classify keeps session errors raised by the streams themselves (a caller
// abort, a protocol violation, a cancellation) and turns everything else
// into a function fault.
func classify(err error) error {
	var e *invoker.Error
	if errors.As(err, &e) {
		return e
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return invoker.Canceled(err)
	}
	return invoker.FunctionFault(err)
}
