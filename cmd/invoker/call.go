package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/urfave/cli"

	"github.com/machinefabric/invoker-go/client"
	"github.com/machinefabric/invoker-go/payload"
	"github.com/machinefabric/invoker-go/transport/grpcx"
	"github.com/machinefabric/invoker-go/transport/tcp"
	"github.com/machinefabric/invoker-go/transport/ws"
	"github.com/machinefabric/invoker-go/wire"
)

func callCommand(c *cli.Context) error {
	codec, err := wire.CodecByName(c.String("codec"))
	if err != nil {
		return err
	}
	req, err := buildRequest(c.String("function"), c.StringSlice("accept"), c.StringSlice("input-type"), c.Args(), c.Bool("declare"))
	if err != nil {
		return err
	}

	ctx := context.Background()
	if d := c.Duration("timeout"); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	conn, closeConn, err := dial(ctx, c.String("transport"), c.String("addr"), codec)
	if err != nil {
		return err
	}
	defer closeConn()

	res, err := client.Call(ctx, conn, codec, req)
	if res != nil {
		printResult(c.App.Writer, res)
	}
	return err
}

// buildRequest turns command line values into one single-valued input per
// value
func buildRequest(fn string, accept, inputTypes, values []string, declare bool) (client.Request, error) {
	req := client.Request{Function: fn, DeclareInputTypes: declare}
	if len(accept) == 0 {
		accept = []string{payload.TextPlain}
	}
	for _, a := range accept {
		var list []string
		for _, ct := range strings.Split(a, ",") {
			if ct = strings.TrimSpace(ct); ct != "" {
				list = append(list, ct)
			}
		}
		if len(list) == 0 {
			return req, fmt.Errorf("empty --accept list")
		}
		req.Accept = append(req.Accept, list)
	}

	switch {
	case len(inputTypes) == 0:
		inputTypes = []string{payload.TextPlain}
	case len(inputTypes) != 1 && len(inputTypes) != len(values):
		return req, fmt.Errorf("got %d input types for %d values", len(inputTypes), len(values))
	}
	for i, v := range values {
		ct := inputTypes[0]
		if len(inputTypes) > 1 {
			ct = inputTypes[i]
		}
		req.Inputs = append(req.Inputs, client.Input{ContentType: ct, Values: [][]byte{[]byte(v)}})
	}
	return req, nil
}

func dial(ctx context.Context, transport, addr string, codec wire.Codec) (client.Conn, func(), error) {
	switch transport {
	case "grpc":
		cc, err := grpcx.Dial(addr)
		if err != nil {
			return nil, nil, err
		}
		stream, err := grpcx.Open(ctx, cc, codec)
		if err != nil {
			cc.Close()
			return nil, nil, err
		}
		return stream, func() { cc.Close() }, nil
	case "ws":
		if !strings.Contains(addr, "://") {
			addr = "ws://" + addr + "/invoke"
		}
		conn, err := ws.Dial(ctx, addr, codec)
		if err != nil {
			return nil, nil, err
		}
		return conn, func() { conn.Close() }, nil
	case "tcp":
		conn, err := tcp.Dial(ctx, addr, wire.DefaultLimits())
		if err != nil {
			return nil, nil, err
		}
		return conn, func() { conn.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown transport %q", transport)
	}
}

func printResult(w io.Writer, res *client.Result) {
	for _, out := range res.Outputs {
		for _, v := range out.Values {
			fmt.Fprintf(w, "[%d] %s: %s\n", out.Index, out.ContentType, v)
		}
		if out.Error != nil {
			fmt.Fprintf(w, "[%d] error %s: %s\n", out.Index, out.Error.Code, out.Error.Message)
		}
	}
}
