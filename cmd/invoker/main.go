package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli"
)

var version = "0.1.0"

func main() {
	app := cli.NewApp()
	app.Name = "invoker"
	app.Usage = "expose functions over a single multiplexed bidirectional stream"
	app.Version = version
	app.Commands = []cli.Command{
		cli.Command{
			Name:  "serve",
			Usage: "Serve registered functions over gRPC, websockets and TCP",
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:   "config, c",
					Usage:  "YAML configuration file",
					EnvVar: "INVOKER_CONFIG",
				},
			},
			Action: serveCommand,
		},
		cli.Command{
			Name:  "stdio",
			Usage: "Serve a single session on stdin and stdout",
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:   "config, c",
					Usage:  "YAML configuration file",
					EnvVar: "INVOKER_CONFIG",
				},
				cli.StringFlag{
					Name:  "codec",
					Value: "cbor",
					Usage: "frame codec: proto or cbor",
				},
			},
			Action: stdioCommand,
		},
		cli.Command{
			Name:      "call",
			Usage:     "Invoke a function on a running invoker",
			ArgsUsage: "[value...]",
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:  "addr, a",
					Value: "localhost:8081",
					Usage: "invoker address (host:port, or a ws:// URL for websockets)",
				},
				cli.StringFlag{
					Name:  "transport, t",
					Value: "grpc",
					Usage: "grpc, ws or tcp",
				},
				cli.StringFlag{
					Name:  "codec",
					Value: "proto",
					Usage: "frame codec: proto or cbor",
				},
				cli.StringFlag{
					Name:  "function, f",
					Usage: "function to invoke",
				},
				cli.StringSliceFlag{
					Name:  "accept",
					Usage: "comma separated content types accepted for one output, repeat once per output",
				},
				cli.StringSliceFlag{
					Name:  "input-type, i",
					Usage: "content type of one input, repeat once per value or give once for all",
				},
				cli.BoolFlag{
					Name:  "declare",
					Usage: "announce input content types in the handshake",
				},
				cli.DurationFlag{
					Name:  "timeout",
					Usage: "give up after this long (0 waits forever)",
				},
			},
			Action: callCommand,
		},
		cli.Command{
			Name:   "functions",
			Usage:  "List the built-in functions",
			Action: functionsCommand,
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
