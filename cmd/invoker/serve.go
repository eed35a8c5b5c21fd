package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"github.com/machinefabric/invoker-go/config"
	"github.com/machinefabric/invoker-go/function"
	"github.com/machinefabric/invoker-go/function/builtin"
	"github.com/machinefabric/invoker-go/logging"
	"github.com/machinefabric/invoker-go/metrics"
	"github.com/machinefabric/invoker-go/payload"
	"github.com/machinefabric/invoker-go/server"
	"github.com/machinefabric/invoker-go/session"
	"github.com/machinefabric/invoker-go/transport/stdio"
	"github.com/machinefabric/invoker-go/wire"
)

func serveCommand(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	if err := logging.Init(cfg.Log); err != nil {
		return err
	}

	functions := function.NewRegistry()
	if err := builtin.Register(functions); err != nil {
		return err
	}
	binder, err := newBinder(cfg, functions)
	if err != nil {
		return err
	}

	log := logrus.WithField("component", "invoker")
	m := metrics.New()
	handler := newHandler(cfg, binder, log, m)

	mgr := server.NewManager(server.Options{
		Config:    cfg,
		Functions: functions,
		Handler:   handler,
		Metrics:   m,
		Logger:    log,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := mgr.Start(ctx); err != nil {
		return err
	}

	waitErr := make(chan error, 1)
	go func() { waitErr <- mgr.Wait() }()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-waitErr:
		if err != nil {
			log.WithError(err).Error("server failed")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	mgr.Stop(shutdownCtx)
	return mgr.Wait()
}

func stdioCommand(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	if err := logging.Init(cfg.Log); err != nil {
		return err
	}
	codec, err := wire.CodecByName(c.String("codec"))
	if err != nil {
		return err
	}
	functions := function.NewRegistry()
	if err := builtin.Register(functions); err != nil {
		return err
	}
	binder, err := newBinder(cfg, functions)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	handler := newHandler(cfg, binder, logrus.WithField("component", "invoker"), nil)
	return stdio.ServeProcess(ctx, handler, codec, cfg.Wire)
}

func newHandler(cfg *config.Config, binder session.Binder, log *logrus.Entry, m *metrics.Metrics) *session.Handler {
	return session.NewHandler(binder, session.Options{
		Payloads:     payload.NewDefaultRegistry(),
		Limits:       cfg.Wire,
		OutputBuffer: cfg.Session.OutputBuffer,
		Logger:       log,
		Metrics:      m,
	})
}

// newBinder fixes sessions to the configured function, or lets each
// handshake pick one when none is configured
func newBinder(cfg *config.Config, functions *function.Registry) (session.Binder, error) {
	if cfg.Function == "" {
		return session.FromRegistry(functions), nil
	}
	fn, err := functions.Resolve(cfg.Function)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", config.EnvFunctionDefinition, err)
	}
	return session.Fixed(cfg.Function, fn), nil
}

func functionsCommand(c *cli.Context) error {
	functions := function.NewRegistry()
	if err := builtin.Register(functions); err != nil {
		return err
	}
	for _, name := range functions.Names() {
		fn, _ := functions.Resolve(name)
		in, out := fn.Signature().Arity()
		fmt.Fprintf(c.App.Writer, "%-12s %d -> %d\n", name, in, out)
	}
	return nil
}
