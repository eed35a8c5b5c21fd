// Package server runs every configured transport of one invoker process.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/machinefabric/invoker-go/config"
	"github.com/machinefabric/invoker-go/function"
	"github.com/machinefabric/invoker-go/metrics"
	"github.com/machinefabric/invoker-go/session"
	"github.com/machinefabric/invoker-go/transport/grpcx"
	"github.com/machinefabric/invoker-go/transport/tcp"
	"github.com/machinefabric/invoker-go/wire"
)

// Options enumerates what the manager serves
type Options struct {
	Config    *config.Config
	Functions *function.Registry
	Handler   *session.Handler
	Metrics   *metrics.Metrics
	Logger    *logrus.Entry
}

// Manager manages the lifecycle of the gRPC, HTTP and TCP servers
type Manager struct {
	opts Options
	log  *logrus.Entry

	grpc   *grpc.Server
	health *health.Server
	http   *http.Server
	tcp    *tcp.Server

	grpcLis net.Listener
	httpLis net.Listener
	tcpLis  net.Listener

	group     *errgroup.Group
	cancel    context.CancelFunc
	startOnce sync.Once
	stopOnce  sync.Once
}

func NewManager(opts Options) *Manager {
	if opts.Logger == nil {
		opts.Logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Manager{opts: opts, log: opts.Logger}
}

// Start opens every configured listener and serves in the background.
// Listener errors are returned before anything is served.
func (m *Manager) Start(ctx context.Context) error {
	if m.opts.Config == nil {
		return errors.New("configuration is required")
	}
	if m.opts.Handler == nil {
		return errors.New("session handler is required")
	}

	err := errors.New("manager already started")
	m.startOnce.Do(func() {
		err = m.start(ctx)
	})
	return err
}

func (m *Manager) start(ctx context.Context) error {
	cfg := m.opts.Config
	codec, err := wire.CodecByName(cfg.TCP.Codec)
	if err != nil {
		return err
	}
	if err := m.listen(cfg); err != nil {
		m.closeListeners()
		return err
	}

	ctx, m.cancel = context.WithCancel(ctx)
	m.group, ctx = errgroup.WithContext(ctx)

	m.grpc = grpc.NewServer(grpcx.ServerOptions(cfg.Wire)...)
	grpcx.Register(m.grpc, grpcx.NewServer(m.opts.Handler))
	m.health = health.NewServer()
	m.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	m.health.SetServingStatus(grpcx.ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(m.grpc, m.health)
	m.group.Go(func() error {
		m.log.Infof("gRPC server listening on %s", m.grpcLis.Addr())
		return m.grpc.Serve(m.grpcLis)
	})

	if m.httpLis != nil {
		m.http = &http.Server{
			Handler:           newRouter(m.opts, m.health),
			ReadHeaderTimeout: 10 * time.Second,
		}
		m.group.Go(func() error {
			m.log.Infof("HTTP server listening on %s", m.httpLis.Addr())
			if err := m.http.Serve(m.httpLis); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}

	if m.tcpLis != nil {
		m.tcp = tcp.NewServer(m.opts.Handler, codec, cfg.Wire, m.log)
		m.group.Go(func() error {
			m.log.Infof("TCP server listening on %s (%s frames)", m.tcpLis.Addr(), codec.Name())
			if err := m.tcp.Serve(ctx, m.tcpLis); !errors.Is(err, tcp.ErrServerClosed) {
				return err
			}
			return nil
		})
	}
	return nil
}

func (m *Manager) listen(cfg *config.Config) error {
	var err error
	if m.grpcLis, err = net.Listen("tcp", cfg.GRPC.Addr); err != nil {
		return err
	}
	if cfg.HTTP.Addr != "" {
		if m.httpLis, err = net.Listen("tcp", cfg.HTTP.Addr); err != nil {
			return err
		}
	}
	if cfg.TCP.Addr != "" {
		if m.tcpLis, err = net.Listen("tcp", cfg.TCP.Addr); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) closeListeners() {
	for _, lis := range []net.Listener{m.grpcLis, m.httpLis, m.tcpLis} {
		if lis != nil {
			_ = lis.Close()
		}
	}
}

// Wait blocks until every server stopped and returns the first serve error
func (m *Manager) Wait() error {
	if m.group == nil {
		return nil
	}
	return m.group.Wait()
}

// Stop drains running sessions until ctx is done, then stops hard
func (m *Manager) Stop(ctx context.Context) {
	m.stopOnce.Do(func() {
		if m.group == nil {
			return
		}
		if m.health != nil {
			m.health.Shutdown()
		}

		var wg sync.WaitGroup
		if m.http != nil {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := m.http.Shutdown(ctx); err != nil {
					m.log.WithError(err).Warn("HTTP server did not drain in time")
					_ = m.http.Close()
				}
			}()
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			stopped := make(chan struct{})
			go func() {
				m.grpc.GracefulStop()
				close(stopped)
			}()
			select {
			case <-stopped:
			case <-ctx.Done():
				m.log.Warn("gRPC server did not drain in time")
				m.grpc.Stop()
			}
		}()
		if m.tcp != nil {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := m.tcp.Shutdown(ctx); err != nil {
					m.log.WithError(err).Warn("TCP sessions did not drain in time")
				}
			}()
		}
		wg.Wait()
		m.cancel()
		m.log.Info("servers stopped")
	})
}

// GRPCAddr returns the bound gRPC address
func (m *Manager) GRPCAddr() net.Addr { return addrOf(m.grpcLis) }

// HTTPAddr returns the bound HTTP address, nil when disabled
func (m *Manager) HTTPAddr() net.Addr { return addrOf(m.httpLis) }

// TCPAddr returns the bound TCP address, nil when disabled
func (m *Manager) TCPAddr() net.Addr { return addrOf(m.tcpLis) }

func addrOf(lis net.Listener) net.Addr {
	if lis == nil {
		return nil
	}
	return lis.Addr()
}
