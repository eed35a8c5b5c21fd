package config

import (
	"net"
	"os"
	"strconv"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/machinefabric/invoker-go/wire"
)

// Load reads file, then applies defaults and the environment. An empty
// file name skips the file.
func Load(file string) (*Config, error) {
	cfg := &Config{}
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, errors.Wrapf(err, "read config %s", file)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrapf(err, "parse config %s", file)
		}
	}

	ApplyDefaults(cfg)
	if err := ApplyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills unset fields
func ApplyDefaults(cfg *Config) {
	if cfg.GRPC.Addr == "" {
		cfg.GRPC.Addr = ":" + DefaultGRPCPort
	}
	if cfg.TCP.Codec == "" {
		cfg.TCP.Codec = wire.CodecProto
	}
	if cfg.Session.OutputBuffer == 0 {
		cfg.Session.OutputBuffer = DefaultOutputBuffer
	}
	cfg.Wire = cfg.Wire.Effective()
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}
}

// ApplyEnv overrides fields from the environment. GRPC_PORT replaces the
// port of the gRPC address and keeps its host.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	if port, ok := lookup(EnvGRPCPort); ok && port != "" {
		n, err := strconv.Atoi(port)
		if err != nil || n < 0 || n > 65535 {
			return errors.Errorf("%s must be a port number, got %q", EnvGRPCPort, port)
		}
		host, _, err := net.SplitHostPort(cfg.GRPC.Addr)
		if err != nil {
			host = ""
		}
		cfg.GRPC.Addr = net.JoinHostPort(host, port)
	}
	if fn, ok := lookup(EnvFunctionDefinition); ok && fn != "" {
		cfg.Function = fn
	}
	if level, ok := lookup(EnvLogLevel); ok && level != "" {
		cfg.Log.Level = level
	}
	return nil
}

// Validate rejects configurations the server cannot start with
func (c *Config) Validate() error {
	if c.GRPC.Addr == "" && c.HTTP.Addr == "" && c.TCP.Addr == "" {
		return errors.New("no listener configured")
	}
	if _, err := wire.CodecByName(c.TCP.Codec); err != nil {
		return errors.Wrap(err, "tcp.codec")
	}
	if c.Session.OutputBuffer < 0 {
		return errors.Errorf("session.output_buffer must not be negative, got %d", c.Session.OutputBuffer)
	}
	if c.ShutdownTimeout < 0 {
		return errors.Errorf("shutdown_timeout must not be negative, got %s", c.ShutdownTimeout)
	}
	return nil
}
