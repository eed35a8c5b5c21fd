// Package config loads the invoker process configuration.
package config

import (
	"time"

	"github.com/machinefabric/invoker-go/logging"
	"github.com/machinefabric/invoker-go/wire"
)

// Config is the process configuration
type Config struct {
	// Function fixes every session to one function. Empty lets each
	// handshake pick a registered function by name.
	Function        string          `yaml:"function"`
	GRPC            GRPCConfig      `yaml:"grpc"`
	HTTP            HTTPConfig      `yaml:"http"`
	TCP             TCPConfig       `yaml:"tcp"`
	Session         SessionConfig   `yaml:"session"`
	Wire            wire.Limits     `yaml:"wire"`
	Log             logging.Options `yaml:"log"`
	ShutdownTimeout time.Duration   `yaml:"shutdown_timeout"`
}

type GRPCConfig struct {
	Addr string `yaml:"addr"` // e.g. ":8081"
}

// HTTPConfig serves websocket sessions, health and metrics. An empty
// address disables it.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// TCPConfig serves length-prefixed sessions over raw TCP. An empty address
// disables it.
type TCPConfig struct {
	Addr  string `yaml:"addr"`
	Codec string `yaml:"codec"` // "proto" or "cbor"
}

type SessionConfig struct {
	OutputBuffer int `yaml:"output_buffer"`
}

const (
	DefaultGRPCPort        = "8081"
	DefaultOutputBuffer    = 64
	DefaultShutdownTimeout = 30 * time.Second
)

// Environment variables read by ApplyEnv
const (
	EnvGRPCPort           = "GRPC_PORT"
	EnvFunctionDefinition = "FUNCTION_DEFINITION"
	EnvLogLevel           = "LOG_LEVEL"
)

// Default returns a configuration with every default applied
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
