// Package config provides configuration management for the formflow engine.
package config

import (
	"time"

	"github.com/solatis/formflow/internal/core/caller"
)

// EngineConfig holds configuration for the engine servers.
type EngineConfig struct {
	Host           string
	GRPCPort       int
	HTTPPort       int
	RequestTimeout time.Duration
	DataDir        string
	MetricsEnabled bool
}

// DatabaseConfig selects the store backend.
type DatabaseConfig struct {
	// URL is sqlite://<path> or postgres://...
	URL string
}

// Config is the complete service configuration.
type Config struct {
	Engine   EngineConfig
	Database DatabaseConfig
	Caller   caller.Config
}

// DefaultConfig returns configuration with default values.
func DefaultConfig() *Config {
	return &Config{
		Engine: EngineConfig{
			Host:           "0.0.0.0",
			GRPCPort:       50051,
			HTTPPort:       8080,
			RequestTimeout: 30 * time.Second,
			DataDir:        "./data",
			MetricsEnabled: true,
		},
		Database: DatabaseConfig{
			URL: "sqlite://./data/formflow.db",
		},
		Caller: caller.DefaultConfig(),
	}
}

// GRPCAddr is the listen address of the gRPC server.
func (c *Config) GRPCAddr() string {
	return joinHostPort(c.Engine.Host, c.Engine.GRPCPort)
}

// HTTPAddr is the listen address of the HTTP gateway.
func (c *Config) HTTPAddr() string {
	return joinHostPort(c.Engine.Host, c.Engine.HTTPPort)
}
