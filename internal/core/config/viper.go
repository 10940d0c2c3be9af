package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. FF_ENGINE_HTTP_PORT.
const EnvPrefix = "FF"

// AuthTokenEnv carries the caller bearer token. It is never read from files.
const AuthTokenEnv = EnvPrefix + "_CALLER_AUTH_TOKEN"

// NewViper returns a viper instance with defaults and environment binding,
// ready for flag binding before Load.
func NewViper() *viper.Viper {
	v := viper.New()
	d := DefaultConfig()

	v.SetDefault("engine.host", d.Engine.Host)
	v.SetDefault("engine.grpc_port", d.Engine.GRPCPort)
	v.SetDefault("engine.http_port", d.Engine.HTTPPort)
	v.SetDefault("engine.request_timeout", d.Engine.RequestTimeout.String())
	v.SetDefault("engine.data_dir", d.Engine.DataDir)
	v.SetDefault("engine.metrics_enabled", d.Engine.MetricsEnabled)
	v.SetDefault("database.url", d.Database.URL)
	v.SetDefault("caller.base_url", "")
	v.SetDefault("caller.timeout", d.Caller.Timeout.String())
	v.SetDefault("caller.max_retries", d.Caller.MaxRetries)
	v.SetDefault("caller.retry_wait_ms", d.Caller.RetryWaitMS)
	v.SetDefault("caller.debug", false)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// LoadConfig loads configuration using viper.
// CLI flags > environment > config file > defaults precedence.
func LoadConfig(configPath string) (*Config, error) {
	return Load(NewViper(), configPath)
}

// Load reads configPath (if set) into v and builds a validated Config.
func Load(v *viper.Viper, configPath string) (*Config, error) {
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := validateNoSecretsInConfig(v); err != nil {
		return nil, err
	}

	cfg := &Config{
		Engine: EngineConfig{
			Host:           v.GetString("engine.host"),
			GRPCPort:       v.GetInt("engine.grpc_port"),
			HTTPPort:       v.GetInt("engine.http_port"),
			RequestTimeout: v.GetDuration("engine.request_timeout"),
			DataDir:        v.GetString("engine.data_dir"),
			MetricsEnabled: v.GetBool("engine.metrics_enabled"),
		},
		Database: DatabaseConfig{URL: v.GetString("database.url")},
	}
	cfg.Caller.BaseURL = v.GetString("caller.base_url")
	cfg.Caller.Timeout = v.GetDuration("caller.timeout")
	cfg.Caller.MaxRetries = v.GetInt("caller.max_retries")
	cfg.Caller.RetryWaitMS = v.GetInt("caller.retry_wait_ms")
	cfg.Caller.Debug = v.GetBool("caller.debug")
	cfg.Caller.AuthToken = os.Getenv(AuthTokenEnv)

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validateConfig checks port ranges, positive timeouts and the database URL,
// then delegates the caller section to its own tag validation.
func validateConfig(cfg *Config) error {
	if cfg.Engine.GRPCPort <= 0 || cfg.Engine.GRPCPort > 65535 {
		return fmt.Errorf("grpc_port must be between 1 and 65535, got %d", cfg.Engine.GRPCPort)
	}
	if cfg.Engine.HTTPPort <= 0 || cfg.Engine.HTTPPort > 65535 {
		return fmt.Errorf("http_port must be between 1 and 65535, got %d", cfg.Engine.HTTPPort)
	}
	if cfg.Engine.GRPCPort == cfg.Engine.HTTPPort {
		return fmt.Errorf("grpc_port and http_port must differ, both are %d", cfg.Engine.GRPCPort)
	}
	if cfg.Engine.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive, got %v", cfg.Engine.RequestTimeout)
	}
	if cfg.Engine.DataDir == "" {
		return fmt.Errorf("data_dir must not be empty")
	}
	switch scheme, _, _ := strings.Cut(cfg.Database.URL, "://"); scheme {
	case "sqlite", "postgres", "postgresql":
	default:
		return fmt.Errorf("database url must start with sqlite:// or postgres://, got %q", cfg.Database.URL)
	}
	if cfg.Caller.MaxRetries < 0 {
		return fmt.Errorf("caller max_retries must not be negative, got %d", cfg.Caller.MaxRetries)
	}
	return cfg.Caller.Validate()
}

// validateNoSecretsInConfig enforces environment-only secrets.
func validateNoSecretsInConfig(v *viper.Viper) error {
	if v.InConfig("caller.auth_token") || v.InConfig("auth_token") {
		return fmt.Errorf("auth tokens not allowed in config files (use %s environment variable)", AuthTokenEnv)
	}
	return nil
}

func joinHostPort(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}
