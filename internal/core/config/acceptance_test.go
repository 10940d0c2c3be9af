package config

import (
	"testing"
)

// TestAcceptanceCriteria verifies the configuration precedence and secret
// handling guarantees.
func TestAcceptanceCriteria(t *testing.T) {
	t.Run("AC1: caller auth token read from environment", func(t *testing.T) {
		t.Setenv(AuthTokenEnv, "token-from-env")

		cfg, err := LoadConfig("")
		if err != nil {
			t.Fatalf("AC1 FAIL: LoadConfig error: %v", err)
		}
		if cfg.Caller.AuthToken != "token-from-env" {
			t.Fatalf("AC1 FAIL: expected token from env, got %q", cfg.Caller.AuthToken)
		}
	})

	t.Run("AC2: config file with auth_token rejected with clear error", func(t *testing.T) {
		path := writeConfig(t, `caller:
  base_url: "https://api.example.com"
  auth_token: "should_be_rejected"
`)
		_, err := LoadConfig(path)
		if err == nil {
			t.Fatal("AC2 FAIL: expected error for secret in config file")
		}
		if err.Error() != "auth tokens not allowed in config files (use FF_CALLER_AUTH_TOKEN environment variable)" {
			t.Fatalf("AC2 FAIL: wrong error message: %v", err)
		}
	})

	t.Run("AC3: environment overrides config file", func(t *testing.T) {
		t.Setenv("FF_ENGINE_HTTP_PORT", "8181")
		path := writeConfig(t, `engine:
  http_port: 9090
`)
		cfg, err := LoadConfig(path)
		if err != nil {
			t.Fatalf("AC3 FAIL: LoadConfig error: %v", err)
		}
		if cfg.Engine.HTTPPort != 8181 {
			t.Fatalf("AC3 FAIL: environment should override config file, expected 8181, got %d", cfg.Engine.HTTPPort)
		}
	})

	t.Run("AC4: bound flag overrides environment", func(t *testing.T) {
		t.Setenv("FF_DATABASE_URL", "sqlite://env.db")
		v := NewViper()
		v.Set("database.url", "sqlite://flag.db")

		cfg, err := Load(v, "")
		if err != nil {
			t.Fatalf("AC4 FAIL: Load error: %v", err)
		}
		if cfg.Database.URL != "sqlite://flag.db" {
			t.Fatalf("AC4 FAIL: expected flag value, got %s", cfg.Database.URL)
		}
	})
}
