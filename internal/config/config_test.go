package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadMergesOverDefaults(t *testing.T) {
	path := writeConfigFile(t, `
mode = "memory"
log_level = "debug"

[enclave]
passphrase = "swordfish"

[settlement]
claim_ttl = "6h"

[server]
port = 9090
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.LogLevel != "debug" {
		t.Fatalf("expected log level debug, got %q", cfg.LogLevel)
	}
	if cfg.Enclave.Passphrase != "swordfish" {
		t.Fatalf("expected passphrase from file, got %q", cfg.Enclave.Passphrase)
	}
	if cfg.Settlement.ClaimTTL.Duration != 6*time.Hour {
		t.Fatalf("expected 6h claim ttl, got %v", cfg.Settlement.ClaimTTL.Duration)
	}
	if cfg.Server.Port != 9090 {
		t.Fatalf("expected port 9090, got %d", cfg.Server.Port)
	}
	// Untouched fields keep their defaults.
	if cfg.Redis.Addr != "localhost:6379" {
		t.Fatalf("expected default redis addr, got %q", cfg.Redis.Addr)
	}

	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestEnvOverridesWinOverFile(t *testing.T) {
	path := writeConfigFile(t, `
mode = "memory"

[enclave]
passphrase = "from-file"
`)

	t.Setenv("BLINDBET_ENCLAVE_PASSPHRASE", "from-env")
	t.Setenv("BLINDBET_SERVER_PORT", "7070")
	t.Setenv("BLINDBET_SETTLEMENT_CLAIM_TTL", "90m")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Enclave.Passphrase != "from-env" {
		t.Fatalf("expected env passphrase, got %q", cfg.Enclave.Passphrase)
	}
	if cfg.Server.Port != 7070 {
		t.Fatalf("expected port 7070, got %d", cfg.Server.Port)
	}
	if cfg.Settlement.ClaimTTL.Duration != 90*time.Minute {
		t.Fatalf("expected 90m claim ttl, got %v", cfg.Settlement.ClaimTTL.Duration)
	}
}

func TestValidateRejectsBadConfigs(t *testing.T) {
	base := func() Config {
		cfg := Defaults()
		cfg.Enclave.Passphrase = "x"
		return cfg
	}

	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"unknown mode", func(c *Config) { c.Mode = "cluster" }, "unsupported mode"},
		{"missing passphrase", func(c *Config) { c.Enclave.Passphrase = "" }, "passphrase"},
		{"bad treasury", func(c *Config) { c.Accounts.Treasury = "not-an-address" }, "treasury"},
		{"bad port", func(c *Config) { c.Server.Port = 0 }, "port"},
		{"serve without postgres", func(c *Config) { c.Mode = "serve" }, "postgres"},
		{"archive without bucket", func(c *Config) { c.Archive.Enabled = true }, "bucket"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error mentioning %q, got %v", tc.want, err)
			}
		})
	}
}
