// Package config defines the top-level configuration for the blindbet
// service and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by BLINDBET_* environment
// variables.
type Config struct {
	Accounts   AccountsConfig   `toml:"accounts"`
	Enclave    EnclaveConfig    `toml:"enclave"`
	Settlement SettlementConfig `toml:"settlement"`
	Postgres   PostgresConfig   `toml:"postgres"`
	Redis      RedisConfig      `toml:"redis"`
	Archive    ArchiveConfig    `toml:"archive"`
	Server     ServerConfig     `toml:"server"`
	Mode       string           `toml:"mode"`
	LogLevel   string           `toml:"log_level"`
}

// AccountsConfig names the service's fixed principals.
type AccountsConfig struct {
	// Treasury is the market custody account; it holds stakes between bet
	// placement and payout and carries the compute/decrypt grants on pools.
	Treasury string `toml:"treasury"`
	// Ledger is the token ledger's own principal.
	Ledger string `toml:"ledger"`
}

// EnclaveConfig holds parameters for the confidential value service.
type EnclaveConfig struct {
	Passphrase string `toml:"passphrase"`
	QueueSize  int    `toml:"queue_size"`
}

// SettlementConfig holds claim state machine parameters.
type SettlementConfig struct {
	// ClaimTTL is how long a decrypt request may stay unanswered before the
	// bettor can reopen the claim.
	ClaimTTL duration `toml:"claim_ttl"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters for the event bus.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// ArchiveConfig holds S3-compatible object storage parameters for settled
// market archives.
type ArchiveConfig struct {
	Enabled   bool     `toml:"enabled"`
	Endpoint  string   `toml:"endpoint"`
	Region    string   `toml:"region"`
	Bucket    string   `toml:"bucket"`
	AccessKey string   `toml:"access_key"`
	SecretKey string   `toml:"secret_key"`
	Interval  duration `toml:"interval"`
}

// ServerConfig holds the HTTP API parameters.
type ServerConfig struct {
	Port        int      `toml:"port"`
	APIKey      string   `toml:"api_key"`
	CORSOrigins []string `toml:"cors_origins"`
}

// duration wraps time.Duration so TOML files can use "24h" syntax.
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler for TOML decoding.
func (d *duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Accounts: AccountsConfig{
			Treasury: "0x0000000000000000000000000000000000b149d0",
			Ledger:   "0x00000000000000000000000000000000004ed6e5",
		},
		Enclave: EnclaveConfig{
			QueueSize: 256,
		},
		Settlement: SettlementConfig{
			ClaimTTL: duration{24 * time.Hour},
		},
		Postgres: PostgresConfig{
			Port:         5432,
			SSLMode:      "disable",
			PoolMaxConns: 8,
			PoolMinConns: 1,
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 8,
		},
		Archive: ArchiveConfig{
			Interval: duration{time.Hour},
		},
		Server: ServerConfig{
			Port: 8080,
		},
		Mode:     "memory",
		LogLevel: "info",
	}
}

// Validate checks the configuration for the selected mode.
func (c *Config) Validate() error {
	var problems []string

	switch strings.ToLower(c.Mode) {
	case "memory", "serve":
	default:
		problems = append(problems, fmt.Sprintf("unsupported mode %q", c.Mode))
	}

	if c.Enclave.Passphrase == "" {
		problems = append(problems, "enclave passphrase is required")
	}
	if !common.IsHexAddress(c.Accounts.Treasury) {
		problems = append(problems, "accounts.treasury is not a valid address")
	}
	if !common.IsHexAddress(c.Accounts.Ledger) {
		problems = append(problems, "accounts.ledger is not a valid address")
	}
	if c.Settlement.ClaimTTL.Duration <= 0 {
		problems = append(problems, "settlement.claim_ttl must be positive")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		problems = append(problems, "server.port out of range")
	}

	if strings.ToLower(c.Mode) == "serve" {
		if c.Postgres.DSN == "" && (c.Postgres.Host == "" || c.Postgres.Database == "" || c.Postgres.User == "") {
			problems = append(problems, "postgres connection parameters are required in serve mode")
		}
		if c.Redis.Addr == "" {
			problems = append(problems, "redis.addr is required in serve mode")
		}
	}
	if c.Archive.Enabled && c.Archive.Bucket == "" {
		problems = append(problems, "archive.bucket is required when archiving is enabled")
	}

	if len(problems) > 0 {
		return fmt.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// TreasuryAddress returns the parsed treasury principal.
func (c *Config) TreasuryAddress() common.Address {
	return common.HexToAddress(c.Accounts.Treasury)
}

// LedgerAddress returns the parsed ledger principal.
func (c *Config) LedgerAddress() common.Address {
	return common.HexToAddress(c.Accounts.Ledger)
}
