package config

import (
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies BLINDBET_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known BLINDBET_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	setStr(&cfg.Accounts.Treasury, "BLINDBET_ACCOUNTS_TREASURY")
	setStr(&cfg.Accounts.Ledger, "BLINDBET_ACCOUNTS_LEDGER")

	setStr(&cfg.Enclave.Passphrase, "BLINDBET_ENCLAVE_PASSPHRASE")
	setInt(&cfg.Enclave.QueueSize, "BLINDBET_ENCLAVE_QUEUE_SIZE")

	setDuration(&cfg.Settlement.ClaimTTL, "BLINDBET_SETTLEMENT_CLAIM_TTL")

	setStr(&cfg.Postgres.DSN, "BLINDBET_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "BLINDBET_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "BLINDBET_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "BLINDBET_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "BLINDBET_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "BLINDBET_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "BLINDBET_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "BLINDBET_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "BLINDBET_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "BLINDBET_POSTGRES_RUN_MIGRATIONS")

	setStr(&cfg.Redis.Addr, "BLINDBET_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "BLINDBET_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "BLINDBET_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "BLINDBET_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "BLINDBET_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "BLINDBET_REDIS_TLS_ENABLED")

	setBool(&cfg.Archive.Enabled, "BLINDBET_ARCHIVE_ENABLED")
	setStr(&cfg.Archive.Endpoint, "BLINDBET_ARCHIVE_ENDPOINT")
	setStr(&cfg.Archive.Region, "BLINDBET_ARCHIVE_REGION")
	setStr(&cfg.Archive.Bucket, "BLINDBET_ARCHIVE_BUCKET")
	setStr(&cfg.Archive.AccessKey, "BLINDBET_ARCHIVE_ACCESS_KEY")
	setStr(&cfg.Archive.SecretKey, "BLINDBET_ARCHIVE_SECRET_KEY")
	setDuration(&cfg.Archive.Interval, "BLINDBET_ARCHIVE_INTERVAL")

	setInt(&cfg.Server.Port, "BLINDBET_SERVER_PORT")
	setStr(&cfg.Server.APIKey, "BLINDBET_SERVER_API_KEY")

	setStr(&cfg.Mode, "BLINDBET_MODE")
	setStr(&cfg.LogLevel, "BLINDBET_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}
