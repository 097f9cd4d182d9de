// Package config defines marketd's configuration and its validation.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/alanyoungcy/binarymarket/internal/domain"
	"github.com/alanyoungcy/binarymarket/internal/market"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by MARKETD_* environment variables.
type Config struct {
	Market   MarketConfig   `toml:"market"`
	Store    StoreConfig    `toml:"store"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Archive  ArchiveConfig  `toml:"archive"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// MarketConfig holds the deployment-wide market rules.
type MarketConfig struct {
	// Admin is the 0x-prefixed identity allowed to resolve markets.
	Admin      string `toml:"admin"`
	GlobalBump int    `toml:"global_bump"`
	// RentFloorLamports stays in every escrow; creators fund it up front.
	RentFloorLamports uint64   `toml:"rent_floor_lamports"`
	BettingCutoff     duration `toml:"betting_cutoff"`
	StrictResolution  bool     `toml:"strict_resolution"`
	BurnOnClaim       bool     `toml:"burn_on_claim"`
	// GateMint, when set, is the token creators must hold GateMinimum of.
	GateMint    string   `toml:"gate_mint"`
	GateMinimum uint64   `toml:"gate_minimum"`
	LockTTL     duration `toml:"lock_ttl"`
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	// Backend is "memory" or "postgres".
	Backend string `toml:"backend"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string   `toml:"dsn"`
	Host          string   `toml:"host"`
	Port          int      `toml:"port"`
	Database      string   `toml:"database"`
	User          string   `toml:"user"`
	Password      string   `toml:"password"`
	SSLMode       string   `toml:"ssl_mode"`
	PoolMaxConns  int      `toml:"pool_max_conns"`
	PoolMinConns  int      `toml:"pool_min_conns"`
	RunMigrations bool     `toml:"run_migrations"`
	LockTimeout   duration `toml:"lock_timeout"`
}

// RedisConfig holds Redis connection parameters. When enabled, Redis backs
// the market lock, cache, event bus and rate limiter.
type RedisConfig struct {
	Enabled    bool     `toml:"enabled"`
	Addr       string   `toml:"addr"`
	Password   string   `toml:"password"`
	DB         int      `toml:"db"`
	PoolSize   int      `toml:"pool_size"`
	MaxRetries int      `toml:"max_retries"`
	TLSEnabled bool     `toml:"tls_enabled"`
	CacheTTL   duration `toml:"cache_ttl"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
	PartSize       int64  `toml:"part_size"`
}

// ArchiveConfig controls market snapshots to object storage.
type ArchiveConfig struct {
	Enabled bool `toml:"enabled"`
	// OnResolve archives every market right after it resolves.
	OnResolve bool `toml:"on_resolve"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "48h").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	// APIKey, when set, is required on every /api request except health.
	APIKey string `toml:"api_key"`
	// RateLimit is the number of requests one client may make per
	// RateWindow. Zero disables limiting. Needs Redis.
	RateLimit  int      `toml:"rate_limit"`
	RateWindow duration `toml:"rate_window"`
}

// NotifyConfig holds operator alert channels.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config populated with sensible default values.
func Defaults() Config {
	return Config{
		Market: MarketConfig{
			GlobalBump:        255,
			RentFloorLamports: market.RentExemptMinimum(market.RecordSpace),
			BettingCutoff:     duration{market.BettingCutoff},
			LockTTL:           duration{10 * time.Second},
		},
		Store: StoreConfig{
			Backend: "memory",
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "marketd",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
			LockTimeout:   duration{5 * time.Second},
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
			CacheTTL:   duration{5 * time.Minute},
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "marketd-archive",
			ForcePathStyle: true,
		},
		Server: ServerConfig{
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000"},
			RateLimit:   120,
			RateWindow:  duration{time.Minute},
		},
		Notify: NotifyConfig{
			Events: []string{string(domain.EventMarketResolved), string(domain.EventWithdrawal)},
		},
		Mode:     "serve",
		LogLevel: "info",
	}
}

var validModes = map[string]bool{
	"serve":   true,
	"migrate": true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validEvents = map[string]bool{
	string(domain.EventMarketConfigured): true,
	string(domain.EventMarketActivated):  true,
	string(domain.EventBetPlaced):        true,
	string(domain.EventLiquidityAdded):   true,
	string(domain.EventMarketResolved):   true,
	string(domain.EventWithdrawal):       true,
}

// Validate checks the configuration for missing or invalid values. It returns
// every problem found, not just the first.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: serve, migrate)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	if _, err := domain.ParsePubkey(c.Market.Admin); err != nil {
		errs = append(errs, "market: admin must be a 0x-prefixed 32-byte hex identity")
	}
	if c.Market.GlobalBump < 0 || c.Market.GlobalBump > 255 {
		errs = append(errs, fmt.Sprintf("market: global_bump must be 0-255, got %d", c.Market.GlobalBump))
	}
	if c.Market.BettingCutoff.Duration < 0 {
		errs = append(errs, "market: betting_cutoff must not be negative")
	}
	if c.Market.LockTTL.Duration <= 0 {
		errs = append(errs, "market: lock_ttl must be positive")
	}
	if c.Market.GateMint != "" {
		if _, err := domain.ParsePubkey(c.Market.GateMint); err != nil {
			errs = append(errs, "market: gate_mint must be a 0x-prefixed 32-byte hex identity")
		}
		if c.Market.GateMinimum == 0 {
			errs = append(errs, "market: gate_minimum must be positive when gate_mint is set")
		}
	}

	switch c.Store.Backend {
	case "memory":
		if c.Mode == "migrate" {
			errs = append(errs, "store: mode migrate needs backend postgres")
		}
	case "postgres":
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 || c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must be 0..pool_max_conns")
		}
	default:
		errs = append(errs, fmt.Sprintf("store: unknown backend %q (valid: memory, postgres)", c.Store.Backend))
	}

	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	if c.Archive.Enabled {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when archive is enabled")
		}
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty when archive is enabled")
		}
	} else if c.Archive.OnResolve {
		errs = append(errs, "archive: on_resolve needs archive.enabled")
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Server.RateLimit < 0 {
		errs = append(errs, "server: rate_limit must not be negative")
	}
	if c.Server.RateLimit > 0 && c.Server.RateWindow.Duration <= 0 {
		errs = append(errs, "server: rate_window must be positive when rate_limit is set")
	}

	for _, e := range c.Notify.Events {
		if !validEvents[e] {
			errs = append(errs, fmt.Sprintf("notify: unknown event %q", e))
		}
	}
	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// Global returns the parsed authority configuration. Call after Validate.
func (c *Config) Global() domain.GlobalConfig {
	admin, _ := domain.ParsePubkey(c.Market.Admin)
	return domain.GlobalConfig{Admin: admin, Bump: uint8(c.Market.GlobalBump)}
}

// GateMint returns the parsed gate mint, zero when unset.
func (c *Config) GateMint() domain.Pubkey {
	if c.Market.GateMint == "" {
		return domain.Pubkey{}
	}
	mint, _ := domain.ParsePubkey(c.Market.GateMint)
	return mint
}
