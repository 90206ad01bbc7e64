// Package config provides unified configuration for the gatekeeper.
//
// Configuration is loaded with a layered approach:
//  1. Built-in defaults
//  2. YAML config file (discovered or explicitly specified)
//  3. Environment variable overrides (GATEKEEPER_ prefix)
//  4. File reference resolution (_file suffix fields)
//  5. Validation
package config

import "time"

// Config holds all configuration for the gatekeeper.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	KeyStore      KeyStoreConfig      `yaml:"keystore"`
	Token         TokenConfig         `yaml:"token"`
	RateLimit     RateLimitConfig     `yaml:"ratelimit"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port         int           `yaml:"port"`          // default: 8080
	ReadTimeout  time.Duration `yaml:"read_timeout"`  // default: 10s
	WriteTimeout time.Duration `yaml:"write_timeout"` // default: 30s
}

// KeyStoreConfig holds credential store settings.
type KeyStoreConfig struct {
	Type     string            `yaml:"type"`     // "memory" or "postgres", default: "memory"
	Keys     []StaticKeyConfig `yaml:"keys"`     // seed entries for type=memory
	Postgres PostgresConfig    `yaml:"postgres"` // for type=postgres
}

// PostgresConfig holds PostgreSQL-specific settings.
type PostgresConfig struct {
	DSN            string `yaml:"dsn"`
	DSNFile        string `yaml:"dsn_file"` // _file variant for dsn
	MaxConns       int32  `yaml:"max_conns"`
	MigrateOnStart bool   `yaml:"migrate_on_start"`
}

// StaticKeyConfig describes a single seeded API key entry.
type StaticKeyConfig struct {
	Key       string `yaml:"key"`
	KeyFile   string `yaml:"key_file"` // _file variant for key
	ID        string `yaml:"id"`       // optional, generated when empty
	Label     string `yaml:"label"`
	Site      string `yaml:"site"`  // tenant scope, "*" for all sites
	Level     string `yaml:"level"` // read, write, admin, master
	PerSecond int    `yaml:"per_second"`
	PerMinute int    `yaml:"per_minute"`
	PerHour   int    `yaml:"per_hour"`
	PerDay    int    `yaml:"per_day"`
}

// TokenConfig holds signed-token verification settings. Token
// authentication is enabled by setting jwks_url.
type TokenConfig struct {
	JWKSURL    string        `yaml:"jwks_url"`
	Issuer     string        `yaml:"issuer"`
	Audience   string        `yaml:"audience"`
	SiteClaim  string        `yaml:"site_claim"`  // default: "site"
	LevelClaim string        `yaml:"level_claim"` // default: "level"
	CacheTTL   time.Duration `yaml:"cache_ttl"`   // default: 1h
}

// RateLimitConfig holds distributed rate limit settings.
type RateLimitConfig struct {
	Enabled      bool          `yaml:"enabled"`       // default: true
	Redis        RedisConfig   `yaml:"redis"`         // shared counter store
	IPPerSecond  int           `yaml:"ip_per_second"` // global per-address, default: 25
	IPPerMinute  int           `yaml:"ip_per_minute"` // global per-address, default: 300
	StoreTimeout time.Duration `yaml:"store_timeout"` // per-operation bound, default: 200ms
}

// RedisConfig holds counter store connection settings.
type RedisConfig struct {
	Addr         string `yaml:"addr"` // default: "localhost:6379"
	Password     string `yaml:"password"`
	PasswordFile string `yaml:"password_file"` // _file variant for password
	DB           int    `yaml:"db"`
}

// ObservabilityConfig holds monitoring and instrumentation settings.
type ObservabilityConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
	Logging LoggingConfig `yaml:"logging"`
}

// LoggingConfig holds log level and debug category settings. The
// GATEKEEPER_LOG_LEVEL and GATEKEEPER_DEBUG environment variables
// override these.
type LoggingConfig struct {
	Level string `yaml:"level"` // ERROR, WARN, INFO, DEBUG, TRACE; default: INFO
	Debug string `yaml:"debug"` // comma-separated debug categories
}

// MetricsConfig holds Prometheus metrics endpoint settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"` // default: true
	Path    string `yaml:"path"`    // default: "/metrics"
}

// Defaults returns a Config with all default values filled in.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:         8080,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		KeyStore: KeyStoreConfig{
			Type: "memory",
			Postgres: PostgresConfig{
				MaxConns: 10,
			},
		},
		Token: TokenConfig{
			SiteClaim:  "site",
			LevelClaim: "level",
			CacheTTL:   time.Hour,
		},
		RateLimit: RateLimitConfig{
			Enabled:      true,
			Redis:        RedisConfig{Addr: "localhost:6379"},
			IPPerSecond:  25,
			IPPerMinute:  300,
			StoreTimeout: 200 * time.Millisecond,
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{
				Enabled: true,
				Path:    "/metrics",
			},
		},
	}
}
