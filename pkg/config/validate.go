package config

import (
	"errors"
	"fmt"
)

// validLevels mirrors the permission levels the resolver accepts.
var validLevels = map[string]bool{
	"read":   true,
	"write":  true,
	"admin":  true,
	"master": true,
}

// Validate checks the configuration for required fields and valid values.
// Returns an error with a descriptive field path on failure.
func (c *Config) Validate() error {
	var errs []error

	// server.port must be positive.
	if c.Server.Port <= 0 {
		errs = append(errs, fmt.Errorf("server.port must be > 0, got %d", c.Server.Port))
	}

	// keystore.type must be a known value.
	switch c.KeyStore.Type {
	case "memory", "postgres":
		// valid
	default:
		errs = append(errs, fmt.Errorf("keystore.type must be \"memory\" or \"postgres\", got %q", c.KeyStore.Type))
	}

	// If keystore.type is "postgres", DSN or DSNFile must be set.
	if c.KeyStore.Type == "postgres" {
		if c.KeyStore.Postgres.DSN == "" && c.KeyStore.Postgres.DSNFile == "" {
			errs = append(errs, fmt.Errorf("keystore.postgres.dsn or keystore.postgres.dsn_file is required when keystore.type is \"postgres\""))
		}
	}

	// Seeded keys must be complete enough to resolve.
	for i, k := range c.KeyStore.Keys {
		if k.Key == "" && k.KeyFile == "" {
			errs = append(errs, fmt.Errorf("keystore.keys[%d].key or key_file is required", i))
		}
		if !validLevels[k.Level] {
			errs = append(errs, fmt.Errorf("keystore.keys[%d].level must be read, write, admin, or master, got %q", i, k.Level))
		}
		if k.Site == "" {
			errs = append(errs, fmt.Errorf("keystore.keys[%d].site is required (\"*\" for all sites)", i))
		}
	}

	// Rate limiting needs a counter store address.
	if c.RateLimit.Enabled && c.RateLimit.Redis.Addr == "" {
		errs = append(errs, fmt.Errorf("ratelimit.redis.addr is required when ratelimit.enabled is true"))
	}
	if c.RateLimit.IPPerSecond < 0 || c.RateLimit.IPPerMinute < 0 {
		errs = append(errs, fmt.Errorf("ratelimit.ip_per_second and ip_per_minute must be >= 0"))
	}
	if c.RateLimit.StoreTimeout < 0 {
		errs = append(errs, fmt.Errorf("ratelimit.store_timeout must be >= 0"))
	}

	return errors.Join(errs...)
}
