package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Load loads configuration from a layered set of sources.
//
// The loading order is:
//  1. Built-in defaults
//  2. YAML config file (explicit path, GATEKEEPER_CONFIG env, ./config.yaml, /etc/gatekeeper/config.yaml)
//  3. Environment variable overrides
//  4. File reference resolution (_file suffix)
//  5. Validation
func Load(configPath string) (*Config, error) {
	// Start with defaults.
	cfg := Defaults()

	// Discover and load YAML config file.
	filePath := discoverConfigFile(configPath)
	if filePath != "" {
		if err := loadYAMLFile(filePath, &cfg); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", filePath, err)
		}
	}

	// Apply environment variable overrides.
	applyEnvOverrides(&cfg)

	// Resolve _file references.
	if err := resolveFileReferences(&cfg); err != nil {
		return nil, fmt.Errorf("resolving file references: %w", err)
	}

	// Validate.
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return &cfg, nil
}

// discoverConfigFile finds the config file path using the discovery order:
// 1. Explicit configPath argument
// 2. GATEKEEPER_CONFIG environment variable
// 3. ./config.yaml in the current directory
// 4. /etc/gatekeeper/config.yaml
//
// Returns empty string if no config file is found.
func discoverConfigFile(configPath string) string {
	// Explicit path takes priority.
	if configPath != "" {
		return configPath
	}

	// Check GATEKEEPER_CONFIG env var.
	if envPath := os.Getenv("GATEKEEPER_CONFIG"); envPath != "" {
		return envPath
	}

	// Check common locations.
	candidates := []string{
		"config.yaml",
		"/etc/gatekeeper/config.yaml",
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// loadYAMLFile reads and parses a YAML file into the Config struct.
// Fields not present in the YAML retain their current (default) values.
func loadYAMLFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// applyEnvOverrides maps environment variables to config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("GATEKEEPER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("GATEKEEPER_KEYSTORE"); v != "" {
		cfg.KeyStore.Type = v
	}
	if v := os.Getenv("GATEKEEPER_POSTGRES_DSN"); v != "" {
		cfg.KeyStore.Postgres.DSN = v
	}
	if v := os.Getenv("GATEKEEPER_REDIS_ADDR"); v != "" {
		cfg.RateLimit.Redis.Addr = v
	}
	if v := os.Getenv("GATEKEEPER_REDIS_PASSWORD"); v != "" {
		cfg.RateLimit.Redis.Password = v
	}
	if v := os.Getenv("GATEKEEPER_RATELIMIT_ENABLED"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			cfg.RateLimit.Enabled = enabled
		}
	}
	if v := os.Getenv("GATEKEEPER_IP_PER_SECOND"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RateLimit.IPPerSecond = n
		}
	}
	if v := os.Getenv("GATEKEEPER_IP_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RateLimit.IPPerMinute = n
		}
	}
	if v := os.Getenv("GATEKEEPER_JWKS_URL"); v != "" {
		cfg.Token.JWKSURL = v
	}
	if v := os.Getenv("GATEKEEPER_TOKEN_ISSUER"); v != "" {
		cfg.Token.Issuer = v
	}
	if v := os.Getenv("GATEKEEPER_TOKEN_AUDIENCE"); v != "" {
		cfg.Token.Audience = v
	}

	// GATEKEEPER_API_KEYS: JSON array of static key configs.
	if v := os.Getenv("GATEKEEPER_API_KEYS"); v != "" {
		keys, err := parseAPIKeysJSON(v)
		if err == nil && len(keys) > 0 {
			cfg.KeyStore.Keys = keys
		}
	}
}

// parseAPIKeysJSON parses a JSON array of static key configurations.
func parseAPIKeysJSON(jsonStr string) ([]StaticKeyConfig, error) {
	var keys []StaticKeyConfig
	if err := json.Unmarshal([]byte(jsonStr), &keys); err != nil {
		return nil, fmt.Errorf("parsing API keys JSON: %w", err)
	}
	return keys, nil
}

// resolveFileReferences reads _file fields and populates the
// corresponding value fields. The value field wins when both are set.
func resolveFileReferences(cfg *Config) error {
	if cfg.KeyStore.Postgres.DSN == "" && cfg.KeyStore.Postgres.DSNFile != "" {
		v, err := readSecretFile(cfg.KeyStore.Postgres.DSNFile)
		if err != nil {
			return fmt.Errorf("keystore.postgres.dsn_file: %w", err)
		}
		cfg.KeyStore.Postgres.DSN = v
	}

	if cfg.RateLimit.Redis.Password == "" && cfg.RateLimit.Redis.PasswordFile != "" {
		v, err := readSecretFile(cfg.RateLimit.Redis.PasswordFile)
		if err != nil {
			return fmt.Errorf("ratelimit.redis.password_file: %w", err)
		}
		cfg.RateLimit.Redis.Password = v
	}

	for i := range cfg.KeyStore.Keys {
		k := &cfg.KeyStore.Keys[i]
		if k.Key == "" && k.KeyFile != "" {
			v, err := readSecretFile(k.KeyFile)
			if err != nil {
				return fmt.Errorf("keystore.keys[%d].key_file: %w", i, err)
			}
			k.Key = v
		}
	}

	return nil
}

// readSecretFile reads a secret value from a file, trimming a single
// trailing newline.
func readSecretFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	s := string(data)
	if len(s) > 0 && s[len(s)-1] == '\n' {
		s = s[:len(s)-1]
	}
	return s, nil
}
