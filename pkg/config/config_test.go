package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeFile(t, t.TempDir(), "config.yaml", "{}\n"))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.KeyStore.Type != "memory" {
		t.Errorf("KeyStore.Type = %q, want memory", cfg.KeyStore.Type)
	}
	if !cfg.RateLimit.Enabled {
		t.Error("RateLimit.Enabled = false, want true by default")
	}
	if cfg.RateLimit.IPPerSecond != 25 || cfg.RateLimit.IPPerMinute != 300 {
		t.Errorf("IP limits = %d/%d, want 25/300", cfg.RateLimit.IPPerSecond, cfg.RateLimit.IPPerMinute)
	}
	if cfg.RateLimit.StoreTimeout != 200*time.Millisecond {
		t.Errorf("StoreTimeout = %v, want 200ms", cfg.RateLimit.StoreTimeout)
	}
	if cfg.Token.SiteClaim != "site" || cfg.Token.LevelClaim != "level" {
		t.Errorf("token claims = %q/%q, want site/level", cfg.Token.SiteClaim, cfg.Token.LevelClaim)
	}
	if !cfg.Observability.Metrics.Enabled || cfg.Observability.Metrics.Path != "/metrics" {
		t.Errorf("metrics = %+v, want enabled at /metrics", cfg.Observability.Metrics)
	}
}

func TestLoad_YAMLFile(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.yaml", `
server:
  port: 9090
  read_timeout: 5s
keystore:
  type: memory
  keys:
    - key: sk-test-1
      site: blog
      level: write
      per_minute: 100
ratelimit:
  ip_per_second: 10
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 5*time.Second {
		t.Errorf("ReadTimeout = %v, want 5s", cfg.Server.ReadTimeout)
	}
	if len(cfg.KeyStore.Keys) != 1 {
		t.Fatalf("Keys = %d, want 1", len(cfg.KeyStore.Keys))
	}
	k := cfg.KeyStore.Keys[0]
	if k.Key != "sk-test-1" || k.Site != "blog" || k.Level != "write" || k.PerMinute != 100 {
		t.Errorf("key = %+v, want sk-test-1/blog/write/100", k)
	}
	if cfg.RateLimit.IPPerSecond != 10 {
		t.Errorf("IPPerSecond = %d, want 10", cfg.RateLimit.IPPerSecond)
	}
	// Untouched fields keep their defaults.
	if cfg.RateLimit.IPPerMinute != 300 {
		t.Errorf("IPPerMinute = %d, want default 300", cfg.RateLimit.IPPerMinute)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.yaml", "server:\n  port: 9090\n")

	t.Setenv("GATEKEEPER_PORT", "7070")
	t.Setenv("GATEKEEPER_REDIS_ADDR", "redis.internal:6379")
	t.Setenv("GATEKEEPER_RATELIMIT_ENABLED", "false")
	t.Setenv("GATEKEEPER_API_KEYS", `[{"key":"sk-env-1","site":"docs","level":"read"}]`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Server.Port != 7070 {
		t.Errorf("Port = %d, want env override 7070", cfg.Server.Port)
	}
	if cfg.RateLimit.Redis.Addr != "redis.internal:6379" {
		t.Errorf("Redis.Addr = %q, want env override", cfg.RateLimit.Redis.Addr)
	}
	if cfg.RateLimit.Enabled {
		t.Error("RateLimit.Enabled = true, want env override false")
	}
	if len(cfg.KeyStore.Keys) != 1 || cfg.KeyStore.Keys[0].Key != "sk-env-1" {
		t.Errorf("Keys = %+v, want the env-provided key", cfg.KeyStore.Keys)
	}
}

func TestLoad_ConfigFileFromEnv(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.yaml", "server:\n  port: 6060\n")
	t.Setenv("GATEKEEPER_CONFIG", path)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Server.Port != 6060 {
		t.Errorf("Port = %d, want 6060 from GATEKEEPER_CONFIG file", cfg.Server.Port)
	}
}

func TestLoad_FileReferences(t *testing.T) {
	dir := t.TempDir()
	keyFile := writeFile(t, dir, "api-key", "sk-from-file\n")
	pwFile := writeFile(t, dir, "redis-pw", "s3cret")

	path := writeFile(t, dir, "config.yaml", `
keystore:
  keys:
    - key_file: `+keyFile+`
      site: blog
      level: read
ratelimit:
  redis:
    password_file: `+pwFile+`
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if got := cfg.KeyStore.Keys[0].Key; got != "sk-from-file" {
		t.Errorf("Key = %q, want file content with newline trimmed", got)
	}
	if got := cfg.RateLimit.Redis.Password; got != "s3cret" {
		t.Errorf("Password = %q, want s3cret", got)
	}
}

func TestLoad_MissingSecretFile(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.yaml", `
keystore:
  type: postgres
  postgres:
    dsn_file: /nonexistent/dsn
`)

	if _, err := Load(path); err == nil {
		t.Fatal("Load() = nil error, want failure for missing secret file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid defaults", func(c *Config) {}, ""},
		{"bad port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"bad keystore type", func(c *Config) { c.KeyStore.Type = "etcd" }, "keystore.type"},
		{"postgres without dsn", func(c *Config) { c.KeyStore.Type = "postgres" }, "keystore.postgres.dsn"},
		{
			"key without level",
			func(c *Config) {
				c.KeyStore.Keys = []StaticKeyConfig{{Key: "sk-1", Site: "blog"}}
			},
			"level",
		},
		{
			"key without site",
			func(c *Config) {
				c.KeyStore.Keys = []StaticKeyConfig{{Key: "sk-1", Level: "read"}}
			},
			"site",
		},
		{
			"ratelimit without redis addr",
			func(c *Config) { c.RateLimit.Redis.Addr = "" },
			"ratelimit.redis.addr",
		},
		{
			"negative ip limit",
			func(c *Config) { c.RateLimit.IPPerSecond = -1 },
			"ip_per_second",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Defaults()
			tc.mutate(&cfg)

			err := cfg.Validate()
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("Validate() = %v, want error mentioning %q", err, tc.wantErr)
			}
		})
	}
}
