// Command server runs the gatekeeper in front of the content API.
//
// Configuration is layered: built-in defaults, a YAML config file
// (-config flag, GATEKEEPER_CONFIG, ./config.yaml, or
// /etc/gatekeeper/config.yaml), then GATEKEEPER_* environment overrides.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/haugen-media/gatekeeper/pkg/auth"
	"github.com/haugen-media/gatekeeper/pkg/auth/token"
	"github.com/haugen-media/gatekeeper/pkg/config"
	"github.com/haugen-media/gatekeeper/pkg/debug"
	"github.com/haugen-media/gatekeeper/pkg/gatekeeper"
	"github.com/haugen-media/gatekeeper/pkg/keystore"
	keymemory "github.com/haugen-media/gatekeeper/pkg/keystore/memory"
	keypostgres "github.com/haugen-media/gatekeeper/pkg/keystore/postgres"
	"github.com/haugen-media/gatekeeper/pkg/observability"
	"github.com/haugen-media/gatekeeper/pkg/ratelimit"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	debug.Init(cfg.Observability.Logging.Debug, cfg.Observability.Logging.Level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Key store.
	keys, closeKeys, err := buildKeyStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("creating key store: %w", err)
	}
	defer closeKeys()

	// Token verifier (enabled by configuring a JWKS URL).
	var verifier auth.TokenVerifier
	if cfg.Token.JWKSURL != "" {
		verifier = token.New(token.Config{
			Issuer:     cfg.Token.Issuer,
			Audience:   cfg.Token.Audience,
			JWKSURL:    cfg.Token.JWKSURL,
			SiteClaim:  cfg.Token.SiteClaim,
			LevelClaim: cfg.Token.LevelClaim,
			CacheTTL:   cfg.Token.CacheTTL,
		})
		slog.Info("token authentication enabled", "jwks_url", cfg.Token.JWKSURL, "issuer", cfg.Token.Issuer)
	} else {
		slog.Info("token authentication disabled")
	}

	resolver := auth.NewResolver(keys, verifier)

	// Rate limiter over the shared counter store.
	var limiter *ratelimit.Limiter
	if cfg.RateLimit.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RateLimit.Redis.Addr,
			Password: cfg.RateLimit.Redis.Password,
			DB:       cfg.RateLimit.Redis.DB,
		})
		defer client.Close()

		store := ratelimit.NewRedisStore(client, cfg.RateLimit.StoreTimeout)
		limiter = ratelimit.New(store, ratelimit.Windows{
			PerSecond: cfg.RateLimit.IPPerSecond,
			PerMinute: cfg.RateLimit.IPPerMinute,
		})
		slog.Info("rate limiting enabled",
			"redis", cfg.RateLimit.Redis.Addr,
			"ip_per_second", cfg.RateLimit.IPPerSecond,
			"ip_per_minute", cfg.RateLimit.IPPerMinute,
		)
	} else {
		slog.Info("rate limiting disabled")
	}

	gk := gatekeeper.New(resolver, limiter)

	// Build HTTP mux. Health and metrics endpoints bypass the gatekeeper.
	mux := http.NewServeMux()
	mux.Handle("GET /v1/sites/{site}/whoami", gk.Protect(
		auth.Requirement{MinLevel: auth.LevelRead, SiteScoped: true},
		http.HandlerFunc(whoami),
	))
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok\n"))
	})
	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok\n"))
	})
	if cfg.Observability.Metrics.Enabled {
		mux.Handle("GET "+cfg.Observability.Metrics.Path, promhttp.Handler())
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      observability.MetricsMiddleware(mux),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in background.
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server starting", "port", cfg.Server.Port, "keystore", cfg.KeyStore.Type)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Wait for shutdown signal or error.
	select {
	case <-ctx.Done():
		slog.Info("shutting down gracefully")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// buildKeyStore constructs the configured key store implementation.
func buildKeyStore(ctx context.Context, cfg *config.Config) (keystore.Store, func(), error) {
	switch cfg.KeyStore.Type {
	case "postgres":
		store, err := keypostgres.New(ctx, keypostgres.Config{
			DSN:            cfg.KeyStore.Postgres.DSN,
			MaxConns:       cfg.KeyStore.Postgres.MaxConns,
			MigrateOnStart: cfg.KeyStore.Postgres.MigrateOnStart,
		})
		if err != nil {
			return nil, nil, err
		}
		slog.Info("key store ready", "type", "postgres")
		return store, store.Close, nil
	default:
		records := make([]keystore.Record, 0, len(cfg.KeyStore.Keys))
		for _, k := range cfg.KeyStore.Keys {
			records = append(records, keystore.Record{
				ID:        k.ID,
				KeyHash:   auth.HashKey(k.Key),
				Label:     k.Label,
				Site:      k.Site,
				Level:     k.Level,
				Status:    keystore.StatusActive,
				PerSecond: k.PerSecond,
				PerMinute: k.PerMinute,
				PerHour:   k.PerHour,
				PerDay:    k.PerDay,
			})
		}
		slog.Info("key store ready", "type", "memory", "keys", len(records))
		return keymemory.New(records), func() {}, nil
	}
}

// whoami reports the resolved principal, standing in for the content
// domain handlers that live behind the gatekeeper.
func whoami(w http.ResponseWriter, r *http.Request) {
	p := auth.PrincipalFromContext(r.Context())

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"id":    p.ID,
		"kind":  string(p.Kind),
		"site":  string(p.Site),
		"level": p.Level.String(),
	})
}
