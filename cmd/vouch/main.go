package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/MikeSquared-Agency/vouch/internal/api"
	"github.com/MikeSquared-Agency/vouch/internal/attestation"
	"github.com/MikeSquared-Agency/vouch/internal/cache"
	"github.com/MikeSquared-Agency/vouch/internal/config"
	"github.com/MikeSquared-Agency/vouch/internal/hermes"
	"github.com/MikeSquared-Agency/vouch/internal/ledger"
	"github.com/MikeSquared-Agency/vouch/internal/metrics"
	"github.com/MikeSquared-Agency/vouch/internal/processor"
	"github.com/MikeSquared-Agency/vouch/internal/store"
	"github.com/MikeSquared-Agency/vouch/internal/trust"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("failed to read .env", "error", err)
	}
	cfg := config.Load()
	setupLogging(cfg.LogLevel)

	slog.Info("vouch starting", "port", cfg.Port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Weight table
	weights, err := trust.LoadConfig(cfg.WeightsFile)
	if err != nil {
		slog.Error("failed to load weight table", "file", cfg.WeightsFile, "error", err)
		os.Exit(1)
	}
	if cfg.Issuer != "" {
		weights.Issuer = cfg.Issuer
	}
	engine := trust.NewEngine(weights)
	slog.Info("trust engine ready", "issuer", weights.Issuer, "monthly_decay", weights.Decay.MonthlyRate)

	// Database
	if cfg.DatabaseURL == "" {
		slog.Error("DATABASE_URL is required")
		os.Exit(1)
	}
	db, err := store.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := db.Migrate(ctx); err != nil {
		slog.Error("failed to migrate database", "error", err)
		os.Exit(1)
	}
	slog.Info("database connected")

	// NATS/Hermes
	hermesClient, err := hermes.NewClient(ctx, cfg.NatsURL, cfg.NatsToken, slog.Default())
	if err != nil {
		slog.Error("failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer hermesClient.Close()
	slog.Info("NATS connected", "url", cfg.NatsURL)

	m := metrics.New(prometheus.DefaultRegisterer)

	opts := []attestation.Option{
		attestation.WithPublisher(hermesClient),
		attestation.WithMetrics(m),
		attestation.WithLogger(slog.Default()),
	}

	// Redis cache (optional)
	if cfg.RedisURL != "" {
		c, err := cache.New(ctx, cfg.RedisURL, cfg.CacheTTL)
		if err != nil {
			slog.Warn("redis unavailable, serving reads from postgres", "error", err)
		} else {
			defer c.Close()
			opts = append(opts, attestation.WithCache(c))
			slog.Info("redis cache ready", "ttl", cfg.CacheTTL)
		}
	} else {
		slog.Warn("REDIS_URL not set, running without cache")
	}

	// Ledger (optional)
	if cfg.ChainRPCURL != "" {
		key, created, err := ledger.LoadOrCreateKey(cfg.ChainKey)
		if err != nil {
			slog.Error("failed to load issuer key", "file", cfg.ChainKey, "error", err)
			os.Exit(1)
		}
		if created {
			slog.Warn("generated new issuer key, fund it before issuing", "file", cfg.ChainKey, "address", ledger.AddressOf(key))
		}
		l, err := ledger.Dial(ctx, cfg.ChainRPCURL, key)
		if err != nil {
			slog.Error("failed to connect to chain", "error", err)
			os.Exit(1)
		}
		defer l.Close()
		opts = append(opts, attestation.WithLedger(l))
		slog.Info("ledger ready", "address", l.Address())
	} else {
		slog.Warn("CHAIN_RPC_URL not set, attestations will not be anchored")
	}

	svc := attestation.New(engine, db, opts...)

	// Metrics reported by platforms
	proc := processor.New(svc, slog.Default())
	if err := hermesClient.Subscribe(hermes.SubjectMetricsReported, proc.HandleMetricsReported); err != nil {
		slog.Error("failed to subscribe to metrics events", "error", err)
		os.Exit(1)
	}

	// HTTP API
	if cfg.APIToken == "" {
		slog.Warn("VOUCH_API_TOKEN not set, issuing endpoint is unauthenticated")
	}
	srv := api.NewServer(cfg.Port, cfg.APIToken, svc, m)
	go func() {
		if err := srv.Start(); err != nil {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	// Announce registration
	if err := hermesClient.Publish(hermes.SubjectRegistered, map[string]any{
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"port":      cfg.Port,
		"issuer":    weights.Issuer,
		"ledger":    svc.HasLedger(),
	}); err != nil {
		slog.Warn("failed to publish registration", "error", err)
	}

	slog.Info("vouch ready", "port", cfg.Port)

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	slog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("HTTP shutdown error", "error", err)
	}
	if err := hermesClient.Flush(shutdownCtx); err != nil {
		slog.Warn("NATS flush error", "error", err)
	}
	cancel()
	slog.Info("vouch stopped")
}

func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}
