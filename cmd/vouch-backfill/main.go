package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/MikeSquared-Agency/vouch/internal/attestation"
	"github.com/MikeSquared-Agency/vouch/internal/backfill"
	"github.com/MikeSquared-Agency/vouch/internal/config"
	"github.com/MikeSquared-Agency/vouch/internal/ledger"
	"github.com/MikeSquared-Agency/vouch/internal/store"
	"github.com/MikeSquared-Agency/vouch/internal/trust"
)

func main() {
	_ = godotenv.Load()

	app := &cli.App{
		Name:  "vouch-backfill",
		Usage: "replay exported agent metrics (JSONL) into trust attestations",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "dir", Usage: "directory scanned recursively for *.jsonl exports"},
			&cli.StringFlag{Name: "file", Usage: "process a single export file"},
			&cli.TimestampFlag{Name: "since", Layout: time.DateOnly, Usage: "skip snapshots with last activity before this date"},
			&cli.TimestampFlag{Name: "until", Layout: time.DateOnly, Usage: "skip snapshots with last activity after this date"},
			&cli.BoolFlag{Name: "dry-run", Usage: "score only, store nothing"},
			&cli.BoolFlag{Name: "latest-only", Usage: "issue one attestation per agent per file"},
			&cli.StringFlag{Name: "state", Value: backfill.DefaultStatePath, Usage: "resumable progress file"},
			&cli.BoolFlag{Name: "anchor", Usage: "anchor attestations on CHAIN_RPC_URL"},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		slog.Error("backfill failed", "error", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	cfg := config.Load()
	setupLogging(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	weights, err := trust.LoadConfig(cfg.WeightsFile)
	if err != nil {
		return fmt.Errorf("load weight table: %w", err)
	}
	if cfg.Issuer != "" {
		weights.Issuer = cfg.Issuer
	}
	engine := trust.NewEngine(weights)

	runCfg := backfill.Config{
		Dir:        c.String("dir"),
		SingleFile: c.String("file"),
		DryRun:     c.Bool("dry-run"),
		LatestOnly: c.Bool("latest-only"),
		StatePath:  c.String("state"),
	}
	if t := c.Timestamp("since"); t != nil {
		runCfg.Since = *t
	}
	if t := c.Timestamp("until"); t != nil {
		runCfg.Until = *t
	}

	var svc *attestation.Service
	if runCfg.DryRun {
		svc = attestation.New(engine, nil)
	} else {
		if cfg.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required unless --dry-run is set")
		}
		db, err := store.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := db.Migrate(ctx); err != nil {
			return err
		}

		opts := []attestation.Option{attestation.WithLogger(slog.Default())}
		if c.Bool("anchor") {
			l, err := dialLedger(ctx, cfg)
			if err != nil {
				return err
			}
			defer l.Close()
			opts = append(opts, attestation.WithLedger(l))
		}
		svc = attestation.New(engine, db, opts...)
	}

	sum, err := backfill.NewRunner(runCfg, svc, slog.Default()).Run(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("files=%d issued=%d skipped=%d failures=%d duration=%s\n",
		len(sum.Files), sum.Issued, sum.Skipped, sum.Failures, sum.Duration.Round(time.Millisecond))
	return nil
}

func dialLedger(ctx context.Context, cfg config.Config) (*ledger.Ledger, error) {
	if cfg.ChainRPCURL == "" {
		return nil, fmt.Errorf("--anchor needs CHAIN_RPC_URL")
	}
	key, _, err := ledger.LoadOrCreateKey(cfg.ChainKey)
	if err != nil {
		return nil, err
	}
	return ledger.Dial(ctx, cfg.ChainRPCURL, key)
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
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}
