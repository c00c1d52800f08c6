package main

import (
	"context"
	"errors"
	"os"

	"golang.org/x/sync/errgroup"

	"dividi/internal/backend"
	"dividi/internal/cli"
	"dividi/internal/sheets"
	gsheet "dividi/internal/sheets/google"
	mem "dividi/internal/sheets/memory"
	"dividi/internal/worker"
)

func main() {
	cli.LoadEnvFile()

	cfg, err := cli.LoadAndValidateConfig()
	if err != nil {
		cli.SetupLogger(nil, "worker").Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}
	logger := cli.SetupLogger(cfg, "worker")
	logger.Info("Starting dividi-worker")

	ctx, cancel := cli.SignalContext(context.Background(), logger)
	defer cancel()

	// The worker reads the database the server writes.
	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", "error", err)
		os.Exit(1)
	}
	bcfg.Type = backend.SQLiteBackend
	bcfg.AMQPQueue = cfg.AMQPQueue
	res, err := backend.NewFactory(logger.Logger).CreateBackend(ctx, bcfg)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer func() {
		if err := res.Cleanup(); err != nil {
			logger.Error("Backend cleanup failed", "error", err)
		}
	}()

	var sink sheets.ReportSink
	if cfg.GoogleSpreadsheetID != "" {
		client, err := gsheet.NewFromEnv(ctx, cfg.GoogleSpreadsheetID)
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", "error", err)
			os.Exit(1)
		}
		sink = client
		logger.Info("Google Sheets client initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	} else {
		sink = mem.New()
		logger.Info("Google Sheets disabled - no GOOGLE_SPREADSHEET_ID provided, mirroring in memory")
	}

	syncWorker := worker.NewSyncWorker(res.Store, sink, cfg.ReportOptions(), res.Refresher)

	logger.Info("Performing startup sync...")
	if err := syncWorker.StartupSync(ctx); err != nil {
		logger.Error("Startup sync failed", "error", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	if res.Feed != nil {
		feed := res.Feed
		g.Go(func() error {
			err := feed.ConsumeChanges(gctx, syncWorker.HandleChange)
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	} else {
		logger.Info("Skipping AMQP message consumption - no change feed available")
	}

	g.Go(func() error {
		err := syncWorker.RunPeriodic(gctx, cfg.SyncInterval)
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Worker stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("Worker shutdown complete")
}
