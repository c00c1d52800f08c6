package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"dividi/internal/amqp"
	"dividi/internal/backend"
	"dividi/internal/cache"
	"dividi/internal/cli"
	apphttp "dividi/internal/http"
	"dividi/internal/services"
	"dividi/internal/tracker"
)

const exportCacheTTL = 15 * time.Minute

func main() {
	cli.LoadEnvFile()

	cfg, err := cli.LoadAndValidateConfig()
	if err != nil {
		cli.SetupLogger(nil, "server").Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}
	logger := cli.SetupLogger(cfg, "server")

	participants, err := cfg.ParticipantSet()
	if err != nil {
		logger.Error("Invalid participants", "error", err)
		os.Exit(1)
	}
	loc, err := cfg.Location()
	if err != nil {
		logger.Error("Invalid timezone", "error", err, "timezone", cfg.Timezone)
		os.Exit(1)
	}

	ctx, cancel := cli.SignalContext(context.Background(), logger)
	defer cancel()

	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", "error", err)
		os.Exit(1)
	}
	res, err := backend.NewFactory(logger.Logger).CreateBackend(ctx, bcfg)
	if err != nil {
		logger.Error("Failed to initialize backend", "error", err, "backend", cfg.DataBackend)
		os.Exit(1)
	}
	defer func() {
		if err := res.Cleanup(); err != nil {
			logger.Error("Backend cleanup failed", "error", err)
		}
	}()

	tr := tracker.New(participants, tracker.WithLocation(loc))
	if err := tr.Start(ctx, res.Store); err != nil {
		logger.Error("Failed to subscribe to expense store", "error", err)
		os.Exit(1)
	}
	defer tr.Stop()

	origin := cli.Origin("dividi")
	metrics := services.NewMetrics(prometheus.DefaultRegisterer)
	svcOpts := []services.Option{
		services.WithLocation(loc),
		services.WithMetrics(metrics),
		services.WithOrigin(origin),
	}
	if res.Feed != nil {
		svcOpts = append(svcOpts, services.WithPublisher(res.Feed))
	}

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Tracker:      tr,
		Expenses:     services.NewExpenseService(res.Store, participants, svcOpts...),
		Settlement:   services.NewSettlementController(res.Store, svcOpts...),
		Participants: participants,
		Formatter:    tracker.NewFormatter(cfg.CurrencySymbol, cfg.Language(), loc),
		Report:       cfg.ReportOptions(),
		Exports:      cache.NewExportCache(cfg.ExportCacheSize, exportCacheTTL),
		Metrics:      metrics,
		Logger:       logger.WithComponent("http"),
		RateLimit:    cfg.RateLimit,
	})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Starting dividi server", "port", cfg.Port, "backend", cfg.DataBackend, "participants", participants.Names())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cli.ShutdownTimeout)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		return nil
	})

	if res.Refresher != nil {
		refresher := res.Refresher

		// Other writers on the same database announce themselves over AMQP.
		if res.Feed != nil {
			feed := res.Feed
			g.Go(func() error {
				err := feed.ConsumeChanges(gctx, func(ctx context.Context, msg *amqp.ChangeMessage) error {
					if msg.Origin == origin {
						return nil
					}
					return refresher.Refresh(ctx)
				})
				if err != nil && !errors.Is(err, context.Canceled) {
					logger.Error("Change feed consumption failed", "error", err)
				}
				return nil
			})
		}

		// Writers without a feed are picked up on the next poll.
		g.Go(func() error {
			ticker := time.NewTicker(cfg.SyncInterval)
			defer ticker.Stop()
			for {
				select {
				case <-gctx.Done():
					return nil
				case <-ticker.C:
					if err := refresher.Refresh(gctx); err != nil {
						logger.Warn("Store refresh failed", "error", err)
					}
				}
			}
		})
	}

	if err := g.Wait(); err != nil {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}
