package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/smetacat/smetacat/internal/app"
	"github.com/smetacat/smetacat/internal/catalog"
	jobmetrics "github.com/smetacat/smetacat/internal/jobs"
	"github.com/smetacat/smetacat/internal/platform/cache"
	"github.com/smetacat/smetacat/internal/pricing"
	"github.com/smetacat/smetacat/internal/scrape"
	"github.com/smetacat/smetacat/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := pgxpool.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	var priceCache *pricing.Cache
	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, price cache bumps disabled", slog.Any("error", err))
	} else {
		priceCache = pricing.NewCache(redisClient, cfg.PriceCacheTTL)
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	catalogRepo := catalog.NewRepository(pool)
	pricingService := pricing.NewService(pricing.NewRepository(pool), catalogRepo, priceCache)

	fetcher := scrape.NewHTTPFetcher(cfg.ScrapeRequestTimeout, logger)
	runner := scrape.NewRunner(catalogRepo, pricingService, fetcher, logger).
		WithBaseConfig(scrape.VendorConfig{
			RateLimit:  cfg.ScrapeRateLimit,
			MaxRetries: cfg.ScrapeMaxRetries,
			Timeout:    cfg.ScrapeRequestTimeout,
		})
	scrapeJob := jobs.NewScrapeVendorJob(runner, logger, jobmetrics.NewMetrics(nil))

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskScrapeVendor, Handler: scrapeJob.Handle},
		},
	})
	if err != nil {
		logger.Error("build worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("starting worker", slog.String("redis", cfg.RedisAddr))
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker stopped", slog.Any("error", err))
		os.Exit(1)
	}
}
