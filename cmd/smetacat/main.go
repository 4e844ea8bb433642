package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/smetacat/smetacat/cmd/smetacat/cli"
	"github.com/smetacat/smetacat/internal/app"
	"github.com/smetacat/smetacat/internal/catalog"
	"github.com/smetacat/smetacat/internal/importer"
	"github.com/smetacat/smetacat/internal/observability"
	"github.com/smetacat/smetacat/internal/platform/cache"
	"github.com/smetacat/smetacat/internal/platform/db"
	"github.com/smetacat/smetacat/internal/pricing"
	"github.com/smetacat/smetacat/internal/resolve"
	"github.com/smetacat/smetacat/internal/scrape"
	"github.com/smetacat/smetacat/jobs"
)

const usage = `smetacat <command> [flags]

Commands:
  serve          run the HTTP API server (default)
  init-db        apply database migrations
  migrate-json   load a legacy materials_catalog.json export
  add-material   register a canonical material
  add-customer   register a customer
  add-vendor     register a vendor
  list-customers print all customers
  list-vendors   print all vendors
  import-prices  import a CSV price list
  import-results print an import session's counters and unmatched rows
  fill-estimate  fill prices in an estimate CSV
  scrape-prices  enqueue a vendor website scrape
  unmatched      print pending unmatched import rows
`

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	command := "serve"
	args := os.Args[1:]
	if len(args) > 0 {
		command = args[0]
		args = args[1:]
	}

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	var runErr error
	switch command {
	case "serve":
		runErr = runServe(ctx, cfg, logger)
	case "init-db":
		runErr = db.RunMigrations(cfg.PGDSN, cfg.MigrationsDir, logger)
	case "help", "-h", "--help":
		fmt.Print(usage)
	default:
		runErr = runCLI(ctx, cfg, logger, command, args)
	}
	if runErr != nil {
		logger.Error("command failed", slog.String("command", command), slog.Any("error", runErr))
		os.Exit(1)
	}
}

func runCLI(ctx context.Context, cfg *app.Config, logger *slog.Logger, command string, args []string) error {
	switch command {
	case "scrape-prices":
		jobsCLI, err := cli.NewJobsCLI(cfg.RedisAddr)
		if err != nil {
			return err
		}
		defer jobsCLI.Close()
		return jobsCLI.Run(ctx, args, os.Stdout)
	case "migrate-json", "add-material", "add-customer", "add-vendor",
		"list-customers", "list-vendors", "import-prices", "import-results", "fill-estimate", "unmatched":
	default:
		fmt.Print(usage)
		return fmt.Errorf("unknown command %q", command)
	}

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()

	catalogCLI := cli.NewCatalogCLI(pool, logger)
	importCLI := cli.NewImportCLI(pool, logger)

	switch command {
	case "migrate-json":
		return catalogCLI.MigrateJSON(ctx, args, os.Stdout)
	case "add-material":
		return catalogCLI.AddMaterial(ctx, args, os.Stdout)
	case "add-customer":
		return catalogCLI.AddCustomer(ctx, args, os.Stdout)
	case "add-vendor":
		return catalogCLI.AddVendor(ctx, args, os.Stdout)
	case "list-customers":
		return catalogCLI.ListCustomers(ctx, os.Stdout)
	case "list-vendors":
		return catalogCLI.ListVendors(ctx, os.Stdout)
	case "import-prices":
		return importCLI.ImportPrices(ctx, args, os.Stdout)
	case "import-results":
		return importCLI.ImportResults(ctx, args, os.Stdout)
	case "fill-estimate":
		return importCLI.FillEstimate(ctx, args, os.Stdout)
	case "unmatched":
		return importCLI.ListUnmatched(ctx, os.Stdout)
	}
	return nil
}

func runServe(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, price cache disabled", slog.Any("error", err))
		redisClient = nil
	}
	if redisClient != nil {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	metrics := observability.NewMetrics()

	catalogRepo := catalog.NewRepository(pool)
	catalogService := catalog.NewService(catalogRepo)
	catalogHandler := catalog.NewHandler(logger, catalogService)

	var priceCache *pricing.Cache
	if redisClient != nil {
		priceCache = pricing.NewCache(redisClient, cfg.PriceCacheTTL)
	}
	pricingRepo := pricing.NewRepository(pool)
	pricingService := pricing.NewService(pricingRepo, catalogRepo, priceCache)
	pricingHandler := pricing.NewHandler(logger, pricingService)

	resolver := resolve.NewResolver(catalogRepo)

	importRepo := importer.NewRepository(pool)
	orchestrator := importer.NewOrchestrator(importRepo, resolver, pricingService, catalogService, logger).WithMetrics(metrics)
	filler := importer.NewFiller(resolver, pricingService, logger)
	importerHandler := importer.NewHandler(logger, orchestrator, filler)

	fetcher := scrape.NewHTTPFetcher(cfg.ScrapeRequestTimeout, logger)
	runner := scrape.NewRunner(catalogRepo, pricingService, fetcher, logger).
		WithMetrics(metrics).
		WithBaseConfig(scrape.VendorConfig{
			RateLimit:  cfg.ScrapeRateLimit,
			MaxRetries: cfg.ScrapeMaxRetries,
			Timeout:    cfg.ScrapeRequestTimeout,
		})

	jobsClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		return fmt.Errorf("jobs client: %w", err)
	}
	defer func() {
		if err := jobsClient.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()
	var enqueuer scrape.Enqueuer
	if redisClient != nil {
		enqueuer = jobsClient
	}
	scrapeHandler := scrape.NewHandler(logger, runner, enqueuer)

	router := app.NewRouter(app.RouterParams{
		Logger:          logger,
		Config:          cfg,
		Metrics:         metrics,
		CatalogHandler:  catalogHandler,
		PricingHandler:  pricingHandler,
		ImporterHandler: importerHandler,
		ScrapeHandler:   scrapeHandler,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
