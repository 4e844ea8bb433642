package scrape

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/smetacat/smetacat/internal/catalog"
	"github.com/smetacat/smetacat/internal/pricing"
)

// CatalogPort supplies the vendor and its assigned materials.
type CatalogPort interface {
	GetVendor(ctx context.Context, id int64) (catalog.Vendor, error)
	GetMaterial(ctx context.Context, id string) (catalog.Material, error)
	ListMaterialsByVendor(ctx context.Context, vendorID int64) ([]catalog.Material, error)
}

// PricePort records the run's source and its observations.
type PricePort interface {
	CreateSource(ctx context.Context, input pricing.SourceInput) (int64, error)
	AppendPrice(ctx context.Context, materialID string, price float64, currency string, priceDate time.Time, sourceID int64) (int64, error)
}

// Metrics counts per-material outcomes of scrape runs.
type Metrics interface {
	CountScrape(outcome string, n int)
}

// Runner scrapes one vendor's site for all materials assigned to it. Every
// run gets its own website-typed price source, so observations stay
// attributable to the exact run that produced them.
type Runner struct {
	store   CatalogPort
	prices  PricePort
	fetcher Fetcher
	logger  *slog.Logger
	metrics Metrics

	mu      sync.RWMutex
	base    VendorConfig
	configs map[int64]VendorConfig
}

func NewRunner(store CatalogPort, prices PricePort, fetcher Fetcher, logger *slog.Logger) *Runner {
	return &Runner{
		store:   store,
		prices:  prices,
		fetcher: fetcher,
		logger:  logger,
		configs: map[int64]VendorConfig{},
	}
}

// WithMetrics attaches outcome counters to the runner.
func (r *Runner) WithMetrics(m Metrics) *Runner {
	r.metrics = m
	return r
}

// WithBaseConfig sets the fallback pacing and retry settings for vendors
// without their own configuration.
func (r *Runner) WithBaseConfig(cfg VendorConfig) *Runner {
	r.base = cfg
	return r
}

// Configure sets a per-vendor scraping configuration.
func (r *Runner) Configure(vendorID int64, cfg VendorConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.configs[vendorID] = cfg.WithDefaults()
}

// configFor resolves the effective configuration: an explicit Configure
// call wins, then the vendor's stored scrape_config JSON, then the
// runner's base settings with a generic search pattern.
func (r *Runner) configFor(vendor catalog.Vendor) VendorConfig {
	r.mu.RLock()
	cfg, ok := r.configs[vendor.ID]
	r.mu.RUnlock()
	if ok {
		return cfg
	}

	cfg = r.base
	if vendor.ScrapeConfig != "" {
		stored, err := ParseVendorConfig(vendor.ScrapeConfig)
		if err != nil {
			r.logger.Warn("invalid vendor scrape config, using defaults",
				"vendor_id", vendor.ID, "error", err)
		} else {
			cfg = stored
			if cfg.RateLimit <= 0 {
				cfg.RateLimit = r.base.RateLimit
			}
			if cfg.MaxRetries <= 0 {
				cfg.MaxRetries = r.base.MaxRetries
			}
			if cfg.Timeout <= 0 {
				cfg.Timeout = r.base.Timeout
			}
		}
	}
	if cfg.SearchURLPattern == "" {
		cfg.SearchURLPattern = strings.TrimRight(vendor.WebsiteURL, "/") + "/search?q={query}"
	}
	if cfg.PriceSelector == "" {
		cfg.PriceSelector = ".price"
	}
	return cfg.WithDefaults()
}

func (r *Runner) selectMaterials(ctx context.Context, vendorID int64, ids []string) ([]catalog.Material, error) {
	if len(ids) == 0 {
		return r.store.ListMaterialsByVendor(ctx, vendorID)
	}
	materials := make([]catalog.Material, 0, len(ids))
	for _, id := range ids {
		material, err := r.store.GetMaterial(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("scrape: material %s: %w", id, err)
		}
		materials = append(materials, material)
	}
	return materials, nil
}

type sourceMeta struct {
	VendorURL string    `json:"vendor_url"`
	ScrapedAt time.Time `json:"scraped_at"`
}

// ScrapeVendor fetches a current price for every material assigned to the
// vendor, or only for the explicitly listed material ids when given.
// Individual fetch failures are counted, never fatal.
func (r *Runner) ScrapeVendor(ctx context.Context, vendorID int64, materialIDs ...string) (Result, error) {
	started := time.Now()

	vendor, err := r.store.GetVendor(ctx, vendorID)
	if err != nil {
		return Result{}, err
	}
	if strings.TrimSpace(vendor.WebsiteURL) == "" {
		return Result{}, ErrNoWebsite
	}

	materials, err := r.selectMaterials(ctx, vendorID, materialIDs)
	if err != nil {
		return Result{}, err
	}

	meta, _ := json.Marshal(sourceMeta{VendorURL: vendor.WebsiteURL, ScrapedAt: started})
	sourceID, err := r.prices.CreateSource(ctx, pricing.SourceInput{
		Type:     pricing.SourceTypeWebsite,
		Name:     fmt.Sprintf("Scrape %s %s", vendor.Name, started.Format("2006-01-02")),
		VendorID: &vendorID,
		DocDate:  started,
		Meta:     string(meta),
	})
	if err != nil {
		return Result{}, fmt.Errorf("scrape: create source: %w", err)
	}

	cfg := r.configFor(vendor)
	result := Result{VendorID: vendorID, SourceID: sourceID}
	for i, material := range materials {
		if i > 0 {
			select {
			case <-ctx.Done():
				result.Duration = time.Since(started)
				return result, ctx.Err()
			case <-time.After(cfg.RateLimit):
			}
		}

		price, err := r.fetcher.FetchPrice(ctx, cfg, material.NameCanonical)
		switch {
		case errors.Is(err, ErrPriceNotFound):
			result.NotFound++
			continue
		case err != nil:
			result.Failed++
			r.logger.Warn("scrape material failed",
				"vendor_id", vendorID, "material_id", material.ID, "error", err)
			continue
		}

		if _, err := r.prices.AppendPrice(ctx, material.ID, price, "", started, sourceID); err != nil {
			result.Failed++
			r.logger.Error("record scraped price",
				"vendor_id", vendorID, "material_id", material.ID, "error", err)
			continue
		}
		result.Scraped++
	}

	result.Duration = time.Since(started)
	if r.metrics != nil {
		r.metrics.CountScrape("scraped", result.Scraped)
		r.metrics.CountScrape("not_found", result.NotFound)
		r.metrics.CountScrape("failed", result.Failed)
	}
	r.logger.Info("vendor scrape finished",
		"vendor_id", vendorID,
		"materials", len(materials),
		"scraped", result.Scraped,
		"not_found", result.NotFound,
		"failed", result.Failed,
		"duration", result.Duration,
	)
	return result, nil
}
