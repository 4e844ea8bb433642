package scrape

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/smetacat/smetacat/internal/catalog"
	"github.com/smetacat/smetacat/internal/pricing"
)

type memoryStore struct {
	vendors   map[int64]catalog.Vendor
	materials map[int64][]catalog.Material
}

func (m *memoryStore) GetVendor(_ context.Context, id int64) (catalog.Vendor, error) {
	v, ok := m.vendors[id]
	if !ok {
		return catalog.Vendor{}, catalog.ErrNotFound
	}
	return v, nil
}

func (m *memoryStore) GetMaterial(_ context.Context, id string) (catalog.Material, error) {
	for _, list := range m.materials {
		for _, material := range list {
			if material.ID == id {
				return material, nil
			}
		}
	}
	return catalog.Material{}, catalog.ErrNotFound
}

func (m *memoryStore) ListMaterialsByVendor(_ context.Context, vendorID int64) ([]catalog.Material, error) {
	return m.materials[vendorID], nil
}

type memoryPrices struct {
	sources []pricing.SourceInput
	prices  []recordedPrice
}

type recordedPrice struct {
	materialID string
	price      float64
	sourceID   int64
}

func (m *memoryPrices) CreateSource(_ context.Context, input pricing.SourceInput) (int64, error) {
	m.sources = append(m.sources, input)
	return int64(len(m.sources)), nil
}

func (m *memoryPrices) AppendPrice(_ context.Context, materialID string, price float64, _ string, _ time.Time, sourceID int64) (int64, error) {
	m.prices = append(m.prices, recordedPrice{materialID: materialID, price: price, sourceID: sourceID})
	return int64(len(m.prices)), nil
}

type fetcherFunc func(ctx context.Context, cfg VendorConfig, query string) (float64, error)

func (f fetcherFunc) FetchPrice(ctx context.Context, cfg VendorConfig, query string) (float64, error) {
	return f(ctx, cfg, query)
}

// fakeFetcher answers by material name; missing entries read as not found.
type fakeFetcher struct {
	prices map[string]float64
	errs   map[string]error
}

func (f *fakeFetcher) FetchPrice(_ context.Context, _ VendorConfig, query string) (float64, error) {
	if err, ok := f.errs[query]; ok {
		return 0, err
	}
	price, ok := f.prices[query]
	if !ok {
		return 0, ErrPriceNotFound
	}
	return price, nil
}

func testRunner(store *memoryStore, prices *memoryPrices, fetcher Fetcher) *Runner {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := NewRunner(store, prices, fetcher, logger)
	for id := range store.vendors {
		r.Configure(id, VendorConfig{
			SearchURLPattern: "https://example.com/search?q={query}",
			PriceSelector:    ".price",
			RateLimit:        time.Millisecond,
		})
	}
	return r
}

func vendorFixture() (*memoryStore, catalog.Vendor) {
	vendor := catalog.Vendor{ID: 1, Name: "СтройТорг", WebsiteURL: "https://stroytorg.example"}
	store := &memoryStore{
		vendors: map[int64]catalog.Vendor{1: vendor},
		materials: map[int64][]catalog.Material{1: {
			{ID: "aaaa1111-0000-4000-8000-000000000001", NameCanonical: "цемент м500", Unit: "кг", Active: true},
			{ID: "aaaa1111-0000-4000-8000-000000000002", NameCanonical: "кирпич красный", Unit: "шт", Active: true},
			{ID: "aaaa1111-0000-4000-8000-000000000003", NameCanonical: "песок речной", Unit: "м³", Active: true},
		}},
	}
	return store, vendor
}

func TestScrapeVendorRecordsWebsitePrices(t *testing.T) {
	store, vendor := vendorFixture()
	prices := &memoryPrices{}
	runner := testRunner(store, prices, &fakeFetcher{
		prices: map[string]float64{"цемент м500": 550, "песок речной": 1200},
	})

	result, err := runner.ScrapeVendor(context.Background(), vendor.ID)
	require.NoError(t, err)
	require.Equal(t, 2, result.Scraped)
	require.Equal(t, 1, result.NotFound)
	require.Equal(t, 0, result.Failed)

	require.Len(t, prices.sources, 1)
	source := prices.sources[0]
	require.Equal(t, pricing.SourceTypeWebsite, source.Type)
	require.Equal(t, vendor.ID, *source.VendorID)

	var meta map[string]any
	require.NoError(t, json.Unmarshal([]byte(source.Meta), &meta))
	require.Equal(t, vendor.WebsiteURL, meta["vendor_url"])
	require.Contains(t, meta, "scraped_at")

	require.Len(t, prices.prices, 2)
	for _, p := range prices.prices {
		require.Equal(t, result.SourceID, p.sourceID)
	}
}

func TestScrapeVendorExplicitMaterials(t *testing.T) {
	store, vendor := vendorFixture()
	prices := &memoryPrices{}
	runner := testRunner(store, prices, &fakeFetcher{
		prices: map[string]float64{"цемент м500": 550, "песок речной": 1200},
	})

	result, err := runner.ScrapeVendor(context.Background(), vendor.ID,
		"aaaa1111-0000-4000-8000-000000000001")
	require.NoError(t, err)
	require.Equal(t, 1, result.Scraped)
	require.Equal(t, 0, result.NotFound)
	require.Len(t, prices.prices, 1)
	require.Equal(t, "aaaa1111-0000-4000-8000-000000000001", prices.prices[0].materialID)

	_, err = runner.ScrapeVendor(context.Background(), vendor.ID, "aaaa1111-0000-4000-8000-00000000dead")
	require.ErrorIs(t, err, catalog.ErrNotFound)
}

func TestScrapeVendorUsesStoredConfig(t *testing.T) {
	vendor := catalog.Vendor{
		ID:         1,
		Name:       "СтройТорг",
		WebsiteURL: "https://stroytorg.example",
		ScrapeConfig: `{"search_url_pattern": "https://stroytorg.example/find?text={query}",
			"price_selector": ".product-price", "rate_limit": 0.001}`,
	}
	store := &memoryStore{
		vendors: map[int64]catalog.Vendor{1: vendor},
		materials: map[int64][]catalog.Material{1: {
			{ID: "aaaa1111-0000-4000-8000-000000000001", NameCanonical: "цемент м500", Unit: "кг", Active: true},
		}},
	}

	var seen VendorConfig
	fetcher := fetcherFunc(func(_ context.Context, cfg VendorConfig, _ string) (float64, error) {
		seen = cfg
		return 550, nil
	})
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	runner := NewRunner(store, &memoryPrices{}, fetcher, logger)

	result, err := runner.ScrapeVendor(context.Background(), vendor.ID)
	require.NoError(t, err)
	require.Equal(t, 1, result.Scraped)
	require.Equal(t, "https://stroytorg.example/find?text={query}", seen.SearchURLPattern)
	require.Equal(t, ".product-price", seen.PriceSelector)
	require.Equal(t, time.Millisecond, seen.RateLimit)
	require.Equal(t, DefaultMaxRetries, seen.MaxRetries)
}

func TestScrapeVendorFailureIsolation(t *testing.T) {
	store, vendor := vendorFixture()
	prices := &memoryPrices{}
	runner := testRunner(store, prices, &fakeFetcher{
		prices: map[string]float64{"песок речной": 1200},
		errs:   map[string]error{"цемент м500": errors.New("connection reset")},
	})

	result, err := runner.ScrapeVendor(context.Background(), vendor.ID)
	require.NoError(t, err)
	require.Equal(t, 1, result.Scraped)
	require.Equal(t, 1, result.NotFound)
	require.Equal(t, 1, result.Failed)
	require.Len(t, prices.prices, 1)
}

func TestScrapeVendorWithoutWebsite(t *testing.T) {
	store := &memoryStore{
		vendors:   map[int64]catalog.Vendor{2: {ID: 2, Name: "Безымянный"}},
		materials: map[int64][]catalog.Material{},
	}
	runner := testRunner(store, &memoryPrices{}, &fakeFetcher{})

	_, err := runner.ScrapeVendor(context.Background(), 2)
	require.ErrorIs(t, err, ErrNoWebsite)
}

func TestScrapeUnknownVendor(t *testing.T) {
	store := &memoryStore{vendors: map[int64]catalog.Vendor{}}
	runner := testRunner(store, &memoryPrices{}, &fakeFetcher{})

	_, err := runner.ScrapeVendor(context.Background(), 99)
	require.ErrorIs(t, err, catalog.ErrNotFound)
}
