package pricing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type memoryPriceRepo struct {
	sources map[int64]PriceSource
	prices  map[int64]MaterialPrice
	nextID  int64
}

func newMemoryPriceRepo() *memoryPriceRepo {
	return &memoryPriceRepo{
		sources: make(map[int64]PriceSource),
		prices:  make(map[int64]MaterialPrice),
	}
}

func (r *memoryPriceRepo) next() int64 {
	r.nextID++
	return r.nextID
}

func (r *memoryPriceRepo) CreateSource(_ context.Context, source PriceSource) (int64, error) {
	source.ID = r.next()
	r.sources[source.ID] = source
	return source.ID, nil
}

func (r *memoryPriceRepo) FindSourceByTypeName(_ context.Context, sourceType SourceType, name string) (int64, error) {
	var found int64
	for id, s := range r.sources {
		if s.Type == sourceType && s.Name == name {
			if found == 0 || id < found {
				found = id
			}
		}
	}
	if found == 0 {
		return 0, ErrSourceNotFound
	}
	return found, nil
}

func (r *memoryPriceRepo) AppendPrice(_ context.Context, price MaterialPrice) (int64, error) {
	price.ID = r.next()
	price.IsActive = true
	r.prices[price.ID] = price
	return price.ID, nil
}

func (r *memoryPriceRepo) ListActivePrices(_ context.Context, materialID string, maxDate time.Time) ([]Observation, error) {
	var observations []Observation
	for _, p := range r.prices {
		if p.MaterialID != materialID || !p.IsActive || p.PriceDate.After(maxDate) {
			continue
		}
		source := r.sources[p.SourceID]
		observations = append(observations, Observation{
			MaterialPrice:    p,
			SourceType:       source.Type,
			SourceName:       source.Name,
			SourceCustomerID: source.CustomerID,
		})
	}
	return observations, nil
}

func (r *memoryPriceRepo) InvalidatePrice(_ context.Context, priceID int64) error {
	p, ok := r.prices[priceID]
	if !ok {
		return ErrNoPrice
	}
	p.IsActive = false
	r.prices[priceID] = p
	return nil
}

type memoryCustomers struct {
	preferences map[int64]string
}

func (c *memoryCustomers) GetCustomerPreferredSourceType(_ context.Context, customerID int64) (string, error) {
	return c.preferences[customerID], nil
}

func date(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func datePtr(s string) *time.Time {
	t := date(s)
	return &t
}

func ptr(v int64) *int64 { return &v }

func seedStandardPrices(t *testing.T, repo *memoryPriceRepo, svc *Service) {
	t.Helper()
	ctx := context.Background()
	invoiceSrc, err := svc.CreateSource(ctx, SourceInput{Type: SourceTypeInvoice, Name: "Invoice batch", DocDate: date("2024-01-01")})
	require.NoError(t, err)
	manualSrc, err := svc.CreateSource(ctx, SourceInput{Type: SourceTypeManual, Name: "Manual entry", DocDate: date("2024-02-01")})
	require.NoError(t, err)

	_, err = svc.AppendPrice(ctx, "m1", 100, "RUB", date("2024-01-01"), invoiceSrc)
	require.NoError(t, err)
	_, err = svc.AppendPrice(ctx, "m1", 110, "RUB", date("2024-03-01"), invoiceSrc)
	require.NoError(t, err)
	_, err = svc.AppendPrice(ctx, "m1", 90, "RUB", date("2024-02-01"), manualSrc)
	require.NoError(t, err)
}

func TestSelectPriceMostRecentWithinPreferredType(t *testing.T) {
	repo := newMemoryPriceRepo()
	svc := NewService(repo, &memoryCustomers{}, nil)
	seedStandardPrices(t, repo, svc)

	obs, err := svc.SelectPrice(context.Background(), "m1", datePtr("2024-03-15"), nil)
	require.NoError(t, err)
	require.Equal(t, SourceTypeInvoice, obs.SourceType)
	require.Equal(t, 110.0, obs.Price)
}

func TestSelectPricePreferenceOverridesRecency(t *testing.T) {
	repo := newMemoryPriceRepo()
	customers := &memoryCustomers{preferences: map[int64]string{42: "manual"}}
	svc := NewService(repo, customers, nil)
	seedStandardPrices(t, repo, svc)

	obs, err := svc.SelectPrice(context.Background(), "m1", datePtr("2024-03-15"), ptr(42))
	require.NoError(t, err)
	require.Equal(t, SourceTypeManual, obs.SourceType)
	require.Equal(t, 90.0, obs.Price)
}

func TestSelectPriceFutureDatedExcluded(t *testing.T) {
	repo := newMemoryPriceRepo()
	svc := NewService(repo, &memoryCustomers{}, nil)
	seedStandardPrices(t, repo, svc)

	obs, err := svc.SelectPrice(context.Background(), "m1", datePtr("2024-02-15"), nil)
	require.NoError(t, err)
	// The 2024-03-01 invoice price is not selectable yet.
	require.Equal(t, 100.0, obs.Price)
}

func TestSelectPriceUnknownMaterial(t *testing.T) {
	repo := newMemoryPriceRepo()
	svc := NewService(repo, &memoryCustomers{}, nil)

	_, err := svc.SelectPrice(context.Background(), "missing", datePtr("2024-01-01"), nil)
	require.ErrorIs(t, err, ErrNoPrice)
}

func TestSelectPriceUnknownCustomerFallsBack(t *testing.T) {
	repo := newMemoryPriceRepo()
	svc := NewService(repo, &memoryCustomers{}, nil)
	seedStandardPrices(t, repo, svc)

	obs, err := svc.SelectPrice(context.Background(), "m1", datePtr("2024-03-15"), ptr(999))
	require.NoError(t, err)
	require.Equal(t, SourceTypeInvoice, obs.SourceType)
	require.Equal(t, 110.0, obs.Price)
}

func TestSelectPriceWebsiteBeatsManual(t *testing.T) {
	repo := newMemoryPriceRepo()
	svc := NewService(repo, &memoryCustomers{}, nil)
	ctx := context.Background()

	websiteSrc, err := svc.CreateSource(ctx, SourceInput{Type: SourceTypeWebsite, Name: "Scrape run", DocDate: date("2024-01-05")})
	require.NoError(t, err)
	manualSrc, err := svc.CreateSource(ctx, SourceInput{Type: SourceTypeManual, Name: "Manual entry", DocDate: date("2024-02-01")})
	require.NoError(t, err)

	_, err = svc.AppendPrice(ctx, "m1", 75, "RUB", date("2024-01-05"), websiteSrc)
	require.NoError(t, err)
	_, err = svc.AppendPrice(ctx, "m1", 80, "RUB", date("2024-02-01"), manualSrc)
	require.NoError(t, err)

	obs, err := svc.SelectPrice(ctx, "m1", datePtr("2024-03-01"), nil)
	require.NoError(t, err)
	require.Equal(t, SourceTypeWebsite, obs.SourceType)
	require.Equal(t, 75.0, obs.Price)
}

func TestSelectPriceUnknownTypeRanksLast(t *testing.T) {
	repo := newMemoryPriceRepo()
	svc := NewService(repo, &memoryCustomers{}, nil)
	ctx := context.Background()

	oddSrc, err := svc.CreateSource(ctx, SourceInput{Type: SourceType("estimate"), Name: "Estimate", DocDate: date("2024-03-01")})
	require.NoError(t, err)
	manualSrc, err := svc.CreateSource(ctx, SourceInput{Type: SourceTypeManual, Name: "Manual entry", DocDate: date("2024-01-01")})
	require.NoError(t, err)

	_, err = svc.AppendPrice(ctx, "m1", 50, "RUB", date("2024-03-01"), oddSrc)
	require.NoError(t, err)
	_, err = svc.AppendPrice(ctx, "m1", 60, "RUB", date("2024-01-01"), manualSrc)
	require.NoError(t, err)

	obs, err := svc.SelectPrice(ctx, "m1", datePtr("2024-03-15"), nil)
	require.NoError(t, err)
	require.Equal(t, SourceTypeManual, obs.SourceType)

	// But an explicit preference promotes the unknown type to rank one.
	customers := &memoryCustomers{preferences: map[int64]string{5: "estimate"}}
	svcPref := NewService(repo, customers, nil)
	obs, err = svcPref.SelectPrice(ctx, "m1", datePtr("2024-03-15"), ptr(5))
	require.NoError(t, err)
	require.Equal(t, SourceType("estimate"), obs.SourceType)
}

func TestInvalidatedPriceNotSelectable(t *testing.T) {
	repo := newMemoryPriceRepo()
	svc := NewService(repo, &memoryCustomers{}, nil)
	ctx := context.Background()

	src, err := svc.CreateSource(ctx, SourceInput{Type: SourceTypeInvoice, Name: "Invoice batch", DocDate: date("2024-01-01")})
	require.NoError(t, err)
	priceID, err := svc.AppendPrice(ctx, "m1", 100, "RUB", date("2024-01-01"), src)
	require.NoError(t, err)

	require.NoError(t, svc.InvalidatePrice(ctx, priceID))

	_, err = svc.SelectPrice(ctx, "m1", datePtr("2024-02-01"), nil)
	require.ErrorIs(t, err, ErrNoPrice)
}

func TestGetOrCreateSourceReuses(t *testing.T) {
	repo := newMemoryPriceRepo()
	svc := NewService(repo, &memoryCustomers{}, nil)
	ctx := context.Background()

	first, err := svc.GetOrCreateSource(ctx, "manual", "Migration", date("2024-01-01"))
	require.NoError(t, err)
	second, err := svc.GetOrCreateSource(ctx, "manual", "Migration", date("2024-02-01"))
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Len(t, repo.sources, 1)
}
