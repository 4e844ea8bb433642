package pricing

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"
)

// CustomerPort exposes the customer preference lookup the selector needs.
type CustomerPort interface {
	GetCustomerPreferredSourceType(ctx context.Context, customerID int64) (string, error)
}

// Service selects authoritative prices and records new observations.
type Service struct {
	repo      Repository
	customers CustomerPort
	cache     *Cache
}

// NewService builds the pricing service. cache may be nil.
func NewService(repo Repository, customers CustomerPort, cache *Cache) *Service {
	return &Service{repo: repo, customers: customers, cache: cache}
}

// SelectPrice returns the single authoritative observation for a material as
// of the given date.
//
// Candidates are the active observations dated at or before asOf. They are
// ordered by source-type rank first (the customer's preferred type, then
// invoice, website, manual, anything else) and by price date descending
// within a rank: an explicitly preferred source always beats recency, and
// freshness only breaks ties inside one source type. asOf defaults to now;
// an unknown material yields ErrNoPrice, an unknown customer silently falls
// back to the invoice preference.
func (s *Service) SelectPrice(ctx context.Context, materialID string, asOf *time.Time, customerID *int64) (Observation, error) {
	at := time.Now()
	if asOf != nil {
		at = *asOf
	}

	preferred := DefaultSourceType
	if customerID != nil && s.customers != nil {
		recorded, err := s.customers.GetCustomerPreferredSourceType(ctx, *customerID)
		if err != nil {
			return Observation{}, fmt.Errorf("pricing: customer preference: %w", err)
		}
		if recorded != "" {
			preferred = SourceType(recorded)
		}
	}

	if s.cache == nil {
		return s.selectUncached(ctx, materialID, at, preferred)
	}

	key, err := s.cache.BuildKey(ctx, "pricing", "select", materialID, at.Format("2006-01-02"), string(preferred))
	if err != nil {
		return s.selectUncached(ctx, materialID, at, preferred)
	}
	var cached selection
	err = s.cache.FetchJSON(ctx, key, &cached, func(ctx context.Context) (interface{}, error) {
		obs, err := s.selectUncached(ctx, materialID, at, preferred)
		if err == ErrNoPrice {
			return selection{Missing: true}, nil
		}
		if err != nil {
			return nil, err
		}
		return selection{Observation: obs}, nil
	})
	if err != nil {
		return Observation{}, err
	}
	if cached.Missing {
		return Observation{}, ErrNoPrice
	}
	return cached.Observation, nil
}

// selection is the cache envelope; a negative result is cached too so a
// missing price does not hammer the store.
type selection struct {
	Observation Observation
	Missing     bool
}

func (s *Service) selectUncached(ctx context.Context, materialID string, asOf time.Time, preferred SourceType) (Observation, error) {
	candidates, err := s.repo.ListActivePrices(ctx, materialID, asOf)
	if err != nil {
		return Observation{}, err
	}
	if len(candidates) == 0 {
		return Observation{}, ErrNoPrice
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		ri, rj := sourceRank(candidates[i].SourceType, preferred), sourceRank(candidates[j].SourceType, preferred)
		if ri != rj {
			return ri < rj
		}
		return candidates[i].PriceDate.After(candidates[j].PriceDate)
	})
	return candidates[0], nil
}

// SourceInput describes a new price source.
type SourceInput struct {
	Type       SourceType
	Name       string
	CustomerID *int64
	VendorID   *int64
	DocDate    time.Time
	Meta       string
}

// CreateSource registers the provenance record for a batch of observations.
func (s *Service) CreateSource(ctx context.Context, input SourceInput) (int64, error) {
	if input.Type == "" || input.Name == "" {
		return 0, fmt.Errorf("pricing: source type and name are required")
	}
	docDate := input.DocDate
	if docDate.IsZero() {
		docDate = time.Now()
	}
	return s.repo.CreateSource(ctx, PriceSource{
		Type:       input.Type,
		Name:       input.Name,
		CustomerID: input.CustomerID,
		VendorID:   input.VendorID,
		DocDate:    docDate,
		Meta:       input.Meta,
	})
}

// GetOrCreateSource reuses an existing source with the same type and name,
// creating one when absent. Used by catalog migration.
func (s *Service) GetOrCreateSource(ctx context.Context, sourceType, name string, docDate time.Time) (int64, error) {
	id, err := s.repo.FindSourceByTypeName(ctx, SourceType(sourceType), name)
	if err == nil {
		return id, nil
	}
	if err != ErrSourceNotFound {
		return 0, err
	}
	return s.CreateSource(ctx, SourceInput{Type: SourceType(sourceType), Name: name, DocDate: docDate})
}

// AppendPrice records a new observation and invalidates cached selections.
// Observations are never overwritten; history only grows.
func (s *Service) AppendPrice(ctx context.Context, materialID string, price float64, currency string, priceDate time.Time, sourceID int64) (int64, error) {
	if materialID == "" {
		return 0, fmt.Errorf("pricing: material id is required")
	}
	if currency == "" {
		currency = "RUB"
	}
	id, err := s.repo.AppendPrice(ctx, MaterialPrice{
		MaterialID: materialID,
		Price:      price,
		Currency:   currency,
		PriceDate:  priceDate,
		SourceID:   sourceID,
	})
	if err != nil {
		return 0, err
	}
	if cacheErr := s.cache.Bump(ctx); cacheErr != nil {
		return id, fmt.Errorf("pricing: bump cache: %w", cacheErr)
	}
	return id, nil
}

// InvalidatePrice soft-deletes one observation.
func (s *Service) InvalidatePrice(ctx context.Context, priceID int64) error {
	if err := s.repo.InvalidatePrice(ctx, priceID); err != nil {
		return err
	}
	return s.cache.Bump(ctx)
}

// FormatCustomerKey renders a customer pointer for cache keys and logs.
func FormatCustomerKey(customerID *int64) string {
	if customerID == nil {
		return "-"
	}
	return strconv.FormatInt(*customerID, 10)
}
