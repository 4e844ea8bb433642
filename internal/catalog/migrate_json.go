package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"
)

// PricePort exposes the pricing operations needed by catalog migration.
type PricePort interface {
	GetOrCreateSource(ctx context.Context, sourceType, name string, docDate time.Time) (int64, error)
	AppendPrice(ctx context.Context, materialID string, price float64, currency string, priceDate time.Time, sourceID int64) (int64, error)
}

// Migrator moves a legacy JSON catalog export into the store.
type Migrator struct {
	repo      Repository
	prices    PricePort
	normalize func(string) string
	logger    *slog.Logger
}

// NewMigrator constructs a Migrator. The normalize function must be the same
// one the resolver applies at lookup time so migrated aliases stay matchable.
func NewMigrator(repo Repository, prices PricePort, normalize func(string) string, logger *slog.Logger) *Migrator {
	return &Migrator{repo: repo, prices: prices, normalize: normalize, logger: logger}
}

type legacyPriceEntry struct {
	Price      float64 `json:"price"`
	PriceDate  string  `json:"price_date"`
	SourceType string  `json:"source_type"`
	SourceName string  `json:"source_name"`
}

type legacyMaterial struct {
	ID              string             `json:"id"`
	Name            string             `json:"name"`
	Unit            string             `json:"unit"`
	LaborCost       float64            `json:"labor_cost"`
	Category        string             `json:"category"`
	Active          *bool              `json:"active"`
	DefaultVendorID *int64             `json:"default_vendor_id"`
	PriceHistory    []legacyPriceEntry `json:"price_history"`
	Aliases         []string           `json:"aliases"`
}

// MigrateFile reads a materials_catalog.json export and loads it into the
// store. Materials are replaced on ID conflict, aliases and prices appended.
// A missing file is not an error; there is simply nothing to migrate.
func (m *Migrator) MigrateFile(ctx context.Context, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("catalog: read legacy catalog: %w", err)
	}

	var items []legacyMaterial
	if err := json.Unmarshal(data, &items); err != nil {
		return 0, fmt.Errorf("catalog: parse legacy catalog: %w", err)
	}

	migrated := 0
	for _, item := range items {
		if err := m.migrateItem(ctx, item); err != nil {
			return migrated, err
		}
		migrated++
	}
	return migrated, nil
}

func (m *Migrator) migrateItem(ctx context.Context, item legacyMaterial) error {
	active := true
	if item.Active != nil {
		active = *item.Active
	}
	category := item.Category
	if category == "" {
		category = "Строительные материалы"
	}
	material := Material{
		ID:              item.ID,
		NameCanonical:   item.Name,
		Unit:            item.Unit,
		WorkRate:        item.LaborCost,
		Category:        category,
		Active:          active,
		DefaultVendorID: item.DefaultVendorID,
	}
	if err := m.repo.UpsertMaterial(ctx, material); err != nil {
		return err
	}

	for _, entry := range item.PriceHistory {
		sourceType := entry.SourceType
		if sourceType == "" {
			sourceType = "manual"
		}
		sourceName := entry.SourceName
		if sourceName == "" {
			sourceName = "Migration"
		}
		priceDate, err := time.Parse("2006-01-02", entry.PriceDate)
		if err != nil {
			priceDate = time.Now()
		}
		sourceID, err := m.prices.GetOrCreateSource(ctx, sourceType, sourceName, priceDate)
		if err != nil {
			return err
		}
		if _, err := m.prices.AppendPrice(ctx, item.ID, entry.Price, "RUB", priceDate, sourceID); err != nil {
			return err
		}
	}

	for _, alias := range item.Aliases {
		aliasName := alias
		if m.normalize != nil {
			aliasName = m.normalize(alias)
		}
		if aliasName == "" {
			continue
		}
		if err := m.repo.AddAliasIfAbsent(ctx, item.ID, aliasName, nil, AliasSourceMigration); err != nil {
			return err
		}
	}

	if m.logger != nil {
		m.logger.Debug("migrated material", slog.String("id", item.ID), slog.String("name", item.Name))
	}
	return nil
}
