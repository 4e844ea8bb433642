package catalog

import (
	"errors"
	"time"
)

// AliasSource records how an alias entered the catalog.
type AliasSource string

const (
	AliasSourceManual    AliasSource = "manual"
	AliasSourceImport    AliasSource = "import"
	AliasSourceMigration AliasSource = "migration"
)

// Material is the canonical record for a physical material + unit combination.
// IDs are opaque tokens so records survive merges and migrations.
type Material struct {
	ID              string
	NameCanonical   string
	Unit            string
	WorkRate        float64
	Category        string
	Active          bool
	DefaultVendorID *int64
	CreatedAt       time.Time
}

// MaterialAlias maps an alternate name to a material, optionally scoped
// to a single customer. Aliases are immutable once created.
type MaterialAlias struct {
	ID         int64
	MaterialID string
	AliasName  string
	CustomerID *int64
	Source     AliasSource
	CreatedAt  time.Time
}

// AliasMatch is the joined projection returned by alias lookups.
type AliasMatch struct {
	Material
	AliasName string
}

// Customer owns customer-scoped aliases and a preferred price source type.
type Customer struct {
	ID                  int64
	Name                string
	PreferredSourceType string
	CreatedAt           time.Time
}

// Vendor is a supplier whose website may be scraped for prices.
type Vendor struct {
	ID         int64
	Name       string
	WebsiteURL string
	// ScrapeConfig holds the vendor's raw scraping configuration JSON,
	// empty when the vendor uses the defaults.
	ScrapeConfig string
	CreatedAt    time.Time
}

// ErrNotFound indicates the requested catalog record does not exist.
var ErrNotFound = errors.New("catalog: not found")

// ErrValidation indicates invalid input for a catalog operation.
var ErrValidation = errors.New("catalog: validation failed")
