// Package cli holds the command-line helpers behind the smetacat
// subcommands. Each helper parses its own flags and prints plain-text
// results, keeping main thin.
package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/smetacat/smetacat/internal/catalog"
	"github.com/smetacat/smetacat/internal/pricing"
	"github.com/smetacat/smetacat/internal/resolve"
)

// CatalogCLI wraps masterdata management commands.
type CatalogCLI struct {
	repo     catalog.Repository
	service  *catalog.Service
	migrator *catalog.Migrator
}

// NewCatalogCLI initialises the catalog helpers over a database pool.
func NewCatalogCLI(pool *pgxpool.Pool, logger *slog.Logger) *CatalogCLI {
	repo := catalog.NewRepository(pool)
	prices := pricing.NewService(pricing.NewRepository(pool), repo, nil)
	return &CatalogCLI{
		repo:     repo,
		service:  catalog.NewService(repo),
		migrator: catalog.NewMigrator(repo, prices, resolve.Normalize, logger),
	}
}

// AddMaterial registers a canonical material.
func (c *CatalogCLI) AddMaterial(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("add-material", flag.ContinueOnError)
	name := fs.String("name", "", "canonical material name")
	unit := fs.String("unit", "", "unit of measure")
	workRate := fs.Float64("work-rate", 0, "labor cost per unit")
	category := fs.String("category", "", "material category")
	vendorID := fs.Int64("vendor", 0, "default vendor id")
	if err := fs.Parse(args); err != nil {
		return err
	}

	input := catalog.CreateMaterialInput{
		Name:     *name,
		Unit:     *unit,
		WorkRate: *workRate,
		Category: *category,
	}
	if *vendorID > 0 {
		input.DefaultVendorID = vendorID
	}
	material, err := c.service.CreateMaterial(ctx, input)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "material %s created: %s (%s)\n", material.ID, material.NameCanonical, material.Unit)
	return nil
}

// AddCustomer registers a customer.
func (c *CatalogCLI) AddCustomer(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("add-customer", flag.ContinueOnError)
	name := fs.String("name", "", "customer name")
	preferred := fs.String("preferred-source", "", "preferred price source type (invoice, website, manual)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	id, err := c.service.CreateCustomer(ctx, *name, *preferred)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "customer %d created\n", id)
	return nil
}

// AddVendor registers a vendor.
func (c *CatalogCLI) AddVendor(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("add-vendor", flag.ContinueOnError)
	name := fs.String("name", "", "vendor name")
	website := fs.String("website", "", "vendor website url")
	config := fs.String("config", "", "scraping configuration JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	id, err := c.service.CreateVendor(ctx, *name, *website, *config)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "vendor %d created\n", id)
	return nil
}

// ListCustomers prints all customers.
func (c *CatalogCLI) ListCustomers(ctx context.Context, out io.Writer) error {
	customers, err := c.service.ListCustomers(ctx)
	if err != nil {
		return err
	}
	for _, customer := range customers {
		fmt.Fprintf(out, "%d\t%s\tprefers %s\n", customer.ID, customer.Name, customer.PreferredSourceType)
	}
	return nil
}

// ListVendors prints all vendors.
func (c *CatalogCLI) ListVendors(ctx context.Context, out io.Writer) error {
	vendors, err := c.service.ListVendors(ctx)
	if err != nil {
		return err
	}
	for _, vendor := range vendors {
		fmt.Fprintf(out, "%d\t%s\t%s\n", vendor.ID, vendor.Name, vendor.WebsiteURL)
	}
	return nil
}

// MigrateJSON loads a legacy materials_catalog.json export.
func (c *CatalogCLI) MigrateJSON(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("migrate-json", flag.ContinueOnError)
	path := fs.String("file", "materials_catalog.json", "path to the legacy catalog export")
	if err := fs.Parse(args); err != nil {
		return err
	}

	n, err := c.migrator.MigrateFile(ctx, *path)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "migrated %d materials from %s\n", n, *path)
	return nil
}
