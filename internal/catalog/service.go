package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Service coordinates catalog masterdata operations.
type Service struct {
	repo Repository
}

// NewService builds the catalog service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// CreateMaterialInput describes a new material.
type CreateMaterialInput struct {
	Name            string
	Unit            string
	WorkRate        float64
	Category        string
	DefaultVendorID *int64
}

// CreateMaterial registers a new canonical material with a generated opaque ID.
func (s *Service) CreateMaterial(ctx context.Context, input CreateMaterialInput) (Material, error) {
	if strings.TrimSpace(input.Name) == "" {
		return Material{}, fmt.Errorf("%w: material name is required", ErrValidation)
	}
	if strings.TrimSpace(input.Unit) == "" {
		return Material{}, fmt.Errorf("%w: material unit is required", ErrValidation)
	}
	if input.WorkRate < 0 {
		return Material{}, fmt.Errorf("%w: work rate must be >= 0", ErrValidation)
	}
	m := Material{
		ID:              uuid.NewString(),
		NameCanonical:   input.Name,
		Unit:            input.Unit,
		WorkRate:        input.WorkRate,
		Category:        input.Category,
		Active:          true,
		DefaultVendorID: input.DefaultVendorID,
	}
	if err := s.repo.CreateMaterial(ctx, m); err != nil {
		return Material{}, err
	}
	return m, nil
}

// GetMaterial fetches one material by ID.
func (s *Service) GetMaterial(ctx context.Context, id string) (Material, error) {
	if id == "" {
		return Material{}, fmt.Errorf("%w: material id is required", ErrValidation)
	}
	return s.repo.GetMaterial(ctx, id)
}

// ListMaterials lists catalog materials.
func (s *Service) ListMaterials(ctx context.Context, filter MaterialFilter) ([]Material, error) {
	return s.repo.ListMaterials(ctx, filter)
}

// DeactivateMaterial soft-deletes a material. Materials are never removed.
func (s *Service) DeactivateMaterial(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("%w: material id is required", ErrValidation)
	}
	return s.repo.DeactivateMaterial(ctx, id)
}

// AddAlias registers an alternate name for a material. The alias is stored
// in normalized form, matching what resolution looks up; an operator can
// submit the raw spelling and still get a hit on it later. Duplicate
// aliases are silently suppressed.
func (s *Service) AddAlias(ctx context.Context, materialID, aliasName string, customerID *int64, source AliasSource) error {
	if materialID == "" || strings.TrimSpace(aliasName) == "" {
		return fmt.Errorf("%w: material id and alias name are required", ErrValidation)
	}
	normalized := NormalizeName(aliasName)
	if normalized == "" {
		return fmt.Errorf("%w: alias name has no lookup form", ErrValidation)
	}
	return s.repo.AddAliasIfAbsent(ctx, materialID, normalized, customerID, source)
}

// CreateCustomer registers a customer with a preferred price source type.
func (s *Service) CreateCustomer(ctx context.Context, name, preferredSourceType string) (int64, error) {
	if strings.TrimSpace(name) == "" {
		return 0, fmt.Errorf("%w: customer name is required", ErrValidation)
	}
	if preferredSourceType == "" {
		preferredSourceType = "invoice"
	}
	return s.repo.CreateCustomer(ctx, name, preferredSourceType)
}

// ListCustomers lists all customers.
func (s *Service) ListCustomers(ctx context.Context) ([]Customer, error) {
	return s.repo.ListCustomers(ctx)
}

// CreateVendor registers a vendor. scrapeConfig may be empty or a JSON
// object with the vendor's scraping overrides.
func (s *Service) CreateVendor(ctx context.Context, name, websiteURL, scrapeConfig string) (int64, error) {
	if strings.TrimSpace(name) == "" {
		return 0, fmt.Errorf("%w: vendor name is required", ErrValidation)
	}
	if scrapeConfig != "" && !json.Valid([]byte(scrapeConfig)) {
		return 0, fmt.Errorf("%w: scrape config must be valid JSON", ErrValidation)
	}
	return s.repo.CreateVendor(ctx, name, websiteURL, scrapeConfig)
}

// ListVendors lists all vendors.
func (s *Service) ListVendors(ctx context.Context) ([]Vendor, error) {
	return s.repo.ListVendors(ctx)
}
