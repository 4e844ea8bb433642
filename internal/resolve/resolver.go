package resolve

import (
	"context"
	"errors"
	"strings"

	"github.com/smetacat/smetacat/internal/catalog"
)

// ErrNoMatch signals that no catalog material corresponds to the input.
// It is a normal outcome, not a failure.
var ErrNoMatch = errors.New("resolve: no matching material")

// CatalogPort describes the catalog lookups the resolver performs.
type CatalogPort interface {
	GetMaterialByNameUnit(ctx context.Context, name, unit string) (catalog.Material, error)
	FindByAlias(ctx context.Context, aliasName string, customerID *int64) ([]catalog.AliasMatch, error)
}

// Input is one raw material reference from an external document.
type Input struct {
	Name string
	// Unit is compared byte-for-byte against the canonical unit; it is
	// deliberately not normalized.
	Unit string
	// Article is accepted for forward compatibility but is not a matching
	// key yet.
	Article    string
	CustomerID *int64
}

// Resolver maps raw references to canonical materials. It is stateless and
// performs no writes.
type Resolver struct {
	store CatalogPort
}

// NewResolver constructs a Resolver over the given catalog store.
func NewResolver(store CatalogPort) *Resolver {
	return &Resolver{store: store}
}

// Resolve finds the canonical material for a raw reference.
//
// An exact (normalized name, unit) match against an active material wins and
// short-circuits everything else. Otherwise the alias table is consulted,
// customer-scoped plus global entries, and the first row in store order is
// returned; there is no scoring between multiple alias matches.
func (r *Resolver) Resolve(ctx context.Context, input Input) (catalog.Material, error) {
	if strings.TrimSpace(input.Name) == "" {
		return catalog.Material{}, ErrNoMatch
	}

	name := Normalize(input.Name)
	if name == "" {
		return catalog.Material{}, ErrNoMatch
	}

	if input.Unit != "" {
		material, err := r.store.GetMaterialByNameUnit(ctx, name, input.Unit)
		if err == nil {
			return material, nil
		}
		if !errors.Is(err, catalog.ErrNotFound) {
			return catalog.Material{}, err
		}
	}

	matches, err := r.store.FindByAlias(ctx, name, input.CustomerID)
	if err != nil {
		return catalog.Material{}, err
	}
	if len(matches) > 0 {
		return matches[0].Material, nil
	}

	return catalog.Material{}, ErrNoMatch
}
