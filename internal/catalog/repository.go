package catalog

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository describes catalog store operations.
type Repository interface {
	CreateMaterial(ctx context.Context, m Material) error
	GetMaterial(ctx context.Context, id string) (Material, error)
	GetMaterialByNameUnit(ctx context.Context, name, unit string) (Material, error)
	ListMaterials(ctx context.Context, filter MaterialFilter) ([]Material, error)
	ListMaterialsByVendor(ctx context.Context, vendorID int64) ([]Material, error)
	DeactivateMaterial(ctx context.Context, id string) error
	UpsertMaterial(ctx context.Context, m Material) error

	FindByAlias(ctx context.Context, aliasName string, customerID *int64) ([]AliasMatch, error)
	AddAliasIfAbsent(ctx context.Context, materialID, aliasName string, customerID *int64, source AliasSource) error

	CreateCustomer(ctx context.Context, name, preferredSourceType string) (int64, error)
	ListCustomers(ctx context.Context) ([]Customer, error)
	GetCustomerPreferredSourceType(ctx context.Context, customerID int64) (string, error)

	CreateVendor(ctx context.Context, name, websiteURL, scrapeConfig string) (int64, error)
	ListVendors(ctx context.Context) ([]Vendor, error)
	GetVendor(ctx context.Context, id int64) (Vendor, error)
}

// MaterialFilter narrows material listings.
type MaterialFilter struct {
	Search     string
	ActiveOnly bool
	Limit      int
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the Postgres-backed catalog repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const materialColumns = `id, name_canonical, unit, work_rate, category, active, default_vendor_id, created_at`

func scanMaterial(row pgx.Row) (Material, error) {
	var m Material
	err := row.Scan(&m.ID, &m.NameCanonical, &m.Unit, &m.WorkRate, &m.Category, &m.Active, &m.DefaultVendorID, &m.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Material{}, ErrNotFound
	}
	return m, err
}

func (r *repository) CreateMaterial(ctx context.Context, m Material) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO materials (id, name_canonical, unit, work_rate, category, active, default_vendor_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		m.ID, m.NameCanonical, m.Unit, m.WorkRate, m.Category, m.Active, m.DefaultVendorID)
	if err != nil {
		return fmt.Errorf("catalog: create material: %w", err)
	}
	return nil
}

// UpsertMaterial replaces an existing material row on ID conflict. Used by
// catalog migration only; regular creation never overwrites.
func (r *repository) UpsertMaterial(ctx context.Context, m Material) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO materials (id, name_canonical, unit, work_rate, category, active, default_vendor_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			name_canonical = EXCLUDED.name_canonical,
			unit = EXCLUDED.unit,
			work_rate = EXCLUDED.work_rate,
			category = EXCLUDED.category,
			active = EXCLUDED.active,
			default_vendor_id = EXCLUDED.default_vendor_id`,
		m.ID, m.NameCanonical, m.Unit, m.WorkRate, m.Category, m.Active, m.DefaultVendorID)
	if err != nil {
		return fmt.Errorf("catalog: upsert material: %w", err)
	}
	return nil
}

func (r *repository) GetMaterial(ctx context.Context, id string) (Material, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+materialColumns+` FROM materials WHERE id = $1`, id)
	return scanMaterial(row)
}

func (r *repository) GetMaterialByNameUnit(ctx context.Context, name, unit string) (Material, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+materialColumns+`
		FROM materials
		WHERE name_canonical = $1 AND unit = $2 AND active = TRUE`,
		name, unit)
	return scanMaterial(row)
}

func (r *repository) ListMaterials(ctx context.Context, filter MaterialFilter) ([]Material, error) {
	query := `SELECT ` + materialColumns + ` FROM materials WHERE 1=1`
	args := []interface{}{}
	argCount := 0

	if filter.Search != "" {
		argCount++
		query += ` AND name_canonical ILIKE $` + strconv.Itoa(argCount)
		args = append(args, "%"+filter.Search+"%")
	}
	if filter.ActiveOnly {
		query += ` AND active = TRUE`
	}
	query += ` ORDER BY name_canonical, unit`
	if filter.Limit > 0 {
		argCount++
		query += ` LIMIT $` + strconv.Itoa(argCount)
		args = append(args, filter.Limit)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var materials []Material
	for rows.Next() {
		var m Material
		if err := rows.Scan(&m.ID, &m.NameCanonical, &m.Unit, &m.WorkRate, &m.Category, &m.Active, &m.DefaultVendorID, &m.CreatedAt); err != nil {
			return nil, err
		}
		materials = append(materials, m)
	}
	return materials, rows.Err()
}

func (r *repository) ListMaterialsByVendor(ctx context.Context, vendorID int64) ([]Material, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+materialColumns+`
		FROM materials
		WHERE default_vendor_id = $1 AND active = TRUE
		ORDER BY name_canonical, unit`,
		vendorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var materials []Material
	for rows.Next() {
		var m Material
		if err := rows.Scan(&m.ID, &m.NameCanonical, &m.Unit, &m.WorkRate, &m.Category, &m.Active, &m.DefaultVendorID, &m.CreatedAt); err != nil {
			return nil, err
		}
		materials = append(materials, m)
	}
	return materials, rows.Err()
}

func (r *repository) DeactivateMaterial(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE materials SET active = FALSE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("catalog: deactivate material: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// FindByAlias returns alias matches for active materials, restricted to
// globally scoped aliases plus those scoped to the given customer. Order by
// alias id keeps the first-match behaviour deterministic.
func (r *repository) FindByAlias(ctx context.Context, aliasName string, customerID *int64) ([]AliasMatch, error) {
	var rows pgx.Rows
	var err error
	if customerID != nil {
		rows, err = r.pool.Query(ctx, `
			SELECT m.id, m.name_canonical, m.unit, m.work_rate, m.category, m.active, m.default_vendor_id, m.created_at, ma.alias_name
			FROM materials m
			JOIN material_aliases ma ON m.id = ma.material_id
			WHERE ma.alias_name = $1 AND (ma.customer_id = $2 OR ma.customer_id IS NULL)
			AND m.active = TRUE
			ORDER BY ma.id`,
			aliasName, *customerID)
	} else {
		rows, err = r.pool.Query(ctx, `
			SELECT m.id, m.name_canonical, m.unit, m.work_rate, m.category, m.active, m.default_vendor_id, m.created_at, ma.alias_name
			FROM materials m
			JOIN material_aliases ma ON m.id = ma.material_id
			WHERE ma.alias_name = $1 AND m.active = TRUE
			ORDER BY ma.id`,
			aliasName)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var matches []AliasMatch
	for rows.Next() {
		var match AliasMatch
		if err := rows.Scan(&match.ID, &match.NameCanonical, &match.Unit, &match.WorkRate, &match.Category, &match.Active, &match.DefaultVendorID, &match.CreatedAt, &match.AliasName); err != nil {
			return nil, err
		}
		matches = append(matches, match)
	}
	return matches, rows.Err()
}

// AddAliasIfAbsent inserts an alias, suppressing duplicates via the unique
// index rather than a read-then-write race.
func (r *repository) AddAliasIfAbsent(ctx context.Context, materialID, aliasName string, customerID *int64, source AliasSource) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO material_aliases (material_id, alias_name, customer_id, source)
		VALUES ($1, $2, $3, $4)`,
		materialID, aliasName, customerID, string(source))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil
		}
		return fmt.Errorf("catalog: add alias: %w", err)
	}
	return nil
}

func (r *repository) CreateCustomer(ctx context.Context, name, preferredSourceType string) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO customers (name, preferred_price_source_type)
		VALUES ($1, $2) RETURNING id`,
		name, preferredSourceType).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("catalog: create customer: %w", err)
	}
	return id, nil
}

func (r *repository) ListCustomers(ctx context.Context) ([]Customer, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, preferred_price_source_type, created_at
		FROM customers ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var customers []Customer
	for rows.Next() {
		var c Customer
		if err := rows.Scan(&c.ID, &c.Name, &c.PreferredSourceType, &c.CreatedAt); err != nil {
			return nil, err
		}
		customers = append(customers, c)
	}
	return customers, rows.Err()
}

// GetCustomerPreferredSourceType returns an empty string for unknown
// customers; the caller falls back to its default preference.
func (r *repository) GetCustomerPreferredSourceType(ctx context.Context, customerID int64) (string, error) {
	var preferred string
	err := r.pool.QueryRow(ctx, `
		SELECT preferred_price_source_type FROM customers WHERE id = $1`,
		customerID).Scan(&preferred)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return preferred, nil
}

func (r *repository) CreateVendor(ctx context.Context, name, websiteURL, scrapeConfig string) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO vendors (name, website_url, scrape_config)
		VALUES ($1, $2, NULLIF($3, '')::jsonb) RETURNING id`,
		name, websiteURL, scrapeConfig).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("catalog: create vendor: %w", err)
	}
	return id, nil
}

func (r *repository) ListVendors(ctx context.Context) ([]Vendor, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, COALESCE(website_url, ''), COALESCE(scrape_config::text, ''), created_at
		FROM vendors ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var vendors []Vendor
	for rows.Next() {
		var v Vendor
		if err := rows.Scan(&v.ID, &v.Name, &v.WebsiteURL, &v.ScrapeConfig, &v.CreatedAt); err != nil {
			return nil, err
		}
		vendors = append(vendors, v)
	}
	return vendors, rows.Err()
}

func (r *repository) GetVendor(ctx context.Context, id int64) (Vendor, error) {
	var v Vendor
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, COALESCE(website_url, ''), COALESCE(scrape_config::text, ''), created_at
		FROM vendors WHERE id = $1`,
		id).Scan(&v.ID, &v.Name, &v.WebsiteURL, &v.ScrapeConfig, &v.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Vendor{}, ErrNotFound
	}
	return v, err
}
