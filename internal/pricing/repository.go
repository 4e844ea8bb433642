package pricing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository describes price store operations.
type Repository interface {
	CreateSource(ctx context.Context, source PriceSource) (int64, error)
	FindSourceByTypeName(ctx context.Context, sourceType SourceType, name string) (int64, error)
	AppendPrice(ctx context.Context, price MaterialPrice) (int64, error)
	ListActivePrices(ctx context.Context, materialID string, maxDate time.Time) ([]Observation, error)
	InvalidatePrice(ctx context.Context, priceID int64) error
}

// ErrSourceNotFound reports a missing price source during get-or-create.
var ErrSourceNotFound = errors.New("pricing: source not found")

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the Postgres-backed price repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) CreateSource(ctx context.Context, source PriceSource) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO price_sources (type, name, customer_id, vendor_id, doc_date, meta)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		string(source.Type), source.Name, source.CustomerID, source.VendorID, source.DocDate, source.Meta).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("pricing: create source: %w", err)
	}
	return id, nil
}

func (r *repository) FindSourceByTypeName(ctx context.Context, sourceType SourceType, name string) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `
		SELECT id FROM price_sources WHERE type = $1 AND name = $2 ORDER BY id LIMIT 1`,
		string(sourceType), name).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrSourceNotFound
	}
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (r *repository) AppendPrice(ctx context.Context, price MaterialPrice) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO material_prices (material_id, price, currency, price_date, source_id, is_active)
		VALUES ($1, $2, $3, $4, $5, TRUE) RETURNING id`,
		price.MaterialID, price.Price, price.Currency, price.PriceDate, price.SourceID).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("pricing: append price: %w", err)
	}
	return id, nil
}

// ListActivePrices returns every active observation dated at or before
// maxDate, joined with its source. Ordering is applied by the selector.
func (r *repository) ListActivePrices(ctx context.Context, materialID string, maxDate time.Time) ([]Observation, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT mp.id, mp.material_id, mp.price, mp.currency, mp.price_date, mp.source_id, mp.is_active, mp.created_at,
		       ps.type, ps.name, ps.customer_id
		FROM material_prices mp
		JOIN price_sources ps ON mp.source_id = ps.id
		WHERE mp.material_id = $1 AND mp.price_date <= $2 AND mp.is_active = TRUE`,
		materialID, maxDate)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var observations []Observation
	for rows.Next() {
		var o Observation
		var sourceType string
		if err := rows.Scan(&o.ID, &o.MaterialID, &o.Price, &o.Currency, &o.PriceDate, &o.SourceID, &o.IsActive, &o.CreatedAt,
			&sourceType, &o.SourceName, &o.SourceCustomerID); err != nil {
			return nil, err
		}
		o.SourceType = SourceType(sourceType)
		observations = append(observations, o)
	}
	return observations, rows.Err()
}

func (r *repository) InvalidatePrice(ctx context.Context, priceID int64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE material_prices SET is_active = FALSE WHERE id = $1`, priceID)
	if err != nil {
		return fmt.Errorf("pricing: invalidate price: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNoPrice
	}
	return nil
}
