package importer

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists import sessions and their unmatched rows.
type Repository interface {
	CreateSession(ctx context.Context, sourceFile string, customerID, vendorID *int64) (int64, error)
	GetSession(ctx context.Context, id int64) (ImportSession, error)
	FinishSession(ctx context.Context, id int64, status SessionStatus, processed, errorRows int) error
	AddUnmatched(ctx context.Context, u UnmatchedImport) (int64, error)
	GetUnmatched(ctx context.Context, id int64) (UnmatchedImport, error)
	ListUnmatched(ctx context.Context, sessionID int64, status ResolutionStatus) ([]UnmatchedImport, error)
	SetResolution(ctx context.Context, id int64, status ResolutionStatus, materialID *string) error
}

type pgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository builds the postgres-backed import store.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &pgRepository{pool: pool}
}

func (r *pgRepository) CreateSession(ctx context.Context, sourceFile string, customerID, vendorID *int64) (int64, error) {
	const q = `
		INSERT INTO import_sessions (source_file, customer_id, vendor_id, status)
		VALUES ($1, $2, $3, 'pending')
		RETURNING id`
	var id int64
	if err := r.pool.QueryRow(ctx, q, sourceFile, customerID, vendorID).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

func (r *pgRepository) GetSession(ctx context.Context, id int64) (ImportSession, error) {
	const q = `
		SELECT id, source_file, customer_id, vendor_id, status, processed_rows, error_rows, created_at
		FROM import_sessions
		WHERE id = $1`
	var s ImportSession
	err := r.pool.QueryRow(ctx, q, id).Scan(
		&s.ID, &s.SourceFile, &s.CustomerID, &s.VendorID, &s.Status,
		&s.ProcessedRows, &s.ErrorRows, &s.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return ImportSession{}, ErrNotFound
	}
	if err != nil {
		return ImportSession{}, err
	}
	return s, nil
}

func (r *pgRepository) FinishSession(ctx context.Context, id int64, status SessionStatus, processed, errorRows int) error {
	const q = `
		UPDATE import_sessions
		SET status = $2, processed_rows = $3, error_rows = $4
		WHERE id = $1`
	tag, err := r.pool.Exec(ctx, q, id, status, processed, errorRows)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *pgRepository) AddUnmatched(ctx context.Context, u UnmatchedImport) (int64, error) {
	const q = `
		INSERT INTO unmatched_imports
			(session_id, raw_name, raw_price, raw_unit, raw_article, suggested_material_id, resolution_status)
		VALUES ($1, $2, $3, $4, $5, $6, 'pending')
		RETURNING id`
	var id int64
	err := r.pool.QueryRow(ctx, q,
		u.SessionID, u.RawName, u.RawPrice, u.RawUnit, u.RawArticle, u.SuggestedMaterialID,
	).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

const unmatchedColumns = `
	id, session_id, raw_name, raw_price, raw_unit, raw_article,
	suggested_material_id, resolution_status, resolved_material_id, created_at`

func scanUnmatched(row pgx.Row) (UnmatchedImport, error) {
	var u UnmatchedImport
	err := row.Scan(
		&u.ID, &u.SessionID, &u.RawName, &u.RawPrice, &u.RawUnit, &u.RawArticle,
		&u.SuggestedMaterialID, &u.Status, &u.ResolvedMaterialID, &u.CreatedAt,
	)
	return u, err
}

func (r *pgRepository) GetUnmatched(ctx context.Context, id int64) (UnmatchedImport, error) {
	q := `SELECT ` + unmatchedColumns + ` FROM unmatched_imports WHERE id = $1`
	u, err := scanUnmatched(r.pool.QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return UnmatchedImport{}, ErrNotFound
	}
	if err != nil {
		return UnmatchedImport{}, err
	}
	return u, nil
}

func (r *pgRepository) ListUnmatched(ctx context.Context, sessionID int64, status ResolutionStatus) ([]UnmatchedImport, error) {
	q := `SELECT ` + unmatchedColumns + ` FROM unmatched_imports WHERE resolution_status = $1`
	args := []any{status}
	if sessionID > 0 {
		q += ` AND session_id = $2`
		args = append(args, sessionID)
	}
	q += ` ORDER BY id`
	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []UnmatchedImport
	for rows.Next() {
		u, err := scanUnmatched(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (r *pgRepository) SetResolution(ctx context.Context, id int64, status ResolutionStatus, materialID *string) error {
	const q = `
		UPDATE unmatched_imports
		SET resolution_status = $2, resolved_material_id = $3
		WHERE id = $1 AND resolution_status = 'pending'`
	tag, err := r.pool.Exec(ctx, q, id, status, materialID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyResolved
	}
	return nil
}
