package apikey

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const apiKeyColumns = `id, key_hash, tier, user_id, scopes, rate_limit_override, last_used_at, created_at`

// Store provides database operations for API keys.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// CreateParams holds parameters for creating an API key.
type CreateParams struct {
	KeyHash string
	Tier    string
	UserID  *uuid.UUID
	Scopes  []string
}

func scanRow(row pgx.Row) (Row, error) {
	var r Row
	err := row.Scan(&r.ID, &r.KeyHash, &r.Tier, &r.UserID, &r.Scopes, &r.RateLimitOverride, &r.LastUsedAt, &r.CreatedAt)
	return r, err
}

func scanRows(rows pgx.Rows) ([]Row, error) {
	defer rows.Close()
	var items []Row
	for rows.Next() {
		r, err := scanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning api key row: %w", err)
		}
		items = append(items, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating api key rows: %w", err)
	}
	return items, nil
}

// List returns every API key, newest first.
func (s *Store) List(ctx context.Context) ([]Row, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+apiKeyColumns+` FROM api_keys ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing api keys: %w", err)
	}
	return scanRows(rows)
}

// Create inserts a new API key row and returns it.
func (s *Store) Create(ctx context.Context, p CreateParams) (Row, error) {
	query := `INSERT INTO api_keys (key_hash, tier, user_id, scopes)
		VALUES ($1, $2, $3, $4)
		RETURNING ` + apiKeyColumns

	row := s.pool.QueryRow(ctx, query, p.KeyHash, p.Tier, p.UserID, p.Scopes)
	return scanRow(row)
}

// ExistsByHash reports whether any key with this hash already exists, used to
// decide whether the bootstrap admin key still needs to be minted.
func (s *Store) ExistsByHash(ctx context.Context, hash string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM api_keys WHERE key_hash = $1)`, hash).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking api key existence: %w", err)
	}
	return exists, nil
}

// Delete permanently removes an API key by ID.
func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM api_keys WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
