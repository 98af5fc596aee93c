package journal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const txColumns = `id, operation, business_id, owner_key_id, status, input, result, error, created_at, completed_at`

// Store provides the transactions table's CRUD operations.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func scanTx(row pgx.Row) (*Transaction, error) {
	var t Transaction
	if err := row.Scan(&t.ID, &t.Operation, &t.BusinessID, &t.OwnerKeyID, &t.Status,
		&t.Input, &t.Result, &t.Error, &t.CreatedAt, &t.CompletedAt); err != nil {
		return nil, err
	}
	return &t, nil
}

// Begin inserts a pending transaction row and returns it.
func (s *Store) Begin(ctx context.Context, operation, businessID, ownerKeyID string, input any) (*Transaction, error) {
	inputJSON, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("encoding transaction input: %w", err)
	}
	row := s.pool.QueryRow(ctx,
		`INSERT INTO transactions (id, operation, business_id, owner_key_id, status, input, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, now())
		 RETURNING `+txColumns,
		uuid.NewString(), operation, businessID, ownerKeyID, StatusPending, inputJSON)
	return scanTx(row)
}

// Complete records a successful outcome.
func (s *Store) Complete(ctx context.Context, id string, result any) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encoding transaction result: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`UPDATE transactions SET status = $2, result = $3, completed_at = now() WHERE id = $1`,
		id, StatusSuccess, resultJSON)
	return err
}

// Fail records a failed outcome.
func (s *Store) Fail(ctx context.Context, id, errMsg string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE transactions SET status = $2, error = $3, completed_at = now() WHERE id = $1`,
		id, StatusFailed, errMsg)
	return err
}

// Get returns a single transaction, scoped to ownerKeyID: ownership
// isolation means a mismatched owner sees the same result as a missing row.
func (s *Store) Get(ctx context.Context, id, ownerKeyID string) (*Transaction, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+txColumns+` FROM transactions WHERE id = $1 AND owner_key_id = $2`,
		id, ownerKeyID)
	t, err := scanTx(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return t, err
}
