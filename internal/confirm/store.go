package confirm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store provides the confirmation_tokens table's insert/lookup/consume/sweep
// operations.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Insert(ctx context.Context, t Token) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO confirmation_tokens (token, business_id, request_hash, summary, created_at_ms, expires_at_ms)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		t.Token, t.BusinessID, t.RequestHash, t.Summary, t.CreatedAtMs, t.ExpiresAtMs)
	if err != nil {
		return fmt.Errorf("inserting confirmation token: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, token string) (*Token, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT token, business_id, request_hash, summary, created_at_ms, expires_at_ms
		 FROM confirmation_tokens WHERE token = $1`, token)
	var t Token
	if err := row.Scan(&t.Token, &t.BusinessID, &t.RequestHash, &t.Summary, &t.CreatedAtMs, &t.ExpiresAtMs); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("loading confirmation token: %w", err)
	}
	return &t, nil
}

// Consume deletes a token by primary key, returning false if it was already
// gone. A concurrent second consume racing this one necessarily loses: the
// DELETE affects zero rows and the caller fails closed.
func (s *Store) Consume(ctx context.Context, token string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM confirmation_tokens WHERE token = $1`, token)
	if err != nil {
		return false, fmt.Errorf("consuming confirmation token: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// SweepExpired opportunistically deletes every token past its expiry,
// called from both prepare and execute paths rather than only from a
// background sweeper.
func (s *Store) SweepExpired(ctx context.Context, nowMs int64) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM confirmation_tokens WHERE expires_at_ms < $1`, nowMs)
	if err != nil {
		return 0, fmt.Errorf("sweeping expired confirmation tokens: %w", err)
	}
	return tag.RowsAffected(), nil
}

func nowMs() int64 {
	return time.Now().UnixMilli()
}
