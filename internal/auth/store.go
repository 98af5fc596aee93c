package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// APIKeyRow is the persisted shape of an api_keys row relevant to authentication.
type APIKeyRow struct {
	ID                uuid.UUID
	KeyHash           string
	Tier              string
	UserID            *uuid.UUID
	Scopes            []string
	RateLimitOverride *int
	CreatedAt         time.Time
	LastUsedAt        *time.Time
}

// SessionRow is the persisted shape of a sessions row.
type SessionRow struct {
	ID           string // SHA-256(token), hex
	UserID       uuid.UUID
	ExpiresAt    time.Time
	CreatedAt    time.Time
	LastActiveAt time.Time
}

// Store resolves authentication lookups against Postgres.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const apiKeyColumns = "id, key_hash, tier, user_id, scopes, rate_limit_override, created_at, last_used_at"

func scanAPIKeyRow(row pgx.Row) (*APIKeyRow, error) {
	var k APIKeyRow
	if err := row.Scan(&k.ID, &k.KeyHash, &k.Tier, &k.UserID, &k.Scopes, &k.RateLimitOverride, &k.CreatedAt, &k.LastUsedAt); err != nil {
		return nil, err
	}
	return &k, nil
}

// GetAPIKeyByHash looks up an API key by its SHA-256 hash.
func (s *Store) GetAPIKeyByHash(ctx context.Context, hash string) (*APIKeyRow, error) {
	row := s.pool.QueryRow(ctx, "SELECT "+apiKeyColumns+" FROM api_keys WHERE key_hash = $1", hash)
	k, err := scanAPIKeyRow(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying api key: %w", err)
	}
	return k, nil
}

// TouchAPIKeyLastUsed stamps last_used_at. Called asynchronously by the
// authenticator; failures are logged by the caller, not returned to the request.
func (s *Store) TouchAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx, "UPDATE api_keys SET last_used_at = now() WHERE id = $1", id)
	return err
}

// CreateSession inserts a new session row keyed by the SHA-256 hash of the token.
func (s *Store) CreateSession(ctx context.Context, hash string, userID uuid.UUID, expiresAt time.Time) (*SessionRow, error) {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO sessions (id, user_id, expires_at, created_at, last_active_at)
		 VALUES ($1, $2, $3, now(), now())
		 RETURNING id, user_id, expires_at, created_at, last_active_at`,
		hash, userID, expiresAt,
	)
	return scanSessionRow(row)
}

// GetSession looks up a session by its hash id. Returns nil, nil if absent or expired.
func (s *Store) GetSession(ctx context.Context, hash string) (*SessionRow, error) {
	row := s.pool.QueryRow(ctx,
		"SELECT id, user_id, expires_at, created_at, last_active_at FROM sessions WHERE id = $1", hash)
	sess, err := scanSessionRow(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying session: %w", err)
	}
	if sess.ExpiresAt.Before(time.Now()) {
		return nil, nil
	}
	return sess, nil
}

// TouchSession updates last_active_at for a validated session.
func (s *Store) TouchSession(ctx context.Context, hash string) error {
	_, err := s.pool.Exec(ctx, "UPDATE sessions SET last_active_at = now() WHERE id = $1", hash)
	return err
}

// DeleteSession removes a session by its hash id.
func (s *Store) DeleteSession(ctx context.Context, hash string) error {
	_, err := s.pool.Exec(ctx, "DELETE FROM sessions WHERE id = $1", hash)
	return err
}

func scanSessionRow(row pgx.Row) (*SessionRow, error) {
	var s SessionRow
	if err := row.Scan(&s.ID, &s.UserID, &s.ExpiresAt, &s.CreatedAt, &s.LastActiveAt); err != nil {
		return nil, err
	}
	return &s, nil
}
