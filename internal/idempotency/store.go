package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store provides the idempotency_cache table's lookup, first-writer-wins
// insert, and TTL-based cleanup.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Get returns the cached entry for (principalID, clientKey), or nil if absent.
func (s *Store) Get(ctx context.Context, principalID, clientKey string) (*Entry, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT key, principal_id, status, headers, body, created_at
		 FROM idempotency_cache WHERE key = $1`,
		cacheKey(principalID, clientKey))
	return scanEntry(row)
}

func scanEntry(row pgx.Row) (*Entry, error) {
	var e Entry
	var headersJSON []byte
	if err := row.Scan(&e.Key, &e.PrincipalID, &e.Status, &headersJSON, &e.Body, &e.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scanning idempotency entry: %w", err)
	}
	if len(headersJSON) > 0 {
		_ = json.Unmarshal(headersJSON, &e.Headers)
	}
	return &e, nil
}

// Insert records a successful response. ON CONFLICT DO NOTHING makes this
// safe under concurrent retries racing to cache the same key: whichever
// writer lands first wins, and the rest silently no-op since a Get
// immediately after will already see the winner's response.
func (s *Store) Insert(ctx context.Context, principalID, clientKey string, status int, headers map[string][]string, body []byte) error {
	headersJSON, err := json.Marshal(headers)
	if err != nil {
		return fmt.Errorf("encoding idempotency headers: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO idempotency_cache (key, principal_id, status, headers, body, created_at)
		 VALUES ($1, $2, $3, $4, $5, now())
		 ON CONFLICT (key) DO NOTHING`,
		cacheKey(principalID, clientKey), principalID, status, headersJSON, body)
	if err != nil {
		return fmt.Errorf("inserting idempotency entry: %w", err)
	}
	return nil
}

// CleanupExpired deletes every entry older than ttl. It is idempotent and
// safe to run concurrently with writers: a row being inserted this instant
// is, by definition, not yet older than ttl.
func (s *Store) CleanupExpired(ctx context.Context, ttl time.Duration) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM idempotency_cache WHERE created_at < $1`,
		time.Now().Add(-ttl))
	if err != nil {
		return 0, fmt.Errorf("cleaning up idempotency cache: %w", err)
	}
	return tag.RowsAffected(), nil
}
