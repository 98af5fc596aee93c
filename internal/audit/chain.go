package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// VerifyResult summarises the outcome of a chain walk.
type VerifyResult struct {
	Valid            bool       `json:"valid"`
	TotalEntries     int        `json:"total_entries"`
	CheckedEntries   int        `json:"checked_entries"`
	UnchainedEntries int        `json:"unchained_entries"`
	BrokenAt         *uuid.UUID `json:"broken_at,omitempty"`
}

type chainRow struct {
	ID        uuid.UUID
	Timestamp time.Time
	PrevHash  *string
}

// VerifyChain walks every row in (timestamp, id) ascending order and confirms
// each row's prev_hash matches the hash of the row chained immediately before
// it. Legacy rows with prev_hash=NULL are skipped and counted separately.
func VerifyChain(ctx context.Context, pool *pgxpool.Pool) (VerifyResult, error) {
	return verify(ctx, pool, "SELECT id, timestamp, prev_hash FROM credential_audit_log ORDER BY timestamp ASC, id ASC")
}

// VerifyUserChain is the same walk scoped to a single user's own rows.
func VerifyUserChain(ctx context.Context, pool *pgxpool.Pool, userID string) (VerifyResult, error) {
	return verify(ctx, pool,
		"SELECT id, timestamp, prev_hash FROM credential_audit_log WHERE user_id = $1 ORDER BY timestamp ASC, id ASC",
		userID,
	)
}

func verify(ctx context.Context, pool *pgxpool.Pool, query string, args ...any) (VerifyResult, error) {
	rows, err := pool.Query(ctx, query, args...)
	if err != nil {
		return VerifyResult{}, fmt.Errorf("querying audit chain: %w", err)
	}
	defer rows.Close()

	var chain []chainRow
	for rows.Next() {
		var c chainRow
		if err := rows.Scan(&c.ID, &c.Timestamp, &c.PrevHash); err != nil {
			return VerifyResult{}, fmt.Errorf("scanning audit row: %w", err)
		}
		chain = append(chain, c)
	}
	if err := rows.Err(); err != nil {
		return VerifyResult{}, fmt.Errorf("iterating audit rows: %w", err)
	}

	result := VerifyResult{Valid: true, TotalEntries: len(chain)}

	var prior *chainRow
	for i := range chain {
		row := chain[i]
		if row.PrevHash == nil {
			result.UnchainedEntries++
			prior = &row
			continue
		}

		var expected string
		if prior == nil {
			sum := sha256.Sum256([]byte("genesis"))
			expected = hex.EncodeToString(sum[:])
		} else {
			expected = chainHash(prior.ID, prior.Timestamp)
		}

		result.CheckedEntries++
		if *row.PrevHash != expected {
			result.Valid = false
			id := row.ID
			result.BrokenAt = &id
			return result, nil
		}

		prior = &row
	}

	return result, nil
}
