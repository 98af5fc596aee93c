package adapter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const rowColumns = `id, platform, owner_id, status, file_path, source_code, source_hash,
	created_at, promoted_at, submitted_at, reviewed_at, archived_at, promoted_by, review_message, review_feedback`

// Store provides the adapters table's CRUD and lifecycle SQL operations.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func scanRow(row pgx.Row) (*Row, error) {
	var r Row
	err := row.Scan(&r.ID, &r.Platform, &r.OwnerID, &r.Status, &r.FilePath, &r.SourceCode, &r.SourceHash,
		&r.CreatedAt, &r.PromotedAt, &r.SubmittedAt, &r.ReviewedAt, &r.ArchivedAt, &r.PromotedBy, &r.ReviewMessage, &r.ReviewFeedback)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func scanRows(rows pgx.Rows) ([]Row, error) {
	defer rows.Close()
	var items []Row
	for rows.Next() {
		r, err := scanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning adapter row: %w", err)
		}
		items = append(items, *r)
	}
	return items, rows.Err()
}

// ListNonArchived returns every adapter row whose status is not archived,
// used by Restore and Sync at startup and on demand.
func (s *Store) ListNonArchived(ctx context.Context) ([]Row, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+rowColumns+` FROM adapters WHERE status != $1 ORDER BY created_at ASC`, StatusArchived)
	if err != nil {
		return nil, fmt.Errorf("listing adapters: %w", err)
	}
	return scanRows(rows)
}

// ListVisible returns adapters visible to the caller: admins see everything;
// non-admins see their own rows in every status plus every public row.
func (s *Store) ListVisible(ctx context.Context, ownerID string, isAdmin bool) ([]Row, error) {
	var rows pgx.Rows
	var err error
	if isAdmin {
		rows, err = s.pool.Query(ctx, `SELECT `+rowColumns+` FROM adapters ORDER BY created_at DESC`)
	} else {
		rows, err = s.pool.Query(ctx,
			`SELECT `+rowColumns+` FROM adapters WHERE status = $1 OR owner_id = $2 ORDER BY created_at DESC`,
			StatusPublic, ownerID)
	}
	if err != nil {
		return nil, fmt.Errorf("listing visible adapters: %w", err)
	}
	return scanRows(rows)
}

// GetByPlatformOwner looks up a row by its (platform, ownerId) unique key.
func (s *Store) GetByPlatformOwner(ctx context.Context, platform, ownerID string) (*Row, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+rowColumns+` FROM adapters WHERE platform = $1 AND owner_id = $2`, platform, ownerID)
	r, err := scanRow(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return r, err
}

// GetPublic returns the single public row for platform, if any.
func (s *Store) GetPublic(ctx context.Context, platform string) (*Row, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+rowColumns+` FROM adapters WHERE platform = $1 AND status = $2`, platform, StatusPublic)
	r, err := scanRow(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return r, err
}

// Insert creates a new sandbox adapter row.
func (s *Store) Insert(ctx context.Context, platform, ownerID, filePath, sourceCode string) (*Row, error) {
	hash := SourceHash(sourceCode)
	row := s.pool.QueryRow(ctx,
		`INSERT INTO adapters (id, platform, owner_id, status, file_path, source_code, source_hash, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		 RETURNING `+rowColumns,
		uuid.NewString(), platform, ownerID, StatusSandbox, filePath, sourceCode, hash,
	)
	return scanRow(row)
}

// InsertWithStatus creates a row directly at the given status (used by the
// bundled-adapter bootstrap to insert system rows at status=public).
func (s *Store) InsertWithStatus(ctx context.Context, platform, ownerID, status, filePath, sourceCode string) (*Row, error) {
	hash := SourceHash(sourceCode)
	row := s.pool.QueryRow(ctx,
		`INSERT INTO adapters (id, platform, owner_id, status, file_path, source_code, source_hash, created_at, promoted_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, now(), CASE WHEN $4 = 'public' THEN now() ELSE NULL END)
		 RETURNING `+rowColumns,
		uuid.NewString(), platform, ownerID, status, filePath, sourceCode, hash,
	)
	return scanRow(row)
}

// UpdateSource overwrites source code/hash/path for a row (used when a
// bundled adapter's bundled copy is a strictly newer version).
func (s *Store) UpdateSource(ctx context.Context, id, filePath, sourceCode string) error {
	hash := SourceHash(sourceCode)
	_, err := s.pool.Exec(ctx,
		`UPDATE adapters SET file_path = $2, source_code = $3, source_hash = $4 WHERE id = $1`,
		id, filePath, sourceCode, hash)
	return err
}

// SetStatus transitions a row's status. Only the non-nil pointer fields
// (file path, promoted_by, review message/feedback) are updated, and
// stampColumn, when non-empty, names a timestamp column set to now().
func (s *Store) SetStatus(ctx context.Context, id, status string, filePath *string, promotedBy, reviewMessage, reviewFeedback *string, stampColumn string) error {
	query := `UPDATE adapters SET status = $2`
	args := []any{id, status}
	n := 2

	if filePath != nil {
		n++
		query += fmt.Sprintf(", file_path = $%d", n)
		args = append(args, *filePath)
	}
	if promotedBy != nil {
		n++
		query += fmt.Sprintf(", promoted_by = $%d", n)
		args = append(args, *promotedBy)
	}
	if reviewMessage != nil {
		n++
		query += fmt.Sprintf(", review_message = $%d", n)
		args = append(args, *reviewMessage)
	}
	if reviewFeedback != nil {
		n++
		query += fmt.Sprintf(", review_feedback = $%d", n)
		args = append(args, *reviewFeedback)
	}
	if stampColumn != "" {
		query += fmt.Sprintf(", %s = now()", stampColumn)
	}
	query += " WHERE id = $1"

	_, err := s.pool.Exec(ctx, query, args...)
	return err
}

// Delete hard-deletes a row (DELETE /adapters/:platform/hard).
func (s *Store) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM adapters WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting adapter: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// WithTx runs fn inside a transaction, used by the promote path to both
// demote the previous public row and promote the new one atomically.
func (s *Store) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// now is a small indirection kept for symmetry with other packages that
// inject a Clock; adapters' timestamps are all DB-assigned via now().
var now = func() time.Time { return time.Now() }
