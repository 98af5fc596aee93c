package genjob

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const jobColumns = `id, platform, owner_key_id, status, logs, result, error, created_at, started_at, completed_at`

// Store provides the generation_jobs table's CRUD and claim/append operations.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func scanJob(row pgx.Row) (*Job, error) {
	var j Job
	var logsJSON []byte
	if err := row.Scan(&j.ID, &j.Platform, &j.OwnerKeyID, &j.Status, &logsJSON, &j.Result, &j.Error,
		&j.CreatedAt, &j.StartedAt, &j.CompletedAt); err != nil {
		return nil, err
	}
	if len(logsJSON) > 0 {
		_ = json.Unmarshal(logsJSON, &j.Logs)
	}
	return &j, nil
}

// Insert creates a new queued job for (platform, ownerKeyID).
func (s *Store) Insert(ctx context.Context, platform, ownerKeyID string) (*Job, error) {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO generation_jobs (id, platform, owner_key_id, status, logs, created_at)
		 VALUES ($1, $2, $3, $4, '[]', now())
		 RETURNING `+jobColumns,
		uuid.NewString(), platform, ownerKeyID, StatusQueued)
	return scanJob(row)
}

// ClaimNext atomically selects the oldest queued job and marks it running,
// implementing spec.md §4.1.4's compare-and-swap claim as a single UPDATE …
// RETURNING against the oldest matching row.
func (s *Store) ClaimNext(ctx context.Context) (*Job, error) {
	row := s.pool.QueryRow(ctx,
		`UPDATE generation_jobs SET status = $1, started_at = now()
		 WHERE id = (
		   SELECT id FROM generation_jobs WHERE status = $2 ORDER BY created_at ASC LIMIT 1 FOR UPDATE SKIP LOCKED
		 )
		 RETURNING `+jobColumns,
		StatusRunning, StatusQueued)
	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claiming next job: %w", err)
	}
	return job, nil
}

// AppendLog appends a line to a job's logs array under a row lock, so two
// concurrent appends (e.g. generator output arriving interleaved with a
// cancellation check) both persist rather than one clobbering the other.
func (s *Store) AppendLog(ctx context.Context, id, line string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning append-log transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var logsJSON []byte
	if err := tx.QueryRow(ctx, `SELECT logs FROM generation_jobs WHERE id = $1 FOR UPDATE`, id).Scan(&logsJSON); err != nil {
		return fmt.Errorf("locking job row: %w", err)
	}

	var logs []string
	if len(logsJSON) > 0 {
		_ = json.Unmarshal(logsJSON, &logs)
	}
	logs = append(logs, line)

	encoded, err := json.Marshal(logs)
	if err != nil {
		return fmt.Errorf("encoding logs: %w", err)
	}

	if _, err := tx.Exec(ctx, `UPDATE generation_jobs SET logs = $2 WHERE id = $1`, id, encoded); err != nil {
		return fmt.Errorf("appending log: %w", err)
	}
	return tx.Commit(ctx)
}

// Complete marks a running job complete with its result.
func (s *Store) Complete(ctx context.Context, id, result string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE generation_jobs SET status = $2, result = $3, completed_at = now() WHERE id = $1`,
		id, StatusComplete, result)
	return err
}

// Fail marks a job failed with the given error message.
func (s *Store) Fail(ctx context.Context, id, errMsg string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE generation_jobs SET status = $2, error = $3, completed_at = now() WHERE id = $1`,
		id, StatusFailed, errMsg)
	return err
}

// RecoverStale flips every row still running to failed with a stable
// "orphaned" error, used at startup since no running process can resume
// another's job (spec.md §4.1.4 Recovery). Rows already complete/failed are
// never touched; a second call is a no-op.
func (s *Store) RecoverStale(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE generation_jobs SET status = $1, error = 'orphaned', completed_at = now() WHERE status = $2`,
		StatusFailed, StatusRunning)
	if err != nil {
		return 0, fmt.Errorf("recovering stale jobs: %w", err)
	}
	return tag.RowsAffected(), nil
}

// CursorParams is the compound (createdAt, id) cursor used for job listing,
// so ties at identical timestamps never lose rows.
type CursorParams struct {
	BeforeCreatedAt *time.Time
	BeforeID        *string
	Limit           int
}

// List returns jobs sorted (createdAt DESC, id DESC), newest first, scoped
// to ownerKeyID unless isAdmin is true.
func (s *Store) List(ctx context.Context, ownerKeyID string, isAdmin bool, p CursorParams) ([]Job, error) {
	query := `SELECT ` + jobColumns + ` FROM generation_jobs WHERE 1=1`
	args := []any{}
	n := 0

	if !isAdmin {
		n++
		query += fmt.Sprintf(" AND owner_key_id = $%d", n)
		args = append(args, ownerKeyID)
	}
	if p.BeforeCreatedAt != nil && p.BeforeID != nil {
		n++
		createdAtArg := n
		n++
		idArg := n
		query += fmt.Sprintf(" AND (created_at, id) < ($%d, $%d)", createdAtArg, idArg)
		args = append(args, *p.BeforeCreatedAt, *p.BeforeID)
	}

	query += " ORDER BY created_at DESC, id DESC"
	if p.Limit > 0 {
		n++
		query += fmt.Sprintf(" LIMIT $%d", n)
		args = append(args, p.Limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing jobs: %w", err)
	}
	defer rows.Close()

	var items []Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning job row: %w", err)
		}
		items = append(items, *j)
	}
	return items, rows.Err()
}

// Get returns a single job by id, scoped to ownerKeyID unless isAdmin.
func (s *Store) Get(ctx context.Context, id, ownerKeyID string, isAdmin bool) (*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM generation_jobs WHERE id = $1`
	args := []any{id}
	if !isAdmin {
		query += ` AND owner_key_id = $2`
		args = append(args, ownerKeyID)
	}
	row := s.pool.QueryRow(ctx, query, args...)
	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return job, err
}
