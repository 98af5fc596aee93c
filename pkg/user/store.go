package user

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store provides the users and oauth_states tables' operations.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// GetOrCreateByProvider upserts a user by its (provider, providerID) unique
// key, refreshing email/name on every call so profile edits on the
// third-party side propagate.
func (s *Store) GetOrCreateByProvider(ctx context.Context, provider, providerID, email string, name *string) (*User, error) {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO users (id, provider, provider_id, email, name, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, now(), now())
		 ON CONFLICT (provider, provider_id) DO UPDATE SET
		   email = EXCLUDED.email, name = EXCLUDED.name, updated_at = now()
		 RETURNING id, provider, provider_id, email, name, created_at, updated_at`,
		uuid.NewString(), provider, providerID, email, name)
	var u User
	if err := row.Scan(&u.ID, &u.Provider, &u.ProviderID, &u.Email, &u.Name, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, fmt.Errorf("upserting user: %w", err)
	}
	return &u, nil
}

func (s *Store) GetByID(ctx context.Context, id string) (*User, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, provider, provider_id, email, name, created_at, updated_at FROM users WHERE id = $1`, id)
	var u User
	if err := row.Scan(&u.ID, &u.Provider, &u.ProviderID, &u.Email, &u.Name, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("loading user: %w", err)
	}
	return &u, nil
}

// CreateState persists a freshly generated OAuthState.
func (s *Store) CreateState(ctx context.Context, st OAuthState) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO oauth_states (state, user_id, service, code_verifier, created_at)
		 VALUES ($1, $2, $3, $4, now())`,
		st.State, st.UserID, st.Service, st.CodeVerifier)
	if err != nil {
		return fmt.Errorf("persisting oauth state: %w", err)
	}
	return nil
}

// ConsumeState deletes a state row by primary key and returns it, or nil if
// absent or already consumed. Single-use by construction: a second call for
// the same state always returns nil.
func (s *Store) ConsumeState(ctx context.Context, state string) (*OAuthState, error) {
	row := s.pool.QueryRow(ctx,
		`DELETE FROM oauth_states WHERE state = $1
		 RETURNING state, user_id, service, code_verifier, created_at`, state)
	var st OAuthState
	if err := row.Scan(&st.State, &st.UserID, &st.Service, &st.CodeVerifier, &st.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("consuming oauth state: %w", err)
	}
	return &st, nil
}

// SweepExpiredStates deletes every state row older than StateTTL.
func (s *Store) SweepExpiredStates(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM oauth_states WHERE created_at < $1`, time.Now().Add(-StateTTL))
	if err != nil {
		return 0, fmt.Errorf("sweeping oauth states: %w", err)
	}
	return tag.RowsAffected(), nil
}
