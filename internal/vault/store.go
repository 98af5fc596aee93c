package vault

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SystemUserID is the fixed owner of adapter app OAuth credentials.
const SystemUserID = "__system__"

// UserKeyRow is the persisted shape of a user_keys row.
type UserKeyRow struct {
	UserID        string
	EncryptedDEK  []byte
	KMSKeyID      string
	CreatedAt     time.Time
	RotatedAt     *time.Time
}

// CredentialRow is the persisted shape of a credentials row.
type CredentialRow struct {
	UserID           string
	ServiceID        string
	AuthType         string
	EncryptedPayload []byte
	IV               []byte
	AuthTag          []byte
	Scopes           []string
	ExpiresAt        *time.Time
	LastUsedAt       *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// CredentialMeta is the metadata-only projection returned by listing.
type CredentialMeta struct {
	ServiceID string
	AuthType  string
	Status    string
	ExpiresAt *time.Time
	UpdatedAt time.Time
}

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) GetUserKey(ctx context.Context, userID string) (*UserKeyRow, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT user_id, encrypted_dek, kms_key_id, created_at, rotated_at FROM user_keys WHERE user_id = $1`, userID)

	var k UserKeyRow
	err := row.Scan(&k.UserID, &k.EncryptedDEK, &k.KMSKeyID, &k.CreatedAt, &k.RotatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying user key: %w", err)
	}
	return &k, nil
}

func (s *Store) CreateUserKey(ctx context.Context, userID string, encryptedDEK []byte, kmsKeyID string) (*UserKeyRow, error) {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO user_keys (user_id, encrypted_dek, kms_key_id, created_at)
		 VALUES ($1, $2, $3, now())
		 ON CONFLICT (user_id) DO NOTHING
		 RETURNING user_id, encrypted_dek, kms_key_id, created_at, rotated_at`,
		userID, encryptedDEK, kmsKeyID,
	)
	var k UserKeyRow
	if err := row.Scan(&k.UserID, &k.EncryptedDEK, &k.KMSKeyID, &k.CreatedAt, &k.RotatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// lost the insert race; re-read the winner's row
			return s.GetUserKey(ctx, userID)
		}
		return nil, fmt.Errorf("creating user key: %w", err)
	}
	return &k, nil
}

func (s *Store) UpsertCredential(ctx context.Context, c CredentialRow) (*CredentialRow, error) {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO credentials (user_id, service_id, auth_type, encrypted_payload, iv, auth_tag, scopes, expires_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now(), now())
		 ON CONFLICT (user_id, service_id) DO UPDATE SET
		   auth_type = EXCLUDED.auth_type,
		   encrypted_payload = EXCLUDED.encrypted_payload,
		   iv = EXCLUDED.iv,
		   auth_tag = EXCLUDED.auth_tag,
		   scopes = EXCLUDED.scopes,
		   expires_at = EXCLUDED.expires_at,
		   updated_at = now()
		 RETURNING user_id, service_id, auth_type, encrypted_payload, iv, auth_tag, scopes, expires_at, last_used_at, created_at, updated_at`,
		c.UserID, c.ServiceID, c.AuthType, c.EncryptedPayload, c.IV, c.AuthTag, c.Scopes, c.ExpiresAt,
	)
	return scanCredential(row)
}

func (s *Store) GetCredential(ctx context.Context, userID, serviceID string) (*CredentialRow, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT user_id, service_id, auth_type, encrypted_payload, iv, auth_tag, scopes, expires_at, last_used_at, created_at, updated_at
		 FROM credentials WHERE user_id = $1 AND service_id = $2`, userID, serviceID)
	cred, err := scanCredential(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return cred, err
}

func (s *Store) TouchCredentialLastUsed(ctx context.Context, userID, serviceID string) error {
	_, err := s.pool.Exec(ctx, `UPDATE credentials SET last_used_at = now() WHERE user_id = $1 AND service_id = $2`, userID, serviceID)
	return err
}

func (s *Store) DeleteCredential(ctx context.Context, userID, serviceID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM credentials WHERE user_id = $1 AND service_id = $2`, userID, serviceID)
	if err != nil {
		return fmt.Errorf("deleting credential: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (s *Store) ListCredentials(ctx context.Context, userID string) ([]CredentialMeta, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT service_id, auth_type, expires_at, updated_at FROM credentials WHERE user_id = $1 ORDER BY service_id ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("listing credentials: %w", err)
	}
	defer rows.Close()

	var items []CredentialMeta
	for rows.Next() {
		var m CredentialMeta
		if err := rows.Scan(&m.ServiceID, &m.AuthType, &m.ExpiresAt, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning credential metadata: %w", err)
		}
		m.Status = "active"
		if m.AuthType == "oauth2" && m.ExpiresAt != nil && m.ExpiresAt.Before(time.Now()) {
			m.Status = "expired"
		}
		items = append(items, m)
	}
	return items, rows.Err()
}

func scanCredential(row pgx.Row) (*CredentialRow, error) {
	var c CredentialRow
	err := row.Scan(&c.UserID, &c.ServiceID, &c.AuthType, &c.EncryptedPayload, &c.IV, &c.AuthTag,
		&c.Scopes, &c.ExpiresAt, &c.LastUsedAt, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}
