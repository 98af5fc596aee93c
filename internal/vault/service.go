// Package vault implements per-user envelope-encrypted credential storage:
// a random DEK per user, wrapped by a KMS client, used to AES-256-GCM seal
// each credential payload before it reaches Postgres.
package vault

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agenr/gateway/internal/apperr"
	"github.com/agenr/gateway/internal/audit"
	"github.com/agenr/gateway/internal/telemetry"
)

var serviceIDPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,63}$`)

// NormalizeServiceID trims and lowercases a service identifier and rejects it
// if it does not match the bounded id pattern.
func NormalizeServiceID(raw string) (string, error) {
	id := strings.ToLower(strings.TrimSpace(raw))
	if !serviceIDPattern.MatchString(id) {
		return "", apperr.Invalid("service id must match [a-z0-9][a-z0-9_-]{0,63}")
	}
	return id, nil
}

// Refresher is implemented by internal/oauthrefresh; injected to avoid an
// import cycle between vault and the refresh service that reads credentials
// through the vault to rotate them.
type Refresher interface {
	RefreshIfNeeded(ctx context.Context, userID, serviceID string, cred *CredentialRow, force bool) (*CredentialRow, bool, error)
}

type Vault struct {
	store     *Store
	kms       KMSClient
	audit     *audit.Writer
	logger    *slog.Logger
	kmsKeyID  string
	refresher Refresher
}

func New(pool *pgxpool.Pool, kms KMSClient, auditWriter *audit.Writer, logger *slog.Logger, kmsKeyID string) *Vault {
	return &Vault{
		store:    NewStore(pool),
		kms:      kms,
		audit:    auditWriter,
		logger:   logger,
		kmsKeyID: kmsKeyID,
	}
}

// SetRefresher wires the OAuth refresh service in after construction, breaking
// the vault <-> oauthrefresh initialization cycle.
func (v *Vault) SetRefresher(r Refresher) {
	v.refresher = r
}

// dek returns the user's data-encryption key, minting and wrapping a new one
// via KMS on first use.
func (v *Vault) dek(ctx context.Context, userID string) ([]byte, error) {
	row, err := v.store.GetUserKey(ctx, userID)
	if err != nil {
		return nil, apperr.Transient("loading user key", err)
	}

	if row == nil {
		raw := make([]byte, 32)
		if _, err := rand.Read(raw); err != nil {
			return nil, apperr.Transient("generating dek", err)
		}
		wrapped, err := v.kms.Wrap(v.kmsKeyID, raw)
		if err != nil {
			return nil, apperr.Transient("wrapping dek", err)
		}
		row, err = v.store.CreateUserKey(ctx, userID, wrapped, v.kmsKeyID)
		if err != nil {
			return nil, apperr.Transient("persisting user key", err)
		}
		// CreateUserKey may have lost a race and returned the winner's row,
		// whose wrapped bytes differ from what we just generated — unwrap
		// whatever ended up persisted, not our local copy.
	}

	return v.kms.Unwrap(row.KMSKeyID, row.EncryptedDEK)
}

// StoreCredential upserts a credential payload for (userID, service).
func (v *Vault) StoreCredential(ctx context.Context, userID, service, authType string, payload map[string]any, scopes []string) error {
	service, err := NormalizeServiceID(service)
	if err != nil {
		return err
	}

	dek, err := v.dek(ctx, userID)
	if err != nil {
		telemetry.CredentialOpsTotal.WithLabelValues("store", "error").Inc()
		return err
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return apperr.Invalid("payload is not serialisable")
	}

	s, err := encryptPayload(dek, raw)
	if err != nil {
		telemetry.CredentialOpsTotal.WithLabelValues("store", "error").Inc()
		return apperr.Transient("encrypting credential", err)
	}

	var expiresAt *time.Time
	if authType == "oauth2" {
		if secs, ok := payload["expires_in"].(float64); ok && secs > 0 {
			t := time.Now().Add(time.Duration(secs) * time.Second)
			expiresAt = &t
		}
	}

	_, err = v.store.UpsertCredential(ctx, CredentialRow{
		UserID:           userID,
		ServiceID:        service,
		AuthType:         authType,
		EncryptedPayload: s.Ciphertext,
		IV:               s.IV,
		AuthTag:          s.AuthTag,
		Scopes:           scopes,
		ExpiresAt:        expiresAt,
	})
	if err != nil {
		telemetry.CredentialOpsTotal.WithLabelValues("store", "error").Inc()
		return apperr.Transient("persisting credential", err)
	}

	telemetry.CredentialOpsTotal.WithLabelValues("store", "ok").Inc()
	v.logAudit(ctx, userID, service, "credential_stored", nil)
	return nil
}

// RetrieveCredential decrypts and returns the payload for (userID, service).
// If the credential is OAuth2 and near expiry (or force=true), it is refreshed
// first via the injected Refresher.
func (v *Vault) RetrieveCredential(ctx context.Context, userID, service string, force bool) (map[string]any, error) {
	service, err := NormalizeServiceID(service)
	if err != nil {
		return nil, err
	}

	row, err := v.store.GetCredential(ctx, userID, service)
	if err != nil {
		telemetry.CredentialOpsTotal.WithLabelValues("retrieve", "error").Inc()
		return nil, apperr.Transient("loading credential", err)
	}
	if row == nil {
		return nil, apperr.NotFound("credential not found")
	}

	if v.refresher != nil {
		refreshed, didRefresh, rerr := v.refresher.RefreshIfNeeded(ctx, userID, service, row, force)
		if rerr != nil {
			v.logger.Warn("oauth refresh failed, serving existing credential", "service", service, "error", rerr)
		} else if didRefresh {
			row = refreshed
		}
	}

	dek, err := v.dek(ctx, userID)
	if err != nil {
		return nil, err
	}

	plaintext, err := decryptPayload(dek, sealed{Ciphertext: row.EncryptedPayload, IV: row.IV, AuthTag: row.AuthTag})
	if err != nil {
		telemetry.CredentialOpsTotal.WithLabelValues("retrieve", "error").Inc()
		return nil, err
	}

	var payload map[string]any
	if err := json.Unmarshal(plaintext, &payload); err != nil {
		return nil, apperr.Integrity("decrypted payload is not valid JSON", err)
	}

	telemetry.CredentialOpsTotal.WithLabelValues("retrieve", "ok").Inc()
	v.logAudit(ctx, userID, service, "credential_retrieved", nil)
	return payload, nil
}

// HasCredential reports existence only, without decrypting.
func (v *Vault) HasCredential(ctx context.Context, userID, service string) (bool, error) {
	service, err := NormalizeServiceID(service)
	if err != nil {
		return false, err
	}
	row, err := v.store.GetCredential(ctx, userID, service)
	if err != nil {
		return false, apperr.Transient("checking credential", err)
	}
	return row != nil, nil
}

// DecryptCredentialRow decrypts a credential row already in hand without a
// fresh store lookup, used by the refresh service to inspect a refresh_token
// before deciding whether to rotate it.
func (v *Vault) DecryptCredentialRow(ctx context.Context, row *CredentialRow) (map[string]any, error) {
	dek, err := v.dek(ctx, row.UserID)
	if err != nil {
		return nil, err
	}
	plaintext, err := decryptPayload(dek, sealed{Ciphertext: row.EncryptedPayload, IV: row.IV, AuthTag: row.AuthTag})
	if err != nil {
		return nil, err
	}
	var payload map[string]any
	if err := json.Unmarshal(plaintext, &payload); err != nil {
		return nil, apperr.Integrity("decrypted payload is not valid JSON", err)
	}
	return payload, nil
}

// CredentialRowFor re-reads the current persisted row for (userID, service),
// used by the refresh service after it has just written a rotated credential.
func (v *Vault) CredentialRowFor(ctx context.Context, userID, service string) (*CredentialRow, error) {
	row, err := v.store.GetCredential(ctx, userID, service)
	if err != nil {
		return nil, apperr.Transient("loading credential", err)
	}
	if row == nil {
		return nil, apperr.NotFound("credential not found")
	}
	return row, nil
}

// DeleteCredential removes a stored credential.
func (v *Vault) DeleteCredential(ctx context.Context, userID, service string) error {
	service, err := NormalizeServiceID(service)
	if err != nil {
		return err
	}
	if err := v.store.DeleteCredential(ctx, userID, service); err != nil {
		telemetry.CredentialOpsTotal.WithLabelValues("delete", "error").Inc()
		return apperr.Transient("deleting credential", err)
	}
	telemetry.CredentialOpsTotal.WithLabelValues("delete", "ok").Inc()
	v.logAudit(ctx, userID, service, "credential_deleted", nil)
	return nil
}

// ListCredentials returns metadata only — never the encrypted payload.
func (v *Vault) ListCredentials(ctx context.Context, userID string) ([]CredentialMeta, error) {
	items, err := v.store.ListCredentials(ctx, userID)
	if err != nil {
		return nil, apperr.Transient("listing credentials", err)
	}
	return items, nil
}

// StoreAppCredential and RetrieveAppCredential operate under the fixed system
// owner used for adapter app OAuth client credentials.
func (v *Vault) StoreAppCredential(ctx context.Context, service string, payload map[string]any) error {
	return v.StoreCredential(ctx, SystemUserID, service, "app_oauth", payload, nil)
}

func (v *Vault) RetrieveAppCredential(ctx context.Context, service string) (map[string]any, error) {
	return v.RetrieveCredential(ctx, SystemUserID, service, false)
}

func (v *Vault) logAudit(ctx context.Context, userID, service, action string, executionID *string) {
	if v.audit == nil {
		return
	}
	uid := userID
	sid := service
	v.audit.Log(audit.Entry{
		UserID:      &uid,
		ServiceID:   &sid,
		Action:      action,
		ExecutionID: executionID,
	})
}
