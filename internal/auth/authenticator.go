package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Authenticator resolves the raw credentials presented on a request into an
// Identity, backed by the api_keys and sessions tables.
type Authenticator struct {
	store       *Store
	sessionTTL  time.Duration
}

func NewAuthenticator(store *Store, sessionTTL time.Duration) *Authenticator {
	return &Authenticator{store: store, sessionTTL: sessionTTL}
}

// GenerateAPIKey mints a new raw key of the form agenr_<tier>_<32 hex> and its
// SHA-256 hash. The raw value is returned to the caller exactly once.
func GenerateAPIKey(tier string) (raw string, hash string, err error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("generating key entropy: %w", err)
	}
	raw = fmt.Sprintf("agenr_%s_%s", tier, hex.EncodeToString(buf))
	return raw, HashAPIKey(raw), nil
}

// AuthenticateAPIKey looks up a raw API key by its hash and returns its Identity.
// lastUsedAt is stamped asynchronously and never blocks the caller.
func (a *Authenticator) AuthenticateAPIKey(ctx context.Context, raw string) (*Identity, error) {
	hash := HashAPIKey(raw)

	row, err := a.store.GetAPIKeyByHash(ctx, hash)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, nil
	}

	go func() {
		bgCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.store.TouchAPIKeyLastUsed(bgCtx, row.ID)
	}()

	id := row.ID
	return &Identity{
		Subject:  "key:" + id.String(),
		Tier:     row.Tier,
		Scopes:   row.Scopes,
		APIKeyID: &id,
		UserID:   row.UserID,
		Method:   MethodAPIKey,
	}, nil
}

// IssueSession creates a new opaque session token for userID and persists only
// its SHA-256 hash. The plaintext token is returned exactly once.
func (a *Authenticator) IssueSession(ctx context.Context, userID uuid.UUID) (token string, expiresAt time.Time, err error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", time.Time{}, fmt.Errorf("generating session entropy: %w", err)
	}
	token = hex.EncodeToString(buf)
	hash := HashAPIKey(token)
	expiresAt = time.Now().Add(a.sessionTTL)

	if _, err := a.store.CreateSession(ctx, hash, userID, expiresAt); err != nil {
		return "", time.Time{}, fmt.Errorf("creating session: %w", err)
	}
	return token, expiresAt, nil
}

// AuthenticateSession validates a bearer token and returns the Identity of its
// owning user. Session-authenticated callers always get the TierPaid scope
// set (discover/query/execute/generate), never the wildcard.
func (a *Authenticator) AuthenticateSession(ctx context.Context, token string) (*Identity, error) {
	hash := HashAPIKey(token)

	sess, err := a.store.GetSession(ctx, hash)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, nil
	}

	go func() {
		bgCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.store.TouchSession(bgCtx, hash)
	}()

	userID := sess.UserID
	return &Identity{
		Subject: "user:" + userID.String(),
		Tier:    TierPaid,
		Scopes:  DefaultScopes(TierPaid),
		UserID:  &userID,
		Method:  MethodSession,
	}, nil
}

// DeleteSession removes a session by its plaintext token, hashing first.
func (a *Authenticator) DeleteSession(ctx context.Context, token string) error {
	return a.store.DeleteSession(ctx, HashAPIKey(token))
}

// logAuthFailure is a small helper so authentication failures are logged
// uniformly without leaking which of {missing, bad, expired} applies to callers.
func logAuthFailure(logger *slog.Logger, method string, err error) {
	if err != nil {
		logger.Warn("authentication failed", "method", method, "error", err)
	}
}
