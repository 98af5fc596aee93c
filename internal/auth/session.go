package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"github.com/google/uuid"
)

// SessionClaims are the claims embedded in a self-issued session JWT. jti
// carries the plaintext opaque session token minted by Authenticator.IssueSession
// — the JWT is just a signed envelope around it; the sessions table still
// stores only sha256(jti), exactly as spec.md's Session entity requires.
type SessionClaims struct {
	Subject string `json:"sub"`
	UserID  string `json:"user_id"`
}

// SessionManager issues and validates self-signed session JWTs using
// HMAC-SHA256, so a bearer value presented to the gateway is a JWT whose
// jti the server can verify cheaply before even touching the sessions table.
type SessionManager struct {
	auth       *Authenticator
	signingKey []byte
	maxAge     time.Duration
}

// NewSessionManager creates a session manager. The secret must be at least 32 bytes.
func NewSessionManager(auth *Authenticator, secret string, maxAge time.Duration) (*SessionManager, error) {
	if len(secret) < 32 {
		return nil, fmt.Errorf("session secret must be at least 32 bytes, got %d", len(secret))
	}
	return &SessionManager{auth: auth, signingKey: []byte(secret), maxAge: maxAge}, nil
}

// GenerateDevSecret generates a random 32-byte hex-encoded secret for dev mode.
func GenerateDevSecret() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("reading random bytes: %v", err))
	}
	return hex.EncodeToString(b)
}

// Issue creates a new opaque session (persisted by hash, per IssueSession)
// and wraps its plaintext token in a signed JWT.
func (sm *SessionManager) Issue(ctx context.Context, userID uuid.UUID) (string, time.Time, error) {
	rawToken, expiresAt, err := sm.auth.IssueSession(ctx, userID)
	if err != nil {
		return "", time.Time{}, err
	}

	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.HS256, Key: sm.signingKey},
		(&jose.SignerOptions{}).WithType("JWT"),
	)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("creating session signer: %w", err)
	}

	now := time.Now()
	claims := SessionClaims{Subject: "user:" + userID.String(), UserID: userID.String()}
	registered := jwt.Claims{
		Subject:   claims.Subject,
		ID:        rawToken,
		IssuedAt:  jwt.NewNumericDate(now),
		Expiry:    jwt.NewNumericDate(expiresAt),
		NotBefore: jwt.NewNumericDate(now),
		Issuer:    "agenr-gateway",
	}

	signed, err := jwt.Signed(signer).Claims(registered).Claims(claims).Serialize()
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing session token: %w", err)
	}
	return signed, expiresAt, nil
}

// Authenticate verifies a session JWT's signature and expiry, then resolves
// its embedded jti against the sessions table exactly as a raw bearer token
// would be.
func (sm *SessionManager) Authenticate(ctx context.Context, raw string) (*Identity, error) {
	tok, err := jwt.ParseSigned(raw, []jose.SignatureAlgorithm{jose.HS256})
	if err != nil {
		return nil, nil
	}

	var registered jwt.Claims
	var custom SessionClaims
	if err := tok.Claims(sm.signingKey, &registered, &custom); err != nil {
		return nil, nil
	}

	if err := registered.ValidateWithLeeway(jwt.Expected{
		Issuer: "agenr-gateway",
		Time:   time.Now(),
	}, 5*time.Second); err != nil {
		return nil, nil
	}

	if registered.ID == "" {
		return nil, nil
	}
	return sm.auth.AuthenticateSession(ctx, registered.ID)
}
