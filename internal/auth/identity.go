// Package auth authenticates inbound requests (API key or session token) and
// enforces scope-based authorization.
package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"github.com/google/uuid"
)

// Tiers determine an API key's default scope set.
const (
	TierFree  = "free"
	TierPaid  = "paid"
	TierAdmin = "admin"
)

// Scopes gate individual operation families.
const (
	ScopeDiscover = "discover"
	ScopeQuery    = "query"
	ScopeExecute  = "execute"
	ScopeGenerate = "generate"
	ScopeWildcard = "*"
)

// Authentication methods, recorded on Identity for audit/logging purposes.
const (
	MethodAPIKey = "api_key"
	MethodSession = "session"
)

// DefaultScopes returns the scope set a freshly-created key of the given tier
// receives. Free keys can discover/query/execute; paid keys also generate;
// admin keys hold the wildcard scope.
func DefaultScopes(tier string) []string {
	switch tier {
	case TierAdmin:
		return []string{ScopeWildcard}
	case TierPaid:
		return []string{ScopeDiscover, ScopeQuery, ScopeExecute, ScopeGenerate}
	default:
		return []string{ScopeDiscover, ScopeQuery, ScopeExecute}
	}
}

// Identity is the authenticated principal attached to a request context.
type Identity struct {
	Subject  string // "key:<id>" or "user:<id>"
	Tier     string
	Scopes   []string
	APIKeyID *uuid.UUID
	UserID   *uuid.UUID
	Method   string
}

// HasScope reports whether the identity may perform an operation requiring scope.
func (i *Identity) HasScope(scope string) bool {
	for _, s := range i.Scopes {
		if s == ScopeWildcard || s == scope {
			return true
		}
	}
	return false
}

// IsAdmin reports whether the identity holds the wildcard scope.
func (i *Identity) IsAdmin() bool {
	return i.HasScope(ScopeWildcard)
}

// OwnerID returns the id under which OAuth/API credentials are stored in the
// vault: the linked user id if present, else the key id. Credentials are
// explicitly shared across every API key linked to the same user, so this
// promotion to the user id is deliberate here — it must not be used anywhere
// else (see PrincipalID).
func (i *Identity) OwnerID() string {
	if i.UserID != nil {
		return "user:" + i.UserID.String()
	}
	if i.APIKeyID != nil {
		return "key:" + i.APIKeyID.String()
	}
	return i.Subject
}

// PrincipalID returns the id that scopes per-key state: idempotency cache
// entries, sandbox-adapter/generation-job ownership, and journal/transaction
// ownership. Unlike OwnerID, it never promotes to the linked user id — two
// API keys linked to the same user are distinct principals for every one of
// these, since they must not collapse onto each other's idempotency cache,
// adapter ownership, or execution counters.
func (i *Identity) PrincipalID() string {
	if i.APIKeyID != nil {
		return "key:" + i.APIKeyID.String()
	}
	return i.Subject
}

type contextKey string

const identityKey contextKey = "identity"

// NewContext returns a context carrying the given identity.
func NewContext(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// FromContext extracts the authenticated identity, or nil if unauthenticated.
func FromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityKey).(*Identity)
	return id
}

// HashAPIKey returns the hex-encoded SHA-256 hash of a raw API key or session token.
func HashAPIKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
