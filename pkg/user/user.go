// Package user manages the User entity and the OAuth connect flow that lets
// an authenticated principal link a third-party account and have its tokens
// land in the credential vault.
package user

import "time"

// User is the persisted shape of a users table row.
type User struct {
	ID         string
	Provider   string
	ProviderID string
	Email      string
	Name       *string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// OAuthState is a single-use, short-lived row binding a generated state value
// to the principal and service that initiated an OAuth connect flow.
type OAuthState struct {
	State        string
	UserID       string
	Service      string
	CodeVerifier *string
	CreatedAt    time.Time
}

// StateTTL is the maximum age of an OAuthState before the callback rejects
// it, per spec.md's "single-use and TTL <= 10 min". SweepExpiredStates
// deletes rows older than this; nothing in the gateway calls it.
const StateTTL = 10 * time.Minute
