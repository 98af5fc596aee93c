// Package idempotency implements per-principal response replay for retried
// mutations: a request carrying an Idempotency-Key header is executed once
// per (principal, key) pair, and every retry with the same pair replays the
// first successful response verbatim instead of re-running the handler.
package idempotency

import "time"

// DefaultTTL is the age at which a cached entry becomes eligible for cleanup.
const DefaultTTL = 24 * time.Hour

// HeaderKey is the request header carrying the caller-supplied client key.
const HeaderKey = "Idempotency-Key"

// Entry is the persisted shape of an idempotency_cache row. Key is
// "<principalId>:<clientKey>", enforcing per-principal isolation at the
// primary-key level: two principals presenting the same client key can never
// collide.
type Entry struct {
	Key         string
	PrincipalID string
	Status      int
	Headers     map[string][]string
	Body        []byte
	CreatedAt   time.Time
}

func cacheKey(principalID, clientKey string) string {
	return principalID + ":" + clientKey
}
