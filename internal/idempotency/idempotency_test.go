package idempotency

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCacheKey_IsolatesPerPrincipal(t *testing.T) {
	k1 := cacheKey("user:a", "client-key-1")
	k2 := cacheKey("user:b", "client-key-1")

	assert.NotEqual(t, k1, k2, "two principals presenting the same client key must not collide")
	assert.Equal(t, "user:a:client-key-1", k1)
}

func TestCacheKey_Deterministic(t *testing.T) {
	assert.Equal(t, cacheKey("p", "k"), cacheKey("p", "k"))
}
