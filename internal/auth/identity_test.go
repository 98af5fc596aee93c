package auth

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestDefaultScopes(t *testing.T) {
	tests := []struct {
		tier string
		want []string
	}{
		{TierAdmin, []string{ScopeWildcard}},
		{TierPaid, []string{ScopeDiscover, ScopeQuery, ScopeExecute, ScopeGenerate}},
		{TierFree, []string{ScopeDiscover, ScopeQuery, ScopeExecute}},
		{"unknown", []string{ScopeDiscover, ScopeQuery, ScopeExecute}},
	}

	for _, tt := range tests {
		t.Run(tt.tier, func(t *testing.T) {
			assert.Equal(t, tt.want, DefaultScopes(tt.tier))
		})
	}
}

func TestIdentity_HasScope(t *testing.T) {
	admin := &Identity{Scopes: []string{ScopeWildcard}}
	assert.True(t, admin.HasScope(ScopeExecute))
	assert.True(t, admin.HasScope(ScopeGenerate))

	limited := &Identity{Scopes: []string{ScopeDiscover, ScopeQuery}}
	assert.True(t, limited.HasScope(ScopeDiscover))
	assert.False(t, limited.HasScope(ScopeExecute))
}

func TestIdentity_IsAdmin(t *testing.T) {
	assert.True(t, (&Identity{Scopes: []string{ScopeWildcard}}).IsAdmin())
	assert.False(t, (&Identity{Scopes: []string{ScopeDiscover}}).IsAdmin())
}

func TestIdentity_OwnerID(t *testing.T) {
	userID := uuid.New()
	keyID := uuid.New()

	withUser := &Identity{UserID: &userID, APIKeyID: &keyID}
	assert.Equal(t, "user:"+userID.String(), withUser.OwnerID())

	withKeyOnly := &Identity{APIKeyID: &keyID}
	assert.Equal(t, "key:"+keyID.String(), withKeyOnly.OwnerID())

	fallback := &Identity{Subject: "whatever"}
	assert.Equal(t, "whatever", fallback.OwnerID())
}

func TestHashAPIKey_Deterministic(t *testing.T) {
	h1 := HashAPIKey("agenr_free_deadbeef")
	h2 := HashAPIKey("agenr_free_deadbeef")
	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64)
	assert.NotEqual(t, h1, HashAPIKey("agenr_free_otherkey"))
}

func TestContext_RoundTrip(t *testing.T) {
	assert.Nil(t, FromContext(context.Background()))

	id := &Identity{Subject: "key:abc"}
	ctx := NewContext(context.Background(), id)
	assert.Same(t, id, FromContext(ctx))
}
