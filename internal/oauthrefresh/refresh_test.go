package oauthrefresh

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/agenr/gateway/internal/vault"
	"github.com/stretchr/testify/assert"
)

type stubResolver struct {
	endpoint *TokenEndpoint
	err      error
	called   bool
}

func (s *stubResolver) ResolveTokenEndpoint(ctx context.Context, serviceID string) (*TokenEndpoint, error) {
	s.called = true
	return s.endpoint, s.err
}

func TestRefreshIfNeeded_NonOAuthCredentialIsNoOp(t *testing.T) {
	resolver := &stubResolver{}
	s := New(nil, resolver, nil, slog.Default())

	cred := &vault.CredentialRow{AuthType: "api_key"}
	got, refreshed, err := s.RefreshIfNeeded(context.Background(), "u1", "svc", cred, false)

	assert.NoError(t, err)
	assert.False(t, refreshed)
	assert.Same(t, cred, got)
	assert.False(t, resolver.called, "a non-oauth2 credential must never consult the endpoint resolver")
}

func TestRefreshIfNeeded_NotNearExpirySkipsWithoutForce(t *testing.T) {
	resolver := &stubResolver{}
	s := New(nil, resolver, nil, slog.Default())

	farFuture := time.Now().Add(time.Hour)
	cred := &vault.CredentialRow{AuthType: "oauth2", ExpiresAt: &farFuture}
	got, refreshed, err := s.RefreshIfNeeded(context.Background(), "u1", "svc", cred, false)

	assert.NoError(t, err)
	assert.False(t, refreshed)
	assert.Same(t, cred, got)
	assert.False(t, resolver.called)
}

func TestRefreshIfNeeded_NoExpiryAtAllSkipsWithoutForce(t *testing.T) {
	resolver := &stubResolver{}
	s := New(nil, resolver, nil, slog.Default())

	cred := &vault.CredentialRow{AuthType: "oauth2", ExpiresAt: nil}
	_, refreshed, err := s.RefreshIfNeeded(context.Background(), "u1", "svc", cred, false)

	assert.NoError(t, err)
	assert.False(t, refreshed)
	assert.False(t, resolver.called)
}

func TestRefreshIfNeeded_NoRegisteredEndpointIsNoOp(t *testing.T) {
	resolver := &stubResolver{endpoint: nil}
	s := New(nil, resolver, nil, slog.Default())

	nearExpiry := time.Now().Add(10 * time.Second)
	cred := &vault.CredentialRow{AuthType: "oauth2", ExpiresAt: &nearExpiry}
	got, refreshed, err := s.RefreshIfNeeded(context.Background(), "u1", "svc", cred, false)

	assert.NoError(t, err)
	assert.False(t, refreshed)
	assert.Same(t, cred, got)
	assert.True(t, resolver.called)
}
