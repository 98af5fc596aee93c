package app

import (
	"context"
	"fmt"

	"github.com/agenr/gateway/internal/adapter"
	"github.com/agenr/gateway/internal/apperr"
	"github.com/agenr/gateway/internal/oauthrefresh"
	"github.com/agenr/gateway/internal/vault"
)

// adapterEndpointResolver satisfies oauthrefresh.EndpointResolver by reading
// an adapter's token endpoint from its public manifest and its client
// credentials from the vault's app-credential store, so the refresh service
// never needs its own copy of either.
type adapterEndpointResolver struct {
	registry *adapter.Registry
	vault    *vault.Vault
}

func newAdapterEndpointResolver(registry *adapter.Registry, v *vault.Vault) *adapterEndpointResolver {
	return &adapterEndpointResolver{registry: registry, vault: v}
}

func (r *adapterEndpointResolver) ResolveTokenEndpoint(ctx context.Context, serviceID string) (*oauthrefresh.TokenEndpoint, error) {
	_, manifest, ok := r.registry.Resolve(serviceID, "")
	if !ok || manifest.Auth.Type != "oauth2" || manifest.Auth.OAuth == nil {
		return nil, apperr.NotFound(fmt.Sprintf("no oauth2 adapter registered for %q", serviceID))
	}

	appCred, err := r.vault.RetrieveAppCredential(ctx, serviceID)
	if err != nil {
		return nil, err
	}
	clientID, _ := appCred["client_id"].(string)
	clientSecret, _ := appCred["client_secret"].(string)

	return &oauthrefresh.TokenEndpoint{
		URL:          manifest.Auth.OAuth.TokenURL,
		ClientID:     clientID,
		ClientSecret: clientSecret,
	}, nil
}
