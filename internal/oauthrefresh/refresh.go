// Package oauthrefresh rotates OAuth2 access tokens held in the credential
// vault shortly before they expire, using the standard refresh_token grant.
package oauthrefresh

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/oauth2"

	"github.com/agenr/gateway/internal/audit"
	"github.com/agenr/gateway/internal/telemetry"
	"github.com/agenr/gateway/internal/vault"
)

// nearExpiryWindow is how close to expiry a credential must be before a plain
// retrieve triggers a refresh.
const nearExpiryWindow = 60 * time.Second

// TokenEndpoint resolves the refresh_token grant URL and client credentials
// for a given service. Adapters register their OAuth endpoints here.
type TokenEndpoint struct {
	URL          string
	ClientID     string
	ClientSecret string
}

// EndpointResolver looks up the token endpoint for a service id.
type EndpointResolver interface {
	ResolveTokenEndpoint(ctx context.Context, serviceID string) (*TokenEndpoint, error)
}

type Service struct {
	vault    *vault.Vault
	resolver EndpointResolver
	audit    *audit.Writer
	logger   *slog.Logger
	client   *retryablehttp.Client
}

func New(v *vault.Vault, resolver EndpointResolver, auditWriter *audit.Writer, logger *slog.Logger) *Service {
	client := retryablehttp.NewClient()
	client.RetryMax = 2
	client.RetryWaitMin = 200 * time.Millisecond
	client.RetryWaitMax = 2 * time.Second
	client.Logger = nil

	return &Service{
		vault:    v,
		resolver: resolver,
		audit:    auditWriter,
		logger:   logger,
		client:   client,
	}
}

// RefreshIfNeeded implements vault.Refresher. It is a no-op for non-OAuth2
// credentials, for credentials with no registered endpoint, and for
// credentials that are not yet near expiry unless force is set.
func (s *Service) RefreshIfNeeded(ctx context.Context, userID, serviceID string, cred *vault.CredentialRow, force bool) (*vault.CredentialRow, bool, error) {
	if cred.AuthType != "oauth2" {
		return cred, false, nil
	}
	if !force {
		if cred.ExpiresAt == nil || time.Until(*cred.ExpiresAt) > nearExpiryWindow {
			return cred, false, nil
		}
	}

	endpoint, err := s.resolver.ResolveTokenEndpoint(ctx, serviceID)
	if err != nil || endpoint == nil {
		return cred, false, nil
	}

	payload, err := s.vault.DecryptCredentialRow(ctx, cred)
	if err != nil {
		return cred, false, err
	}

	refreshToken, _ := payload["refresh_token"].(string)
	if refreshToken == "" {
		return cred, false, nil
	}

	cfg := &oauth2.Config{
		ClientID:     endpoint.ClientID,
		ClientSecret: endpoint.ClientSecret,
		Endpoint:     oauth2.Endpoint{TokenURL: endpoint.URL},
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, s.client.StandardClient())

	tok, err := cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		telemetry.OAuthRefreshTotal.WithLabelValues("rejected").Inc()
		return cred, false, nil
	}
	if tok.AccessToken == "" {
		telemetry.OAuthRefreshTotal.WithLabelValues("bad_response").Inc()
		return cred, false, nil
	}

	// The authorization server may omit refresh_token to signal "unchanged".
	newRefreshToken := tok.RefreshToken
	if newRefreshToken == "" {
		newRefreshToken = refreshToken
	}

	expiresIn := 0
	if !tok.Expiry.IsZero() {
		expiresIn = int(time.Until(tok.Expiry) / time.Second)
	}

	newPayload := map[string]any{
		"access_token":  tok.AccessToken,
		"refresh_token": newRefreshToken,
		"token_type":    tok.TokenType,
	}
	if expiresIn > 0 {
		newPayload["expires_in"] = float64(expiresIn)
	}

	if err := s.vault.StoreCredential(ctx, userID, serviceID, "oauth2", newPayload, cred.Scopes); err != nil {
		telemetry.OAuthRefreshTotal.WithLabelValues("store_failed").Inc()
		return cred, false, err
	}

	updated, err := s.vault.CredentialRowFor(ctx, userID, serviceID)
	if err != nil {
		return cred, false, err
	}

	telemetry.OAuthRefreshTotal.WithLabelValues("ok").Inc()
	if s.audit != nil {
		uid, sid := userID, serviceID
		s.audit.Log(audit.Entry{
			UserID:    &uid,
			ServiceID: &sid,
			Action:    "credential_rotated",
			Metadata:  map[string]any{"expires_in": strconv.Itoa(expiresIn)},
		})
	}

	return updated, true, nil
}
