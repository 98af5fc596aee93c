package user

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/oauth2"

	"github.com/agenr/gateway/internal/adapter"
	"github.com/agenr/gateway/internal/apperr"
	"github.com/agenr/gateway/internal/audit"
	"github.com/agenr/gateway/internal/auth"
	"github.com/agenr/gateway/internal/httpserver"
	"github.com/agenr/gateway/internal/vault"
)

// AdapterResolver resolves the public adapter manifest for a platform, used
// here only to read its OAuth endpoints. Declared locally rather than
// depending on internal/adapter's Registry type directly so this package's
// collaborator surface stays explicit.
type AdapterResolver interface {
	Resolve(platform, ownerID string) (adapter.Adapter, adapter.Manifest, bool)
}

// Handler exposes the /connect/{service} and /connect/{service}/callback
// routes implementing the OAuth2 authorization-code connect flow.
type Handler struct {
	states    *Store
	users     *Store
	vault     *vault.Vault
	adapters  AdapterResolver
	audit     *audit.Writer
	logger    *slog.Logger
	baseURL   string
	client    *retryablehttp.Client
}

func NewHandler(states, users *Store, v *vault.Vault, adapters AdapterResolver, auditWriter *audit.Writer, logger *slog.Logger, baseURL string) *Handler {
	client := retryablehttp.NewClient()
	client.RetryMax = 2
	client.Logger = nil
	return &Handler{states: states, users: users, vault: v, adapters: adapters, audit: auditWriter, logger: logger, baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/{service}", h.handleConnect)
	r.Get("/{service}/callback", h.handleCallback)
	return r
}

// handleConnect starts the OAuth dance: resolve the platform's authorization
// endpoint from its public manifest, mint a single-use state, and redirect.
func (h *Handler) handleConnect(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())
	if id == nil {
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}
	service := chi.URLParam(r, "service")

	_, manifest, ok := h.adapters.Resolve(service, "")
	if !ok || manifest.Auth.Type != "oauth2" || manifest.Auth.OAuth == nil {
		httpserver.RespondError(w, http.StatusNotFound, "not_found", fmt.Sprintf("no oauth2 adapter registered for %q", service))
		return
	}

	appCred, err := h.vault.RetrieveAppCredential(r.Context(), service)
	if err != nil {
		httpserver.RespondAppError(w, h.logger, err)
		return
	}
	clientID, _ := appCred["client_id"].(string)

	state := uuid.NewString()
	if err := h.states.CreateState(r.Context(), OAuthState{State: state, UserID: id.OwnerID(), Service: service}); err != nil {
		httpserver.RespondAppError(w, h.logger, apperr.Transient("persisting oauth state", err))
		return
	}

	cfg := &oauth2.Config{
		ClientID:    clientID,
		Endpoint:    oauth2.Endpoint{AuthURL: manifest.Auth.OAuth.AuthorizationURL, TokenURL: manifest.Auth.OAuth.TokenURL},
		RedirectURL: fmt.Sprintf("%s/connect/%s/callback", h.baseURL, service),
	}

	http.Redirect(w, r, cfg.AuthCodeURL(state), http.StatusFound)
}

// handleCallback consumes the state, exchanges the authorization code for
// tokens, and stores the resulting credential under the connecting
// principal's owner id.
func (h *Handler) handleCallback(w http.ResponseWriter, r *http.Request) {
	service := chi.URLParam(r, "service")
	code := r.URL.Query().Get("code")
	state := r.URL.Query().Get("state")
	if code == "" || state == "" {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "code and state are required")
		return
	}

	st, err := h.states.ConsumeState(r.Context(), state)
	if err != nil {
		httpserver.RespondAppError(w, h.logger, apperr.Transient("consuming oauth state", err))
		return
	}
	if st == nil {
		httpserver.RespondError(w, http.StatusBadRequest, "invalid_state", "oauth state is invalid, expired, or already used")
		return
	}
	if time.Since(st.CreatedAt) > StateTTL {
		httpserver.RespondError(w, http.StatusBadRequest, "invalid_state", "oauth state has expired")
		return
	}
	if st.Service != service {
		httpserver.RespondError(w, http.StatusBadRequest, "invalid_state", "oauth state does not match service")
		return
	}

	_, manifest, ok := h.adapters.Resolve(service, "")
	if !ok || manifest.Auth.OAuth == nil {
		httpserver.RespondError(w, http.StatusNotFound, "not_found", fmt.Sprintf("no oauth2 adapter registered for %q", service))
		return
	}

	appCred, err := h.vault.RetrieveAppCredential(r.Context(), service)
	if err != nil {
		httpserver.RespondAppError(w, h.logger, err)
		return
	}
	clientID, _ := appCred["client_id"].(string)
	clientSecret, _ := appCred["client_secret"].(string)

	cfg := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     oauth2.Endpoint{AuthURL: manifest.Auth.OAuth.AuthorizationURL, TokenURL: manifest.Auth.OAuth.TokenURL},
		RedirectURL:  fmt.Sprintf("%s/connect/%s/callback", h.baseURL, service),
	}

	tok, err := h.exchangeCode(r.Context(), cfg, code)
	if err != nil {
		httpserver.RespondAppError(w, h.logger, err)
		return
	}

	payload := map[string]any{
		"access_token":  tok.AccessToken,
		"refresh_token": tok.RefreshToken,
		"token_type":    tok.TokenType,
	}
	if !tok.Expiry.IsZero() {
		payload["expires_in"] = float64(time.Until(tok.Expiry) / time.Second)
	}

	if err := h.vault.StoreCredential(r.Context(), st.UserID, service, "oauth2", payload, nil); err != nil {
		httpserver.RespondAppError(w, h.logger, err)
		return
	}

	if h.audit != nil {
		uid, sid := st.UserID, service
		h.audit.Log(audit.Entry{UserID: &uid, ServiceID: &sid, Action: "credential_connected"})
	}

	httpserver.Respond(w, http.StatusOK, map[string]any{"service": service, "connected": true})
}

// exchangeCode drives the authorization-code exchange through oauth2.Config,
// injecting h.client (bounded retries) as the transport it uses internally.
func (h *Handler) exchangeCode(ctx context.Context, cfg *oauth2.Config, code string) (*oauth2.Token, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, h.client.StandardClient())

	tok, err := cfg.Exchange(ctx, code)
	if err != nil {
		return nil, apperr.Transient("exchanging authorization code", err)
	}
	if tok.AccessToken == "" {
		return nil, apperr.Invalid("token exchange response missing access_token")
	}
	return tok, nil
}
