// Package credential exposes the HTTP surface over internal/vault: storing,
// listing and deleting per-user credentials, plus their audit activity, and
// an admin-only surface that stores and retrieves adapter app OAuth client
// credentials under the fixed system owner.
package credential

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agenr/gateway/internal/audit"
	"github.com/agenr/gateway/internal/auth"
	"github.com/agenr/gateway/internal/httpserver"
	"github.com/agenr/gateway/internal/vault"
)

type Handler struct {
	logger *slog.Logger
	vault  *vault.Vault
	audit  *audit.Writer
	db     *pgxpool.Pool
}

func NewHandler(logger *slog.Logger, v *vault.Vault, auditWriter *audit.Writer, pool *pgxpool.Pool) *Handler {
	return &Handler{logger: logger, vault: v, audit: auditWriter, db: pool}
}

// Routes mounts the per-user credential surface. The caller is expected to
// guard this router behind auth.RequireAuth.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.handleList)
	r.Post("/{service}", h.handleStore)
	r.Delete("/{service}", h.handleDelete)
	r.Get("/{service}/activity", h.handleActivity)
	return r
}

// AdminRoutes mounts the adapter app-credential surface. The caller is
// expected to guard this router behind auth.RequireAdmin.
func (h *Handler) AdminRoutes() chi.Router {
	r := chi.NewRouter()
	r.Post("/{service}", h.handleStoreApp)
	r.Get("/{service}", h.handleRetrieveApp)
	return r
}

type storeRequest struct {
	AuthType string         `json:"authType" validate:"required"`
	Payload  map[string]any `json:"payload" validate:"required"`
	Scopes   []string       `json:"scopes"`
}

func (h *Handler) handleStore(w http.ResponseWriter, r *http.Request) {
	service := chi.URLParam(r, "service")

	var req storeRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	id := auth.FromContext(r.Context())
	if id == nil {
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}

	if err := h.vault.StoreCredential(r.Context(), id.OwnerID(), service, req.AuthType, req.Payload, req.Scopes); err != nil {
		httpserver.RespondAppError(w, h.logger, err)
		return
	}

	httpserver.Respond(w, http.StatusNoContent, nil)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())
	if id == nil {
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}

	items, err := h.vault.ListCredentials(r.Context(), id.OwnerID())
	if err != nil {
		httpserver.RespondAppError(w, h.logger, err)
		return
	}

	httpserver.Respond(w, http.StatusOK, map[string]any{"credentials": items})
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	service := chi.URLParam(r, "service")

	id := auth.FromContext(r.Context())
	if id == nil {
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}

	if err := h.vault.DeleteCredential(r.Context(), id.OwnerID(), service); err != nil {
		httpserver.RespondAppError(w, h.logger, err)
		return
	}

	httpserver.Respond(w, http.StatusNoContent, nil)
}

func (h *Handler) handleActivity(w http.ResponseWriter, r *http.Request) {
	service := chi.URLParam(r, "service")

	id := auth.FromContext(r.Context())
	if id == nil {
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}

	cp, err := httpserver.ParseCursorParams(r)
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	var before *time.Time
	if cp.After != nil {
		before = &cp.After.CreatedAt
	}

	items, err := audit.ListActivity(r.Context(), h.db, id.OwnerID(), service, before, cp.Limit+1)
	if err != nil {
		httpserver.RespondAppError(w, h.logger, err)
		return
	}

	page := httpserver.NewCursorPage(items, cp.Limit, func(e audit.ActivityEntry) httpserver.Cursor {
		return httpserver.Cursor{CreatedAt: e.Timestamp, ID: e.ID}
	})
	httpserver.Respond(w, http.StatusOK, page)
}

func (h *Handler) handleStoreApp(w http.ResponseWriter, r *http.Request) {
	service := chi.URLParam(r, "service")

	var payload map[string]any
	if err := httpserver.Decode(r, &payload); err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	if err := h.vault.StoreAppCredential(r.Context(), service, payload); err != nil {
		httpserver.RespondAppError(w, h.logger, err)
		return
	}

	if h.audit != nil {
		h.audit.LogFromRequest(r, service, "app_credential_stored", nil, nil)
	}

	httpserver.Respond(w, http.StatusNoContent, nil)
}

func (h *Handler) handleRetrieveApp(w http.ResponseWriter, r *http.Request) {
	service := chi.URLParam(r, "service")

	payload, err := h.vault.RetrieveAppCredential(r.Context(), service)
	if err != nil {
		httpserver.RespondAppError(w, h.logger, err)
		return
	}

	httpserver.Respond(w, http.StatusOK, payload)
}
