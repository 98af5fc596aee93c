package execute

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/agenr/gateway/internal/adapter"
	"github.com/agenr/gateway/internal/auth"
	"github.com/agenr/gateway/internal/confirm"
	"github.com/agenr/gateway/internal/httpserver"
	"github.com/agenr/gateway/internal/journal"
)

// Handler exposes the /agp HTTP surface: discover, query, execute (with its
// confirmation prepare step), and transaction lookup.
type Handler struct {
	service *Service
	logger  *slog.Logger
}

func NewHandler(service *Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/discover", h.handleDiscover)
	r.Post("/query", h.handleQuery)
	r.Post("/execute/prepare", h.handlePrepare)
	r.Post("/execute", h.handleExecute)
	r.Get("/transactions/{id}", h.handleGetTransaction)
	return r
}

type operationRequest struct {
	Platform   string         `json:"platform" validate:"required"`
	BusinessID string         `json:"business_id" validate:"required"`
	Params     map[string]any `json:"params"`
}

func (h *Handler) handleDiscover(w http.ResponseWriter, r *http.Request) {
	id := identityOrUnauthorized(w, r)
	if id == nil {
		return
	}
	if !id.HasScope(auth.ScopeDiscover) {
		httpserver.RespondError(w, http.StatusForbidden, "forbidden", "Missing required scope: discover")
		return
	}
	var req operationRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	tx, resp, err := h.service.Discover(r.Context(), req.Platform, id.PrincipalID(), req.BusinessID, req.Params)
	h.respondOperation(w, r, tx, resp, err)
}

func (h *Handler) handleQuery(w http.ResponseWriter, r *http.Request) {
	id := identityOrUnauthorized(w, r)
	if id == nil {
		return
	}
	if !id.HasScope(auth.ScopeQuery) {
		httpserver.RespondError(w, http.StatusForbidden, "forbidden", "Missing required scope: query")
		return
	}
	var req operationRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	tx, resp, err := h.service.Query(r.Context(), req.Platform, id.PrincipalID(), id.OwnerID(), req.BusinessID, req.Params)
	h.respondOperation(w, r, tx, resp, err)
}

type prepareRequest struct {
	BusinessID string         `json:"business_id" validate:"required"`
	Params     map[string]any `json:"params"`
	Summary    string         `json:"summary"`
}

func (h *Handler) handlePrepare(w http.ResponseWriter, r *http.Request) {
	id := identityOrUnauthorized(w, r)
	if id == nil {
		return
	}
	if !id.HasScope(auth.ScopeExecute) {
		httpserver.RespondError(w, http.StatusForbidden, "forbidden", "Missing required scope: execute")
		return
	}
	var req prepareRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	result, err := h.service.Prepare(r.Context(), req.BusinessID, req.Params, req.Summary)
	if err != nil {
		httpserver.RespondAppError(w, h.logger, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, result)
}

func (h *Handler) handleExecute(w http.ResponseWriter, r *http.Request) {
	id := identityOrUnauthorized(w, r)
	if id == nil {
		return
	}
	if !id.HasScope(auth.ScopeExecute) {
		httpserver.RespondError(w, http.StatusForbidden, "forbidden", "Missing required scope: execute")
		return
	}
	var req operationRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	token := r.Header.Get(confirm.HeaderToken)
	tx, resp, err := h.service.Execute(r.Context(), req.Platform, id.PrincipalID(), id.OwnerID(), req.BusinessID, req.Params, token)
	h.respondOperation(w, r, tx, resp, err)
}

func (h *Handler) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	id := identityOrUnauthorized(w, r)
	if id == nil {
		return
	}
	tx, err := h.service.Get(r.Context(), chi.URLParam(r, "id"), id.PrincipalID())
	if err != nil {
		httpserver.RespondAppError(w, h.logger, err)
		return
	}
	if tx == nil {
		httpserver.RespondError(w, http.StatusNotFound, "not_found", "transaction not found")
		return
	}
	httpserver.Respond(w, http.StatusOK, tx)
}

func (h *Handler) respondOperation(w http.ResponseWriter, r *http.Request, tx *journal.Transaction, resp adapter.Response, err error) {
	if err != nil {
		httpserver.RespondAppError(w, h.logger, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, map[string]any{
		"transaction_id": tx.ID,
		"response":       resp,
	})
}

func identityOrUnauthorized(w http.ResponseWriter, r *http.Request) *auth.Identity {
	id := auth.FromContext(r.Context())
	if id == nil {
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return nil
	}
	return id
}
