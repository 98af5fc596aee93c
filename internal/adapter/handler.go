package adapter

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/agenr/gateway/internal/audit"
	"github.com/agenr/gateway/internal/auth"
	"github.com/agenr/gateway/internal/httpserver"
)

// JobSubmitter queues an adapter-generation job on behalf of an owner. It is
// satisfied by internal/genjob.Service; defined here (not imported) so this
// package never depends on genjob, which itself depends on adapter to
// persist a job's generated source as a sandbox adapter.
type JobSubmitter interface {
	Submit(ctx context.Context, platform, ownerID string) (string, error)
}

// Handler exposes the /adapters HTTP surface: listing, upload/generate, and
// the full lifecycle transitions. Job listing lives in internal/genjob's own
// handler to avoid the import cycle noted on JobSubmitter.
type Handler struct {
	store    *Store
	service  *Service
	jobs     JobSubmitter
	audit    *audit.Writer
	logger   *slog.Logger
}

func NewHandler(store *Store, service *Service, jobs JobSubmitter, auditWriter *audit.Writer, logger *slog.Logger) *Handler {
	return &Handler{store: store, service: service, jobs: jobs, audit: auditWriter, logger: logger}
}

// Routes mounts the adapter lifecycle surface. The caller guards this router
// behind auth.RequireAuth; individual handlers further check scope/ownership.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.handleList)
	r.Get("/reviews", h.handleReviews)
	r.Get("/archived", h.handleArchived)
	r.Post("/generate", h.handleGenerate)
	r.Post("/{platform}/upload", h.handleUpload)
	r.Post("/{platform}/submit", h.handleSubmit)
	r.Post("/{platform}/withdraw", h.handleWithdraw)
	r.Post("/{platform}/promote", h.handlePromote)
	r.Post("/{platform}/demote", h.handleDemote)
	r.Post("/{platform}/reject", h.handleReject)
	r.Post("/{platform}/restore", h.handleRestore)
	r.Delete("/{platform}", h.handleArchive)
	r.Delete("/{platform}/hard", h.handleHardDelete)
	return r
}

func identityOrUnauthorized(w http.ResponseWriter, r *http.Request) *auth.Identity {
	id := auth.FromContext(r.Context())
	if id == nil {
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return nil
	}
	return id
}

// handleList returns adapters visible to the caller: admins see every row;
// everyone else sees their own sandbox/review rows plus every public row.
func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	id := identityOrUnauthorized(w, r)
	if id == nil {
		return
	}
	rows, err := h.store.ListVisible(r.Context(), id.PrincipalID(), id.IsAdmin())
	if err != nil {
		httpserver.RespondAppError(w, h.logger, err)
		return
	}
	if !id.IsAdmin() {
		visible := make([]Row, 0, len(rows))
		for _, row := range rows {
			if row.Status == StatusPublic || row.Status == StatusSandbox || row.Status == StatusReview {
				visible = append(visible, row)
			}
		}
		rows = visible
	}
	httpserver.Respond(w, http.StatusOK, map[string]any{"adapters": toDTOs(rows)})
}

// handleReviews is an admin-only view of rows currently pending review.
func (h *Handler) handleReviews(w http.ResponseWriter, r *http.Request) {
	id := identityOrUnauthorized(w, r)
	if id == nil {
		return
	}
	if !id.IsAdmin() {
		httpserver.RespondError(w, http.StatusForbidden, "forbidden", "Missing required scope: *")
		return
	}
	rows, err := h.store.ListVisible(r.Context(), id.PrincipalID(), true)
	if err != nil {
		httpserver.RespondAppError(w, h.logger, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, map[string]any{"adapters": toDTOs(filterStatus(rows, StatusReview))})
}

// handleArchived returns the caller's own archived adapters (admins see all).
func (h *Handler) handleArchived(w http.ResponseWriter, r *http.Request) {
	id := identityOrUnauthorized(w, r)
	if id == nil {
		return
	}
	rows, err := h.store.ListVisible(r.Context(), id.PrincipalID(), id.IsAdmin())
	if err != nil {
		httpserver.RespondAppError(w, h.logger, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, map[string]any{"adapters": toDTOs(filterStatus(rows, StatusArchived))})
}

type generateRequest struct {
	Platform string `json:"platform" validate:"required"`
}

func (h *Handler) handleGenerate(w http.ResponseWriter, r *http.Request) {
	id := identityOrUnauthorized(w, r)
	if id == nil {
		return
	}
	if !id.HasScope(auth.ScopeGenerate) {
		httpserver.RespondError(w, http.StatusForbidden, "forbidden", "Missing required scope: generate")
		return
	}

	var req generateRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	jobID, err := h.jobs.Submit(r.Context(), req.Platform, id.PrincipalID())
	if err != nil {
		httpserver.RespondAppError(w, h.logger, err)
		return
	}

	httpserver.Respond(w, http.StatusAccepted, map[string]any{"job_id": jobID})
}

type uploadRequest struct {
	SourceCode string `json:"source_code" validate:"required"`
}

func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	id := identityOrUnauthorized(w, r)
	if id == nil {
		return
	}
	platform := chi.URLParam(r, "platform")

	var req uploadRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	row, err := h.service.Upload(r.Context(), platform, id.PrincipalID(), req.SourceCode)
	if err != nil {
		httpserver.RespondAppError(w, h.logger, err)
		return
	}

	if h.audit != nil {
		h.audit.LogFromRequest(r, platform, "adapter_uploaded", nil, map[string]any{"status": row.Status})
	}
	httpserver.Respond(w, http.StatusOK, toDTO(*row))
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(ctx context.Context, platform, ownerID string) error {
		return h.service.Submit(ctx, platform, ownerID)
	}, "adapter_submitted")
}

func (h *Handler) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(ctx context.Context, platform, ownerID string) error {
		return h.service.Withdraw(ctx, platform, ownerID)
	}, "adapter_withdrawn")
}

type reviewActionRequest struct {
	Message  string `json:"message"`
	Feedback string `json:"feedback"`
}

func (h *Handler) handlePromote(w http.ResponseWriter, r *http.Request) {
	id := identityOrUnauthorized(w, r)
	if id == nil {
		return
	}
	if !id.IsAdmin() {
		httpserver.RespondError(w, http.StatusForbidden, "forbidden", "Missing required scope: *")
		return
	}
	platform := chi.URLParam(r, "platform")
	ownerID := r.URL.Query().Get("owner_id")
	if ownerID == "" {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "owner_id query parameter is required")
		return
	}

	if err := h.service.Promote(r.Context(), platform, ownerID, id.PrincipalID()); err != nil {
		httpserver.RespondAppError(w, h.logger, err)
		return
	}
	if h.audit != nil {
		h.audit.LogFromRequest(r, platform, "adapter_promoted", nil, map[string]any{"owner_id": ownerID})
	}
	httpserver.Respond(w, http.StatusNoContent, nil)
}

func (h *Handler) handleDemote(w http.ResponseWriter, r *http.Request) {
	id := identityOrUnauthorized(w, r)
	if id == nil {
		return
	}
	if !id.IsAdmin() {
		httpserver.RespondError(w, http.StatusForbidden, "forbidden", "Missing required scope: *")
		return
	}
	platform := chi.URLParam(r, "platform")
	if err := h.service.Demote(r.Context(), platform); err != nil {
		httpserver.RespondAppError(w, h.logger, err)
		return
	}
	if h.audit != nil {
		h.audit.LogFromRequest(r, platform, "adapter_demoted", nil, nil)
	}
	httpserver.Respond(w, http.StatusNoContent, nil)
}

func (h *Handler) handleReject(w http.ResponseWriter, r *http.Request) {
	id := identityOrUnauthorized(w, r)
	if id == nil {
		return
	}
	if !id.IsAdmin() {
		httpserver.RespondError(w, http.StatusForbidden, "forbidden", "Missing required scope: *")
		return
	}
	platform := chi.URLParam(r, "platform")
	ownerID := r.URL.Query().Get("owner_id")
	if ownerID == "" {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "owner_id query parameter is required")
		return
	}

	var req reviewActionRequest
	if err := httpserver.Decode(r, &req); err != nil && r.ContentLength != 0 {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	if err := h.service.Reject(r.Context(), platform, ownerID, req.Message, req.Feedback); err != nil {
		httpserver.RespondAppError(w, h.logger, err)
		return
	}
	if h.audit != nil {
		h.audit.LogFromRequest(r, platform, "adapter_rejected", nil, map[string]any{"owner_id": ownerID})
	}
	httpserver.Respond(w, http.StatusNoContent, nil)
}

func (h *Handler) handleRestore(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(ctx context.Context, platform, ownerID string) error {
		return h.service.Restore(ctx, platform, ownerID)
	}, "adapter_restored")
}

func (h *Handler) handleArchive(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(ctx context.Context, platform, ownerID string) error {
		return h.service.Archive(ctx, platform, ownerID)
	}, "adapter_archived")
}

func (h *Handler) handleHardDelete(w http.ResponseWriter, r *http.Request) {
	id := identityOrUnauthorized(w, r)
	if id == nil {
		return
	}
	if !id.IsAdmin() {
		httpserver.RespondError(w, http.StatusForbidden, "forbidden", "Missing required scope: *")
		return
	}
	platform := chi.URLParam(r, "platform")
	ownerID := r.URL.Query().Get("owner_id")
	if ownerID == "" {
		ownerID = id.PrincipalID()
	}
	if err := h.service.HardDelete(r.Context(), platform, ownerID); err != nil {
		httpserver.RespondAppError(w, h.logger, err)
		return
	}
	if h.audit != nil {
		h.audit.LogFromRequest(r, platform, "adapter_hard_deleted", nil, map[string]any{"owner_id": ownerID})
	}
	httpserver.Respond(w, http.StatusNoContent, nil)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, platform, ownerID string) error, action string) {
	id := identityOrUnauthorized(w, r)
	if id == nil {
		return
	}
	platform := chi.URLParam(r, "platform")
	if err := fn(r.Context(), platform, id.PrincipalID()); err != nil {
		httpserver.RespondAppError(w, h.logger, err)
		return
	}
	if h.audit != nil {
		h.audit.LogFromRequest(r, platform, action, nil, nil)
	}
	httpserver.Respond(w, http.StatusNoContent, nil)
}

// DTO is the public projection of a Row, deliberately omitting source_code.
type DTO struct {
	ID            string  `json:"id"`
	Platform      string  `json:"platform"`
	OwnerID       string  `json:"owner_id"`
	Status        string  `json:"status"`
	SourceHash    string  `json:"source_hash"`
	ReviewMessage *string `json:"review_message,omitempty"`
}

func toDTO(r Row) DTO {
	return DTO{
		ID:            r.ID,
		Platform:      r.Platform,
		OwnerID:       r.OwnerID,
		Status:        r.Status,
		SourceHash:    r.SourceHash,
		ReviewMessage: r.ReviewMessage,
	}
}

func toDTOs(rows []Row) []DTO {
	out := make([]DTO, 0, len(rows))
	for _, r := range rows {
		out = append(out, toDTO(r))
	}
	return out
}

func filterStatus(rows []Row, status string) []Row {
	out := make([]Row, 0, len(rows))
	for _, r := range rows {
		if r.Status == status {
			out = append(out, r)
		}
	}
	return out
}
