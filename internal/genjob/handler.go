package genjob

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/agenr/gateway/internal/auth"
	"github.com/agenr/gateway/internal/httpserver"
)

// Handler exposes the read-only /adapters/jobs surface: job listing and
// single-job lookup. Submission lives on internal/adapter's handler via the
// JobSubmitter interface so that package stays the only caller-facing entry
// point for "generate an adapter".
type Handler struct {
	store  *Store
	logger *slog.Logger
}

func NewHandler(store *Store, logger *slog.Logger) *Handler {
	return &Handler{store: store, logger: logger}
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.handleList)
	r.Get("/{id}", h.handleGet)
	return r
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
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

	storeParams := CursorParams{Limit: cp.Limit + 1}
	if cp.After != nil {
		storeParams.BeforeCreatedAt = &cp.After.CreatedAt
		beforeID := cp.After.ID.String()
		storeParams.BeforeID = &beforeID
	}

	jobs, err := h.store.List(r.Context(), id.PrincipalID(), id.IsAdmin(), storeParams)
	if err != nil {
		httpserver.RespondAppError(w, h.logger, err)
		return
	}

	dtos := toDTOs(jobs)
	page := httpserver.NewCursorPage(dtos, cp.Limit, func(d DTO) httpserver.Cursor {
		return httpserver.Cursor{CreatedAt: d.CreatedAt, ID: uuid.MustParse(d.ID)}
	})
	httpserver.Respond(w, http.StatusOK, page)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())
	if id == nil {
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}

	job, err := h.store.Get(r.Context(), chi.URLParam(r, "id"), id.PrincipalID(), id.IsAdmin())
	if err != nil {
		httpserver.RespondAppError(w, h.logger, err)
		return
	}
	if job == nil {
		httpserver.RespondError(w, http.StatusNotFound, "not_found", "generation job not found")
		return
	}
	httpserver.Respond(w, http.StatusOK, toDTO(*job))
}

// DTO is the public projection of a Job.
type DTO struct {
	ID          string     `json:"id"`
	Platform    string     `json:"platform"`
	Status      string     `json:"status"`
	Logs        []string   `json:"logs"`
	Error       *string    `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

func toDTO(j Job) DTO {
	return DTO{
		ID:          j.ID,
		Platform:    j.Platform,
		Status:      j.Status,
		Logs:        j.Logs,
		Error:       j.Error,
		CreatedAt:   j.CreatedAt,
		StartedAt:   j.StartedAt,
		CompletedAt: j.CompletedAt,
	}
}

func toDTOs(jobs []Job) []DTO {
	out := make([]DTO, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, toDTO(j))
	}
	return out
}
