package audit

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agenr/gateway/internal/auth"
	"github.com/agenr/gateway/internal/httpserver"
)

// Handler exposes the chain-verification endpoint.
type Handler struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewHandler(pool *pgxpool.Pool, logger *slog.Logger) *Handler {
	return &Handler{pool: pool, logger: logger}
}

// Routes mounts GET /verify. Admins get the full chain; non-admins get their
// own chain only.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/verify", h.handleVerify)
	return r
}

func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())
	if id == nil {
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}

	var result VerifyResult
	var err error
	if id.IsAdmin() {
		result, err = VerifyChain(r.Context(), h.pool)
	} else {
		result, err = VerifyUserChain(r.Context(), h.pool, id.OwnerID())
	}
	if err != nil {
		h.logger.Error("verifying audit chain", "error", err)
		httpserver.RespondError(w, http.StatusServiceUnavailable, "transient", "failed to verify audit chain")
		return
	}

	httpserver.Respond(w, http.StatusOK, result)
}
