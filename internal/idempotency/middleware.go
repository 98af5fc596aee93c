package idempotency

import (
	"bytes"
	"log/slog"
	"net/http"

	"github.com/agenr/gateway/internal/auth"
	"github.com/agenr/gateway/internal/telemetry"
)

// Middleware replays a cached response verbatim when the incoming request
// carries an Idempotency-Key header already seen for this principal, and
// otherwise captures the handler's response for future replay. Requests
// without the header pass through untouched.
func Middleware(store *Store, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientKey := r.Header.Get(HeaderKey)
			if clientKey == "" {
				next.ServeHTTP(w, r)
				return
			}

			id := auth.FromContext(r.Context())
			if id == nil {
				next.ServeHTTP(w, r)
				return
			}
			principalID := id.PrincipalID()

			cached, err := store.Get(r.Context(), principalID, clientKey)
			if err != nil {
				logger.Error("idempotency lookup failed", "error", err)
				next.ServeHTTP(w, r)
				return
			}
			if cached != nil {
				telemetry.IdempotencyHitsTotal.Inc()
				replay(w, cached)
				return
			}

			rec := &responseRecorder{ResponseWriter: w, status: http.StatusOK, body: &bytes.Buffer{}}
			next.ServeHTTP(rec, r)

			if rec.status >= 200 && rec.status < 300 {
				if err := store.Insert(r.Context(), principalID, clientKey, rec.status, rec.Header().Clone(), rec.body.Bytes()); err != nil {
					logger.Warn("idempotency cache write failed", "error", err)
				}
			}
		})
	}
}

func replay(w http.ResponseWriter, e *Entry) {
	header := w.Header()
	for k, vs := range e.Headers {
		for _, v := range vs {
			header.Add(k, v)
		}
	}
	w.WriteHeader(e.Status)
	_, _ = w.Write(e.Body)
}

// responseRecorder captures status, headers, and body while still writing
// them through to the real client, so the caller sees a normal response on
// first execution and the middleware gets a verbatim copy to cache.
type responseRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
	body        *bytes.Buffer
}

func (rr *responseRecorder) WriteHeader(code int) {
	rr.status = code
	rr.wroteHeader = true
	rr.ResponseWriter.WriteHeader(code)
}

func (rr *responseRecorder) Write(b []byte) (int, error) {
	if !rr.wroteHeader {
		rr.WriteHeader(http.StatusOK)
	}
	rr.body.Write(b)
	return rr.ResponseWriter.Write(b)
}
