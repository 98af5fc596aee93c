package auth

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/agenr/gateway/internal/httpserver"
)

// clientIP extracts the caller's address for rate-limiting purposes. It
// trusts X-Forwarded-For's first hop; fine behind the gateway's own reverse
// proxy, not a substitute for a hardened proxy-chain parser.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			return strings.TrimSpace(fwd[:i])
		}
		return strings.TrimSpace(fwd)
	}
	return r.RemoteAddr
}

// Middleware authenticates the caller via X-API-Key or a session bearer token
// and stores the resulting Identity in the request context. A request that
// presents no credential passes through unauthenticated — use RequireAuth to
// enforce that a request authenticated; a presented credential that fails to
// authenticate is rejected with 401. When
// limiter is non-nil, repeated invalid-credential attempts from the same IP
// are throttled, same as the teacher's login-attempt limiter, applied here to
// API-key/session presentation since this gateway has no separate login route.
func Middleware(a *Authenticator, limiter *LoginRateLimiter, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var identity *Identity

			hasCredential := r.Header.Get("X-API-Key") != "" || strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ")
			ip := clientIP(r)
			if limiter != nil && hasCredential {
				result, err := limiter.Check(r.Context(), ip)
				if err != nil {
					logger.Warn("rate limit check failed", "error", err)
				} else if !result.Allowed {
					httpserver.RespondError(w, http.StatusTooManyRequests, "rate_limited", "too many failed authentication attempts, try again later")
					return
				}
			}

			if rawKey := r.Header.Get("X-API-Key"); rawKey != "" {
				id, err := a.AuthenticateAPIKey(r.Context(), rawKey)
				if err != nil || id == nil {
					if limiter != nil {
						_ = limiter.Record(r.Context(), ip)
					}
					logAuthFailure(logger, MethodAPIKey, err)
					httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "invalid API key")
					return
				}
				identity = id
			}

			if identity == nil {
				if authHeader := r.Header.Get("Authorization"); strings.HasPrefix(authHeader, "Bearer ") {
					token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
					id, err := a.AuthenticateSession(r.Context(), token)
					if err != nil || id == nil {
						if limiter != nil {
							_ = limiter.Record(r.Context(), ip)
						}
						if err != nil {
							logAuthFailure(logger, MethodSession, err)
							httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "invalid session token")
						} else {
							httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "invalid or expired session token")
						}
						return
					}
					identity = id
				}
			}

			ctx := r.Context()
			if identity != nil {
				ctx = NewContext(ctx, identity)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
