package auth

import (
	"fmt"
	"net/http"

	"github.com/agenr/gateway/internal/httpserver"
)

// RequireAuth rejects requests that carried no valid authentication at all.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if FromContext(r.Context()) == nil {
			httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireScope returns middleware that rejects requests whose identity does
// not hold scope (unless the identity carries the wildcard scope). The 403
// body is "Missing required scope: <scope>", naming only the scope the route
// requires, for every identity, so callers cannot probe their key's scope set.
func RequireScope(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := FromContext(r.Context())
			if id == nil {
				httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
				return
			}
			if !id.HasScope(scope) {
				httpserver.RespondError(w, http.StatusForbidden, "forbidden", fmt.Sprintf("Missing required scope: %s", scope))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAdmin rejects requests whose identity does not hold the wildcard scope.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := FromContext(r.Context())
		if id == nil {
			httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
			return
		}
		if !id.IsAdmin() {
			httpserver.RespondError(w, http.StatusForbidden, "forbidden", fmt.Sprintf("Missing required scope: %s", ScopeWildcard))
			return
		}
		next.ServeHTTP(w, r)
	})
}
