package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRequireAuth(t *testing.T) {
	ok := func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }

	tests := []struct {
		name       string
		identity   *Identity
		wantStatus int
	}{
		{"authenticated", &Identity{Subject: "key:1"}, http.StatusOK},
		{"no identity", nil, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.identity != nil {
				req = req.WithContext(NewContext(req.Context(), tt.identity))
			}
			rec := httptest.NewRecorder()
			RequireAuth(http.HandlerFunc(ok)).ServeHTTP(rec, req)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestRequireScope(t *testing.T) {
	ok := func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }

	tests := []struct {
		name       string
		identity   *Identity
		scope      string
		wantStatus int
	}{
		{"has exact scope", &Identity{Scopes: []string{ScopeExecute}}, ScopeExecute, http.StatusOK},
		{"has wildcard", &Identity{Scopes: []string{ScopeWildcard}}, ScopeExecute, http.StatusOK},
		{"missing scope", &Identity{Scopes: []string{ScopeDiscover}}, ScopeExecute, http.StatusForbidden},
		{"no identity", nil, ScopeExecute, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.identity != nil {
				req = req.WithContext(NewContext(req.Context(), tt.identity))
			}
			rec := httptest.NewRecorder()
			RequireScope(tt.scope)(http.HandlerFunc(ok)).ServeHTTP(rec, req)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestRequireAdmin(t *testing.T) {
	ok := func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }

	tests := []struct {
		name       string
		identity   *Identity
		wantStatus int
	}{
		{"admin", &Identity{Scopes: []string{ScopeWildcard}}, http.StatusOK},
		{"non-admin", &Identity{Scopes: []string{ScopeExecute, ScopeQuery}}, http.StatusForbidden},
		{"no identity", nil, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.identity != nil {
				req = req.WithContext(NewContext(req.Context(), tt.identity))
			}
			rec := httptest.NewRecorder()
			RequireAdmin(http.HandlerFunc(ok)).ServeHTTP(rec, req)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}
