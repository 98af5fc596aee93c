package credential

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/agenr/gateway/internal/auth"
	"github.com/stretchr/testify/assert"
)

func TestHandleList_RequiresIdentity(t *testing.T) {
	h := NewHandler(slog.Default(), nil, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	h.handleList(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandleDelete_RequiresIdentity(t *testing.T) {
	h := NewHandler(slog.Default(), nil, nil, nil)

	req := httptest.NewRequest(http.MethodDelete, "/stripe", nil)
	rec := httptest.NewRecorder()
	h.handleDelete(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandleActivity_RequiresIdentity(t *testing.T) {
	h := NewHandler(slog.Default(), nil, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/stripe/activity", nil)
	rec := httptest.NewRecorder()
	h.handleActivity(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandleActivity_RejectsNonIntegerLimit(t *testing.T) {
	h := NewHandler(slog.Default(), nil, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/stripe/activity?limit=abc", nil)
	req = req.WithContext(auth.NewContext(req.Context(), &auth.Identity{Subject: "key:1"}))
	rec := httptest.NewRecorder()
	h.handleActivity(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleActivity_RejectsMalformedCursor(t *testing.T) {
	h := NewHandler(slog.Default(), nil, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/stripe/activity?after=not-a-cursor", nil)
	req = req.WithContext(auth.NewContext(req.Context(), &auth.Identity{Subject: "key:1"}))
	rec := httptest.NewRecorder()
	h.handleActivity(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
