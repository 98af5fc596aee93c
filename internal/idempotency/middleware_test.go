package idempotency

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMiddleware_PassesThroughWithoutKeyHeader(t *testing.T) {
	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	})

	// store is never touched on this path: nil is safe.
	h := Middleware(nil, slog.Default())(next)

	req := httptest.NewRequest(http.MethodPost, "/v1/execute", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.True(t, called)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMiddleware_PassesThroughWithoutIdentity(t *testing.T) {
	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	})

	h := Middleware(nil, slog.Default())(next)

	req := httptest.NewRequest(http.MethodPost, "/v1/execute", nil)
	req.Header.Set(HeaderKey, "client-key-1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.True(t, called, "an unauthenticated request must still pass through rather than consult the store")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestResponseRecorder_CapturesStatusAndBody(t *testing.T) {
	rec := httptest.NewRecorder()
	rr := &responseRecorder{ResponseWriter: rec, status: http.StatusOK, body: &bytes.Buffer{}}

	rr.WriteHeader(http.StatusCreated)
	_, _ = rr.Write([]byte(`{"ok":true}`))

	assert.Equal(t, http.StatusCreated, rr.status)
	assert.Equal(t, `{"ok":true}`, rr.body.String())
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestResponseRecorder_WriteWithoutExplicitHeaderDefaultsTo200(t *testing.T) {
	rec := httptest.NewRecorder()
	rr := &responseRecorder{ResponseWriter: rec, status: http.StatusOK, body: &bytes.Buffer{}}

	_, _ = rr.Write([]byte("hello"))

	assert.Equal(t, http.StatusOK, rr.status)
}

func TestReplay_WritesStatusHeadersAndBody(t *testing.T) {
	rec := httptest.NewRecorder()
	entry := &Entry{
		Status:  http.StatusAccepted,
		Headers: map[string][]string{"X-Custom": {"v1"}},
		Body:    []byte("cached-body"),
	}

	replay(rec, entry)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "v1", rec.Header().Get("X-Custom"))
	assert.Equal(t, "cached-body", rec.Body.String())
}
