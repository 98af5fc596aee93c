package genjob

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/agenr/gateway/internal/auth"
)

func withIdentity(r *http.Request) *http.Request {
	return r.WithContext(auth.NewContext(r.Context(), &auth.Identity{Subject: "key:1"}))
}

func TestHandleList_RequiresIdentity(t *testing.T) {
	h := NewHandler(nil, slog.Default())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	h.handleList(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandleList_RejectsNonIntegerLimit(t *testing.T) {
	h := NewHandler(nil, slog.Default())

	req := withIdentity(httptest.NewRequest(http.MethodGet, "/?limit=abc", nil))
	rec := httptest.NewRecorder()
	h.handleList(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleList_RejectsMalformedCursor(t *testing.T) {
	h := NewHandler(nil, slog.Default())

	req := withIdentity(httptest.NewRequest(http.MethodGet, "/?after=not-a-cursor", nil))
	rec := httptest.NewRecorder()
	h.handleList(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleGet_RequiresIdentity(t *testing.T) {
	h := NewHandler(nil, slog.Default())

	req := httptest.NewRequest(http.MethodGet, "/abc", nil)
	rec := httptest.NewRecorder()
	h.handleGet(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestToDTO_CopiesAllFields(t *testing.T) {
	now := time.Now()
	errMsg := "boom"
	job := Job{
		ID:        "job-1",
		Platform:  "stripe",
		Status:    StatusFailed,
		Logs:      []string{"starting", "failed"},
		Error:     &errMsg,
		CreatedAt: now,
	}

	dto := toDTO(job)
	assert.Equal(t, "job-1", dto.ID)
	assert.Equal(t, "stripe", dto.Platform)
	assert.Equal(t, StatusFailed, dto.Status)
	assert.Equal(t, []string{"starting", "failed"}, dto.Logs)
	assert.Equal(t, &errMsg, dto.Error)
}

func TestToDTOs_PreservesOrderAndLength(t *testing.T) {
	jobs := []Job{{ID: "a"}, {ID: "b"}, {ID: "c"}}
	dtos := toDTOs(jobs)

	assert.Len(t, dtos, 3)
	assert.Equal(t, "a", dtos[0].ID)
	assert.Equal(t, "c", dtos[2].ID)
}

func TestToDTOs_EmptyInputYieldsEmptyNotNilSlice(t *testing.T) {
	dtos := toDTOs(nil)
	assert.NotNil(t, dtos)
	assert.Len(t, dtos, 0)
}
