package httpserver

import (
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/agenr/gateway/internal/apperr"
)

func TestRespond_WritesStatusAndJSONBody(t *testing.T) {
	rec := httptest.NewRecorder()
	Respond(rec, 201, map[string]string{"ok": "yes"})

	assert.Equal(t, 201, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]string
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "yes", body["ok"])
}

func TestRespond_NilDataWritesNoBody(t *testing.T) {
	rec := httptest.NewRecorder()
	Respond(rec, 204, nil)

	assert.Equal(t, 204, rec.Code)
	assert.Empty(t, rec.Body.Bytes())
}

func TestRespondError_WritesEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondError(rec, 400, "invalid", "missing field x")

	var body ErrorResponse
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "invalid", body.Error)
	assert.Equal(t, "missing field x", body.Message)
}

func TestRespondAppError_MapsKindToStatusAndMessage(t *testing.T) {
	rec := httptest.NewRecorder()
	err := apperr.NotFound("adapter not found")
	RespondAppError(rec, nil, err)

	assert.Equal(t, apperr.StatusCode(apperr.KindNotFound), rec.Code)

	var body ErrorResponse
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, string(apperr.KindNotFound), body.Error)
	assert.Equal(t, "adapter not found", body.Message)
}

func TestRespondAppError_UntypedErrorDefaultsToTransient(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondAppError(rec, nil, errors.New("boom"))

	assert.Equal(t, apperr.StatusCode(apperr.KindTransient), rec.Code)
}
