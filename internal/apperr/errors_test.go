package apperr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindForbidden, KindOf(Forbidden("nope")))
	assert.Equal(t, KindTransient, KindOf(errors.New("plain error")))
	assert.Equal(t, KindTransient, KindOf(nil))
}

func TestStatusCode(t *testing.T) {
	tests := []struct {
		kind Kind
		want int
	}{
		{KindNotFound, 404},
		{KindConflict, 409},
		{KindUnauthorized, 401},
		{KindForbidden, 403},
		{KindInvalid, 400},
		{KindExpired, 403},
		{KindIntegrity, 500},
		{KindTransient, 503},
		{Kind("unmapped"), 503},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			assert.Equal(t, tt.want, StatusCode(tt.kind))
		})
	}
}

func TestWrap_UnwrapsToCause(t *testing.T) {
	cause := errors.New("pool exhausted")
	err := Transient("querying store", cause)

	assert.True(t, errors.Is(err, cause))
	assert.Contains(t, err.Error(), "pool exhausted")
}

func TestNew_NoWrappedCause(t *testing.T) {
	err := NotFound("adapter not found")
	assert.Nil(t, err.Unwrap())
	assert.Equal(t, "not_found: adapter not found", err.Error())
}
