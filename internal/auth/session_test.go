package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerateDevSecret(t *testing.T) {
	a := GenerateDevSecret()
	b := GenerateDevSecret()

	assert.Len(t, a, 64) // 32 bytes, hex-encoded
	assert.NotEqual(t, a, b)
}

func TestNewSessionManager_RejectsShortSecret(t *testing.T) {
	_, err := NewSessionManager(nil, "too-short", 0)
	assert.Error(t, err)
}

func TestNewSessionManager_AcceptsDevSecret(t *testing.T) {
	sm, err := NewSessionManager(nil, GenerateDevSecret(), 0)
	assert.NoError(t, err)
	assert.NotNil(t, sm)
}
