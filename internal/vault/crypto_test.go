package vault

import (
	"testing"

	"github.com/agenr/gateway/internal/apperr"
	"github.com/stretchr/testify/assert"
)

func TestEncryptDecryptPayload_RoundTrip(t *testing.T) {
	dek := []byte("0123456789abcdef0123456789abcdef")
	plaintext := []byte(`{"access_token":"secret-value"}`)

	s, err := encryptPayload(dek, plaintext)
	assert.NoError(t, err)
	assert.NotEmpty(t, s.Ciphertext)
	assert.Len(t, s.IV, 12)
	assert.Len(t, s.AuthTag, 16)
	assert.NotContains(t, string(s.Ciphertext), "secret-value")

	out, err := decryptPayload(dek, s)
	assert.NoError(t, err)
	assert.Equal(t, plaintext, out)
}

func TestDecryptPayload_TamperedTagFailsAuthentication(t *testing.T) {
	dek := []byte("0123456789abcdef0123456789abcdef")
	s, err := encryptPayload(dek, []byte("hello"))
	assert.NoError(t, err)

	s.AuthTag[0] ^= 0xFF

	_, err = decryptPayload(dek, s)
	assert.Error(t, err)
	assert.Equal(t, apperr.KindIntegrity, apperr.KindOf(err))
}

func TestDecryptPayload_WrongKeyFails(t *testing.T) {
	dek := []byte("0123456789abcdef0123456789abcdef")
	other := []byte("fedcba9876543210fedcba9876543210")
	s, err := encryptPayload(dek, []byte("hello"))
	assert.NoError(t, err)

	_, err = decryptPayload(other, s)
	assert.Error(t, err)
}
