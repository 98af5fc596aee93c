package vault

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLocalKMS_WrapUnwrapRoundTrip(t *testing.T) {
	kms := NewLocalKMS("a-sufficiently-long-root-secret-value")
	dek := []byte("0123456789abcdef0123456789abcdef")

	wrapped, err := kms.Wrap("key-1", dek)
	assert.NoError(t, err)
	assert.NotEqual(t, dek, wrapped)

	unwrapped, err := kms.Unwrap("key-1", wrapped)
	assert.NoError(t, err)
	assert.Equal(t, dek, unwrapped)
}

func TestLocalKMS_DifferentKeyIDsDeriveDifferentMasterKeys(t *testing.T) {
	kms := NewLocalKMS("a-sufficiently-long-root-secret-value")
	dek := []byte("0123456789abcdef0123456789abcdef")

	wrapped, err := kms.Wrap("key-1", dek)
	assert.NoError(t, err)

	_, err = kms.Unwrap("key-2", wrapped)
	assert.Error(t, err, "unwrapping under the wrong key id must fail authentication")
}

func TestLocalKMS_UnwrapRejectsTamperedCiphertext(t *testing.T) {
	kms := NewLocalKMS("a-sufficiently-long-root-secret-value")
	dek := []byte("0123456789abcdef0123456789abcdef")

	wrapped, err := kms.Wrap("key-1", dek)
	assert.NoError(t, err)

	tampered := append([]byte{}, wrapped...)
	tampered[len(tampered)-1] ^= 0xFF

	_, err = kms.Unwrap("key-1", tampered)
	assert.Error(t, err)
}
