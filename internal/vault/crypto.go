package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"

	"github.com/agenr/gateway/internal/apperr"
)

// sealed is the three-part output of envelope-encrypting a payload: random
// 96-bit IV, ciphertext, and the 128-bit GCM authentication tag, each stored
// in its own column so the tag can be checked without touching ciphertext.
type sealed struct {
	Ciphertext []byte
	IV         []byte
	AuthTag    []byte
}

// encryptPayload encrypts plaintext with AES-256-GCM under dek, splitting the
// GCM output into ciphertext and a separate 16-byte auth tag.
func encryptPayload(dek, plaintext []byte) (sealed, error) {
	block, err := aes.NewCipher(dek)
	if err != nil {
		return sealed{}, fmt.Errorf("creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return sealed{}, fmt.Errorf("creating gcm: %w", err)
	}

	iv := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(iv); err != nil {
		return sealed{}, fmt.Errorf("generating iv: %w", err)
	}

	out := gcm.Seal(nil, iv, plaintext, nil)
	tagSize := gcm.Overhead()
	ciphertext := out[:len(out)-tagSize]
	tag := out[len(out)-tagSize:]

	return sealed{Ciphertext: ciphertext, IV: iv, AuthTag: tag}, nil
}

// decryptPayload reverses encryptPayload. An auth-tag mismatch surfaces as a
// typed Integrity error and must never be retried by the caller.
func decryptPayload(dek []byte, s sealed) ([]byte, error) {
	block, err := aes.NewCipher(dek)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating gcm: %w", err)
	}

	combined := append(append([]byte{}, s.Ciphertext...), s.AuthTag...)
	plaintext, err := gcm.Open(nil, s.IV, combined, nil)
	if err != nil {
		return nil, apperr.Integrity("credential payload failed authentication", err)
	}
	return plaintext, nil
}
