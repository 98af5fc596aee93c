package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// KMSClient wraps and unwraps data-encryption keys under a master key
// identified by kmsKeyID. Production deployments point this at a managed KMS;
// localKMS below derives a stable master key from a configured key id so the
// gateway runs standalone in development.
type KMSClient interface {
	Wrap(kmsKeyID string, dek []byte) (wrapped []byte, err error)
	Unwrap(kmsKeyID string, wrapped []byte) (dek []byte, err error)
}

// localKMS derives a 256-bit master key per kmsKeyID via HKDF-SHA256 over a
// root secret, then wraps DEKs with AES-256-GCM under that derived key. It is
// not a substitute for a managed KMS: the root secret lives in this process.
type localKMS struct {
	rootSecret []byte
}

func NewLocalKMS(rootSecret string) KMSClient {
	return &localKMS{rootSecret: []byte(rootSecret)}
}

func (k *localKMS) masterKey(kmsKeyID string) ([]byte, error) {
	h := hkdf.New(sha256.New, k.rootSecret, []byte(kmsKeyID), []byte("agenr-vault-master-key"))
	key := make([]byte, 32)
	if _, err := io.ReadFull(h, key); err != nil {
		return nil, fmt.Errorf("deriving master key: %w", err)
	}
	return key, nil
}

func (k *localKMS) Wrap(kmsKeyID string, dek []byte) ([]byte, error) {
	master, err := k.masterKey(kmsKeyID)
	if err != nil {
		return nil, err
	}
	return aesGCMSeal(master, dek)
}

func (k *localKMS) Unwrap(kmsKeyID string, wrapped []byte) ([]byte, error) {
	master, err := k.masterKey(kmsKeyID)
	if err != nil {
		return nil, err
	}
	return aesGCMOpen(master, wrapped)
}

func aesGCMSeal(key, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating gcm: %w", err)
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func aesGCMOpen(key, sealed []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating gcm: %w", err)
	}
	if len(sealed) < gcm.NonceSize() {
		return nil, fmt.Errorf("wrapped key too short")
	}
	nonce, ciphertext := sealed[:gcm.NonceSize()], sealed[gcm.NonceSize():]
	return gcm.Open(nil, nonce, ciphertext, nil)
}
