package credential

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// Encryptor seals refresh credentials at rest so a leaked database dump
// cannot be replayed against the identity provider. Keyed via HKDF-SHA256
// over an operator-supplied master key, mirroring the pack's token-at-rest
// encryption pattern (tomtom215-cartographus's auth.TokenEncryptor), swapped
// to ChaCha20-Poly1305.
type Encryptor struct {
	aead interface {
		NonceSize() int
		Overhead() int
		Seal(dst, nonce, plaintext, additionalData []byte) []byte
		Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
	}
}

const hkdfContext = "autoreplyd-credential-encryption"

// NewEncryptor derives a ChaCha20-Poly1305 key from masterKey via HKDF. An
// empty masterKey disables encryption; Encrypt/Decrypt become passthroughs.
func NewEncryptor(masterKey string) (*Encryptor, error) {
	if masterKey == "" {
		return &Encryptor{}, nil
	}
	reader := hkdf.New(sha256.New, []byte(masterKey), nil, []byte(hkdfContext))
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("op=credential.NewEncryptor.derive: %w", err)
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("op=credential.NewEncryptor.aead: %w", err)
	}
	return &Encryptor{aead: aead}, nil
}

// Encrypt returns the base64-encoded nonce||ciphertext for plaintext, or
// plaintext itself when encryption is disabled.
func (e *Encryptor) Encrypt(plaintext string) (string, error) {
	if e == nil || e.aead == nil || plaintext == "" {
		return plaintext, nil
	}
	nonce := make([]byte, e.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("op=credential.Encrypt.nonce: %w", err)
	}
	sealed := e.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt.
func (e *Encryptor) Decrypt(ciphertext string) (string, error) {
	if e == nil || e.aead == nil || ciphertext == "" {
		return ciphertext, nil
	}
	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("op=credential.Decrypt.base64: %w", err)
	}
	nonceSize := e.aead.NonceSize()
	if len(data) < nonceSize {
		return "", fmt.Errorf("op=credential.Decrypt: ciphertext too short")
	}
	nonce, sealed := data[:nonceSize], data[nonceSize:]
	plaintext, err := e.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("op=credential.Decrypt.open: %w", err)
	}
	return string(plaintext), nil
}
