// File: internal/infra/security/encryption_service.go
package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
)

// sealedPrefix marks ciphertext so rows written before a key was configured
// still read back as plaintext.
const sealedPrefix = "enc:v1:"

var ErrCiphertext = errors.New("malformed ciphertext")

// FieldCipher seals short text columns (device names) with AES-256-GCM.
// Output format: "enc:v1:" + base64(nonce || ciphertext).
type FieldCipher struct {
	gcm cipher.AEAD
}

// NewFieldCipher requires a 32-byte key.
func NewFieldCipher(key string) (*FieldCipher, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("encryption key must be 32 bytes; got %d", len(key))
	}
	block, err := aes.NewCipher([]byte(key))
	if err != nil {
		return nil, fmt.Errorf("aes.NewCipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cipher.NewGCM: %w", err)
	}
	return &FieldCipher{gcm: gcm}, nil
}

// Seal leaves the empty string as is.
func (c *FieldCipher) Seal(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	nonce := make([]byte, c.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("rand nonce: %w", err)
	}
	ct := c.gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return sealedPrefix + base64.StdEncoding.EncodeToString(ct), nil
}

// Open returns unprefixed values unchanged.
func (c *FieldCipher) Open(value string) (string, error) {
	if !strings.HasPrefix(value, sealedPrefix) {
		return value, nil
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, sealedPrefix))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCiphertext, err)
	}
	ns := c.gcm.NonceSize()
	if len(data) < ns {
		return "", ErrCiphertext
	}
	pt, err := c.gcm.Open(nil, data[:ns], data[ns:], nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCiphertext, err)
	}
	return string(pt), nil
}
