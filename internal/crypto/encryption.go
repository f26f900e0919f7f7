// Package encryption obscures secrets kept in the connection profile file.
//
// Obscuring is not protection against an attacker who can run code as the
// user: the key is derived from the user identity, so any process of the same
// user can reveal the secret. It keeps passwords out of plain sight in a file
// that is readable by its owner only.
package encryption

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
)

const (
	KeySize = 32 // 256-bit key for AES-256

	// prefix marks values written by Obscure so that a hand-edited clear-text
	// password is not mistaken for ciphertext.
	prefix = "obs1:"
)

var (
	ErrNotObscured = errors.New("value is not an obscured secret")
	ErrCorrupt     = errors.New("obscured secret is corrupt or belongs to another user")
)

// GenerateKey generates a random 256-bit key.
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return key, nil
}

// EncodeBase64 encodes data to URL-safe base64 without padding
func EncodeBase64(data []byte) string {
	return base64.RawURLEncoding.EncodeToString(data)
}

// DecodeBase64 decodes URL-safe base64 without padding
func DecodeBase64(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(s)
}

// Obscurer seals and opens secrets with one derived key.
type Obscurer struct {
	key  []byte
	aead cipher.AEAD
}

// NewObscurer creates an Obscurer for a KeySize-byte key.
func NewObscurer(key []byte) (*Obscurer, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("key must be %d bytes, got %d", KeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return &Obscurer{key: key, aead: aead}, nil
}

// Obscure seals secret. The output is deterministic for a given key and
// secret, so rewriting an unchanged profile does not change the file.
func (o *Obscurer) Obscure(secret string) (string, error) {
	if secret == "" {
		return "", nil
	}
	nonce := o.nonce(secret)
	sealed := o.aead.Seal(nonce, nonce, []byte(secret), nil)
	return prefix + EncodeBase64(sealed), nil
}

// Reveal opens a value produced by Obscure.
func (o *Obscurer) Reveal(s string) (string, error) {
	if s == "" {
		return "", nil
	}
	if len(s) < len(prefix) || s[:len(prefix)] != prefix {
		return "", ErrNotObscured
	}
	data, err := DecodeBase64(s[len(prefix):])
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	n := o.aead.NonceSize()
	if len(data) < n+o.aead.Overhead() {
		return "", ErrCorrupt
	}
	plain, err := o.aead.Open(nil, data[:n], data[n:], nil)
	if err != nil {
		return "", ErrCorrupt
	}
	return string(plain), nil
}

// nonce is a synthetic IV: HMAC-SHA256 of the secret, truncated.
func (o *Obscurer) nonce(secret string) []byte {
	mac := hmac.New(sha256.New, o.key)
	mac.Write([]byte(secret))
	return mac.Sum(nil)[:o.aead.NonceSize()]
}
