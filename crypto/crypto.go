// Package crypto seals short secrets, such as the stored bot OAuth token,
// with AES-256-GCM before they are written to the database.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
)

var (
	// ErrInvalidKey is returned for keys that are not base64 of exactly 32 bytes.
	ErrInvalidKey = errors.New("invalid encryption key")
	// ErrOpen is returned when a sealed value fails authentication.
	ErrOpen = errors.New("decryption failed: authentication or integrity check failed")
)

// Sealer encrypts strings. Sealed output is base64(nonce || ciphertext || tag).
type Sealer struct {
	aead  cipher.AEAD
	keyID string
}

// NewSealer builds a Sealer from a base64-encoded 32-byte key
// (generate with: openssl rand -base64 32).
func NewSealer(base64Key string) (*Sealer, error) {
	if base64Key == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidKey)
	}
	key, err := base64.StdEncoding.DecodeString(base64Key)
	if err != nil {
		return nil, fmt.Errorf("%w: base64 decode: %v", ErrInvalidKey, err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("%w: must be 32 bytes, got %d", ErrInvalidKey, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}
	sum := sha256.Sum256(key)
	return &Sealer{aead: aead, keyID: hex.EncodeToString(sum[:4])}, nil
}

// FromEnv reads ENCRYPTION_KEY. It returns (nil, nil) when the variable is unset,
// in which case secrets are stored in plaintext.
func FromEnv() (*Sealer, error) {
	key := os.Getenv("ENCRYPTION_KEY")
	if key == "" {
		slog.Warn("ENCRYPTION_KEY not set, OAuth tokens will be stored in plaintext", slog.String("component", "crypto"))
		return nil, nil
	}
	s, err := NewSealer(key)
	if err != nil {
		return nil, err
	}
	slog.Info("token encryption enabled (AES-256-GCM)", slog.String("component", "crypto"), slog.String("key_id", s.keyID))
	return s, nil
}

// KeyID is a short fingerprint of the key, stored next to sealed values.
func (s *Sealer) KeyID() string { return s.keyID }

// Seal encrypts plaintext. The empty string seals to the empty string.
func (s *Sealer) Seal(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	out := s.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(out), nil
}

// Open reverses Seal.
func (s *Sealer) Open(sealed string) (string, error) {
	if sealed == "" {
		return "", nil
	}
	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", fmt.Errorf("base64 decode: %w", err)
	}
	n := s.aead.NonceSize()
	if len(raw) < n+s.aead.Overhead() {
		return "", fmt.Errorf("%w: sealed value too short", ErrOpen)
	}
	plain, err := s.aead.Open(nil, raw[:n], raw[n:], nil)
	if err != nil {
		return "", ErrOpen
	}
	return string(plain), nil
}

// GenerateKey returns a fresh random key in the format NewSealer expects.
func GenerateKey() (string, error) {
	key := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return "", fmt.Errorf("generate key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(key), nil
}
