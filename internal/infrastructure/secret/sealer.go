// Package secret seals provider secrets before they reach a durable store.
package secret

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// KeySize is the required key length in bytes.
const KeySize = chacha20poly1305.KeySize

var ErrMalformed = errors.New("sealed value is malformed")

// Sealer encrypts values with XChaCha20-Poly1305. The sealed form is
// base64(nonce || ciphertext).
type Sealer struct {
	aead cipher.AEAD
}

// NewSealer builds a Sealer from a raw 32-byte key.
func NewSealer(key []byte) (*Sealer, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("new sealer: %w", err)
	}
	return &Sealer{aead: aead}, nil
}

// ParseKey decodes a base64 (standard or url-safe) key and checks its length.
func ParseKey(encoded string) ([]byte, error) {
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
		key, err := enc.DecodeString(encoded)
		if err == nil {
			if len(key) != KeySize {
				return nil, fmt.Errorf("secrets key must be %d bytes, got %d", KeySize, len(key))
			}
			return key, nil
		}
	}
	return nil, errors.New("secrets key is not valid base64")
}

// Seal encrypts value. associated binds the ciphertext to its owner so a
// sealed value cannot be replayed onto another record.
func (s *Sealer) Seal(value, associated string) (string, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("read nonce: %w", err)
	}
	out := s.aead.Seal(nonce, nonce, []byte(value), []byte(associated))
	return base64.RawStdEncoding.EncodeToString(out), nil
}

// Open decrypts a value produced by Seal with the same associated data.
func (s *Sealer) Open(sealed, associated string) (string, error) {
	payload, err := base64.RawStdEncoding.DecodeString(sealed)
	if err != nil {
		return "", ErrMalformed
	}
	n := s.aead.NonceSize()
	if len(payload) < n {
		return "", ErrMalformed
	}
	plain, err := s.aead.Open(nil, payload[:n], payload[n:], []byte(associated))
	if err != nil {
		return "", fmt.Errorf("open sealed value: %w", err)
	}
	return string(plain), nil
}

// SealAll seals every value of secrets, using "<owner>/<provider>" as
// associated data.
func (s *Sealer) SealAll(owner string, secrets map[string]string) (map[string]string, error) {
	out := make(map[string]string, len(secrets))
	for id, v := range secrets {
		sealed, err := s.Seal(v, owner+"/"+id)
		if err != nil {
			return nil, err
		}
		out[id] = sealed
	}
	return out, nil
}

// OpenAll reverses SealAll.
func (s *Sealer) OpenAll(owner string, sealed map[string]string) (map[string]string, error) {
	out := make(map[string]string, len(sealed))
	for id, v := range sealed {
		plain, err := s.Open(v, owner+"/"+id)
		if err != nil {
			return nil, fmt.Errorf("provider %s: %w", id, err)
		}
		out[id] = plain
	}
	return out, nil
}
