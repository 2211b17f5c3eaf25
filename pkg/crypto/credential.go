// Package crypto protects applicant-supplied credentials at rest.
package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const keyInfo = "phd-admission/credential/v1"

var (
	// ErrMalformed is returned when a stored credential is not in nonce:ciphertext form.
	ErrMalformed = errors.New("malformed sealed credential")
	// ErrMissingSecret is returned when no key material is configured.
	ErrMissingSecret = errors.New("credential secret not configured")
)

// Cipher encrypts short secrets with a fresh random nonce per record.
type Cipher interface {
	Encrypt(plaintext []byte) (nonce, ciphertext []byte, err error)
	Decrypt(nonce, ciphertext []byte) ([]byte, error)
}

// CredentialCipher is an XChaCha20-Poly1305 cipher keyed via HKDF-SHA256 from a server secret.
type CredentialCipher struct {
	key  []byte
	rand io.Reader
}

// NewCredentialCipher derives the encryption key from secret.
func NewCredentialCipher(secret string) (*CredentialCipher, error) {
	if secret == "" {
		return nil, ErrMissingSecret
	}
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(keyInfo)), key); err != nil {
		return nil, fmt.Errorf("derive credential key: %w", err)
	}
	return &CredentialCipher{key: key, rand: rand.Reader}, nil
}

// Encrypt seals plaintext and returns the nonce alongside the ciphertext.
func (c *CredentialCipher) Encrypt(plaintext []byte) ([]byte, []byte, error) {
	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return nil, nil, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(c.rand, nonce); err != nil {
		return nil, nil, fmt.Errorf("generate nonce: %w", err)
	}
	return nonce, aead.Seal(nil, nonce, plaintext, nil), nil
}

// Decrypt opens ciphertext sealed by Encrypt.
func (c *CredentialCipher) Decrypt(nonce, ciphertext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return nil, err
	}
	if len(nonce) != aead.NonceSize() {
		return nil, ErrMalformed
	}
	plain, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("open credential: %w", err)
	}
	return plain, nil
}

// Seal encrypts value into the "nonceHex:ciphertextHex" storage form.
func Seal(c Cipher, value string) (string, error) {
	if c == nil {
		return "", ErrMissingSecret
	}
	nonce, ct, err := c.Encrypt([]byte(value))
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(nonce) + ":" + hex.EncodeToString(ct), nil
}

// Open reverses Seal.
func Open(c Cipher, sealed string) (string, error) {
	if c == nil {
		return "", ErrMissingSecret
	}
	nonceHex, ctHex, ok := strings.Cut(sealed, ":")
	if !ok || nonceHex == "" || ctHex == "" {
		return "", ErrMalformed
	}
	nonce, err := hex.DecodeString(nonceHex)
	if err != nil {
		return "", ErrMalformed
	}
	ct, err := hex.DecodeString(ctHex)
	if err != nil {
		return "", ErrMalformed
	}
	plain, err := c.Decrypt(nonce, ct)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}
