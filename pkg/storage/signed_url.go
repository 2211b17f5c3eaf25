package storage

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrInvalidLocator is returned for malformed or tampered tokens.
	ErrInvalidLocator = errors.New("invalid locator token")
	// ErrExpiredLocator is returned once a token's expiry has passed.
	ErrExpiredLocator = errors.New("locator token expired")
)

// Locator is the verified content of a signed download token.
type Locator struct {
	SubjectID string
	Key       string
	ExpiresAt time.Time
}

// SignedURLSigner issues HMAC-signed, expiring download tokens for stored artifacts.
type SignedURLSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewSignedURLSigner constructs a signer with the provided secret and TTL.
func NewSignedURLSigner(secret string, ttl time.Duration) *SignedURLSigner {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &SignedURLSigner{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Sign returns a token binding the subject (e.g. an application id) to a storage key.
func (s *SignedURLSigner) Sign(subjectID, key string) (string, time.Time, error) {
	if subjectID == "" || key == "" {
		return "", time.Time{}, fmt.Errorf("subject and key required")
	}
	if len(s.secret) == 0 {
		return "", time.Time{}, fmt.Errorf("signing secret missing")
	}
	expiresAt := s.now().Add(s.ttl).Truncate(time.Second)
	fields := []string{
		base64.RawURLEncoding.EncodeToString([]byte(subjectID)),
		strconv.FormatInt(expiresAt.Unix(), 10),
		base64.RawURLEncoding.EncodeToString([]byte(key)),
	}
	body := strings.Join(fields, ".")
	return body + "." + s.mac(body), expiresAt, nil
}

// Verify checks the signature and expiry and returns the embedded locator.
func (s *SignedURLSigner) Verify(token string) (*Locator, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 4 {
		return nil, ErrInvalidLocator
	}
	body := strings.Join(parts[:3], ".")
	if !hmac.Equal([]byte(s.mac(body)), []byte(parts[3])) {
		return nil, ErrInvalidLocator
	}
	subject, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, ErrInvalidLocator
	}
	key, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		return nil, ErrInvalidLocator
	}
	exp, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return nil, ErrInvalidLocator
	}
	expiresAt := time.Unix(exp, 0)
	if s.now().After(expiresAt) {
		return nil, ErrExpiredLocator
	}
	return &Locator{SubjectID: string(subject), Key: string(key), ExpiresAt: expiresAt}, nil
}

func (s *SignedURLSigner) mac(body string) string {
	h := hmac.New(sha256.New, s.secret)
	_, _ = h.Write([]byte(body))
	return hex.EncodeToString(h.Sum(nil))
}
